package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adfharrison1/go-okdb/pkg/domain"
)

func TestStorageEngine_SaveAndLoad(t *testing.T) {
	tempFile := filepath.Join(t.TempDir(), "data"+FileExtension)
	ctx := context.Background()

	engine1 := newPeopleEngine(t)
	docs := []domain.Document{
		{"name": "Alice", "age": 30, "email": "alice@x", "tags": []interface{}{"a", "b"}},
		{"name": "Bob", "age": 25.5, "address": map[string]interface{}{"city": "Paris"}},
		{"_id": "charlie", "name": "Charlie", "active": true},
	}
	for _, doc := range docs {
		_, err := engine1.Insert(ctx, "people", doc)
		require.NoError(t, err)
	}
	_, err := engine1.AlterIndexes("people", map[string]bool{"name": false, "age": false, "email": true, "active": false})
	require.NoError(t, err)

	require.NoError(t, engine1.SaveToFile(tempFile))
	info, err := engine1.Info("people")
	require.NoError(t, err)
	assert.Equal(t, TableStateClean, info.State)

	fileInfo, err := os.Stat(tempFile)
	require.NoError(t, err)
	assert.Greater(t, fileInfo.Size(), int64(0))
	_, err = os.Stat(tempFile + ".tmp")
	assert.True(t, os.IsNotExist(err), "temporary file is renamed away")

	engine2 := NewStorageEngine()
	defer engine2.StopBackgroundWorkers()
	require.NoError(t, engine2.LoadFromFile(tempFile))

	def, err := engine2.Table("people")
	require.NoError(t, err)
	assert.Equal(t, int64(2), def.Version)
	assert.True(t, def.Indexes["email"])
	assert.Contains(t, def.Indexes, "active")

	before, err := engine1.Scan(ctx, "people", "")
	require.NoError(t, err)
	after, err := engine2.Scan(ctx, "people", "")
	require.NoError(t, err)
	assert.Equal(t, ids(before), ids(after))

	charlie, err := engine2.Get(ctx, "people", "charlie")
	require.NoError(t, err)
	assert.Equal(t, true, charlie["active"])
	assert.IsType(t, time.Time{}, charlie[domain.CreatedAt])

	bobs, err := engine2.IndexEqual(ctx, "people", "age", 25.5)
	require.NoError(t, err)
	require.Len(t, bobs, 1)
	assert.Equal(t, "Paris", bobs[0]["address"].(map[string]interface{})["city"])

	// numbers decode into a different Go kind but still match by value
	thirty, err := engine2.IndexEqual(ctx, "people", "age", 30)
	require.NoError(t, err)
	assert.Len(t, thirty, 1)

	_, err = engine2.Insert(ctx, "people", domain.Document{"email": "alice@x"})
	assert.ErrorIs(t, err, domain.ErrDuplicateKey, "unique indexes are rebuilt on load")

	rec, err := engine2.Insert(ctx, "people", domain.Document{"name": "Dan"})
	require.NoError(t, err)
	last := after[len(after)-1][domain.CreatedAt].(time.Time)
	assert.True(t, rec[domain.CreatedAt].(time.Time).After(last), "createdAt keeps increasing after a load")
}

func TestStorageEngine_LoadFromFile_FileNotExists(t *testing.T) {
	engine := NewStorageEngine()
	defer engine.StopBackgroundWorkers()

	err := engine.LoadFromFile(filepath.Join(t.TempDir(), "nonexistent.okdb"))
	assert.NoError(t, err)
	assert.Empty(t, engine.Tables())
}

func TestStorageEngine_LoadFromFile_InvalidFile(t *testing.T) {
	tempFile := filepath.Join(t.TempDir(), "invalid.okdb")
	require.NoError(t, os.WriteFile(tempFile, []byte("invalid data"), 0644))

	engine := NewStorageEngine()
	defer engine.StopBackgroundWorkers()

	err := engine.LoadFromFile(tempFile)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "invalid file header")
}

func TestStorageEngine_LoadFromFile_CorruptBody(t *testing.T) {
	tempFile := filepath.Join(t.TempDir(), "corrupt.okdb")
	f, err := os.Create(tempFile)
	require.NoError(t, err)
	require.NoError(t, WriteHeader(f))
	_, err = f.Write([]byte("not lz4 at all"))
	require.NoError(t, err)
	require.NoError(t, f.Close())

	engine := NewStorageEngine()
	defer engine.StopBackgroundWorkers()
	assert.Error(t, engine.LoadFromFile(tempFile))
}

func TestStorageEngine_SaveToFile_EmptyEngine(t *testing.T) {
	tempFile := filepath.Join(t.TempDir(), "nested", "empty.okdb")

	engine := NewStorageEngine()
	defer engine.StopBackgroundWorkers()
	require.NoError(t, engine.SaveToFile(tempFile))

	other := NewStorageEngine()
	defer other.StopBackgroundWorkers()
	require.NoError(t, other.LoadFromFile(tempFile))
	assert.Empty(t, other.Tables())
}

func TestStorageEngine_LoadKeepsOtherTables(t *testing.T) {
	tempFile := filepath.Join(t.TempDir(), "data.okdb")
	saved := newPeopleEngine(t)
	require.NoError(t, saved.SaveToFile(tempFile))

	engine := NewStorageEngine()
	defer engine.StopBackgroundWorkers()
	require.NoError(t, engine.CreateTable(domain.NewTable("orders", nil)))
	require.NoError(t, engine.LoadFromFile(tempFile))
	assert.Equal(t, []string{"orders", "people"}, engine.Tables())
}

func TestStorageEngine_BackgroundSave(t *testing.T) {
	tempFile := filepath.Join(t.TempDir(), "bg.okdb")
	engine := newPeopleEngine(t, WithDataFile(tempFile), WithBackgroundSave(20*time.Millisecond))
	engine.StartBackgroundWorkers()

	_, err := engine.Insert(context.Background(), "people", domain.Document{"name": "Alice"})
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		info, err := engine.Info("people")
		return err == nil && info.State == TableStateClean
	}, 2*time.Second, 10*time.Millisecond)

	engine.StopBackgroundWorkers()
	// stopping twice is harmless
	engine.StopBackgroundWorkers()

	loaded := NewStorageEngine()
	defer loaded.StopBackgroundWorkers()
	require.NoError(t, loaded.LoadFromFile(tempFile))
	all, err := loaded.Scan(context.Background(), "people", "")
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestStorageEngine_BackgroundSaveNeedsDataFile(t *testing.T) {
	engine := NewStorageEngine(WithBackgroundSave(time.Millisecond))
	engine.StartBackgroundWorkers()
	engine.StopBackgroundWorkers()
}

func TestStorageEngine_GetMemoryStats(t *testing.T) {
	engine := newPeopleEngine(t)
	_, err := engine.Insert(context.Background(), "people", domain.Document{"name": "Alice"})
	require.NoError(t, err)

	stats := engine.GetMemoryStats()
	assert.Equal(t, 1, stats["tables"])
	assert.Equal(t, int64(1), stats["records"])
	assert.Contains(t, stats, "alloc_mb")
}
