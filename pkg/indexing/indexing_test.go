package indexing

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adfharrison1/go-okdb/pkg/domain"
)

func people() []domain.Document {
	return []domain.Document{
		{"_id": "a", "name": "Alice", "age": 25},
		{"_id": "b", "name": "Bob", "age": 30},
		{"_id": "c", "name": "Charlie", "age": 25},
		{"_id": "d", "name": "David", "age": 35.5},
		{"_id": "e", "name": "Eve"},
		{"_id": "f", "name": "Frank", "age": "forty"},
		{"_id": "g", "name": "Grace", "age": nil},
	}
}

func ageIndex(t *testing.T) *Index {
	idx := NewIndex("age", false)
	require.NoError(t, idx.BuildIndex(people()))
	return idx
}

func collect(t *testing.T, c *Cursor) []interface{} {
	t.Helper()
	defer c.Close()
	var ids []interface{}
	for {
		doc, ok, err := c.Next(context.Background())
		require.NoError(t, err)
		if !ok {
			return ids
		}
		ids = append(ids, doc["_id"])
	}
}

func TestUnboundedWalkVisitsEveryRecord(t *testing.T) {
	idx := ageIndex(t)
	assert.Equal(t, 7, idx.Len())

	// missing < null < numbers < strings
	ids := collect(t, idx.OpenCursor(domain.KeyRange{}, domain.Forward))
	assert.Equal(t, []interface{}{"e", "g", "a", "c", "b", "d", "f"}, ids)

	ids = collect(t, idx.OpenCursor(domain.KeyRange{}, domain.Reverse))
	assert.Equal(t, []interface{}{"f", "d", "b", "c", "a", "g", "e"}, ids)
}

func TestRangeCursor(t *testing.T) {
	idx := ageIndex(t)

	cases := []struct {
		name string
		r    domain.KeyRange
		want []interface{}
	}{
		{"gte", domain.KeyRange{Lower: 25, HasLower: true}, []interface{}{"a", "c", "b", "d"}},
		{"gt", domain.KeyRange{Lower: 25, HasLower: true, LowerOpen: true}, []interface{}{"b", "d"}},
		{"lt", domain.KeyRange{Upper: 30, HasUpper: true, UpperOpen: true}, []interface{}{"a", "c"}},
		{"lte", domain.KeyRange{Upper: 30, HasUpper: true}, []interface{}{"a", "c", "b"}},
		{"gtlt", domain.KeyRange{Lower: 25, HasLower: true, LowerOpen: true, Upper: 35.5, HasUpper: true, UpperOpen: true}, []interface{}{"b"}},
		{"gtelte", domain.KeyRange{Lower: 25.0, HasLower: true, Upper: 35.5, HasUpper: true}, []interface{}{"a", "c", "b", "d"}},
		{"string class", domain.KeyRange{Lower: "a", HasLower: true}, []interface{}{"f"}},
		{"inverted", domain.KeyRange{Lower: 40, HasLower: true, Upper: 10, HasUpper: true}, nil},
		{"mixed classes", domain.KeyRange{Lower: 1, HasLower: true, Upper: "z", HasUpper: true}, nil},
		{"null bound", domain.KeyRange{Lower: nil, HasLower: true}, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, collect(t, idx.OpenCursor(tc.r, domain.Forward)))
		})
	}
}

func TestNaNStaysOutOfNumericRanges(t *testing.T) {
	idx := NewIndex("score", false)
	require.NoError(t, idx.BuildIndex([]domain.Document{
		{"_id": "a", "score": 1},
		{"_id": "b", "score": math.NaN()},
		{"_id": "c", "score": nil},
		{"_id": "d", "score": -5},
	}))

	assert.Equal(t, []interface{}{"c", "b", "d", "a"}, collect(t, idx.OpenCursor(domain.KeyRange{}, domain.Forward)))
	assert.Equal(t, []interface{}{"d", "a"}, collect(t, idx.OpenCursor(domain.KeyRange{Upper: 30, HasUpper: true}, domain.Forward)))
	assert.Equal(t, []interface{}{"a", "d"}, collect(t, idx.OpenCursor(domain.KeyRange{Lower: -10, HasLower: true}, domain.Reverse)))
}

func TestReverseRangeCursor(t *testing.T) {
	idx := ageIndex(t)
	r := domain.KeyRange{Lower: 25, HasLower: true, LowerOpen: true, Upper: 35.5, HasUpper: true}
	assert.Equal(t, []interface{}{"d", "b"}, collect(t, idx.OpenCursor(r, domain.Reverse)))

	r = domain.KeyRange{Upper: 30, HasUpper: true, UpperOpen: true}
	assert.Equal(t, []interface{}{"c", "a"}, collect(t, idx.OpenCursor(r, domain.Reverse)))
}

func TestCursorAdvance(t *testing.T) {
	idx := ageIndex(t)
	c := idx.OpenCursor(domain.KeyRange{Lower: 0, HasLower: true}, domain.Forward)
	ctx := context.Background()

	require.NoError(t, c.Advance(ctx, 2))
	doc, ok, err := c.Next(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "b", doc["_id"])

	require.NoError(t, c.Advance(ctx, 10))
	_, ok, err = c.Next(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
	require.NoError(t, c.Close())
}

func TestCursorSeesSnapshot(t *testing.T) {
	idx := ageIndex(t)
	c := idx.OpenCursor(domain.KeyRange{Lower: 30, HasLower: true}, domain.Forward)

	idx.Put(nil, domain.Document{"_id": "z", "age": 31})
	assert.Equal(t, []interface{}{"b", "d"}, collect(t, c))

	c = idx.OpenCursor(domain.KeyRange{Lower: 30, HasLower: true}, domain.Forward)
	assert.Equal(t, []interface{}{"b", "z", "d"}, collect(t, c))
}

func TestCursorHonoursContext(t *testing.T) {
	idx := ageIndex(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c := idx.OpenCursor(domain.KeyRange{}, domain.Forward)
	defer c.Close()
	_, _, err := c.Next(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCursorReturnsCopies(t *testing.T) {
	idx := ageIndex(t)
	c := idx.OpenCursor(domain.KeyRange{}, domain.Forward)
	doc, _, _ := c.Next(context.Background())
	c.Close()
	doc["name"] = "mutated"
	assert.Equal(t, "Eve", idx.All()[0]["name"])
}

func TestGetAndEqual(t *testing.T) {
	idx := ageIndex(t)
	assert.Equal(t, "a", idx.Get(25)["_id"])
	assert.Equal(t, "a", idx.Get(25.0)["_id"])
	assert.Nil(t, idx.Get(26))

	docs := idx.Equal(25)
	require.Len(t, docs, 2)
	assert.Equal(t, "a", docs[0]["_id"])
	assert.Equal(t, "c", docs[1]["_id"])
	assert.Empty(t, idx.Equal("25"))
}

func TestPutAndRemove(t *testing.T) {
	idx := ageIndex(t)
	old := domain.Document{"_id": "b", "name": "Bob", "age": 30}
	idx.Put(old, domain.Document{"_id": "b", "name": "Bob", "age": 26})
	assert.Nil(t, idx.Get(30))
	assert.Equal(t, "b", idx.Get(26)["_id"])
	assert.Equal(t, 7, idx.Len())

	idx.Remove(domain.Document{"_id": "b", "age": 26})
	assert.Nil(t, idx.Get(26))
	assert.Equal(t, 6, idx.Len())
}

func TestUniqueIndex(t *testing.T) {
	idx := NewIndex("email", true)
	require.NoError(t, idx.BuildIndex([]domain.Document{
		{"_id": "1", "email": "a@x"},
		{"_id": "2"},
		{"_id": "3"},
		{"_id": "4", "email": nil},
		{"_id": "5", "email": nil},
	}))

	pk, dup := idx.Conflict(domain.Document{"_id": "9", "email": "a@x"})
	assert.True(t, dup)
	assert.Equal(t, "1", pk)

	_, dup = idx.Conflict(domain.Document{"_id": "1", "email": "a@x"})
	assert.False(t, dup, "a record never conflicts with itself")

	_, dup = idx.Conflict(domain.Document{"_id": "9"})
	assert.False(t, dup)

	err := NewIndex("email", true).BuildIndex([]domain.Document{
		{"_id": "1", "email": "a@x"},
		{"_id": "2", "email": "a@x"},
	})
	assert.ErrorIs(t, err, domain.ErrDuplicateKey)
}

func TestIndexEngine(t *testing.T) {
	ie := NewIndexEngine()

	_, err := ie.CreateIndex("users", "_id", true)
	require.NoError(t, err)
	_, err = ie.CreateIndex("users", "_id", true)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")

	require.NoError(t, ie.BuildIndexForTable("users", "role", false, nil))
	require.NoError(t, ie.BuildIndexForTable("users", "email", true, nil))
	assert.Equal(t, []string{"_id", "email", "role"}, ie.GetIndexes("users"))

	alice := domain.Document{"_id": "1", "email": "a@x", "role": "admin"}
	require.NoError(t, ie.CheckUnique("users", alice))
	ie.UpdateIndexForDocument("users", nil, alice)

	err = ie.CheckUnique("users", domain.Document{"_id": "2", "email": "a@x"})
	assert.ErrorIs(t, err, domain.ErrDuplicateKey)

	role, ok := ie.GetIndex("users", "role")
	require.True(t, ok)
	assert.Len(t, role.Equal("admin"), 1)

	ie.UpdateIndexForDocument("users", alice, nil)
	assert.Empty(t, role.Equal("admin"))

	require.NoError(t, ie.DropIndex("users", "role"))
	assert.Error(t, ie.DropIndex("users", "role"))
	assert.Error(t, ie.DropIndex("nobody", "role"))

	ie.DropTable("users")
	assert.Empty(t, ie.GetIndexes("users"))
}

func TestBuildIndexForTableLeavesEngineOnConflict(t *testing.T) {
	ie := NewIndexEngine()
	require.NoError(t, ie.BuildIndexForTable("t", "k", false, []domain.Document{{"_id": "1", "k": 1}, {"_id": "2", "k": 1}}))
	err := ie.BuildIndexForTable("t", "k", true, []domain.Document{{"_id": "1", "k": 1}, {"_id": "2", "k": 1}})
	assert.ErrorIs(t, err, domain.ErrDuplicateKey)

	idx, ok := ie.GetIndex("t", "k")
	require.True(t, ok)
	assert.False(t, idx.Unique)
}

func TestReplaceTable(t *testing.T) {
	ie := NewIndexEngine()
	require.NoError(t, ie.BuildIndexForTable("t", "old", false, nil))
	ie.ReplaceTable("t", []*Index{NewIndex("_id", true), NewIndex("new", false)})
	assert.Equal(t, []string{"_id", "new"}, ie.GetIndexes("t"))
}
