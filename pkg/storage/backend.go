package storage

import (
	"context"
	"fmt"

	"github.com/adfharrison1/go-okdb/pkg/domain"
)

func cloneAll(docs []domain.Document) []domain.Document {
	out := make([]domain.Document, len(docs))
	for i, doc := range docs {
		out[i] = doc.Clone()
	}
	return out
}

// IndexGet looks up one record through a unique index.
func (se *StorageEngine) IndexGet(ctx context.Context, tableName, indexName string, key interface{}) (domain.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out domain.Document
	err := se.withTableReadLock(tableName, func(info *TableInfo) error {
		idx, err := se.index(info, indexName)
		if err != nil {
			return err
		}
		if !idx.Unique {
			return fmt.Errorf("%w: index %s of table %s is not unique", domain.ErrConfiguration, indexName, tableName)
		}
		out = idx.Get(key).Clone()
		return nil
	})
	return out, err
}

// IndexEqual returns every record whose indexed value equals key.
func (se *StorageEngine) IndexEqual(ctx context.Context, tableName, indexName string, key interface{}) ([]domain.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []domain.Document
	err := se.withTableReadLock(tableName, func(info *TableInfo) error {
		idx, err := se.index(info, indexName)
		if err != nil {
			return err
		}
		out = cloneAll(idx.Equal(key))
		return nil
	})
	return out, err
}

// IndexRange opens a cursor over a snapshot of the index taken under the
// table read lock. Writes made after the call are not observed.
func (se *StorageEngine) IndexRange(ctx context.Context, tableName, indexName string, r domain.KeyRange, dir domain.Direction) (domain.Cursor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var cursor domain.Cursor
	err := se.withTableReadLock(tableName, func(info *TableInfo) error {
		idx, err := se.index(info, indexName)
		if err != nil {
			return err
		}
		cursor = idx.OpenCursor(r, dir)
		return nil
	})
	return cursor, err
}

// Scan returns every record ordered by orderIndex, createdAt when empty.
func (se *StorageEngine) Scan(ctx context.Context, tableName, orderIndex string) ([]domain.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if orderIndex == "" {
		orderIndex = domain.CreatedAt
	}
	var out []domain.Document
	err := se.withTableReadLock(tableName, func(info *TableInfo) error {
		idx, err := se.index(info, orderIndex)
		if err != nil {
			return err
		}
		out = cloneAll(idx.All())
		return nil
	})
	return out, err
}
