package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/adfharrison1/go-okdb/pkg/domain"
	"github.com/adfharrison1/go-okdb/pkg/value"
)

// nextCreatedAt returns a timestamp strictly after every earlier insert of
// the table, so the createdAt index preserves insertion order.
func (se *StorageEngine) nextCreatedAt(info *TableInfo) time.Time {
	t := se.now().Round(0)
	if !t.After(info.lastCreated) {
		t = info.lastCreated.Add(time.Nanosecond)
	}
	info.lastCreated = t
	return t
}

func (se *StorageEngine) observeCreatedAt(info *TableInfo, rec domain.Document) {
	if t, ok := rec[domain.CreatedAt].(time.Time); ok && t.After(info.lastCreated) {
		info.lastCreated = t
	}
}

func checkPrimaryKey(id interface{}) error {
	if !value.Indexable(id) {
		return fmt.Errorf("%w: %s must be a number, string, boolean or date, got %s",
			domain.ErrConfiguration, domain.PrimaryKey, value.TypeOf(id))
	}
	return nil
}

// Insert stores a new record. A missing _id gets a generated UUID and a
// missing createdAt gets the insertion time.
func (se *StorageEngine) Insert(ctx context.Context, tableName string, doc domain.Document) (domain.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out domain.Document
	err := se.withTableWriteLock(tableName, func(info *TableInfo) error {
		rec := doc.Clone()
		if rec == nil {
			rec = domain.Document{}
		}
		if id, ok := rec.ID(); ok {
			if err := checkPrimaryKey(id); err != nil {
				return err
			}
			primary, err := se.index(info, domain.PrimaryKey)
			if err != nil {
				return err
			}
			if primary.Get(id) != nil {
				return fmt.Errorf("%w: table %s already has a record with %s %v", domain.ErrDuplicateKey, tableName, domain.PrimaryKey, id)
			}
		} else {
			rec[domain.PrimaryKey] = se.newID()
		}
		if _, ok := rec[domain.CreatedAt]; ok {
			se.observeCreatedAt(info, rec)
		} else {
			rec[domain.CreatedAt] = se.nextCreatedAt(info)
		}

		if err := se.indexEngine.CheckUnique(tableName, rec); err != nil {
			return err
		}
		se.indexEngine.UpdateIndexForDocument(tableName, nil, rec)

		info.DocumentCount++
		info.markDirty(se.now())
		out = rec.Clone()
		return nil
	})
	return out, err
}

// Put stores doc under its primary key, replacing any existing record. The
// existing createdAt is kept when doc has none.
func (se *StorageEngine) Put(ctx context.Context, tableName string, doc domain.Document) error {
	return se.PutAll(ctx, tableName, []domain.Document{doc})
}

// PutAll stores several records like Put under one table lock. Either every
// record is stored or the table is left as it was.
func (se *StorageEngine) PutAll(ctx context.Context, tableName string, docs []domain.Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := checkKeys(docs); err != nil {
		return err
	}
	return se.withTableWriteLock(tableName, func(info *TableInfo) error {
		return se.putLocked(tableName, info, docs, false)
	})
}

// ReplaceAll overwrites existing records under one table lock. It fails with
// ErrConflict when the table was written after revision or when a record no
// longer exists; nothing is stored in that case.
func (se *StorageEngine) ReplaceAll(ctx context.Context, tableName string, docs []domain.Document, revision uint64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := checkKeys(docs); err != nil {
		return err
	}
	return se.withTableWriteLock(tableName, func(info *TableInfo) error {
		if info.revision != revision {
			return fmt.Errorf("%w: table %s is at revision %d, expected %d", domain.ErrConflict, tableName, info.revision, revision)
		}
		return se.putLocked(tableName, info, docs, true)
	})
}

// Revision returns a counter that changes on every write to the table.
func (se *StorageEngine) Revision(tableName string) (uint64, error) {
	var out uint64
	err := se.withTableReadLock(tableName, func(info *TableInfo) error {
		out = info.revision
		return nil
	})
	return out, err
}

func checkKeys(docs []domain.Document) error {
	for _, doc := range docs {
		id, ok := doc.ID()
		if !ok {
			return fmt.Errorf("%w: put requires %s", domain.ErrConfiguration, domain.PrimaryKey)
		}
		if err := checkPrimaryKey(id); err != nil {
			return err
		}
	}
	return nil
}

// putLocked writes docs with the table write lock held, undoing every index
// change on failure. With existingOnly a missing record is a conflict.
func (se *StorageEngine) putLocked(tableName string, info *TableInfo, docs []domain.Document, existingOnly bool) error {
	primary, err := se.index(info, domain.PrimaryKey)
	if err != nil {
		return err
	}

	type applied struct{ old, rec domain.Document }
	done := make([]applied, 0, len(docs))
	rollback := func() {
		for i := len(done) - 1; i >= 0; i-- {
			se.indexEngine.UpdateIndexForDocument(tableName, done[i].rec, done[i].old)
		}
	}

	added := int64(0)
	for _, doc := range docs {
		id, _ := doc.ID()
		old := primary.Get(id)
		if old == nil && existingOnly {
			rollback()
			return fmt.Errorf("%w: table %s has no record with %s %v", domain.ErrConflict, tableName, domain.PrimaryKey, id)
		}

		rec := doc.Clone()
		if _, ok := rec[domain.CreatedAt]; ok {
			se.observeCreatedAt(info, rec)
		} else if created, ok := old[domain.CreatedAt]; ok {
			rec[domain.CreatedAt] = created
		} else {
			rec[domain.CreatedAt] = se.nextCreatedAt(info)
		}

		if err := se.indexEngine.CheckUnique(tableName, rec); err != nil {
			rollback()
			return err
		}
		se.indexEngine.UpdateIndexForDocument(tableName, old, rec)
		done = append(done, applied{old: old, rec: rec})
		if old == nil {
			added++
		}
	}

	if len(done) > 0 {
		info.DocumentCount += added
		info.markDirty(se.now())
	}
	return nil
}

// Delete removes the record with the given primary key and reports whether
// it existed.
func (se *StorageEngine) Delete(ctx context.Context, tableName string, key interface{}) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	deleted := false
	err := se.withTableWriteLock(tableName, func(info *TableInfo) error {
		primary, err := se.index(info, domain.PrimaryKey)
		if err != nil {
			return err
		}
		old := primary.Get(key)
		if old == nil {
			return nil
		}
		se.indexEngine.UpdateIndexForDocument(tableName, old, nil)

		info.DocumentCount--
		info.markDirty(se.now())
		deleted = true
		return nil
	})
	return deleted, err
}

// Get returns a copy of the record with the given primary key, or nil.
func (se *StorageEngine) Get(ctx context.Context, tableName string, key interface{}) (domain.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out domain.Document
	err := se.withTableReadLock(tableName, func(info *TableInfo) error {
		primary, err := se.index(info, domain.PrimaryKey)
		if err != nil {
			return err
		}
		out = primary.Get(key).Clone()
		return nil
	})
	return out, err
}
