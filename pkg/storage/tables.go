package storage

import (
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/adfharrison1/go-okdb/pkg/domain"
	"github.com/adfharrison1/go-okdb/pkg/indexing"
)

type TableState int

const (
	TableStateClean TableState = iota
	TableStateDirty
)

// TableInfo is the in-memory state of one table. Fields are guarded by the
// table lock.
type TableInfo struct {
	Def           *domain.Table
	DocumentCount int64
	LastModified  time.Time
	State         TableState

	lastCreated time.Time
	revision    uint64
}

func (info *TableInfo) markDirty(now time.Time) {
	info.State = TableStateDirty
	info.LastModified = now
	info.revision++
}

func copyTable(def *domain.Table) *domain.Table {
	out := *def
	out.Indexes = make(map[string]bool, len(def.Indexes))
	for k, v := range def.Indexes {
		out.Indexes[k] = v
	}
	return &out
}

func indexNames(def *domain.Table) []string {
	names := make([]string, 0, len(def.Indexes))
	for name := range def.Indexes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// buildIndexes fills every declared index of def from docs.
func buildIndexes(def *domain.Table, docs []domain.Document) ([]*indexing.Index, error) {
	indexes := make([]*indexing.Index, 0, len(def.Indexes))
	for _, field := range indexNames(def) {
		index := indexing.NewIndex(field, def.Indexes[field])
		if err := index.BuildIndex(docs); err != nil {
			return nil, fmt.Errorf("failed to build index %s of table %s: %w", field, def.Name, err)
		}
		indexes = append(indexes, index)
	}
	return indexes, nil
}

// CreateTable registers a new table. The _id and createdAt indexes are added
// when the definition omits them.
func (se *StorageEngine) CreateTable(def *domain.Table) error {
	if def == nil {
		return fmt.Errorf("%w: table definition is required", domain.ErrConfiguration)
	}
	table := domain.NewTable(def.Name, def.Indexes)
	if err := table.Validate(); err != nil {
		return err
	}
	table.Version = 1

	se.mu.Lock()
	defer se.mu.Unlock()

	if _, exists := se.tables[table.Name]; exists {
		return fmt.Errorf("%w: %s", domain.ErrTableExists, table.Name)
	}

	for _, field := range indexNames(table) {
		if _, err := se.indexEngine.CreateIndex(table.Name, field, table.Indexes[field]); err != nil {
			se.indexEngine.DropTable(table.Name)
			return err
		}
	}
	se.tables[table.Name] = &TableInfo{
		Def:          table,
		State:        TableStateDirty,
		LastModified: se.now(),
	}

	log.Printf("INFO: Created table %s (version %d, indexes: %v)", table.Name, table.Version, indexNames(table))
	return nil
}

// AlterIndexes replaces the index declaration of a table. A changed
// declaration bumps the schema version, builds the added or changed indexes
// and drops the removed ones; an identical one is a no-op. A failed build
// leaves every index as it was.
func (se *StorageEngine) AlterIndexes(tableName string, indexes map[string]bool) (*domain.Table, error) {
	var out *domain.Table
	err := se.withTableWriteLock(tableName, func(info *TableInfo) error {
		next := domain.NewTable(tableName, indexes)
		if err := next.Validate(); err != nil {
			return err
		}
		if domain.SameIndexes(next.Indexes, info.Def.Indexes) {
			out = copyTable(info.Def)
			return nil
		}

		primary, err := se.index(info, domain.PrimaryKey)
		if err != nil {
			return err
		}
		if err := se.migrateIndexes(tableName, info.Def, next, primary.All()); err != nil {
			return err
		}

		next.Version = info.Def.Version + 1
		info.Def = next
		info.markDirty(se.now())
		out = copyTable(next)

		log.Printf("INFO: Migrated table %s to schema version %d (indexes: %v)", tableName, next.Version, indexNames(next))
		return nil
	})
	return out, err
}

// migrateIndexes moves the indexes of a table from the from declaration to
// the to declaration. Unchanged indexes are kept as they are.
func (se *StorageEngine) migrateIndexes(tableName string, from, to *domain.Table, docs []domain.Document) error {
	previous := se.tableIndexes(tableName)
	restore := func() { se.indexEngine.ReplaceTable(tableName, previous) }

	for _, field := range indexNames(to) {
		if unique, ok := from.Indexes[field]; ok && unique == to.Indexes[field] {
			continue
		}
		if err := se.indexEngine.BuildIndexForTable(tableName, field, to.Indexes[field], docs); err != nil {
			restore()
			return fmt.Errorf("failed to build index %s of table %s: %w", field, tableName, err)
		}
	}
	for _, field := range indexNames(from) {
		if _, keep := to.Indexes[field]; keep {
			continue
		}
		if err := se.indexEngine.DropIndex(tableName, field); err != nil {
			restore()
			return err
		}
	}
	return nil
}

func (se *StorageEngine) tableIndexes(tableName string) []*indexing.Index {
	names := se.indexEngine.GetIndexes(tableName)
	indexes := make([]*indexing.Index, 0, len(names))
	for _, name := range names {
		if idx, ok := se.indexEngine.GetIndex(tableName, name); ok {
			indexes = append(indexes, idx)
		}
	}
	return indexes
}

// DropTable removes a table with all its records.
func (se *StorageEngine) DropTable(tableName string) error {
	return se.withTableWriteLock(tableName, func(info *TableInfo) error {
		se.mu.Lock()
		delete(se.tables, tableName)
		se.mu.Unlock()
		se.indexEngine.DropTable(tableName)

		log.Printf("INFO: Dropped table %s (%d records)", tableName, info.DocumentCount)
		return nil
	})
}

// Table returns a copy of the table definition.
func (se *StorageEngine) Table(tableName string) (*domain.Table, error) {
	var out *domain.Table
	err := se.withTableReadLock(tableName, func(info *TableInfo) error {
		out = copyTable(info.Def)
		return nil
	})
	return out, err
}

// Info returns a snapshot of a table's bookkeeping.
func (se *StorageEngine) Info(tableName string) (TableInfo, error) {
	var out TableInfo
	err := se.withTableReadLock(tableName, func(info *TableInfo) error {
		out = *info
		out.Def = copyTable(info.Def)
		return nil
	})
	return out, err
}
