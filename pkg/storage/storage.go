package storage

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/adfharrison1/go-okdb/pkg/domain"
	"github.com/adfharrison1/go-okdb/pkg/indexing"
)

// TableLock provides per-table concurrency control
type TableLock struct {
	mu sync.RWMutex
}

// StorageEngine is an in-memory ordered store. Every table keeps a B-tree
// index per declared field; the _id index holds the records themselves.
type StorageEngine struct {
	mu          sync.RWMutex
	tables      map[string]*TableInfo
	indexEngine *indexing.IndexEngine

	// Per-table locks for better concurrency
	tableLocks map[string]*TableLock
	locksMu    sync.RWMutex

	// Configuration
	dataFile       string
	backgroundSave bool
	saveInterval   time.Duration
	now            func() time.Time
	newID          func() string

	saveMu sync.Mutex

	// Background workers
	backgroundWg sync.WaitGroup
	stopChan     chan struct{}
	stopOnce     sync.Once
}

var _ domain.StorageEngine = (*StorageEngine)(nil)

// NewStorageEngine creates a new storage engine
func NewStorageEngine(options ...StorageOption) *StorageEngine {
	engine := &StorageEngine{
		tables:       make(map[string]*TableInfo),
		indexEngine:  indexing.NewIndexEngine(),
		tableLocks:   make(map[string]*TableLock),
		saveInterval: 5 * time.Minute,
		now:          time.Now,
		newID:        uuid.NewString,
		stopChan:     make(chan struct{}),
	}

	for _, option := range options {
		option(engine)
	}

	return engine
}

// getOrCreateTableLock gets or creates a lock for a table
func (se *StorageEngine) getOrCreateTableLock(tableName string) *TableLock {
	se.locksMu.RLock()
	if lock, exists := se.tableLocks[tableName]; exists {
		se.locksMu.RUnlock()
		return lock
	}
	se.locksMu.RUnlock()

	se.locksMu.Lock()
	defer se.locksMu.Unlock()

	// Double-check in case another goroutine created it
	if lock, exists := se.tableLocks[tableName]; exists {
		return lock
	}

	lock := &TableLock{}
	se.tableLocks[tableName] = lock
	return lock
}

// withTableReadLock executes a function with a read lock on the specified table
func (se *StorageEngine) withTableReadLock(tableName string, fn func(info *TableInfo) error) error {
	lock := se.getOrCreateTableLock(tableName)
	lock.mu.RLock()
	defer lock.mu.RUnlock()
	info, err := se.lookupTable(tableName)
	if err != nil {
		return err
	}
	return fn(info)
}

// withTableWriteLock executes a function with a write lock on the specified table
func (se *StorageEngine) withTableWriteLock(tableName string, fn func(info *TableInfo) error) error {
	lock := se.getOrCreateTableLock(tableName)
	lock.mu.Lock()
	defer lock.mu.Unlock()
	info, err := se.lookupTable(tableName)
	if err != nil {
		return err
	}
	return fn(info)
}

func (se *StorageEngine) lookupTable(tableName string) (*TableInfo, error) {
	se.mu.RLock()
	defer se.mu.RUnlock()
	info, exists := se.tables[tableName]
	if !exists {
		return nil, fmt.Errorf("%w: %s", domain.ErrTableNotFound, tableName)
	}
	return info, nil
}

// index returns a declared index of a table. Callers hold the table lock.
func (se *StorageEngine) index(info *TableInfo, field string) (*indexing.Index, error) {
	if !info.Def.HasIndex(field) {
		return nil, fmt.Errorf("%w: index %s is not declared on table %s", domain.ErrConfiguration, field, info.Def.Name)
	}
	idx, ok := se.indexEngine.GetIndex(info.Def.Name, field)
	if !ok {
		return nil, fmt.Errorf("index %s of table %s was never built", field, info.Def.Name)
	}
	return idx, nil
}

// Tables returns the sorted names of all tables.
func (se *StorageEngine) Tables() []string {
	se.mu.RLock()
	defer se.mu.RUnlock()
	names := make([]string, 0, len(se.tables))
	for name := range se.tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GetIndexEngine returns the index engine instance
func (se *StorageEngine) GetIndexEngine() *indexing.IndexEngine {
	return se.indexEngine
}
