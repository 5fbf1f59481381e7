package domain

import "context"

// Direction is the walk order of an index cursor.
type Direction int

const (
	Forward Direction = iota
	Reverse
)

func (d Direction) String() string {
	if d == Reverse {
		return "prev"
	}
	return "next"
}

// KeyRange bounds an index range scan. A side without a bound is open-ended.
type KeyRange struct {
	Lower     interface{}
	Upper     interface{}
	HasLower  bool
	HasUpper  bool
	LowerOpen bool // exclude Lower itself
	UpperOpen bool // exclude Upper itself
}

// Cursor yields records one at a time in index order.
type Cursor interface {
	// Next returns the next record, or false once the range is exhausted.
	Next(ctx context.Context) (Document, bool, error)
	// Advance skips n records without materializing them.
	Advance(ctx context.Context, n int) error
	Close() error
}

// Backend is the storage contract the query executor consumes.
// Absence is never an error: lookups return a nil Document instead.
type Backend interface {
	Get(ctx context.Context, table string, key interface{}) (Document, error)
	// IndexGet looks up a single record through a unique index.
	IndexGet(ctx context.Context, table, index string, value interface{}) (Document, error)
	IndexEqual(ctx context.Context, table, index string, value interface{}) ([]Document, error)
	// IndexRange opens a cursor over the index. An unbounded range walks
	// every record, including those that lack the indexed field.
	IndexRange(ctx context.Context, table, index string, r KeyRange, dir Direction) (Cursor, error)
	// Scan returns every record ordered by the given index.
	Scan(ctx context.Context, table, orderIndex string) ([]Document, error)
	Table(table string) (*Table, error)
}

// StorageEngine adds table management and writes to the Backend contract.
type StorageEngine interface {
	Backend
	CreateTable(def *Table) error
	AlterIndexes(table string, indexes map[string]bool) (*Table, error)
	DropTable(table string) error
	Tables() []string
	Insert(ctx context.Context, table string, doc Document) (Document, error)
	Put(ctx context.Context, table string, doc Document) error
	PutAll(ctx context.Context, table string, docs []Document) error
	// ReplaceAll overwrites existing records only, and only while the table
	// is still at revision.
	ReplaceAll(ctx context.Context, table string, docs []Document, revision uint64) error
	Revision(table string) (uint64, error)
	Delete(ctx context.Context, table string, key interface{}) (bool, error)
	SaveToFile(filename string) error
	LoadFromFile(filename string) error
	StartBackgroundWorkers()
	StopBackgroundWorkers()
}
