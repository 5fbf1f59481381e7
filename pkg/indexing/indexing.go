package indexing

import (
	"fmt"
	"sort"
	"sync"

	"github.com/tidwall/btree"

	"github.com/adfharrison1/go-okdb/pkg/domain"
	"github.com/adfharrison1/go-okdb/pkg/value"
)

// IndexEngine keeps the sorted indexes of every table.
type IndexEngine struct {
	mu      sync.RWMutex
	indexes map[string]map[string]*Index // table name -> field name -> index
}

// NewIndexEngine creates a new index engine
func NewIndexEngine() *IndexEngine {
	return &IndexEngine{
		indexes: make(map[string]map[string]*Index),
	}
}

// rankEdge is a sentinel key sorting before (or after) every key of one rank.
type rankEdge struct {
	rank  value.Rank
	after bool
}

// entry is one (key, primary key) pair. edge is -1 or +1 on seek sentinels
// that sort before or after every entry sharing the key.
type entry struct {
	key  interface{}
	pk   interface{}
	edge int8
	doc  domain.Document
}

func keyRank(k interface{}) value.Rank {
	if e, ok := k.(rankEdge); ok {
		return e.rank
	}
	return value.RankOf(k)
}

func compareKeys(a, b interface{}) int {
	ra, rb := keyRank(a), keyRank(b)
	if ra != rb {
		if ra < rb {
			return -1
		}
		return 1
	}
	ea, aEdge := a.(rankEdge)
	eb, bEdge := b.(rankEdge)
	switch {
	case aEdge && bEdge:
		return compareBool(ea.after, eb.after)
	case aEdge:
		if ea.after {
			return 1
		}
		return -1
	case bEdge:
		if eb.after {
			return -1
		}
		return 1
	}
	return value.Order(a, b)
}

func compareBool(a, b bool) int {
	switch {
	case a == b:
		return 0
	case b:
		return -1
	}
	return 1
}

func less(a, b entry) bool {
	if c := compareKeys(a.key, b.key); c != 0 {
		return c < 0
	}
	if a.edge != b.edge {
		return a.edge < b.edge
	}
	return value.Order(a.pk, b.pk) < 0
}

// Index is a sorted index over one field. Every record has an entry; records
// lacking the field are filed under value.Missing so an unbounded walk visits
// the whole table.
type Index struct {
	Field  string
	Unique bool
	tree   *btree.BTreeG[entry]
}

// NewIndex creates an index on a specific field.
func NewIndex(field string, unique bool) *Index {
	return &Index{
		Field:  field,
		Unique: unique,
		tree:   btree.NewBTreeG(less),
	}
}

func (idx *Index) entryFor(doc domain.Document) entry {
	return entry{
		key: value.Lookup(doc, idx.Field),
		pk:  value.Lookup(doc, domain.PrimaryKey),
		doc: doc,
	}
}

// enforced reports whether a key takes part in uniqueness checks. Absent and
// null values never collide.
func enforced(key interface{}) bool {
	r := value.RankOf(key)
	return r != value.RankMissing && r != value.RankNull
}

// Conflict returns the primary key of another record holding doc's value on a
// unique index.
func (idx *Index) Conflict(doc domain.Document) (interface{}, bool) {
	if !idx.Unique {
		return nil, false
	}
	e := idx.entryFor(doc)
	if !enforced(e.key) {
		return nil, false
	}
	var other interface{}
	found := false
	idx.tree.Ascend(entry{key: e.key, edge: -1}, func(item entry) bool {
		if compareKeys(item.key, e.key) != 0 {
			return false
		}
		if value.Order(item.pk, e.pk) != 0 {
			other, found = item.pk, true
			return false
		}
		return true
	})
	return other, found
}

// Put files doc under its current value, replacing old's entry when given.
func (idx *Index) Put(old, doc domain.Document) {
	if old != nil {
		idx.tree.Delete(idx.entryFor(old))
	}
	idx.tree.Set(idx.entryFor(doc))
}

// Remove drops doc's entry.
func (idx *Index) Remove(doc domain.Document) {
	idx.tree.Delete(idx.entryFor(doc))
}

// Len returns the number of entries.
func (idx *Index) Len() int {
	return idx.tree.Len()
}

// Get returns the first record holding key, or nil.
func (idx *Index) Get(key interface{}) domain.Document {
	var doc domain.Document
	idx.tree.Ascend(entry{key: key, edge: -1}, func(item entry) bool {
		if compareKeys(item.key, key) == 0 {
			doc = item.doc
		}
		return false
	})
	return doc
}

// Equal returns every record holding key, in primary-key order.
func (idx *Index) Equal(key interface{}) []domain.Document {
	var docs []domain.Document
	idx.tree.Ascend(entry{key: key, edge: -1}, func(item entry) bool {
		if compareKeys(item.key, key) != 0 {
			return false
		}
		docs = append(docs, item.doc)
		return true
	})
	return docs
}

// All returns every record in index order.
func (idx *Index) All() []domain.Document {
	docs := make([]domain.Document, 0, idx.tree.Len())
	idx.tree.Scan(func(item entry) bool {
		docs = append(docs, item.doc)
		return true
	})
	return docs
}

// BuildIndex indexes all documents by the specified field.
func (idx *Index) BuildIndex(docs []domain.Document) error {
	for _, doc := range docs {
		if pk, dup := idx.Conflict(doc); dup {
			return fmt.Errorf("%w: index %s value %v already used by record %v", domain.ErrDuplicateKey, idx.Field, doc[idx.Field], pk)
		}
		idx.tree.Set(idx.entryFor(doc))
	}
	return nil
}

// CreateIndex creates an empty index on a field of a table
func (ie *IndexEngine) CreateIndex(tableName, fieldName string, unique bool) (*Index, error) {
	ie.mu.Lock()
	defer ie.mu.Unlock()

	if ie.indexes[tableName] == nil {
		ie.indexes[tableName] = make(map[string]*Index)
	}

	if _, exists := ie.indexes[tableName][fieldName]; exists {
		return nil, fmt.Errorf("index on field %s already exists in table %s", fieldName, tableName)
	}

	index := NewIndex(fieldName, unique)
	ie.indexes[tableName][fieldName] = index
	return index, nil
}

// BuildIndexForTable creates (or recreates) an index and fills it from docs.
// The engine is left untouched when docs violate a unique constraint.
func (ie *IndexEngine) BuildIndexForTable(tableName, fieldName string, unique bool, docs []domain.Document) error {
	index := NewIndex(fieldName, unique)
	if err := index.BuildIndex(docs); err != nil {
		return err
	}

	ie.mu.Lock()
	defer ie.mu.Unlock()
	if ie.indexes[tableName] == nil {
		ie.indexes[tableName] = make(map[string]*Index)
	}
	ie.indexes[tableName][fieldName] = index
	return nil
}

// ReplaceTable swaps in a complete set of indexes for a table.
func (ie *IndexEngine) ReplaceTable(tableName string, indexes []*Index) {
	byField := make(map[string]*Index, len(indexes))
	for _, index := range indexes {
		byField[index.Field] = index
	}
	ie.mu.Lock()
	defer ie.mu.Unlock()
	ie.indexes[tableName] = byField
}

// DropIndex removes an index from a table
func (ie *IndexEngine) DropIndex(tableName, fieldName string) error {
	ie.mu.Lock()
	defer ie.mu.Unlock()

	if ie.indexes[tableName] == nil {
		return fmt.Errorf("no indexes exist for table %s", tableName)
	}
	if _, exists := ie.indexes[tableName][fieldName]; !exists {
		return fmt.Errorf("index on field %s does not exist in table %s", fieldName, tableName)
	}

	delete(ie.indexes[tableName], fieldName)
	return nil
}

// DropTable removes every index of a table.
func (ie *IndexEngine) DropTable(tableName string) {
	ie.mu.Lock()
	defer ie.mu.Unlock()
	delete(ie.indexes, tableName)
}

// GetIndex returns the index on a field of a table.
func (ie *IndexEngine) GetIndex(tableName, fieldName string) (*Index, bool) {
	ie.mu.RLock()
	defer ie.mu.RUnlock()
	if tableIndexes, exists := ie.indexes[tableName]; exists {
		if index, exists := tableIndexes[fieldName]; exists {
			return index, true
		}
	}
	return nil, false
}

// GetIndexes returns the sorted index names of a table
func (ie *IndexEngine) GetIndexes(tableName string) []string {
	ie.mu.RLock()
	defer ie.mu.RUnlock()

	names := make([]string, 0, len(ie.indexes[tableName]))
	for fieldName := range ie.indexes[tableName] {
		names = append(names, fieldName)
	}
	sort.Strings(names)
	return names
}

// CheckUnique reports the first unique index that doc would violate.
func (ie *IndexEngine) CheckUnique(tableName string, doc domain.Document) error {
	ie.mu.RLock()
	defer ie.mu.RUnlock()
	for field, index := range ie.indexes[tableName] {
		if pk, dup := index.Conflict(doc); dup {
			return fmt.Errorf("%w: table %s index %s value %v already used by record %v",
				domain.ErrDuplicateKey, tableName, field, doc[field], pk)
		}
	}
	return nil
}

// UpdateIndexForDocument refiles a document in every index of its table. old
// is nil for inserts; doc is nil for deletes.
func (ie *IndexEngine) UpdateIndexForDocument(tableName string, old, doc domain.Document) {
	ie.mu.RLock()
	defer ie.mu.RUnlock()
	for _, index := range ie.indexes[tableName] {
		switch {
		case doc == nil:
			index.Remove(old)
		default:
			index.Put(old, doc)
		}
	}
}
