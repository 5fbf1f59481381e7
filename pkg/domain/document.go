package domain

import "fmt"

const (
	// PrimaryKey is the field every record is keyed by.
	PrimaryKey = "_id"
	// CreatedAt is the default chronological index.
	CreatedAt = "createdAt"
)

// Document represents a record in a table
type Document map[string]interface{}

// ID returns the record's primary key value.
func (d Document) ID() (interface{}, bool) {
	id, ok := d[PrimaryKey]
	return id, ok && id != nil
}

// Clone returns a shallow copy of the document.
func (d Document) Clone() Document {
	if d == nil {
		return nil
	}
	out := make(Document, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}

// Table describes a logical collection and its declared indexes.
type Table struct {
	Name    string          `json:"name" msgpack:"name"`
	Indexes map[string]bool `json:"indexes" msgpack:"indexes"` // index name -> unique
	Version int64           `json:"version" msgpack:"version"`
}

// NewTable creates a table definition, adding the primary-key and createdAt
// indexes when the caller did not declare them.
func NewTable(name string, indexes map[string]bool) *Table {
	t := &Table{Name: name, Indexes: make(map[string]bool, len(indexes)+2)}
	for k, v := range indexes {
		t.Indexes[k] = v
	}
	t.Indexes[PrimaryKey] = true
	if _, ok := t.Indexes[CreatedAt]; !ok {
		t.Indexes[CreatedAt] = false
	}
	return t
}

// HasIndex reports whether the table declares an index with the given name.
func (t *Table) HasIndex(name string) bool {
	_, ok := t.Indexes[name]
	return ok
}

// IsUnique reports whether the named index is unique.
func (t *Table) IsUnique(name string) bool {
	return t.Indexes[name]
}

// Validate checks the definition for obvious mistakes.
func (t *Table) Validate() error {
	if t.Name == "" {
		return fmt.Errorf("%w: table name cannot be empty", ErrConfiguration)
	}
	if !t.Indexes[PrimaryKey] {
		return fmt.Errorf("%w: index %s of table %s must be unique", ErrConfiguration, PrimaryKey, t.Name)
	}
	for name := range t.Indexes {
		if name == "" {
			return fmt.Errorf("%w: table %s declares an index with an empty name", ErrConfiguration, t.Name)
		}
	}
	return nil
}

// SameIndexes reports whether two index declarations are identical.
func SameIndexes(a, b map[string]bool) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if w, ok := b[k]; !ok || w != v {
			return false
		}
	}
	return true
}
