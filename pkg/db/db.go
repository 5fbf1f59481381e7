// Package db is the embedded database facade: it keeps tables in a storage
// engine and answers finds through the query planner.
package db

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/adfharrison1/go-okdb/pkg/domain"
	"github.com/adfharrison1/go-okdb/pkg/planner"
	"github.com/adfharrison1/go-okdb/pkg/query"
)

// DB is safe for concurrent use.
type DB struct {
	engine domain.StorageEngine
}

// New wraps a storage engine.
func New(engine domain.StorageEngine) *DB {
	return &DB{engine: engine}
}

// Engine returns the underlying storage engine.
func (d *DB) Engine() domain.StorageEngine {
	return d.engine
}

// CreateTable creates a table with the given indexes (name -> unique).
func (d *DB) CreateTable(name string, indexes map[string]bool) (*domain.Table, error) {
	if err := d.engine.CreateTable(domain.NewTable(name, indexes)); err != nil {
		return nil, err
	}
	return d.engine.Table(name)
}

// AlterIndexes replaces the table's index declaration and migrates it to a
// new schema version when the declaration changed.
func (d *DB) AlterIndexes(name string, indexes map[string]bool) (*domain.Table, error) {
	return d.engine.AlterIndexes(name, indexes)
}

// DropTable removes a table with all its records.
func (d *DB) DropTable(name string) error {
	return d.engine.DropTable(name)
}

// Table returns the definition of a table.
func (d *DB) Table(name string) (*domain.Table, error) {
	return d.engine.Table(name)
}

// Tables returns the table names in sorted order.
func (d *DB) Tables() []string {
	return d.engine.Tables()
}

// Insert stores a new record and returns it with its _id and createdAt.
func (d *DB) Insert(ctx context.Context, table string, doc domain.Document) (domain.Document, error) {
	return d.engine.Insert(ctx, table, doc)
}

// Put stores doc under its primary key, replacing any record with that key.
func (d *DB) Put(ctx context.Context, table string, doc domain.Document) error {
	return d.engine.Put(ctx, table, doc)
}

// Get returns the record with the given primary key, or nil.
func (d *DB) Get(ctx context.Context, table string, id interface{}) (domain.Document, error) {
	return d.engine.Get(ctx, table, id)
}

// Delete removes one record by primary key.
func (d *DB) Delete(ctx context.Context, table string, id interface{}) (bool, error) {
	return d.engine.Delete(ctx, table, id)
}

// Find returns the records matching cond. A nil cond matches everything.
func (d *DB) Find(ctx context.Context, table string, cond query.Condition, opts *domain.FindOptions) ([]domain.Document, error) {
	var conds []query.Condition
	if cond != nil {
		conds = []query.Condition{cond}
	}
	return d.FindAny(ctx, table, conds, opts)
}

// FindAny returns the records matching any of conds.
func (d *DB) FindAny(ctx context.Context, table string, conds []query.Condition, opts *domain.FindOptions) ([]domain.Document, error) {
	def, err := d.engine.Table(table)
	if err != nil {
		return nil, err
	}
	req, err := planner.Build(def, conds, opts)
	if err != nil {
		return nil, err
	}
	return planner.Execute(ctx, d.engine, req)
}

// Stream hands the records matching any of conds to yield one at a time.
// Plans that walk an index never hold the whole result in memory.
func (d *DB) Stream(ctx context.Context, table string, conds []query.Condition, opts *domain.FindOptions, yield func(domain.Document) error) error {
	def, err := d.engine.Table(table)
	if err != nil {
		return err
	}
	req, err := planner.Build(def, conds, opts)
	if err != nil {
		return err
	}
	return planner.Stream(ctx, d.engine, req, yield)
}

// FindOne returns the first record matching cond, or nil.
func (d *DB) FindOne(ctx context.Context, table string, cond query.Condition) (domain.Document, error) {
	docs, err := d.Find(ctx, table, cond, &domain.FindOptions{Limit: 1})
	if err != nil || len(docs) == 0 {
		return nil, err
	}
	return docs[0], nil
}

// Count returns how many records match any of conds.
func (d *DB) Count(ctx context.Context, table string, conds ...query.Condition) (int, error) {
	docs, err := d.FindAny(ctx, table, conds, nil)
	if err != nil {
		return 0, err
	}
	return len(docs), nil
}

// maxUpdateAttempts bounds how often Update re-reads its matches after a
// concurrent write to the table.
const maxUpdateAttempts = 16

// Update applies spec to every record matching cond and returns how many
// records were updated. A failure on any record, including a type error
// from a numeric operator, leaves every record untouched. Only records that
// still exist are written: the matches are re-read whenever the table changed
// between the read and the write.
func (d *DB) Update(ctx context.Context, table string, cond query.Condition, spec query.UpdateSpec) (int, error) {
	n, err := d.updateWithRetry(ctx, table, cond, spec)
	status := "ok"
	if err != nil {
		status = "error"
	}
	planner.UpdatesTotal.WithLabelValues(status).Inc()
	return n, err
}

func (d *DB) updateWithRetry(ctx context.Context, table string, cond query.Condition, spec query.UpdateSpec) (int, error) {
	var err error
	for attempt := 1; attempt <= maxUpdateAttempts; attempt++ {
		var n int
		n, err = d.update(ctx, table, cond, spec)
		if !errors.Is(err, domain.ErrConflict) {
			return n, err
		}
		log.Printf("WARN: Update of table %s conflicted with a concurrent write (attempt %d)", table, attempt)
	}
	return 0, err
}

func (d *DB) update(ctx context.Context, table string, cond query.Condition, spec query.UpdateSpec) (int, error) {
	revision, err := d.engine.Revision(table)
	if err != nil {
		return 0, err
	}
	matched, err := d.Find(ctx, table, cond, nil)
	if err != nil {
		return 0, err
	}
	updated := make([]domain.Document, 0, len(matched))
	for _, rec := range matched {
		next, err := query.ApplyUpdate(rec, spec)
		if err != nil {
			id, _ := rec.ID()
			return 0, fmt.Errorf("record %v: %w", id, err)
		}
		updated = append(updated, next)
	}
	if len(updated) == 0 {
		return 0, nil
	}
	if err := d.engine.ReplaceAll(ctx, table, updated, revision); err != nil {
		return 0, err
	}
	return len(updated), nil
}

// DeleteWhere removes every record matching cond.
func (d *DB) DeleteWhere(ctx context.Context, table string, cond query.Condition) (int, error) {
	matched, err := d.Find(ctx, table, cond, nil)
	if err != nil {
		return 0, err
	}
	deleted := 0
	for _, rec := range matched {
		id, _ := rec.ID()
		ok, err := d.engine.Delete(ctx, table, id)
		if err != nil {
			return deleted, err
		}
		if ok {
			deleted++
		}
	}
	return deleted, nil
}

// Save writes every table to filename.
func (d *DB) Save(filename string) error {
	return d.engine.SaveToFile(filename)
}

// Load restores the tables stored in filename.
func (d *DB) Load(filename string) error {
	return d.engine.LoadFromFile(filename)
}
