// Package planner turns find requests into access plans over a storage
// backend: a point lookup, an index range walk, a union of index lookups or a
// full chronological scan.
package planner

import (
	"fmt"
	"sort"

	"github.com/adfharrison1/go-okdb/pkg/domain"
	"github.com/adfharrison1/go-okdb/pkg/query"
	"github.com/adfharrison1/go-okdb/pkg/value"
)

// Request is a planned find. FilterIndexes maps an index name to the values
// that generate candidates through it: scalars for exact lookups and
// range-tagged Operators for range walks.
type Request struct {
	Table          *domain.Table
	Filter         func(domain.Document) bool
	FilterIndexes  map[string][]interface{}
	NotIndexFilter bool
	Options        domain.FindOptions
}

// Build plans a find over table. The conditions are OR-ed; no conditions
// match every record.
func Build(table *domain.Table, conditions []query.Condition, opts *domain.FindOptions) (*Request, error) {
	if table == nil {
		return nil, fmt.Errorf("%w: no table", domain.ErrConfiguration)
	}
	if opts == nil {
		opts = domain.DefaultFindOptions()
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	req := &Request{Table: table, Options: *opts}
	matchAll := len(conditions) == 0
	for _, cond := range conditions {
		if err := query.Validate(cond); err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrInvalidQuery, err)
		}
		if len(cond) == 0 {
			matchAll = true
		}
	}
	if matchAll {
		return req, nil
	}

	if len(conditions) == 1 {
		req.Filter = query.Filter(conditions[0])
	} else {
		branches := make([]interface{}, len(conditions))
		for i, c := range conditions {
			branches[i] = c
		}
		merged := query.MergeConditions(branches, query.ModeOr)
		req.Filter = func(rec domain.Document) bool { return merged(rec, "", rec) }
	}

	filterIndexes := make(map[string][]interface{})
	covered := true
	for _, cond := range conditions {
		targets := 0
		for _, field := range sortedKeys(cond) {
			v := cond[field]
			if query.IsRecordKey(field) || !table.HasIndex(field) || !targetable(v) {
				req.NotIndexFilter = true
				continue
			}
			targets++
			filterIndexes[field] = appendCandidate(filterIndexes[field], v)
		}
		if targets == 0 {
			covered = false
		}
	}
	if covered {
		req.FilterIndexes = filterIndexes
	} else {
		req.NotIndexFilter = true
	}
	return req, nil
}

// targetable reports whether a condition value can drive an index lookup.
func targetable(v interface{}) bool {
	if value.Indexable(v) {
		return true
	}
	_, ok := rangeOf(v)
	return ok
}

func rangeOf(v interface{}) (query.Range, bool) {
	switch op := v.(type) {
	case query.Operator:
		return op.Range()
	case *query.Operator:
		if op != nil {
			return op.Range()
		}
	}
	return query.Range{}, false
}

func appendCandidate(list []interface{}, v interface{}) []interface{} {
	if value.Indexable(v) {
		for _, have := range list {
			if value.Indexable(have) && value.Equal(have, v) {
				return list
			}
		}
	}
	return append(list, v)
}

func sortedKeys(c query.Condition) []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// validate checks the request against the table's declared indexes.
func (r *Request) validate() error {
	if r.Table == nil {
		return fmt.Errorf("%w: no table", domain.ErrConfiguration)
	}
	for index, values := range r.FilterIndexes {
		if !r.Table.HasIndex(index) {
			return fmt.Errorf("%w: index %s is not declared on table %s", domain.ErrConfiguration, index, r.Table.Name)
		}
		for _, v := range values {
			if !targetable(v) {
				return fmt.Errorf("%w: value %v cannot drive index %s", domain.ErrConfiguration, v, index)
			}
		}
	}
	return r.Options.Validate()
}

func (r *Request) matches(rec domain.Document) bool {
	return r.Filter == nil || r.Filter(rec)
}

// sortIndex returns the index that already yields the requested order, if
// the request sorts on exactly one declared index.
func (r *Request) sortIndex() (string, domain.Direction, bool) {
	if len(r.Options.Sort) != 1 || !r.Table.HasIndex(r.Options.Sort[0].Field) {
		return "", domain.Forward, false
	}
	s := r.Options.Sort[0]
	if s.Desc {
		return s.Field, domain.Reverse, true
	}
	return s.Field, domain.Forward, true
}

// direction returns the walk order for an index lookup on field.
func (r *Request) direction(field string) domain.Direction {
	if len(r.Options.Sort) > 0 && r.Options.Sort[0].Field == field && r.Options.Sort[0].Desc {
		return domain.Reverse
	}
	return domain.Forward
}

// Sort orders records by the sort fields. Ties are broken by primary key in
// the direction of the last sort field, which is the order an index walk
// yields.
func Sort(docs []domain.Document, fields []domain.SortField) {
	if len(fields) == 0 {
		return
	}
	last := fields[len(fields)-1]
	sort.SliceStable(docs, func(i, j int) bool {
		for _, f := range fields {
			c := value.Order(value.Lookup(docs[i], f.Field), value.Lookup(docs[j], f.Field))
			if c == 0 {
				continue
			}
			if f.Desc {
				return c > 0
			}
			return c < 0
		}
		c := value.Order(value.Lookup(docs[i], domain.PrimaryKey), value.Lookup(docs[j], domain.PrimaryKey))
		if last.Desc {
			return c > 0
		}
		return c < 0
	})
}
