package planner

import (
	"context"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/adfharrison1/go-okdb/pkg/domain"
	"github.com/adfharrison1/go-okdb/pkg/value"
)

// Strategy names the access path a request was served by.
type Strategy string

const (
	StrategyIndexStream Strategy = "index_stream"
	StrategySingleIndex Strategy = "single_index"
	StrategyIndexUnion  Strategy = "index_union"
	StrategyFullScan    Strategy = "full_scan"
	StrategyFirstMatch  Strategy = "first_match"
)

// Choose returns the strategy Execute will use for req.
func Choose(req *Request) Strategy {
	opts := req.Options
	if len(req.FilterIndexes) == 0 {
		if _, _, ok := req.sortIndex(); ok {
			return StrategyIndexStream
		}
		if len(opts.Sort) == 0 && opts.Skip == 0 && opts.Limit == 1 {
			return StrategyFirstMatch
		}
		return StrategyFullScan
	}
	if index, values, ok := req.single(); ok && len(values) == 1 {
		if field, _, sorted := req.sortIndex(); sorted && field == index {
			return StrategySingleIndex
		}
	}
	return StrategyIndexUnion
}

func (r *Request) single() (string, []interface{}, bool) {
	if len(r.FilterIndexes) != 1 {
		return "", nil, false
	}
	for index, values := range r.FilterIndexes {
		return index, values, true
	}
	return "", nil, false
}

// Execute runs req against backend and returns the matching records, sorted
// and windowed by the request options.
func Execute(ctx context.Context, backend domain.Backend, req *Request) ([]domain.Document, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	strategy := Choose(req)
	defer observe(strategy, time.Now())

	switch strategy {
	case StrategyIndexStream, StrategySingleIndex:
		cursor, err := openWalk(ctx, backend, req, strategy)
		if err != nil {
			return nil, err
		}
		if cursor != nil {
			return collect(ctx, cursor, req.residual(), req.Options)
		}
		return singleIndex(ctx, backend, req)
	case StrategyIndexUnion:
		return indexUnion(ctx, backend, req)
	case StrategyFirstMatch:
		return firstMatch(ctx, backend, req)
	}
	return fullScan(ctx, backend, req)
}

// Stream runs req like Execute but hands the records to yield one at a time.
// Plans that walk an index feed yield straight from the cursor, so a page is
// never held in memory; the other plans yield their finished page. An error
// from yield stops the walk and is returned.
func Stream(ctx context.Context, backend domain.Backend, req *Request, yield func(domain.Document) error) error {
	if err := req.validate(); err != nil {
		return err
	}
	strategy := Choose(req)
	if strategy == StrategyIndexStream || strategy == StrategySingleIndex {
		cursor, err := openWalk(ctx, backend, req, strategy)
		if err != nil {
			return err
		}
		if cursor != nil {
			defer observe(strategy, time.Now())
			return walk(ctx, cursor, req.residual(), req.Options, yield)
		}
	}

	docs, err := Execute(ctx, backend, req)
	if err != nil {
		return err
	}
	for _, doc := range docs {
		if err := yield(doc); err != nil {
			return err
		}
	}
	return nil
}

func observe(strategy Strategy, start time.Time) {
	QueryPlans.WithLabelValues(string(strategy)).Inc()
	QueryDuration.WithLabelValues(string(strategy)).Observe(time.Since(start).Seconds())
}

// openWalk opens the index cursor a streaming plan pages through: the sort
// index for index_stream, the range of the single index value otherwise. It
// returns a nil cursor when the single value is an exact key.
func openWalk(ctx context.Context, backend domain.Backend, req *Request, strategy Strategy) (domain.Cursor, error) {
	switch strategy {
	case StrategyIndexStream:
		field, dir, _ := req.sortIndex()
		return backend.IndexRange(ctx, req.Table.Name, field, domain.KeyRange{}, dir)
	case StrategySingleIndex:
		index, values, _ := req.single()
		if r, ok := rangeOf(values[0]); ok {
			return backend.IndexRange(ctx, req.Table.Name, index, r.KeyRange(), req.direction(index))
		}
	}
	return nil, nil
}

// residual is the predicate an index walk still has to apply, if any.
func (r *Request) residual() func(domain.Document) bool {
	if r.NotIndexFilter {
		return r.matches
	}
	return nil
}

// singleIndex serves one exact index value when that index is also the sort
// key.
func singleIndex(ctx context.Context, backend domain.Backend, req *Request) ([]domain.Document, error) {
	index, values, _ := req.single()
	docs, err := lookup(ctx, backend, req, index, values[0])
	if err != nil {
		return nil, err
	}
	if req.NotIndexFilter {
		docs = filterDocs(docs, req.matches)
	}
	Sort(docs, req.Options.Sort)
	return window(docs, req.Options), nil
}

// indexUnion resolves every (index, value) pair concurrently, then merges
// the candidates by primary key and re-applies the full predicate.
func indexUnion(ctx context.Context, backend domain.Backend, req *Request) ([]domain.Document, error) {
	type pair struct {
		index string
		value interface{}
	}
	indexes := make([]string, 0, len(req.FilterIndexes))
	for index := range req.FilterIndexes {
		indexes = append(indexes, index)
	}
	sort.Strings(indexes)
	var pairs []pair
	for _, index := range indexes {
		for _, v := range req.FilterIndexes[index] {
			pairs = append(pairs, pair{index, v})
		}
	}

	results := make([][]domain.Document, len(pairs))
	g, gctx := errgroup.WithContext(ctx)
	for i, p := range pairs {
		i, p := i, p
		g.Go(func() error {
			docs, err := lookup(gctx, backend, req, p.index, p.value)
			if err != nil {
				return err
			}
			results[i] = docs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	opts := req.Options
	earlyStop := len(opts.Sort) == 0 && opts.Bounded()
	seen := make(map[interface{}]bool)
	var out []domain.Document
	for _, docs := range results {
		for _, doc := range docs {
			id, _ := doc.ID()
			key := primaryKey(id)
			if seen[key] {
				continue
			}
			seen[key] = true
			if !req.matches(doc) {
				continue
			}
			out = append(out, doc)
			if earlyStop && len(out) >= opts.Skip+opts.Limit {
				return window(out, opts), nil
			}
		}
	}
	Sort(out, opts.Sort)
	return window(out, opts), nil
}

// firstMatch returns the earliest created record that matches.
func firstMatch(ctx context.Context, backend domain.Backend, req *Request) ([]domain.Document, error) {
	docs, err := backend.Scan(ctx, req.Table.Name, domain.CreatedAt)
	if err != nil {
		return nil, err
	}
	for _, doc := range docs {
		if req.matches(doc) {
			return []domain.Document{doc}, nil
		}
	}
	return nil, nil
}

func fullScan(ctx context.Context, backend domain.Backend, req *Request) ([]domain.Document, error) {
	docs, err := backend.Scan(ctx, req.Table.Name, domain.CreatedAt)
	if err != nil {
		return nil, err
	}
	docs = filterDocs(docs, req.matches)
	Sort(docs, req.Options.Sort)
	return window(docs, req.Options), nil
}

// lookup resolves one index value without pagination.
func lookup(ctx context.Context, backend domain.Backend, req *Request, index string, v interface{}) ([]domain.Document, error) {
	if r, ok := rangeOf(v); ok {
		cursor, err := backend.IndexRange(ctx, req.Table.Name, index, r.KeyRange(), req.direction(index))
		if err != nil {
			return nil, err
		}
		return collect(ctx, cursor, nil, domain.FindOptions{})
	}

	var (
		doc domain.Document
		err error
	)
	switch {
	case index == domain.PrimaryKey:
		doc, err = backend.Get(ctx, req.Table.Name, v)
	case req.Table.IsUnique(index):
		doc, err = backend.IndexGet(ctx, req.Table.Name, index, v)
	default:
		return backend.IndexEqual(ctx, req.Table.Name, index, v)
	}
	if err != nil || doc == nil {
		return nil, err
	}
	return []domain.Document{doc}, nil
}

// walk feeds one page of a cursor to yield. With no filter the skipped
// records are never materialized; otherwise the walk stops once skip+limit
// records matched.
func walk(ctx context.Context, cursor domain.Cursor, filter func(domain.Document) bool, opts domain.FindOptions, yield func(domain.Document) error) error {
	defer cursor.Close()

	skip := opts.Skip
	if filter == nil && skip > 0 {
		if err := cursor.Advance(ctx, skip); err != nil {
			return err
		}
		skip = 0
	}

	matched := 0
	for !opts.Bounded() || matched < skip+opts.Limit {
		doc, ok, err := cursor.Next(ctx)
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		if filter != nil && !filter(doc) {
			continue
		}
		matched++
		if matched <= skip {
			continue
		}
		if err := yield(doc); err != nil {
			return err
		}
	}
	return nil
}

// collect drains one page of a cursor.
func collect(ctx context.Context, cursor domain.Cursor, filter func(domain.Document) bool, opts domain.FindOptions) ([]domain.Document, error) {
	var out []domain.Document
	err := walk(ctx, cursor, filter, opts, func(doc domain.Document) error {
		out = append(out, doc)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func filterDocs(docs []domain.Document, keep func(domain.Document) bool) []domain.Document {
	out := docs[:0]
	for _, doc := range docs {
		if keep(doc) {
			out = append(out, doc)
		}
	}
	return out
}

func window(docs []domain.Document, opts domain.FindOptions) []domain.Document {
	start, end := opts.Window(len(docs))
	if start >= end {
		return nil
	}
	return docs[start:end]
}

// primaryKey normalizes a key for deduplication: numbers compare by value
// across Go kinds and dates by instant.
func primaryKey(id interface{}) interface{} {
	if t, ok := id.(time.Time); ok {
		return t.UnixNano()
	}
	if value.RankOf(id) == value.RankNumber {
		f, _ := value.ToFloat64(id)
		return f
	}
	return id
}
