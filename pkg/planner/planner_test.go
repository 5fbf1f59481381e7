package planner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adfharrison1/go-okdb/pkg/domain"
	"github.com/adfharrison1/go-okdb/pkg/query"
	"github.com/adfharrison1/go-okdb/pkg/storage"
)

// countingBackend records which backend calls a plan made.
type countingBackend struct {
	domain.Backend

	mu       sync.Mutex
	scans    int
	ranges   int
	advanced int
	nexts    int
}

type countingCursor struct {
	domain.Cursor
	b *countingBackend
}

func (c *countingCursor) Next(ctx context.Context) (domain.Document, bool, error) {
	c.b.mu.Lock()
	c.b.nexts++
	c.b.mu.Unlock()
	return c.Cursor.Next(ctx)
}

func (c *countingCursor) Advance(ctx context.Context, n int) error {
	c.b.mu.Lock()
	c.b.advanced += n
	c.b.mu.Unlock()
	return c.Cursor.Advance(ctx, n)
}

func (b *countingBackend) Scan(ctx context.Context, table, orderIndex string) ([]domain.Document, error) {
	b.mu.Lock()
	b.scans++
	b.mu.Unlock()
	return b.Backend.Scan(ctx, table, orderIndex)
}

func (b *countingBackend) IndexRange(ctx context.Context, table, index string, r domain.KeyRange, dir domain.Direction) (domain.Cursor, error) {
	b.mu.Lock()
	b.ranges++
	b.mu.Unlock()
	c, err := b.Backend.IndexRange(ctx, table, index, r, dir)
	if err != nil {
		return nil, err
	}
	return &countingCursor{Cursor: c, b: b}, nil
}

func newEngine(t *testing.T, name string, indexes map[string]bool, docs ...domain.Document) (*storage.StorageEngine, *domain.Table) {
	t.Helper()
	engine := storage.NewStorageEngine()
	t.Cleanup(engine.StopBackgroundWorkers)
	require.NoError(t, engine.CreateTable(domain.NewTable(name, indexes)))
	for _, doc := range docs {
		_, err := engine.Insert(context.Background(), name, doc)
		require.NoError(t, err)
	}
	def, err := engine.Table(name)
	require.NoError(t, err)
	return engine, def
}

// population returns records with mixed age types, missing ages and ties.
func population() []domain.Document {
	var docs []domain.Document
	for i := 0; i < 20; i++ {
		doc := domain.Document{"_id": fmt.Sprintf("p%02d", i), "name": fmt.Sprintf("n%02d", (i*7)%20)}
		switch i {
		case 5:
		case 11:
			doc["age"] = "old"
		case 13:
			doc["age"] = nil
		default:
			doc["age"] = i % 7
		}
		if i%2 == 0 {
			doc["email"] = fmt.Sprintf("p%02d@x", i)
		}
		docs = append(docs, doc)
	}
	return docs
}

func find(t *testing.T, backend domain.Backend, table *domain.Table, conds []query.Condition, opts *domain.FindOptions) []domain.Document {
	t.Helper()
	req, err := Build(table, conds, opts)
	require.NoError(t, err)
	docs, err := Execute(context.Background(), backend, req)
	require.NoError(t, err)
	return docs
}

// reference evaluates a find without any index: scan, filter, sort, window.
func reference(t *testing.T, engine *storage.StorageEngine, table string, conds []query.Condition, opts *domain.FindOptions) []domain.Document {
	t.Helper()
	all, err := engine.Scan(context.Background(), table, "")
	require.NoError(t, err)
	branches := make([]interface{}, len(conds))
	for i, c := range conds {
		branches[i] = c
	}
	match := query.MergeConditions(branches, query.ModeOr)
	var out []domain.Document
	for _, doc := range all {
		if len(conds) == 0 || match(doc, "", doc) {
			out = append(out, doc)
		}
	}
	Sort(out, opts.Sort)
	start, end := opts.Window(len(out))
	return out[start:end]
}

func ids(docs []domain.Document) []interface{} {
	out := make([]interface{}, len(docs))
	for i, doc := range docs {
		out[i] = doc[domain.PrimaryKey]
	}
	return out
}

func TestRangeScenarios(t *testing.T) {
	engine, table := newEngine(t, "people", map[string]bool{"age": false},
		domain.Document{"_id": 1, "age": 30},
		domain.Document{"_id": 2, "age": 25},
		domain.Document{"_id": 3, "age": 40},
	)

	got := find(t, engine, table, []query.Condition{{"age": query.Gte(30)}},
		&domain.FindOptions{Sort: []domain.SortField{{Field: "age"}}, Limit: 2})
	assert.Equal(t, []interface{}{1, 3}, ids(got))

	got = find(t, engine, table, []query.Condition{{"age": query.Gt(20).Lt(30)}}, nil)
	assert.Equal(t, []interface{}{2}, ids(got))

	got = find(t, engine, table, []query.Condition{{"age": query.Gte(30)}},
		&domain.FindOptions{Sort: []domain.SortField{{Field: "age", Desc: true}}})
	assert.Equal(t, []interface{}{3, 1}, ids(got))
}

func TestBuild(t *testing.T) {
	table := domain.NewTable("people", map[string]bool{"age": false, "email": true})

	t.Run("no conditions match everything", func(t *testing.T) {
		req, err := Build(table, nil, nil)
		require.NoError(t, err)
		assert.Nil(t, req.Filter)
		assert.Empty(t, req.FilterIndexes)
		assert.False(t, req.NotIndexFilter)
	})

	t.Run("index fields only", func(t *testing.T) {
		req, err := Build(table, []query.Condition{{"age": query.Gte(3)}, {"age": 1, "email": "a@x"}, {"age": 1}}, nil)
		require.NoError(t, err)
		assert.Len(t, req.FilterIndexes["age"], 2)
		assert.Equal(t, []interface{}{"a@x"}, req.FilterIndexes["email"])
		assert.False(t, req.NotIndexFilter)
	})

	t.Run("predicate pressure", func(t *testing.T) {
		req, err := Build(table, []query.Condition{{"age": 3, "name": "x"}}, nil)
		require.NoError(t, err)
		assert.Equal(t, []interface{}{3}, req.FilterIndexes["age"])
		assert.True(t, req.NotIndexFilter)

		req, err = Build(table, []query.Condition{{"age": query.Ne(3)}}, nil)
		require.NoError(t, err)
		assert.Empty(t, req.FilterIndexes)
		assert.True(t, req.NotIndexFilter)
	})

	t.Run("uncovered branch drops index filters", func(t *testing.T) {
		req, err := Build(table, []query.Condition{{"age": 3}, {"name": "x"}}, nil)
		require.NoError(t, err)
		assert.Empty(t, req.FilterIndexes)
		assert.True(t, req.NotIndexFilter)
	})

	t.Run("untagged range is not an index target", func(t *testing.T) {
		req, err := Build(table, []query.Condition{{"age": query.Gt(1).Gt(2)}}, nil)
		require.NoError(t, err)
		assert.Empty(t, req.FilterIndexes)
	})

	t.Run("errors", func(t *testing.T) {
		_, err := Build(table, nil, &domain.FindOptions{Skip: -1})
		assert.ErrorIs(t, err, domain.ErrConfiguration)

		_, err = Build(table, []query.Condition{{"name": query.Regex("(")}}, nil)
		assert.ErrorIs(t, err, domain.ErrInvalidQuery)

		_, err = Build(nil, nil, nil)
		assert.ErrorIs(t, err, domain.ErrConfiguration)
	})
}

func TestChoose(t *testing.T) {
	table := domain.NewTable("people", map[string]bool{"age": false})
	byAge := []domain.SortField{{Field: "age"}}
	tests := []struct {
		name  string
		conds []query.Condition
		opts  domain.FindOptions
		want  Strategy
	}{
		{"sorted on index", nil, domain.FindOptions{Sort: byAge}, StrategyIndexStream},
		{"sorted on index with residual", []query.Condition{{"name": "x"}}, domain.FindOptions{Sort: byAge}, StrategyIndexStream},
		{"sorted on plain field", nil, domain.FindOptions{Sort: []domain.SortField{{Field: "name"}}}, StrategyFullScan},
		{"first match", []query.Condition{{"name": "x"}}, domain.FindOptions{Limit: 1}, StrategyFirstMatch},
		{"skip defeats first match", []query.Condition{{"name": "x"}}, domain.FindOptions{Skip: 1, Limit: 1}, StrategyFullScan},
		{"single index", []query.Condition{{"age": query.Gte(3)}}, domain.FindOptions{Sort: byAge}, StrategySingleIndex},
		{"single index unsorted", []query.Condition{{"age": query.Gte(3)}}, domain.FindOptions{}, StrategyIndexUnion},
		{"two values", []query.Condition{{"age": 1}, {"age": 2}}, domain.FindOptions{Sort: byAge}, StrategyIndexUnion},
		{"two indexes", []query.Condition{{"age": 1, "_id": "a"}}, domain.FindOptions{Sort: byAge}, StrategyIndexUnion},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := tt.opts
			req, err := Build(table, tt.conds, &opts)
			require.NoError(t, err)
			assert.Equal(t, tt.want, Choose(req))
		})
	}
}

func TestIndexedAndFullScanAgree(t *testing.T) {
	engine, table := newEngine(t, "people", map[string]bool{"age": false, "name": false, "email": true}, population()...)

	conditions := map[string][]query.Condition{
		"all":             nil,
		"gte":             {{"age": query.Gte(3)}},
		"closed range":    {{"age": query.Gt(2).Lte(5)}},
		"equality":        {{"age": 4}},
		"with residual":   {{"age": query.Lt(3), "name": query.Regex("^n1")}},
		"or of values":    {{"age": 1}, {"age": 5}},
		"or uncovered":    {{"age": 1}, {"name": "n01"}},
		"overlapping or":  {{"age": 3}, {"age": query.Gte(3)}},
		"not equal":       {{"age": query.Ne(3)}},
		"primary key":     {{"_id": "p04"}},
		"primary key or":  {{"_id": "p04"}, {"_id": "p05"}, {"email": "p10@x"}},
		"unique":          {{"email": "p06@x"}},
		"string range":    {{"age": query.Gte("a")}},
		"null range":      {{"age": query.Gte(nil)}},
		"mixed bounds":    {{"age": query.Gte(1).Lt("z")}},
		"inverted range":  {{"age": query.Gt(5).Lt(2)}},
		"nothing matches": {{"age": 99}},
	}
	options := map[string]*domain.FindOptions{
		"none":          {},
		"age asc":       {Sort: []domain.SortField{{Field: "age"}}},
		"age desc page": {Sort: []domain.SortField{{Field: "age", Desc: true}}, Skip: 2, Limit: 3},
		"name page":     {Sort: []domain.SortField{{Field: "name"}}, Skip: 1, Limit: 4},
		"two keys":      {Sort: []domain.SortField{{Field: "age"}, {Field: "name", Desc: true}}, Limit: 5},
		"age skip all":  {Sort: []domain.SortField{{Field: "age"}}, Skip: 50},
	}

	for cname, conds := range conditions {
		for oname, opts := range options {
			t.Run(cname+"/"+oname, func(t *testing.T) {
				got := find(t, engine, table, conds, opts)
				want := reference(t, engine, "people", conds, opts)
				if len(opts.Sort) == 0 {
					assert.ElementsMatch(t, ids(want), ids(got))
				} else {
					assert.Equal(t, ids(want), ids(got))
				}
			})
		}
	}
}

func TestIndexStreamSkipsWithoutReading(t *testing.T) {
	engine, table := newEngine(t, "people", map[string]bool{"age": false}, population()...)
	backend := &countingBackend{Backend: engine}

	got := find(t, backend, table, nil, &domain.FindOptions{Sort: []domain.SortField{{Field: "age"}}, Skip: 5, Limit: 2})
	assert.Len(t, got, 2)
	assert.Equal(t, 5, backend.advanced)
	assert.Equal(t, 2, backend.nexts)
	assert.Zero(t, backend.scans)
}

func TestIndexStreamWithResidualStopsEarly(t *testing.T) {
	engine, table := newEngine(t, "people", map[string]bool{"age": false}, population()...)
	backend := &countingBackend{Backend: engine}

	got := find(t, backend, table, []query.Condition{{"email": query.Exists(true)}},
		&domain.FindOptions{Sort: []domain.SortField{{Field: "age"}}, Limit: 2})
	assert.Len(t, got, 2)
	assert.Zero(t, backend.advanced)
	assert.Less(t, backend.nexts, 20)
}

func TestFirstMatch(t *testing.T) {
	engine, table := newEngine(t, "people", map[string]bool{"age": false}, population()...)
	backend := &countingBackend{Backend: engine}

	got := find(t, backend, table, []query.Condition{{"name": query.Regex("^n1")}}, &domain.FindOptions{Limit: 1})
	require.Len(t, got, 1)
	// p02 is the earliest record whose name starts with n1
	assert.Equal(t, "p02", got[0]["_id"])
	assert.Equal(t, 1, backend.scans)

	got = find(t, backend, table, []query.Condition{{"name": "nobody"}}, &domain.FindOptions{Limit: 1})
	assert.Empty(t, got)
}

func TestUnionDeduplicates(t *testing.T) {
	engine, table := newEngine(t, "people", map[string]bool{"age": false, "email": true}, population()...)

	got := find(t, engine, table, []query.Condition{{"age": 6}, {"age": query.Gte(6)}, {"email": "p06@x"}}, nil)
	assert.ElementsMatch(t, []interface{}{"p06"}, ids(got))
}

func TestUnionStopsEarlyWhenUnsorted(t *testing.T) {
	engine, table := newEngine(t, "people", map[string]bool{"age": false}, population()...)

	got := find(t, engine, table, []query.Condition{{"age": query.Gte(0)}}, &domain.FindOptions{Skip: 1, Limit: 2})
	assert.Len(t, got, 2)
}

func TestPaginationIsIdempotent(t *testing.T) {
	engine, table := newEngine(t, "people", map[string]bool{"age": false}, population()...)

	for _, sortBy := range [][]domain.SortField{
		{{Field: "age"}},
		{{Field: "age", Desc: true}},
		{{Field: "name"}},
	} {
		conds := []query.Condition{{"age": query.Gte(1)}}
		all := find(t, engine, table, conds, &domain.FindOptions{Sort: sortBy})
		var paged []domain.Document
		for skip := 0; skip < len(all)+3; skip += 3 {
			paged = append(paged, find(t, engine, table, conds, &domain.FindOptions{Sort: sortBy, Skip: skip, Limit: 3})...)
		}
		assert.Equal(t, ids(all), ids(paged))

		again := find(t, engine, table, conds, &domain.FindOptions{Sort: sortBy})
		assert.Equal(t, ids(all), ids(again))
	}
}

func TestExecuteErrors(t *testing.T) {
	engine, table := newEngine(t, "people", map[string]bool{"age": false})
	ctx := context.Background()

	_, err := Execute(ctx, engine, &Request{Table: table, FilterIndexes: map[string][]interface{}{"name": {"x"}}})
	assert.ErrorIs(t, err, domain.ErrConfiguration)

	_, err = Execute(ctx, engine, &Request{Table: table, FilterIndexes: map[string][]interface{}{"age": {[]interface{}{1}}}})
	assert.ErrorIs(t, err, domain.ErrConfiguration)

	_, err = Execute(ctx, engine, &Request{Table: domain.NewTable("ghosts", nil)})
	assert.ErrorIs(t, err, domain.ErrTableNotFound)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = Execute(cancelled, engine, &Request{Table: table, FilterIndexes: map[string][]interface{}{"age": {1, 2}}})
	assert.True(t, errors.Is(err, context.Canceled))
}

var errBackendDown = errors.New("backend down")

// failingBackend fails every equality lookup on one index.
type failingBackend struct {
	domain.Backend
	index string
}

func (b *failingBackend) IndexEqual(ctx context.Context, table, index string, v interface{}) ([]domain.Document, error) {
	if index == b.index {
		return nil, errBackendDown
	}
	return b.Backend.IndexEqual(ctx, table, index, v)
}

func TestUnionFailsWhenOneBranchFails(t *testing.T) {
	engine, table := newEngine(t, "people", map[string]bool{"age": false, "name": false}, population()...)
	backend := &failingBackend{Backend: engine, index: "name"}

	req, err := Build(table, []query.Condition{{"age": 1}, {"name": "n07"}}, nil)
	require.NoError(t, err)
	require.Equal(t, StrategyIndexUnion, Choose(req))

	// the age branch alone resolves fine
	ageOnly, err := Build(table, []query.Condition{{"age": 1}}, nil)
	require.NoError(t, err)
	healthy, err := Execute(context.Background(), backend, ageOnly)
	require.NoError(t, err)
	assert.NotEmpty(t, healthy)

	docs, err := Execute(context.Background(), backend, req)
	assert.ErrorIs(t, err, errBackendDown)
	assert.Nil(t, docs)
}

func TestStream(t *testing.T) {
	engine, table := newEngine(t, "people", map[string]bool{"age": false}, population()...)
	backend := &countingBackend{Backend: engine}
	ctx := context.Background()
	byAge := []domain.SortField{{Field: "age"}}

	cases := []struct {
		name     string
		conds    []query.Condition
		opts     *domain.FindOptions
		strategy Strategy
	}{
		{"sort index walk", nil, &domain.FindOptions{Sort: byAge, Skip: 3, Limit: 5}, StrategyIndexStream},
		{"range walk", []query.Condition{{"age": query.Gte(2)}}, &domain.FindOptions{Sort: []domain.SortField{{Field: "age", Desc: true}}}, StrategySingleIndex},
		{"residual walk", []query.Condition{{"name": query.Regex("^n1")}}, &domain.FindOptions{Sort: byAge, Limit: 3}, StrategyIndexStream},
		{"full scan", []query.Condition{{"name": query.Regex("^n1")}}, nil, StrategyFullScan},
		{"union", []query.Condition{{"age": 3}, {"age": 4}}, nil, StrategyIndexUnion},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			req, err := Build(table, c.conds, c.opts)
			require.NoError(t, err)
			require.Equal(t, c.strategy, Choose(req))

			want, err := Execute(ctx, backend, req)
			require.NoError(t, err)
			var got []domain.Document
			require.NoError(t, Stream(ctx, backend, req, func(doc domain.Document) error {
				got = append(got, doc)
				return nil
			}))
			assert.Equal(t, ids(want), ids(got))
		})
	}

	req, err := Build(table, nil, &domain.FindOptions{Sort: byAge})
	require.NoError(t, err)
	backend.nexts = 0
	stop := errors.New("client gone")
	seen := 0
	err = Stream(ctx, backend, req, func(domain.Document) error {
		seen++
		if seen == 3 {
			return stop
		}
		return nil
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 3, backend.nexts, "the walk stops as soon as yield fails")
}

func TestResultsAreCopies(t *testing.T) {
	engine, table := newEngine(t, "people", map[string]bool{"age": false}, domain.Document{"_id": "a", "age": 1})

	got := find(t, engine, table, []query.Condition{{"age": 1}}, nil)
	require.Len(t, got, 1)
	got[0]["age"] = 2

	again := find(t, engine, table, []query.Condition{{"age": 1}}, nil)
	assert.Len(t, again, 1)
}

func TestSort(t *testing.T) {
	docs := []domain.Document{
		{"_id": "b", "v": 2},
		{"_id": "a", "v": 2},
		{"_id": "c"},
		{"_id": "d", "v": nil},
		{"_id": "e", "v": "s"},
		{"_id": "f", "v": 1.5},
	}
	Sort(docs, []domain.SortField{{Field: "v"}})
	assert.Equal(t, []interface{}{"c", "d", "f", "a", "b", "e"}, ids(docs))

	Sort(docs, []domain.SortField{{Field: "v", Desc: true}})
	assert.Equal(t, []interface{}{"e", "b", "a", "f", "d", "c"}, ids(docs))
}
