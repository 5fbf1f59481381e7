package indexing

import (
	"context"

	"github.com/tidwall/btree"

	"github.com/adfharrison1/go-okdb/pkg/domain"
	"github.com/adfharrison1/go-okdb/pkg/value"
)

// Cursor walks a private snapshot of an index between two bounds. It
// implements domain.Cursor.
type Cursor struct {
	tree    *btree.BTreeG[entry]
	iter    btree.IterG[entry]
	dir     domain.Direction
	start   *entry // inclusive seek position in walk order
	stop    *entry // exclusive end in walk order
	started bool
	done    bool
}

// OpenCursor opens a cursor over a snapshot of the index. A bounded range is
// confined to the rank of its bounds, so gt(5) never yields strings. Bounds
// of different ranks, or of ranks without an ordering, select nothing.
func (idx *Index) OpenCursor(r domain.KeyRange, dir domain.Direction) *Cursor {
	c := &Cursor{tree: idx.tree.Copy(), dir: dir}
	c.iter = c.tree.Iter()

	if r.HasLower && r.HasUpper && value.RankOf(r.Lower) != value.RankOf(r.Upper) {
		c.done = true
		return c
	}
	if (r.HasLower && !value.RankOf(r.Lower).Comparable()) || (r.HasUpper && !value.RankOf(r.Upper).Comparable()) {
		c.done = true
		return c
	}

	var lo, hi *entry
	switch {
	case r.HasLower:
		edge := int8(-1)
		if r.LowerOpen {
			edge = 1
		}
		lo = &entry{key: r.Lower, edge: edge}
	case r.HasUpper:
		lo = &entry{key: rankEdge{rank: value.RankOf(r.Upper)}}
	}
	switch {
	case r.HasUpper:
		edge := int8(1)
		if r.UpperOpen {
			edge = -1
		}
		hi = &entry{key: r.Upper, edge: edge}
	case r.HasLower:
		hi = &entry{key: rankEdge{rank: value.RankOf(r.Lower), after: true}}
	}

	if dir == domain.Reverse {
		c.start, c.stop = hi, lo
	} else {
		c.start, c.stop = lo, hi
	}
	return c
}

func (c *Cursor) position() bool {
	c.started = true
	if c.dir == domain.Reverse {
		if c.start == nil {
			return c.iter.Last()
		}
		// the start sentinel is exclusive from above: step back from the
		// first item at or past it
		if c.iter.Seek(*c.start) {
			return c.iter.Prev()
		}
		return c.iter.Last()
	}
	if c.start == nil {
		return c.iter.First()
	}
	return c.iter.Seek(*c.start)
}

func (c *Cursor) step() bool {
	if c.done {
		return false
	}
	var ok bool
	if !c.started {
		ok = c.position()
	} else if c.dir == domain.Reverse {
		ok = c.iter.Prev()
	} else {
		ok = c.iter.Next()
	}
	if ok && c.stop != nil {
		item := c.iter.Item()
		if c.dir == domain.Reverse {
			ok = less(*c.stop, item)
		} else {
			ok = less(item, *c.stop)
		}
	}
	if !ok {
		c.done = true
	}
	return ok
}

// Next returns a copy of the next record.
func (c *Cursor) Next(ctx context.Context) (domain.Document, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	if !c.step() {
		return nil, false, nil
	}
	return c.iter.Item().doc.Clone(), true, nil
}

// Advance skips n records.
func (c *Cursor) Advance(ctx context.Context, n int) error {
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !c.step() {
			return nil
		}
	}
	return nil
}

// Close releases the snapshot.
func (c *Cursor) Close() error {
	c.done = true
	c.iter.Release()
	return nil
}
