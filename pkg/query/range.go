package query

import "github.com/adfharrison1/go-okdb/pkg/domain"

// RangeKind names the shape of an index-exploitable interval.
type RangeKind uint8

const (
	RangeNone RangeKind = iota
	RangeGt
	RangeGte
	RangeLt
	RangeLte
	RangeGtLt
	RangeGtLte
	RangeGteLt
	RangeGteLte
)

var rangeNames = [...]string{"", "gt", "gte", "lt", "lte", "gtlt", "gtlte", "gtelt", "gtelte"}

func (k RangeKind) String() string {
	if int(k) < len(rangeNames) {
		return rangeNames[k]
	}
	return "unknown"
}

// Range is the tag carried by an Operator built from at most one lower and
// one upper bound. Boundary order is not validated: an inverted range simply
// selects nothing.
type Range struct {
	Lower          interface{}
	Upper          interface{}
	HasLower       bool
	HasUpper       bool
	LowerInclusive bool
	UpperInclusive bool
}

// Kind returns the tag name, e.g. RangeGteLt for gte(5).lt(10).
func (r Range) Kind() RangeKind {
	switch {
	case r.HasLower && r.HasUpper:
		switch {
		case !r.LowerInclusive && !r.UpperInclusive:
			return RangeGtLt
		case !r.LowerInclusive:
			return RangeGtLte
		case !r.UpperInclusive:
			return RangeGteLt
		default:
			return RangeGteLte
		}
	case r.HasLower:
		if r.LowerInclusive {
			return RangeGte
		}
		return RangeGt
	case r.HasUpper:
		if r.UpperInclusive {
			return RangeLte
		}
		return RangeLt
	}
	return RangeNone
}

// Bounds returns the boundary values, lower first.
func (r Range) Bounds() []interface{} {
	var out []interface{}
	if r.HasLower {
		out = append(out, r.Lower)
	}
	if r.HasUpper {
		out = append(out, r.Upper)
	}
	return out
}

// KeyRange maps the tag onto backend cursor bounds.
func (r Range) KeyRange() domain.KeyRange {
	return domain.KeyRange{
		Lower:     r.Lower,
		Upper:     r.Upper,
		HasLower:  r.HasLower,
		HasUpper:  r.HasUpper,
		LowerOpen: r.HasLower && !r.LowerInclusive,
		UpperOpen: r.HasUpper && !r.UpperInclusive,
	}
}
