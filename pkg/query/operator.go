// Package query implements the operator algebra used by find and update
// requests and the compiler that reduces a condition to one predicate.
//
// Operators are immutable: every method returns a new Operator that carries
// the previous chain. Comparison bounds are tracked explicitly so the planner
// can turn gte(5).lt(10) into one index range scan.
package query

import (
	"fmt"

	"github.com/adfharrison1/go-okdb/pkg/domain"
	"github.com/adfharrison1/go-okdb/pkg/value"
)

// Predicate tests a field value. key is the field name and owner the record
// holding it; both are empty when the predicate runs on a whole record.
type Predicate func(v interface{}, key string, owner domain.Document) bool

// Transform computes a new field value for an update. Returning keep=false
// removes the field.
type Transform func(v interface{}, key string, owner domain.Document) (out interface{}, keep bool, err error)

// Kind separates filters from update transforms.
type Kind uint8

const (
	KindFilter Kind = iota
	KindUpdate
)

type bound struct {
	value     interface{}
	inclusive bool
}

// Operator is one composable unit of the algebra.
type Operator struct {
	kind   Kind
	lower  *bound
	upper  *bound
	preds  []Predicate
	steps  []Transform
	ranged bool
	err    error
}

// Kind reports whether the operator filters or transforms.
func (o Operator) Kind() Kind {
	return o.kind
}

// Err returns the first construction error in the chain, e.g. a bad pattern.
func (o Operator) Err() error {
	return o.err
}

// Range returns the index range tag. It exists only while the chain holds at
// most one lower and one upper bound and nothing else.
func (o Operator) Range() (Range, bool) {
	if !o.ranged || o.kind != KindFilter {
		return Range{}, false
	}
	var r Range
	if o.lower != nil {
		r.Lower, r.HasLower, r.LowerInclusive = o.lower.value, true, o.lower.inclusive
	}
	if o.upper != nil {
		r.Upper, r.HasUpper, r.UpperInclusive = o.upper.value, true, o.upper.inclusive
	}
	return r, true
}

func (o Operator) empty() bool {
	return o.lower == nil && o.upper == nil && len(o.preds) == 0 && len(o.steps) == 0
}

func (o Operator) clone() Operator {
	c := o
	c.preds = append([]Predicate(nil), o.preds...)
	c.steps = append([]Transform(nil), o.steps...)
	return c
}

func (o Operator) withError(err error) Operator {
	if o.err == nil && err != nil {
		o.err = err
	}
	return o
}

// withBound composes a comparison bound. A bound on a side that is already
// set replaces it and drops the range tag, as does any bound added after a
// non-range filter.
func (o Operator) withBound(lower bool, b bound, pred Predicate) Operator {
	if o.kind == KindUpdate {
		return o.withFilter(pred)
	}
	wasEmpty := o.empty()
	c := o.clone()
	slot := &c.upper
	if lower {
		slot = &c.lower
	}
	switch {
	case wasEmpty:
		c.ranged = true
	case !c.ranged || *slot != nil || len(c.preds) > 0:
		c.ranged = false
	}
	*slot = &b
	return c
}

// withFilter composes a predicate with AND semantics. On an update chain the
// predicate consumes the transformed value instead.
func (o Operator) withFilter(pred Predicate) Operator {
	c := o.clone()
	if c.kind == KindUpdate {
		c.steps = append(c.steps, func(v interface{}, k string, owner domain.Document) (interface{}, bool, error) {
			return pred(v, k, owner), true, nil
		})
		return c
	}
	c.preds = append(c.preds, pred)
	c.ranged = false
	return c
}

// Match evaluates the operator as a filter.
func (o Operator) Match(v interface{}, key string, owner domain.Document) bool {
	if o.kind == KindUpdate {
		out, keep, err := o.Apply(v, key, owner)
		return err == nil && keep && truthy(out)
	}
	if o.lower != nil && !o.lower.test(v, true) {
		return false
	}
	if o.upper != nil && !o.upper.test(v, false) {
		return false
	}
	for _, p := range o.preds {
		if !p(v, key, owner) {
			return false
		}
	}
	return true
}

// Predicate returns Match as a closure.
func (o Operator) Predicate() Predicate {
	return o.Match
}

func (b *bound) test(v interface{}, lower bool) bool {
	c, ok := value.Compare(v, b.value)
	if !ok {
		return false
	}
	if lower {
		return c > 0 || (b.inclusive && c == 0)
	}
	return c < 0 || (b.inclusive && c == 0)
}

func truthy(v interface{}) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	}
	if value.IsMissing(v) {
		return false
	}
	if f, ok := value.ToFloat64(v); ok {
		return f != 0
	}
	return true
}

// Gt matches values greater than v.
func (o Operator) Gt(v interface{}) Operator {
	b := bound{value: v}
	return o.withBound(true, b, func(d interface{}, _ string, _ domain.Document) bool { return b.test(d, true) })
}

// Gte matches values greater than or equal to v.
func (o Operator) Gte(v interface{}) Operator {
	b := bound{value: v, inclusive: true}
	return o.withBound(true, b, func(d interface{}, _ string, _ domain.Document) bool { return b.test(d, true) })
}

// Lt matches values less than v.
func (o Operator) Lt(v interface{}) Operator {
	b := bound{value: v}
	return o.withBound(false, b, func(d interface{}, _ string, _ domain.Document) bool { return b.test(d, false) })
}

// Lte matches values less than or equal to v.
func (o Operator) Lte(v interface{}) Operator {
	b := bound{value: v, inclusive: true}
	return o.withBound(false, b, func(d interface{}, _ string, _ domain.Document) bool { return b.test(d, false) })
}

// Eq matches values strictly equal to v.
func (o Operator) Eq(v interface{}) Operator {
	return o.withFilter(func(d interface{}, _ string, _ domain.Document) bool { return value.Equal(d, v) })
}

// Ne matches values not equal to v.
func (o Operator) Ne(v interface{}) Operator {
	return o.withFilter(func(d interface{}, _ string, _ domain.Document) bool { return !value.Equal(d, v) })
}

// Mod matches integral values where value % divisor == remainder.
func (o Operator) Mod(divisor, remainder int64) Operator {
	if divisor == 0 {
		return o.withError(fmt.Errorf("%w: mod divisor cannot be zero", domain.ErrInvalidQuery)).
			withFilter(func(interface{}, string, domain.Document) bool { return false })
	}
	return o.withFilter(func(d interface{}, _ string, _ domain.Document) bool {
		n, ok := value.ToInt64(d)
		return ok && n%divisor == remainder
	})
}

// In matches a value contained in list, or an array sharing an element with it.
func (o Operator) In(list ...interface{}) Operator {
	return o.withFilter(func(d interface{}, _ string, _ domain.Document) bool {
		if items, ok := value.AsList(d); ok {
			for _, item := range items {
				if value.Contains(list, item) {
					return true
				}
			}
			return false
		}
		return value.Contains(list, d)
	})
}

// Nin is the negation of In.
func (o Operator) Nin(list ...interface{}) Operator {
	return o.withFilter(func(d interface{}, _ string, _ domain.Document) bool {
		if items, ok := value.AsList(d); ok {
			for _, item := range items {
				if value.Contains(list, item) {
					return false
				}
			}
			return true
		}
		return !value.Contains(list, d)
	})
}

// All matches arrays whose every element appears in list.
func (o Operator) All(list ...interface{}) Operator {
	return o.withFilter(func(d interface{}, _ string, _ domain.Document) bool {
		items, ok := value.AsList(d)
		if !ok {
			return false
		}
		for _, item := range items {
			if !value.Contains(list, item) {
				return false
			}
		}
		return true
	})
}

// Size matches arrays of exactly n elements.
func (o Operator) Size(n int) Operator {
	return o.withFilter(func(d interface{}, _ string, _ domain.Document) bool {
		items, ok := value.AsList(d)
		return ok && len(items) == n
	})
}

// ElemMatch matches arrays with at least one element satisfying cond, which
// may be a Condition, an Operator or a Predicate.
func (o Operator) ElemMatch(cond interface{}) Operator {
	pred := Compile(cond)
	return o.withError(conditionErr(cond)).withFilter(func(d interface{}, _ string, _ domain.Document) bool {
		items, ok := value.AsList(d)
		if !ok {
			return false
		}
		for _, item := range items {
			owner, _ := asDocument(item)
			if pred(item, "", owner) {
				return true
			}
		}
		return false
	})
}

func bitmask(positions []uint) (int64, bool) {
	var mask int64
	for _, p := range positions {
		if p > 62 {
			return 0, false
		}
		mask |= 1 << p
	}
	return mask, true
}

func (o Operator) bits(positions []uint, test func(n, mask int64) bool) Operator {
	mask, ok := bitmask(positions)
	if !ok {
		o = o.withError(fmt.Errorf("%w: bit positions must be below 63", domain.ErrInvalidQuery))
	}
	return o.withFilter(func(d interface{}, _ string, _ domain.Document) bool {
		n, isInt := value.ToInt64(d)
		return ok && isInt && test(n, mask)
	})
}

// BitsAllClear matches numbers with every listed bit clear.
func (o Operator) BitsAllClear(positions ...uint) Operator {
	return o.bits(positions, func(n, mask int64) bool { return n&mask == 0 })
}

// BitsAnyClear matches numbers with at least one listed bit clear.
func (o Operator) BitsAnyClear(positions ...uint) Operator {
	return o.bits(positions, func(n, mask int64) bool { return n&mask != mask })
}

// BitsAllSet matches numbers with every listed bit set.
func (o Operator) BitsAllSet(positions ...uint) Operator {
	return o.bits(positions, func(n, mask int64) bool { return n&mask == mask })
}

// BitsAnySet matches numbers with at least one listed bit set.
func (o Operator) BitsAnySet(positions ...uint) Operator {
	return o.bits(positions, func(n, mask int64) bool { return n&mask != 0 })
}

// Exists matches when the field's presence equals flag.
func (o Operator) Exists(flag bool) Operator {
	return o.withFilter(func(d interface{}, k string, owner domain.Document) bool {
		_, present := owner[k]
		return present == flag
	})
}

// Type matches present fields whose type tag equals t.
func (o Operator) Type(t string) Operator {
	return o.withFilter(func(d interface{}, k string, owner domain.Document) bool {
		if _, present := owner[k]; !present {
			return false
		}
		return value.TypeOf(d) == t
	})
}

// Regex matches string values against pattern, a string or *regexp.Regexp.
func (o Operator) Regex(pattern interface{}) Operator {
	re, err := compilePattern(pattern)
	if err != nil {
		return o.withError(err).withFilter(func(interface{}, string, domain.Document) bool { return false })
	}
	return o.withFilter(func(d interface{}, _ string, _ domain.Document) bool {
		s, ok := d.(string)
		return ok && re.MatchString(s)
	})
}

// Package-level constructors start a new chain.

// Gt matches values greater than v.
func Gt(v interface{}) Operator { return Operator{}.Gt(v) }

// Gte matches values greater than or equal to v.
func Gte(v interface{}) Operator { return Operator{}.Gte(v) }

// Lt matches values less than v.
func Lt(v interface{}) Operator { return Operator{}.Lt(v) }

// Lte matches values less than or equal to v.
func Lte(v interface{}) Operator { return Operator{}.Lte(v) }

// Eq matches values equal to v.
func Eq(v interface{}) Operator { return Operator{}.Eq(v) }

// Ne matches values not equal to v.
func Ne(v interface{}) Operator { return Operator{}.Ne(v) }

// Mod matches numbers that leave remainder when divided by divisor.
func Mod(divisor, remainder int64) Operator { return Operator{}.Mod(divisor, remainder) }

// In matches values equal to any element of list.
func In(list ...interface{}) Operator { return Operator{}.In(list...) }

// Nin matches values equal to no element of list.
func Nin(list ...interface{}) Operator { return Operator{}.Nin(list...) }

// All matches arrays holding every element of list.
func All(list ...interface{}) Operator { return Operator{}.All(list...) }

// Size matches arrays of exactly n elements.
func Size(n int) Operator { return Operator{}.Size(n) }

// ElemMatch matches arrays with an element satisfying cond.
func ElemMatch(cond interface{}) Operator { return Operator{}.ElemMatch(cond) }

// BitsAllClear matches numbers with every listed bit clear.
func BitsAllClear(positions ...uint) Operator { return Operator{}.BitsAllClear(positions...) }

// BitsAnyClear matches numbers with at least one listed bit clear.
func BitsAnyClear(positions ...uint) Operator { return Operator{}.BitsAnyClear(positions...) }

// BitsAllSet matches numbers with every listed bit set.
func BitsAllSet(positions ...uint) Operator { return Operator{}.BitsAllSet(positions...) }

// BitsAnySet matches numbers with at least one listed bit set.
func BitsAnySet(positions ...uint) Operator { return Operator{}.BitsAnySet(positions...) }

// Exists matches when the field's presence equals flag.
func Exists(flag bool) Operator { return Operator{}.Exists(flag) }

// Type matches present fields whose type tag equals t.
func Type(t string) Operator { return Operator{}.Type(t) }

// Regex matches string values against pattern.
func Regex(pattern interface{}) Operator { return Operator{}.Regex(pattern) }
