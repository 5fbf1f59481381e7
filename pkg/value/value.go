// Package value defines how stored record values are typed, ordered and
// compared. Index keys, comparison operators and sorting all share it, so an
// index walk and a full scan agree on what "greater than" means.
package value

import (
	"fmt"
	"math"
	"reflect"
	"regexp"
	"time"
)

// Type tags reported by TypeOf.
const (
	TypeNumber  = "number"
	TypeString  = "string"
	TypeBoolean = "boolean"
	TypeObject  = "object"
	TypeArray   = "array"
	TypeDate    = "date"
	TypeRegexp  = "regexp"
	TypeNull    = "null"
)

// Rank orders values of different classes inside an index. NaN has a rank of
// its own below the numbers, so no bounded numeric range ever contains it.
type Rank uint8

const (
	RankMissing Rank = iota
	RankNull
	RankNaN
	RankNumber
	RankString
	RankBoolean
	RankDate
	RankOther
)

type missing struct{}

// Missing stands in for a field that is absent from a record.
var Missing any = missing{}

// IsMissing reports whether v is the Missing marker.
func IsMissing(v any) bool {
	_, ok := v.(missing)
	return ok
}

// Lookup returns the field value, or Missing when the record has no such key.
func Lookup(rec map[string]any, field string) any {
	if v, ok := rec[field]; ok {
		return v
	}
	return Missing
}

// TypeOf returns the coarse type tag of a stored value.
func TypeOf(v any) string {
	switch v.(type) {
	case nil, missing:
		return TypeNull
	case string:
		return TypeString
	case bool:
		return TypeBoolean
	case time.Time, *time.Time:
		return TypeDate
	case *regexp.Regexp:
		return TypeRegexp
	case []any:
		return TypeArray
	case map[string]any:
		return TypeObject
	}
	if _, ok := ToFloat64(v); ok {
		return TypeNumber
	}
	switch reflect.ValueOf(v).Kind() {
	case reflect.Slice, reflect.Array:
		return TypeArray
	case reflect.Map, reflect.Struct:
		return TypeObject
	}
	return TypeObject
}

// RankOf returns the ordering class of v.
func RankOf(v any) Rank {
	switch v.(type) {
	case missing:
		return RankMissing
	case nil:
		return RankNull
	case string:
		return RankString
	case bool:
		return RankBoolean
	case time.Time, *time.Time:
		return RankDate
	}
	if f, ok := ToFloat64(v); ok {
		if math.IsNaN(f) {
			return RankNaN
		}
		return RankNumber
	}
	return RankOther
}

// Comparable reports whether values of rank r support ordered comparison.
func (r Rank) Comparable() bool {
	return r == RankNumber || r == RankString || r == RankBoolean || r == RankDate
}

// ToFloat64 converts the Go numeric kinds to float64.
func ToFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}

// ToInt64 converts an integral numeric value to int64. Fractional floats fail.
func ToInt64(v any) (int64, bool) {
	f, ok := ToFloat64(v)
	if !ok || f != float64(int64(f)) {
		return 0, false
	}
	return int64(f), true
}

func toTime(v any) time.Time {
	switch t := v.(type) {
	case time.Time:
		return t
	case *time.Time:
		if t != nil {
			return *t
		}
	}
	return time.Time{}
}

// Compare orders a and b when both belong to the same comparable class.
// The second result is false for incomparable pairs, e.g. a number and a
// string, in which case ordered predicates must not match.
func Compare(a, b any) (int, bool) {
	ra, rb := RankOf(a), RankOf(b)
	if ra != rb || !ra.Comparable() {
		return 0, false
	}
	return compareSameRank(ra, a, b), true
}

// Order is a total order over every value, used for index keys and sorting.
func Order(a, b any) int {
	ra, rb := RankOf(a), RankOf(b)
	if ra != rb {
		if ra < rb {
			return -1
		}
		return 1
	}
	return compareSameRank(ra, a, b)
}

func compareSameRank(r Rank, a, b any) int {
	switch r {
	case RankMissing, RankNull, RankNaN:
		return 0
	case RankNumber:
		fa, _ := ToFloat64(a)
		fb, _ := ToFloat64(b)
		return cmp3(fa < fb, fa > fb)
	case RankString:
		sa, sb := a.(string), b.(string)
		return cmp3(sa < sb, sa > sb)
	case RankBoolean:
		ba, bb := a.(bool), b.(bool)
		return cmp3(!ba && bb, ba && !bb)
	case RankDate:
		ta, tb := toTime(a), toTime(b)
		return cmp3(ta.Before(tb), ta.After(tb))
	}
	sa, sb := fmt.Sprint(a), fmt.Sprint(b)
	return cmp3(sa < sb, sa > sb)
}

func cmp3(less, greater bool) int {
	switch {
	case less:
		return -1
	case greater:
		return 1
	}
	return 0
}

// Equal is strict equality: no coercion between classes, numbers compared by
// value across Go numeric kinds, arrays and maps compared element-wise.
func Equal(a, b any) bool {
	ra, rb := RankOf(a), RankOf(b)
	if ra != rb {
		return false
	}
	if ra != RankOther {
		return compareSameRank(ra, a, b) == 0
	}
	if la, ok := AsList(a); ok {
		lb, ok := AsList(b)
		if !ok || len(la) != len(lb) {
			return false
		}
		for i := range la {
			if !Equal(la[i], lb[i]) {
				return false
			}
		}
		return true
	}
	if ma, ok := AsMap(a); ok {
		mb, ok := AsMap(b)
		if !ok || len(ma) != len(mb) {
			return false
		}
		for k, va := range ma {
			vb, ok := mb[k]
			if !ok || !Equal(va, vb) {
				return false
			}
		}
		return true
	}
	return reflect.DeepEqual(a, b)
}

// AsList returns v as a slice of values when it is an array of any kind.
func AsList(v any) ([]any, bool) {
	if l, ok := v.([]any); ok {
		return l, true
	}
	if v == nil {
		return nil, false
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

// AsMap returns v as a plain map when it is a map with string keys, such as
// a nested domain.Document.
func AsMap(v any) (map[string]any, bool) {
	if m, ok := v.(map[string]any); ok {
		return m, true
	}
	if v == nil {
		return nil, false
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Map || rv.Type().Key().Kind() != reflect.String {
		return nil, false
	}
	out := make(map[string]any, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		out[iter.Key().String()] = iter.Value().Interface()
	}
	return out, true
}

// Contains reports whether list holds an element equal to v.
func Contains(list []any, v any) bool {
	for _, item := range list {
		if Equal(item, v) {
			return true
		}
	}
	return false
}

// Indexable reports whether v can serve as an exact index lookup key.
func Indexable(v any) bool {
	r := RankOf(v)
	return r.Comparable()
}
