package query

import (
	"regexp"
	"strings"

	"github.com/adfharrison1/go-okdb/pkg/domain"
	"github.com/adfharrison1/go-okdb/pkg/value"
)

// Condition maps field names to exact values, Operators, Predicates, regular
// expressions or nested Conditions. Keys starting with "$" hold logical
// operators that apply to the whole record rather than one field.
type Condition map[string]interface{}

// Mode selects how MergeConditions combines predicates.
type Mode uint8

const (
	ModeAnd Mode = iota
	ModeOr
	ModeNor
)

func (m Mode) String() string {
	switch m {
	case ModeOr:
		return "or"
	case ModeNor:
		return "nor"
	}
	return "and"
}

func matchAll(interface{}, string, domain.Document) bool { return true }

// Compile reduces a condition to one predicate. Predicates and Operators are
// returned as they are, so compiling twice is harmless. Any other value is an
// exact-match test.
func Compile(cond interface{}) Predicate {
	switch c := cond.(type) {
	case nil:
		return matchAll
	case Predicate:
		return c
	case func(interface{}, string, domain.Document) bool:
		return c
	case Operator:
		return c.Match
	case *Operator:
		if c == nil {
			return matchAll
		}
		return c.Match
	case Condition:
		return compileFields(c)
	case map[string]interface{}:
		return compileFields(Condition(c))
	case domain.Document:
		return compileFields(Condition(c))
	case *regexp.Regexp:
		return func(d interface{}, _ string, _ domain.Document) bool {
			s, ok := d.(string)
			return ok && c.MatchString(s)
		}
	}
	return func(d interface{}, _ string, _ domain.Document) bool {
		return value.Equal(d, cond)
	}
}

// Filter compiles cond into a record-level test.
func Filter(cond interface{}) func(domain.Document) bool {
	p := Compile(cond)
	return func(rec domain.Document) bool {
		return p(rec, "", rec)
	}
}

// MergeConditions combines conditions with and/or/nor semantics.
func MergeConditions(conds []interface{}, mode Mode) Predicate {
	preds := make([]Predicate, len(conds))
	for i, c := range conds {
		preds[i] = Compile(c)
	}
	switch mode {
	case ModeOr:
		return func(v interface{}, k string, owner domain.Document) bool {
			for _, p := range preds {
				if p(v, k, owner) {
					return true
				}
			}
			return false
		}
	case ModeNor:
		return func(v interface{}, k string, owner domain.Document) bool {
			for _, p := range preds {
				if p(v, k, owner) {
					return false
				}
			}
			return true
		}
	}
	return func(v interface{}, k string, owner domain.Document) bool {
		for _, p := range preds {
			if !p(v, k, owner) {
				return false
			}
		}
		return true
	}
}

// IsRecordKey reports whether a condition key applies to the whole record.
func IsRecordKey(key string) bool {
	return strings.HasPrefix(key, "$")
}

func compileFields(c Condition) Predicate {
	type fieldTest func(doc domain.Document) bool
	tests := make([]fieldTest, 0, len(c))
	for k, v := range c {
		k := k
		if IsRecordKey(k) {
			p := Compile(v)
			tests = append(tests, func(doc domain.Document) bool { return p(doc, "", doc) })
			continue
		}
		fp := fieldPredicate(v)
		tests = append(tests, func(doc domain.Document) bool {
			return fp(value.Lookup(doc, k), k, doc)
		})
	}
	return func(v interface{}, _ string, _ domain.Document) bool {
		doc, _ := asDocument(v)
		for _, t := range tests {
			if !t(doc) {
				return false
			}
		}
		return true
	}
}

func fieldPredicate(v interface{}) Predicate {
	switch t := v.(type) {
	case Operator, *Operator, Predicate, func(interface{}, string, domain.Document) bool, *regexp.Regexp:
		return Compile(t)
	case Condition:
		nested := compileFields(t)
		return func(d interface{}, _ string, _ domain.Document) bool {
			return nested(d, "", nil)
		}
	}
	return func(d interface{}, _ string, _ domain.Document) bool {
		return value.Equal(d, v)
	}
}

func asDocument(v interface{}) (domain.Document, bool) {
	switch d := v.(type) {
	case domain.Document:
		return d, true
	case map[string]interface{}:
		return domain.Document(d), true
	}
	return nil, false
}

// Validate reports the first construction error inside cond.
func Validate(cond interface{}) error {
	return conditionErr(cond)
}

func conditionErr(cond interface{}) error {
	switch c := cond.(type) {
	case Operator:
		return c.Err()
	case *Operator:
		if c != nil {
			return c.Err()
		}
	case Condition:
		for _, v := range c {
			if err := conditionErr(v); err != nil {
				return err
			}
		}
	case []interface{}:
		for _, v := range c {
			if err := conditionErr(v); err != nil {
				return err
			}
		}
	}
	return nil
}
