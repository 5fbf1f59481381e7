package query

import (
	"fmt"
	"sort"
	"time"

	"github.com/adfharrison1/go-okdb/pkg/domain"
	"github.com/adfharrison1/go-okdb/pkg/value"
)

// UpdateSpec maps field names to new values or update Operators.
type UpdateSpec map[string]interface{}

// toUpdate turns the chain into an update pipeline. A filter chain that came
// first becomes a step producing its boolean result.
func (o Operator) toUpdate() Operator {
	if o.kind == KindUpdate {
		return o.clone()
	}
	c := Operator{kind: KindUpdate, err: o.err}
	if !o.empty() {
		filter := o
		c.steps = []Transform{func(v interface{}, k string, owner domain.Document) (interface{}, bool, error) {
			return filter.Match(v, k, owner), true, nil
		}}
	}
	return c
}

func (o Operator) numeric(name string, operand interface{}, fn func(cur, operand interface{}) interface{}) Operator {
	c := o.toUpdate()
	c.steps = append(c.steps, func(v interface{}, _ string, _ domain.Document) (interface{}, bool, error) {
		if _, ok := value.ToFloat64(v); !ok {
			return nil, false, fmt.Errorf("%w: cannot apply $%s to a value of non-numeric type %s", domain.ErrTypeMismatch, name, value.TypeOf(v))
		}
		if _, ok := value.ToFloat64(operand); !ok {
			return nil, false, fmt.Errorf("%w: $%s operand must be numeric, got %s", domain.ErrTypeMismatch, name, value.TypeOf(operand))
		}
		return fn(v, operand), true, nil
	})
	return c
}

func isInteger(v interface{}) bool {
	switch v.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return true
	}
	return false
}

func arith(a, b interface{}, ints func(x, y int64) int64, floats func(x, y float64) float64) interface{} {
	if isInteger(a) && isInteger(b) {
		x, _ := value.ToInt64(a)
		y, _ := value.ToInt64(b)
		return ints(x, y)
	}
	x, _ := value.ToFloat64(a)
	y, _ := value.ToFloat64(b)
	return floats(x, y)
}

// Inc adds n to the field.
func (o Operator) Inc(n interface{}) Operator {
	return o.numeric("inc", n, func(cur, operand interface{}) interface{} {
		return arith(cur, operand, func(x, y int64) int64 { return x + y }, func(x, y float64) float64 { return x + y })
	})
}

// Mul multiplies the field by n.
func (o Operator) Mul(n interface{}) Operator {
	return o.numeric("mul", n, func(cur, operand interface{}) interface{} {
		return arith(cur, operand, func(x, y int64) int64 { return x * y }, func(x, y float64) float64 { return x * y })
	})
}

// Min keeps the smaller of the field and n.
func (o Operator) Min(n interface{}) Operator {
	return o.numeric("min", n, func(cur, operand interface{}) interface{} {
		if c, _ := value.Compare(operand, cur); c < 0 {
			return operand
		}
		return cur
	})
}

// Max keeps the larger of the field and n.
func (o Operator) Max(n interface{}) Operator {
	return o.numeric("max", n, func(cur, operand interface{}) interface{} {
		if c, _ := value.Compare(operand, cur); c > 0 {
			return operand
		}
		return cur
	})
}

// Rename moves the field to newKey on the owning record.
func Rename(newKey string) Operator {
	return Operator{kind: KindUpdate, steps: []Transform{func(v interface{}, k string, owner domain.Document) (interface{}, bool, error) {
		if newKey == k {
			return v, !value.IsMissing(v), nil
		}
		if !value.IsMissing(v) && owner != nil {
			owner[newKey] = v
		}
		return nil, false, nil
	}}}
}

// Unset removes the field.
func Unset() Operator {
	return Operator{kind: KindUpdate, steps: []Transform{func(interface{}, string, domain.Document) (interface{}, bool, error) {
		return nil, false, nil
	}}}
}

// CurrentDate sets the field to the current time.
func CurrentDate() Operator {
	return Operator{kind: KindUpdate, steps: []Transform{func(interface{}, string, domain.Document) (interface{}, bool, error) {
		return time.Now(), true, nil
	}}}
}

// Inc adds n to a numeric field.
func Inc(n interface{}) Operator { return Operator{}.Inc(n) }

// Mul multiplies a numeric field by n.
func Mul(n interface{}) Operator { return Operator{}.Mul(n) }

// Min lowers a numeric field to n when n is smaller.
func Min(n interface{}) Operator { return Operator{}.Min(n) }

// Max raises a numeric field to n when n is larger.
func Max(n interface{}) Operator { return Operator{}.Max(n) }

// Apply runs the operator on a field value. Filters yield their boolean
// result; update chains run each step in order and stop at the first error.
func (o Operator) Apply(v interface{}, key string, owner domain.Document) (interface{}, bool, error) {
	if o.err != nil {
		return nil, false, o.err
	}
	if o.kind == KindFilter {
		return o.Match(v, key, owner), true, nil
	}
	cur, keep := v, true
	for _, step := range o.steps {
		var err error
		cur, keep, err = step(cur, key, owner)
		if err != nil {
			return nil, false, err
		}
		if !keep {
			return nil, false, nil
		}
	}
	return cur, keep, nil
}

// Fields returns the updated field names in a stable order.
func (s UpdateSpec) Fields() []string {
	fields := make([]string, 0, len(s))
	for k := range s {
		fields = append(fields, k)
	}
	sort.Strings(fields)
	return fields
}

// ApplyUpdate returns a copy of rec with spec applied. rec itself is never
// modified; any failing field rejects the whole update.
func ApplyUpdate(rec domain.Document, spec UpdateSpec) (domain.Document, error) {
	out := rec.Clone()
	if out == nil {
		out = domain.Document{}
	}
	for _, k := range spec.Fields() {
		if k == "" {
			return nil, fmt.Errorf("%w: update field name cannot be empty", domain.ErrConfiguration)
		}
		v, keep, err := applyField(out, k, spec[k])
		if err != nil {
			return nil, fmt.Errorf("update field %s: %w", k, err)
		}
		if keep {
			out[k] = v
		} else {
			delete(out, k)
		}
	}
	if !value.Equal(value.Lookup(out, domain.PrimaryKey), value.Lookup(rec, domain.PrimaryKey)) {
		return nil, fmt.Errorf("%w: field %s cannot be updated", domain.ErrConfiguration, domain.PrimaryKey)
	}
	return out, nil
}

func applyField(rec domain.Document, k string, spec interface{}) (interface{}, bool, error) {
	cur := value.Lookup(rec, k)
	switch t := spec.(type) {
	case Operator:
		return t.Apply(cur, k, rec)
	case *Operator:
		if t != nil {
			return t.Apply(cur, k, rec)
		}
		return nil, true, nil
	case Transform:
		return t(cur, k, rec)
	case func(interface{}, string, domain.Document) (interface{}, bool, error):
		return t(cur, k, rec)
	}
	return spec, true, nil
}
