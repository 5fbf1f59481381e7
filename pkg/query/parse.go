package query

import (
	"fmt"
	"sort"
	"strings"

	"github.com/adfharrison1/go-okdb/pkg/domain"
	"github.com/adfharrison1/go-okdb/pkg/value"
)

// operator keys are applied lower bounds first, then upper bounds, so that
// {"$gte": 5, "$lt": 10} keeps its gtelt range tag.
var operatorOrder = map[string]int{"$gt": 0, "$gte": 0, "$lt": 1, "$lte": 1}

// ParseCondition converts a decoded JSON query such as
// {"age": {"$gte": 30}, "name": "Alice"} into a Condition.
func ParseCondition(raw map[string]interface{}) (Condition, error) {
	cond := make(Condition, len(raw))
	for k, v := range raw {
		switch k {
		case "$and", "$or", "$nor":
			op, err := parseLogical(k, v)
			if err != nil {
				return nil, err
			}
			cond[k] = op
			continue
		}
		if IsRecordKey(k) {
			return nil, fmt.Errorf("%w: unknown top-level operator %s", domain.ErrInvalidQuery, k)
		}
		parsed, err := parseFieldValue(v)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", k, err)
		}
		cond[k] = parsed
	}
	return cond, nil
}

func parseLogical(key string, v interface{}) (Operator, error) {
	list, ok := v.([]interface{})
	if !ok {
		return Operator{}, fmt.Errorf("%w: value for %s must be a list", domain.ErrInvalidQuery, key)
	}
	conds := make([]interface{}, 0, len(list))
	for _, item := range list {
		m, ok := item.(map[string]interface{})
		if !ok {
			return Operator{}, fmt.Errorf("%w: element of %s must be an object", domain.ErrInvalidQuery, key)
		}
		c, err := ParseCondition(m)
		if err != nil {
			return Operator{}, err
		}
		conds = append(conds, c)
	}
	switch key {
	case "$or":
		return Or(conds...), nil
	case "$nor":
		return Nor(conds...), nil
	}
	return And(conds...), nil
}

func isOperatorObject(m map[string]interface{}) bool {
	if len(m) == 0 {
		return false
	}
	for k := range m {
		if !strings.HasPrefix(k, "$") {
			return false
		}
	}
	return true
}

func parseFieldValue(v interface{}) (interface{}, error) {
	m, ok := v.(map[string]interface{})
	if !ok || !isOperatorObject(m) {
		return v, nil
	}
	return parseOperator(m)
}

func sortedOperatorKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		oi, iok := operatorOrder[keys[i]]
		oj, jok := operatorOrder[keys[j]]
		if !iok {
			oi = 2
		}
		if !jok {
			oj = 2
		}
		if oi != oj {
			return oi < oj
		}
		return keys[i] < keys[j]
	})
	return keys
}

func parseOperator(m map[string]interface{}) (Operator, error) {
	var op Operator
	for _, k := range sortedOperatorKeys(m) {
		arg := m[k]
		var err error
		switch k {
		case "$eq":
			op = op.Eq(arg)
		case "$ne":
			op = op.Ne(arg)
		case "$gt":
			op = op.Gt(arg)
		case "$gte":
			op = op.Gte(arg)
		case "$lt":
			op = op.Lt(arg)
		case "$lte":
			op = op.Lte(arg)
		case "$in", "$nin", "$all":
			list, ok := value.AsList(arg)
			if !ok {
				return op, fmt.Errorf("%w: %s needs a list", domain.ErrInvalidQuery, k)
			}
			switch k {
			case "$in":
				op = op.In(list...)
			case "$nin":
				op = op.Nin(list...)
			default:
				op = op.All(list...)
			}
		case "$size":
			n, ok := value.ToInt64(arg)
			if !ok {
				return op, fmt.Errorf("%w: $size needs an integer", domain.ErrInvalidQuery)
			}
			op = op.Size(int(n))
		case "$elemMatch":
			sub, ok := arg.(map[string]interface{})
			if !ok {
				return op, fmt.Errorf("%w: $elemMatch needs an object", domain.ErrInvalidQuery)
			}
			var cond interface{}
			if isOperatorObject(sub) {
				cond, err = parseOperator(sub)
			} else {
				cond, err = ParseCondition(sub)
			}
			op = op.ElemMatch(cond)
		case "$exists":
			flag, ok := arg.(bool)
			if !ok {
				return op, fmt.Errorf("%w: $exists needs a boolean", domain.ErrInvalidQuery)
			}
			op = op.Exists(flag)
		case "$type":
			t, ok := arg.(string)
			if !ok {
				return op, fmt.Errorf("%w: $type needs a string", domain.ErrInvalidQuery)
			}
			op = op.Type(t)
		case "$regex":
			pattern, ok := arg.(string)
			if !ok {
				return op, fmt.Errorf("%w: $regex needs a string", domain.ErrInvalidQuery)
			}
			if opts, _ := m["$options"].(string); opts != "" {
				pattern = "(?" + opts + ")" + pattern
			}
			op = op.Regex(pattern)
		case "$options":
			if _, ok := m["$regex"]; !ok {
				return op, fmt.Errorf("%w: $options without $regex", domain.ErrInvalidQuery)
			}
		case "$mod":
			list, ok := value.AsList(arg)
			if !ok || len(list) != 2 {
				return op, fmt.Errorf("%w: $mod needs [divisor, remainder]", domain.ErrInvalidQuery)
			}
			d, dok := value.ToInt64(list[0])
			r, rok := value.ToInt64(list[1])
			if !dok || !rok {
				return op, fmt.Errorf("%w: $mod needs integers", domain.ErrInvalidQuery)
			}
			op = op.Mod(d, r)
		case "$not":
			sub, ok := arg.(map[string]interface{})
			if !ok || !isOperatorObject(sub) {
				op = op.Not(arg)
				break
			}
			var inner Operator
			inner, err = parseOperator(sub)
			op = op.Not(inner)
		case "$bitsAllSet", "$bitsAllClear", "$bitsAnySet", "$bitsAnyClear":
			var positions []uint
			positions, err = parsePositions(k, arg)
			if err != nil {
				return op, err
			}
			switch k {
			case "$bitsAllSet":
				op = op.BitsAllSet(positions...)
			case "$bitsAllClear":
				op = op.BitsAllClear(positions...)
			case "$bitsAnySet":
				op = op.BitsAnySet(positions...)
			default:
				op = op.BitsAnyClear(positions...)
			}
		default:
			return op, fmt.Errorf("%w: unknown operator %s", domain.ErrInvalidQuery, k)
		}
		if err != nil {
			return op, err
		}
	}
	return op, op.Err()
}

func parsePositions(key string, arg interface{}) ([]uint, error) {
	list, ok := value.AsList(arg)
	if !ok {
		return nil, fmt.Errorf("%w: %s needs a list of bit positions", domain.ErrInvalidQuery, key)
	}
	positions := make([]uint, 0, len(list))
	for _, item := range list {
		n, ok := value.ToInt64(item)
		if !ok || n < 0 {
			return nil, fmt.Errorf("%w: %s positions must be non-negative integers", domain.ErrInvalidQuery, key)
		}
		positions = append(positions, uint(n))
	}
	return positions, nil
}

// ParseUpdate converts a decoded JSON update such as
// {"$inc": {"visits": 1}, "$set": {"status": "seen"}} into an UpdateSpec.
// Keys without a "$" prefix are plain assignments.
func ParseUpdate(raw map[string]interface{}) (UpdateSpec, error) {
	spec := make(UpdateSpec)
	set := func(field string, v interface{}) error {
		if field == "" {
			return fmt.Errorf("%w: update field name cannot be empty", domain.ErrInvalidQuery)
		}
		if _, dup := spec[field]; dup {
			return fmt.Errorf("%w: field %s updated twice", domain.ErrInvalidQuery, field)
		}
		spec[field] = v
		return nil
	}
	for k, v := range raw {
		if !strings.HasPrefix(k, "$") {
			if err := set(k, v); err != nil {
				return nil, err
			}
			continue
		}
		fields, ok := v.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("%w: %s needs an object", domain.ErrInvalidQuery, k)
		}
		for field, arg := range fields {
			var op interface{}
			switch k {
			case "$set":
				op = arg
			case "$unset":
				op = Unset()
			case "$inc":
				op = Inc(arg)
			case "$mul":
				op = Mul(arg)
			case "$min":
				op = Min(arg)
			case "$max":
				op = Max(arg)
			case "$currentDate":
				op = CurrentDate()
			case "$rename":
				to, ok := arg.(string)
				if !ok || to == "" {
					return nil, fmt.Errorf("%w: $rename target for %s must be a field name", domain.ErrInvalidQuery, field)
				}
				op = Rename(to)
			default:
				return nil, fmt.Errorf("%w: unknown update operator %s", domain.ErrInvalidQuery, k)
			}
			if err := set(field, op); err != nil {
				return nil, err
			}
		}
	}
	return spec, nil
}
