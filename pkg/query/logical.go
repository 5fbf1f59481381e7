package query

import "github.com/adfharrison1/go-okdb/pkg/domain"

func (o Operator) merge(conds []interface{}, mode Mode) Operator {
	return o.withError(conditionErr(conds)).withFilter(MergeConditions(conds, mode))
}

// Not negates cond. A raw value is negated as an exact match.
func (o Operator) Not(cond interface{}) Operator {
	p := Compile(cond)
	return o.withError(conditionErr(cond)).withFilter(func(d interface{}, k string, owner domain.Document) bool {
		return !p(d, k, owner)
	})
}

// And matches when every condition matches.
func (o Operator) And(conds ...interface{}) Operator {
	return o.merge(conds, ModeAnd)
}

// Or matches when any condition matches.
func (o Operator) Or(conds ...interface{}) Operator {
	return o.merge(conds, ModeOr)
}

// Nor matches when no condition matches.
func (o Operator) Nor(conds ...interface{}) Operator {
	return o.merge(conds, ModeNor)
}

// Not matches when cond does not.
func Not(cond interface{}) Operator { return Operator{}.Not(cond) }

// And matches when every condition matches.
func And(conds ...interface{}) Operator { return Operator{}.And(conds...) }

// Or matches when any condition matches.
func Or(conds ...interface{}) Operator { return Operator{}.Or(conds...) }

// Nor matches when no condition matches.
func Nor(conds ...interface{}) Operator { return Operator{}.Nor(conds...) }
