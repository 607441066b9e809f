package models

// FilterOperator names a comparison applied by a bulk operation filter.
type FilterOperator string

const (
	FilterEquals      FilterOperator = "equals"
	FilterNotEquals   FilterOperator = "not_equals"
	FilterContains    FilterOperator = "contains"
	FilterGreaterThan FilterOperator = "greater_than"
	FilterLessThan    FilterOperator = "less_than"
	FilterInList      FilterOperator = "in_list"
)

// FilterOperators lists every supported operator in display order.
var FilterOperators = []FilterOperator{
	FilterEquals,
	FilterNotEquals,
	FilterContains,
	FilterGreaterThan,
	FilterLessThan,
	FilterInList,
}

// Valid reports whether the operator is known.
func (o FilterOperator) Valid() bool {
	for _, op := range FilterOperators {
		if op == o {
			return true
		}
	}
	return false
}

// FilterCondition is one "field operator value" clause. Conditions are combined with AND.
type FilterCondition struct {
	Field    string         `json:"field" validate:"required"`
	Operator FilterOperator `json:"operator" validate:"required"`
	Value    string         `json:"value"`
}
