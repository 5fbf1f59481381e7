package domain

import "fmt"

// SortField orders results by one field.
type SortField struct {
	Field string `json:"field"`
	Desc  bool   `json:"desc,omitempty"`
}

// FindOptions controls ordering and pagination of a find request.
type FindOptions struct {
	Sort  []SortField `json:"sort,omitempty"`
	Skip  int         `json:"skip,omitempty"`
	Limit int         `json:"limit,omitempty"` // <= 0 means unbounded
}

// DefaultFindOptions returns options that match everything, unsorted.
func DefaultFindOptions() *FindOptions {
	return &FindOptions{}
}

// Validate validates find options
func (o *FindOptions) Validate() error {
	if o.Skip < 0 {
		return fmt.Errorf("%w: skip cannot be negative", ErrConfiguration)
	}
	seen := make(map[string]bool, len(o.Sort))
	for _, s := range o.Sort {
		if s.Field == "" {
			return fmt.Errorf("%w: sort field cannot be empty", ErrConfiguration)
		}
		if seen[s.Field] {
			return fmt.Errorf("%w: sort field %s given twice", ErrConfiguration, s.Field)
		}
		seen[s.Field] = true
	}
	return nil
}

// Bounded reports whether a limit applies.
func (o *FindOptions) Bounded() bool {
	return o.Limit > 0
}

// Window returns the [start, end) slice bounds for n results.
func (o *FindOptions) Window(n int) (int, int) {
	start := o.Skip
	if start > n {
		start = n
	}
	end := n
	if o.Bounded() && start+o.Limit < end {
		end = start + o.Limit
	}
	return start, end
}
