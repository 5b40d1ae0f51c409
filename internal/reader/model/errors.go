package model

import "fmt"

// BindingError reports that a descriptor names a column or table the
// database does not have.
type BindingError struct {
	Table  string
	Column string
	Err    error
}

func (e *BindingError) Error() string {
	if e.Column == "" {
		return fmt.Sprintf("bind %s: %v", e.Table, e.Err)
	}
	return fmt.Sprintf("bind %s.%s: %v", e.Table, e.Column, e.Err)
}

func (e *BindingError) Unwrap() error { return e.Err }
