package reader

import (
	"errors"
	"fmt"

	"domainreader/internal/reader/filter"
)

var (
	// ErrSchemaNotFound is returned when the registry has no descriptor for
	// the requested map, version and type.
	ErrSchemaNotFound = errors.New("schema not found")
	// ErrFilterNotFound is returned when the descriptor declares no filter
	// with the requested name.
	ErrFilterNotFound = errors.New("filter not found")
)

// ExecutionError wraps a database or driver failure while running a query.
type ExecutionError struct {
	Op    string
	Table string
	Err   error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("execute %s on %s: %v", e.Op, e.Table, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// IsCompilationError reports whether err came from compiling a filter
// template against the request parameters.
func IsCompilationError(err error) bool {
	return errors.Is(err, filter.ErrUnboundParameter) ||
		errors.Is(err, filter.ErrSyntax) ||
		errors.Is(err, filter.ErrUnsupportedValue)
}

// FailurePolicy decides what an execution failure becomes.
type FailurePolicy int

const (
	// FailWithError surfaces execution failures as *ExecutionError.
	FailWithError FailurePolicy = iota
	// FailEmpty logs the failure and answers with an empty result.
	FailEmpty
)

func ParseFailurePolicy(s string) (FailurePolicy, error) {
	switch s {
	case "", "error":
		return FailWithError, nil
	case "empty":
		return FailEmpty, nil
	default:
		return FailWithError, fmt.Errorf("unknown execution failure policy %q", s)
	}
}
