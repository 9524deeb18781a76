package graph

import (
	"errors"
	"fmt"
)

// GraphConsistencyError is an edge that can't be part of the graph.
type GraphConsistencyError struct {
	A      string
	B      string
	Reason string
}

// Error implements the error interface.
func (e *GraphConsistencyError) Error() string {
	return fmt.Sprintf("inconsistent edge %s|%s: %s", e.A, e.B, e.Reason)
}

// IsGraphConsistency returns true if err is, or wraps, a GraphConsistencyError.
func IsGraphConsistency(err error) bool {
	var ge *GraphConsistencyError
	return errors.As(err, &ge)
}
