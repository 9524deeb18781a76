package catalog

import (
	"errors"
	"fmt"
)

// MalformedInputError is returned by Load when a record can't be accepted.
type MalformedInputError struct {
	// ID of the offending record, empty when the identifier itself is missing
	ID string

	// Locus the record came from
	Locus string

	// Reason is a human-readable description of the problem
	Reason string
}

// Error implements the error interface.
func (e *MalformedInputError) Error() string {
	switch {
	case e.ID != "" && e.Locus != "":
		return fmt.Sprintf("malformed input: %s (record=%s, locus=%s)", e.Reason, e.ID, e.Locus)
	case e.ID != "":
		return fmt.Sprintf("malformed input: %s (record=%s)", e.Reason, e.ID)
	case e.Locus != "":
		return fmt.Sprintf("malformed input: %s (locus=%s)", e.Reason, e.Locus)
	}
	return "malformed input: " + e.Reason
}

// IsMalformedInput returns true if err is, or wraps, a MalformedInputError.
func IsMalformedInput(err error) bool {
	var me *MalformedInputError
	return errors.As(err, &me)
}
