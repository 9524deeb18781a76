package schema

import "errors"

// SchemaIntegrityError is a refined schema that doesn't account for every
// record and locus exactly once.
type SchemaIntegrityError struct {
	Reason string
}

// Error implements the error interface.
func (e *SchemaIntegrityError) Error() string {
	return "schema integrity: " + e.Reason
}

// IsSchemaIntegrity returns true if err is, or wraps, a SchemaIntegrityError.
func IsSchemaIntegrity(err error) bool {
	var se *SchemaIntegrityError
	return errors.As(err, &se)
}
