package bsr

import (
	"errors"
	"fmt"

	"github.com/MForofontov/Schema-Refinery/internal/candidate"
)

// ScoringFailure is a pair that couldn't be scored. It's recoverable: the
// pair is counted and skipped.
type ScoringFailure struct {
	Pair   candidate.Pair
	Reason string
	Err    error
}

// Error implements the error interface.
func (f *ScoringFailure) Error() string {
	if f.Err != nil {
		return fmt.Sprintf("failed to score %s: %s: %v", f.Pair, f.Reason, f.Err)
	}
	return fmt.Sprintf("failed to score %s: %s", f.Pair, f.Reason)
}

// Unwrap returns the underlying aligner error, if any.
func (f *ScoringFailure) Unwrap() error {
	return f.Err
}

// AggregateScoringFailureError is returned when too many pairs failed to
// score for the graph to be trusted.
type AggregateScoringFailureError struct {
	Failed  int
	Total   int
	Ceiling float64
}

// Error implements the error interface.
func (e *AggregateScoringFailureError) Error() string {
	return fmt.Sprintf(
		"%d of %d candidate pairs failed to score, above the %.2f%% ceiling",
		e.Failed, e.Total, e.Ceiling*100,
	)
}

// IsAggregateFailure returns true if err is, or wraps, an
// AggregateScoringFailureError.
func IsAggregateFailure(err error) bool {
	var ae *AggregateScoringFailureError
	return errors.As(err, &ae)
}

// Exceeds reports whether failed out of total is above the ceiling rate.
func Exceeds(failed, total int, ceiling float64) bool {
	if total == 0 {
		return false
	}
	return float64(failed) > ceiling*float64(total)
}
