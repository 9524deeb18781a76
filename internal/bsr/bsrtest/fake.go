// Package bsrtest has an in-memory Aligner for tests.
package bsrtest

import (
	"context"
	"errors"
	"sync"

	"github.com/MForofontov/Schema-Refinery/internal/bsr"
	"github.com/MForofontov/Schema-Refinery/internal/candidate"
)

// ErrInjected is the error of failed pairs and batches.
var ErrInjected = errors.New("injected failure")

// Aligner returns canned raw scores. Pairs without a score don't align.
type Aligner struct {
	// Scores are raw scores by pair
	Scores map[candidate.Pair]float64

	// Fail lists pairs that fail individually
	Fail map[candidate.Pair]bool

	// FailBatch fails any whole call containing one of these pairs
	FailBatch map[candidate.Pair]bool

	mu    sync.Mutex
	calls int
}

// Calls is the number of Align calls so far.
func (a *Aligner) Calls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls
}

// Align implements bsr.Aligner. Alignments are full length at 100% identity
// so scores alone drive the outcome.
func (a *Aligner) Align(ctx context.Context, tasks []bsr.Task) ([]bsr.Result, error) {
	a.mu.Lock()
	a.calls++
	a.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	for _, t := range tasks {
		if a.FailBatch[t.Pair()] {
			return nil, ErrInjected
		}
	}

	results := make([]bsr.Result, 0, len(tasks))
	for _, t := range tasks {
		r := bsr.Result{Task: t}
		switch score, ok := a.Scores[t.Pair()]; {
		case a.Fail[t.Pair()]:
			r.Err = ErrInjected
		case ok:
			r.Alignment = &bsr.Alignment{
				Query:           t.A.ID,
				Score:           score,
				Length:          min(t.A.Length, t.B.Length),
				Identity:        100,
				QueryCoverage:   1,
				SubjectCoverage: 1,
				IdentCoverage:   1,
			}
		}
		results = append(results, r)
	}
	return results, nil
}
