// Package bsr scores candidate pairs with the BLAST Score Ratio: the raw score
// of aligning two alleles normalized by the score of aligning an allele
// against itself.
package bsr

import (
	"context"
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/MForofontov/Schema-Refinery/internal/candidate"
	"github.com/MForofontov/Schema-Refinery/internal/catalog"
)

// Task is a single pair handed to an Aligner. A.ID < B.ID.
type Task struct {
	A catalog.Record
	B catalog.Record
}

// Pair of the task.
func (t Task) Pair() candidate.Pair {
	return candidate.Pair{A: t.A.ID, B: t.B.ID}
}

// Alignment is the aligner's summary of a pair.
type Alignment struct {
	// Query is the ID of the sequence that was the query of the best HSP
	Query string

	// Score is the raw score of the best HSP
	Score float64

	// Length, Mismatches and Gaps of the best HSP
	Length     int
	Mismatches int
	Gaps       int

	// Identity is the percent identity of the best HSP
	Identity float64

	// QueryCoverage and SubjectCoverage are the fractions of each sequence
	// covered by any HSP in the best HSP's orientation
	QueryCoverage   float64
	SubjectCoverage float64

	// IdentCoverage is the highest coverage of either sequence counting only
	// HSPs at or above the identity cutoff
	IdentCoverage float64
}

// Result is the aligner's answer for one Task. A nil Alignment and nil Err
// means the aligner found nothing: the pair is scored, and unrelated.
type Result struct {
	Task      Task
	Alignment *Alignment
	Err       error
}

// Aligner aligns batches of pairs. An error for the whole call fails every
// task in it.
type Aligner interface {
	Align(ctx context.Context, tasks []Task) ([]Result, error)
}

// Denominator picks the self-score a raw score is normalized by.
type Denominator string

const (
	// MaxSelf divides by the larger self-score of the two. It's symmetric
	MaxSelf Denominator = "max-self"

	// Mean divides by the mean of both self-scores. It's symmetric
	Mean Denominator = "mean"

	// QuerySelf divides by the self-score of the HSP's query
	QuerySelf Denominator = "query"
)

// Edge is a scored pair.
type Edge struct {
	A string
	B string

	// Score is the BLAST Score Ratio, within [0, 1]
	Score float64

	// Raw alignment score
	Raw float64

	AlignmentLength int
	Mismatches      int
	Gaps            int
	Identity        float64

	// Coverage is the lower coverage of the two sequences
	Coverage float64

	Class Class
}

// Pair of the edge.
func (e Edge) Pair() candidate.Pair {
	return candidate.Pair{A: e.A, B: e.B}
}

// Outcome of scoring a single pair. Exactly one of Edge and Failure is set,
// or neither when the pair didn't align.
type Outcome struct {
	Pair    candidate.Pair
	Edge    *Edge
	Failure *ScoringFailure
}

// Options of a Scorer.
type Options struct {
	Denominator Denominator

	// Threshold is the BSR that separates class 1a from 1c
	Threshold float64

	// Identity is the percent identity cutoff used for classification
	Identity float64
}

// Scorer turns aligner output into edges.
type Scorer struct {
	cat     *catalog.Catalog
	aligner Aligner
	opts    Options
	log     *zap.Logger
}

// NewScorer returns a Scorer of cat's records.
func NewScorer(cat *catalog.Catalog, aligner Aligner, opts Options, log *zap.Logger) *Scorer {
	if opts.Denominator == "" {
		opts.Denominator = MaxSelf
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Scorer{cat: cat, aligner: aligner, opts: opts, log: log}
}

// Score a single pair. A nil edge and nil error means the pair didn't align.
func (s *Scorer) Score(ctx context.Context, p candidate.Pair) (*Edge, error) {
	outs, err := s.ScoreBatch(ctx, []candidate.Pair{p})
	if err != nil {
		return nil, err
	}
	if f := outs[0].Failure; f != nil {
		return nil, f
	}
	return outs[0].Edge, nil
}

// ScoreBatch scores pairs with a single aligner call. The outcomes are in
// the order of pairs. Failures are per pair; the only error returned is the
// context's.
func (s *Scorer) ScoreBatch(ctx context.Context, pairs []candidate.Pair) ([]Outcome, error) {
	outs := make([]Outcome, len(pairs))
	pos := make(map[candidate.Pair]int, len(pairs))
	tasks := make([]Task, 0, len(pairs))

	for i, p := range pairs {
		p = candidate.NewPair(p.A, p.B)
		outs[i].Pair = p

		if _, dup := pos[p]; dup {
			outs[i].Failure = &ScoringFailure{Pair: p, Reason: "pair repeated in batch"}
			continue
		}

		a, okA := s.cat.Lookup(p.A)
		b, okB := s.cat.Lookup(p.B)
		if !okA || !okB {
			outs[i].Failure = &ScoringFailure{Pair: p, Reason: "record not in catalog"}
			continue
		}
		pos[p] = i
		tasks = append(tasks, Task{A: a, B: b})
	}

	if len(tasks) == 0 {
		return outs, nil
	}

	results, err := s.aligner.Align(ctx, tasks)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		for _, t := range tasks {
			i := pos[t.Pair()]
			outs[i].Failure = &ScoringFailure{Pair: t.Pair(), Reason: "aligner failed", Err: err}
		}
		return outs, nil
	}

	answered := make(map[int]bool, len(results))
	for _, r := range results {
		p := candidate.NewPair(r.Task.A.ID, r.Task.B.ID)
		i, ok := pos[p]
		if !ok || answered[i] {
			continue
		}
		answered[i] = true

		switch {
		case r.Err != nil:
			outs[i].Failure = &ScoringFailure{Pair: p, Reason: "alignment failed", Err: r.Err}
		case r.Alignment != nil:
			edge, f := s.edge(p, r.Alignment)
			outs[i].Edge, outs[i].Failure = edge, f
		}
	}

	for _, t := range tasks {
		if i := pos[t.Pair()]; !answered[i] {
			outs[i].Failure = &ScoringFailure{Pair: t.Pair(), Reason: "no result from aligner"}
		}
	}

	for _, o := range outs {
		if o.Failure != nil {
			s.log.Warn("failed to score pair", zap.String("a", o.Pair.A), zap.String("b", o.Pair.B), zap.Error(o.Failure))
		}
	}

	return outs, nil
}

// edge computes the BSR of an alignment.
func (s *Scorer) edge(p candidate.Pair, aln *Alignment) (*Edge, *ScoringFailure) {
	if aln.Length <= 0 || aln.Score <= 0 {
		return nil, &ScoringFailure{
			Pair:   p,
			Reason: fmt.Sprintf("degenerate alignment (length=%d, score=%g)", aln.Length, aln.Score),
		}
	}

	a, _ := s.cat.Lookup(p.A)
	b, _ := s.cat.Lookup(p.B)

	var denom float64
	switch s.opts.Denominator {
	case Mean:
		denom = (a.SelfScore + b.SelfScore) / 2
	case QuerySelf:
		denom = a.SelfScore
		if aln.Query == b.ID {
			denom = b.SelfScore
		}
	default:
		denom = max(a.SelfScore, b.SelfScore)
	}
	if denom <= 0 {
		return nil, &ScoringFailure{Pair: p, Reason: "non-positive self-score"}
	}

	e := &Edge{
		A:               p.A,
		B:               p.B,
		Score:           Ratio(aln.Score, denom),
		Raw:             aln.Score,
		AlignmentLength: aln.Length,
		Mismatches:      aln.Mismatches,
		Gaps:            aln.Gaps,
		Identity:        aln.Identity,
		Coverage:        min(aln.QueryCoverage, aln.SubjectCoverage),
	}
	e.Class = Classify(aln, e.Score, s.opts.Threshold, s.opts.Identity)
	return e, nil
}

// Ratio is raw/self clamped to 1 and rounded to 4 decimals.
func Ratio(raw, self float64) float64 {
	r := min(raw/self, 1)
	return math.Round(r*1e4) / 1e4
}
