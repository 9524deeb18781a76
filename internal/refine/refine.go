// Package refine runs a schema through candidate generation, BSR scoring,
// graph building, clustering and merging, and writes the refined schema.
package refine

import (
	"context"
	"fmt"
	"io"
	"slices"
	"text/tabwriter"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/MForofontov/Schema-Refinery/config"
	"github.com/MForofontov/Schema-Refinery/internal/bsr"
	"github.com/MForofontov/Schema-Refinery/internal/candidate"
	"github.com/MForofontov/Schema-Refinery/internal/catalog"
	"github.com/MForofontov/Schema-Refinery/internal/cluster"
	"github.com/MForofontov/Schema-Refinery/internal/graph"
	"github.com/MForofontov/Schema-Refinery/internal/ledger"
	"github.com/MForofontov/Schema-Refinery/internal/schema"
)

// Stats counts what each stage produced.
type Stats struct {
	Records    int
	Candidates int
	Scored     int
	Failed     int
	Edges      int
	Clusters   int
	Merged     int
	LociIn     int
	LociOut    int
}

// Refinement is the in-memory result of refining a catalog.
type Refinement struct {
	Graph           *graph.Graph
	Partition       *cluster.Partition
	Representatives cluster.Representatives
	Refined         *schema.Refined

	// Failures are the pairs that couldn't be scored, ordered by pair
	Failures []*bsr.ScoringFailure

	Stats Stats
}

// Request is a single run over a schema directory.
type Request struct {
	// Schema is the input schema directory
	Schema string

	// Output is the directory the refined schema is written to
	Output string

	// Force replaces an existing output directory
	Force bool
}

// Report of a finished run.
type Report struct {
	// Run is the run's ledger id, empty without a ledger
	Run string

	Refinement
	Duration time.Duration
}

// Refiner resolves redundant loci of schemas.
type Refiner struct {
	conf    *config.Config
	aligner bsr.Aligner
	ledger  *ledger.Ledger
	log     *zap.Logger
}

// Option changes a Refiner.
type Option func(*Refiner)

// WithLedger records runs in l.
func WithLedger(l *ledger.Ledger) Option {
	return func(r *Refiner) { r.ledger = l }
}

// WithLogger sets the logger, a no-op one by default.
func WithLogger(log *zap.Logger) Option {
	return func(r *Refiner) { r.log = log }
}

// New returns a Refiner scoring pairs with aligner.
func New(conf *config.Config, aligner bsr.Aligner, opts ...Option) *Refiner {
	r := &Refiner{conf: conf, aligner: aligner, log: zap.NewNop()}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Run loads the schema at req.Schema, refines it and writes the result to
// req.Output. Nothing is written when any stage fails.
func (r *Refiner) Run(ctx context.Context, req Request) (rep *Report, err error) {
	start := time.Now()
	rep = &Report{}

	if r.ledger != nil {
		if rep.Run, err = r.ledger.Begin(ctx, req.Schema, req.Output, r.conf.JSON()); err != nil {
			return nil, err
		}
		defer func() {
			if lerr := r.finish(rep, err); lerr != nil {
				r.log.Error("failed to record run", zap.String("run", rep.Run), zap.Error(lerr))
			}
		}()
	}

	src := schema.Dir{Path: req.Schema, Mode: schema.Mode(r.conf.Mode)}
	cat, err := catalog.Load(src, catalog.WithMatchReward(float64(r.conf.Blast.MatchReward)))
	if err != nil {
		return rep, fail(StageLoad, err)
	}
	r.log.Info("loaded schema",
		zap.String("schema", req.Schema),
		zap.Int("records", cat.Len()),
		zap.Int("loci", len(cat.Loci())),
	)

	ref, err := r.Refine(ctx, cat)
	if ref != nil {
		rep.Refinement = *ref
	}
	if err != nil {
		return rep, err
	}

	err = schema.Write(req.Output, cat, ref.Refined, schema.WriteOptions{
		Source: src,
		Force:  req.Force,
		Manifest: schema.Manifest{
			Run:       rep.Run,
			Created:   time.Now().UTC(),
			Source:    req.Schema,
			Threshold: r.conf.Threshold,
		},
	})
	if err != nil {
		return rep, fail(StageWrite, err)
	}

	rep.Duration = time.Since(start)
	r.log.Info("refined schema",
		zap.String("output", req.Output),
		zap.Int("loci_in", rep.Stats.LociIn),
		zap.Int("loci_out", rep.Stats.LociOut),
		zap.Duration("duration", rep.Duration),
	)
	return rep, nil
}

// finish records the end of a run in the ledger.
func (r *Refiner) finish(rep *Report, runErr error) error {
	// the run's context may be what ended it
	ctx := context.Background()

	if err := r.ledger.RecordFailures(ctx, rep.Run, rep.Failures); err != nil {
		return err
	}
	s := rep.Stats
	return r.ledger.Finish(ctx, rep.Run, ledger.Counts{
		Records:    s.Records,
		Candidates: s.Candidates,
		Scored:     s.Scored,
		Failed:     s.Failed,
		Edges:      s.Edges,
		Clusters:   s.Clusters,
		Merged:     s.Merged,
	}, string(StageOf(runErr)), runErr)
}

// Refine resolves the redundant loci of cat. The returned Refinement carries
// the stats and failures gathered so far even when err is not nil.
func (r *Refiner) Refine(ctx context.Context, cat *catalog.Catalog) (*Refinement, error) {
	ref := &Refinement{}
	ref.Stats.Records = cat.Len()
	ref.Stats.LociIn = len(cat.Loci())

	gen := candidate.New(cat, candidate.Options{
		SizeRatio:     r.conf.Candidates.SizeRatio,
		KmerSize:      r.conf.Candidates.KmerSize,
		Window:        r.conf.Candidates.Window,
		MinSimilarity: r.conf.Candidates.MinSimilarity,
	})
	ref.Stats.Candidates = gen.Count()
	r.log.Debug("generated candidates", zap.Int("pairs", ref.Stats.Candidates))
	if err := ctx.Err(); err != nil {
		return ref, fail(StageCandidates, err)
	}

	scorer := bsr.NewScorer(cat, r.aligner, bsr.Options{
		Denominator: bsr.Denominator(r.conf.Scoring.Denominator),
		Threshold:   r.conf.Threshold,
		Identity:    r.conf.Scoring.PIdent,
	}, r.log)
	builder := graph.NewBuilder(cat, r.conf.Threshold)

	if err := r.score(ctx, gen, scorer, builder, ref); err != nil {
		return ref, err
	}
	ref.Graph = builder.Graph()
	ref.Stats.Edges = ref.Graph.EdgeCount()

	order, err := cluster.ParseOrder(r.conf.Representative.Order)
	if err != nil {
		return ref, fail(StageCluster, err)
	}
	ref.Partition = cluster.Resolve(ref.Graph, cat)
	ref.Stats.Clusters = ref.Partition.Len()
	if ref.Representatives, err = cluster.Select(ref.Partition, cat, order); err != nil {
		return ref, fail(StageCluster, err)
	}

	if ref.Refined, err = schema.Merge(cat, ref.Partition, ref.Representatives, ref.Graph); err != nil {
		return ref, fail(StageMerge, err)
	}
	ref.Stats.Merged = ref.Refined.Merged()
	ref.Stats.LociOut = len(ref.Refined.Entries)

	return ref, nil
}

// score aligns the candidate pairs in batches, workers batches at a time,
// and feeds the edges to the builder in candidate order. It stops as soon as
// failures are certain to exceed the ceiling.
func (r *Refiner) score(
	ctx context.Context,
	gen *candidate.Generator,
	scorer *bsr.Scorer,
	builder *graph.Builder,
	ref *Refinement,
) error {
	var (
		total   = ref.Stats.Candidates
		ceiling = r.conf.Scoring.MaxFailureRate
		size    = r.conf.Batch.Size
		workers = r.conf.Workers()
		limit   = r.conf.Batch.MaxResidentEdges

		wave    [][]candidate.Pair
		batch   []candidate.Pair
		pending []bsr.Edge
		batches int
	)

	flush := func() error {
		if _, err := builder.AddAll(pending); err != nil {
			return fail(StageGraph, err)
		}
		pending = pending[:0]
		return nil
	}

	// run scores a wave of batches concurrently and applies them in order
	run := func() error {
		if len(wave) == 0 {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return fail(StageScoring, err)
		}

		outs := make([][]bsr.Outcome, len(wave))
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(workers)
		for i, pairs := range wave {
			g.Go(func() error {
				o, err := scorer.ScoreBatch(gctx, pairs)
				outs[i] = o
				return err
			})
		}
		if err := g.Wait(); err != nil {
			return fail(StageScoring, err)
		}

		for _, o := range outs {
			batches++
			for _, out := range o {
				switch {
				case out.Failure != nil:
					ref.Stats.Failed++
					ref.Failures = append(ref.Failures, out.Failure)
				case out.Edge != nil:
					ref.Stats.Scored++
					pending = append(pending, *out.Edge)
				default:
					ref.Stats.Scored++
				}
			}
			if len(pending) >= limit {
				if err := flush(); err != nil {
					return err
				}
			}
		}
		r.log.Debug("scored batches",
			zap.Int("batches", batches),
			zap.Int("scored", ref.Stats.Scored),
			zap.Int("failed", ref.Stats.Failed),
			zap.Int("total", total),
		)

		wave = wave[:0]
		if bsr.Exceeds(ref.Stats.Failed, total, ceiling) {
			return fail(StageScoring, &bsr.AggregateScoringFailureError{
				Failed:  ref.Stats.Failed,
				Total:   total,
				Ceiling: ceiling,
			})
		}
		return nil
	}

	var err error
	for p := range gen.Pairs() {
		batch = append(batch, p)
		if len(batch) < size {
			continue
		}
		wave, batch = append(wave, batch), nil
		if len(wave) == workers {
			if err = run(); err != nil {
				break
			}
		}
	}
	if err == nil && len(batch) > 0 {
		wave = append(wave, batch)
	}
	if err == nil {
		err = run()
	}
	slices.SortFunc(ref.Failures, func(a, b *bsr.ScoringFailure) int {
		return candidate.Compare(a.Pair, b.Pair)
	})
	if err != nil {
		return err
	}
	return flush()
}

// Print writes a summary of the report as a table.
func (rep *Report) Print(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 3, ' ', 0)
	s := rep.Stats

	fmt.Fprintf(tw, "stage\tcount\t\n")
	fmt.Fprintf(tw, "records\t%d\t\n", s.Records)
	fmt.Fprintf(tw, "candidate pairs\t%d\t\n", s.Candidates)
	fmt.Fprintf(tw, "scored pairs\t%d\t\n", s.Scored)
	fmt.Fprintf(tw, "failed pairs\t%d\t\n", s.Failed)
	fmt.Fprintf(tw, "edges\t%d\t\n", s.Edges)
	fmt.Fprintf(tw, "clusters\t%d\t\n", s.Clusters)
	fmt.Fprintf(tw, "merged clusters\t%d\t\n", s.Merged)
	fmt.Fprintf(tw, "loci\t%d -> %d\t\n", s.LociIn, s.LociOut)
	if rep.Run != "" {
		fmt.Fprintf(tw, "run\t%s\t\n", rep.Run)
	}
	return tw.Flush()
}
