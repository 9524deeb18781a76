// Package blast aligns candidate pairs with NCBI blastn.
package blast

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"

	"go.uber.org/zap"

	"github.com/MForofontov/Schema-Refinery/internal/bsr"
	"github.com/MForofontov/Schema-Refinery/internal/catalog"
	"github.com/MForofontov/Schema-Refinery/internal/fastaio"
)

// outfmt is the tabular format blastn writes and ParseTabular reads
const outfmt = "6 qseqid sseqid qlen slen qstart qend sstart send length score gaps pident mismatch"

// Options for running blastn.
type Options struct {
	// Path to the blastn executable
	Path string

	// Task is blastn's -task, ex "megablast" or "blastn"
	Task string

	// EValue cutoff
	EValue float64

	// Identity is the percent identity an HSP needs to count towards
	// Alignment.IdentCoverage
	Identity float64

	// WorkDir is where query and subject files are written, the system
	// temp dir when empty
	WorkDir string
}

// Blastn is a bsr.Aligner that shells out to blastn once per batch.
type Blastn struct {
	opts Options
	log  *zap.Logger
}

// New returns a blastn aligner.
func New(opts Options, log *zap.Logger) *Blastn {
	if opts.Path == "" {
		opts.Path = "blastn"
	}
	if opts.Task == "" {
		opts.Task = "megablast"
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Blastn{opts: opts, log: log}
}

// blastExec is a single blastn run over the files of a batch.
type blastExec struct {
	// the directory holding this run's files
	dir string

	// path to the FASTA of query sequences
	query string

	// path to the FASTA of subject sequences
	subject string

	// path to the tabular output
	out string
}

// Align the tasks against one another. The A side of every task is the
// query, the B side the subject.
func (b *Blastn) Align(ctx context.Context, tasks []bsr.Task) ([]bsr.Result, error) {
	if len(tasks) == 0 {
		return nil, nil
	}

	dir, err := os.MkdirTemp(b.opts.WorkDir, "blastn-")
	if err != nil {
		return nil, fmt.Errorf("failed to create a BLAST dir: %w", err)
	}
	defer os.RemoveAll(dir)

	e := &blastExec{
		dir:     dir,
		query:   filepath.Join(dir, "query.fasta"),
		subject: filepath.Join(dir, "subject.fasta"),
		out:     filepath.Join(dir, "output.tsv"),
	}

	if err := e.input(tasks); err != nil {
		return nil, fmt.Errorf("failed at creating BLAST input files in %s: %w", dir, err)
	}

	if err := b.run(ctx, e); err != nil {
		return nil, err
	}

	f, err := os.Open(e.out)
	if err != nil {
		return nil, fmt.Errorf("failed to open BLAST output: %w", err)
	}
	defer f.Close()

	hits, err := ParseTabular(f)
	if err != nil {
		return nil, fmt.Errorf("failed to parse BLAST output: %w", err)
	}
	b.log.Debug("blastn finished", zap.Int("tasks", len(tasks)), zap.Int("hits", len(hits)))

	byPair := group(hits)
	results := make([]bsr.Result, len(tasks))
	for i, t := range tasks {
		results[i] = bsr.Result{Task: t, Alignment: summarize(byPair[t.Pair()], b.opts.Identity)}
	}
	return results, nil
}

// input writes the distinct A sequences as queries and B sequences as
// subjects.
func (e *blastExec) input(tasks []bsr.Task) error {
	var queries, subjects []fastaio.Entry
	seenQ, seenS := map[string]bool{}, map[string]bool{}

	add := func(entries []fastaio.Entry, seen map[string]bool, r catalog.Record) []fastaio.Entry {
		if seen[r.ID] {
			return entries
		}
		seen[r.ID] = true
		return append(entries, fastaio.Entry{ID: r.ID, Seq: r.Seq})
	}
	for _, t := range tasks {
		queries = add(queries, seenQ, t.A)
		subjects = add(subjects, seenS, t.B)
	}

	if err := fastaio.WriteFile(e.query, queries); err != nil {
		return err
	}
	return fastaio.WriteFile(e.subject, subjects)
}

// run calls the external blastn binary
func (b *Blastn) run(ctx context.Context, e *blastExec) error {
	// https://www.ncbi.nlm.nih.gov/books/NBK279684/
	// -num_threads can't be combined with -subject, parallelism comes from
	// running batches side by side
	flags := []string{
		"-task", b.opts.Task,
		"-query", e.query,
		"-subject", e.subject,
		"-out", e.out,
		"-outfmt", outfmt,
	}
	if b.opts.EValue > 0 {
		flags = append(flags, "-evalue", strconv.FormatFloat(b.opts.EValue, 'g', -1, 64))
	}

	cmd := exec.CommandContext(ctx, b.opts.Path, flags...)
	cmd.Dir = e.dir

	// execute BLAST and wait on it to finish
	if output, err := cmd.CombinedOutput(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("failed to execute %s: %w: %s", b.opts.Path, err, string(output))
	}
	return nil
}
