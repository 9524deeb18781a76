// Package candidate proposes the allele pairs worth aligning. It trades a
// bounded loss of recall for not aligning every pair of a schema: pairs have
// to be of similar length and share enough k-mer minimizers.
package candidate

import (
	"iter"
	"slices"

	"github.com/MForofontov/Schema-Refinery/internal/catalog"
)

// Pair is an unordered pair of record identifiers in canonical form, A < B.
type Pair struct {
	A string
	B string
}

// NewPair returns the canonical pair of x and y.
func NewPair(x, y string) Pair {
	if y < x {
		x, y = y, x
	}
	return Pair{A: x, B: y}
}

// String is "A|B".
func (p Pair) String() string {
	return p.A + "|" + p.B
}

// Compare orders pairs by A then B.
func Compare(p, q Pair) int {
	switch {
	case p.A < q.A:
		return -1
	case p.A > q.A:
		return 1
	case p.B < q.B:
		return -1
	case p.B > q.B:
		return 1
	}
	return 0
}

// Options are the pre-filter settings.
type Options struct {
	// SizeRatio is the minimum shorter/longer length ratio of a pair
	SizeRatio float64

	// KmerSize of the minimizer sketch, 0 disables the k-mer filter. At most 31
	KmerSize int

	// Window is the number of consecutive k-mers a minimizer is picked from
	Window int

	// MinSimilarity is the minimum fraction of the smaller sketch that has to
	// be shared with the other sequence's sketch
	MinSimilarity float64
}

// Generator emits candidate pairs of a catalog.
type Generator struct {
	opts    Options
	records []catalog.Record // identifier order

	sketches [][]uint64         // sorted, distinct minimizers per record
	index    map[uint64][]int32 // minimizer to ascending record positions
	bare     []int32            // records too short to have a minimizer
}

// New indexes the catalog's records for pair generation.
func New(cat *catalog.Catalog, opts Options) *Generator {
	g := &Generator{opts: opts}
	for r := range cat.All() {
		g.records = append(g.records, r)
	}

	if opts.KmerSize <= 0 {
		return g
	}
	if g.opts.Window < 1 {
		g.opts.Window = 1
	}

	g.sketches = make([][]uint64, len(g.records))
	g.index = make(map[uint64][]int32)
	for i, r := range g.records {
		s := sketch(r.Seq, g.opts.KmerSize, g.opts.Window)
		g.sketches[i] = s
		if len(s) == 0 {
			g.bare = append(g.bare, int32(i))
		}
		for _, m := range s {
			g.index[m] = append(g.index[m], int32(i))
		}
	}

	return g
}

// Pairs iterates over the candidate pairs in canonical order. Each call
// starts a fresh, finite pass.
func (g *Generator) Pairs() iter.Seq[Pair] {
	return func(yield func(Pair) bool) {
		for i := range g.records {
			for _, j := range g.partners(i) {
				if !yield(Pair{A: g.records[i].ID, B: g.records[j].ID}) {
					return
				}
			}
		}
	}
}

// Count walks Pairs once and returns its length.
func (g *Generator) Count() int {
	n := 0
	for range g.Pairs() {
		n++
	}
	return n
}

// partners returns the ascending positions j > i that pair with record i.
func (g *Generator) partners(i int) []int {
	var js []int

	// without a sketch to compare, fall back on the length band alone
	if g.index == nil || len(g.sketches[i]) == 0 {
		for j := i + 1; j < len(g.records); j++ {
			if g.related(i, j) {
				js = append(js, j)
			}
		}
		return js
	}

	shared := make(map[int]int)
	for _, m := range g.sketches[i] {
		for _, j := range g.index[m] {
			if int(j) > i {
				shared[int(j)]++
			}
		}
	}
	for j, n := range shared {
		smaller := min(len(g.sketches[i]), len(g.sketches[j]))
		if float64(n)/float64(smaller) < g.opts.MinSimilarity {
			continue
		}
		if g.related(i, j) {
			js = append(js, j)
		}
	}
	for _, j := range g.bare {
		if int(j) > i && g.related(i, int(j)) {
			js = append(js, int(j))
		}
	}

	slices.Sort(js)
	return js
}

// related checks the filters shared by both modes: alleles of one locus are
// never paired and lengths have to be within the size ratio.
func (g *Generator) related(i, j int) bool {
	a, b := g.records[i], g.records[j]
	if a.Locus == b.Locus {
		return false
	}
	short, long := min(a.Length, b.Length), max(a.Length, b.Length)
	return float64(short)/float64(long) >= g.opts.SizeRatio
}
