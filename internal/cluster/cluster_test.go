package cluster

import (
	"fmt"
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MForofontov/Schema-Refinery/internal/bsr"
	"github.com/MForofontov/Schema-Refinery/internal/catalog"
	"github.com/MForofontov/Schema-Refinery/internal/graph"
)

func load(t *testing.T, raws catalog.Slice) *catalog.Catalog {
	t.Helper()
	cat, err := catalog.Load(raws)
	require.NoError(t, err)
	return cat
}

func members(p *Partition) [][]string {
	var ms [][]string
	for _, c := range p.Clusters {
		ms = append(ms, c.Members)
	}
	return ms
}

func TestResolve(t *testing.T) {
	// A~B at 0.95, B~C at 0.5, threshold 0.9
	cat := load(t, catalog.Slice{
		{ID: "A_1", Locus: "A", Seq: strings.Repeat("A", 100)},
		{ID: "B_1", Locus: "B", Seq: strings.Repeat("A", 90)},
		{ID: "C_1", Locus: "C", Seq: strings.Repeat("A", 95)},
	})
	g, err := graph.FromEdges(cat, []bsr.Edge{
		{A: "A_1", B: "B_1", Score: 0.95},
		{A: "B_1", B: "C_1", Score: 0.5},
	}, 0.9)
	require.NoError(t, err)

	p := Resolve(g, cat)
	assert.Equal(t, [][]string{{"A_1", "B_1"}, {"C_1"}}, members(p))

	c, ok := p.Of("B_1")
	require.True(t, ok)
	assert.Equal(t, 0, c)

	reps, err := Select(p, cat, DefaultOrder)
	require.NoError(t, err)
	assert.Equal(t, Representatives{0: "A_1", 1: "C_1"}, reps, "longer sequence wins")
}

func TestResolve_noEdges(t *testing.T) {
	cat := load(t, catalog.Slice{
		{ID: "x_1", Locus: "x", Seq: "ACGT"},
		{ID: "x_2", Locus: "x", Seq: "ACGTT"},
		{ID: "y_1", Locus: "y", Seq: "ACGT"},
	})
	g, err := graph.FromEdges(cat, nil, 0.6)
	require.NoError(t, err)

	// alleles of a locus stay together, every other record is a singleton
	p := Resolve(g, cat)
	assert.Equal(t, [][]string{{"x_1", "x_2"}, {"y_1"}}, members(p))
}

func TestResolve_partition(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	var raws catalog.Slice
	for i := range 60 {
		locus := fmt.Sprintf("l%02d", i/2)
		raws = append(raws, catalog.Raw{ID: fmt.Sprintf("%s_%d", locus, i%2+1), Locus: locus, Seq: strings.Repeat("A", 50+rng.Intn(50))})
	}
	cat := load(t, raws)
	ids := cat.IDs()

	var edges []bsr.Edge
	for range 80 {
		a, b := ids[rng.Intn(len(ids))], ids[rng.Intn(len(ids))]
		if a == b {
			continue
		}
		edges = append(edges, bsr.Edge{A: min(a, b), B: max(a, b), Score: float64(rng.Intn(100)) / 100})
	}

	prev := 0
	for _, th := range []float64{0, 0.3, 0.6, 0.9, 1} {
		g, err := graph.FromEdges(cat, edges, th)
		require.NoError(t, err)
		p := Resolve(g, cat)

		// every record in exactly one cluster
		seen := map[string]int{}
		for _, c := range p.Clusters {
			for _, m := range c.Members {
				seen[m]++
			}
		}
		assert.Len(t, seen, len(ids))
		for id, n := range seen {
			assert.Equal(t, 1, n, id)
		}

		// raising the threshold never merges more
		assert.GreaterOrEqual(t, p.Len(), prev)
		prev = p.Len()

		// same input, same output
		assert.Equal(t, members(p), members(Resolve(g, cat)))
	}
}

func TestSelect_order(t *testing.T) {
	cat := load(t, catalog.Slice{
		{ID: "b_3", Locus: "b", Seq: strings.Repeat("A", 100)},
		{ID: "b_1", Locus: "b", Seq: strings.Repeat("A", 100)},
		{ID: "a", Locus: "a", Seq: strings.Repeat("A", 100)},
		{ID: "c_2", Locus: "c", Seq: strings.Repeat("A", 90)},
	})
	g, err := graph.FromEdges(cat, []bsr.Edge{
		{A: "a", B: "b_1", Score: 1},
		{A: "b_3", B: "c_2", Score: 1},
	}, 0.6)
	require.NoError(t, err)
	p := Resolve(g, cat)
	require.Equal(t, 1, p.Len())

	tests := []struct {
		name  string
		order []string
		want  string
	}{
		{"default", nil, "b_1"},
		{"id only", []string{"id"}, "a"},
		{"allele index first", []string{"allele-index"}, "b_1"},
		{"length then id", []string{"length", "id"}, "a"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			order, err := ParseOrder(tt.order)
			require.NoError(t, err)

			reps, err := Select(p, cat, order)
			require.NoError(t, err)
			assert.Equal(t, tt.want, reps[0])

			// idempotent
			again, err := Select(p, cat, order)
			require.NoError(t, err)
			assert.Equal(t, reps, again)
		})
	}
}

func TestParseOrder(t *testing.T) {
	order, err := ParseOrder([]string{"Length"})
	require.NoError(t, err)
	assert.Equal(t, []Key{Length, ID}, order)

	_, err = ParseOrder([]string{"weight"})
	assert.Error(t, err)

	_, err = ParseOrder([]string{"id", "id"})
	assert.Error(t, err)
}
