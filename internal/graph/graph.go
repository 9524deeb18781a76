// Package graph keeps the similarity edges at or above the redundancy
// threshold. Vertices are every record of the catalog.
package graph

import (
	"slices"

	"github.com/MForofontov/Schema-Refinery/internal/bsr"
	"github.com/MForofontov/Schema-Refinery/internal/candidate"
)

// Lookup is the part of the catalog the builder checks endpoints against.
type Lookup interface {
	Contains(id string) bool
	IDs() []string
}

// Graph is an undirected graph without self-loops and with at most one edge
// per pair of vertices.
type Graph struct {
	ids   []string
	edges map[candidate.Pair]bsr.Edge
	adj   map[string][]string
}

// Builder inserts edges into a graph one at a time. It isn't safe for
// concurrent use.
type Builder struct {
	cat       Lookup
	threshold float64
	g         *Graph
}

// NewBuilder returns a builder over the records of cat.
func NewBuilder(cat Lookup, threshold float64) *Builder {
	return &Builder{
		cat:       cat,
		threshold: threshold,
		g: &Graph{
			ids:   cat.IDs(),
			edges: make(map[candidate.Pair]bsr.Edge),
			adj:   make(map[string][]string),
		},
	}
}

// Threshold is the minimum score of a kept edge.
func (b *Builder) Threshold() float64 {
	return b.threshold
}

// Add inserts e if it scores at or above the threshold and reports whether
// it added a new edge. A pair seen twice keeps its highest score.
func (b *Builder) Add(e bsr.Edge) (bool, error) {
	if e.A == e.B {
		return false, &GraphConsistencyError{A: e.A, B: e.B, Reason: "self-loop"}
	}
	for _, id := range []string{e.A, e.B} {
		if !b.cat.Contains(id) {
			return false, &GraphConsistencyError{A: e.A, B: e.B, Reason: "unknown record " + id}
		}
	}

	if e.Score < b.threshold {
		return false, nil
	}

	p := candidate.NewPair(e.A, e.B)
	e.A, e.B = p.A, p.B
	if old, ok := b.g.edges[p]; ok {
		if e.Score > old.Score {
			b.g.edges[p] = e
		}
		return false, nil
	}

	b.g.edges[p] = e
	b.g.adj[p.A] = append(b.g.adj[p.A], p.B)
	b.g.adj[p.B] = append(b.g.adj[p.B], p.A)
	return true, nil
}

// AddAll inserts edges, stopping at the first inconsistent one. It returns
// the number of new edges.
func (b *Builder) AddAll(edges []bsr.Edge) (int, error) {
	kept := 0
	for _, e := range edges {
		ok, err := b.Add(e)
		if err != nil {
			return kept, err
		}
		if ok {
			kept++
		}
	}
	return kept, nil
}

// Graph returns the graph built so far.
func (b *Builder) Graph() *Graph {
	return b.g
}

// FromEdges rebuilds a graph from raw scored edges at a threshold.
func FromEdges(cat Lookup, edges []bsr.Edge, threshold float64) (*Graph, error) {
	b := NewBuilder(cat, threshold)
	if _, err := b.AddAll(edges); err != nil {
		return nil, err
	}
	return b.Graph(), nil
}

// Vertices returns every vertex in sorted order.
func (g *Graph) Vertices() []string {
	return slices.Clone(g.ids)
}

// Len is the number of vertices.
func (g *Graph) Len() int {
	return len(g.ids)
}

// EdgeCount is the number of edges.
func (g *Graph) EdgeCount() int {
	return len(g.edges)
}

// Neighbors returns the sorted neighbors of id.
func (g *Graph) Neighbors(id string) []string {
	n := slices.Clone(g.adj[id])
	slices.Sort(n)
	return n
}

// Edge returns the edge between x and y.
func (g *Graph) Edge(x, y string) (bsr.Edge, bool) {
	e, ok := g.edges[candidate.NewPair(x, y)]
	return e, ok
}

// Edges returns every edge ordered by pair.
func (g *Graph) Edges() []bsr.Edge {
	edges := make([]bsr.Edge, 0, len(g.edges))
	for _, e := range g.edges {
		edges = append(edges, e)
	}
	slices.SortFunc(edges, func(x, y bsr.Edge) int {
		return candidate.Compare(x.Pair(), y.Pair())
	})
	return edges
}
