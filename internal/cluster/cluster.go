// Package cluster partitions the redundancy graph into groups of records
// that will be merged into one locus, and picks each group's representative.
//
// Clusters are connected components: single linkage at the graph's
// threshold. Alleles of a locus are always in the same cluster.
package cluster

import (
	"cmp"
	"slices"

	"github.com/MForofontov/Schema-Refinery/internal/bsr"
	"github.com/MForofontov/Schema-Refinery/internal/catalog"
	"github.com/MForofontov/Schema-Refinery/internal/graph"
)

// Cluster is a group of redundant records.
type Cluster struct {
	// ID is the cluster's position in its Partition
	ID int

	// Members are the sorted record identifiers
	Members []string
}

// Partition assigns every record of a catalog to exactly one cluster.
type Partition struct {
	// Clusters ordered by their first member
	Clusters []Cluster

	of map[string]int
}

// Of returns the cluster id holding the record.
func (p *Partition) Of(id string) (int, bool) {
	c, ok := p.of[id]
	return c, ok
}

// Len is the number of clusters.
func (p *Partition) Len() int {
	return len(p.Clusters)
}

// Resolve partitions g's vertices. Alleles of the same locus are joined
// first, then edges from the highest score down, ties by pair.
func Resolve(g *graph.Graph, cat *catalog.Catalog) *Partition {
	ids := g.Vertices()
	uf := newUnionFind(ids)

	for _, locus := range cat.Loci() {
		members := cat.Members(locus)
		for _, m := range members[1:] {
			uf.union(members[0], m)
		}
	}

	edges := g.Edges()
	slices.SortStableFunc(edges, func(x, y bsr.Edge) int {
		return cmp.Compare(y.Score, x.Score)
	})
	for _, e := range edges {
		uf.union(e.A, e.B)
	}

	// ids are sorted, so members and cluster order come out sorted too
	byRoot := make(map[int]int)
	p := &Partition{of: make(map[string]int, len(ids))}
	for _, id := range ids {
		root := uf.find(uf.index[id])
		c, ok := byRoot[root]
		if !ok {
			c = len(p.Clusters)
			byRoot[root] = c
			p.Clusters = append(p.Clusters, Cluster{ID: c})
		}
		p.Clusters[c].Members = append(p.Clusters[c].Members, id)
		p.of[id] = c
	}

	return p
}

// unionFind is a disjoint-set forest with path compression and union by size.
type unionFind struct {
	index  map[string]int
	parent []int
	size   []int
}

func newUnionFind(ids []string) *unionFind {
	uf := &unionFind{
		index:  make(map[string]int, len(ids)),
		parent: make([]int, len(ids)),
		size:   make([]int, len(ids)),
	}
	for i, id := range ids {
		uf.index[id] = i
		uf.parent[i] = i
		uf.size[i] = 1
	}
	return uf
}

func (uf *unionFind) find(i int) int {
	root := i
	for uf.parent[root] != root {
		root = uf.parent[root]
	}
	for uf.parent[i] != root {
		uf.parent[i], i = root, uf.parent[i]
	}
	return root
}

func (uf *unionFind) union(x, y string) {
	i, okX := uf.index[x]
	j, okY := uf.index[y]
	if !okX || !okY {
		return
	}

	ri, rj := uf.find(i), uf.find(j)
	if ri == rj {
		return
	}
	if uf.size[ri] < uf.size[rj] || (uf.size[ri] == uf.size[rj] && rj < ri) {
		ri, rj = rj, ri
	}
	uf.parent[rj] = ri
	uf.size[ri] += uf.size[rj]
}
