package schema

import (
	"fmt"
	"slices"
	"strings"

	"github.com/MForofontov/Schema-Refinery/internal/bsr"
	"github.com/MForofontov/Schema-Refinery/internal/catalog"
	"github.com/MForofontov/Schema-Refinery/internal/cluster"
	"github.com/MForofontov/Schema-Refinery/internal/graph"
)

// Link is a qualifying edge inside a cluster.
type Link struct {
	A     string    `yaml:"a"`
	B     string    `yaml:"b"`
	BSR   float64   `yaml:"bsr"`
	Class bsr.Class `yaml:"class"`
}

// Entry is a locus of the refined schema and everything folded into it.
type Entry struct {
	// Locus of the representative. The refined locus keeps its name
	Locus string `yaml:"locus"`

	// Representative record identifier
	Representative string `yaml:"representative"`

	// Aliases are the other loci merged into this one
	Aliases []string `yaml:"aliases,omitempty"`

	// Absorbed are every record identifier of the cluster, the
	// representative included
	Absorbed []string `yaml:"absorbed"`

	// Links that joined the cluster, ordered by pair
	Links []Link `yaml:"links,omitempty"`
}

// Refined is the merged schema, entries ordered by locus.
type Refined struct {
	Entries []Entry
}

// Merged is the number of loci folded into another.
func (r *Refined) Merged() int {
	n := 0
	for _, e := range r.Entries {
		n += len(e.Aliases)
	}
	return n
}

// Merge builds the refined schema of a partition. It reads cat, p and reps
// without changing them. g may be nil, in which case entries have no links.
func Merge(cat *catalog.Catalog, p *cluster.Partition, reps cluster.Representatives, g *graph.Graph) (*Refined, error) {
	links := make(map[int][]Link)
	if g != nil {
		for _, e := range g.Edges() {
			ca, okA := p.Of(e.A)
			cb, okB := p.Of(e.B)
			if !okA || !okB || ca != cb {
				return nil, &SchemaIntegrityError{Reason: fmt.Sprintf("edge %s|%s crosses clusters", e.A, e.B)}
			}
			links[ca] = append(links[ca], Link{A: e.A, B: e.B, BSR: e.Score, Class: e.Class})
		}
	}

	r := &Refined{Entries: make([]Entry, 0, len(p.Clusters))}
	for _, c := range p.Clusters {
		rep, ok := reps[c.ID]
		if !ok {
			return nil, &SchemaIntegrityError{Reason: fmt.Sprintf("cluster %d has no representative", c.ID)}
		}
		if !slices.Contains(c.Members, rep) {
			return nil, &SchemaIntegrityError{Reason: fmt.Sprintf("representative %s isn't a member of cluster %d", rep, c.ID)}
		}

		locus := cat.LocusOf(rep)
		var aliases []string
		for _, m := range c.Members {
			if l := cat.LocusOf(m); l != locus && !slices.Contains(aliases, l) {
				aliases = append(aliases, l)
			}
		}
		slices.Sort(aliases)

		absorbed := slices.Clone(c.Members)
		slices.Sort(absorbed)

		r.Entries = append(r.Entries, Entry{
			Locus:          locus,
			Representative: rep,
			Aliases:        aliases,
			Absorbed:       absorbed,
			Links:          links[c.ID],
		})
	}

	slices.SortFunc(r.Entries, func(a, b Entry) int { return strings.Compare(a.Locus, b.Locus) })

	if err := Verify(cat, r); err != nil {
		return nil, err
	}
	return r, nil
}

// Verify checks that every record of cat is absorbed by exactly one entry
// and every locus is named by exactly one entry, as its own or an alias.
func Verify(cat *catalog.Catalog, r *Refined) error {
	records := make(map[string]string, cat.Len())
	loci := make(map[string]string)

	for _, e := range r.Entries {
		for _, id := range e.Absorbed {
			if !cat.Contains(id) {
				return &SchemaIntegrityError{Reason: fmt.Sprintf("%s absorbs unknown record %s", e.Locus, id)}
			}
			if prev, ok := records[id]; ok {
				return &SchemaIntegrityError{Reason: fmt.Sprintf("record %s absorbed by both %s and %s", id, prev, e.Locus)}
			}
			records[id] = e.Locus
		}
		for _, l := range append([]string{e.Locus}, e.Aliases...) {
			if prev, ok := loci[l]; ok {
				return &SchemaIntegrityError{Reason: fmt.Sprintf("locus %s is part of both %s and %s", l, prev, e.Locus)}
			}
			loci[l] = e.Locus
		}
	}

	if len(records) != cat.Len() {
		for rec := range cat.All() {
			if _, ok := records[rec.ID]; !ok {
				return &SchemaIntegrityError{Reason: "record " + rec.ID + " was dropped"}
			}
		}
	}
	for _, l := range cat.Loci() {
		if _, ok := loci[l]; !ok {
			return &SchemaIntegrityError{Reason: "locus " + l + " was dropped"}
		}
	}
	return nil
}
