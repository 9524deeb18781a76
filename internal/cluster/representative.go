package cluster

import (
	"cmp"
	"fmt"
	"slices"
	"strings"

	"github.com/MForofontov/Schema-Refinery/internal/catalog"
)

// Key is one criterion of the representative order.
type Key string

const (
	// Length prefers longer sequences
	Length Key = "length"

	// AlleleIndex prefers lower allele numbers, unnumbered alleles last
	AlleleIndex Key = "allele-index"

	// ID prefers the lexicographically smaller identifier
	ID Key = "id"
)

// DefaultOrder is the representative order used when none is configured.
var DefaultOrder = []Key{Length, AlleleIndex, ID}

// Representatives maps cluster ids to the identifier of their representative.
type Representatives map[int]string

// ParseOrder turns configured key names into an order. ID is appended when
// missing so the order is total.
func ParseOrder(names []string) ([]Key, error) {
	if len(names) == 0 {
		return slices.Clone(DefaultOrder), nil
	}

	var order []Key
	seen := map[Key]bool{}
	for _, n := range names {
		k := Key(strings.ToLower(strings.TrimSpace(n)))
		switch k {
		case Length, AlleleIndex, ID:
		default:
			return nil, fmt.Errorf("unknown representative key %q", n)
		}
		if seen[k] {
			return nil, fmt.Errorf("representative key %q listed twice", n)
		}
		seen[k] = true
		order = append(order, k)
	}
	if !seen[ID] {
		order = append(order, ID)
	}
	return order, nil
}

// Select picks the first member of each cluster under order.
func Select(p *Partition, cat *catalog.Catalog, order []Key) (Representatives, error) {
	if len(order) == 0 {
		order = DefaultOrder
	}
	if !slices.Contains(order, ID) {
		order = append(slices.Clone(order), ID)
	}

	reps := make(Representatives, len(p.Clusters))
	for _, c := range p.Clusters {
		var best catalog.Record
		for i, id := range c.Members {
			r, ok := cat.Lookup(id)
			if !ok {
				return nil, fmt.Errorf("cluster %d member %s is not in the catalog", c.ID, id)
			}
			if i == 0 || compare(r, best, order) < 0 {
				best = r
			}
		}
		if len(c.Members) > 0 {
			reps[c.ID] = best.ID
		}
	}
	return reps, nil
}

// compare orders records so the preferred representative comes first.
func compare(a, b catalog.Record, order []Key) int {
	for _, k := range order {
		var c int
		switch k {
		case Length:
			c = cmp.Compare(b.Length, a.Length)
		case AlleleIndex:
			c = cmp.Compare(indexRank(a.Index), indexRank(b.Index))
		case ID:
			c = strings.Compare(a.ID, b.ID)
		}
		if c != 0 {
			return c
		}
	}
	return 0
}

// indexRank sorts unnumbered alleles after every numbered one.
func indexRank(i int) int {
	if i < 0 {
		return int(^uint(0) >> 1)
	}
	return i
}
