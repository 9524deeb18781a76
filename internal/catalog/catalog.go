// Package catalog holds the immutable set of allele sequences read from a
// schema. Every other stage reads records through a Catalog.
package catalog

import (
	"iter"
	"slices"
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// Record is a single allele sequence of a locus.
type Record struct {
	// ID is the allele identifier, unique within the catalog
	ID string

	// Locus is the name of the locus the allele came from
	Locus string

	// Seq is the upper-cased nucleotide sequence
	Seq string

	// Length of Seq
	Length int

	// SelfScore is the raw score of the sequence aligned against itself.
	// It's the denominator of the BLAST Score Ratio
	SelfScore float64

	// Index is the allele number parsed from the trailing "_<n>" of the ID.
	// -1 when the ID doesn't end in a number
	Index int
}

// Raw is an unvalidated record as it comes out of storage.
type Raw struct {
	ID    string
	Locus string
	Seq   string
}

// Source is anything that can produce the raw records of a schema.
type Source interface {
	Raw() ([]Raw, error)
}

// Slice is an in-memory Source.
type Slice []Raw

// Raw returns the records in the slice.
func (s Slice) Raw() ([]Raw, error) {
	return s, nil
}

// Option changes how records are loaded.
type Option func(*options)

type options struct {
	reward float64
}

// WithMatchReward sets the per-base reward used to derive self-scores. An
// identical ungapped self-alignment scores Length*reward.
func WithMatchReward(reward float64) Option {
	return func(o *options) {
		if reward > 0 {
			o.reward = reward
		}
	}
}

// Catalog is the read-only set of records. It's safe for concurrent use.
type Catalog struct {
	records []Record       // sorted by ID
	index   map[string]int // ID to position in records
	loci    []string       // sorted
	byLocus map[string][]string
}

// Load validates and normalizes the records of src into a Catalog.
func Load(src Source, opts ...Option) (*Catalog, error) {
	o := options{reward: 1}
	for _, opt := range opts {
		opt(&o)
	}

	raws, err := src.Raw()
	if err != nil {
		return nil, err
	}

	c := &Catalog{
		records: make([]Record, 0, len(raws)),
		index:   make(map[string]int, len(raws)),
		byLocus: make(map[string][]string),
	}

	seen := make(map[string]bool, len(raws))
	for _, raw := range raws {
		r, err := normalize(raw, o.reward)
		if err != nil {
			return nil, err
		}
		if seen[r.ID] {
			return nil, &MalformedInputError{ID: r.ID, Locus: r.Locus, Reason: "duplicate identifier"}
		}
		seen[r.ID] = true
		c.records = append(c.records, r)
	}

	slices.SortFunc(c.records, func(a, b Record) int { return strings.Compare(a.ID, b.ID) })
	for i, r := range c.records {
		c.index[r.ID] = i
		if _, ok := c.byLocus[r.Locus]; !ok {
			c.loci = append(c.loci, r.Locus)
		}
		c.byLocus[r.Locus] = append(c.byLocus[r.Locus], r.ID)
	}
	slices.Sort(c.loci)

	return c, nil
}

// normalize trims and NFC-normalizes identifiers, upper-cases the sequence and
// rejects anything that isn't a plain nucleotide sequence.
func normalize(raw Raw, reward float64) (Record, error) {
	id := norm.NFC.String(strings.TrimSpace(raw.ID))
	locus := norm.NFC.String(strings.TrimSpace(raw.Locus))
	seq := strings.ToUpper(strings.TrimSpace(raw.Seq))

	if id == "" {
		return Record{}, &MalformedInputError{Locus: locus, Reason: "empty identifier"}
	}
	if locus == "" {
		return Record{}, &MalformedInputError{ID: id, Reason: "empty locus"}
	}
	if seq == "" {
		return Record{}, &MalformedInputError{ID: id, Locus: locus, Reason: "empty sequence"}
	}
	if i := strings.IndexFunc(seq, invalidBase); i >= 0 {
		bad, _ := utf8.DecodeRuneInString(seq[i:])
		return Record{}, &MalformedInputError{
			ID:     id,
			Locus:  locus,
			Reason: "invalid character " + strconv.QuoteRune(bad) + " at position " + strconv.Itoa(i+1),
		}
	}

	return Record{
		ID:        id,
		Locus:     locus,
		Seq:       seq,
		Length:    len(seq),
		SelfScore: float64(len(seq)) * reward,
		Index:     AlleleIndex(id),
	}, nil
}

func invalidBase(r rune) bool {
	switch r {
	case 'A', 'C', 'G', 'T':
		return false
	}
	return true
}

// AlleleIndex returns the number after the last '_' or '*' of an allele
// identifier, so "lmo0001_12" is 12. It's -1 when there isn't one.
func AlleleIndex(id string) int {
	i := strings.LastIndexAny(id, "_*")
	if i < 0 || i == len(id)-1 {
		return -1
	}
	n, err := strconv.Atoi(id[i+1:])
	if err != nil || n < 0 {
		return -1
	}
	return n
}

// Lookup returns the record with the passed identifier.
func (c *Catalog) Lookup(id string) (Record, bool) {
	i, ok := c.index[id]
	if !ok {
		return Record{}, false
	}
	return c.records[i], true
}

// Contains reports whether id is in the catalog.
func (c *Catalog) Contains(id string) bool {
	_, ok := c.index[id]
	return ok
}

// All iterates over every record in identifier order.
func (c *Catalog) All() iter.Seq[Record] {
	return func(yield func(Record) bool) {
		for _, r := range c.records {
			if !yield(r) {
				return
			}
		}
	}
}

// Len is the number of records.
func (c *Catalog) Len() int {
	return len(c.records)
}

// IDs returns every identifier in sorted order.
func (c *Catalog) IDs() []string {
	ids := make([]string, len(c.records))
	for i, r := range c.records {
		ids[i] = r.ID
	}
	return ids
}

// Loci returns the sorted locus names.
func (c *Catalog) Loci() []string {
	return slices.Clone(c.loci)
}

// Members returns the sorted identifiers of a locus' alleles.
func (c *Catalog) Members(locus string) []string {
	return slices.Clone(c.byLocus[locus])
}

// LocusOf returns the locus of the record with the passed identifier.
func (c *Catalog) LocusOf(id string) string {
	if r, ok := c.Lookup(id); ok {
		return r.Locus
	}
	return ""
}
