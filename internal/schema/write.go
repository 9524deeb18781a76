package schema

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/MForofontov/Schema-Refinery/internal/catalog"
	"github.com/MForofontov/Schema-Refinery/internal/fastaio"
)

const (
	manifestFile       = "manifest.yaml"
	clusterMembersFile = "cluster_members.tsv"
	idChangesFile      = "allele_id_changes.tsv"
)

// IDChange is an allele of an absorbed locus renumbered into the locus that
// absorbed it.
type IDChange struct {
	Original string `yaml:"original"`
	New      string `yaml:"new"`
}

// Manifest describes a refined schema. It's written next to the loci.
type Manifest struct {
	// Run is the identifier of the run that wrote the schema
	Run string `yaml:"run,omitempty"`

	// Created is when the schema was written
	Created time.Time `yaml:"created"`

	// Source is the path of the input schema
	Source string `yaml:"source,omitempty"`

	// Threshold is the BSR at or above which loci were merged
	Threshold float64 `yaml:"threshold"`

	// LociIn and LociOut are locus counts before and after refinement
	LociIn  int `yaml:"loci_in"`
	LociOut int `yaml:"loci_out"`

	Entries []Entry `yaml:"entries"`

	// IDChanges are the renumbered alleles of absorbed loci
	IDChanges []IDChange `yaml:"id_changes,omitempty"`
}

// WriteOptions of Write.
type WriteOptions struct {
	// Source is the schema the catalog was read from. Full allele files are
	// copied from it, when missing the catalog's records are used
	Source Dir

	// Force replaces an existing output directory
	Force bool

	// Manifest fields other than Entries and locus counts
	Manifest Manifest
}

// Write the refined schema to the directory out. Everything is written to a
// temporary sibling directory first and renamed into place, so out is either
// complete or untouched.
//
// Alleles of absorbed loci are renumbered <locus>_<n> after the highest
// allele number of the locus that absorbed them. The renames are listed in
// allele_id_changes.tsv and the manifest.
func Write(out string, cat *catalog.Catalog, r *Refined, opts WriteOptions) (err error) {
	out = filepath.Clean(out)
	if _, err := os.Stat(out); err == nil && !opts.Force {
		return fmt.Errorf("output directory %s already exists", out)
	}

	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		return fmt.Errorf("failed to create parent of %s: %w", out, err)
	}
	tmp := out + ".tmp-" + uuid.Must(uuid.NewV7()).String()
	if err := os.MkdirAll(filepath.Join(tmp, shortDir), 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", tmp, err)
	}
	defer func() {
		if err != nil {
			os.RemoveAll(tmp)
		}
	}()

	var changes []IDChange
	for _, e := range r.Entries {
		c, err := writeLocus(tmp, cat, e, opts.Source)
		if err != nil {
			return err
		}
		changes = append(changes, c...)
	}

	m := opts.Manifest
	m.LociIn = len(cat.Loci())
	m.LociOut = len(r.Entries)
	m.Entries = r.Entries
	m.IDChanges = changes
	if err := writeManifest(filepath.Join(tmp, manifestFile), m); err != nil {
		return err
	}

	if err := writeTSV(filepath.Join(tmp, idChangesFile), func(w io.Writer) error {
		return WriteIDChanges(w, changes)
	}); err != nil {
		return err
	}

	if err := writeTSV(filepath.Join(tmp, clusterMembersFile), func(w io.Writer) error {
		return WriteClusterMembers(w, cat, r)
	}); err != nil {
		return err
	}

	return replace(tmp, out)
}

// replace renames tmp to out. An existing out is moved aside first and put
// back if tmp can't take its place.
func replace(tmp, out string) error {
	old := ""
	if _, err := os.Stat(out); err == nil {
		old = out + ".old-" + uuid.Must(uuid.NewV7()).String()
		if err := os.Rename(out, old); err != nil {
			return fmt.Errorf("failed to move %s aside: %w", out, err)
		}
	}

	if err := os.Rename(tmp, out); err != nil {
		if old != "" {
			os.Rename(old, out)
		}
		return fmt.Errorf("failed to move refined schema into %s: %w", out, err)
	}

	if old != "" {
		os.RemoveAll(old)
	}
	return nil
}

func writeTSV(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Base(path), err)
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// writeLocus writes the alleles and the representative alleles of every
// locus the entry absorbed, and returns the renames of absorbed alleles.
func writeLocus(dir string, cat *catalog.Catalog, e Entry, src Dir) ([]IDChange, error) {
	rep, ok := cat.Lookup(e.Representative)
	if !ok {
		return nil, &SchemaIntegrityError{Reason: "representative " + e.Representative + " is not in the catalog"}
	}

	full, err := alleles(cat, e.Locus, src)
	if err != nil {
		return nil, err
	}
	short, _, err := src.short(e.Locus)
	if err != nil {
		return nil, err
	}
	if !slices.ContainsFunc(short, func(a fastaio.Entry) bool { return a.ID == rep.ID }) {
		short = append([]fastaio.Entry{{ID: rep.ID, Seq: rep.Seq}}, short...)
	}

	next := 1
	for _, a := range full {
		next = max(next, catalog.AlleleIndex(a.ID)+1)
	}

	var changes []IDChange
	renamed := make(map[string]string)
	rename := func(a fastaio.Entry) fastaio.Entry {
		id, ok := renamed[a.ID]
		if !ok {
			id = e.Locus + "_" + strconv.Itoa(next)
			next++
			renamed[a.ID] = id
			changes = append(changes, IDChange{Original: a.ID, New: id})
		}
		a.ID = id
		return a
	}

	for _, locus := range e.Aliases {
		absorbed, err := alleles(cat, locus, src)
		if err != nil {
			return nil, err
		}
		for _, a := range absorbed {
			full = append(full, rename(a))
		}

		reps, _, err := src.short(locus)
		if err != nil {
			return nil, err
		}
		for _, a := range reps {
			short = append(short, rename(a))
		}
	}

	if err := fastaio.WriteFile(filepath.Join(dir, e.Locus+fastaExt), full); err != nil {
		return nil, err
	}
	if err := fastaio.WriteFile(filepath.Join(dir, shortDir, e.Locus+shortSuffix), short); err != nil {
		return nil, err
	}
	return changes, nil
}

// alleles of locus from the source schema, the catalog's records when the
// source doesn't have the locus file.
func alleles(cat *catalog.Catalog, locus string, src Dir) ([]fastaio.Entry, error) {
	full, ok, err := src.alleles(locus)
	if err != nil || ok {
		return full, err
	}
	for _, id := range cat.Members(locus) {
		r, _ := cat.Lookup(id)
		full = append(full, fastaio.Entry{ID: r.ID, Seq: r.Seq})
	}
	return full, nil
}

func writeManifest(path string, m Manifest) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create manifest: %w", err)
	}

	enc := yaml.NewEncoder(f)
	enc.SetIndent(2)
	if err := enc.Encode(m); err != nil {
		f.Close()
		return fmt.Errorf("failed to encode manifest: %w", err)
	}
	if err := enc.Close(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// ReadManifest reads the manifest of a refined schema directory.
func ReadManifest(dir string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, manifestFile))
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to decode manifest: %w", err)
	}
	return &m, nil
}

// WriteClusterMembers writes one row per absorbed record, the cluster's
// locus and representative only on its first row. A member's BSR and class
// are those of its strongest link; "-" when it has none.
func WriteClusterMembers(w io.Writer, cat *catalog.Catalog, r *Refined) error {
	tw := &tsvWriter{w: w}

	tw.row("Cluster_ID", "Representative", "Member", "Member_Locus", "BSR", "Classification")
	for _, e := range r.Entries {
		best := make(map[string]Link)
		for _, l := range e.Links {
			for _, id := range []string{l.A, l.B} {
				if b, ok := best[id]; !ok || l.BSR > b.BSR {
					best[id] = l
				}
			}
		}

		for i, id := range e.Absorbed {
			cluster, rep := "", ""
			if i == 0 {
				cluster, rep = e.Locus, e.Representative
			}
			score, class := "-", "-"
			if l, ok := best[id]; ok {
				score, class = strconv.FormatFloat(l.BSR, 'f', 4, 64), string(l.Class)
			}
			tw.row(cluster, rep, id, cat.LocusOf(id), score, class)
		}
	}

	if tw.err != nil {
		return fmt.Errorf("failed to write cluster members: %w", tw.err)
	}
	return nil
}

// WriteIDChanges writes the original and new identifier of every renumbered
// allele.
func WriteIDChanges(w io.Writer, changes []IDChange) error {
	tw := &tsvWriter{w: w}

	tw.row("Original_ID", "New_ID")
	for _, c := range changes {
		tw.row(c.Original, c.New)
	}

	if tw.err != nil {
		return fmt.Errorf("failed to write allele id changes: %w", tw.err)
	}
	return nil
}

// tsvWriter writes tab separated rows until the first error.
type tsvWriter struct {
	w   io.Writer
	err error
}

func (t *tsvWriter) row(cols ...string) {
	if t.err != nil {
		return
	}
	_, t.err = io.WriteString(t.w, strings.Join(cols, "\t")+"\n")
}
