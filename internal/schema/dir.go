// Package schema reads cg/wgMLST schema directories, folds clusters of
// redundant loci into a refined schema and writes it back out.
//
// A schema directory holds one FASTA file of alleles per locus,
// <locus>.fasta, and a short/ directory with the representative alleles of
// each locus in <locus>_short.fasta.
package schema

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/MForofontov/Schema-Refinery/internal/catalog"
	"github.com/MForofontov/Schema-Refinery/internal/fastaio"
)

// Mode picks which alleles of a schema are read.
type Mode string

const (
	// Representatives reads short/<locus>_short.fasta
	Representatives Mode = "representatives"

	// Alleles reads every allele in <locus>.fasta
	Alleles Mode = "alleles"
)

const (
	shortDir    = "short"
	fastaExt    = ".fasta"
	shortSuffix = "_short.fasta"
)

// Dir is a schema directory. It's a catalog.Source.
type Dir struct {
	Path string
	Mode Mode
}

// Raw reads the records of every locus in the directory.
func (d Dir) Raw() ([]catalog.Raw, error) {
	files, err := d.files()
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no loci found in schema %s", d.Path)
	}

	loci := make([]string, 0, len(files))
	for l := range files {
		loci = append(loci, l)
	}
	slices.Sort(loci)

	var raws []catalog.Raw
	for _, locus := range loci {
		entries, err := readLocus(files[locus], locus)
		if err != nil {
			return nil, err
		}
		if len(entries) == 0 {
			return nil, &catalog.MalformedInputError{Locus: locus, Reason: "locus file has no alleles"}
		}
		for _, e := range entries {
			raws = append(raws, catalog.Raw{ID: e.ID, Locus: locus, Seq: e.Seq})
		}
	}
	return raws, nil
}

// Loci returns the sorted locus names of the directory.
func (d Dir) Loci() ([]string, error) {
	files, err := d.files()
	if err != nil {
		return nil, err
	}
	loci := make([]string, 0, len(files))
	for l := range files {
		loci = append(loci, l)
	}
	slices.Sort(loci)
	return loci, nil
}

// files maps locus names to the file read for them.
func (d Dir) files() (map[string]string, error) {
	dir, suffix := d.Path, fastaExt
	if d.Mode != Alleles {
		dir, suffix = filepath.Join(d.Path, shortDir), shortSuffix
	}

	ents, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema directory %s: %w", dir, err)
	}

	files := make(map[string]string)
	for _, e := range ents {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, suffix) {
			continue
		}
		// <locus>.fasta never matches a representative file
		if d.Mode == Alleles && strings.HasSuffix(name, shortSuffix) {
			continue
		}
		files[strings.TrimSuffix(name, suffix)] = filepath.Join(dir, name)
	}
	return files, nil
}

// alleles returns every allele of locus, from the full locus file when the
// schema has one.
func (d Dir) alleles(locus string) ([]fastaio.Entry, bool, error) {
	if d.Path == "" {
		return nil, false, nil
	}
	path := filepath.Join(d.Path, locus+fastaExt)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, false, nil
	}
	entries, err := readLocus(path, locus)
	if err != nil {
		return nil, false, err
	}
	return entries, true, nil
}

// short returns the representative alleles of locus, when the schema has a
// short file for it.
func (d Dir) short(locus string) ([]fastaio.Entry, bool, error) {
	if d.Path == "" {
		return nil, false, nil
	}
	path := filepath.Join(d.Path, shortDir, locus+shortSuffix)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, false, nil
	}
	entries, err := readLocus(path, locus)
	if err != nil {
		return nil, false, err
	}
	return entries, true, nil
}

// readLocus reads a locus file. Content that isn't FASTA is malformed input.
func readLocus(path, locus string) ([]fastaio.Entry, error) {
	entries, err := fastaio.ReadFile(path)
	if errors.Is(err, fastaio.ErrFormat) {
		return nil, &catalog.MalformedInputError{Locus: locus, Reason: err.Error()}
	}
	return entries, err
}
