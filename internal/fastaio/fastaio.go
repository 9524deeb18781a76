// Package fastaio reads and writes FASTA files of nucleotide sequences.
package fastaio

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/biogo/biogo/alphabet"
	"github.com/biogo/biogo/io/seqio"
	"github.com/biogo/biogo/io/seqio/fasta"
	"github.com/biogo/biogo/seq/linear"
)

// Width of sequence lines in written files.
const Width = 60

// ErrFormat is wrapped by errors of input that isn't FASTA.
var ErrFormat = errors.New("malformed FASTA")

// Entry is a single FASTA record.
type Entry struct {
	// ID is the first word of the header
	ID string

	// Desc is the rest of the header
	Desc string

	// Seq is the sequence as it was read
	Seq string
}

// Read every entry from r.
func Read(r io.Reader) ([]Entry, error) {
	br := bufio.NewReader(r)
	for {
		b, err := br.ReadByte()
		if err == io.EOF {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		switch b {
		case ' ', '\t', '\r', '\n':
			continue
		case '>':
		default:
			return nil, fmt.Errorf("%w: sequence data before the first header", ErrFormat)
		}
		if err := br.UnreadByte(); err != nil {
			return nil, err
		}
		break
	}

	sc := seqio.NewScanner(fasta.NewReader(br, linear.NewSeq("", nil, alphabet.DNA)))

	var entries []Entry
	for sc.Next() {
		s, ok := sc.Seq().(*linear.Seq)
		if !ok {
			return nil, fmt.Errorf("unexpected sequence type %T", sc.Seq())
		}
		if s.Name() == "" {
			return nil, fmt.Errorf("%w: header without an identifier", ErrFormat)
		}
		entries = append(entries, Entry{
			ID:   s.Name(),
			Desc: s.Description(),
			Seq:  s.Seq.String(),
		})
	}
	if err := sc.Error(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFormat, err)
	}

	return entries, nil
}

// ReadFile reads the FASTA file at path.
func ReadFile(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open FASTA file %s: %w", path, err)
	}
	defer f.Close()

	entries, err := Read(f)
	if err != nil {
		return nil, fmt.Errorf("failed to parse FASTA file %s: %w", path, err)
	}
	return entries, nil
}

// Write entries to w.
func Write(w io.Writer, entries []Entry) error {
	fw := fasta.NewWriter(w, Width)
	for _, e := range entries {
		s := linear.NewSeq(e.ID, alphabet.BytesToLetters([]byte(e.Seq)), alphabet.DNA)
		s.Desc = e.Desc
		if _, err := fw.Write(s); err != nil {
			return fmt.Errorf("failed to write %s: %w", e.ID, err)
		}
	}
	return nil
}

// WriteFile creates, or truncates, the file at path with entries.
func WriteFile(path string, entries []Entry) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create FASTA file %s: %w", path, err)
	}

	if err := Write(f, entries); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
