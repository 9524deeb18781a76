package blast

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Hit is a single HSP from blastn's tabular output. Coordinates are 0-based
// and inclusive, with start <= end on both sequences.
type Hit struct {
	Query   string
	Subject string

	QueryLen   int
	SubjectLen int

	QueryStart   int
	QueryEnd     int
	SubjectStart int
	SubjectEnd   int

	Length     int
	Score      float64
	Gaps       int
	Identity   float64
	Mismatches int
}

// ParseTabular reads HSPs in the column order of outfmt. Blank lines and
// comment lines, as in outfmt 7, are skipped.
func ParseTabular(r io.Reader) ([]Hit, error) {
	var hits []Hit

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())

		// comment lines start with a #
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}

		h, err := parseHit(strings.Fields(text))
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		hits = append(hits, h)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}

	return hits, nil
}

func parseHit(cols []string) (Hit, error) {
	if len(cols) != 13 {
		return Hit{}, fmt.Errorf("expected 13 columns, got %d", len(cols))
	}

	ints := make([]int, 0, 8)
	for _, i := range []int{2, 3, 4, 5, 6, 7, 8, 10} {
		n, err := strconv.Atoi(cols[i])
		if err != nil {
			return Hit{}, fmt.Errorf("failed to parse column %d: %w", i+1, err)
		}
		ints = append(ints, n)
	}
	mismatch, err := strconv.Atoi(cols[12])
	if err != nil {
		return Hit{}, fmt.Errorf("failed to parse mismatches: %w", err)
	}
	score, err := strconv.ParseFloat(cols[9], 64)
	if err != nil {
		return Hit{}, fmt.Errorf("failed to parse score: %w", err)
	}
	pident, err := strconv.ParseFloat(cols[11], 64)
	if err != nil {
		return Hit{}, fmt.Errorf("failed to parse pident: %w", err)
	}

	qStart, qEnd, sStart, sEnd := ints[2], ints[3], ints[4], ints[5]

	// minus strand hits have send < sstart
	if sStart > sEnd {
		sStart, sEnd = sEnd, sStart
	}

	return Hit{
		Query:      cols[0],
		Subject:    cols[1],
		QueryLen:   ints[0],
		SubjectLen: ints[1],
		// convert 1-based numbers to 0-based
		QueryStart:   qStart - 1,
		QueryEnd:     qEnd - 1,
		SubjectStart: sStart - 1,
		SubjectEnd:   sEnd - 1,
		Length:       ints[6],
		Score:        score,
		Gaps:         ints[7],
		Identity:     pident,
		Mismatches:   mismatch,
	}, nil
}
