package blast

import (
	"sort"

	"github.com/MForofontov/Schema-Refinery/internal/bsr"
	"github.com/MForofontov/Schema-Refinery/internal/candidate"
)

// group collects hits by the unordered pair they align. Self hits are
// dropped.
func group(hits []Hit) map[candidate.Pair][]Hit {
	byPair := make(map[candidate.Pair][]Hit)
	for _, h := range hits {
		if h.Query == h.Subject {
			continue
		}
		p := candidate.NewPair(h.Query, h.Subject)
		byPair[p] = append(byPair[p], h)
	}
	return byPair
}

// summarize reduces the HSPs of a pair to an Alignment. The best-scoring HSP
// gives the score; coverage is measured over every HSP in that HSP's
// orientation so either query direction reconciles to one answer.
func summarize(hits []Hit, identity float64) *bsr.Alignment {
	if len(hits) == 0 {
		return nil
	}

	best := hits[0]
	for _, h := range hits[1:] {
		if h.Score > best.Score || (h.Score == best.Score && h.Length > best.Length) {
			best = h
		}
	}

	var same []Hit
	for _, h := range hits {
		if h.Query == best.Query {
			same = append(same, h)
		}
	}

	var strong []Hit
	for _, h := range same {
		if h.Identity >= identity {
			strong = append(strong, h)
		}
	}

	qCov, sCov := coverage(same, best.QueryLen, best.SubjectLen)
	qStrong, sStrong := coverage(strong, best.QueryLen, best.SubjectLen)

	return &bsr.Alignment{
		Query:           best.Query,
		Score:           best.Score,
		Length:          best.Length,
		Mismatches:      best.Mismatches,
		Gaps:            best.Gaps,
		Identity:        best.Identity,
		QueryCoverage:   qCov,
		SubjectCoverage: sCov,
		IdentCoverage:   max(qStrong, sStrong),
	}
}

// coverage returns the fraction of the query and of the subject covered by
// the union of the hits' ranges.
func coverage(hits []Hit, qLen, sLen int) (float64, float64) {
	if len(hits) == 0 || qLen <= 0 || sLen <= 0 {
		return 0, 0
	}

	q := make([][2]int, len(hits))
	s := make([][2]int, len(hits))
	for i, h := range hits {
		q[i] = [2]int{h.QueryStart, h.QueryEnd}
		s[i] = [2]int{h.SubjectStart, h.SubjectEnd}
	}

	return min(float64(covered(q))/float64(qLen), 1), min(float64(covered(s))/float64(sLen), 1)
}

// covered is the number of positions in the union of inclusive ranges.
func covered(ranges [][2]int) int {
	// sort ranges by their start index
	// if they're same, put the larger one first
	sort.Slice(ranges, func(i, j int) bool {
		if ranges[i][0] != ranges[j][0] {
			return ranges[i][0] < ranges[j][0]
		}
		return ranges[i][1] > ranges[j][1]
	})

	total := 0
	start, end := ranges[0][0], ranges[0][1]
	for _, r := range ranges[1:] {
		if r[0] > end+1 {
			total += end - start + 1
			start, end = r[0], r[1]
			continue
		}
		end = max(end, r[1])
	}
	return total + end - start + 1
}
