package blast

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MForofontov/Schema-Refinery/internal/candidate"
)

func Test_covered(t *testing.T) {
	tests := []struct {
		name   string
		ranges [][2]int
		want   int
	}{
		{"single", [][2]int{{0, 9}}, 10},
		{"contained", [][2]int{{0, 9}, {2, 5}}, 10},
		{"overlapping", [][2]int{{5, 14}, {0, 9}}, 15},
		{"adjacent", [][2]int{{0, 4}, {5, 9}}, 10},
		{"disjoint", [][2]int{{0, 4}, {10, 14}}, 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := covered(tt.ranges); got != tt.want {
				t.Errorf("covered() = %v, want %v", got, tt.want)
			}
		})
	}
}

func Test_group(t *testing.T) {
	hits := []Hit{
		{Query: "a_1", Subject: "b_1"},
		{Query: "b_1", Subject: "a_1"},
		{Query: "a_1", Subject: "a_1"},
	}
	byPair := group(hits)
	assert.Len(t, byPair, 1)
	assert.Len(t, byPair[candidate.Pair{A: "a_1", B: "b_1"}], 2)
}

func Test_summarize(t *testing.T) {
	assert.Nil(t, summarize(nil, 90))

	hits := []Hit{
		{Query: "a_1", Subject: "b_1", QueryLen: 100, SubjectLen: 200, QueryStart: 0, QueryEnd: 49, SubjectStart: 0, SubjectEnd: 49, Length: 50, Score: 90, Identity: 99},
		{Query: "a_1", Subject: "b_1", QueryLen: 100, SubjectLen: 200, QueryStart: 60, QueryEnd: 79, SubjectStart: 100, SubjectEnd: 119, Length: 20, Score: 30, Identity: 80},
		// reverse orientation, lower score, ignored for coverage
		{Query: "b_1", Subject: "a_1", QueryLen: 200, SubjectLen: 100, QueryStart: 0, QueryEnd: 199, SubjectStart: 0, SubjectEnd: 99, Length: 200, Score: 85, Identity: 95},
	}

	aln := summarize(hits, 90)
	require.NotNil(t, aln)
	assert.Equal(t, "a_1", aln.Query)
	assert.Equal(t, 90.0, aln.Score)
	assert.Equal(t, 50, aln.Length)
	assert.InDelta(t, 0.7, aln.QueryCoverage, 1e-9)
	assert.InDelta(t, 0.35, aln.SubjectCoverage, 1e-9)
	assert.InDelta(t, 0.5, aln.IdentCoverage, 1e-9)
}
