package catalog

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	cat, err := Load(Slice{
		{ID: "lmo0002_2", Locus: "lmo0002", Seq: "acgtac"},
		{ID: "lmo0001_1", Locus: "lmo0001", Seq: "ACGTACGT"},
		{ID: " lmo0002_1 ", Locus: "lmo0002", Seq: "ACGTA\n"},
	}, WithMatchReward(2))
	require.NoError(t, err)

	assert.Equal(t, 3, cat.Len())
	assert.Equal(t, []string{"lmo0001_1", "lmo0002_1", "lmo0002_2"}, cat.IDs())
	assert.Equal(t, []string{"lmo0001", "lmo0002"}, cat.Loci())
	assert.Equal(t, []string{"lmo0002_1", "lmo0002_2"}, cat.Members("lmo0002"))

	r, ok := cat.Lookup("lmo0002_2")
	require.True(t, ok)
	assert.Equal(t, "ACGTAC", r.Seq)
	assert.Equal(t, 6, r.Length)
	assert.Equal(t, 12.0, r.SelfScore)
	assert.Equal(t, 2, r.Index)
	assert.Equal(t, "lmo0002", cat.LocusOf("lmo0002_2"))

	_, ok = cat.Lookup("missing")
	assert.False(t, ok)
	assert.False(t, cat.Contains("missing"))
}

func TestLoad_malformed(t *testing.T) {
	tests := []struct {
		name   string
		raws   Slice
		reason string
	}{
		{
			"duplicate identifiers",
			Slice{{ID: "a_1", Locus: "a", Seq: "ACGT"}, {ID: "a_1", Locus: "b", Seq: "ACGT"}},
			"duplicate identifier",
		},
		{
			"duplicate after normalization",
			// precomposed and decomposed forms of the same name
			Slice{{ID: "caf\u00e9_1", Locus: "a", Seq: "ACGT"}, {ID: "cafe\u0301_1", Locus: "a", Seq: "ACGT"}},
			"duplicate identifier",
		},
		{
			"empty sequence",
			Slice{{ID: "a_1", Locus: "a", Seq: "  "}},
			"empty sequence",
		},
		{
			"empty identifier",
			Slice{{ID: "", Locus: "a", Seq: "ACGT"}},
			"empty identifier",
		},
		{
			"invalid character",
			Slice{{ID: "a_1", Locus: "a", Seq: "ACNT"}},
			"invalid character 'N' at position 3",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(tt.raws)
			require.Error(t, err)
			assert.True(t, IsMalformedInput(err))
			assert.True(t, IsMalformedInput(fmt.Errorf("wrapped: %w", err)))

			var me *MalformedInputError
			require.ErrorAs(t, err, &me)
			assert.Equal(t, tt.reason, me.Reason)
		})
	}
}

func TestCatalog_All(t *testing.T) {
	cat, err := Load(Slice{
		{ID: "b_1", Locus: "b", Seq: "ACGT"},
		{ID: "a_1", Locus: "a", Seq: "ACGT"},
	})
	require.NoError(t, err)

	// restartable
	for range 2 {
		var ids []string
		for r := range cat.All() {
			ids = append(ids, r.ID)
		}
		assert.Equal(t, []string{"a_1", "b_1"}, ids)
	}

	// early stop
	n := 0
	for range cat.All() {
		n++
		break
	}
	assert.Equal(t, 1, n)
}

func TestAlleleIndex(t *testing.T) {
	tests := []struct {
		id   string
		want int
	}{
		{"lmo0001_12", 12},
		{"GCA_000001_3", 3},
		{"locus*7", 7},
		{"locus_", -1},
		{"locus", -1},
		{"locus_x", -1},
	}
	for _, tt := range tests {
		if got := AlleleIndex(tt.id); got != tt.want {
			t.Errorf("AlleleIndex(%q) = %v, want %v", tt.id, got, tt.want)
		}
	}
}
