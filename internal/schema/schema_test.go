package schema

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MForofontov/Schema-Refinery/internal/bsr"
	"github.com/MForofontov/Schema-Refinery/internal/catalog"
	"github.com/MForofontov/Schema-Refinery/internal/cluster"
	"github.com/MForofontov/Schema-Refinery/internal/fastaio"
	"github.com/MForofontov/Schema-Refinery/internal/graph"
)

// scenario has A and B redundant at 0.95, C on its own.
func scenario(t *testing.T) (*catalog.Catalog, *cluster.Partition, cluster.Representatives, *graph.Graph) {
	t.Helper()
	cat, err := catalog.Load(catalog.Slice{
		{ID: "A_1", Locus: "A", Seq: strings.Repeat("ACGT", 25)},
		{ID: "A_2", Locus: "A", Seq: strings.Repeat("ACGT", 22)},
		{ID: "B_1", Locus: "B", Seq: strings.Repeat("ACGA", 24)},
		{ID: "C_1", Locus: "C", Seq: strings.Repeat("TTGA", 25)},
	})
	require.NoError(t, err)

	g, err := graph.FromEdges(cat, []bsr.Edge{
		{A: "A_1", B: "B_1", Score: 0.95, Class: bsr.Class1a},
		{A: "B_1", B: "C_1", Score: 0.5, Class: bsr.Class1c},
	}, 0.9)
	require.NoError(t, err)

	p := cluster.Resolve(g, cat)
	reps, err := cluster.Select(p, cat, cluster.DefaultOrder)
	require.NoError(t, err)
	return cat, p, reps, g
}

func TestMerge(t *testing.T) {
	cat, p, reps, g := scenario(t)

	r, err := Merge(cat, p, reps, g)
	require.NoError(t, err)
	require.Len(t, r.Entries, 2)

	a := r.Entries[0]
	assert.Equal(t, "A", a.Locus)
	assert.Equal(t, "A_1", a.Representative)
	assert.Equal(t, []string{"B"}, a.Aliases)
	assert.Equal(t, []string{"A_1", "A_2", "B_1"}, a.Absorbed)
	assert.Equal(t, []Link{{A: "A_1", B: "B_1", BSR: 0.95, Class: bsr.Class1a}}, a.Links)

	c := r.Entries[1]
	assert.Equal(t, "C", c.Locus)
	assert.Empty(t, c.Aliases)
	assert.Equal(t, []string{"C_1"}, c.Absorbed)
	assert.Equal(t, 1, r.Merged())

	// inputs are untouched
	assert.Equal(t, cluster.Representatives{0: "A_1", 1: "C_1"}, reps)
	assert.Equal(t, []string{"A_1", "A_2", "B_1"}, p.Clusters[0].Members)

	// nil graph, no links
	r, err = Merge(cat, p, reps, nil)
	require.NoError(t, err)
	assert.Empty(t, r.Entries[0].Links)
}

func TestMerge_roundTrip(t *testing.T) {
	cat, p, reps, g := scenario(t)
	r, err := Merge(cat, p, reps, g)
	require.NoError(t, err)

	// every original locus resolves to exactly one refined entry
	owner := map[string]string{}
	for _, e := range r.Entries {
		for _, l := range append([]string{e.Locus}, e.Aliases...) {
			_, dup := owner[l]
			assert.False(t, dup, l)
			owner[l] = e.Locus
		}
	}
	assert.Len(t, owner, len(cat.Loci()))
}

func TestMerge_integrity(t *testing.T) {
	cat, p, _, g := scenario(t)

	_, err := Merge(cat, p, cluster.Representatives{0: "A_1"}, g)
	var ie *SchemaIntegrityError
	assert.ErrorAs(t, err, &ie, "missing representative")
	assert.True(t, IsSchemaIntegrity(err))

	_, err = Merge(cat, p, cluster.Representatives{0: "C_1", 1: "C_1"}, g)
	assert.ErrorAs(t, err, &ie, "representative outside its cluster")

	err = Verify(cat, &Refined{Entries: []Entry{
		{Locus: "A", Representative: "A_1", Aliases: []string{"B"}, Absorbed: []string{"A_1", "A_2", "B_1"}},
	}})
	assert.ErrorAs(t, err, &ie, "C dropped")

	err = Verify(cat, &Refined{Entries: []Entry{
		{Locus: "A", Representative: "A_1", Aliases: []string{"B"}, Absorbed: []string{"A_1", "A_2", "B_1", "C_1"}},
		{Locus: "C", Representative: "C_1", Absorbed: []string{"C_1"}},
	}})
	assert.ErrorAs(t, err, &ie, "C_1 twice")

	err = Verify(cat, &Refined{Entries: []Entry{
		{Locus: "A", Representative: "A_1", Absorbed: []string{"A_1", "A_2", "B_1"}},
		{Locus: "C", Representative: "C_1", Absorbed: []string{"C_1"}},
	}})
	assert.ErrorAs(t, err, &ie, "locus B unaccounted for")
}

func TestWriteClusterMembers(t *testing.T) {
	cat, p, reps, g := scenario(t)
	r, err := Merge(cat, p, reps, g)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteClusterMembers(&buf, cat, r))

	gold := goldie.New(t)
	gold.Assert(t, "cluster_members", buf.Bytes())
}

// writeSchema lays out a schema directory with the scenario's loci.
func writeSchema(t *testing.T, cat *catalog.Catalog) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, shortDir), 0o755))

	for _, locus := range cat.Loci() {
		var all []fastaio.Entry
		for _, id := range cat.Members(locus) {
			r, _ := cat.Lookup(id)
			all = append(all, fastaio.Entry{ID: r.ID, Seq: r.Seq})
		}
		require.NoError(t, fastaio.WriteFile(filepath.Join(dir, locus+fastaExt), all))
		require.NoError(t, fastaio.WriteFile(filepath.Join(dir, shortDir, locus+shortSuffix), all[:1]))
	}
	return dir
}

func TestDir_Raw(t *testing.T) {
	cat, _, _, _ := scenario(t)
	dir := writeSchema(t, cat)

	full, err := catalog.Load(Dir{Path: dir, Mode: Alleles})
	require.NoError(t, err)
	assert.Equal(t, cat.IDs(), full.IDs())
	assert.Equal(t, "A", full.LocusOf("A_2"))

	short, err := catalog.Load(Dir{Path: dir, Mode: Representatives})
	require.NoError(t, err)
	assert.Equal(t, []string{"A_1", "B_1", "C_1"}, short.IDs())

	loci, err := Dir{Path: dir, Mode: Representatives}.Loci()
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B", "C"}, loci)

	_, err = Dir{Path: filepath.Join(dir, "missing")}.Raw()
	assert.Error(t, err)

	_, err = Dir{Path: t.TempDir(), Mode: Alleles}.Raw()
	assert.ErrorContains(t, err, "no loci")
}

func TestWrite(t *testing.T) {
	cat, p, reps, g := scenario(t)
	src := writeSchema(t, cat)

	// only representatives in the catalog, alleles come from the source files
	short, err := catalog.Load(Dir{Path: src, Mode: Representatives})
	require.NoError(t, err)
	g, err = graph.FromEdges(short, []bsr.Edge{{A: "A_1", B: "B_1", Score: 0.95, Class: bsr.Class1a}}, 0.9)
	require.NoError(t, err)
	p = cluster.Resolve(g, short)
	reps, err = cluster.Select(p, short, cluster.DefaultOrder)
	require.NoError(t, err)
	r, err := Merge(short, p, reps, g)
	require.NoError(t, err)

	out := filepath.Join(t.TempDir(), "refined")
	require.NoError(t, Write(out, short, r, WriteOptions{
		Source:   Dir{Path: src, Mode: Representatives},
		Manifest: Manifest{Run: "run-1", Threshold: 0.9, Source: src},
	}))

	// B_1 is renumbered after A's highest allele
	alleles, err := fastaio.ReadFile(filepath.Join(out, "A.fasta"))
	require.NoError(t, err)
	var ids []string
	indices := map[int]bool{}
	for _, a := range alleles {
		ids = append(ids, a.ID)
		i := catalog.AlleleIndex(a.ID)
		assert.False(t, indices[i], "allele number %d repeated", i)
		indices[i] = true
	}
	assert.Equal(t, []string{"A_1", "A_2", "A_3"}, ids)
	b1, _ := cat.Lookup("B_1")
	assert.Equal(t, b1.Seq, alleles[2].Seq)

	// representative alleles of both loci are kept
	rep, err := fastaio.ReadFile(filepath.Join(out, shortDir, "A_short.fasta"))
	require.NoError(t, err)
	require.Len(t, rep, 2)
	assert.Equal(t, "A_1", rep[0].ID)
	assert.Equal(t, "A_3", rep[1].ID)
	assert.Equal(t, b1.Seq, rep[1].Seq)

	changes, err := os.ReadFile(filepath.Join(out, idChangesFile))
	require.NoError(t, err)
	assert.Equal(t, "Original_ID\tNew_ID\nB_1\tA_3\n", string(changes))

	assert.NoFileExists(t, filepath.Join(out, "B.fasta"))
	assert.FileExists(t, filepath.Join(out, "C.fasta"))
	assert.FileExists(t, filepath.Join(out, clusterMembersFile))

	m, err := ReadManifest(out)
	require.NoError(t, err)
	assert.Equal(t, "run-1", m.Run)
	assert.Equal(t, 3, m.LociIn)
	assert.Equal(t, 2, m.LociOut)
	assert.Equal(t, []string{"B"}, m.Entries[0].Aliases)
	assert.Equal(t, []IDChange{{Original: "B_1", New: "A_3"}}, m.IDChanges)

	// refuses to overwrite without force, and leaves no temp dirs behind
	assert.Error(t, Write(out, short, r, WriteOptions{}))
	require.NoError(t, Write(out, short, r, WriteOptions{Force: true}))
	ents, err := os.ReadDir(filepath.Dir(out))
	require.NoError(t, err)
	assert.Len(t, ents, 1)
}

func TestWrite_keepsLocusNumbering(t *testing.T) {
	cat, err := catalog.Load(catalog.Slice{
		{ID: "A_1", Locus: "A", Seq: strings.Repeat("ACGT", 25)},
		{ID: "A_7", Locus: "A", Seq: strings.Repeat("ACGT", 24)},
		{ID: "B_1", Locus: "B", Seq: strings.Repeat("ACGA", 24)},
		{ID: "B_2", Locus: "B", Seq: strings.Repeat("ACGA", 23)},
	})
	require.NoError(t, err)

	g, err := graph.FromEdges(cat, []bsr.Edge{{A: "A_1", B: "B_1", Score: 0.95, Class: bsr.Class1a}}, 0.9)
	require.NoError(t, err)
	p := cluster.Resolve(g, cat)
	reps, err := cluster.Select(p, cat, cluster.DefaultOrder)
	require.NoError(t, err)
	r, err := Merge(cat, p, reps, g)
	require.NoError(t, err)

	out := filepath.Join(t.TempDir(), "refined")
	require.NoError(t, Write(out, cat, r, WriteOptions{}))

	alleles, err := fastaio.ReadFile(filepath.Join(out, "A.fasta"))
	require.NoError(t, err)
	var ids []string
	for _, a := range alleles {
		ids = append(ids, a.ID)
	}
	assert.Equal(t, []string{"A_1", "A_7", "A_8", "A_9"}, ids)

	// without a source schema only the representative is short
	rep, err := fastaio.ReadFile(filepath.Join(out, shortDir, "A_short.fasta"))
	require.NoError(t, err)
	require.Len(t, rep, 1)
	assert.Equal(t, "A_1", rep[0].ID)

	var buf bytes.Buffer
	require.NoError(t, WriteIDChanges(&buf, []IDChange{{Original: "B_1", New: "A_8"}, {Original: "B_2", New: "A_9"}}))
	got, err := os.ReadFile(filepath.Join(out, idChangesFile))
	require.NoError(t, err)
	assert.Equal(t, buf.String(), string(got))
}

func Test_replace(t *testing.T) {
	parent := t.TempDir()
	out := filepath.Join(parent, "refined")
	require.NoError(t, os.MkdirAll(out, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(out, "old"), nil, 0o644))

	// a failed rename puts the previous output back
	err := replace(filepath.Join(parent, "missing"), out)
	assert.Error(t, err)
	assert.FileExists(t, filepath.Join(out, "old"))

	tmp := filepath.Join(parent, "tmp")
	require.NoError(t, os.MkdirAll(tmp, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(tmp, "new"), nil, 0o644))
	require.NoError(t, replace(tmp, out))
	assert.FileExists(t, filepath.Join(out, "new"))
	assert.NoFileExists(t, filepath.Join(out, "old"))

	ents, err := os.ReadDir(parent)
	require.NoError(t, err)
	assert.Len(t, ents, 1)
}

func TestDir_Raw_malformed(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, shortDir), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, shortDir, "A"+shortSuffix), []byte("ACGT\n>A_1\nACGT\n"), 0o644))

	_, err := catalog.Load(Dir{Path: dir})
	assert.True(t, catalog.IsMalformedInput(err))
}

func TestWrite_failureLeavesNothing(t *testing.T) {
	cat, p, reps, g := scenario(t)
	r, err := Merge(cat, p, reps, g)
	require.NoError(t, err)

	// representative missing from the catalog fails halfway through
	r.Entries[1].Representative = "missing"

	parent := t.TempDir()
	err = Write(filepath.Join(parent, "refined"), cat, r, WriteOptions{})
	assert.Error(t, err)

	ents, err := os.ReadDir(parent)
	require.NoError(t, err)
	assert.Empty(t, ents)
}
