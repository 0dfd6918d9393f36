package index

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pattern-foundry/ctxd/pkg/types"
)

func testEntry(id, path string, kind types.Kind, vec []float32) Entry {
	return Entry{
		ProjectID:  1,
		UnitID:     id,
		Path:       path,
		SymbolName: id,
		Kind:       kind,
		Vector:     vec,
	}
}

func openTestIndex(t *testing.T) *Index {
	t.Helper()
	idx, err := Open(Options{Dir: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })
	return idx
}

func TestUpsertAndQuery(t *testing.T) {
	idx := openTestIndex(t)

	require.NoError(t, idx.Upsert(testEntry("a", "src/a.ts", types.KindUtil, []float32{1, 0, 0})))
	require.NoError(t, idx.Upsert(testEntry("b", "src/b.ts", types.KindUtil, []float32{0.9, 0.1, 0})))
	require.NoError(t, idx.Upsert(testEntry("c", "src/c.ts", types.KindUtil, []float32{0, 1, 0})))

	results, err := idx.Query(1,[]float32{1, 0, 0}, 10, nil)
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, "a", results[0].UnitID)
	assert.Equal(t, "b", results[1].UnitID)
	assert.Equal(t, "c", results[2].UnitID)

	// Scores are non-increasing
	for i := 1; i < len(results); i++ {
		assert.GreaterOrEqual(t, results[i-1].Score, results[i].Score)
	}
}

func TestQueryTopKTruncation(t *testing.T) {
	idx := openTestIndex(t)

	require.NoError(t, idx.Upsert(testEntry("a", "a.ts", types.KindUtil, []float32{1, 0})))
	require.NoError(t, idx.Upsert(testEntry("b", "b.ts", types.KindUtil, []float32{0, 1})))

	results, err := idx.Query(1,[]float32{1, 0}, 1, nil)
	require.NoError(t, err)
	assert.Len(t, results, 1)

	results, err = idx.Query(1,[]float32{1, 0}, 0, nil)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestQueryDeterministicTieBreak(t *testing.T) {
	idx := openTestIndex(t)

	// Identical vectors produce identical scores; order must come from
	// path, then unit ID.
	vec := []float32{0.5, 0.5}
	require.NoError(t, idx.Upsert(testEntry("z", "src/b.ts", types.KindUtil, vec)))
	require.NoError(t, idx.Upsert(testEntry("y", "src/a.ts", types.KindUtil, vec)))
	require.NoError(t, idx.Upsert(testEntry("x", "src/a.ts", types.KindUtil, vec)))

	for i := 0; i < 5; i++ {
		results, err := idx.Query(1,vec, 10, nil)
		require.NoError(t, err)
		require.Len(t, results, 3)
		assert.Equal(t, "x", results[0].UnitID)
		assert.Equal(t, "y", results[1].UnitID)
		assert.Equal(t, "z", results[2].UnitID)
	}
}

func TestQueryFilters(t *testing.T) {
	idx := openTestIndex(t)

	vec := []float32{1, 0}
	require.NoError(t, idx.Upsert(testEntry("hook", "src/hooks/useAuth.ts", types.KindHook, vec)))
	require.NoError(t, idx.Upsert(testEntry("comp", "src/components/Button.tsx", types.KindComponent, vec)))
	require.NoError(t, idx.Upsert(testEntry("util", "src/lib/format.ts", types.KindUtil, vec)))

	tests := []struct {
		name    string
		filters *Filters
		want    []string
	}{
		{
			name:    "no filters returns everything",
			filters: nil,
			want:    []string{"comp", "hook", "util"},
		},
		{
			name:    "kind filter",
			filters: &Filters{Kinds: []types.Kind{types.KindHook}},
			want:    []string{"hook"},
		},
		{
			name:    "multiple kinds",
			filters: &Filters{Kinds: []types.Kind{types.KindHook, types.KindComponent}},
			want:    []string{"comp", "hook"},
		},
		{
			name:    "path glob",
			filters: &Filters{PathGlob: "src/components/**"},
			want:    []string{"comp"},
		},
		{
			name:    "glob and kind combined",
			filters: &Filters{Kinds: []types.Kind{types.KindUtil}, PathGlob: "src/hooks/**"},
			want:    []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			results, err := idx.Query(1,vec, 10, tt.filters)
			require.NoError(t, err)
			got := make([]string, 0, len(results))
			for _, r := range results {
				got = append(got, r.UnitID)
			}
			assert.ElementsMatch(t, tt.want, got)
		})
	}
}

func TestDeleteTombstonesEntry(t *testing.T) {
	idx := openTestIndex(t)

	vec := []float32{1, 0}
	require.NoError(t, idx.Upsert(testEntry("a", "a.ts", types.KindUtil, vec)))
	require.NoError(t, idx.Delete(1,"a"))

	results, err := idx.Query(1,vec, 10, nil)
	require.NoError(t, err)
	assert.Empty(t, results, "tombstoned entry must not appear in results")

	// Entry still physically present until compaction.
	e, ok := idx.Get(1,"a")
	require.True(t, ok)
	assert.True(t, e.Tombstoned)

	stats := idx.Stats()
	assert.Equal(t, 0, stats.Live)
	assert.Equal(t, 1, stats.Tombstoned)

	// Deleting a missing or already-tombstoned unit is a no-op.
	require.NoError(t, idx.Delete(1,"a"))
	require.NoError(t, idx.Delete(1,"never-existed"))
}

func TestDeleteByPath(t *testing.T) {
	idx := openTestIndex(t)

	vec := []float32{1, 0}
	require.NoError(t, idx.Upsert(testEntry("a1", "src/a.ts", types.KindUtil, vec)))
	require.NoError(t, idx.Upsert(testEntry("a2", "src/a.ts", types.KindHook, vec)))
	require.NoError(t, idx.Upsert(testEntry("b", "src/b.ts", types.KindUtil, vec)))

	require.NoError(t, idx.DeleteByPath(1, "src/a.ts"))

	results, err := idx.Query(1,vec, 10, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "b", results[0].UnitID)
}

func TestProjectIsolation(t *testing.T) {
	idx := openTestIndex(t)

	// Two projects can hold the same relative path and symbol without
	// clobbering each other.
	vec := []float32{1, 0}
	hashA := types.HashContent([]byte("export const a = 1"))
	hashB := types.HashContent([]byte("export const b = 2"))
	require.NoError(t, idx.Upsert(Entry{
		ProjectID: 1, UnitID: "src/utils.ts#helper@util", Path: "src/utils.ts",
		SymbolName: "helper", Kind: types.KindUtil, ContentHash: hashA, Vector: vec,
	}))
	require.NoError(t, idx.Upsert(Entry{
		ProjectID: 2, UnitID: "src/utils.ts#helper@util", Path: "src/utils.ts",
		SymbolName: "helper", Kind: types.KindUtil, ContentHash: hashB, Vector: vec,
	}))

	stats := idx.Stats()
	assert.Equal(t, 2, stats.Live)

	a, ok := idx.Get(1, "src/utils.ts#helper@util")
	require.True(t, ok)
	assert.Equal(t, hashA, a.ContentHash)
	b, ok := idx.Get(2, "src/utils.ts#helper@util")
	require.True(t, ok)
	assert.Equal(t, hashB, b.ContentHash)

	// Query only sees the requested project.
	results, err := idx.Query(2, vec, 10, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "src/utils.ts#helper@util", results[0].UnitID)

	// Removing the path in one project leaves the other intact.
	require.NoError(t, idx.DeleteByPath(1, "src/utils.ts"))
	_, ok = idx.Get(2, "src/utils.ts#helper@util")
	require.True(t, ok)
	results, err = idx.Query(2, vec, 10, nil)
	require.NoError(t, err)
	assert.Len(t, results, 1)
	results, err = idx.Query(1, vec, 10, nil)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestCompactRemovesTombstones(t *testing.T) {
	idx := openTestIndex(t)

	vec := []float32{1, 0}
	require.NoError(t, idx.Upsert(testEntry("a", "a.ts", types.KindUtil, vec)))
	require.NoError(t, idx.Upsert(testEntry("b", "b.ts", types.KindUtil, vec)))
	require.NoError(t, idx.Delete(1,"a"))

	require.NoError(t, idx.Compact())

	_, ok := idx.Get(1,"a")
	assert.False(t, ok, "compaction must physically remove tombstones")

	stats := idx.Stats()
	assert.Equal(t, 1, stats.Live)
	assert.Equal(t, 0, stats.Tombstoned)

	results, err := idx.Query(1,vec, 10, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "b", results[0].UnitID)
}

func TestDimensionMismatch(t *testing.T) {
	idx := openTestIndex(t)

	require.NoError(t, idx.Upsert(testEntry("a", "a.ts", types.KindUtil, []float32{1, 0, 0})))

	err := idx.Upsert(testEntry("b", "b.ts", types.KindUtil, []float32{1, 0}))
	assert.ErrorIs(t, err, ErrDimensionMismatch)

	err = idx.UpsertBatch([]Entry{
		testEntry("c", "c.ts", types.KindUtil, []float32{1, 0, 0}),
		testEntry("d", "d.ts", types.KindUtil, []float32{1}),
	})
	assert.ErrorIs(t, err, ErrDimensionMismatch)

	err = idx.Upsert(testEntry("e", "e.ts", types.KindUtil, nil))
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestGenerationIsolation(t *testing.T) {
	idx := openTestIndex(t)

	vec := []float32{1, 0}
	require.NoError(t, idx.Upsert(testEntry("a", "a.ts", types.KindUtil, vec)))

	// Capture the generation a reader would hold, then mutate.
	before := idx.gen.Load()
	require.NoError(t, idx.Upsert(testEntry("b", "b.ts", types.KindUtil, vec)))
	require.NoError(t, idx.Delete(1,"a"))

	// The captured generation is untouched by subsequent writes.
	assert.Len(t, before.entries, 1)
	assert.False(t, before.entries[entryKey(1, "a")].Tombstoned)

	after := idx.gen.Load()
	assert.Len(t, after.entries, 2)
	assert.True(t, after.entries[entryKey(1, "a")].Tombstoned)
}

func TestClosedIndexRejectsOperations(t *testing.T) {
	idx, err := Open(Options{Dir: t.TempDir()})
	require.NoError(t, err)
	require.NoError(t, idx.Close())

	assert.ErrorIs(t, idx.Upsert(testEntry("a", "a.ts", types.KindUtil, []float32{1})), ErrClosed)
	assert.ErrorIs(t, idx.Delete(1,"a"), ErrClosed)
	assert.ErrorIs(t, idx.Compact(), ErrClosed)
	assert.NoError(t, idx.Close(), "double close is a no-op")
}

func TestEphemeralIndex(t *testing.T) {
	idx, err := Open(Options{})
	require.NoError(t, err)
	defer func() { _ = idx.Close() }()

	vec := []float32{1, 0}
	require.NoError(t, idx.Upsert(testEntry("a", "a.ts", types.KindUtil, vec)))
	require.NoError(t, idx.Compact())

	results, err := idx.Query(1,vec, 10, nil)
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestPersistenceRoundTrip(t *testing.T) {
	dir := t.TempDir()

	idx, err := Open(Options{Dir: dir})
	require.NoError(t, err)

	require.NoError(t, idx.Upsert(Entry{
		ProjectID:   1,
		UnitID:      "src/a.ts#useAuth@hook",
		Path:        "src/a.ts",
		SymbolName:  "useAuth",
		Kind:        types.KindHook,
		ContentHash: types.HashContent([]byte("content")),
		Vector:      []float32{0.6, 0.8},
		Degraded:    true,
	}))
	require.NoError(t, idx.Upsert(testEntry("b", "src/b.ts", types.KindUtil, []float32{1, 0})))
	require.NoError(t, idx.Delete(1,"b"))
	require.NoError(t, idx.Close())

	reopened, err := Open(Options{Dir: dir})
	require.NoError(t, err)
	defer func() { _ = reopened.Close() }()

	e, ok := reopened.Get(1,"src/a.ts#useAuth@hook")
	require.True(t, ok)
	assert.Equal(t, "src/a.ts", e.Path)
	assert.Equal(t, "useAuth", e.SymbolName)
	assert.Equal(t, types.KindHook, e.Kind)
	assert.Equal(t, types.HashContent([]byte("content")), e.ContentHash)
	assert.Equal(t, []float32{0.6, 0.8}, e.Vector)
	assert.True(t, e.Degraded)

	b, ok := reopened.Get(1,"b")
	require.True(t, ok)
	assert.True(t, b.Tombstoned, "tombstones survive restart")
}

func TestJournalReplayAfterCrash(t *testing.T) {
	dir := t.TempDir()

	idx, err := Open(Options{Dir: dir})
	require.NoError(t, err)

	require.NoError(t, idx.Upsert(testEntry("a", "a.ts", types.KindUtil, []float32{1, 0})))
	require.NoError(t, idx.Upsert(testEntry("b", "b.ts", types.KindUtil, []float32{0, 1})))
	require.NoError(t, idx.Delete(1,"a"))
	// Simulate a crash: no Close, so no final snapshot. Recovery must
	// come entirely from journal replay.
	require.NoError(t, idx.journal.Close())

	reopened, err := Open(Options{Dir: dir})
	require.NoError(t, err)
	defer func() { _ = reopened.Close() }()

	a, ok := reopened.Get(1,"a")
	require.True(t, ok)
	assert.True(t, a.Tombstoned)

	results, err := reopened.Query(1,[]float32{0, 1}, 10, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "b", results[0].UnitID)
}

func TestCorruptSnapshotDetected(t *testing.T) {
	dir := t.TempDir()

	idx, err := Open(Options{Dir: dir})
	require.NoError(t, err)
	require.NoError(t, idx.Upsert(testEntry("a", "a.ts", types.KindUtil, []float32{1, 0})))
	require.NoError(t, idx.Close())

	path := snapshotPath(dir)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	data[len(data)/2] ^= 0xFF
	require.NoError(t, os.WriteFile(path, data, 0o644))

	_, err = Open(Options{Dir: dir})
	assert.ErrorIs(t, err, ErrCorruptSnapshot)
}

func TestCorruptJournalDetected(t *testing.T) {
	dir := t.TempDir()

	idx, err := Open(Options{Dir: dir})
	require.NoError(t, err)
	require.NoError(t, idx.Upsert(testEntry("a", "a.ts", types.KindUtil, []float32{1, 0})))
	require.NoError(t, idx.journal.Close())

	f, err := os.OpenFile(journalPath(dir), os.O_WRONLY|os.O_APPEND, 0o644)
	require.NoError(t, err)
	_, err = f.Write([]byte{0x04, 0x00, 0x00, 0x00, 0xDE, 0xAD, 0xBE, 0xEF})
	require.NoError(t, err)
	require.NoError(t, f.Close())

	_, err = Open(Options{Dir: dir})
	assert.ErrorIs(t, err, ErrCorruptJournal)
}

func TestTruncatedSnapshotDetected(t *testing.T) {
	dir := t.TempDir()

	idx, err := Open(Options{Dir: dir})
	require.NoError(t, err)
	require.NoError(t, idx.Upsert(testEntry("a", "a.ts", types.KindUtil, []float32{1, 0})))
	require.NoError(t, idx.Close())

	path := snapshotPath(dir)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data[:len(data)-3], 0o644))

	_, err = Open(Options{Dir: dir})
	assert.ErrorIs(t, err, ErrCorruptSnapshot)
}

func TestSnapshotWriteIsByteStable(t *testing.T) {
	dir := t.TempDir()
	entries := map[string]*Entry{
		"b": {UnitID: "b", Path: "b.ts", Kind: types.KindUtil, Vector: []float32{0, 1}},
		"a": {UnitID: "a", Path: "a.ts", Kind: types.KindUtil, Vector: []float32{1, 0}},
	}

	first := filepath.Join(dir, "first.snap")
	second := filepath.Join(dir, "second.snap")
	require.NoError(t, writeSnapshot(first, entries))
	require.NoError(t, writeSnapshot(second, entries))

	a, err := os.ReadFile(first)
	require.NoError(t, err)
	b, err := os.ReadFile(second)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{name: "identical", a: []float32{1, 0}, b: []float32{1, 0}, want: 1},
		{name: "orthogonal", a: []float32{1, 0}, b: []float32{0, 1}, want: 0},
		{name: "opposite", a: []float32{1, 0}, b: []float32{-1, 0}, want: -1},
		{name: "length mismatch", a: []float32{1, 0}, b: []float32{1}, want: 0},
		{name: "zero vector", a: []float32{0, 0}, b: []float32{1, 0}, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, CosineSimilarity(tt.a, tt.b), 1e-9)
		})
	}
}
