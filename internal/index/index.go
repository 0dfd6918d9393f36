package index

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/pattern-foundry/ctxd/pkg/types"
)

var (
	// ErrClosed is returned for operations on a closed index.
	ErrClosed = errors.New("index is closed")
	// ErrDimensionMismatch is returned when an upserted vector's length
	// differs from the vectors already in the index.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
)

// Entry is one indexed unit: its vector plus the metadata needed for
// filtered queries and staleness checks. Entries are owned exclusively by
// the index and never mutated after publication.
type Entry struct {
	ProjectID   int64
	UnitID      string
	Path        string
	SymbolName  string
	Kind        types.Kind
	ContentHash types.ContentHash
	Vector      []float32
	Degraded    bool
	Tombstoned  bool
}

// key identifies an entry within the shared index. Unit IDs are only
// unique per project, so the project ID is part of the key; without it
// two roots holding the same relative path and symbol would overwrite
// each other.
func (e *Entry) key() string {
	return entryKey(e.ProjectID, e.UnitID)
}

func entryKey(projectID int64, unitID string) string {
	return strconv.FormatInt(projectID, 10) + "\x00" + unitID
}

// Result is one ranked query hit.
type Result struct {
	UnitID string
	Score  float64
}

// Filters restricts a query to entries matching the predicates.
type Filters struct {
	Kinds    []types.Kind
	PathGlob string
}

// generation is an immutable snapshot of the index contents. Readers load
// the current generation once and never observe a partially applied
// write.
type generation struct {
	entries map[string]*Entry
	live    int // non-tombstoned count
}

// Index is the persistent unit-to-vector store. It follows a
// single-writer/multiple-reader model: writes serialize on an internal
// mutex, build a fresh generation, and publish it with one atomic pointer
// swap. Queries run against whichever generation they loaded and never
// block on writers.
type Index struct {
	mu      sync.Mutex
	gen     atomic.Pointer[generation]
	journal *Journal
	dir     string
	log     *slog.Logger
	closed  bool
}

// Options configures Open.
type Options struct {
	// Dir holds the snapshot and journal. Empty means ephemeral
	// (in-memory only, nothing persisted).
	Dir string
	Log *slog.Logger
}

// Open loads the index from its snapshot and journal. A missing snapshot
// starts empty; a corrupt snapshot or journal returns ErrCorruptSnapshot
// or ErrCorruptJournal wrapped, signalling the caller to rebuild from a
// full rescan.
func Open(opts Options) (*Index, error) {
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}

	idx := &Index{dir: opts.Dir, log: log}
	entries := map[string]*Entry{}

	if opts.Dir != "" {
		loaded, err := loadSnapshot(snapshotPath(opts.Dir))
		if err != nil {
			return nil, err
		}
		entries = loaded

		journal, err := openJournal(journalPath(opts.Dir))
		if err != nil {
			return nil, err
		}
		if err := journal.Replay(entries); err != nil {
			_ = journal.Close()
			return nil, err
		}
		idx.journal = journal
	}

	idx.gen.Store(newGeneration(entries))
	return idx, nil
}

func newGeneration(entries map[string]*Entry) *generation {
	live := 0
	for _, e := range entries {
		if !e.Tombstoned {
			live++
		}
	}
	return &generation{entries: entries, live: live}
}

// Upsert inserts or replaces the entry for the entry's project and unit
// ID. It is idempotent: re-upserting identical content is a no-op swap.
func (idx *Index) Upsert(entry Entry) error {
	if len(entry.Vector) == 0 {
		return fmt.Errorf("%w: empty vector for %s", ErrDimensionMismatch, entry.UnitID)
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()
	if idx.closed {
		return ErrClosed
	}

	cur := idx.gen.Load()
	if err := idx.checkDimension(cur, len(entry.Vector)); err != nil {
		return err
	}

	if idx.journal != nil {
		if err := idx.journal.Append(recordUpsert, &entry); err != nil {
			return err
		}
	}

	next := cloneEntries(cur.entries)
	next[entry.key()] = &entry
	idx.gen.Store(newGeneration(next))
	return nil
}

// UpsertBatch applies several upserts under one generation swap. Large
// diffs go through here so the copy-on-write cost is paid once per batch
// instead of once per unit.
func (idx *Index) UpsertBatch(entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()
	if idx.closed {
		return ErrClosed
	}

	cur := idx.gen.Load()
	dim := len(entries[0].Vector)
	for i := range entries {
		if len(entries[i].Vector) == 0 || len(entries[i].Vector) != dim {
			return fmt.Errorf("%w: inconsistent vector for %s", ErrDimensionMismatch, entries[i].UnitID)
		}
	}
	if err := idx.checkDimension(cur, dim); err != nil {
		return err
	}

	next := cloneEntries(cur.entries)
	for i := range entries {
		e := entries[i]
		if idx.journal != nil {
			if err := idx.journal.Append(recordUpsert, &e); err != nil {
				return err
			}
		}
		next[e.key()] = &e
	}
	idx.gen.Store(newGeneration(next))
	return nil
}

// Delete tombstones the project's entry. The unit becomes invisible to
// Query immediately; physical removal waits for Compact.
func (idx *Index) Delete(projectID int64, unitID string) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if idx.closed {
		return ErrClosed
	}

	cur := idx.gen.Load()
	key := entryKey(projectID, unitID)
	existing, ok := cur.entries[key]
	if !ok || existing.Tombstoned {
		return nil
	}

	if idx.journal != nil {
		if err := idx.journal.Append(recordDelete, &Entry{ProjectID: projectID, UnitID: unitID}); err != nil {
			return err
		}
	}

	tombstone := *existing
	tombstone.Tombstoned = true

	next := cloneEntries(cur.entries)
	next[key] = &tombstone
	idx.gen.Store(newGeneration(next))
	return nil
}

// DeleteByPath tombstones every live entry of the project under the
// given relative path. Used when a whole file disappears. Other projects
// holding the same relative path are untouched.
func (idx *Index) DeleteByPath(projectID int64, path string) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if idx.closed {
		return ErrClosed
	}

	cur := idx.gen.Load()
	next := cloneEntries(cur.entries)
	changed := false

	for key, e := range cur.entries {
		if e.ProjectID != projectID || e.Path != path || e.Tombstoned {
			continue
		}
		if idx.journal != nil {
			if err := idx.journal.Append(recordDelete, &Entry{ProjectID: projectID, UnitID: e.UnitID}); err != nil {
				return err
			}
		}
		tombstone := *e
		tombstone.Tombstoned = true
		next[key] = &tombstone
		changed = true
	}

	if changed {
		idx.gen.Store(newGeneration(next))
	}
	return nil
}

// Compact physically removes tombstoned entries, writes a fresh snapshot
// and truncates the journal. Readers holding the previous generation are
// unaffected.
func (idx *Index) Compact() error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if idx.closed {
		return ErrClosed
	}

	cur := idx.gen.Load()
	next := make(map[string]*Entry, cur.live)
	for id, e := range cur.entries {
		if !e.Tombstoned {
			next[id] = e
		}
	}

	if err := idx.persistLocked(next); err != nil {
		return err
	}

	idx.gen.Store(newGeneration(next))
	return nil
}

// Query ranks the project's non-tombstoned entries against the query
// vector by cosine similarity, applies the filters, and returns the top
// k results with monotonically non-increasing scores. Ties break
// deterministically on path, then unit ID.
func (idx *Index) Query(projectID int64, vector []float32, k int, filters *Filters) ([]Result, error) {
	if k <= 0 {
		return []Result{}, nil
	}

	gen := idx.gen.Load()
	if gen == nil {
		return []Result{}, nil
	}

	kindSet := map[types.Kind]bool{}
	if filters != nil {
		for _, kind := range filters.Kinds {
			kindSet[kind] = true
		}
	}

	type scored struct {
		entry *Entry
		score float64
	}
	candidates := make([]scored, 0, gen.live)

	for _, e := range gen.entries {
		if e.ProjectID != projectID || e.Tombstoned {
			continue
		}
		if len(kindSet) > 0 && !kindSet[e.Kind] {
			continue
		}
		if filters != nil && filters.PathGlob != "" {
			matched, err := doublestar.Match(filters.PathGlob, e.Path)
			if err != nil || !matched {
				continue
			}
		}
		if len(e.Vector) != len(vector) {
			continue // Dimension mismatch, skip
		}
		candidates = append(candidates, scored{entry: e, score: CosineSimilarity(vector, e.Vector)})
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		if candidates[i].entry.Path != candidates[j].entry.Path {
			return candidates[i].entry.Path < candidates[j].entry.Path
		}
		return candidates[i].entry.UnitID < candidates[j].entry.UnitID
	})

	if k > len(candidates) {
		k = len(candidates)
	}
	results := make([]Result, k)
	for i := 0; i < k; i++ {
		results[i] = Result{UnitID: candidates[i].entry.UnitID, Score: candidates[i].score}
	}
	return results, nil
}

// Get returns a copy of the project's entry for unitID, tombstoned or not.
func (idx *Index) Get(projectID int64, unitID string) (Entry, bool) {
	gen := idx.gen.Load()
	if gen == nil {
		return Entry{}, false
	}
	e, ok := gen.entries[entryKey(projectID, unitID)]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// Stats describes the current generation.
type Stats struct {
	Live       int
	Tombstoned int
	Dimension  int
}

// Stats reports live/tombstoned counts and the vector dimension.
func (idx *Index) Stats() Stats {
	gen := idx.gen.Load()
	if gen == nil {
		return Stats{}
	}
	s := Stats{Live: gen.live, Tombstoned: len(gen.entries) - gen.live}
	for _, e := range gen.entries {
		s.Dimension = len(e.Vector)
		break
	}
	return s
}

// Close writes a final snapshot, truncates the journal, and releases the
// journal file.
func (idx *Index) Close() error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if idx.closed {
		return nil
	}
	idx.closed = true

	cur := idx.gen.Load()
	if err := idx.persistLocked(cur.entries); err != nil {
		return err
	}
	if idx.journal != nil {
		return idx.journal.Close()
	}
	return nil
}

// persistLocked writes entries as the canonical snapshot and resets the
// journal. Callers hold idx.mu.
func (idx *Index) persistLocked(entries map[string]*Entry) error {
	if idx.dir == "" {
		return nil
	}
	if err := writeSnapshot(snapshotPath(idx.dir), entries); err != nil {
		return err
	}
	if idx.journal != nil {
		return idx.journal.Reset()
	}
	return nil
}

func (idx *Index) checkDimension(gen *generation, dim int) error {
	for _, e := range gen.entries {
		if len(e.Vector) != dim {
			return fmt.Errorf("%w: index holds %d-dim vectors, got %d", ErrDimensionMismatch, len(e.Vector), dim)
		}
		break
	}
	return nil
}

func cloneEntries(entries map[string]*Entry) map[string]*Entry {
	next := make(map[string]*Entry, len(entries)+1)
	for id, e := range entries {
		next[id] = e
	}
	return next
}

// CosineSimilarity computes the cosine similarity between two vectors.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}
