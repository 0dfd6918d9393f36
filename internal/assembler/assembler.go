package assembler

import (
	"context"
	"crypto/sha256"
	"fmt"
	"time"
	"unicode/utf8"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/pattern-foundry/ctxd/internal/catalog"
	"github.com/pattern-foundry/ctxd/internal/embedder"
	"github.com/pattern-foundry/ctxd/internal/index"
	"github.com/pattern-foundry/ctxd/pkg/types"
)

const (
	// DefaultTopK is the candidate pool size when the query leaves K zero.
	DefaultTopK = 20
	// DefaultMinExcerptBytes is the smallest truncated excerpt still worth
	// including. Anything shorter is skipped instead of truncated.
	DefaultMinExcerptBytes = 64

	cacheSize = 256
)

// Request contains parameters for one assembly operation
type Request struct {
	ProjectID int64
	Query     types.Query
}

// Response contains the assembled bundle and metadata
type Response struct {
	Bundle     *types.ContextBundle
	Candidates int // Ranked candidates considered before budget fill
	Duration   time.Duration
	CacheHit   bool
}

// Options configures an Assembler
type Options struct {
	TopK            int // Default candidate pool size (default: DefaultTopK)
	MinExcerptBytes int // Truncation floor (default: DefaultMinExcerptBytes)
}

// Assembler turns a text query into a budget-bounded context bundle. The
// whole pass is deterministic: the same query against the same index
// state always produces the same bundle.
type Assembler struct {
	catalog  catalog.Catalog
	index    *index.Index
	embedder embedder.Embedder
	opts     Options

	cache *lru.Cache[[32]byte, *types.ContextBundle]
}

// New creates a new Assembler instance
func New(cat catalog.Catalog, idx *index.Index, emb embedder.Embedder, opts Options) *Assembler {
	if opts.TopK <= 0 {
		opts.TopK = DefaultTopK
	}
	if opts.MinExcerptBytes <= 0 {
		opts.MinExcerptBytes = DefaultMinExcerptBytes
	}

	cache, err := lru.New[[32]byte, *types.ContextBundle](cacheSize)
	if err != nil {
		// Only possible with a non-positive size
		panic(fmt.Sprintf("failed to create bundle cache: %v", err))
	}

	return &Assembler{
		catalog:  cat,
		index:    idx,
		embedder: emb,
		opts:     opts,
		cache:    cache,
	}
}

// Assemble embeds the query, ranks the index, dedupes candidates and
// greedily fills the byte budget in rank order.
func (a *Assembler) Assemble(ctx context.Context, req Request) (*Response, error) {
	startTime := time.Now()

	query := req.Query
	if query.K <= 0 {
		query.K = a.opts.TopK
	}
	if err := query.Validate(); err != nil {
		return nil, fmt.Errorf("invalid query: %w", err)
	}

	key := fingerprint(req.ProjectID, &query)
	if bundle, ok := a.cache.Get(key); ok {
		return &Response{
			Bundle:     bundle,
			Candidates: len(bundle.Entries),
			Duration:   time.Since(startTime),
			CacheHit:   true,
		}, nil
	}

	emb, err := a.embedder.Embed(ctx, embedder.Request{
		Text: query.Text,
		Hash: types.HashContent([]byte(query.Text)),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	var filters *index.Filters
	if len(query.Filters.Kinds) > 0 || query.Filters.PathGlob != "" {
		filters = &index.Filters{
			Kinds:    query.Filters.Kinds,
			PathGlob: query.Filters.PathGlob,
		}
	}

	results, err := a.index.Query(req.ProjectID, emb.Vector, query.K, filters)
	if err != nil {
		return nil, fmt.Errorf("index query failed: %w", err)
	}

	units, err := a.fetchUnits(ctx, req.ProjectID, results)
	if err != nil {
		return nil, err
	}

	candidates := dedupe(results, units)
	bundle := a.fill(candidates, query.Budget)

	a.cache.Add(key, bundle)

	return &Response{
		Bundle:     bundle,
		Candidates: len(candidates),
		Duration:   time.Since(startTime),
	}, nil
}

// Invalidate drops all cached bundles. Called after every sync so stale
// bundles never outlive an index change.
func (a *Assembler) Invalidate() {
	a.cache.Purge()
}

// fingerprint derives the cache key from everything that affects the
// bundle.
func fingerprint(projectID int64, q *types.Query) [32]byte {
	h := sha256.New()
	fmt.Fprintf(h, "%d\x00%s\x00%d\x00%d\x00%s", projectID, q.Text, q.Budget, q.K, q.Filters.PathGlob)
	for _, kind := range q.Filters.Kinds {
		fmt.Fprintf(h, "\x00%s", kind)
	}
	var key [32]byte
	copy(key[:], h.Sum(nil))
	return key
}

// candidate pairs a ranked result with its catalog row.
type candidate struct {
	unit  *catalog.Unit
	score float64
}

// fetchUnits loads the catalog rows behind the ranked results.
func (a *Assembler) fetchUnits(ctx context.Context, projectID int64, results []index.Result) (map[string]*catalog.Unit, error) {
	if len(results) == 0 {
		return map[string]*catalog.Unit{}, nil
	}

	ids := make([]string, len(results))
	for i, r := range results {
		ids[i] = r.UnitID
	}

	units, err := a.catalog.GetUnits(ctx, projectID, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch units: %w", err)
	}

	byID := make(map[string]*catalog.Unit, len(units))
	for _, u := range units {
		byID[u.UnitID] = u
	}
	return byID, nil
}

// dedupe collapses candidates sharing a symbol name and kind, keeping the
// highest ranked one. Results arrive already ordered, so first wins.
func dedupe(results []index.Result, units map[string]*catalog.Unit) []candidate {
	seen := make(map[string]bool, len(results))
	out := make([]candidate, 0, len(results))

	for _, r := range results {
		unit, ok := units[r.UnitID]
		if !ok {
			// Index ahead of catalog (entry not yet committed); skip.
			continue
		}
		key := unit.SymbolName + "\x00" + unit.Kind
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, candidate{unit: unit, score: r.Score})
	}
	return out
}

// fill greedily packs candidates into the byte budget in rank order. A
// candidate that does not fit whole is truncated to the remaining budget;
// if the truncated excerpt would fall below the minimum useful length the
// candidate is skipped and filling continues with the next one.
func (a *Assembler) fill(candidates []candidate, budget int) *types.ContextBundle {
	bundle := &types.ContextBundle{Entries: make([]types.BundleEntry, 0, len(candidates))}
	remaining := budget

	for _, c := range candidates {
		if remaining <= 0 {
			break
		}

		excerpt := c.unit.Excerpt
		truncated := false

		if len(excerpt) > remaining {
			if remaining < a.opts.MinExcerptBytes {
				continue
			}
			excerpt = truncateUTF8(excerpt, remaining)
			truncated = true
		}

		bundle.Entries = append(bundle.Entries, types.BundleEntry{
			UnitID:     c.unit.UnitID,
			Path:       c.unit.Path,
			Kind:       types.Kind(c.unit.Kind),
			SymbolName: c.unit.SymbolName,
			Excerpt:    excerpt,
			Score:      c.score,
			Truncated:  truncated,
			Degraded:   c.unit.Degraded,
		})
		remaining -= len(excerpt)
	}

	return bundle
}

// truncateUTF8 cuts s to at most n bytes without splitting a rune.
func truncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := s[:n]
	for len(cut) > 0 && !utf8.ValidString(cut) {
		cut = cut[:len(cut)-1]
	}
	return cut
}
