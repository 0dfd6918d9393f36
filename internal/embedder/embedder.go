package embedder

import (
	"context"
	"errors"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/pattern-foundry/ctxd/pkg/types"
)

// Common errors
var (
	ErrEmptyText      = errors.New("text cannot be empty")
	ErrRemoteFailed   = errors.New("remote embedding failed")
	ErrUnknownVariant = errors.New("unknown embedder variant")
)

// Variant names.
const (
	VariantDeterministic = "deterministic"
	VariantRemote        = "remote"
)

// Embedding is a fixed-length vector representation of unit content.
type Embedding struct {
	Vector    []float32
	Dimension int
	Variant   string

	// Degraded marks vectors produced by the deterministic fallback
	// after remote exhaustion.
	Degraded bool
}

// Request carries the text to embed and the content hash that keys the
// idempotence cache. Identical hashes always yield identical vectors.
type Request struct {
	Text string
	Hash types.ContentHash
}

// Embedder maps unit content to a fixed-length vector. Implementations
// must be idempotent per content hash.
type Embedder interface {
	Embed(ctx context.Context, req Request) (*Embedding, error)

	// Dimension returns the vector length this embedder produces.
	Dimension() int

	// Variant returns the variant name.
	Variant() string

	// Close releases any resources held by the embedder.
	Close() error
}

// Cache provides in-memory LRU caching of embeddings by content hash,
// enforcing the idempotence contract and keeping unchanged content from
// re-embedding.
type Cache struct {
	cache *lru.Cache[types.ContentHash, *Embedding]
}

// NewCache creates an embedding cache with LRU eviction.
func NewCache(maxLen int) *Cache {
	if maxLen <= 0 {
		maxLen = 10000
	}
	cache, err := lru.New[types.ContentHash, *Embedding](maxLen)
	if err != nil {
		// Only reachable with a non-positive size, which is normalized
		// above.
		cache, _ = lru.New[types.ContentHash, *Embedding](10000)
	}
	return &Cache{cache: cache}
}

// Get retrieves a deep copy of a cached embedding. Copies prevent caller
// mutations from corrupting cached vectors.
func (c *Cache) Get(hash types.ContentHash) (*Embedding, bool) {
	emb, ok := c.cache.Get(hash)
	if !ok {
		return nil, false
	}

	vectorCopy := make([]float32, len(emb.Vector))
	copy(vectorCopy, emb.Vector)

	return &Embedding{
		Vector:    vectorCopy,
		Dimension: emb.Dimension,
		Variant:   emb.Variant,
		Degraded:  emb.Degraded,
	}, true
}

// Set stores an embedding, evicting the least recently used entry when at
// capacity.
func (c *Cache) Set(hash types.ContentHash, emb *Embedding) {
	c.cache.Add(hash, emb)
}

// Size returns the current cache size.
func (c *Cache) Size() int {
	return c.cache.Len()
}

// Clear empties the cache.
func (c *Cache) Clear() {
	c.cache.Purge()
}

// validateRequest checks an embedding request.
func validateRequest(req Request) error {
	if req.Text == "" {
		return ErrEmptyText
	}
	return nil
}
