package embedder

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"

	"github.com/surgebase/porter2"
)

const (
	// DeterministicDimension is the vector length of the offline variant.
	DeterministicDimension = 256

	// minStemLength guards the stemmer against very short tokens.
	minStemLength = 3
)

// Deterministic is the always-available offline embedding variant. It
// feature-hashes porter2-stemmed tokens into a fixed-length vector and
// L2-normalizes the result. Identical content yields bit-identical
// vectors by construction.
type Deterministic struct {
	dim   int
	cache *Cache
}

// NewDeterministic creates the offline embedder. A non-positive dim uses
// DeterministicDimension; the fallback wrapper passes the remote
// dimension so a mixed index keeps one vector length.
func NewDeterministic(dim int, cache *Cache) *Deterministic {
	if dim <= 0 {
		dim = DeterministicDimension
	}
	return &Deterministic{dim: dim, cache: cache}
}

func (d *Deterministic) Embed(ctx context.Context, req Request) (*Embedding, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	if d.cache != nil {
		if emb, ok := d.cache.Get(req.Hash); ok {
			return emb, nil
		}
	}

	vector := featureHash(req.Text, d.dim)

	emb := &Embedding{
		Vector:    vector,
		Dimension: d.dim,
		Variant:   VariantDeterministic,
	}

	if d.cache != nil {
		d.cache.Set(req.Hash, emb)
	}

	return emb, nil
}

func (d *Deterministic) Dimension() int {
	return d.dim
}

func (d *Deterministic) Variant() string {
	return VariantDeterministic
}

func (d *Deterministic) Close() error {
	return nil
}

// featureHash maps text onto a dim-length vector using signed feature
// hashing over stemmed tokens, then normalizes to unit length so cosine
// similarity reduces to a dot product.
func featureHash(text string, dim int) []float32 {
	vector := make([]float32, dim)

	for _, token := range tokenize(text) {
		h := fnv.New64a()
		_, _ = h.Write([]byte(token))
		sum := h.Sum64()

		bucket := int(sum % uint64(dim))
		// One hash bit decides the sign; halves hash collisions' bias.
		if sum&(1<<63) != 0 {
			vector[bucket]--
		} else {
			vector[bucket]++
		}
	}

	return normalize(vector)
}

// tokenize splits source text into lowercase stemmed terms. CamelCase and
// snake_case identifiers split into their words so that "useCartStore"
// contributes cart and store.
func tokenize(text string) []string {
	var tokens []string
	var word []rune

	flush := func() {
		if len(word) == 0 {
			return
		}
		token := strings.ToLower(string(word))
		word = word[:0]
		if len(token) < 2 {
			return
		}
		if len(token) >= minStemLength {
			token = porter2.Stem(token)
		}
		tokens = append(tokens, token)
	}

	var prev rune
	for _, r := range text {
		switch {
		case unicode.IsLetter(r):
			// CamelCase boundary starts a new word.
			if unicode.IsUpper(r) && unicode.IsLower(prev) {
				flush()
			}
			word = append(word, r)
		case unicode.IsDigit(r):
			word = append(word, r)
		default:
			flush()
		}
		prev = r
	}
	flush()

	return tokens
}

// normalize scales a vector to unit length.
func normalize(v []float32) []float32 {
	var sum float64
	for _, val := range v {
		sum += float64(val) * float64(val)
	}
	if sum == 0 {
		return v
	}

	norm := float32(math.Sqrt(sum))
	for i := range v {
		v[i] /= norm
	}
	return v
}
