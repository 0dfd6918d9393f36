// Package embedder maps source unit content to fixed-length vectors.
//
// Two interchangeable variants implement the Embedder interface, selected
// at construction time:
//
//   - Deterministic: signed feature hashing over porter2-stemmed tokens,
//     always available offline. Identical content always yields
//     bit-identical vectors.
//   - Remote: an OpenAI-compatible embeddings endpoint with an explicit
//     timeout and bounded exponential-backoff retry. It is always wrapped
//     in a Fallback that degrades to the deterministic variant on
//     exhaustion, marking the resulting vector degraded, so an embedding
//     failure never fails the indexing pipeline.
//
// Idempotence is enforced with an LRU cache keyed on the unit's content
// hash: unchanged content is never re-embedded.
//
//	emb, err := embedder.New(cfg, logger)
//	result, err := emb.Embed(ctx, embedder.Request{
//	    Text: unit.Excerpt,
//	    Hash: unit.ContentHash,
//	})
package embedder
