package embedder

import (
	"context"
	"log/slog"
)

// Fallback wraps a primary embedder and degrades to the deterministic
// variant when the primary fails. The resulting embedding is marked
// degraded so downstream metadata records the quality loss; the pipeline
// itself never fails on an embedding error.
type Fallback struct {
	primary  Embedder
	fallback *Deterministic
	log      *slog.Logger
}

// NewFallback creates the degrading wrapper.
func NewFallback(primary Embedder, fallback *Deterministic, log *slog.Logger) *Fallback {
	if log == nil {
		log = slog.Default()
	}
	return &Fallback{primary: primary, fallback: fallback, log: log}
}

func (f *Fallback) Embed(ctx context.Context, req Request) (*Embedding, error) {
	emb, err := f.primary.Embed(ctx, req)
	if err == nil {
		return emb, nil
	}

	// Context cancellation is the caller's signal, not a provider
	// failure; don't mask it with a fallback vector.
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	f.log.Warn("remote embedding failed, falling back to deterministic",
		"hash", req.Hash.String(), "error", err)

	emb, err = f.fallback.Embed(ctx, req)
	if err != nil {
		return nil, err
	}

	degraded := *emb
	degraded.Degraded = true
	return &degraded, nil
}

func (f *Fallback) Dimension() int {
	return f.primary.Dimension()
}

func (f *Fallback) Variant() string {
	return f.primary.Variant()
}

func (f *Fallback) Close() error {
	_ = f.fallback.Close()
	return f.primary.Close()
}
