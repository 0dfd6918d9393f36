package embedder

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/pattern-foundry/ctxd/internal/config"
)

// New builds the configured embedder variant. The remote variant is
// always wrapped in a deterministic fallback (sized to the remote
// dimension) so embedding never fails a unit. Both variants share one
// content-hash cache.
func New(cfg *config.Config, log *slog.Logger) (Embedder, error) {
	cache := NewCache(10000)

	switch cfg.Embedder {
	case config.EmbedderDeterministic:
		return NewDeterministic(0, cache), nil

	case config.EmbedderRemote:
		remote, err := NewRemote(RemoteOptions{
			Endpoint:   cfg.RemoteEndpoint,
			APIKey:     os.Getenv("CTXD_REMOTE_API_KEY"),
			Model:      cfg.RemoteModel,
			Timeout:    cfg.RemoteTimeout(),
			RetryCount: cfg.RetryCount,
		}, cache)
		if err != nil {
			return nil, err
		}
		// The fallback keeps its own cache so a degraded vector never
		// shadows a later successful remote embedding of the same hash.
		fallback := NewDeterministic(remote.Dimension(), NewCache(10000))
		return NewFallback(remote, fallback, log), nil

	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownVariant, cfg.Embedder)
	}
}
