package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/gofrs/flock"

	"github.com/pattern-foundry/ctxd/internal/assembler"
	"github.com/pattern-foundry/ctxd/internal/catalog"
	"github.com/pattern-foundry/ctxd/internal/config"
	"github.com/pattern-foundry/ctxd/internal/embedder"
	"github.com/pattern-foundry/ctxd/internal/extractor"
	"github.com/pattern-foundry/ctxd/internal/index"
	"github.com/pattern-foundry/ctxd/internal/scanner"
	"github.com/pattern-foundry/ctxd/internal/tracker"
	"github.com/pattern-foundry/ctxd/pkg/types"
)

var (
	// ErrLocked is returned when another process holds the data directory.
	ErrLocked = errors.New("data directory locked by another process")
)

// Engine wires the scanner, extractor, embedder, catalog, index,
// tracker and assembler behind one lifecycle. One engine owns one data
// directory, guarded by a file lock so two processes never share it.
type Engine struct {
	cfg       *config.Config
	log       *slog.Logger
	lock      *flock.Flock
	catalog   catalog.Catalog
	index     *index.Index
	embedder  embedder.Embedder
	tracker   *tracker.Tracker
	assembler *assembler.Assembler
	watcher   *tracker.Watcher

	// recovered reports whether Open had to discard corrupt index
	// persistence. The first Sync after recovery forces a full rescan.
	recovered bool
}

// Open builds an engine from configuration. Corrupt index persistence is
// discarded here and flagged so the next sync rebuilds from source.
func Open(cfg *config.Config, log *slog.Logger) (*Engine, error) {
	if log == nil {
		log = slog.Default()
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	lock := flock.New(cfg.LockPath())
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("cannot acquire data dir lock: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("%w (lock: %s)", ErrLocked, cfg.LockPath())
	}

	eng := &Engine{cfg: cfg, log: log, lock: lock}
	if err := eng.open(); err != nil {
		_ = lock.Unlock()
		return nil, err
	}
	return eng, nil
}

func (e *Engine) open() error {
	cat, err := catalog.NewSQLiteCatalog(e.cfg.CatalogPath())
	if err != nil {
		return fmt.Errorf("open catalog: %w", err)
	}

	idx, err := index.Open(index.Options{Dir: e.cfg.DataDir, Log: e.log})
	if err != nil {
		if !errors.Is(err, index.ErrCorruptSnapshot) && !errors.Is(err, index.ErrCorruptJournal) {
			_ = cat.Close()
			return fmt.Errorf("open index: %w", err)
		}
		// Corrupt persistence: discard and rebuild from a full rescan.
		e.log.Warn("index persistence corrupt, discarding", "error", err)
		_ = os.Remove(e.cfg.SnapshotPath())
		_ = os.Remove(e.cfg.JournalPath())
		idx, err = index.Open(index.Options{Dir: e.cfg.DataDir, Log: e.log})
		if err != nil {
			_ = cat.Close()
			return fmt.Errorf("reopen index after discard: %w", err)
		}
		e.recovered = true
	}

	emb, err := embedder.New(e.cfg, e.log)
	if err != nil {
		_ = cat.Close()
		_ = idx.Close()
		return fmt.Errorf("create embedder: %w", err)
	}

	sc := scanner.New(e.cfg.IgnorePatterns, e.log)
	ex := extractor.New(e.log)

	e.catalog = cat
	e.index = idx
	e.embedder = emb
	e.tracker = tracker.New(cat, idx, emb, sc, ex, e.log)
	e.assembler = assembler.New(cat, idx, emb, assembler.Options{
		TopK:            e.cfg.TopK,
		MinExcerptBytes: e.cfg.MinExcerptBytes,
	})
	e.watcher = tracker.NewWatcher(e.tracker, e.log)
	return nil
}

// Sync indexes rootPath incrementally. The first sync after corruption
// recovery, and any call with force, rescans from scratch.
func (e *Engine) Sync(ctx context.Context, rootPath string, force bool) (*tracker.Stats, error) {
	cfg := &tracker.Config{
		Workers: e.cfg.Workers,
		Force:   force || e.recovered,
	}
	// A failed sync can still have mutated the index, so cached bundles
	// are stale either way.
	defer e.assembler.Invalidate()

	stats, err := e.tracker.Sync(ctx, rootPath, cfg)
	if err != nil {
		return nil, err
	}
	e.recovered = false
	return stats, nil
}

// Query assembles a context bundle for the project at rootPath.
func (e *Engine) Query(ctx context.Context, rootPath string, query types.Query) (*assembler.Response, error) {
	if query.Budget <= 0 {
		query.Budget = e.cfg.BudgetBytes
	}

	project, err := e.catalog.GetProject(ctx, rootPath)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			return nil, fmt.Errorf("project %s has not been indexed", rootPath)
		}
		return nil, err
	}

	return e.assembler.Assemble(ctx, assembler.Request{
		ProjectID: project.ID,
		Query:     query,
	})
}

// Watch blocks, keeping rootPath continuously indexed until ctx is
// cancelled.
func (e *Engine) Watch(ctx context.Context, rootPath string, onSync func(*tracker.Stats, error)) error {
	return e.watcher.Watch(ctx, rootPath, tracker.WatchOptions{
		Ignore:  e.cfg.IgnorePatterns,
		SyncCfg: &tracker.Config{Workers: e.cfg.Workers},
		OnSync: func(stats *tracker.Stats, err error) {
			// Invalidate even on error: a partial sync may have
			// mutated the index.
			e.assembler.Invalidate()
			if onSync != nil {
				onSync(stats, err)
			}
		},
	})
}

// Compact reclaims tombstoned index entries and rewrites the snapshot.
func (e *Engine) Compact() error {
	return e.index.Compact()
}

// IndexStats reports live and tombstoned entry counts across all
// projects.
func (e *Engine) IndexStats() index.Stats {
	return e.index.Stats()
}

// Status describes the engine's view of one project.
type Status struct {
	Project   *catalog.ProjectStatus
	Index     index.Stats
	Embedder  string
	BuildMode string
}

// Status reports catalog and index statistics for rootPath.
func (e *Engine) Status(ctx context.Context, rootPath string) (*Status, error) {
	project, err := e.catalog.GetProject(ctx, rootPath)
	if err != nil {
		return nil, err
	}
	ps, err := e.catalog.GetStatus(ctx, project.ID)
	if err != nil {
		return nil, err
	}
	return &Status{
		Project:   ps,
		Index:     e.index.Stats(),
		Embedder:  e.embedder.Variant(),
		BuildMode: catalog.BuildMode,
	}, nil
}

// Close flushes the index, closes all resources and releases the data
// directory lock.
func (e *Engine) Close() error {
	var firstErr error
	if err := e.index.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := e.catalog.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := e.embedder.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := e.lock.Unlock(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
