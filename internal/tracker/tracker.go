package tracker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/pattern-foundry/ctxd/internal/catalog"
	"github.com/pattern-foundry/ctxd/internal/embedder"
	"github.com/pattern-foundry/ctxd/internal/extractor"
	"github.com/pattern-foundry/ctxd/internal/index"
	"github.com/pattern-foundry/ctxd/internal/scanner"
	"github.com/pattern-foundry/ctxd/pkg/types"
)

var (
	// ErrSyncInProgress is returned when a sync is requested while another
	// is still running for the same tracker.
	ErrSyncInProgress = errors.New("sync already in progress")
)

// syncLock serializes Sync runs without queueing: a second caller fails
// fast with ErrSyncInProgress rather than waiting, since it would only
// redo work the running sync is about to finish.
type syncLock struct {
	held atomic.Int32
}

func (l *syncLock) TryAcquire() bool {
	return l.held.CompareAndSwap(0, 1)
}

func (l *syncLock) Release() {
	l.held.Store(0)
}

// Tracker coordinates the sync pipeline: scan -> extract -> embed -> index
type Tracker struct {
	scanner   *scanner.Scanner
	extractor *extractor.Extractor
	embedder  embedder.Embedder
	catalog   catalog.Catalog
	index     *index.Index
	log       *slog.Logger

	lock syncLock
}

// Config contains configuration for a sync run
type Config struct {
	Workers   int  // Number of concurrent workers (default: runtime.NumCPU())
	BatchSize int  // Number of files to commit per transaction (default: 20)
	Force     bool // Discard the persisted snapshot and rescan everything
}

// Stats contains statistics about one sync operation
type Stats struct {
	FilesAdded    int
	FilesModified int
	FilesRemoved  int
	FilesFailed   int
	UnitsIndexed  int
	UnitsRemoved  int
	UnitsDegraded int
	FullRescan    bool
	Duration      time.Duration
	ErrorMessages []string
}

// New creates a new Tracker instance
func New(cat catalog.Catalog, idx *index.Index, emb embedder.Embedder, sc *scanner.Scanner, ex *extractor.Extractor, log *slog.Logger) *Tracker {
	if log == nil {
		log = slog.Default()
	}
	return &Tracker{
		scanner:   sc,
		extractor: ex,
		embedder:  emb,
		catalog:   cat,
		index:     idx,
		log:       log,
	}
}

// Sync brings the catalog and index up to date with the tree at rootPath.
// Only changed files are reprocessed; unchanged files are skipped via the
// persisted path-to-hash snapshot. With cfg.Force the snapshot is
// discarded first and every file is treated as added.
func (t *Tracker) Sync(ctx context.Context, rootPath string, cfg *Config) (*Stats, error) {
	if !t.lock.TryAcquire() {
		return nil, ErrSyncInProgress
	}
	defer t.lock.Release()

	if cfg == nil {
		cfg = &Config{}
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 20
	}

	startTime := time.Now()
	stats := &Stats{ErrorMessages: make([]string, 0), FullRescan: cfg.Force}

	project, err := t.getOrCreateProject(ctx, rootPath)
	if err != nil {
		return nil, fmt.Errorf("failed to get or create project: %w", err)
	}

	prior := map[string]types.ContentHash{}
	if cfg.Force {
		if err := t.reset(ctx, project.ID); err != nil {
			return nil, fmt.Errorf("failed to reset before full rescan: %w", err)
		}
	} else {
		prior, err = t.catalog.FileHashes(ctx, project.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to load file snapshot: %w", err)
		}
	}

	diff, err := t.scanner.ScanAll(ctx, rootPath, prior)
	if err != nil {
		return nil, fmt.Errorf("scan failed: %w", err)
	}

	if err := t.applyRemovals(ctx, project, diff.Removed, stats); err != nil {
		return nil, err
	}

	changed := make([]types.FileChange, 0, len(diff.Added)+len(diff.Modified))
	changed = append(changed, diff.Added...)
	changed = append(changed, diff.Modified...)

	if err := t.processFiles(ctx, project, rootPath, changed, workers, batchSize, stats); err != nil {
		return nil, err
	}

	stats.FilesAdded = len(diff.Added)
	stats.FilesModified = len(diff.Modified)
	stats.FilesRemoved = len(diff.Removed)

	if err := t.updateProjectStats(ctx, project); err != nil {
		return nil, fmt.Errorf("failed to update project stats: %w", err)
	}

	stats.Duration = time.Since(startTime)
	t.log.Info("sync complete",
		"added", stats.FilesAdded,
		"modified", stats.FilesModified,
		"removed", stats.FilesRemoved,
		"failed", stats.FilesFailed,
		"units", stats.UnitsIndexed,
		"duration", stats.Duration)
	return stats, nil
}

// getOrCreateProject retrieves an existing project or creates a new one
func (t *Tracker) getOrCreateProject(ctx context.Context, rootPath string) (*catalog.Project, error) {
	project, err := t.catalog.GetProject(ctx, rootPath)
	if err == nil {
		return project, nil
	}
	if !errors.Is(err, catalog.ErrNotFound) {
		return nil, err
	}

	project = &catalog.Project{
		RootPath:     rootPath,
		IndexVersion: catalog.CurrentSchemaVersion,
	}
	if err := t.catalog.CreateProject(ctx, project); err != nil {
		return nil, err
	}
	return project, nil
}

// reset clears all per-project state ahead of a full rescan.
func (t *Tracker) reset(ctx context.Context, projectID int64) error {
	files, err := t.catalog.ListFiles(ctx, projectID)
	if err != nil {
		return err
	}
	for _, f := range files {
		if err := t.index.DeleteByPath(projectID, f.Path); err != nil {
			return err
		}
	}
	if err := t.catalog.Reset(ctx, projectID); err != nil {
		return err
	}
	return t.index.Compact()
}

// applyRemovals drops catalog rows and tombstones index entries for every
// removed path.
func (t *Tracker) applyRemovals(ctx context.Context, project *catalog.Project, removed []types.FileChange, stats *Stats) error {
	if len(removed) == 0 {
		return nil
	}

	tx, err := t.catalog.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, change := range removed {
		units, err := tx.ListUnitsByPath(ctx, project.ID, change.Path)
		if err != nil {
			return err
		}
		stats.UnitsRemoved += len(units)

		if err := tx.DeleteUnitsByPath(ctx, project.ID, change.Path); err != nil {
			return err
		}
		if err := tx.DeleteFile(ctx, project.ID, change.Path); err != nil {
			return err
		}
		if err := t.index.DeleteByPath(project.ID, change.Path); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit removals: %w", err)
	}
	return nil
}

// processFiles reprocesses changed files concurrently in batches
func (t *Tracker) processFiles(ctx context.Context, project *catalog.Project, rootPath string,
	changed []types.FileChange, workers, batchSize int, stats *Stats) error {
	if len(changed) == 0 {
		return nil
	}

	semaphore := make(chan struct{}, workers)

	var (
		indexed  int32
		degraded int32
		removed  int32
		failed   int32
	)

	g, gctx := errgroup.WithContext(ctx)
	var mu sync.Mutex // Protect stats.ErrorMessages

	for i := 0; i < len(changed); i += batchSize {
		end := i + batchSize
		if end > len(changed) {
			end = len(changed)
		}
		batch := changed[i:end]

		g.Go(func() error {
			return t.processBatch(gctx, project, rootPath, batch, semaphore,
				&indexed, &degraded, &removed, &failed, &mu, stats)
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	stats.UnitsIndexed = int(indexed)
	stats.UnitsDegraded = int(degraded)
	stats.UnitsRemoved += int(removed)
	stats.FilesFailed = int(failed)
	return nil
}

// processBatch processes a batch of files within one catalog transaction.
// Index entries land before the commit: if the commit fails, the file
// hash stays stale and the next sync reprocesses the file. Upserts are
// idempotent, so the retry converges.
func (t *Tracker) processBatch(ctx context.Context, project *catalog.Project, rootPath string,
	batch []types.FileChange, semaphore chan struct{},
	indexed, degraded, removed, failed *int32,
	mu *sync.Mutex, stats *Stats) error {

	tx, err := t.catalog.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var entries []index.Entry
	var staleIDs []string

	for _, change := range batch {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case semaphore <- struct{}{}:
			// Acquire semaphore
		}

		fileEntries, stale, err := t.processFile(ctx, tx, project, rootPath, change, indexed, degraded)
		<-semaphore // Release semaphore

		if err != nil {
			atomic.AddInt32(failed, 1)
			mu.Lock()
			stats.ErrorMessages = append(stats.ErrorMessages, fmt.Sprintf("%s: %v", change.Path, err))
			mu.Unlock()
			// Continue with other files
			continue
		}
		entries = append(entries, fileEntries...)
		staleIDs = append(staleIDs, stale...)
	}

	if len(entries) > 0 {
		if err := t.index.UpsertBatch(entries); err != nil {
			return fmt.Errorf("failed to index batch: %w", err)
		}
	}
	for _, id := range staleIDs {
		if err := t.index.Delete(project.ID, id); err != nil {
			return fmt.Errorf("failed to drop stale unit: %w", err)
		}
	}
	atomic.AddInt32(removed, int32(len(staleIDs)))

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// processFile extracts, embeds and persists one changed file. It returns
// the entries to upsert into the index and the unit IDs that existed
// before but no longer do (renamed or deleted symbols).
func (t *Tracker) processFile(ctx context.Context, store catalog.Catalog, project *catalog.Project,
	rootPath string, change types.FileChange, indexed, degraded *int32) ([]index.Entry, []string, error) {

	content, err := os.ReadFile(filepath.Join(rootPath, filepath.FromSlash(change.Path)))
	if err != nil {
		return nil, nil, err
	}

	units := t.extractor.Extract(change.Path, content, change.ModTime)

	existing, err := store.ListUnitsByPath(ctx, project.ID, change.Path)
	if err != nil {
		return nil, nil, err
	}

	file := &catalog.File{
		ProjectID:   project.ID,
		Path:        change.Path,
		ContentHash: change.Hash,
		ModTime:     change.ModTime,
		SizeBytes:   change.Size,
	}
	if err := store.UpsertFile(ctx, file); err != nil {
		return nil, nil, err
	}

	entries := make([]index.Entry, 0, len(units))
	current := make(map[string]bool, len(units))

	for i := range units {
		unit := &units[i]
		current[unit.ID] = true

		// The cache key must cover the exact embedded text, not just the
		// excerpt hash. Two units with identical bodies but different
		// symbol names embed different text and must not share a vector.
		text := unit.SymbolName + "\n" + unit.Excerpt
		emb, err := t.embedder.Embed(ctx, embedder.Request{
			Text: text,
			Hash: types.HashContent([]byte(text)),
		})
		if err != nil {
			return nil, nil, fmt.Errorf("embed %s: %w", unit.ID, err)
		}
		if emb.Degraded {
			unit.Degraded = true
		}
		if unit.Degraded {
			atomic.AddInt32(degraded, 1)
		}

		if err := store.UpsertUnit(ctx, catalog.FromSourceUnit(*unit, project.ID)); err != nil {
			return nil, nil, err
		}

		entries = append(entries, index.Entry{
			ProjectID:   project.ID,
			UnitID:      unit.ID,
			Path:        unit.Path,
			SymbolName:  unit.SymbolName,
			Kind:        unit.Kind,
			ContentHash: unit.ContentHash,
			Vector:      emb.Vector,
			Degraded:    unit.Degraded,
		})
		atomic.AddInt32(indexed, 1)
	}

	// Units that vanished from the file get dropped from catalog and
	// index.
	var stale []string
	for _, old := range existing {
		if current[old.UnitID] {
			continue
		}
		if err := store.DeleteUnit(ctx, project.ID, old.UnitID); err != nil {
			return nil, nil, err
		}
		stale = append(stale, old.UnitID)
	}

	return entries, stale, nil
}

// updateProjectStats refreshes the project's file and unit counts
func (t *Tracker) updateProjectStats(ctx context.Context, project *catalog.Project) error {
	status, err := t.catalog.GetStatus(ctx, project.ID)
	if err != nil {
		return err
	}

	project.TotalFiles = status.FilesCount
	project.TotalUnits = status.UnitsCount
	project.LastIndexedAt = time.Now()

	return t.catalog.UpdateProject(ctx, project)
}
