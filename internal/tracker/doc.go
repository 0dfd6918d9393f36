// Package tracker coordinates the end-to-end sync pipeline.
//
// A sync diffs the project tree against the persisted path-to-hash
// snapshot, reprocesses only the changed files (extract, embed, index),
// and drops catalog rows and index entries for removed files. Unchanged
// files cost one hash comparison and nothing else.
//
// # Basic Usage
//
//	trk := tracker.New(cat, idx, emb, sc, ex, log)
//
//	stats, err := trk.Sync(ctx, "/path/to/project", nil)
//	fmt.Printf("indexed %d units in %v\n", stats.UnitsIndexed, stats.Duration)
//
// # Pipeline
//
//  1. Scan: walk the tree, hash source files, diff against the snapshot
//  2. Removals: drop units and file rows for vanished paths
//  3. Changed files: extract units, embed, upsert catalog + index
//  4. Stale units: delete units that no longer exist in a modified file
//
// Changed files are processed concurrently by a bounded worker pool and
// committed in per-batch transactions. Single-file failures are recorded
// in Stats.ErrorMessages and never abort the run.
//
// # Full Rescan
//
// Config.Force discards the snapshot and reprocesses everything. The
// engine uses this to recover when index persistence is corrupt.
//
// # Watch Mode
//
// Watcher wraps the tracker with an fsnotify loop: filesystem events are
// debounced and each quiet period triggers one incremental sync. See
// watcher.go.
package tracker
