// Package engine assembles the full pipeline behind a single lifecycle.
//
// An Engine owns one data directory: the catalog database, the index
// snapshot, and the journal. A file lock guards the directory so a
// second process fails fast instead of corrupting shared state.
//
//	cfg, _ := config.Load("ctxd.yaml")
//	eng, err := engine.Open(cfg, log)
//	if err != nil { ... }
//	defer eng.Close()
//
//	_, _ = eng.Sync(ctx, "/path/to/project", false)
//	resp, _ := eng.Query(ctx, "/path/to/project", types.Query{Text: "cart total"})
//
// Open detects corrupt index persistence, discards it, and flags the
// engine so the next sync performs a full rescan. Queries degrade to
// empty results until that rescan completes.
package engine
