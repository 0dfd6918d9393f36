// Package index provides the in-memory vector index with durable
// snapshot and journal persistence.
//
// # Basic Usage
//
//	idx, err := index.Open(index.Options{Dir: "~/.ctxd"})
//	if err != nil { ... }
//	defer idx.Close()
//
//	_ = idx.Upsert(index.Entry{ProjectID: pid, UnitID: id, Path: path, Vector: vec})
//
//	results, _ := idx.Query(pid, queryVec, 20, nil)
//	for _, r := range results {
//	    fmt.Printf("%s %.4f\n", r.UnitID, r.Score)
//	}
//
// # Concurrency Model
//
// The index follows a single-writer, multi-reader design. Writers
// serialize on an internal mutex and publish changes by swapping an
// immutable generation pointer. Readers load the current generation
// atomically and never observe partial updates:
//
//	gen := idx.gen.Load() // consistent point-in-time view
//
// A long-running Query always completes against the generation it
// started with, even if writers land concurrent upserts.
//
// # Deletion and Compaction
//
// Delete marks entries as tombstones rather than removing them, which
// keeps deletion O(1) and crash-safe. Tombstones are excluded from
// query results and reclaimed by Compact, which also rewrites the
// snapshot and truncates the journal.
//
// # Persistence and Crash Recovery
//
// Mutations are appended to a checksummed journal before the new
// generation is published. Open loads the latest snapshot and replays
// the journal on top of it. Corruption in either file surfaces as
// ErrCorruptSnapshot or ErrCorruptJournal, which callers handle by
// discarding the store and rebuilding from source.
//
// # Ranking
//
// Query ranks live entries by cosine similarity. Ties break on path,
// then unit ID, so identical inputs always produce identical output
// order.
package index
