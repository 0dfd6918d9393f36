// Package types provides shared type definitions for the ctxd context engine.
//
// This package defines domain types used across multiple components of the
// engine, including source units, file diffs, queries, and context bundles.
//
// # Core Types
//
// SourceUnit represents one indexable structural fragment extracted from a
// project file, tagged with a lightweight pattern kind:
//
//	unit := types.SourceUnit{
//	    ID:         types.UnitID("src/Button.tsx", "Button", types.KindComponent),
//	    Path:       "src/Button.tsx",
//	    SymbolName: "Button",
//	    Kind:       types.KindComponent,
//	    Excerpt:    source,
//	}
//
// FileChange describes a single add/modify/remove event produced by the
// scanner when comparing the tree against the persisted snapshot.
//
// # Context Bundles
//
// ContextBundle is the engine's output boundary: an ordered list of
// {path, kind, excerpt, score} entries whose total excerpt size never
// exceeds the query budget:
//
//	bundle, err := engine.Query(ctx, types.Query{
//	    Text:   "button component style variants",
//	    Budget: 4096,
//	})
//
// Scores are normalized to [0, 1] and entries are sorted by descending
// score with a deterministic path/ID tie-break, so identical queries over
// an unchanged index always yield identical bundles.
package types
