// Package catalog persists scan and extraction state in SQLite.
//
// The catalog holds three tables per database: projects (one row per
// tracked root), files (the path-to-hash snapshot incremental scans diff
// against), and units (extracted source units with their excerpts).
// Vectors are not stored here; they live in the vector index, keyed by
// the same unit IDs.
//
// # Basic Usage
//
//	cat, err := catalog.NewSQLiteCatalog("~/.ctxd/catalog.db")
//	if err != nil { ... }
//	defer cat.Close()
//
//	project := &catalog.Project{RootPath: "/home/dev/app", IndexVersion: "1"}
//	_ = cat.CreateProject(ctx, project)
//
//	prior, _ := cat.FileHashes(ctx, project.ID)
//	// diff the filesystem against prior, then persist the outcome
//
// # Transactions
//
// Sync batches commit file rows and their units atomically:
//
//	tx, _ := cat.BeginTx(ctx)
//	defer tx.Rollback()
//	_ = tx.UpsertFile(ctx, file)
//	for _, u := range units {
//	    _ = tx.UpsertUnit(ctx, u)
//	}
//	_ = tx.Commit()
//
// # Drivers
//
// Two SQLite drivers are supported via build tags: mattn/go-sqlite3
// (cgo_sqlite tag, CGO) and modernc.org/sqlite (default, pure Go). See
// build_cgo.go and build_purego.go.
//
// # Migrations
//
// The schema is versioned with semver and migrated on open. See
// migrations.go.
package catalog
