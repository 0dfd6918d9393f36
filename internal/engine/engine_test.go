package engine

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pattern-foundry/ctxd/internal/config"
	"github.com/pattern-foundry/ctxd/pkg/types"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.DataDir = t.TempDir()
	return cfg
}

func writeProjectFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestOpenAndClose(t *testing.T) {
	eng, err := Open(testConfig(t), nil)
	require.NoError(t, err)
	require.NoError(t, eng.Close())
}

func TestOpenRejectsSecondProcess(t *testing.T) {
	cfg := testConfig(t)

	eng, err := Open(cfg, nil)
	require.NoError(t, err)
	defer func() { _ = eng.Close() }()

	_, err = Open(cfg, nil)
	assert.ErrorIs(t, err, ErrLocked)
}

func TestSyncAndQuery(t *testing.T) {
	cfg := testConfig(t)
	root := t.TempDir()

	writeProjectFile(t, root, "src/hooks/useCart.ts",
		"export function useCart() {\n  const items = useCartStore();\n  return items;\n}\n")
	writeProjectFile(t, root, "src/lib/date.ts",
		"export function formatDate(d) {\n  return d.toISOString();\n}\n")

	eng, err := Open(cfg, nil)
	require.NoError(t, err)
	defer func() { _ = eng.Close() }()

	ctx := context.Background()
	stats, err := eng.Sync(ctx, root, false)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.FilesAdded)

	resp, err := eng.Query(ctx, root, types.Query{Text: "cart items hook"})
	require.NoError(t, err)
	require.NotEmpty(t, resp.Bundle.Entries)
	assert.Equal(t, "useCart", resp.Bundle.Entries[0].SymbolName)
	assert.LessOrEqual(t, resp.Bundle.Size(), cfg.BudgetBytes)
}

func TestQueryUnindexedProject(t *testing.T) {
	eng, err := Open(testConfig(t), nil)
	require.NoError(t, err)
	defer func() { _ = eng.Close() }()

	_, err = eng.Query(context.Background(), t.TempDir(), types.Query{Text: "anything"})
	assert.Error(t, err)
}

func TestStateSurvivesRestart(t *testing.T) {
	cfg := testConfig(t)
	root := t.TempDir()
	writeProjectFile(t, root, "a.ts", "export function alpha() {\n  return 1;\n}\n")

	eng, err := Open(cfg, nil)
	require.NoError(t, err)
	_, err = eng.Sync(context.Background(), root, false)
	require.NoError(t, err)
	require.NoError(t, eng.Close())

	// Reopen: the snapshot and catalog carry the indexed state.
	eng, err = Open(cfg, nil)
	require.NoError(t, err)
	defer func() { _ = eng.Close() }()

	resp, err := eng.Query(context.Background(), root, types.Query{Text: "alpha"})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.Bundle.Entries)

	// And an incremental sync finds nothing to do.
	stats, err := eng.Sync(context.Background(), root, false)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.FilesAdded)
	assert.Equal(t, 0, stats.FilesModified)
}

func TestCorruptIndexTriggersFullRescan(t *testing.T) {
	cfg := testConfig(t)
	root := t.TempDir()
	writeProjectFile(t, root, "a.ts", "export function alpha() {\n  return 1;\n}\n")

	eng, err := Open(cfg, nil)
	require.NoError(t, err)
	_, err = eng.Sync(context.Background(), root, false)
	require.NoError(t, err)
	require.NoError(t, eng.Close())

	// Corrupt the snapshot on disk.
	data, err := os.ReadFile(cfg.SnapshotPath())
	require.NoError(t, err)
	data[len(data)-1] ^= 0xFF
	require.NoError(t, os.WriteFile(cfg.SnapshotPath(), data, 0o644))

	eng, err = Open(cfg, nil)
	require.NoError(t, err, "corruption is recovered, not fatal")
	defer func() { _ = eng.Close() }()

	stats, err := eng.Sync(context.Background(), root, false)
	require.NoError(t, err)
	assert.True(t, stats.FullRescan, "recovery forces a full rescan")

	resp, err := eng.Query(context.Background(), root, types.Query{Text: "alpha"})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.Bundle.Entries)
}

func TestFailedSyncInvalidatesBundleCache(t *testing.T) {
	cfg := testConfig(t)
	root := t.TempDir()
	writeProjectFile(t, root, "a.ts", "export function alpha() {\n  return 1;\n}\n")

	eng, err := Open(cfg, nil)
	require.NoError(t, err)
	defer func() { _ = eng.Close() }()

	ctx := context.Background()
	_, err = eng.Sync(ctx, root, false)
	require.NoError(t, err)

	query := types.Query{Text: "alpha"}
	_, err = eng.Query(ctx, root, query)
	require.NoError(t, err)
	resp, err := eng.Query(ctx, root, query)
	require.NoError(t, err)
	require.True(t, resp.CacheHit, "repeat query is served from the bundle cache")

	// A sync that errors may still have mutated the index, so it must
	// drop cached bundles too.
	_, err = eng.Sync(ctx, filepath.Join(t.TempDir(), "missing"), false)
	require.Error(t, err)

	resp, err = eng.Query(ctx, root, query)
	require.NoError(t, err)
	assert.False(t, resp.CacheHit, "cached bundles must not outlive a failed sync")
}

func TestCompactAndStatus(t *testing.T) {
	cfg := testConfig(t)
	root := t.TempDir()
	writeProjectFile(t, root, "a.ts", "export function alpha() {\n  return 1;\n}\n")
	writeProjectFile(t, root, "b.ts", "export function beta() {\n  return 2;\n}\n")

	eng, err := Open(cfg, nil)
	require.NoError(t, err)
	defer func() { _ = eng.Close() }()

	ctx := context.Background()
	_, err = eng.Sync(ctx, root, false)
	require.NoError(t, err)

	require.NoError(t, os.Remove(filepath.Join(root, "b.ts")))
	_, err = eng.Sync(ctx, root, false)
	require.NoError(t, err)

	status, err := eng.Status(ctx, root)
	require.NoError(t, err)
	assert.Equal(t, 1, status.Index.Live)
	assert.Equal(t, 1, status.Index.Tombstoned)
	assert.Equal(t, 1, status.Project.FilesCount)

	require.NoError(t, eng.Compact())

	status, err = eng.Status(ctx, root)
	require.NoError(t, err)
	assert.Equal(t, 0, status.Index.Tombstoned)
}
