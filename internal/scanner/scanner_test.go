package scanner

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pattern-foundry/ctxd/pkg/types"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func snapshotOf(t *testing.T, diff *types.Diff) map[string]types.ContentHash {
	t.Helper()
	prior := make(map[string]types.ContentHash)
	for _, ch := range diff.Added {
		prior[ch.Path] = ch.Hash
	}
	for _, ch := range diff.Modified {
		prior[ch.Path] = ch.Hash
	}
	return prior
}

func TestScanAllDetectsNewFiles(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "src/app.ts", "export const a = 1;\n")
	writeFile(t, root, "src/ui/Button.tsx", "export function Button() {}\n")
	writeFile(t, root, "README.md", "not source\n")

	s := New(nil, nil)
	diff, err := s.ScanAll(context.Background(), root, nil)
	require.NoError(t, err)

	require.Len(t, diff.Added, 2)
	paths := []string{diff.Added[0].Path, diff.Added[1].Path}
	assert.Contains(t, paths, "src/app.ts")
	assert.Contains(t, paths, "src/ui/Button.tsx")
	assert.Empty(t, diff.Modified)
	assert.Empty(t, diff.Removed)
}

func TestScanAllUnchangedFilesProduceNoChanges(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.ts", "export const a = 1;\n")

	s := New(nil, nil)
	first, err := s.ScanAll(context.Background(), root, nil)
	require.NoError(t, err)

	second, err := s.ScanAll(context.Background(), root, snapshotOf(t, first))
	require.NoError(t, err)
	assert.Empty(t, second.Added)
	assert.Empty(t, second.Modified)
	assert.Empty(t, second.Removed)
}

func TestScanAllDetectsModification(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.ts", "export const a = 1;\n")

	s := New(nil, nil)
	first, err := s.ScanAll(context.Background(), root, nil)
	require.NoError(t, err)

	writeFile(t, root, "a.ts", "export const a = 2;\n")
	second, err := s.ScanAll(context.Background(), root, snapshotOf(t, first))
	require.NoError(t, err)

	require.Len(t, second.Modified, 1)
	assert.Equal(t, "a.ts", second.Modified[0].Path)
	assert.Empty(t, second.Added)
}

func TestScanAllDetectsRemoval(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.ts", "export const a = 1;\n")
	writeFile(t, root, "b.ts", "export const b = 2;\n")

	s := New(nil, nil)
	first, err := s.ScanAll(context.Background(), root, nil)
	require.NoError(t, err)

	require.NoError(t, os.Remove(filepath.Join(root, "b.ts")))
	second, err := s.ScanAll(context.Background(), root, snapshotOf(t, first))
	require.NoError(t, err)

	require.Len(t, second.Removed, 1)
	assert.Equal(t, "b.ts", second.Removed[0].Path)
	assert.Equal(t, types.OpRemoved, second.Removed[0].Op)
}

func TestScanAllUnreadableFileIsNotRemoved(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("permission bits work differently on windows")
	}
	if os.Geteuid() == 0 {
		t.Skip("root ignores file permissions")
	}
	root := t.TempDir()
	writeFile(t, root, "a.ts", "export const a = 1;\n")
	writeFile(t, root, "b.ts", "export const b = 2;\n")

	s := New(nil, nil)
	first, err := s.ScanAll(context.Background(), root, nil)
	require.NoError(t, err)

	// The file still exists; it just cannot be read right now. That must
	// not be reported as a removal, or its indexed units would be
	// destroyed.
	path := filepath.Join(root, "b.ts")
	require.NoError(t, os.Chmod(path, 0o000))
	t.Cleanup(func() { _ = os.Chmod(path, 0o644) })

	second, err := s.ScanAll(context.Background(), root, snapshotOf(t, first))
	require.NoError(t, err)
	assert.Empty(t, second.Removed)
	assert.Empty(t, second.Modified)
	assert.Empty(t, second.Added)
}

func TestScanAllRemovalsAreSorted(t *testing.T) {
	root := t.TempDir()
	prior := map[string]types.ContentHash{
		"z.ts": types.HashContent([]byte("z")),
		"a.ts": types.HashContent([]byte("a")),
		"m.ts": types.HashContent([]byte("m")),
	}

	s := New(nil, nil)
	diff, err := s.ScanAll(context.Background(), root, prior)
	require.NoError(t, err)

	require.Len(t, diff.Removed, 3)
	assert.Equal(t, "a.ts", diff.Removed[0].Path)
	assert.Equal(t, "m.ts", diff.Removed[1].Path)
	assert.Equal(t, "z.ts", diff.Removed[2].Path)
}

func TestScanAllHonorsIgnorePatterns(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "src/a.ts", "export const a = 1;\n")
	writeFile(t, root, "node_modules/pkg/index.js", "module.exports = {};\n")
	writeFile(t, root, "dist/bundle.js", "var x;\n")

	s := New([]string{"**/node_modules/**", "**/dist/**"}, nil)
	diff, err := s.ScanAll(context.Background(), root, nil)
	require.NoError(t, err)

	require.Len(t, diff.Added, 1)
	assert.Equal(t, "src/a.ts", diff.Added[0].Path)
}

func TestScanAllSkipsNonSourceExtensions(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "style.css", "body {}\n")
	writeFile(t, root, "data.json", "{}\n")
	writeFile(t, root, "mod.mjs", "export const x = 1;\n")

	s := New(nil, nil)
	diff, err := s.ScanAll(context.Background(), root, nil)
	require.NoError(t, err)

	require.Len(t, diff.Added, 1)
	assert.Equal(t, "mod.mjs", diff.Added[0].Path)
}

func TestScanAllUnreadableRoot(t *testing.T) {
	s := New(nil, nil)
	_, err := s.ScanAll(context.Background(), filepath.Join(t.TempDir(), "missing"), nil)
	assert.ErrorIs(t, err, ErrRootUnreadable)
}

func TestScanAllSymlinkCycleTerminates(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need elevation on windows")
	}
	root := t.TempDir()
	writeFile(t, root, "src/a.ts", "export const a = 1;\n")
	// Loop back to the root from inside the tree.
	require.NoError(t, os.Symlink(root, filepath.Join(root, "src", "loop")))

	s := New(nil, nil)
	diff, err := s.ScanAll(context.Background(), root, nil)
	require.NoError(t, err)
	require.Len(t, diff.Added, 1)
	assert.Equal(t, "src/a.ts", diff.Added[0].Path)
}

func TestScanCancellation(t *testing.T) {
	root := t.TempDir()
	for i := 0; i < 50; i++ {
		writeFile(t, root, filepath.Join("src", string(rune('a'+i%26))+".ts"), "export const a = 1;\n")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := New(nil, nil)
	_, err := s.ScanAll(ctx, root, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestScanStreamsChanges(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.ts", "export const a = 1;\n")

	s := New(nil, nil)
	changes, errc := s.Scan(context.Background(), root, nil)

	var got []types.FileChange
	for ch := range changes {
		got = append(got, ch)
	}
	require.NoError(t, <-errc)

	require.Len(t, got, 1)
	assert.Equal(t, types.OpAdded, got[0].Op)
	assert.False(t, got[0].Hash.IsZero())
	assert.Equal(t, int64(len("export const a = 1;\n")), got[0].Size)
}
