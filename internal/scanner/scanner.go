package scanner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/pattern-foundry/ctxd/pkg/types"
)

var (
	// ErrRootUnreadable is returned when the project root itself cannot
	// be opened. Unlike per-entry failures this is fatal to the scan.
	ErrRootUnreadable = errors.New("project root is not readable")
)

// ScanError records a non-fatal failure on a single path. Scans log these
// and continue; they never abort the walk.
type ScanError struct {
	Path string
	Err  error
}

func (e *ScanError) Error() string {
	return fmt.Sprintf("scan %s: %v", e.Path, e.Err)
}

func (e *ScanError) Unwrap() error { return e.Err }

// sourceExts are the file extensions the engine indexes.
var sourceExts = map[string]bool{
	".ts":  true,
	".tsx": true,
	".js":  true,
	".jsx": true,
	".mjs": true,
	".cjs": true,
}

// Scanner walks a project tree and emits add/modify/remove changes against
// a persisted path-to-hash snapshot. Scanners are stateless and safe for
// reuse across scans.
type Scanner struct {
	ignore []string
	log    *slog.Logger
}

// New creates a Scanner with the given ignore patterns (doublestar globs
// matched against root-relative paths).
func New(ignorePatterns []string, log *slog.Logger) *Scanner {
	if log == nil {
		log = slog.Default()
	}
	return &Scanner{ignore: ignorePatterns, log: log}
}

// Scan walks root and streams changes relative to prior, the persisted
// path-to-hash snapshot. Added and modified entries are emitted as they
// are discovered; removals are emitted after the walk completes. The
// returned error channel delivers at most one fatal error after the
// change channel closes.
//
// The walk is iterative with an explicit directory stack and tracks
// canonicalized directories so symlink cycles terminate. Cancellation is
// checked between directory entries.
func (s *Scanner) Scan(ctx context.Context, root string, prior map[string]types.ContentHash) (<-chan types.FileChange, <-chan error) {
	changes := make(chan types.FileChange, 64)
	errc := make(chan error, 1)

	go func() {
		defer close(changes)
		defer close(errc)
		if err := s.walk(ctx, root, prior, changes); err != nil {
			errc <- err
		}
	}()

	return changes, errc
}

// ScanAll runs Scan to completion and aggregates the stream into a Diff.
// Convenience for callers that do not need streaming.
func (s *Scanner) ScanAll(ctx context.Context, root string, prior map[string]types.ContentHash) (*types.Diff, error) {
	changes, errc := s.Scan(ctx, root, prior)

	diff := &types.Diff{}
	for ch := range changes {
		switch ch.Op {
		case types.OpAdded:
			diff.Added = append(diff.Added, ch)
		case types.OpModified:
			diff.Modified = append(diff.Modified, ch)
		case types.OpRemoved:
			diff.Removed = append(diff.Removed, ch)
		}
	}
	if err := <-errc; err != nil {
		return nil, err
	}
	return diff, nil
}

func (s *Scanner) walk(ctx context.Context, root string, prior map[string]types.ContentHash, out chan<- types.FileChange) error {
	rootAbs, err := filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRootUnreadable, err)
	}
	if _, err := os.ReadDir(rootAbs); err != nil {
		return fmt.Errorf("%w: %v", ErrRootUnreadable, err)
	}

	seen := make(map[string]bool, len(prior))

	// Explicit stack instead of recursion; visited set of canonical
	// directory paths bounds the walk under symlink cycles.
	stack := []string{rootAbs}
	visited := map[string]bool{}
	if canon, err := filepath.EvalSymlinks(rootAbs); err == nil {
		visited[canon] = true
	}

	for len(stack) > 0 {
		dir := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		entries, err := os.ReadDir(dir)
		if err != nil {
			s.logScanError(&ScanError{Path: dir, Err: err})
			continue
		}

		for _, entry := range entries {
			if err := ctx.Err(); err != nil {
				return err
			}

			full := filepath.Join(dir, entry.Name())
			rel, err := filepath.Rel(rootAbs, full)
			if err != nil {
				s.logScanError(&ScanError{Path: full, Err: err})
				continue
			}
			rel = filepath.ToSlash(rel)

			if s.ignored(rel, entry.IsDir()) {
				continue
			}

			info, err := entry.Info()
			if err != nil {
				s.logScanError(&ScanError{Path: full, Err: err})
				continue
			}

			// Resolve symlinks so linked directories are walked but
			// cycles are not.
			if info.Mode()&os.ModeSymlink != 0 {
				target, err := os.Stat(full)
				if err != nil {
					s.logScanError(&ScanError{Path: full, Err: err})
					continue
				}
				info = target
			}

			if info.IsDir() {
				canon, err := filepath.EvalSymlinks(full)
				if err != nil {
					s.logScanError(&ScanError{Path: full, Err: err})
					continue
				}
				if visited[canon] {
					continue
				}
				visited[canon] = true
				stack = append(stack, full)
				continue
			}

			if !sourceExts[strings.ToLower(filepath.Ext(rel))] {
				continue
			}

			content, err := os.ReadFile(full)
			if err != nil {
				// A file that exists but cannot be read is not a removal.
				// Keeping it in the seen set preserves its prior state
				// until it becomes readable again.
				if _, known := prior[rel]; known {
					seen[rel] = true
				}
				s.logScanError(&ScanError{Path: full, Err: err})
				continue
			}

			hash := types.HashContent(content)
			seen[rel] = true

			priorHash, known := prior[rel]
			if known && priorHash == hash {
				continue
			}

			change := types.FileChange{
				Path:    rel,
				Hash:    hash,
				ModTime: info.ModTime(),
				Size:    info.Size(),
			}
			if known {
				change.Op = types.OpModified
			} else {
				change.Op = types.OpAdded
			}

			select {
			case out <- change:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}

	// Snapshot paths never seen during the walk have been removed.
	// Sorted for a deterministic emission order.
	removed := make([]string, 0)
	for path := range prior {
		if !seen[path] {
			removed = append(removed, path)
		}
	}
	sort.Strings(removed)

	for _, path := range removed {
		select {
		case out <- types.FileChange{Op: types.OpRemoved, Path: path}:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return nil
}

// ignored matches rel against the configured ignore globs. Directory
// patterns like "**/node_modules/**" also prune the directory itself.
func (s *Scanner) ignored(rel string, isDir bool) bool {
	for _, pattern := range s.ignore {
		if matched, err := doublestar.Match(pattern, rel); err == nil && matched {
			return true
		}
		if isDir {
			// A pattern that matches everything under a directory
			// should prune the directory before descending into it.
			if matched, err := doublestar.Match(pattern, rel+"/"); err == nil && matched {
				return true
			}
			if strings.HasSuffix(pattern, "/**") {
				if matched, err := doublestar.Match(strings.TrimSuffix(pattern, "/**"), rel); err == nil && matched {
					return true
				}
			}
		}
	}
	return false
}

func (s *Scanner) logScanError(err *ScanError) {
	s.log.Warn("skipping unreadable path", "path", err.Path, "error", err.Err)
}
