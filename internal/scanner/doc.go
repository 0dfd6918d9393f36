// Package scanner walks a project tree and computes add/modify/remove
// diffs against the last persisted path-to-hash snapshot.
//
// The walk is iterative (explicit stack, no recursion) and keeps a
// visited set of canonicalized directory paths, so symlink cycles cannot
// loop it. Unreadable entries are logged and skipped; only an unreadable
// project root fails the scan. Changes are streamed through a channel
// rather than materialized, keeping memory bounded on large trees.
package scanner
