package types

import "time"

// ChangeOp identifies the kind of file change detected by a scan.
type ChangeOp string

const (
	OpAdded    ChangeOp = "added"
	OpModified ChangeOp = "modified"
	OpRemoved  ChangeOp = "removed"
)

// FileChange is a single entry in the stream of differences between the
// current tree and the last persisted snapshot. For OpRemoved only Path
// is meaningful.
type FileChange struct {
	Op      ChangeOp
	Path    string // Relative to project root
	Hash    ContentHash
	ModTime time.Time
	Size    int64
}

// Diff aggregates the changes of one completed scan.
type Diff struct {
	Added    []FileChange
	Modified []FileChange
	Removed  []FileChange
}

// Empty reports whether the scan found no changes.
func (d *Diff) Empty() bool {
	return len(d.Added) == 0 && len(d.Modified) == 0 && len(d.Removed) == 0
}

// Total returns the number of changed paths in the diff.
func (d *Diff) Total() int {
	return len(d.Added) + len(d.Modified) + len(d.Removed)
}
