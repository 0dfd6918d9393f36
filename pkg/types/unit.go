package types

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// Kind classifies a source unit by the structural pattern it represents.
type Kind string

const (
	KindComponent Kind = "component"
	KindHook      Kind = "hook"
	KindStore     Kind = "store"
	KindUtil      Kind = "util"
	KindRaw       Kind = "raw"
)

// ValidKind reports whether k is one of the recognized unit kinds.
func ValidKind(k Kind) bool {
	switch k {
	case KindComponent, KindHook, KindStore, KindUtil, KindRaw:
		return true
	}
	return false
}

// ContentHash is the SHA-256 digest of a unit's raw content, used to
// detect staleness and to key the embedding cache.
type ContentHash [32]byte

// HashContent computes the ContentHash of raw content.
func HashContent(content []byte) ContentHash {
	return sha256.Sum256(content)
}

// String returns the hex encoding of the hash.
func (h ContentHash) String() string {
	return hex.EncodeToString(h[:])
}

// IsZero reports whether the hash is the zero value.
func (h ContentHash) IsZero() bool {
	return h == ContentHash{}
}

// SourceUnit is one indexable structural fragment extracted from a file.
// One file may yield multiple units; a unit is tombstoned when its file
// disappears.
type SourceUnit struct {
	ID           string
	Path         string // Relative to project root
	ContentHash  ContentHash
	Kind         Kind
	SymbolName   string
	Excerpt      string
	LastModified time.Time

	// Degraded marks units produced by the raw-fallback extraction path
	// or embedded by the deterministic fallback after a remote failure,
	// so retrieval quality issues stay diagnosable.
	Degraded bool
}

// UnitID builds the deterministic identifier for a unit. Identifiers are
// stable across rescans so that re-indexing an unchanged file is a no-op
// upsert.
func UnitID(path, symbolName string, kind Kind) string {
	return fmt.Sprintf("%s#%s@%s", path, symbolName, kind)
}

// Validate checks structural invariants of the unit.
func (u *SourceUnit) Validate() error {
	if u.ID == "" {
		return ErrMissingUnitID
	}
	if u.Path == "" {
		return ErrMissingPath
	}
	if !ValidKind(u.Kind) {
		return fmt.Errorf("%w: %q", ErrInvalidKind, u.Kind)
	}
	if u.Excerpt == "" {
		return ErrEmptyExcerpt
	}
	if u.ContentHash.IsZero() {
		return ErrMissingContentHash
	}
	return nil
}
