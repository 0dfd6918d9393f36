package catalog

import (
	"context"
	"time"

	"github.com/pattern-foundry/ctxd/pkg/types"
)

// Catalog defines the interface for persisting scanned files and
// extracted source units
type Catalog interface {
	// Project operations
	CreateProject(ctx context.Context, project *Project) error
	GetProject(ctx context.Context, rootPath string) (*Project, error)
	UpdateProject(ctx context.Context, project *Project) error

	// File operations
	UpsertFile(ctx context.Context, file *File) error
	GetFile(ctx context.Context, projectID int64, path string) (*File, error)
	ListFiles(ctx context.Context, projectID int64) ([]*File, error)
	DeleteFile(ctx context.Context, projectID int64, path string) error
	// FileHashes returns the persisted path-to-hash snapshot the scanner
	// diffs against.
	FileHashes(ctx context.Context, projectID int64) (map[string]types.ContentHash, error)

	// Unit operations
	UpsertUnit(ctx context.Context, unit *Unit) error
	GetUnit(ctx context.Context, projectID int64, unitID string) (*Unit, error)
	GetUnits(ctx context.Context, projectID int64, unitIDs []string) ([]*Unit, error)
	ListUnitsByPath(ctx context.Context, projectID int64, path string) ([]*Unit, error)
	DeleteUnit(ctx context.Context, projectID int64, unitID string) error
	DeleteUnitsByPath(ctx context.Context, projectID int64, path string) error

	// Status operations
	GetStatus(ctx context.Context, projectID int64) (*ProjectStatus, error)

	// Reset drops all files and units for a project, keeping the project
	// row. Used before a full rebuild.
	Reset(ctx context.Context, projectID int64) error

	// Database operations
	Close() error
	BeginTx(ctx context.Context) (Tx, error)
}

// Tx represents a database transaction
type Tx interface {
	Commit() error
	Rollback() error
	Catalog // Embed Catalog interface for transaction operations
}

// Project represents a tracked codebase
type Project struct {
	ID            int64
	RootPath      string
	TotalFiles    int
	TotalUnits    int
	IndexVersion  string
	LastIndexedAt time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// File represents a tracked source file
type File struct {
	ID            int64
	ProjectID     int64
	Path          string // Relative to project root
	ContentHash   types.ContentHash
	ModTime       time.Time
	SizeBytes     int64
	LastIndexedAt time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Unit represents a persisted source unit with its excerpt
type Unit struct {
	ID           int64
	ProjectID    int64
	UnitID       string
	Path         string
	SymbolName   string
	Kind         string
	ContentHash  types.ContentHash
	Excerpt      string
	Degraded     bool
	LastModified time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// ProjectStatus contains statistics about a tracked project
type ProjectStatus struct {
	Project       *Project
	FilesCount    int
	UnitsCount    int
	DegradedCount int
	KindCounts    map[string]int
	LastIndexedAt time.Time
}

// ToSourceUnit converts a catalog Unit to types.SourceUnit
func (u *Unit) ToSourceUnit() types.SourceUnit {
	return types.SourceUnit{
		ID:           u.UnitID,
		Path:         u.Path,
		ContentHash:  u.ContentHash,
		Kind:         types.Kind(u.Kind),
		SymbolName:   u.SymbolName,
		Excerpt:      u.Excerpt,
		LastModified: u.LastModified,
		Degraded:     u.Degraded,
	}
}

// FromSourceUnit converts a types.SourceUnit to a catalog Unit
func FromSourceUnit(su types.SourceUnit, projectID int64) *Unit {
	return &Unit{
		ProjectID:    projectID,
		UnitID:       su.ID,
		Path:         su.Path,
		SymbolName:   su.SymbolName,
		Kind:         string(su.Kind),
		ContentHash:  su.ContentHash,
		Excerpt:      su.Excerpt,
		Degraded:     su.Degraded,
		LastModified: su.LastModified,
	}
}
