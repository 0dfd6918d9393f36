package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pattern-foundry/ctxd/pkg/types"
)

var (
	// ErrNotFound is returned when a requested entity doesn't exist
	ErrNotFound = errors.New("not found")
)

// SQLiteCatalog implements the Catalog interface using SQLite
type SQLiteCatalog struct {
	db *sql.DB
}

// openDatabase opens a SQLite database with appropriate settings
func openDatabase(dbPath string) (*sql.DB, error) {
	db, err := sql.Open(DriverName, dbPath)
	if err != nil {
		return nil, err
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// SQLite benefits from a single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return db, nil
}

// NewSQLiteCatalog creates a new SQLite catalog instance
func NewSQLiteCatalog(dbPath string) (*SQLiteCatalog, error) {
	db, err := openDatabase(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := ApplyMigrations(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	return &SQLiteCatalog{db: db}, nil
}

// Close closes the database connection
func (s *SQLiteCatalog) Close() error {
	return s.db.Close()
}

// BeginTx starts a new transaction
func (s *SQLiteCatalog) BeginTx(ctx context.Context) (Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &sqliteTx{tx: tx, catalog: s}, nil
}

// querier is an interface that both *sql.DB and *sql.Tx implement
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// sqliteTx wraps a SQL transaction
type sqliteTx struct {
	tx      *sql.Tx
	catalog *SQLiteCatalog
}

func (t *sqliteTx) Commit() error {
	return t.tx.Commit()
}

func (t *sqliteTx) Rollback() error {
	return t.tx.Rollback()
}

// querier returns the transaction querier
func (t *sqliteTx) querier() querier {
	return t.tx
}

// querier returns the DB querier
func (s *SQLiteCatalog) querier() querier {
	return s.db
}

// Project operations

func (s *SQLiteCatalog) createProjectWithQuerier(ctx context.Context, q querier, project *Project) error {
	query := `
		INSERT INTO projects (root_path, index_version, created_at, updated_at)
		VALUES (?, ?, ?, ?)
	`
	now := time.Now()
	result, err := q.ExecContext(ctx, query, project.RootPath, project.IndexVersion, now, now)
	if err != nil {
		return fmt.Errorf("failed to create project: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	project.ID = id
	project.CreatedAt = now
	project.UpdatedAt = now
	return nil
}

func (s *SQLiteCatalog) CreateProject(ctx context.Context, project *Project) error {
	return s.createProjectWithQuerier(ctx, s.querier(), project)
}

func (s *SQLiteCatalog) getProjectWithQuerier(ctx context.Context, q querier, rootPath string) (*Project, error) {
	query := `
		SELECT id, root_path, total_files, total_units, index_version,
		       last_indexed_at, created_at, updated_at
		FROM projects
		WHERE root_path = ?
	`
	var project Project
	var lastIndexedAt sql.NullTime
	err := q.QueryRowContext(ctx, query, rootPath).Scan(
		&project.ID, &project.RootPath, &project.TotalFiles, &project.TotalUnits,
		&project.IndexVersion, &lastIndexedAt, &project.CreatedAt, &project.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if lastIndexedAt.Valid {
		project.LastIndexedAt = lastIndexedAt.Time
	}
	return &project, nil
}

func (s *SQLiteCatalog) GetProject(ctx context.Context, rootPath string) (*Project, error) {
	return s.getProjectWithQuerier(ctx, s.querier(), rootPath)
}

func (s *SQLiteCatalog) updateProjectWithQuerier(ctx context.Context, q querier, project *Project) error {
	query := `
		UPDATE projects
		SET total_files = ?, total_units = ?, last_indexed_at = ?, updated_at = ?
		WHERE id = ?
	`
	now := time.Now()
	_, err := q.ExecContext(ctx, query,
		project.TotalFiles, project.TotalUnits, project.LastIndexedAt, now, project.ID)
	if err != nil {
		return fmt.Errorf("failed to update project: %w", err)
	}
	project.UpdatedAt = now
	return nil
}

func (s *SQLiteCatalog) UpdateProject(ctx context.Context, project *Project) error {
	return s.updateProjectWithQuerier(ctx, s.querier(), project)
}

// File operations

func (s *SQLiteCatalog) upsertFileWithQuerier(ctx context.Context, q querier, file *File) error {
	query := `
		INSERT INTO files (project_id, file_path, content_hash, mod_time, size_bytes, last_indexed_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(project_id, file_path) DO UPDATE SET
			content_hash = excluded.content_hash,
			mod_time = excluded.mod_time,
			size_bytes = excluded.size_bytes,
			last_indexed_at = excluded.last_indexed_at,
			updated_at = excluded.updated_at
		RETURNING id
	`
	now := time.Now()
	err := q.QueryRowContext(ctx, query,
		file.ProjectID, file.Path, file.ContentHash[:],
		file.ModTime, file.SizeBytes, now, now, now).Scan(&file.ID)
	if err != nil {
		return fmt.Errorf("failed to upsert file: %w", err)
	}

	file.LastIndexedAt = now
	file.UpdatedAt = now
	return nil
}

func (s *SQLiteCatalog) UpsertFile(ctx context.Context, file *File) error {
	return s.upsertFileWithQuerier(ctx, s.querier(), file)
}

func scanFile(row interface{ Scan(...interface{}) error }) (*File, error) {
	var file File
	var hash []byte
	err := row.Scan(
		&file.ID, &file.ProjectID, &file.Path, &hash,
		&file.ModTime, &file.SizeBytes, &file.LastIndexedAt,
		&file.CreatedAt, &file.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	copy(file.ContentHash[:], hash)
	return &file, nil
}

func (s *SQLiteCatalog) getFileWithQuerier(ctx context.Context, q querier, projectID int64, path string) (*File, error) {
	query := `
		SELECT id, project_id, file_path, content_hash, mod_time,
		       size_bytes, last_indexed_at, created_at, updated_at
		FROM files
		WHERE project_id = ? AND file_path = ?
	`
	file, err := scanFile(q.QueryRowContext(ctx, query, projectID, path))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return file, err
}

func (s *SQLiteCatalog) GetFile(ctx context.Context, projectID int64, path string) (*File, error) {
	return s.getFileWithQuerier(ctx, s.querier(), projectID, path)
}

func (s *SQLiteCatalog) listFilesWithQuerier(ctx context.Context, q querier, projectID int64) ([]*File, error) {
	query := `
		SELECT id, project_id, file_path, content_hash, mod_time,
		       size_bytes, last_indexed_at, created_at, updated_at
		FROM files
		WHERE project_id = ?
		ORDER BY file_path
	`
	rows, err := q.QueryContext(ctx, query, projectID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	files := make([]*File, 0)
	for rows.Next() {
		file, err := scanFile(rows)
		if err != nil {
			return nil, err
		}
		files = append(files, file)
	}
	return files, rows.Err()
}

func (s *SQLiteCatalog) ListFiles(ctx context.Context, projectID int64) ([]*File, error) {
	return s.listFilesWithQuerier(ctx, s.querier(), projectID)
}

func (s *SQLiteCatalog) deleteFileWithQuerier(ctx context.Context, q querier, projectID int64, path string) error {
	_, err := q.ExecContext(ctx, `DELETE FROM files WHERE project_id = ? AND file_path = ?`, projectID, path)
	return err
}

func (s *SQLiteCatalog) DeleteFile(ctx context.Context, projectID int64, path string) error {
	return s.deleteFileWithQuerier(ctx, s.querier(), projectID, path)
}

func (s *SQLiteCatalog) fileHashesWithQuerier(ctx context.Context, q querier, projectID int64) (map[string]types.ContentHash, error) {
	rows, err := q.QueryContext(ctx, `SELECT file_path, content_hash FROM files WHERE project_id = ?`, projectID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	hashes := make(map[string]types.ContentHash)
	for rows.Next() {
		var path string
		var raw []byte
		if err := rows.Scan(&path, &raw); err != nil {
			return nil, err
		}
		var hash types.ContentHash
		copy(hash[:], raw)
		hashes[path] = hash
	}
	return hashes, rows.Err()
}

func (s *SQLiteCatalog) FileHashes(ctx context.Context, projectID int64) (map[string]types.ContentHash, error) {
	return s.fileHashesWithQuerier(ctx, s.querier(), projectID)
}

// Unit operations

func (s *SQLiteCatalog) upsertUnitWithQuerier(ctx context.Context, q querier, unit *Unit) error {
	query := `
		INSERT INTO units (project_id, unit_id, file_path, symbol_name, kind, content_hash, excerpt, degraded, last_modified, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(project_id, unit_id) DO UPDATE SET
			file_path = excluded.file_path,
			symbol_name = excluded.symbol_name,
			kind = excluded.kind,
			content_hash = excluded.content_hash,
			excerpt = excluded.excerpt,
			degraded = excluded.degraded,
			last_modified = excluded.last_modified,
			updated_at = excluded.updated_at
		RETURNING id
	`
	now := time.Now()
	err := q.QueryRowContext(ctx, query,
		unit.ProjectID, unit.UnitID, unit.Path, unit.SymbolName, unit.Kind,
		unit.ContentHash[:], unit.Excerpt, unit.Degraded, unit.LastModified, now, now).Scan(&unit.ID)
	if err != nil {
		return fmt.Errorf("failed to upsert unit: %w", err)
	}
	unit.UpdatedAt = now
	return nil
}

func (s *SQLiteCatalog) UpsertUnit(ctx context.Context, unit *Unit) error {
	return s.upsertUnitWithQuerier(ctx, s.querier(), unit)
}

func scanUnit(row interface{ Scan(...interface{}) error }) (*Unit, error) {
	var unit Unit
	var hash []byte
	err := row.Scan(
		&unit.ID, &unit.ProjectID, &unit.UnitID, &unit.Path, &unit.SymbolName,
		&unit.Kind, &hash, &unit.Excerpt, &unit.Degraded, &unit.LastModified,
		&unit.CreatedAt, &unit.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	copy(unit.ContentHash[:], hash)
	return &unit, nil
}

const unitColumns = `id, project_id, unit_id, file_path, symbol_name, kind,
	content_hash, excerpt, degraded, last_modified, created_at, updated_at`

func (s *SQLiteCatalog) getUnitWithQuerier(ctx context.Context, q querier, projectID int64, unitID string) (*Unit, error) {
	query := `SELECT ` + unitColumns + ` FROM units WHERE project_id = ? AND unit_id = ?`
	unit, err := scanUnit(q.QueryRowContext(ctx, query, projectID, unitID))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return unit, err
}

func (s *SQLiteCatalog) GetUnit(ctx context.Context, projectID int64, unitID string) (*Unit, error) {
	return s.getUnitWithQuerier(ctx, s.querier(), projectID, unitID)
}

func (s *SQLiteCatalog) getUnitsWithQuerier(ctx context.Context, q querier, projectID int64, unitIDs []string) ([]*Unit, error) {
	if len(unitIDs) == 0 {
		return []*Unit{}, nil
	}

	placeholders := strings.Repeat("?,", len(unitIDs))
	placeholders = placeholders[:len(placeholders)-1]
	query := `SELECT ` + unitColumns + ` FROM units WHERE project_id = ? AND unit_id IN (` + placeholders + `)`

	args := make([]interface{}, 0, len(unitIDs)+1)
	args = append(args, projectID)
	for _, id := range unitIDs {
		args = append(args, id)
	}

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	units := make([]*Unit, 0, len(unitIDs))
	for rows.Next() {
		unit, err := scanUnit(rows)
		if err != nil {
			return nil, err
		}
		units = append(units, unit)
	}
	return units, rows.Err()
}

func (s *SQLiteCatalog) GetUnits(ctx context.Context, projectID int64, unitIDs []string) ([]*Unit, error) {
	return s.getUnitsWithQuerier(ctx, s.querier(), projectID, unitIDs)
}

func (s *SQLiteCatalog) listUnitsByPathWithQuerier(ctx context.Context, q querier, projectID int64, path string) ([]*Unit, error) {
	query := `SELECT ` + unitColumns + ` FROM units WHERE project_id = ? AND file_path = ? ORDER BY unit_id`
	rows, err := q.QueryContext(ctx, query, projectID, path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	units := make([]*Unit, 0)
	for rows.Next() {
		unit, err := scanUnit(rows)
		if err != nil {
			return nil, err
		}
		units = append(units, unit)
	}
	return units, rows.Err()
}

func (s *SQLiteCatalog) ListUnitsByPath(ctx context.Context, projectID int64, path string) ([]*Unit, error) {
	return s.listUnitsByPathWithQuerier(ctx, s.querier(), projectID, path)
}

func (s *SQLiteCatalog) deleteUnitWithQuerier(ctx context.Context, q querier, projectID int64, unitID string) error {
	_, err := q.ExecContext(ctx, `DELETE FROM units WHERE project_id = ? AND unit_id = ?`, projectID, unitID)
	return err
}

func (s *SQLiteCatalog) DeleteUnit(ctx context.Context, projectID int64, unitID string) error {
	return s.deleteUnitWithQuerier(ctx, s.querier(), projectID, unitID)
}

func (s *SQLiteCatalog) deleteUnitsByPathWithQuerier(ctx context.Context, q querier, projectID int64, path string) error {
	_, err := q.ExecContext(ctx, `DELETE FROM units WHERE project_id = ? AND file_path = ?`, projectID, path)
	return err
}

func (s *SQLiteCatalog) DeleteUnitsByPath(ctx context.Context, projectID int64, path string) error {
	return s.deleteUnitsByPathWithQuerier(ctx, s.querier(), projectID, path)
}

// Status operations

func (s *SQLiteCatalog) getStatusWithQuerier(ctx context.Context, q querier, projectID int64) (*ProjectStatus, error) {
	var project Project
	var lastIndexedAt sql.NullTime
	err := q.QueryRowContext(ctx, `
		SELECT id, root_path, total_files, total_units, index_version,
		       last_indexed_at, created_at, updated_at
		FROM projects WHERE id = ?
	`, projectID).Scan(
		&project.ID, &project.RootPath, &project.TotalFiles, &project.TotalUnits,
		&project.IndexVersion, &lastIndexedAt, &project.CreatedAt, &project.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if lastIndexedAt.Valid {
		project.LastIndexedAt = lastIndexedAt.Time
	}

	status := &ProjectStatus{
		Project:       &project,
		KindCounts:    make(map[string]int),
		LastIndexedAt: project.LastIndexedAt,
	}

	if err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM files WHERE project_id = ?`, projectID).Scan(&status.FilesCount); err != nil {
		return nil, err
	}
	if err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM units WHERE project_id = ?`, projectID).Scan(&status.UnitsCount); err != nil {
		return nil, err
	}
	if err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM units WHERE project_id = ? AND degraded = 1`, projectID).Scan(&status.DegradedCount); err != nil {
		return nil, err
	}

	rows, err := q.QueryContext(ctx, `SELECT kind, COUNT(*) FROM units WHERE project_id = ? GROUP BY kind`, projectID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var kind string
		var count int
		if err := rows.Scan(&kind, &count); err != nil {
			return nil, err
		}
		status.KindCounts[kind] = count
	}
	return status, rows.Err()
}

func (s *SQLiteCatalog) GetStatus(ctx context.Context, projectID int64) (*ProjectStatus, error) {
	return s.getStatusWithQuerier(ctx, s.querier(), projectID)
}

// Reset operations

func (s *SQLiteCatalog) resetWithQuerier(ctx context.Context, q querier, projectID int64) error {
	if _, err := q.ExecContext(ctx, `DELETE FROM units WHERE project_id = ?`, projectID); err != nil {
		return fmt.Errorf("failed to reset units: %w", err)
	}
	if _, err := q.ExecContext(ctx, `DELETE FROM files WHERE project_id = ?`, projectID); err != nil {
		return fmt.Errorf("failed to reset files: %w", err)
	}
	return nil
}

func (s *SQLiteCatalog) Reset(ctx context.Context, projectID int64) error {
	return s.resetWithQuerier(ctx, s.querier(), projectID)
}

// Transaction method implementations. Each delegates to the internal
// querier-based implementation with the transaction's querier.

func (t *sqliteTx) CreateProject(ctx context.Context, project *Project) error {
	return t.catalog.createProjectWithQuerier(ctx, t.querier(), project)
}

func (t *sqliteTx) GetProject(ctx context.Context, rootPath string) (*Project, error) {
	return t.catalog.getProjectWithQuerier(ctx, t.querier(), rootPath)
}

func (t *sqliteTx) UpdateProject(ctx context.Context, project *Project) error {
	return t.catalog.updateProjectWithQuerier(ctx, t.querier(), project)
}

func (t *sqliteTx) UpsertFile(ctx context.Context, file *File) error {
	return t.catalog.upsertFileWithQuerier(ctx, t.querier(), file)
}

func (t *sqliteTx) GetFile(ctx context.Context, projectID int64, path string) (*File, error) {
	return t.catalog.getFileWithQuerier(ctx, t.querier(), projectID, path)
}

func (t *sqliteTx) ListFiles(ctx context.Context, projectID int64) ([]*File, error) {
	return t.catalog.listFilesWithQuerier(ctx, t.querier(), projectID)
}

func (t *sqliteTx) DeleteFile(ctx context.Context, projectID int64, path string) error {
	return t.catalog.deleteFileWithQuerier(ctx, t.querier(), projectID, path)
}

func (t *sqliteTx) FileHashes(ctx context.Context, projectID int64) (map[string]types.ContentHash, error) {
	return t.catalog.fileHashesWithQuerier(ctx, t.querier(), projectID)
}

func (t *sqliteTx) UpsertUnit(ctx context.Context, unit *Unit) error {
	return t.catalog.upsertUnitWithQuerier(ctx, t.querier(), unit)
}

func (t *sqliteTx) GetUnit(ctx context.Context, projectID int64, unitID string) (*Unit, error) {
	return t.catalog.getUnitWithQuerier(ctx, t.querier(), projectID, unitID)
}

func (t *sqliteTx) GetUnits(ctx context.Context, projectID int64, unitIDs []string) ([]*Unit, error) {
	return t.catalog.getUnitsWithQuerier(ctx, t.querier(), projectID, unitIDs)
}

func (t *sqliteTx) ListUnitsByPath(ctx context.Context, projectID int64, path string) ([]*Unit, error) {
	return t.catalog.listUnitsByPathWithQuerier(ctx, t.querier(), projectID, path)
}

func (t *sqliteTx) DeleteUnit(ctx context.Context, projectID int64, unitID string) error {
	return t.catalog.deleteUnitWithQuerier(ctx, t.querier(), projectID, unitID)
}

func (t *sqliteTx) DeleteUnitsByPath(ctx context.Context, projectID int64, path string) error {
	return t.catalog.deleteUnitsByPathWithQuerier(ctx, t.querier(), projectID, path)
}

func (t *sqliteTx) GetStatus(ctx context.Context, projectID int64) (*ProjectStatus, error) {
	return t.catalog.getStatusWithQuerier(ctx, t.querier(), projectID)
}

func (t *sqliteTx) Reset(ctx context.Context, projectID int64) error {
	return t.catalog.resetWithQuerier(ctx, t.querier(), projectID)
}

func (t *sqliteTx) Close() error {
	// Transactions don't close the database
	return nil
}

func (t *sqliteTx) BeginTx(ctx context.Context) (Tx, error) {
	return nil, errors.New("nested transactions not supported")
}
