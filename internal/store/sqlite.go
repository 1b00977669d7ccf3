package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)

	"github.com/evanwmart/augmented-knowledge-interfaces/internal/chunk"
)

// SQLiteStore implements MetadataStore using SQLite. It holds the
// document records that drive incremental indexing plus the chunk text
// returned with search results.
type SQLiteStore struct {
	mu     sync.RWMutex
	db     *sql.DB
	path   string
	closed bool
}

// Verify interface implementation at compile time.
var _ MetadataStore = (*SQLiteStore)(nil)

// validateSQLiteIntegrity checks a database file before opening.
func validateSQLiteIntegrity(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil // Database doesn't exist, will be created
	}

	db, err := sql.Open("sqlite", path+"?mode=ro")
	if err != nil {
		return fmt.Errorf("cannot open for validation: %w", err)
	}
	defer func() { _ = db.Close() }()

	var result string
	if err := db.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity check failed: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("database corrupted: %s", result)
	}
	return nil
}

// NewSQLiteStore opens or creates the metadata store. An empty path
// creates an in-memory store for testing. A corrupted database is
// cleared and recreated, which forces the next build pass to treat every
// document as unseen.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	var dsn string
	if path == "" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}

		if validErr := validateSQLiteIntegrity(path); validErr != nil {
			slog.Warn("metadata_store_corrupted",
				slog.String("path", path),
				slog.String("error", validErr.Error()))

			if removeErr := os.Remove(path); removeErr != nil && !os.IsNotExist(removeErr) {
				return nil, fmt.Errorf("metadata store corrupted at %s and cannot remove: %w (original error: %v)",
					path, removeErr, validErr)
			}
			_ = os.Remove(path + "-wal")
			_ = os.Remove(path + "-shm")
			slog.Info("metadata_store_cleared", slog.String("path", path))
		}
		dsn = path
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Single connection prevents writer lock contention.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA temp_store = MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	s := &SQLiteStore{db: db, path: path}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS documents (
		source_path  TEXT PRIMARY KEY,
		content_hash TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS chunks (
		id          TEXT PRIMARY KEY,
		source_path TEXT NOT NULL REFERENCES documents(source_path) ON DELETE CASCADE,
		heading     TEXT NOT NULL DEFAULT '',
		position    INTEGER NOT NULL,
		text        TEXT NOT NULL,
		token_count INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_chunks_source ON chunks(source_path);

	CREATE TABLE IF NOT EXISTS state (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	INSERT OR IGNORE INTO state (key, value) VALUES ('` + StateKeySchemaVersion + `', '1');
	`
	_, err := s.db.Exec(schema)
	return err
}

// SaveDocument stores a document record and its chunks in one
// transaction, replacing any prior row for the same path.
func (s *SQLiteStore) SaveDocument(ctx context.Context, rec *DocumentRecord, chunks []*chunk.Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("store is closed")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO documents (source_path, content_hash) VALUES (?, ?)
		 ON CONFLICT(source_path) DO UPDATE SET content_hash = excluded.content_hash`,
		rec.SourcePath, rec.ContentHash); err != nil {
		return fmt.Errorf("failed to save document %s: %w", rec.SourcePath, err)
	}

	// Replace, not append: prior chunk rows for the path would otherwise
	// survive and shield stale index entries from orphan reconciliation.
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM chunks WHERE source_path = ?`, rec.SourcePath); err != nil {
		return fmt.Errorf("failed to clear chunks for %s: %w", rec.SourcePath, err)
	}

	for _, c := range chunks {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO chunks (id, source_path, heading, position, text, token_count)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			c.ID, c.SourcePath, c.Heading, c.Position, c.Text, c.TokenCount); err != nil {
			return fmt.Errorf("failed to save chunk %s: %w", c.ID, err)
		}
	}

	return tx.Commit()
}

// DeleteDocument removes a document record and all its chunks.
// Deleting an untracked path is a no-op.
func (s *SQLiteStore) DeleteDocument(ctx context.Context, sourcePath string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("store is closed")
	}

	_, err := s.db.ExecContext(ctx,
		`DELETE FROM documents WHERE source_path = ?`, sourcePath)
	return err
}

// GetDocument returns the record for a path, or nil if untracked.
func (s *SQLiteStore) GetDocument(ctx context.Context, sourcePath string) (*DocumentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, fmt.Errorf("store is closed")
	}

	rec := &DocumentRecord{SourcePath: sourcePath}
	err := s.db.QueryRowContext(ctx,
		`SELECT content_hash FROM documents WHERE source_path = ?`, sourcePath).
		Scan(&rec.ContentHash)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load document %s: %w", sourcePath, err)
	}

	rec.ChunkIDs, err = s.chunkIDsForPath(ctx, sourcePath)
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// AllDocuments returns a snapshot of every tracked document record with
// its chunk ids in position order.
func (s *SQLiteStore) AllDocuments(ctx context.Context) ([]*DocumentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, fmt.Errorf("store is closed")
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT source_path, content_hash FROM documents ORDER BY source_path`)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []*DocumentRecord
	for rows.Next() {
		rec := &DocumentRecord{}
		if err := rows.Scan(&rec.SourcePath, &rec.ContentHash); err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, rec := range records {
		rec.ChunkIDs, err = s.chunkIDsForPath(ctx, rec.SourcePath)
		if err != nil {
			return nil, err
		}
	}
	return records, nil
}

func (s *SQLiteStore) chunkIDsForPath(ctx context.Context, sourcePath string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM chunks WHERE source_path = ? ORDER BY position`, sourcePath)
	if err != nil {
		return nil, fmt.Errorf("failed to list chunks for %s: %w", sourcePath, err)
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// GetChunks loads chunk content by id, preserving the order of ids.
// Unknown ids are skipped.
func (s *SQLiteStore) GetChunks(ctx context.Context, ids []string) ([]*chunk.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, fmt.Errorf("store is closed")
	}
	if len(ids) == 0 {
		return nil, nil
	}

	placeholders := strings.Repeat("?,", len(ids)-1) + "?"
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, source_path, heading, position, text, token_count
		 FROM chunks WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to load chunks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	byID := make(map[string]*chunk.Chunk, len(ids))
	for rows.Next() {
		c := &chunk.Chunk{}
		if err := rows.Scan(&c.ID, &c.SourcePath, &c.Heading, &c.Position, &c.Text, &c.TokenCount); err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		byID[c.ID] = c
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	chunks := make([]*chunk.Chunk, 0, len(ids))
	for _, id := range ids {
		if c, ok := byID[id]; ok {
			chunks = append(chunks, c)
		}
	}
	return chunks, nil
}

// AllChunkIDs returns every stored chunk id.
func (s *SQLiteStore) AllChunkIDs(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, fmt.Errorf("store is closed")
	}

	rows, err := s.db.QueryContext(ctx, `SELECT id FROM chunks ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list chunk ids: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// DeleteChunks removes chunk rows by id. Absent ids are a no-op.
func (s *SQLiteStore) DeleteChunks(ctx context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("store is closed")
	}
	if len(ids) == 0 {
		return nil
	}

	placeholders := strings.Repeat("?,", len(ids)-1) + "?"
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	_, err := s.db.ExecContext(ctx,
		`DELETE FROM chunks WHERE id IN (`+placeholders+`)`, args...)
	return err
}

// CountDocuments returns the number of tracked documents.
func (s *SQLiteStore) CountDocuments(ctx context.Context) (int, error) {
	return s.countRows(ctx, "documents")
}

// CountChunks returns the number of stored chunks.
func (s *SQLiteStore) CountChunks(ctx context.Context) (int, error) {
	return s.countRows(ctx, "chunks")
}

func (s *SQLiteStore) countRows(ctx context.Context, table string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return 0, fmt.Errorf("store is closed")
	}

	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+table).Scan(&count)
	return count, err
}

// GetState reads an index-level state value. Missing keys return "".
func (s *SQLiteStore) GetState(ctx context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return "", fmt.Errorf("store is closed")
	}

	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM state WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

// SetState writes an index-level state value.
func (s *SQLiteStore) SetState(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("store is closed")
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO state (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	return err
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}
