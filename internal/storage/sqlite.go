package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/ragcore/internal/models"
)

// SQLiteCatalog implements Catalog using SQLite.
type SQLiteCatalog struct {
	db   *sql.DB
	path string
}

// NewSQLiteCatalog opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist.
func NewSQLiteCatalog(dbPath string) (*SQLiteCatalog, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection: writers never contend for the database lock.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteCatalog{db: db, path: dbPath}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS documents (
		path TEXT PRIMARY KEY,
		id TEXT NOT NULL,
		last_modified TIMESTAMP NOT NULL,
		size INTEGER NOT NULL,
		content_length INTEGER NOT NULL,
		chunk_count INTEGER NOT NULL,
		chunk_signature TEXT NOT NULL,
		indexed_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS document_chunks (
		id TEXT PRIMARY KEY,
		document_path TEXT NOT NULL,
		document_id TEXT NOT NULL,
		chunk_index INTEGER NOT NULL,
		start_offset INTEGER NOT NULL,
		end_offset INTEGER NOT NULL,
		heading TEXT NOT NULL DEFAULT '',
		content TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_chunks_document_chunk ON document_chunks(document_path, chunk_index);
	`
	_, err := db.Exec(schema)
	return err
}

// SaveEntry replaces the entry and its chunks in one transaction.
func (s *SQLiteCatalog) SaveEntry(ctx context.Context, entry *models.DocumentIndexEntry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM document_chunks WHERE document_path = ?`, entry.Path); err != nil {
		return fmt.Errorf("delete old chunks: %w", err)
	}
	_, err = tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO documents (path, id, last_modified, size, content_length, chunk_count, chunk_signature, indexed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.Path, entry.ID, entry.LastModified.UTC(), entry.Metadata.Size, entry.Metadata.ContentLength,
		entry.Metadata.ChunkCount, entry.Metadata.ChunkSignature, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("save document: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO document_chunks (id, document_path, document_id, chunk_index, start_offset, end_offset, heading, content)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, ch := range entry.Chunks {
		if _, err := stmt.ExecContext(ctx, ch.ID, entry.Path, ch.DocumentID, ch.Offset.Index,
			ch.Offset.Start, ch.Offset.End, ch.Offset.Heading, ch.Text); err != nil {
			return fmt.Errorf("save chunk %s: %w", ch.ID, err)
		}
	}
	return tx.Commit()
}

// GetEntry returns the entry for path with its chunks ordered by index.
func (s *SQLiteCatalog) GetEntry(ctx context.Context, path string) (*models.DocumentIndexEntry, error) {
	entry, err := scanEntry(s.db.QueryRowContext(ctx,
		`SELECT path, id, last_modified, size, content_length, chunk_count, chunk_signature
		 FROM documents WHERE path = ?`, path))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, document_id, chunk_index, start_offset, end_offset, heading, content
		 FROM document_chunks WHERE document_path = ? ORDER BY chunk_index`, path)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		ch := models.Chunk{SourcePath: path}
		if err := rows.Scan(&ch.ID, &ch.DocumentID, &ch.Offset.Index, &ch.Offset.Start, &ch.Offset.End,
			&ch.Offset.Heading, &ch.Text); err != nil {
			return nil, err
		}
		entry.Chunks = append(entry.Chunks, ch)
	}
	return entry, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (*models.DocumentIndexEntry, error) {
	var e models.DocumentIndexEntry
	err := row.Scan(&e.Path, &e.ID, &e.LastModified, &e.Metadata.Size, &e.Metadata.ContentLength,
		&e.Metadata.ChunkCount, &e.Metadata.ChunkSignature)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// DeleteEntry removes the entry for path and its chunks. Unknown paths are ignored.
func (s *SQLiteCatalog) DeleteEntry(ctx context.Context, path string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, `DELETE FROM document_chunks WHERE document_path = ?`, path); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE path = ?`, path); err != nil {
		return err
	}
	return tx.Commit()
}

// ListEntries returns every entry without chunks, ordered by path.
func (s *SQLiteCatalog) ListEntries(ctx context.Context) ([]*models.DocumentIndexEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT path, id, last_modified, size, content_length, chunk_count, chunk_signature
		 FROM documents ORDER BY path`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*models.DocumentIndexEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Count returns the number of documents and chunks in the catalog.
func (s *SQLiteCatalog) Count(ctx context.Context) (documents, chunks int64, err error) {
	if err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`).Scan(&documents); err != nil {
		return 0, 0, err
	}
	if err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM document_chunks`).Scan(&chunks); err != nil {
		return 0, 0, err
	}
	return documents, chunks, nil
}

// SizeBytes returns the on-disk size of the database including its WAL files.
func (s *SQLiteCatalog) SizeBytes() int64 {
	var total int64
	for _, p := range []string{s.path, s.path + "-wal", s.path + "-shm"} {
		if info, err := os.Stat(p); err == nil {
			total += info.Size()
		}
	}
	return total
}

// Close closes the database connection.
func (s *SQLiteCatalog) Close() error {
	return s.db.Close()
}
