package convert

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

// schemaVersion is bumped when schema.sql changes. A mismatched index is
// rebuilt from scratch since conversions can always be redone.
const schemaVersion = 1

const indexFile = "index.db"

// Entry is one persisted conversion.
type Entry struct {
	TrackID    string
	SourcePath string
	OutputPath string
	Codec      string
	CreatedAt  time.Time
}

// Index persists conversions in SQLite.
type Index struct {
	db   *sql.DB
	path string
}

// OpenIndex opens or creates the index inside dir.
func OpenIndex(ctx context.Context, dir string) (*Index, error) {
	dbPath := filepath.Join(dir, indexFile)
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, err)
		}
	}
	idx := &Index{db: db, path: dbPath}
	if err := idx.initSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return idx, nil
}

func (i *Index) initSchema(ctx context.Context) error {
	if _, err := i.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	var version int
	err := i.db.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		_, err = i.db.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", schemaVersion)
		if err != nil {
			return fmt.Errorf("record schema version: %w", err)
		}
		return nil
	case err != nil:
		return fmt.Errorf("read schema version: %w", err)
	case version != schemaVersion:
		if _, err := i.db.ExecContext(ctx, "DELETE FROM conversions"); err != nil {
			return fmt.Errorf("reset conversions: %w", err)
		}
		if _, err := i.db.ExecContext(ctx, "UPDATE schema_version SET version = ?", schemaVersion); err != nil {
			return fmt.Errorf("update schema version: %w", err)
		}
	}
	return nil
}

// Put records or replaces a conversion.
func (i *Index) Put(ctx context.Context, e Entry) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	_, err := i.db.ExecContext(ctx,
		`INSERT INTO conversions (track_id, source_path, output_path, codec, created_at)
         VALUES (?, ?, ?, ?, ?)
         ON CONFLICT(track_id) DO UPDATE SET
            source_path = excluded.source_path,
            output_path = excluded.output_path,
            codec = excluded.codec,
            created_at = excluded.created_at`,
		e.TrackID, e.SourcePath, e.OutputPath, e.Codec, e.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("store conversion %s: %w", e.TrackID, err)
	}
	return nil
}

// Delete removes a conversion record.
func (i *Index) Delete(ctx context.Context, trackID string) error {
	if _, err := i.db.ExecContext(ctx, `DELETE FROM conversions WHERE track_id = ?`, trackID); err != nil {
		return fmt.Errorf("delete conversion %s: %w", trackID, err)
	}
	return nil
}

// All returns every recorded conversion.
func (i *Index) All(ctx context.Context) ([]Entry, error) {
	rows, err := i.db.QueryContext(ctx,
		`SELECT track_id, source_path, output_path, codec, created_at FROM conversions ORDER BY track_id`)
	if err != nil {
		return nil, fmt.Errorf("list conversions: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var created string
		if err := rows.Scan(&e.TrackID, &e.SourcePath, &e.OutputPath, &e.Codec, &created); err != nil {
			return nil, fmt.Errorf("scan conversion: %w", err)
		}
		e.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Close closes the database.
func (i *Index) Close() error {
	if i == nil || i.db == nil {
		return nil
	}
	return i.db.Close()
}
