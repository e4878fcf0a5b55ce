// Package blockindex stores, per channel, which description blocks occur
// in which videos. Blocks are addressed by checksum; a checksum seen in
// enough distinct videos marks channel boilerplate.
package blockindex

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	_ "modernc.org/sqlite"
)

// Version is the index schema version. A file written under another
// version is discarded and rebuilt.
const Version = 6

const schema = `
CREATE TABLE meta (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
CREATE TABLE blocks (
	checksum     TEXT NOT NULL,
	video_id     TEXT NOT NULL,
	last_updated TEXT NOT NULL,
	PRIMARY KEY (video_id, checksum)
);
CREATE INDEX idx_checksum ON blocks(checksum);
`

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Index is an open block index file.
type Index struct {
	db   *sql.DB
	tx   *sql.Tx
	path string
}

// Stats summarizes an index.
type Stats struct {
	Videos int
	Blocks int
	Unique int
	// Repeated counts block rows whose checksum occurs in at least the
	// threshold number of videos.
	Repeated int
}

// Open opens the index at path, creating it when absent. An existing file
// with a different version, or one whose meta table cannot be read, is
// deleted and recreated empty.
func Open(ctx context.Context, path string) (*Index, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("blockindex: mkdir: %w", err)
	}

	if _, err := os.Stat(path); err == nil {
		ix, err := open(path)
		if err != nil {
			return nil, err
		}
		v, err := ix.version(ctx)
		if err == nil && v == Version {
			return ix, nil
		}
		ix.db.Close()
		if err := os.Remove(path); err != nil {
			return nil, fmt.Errorf("blockindex: remove stale index: %w", err)
		}
	}

	ix, err := open(path)
	if err != nil {
		return nil, err
	}
	if err := ix.create(ctx); err != nil {
		ix.db.Close()
		return nil, err
	}
	return ix, nil
}

func open(path string) (*Index, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("blockindex: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	return &Index{db: db, path: path}, nil
}

func (ix *Index) version(ctx context.Context) (int, error) {
	var s string
	if err := ix.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = 'version'`).Scan(&s); err != nil {
		return 0, err
	}
	return strconv.Atoi(s)
}

func (ix *Index) create(ctx context.Context) error {
	if _, err := ix.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("blockindex: create schema: %w", err)
	}
	if _, err := ix.db.ExecContext(ctx, `INSERT INTO meta (key, value) VALUES ('version', ?)`, strconv.Itoa(Version)); err != nil {
		return fmt.Errorf("blockindex: write version: %w", err)
	}
	return nil
}

// Path returns the index file.
func (ix *Index) Path() string { return ix.path }

func (ix *Index) conn() execer {
	if ix.tx != nil {
		return ix.tx
	}
	return ix.db
}

// Begin starts a batch of writes. Writes outside a batch commit
// individually.
func (ix *Index) Begin(ctx context.Context) error {
	if ix.tx != nil {
		return errors.New("blockindex: batch already open")
	}
	tx, err := ix.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("blockindex: begin: %w", err)
	}
	ix.tx = tx
	return nil
}

// Commit ends the open batch. It is a no-op without one.
func (ix *Index) Commit() error {
	if ix.tx == nil {
		return nil
	}
	err := ix.tx.Commit()
	ix.tx = nil
	if err != nil {
		return fmt.Errorf("blockindex: commit: %w", err)
	}
	return nil
}

// Close commits any open batch and closes the file.
func (ix *Index) Close() error {
	return errors.Join(ix.Commit(), ix.db.Close())
}

// LastUpdated returns the last_updated stamp stored with a video's
// blocks. ok is false when the video has no blocks.
func (ix *Index) LastUpdated(ctx context.Context, videoID string) (stamp string, ok bool, err error) {
	err = ix.conn().QueryRowContext(ctx,
		`SELECT last_updated FROM blocks WHERE video_id = ? LIMIT 1`, videoID).Scan(&stamp)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("blockindex: last_updated %s: %w", videoID, err)
	}
	return stamp, true, nil
}

// IndexVideo replaces the blocks of a video with checksums unless they
// are already stored under lastUpdated. It reports whether it wrote.
func (ix *Index) IndexVideo(ctx context.Context, videoID, lastUpdated string, checksums []string) (bool, error) {
	stored, ok, err := ix.LastUpdated(ctx, videoID)
	if err != nil {
		return false, err
	}
	if ok && stored == lastUpdated {
		return false, nil
	}

	c := ix.conn()
	if ok {
		if _, err := c.ExecContext(ctx, `DELETE FROM blocks WHERE video_id = ?`, videoID); err != nil {
			return false, fmt.Errorf("blockindex: delete %s: %w", videoID, err)
		}
	}
	for _, cs := range checksums {
		_, err := c.ExecContext(ctx,
			`INSERT OR IGNORE INTO blocks (checksum, video_id, last_updated) VALUES (?, ?, ?)`,
			cs, videoID, lastUpdated)
		if err != nil {
			return false, fmt.Errorf("blockindex: insert %s: %w", videoID, err)
		}
	}
	return true, nil
}

// IndexedIDs returns the ids of every video with stored blocks.
func (ix *Index) IndexedIDs(ctx context.Context) (map[string]bool, error) {
	rows, err := ix.conn().QueryContext(ctx, `SELECT DISTINCT video_id FROM blocks`)
	if err != nil {
		return nil, fmt.Errorf("blockindex: list videos: %w", err)
	}
	defer rows.Close()

	ids := map[string]bool{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids[id] = true
	}
	return ids, rows.Err()
}

// Count returns in how many videos checksum occurs, counting no further
// than limit.
func (ix *Index) Count(ctx context.Context, checksum string, limit int) (int, error) {
	var n int
	err := ix.conn().QueryRowContext(ctx,
		`SELECT COUNT(*) FROM (SELECT 1 FROM blocks WHERE checksum = ? LIMIT ?)`, checksum, limit).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("blockindex: count: %w", err)
	}
	return n, nil
}

// Stats summarizes the index; threshold sets what counts as repeated.
func (ix *Index) Stats(ctx context.Context, threshold int) (Stats, error) {
	var s Stats
	c := ix.conn()
	queries := []struct {
		sql  string
		args []any
		dst  *int
	}{
		{`SELECT COUNT(DISTINCT video_id) FROM blocks`, nil, &s.Videos},
		{`SELECT COUNT(*) FROM blocks`, nil, &s.Blocks},
		{`SELECT COUNT(DISTINCT checksum) FROM blocks`, nil, &s.Unique},
		{`SELECT COUNT(*) FROM blocks WHERE checksum IN (
			SELECT checksum FROM blocks GROUP BY checksum HAVING COUNT(DISTINCT video_id) >= ?)`,
			[]any{threshold}, &s.Repeated},
	}
	for _, q := range queries {
		if err := c.QueryRowContext(ctx, q.sql, q.args...).Scan(q.dst); err != nil {
			return Stats{}, fmt.Errorf("blockindex: stats: %w", err)
		}
	}
	return s, nil
}
