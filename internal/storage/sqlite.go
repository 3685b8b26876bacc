package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/cdot/Squirrel-sub002/internal/apperr"
	"github.com/cdot/Squirrel-sub002/internal/checksum"
)

const blobSchemaSQL = `
CREATE TABLE IF NOT EXISTS blobs (
	name       TEXT PRIMARY KEY,
	data       BLOB NOT NULL,
	checksum   TEXT NOT NULL,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

// SQLite implements Provider as a single-table blob store.
type SQLite struct {
	conn *sql.DB
}

// OpenSQLite opens (or creates) the database file and applies the schema.
func OpenSQLite(dsn string) (*SQLite, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("storage: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("storage: ping: %w", err)
	}
	if _, err := conn.Exec(blobSchemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("storage: apply schema: %w", err)
	}
	return &SQLite{conn: conn}, nil
}

// Close closes the underlying database connection.
func (s *SQLite) Close() error {
	return s.conn.Close()
}

// Ping checks the database is reachable.
func (s *SQLite) Ping(ctx context.Context) error {
	return s.conn.PingContext(ctx)
}

func (s *SQLite) Read(ctx context.Context, name string) ([]byte, error) {
	var data []byte
	err := s.conn.QueryRowContext(ctx, `SELECT data FROM blobs WHERE name = ?`, name).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("storage: read %s: %w", name, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("storage: read %s: %w", name, err)
	}
	return data, nil
}

func (s *SQLite) Write(ctx context.Context, name string, data []byte) error {
	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO blobs (name, data, checksum, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			data = excluded.data,
			checksum = excluded.checksum,
			updated_at = excluded.updated_at`,
		name, data, checksum.Sum(data), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("storage: write %s: %w", name, err)
	}
	return nil
}

// WriteIf updates name only while its stored checksum still equals sum.
// The comparison happens inside the UPDATE, so it holds across processes.
func (s *SQLite) WriteIf(ctx context.Context, name string, data []byte, sum string) error {
	var res sql.Result
	var err error
	if sum == "" {
		res, err = s.conn.ExecContext(ctx,
			`INSERT OR IGNORE INTO blobs (name, data, checksum, updated_at) VALUES (?, ?, ?, ?)`,
			name, data, checksum.Sum(data), time.Now().UTC())
	} else {
		res, err = s.conn.ExecContext(ctx,
			`UPDATE blobs SET data = ?, checksum = ?, updated_at = ? WHERE name = ? AND checksum = ?`,
			data, checksum.Sum(data), time.Now().UTC(), name, sum)
	}
	if err != nil {
		return fmt.Errorf("storage: write %s: %w", name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("storage: write %s: %w", name, err)
	}
	if n == 0 {
		return fmt.Errorf("storage: write %s: changed since read: %w", name, apperr.ErrConflict)
	}
	return nil
}

func (s *SQLite) Delete(ctx context.Context, name string) error {
	res, err := s.conn.ExecContext(ctx, `DELETE FROM blobs WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("storage: delete %s: %w", name, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("storage: delete %s: %w", name, apperr.ErrNotFound)
	}
	return nil
}

func (s *SQLite) List(ctx context.Context) ([]Object, error) {
	rows, err := s.conn.QueryContext(ctx,
		`SELECT name, length(data), checksum, updated_at FROM blobs ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("storage: list: %w", err)
	}
	defer rows.Close()

	var out []Object
	for rows.Next() {
		var o Object
		if err := rows.Scan(&o.Name, &o.Size, &o.Checksum, &o.UpdatedAt); err != nil {
			return nil, fmt.Errorf("storage: list scan: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

var _ Conditional = (*SQLite)(nil)
