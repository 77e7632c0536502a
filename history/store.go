// Package history keeps a local record of verification reports in a
// SQLite database, so earlier runs can be listed with `vpn-verify history`.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/yllada/vpn-verify/common"
	"github.com/yllada/vpn-verify/vpn"
)

const schema = `
CREATE TABLE IF NOT EXISTS reports (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id     TEXT NOT NULL,
	checked_at INTEGER NOT NULL,
	local      TEXT NOT NULL,
	public     TEXT NOT NULL,
	source     TEXT NOT NULL,
	expected   TEXT NOT NULL,
	location   TEXT NOT NULL,
	outcome    TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS reports_checked_at ON reports (checked_at);
`

// DefaultLimit is the number of reports Recent returns for a non-positive limit.
const DefaultLimit = 20

// Store is a report history backed by a single SQLite file.
type Store struct {
	db *sql.DB
}

// Open opens the database at path, creating the file, its directory and
// the schema as needed.
func Open(ctx context.Context, path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("%w: creating %s: %w", common.ErrHistory, filepath.Dir(path), err)
	}

	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: opening %s: %w", common.ErrHistory, path, err)
	}
	// One writer at a time; the CLI never needs more.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: creating schema in %s: %w", common.ErrHistory, path, err)
	}

	return &Store{db: db}, nil
}

// Save appends a report.
func (s *Store) Save(ctx context.Context, report vpn.Report) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO reports (run_id, checked_at, local, public, source, expected, location, outcome)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		report.RunID,
		report.CheckedAt.UnixNano(),
		report.LocalAddress,
		report.PublicAddress,
		report.PublicSource,
		report.ExpectedAddress,
		report.Location,
		report.Outcome.String(),
	)
	if err != nil {
		return fmt.Errorf("%w: saving report %s: %w", common.ErrHistory, report.RunID, err)
	}
	return nil
}

// Recent returns up to limit reports, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]vpn.Report, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, checked_at, local, public, source, expected, location, outcome
		 FROM reports ORDER BY checked_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: querying reports: %w", common.ErrHistory, err)
	}
	defer rows.Close()

	var reports []vpn.Report
	for rows.Next() {
		var (
			report    vpn.Report
			checkedAt int64
			outcome   string
		)
		if err := rows.Scan(&report.RunID, &checkedAt, &report.LocalAddress, &report.PublicAddress,
			&report.PublicSource, &report.ExpectedAddress, &report.Location, &outcome); err != nil {
			return nil, fmt.Errorf("%w: reading report: %w", common.ErrHistory, err)
		}

		report.CheckedAt = time.Unix(0, checkedAt).UTC()
		report.Outcome = vpn.ParseOutcome(outcome)
		reports = append(reports, report)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: reading reports: %w", common.ErrHistory, err)
	}

	return reports, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
