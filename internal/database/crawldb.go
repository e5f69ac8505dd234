package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/nao1215/noticescan/internal/dedup"
	"github.com/nao1215/noticescan/internal/model"
)

// DBFileName is the SQLite file created inside the database directory.
const DBFileName = "noticescan.db"

// CrawlDB stores duplicate records and run history in SQLite.
// It implements dedup.Store.
type CrawlDB struct {
	// db is the underlying SQL database connection.
	db *sql.DB

	// dbPath is the path to the SQLite database file.
	dbPath string
}

// Options configures CrawlDB behavior.
type Options struct {
	// CreateIfNotExists creates the database file if it doesn't exist.
	CreateIfNotExists bool

	// EnableWAL enables Write-Ahead Logging.
	EnableWAL bool
}

// DefaultOptions returns the default database options.
func DefaultOptions() Options {
	return Options{
		CreateIfNotExists: true,
		EnableWAL:         true,
	}
}

// Open opens or creates a CrawlDB in dbDir.
// If CreateIfNotExists is false and the database doesn't exist, an error is returned.
func Open(dbDir string, opts Options) (*CrawlDB, error) {
	dbPath := filepath.Join(dbDir, DBFileName)

	if !opts.CreateIfNotExists {
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("database not found at %s (use CreateIfNotExists option to create)", dbPath)
		} else if err != nil {
			return nil, fmt.Errorf("failed to check database path: %w", err)
		}
	} else {
		if err := os.MkdirAll(dbDir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	// mode=rw refuses to create a missing file; mode=rwc allows it.
	dsn := dbPath + "?mode=rw"
	if opts.CreateIfNotExists {
		dsn = dbPath + "?mode=rwc"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite has a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	cdb := &CrawlDB{
		db:     db,
		dbPath: dbPath,
	}

	if opts.EnableWAL {
		if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	if err := cdb.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return cdb, nil
}

// Path returns the database file path.
func (cdb *CrawlDB) Path() string {
	return cdb.dbPath
}

// Close closes the database connection.
func (cdb *CrawlDB) Close() error {
	return cdb.db.Close()
}

// createTables creates the database schema if it doesn't exist.
func (cdb *CrawlDB) createTables() error {
	schema := `
	-- Known title hashes per site
	CREATE TABLE IF NOT EXISTS title_hashes (
		site TEXT NOT NULL,
		hash TEXT NOT NULL,
		PRIMARY KEY (site, hash)
	);

	-- Snapshot metadata per site
	CREATE TABLE IF NOT EXISTS duplicate_records (
		site TEXT PRIMARY KEY,
		last_updated DATETIME NOT NULL,
		total_count INTEGER NOT NULL DEFAULT 0
	);

	-- One row per crawl run
	CREATE TABLE IF NOT EXISTS runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		site TEXT NOT NULL,
		status TEXT NOT NULL,
		stop_reason TEXT,
		pages INTEGER DEFAULT 0,
		processed INTEGER DEFAULT 0,
		skipped INTEGER DEFAULT 0,
		failed INTEGER DEFAULT 0,
		attachments INTEGER DEFAULT 0,
		started_at DATETIME NOT NULL,
		duration_ms INTEGER DEFAULT 0,
		summary_json TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_runs_site ON runs(site);
	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);
	`

	_, err := cdb.db.ExecContext(context.Background(), schema)
	return err
}

// Load returns the duplicate record of site, or dedup.ErrRecordNotFound.
func (cdb *CrawlDB) Load(ctx context.Context, site string) (model.DuplicateRecord, error) {
	var rec model.DuplicateRecord
	var lastUpdated string

	err := cdb.db.QueryRowContext(ctx,
		`SELECT last_updated, total_count FROM duplicate_records WHERE site = ?`, site,
	).Scan(&lastUpdated, &rec.Count)
	if errors.Is(err, sql.ErrNoRows) {
		return model.DuplicateRecord{}, dedup.ErrRecordNotFound
	}
	if err != nil {
		return model.DuplicateRecord{}, fmt.Errorf("failed to get duplicate record: %w", err)
	}
	rec.LastUpdated = parseTimestamp(lastUpdated)

	rows, err := cdb.db.QueryContext(ctx,
		`SELECT hash FROM title_hashes WHERE site = ? ORDER BY hash`, site)
	if err != nil {
		return model.DuplicateRecord{}, fmt.Errorf("failed to query title hashes: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return model.DuplicateRecord{}, fmt.Errorf("failed to scan title hash: %w", err)
		}
		rec.Hashes = append(rec.Hashes, h)
	}

	return rec, rows.Err()
}

// Save replaces the duplicate record of site in one transaction.
func (cdb *CrawlDB) Save(ctx context.Context, site string, rec model.DuplicateRecord) (err error) {
	tx, err := cdb.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback() //nolint:errcheck // original error is more useful
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM title_hashes WHERE site = ?`, site); err != nil {
		return fmt.Errorf("failed to clear title hashes: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT OR IGNORE INTO title_hashes (site, hash) VALUES (?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, h := range rec.Hashes {
		if _, err = stmt.ExecContext(ctx, site, h); err != nil {
			return fmt.Errorf("failed to insert title hash: %w", err)
		}
	}

	_, err = tx.ExecContext(ctx, `
	INSERT INTO duplicate_records (site, last_updated, total_count)
	VALUES (?, ?, ?)
	ON CONFLICT(site) DO UPDATE SET
		last_updated = excluded.last_updated,
		total_count = excluded.total_count
	`, site, rec.LastUpdated.UTC().Format(time.RFC3339Nano), rec.Count)
	if err != nil {
		return fmt.Errorf("failed to upsert duplicate record: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit duplicate record: %w", err)
	}
	return nil
}

// SaveRunSummary appends a run to the history.
func (cdb *CrawlDB) SaveRunSummary(ctx context.Context, s *model.RunSummary) error {
	summaryJSON, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to serialize run summary: %w", err)
	}

	query := `
	INSERT INTO runs (site, status, stop_reason, pages, processed, skipped, failed, attachments, started_at, duration_ms, summary_json)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = cdb.db.ExecContext(ctx, query,
		s.Site,
		string(s.Status),
		s.StopReason,
		s.Pages,
		s.Processed,
		s.Skipped,
		s.Failed,
		s.Attachments,
		s.StartedAt.UTC().Format(time.RFC3339Nano),
		s.Duration.Milliseconds(),
		string(summaryJSON),
	)
	if err != nil {
		return fmt.Errorf("failed to save run summary: %w", err)
	}
	return nil
}

// RunHistory returns up to limit runs of site, newest first.
// A non-positive limit returns every run.
func (cdb *CrawlDB) RunHistory(ctx context.Context, site string, limit int) ([]*model.RunSummary, error) {
	query := `
	SELECT summary_json FROM runs
	WHERE site = ?
	ORDER BY started_at DESC, id DESC
	`
	args := []any{site}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := cdb.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get run history: %w", err)
	}
	defer rows.Close()

	var runs []*model.RunSummary
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		var s model.RunSummary
		if err := json.Unmarshal([]byte(raw), &s); err != nil {
			continue // skip malformed rows
		}
		runs = append(runs, &s)
	}

	return runs, rows.Err()
}

// ListSites returns every site that has a duplicate record.
func (cdb *CrawlDB) ListSites(ctx context.Context) ([]string, error) {
	rows, err := cdb.db.QueryContext(ctx, `SELECT site FROM duplicate_records ORDER BY site`)
	if err != nil {
		return nil, fmt.Errorf("failed to list sites: %w", err)
	}
	defer rows.Close()

	var sites []string
	for rows.Next() {
		var site string
		if err := rows.Scan(&site); err != nil {
			return nil, fmt.Errorf("failed to scan site: %w", err)
		}
		sites = append(sites, site)
	}

	return sites, rows.Err()
}

// timestampFormats contains the timestamp formats that SQLite may return.
// More specific formats come first.
var timestampFormats = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05.999",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
}

// parseTimestamp parses s with each known format and returns the zero time
// when none match.
func parseTimestamp(s string) time.Time {
	for _, format := range timestampFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
