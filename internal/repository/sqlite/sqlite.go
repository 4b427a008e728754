package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"conflux/internal/repository"

	_ "modernc.org/sqlite"
)

// Store implements repository.Store using SQLite
type Store struct {
	db *sql.DB
}

// New creates a new SQLite audit store
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return s, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS batches (
		id TEXT PRIMARY KEY,
		request_id TEXT NOT NULL,
		state TEXT NOT NULL,
		outcomes JSON NOT NULL,
		created_at DATETIME NOT NULL,
		settled_at DATETIME
	);

	CREATE TABLE IF NOT EXISTS manifests (
		request_id TEXT PRIMARY KEY,
		view_version INTEGER NOT NULL,
		manifest JSON NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS report_journal (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		domain TEXT NOT NULL,
		version INTEGER NOT NULL,
		discipline TEXT NOT NULL,
		graph JSON NOT NULL,
		received_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_batches_request ON batches(request_id);
	CREATE INDEX IF NOT EXISTS idx_journal_domain ON report_journal(domain);
	`

	_, err := s.db.Exec(schema)
	return err
}

// SaveBatch inserts or updates a batch record
func (s *Store) SaveBatch(ctx context.Context, rec *repository.BatchRecord) error {
	var settled sql.NullTime
	if !rec.SettledAt.IsZero() {
		settled = sql.NullTime{Time: rec.SettledAt, Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO batches (id, request_id, state, outcomes, created_at, settled_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			state = excluded.state,
			outcomes = excluded.outcomes,
			settled_at = excluded.settled_at
	`, rec.ID, rec.RequestID, rec.State, rec.Outcomes, rec.CreatedAt, settled)

	if err != nil {
		return fmt.Errorf("failed to save batch: %w", err)
	}
	return nil
}

// GetBatch retrieves a batch record by ID
func (s *Store) GetBatch(ctx context.Context, id string) (*repository.BatchRecord, error) {
	rec := &repository.BatchRecord{ID: id}
	var settled sql.NullTime

	err := s.db.QueryRowContext(ctx, `
		SELECT request_id, state, outcomes, created_at, settled_at
		FROM batches WHERE id = ?
	`, id).Scan(&rec.RequestID, &rec.State, &rec.Outcomes, &rec.CreatedAt, &settled)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query batch: %w", err)
	}

	if settled.Valid {
		rec.SettledAt = settled.Time
	}
	return rec, nil
}

// ListBatches returns the most recent batch records, newest first
func (s *Store) ListBatches(ctx context.Context, limit int) ([]repository.BatchRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, request_id, state, outcomes, created_at, settled_at
		FROM batches ORDER BY created_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query batches: %w", err)
	}
	defer rows.Close()

	var out []repository.BatchRecord
	for rows.Next() {
		var rec repository.BatchRecord
		var settled sql.NullTime
		if err := rows.Scan(&rec.ID, &rec.RequestID, &rec.State, &rec.Outcomes, &rec.CreatedAt, &settled); err != nil {
			return nil, fmt.Errorf("failed to scan batch: %w", err)
		}
		if settled.Valid {
			rec.SettledAt = settled.Time
		}
		out = append(out, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating batches: %w", err)
	}
	return out, nil
}

// SaveManifest stores a mapping manifest for a request
func (s *Store) SaveManifest(ctx context.Context, rec *repository.ManifestRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO manifests (request_id, view_version, manifest)
		VALUES (?, ?, ?)
		ON CONFLICT(request_id) DO UPDATE SET
			view_version = excluded.view_version,
			manifest = excluded.manifest,
			created_at = CURRENT_TIMESTAMP
	`, rec.RequestID, rec.ViewVersion, rec.Manifest)

	if err != nil {
		return fmt.Errorf("failed to save manifest: %w", err)
	}
	return nil
}

// GetManifest retrieves the manifest stored for a request
func (s *Store) GetManifest(ctx context.Context, requestID string) (*repository.ManifestRecord, error) {
	rec := &repository.ManifestRecord{RequestID: requestID}

	err := s.db.QueryRowContext(ctx, `
		SELECT view_version, manifest, created_at
		FROM manifests WHERE request_id = ?
	`, requestID).Scan(&rec.ViewVersion, &rec.Manifest, &rec.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query manifest: %w", err)
	}
	return rec, nil
}

// JournalReport appends a domain report to the journal
func (s *Store) JournalReport(ctx context.Context, entry *repository.ReportEntry) error {
	received := entry.ReceivedAt
	if received.IsZero() {
		received = time.Now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO report_journal (domain, version, discipline, graph, received_at)
		VALUES (?, ?, ?, ?, ?)
	`, entry.Domain, entry.Version, entry.Discipline, entry.Graph, received)

	if err != nil {
		return fmt.Errorf("failed to journal report: %w", err)
	}
	return nil
}

// ListReports returns the most recent journal entries for a domain,
// newest first
func (s *Store) ListReports(ctx context.Context, domain string, limit int) ([]repository.ReportEntry, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT domain, version, discipline, graph, received_at
		FROM report_journal WHERE domain = ?
		ORDER BY seq DESC LIMIT ?
	`, domain, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query report journal: %w", err)
	}
	defer rows.Close()

	var out []repository.ReportEntry
	for rows.Next() {
		var entry repository.ReportEntry
		if err := rows.Scan(&entry.Domain, &entry.Version, &entry.Discipline, &entry.Graph, &entry.ReceivedAt); err != nil {
			return nil, fmt.Errorf("failed to scan journal entry: %w", err)
		}
		out = append(out, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating journal: %w", err)
	}
	return out, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}
