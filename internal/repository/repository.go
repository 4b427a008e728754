package repository

import (
	"context"
	"time"
)

// BatchRecord is the persisted summary of one deployment batch.
type BatchRecord struct {
	ID        string    `json:"id"`
	RequestID string    `json:"request_id"`
	State     string    `json:"state"`
	Outcomes  []byte    `json:"outcomes"` // JSON, per-domain outcome map
	CreatedAt time.Time `json:"created_at"`
	SettledAt time.Time `json:"settled_at"`
}

// ManifestRecord keeps a mapping manifest queryable after the mapped
// graph itself is discarded.
type ManifestRecord struct {
	RequestID   string    `json:"request_id"`
	ViewVersion uint64    `json:"view_version"`
	Manifest    []byte    `json:"manifest"` // JSON, placements and hop rules
	CreatedAt   time.Time `json:"created_at"`
}

// ReportEntry is one journaled domain topology report.
type ReportEntry struct {
	Domain     string    `json:"domain"`
	Version    uint64    `json:"version"` // global view version after apply
	Discipline string    `json:"discipline"`
	Graph      []byte    `json:"graph"` // JSON, the report as received
	ReceivedAt time.Time `json:"received_at"`
}

// Store is the deployment audit trail: batches, manifests, and the
// domain report journal. Implementations are safe for concurrent use.
type Store interface {
	SaveBatch(ctx context.Context, rec *BatchRecord) error
	GetBatch(ctx context.Context, id string) (*BatchRecord, error)
	ListBatches(ctx context.Context, limit int) ([]BatchRecord, error)

	SaveManifest(ctx context.Context, rec *ManifestRecord) error
	GetManifest(ctx context.Context, requestID string) (*ManifestRecord, error)

	JournalReport(ctx context.Context, entry *ReportEntry) error
	ListReports(ctx context.Context, domain string, limit int) ([]ReportEntry, error)

	Close() error
}
