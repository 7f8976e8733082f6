package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// OutcomeStore is the durable ledger of resolved positions.
type OutcomeStore interface {
	Insert(ctx context.Context, o Outcome) error
	List(ctx context.Context, opts ListOpts) ([]Outcome, error)
	Summary(ctx context.Context, since time.Time) (OutcomeSummary, error)
}

// OutcomeSummary aggregates the ledger.
type OutcomeSummary struct {
	Count  int     `json:"count"`
	Wins   int     `json:"wins"`
	Losses int     `json:"losses"`
	PnL    float64 `json:"pnl"`
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64          `json:"id"`
	Event     string         `json:"event"`
	Detail    map[string]any `json:"detail"`
	CreatedAt time.Time      `json:"created_at"`
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}

// SnapshotStore holds the single durable correction snapshot. Load returns
// ErrNotFound when nothing has been saved yet.
type SnapshotStore interface {
	Load(ctx context.Context) ([]byte, error)
	Save(ctx context.Context, data []byte) error
}
