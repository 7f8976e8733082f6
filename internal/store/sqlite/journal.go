// Package sqlite is the local outcome journal and audit log, used when no
// PostgreSQL is configured. It is pure Go (modernc.org/sqlite, no cgo).
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/alanyoungcy/kalshiedge/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS outcomes (
    position_id  TEXT PRIMARY KEY,
    ticker       TEXT    NOT NULL,
    side         TEXT    NOT NULL,
    kind         TEXT    NOT NULL,
    won          INTEGER NOT NULL,
    pnl          REAL    NOT NULL,
    entry_price  INTEGER NOT NULL,
    exit_price   INTEGER NOT NULL DEFAULT 0,
    contracts    INTEGER NOT NULL,
    direction    TEXT    NOT NULL DEFAULT '',
    tier         TEXT    NOT NULL DEFAULT '',
    vol_regime   TEXT    NOT NULL DEFAULT '',
    time_bucket  TEXT    NOT NULL DEFAULT '',
    resolution   TEXT    NOT NULL,
    reason       TEXT    NOT NULL DEFAULT '',
    resolved_at  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_outcomes_resolved ON outcomes(resolved_at DESC);

CREATE TABLE IF NOT EXISTS audit_log (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    event       TEXT    NOT NULL,
    detail      TEXT,
    created_at  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_audit_created ON audit_log(created_at DESC);
`

// Journal implements domain.OutcomeStore and domain.AuditStore on SQLite.
// Times are stored as Unix nanoseconds.
type Journal struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (or creates) the journal at path. ":memory:" works for tests.
func Open(path string) (*Journal, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("sqlite: create dir for %q: %w", path, err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %q: %w", path, err)
	}
	// SQLite is single-writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: apply schema: %w", err)
	}
	return &Journal{db: db, now: time.Now}, nil
}

// Close closes the database.
func (j *Journal) Close() error {
	return j.db.Close()
}

// Insert records one outcome; a repeated position id is ignored.
func (j *Journal) Insert(ctx context.Context, o domain.Outcome) error {
	_, err := j.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO outcomes (position_id, ticker, side, kind, won, pnl,
			entry_price, exit_price, contracts, direction, tier, vol_regime, time_bucket,
			resolution, reason, resolved_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.PositionID, o.Ticker, string(o.Side), string(o.Kind), boolInt(o.Won), o.PnL,
		o.EntryPrice, o.ExitPrice, o.Contracts,
		string(o.Context.Direction), string(o.Context.Tier),
		string(o.Context.VolRegime), string(o.Context.TimeBucket),
		o.Resolution, o.Reason, o.ResolvedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("sqlite: insert outcome %s: %w", o.PositionID, err)
	}
	return nil
}

// List returns outcomes newest first.
func (j *Journal) List(ctx context.Context, opts domain.ListOpts) ([]domain.Outcome, error) {
	where, args := window("resolved_at", opts)
	query := `SELECT position_id, ticker, side, kind, won, pnl, entry_price, exit_price,
		contracts, direction, tier, vol_regime, time_bucket, resolution, reason, resolved_at
		FROM outcomes` + where + ` ORDER BY resolved_at DESC` + page(opts)

	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list outcomes: %w", err)
	}
	defer rows.Close()

	var out []domain.Outcome
	for rows.Next() {
		var (
			o                    domain.Outcome
			side, kind           string
			dir, tier, vol, tbkt string
			won                  int
			resolved             int64
		)
		if err := rows.Scan(&o.PositionID, &o.Ticker, &side, &kind, &won, &o.PnL,
			&o.EntryPrice, &o.ExitPrice, &o.Contracts, &dir, &tier, &vol, &tbkt,
			&o.Resolution, &o.Reason, &resolved); err != nil {
			return nil, fmt.Errorf("sqlite: scan outcome: %w", err)
		}
		o.Side = domain.Side(side)
		o.Kind = domain.OpportunityKind(kind)
		o.Won = won != 0
		o.Context = domain.DecisionContext{
			Direction:  domain.Direction(dir),
			Tier:       domain.Tier(tier),
			VolRegime:  domain.VolRegime(vol),
			TimeBucket: domain.TimeBucket(tbkt),
		}
		o.ResolvedAt = time.Unix(0, resolved).UTC()
		out = append(out, o)
	}
	return out, rows.Err()
}

// Summary aggregates outcomes resolved at or after since.
func (j *Journal) Summary(ctx context.Context, since time.Time) (domain.OutcomeSummary, error) {
	var sum domain.OutcomeSummary
	from := int64(0)
	if !since.IsZero() {
		from = since.UnixNano()
	}
	err := j.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
			COALESCE(SUM(CASE WHEN won = 1 THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN won = 0 THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(pnl), 0)
		FROM outcomes WHERE resolved_at >= ?`, from,
	).Scan(&sum.Count, &sum.Wins, &sum.Losses, &sum.PnL)
	if err != nil {
		return domain.OutcomeSummary{}, fmt.Errorf("sqlite: outcome summary: %w", err)
	}
	return sum, nil
}

// Log appends an audit entry.
func (j *Journal) Log(ctx context.Context, event string, detail map[string]any) error {
	data, err := json.Marshal(detail)
	if err != nil {
		return fmt.Errorf("sqlite: marshal audit detail: %w", err)
	}
	if _, err := j.db.ExecContext(ctx,
		`INSERT INTO audit_log (event, detail, created_at) VALUES (?, ?, ?)`,
		event, string(data), j.now().UnixNano(),
	); err != nil {
		return fmt.Errorf("sqlite: log audit event %s: %w", event, err)
	}
	return nil
}

// AuditEntries returns audit entries newest first. It satisfies
// domain.AuditStore through AuditView.
func (j *Journal) AuditEntries(ctx context.Context, opts domain.ListOpts) ([]domain.AuditEntry, error) {
	where, args := window("created_at", opts)
	rows, err := j.db.QueryContext(ctx,
		`SELECT id, event, detail, created_at FROM audit_log`+where+` ORDER BY created_at DESC, id DESC`+page(opts),
		args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list audit entries: %w", err)
	}
	defer rows.Close()

	var out []domain.AuditEntry
	for rows.Next() {
		var (
			e       domain.AuditEntry
			detail  sql.NullString
			created int64
		)
		if err := rows.Scan(&e.ID, &e.Event, &detail, &created); err != nil {
			return nil, fmt.Errorf("sqlite: scan audit entry: %w", err)
		}
		if detail.Valid && detail.String != "" {
			if err := json.Unmarshal([]byte(detail.String), &e.Detail); err != nil {
				return nil, fmt.Errorf("sqlite: unmarshal audit detail: %w", err)
			}
		}
		e.CreatedAt = time.Unix(0, created).UTC()
		out = append(out, e)
	}
	return out, rows.Err()
}

// AuditView adapts the journal's audit log to domain.AuditStore, whose List
// would otherwise collide with the outcome List.
type AuditView struct{ j *Journal }

// Audit returns the journal's audit log view.
func (j *Journal) Audit() AuditView { return AuditView{j: j} }

func (a AuditView) Log(ctx context.Context, event string, detail map[string]any) error {
	return a.j.Log(ctx, event, detail)
}

func (a AuditView) List(ctx context.Context, opts domain.ListOpts) ([]domain.AuditEntry, error) {
	return a.j.AuditEntries(ctx, opts)
}

func window(col string, opts domain.ListOpts) (string, []any) {
	var conds []string
	var args []any
	if opts.Since != nil {
		conds = append(conds, col+" >= ?")
		args = append(args, opts.Since.UnixNano())
	}
	if opts.Until != nil {
		conds = append(conds, col+" <= ?")
		args = append(args, opts.Until.UnixNano())
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func page(opts domain.ListOpts) string {
	switch {
	case opts.Limit > 0 && opts.Offset > 0:
		return fmt.Sprintf(" LIMIT %d OFFSET %d", opts.Limit, opts.Offset)
	case opts.Limit > 0:
		return fmt.Sprintf(" LIMIT %d", opts.Limit)
	case opts.Offset > 0:
		return fmt.Sprintf(" LIMIT -1 OFFSET %d", opts.Offset)
	}
	return ""
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

var (
	_ domain.OutcomeStore = (*Journal)(nil)
	_ domain.AuditStore   = AuditView{}
)
