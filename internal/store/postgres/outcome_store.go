package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/kalshiedge/internal/domain"
)

// OutcomeStore implements domain.OutcomeStore. Inserts are idempotent on
// position id.
type OutcomeStore struct {
	pool *pgxpool.Pool
}

// NewOutcomeStore creates an OutcomeStore backed by the given pool.
func NewOutcomeStore(pool *pgxpool.Pool) *OutcomeStore {
	return &OutcomeStore{pool: pool}
}

const outcomeCols = `position_id, ticker, side, kind, won, pnl, entry_price, exit_price,
	contracts, direction, tier, vol_regime, time_bucket, resolution, reason, resolved_at`

// Insert records one resolved position.
func (s *OutcomeStore) Insert(ctx context.Context, o domain.Outcome) error {
	const query = `INSERT INTO outcomes (` + outcomeCols + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (position_id) DO NOTHING`
	_, err := s.pool.Exec(ctx, query,
		o.PositionID, o.Ticker, string(o.Side), string(o.Kind), o.Won, o.PnL,
		o.EntryPrice, o.ExitPrice, o.Contracts,
		string(o.Context.Direction), string(o.Context.Tier),
		string(o.Context.VolRegime), string(o.Context.TimeBucket),
		o.Resolution, o.Reason, o.ResolvedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert outcome %s: %w", o.PositionID, err)
	}
	return nil
}

// List returns outcomes newest first.
func (s *OutcomeStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.Outcome, error) {
	query, args := listQuery(`SELECT `+outcomeCols+` FROM outcomes WHERE 1=1`, "resolved_at", opts)
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list outcomes: %w", err)
	}
	defer rows.Close()

	out, err := scanOutcomes(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan outcomes: %w", err)
	}
	return out, nil
}

// Summary aggregates outcomes resolved at or after since.
func (s *OutcomeStore) Summary(ctx context.Context, since time.Time) (domain.OutcomeSummary, error) {
	const query = `SELECT COUNT(*),
			COUNT(*) FILTER (WHERE won),
			COUNT(*) FILTER (WHERE NOT won),
			COALESCE(SUM(pnl), 0)
		FROM outcomes WHERE resolved_at >= $1`
	var sum domain.OutcomeSummary
	if err := s.pool.QueryRow(ctx, query, since).Scan(&sum.Count, &sum.Wins, &sum.Losses, &sum.PnL); err != nil {
		return domain.OutcomeSummary{}, fmt.Errorf("postgres: outcome summary: %w", err)
	}
	return sum, nil
}

func scanOutcomes(rows pgx.Rows) ([]domain.Outcome, error) {
	var out []domain.Outcome
	for rows.Next() {
		var (
			o                    domain.Outcome
			side, kind           string
			dir, tier, vol, tbkt string
		)
		if err := rows.Scan(
			&o.PositionID, &o.Ticker, &side, &kind, &o.Won, &o.PnL,
			&o.EntryPrice, &o.ExitPrice, &o.Contracts,
			&dir, &tier, &vol, &tbkt,
			&o.Resolution, &o.Reason, &o.ResolvedAt,
		); err != nil {
			return nil, err
		}
		o.Side = domain.Side(side)
		o.Kind = domain.OpportunityKind(kind)
		o.Context = domain.DecisionContext{
			Direction:  domain.Direction(dir),
			Tier:       domain.Tier(tier),
			VolRegime:  domain.VolRegime(vol),
			TimeBucket: domain.TimeBucket(tbkt),
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

var _ domain.OutcomeStore = (*OutcomeStore)(nil)
