package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/kalshiedge/internal/domain"
)

func TestDSN(t *testing.T) {
	assert.Equal(t, "postgres://u:p@db:5432/edge?sslmode=disable",
		DSN(ClientConfig{Host: "db", Database: "edge", User: "u", Password: "p"}))
	assert.Equal(t, "postgres://x", DSN(ClientConfig{DSN: "postgres://x", Host: "ignored"}))
}

func TestListQuery(t *testing.T) {
	since := time.Date(2026, 5, 4, 0, 0, 0, 0, time.UTC)
	q, args := listQuery("SELECT * FROM outcomes WHERE 1=1", "resolved_at",
		domain.ListOpts{Since: &since, Limit: 20, Offset: 40})
	assert.Equal(t, "SELECT * FROM outcomes WHERE 1=1 AND resolved_at >= $1 ORDER BY resolved_at DESC LIMIT $2 OFFSET $3", q)
	assert.Equal(t, []any{since, 20, 40}, args)

	q, args = listQuery("SELECT 1 WHERE 1=1", "created_at", domain.ListOpts{})
	assert.Equal(t, "SELECT 1 WHERE 1=1 ORDER BY created_at DESC", q)
	assert.Empty(t, args)
}

func TestMigrationFilesOrdered(t *testing.T) {
	names, err := migrationFiles()
	require.NoError(t, err)
	assert.Equal(t, []string{"001_outcomes.sql", "002_audit_log.sql"}, names)
}

func TestOutcomeStore_Integration(t *testing.T) {
	dsn := os.Getenv("EDGEBOT_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("EDGEBOT_TEST_POSTGRES_DSN not set")
	}
	ctx := context.Background()
	c, err := New(ctx, ClientConfig{DSN: dsn})
	require.NoError(t, err)
	defer c.Close()
	require.NoError(t, c.RunMigrations(ctx))
	require.NoError(t, c.RunMigrations(ctx))

	store := NewOutcomeStore(c.Pool())
	now := time.Now().UTC().Truncate(time.Microsecond)
	o := domain.Outcome{
		PositionID: uuid.NewString(), Ticker: "KX-A", Side: domain.SideYes, Kind: domain.KindQuant,
		Won: true, PnL: 0.14, EntryPrice: 40, ExitPrice: 47, Contracts: 2,
		Context:    domain.DecisionContext{Direction: domain.DirectionUp, Tier: domain.TierUncertain},
		Resolution: domain.ResolutionEarlyExit, Reason: "take_profit", ResolvedAt: now,
	}
	require.NoError(t, store.Insert(ctx, o))
	require.NoError(t, store.Insert(ctx, o))

	got, err := store.List(ctx, domain.ListOpts{Since: &now, Limit: 10})
	require.NoError(t, err)
	require.NotEmpty(t, got)
	assert.Equal(t, o.PositionID, got[0].PositionID)
	assert.Equal(t, domain.DirectionUp, got[0].Context.Direction)

	sum, err := store.Summary(ctx, now)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, sum.Wins, 1)

	audit := NewAuditStore(c.Pool())
	require.NoError(t, audit.Log(ctx, "bet_placed", map[string]any{"ticker": "KX-A"}))
	entries, err := audit.List(ctx, domain.ListOpts{Limit: 1})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "bet_placed", entries[0].Event)
}
