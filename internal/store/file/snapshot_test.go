package file

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/kalshiedge/internal/domain"
)

func TestSnapshotStore_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	s := NewSnapshotStore(filepath.Join(dir, "state", "correction.json"))
	ctx := context.Background()

	_, err := s.Load(ctx)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	require.NoError(t, s.Save(ctx, []byte(`{"version":1}`)))
	require.NoError(t, s.Save(ctx, []byte(`{"version":1,"total_bets":3}`)))

	data, err := s.Load(ctx)
	require.NoError(t, err)
	assert.JSONEq(t, `{"version":1,"total_bets":3}`, string(data))

	entries, err := os.ReadDir(filepath.Join(dir, "state"))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
