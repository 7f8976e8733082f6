package s3blob

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/kalshiedge/internal/domain"
)

type memBucket struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newMemBucket() *memBucket { return &memBucket{objects: map[string][]byte{}} }

func (m *memBucket) Put(_ context.Context, path string, data io.Reader, _ string) error {
	b, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[path] = b
	return nil
}

func (m *memBucket) PutMultipart(ctx context.Context, path string, data io.Reader, _ int64) error {
	return m.Put(ctx, path, data, "")
}

func (m *memBucket) Get(_ context.Context, path string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.objects[path]
	if !ok {
		return nil, fmt.Errorf("get %s: %w", path, domain.ErrNotFound)
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

type memAudit struct{ events []string }

func (a *memAudit) Log(_ context.Context, event string, _ map[string]any) error {
	a.events = append(a.events, event)
	return nil
}

func (a *memAudit) List(context.Context, domain.ListOpts) ([]domain.AuditEntry, error) {
	return nil, nil
}

func TestSnapshotStore(t *testing.T) {
	bucket := newMemBucket()
	s := NewSnapshotStore(bucket, bucket, "edgebot/correction.json")
	ctx := context.Background()

	_, err := s.Load(ctx)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	require.NoError(t, s.Save(ctx, []byte(`{"version":1}`)))
	data, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, `{"version":1}`, string(data))
}

func TestArchiver_ArchiveOutcomes(t *testing.T) {
	bucket := newMemBucket()
	audit := &memAudit{}
	a := NewArchiver(bucket, audit, "edgebot")
	at := time.Date(2026, 5, 4, 15, 4, 5, 0, time.UTC)

	path, err := a.ArchiveOutcomes(context.Background(), nil, at)
	require.NoError(t, err)
	assert.Empty(t, path)

	outcomes := []domain.Outcome{
		{PositionID: "p1", Ticker: "KX-A", Side: domain.SideYes, Won: true, PnL: 0.14},
		{PositionID: "p2", Ticker: "KX-B", Side: domain.SideNo, PnL: -0.47},
	}
	path, err = a.ArchiveOutcomes(context.Background(), outcomes, at)
	require.NoError(t, err)
	assert.Equal(t, "edgebot/archive/outcomes/2026-05-04/150405.jsonl", path)
	assert.Equal(t, []string{"archive.outcomes"}, audit.events)

	sc := bufio.NewScanner(bytes.NewReader(bucket.objects[path]))
	var got []domain.Outcome
	for sc.Scan() {
		var o domain.Outcome
		require.NoError(t, json.Unmarshal(sc.Bytes(), &o))
		got = append(got, o)
	}
	require.Len(t, got, 2)
	assert.Equal(t, "p2", got[1].PositionID)
}

func TestHelpers(t *testing.T) {
	assert.Equal(t, "https://e2.example.com", normaliseEndpoint("e2.example.com", true))
	assert.Equal(t, "http://localhost:9000", normaliseEndpoint("localhost:9000", false))
	assert.Equal(t, "http://minio:9000", normaliseEndpoint("http://minio:9000", true))

	assert.Equal(t, "a", joinKey("", "a"))
	assert.Equal(t, "p/a", joinKey("p/", "a"))
	assert.Equal(t, "p/a", joinKey("p", "a"))

	assert.True(t, isNotFound(fmt.Errorf("wrapped: %w", &types.NoSuchKey{})))
	assert.True(t, isNotFound(&types.NotFound{}))
	assert.False(t, isNotFound(fmt.Errorf("boom")))
}
