package s3blob

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/alanyoungcy/kalshiedge/internal/domain"
)

// SnapshotStore implements domain.SnapshotStore as a single object.
type SnapshotStore struct {
	reader domain.BlobReader
	writer domain.BlobWriter
	key    string
}

// NewSnapshotStore stores the snapshot under key.
func NewSnapshotStore(reader domain.BlobReader, writer domain.BlobWriter, key string) *SnapshotStore {
	return &SnapshotStore{reader: reader, writer: writer, key: key}
}

// Load returns the stored bytes; a missing object is domain.ErrNotFound.
func (s *SnapshotStore) Load(ctx context.Context) ([]byte, error) {
	body, err := s.reader.Get(ctx, s.key)
	if err != nil {
		return nil, err
	}
	defer body.Close()
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("s3blob: read snapshot: %w", err)
	}
	return data, nil
}

// Save overwrites the object.
func (s *SnapshotStore) Save(ctx context.Context, data []byte) error {
	return s.writer.Put(ctx, s.key, bytes.NewReader(data), "application/json")
}

var _ domain.SnapshotStore = (*SnapshotStore)(nil)
