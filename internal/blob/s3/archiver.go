package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/alanyoungcy/kalshiedge/internal/domain"
)

// Batches at or above multipartThreshold go through the upload manager.
const (
	multipartThreshold = 8 << 20
	multipartPartSize  = 5 << 20
)

// Archiver uploads batches of resolved outcomes as JSONL, one object per
// batch under archive/outcomes/YYYY-MM-DD/. Records stay in the primary
// ledger; archiving only copies.
type Archiver struct {
	writer domain.BlobWriter
	audit  domain.AuditStore
	prefix string
}

// NewArchiver writes through writer. audit may be nil.
func NewArchiver(writer domain.BlobWriter, audit domain.AuditStore, prefix string) *Archiver {
	return &Archiver{writer: writer, audit: audit, prefix: prefix}
}

// ArchiveOutcomes uploads outcomes and returns the object key. An empty
// batch uploads nothing and returns "".
func (a *Archiver) ArchiveOutcomes(ctx context.Context, outcomes []domain.Outcome, at time.Time) (string, error) {
	if len(outcomes) == 0 {
		return "", nil
	}
	buf, err := marshalJSONL(outcomes)
	if err != nil {
		return "", fmt.Errorf("s3blob: archive outcomes: %w", err)
	}
	path := joinKey(a.prefix, archivePath("outcomes", at))
	if len(buf) >= multipartThreshold {
		err = a.writer.PutMultipart(ctx, path, bytes.NewReader(buf), multipartPartSize)
	} else {
		err = a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson")
	}
	if err != nil {
		return "", fmt.Errorf("s3blob: archive outcomes: %w", err)
	}
	if a.audit != nil {
		if err := a.audit.Log(ctx, "archive.outcomes", map[string]any{
			"path":  path,
			"count": len(outcomes),
			"at":    at.UTC().Format(time.RFC3339),
		}); err != nil {
			return path, fmt.Errorf("s3blob: archive outcomes audit: %w", err)
		}
	}
	return path, nil
}

//	archive/outcomes/2026-05-04/150405.jsonl
func archivePath(kind string, at time.Time) string {
	at = at.UTC()
	return fmt.Sprintf("archive/%s/%s/%s.jsonl", kind, at.Format("2006-01-02"), at.Format("150405"))
}

func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}

var _ domain.Archiver = (*Archiver)(nil)
