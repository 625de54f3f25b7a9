package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/ciblhq/tradeduel/internal/domain"
)

// Narrow store interfaces: the archiver only needs the time-ranged queries it
// actually calls, not the full domain store interfaces. The Postgres stores
// satisfy these implicitly.

// ChallengeArchiveStore provides read access to settled challenges for
// archival.
type ChallengeArchiveStore interface {
	ListSettledBefore(ctx context.Context, before time.Time) ([]domain.Challenge, error)
}

// ChatArchiveStore provides read access to old chat messages for archival.
type ChatArchiveStore interface {
	ListBefore(ctx context.Context, before time.Time) ([]domain.ChatMessage, error)
}

// multipartThreshold is the payload size above which archive uploads switch
// from a single PutObject to a multipart upload.
const multipartThreshold = 16 * 1024 * 1024

// ArchiveUploader is the slice of Writer the archiver needs. Satisfied by
// *Writer.
type ArchiveUploader interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
	PutMultipart(ctx context.Context, path string, data io.Reader, contentType string) error
}

// ArchiveImpl implements domain.Archiver by querying the stores for old
// records, serializing them to JSONL, and uploading the result to S3.
//
// Deletion of the archived records from the primary store is intentionally
// NOT performed here -- that is a separate, explicit step to be executed
// after the archive has been verified.
type ArchiveImpl struct {
	writer     ArchiveUploader
	challenges ChallengeArchiveStore
	chat       ChatArchiveStore
	audit      domain.AuditStore
}

// NewArchiver creates a new ArchiveImpl.
func NewArchiver(
	writer ArchiveUploader,
	challenges ChallengeArchiveStore,
	chat ChatArchiveStore,
	audit domain.AuditStore,
) *ArchiveImpl {
	return &ArchiveImpl{
		writer:     writer,
		challenges: challenges,
		chat:       chat,
		audit:      audit,
	}
}

// ArchiveChallenges queries all terminal challenges before the cutoff,
// serializes them to JSONL, and uploads the file to S3 at
// archive/challenges/YYYY-MM.jsonl. The archival event is recorded in the
// audit log and the count of archived records is returned.
func (a *ArchiveImpl) ArchiveChallenges(ctx context.Context, before time.Time) (int64, error) {
	challenges, err := a.challenges.ListSettledBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive challenges query: %w", err)
	}
	if len(challenges) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(challenges)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive challenges marshal: %w", err)
	}

	path := archivePath("challenges", before)
	if err := a.upload(ctx, path, buf); err != nil {
		return 0, fmt.Errorf("s3blob: archive challenges upload: %w", err)
	}

	count := int64(len(challenges))

	if err := a.audit.Log(ctx, "archive.challenges", map[string]any{
		"path":   path,
		"count":  count,
		"before": before.Format(time.RFC3339),
	}); err != nil {
		return count, fmt.Errorf("s3blob: archive challenges audit log: %w", err)
	}

	return count, nil
}

// ArchiveChat queries all chat messages before the cutoff, serializes them
// to JSONL, and uploads the file to S3 at archive/chat/YYYY-MM.jsonl. The
// archival event is recorded in the audit log and the count of archived
// records is returned.
func (a *ArchiveImpl) ArchiveChat(ctx context.Context, before time.Time) (int64, error) {
	messages, err := a.chat.ListBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive chat query: %w", err)
	}
	if len(messages) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(messages)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive chat marshal: %w", err)
	}

	path := archivePath("chat", before)
	if err := a.upload(ctx, path, buf); err != nil {
		return 0, fmt.Errorf("s3blob: archive chat upload: %w", err)
	}

	count := int64(len(messages))

	if err := a.audit.Log(ctx, "archive.chat", map[string]any{
		"path":   path,
		"count":  count,
		"before": before.Format(time.RFC3339),
	}); err != nil {
		return count, fmt.Errorf("s3blob: archive chat audit log: %w", err)
	}

	return count, nil
}

// upload pushes one archive file to the bucket, going multipart once the
// month's JSONL is large enough to be worth splitting.
func (a *ArchiveImpl) upload(ctx context.Context, path string, buf []byte) error {
	const contentType = "application/x-ndjson"
	if len(buf) >= multipartThreshold {
		return a.writer.PutMultipart(ctx, path, bytes.NewReader(buf), contentType)
	}
	return a.writer.Put(ctx, path, bytes.NewReader(buf), contentType)
}

// archivePath builds the S3 key for an archive file, partitioned by the
// year-month of the cutoff time.
//
//	archive/challenges/2026-01.jsonl
//	archive/chat/2026-01.jsonl
func archivePath(kind string, before time.Time) string {
	return fmt.Sprintf("archive/%s/%s.jsonl", kind, before.Format("2006-01"))
}

// marshalJSONL serialises a slice of values as newline-delimited JSON (JSONL).
// Each element is marshalled as a single compact JSON line followed by '\n'.
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
