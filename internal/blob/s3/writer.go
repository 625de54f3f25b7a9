package s3blob

import (
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// archivePartSize is the part size for multipart archive uploads. 8 MiB
// keeps part counts low for monthly JSONL files while staying above the S3
// minimum of 5 MiB.
const archivePartSize int64 = 8 * 1024 * 1024

// Writer uploads archive objects to the configured bucket. It implements
// domain.BlobWriter.
type Writer struct {
	c *Client
}

// NewWriter creates a Writer over the client's archive bucket.
func NewWriter(c *Client) *Writer {
	return &Writer{c: c}
}

// Put uploads data as a single object.
func (w *Writer) Put(ctx context.Context, path string, data io.Reader, contentType string) error {
	_, err := w.c.s3.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(w.c.bucket),
		Key:         aws.String(path),
		Body:        data,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("s3blob: put %s: %w", path, err)
	}
	return nil
}

// PutMultipart uploads data through the SDK upload manager, which splits the
// payload into parts and uploads them concurrently. The archiver uses it for
// months whose JSONL outgrows a single PutObject round trip.
func (w *Writer) PutMultipart(ctx context.Context, path string, data io.Reader, contentType string) error {
	uploader := manager.NewUploader(w.c.s3, func(u *manager.Uploader) {
		u.PartSize = archivePartSize
	})

	_, err := uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(w.c.bucket),
		Key:         aws.String(path),
		Body:        data,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("s3blob: multipart put %s: %w", path, err)
	}
	return nil
}
