package notify

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"
)

type objectStore interface {
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

// ArchiveSink writes every event as a JSON object into a MinIO bucket, giving
// an append-only audit trail per file.
type ArchiveSink struct {
	store  objectStore
	bucket string
}

// NewArchiveSink constructs an archive sink writing into bucket.
func NewArchiveSink(store objectStore, bucket string) *ArchiveSink {
	return &ArchiveSink{store: store, bucket: bucket}
}

func (s *ArchiveSink) Name() string {
	return "archive"
}

// ObjectName returns the key an event is archived under.
func ObjectName(event Event) string {
	return fmt.Sprintf("events/%s/%s-%s.json",
		event.FileID,
		event.OccurredAt.UTC().Format("20060102T150405.000000000Z"),
		event.ID,
	)
}

func (s *ArchiveSink) Send(ctx context.Context, event Event) error {
	data, err := Encode(event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	_, err = s.store.PutObject(ctx, s.bucket, ObjectName(event), bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: "application/json",
		UserMetadata: map[string]string{
			"event-type": string(event.Kind),
			"file-id":    event.FileID,
		},
	})
	if err != nil {
		return fmt.Errorf("archive event: %w", err)
	}
	return nil
}
