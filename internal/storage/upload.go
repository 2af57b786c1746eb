package storage

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"sync/atomic"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

const (
	uploadConcurrency = 4
	uploadPartSize    = 32 * 1024 * 1024
)

// Uploader is the slice of the transfer manager the target needs.
type Uploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// Target writes repacked archives into the destination bucket.
type Target struct {
	uploader   Uploader
	bucket     string
	keyPrefix  string
	uploaderID string
}

// NewTarget constructs a target around an existing uploader.
func NewTarget(uploader Uploader, bucket, keyPrefix, uploaderID string) *Target {
	return &Target{
		uploader:   uploader,
		bucket:     bucket,
		keyPrefix:  keyPrefix,
		uploaderID: uploaderID,
	}
}

// NewTargetFromClient constructs a target with the standard transfer-manager
// tuning: four concurrent 32 MiB parts, failed multipart uploads aborted
// rather than left dangling.
func NewTargetFromClient(client *s3.Client, bucket, keyPrefix, uploaderID string) *Target {
	uploader := manager.NewUploader(client, func(u *manager.Uploader) {
		u.Concurrency = uploadConcurrency
		u.PartSize = uploadPartSize
		u.LeavePartsOnError = false
	})
	return NewTarget(uploader, bucket, keyPrefix, uploaderID)
}

// KeyPrefix returns the configured key prefix.
func (t *Target) KeyPrefix() string {
	return t.keyPrefix
}

// ObjectKey builds the destination key for one repacked archive.
func (t *Target) ObjectKey(gameID, resourceID int64, fileName string) string {
	return ObjectKey(t.keyPrefix, gameID, resourceID, fileName)
}

// UploadRequest describes one file upload.
type UploadRequest struct {
	LocalPath   string
	Key         string
	ContentType string
	GameID      int64
	SHA256      string
	Progress    func(written int64)
}

// Upload streams a local file to the target bucket with the migration
// metadata the catalog's scanners rely on.
func (t *Target) Upload(ctx context.Context, req UploadRequest) error {
	file, err := os.Open(req.LocalPath)
	if err != nil {
		return fmt.Errorf("open upload source: %w", err)
	}
	defer file.Close()

	var body *progressReader
	input := &s3.PutObjectInput{
		Bucket:      aws.String(t.bucket),
		Key:         aws.String(req.Key),
		ContentType: aws.String(req.ContentType),
		Metadata: map[string]string{
			"game-id":     strconv.FormatInt(req.GameID, 10),
			"uploader-id": t.uploaderID,
			"scan":        "ok",
			"file-sha256": req.SHA256,
		},
	}
	if req.Progress != nil {
		body = &progressReader{file: file, progress: req.Progress}
		input.Body = body
	} else {
		input.Body = file
	}

	if _, err := t.uploader.Upload(ctx, input); err != nil {
		return fmt.Errorf("upload s3://%s/%s: %w", t.bucket, req.Key, err)
	}
	return nil
}

// progressReader reports cumulative bytes read. The transfer manager reads
// parts concurrently via ReadAt, so the counter is atomic and monotone
// without being an exact byte offset.
type progressReader struct {
	file     *os.File
	read     atomic.Int64
	progress func(int64)
}

func (r *progressReader) Read(p []byte) (int, error) {
	n, err := r.file.Read(p)
	if n > 0 {
		r.progress(r.read.Add(int64(n)))
	}
	return n, err
}

func (r *progressReader) ReadAt(p []byte, off int64) (int, error) {
	n, err := r.file.ReadAt(p, off)
	if n > 0 {
		r.progress(r.read.Add(int64(n)))
	}
	return n, err
}

func (r *progressReader) Seek(offset int64, whence int) (int64, error) {
	return r.file.Seek(offset, whence)
}
