package storage_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"reshelve/internal/storage"
)

type stubLister struct {
	pages []*s3.ListObjectsV2Output
	calls int
}

func (s *stubLister) ListObjectsV2(_ context.Context, _ *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	page := s.pages[s.calls]
	s.calls++
	return page, nil
}

func object(key string, size int64) types.Object {
	return types.Object{Key: aws.String(key), Size: aws.Int64(size)}
}

func TestListPaginatesAndFilters(t *testing.T) {
	t.Parallel()

	lister := &stubLister{pages: []*s3.ListObjectsV2Output{
		{
			Contents: []types.Object{
				object("raw/game.7z.001", 100),
				object("raw/dir/", 0),
				object("raw/empty.zip", 0),
			},
			IsTruncated:           aws.Bool(true),
			NextContinuationToken: aws.String("next"),
		},
		{
			Contents: []types.Object{
				object("raw/game.7z.002", 100),
			},
			IsTruncated: aws.Bool(false),
		},
	}}

	source := storage.NewSource(lister, "raw-bucket", "raw/")
	objects, err := source.List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if lister.calls != 2 {
		t.Fatalf("pages fetched: %d, want 2", lister.calls)
	}
	if len(objects) != 2 {
		t.Fatalf("objects: %+v", objects)
	}
	if objects[0].Key != "raw/game.7z.001" || objects[1].Key != "raw/game.7z.002" {
		t.Fatalf("keys: %q, %q", objects[0].Key, objects[1].Key)
	}
}

func TestObjectKeyLayout(t *testing.T) {
	t.Parallel()

	got := storage.ObjectKey("games", 5, 77, "game.7z")
	if got != "games/5/77/game.7z" {
		t.Fatalf("ObjectKey: %q", got)
	}
}

type capturingUploader struct {
	input *s3.PutObjectInput
	read  []byte
}

func (u *capturingUploader) Upload(_ context.Context, input *s3.PutObjectInput, _ ...func(*manager.Uploader)) (*manager.UploadOutput, error) {
	u.input = input
	buf := make([]byte, 1024)
	for {
		n, err := input.Body.Read(buf)
		u.read = append(u.read, buf[:n]...)
		if err != nil {
			break
		}
	}
	return &manager.UploadOutput{}, nil
}

func TestUploadSetsMigrationMetadata(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "game.7z")
	if err := os.WriteFile(path, []byte("archive-bytes"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	uploader := &capturingUploader{}
	target := storage.NewTarget(uploader, "packed", "games", "migrate")

	var lastProgress int64
	err := target.Upload(context.Background(), storage.UploadRequest{
		LocalPath:   path,
		Key:         target.ObjectKey(5, 77, "game.7z"),
		ContentType: "application/x-7z-compressed",
		GameID:      5,
		SHA256:      "cafebabe",
		Progress:    func(written int64) { lastProgress = written },
	})
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}

	if got := aws.ToString(uploader.input.Key); got != "games/5/77/game.7z" {
		t.Fatalf("key: %q", got)
	}
	if got := aws.ToString(uploader.input.Bucket); got != "packed" {
		t.Fatalf("bucket: %q", got)
	}
	meta := uploader.input.Metadata
	for key, want := range map[string]string{
		"game-id":     "5",
		"uploader-id": "migrate",
		"scan":        "ok",
		"file-sha256": "cafebabe",
	} {
		if meta[key] != want {
			t.Errorf("metadata %s = %q, want %q", key, meta[key], want)
		}
	}
	if string(uploader.read) != "archive-bytes" {
		t.Fatalf("uploaded body: %q", uploader.read)
	}
	if lastProgress != int64(len("archive-bytes")) {
		t.Fatalf("progress: %d", lastProgress)
	}
}
