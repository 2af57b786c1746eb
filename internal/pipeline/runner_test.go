package pipeline_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"reshelve/internal/download"
	"reshelve/internal/pipeline"
	"reshelve/internal/services"
	"reshelve/internal/services/sevenzip"
	"reshelve/internal/storage"
	"reshelve/internal/store"
)

type fakeDownloader struct {
	dir      string
	calls    []string
	requests []download.Request
	errs     map[string]error
}

func (f *fakeDownloader) Download(_ context.Context, req download.Request) (string, error) {
	f.calls = append(f.calls, req.FileName)
	f.requests = append(f.requests, req)
	if err := f.errs[req.FileName]; err != nil {
		return "", err
	}
	localPath := filepath.Join(f.dir, req.FileName)
	if err := os.WriteFile(localPath, []byte("archive"), 0o644); err != nil {
		return "", err
	}
	return localPath, nil
}

type fakeArchiver struct {
	extracts   int
	compresses int
	extractErr error
}

func (f *fakeArchiver) Extract(_ context.Context, _, destDir string, _ func(sevenzip.ProgressUpdate)) (string, error) {
	f.extracts++
	if f.extractErr != nil {
		return "", f.extractErr
	}
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", err
	}
	return "", os.WriteFile(filepath.Join(destDir, "payload.bin"), []byte("data"), 0o644)
}

func (f *fakeArchiver) Compress(_ context.Context, _, outPath string, _ func(sevenzip.ProgressUpdate)) error {
	f.compresses++
	return os.WriteFile(outPath, []byte("packed"), 0o644)
}

type fakeTarget struct {
	uploads []storage.UploadRequest
}

func (f *fakeTarget) ObjectKey(gameID, resourceID int64, fileName string) string {
	return storage.ObjectKey("games", gameID, resourceID, fileName)
}

func (f *fakeTarget) Upload(_ context.Context, req storage.UploadRequest) error {
	f.uploads = append(f.uploads, req)
	return nil
}

type runnerFixture struct {
	store      *store.Store
	downloader *fakeDownloader
	archiver   *fakeArchiver
	catalog    *fakeCatalog
	target     *fakeTarget
	runner     *pipeline.Runner
}

func newFixture(t *testing.T) *runnerFixture {
	t.Helper()
	root := t.TempDir()
	downloadsDir := filepath.Join(root, "downloads")
	if err := os.MkdirAll(downloadsDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	fixture := &runnerFixture{
		store:      openStore(t),
		downloader: &fakeDownloader{dir: downloadsDir, errs: map[string]error{}},
		archiver:   &fakeArchiver{},
		catalog:    &fakeCatalog{resourceID: 77},
		target:     &fakeTarget{},
	}
	fixture.runner = pipeline.NewRunner(pipeline.RunnerConfig{
		Store:        fixture.store,
		Downloads:    fixture.downloader,
		Archiver:     fixture.archiver,
		Catalog:      fixture.catalog,
		Target:       fixture.target,
		ExtractedDir: filepath.Join(root, "extracted"),
		ArchiveDir:   filepath.Join(root, "archives"),
		Languages:    []string{"zh"},
		Format:       "7z",
	})
	return fixture
}

func seedGroup(t *testing.T, st *store.Store, groupKey string, catalogID int64, names ...string) {
	t.Helper()
	items := make([]*store.FileItem, len(names))
	for i, name := range names {
		items[i] = &store.FileItem{
			GroupKey:     groupKey,
			Ordinal:      i,
			OriginalKey:  "raw/" + name,
			OriginalName: name,
			OriginalSize: int64(100 * (i + 1)),
			CatalogID:    catalogID,
			Platform:     store.PlatformPC,
		}
	}
	if _, err := st.SeedItems(context.Background(), items); err != nil {
		t.Fatalf("SeedItems: %v", err)
	}
}

func loadItems(t *testing.T, st *store.Store) []*store.FileItem {
	t.Helper()
	groups, err := st.ListGroups(context.Background())
	if err != nil {
		t.Fatalf("ListGroups: %v", err)
	}
	var items []*store.FileItem
	for _, group := range groups {
		items = append(items, group.Items...)
	}
	return items
}

func setAllStatus(t *testing.T, st *store.Store, status store.Status) {
	t.Helper()
	for _, item := range loadItems(t, st) {
		item.Status = status
		if err := st.UpdateItem(context.Background(), item); err != nil {
			t.Fatalf("UpdateItem: %v", err)
		}
	}
}

func TestRunCompletesMultipartGroup(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)
	seedGroup(t, fx.store, "5__pc__foo.bar.2023.7z", 5,
		"foo.bar.2023.7z.001", "foo.bar.2023.7z.002")

	summary, err := fx.runner.Run(context.Background(), false)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Completed != 1 || summary.Failed != 0 {
		t.Fatalf("summary: %+v", summary)
	}
	if len(fx.downloader.calls) != 2 {
		t.Fatalf("downloads: %v", fx.downloader.calls)
	}
	for i, req := range fx.downloader.requests {
		if want := int64(100 * (i + 1)); req.ExpectedSize != want {
			t.Errorf("request %s expected size %d, want %d", req.FileName, req.ExpectedSize, want)
		}
	}
	if fx.archiver.extracts != 1 || fx.archiver.compresses != 1 {
		t.Fatalf("archiver calls: %d extracts, %d compresses", fx.archiver.extracts, fx.archiver.compresses)
	}
	if len(fx.target.uploads) != 1 {
		t.Fatalf("uploads: %+v", fx.target.uploads)
	}
	upload := fx.target.uploads[0]
	if upload.Key != "games/5/77/foo.bar.2023.7z" {
		t.Fatalf("upload key: %q", upload.Key)
	}
	if len(fx.catalog.resources) != 1 || fx.catalog.resources[0].gameID != 5 {
		t.Fatalf("resources: %+v", fx.catalog.resources)
	}
	if len(fx.catalog.files) != 1 {
		t.Fatalf("resource files: %+v", fx.catalog.files)
	}
	registered := fx.catalog.files[0]
	if registered.Key != upload.Key || registered.Hash != upload.SHA256 || len(registered.Hash) != 64 {
		t.Fatalf("registered file: %+v", registered)
	}
	if registered.Size != int64(len("packed")) {
		t.Fatalf("registered size: %d", registered.Size)
	}

	for _, item := range loadItems(t, fx.store) {
		if item.Status != store.StatusCompleted {
			t.Errorf("item %s status %s", item.OriginalName, item.Status)
		}
		if item.NewKey != upload.Key || item.NewName != "foo.bar.2023.7z" {
			t.Errorf("item %s new key %q name %q", item.OriginalName, item.NewKey, item.NewName)
		}
	}

	// Intermediates are deleted once the group completes.
	if _, err := os.Stat(filepath.Join(fx.downloader.dir, "foo.bar.2023.7z.001")); err == nil {
		t.Error("downloaded volume not cleaned up")
	}
	if _, err := os.Stat(upload.LocalPath); err == nil {
		t.Error("repacked archive not cleaned up")
	}
}

func TestRunIdempotentWhenCompleted(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)
	seedGroup(t, fx.store, "5__pc__foo.bar.2023.7z", 5, "foo.bar.2023.7z.001", "foo.bar.2023.7z.002")
	setAllStatus(t, fx.store, store.StatusCompleted)

	summary, err := fx.runner.Run(context.Background(), false)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.AlreadyDone != 1 || summary.Completed != 0 {
		t.Fatalf("summary: %+v", summary)
	}
	if len(fx.downloader.calls) != 0 || fx.archiver.extracts != 0 || len(fx.target.uploads) != 0 {
		t.Fatal("completed group was reprocessed")
	}
}

func TestRunPasswordSkipsGroup(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)
	fx.archiver.extractErr = services.Wrap(services.ErrPassword, "sevenzip", "extract", "foo.bar.2023.7z.001", nil)
	seedGroup(t, fx.store, "5__pc__foo.bar.2023.7z", 5, "foo.bar.2023.7z.001", "foo.bar.2023.7z.002")

	summary, err := fx.runner.Run(context.Background(), false)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Skipped != 1 || summary.Failed != 0 {
		t.Fatalf("summary: %+v", summary)
	}
	for _, item := range loadItems(t, fx.store) {
		if item.Status != store.StatusSkipped || item.SkippedReason != "extract password error" {
			t.Errorf("item %s: status %s, reason %q", item.OriginalName, item.Status, item.SkippedReason)
		}
	}
	if len(fx.target.uploads) != 0 {
		t.Fatal("skipped group was uploaded")
	}
}

func TestRunPreflightSkipsItem(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)
	fx.downloader.errs["solo.zip"] = services.Wrap(services.ErrPreflight, "download", "solo.zip", "not found on any mirror", nil)
	seedGroup(t, fx.store, "5__pc__solo.zip", 5, "solo.zip")

	summary, err := fx.runner.Run(context.Background(), false)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Skipped != 1 {
		t.Fatalf("summary: %+v", summary)
	}
	items := loadItems(t, fx.store)
	if items[0].Status != store.StatusSkipped {
		t.Fatalf("status: %s", items[0].Status)
	}
	if !strings.Contains(items[0].SkippedReason, "source unavailable") {
		t.Fatalf("reason: %q", items[0].SkippedReason)
	}
	if fx.archiver.extracts != 0 {
		t.Fatal("skipped group reached extraction")
	}
}

func TestRunDownloadFailureFailsGroupAndContinues(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)
	fx.downloader.errs["broken.zip"] = services.Wrap(services.ErrDaemon, "download", "broken.zip", "daemon error", nil)
	seedGroup(t, fx.store, "5__pc__broken.zip", 5, "broken.zip")
	seedGroup(t, fx.store, "9__pc__foo.bar.2023.zip", 9, "foo.bar.2023.zip")

	summary, err := fx.runner.Run(context.Background(), false)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Failed != 1 || summary.Completed != 1 {
		t.Fatalf("summary: %+v", summary)
	}
	for _, item := range loadItems(t, fx.store) {
		switch item.OriginalName {
		case "broken.zip":
			if item.Status != store.StatusFailed {
				t.Errorf("broken.zip status %s", item.Status)
			}
		case "foo.bar.2023.zip":
			if item.Status != store.StatusCompleted {
				t.Errorf("foo.bar.2023.zip status %s", item.Status)
			}
		}
	}
}

func TestRunSkipsGroupMissingFirstVolume(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)
	seedGroup(t, fx.store, "5__pc__foo.bar.2023.7z", 5,
		"foo.bar.2023.7z.002", "foo.bar.2023.7z.003")

	summary, err := fx.runner.Run(context.Background(), false)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Skipped != 1 {
		t.Fatalf("summary: %+v", summary)
	}
	for _, item := range loadItems(t, fx.store) {
		if item.Status != store.StatusSkipped || item.SkippedReason != "first volume missing" {
			t.Errorf("item %s: status %s, reason %q", item.OriginalName, item.Status, item.SkippedReason)
		}
	}
	if fx.archiver.extracts != 0 {
		t.Fatal("incomplete group reached extraction")
	}
}

func TestRunReexaminesSkippedGroupsOnOverride(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)
	seedGroup(t, fx.store, "5__pc__foo.bar.2023.zip", 5, "foo.bar.2023.zip")
	setAllStatus(t, fx.store, store.StatusSkipped)

	summary, err := fx.runner.Run(context.Background(), false)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.AlreadyDone != 1 {
		t.Fatalf("summary without override: %+v", summary)
	}

	summary, err = fx.runner.Run(context.Background(), true)
	if err != nil {
		t.Fatalf("Run with override: %v", err)
	}
	if summary.Completed != 1 {
		t.Fatalf("summary with override: %+v", summary)
	}
	for _, item := range loadItems(t, fx.store) {
		if item.Status != store.StatusCompleted {
			t.Errorf("item %s status %s", item.OriginalName, item.Status)
		}
	}
}
