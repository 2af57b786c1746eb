package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"reshelve/internal/download"
	"reshelve/internal/fileutil"
	"reshelve/internal/logging"
	"reshelve/internal/naming"
	"reshelve/internal/services"
	"reshelve/internal/services/catalog"
	"reshelve/internal/services/sevenzip"
	"reshelve/internal/storage"
	"reshelve/internal/store"
)

// Downloader is the slice of the download manager the runner drives.
type Downloader interface {
	Download(ctx context.Context, req download.Request) (string, error)
}

// Uploader is the slice of the storage target the runner drives.
type Uploader interface {
	ObjectKey(gameID, resourceID int64, fileName string) string
	Upload(ctx context.Context, req storage.UploadRequest) error
}

// ProgressFunc receives coarse progress for one long-running stage. Extract
// and compress report percent out of 100; download and upload report bytes.
type ProgressFunc func(stage, name string, completed, total int64)

// RunnerConfig carries the runner's collaborators and working directories.
type RunnerConfig struct {
	Store        *store.Store
	Downloads    Downloader
	Archiver     sevenzip.Archiver
	Catalog      catalog.Service
	Target       Uploader
	ExtractedDir string
	ArchiveDir   string
	Languages    []string
	Format       string
}

// Runner executes the migration over all planned file groups, one group at a
// time, resuming from persisted status.
type Runner struct {
	store        *store.Store
	downloads    Downloader
	archiver     sevenzip.Archiver
	catalog      catalog.Service
	target       Uploader
	extractedDir string
	archiveDir   string
	languages    []string
	format       string
	logger       *slog.Logger
	progress     ProgressFunc
}

// RunnerOption customizes runner construction.
type RunnerOption func(*Runner)

// WithRunnerLogger attaches a logger.
func WithRunnerLogger(logger *slog.Logger) RunnerOption {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logging.NewComponentLogger(logger, "run")
		}
	}
}

// WithProgress attaches a progress sink for interactive display.
func WithProgress(progress ProgressFunc) RunnerOption {
	return func(r *Runner) {
		r.progress = progress
	}
}

// NewRunner constructs a runner.
func NewRunner(cfg RunnerConfig, opts ...RunnerOption) *Runner {
	runner := &Runner{
		store:        cfg.Store,
		downloads:    cfg.Downloads,
		archiver:     cfg.Archiver,
		catalog:      cfg.Catalog,
		target:       cfg.Target,
		extractedDir: cfg.ExtractedDir,
		archiveDir:   cfg.ArchiveDir,
		languages:    cfg.Languages,
		format:       cfg.Format,
		logger:       logging.NewNop(),
	}
	for _, opt := range opts {
		opt(runner)
	}
	return runner
}

// RunSummary reports the per-group outcomes of one run.
type RunSummary struct {
	Groups      int
	Completed   int
	AlreadyDone int
	Skipped     int
	Failed      int
}

type groupOutcome int

const (
	outcomeCompleted groupOutcome = iota
	outcomeAlreadyDone
	outcomeSkipped
)

// Run processes every tracked file group sequentially. A failing group is
// marked failed and the run moves on to the next one; only context
// cancellation and store errors abort the whole run.
func (r *Runner) Run(ctx context.Context, includeSkipped bool) (RunSummary, error) {
	groups, err := r.store.ListGroups(ctx)
	if err != nil {
		return RunSummary{}, err
	}

	summary := RunSummary{Groups: len(groups)}
	for _, group := range groups {
		if ctx.Err() != nil {
			return summary, ctx.Err()
		}
		outcome, err := r.processGroup(ctx, group, includeSkipped)
		if err != nil {
			if ctx.Err() != nil {
				return summary, ctx.Err()
			}
			summary.Failed++
			r.logger.Error("group failed",
				logging.String("group", group.Key),
				logging.Error(err))
			r.failGroup(ctx, group)
			continue
		}
		switch outcome {
		case outcomeCompleted:
			summary.Completed++
		case outcomeAlreadyDone:
			summary.AlreadyDone++
		case outcomeSkipped:
			summary.Skipped++
		}
	}
	return summary, nil
}

func (r *Runner) processGroup(ctx context.Context, group *store.FileGroup, includeSkipped bool) (groupOutcome, error) {
	if group.AllCompleted() {
		return outcomeAlreadyDone, nil
	}
	if group.AllSkipped() && !includeSkipped {
		return outcomeAlreadyDone, nil
	}

	ctx = services.WithGroupKey(ctx, group.Key)
	log := r.logger.With(logging.String("group", group.Key))
	log.Info("processing group",
		logging.Int64("game_id", group.CatalogID),
		logging.String("platform", string(group.Platform)),
		logging.Int("items", len(group.Items)))

	for _, item := range group.Items {
		item.Status = store.StatusProcessing
		item.SkippedReason = ""
		if err := r.store.UpdateItem(ctx, item); err != nil {
			return 0, err
		}
	}

	paths, err := r.downloadItems(services.WithStage(ctx, "download"), group, log)
	if err != nil {
		return 0, err
	}

	active := activeItems(group)
	if len(active) == 0 {
		log.Warn("every item skipped during download, abandoning group")
		return outcomeSkipped, nil
	}
	names := itemNames(active)

	if outcome, reason := r.checkStructure(active, names, paths); !outcome {
		return r.skipGroup(ctx, active, reason, log)
	}

	primary := naming.SelectPrimary(names)
	primaryPath := paths[primary]
	if primaryPath == "" {
		return 0, fmt.Errorf("group %s: no local path for primary volume %q", group.Key, primary)
	}

	extractDir := filepath.Join(r.extractedDir, group.Key)
	outcome, err := r.extract(services.WithStage(ctx, "extract"), primary, primaryPath, extractDir, active, log)
	if err != nil || outcome == outcomeSkipped {
		return outcome, err
	}

	newName := repackedName(primary, r.format)
	outPath := filepath.Join(r.archiveDir, group.Key, newName)
	if err := r.compress(services.WithStage(ctx, "compress"), extractDir, outPath, newName, log); err != nil {
		return 0, err
	}

	newKey, size, hash, err := r.publish(services.WithStage(ctx, "upload"), group, outPath, newName, log)
	if err != nil {
		return 0, err
	}

	r.cleanup(outPath, extractDir, paths, log)

	contentType := contentTypeFor(r.format)
	for _, item := range active {
		item.Status = store.StatusCompleted
		item.NewKey = newKey
		item.NewName = newName
		item.NewSize = size
		item.NewHash = hash
		item.NewContentType = contentType
		item.SkippedReason = ""
		if err := r.store.UpdateItem(ctx, item); err != nil {
			return 0, err
		}
	}
	log.Info("group completed", logging.String("key", newKey))
	return outcomeCompleted, nil
}

// downloadItems fetches each item's artifact one at a time, in item order.
// A preflight failure skips just that item; any other failure aborts the
// group.
func (r *Runner) downloadItems(ctx context.Context, group *store.FileGroup, log *slog.Logger) (map[string]string, error) {
	paths := make(map[string]string, len(group.Items))
	for _, item := range group.Items {
		localPath, err := r.downloads.Download(ctx, download.Request{
			Key:          item.OriginalKey,
			FileName:     item.OriginalName,
			ExpectedSize: item.OriginalSize,
			Progress:     r.byteProgress("download", item.OriginalName),
		})
		if err != nil {
			if services.IsPreflight(err) {
				log.Warn("source object unavailable, skipping item",
					logging.String("key", item.OriginalKey),
					logging.Error(err))
				item.SetSkipped(fmt.Sprintf("source unavailable: %v", err))
				if err := r.store.UpdateItem(ctx, item); err != nil {
					return nil, err
				}
				continue
			}
			return nil, err
		}
		paths[item.OriginalName] = localPath
	}
	return paths, nil
}

// checkStructure verifies the group is a whole deliverable before any
// extract/compress/upload work. It returns false with a skip reason when the
// group cannot be assembled.
func (r *Runner) checkStructure(active []*store.FileItem, names []string, paths map[string]string) (bool, string) {
	if !naming.IsMultipart(names) {
		if !fileutil.Exists(paths[active[0].OriginalName]) {
			return false, "primary archive missing"
		}
		return true, ""
	}
	if !naming.FirstVolumePresent(names) {
		return false, "first volume missing"
	}
	if !naming.LaterVolumePresent(names) {
		return false, "only first volume present"
	}
	if scheme, missing := naming.MissingVolumes(names); len(missing) > 0 {
		return false, fmt.Sprintf("missing %s volumes %v", scheme, missing)
	}
	for _, item := range active {
		if !fileutil.Exists(paths[item.OriginalName]) {
			return false, "multipart incomplete"
		}
	}
	return true, ""
}

// extract unpacks the primary volume unless a prior run already left the
// extraction in place. A password failure is terminal for the group: the
// partial output is removed and every item is skipped.
func (r *Runner) extract(ctx context.Context, primary, primaryPath, extractDir string, active []*store.FileItem, log *slog.Logger) (groupOutcome, error) {
	populated, err := dirNonEmpty(extractDir)
	if err != nil {
		return 0, err
	}
	if populated {
		log.Info("reusing existing extraction", logging.String("dir", extractDir))
		return outcomeCompleted, nil
	}
	log.Info("extracting archive", logging.String("archive", primary))
	if _, err := r.archiver.Extract(ctx, primaryPath, extractDir, r.percentProgress("extract", primary)); err != nil {
		if services.IsPassword(err) {
			if rmErr := os.RemoveAll(extractDir); rmErr != nil {
				log.Warn("remove partial extraction", logging.Error(rmErr))
			}
			return r.skipGroup(ctx, active, "extract password error", log)
		}
		return 0, err
	}
	return outcomeCompleted, nil
}

func (r *Runner) compress(ctx context.Context, extractDir, outPath, newName string, log *slog.Logger) error {
	if fileutil.Exists(outPath) {
		log.Info("reusing existing repack", logging.String("file", newName))
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return fmt.Errorf("create repack directory: %w", err)
	}
	log.Info("repacking", logging.String("file", newName))
	return r.archiver.Compress(ctx, extractDir, outPath, r.percentProgress("compress", newName))
}

// publish registers a catalog resource, uploads the repacked archive, and
// attaches the file metadata to the resource. It returns the new object key,
// size, and hash.
func (r *Runner) publish(ctx context.Context, group *store.FileGroup, outPath, newName string, log *slog.Logger) (string, int64, string, error) {
	hash, err := fileutil.SHA256(outPath)
	if err != nil {
		return "", 0, "", fmt.Errorf("hash repacked archive: %w", err)
	}
	size := fileutil.Size(outPath)
	contentType := contentTypeFor(r.format)

	resourceID, err := r.catalog.CreateResource(ctx, group.CatalogID, group.Platform, r.languages)
	if err != nil {
		return "", 0, "", err
	}
	newKey := r.target.ObjectKey(group.CatalogID, resourceID, newName)
	log.Info("uploading",
		logging.String("key", newKey),
		logging.Int64("size", size))
	if err := r.target.Upload(ctx, storage.UploadRequest{
		LocalPath:   outPath,
		Key:         newKey,
		ContentType: contentType,
		GameID:      group.CatalogID,
		SHA256:      hash,
		Progress: func(written int64) {
			if r.progress != nil {
				r.progress("upload", newName, written, size)
			}
		},
	}); err != nil {
		return "", 0, "", err
	}
	if _, err := r.catalog.CreateResourceFile(ctx, resourceID, catalog.ResourceFile{
		Name:        newName,
		Size:        size,
		Hash:        hash,
		ContentType: contentType,
		Key:         newKey,
	}); err != nil {
		return "", 0, "", err
	}
	return newKey, size, hash, nil
}

// cleanup removes local intermediates to bound disk usage. Failures are
// logged, never fatal.
func (r *Runner) cleanup(outPath, extractDir string, paths map[string]string, log *slog.Logger) {
	targets := []string{outPath}
	for _, localPath := range paths {
		targets = append(targets, localPath)
	}
	for _, target := range targets {
		if err := fileutil.RemoveIfExists(target); err != nil {
			log.Warn("remove intermediate", logging.String("path", target), logging.Error(err))
		}
	}
	if err := os.RemoveAll(extractDir); err != nil {
		log.Warn("remove extraction directory", logging.String("path", extractDir), logging.Error(err))
	}
	// The per-group repack directory is empty now; leave it only on error.
	_ = os.Remove(filepath.Dir(outPath))
}

func (r *Runner) skipGroup(ctx context.Context, items []*store.FileItem, reason string, log *slog.Logger) (groupOutcome, error) {
	log.Warn("skipping group", logging.String("reason", reason))
	for _, item := range items {
		item.SetSkipped(reason)
		if err := r.store.UpdateItem(ctx, item); err != nil {
			return 0, err
		}
	}
	return outcomeSkipped, nil
}

// failGroup persists a failed status for every item that did not reach a
// terminal state, so the next run retries the group.
func (r *Runner) failGroup(ctx context.Context, group *store.FileGroup) {
	for _, item := range group.Items {
		if item.Status == store.StatusSkipped || item.Status == store.StatusCompleted {
			continue
		}
		item.Status = store.StatusFailed
		if err := r.store.UpdateItem(ctx, item); err != nil {
			r.logger.Error("persist failed status",
				logging.Int64("item", item.ID),
				logging.Error(err))
		}
	}
}

func (r *Runner) byteProgress(stage, name string) func(completed, total int64) {
	if r.progress == nil {
		return nil
	}
	return func(completed, total int64) {
		r.progress(stage, name, completed, total)
	}
}

func (r *Runner) percentProgress(stage, name string) func(sevenzip.ProgressUpdate) {
	if r.progress == nil {
		return nil
	}
	return func(update sevenzip.ProgressUpdate) {
		r.progress(stage, name, int64(update.Percent), 100)
	}
}

func activeItems(group *store.FileGroup) []*store.FileItem {
	var active []*store.FileItem
	for _, item := range group.Items {
		if item.Status != store.StatusSkipped {
			active = append(active, item)
		}
	}
	return active
}

func itemNames(items []*store.FileItem) []string {
	names := make([]string, len(items))
	for i, item := range items {
		names[i] = item.OriginalName
	}
	return names
}

// repackedName derives the output archive name from the primary volume: the
// canonical group name with its container extension swapped for the target
// format.
func repackedName(primary, format string) string {
	base := naming.GroupKey(primary)
	if ext := path.Ext(base); ext != "" {
		base = strings.TrimSuffix(base, ext)
	}
	return base + "." + format
}

func contentTypeFor(format string) string {
	if format == "zip" {
		return "application/zip"
	}
	return "application/x-7z-compressed"
}

func dirNonEmpty(dir string) (bool, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("inspect %s: %w", dir, err)
	}
	return len(entries) > 0, nil
}
