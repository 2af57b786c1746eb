package download

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"reshelve/internal/fileutil"
	"reshelve/internal/logging"
	"reshelve/internal/services"
	"reshelve/internal/services/aria2"
)

// controlFileSuffix is aria2's partial-download marker. Its presence means
// the payload file on disk is incomplete regardless of its size.
const controlFileSuffix = ".aria2"

const (
	softRecoveryLimit = 2
	softRecoveryPause = 300 * time.Millisecond
	rateLimitWait     = 60 * time.Second
)

// aria2NotFoundCode is the daemon's error code for a resource that does not
// exist on any supplied URI.
const aria2NotFoundCode = "3"

// RPC is the slice of the aria2 client the manager drives.
type RPC interface {
	AddURI(ctx context.Context, uris []string, opts aria2.DownloadOptions) (string, error)
	TellStatus(ctx context.Context, gid string) (aria2.Status, error)
	TellActive(ctx context.Context) ([]aria2.Status, error)
	TellWaiting(ctx context.Context, offset, count int) ([]aria2.Status, error)
	ForcePause(ctx context.Context, gid string) error
	Unpause(ctx context.Context, gid string) error
	ForceRemove(ctx context.Context, gid string) error
	RemoveDownloadResult(ctx context.Context, gid string) error
	GetGlobalStat(ctx context.Context) (aria2.GlobalStat, error)
	GetVersion(ctx context.Context) (string, error)
	GetFiles(ctx context.Context, gid string) ([]aria2.File, error)
	GetServers(ctx context.Context, gid string) (json.RawMessage, error)
}

// Settings tunes the manager. Zero durations are honored as-is so tests can
// run tight loops; production values come from configuration.
type Settings struct {
	WorkDir                 string
	Mirrors                 []string
	Split                   int
	MaxConnectionsPerServer int
	MinSplitSize            string
	MaxTries                int
	RetryWaitSeconds        int
	PollInterval            time.Duration
	StallTimeout            time.Duration
	Retries                 int
	RetryBackoff            time.Duration
}

// Request names one object to fetch. ExpectedSize of zero defers the exact
// size comparison to the daemon-reported total; the completed file must exist
// and be non-empty either way.
type Request struct {
	Key          string
	FileName     string
	ExpectedSize int64
	Progress     func(completed, total int64)
}

// Manager downloads source objects through the aria2 daemon, surviving
// stalls, daemon restarts, and partial files left by earlier runs.
type Manager struct {
	rpc      RPC
	settings Settings
	logger   *slog.Logger
	sleep    func(context.Context, time.Duration) error
}

// Option customizes manager construction.
type Option func(*Manager)

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logging.NewComponentLogger(logger, "download")
		}
	}
}

// WithSleeper overrides the wait primitive (tests only).
func WithSleeper(sleep func(context.Context, time.Duration) error) Option {
	return func(m *Manager) {
		if sleep != nil {
			m.sleep = sleep
		}
	}
}

// NewManager constructs a download manager.
func NewManager(rpc RPC, settings Settings, opts ...Option) *Manager {
	manager := &Manager{
		rpc:      rpc,
		settings: settings,
		logger:   logging.NewNop(),
		sleep:    sleepContext,
	}
	for _, opt := range opts {
		opt(manager)
	}
	return manager
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// mirrorURIs builds one URI per configured mirror, escaping each key path
// segment individually so slashes survive.
func (m *Manager) mirrorURIs(key string) []string {
	segments := strings.Split(key, "/")
	escaped := make([]string, len(segments))
	for i, segment := range segments {
		escaped[i] = url.PathEscape(segment)
	}
	suffix := strings.Join(escaped, "/")
	uris := make([]string, 0, len(m.settings.Mirrors))
	for _, mirror := range m.settings.Mirrors {
		if mirror == "" {
			continue
		}
		uris = append(uris, mirror+"/"+suffix)
	}
	return uris
}

// Download fetches one object into the work directory and returns the local
// path. Deterministic failures (ErrPreflight) return immediately; transient
// ones are retried with exponential backoff up to the configured attempts.
func (m *Manager) Download(ctx context.Context, req Request) (string, error) {
	destPath := filepath.Join(m.settings.WorkDir, req.FileName)
	controlPath := destPath + controlFileSuffix
	log := logging.WithContext(ctx, m.logger)

	// A complete file without its control-file marker survived a previous
	// run; trust it after the size check.
	if fileutil.Exists(destPath) && !fileutil.Exists(controlPath) {
		if req.ExpectedSize <= 0 || fileutil.Size(destPath) == req.ExpectedSize {
			log.Info("reusing completed download",
				logging.String("file", req.FileName))
			return destPath, nil
		}
		if err := fileutil.RemoveIfExists(destPath); err != nil {
			return "", fmt.Errorf("discard mismatched file: %w", err)
		}
	}

	// A control file whose payload is gone cannot be resumed; drop it so the
	// daemon starts the transfer clean.
	if !fileutil.Exists(destPath) && fileutil.Exists(controlPath) {
		log.Info("removing orphaned control file", logging.String("file", req.FileName))
		if err := fileutil.RemoveIfExists(controlPath); err != nil {
			return "", fmt.Errorf("remove orphaned control file: %w", err)
		}
	}

	uris := m.mirrorURIs(req.Key)
	if len(uris) == 0 {
		return "", services.Wrap(services.ErrConfiguration, "download", "mirrors", "no mirror bases configured", nil)
	}

	attempts := m.settings.Retries
	if attempts <= 0 {
		attempts = 1
	}
	backoff := m.settings.RetryBackoff
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		path, err := m.downloadOnce(ctx, req, destPath, uris)
		if err == nil {
			return path, nil
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if !services.IsRetryable(err) {
			return "", err
		}
		lastErr = err
		log.Warn("download attempt failed",
			logging.String("file", req.FileName),
			logging.Int("attempt", attempt),
			logging.Error(err))
		if attempt == attempts {
			break
		}
		if err := m.sleep(ctx, backoff); err != nil {
			return "", err
		}
		backoff *= 2
	}
	return "", fmt.Errorf("download %s: %d attempts exhausted: %w", req.FileName, attempts, lastErr)
}

func (m *Manager) downloadOnce(ctx context.Context, req Request, destPath string, uris []string) (string, error) {
	gid, err := m.acquireGID(ctx, req, destPath, uris)
	if err != nil {
		return "", err
	}

	status, err := m.poll(ctx, gid, req)
	if err != nil {
		m.forceStopAndCleanup(ctx, gid, destPath)
		return "", err
	}

	switch status.State {
	case aria2.StateComplete:
		_ = m.rpc.RemoveDownloadResult(ctx, gid)
		actual := fileutil.Size(destPath)
		if actual <= 0 {
			m.forceStopAndCleanup(ctx, gid, destPath)
			return "", services.Wrap(services.ErrIntegrity, "download", req.FileName,
				"daemon reported completion but no file arrived", nil)
		}
		expected := req.ExpectedSize
		if expected <= 0 {
			expected = status.TotalLength
		}
		if expected > 0 && actual != expected {
			m.forceStopAndCleanup(ctx, gid, destPath)
			return "", services.Wrap(services.ErrIntegrity, "download", req.FileName,
				fmt.Sprintf("size mismatch: expected %d, local %d", expected, actual), nil)
		}
		return destPath, nil
	case aria2.StateError:
		m.dumpDiagnostics(ctx, gid, status)
		m.forceStopAndCleanup(ctx, gid, destPath)
		if status.ErrorCode == aria2NotFoundCode {
			return "", services.Wrap(services.ErrPreflight, "download", req.FileName,
				"not found on any mirror", nil)
		}
		return "", services.Wrap(services.ErrDaemon, "download", req.FileName,
			fmt.Sprintf("daemon error %s: %s", status.ErrorCode, status.ErrorMessage), nil)
	default:
		m.forceStopAndCleanup(ctx, gid, destPath)
		return "", services.Wrap(services.ErrDaemon, "download", req.FileName,
			fmt.Sprintf("unexpected terminal state %q", status.State), nil)
	}
}

// acquireGID adopts an existing daemon task for the destination file when one
// survives from a previous run, otherwise queues a fresh download. HTTP 429
// from the RPC endpoint waits out the rate limit and tries again.
func (m *Manager) acquireGID(ctx context.Context, req Request, destPath string, uris []string) (string, error) {
	log := logging.WithContext(ctx, m.logger)
	if gid := m.findExistingTask(ctx, destPath); gid != "" {
		log.Info("adopting existing download task",
			logging.String("file", req.FileName),
			logging.String("gid", gid))
		return gid, nil
	}
	opts := aria2.DownloadOptions{
		Dir:                     m.settings.WorkDir,
		Out:                     req.FileName,
		Split:                   m.settings.Split,
		MaxConnectionsPerServer: m.settings.MaxConnectionsPerServer,
		MinSplitSize:            m.settings.MinSplitSize,
		RetryWaitSeconds:        m.settings.RetryWaitSeconds,
		MaxTries:                m.settings.MaxTries,
	}
	for {
		gid, err := m.rpc.AddURI(ctx, uris, opts)
		if err == nil {
			return gid, nil
		}
		if !errors.Is(err, aria2.ErrRateLimited) {
			return "", err
		}
		log.Warn("daemon rate limited, waiting", logging.Duration("wait", rateLimitWait))
		if err := m.sleep(ctx, rateLimitWait); err != nil {
			return "", err
		}
	}
}

func (m *Manager) findExistingTask(ctx context.Context, destPath string) string {
	var candidates []aria2.Status
	if active, err := m.rpc.TellActive(ctx); err == nil {
		candidates = append(candidates, active...)
	}
	if waiting, err := m.rpc.TellWaiting(ctx, 0, 1000); err == nil {
		candidates = append(candidates, waiting...)
	}
	for _, status := range candidates {
		for _, file := range status.Files {
			if file.Path == destPath {
				return status.GID
			}
		}
	}
	return ""
}

// poll watches a download until it reaches a terminal state, nudging stalled
// transfers with pause/unpause before giving up on them.
func (m *Manager) poll(ctx context.Context, gid string, req Request) (aria2.Status, error) {
	lastCompleted := int64(-1)
	lastProgress := time.Now()
	recoveries := 0

	for {
		if err := m.sleep(ctx, m.settings.PollInterval); err != nil {
			return aria2.Status{}, err
		}
		status, err := m.rpc.TellStatus(ctx, gid)
		if err != nil {
			if errors.Is(err, aria2.ErrRateLimited) {
				if err := m.sleep(ctx, rateLimitWait); err != nil {
					return aria2.Status{}, err
				}
				continue
			}
			return aria2.Status{}, err
		}
		if status.Terminal() {
			return status, nil
		}
		if req.Progress != nil {
			req.Progress(status.CompletedLength, status.TotalLength)
		}

		if status.CompletedLength != lastCompleted {
			lastCompleted = status.CompletedLength
			lastProgress = time.Now()
			continue
		}
		if time.Since(lastProgress) < m.settings.StallTimeout {
			continue
		}
		if recoveries < softRecoveryLimit {
			recoveries++
			logging.WithContext(ctx, m.logger).Warn("download stalled, nudging transfer",
				logging.String("gid", gid),
				logging.Int("recovery", recoveries))
			_ = m.rpc.ForcePause(ctx, gid)
			if err := m.sleep(ctx, softRecoveryPause); err != nil {
				return aria2.Status{}, err
			}
			_ = m.rpc.Unpause(ctx, gid)
			lastProgress = time.Now()
			continue
		}
		m.dumpDiagnostics(ctx, gid, status)
		return aria2.Status{}, services.Wrap(services.ErrStalled, "download", req.FileName,
			fmt.Sprintf("no progress for %s after %d recoveries", m.settings.StallTimeout, recoveries), nil)
	}
}

// dumpDiagnostics logs daemon and filesystem state when a transfer is
// declared dead, so post-mortems do not depend on reproducing the failure.
func (m *Manager) dumpDiagnostics(ctx context.Context, gid string, status aria2.Status) {
	attrs := []logging.Attr{
		logging.String("gid", gid),
		logging.Int64("completed", status.CompletedLength),
		logging.Int64("total", status.TotalLength),
		logging.Int64("speed", status.DownloadSpeed),
	}
	if status.ErrorCode != "" {
		attrs = append(attrs,
			logging.String("error_code", status.ErrorCode),
			logging.String("error_message", status.ErrorMessage))
	}
	if version, err := m.rpc.GetVersion(ctx); err == nil {
		attrs = append(attrs, logging.String("daemon_version", version))
	}
	if stat, err := m.rpc.GetGlobalStat(ctx); err == nil {
		attrs = append(attrs,
			logging.Int("daemon_active", stat.NumActive),
			logging.Int("daemon_waiting", stat.NumWaiting),
			logging.Int64("daemon_speed", stat.DownloadSpeed))
	}
	if files, err := m.rpc.GetFiles(ctx, gid); err == nil && len(files) > 0 {
		attrs = append(attrs,
			logging.String("file_path", files[0].Path),
			logging.Int64("file_completed", files[0].CompletedLength),
			logging.Int64("file_length", files[0].Length))
	}
	if servers, err := m.rpc.GetServers(ctx, gid); err == nil && len(servers) > 0 {
		attrs = append(attrs, logging.String("servers", string(servers)))
	}
	var fs unix.Statfs_t
	if err := unix.Statfs(m.settings.WorkDir, &fs); err == nil {
		attrs = append(attrs,
			logging.Uint64("fs_free_bytes", fs.Bavail*uint64(fs.Bsize)))
	}
	logging.WithContext(ctx, m.logger).Error("transfer failed, daemon state follows", logging.Args(attrs...)...)
}

// forceStopAndCleanup tears the daemon task down and removes partial files
// so the next attempt starts from a clean slate.
func (m *Manager) forceStopAndCleanup(ctx context.Context, gid, destPath string) {
	_ = m.rpc.ForceRemove(ctx, gid)
	_ = m.rpc.RemoveDownloadResult(ctx, gid)
	_ = fileutil.RemoveIfExists(destPath)
	_ = fileutil.RemoveIfExists(destPath + controlFileSuffix)
}
