package aria2

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"reshelve/internal/logging"
	"reshelve/internal/services"
)

// ErrRateLimited reports an HTTP 429 from the RPC endpoint. Callers are
// expected to back off and retry rather than fail the transfer.
var ErrRateLimited = errors.New("aria2 rpc rate limited")

// HTTPDoer describes the HTTP client used for RPC calls.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client talks JSON-RPC to a running aria2 daemon.
type Client struct {
	endpoint string
	secret   string
	client   HTTPDoer
	logger   *slog.Logger
}

// Option customizes client construction.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client, primarily for tests.
func WithHTTPClient(doer HTTPDoer) Option {
	return func(c *Client) {
		if doer != nil {
			c.client = doer
		}
	}
}

// WithLogger attaches a logger for RPC-level debug output.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logging.NewComponentLogger(logger, "aria2")
		}
	}
}

// New constructs a client for the given RPC endpoint. The secret may be
// empty when the daemon runs without one.
func New(endpoint, secret string, opts ...Option) *Client {
	client := &Client{
		endpoint: endpoint,
		secret:   secret,
		client:   http.DefaultClient,
		logger:   logging.NewNop(),
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      string `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

// call performs one JSON-RPC round trip, prepending the secret token to the
// parameter list when configured.
func (c *Client) call(ctx context.Context, method string, params []any, result any) error {
	if c.secret != "" {
		params = append([]any{"token:" + c.secret}, params...)
	}
	if params == nil {
		params = []any{}
	}
	payload, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      uuid.NewString(),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return services.Wrap(services.ErrDaemon, "aria2", method, "encode request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return services.Wrap(services.ErrDaemon, "aria2", method, "build request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return services.Wrap(services.ErrDaemon, "aria2", method, "rpc call", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return fmt.Errorf("%w: %s", ErrRateLimited, method)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return services.Wrap(services.ErrDaemon, "aria2", method, "read response", err)
	}
	if resp.StatusCode != http.StatusOK {
		return services.Wrap(services.ErrDaemon, "aria2", method,
			fmt.Sprintf("rpc returned %d", resp.StatusCode), nil)
	}

	var decoded rpcResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return services.Wrap(services.ErrDaemon, "aria2", method, "decode response", err)
	}
	if decoded.Error != nil {
		return services.Wrap(services.ErrDaemon, "aria2", method,
			fmt.Sprintf("rpc error %d: %s", decoded.Error.Code, decoded.Error.Message), nil)
	}
	if result == nil {
		return nil
	}
	if err := json.Unmarshal(decoded.Result, result); err != nil {
		return services.Wrap(services.ErrDaemon, "aria2", method, "decode result", err)
	}
	return nil
}

// DownloadOptions carries per-download tuning forwarded to aria2 verbatim.
type DownloadOptions struct {
	Dir                     string
	Out                     string
	Split                   int
	MaxConnectionsPerServer int
	MinSplitSize            string
	RetryWaitSeconds        int
	MaxTries                int
}

func (o DownloadOptions) toMap() map[string]string {
	opts := map[string]string{
		"continue":           "true",
		"auto-file-renaming": "false",
		"allow-overwrite":    "true",
	}
	if o.Dir != "" {
		opts["dir"] = o.Dir
	}
	if o.Out != "" {
		opts["out"] = o.Out
	}
	if o.Split > 0 {
		opts["split"] = strconv.Itoa(o.Split)
	}
	if o.MaxConnectionsPerServer > 0 {
		opts["max-connection-per-server"] = strconv.Itoa(o.MaxConnectionsPerServer)
	}
	if o.MinSplitSize != "" {
		opts["min-split-size"] = o.MinSplitSize
	}
	if o.RetryWaitSeconds > 0 {
		opts["retry-wait"] = strconv.Itoa(o.RetryWaitSeconds)
	}
	if o.MaxTries > 0 {
		opts["max-tries"] = strconv.Itoa(o.MaxTries)
	}
	return opts
}

// AddURI enqueues a download for the given mirror URIs and returns its GID.
func (c *Client) AddURI(ctx context.Context, uris []string, opts DownloadOptions) (string, error) {
	var gid string
	if err := c.call(ctx, "aria2.addUri", []any{uris, opts.toMap()}, &gid); err != nil {
		return "", err
	}
	c.logger.Debug("download queued", logging.String("gid", gid))
	return gid, nil
}

// TellStatus fetches the status of one download.
func (c *Client) TellStatus(ctx context.Context, gid string) (Status, error) {
	var raw rawStatus
	if err := c.call(ctx, "aria2.tellStatus", []any{gid}, &raw); err != nil {
		return Status{}, err
	}
	return raw.toStatus(), nil
}

// TellActive lists downloads currently transferring.
func (c *Client) TellActive(ctx context.Context) ([]Status, error) {
	var raw []rawStatus
	if err := c.call(ctx, "aria2.tellActive", nil, &raw); err != nil {
		return nil, err
	}
	return toStatuses(raw), nil
}

// TellWaiting lists queued downloads in the given window.
func (c *Client) TellWaiting(ctx context.Context, offset, count int) ([]Status, error) {
	var raw []rawStatus
	if err := c.call(ctx, "aria2.tellWaiting", []any{offset, count}, &raw); err != nil {
		return nil, err
	}
	return toStatuses(raw), nil
}

// ForcePause pauses a download without waiting for in-flight pieces.
func (c *Client) ForcePause(ctx context.Context, gid string) error {
	return c.call(ctx, "aria2.forcePause", []any{gid}, nil)
}

// Unpause resumes a paused download.
func (c *Client) Unpause(ctx context.Context, gid string) error {
	return c.call(ctx, "aria2.unpause", []any{gid}, nil)
}

// ForceRemove drops a download immediately.
func (c *Client) ForceRemove(ctx context.Context, gid string) error {
	return c.call(ctx, "aria2.forceRemove", []any{gid}, nil)
}

// RemoveDownloadResult clears a finished or removed download from the
// daemon's result list.
func (c *Client) RemoveDownloadResult(ctx context.Context, gid string) error {
	return c.call(ctx, "aria2.removeDownloadResult", []any{gid}, nil)
}

// GetGlobalStat fetches daemon-wide transfer counters.
func (c *Client) GetGlobalStat(ctx context.Context) (GlobalStat, error) {
	var raw rawGlobalStat
	if err := c.call(ctx, "aria2.getGlobalStat", nil, &raw); err != nil {
		return GlobalStat{}, err
	}
	return raw.toGlobalStat(), nil
}

// GetVersion returns the daemon version string, doubling as a liveness probe.
func (c *Client) GetVersion(ctx context.Context) (string, error) {
	var result struct {
		Version string `json:"version"`
	}
	if err := c.call(ctx, "aria2.getVersion", nil, &result); err != nil {
		return "", err
	}
	return result.Version, nil
}

// GetFiles lists the files of a download.
func (c *Client) GetFiles(ctx context.Context, gid string) ([]File, error) {
	var raw []rawFile
	if err := c.call(ctx, "aria2.getFiles", []any{gid}, &raw); err != nil {
		return nil, err
	}
	files := make([]File, len(raw))
	for i, f := range raw {
		files[i] = f.toFile()
	}
	return files, nil
}

// GetServers lists the mirror connections of an active download. Used only
// for stall diagnostics.
func (c *Client) GetServers(ctx context.Context, gid string) (json.RawMessage, error) {
	var raw json.RawMessage
	if err := c.call(ctx, "aria2.getServers", []any{gid}, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}
