package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"reshelve/internal/matcher"
	"reshelve/internal/services"
	"reshelve/internal/store"
)

// Entry is one catalog game record as returned by the migration listing.
type Entry struct {
	ID      int64    `json:"id"`
	Title   string   `json:"title"`
	Aliases []string `json:"aliases"`
}

// MatcherEntries converts catalog records into the matcher's input shape.
func MatcherEntries(entries []Entry) []matcher.Entry {
	out := make([]matcher.Entry, len(entries))
	for i, entry := range entries {
		out[i] = matcher.Entry{
			ID:      entry.ID,
			Titles:  []string{entry.Title},
			Aliases: entry.Aliases,
		}
	}
	return out
}

// ResourceFile is the metadata registered for one uploaded object.
type ResourceFile struct {
	Name        string `json:"name"`
	Size        int64  `json:"size"`
	Hash        string `json:"hash"`
	ContentType string `json:"content_type"`
	Key         string `json:"key"`
}

// Service defines the catalog operations the pipeline depends on.
type Service interface {
	ListEntries(ctx context.Context) ([]Entry, error)
	CreateResource(ctx context.Context, gameID int64, platform store.Platform, languages []string) (int64, error)
	CreateResourceFile(ctx context.Context, resourceID int64, file ResourceFile) (int64, error)
}

// HTTPDoer describes the HTTP client used by the catalog service.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client talks to the catalog HTTP API with bearer authentication.
type Client struct {
	baseURL string
	token   string
	client  HTTPDoer
}

// Option configures the client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client, primarily for tests.
func WithHTTPClient(doer HTTPDoer) Option {
	return func(c *Client) {
		if doer != nil {
			c.client = doer
		}
	}
}

// New constructs a catalog client.
func New(baseURL, token string, opts ...Option) *Client {
	client := &Client{
		baseURL: baseURL,
		token:   token,
		client:  http.DefaultClient,
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// envelope is the API's uniform response wrapper. A zero code means success.
type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (c *Client) do(ctx context.Context, method, path string, body any, result any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return services.Wrap(services.ErrAPI, "catalog", path, "encode request", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return services.Wrap(services.ErrAPI, "catalog", path, "build request", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return services.Wrap(services.ErrAPI, "catalog", path, "request", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return services.Wrap(services.ErrAPI, "catalog", path, "read response", err)
	}
	if resp.StatusCode != http.StatusOK {
		return services.Wrap(services.ErrAPI, "catalog", path,
			fmt.Sprintf("status %d", resp.StatusCode), nil)
	}

	var wrapped envelope
	if err := json.Unmarshal(raw, &wrapped); err != nil {
		return services.Wrap(services.ErrAPI, "catalog", path, "decode response", err)
	}
	if wrapped.Code != 0 {
		return services.Wrap(services.ErrAPI, "catalog", path,
			fmt.Sprintf("api error %d: %s", wrapped.Code, wrapped.Message), nil)
	}
	if result == nil {
		return nil
	}
	if err := json.Unmarshal(wrapped.Data, result); err != nil {
		return services.Wrap(services.ErrAPI, "catalog", path, "decode data", err)
	}
	return nil
}

// ListEntries fetches every catalog entry eligible for migration.
func (c *Client) ListEntries(ctx context.Context) ([]Entry, error) {
	var entries []Entry
	if err := c.do(ctx, http.MethodGet, "/api/game/migrate/all", nil, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// platformTags maps the migration platform to the catalog's tag vocabulary.
func platformTags(platform store.Platform) []string {
	if platform == store.PlatformPE {
		return []string{"and"}
	}
	return []string{"win"}
}

// CreateResource registers a download resource for a game and returns its id.
func (c *Client) CreateResource(ctx context.Context, gameID int64, platform store.Platform, languages []string) (int64, error) {
	body := map[string]any{
		"platform": platformTags(platform),
		"language": languages,
	}
	var result struct {
		ID int64 `json:"id"`
	}
	path := fmt.Sprintf("/api/migrate/game-download-resource/%d", gameID)
	if err := c.do(ctx, http.MethodPost, path, body, &result); err != nil {
		return 0, err
	}
	return result.ID, nil
}

// CreateResourceFile attaches one uploaded file's metadata to a resource.
func (c *Client) CreateResourceFile(ctx context.Context, resourceID int64, file ResourceFile) (int64, error) {
	var result struct {
		ID int64 `json:"id"`
	}
	path := fmt.Sprintf("/api/migrate/game-download-resource/file/%d", resourceID)
	if err := c.do(ctx, http.MethodPost, path, file, &result); err != nil {
		return 0, err
	}
	return result.ID, nil
}
