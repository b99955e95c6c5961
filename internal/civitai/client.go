// Package civitai is a small client for the CivitAI REST API: model and
// version lookup, search, token validation and download URL construction.
package civitai

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"civitdl/pkg/types"
)

// Defaults applied when corresponding Config fields are unset.
const (
	DefaultBaseURL     = "https://civitai.com"
	DefaultUserAgent   = "civitdl/1.0 (+https://github.com/civitdl/civitdl)"
	DefaultSearchLimit = 10
	defaultTimeout     = 30 * time.Second
	maxResponseBytes   = 32 << 20
)

// Config configures a Client. The token is optional; when empty requests are
// sent anonymously.
type Config struct {
	BaseURL    string
	Token      string
	UserAgent  string
	HTTPClient *http.Client
	Logger     *zerolog.Logger
}

// Client issues metadata requests against the API.
type Client struct {
	base      string
	token     string
	userAgent string
	http      *http.Client
	log       zerolog.Logger
}

// New constructs a Client from cfg, applying defaults.
func New(cfg Config) *Client {
	c := &Client{
		base:      strings.TrimRight(cfg.BaseURL, "/"),
		token:     cfg.Token,
		userAgent: cfg.UserAgent,
		http:      cfg.HTTPClient,
		log:       zerolog.Nop(),
	}
	if c.base == "" {
		c.base = DefaultBaseURL
	}
	if c.userAgent == "" {
		c.userAgent = DefaultUserAgent
	}
	if c.http == nil {
		c.http = &http.Client{Timeout: defaultTimeout}
	}
	if cfg.Logger != nil {
		c.log = *cfg.Logger
	}
	return c
}

// BaseURL returns the API root without a trailing slash.
func (c *Client) BaseURL() string { return c.base }

// FetchModel returns the model with its versions sorted newest first.
func (c *Client) FetchModel(ctx context.Context, id string) (types.Model, error) {
	var m types.Model
	if err := c.getJSON(ctx, "fetch model "+id, "/api/v1/models/"+url.PathEscape(id), nil, c.token, &m); err != nil {
		return types.Model{}, err
	}
	m.SortVersions()
	return m, nil
}

// FetchVersion returns a single model version by id.
func (c *Client) FetchVersion(ctx context.Context, id string) (types.Version, error) {
	var v types.Version
	if err := c.getJSON(ctx, "fetch version "+id, "/api/v1/model-versions/"+url.PathEscape(id), nil, c.token, &v); err != nil {
		return types.Version{}, err
	}
	return v, nil
}

// Search runs a free-text model search. A limit <= 0 uses DefaultSearchLimit.
// Each result has its versions sorted newest first.
func (c *Client) Search(ctx context.Context, query string, limit int) ([]types.Model, error) {
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	q := url.Values{}
	q.Set("query", query)
	q.Set("limit", strconv.Itoa(limit))
	var resp types.SearchResponse
	if err := c.getJSON(ctx, "search "+strconv.Quote(query), "/api/v1/models", q, c.token, &resp); err != nil {
		return nil, err
	}
	for i := range resp.Items {
		resp.Items[i].SortVersions()
	}
	return resp.Items, nil
}

// ValidateToken checks token with a minimal authenticated request.
func (c *Client) ValidateToken(ctx context.Context, token string) error {
	if token == "" {
		return &FetchError{Op: "validate token", Err: errEmptyToken}
	}
	q := url.Values{}
	q.Set("limit", "1")
	return c.getJSON(ctx, "validate token", "/api/v1/models", q, token, nil)
}

// DownloadURL builds the download endpoint for a version and optional file.
func (c *Client) DownloadURL(versionID, fileID int64) string {
	u := c.base + "/api/download/models/" + strconv.FormatInt(versionID, 10)
	if fileID > 0 {
		u += "?fileId=" + strconv.FormatInt(fileID, 10)
	}
	return u
}

func (c *Client) getJSON(ctx context.Context, op, path string, query url.Values, token string, out any) error {
	u := c.base + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return &FetchError{Op: op, URL: u, Err: err}
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return &FetchError{Op: op, URL: u, Err: err}
	}
	defer resp.Body.Close()
	c.log.Debug().Str("op", op).Int("status", resp.StatusCode).Dur("took", time.Since(start)).Msg("api request")

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return &FetchError{Op: op, URL: u, StatusCode: resp.StatusCode, Message: ServerMessage(body)}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
		return nil
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(out); err != nil {
		return &FetchError{Op: op, URL: u, StatusCode: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

// ServerMessage extracts a human readable message from an error body. JSON
// bodies with an "error" or "message" field are unwrapped; anything else is
// returned trimmed.
func ServerMessage(body []byte) string {
	var payload struct {
		Error   any    `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		if s, ok := payload.Error.(string); ok && s != "" {
			return s
		}
		if payload.Message != "" {
			return payload.Message
		}
	}
	return strings.TrimSpace(string(body))
}
