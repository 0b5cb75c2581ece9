// Package notion wraps the Notion REST API operations needed to mirror
// documents: page creation, content replacement, and block appends.
package notion

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"docbridge/internal/config"
	"docbridge/internal/logging"
	"docbridge/internal/services"
	"docbridge/internal/textutil"
)

const (
	defaultBaseURL     = "https://api.notion.com/v1"
	defaultVersion     = "2022-06-28"
	defaultHTTPTimeout = 30 * time.Second
	// The API rejects children arrays longer than this; larger documents are
	// appended in batches.
	maxBlocksPerRequest = 100
)

// Client talks to the Notion REST API with a fixed integration token.
type Client struct {
	token      string
	baseURL    string
	version    string
	httpClient *http.Client
	logger     *slog.Logger
}

// Option customizes the Notion client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithBaseURL overrides the default API base (useful for tests/mocks).
func WithBaseURL(base string) Option {
	return func(c *Client) {
		base = strings.TrimSpace(base)
		if base != "" {
			c.baseURL = strings.TrimRight(base, "/")
		}
	}
}

// NewClient constructs a Notion API client from configuration.
func NewClient(cfg config.Notion, logger *slog.Logger, opts ...Option) *Client {
	timeout := defaultHTTPTimeout
	if cfg.RequestTimeout > 0 {
		timeout = time.Duration(cfg.RequestTimeout) * time.Second
	}
	client := &Client{
		token:      strings.TrimSpace(cfg.Token),
		baseURL:    defaultBaseURL,
		version:    defaultVersion,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logging.NewComponentLogger(logger, "notion"),
	}
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		client.baseURL = strings.TrimRight(base, "/")
	}
	if version := strings.TrimSpace(cfg.Version); version != "" {
		client.version = version
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

func (c *Client) doJSON(ctx context.Context, method, path string, payload any) (json.RawMessage, error) {
	if c.token == "" {
		return nil, services.Wrap(services.ErrConfiguration, "notion", path, "integration token is required", nil)
	}
	var reqBody io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, services.Wrap(services.ErrTransient, "notion", path, "encode request", err)
		}
		reqBody = bytes.NewReader(encoded)
	}
	endpoint := c.baseURL + "/" + strings.TrimPrefix(path, "/")
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reqBody)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "notion", path, "build request", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Notion-Version", c.version)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "notion", path, "request failed", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "notion", path, "read response", err)
	}
	if marker := services.MarkerForStatus(resp.StatusCode); marker != nil {
		return nil, services.Wrap(marker, "notion", path, fmt.Sprintf("http %d: %s", resp.StatusCode, textutil.Snippet(string(body), 200)), nil)
	}
	return body, nil
}

// NormalizePageID rewrites a bare 32-character page id into the hyphenated
// UUID form the API expects. Already-hyphenated or unrecognized ids pass
// through unchanged.
func NormalizePageID(id string) string {
	id = strings.TrimSpace(id)
	if len(id) != 32 || strings.Contains(id, "-") {
		return id
	}
	return fmt.Sprintf("%s-%s-%s-%s-%s", id[:8], id[8:12], id[12:16], id[16:20], id[20:])
}

// splitParent resolves a configured parent id into the parent key the API
// expects. Pages and databases both use UUIDs, so database parents are
// flagged with a "db:" prefix in configuration.
func splitParent(parentID string) (key, id string) {
	if rest, ok := strings.CutPrefix(parentID, "db:"); ok {
		return "database_id", NormalizePageID(rest)
	}
	return "page_id", NormalizePageID(parentID)
}

type pageResponse struct {
	ID             string `json:"id"`
	LastEditedTime string `json:"last_edited_time"`
}

// CreatePage creates a page under the given parent with the document title
// and content blocks. Blocks beyond the per-request limit are appended in
// follow-up batches. Returns the new page id.
func (c *Client) CreatePage(ctx context.Context, parentID, title, category string, blocks []Block) (string, error) {
	parentKey, parent := splitParent(parentID)
	if parent == "" {
		return "", services.Wrap(services.ErrConfiguration, "notion", "create page", "parent id is required", nil)
	}

	properties := map[string]any{
		"title": map[string]any{
			"title": []map[string]any{
				{"text": map[string]any{"content": title}},
			},
		},
	}
	if parentKey == "database_id" {
		properties["status"] = map[string]any{"select": map[string]any{"name": "Published"}}
		if category != "" {
			properties["category"] = map[string]any{"select": map[string]any{"name": category}}
		}
	}

	head := blocks
	var tail []Block
	if len(blocks) > maxBlocksPerRequest {
		head = blocks[:maxBlocksPerRequest]
		tail = blocks[maxBlocksPerRequest:]
	}
	payload := map[string]any{
		"parent":     map[string]any{parentKey: parent},
		"properties": properties,
	}
	if len(head) > 0 {
		payload["children"] = head
	}

	raw, err := c.doJSON(ctx, http.MethodPost, "pages", payload)
	if err != nil {
		return "", err
	}
	var page pageResponse
	if err := json.Unmarshal(raw, &page); err != nil {
		return "", services.Wrap(services.ErrTransient, "notion", "create page", "decode page response", err)
	}
	if page.ID == "" {
		return "", services.Wrap(services.ErrTransient, "notion", "create page", "response missing page id", nil)
	}

	if len(tail) > 0 {
		if err := c.AppendBlocks(ctx, page.ID, tail); err != nil {
			return page.ID, err
		}
	}
	c.logger.Debug("created page",
		logging.String(logging.FieldTargetID, page.ID),
		logging.Int("blocks", len(blocks)),
	)
	return page.ID, nil
}

// AppendBlocks appends content blocks to a page, batching to honor the
// per-request limit.
func (c *Client) AppendBlocks(ctx context.Context, pageID string, blocks []Block) error {
	pageID = NormalizePageID(pageID)
	for len(blocks) > 0 {
		batch := blocks
		if len(batch) > maxBlocksPerRequest {
			batch = batch[:maxBlocksPerRequest]
		}
		blocks = blocks[len(batch):]
		if _, err := c.doJSON(ctx, http.MethodPatch, "blocks/"+pageID+"/children", map[string]any{"children": batch}); err != nil {
			return err
		}
	}
	return nil
}

type childBlock struct {
	ID   string `json:"id"`
	Type string `json:"type"`
}

type childrenResponse struct {
	Results    []childBlock `json:"results"`
	NextCursor string       `json:"next_cursor"`
	HasMore    bool         `json:"has_more"`
}

// ReplaceContent rewrites a page: the title property is updated, existing
// content blocks are removed, and the new blocks are appended.
func (c *Client) ReplaceContent(ctx context.Context, pageID, title string, blocks []Block) error {
	pageID = NormalizePageID(pageID)

	properties := map[string]any{
		"title": map[string]any{
			"title": []map[string]any{
				{"text": map[string]any{"content": title}},
			},
		},
	}
	if _, err := c.doJSON(ctx, http.MethodPatch, "pages/"+pageID, map[string]any{"properties": properties}); err != nil {
		return err
	}

	cursor := ""
	var existing []childBlock
	for {
		path := "blocks/" + pageID + "/children?page_size=100"
		if cursor != "" {
			path += "&start_cursor=" + cursor
		}
		raw, err := c.doJSON(ctx, http.MethodGet, path, nil)
		if err != nil {
			return err
		}
		var children childrenResponse
		if err := json.Unmarshal(raw, &children); err != nil {
			return services.Wrap(services.ErrTransient, "notion", "replace content", "decode children", err)
		}
		existing = append(existing, children.Results...)
		if !children.HasMore || children.NextCursor == "" {
			break
		}
		cursor = children.NextCursor
	}
	for _, child := range existing {
		if _, err := c.doJSON(ctx, http.MethodDelete, "blocks/"+child.ID, nil); err != nil {
			return err
		}
	}

	if err := c.AppendBlocks(ctx, pageID, blocks); err != nil {
		return err
	}
	c.logger.Debug("replaced page content",
		logging.String(logging.FieldTargetID, pageID),
		logging.Int("removed", len(existing)),
		logging.Int("blocks", len(blocks)),
	)
	return nil
}

// PageLastEdited returns the page's last edit time, used by the conflict
// heuristic to decide whether the target diverged since the previous sync.
func (c *Client) PageLastEdited(ctx context.Context, pageID string) (time.Time, error) {
	raw, err := c.doJSON(ctx, http.MethodGet, "pages/"+NormalizePageID(pageID), nil)
	if err != nil {
		return time.Time{}, err
	}
	var page pageResponse
	if err := json.Unmarshal(raw, &page); err != nil {
		return time.Time{}, services.Wrap(services.ErrTransient, "notion", "page info", "decode page response", err)
	}
	edited, err := time.Parse(time.RFC3339, page.LastEditedTime)
	if err != nil {
		return time.Time{}, services.Wrap(services.ErrTransient, "notion", "page info", "parse last_edited_time", err)
	}
	return edited, nil
}
