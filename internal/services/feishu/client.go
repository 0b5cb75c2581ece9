// Package feishu wraps the subset of the Feishu Open API used for document
// sync: tenant token management, docx block retrieval, and drive asset
// download.
package feishu

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"docbridge/internal/config"
	"docbridge/internal/document"
	"docbridge/internal/logging"
	"docbridge/internal/services"
	"docbridge/internal/textutil"
)

const (
	defaultBaseURL     = "https://open.feishu.cn/open-apis"
	defaultHTTPTimeout = 30 * time.Second
	// Tokens live two hours; refresh ten minutes early so in-flight syncs
	// never straddle an expiry.
	tokenRefreshMargin = 10 * time.Minute
	blocksPageSize     = 500
)

// Client talks to the Feishu Open API on behalf of one app.
type Client struct {
	appID      string
	appSecret  string
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger

	mu           sync.Mutex
	token        string
	tokenExpires time.Time
}

// Option customizes the Feishu client.
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

// NewClient constructs a Feishu API client from configuration.
func NewClient(cfg config.Feishu, logger *slog.Logger, opts ...Option) *Client {
	timeout := defaultHTTPTimeout
	if cfg.RequestTimeout > 0 {
		timeout = time.Duration(cfg.RequestTimeout) * time.Second
	}
	client := &Client{
		appID:      strings.TrimSpace(cfg.AppID),
		appSecret:  strings.TrimSpace(cfg.AppSecret),
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logging.NewComponentLogger(logger, "feishu"),
	}
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		client.baseURL = strings.TrimRight(base, "/")
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

type apiEnvelope struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

type tokenResponse struct {
	Code           int    `json:"code"`
	Msg            string `json:"msg"`
	AppAccessToken string `json:"app_access_token"`
	Expire         int    `json:"expire"`
}

func (c *Client) accessToken(ctx context.Context) (string, error) {
	if c.appID == "" || c.appSecret == "" {
		return "", services.Wrap(services.ErrConfiguration, "feishu", "token", "app_id and app_secret are required", nil)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token != "" && time.Now().Before(c.tokenExpires) {
		return c.token, nil
	}

	payload, err := json.Marshal(map[string]string{
		"app_id":     c.appID,
		"app_secret": c.appSecret,
	})
	if err != nil {
		return "", services.Wrap(services.ErrTransient, "feishu", "token", "encode token request", err)
	}
	endpoint := c.baseURL + "/auth/v3/app_access_token/internal"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", services.Wrap(services.ErrTransient, "feishu", "token", "build token request", err)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", services.Wrap(services.ErrTransient, "feishu", "token", "token request failed", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", services.Wrap(services.ErrTransient, "feishu", "token", "read token response", err)
	}
	if marker := services.MarkerForStatus(resp.StatusCode); marker != nil {
		return "", services.Wrap(marker, "feishu", "token", fmt.Sprintf("http %d", resp.StatusCode), nil)
	}

	var parsed tokenResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", services.Wrap(services.ErrTransient, "feishu", "token", "decode token response", err)
	}
	if parsed.Code != 0 || parsed.AppAccessToken == "" {
		return "", services.Wrap(services.ErrPermission, "feishu", "token", fmt.Sprintf("api code %d: %s", parsed.Code, parsed.Msg), nil)
	}

	c.token = parsed.AppAccessToken
	c.tokenExpires = time.Now().Add(time.Duration(parsed.Expire)*time.Second - tokenRefreshMargin)
	c.logger.Debug("obtained app access token", logging.Int("expire_seconds", parsed.Expire))
	return c.token, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, query url.Values, payload any) (json.RawMessage, error) {
	token, err := c.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	endpoint := c.baseURL + "/" + strings.TrimPrefix(path, "/")
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	var reqBody io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, services.Wrap(services.ErrTransient, "feishu", path, "encode request", err)
		}
		reqBody = bytes.NewReader(encoded)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reqBody)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "feishu", path, "build request", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json; charset=utf-8")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "feishu", path, "request failed", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "feishu", path, "read response", err)
	}
	if marker := services.MarkerForStatus(resp.StatusCode); marker != nil {
		return nil, services.Wrap(marker, "feishu", path, fmt.Sprintf("http %d: %s", resp.StatusCode, textutil.Snippet(string(body), 200)), nil)
	}

	var envelope apiEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, services.Wrap(services.ErrTransient, "feishu", path, "decode response", err)
	}
	if envelope.Code != 0 {
		marker := services.ErrValidation
		switch envelope.Code {
		case 99991663, 99991668:
			marker = services.ErrPermission
		case 1254005, 1254006:
			marker = services.ErrNotFound
		}
		return nil, services.Wrap(marker, "feishu", path, fmt.Sprintf("api code %d: %s", envelope.Code, envelope.Msg), nil)
	}
	return envelope.Data, nil
}

type documentInfo struct {
	Document struct {
		DocumentID string `json:"document_id"`
		RevisionID int64  `json:"revision_id"`
		Title      string `json:"title"`
	} `json:"document"`
}

type blocksPage struct {
	Items     []rawBlock `json:"items"`
	PageToken string     `json:"page_token"`
	HasMore   bool       `json:"has_more"`
}

// FetchDocument retrieves a docx document and converts it into the
// intermediate representation. Blocks are paged through until exhausted.
func (c *Client) FetchDocument(ctx context.Context, documentID string) (*document.Document, error) {
	documentID = strings.TrimSpace(documentID)
	if documentID == "" {
		return nil, services.Wrap(services.ErrValidation, "feishu", "fetch document", "document id is required", nil)
	}

	infoRaw, err := c.doJSON(ctx, http.MethodGet, "docx/v1/documents/"+documentID, nil, nil)
	if err != nil {
		return nil, err
	}
	var info documentInfo
	if err := json.Unmarshal(infoRaw, &info); err != nil {
		return nil, services.Wrap(services.ErrTransient, "feishu", "fetch document", "decode document info", err)
	}

	var blocks []rawBlock
	pageToken := ""
	for {
		query := url.Values{"page_size": {fmt.Sprint(blocksPageSize)}}
		if pageToken != "" {
			query.Set("page_token", pageToken)
		}
		pageRaw, err := c.doJSON(ctx, http.MethodGet, "docx/v1/documents/"+documentID+"/blocks", query, nil)
		if err != nil {
			return nil, err
		}
		var page blocksPage
		if err := json.Unmarshal(pageRaw, &page); err != nil {
			return nil, services.Wrap(services.ErrTransient, "feishu", "fetch document", "decode blocks page", err)
		}
		blocks = append(blocks, page.Items...)
		if !page.HasMore || page.PageToken == "" {
			break
		}
		pageToken = page.PageToken
	}

	doc := buildDocument(c, info.Document.Title, blocks)
	c.logger.Debug("fetched document",
		logging.String(logging.FieldSourceID, documentID),
		logging.Int("blocks", len(blocks)),
		logging.Int("nodes", len(doc.Nodes)),
	)
	return doc, nil
}

// AssetURL returns the authenticated download URL for a drive asset token.
func (c *Client) AssetURL(fileToken string) string {
	return c.baseURL + "/drive/v1/files/" + url.PathEscape(fileToken) + "/download"
}

// DownloadAsset fetches raw asset bytes from a drive download URL. The URL
// must point at this client's API host since the bearer token is attached.
func (c *Client) DownloadAsset(ctx context.Context, assetURL string) ([]byte, error) {
	token, err := c.accessToken(ctx)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, assetURL, nil)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "feishu", "download asset", "build request", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "feishu", "download asset", "request failed", err)
	}
	defer resp.Body.Close()
	if marker := services.MarkerForStatus(resp.StatusCode); marker != nil {
		return nil, services.Wrap(marker, "feishu", "download asset", fmt.Sprintf("http %d", resp.StatusCode), nil)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "feishu", "download asset", "read asset body", err)
	}
	return data, nil
}
