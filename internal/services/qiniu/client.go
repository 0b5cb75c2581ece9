// Package qiniu implements the storage side of media relocation: assets are
// uploaded by content-addressed key and served back through a CDN domain.
package qiniu

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"docbridge/internal/config"
	"docbridge/internal/logging"
	"docbridge/internal/services"
	"docbridge/internal/textutil"
)

const (
	defaultUploadURL   = "https://upload.qiniup.com"
	defaultHTTPTimeout = 60 * time.Second
	uploadTokenTTL     = time.Hour
	// Returned when the key already holds identical content. Keys are content
	// hashes, so this is a successful dedup rather than a failure.
	statusKeyExists = 614
)

// Client uploads assets to a Qiniu bucket using the form upload protocol.
type Client struct {
	accessKey  string
	secretKey  string
	bucket     string
	uploadURL  string
	cdnDomain  string
	httpClient *http.Client
	logger     *slog.Logger
	now        func() time.Time
}

// Option customizes the storage client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithUploadURL overrides the upload host (useful for tests/mocks).
func WithUploadURL(uploadURL string) Option {
	return func(c *Client) {
		uploadURL = strings.TrimSpace(uploadURL)
		if uploadURL != "" {
			c.uploadURL = strings.TrimRight(uploadURL, "/")
		}
	}
}

// NewClient constructs a storage client from configuration.
func NewClient(cfg config.Storage, logger *slog.Logger, opts ...Option) *Client {
	timeout := defaultHTTPTimeout
	if cfg.RequestTimeout > 0 {
		timeout = time.Duration(cfg.RequestTimeout) * time.Second
	}
	client := &Client{
		accessKey:  strings.TrimSpace(cfg.AccessKey),
		secretKey:  strings.TrimSpace(cfg.SecretKey),
		bucket:     strings.TrimSpace(cfg.Bucket),
		uploadURL:  defaultUploadURL,
		cdnDomain:  strings.TrimRight(strings.TrimSpace(cfg.CDNDomain), "/"),
		httpClient: &http.Client{Timeout: timeout},
		logger:     logging.NewComponentLogger(logger, "storage"),
		now:        time.Now,
	}
	if uploadURL := strings.TrimSpace(cfg.UploadURL); uploadURL != "" {
		client.uploadURL = strings.TrimRight(uploadURL, "/")
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// ObjectKey builds the content-addressed storage key for a relocated asset.
func ObjectKey(contentHash, extension string) string {
	extension = strings.TrimPrefix(strings.TrimSpace(extension), ".")
	if extension == "" {
		extension = "bin"
	}
	return "images/" + contentHash + "." + extension
}

// PublicURL returns the CDN address an uploaded key is served from.
func (c *Client) PublicURL(key string) string {
	return c.cdnDomain + "/" + key
}

// uploadToken signs a scoped put policy for one key. Format per the form
// upload protocol: accessKey:signature:encodedPolicy.
func (c *Client) uploadToken(key string) (string, error) {
	policy, err := json.Marshal(map[string]any{
		"scope":    c.bucket + ":" + key,
		"deadline": c.now().Add(uploadTokenTTL).Unix(),
	})
	if err != nil {
		return "", fmt.Errorf("encode put policy: %w", err)
	}
	encodedPolicy := base64.URLEncoding.EncodeToString(policy)
	mac := hmac.New(sha1.New, []byte(c.secretKey))
	mac.Write([]byte(encodedPolicy))
	signature := base64.URLEncoding.EncodeToString(mac.Sum(nil))
	return c.accessKey + ":" + signature + ":" + encodedPolicy, nil
}

// Upload stores data under the given key and returns its public CDN URL. An
// existing identical object counts as success.
func (c *Client) Upload(ctx context.Context, key string, data []byte, mimeType string) (string, error) {
	if c.accessKey == "" || c.secretKey == "" || c.bucket == "" || c.cdnDomain == "" {
		return "", services.Wrap(services.ErrConfiguration, "storage", "upload", "access_key, secret_key, bucket, and cdn_domain are required", nil)
	}
	token, err := c.uploadToken(key)
	if err != nil {
		return "", services.Wrap(services.ErrTransient, "storage", "upload", "sign upload token", err)
	}

	var form bytes.Buffer
	writer := multipart.NewWriter(&form)
	if err := writer.WriteField("key", key); err != nil {
		return "", services.Wrap(services.ErrTransient, "storage", "upload", "build form", err)
	}
	if err := writer.WriteField("token", token); err != nil {
		return "", services.Wrap(services.ErrTransient, "storage", "upload", "build form", err)
	}
	part, err := writer.CreateFormFile("file", key)
	if err != nil {
		return "", services.Wrap(services.ErrTransient, "storage", "upload", "build form", err)
	}
	if _, err := part.Write(data); err != nil {
		return "", services.Wrap(services.ErrTransient, "storage", "upload", "build form", err)
	}
	if err := writer.Close(); err != nil {
		return "", services.Wrap(services.ErrTransient, "storage", "upload", "build form", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.uploadURL, &form)
	if err != nil {
		return "", services.Wrap(services.ErrTransient, "storage", "upload", "build request", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", services.Wrap(services.ErrTransient, "storage", "upload", "request failed", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", services.Wrap(services.ErrTransient, "storage", "upload", "read response", err)
	}

	if resp.StatusCode == statusKeyExists {
		c.logger.Debug("asset already stored", logging.String("key", key))
		return c.PublicURL(key), nil
	}
	if marker := services.MarkerForStatus(resp.StatusCode); marker != nil {
		return "", services.Wrap(marker, "storage", "upload", fmt.Sprintf("http %d: %s", resp.StatusCode, textutil.Snippet(string(body), 200)), nil)
	}

	c.logger.Debug("uploaded asset",
		logging.String("key", key),
		logging.Int("bytes", len(data)),
		logging.String("mime_type", mimeType),
	)
	return c.PublicURL(key), nil
}
