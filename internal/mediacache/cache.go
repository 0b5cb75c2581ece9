// Package mediacache relocates media assets from a source platform to
// content-addressed CDN storage. Assets are deduplicated by the hash of the
// bytes actually stored, so repeated syncs of the same image cost one upload.
package mediacache

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"image"
	"log/slog"

	"github.com/disintegration/imaging"
	"github.com/gabriel-vasile/mimetype"
	"golang.org/x/sync/singleflight"
	_ "golang.org/x/image/webp"

	"docbridge/internal/config"
	"docbridge/internal/logging"
	"docbridge/internal/queue"
	"docbridge/internal/services"
	"docbridge/internal/services/qiniu"
)

// Uploader stores asset bytes under a key and returns the public URL.
type Uploader interface {
	Upload(ctx context.Context, key string, data []byte, mimeType string) (string, error)
}

// Fetcher retrieves raw asset bytes from an origin URL.
type Fetcher func(ctx context.Context, originURL string) ([]byte, error)

// Result describes one relocated asset.
type Result struct {
	URL         string
	ContentHash string
	ByteSize    int64
	MimeType    string
	// Reused is true when the asset was already in the cache and no upload
	// happened.
	Reused bool
}

// Cache coordinates download, normalization, dedup, and upload of assets.
type Cache struct {
	store    *queue.Store
	uploader Uploader
	cfg      config.Media
	logger   *slog.Logger
	group    singleflight.Group
}

// New builds a Cache backed by the given store and uploader.
func New(store *queue.Store, uploader Uploader, cfg config.Media, logger *slog.Logger) *Cache {
	return &Cache{
		store:    store,
		uploader: uploader,
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "mediacache"),
	}
}

// Resolve relocates the asset at originURL and returns its CDN address.
// Identical content resolves to the same URL regardless of origin; concurrent
// requests for the same content share one upload.
func (c *Cache) Resolve(ctx context.Context, originURL string, fetch Fetcher) (Result, error) {
	if originURL == "" {
		return Result{}, services.Wrap(services.ErrValidation, "mediacache", "resolve", "origin url is required", nil)
	}

	data, err := c.download(ctx, originURL, fetch)
	if err != nil {
		return Result{}, err
	}
	data, mime := c.normalize(data)
	if c.cfg.MaxAssetBytes > 0 && int64(len(data)) > c.cfg.MaxAssetBytes {
		return Result{}, services.Wrap(services.ErrPayloadTooLarge, "mediacache", "resolve",
			fmt.Sprintf("asset is %d bytes, ceiling is %d", len(data), c.cfg.MaxAssetBytes), nil)
	}

	sum := sha256.Sum256(data)
	contentHash := hex.EncodeToString(sum[:])

	value, err, _ := c.group.Do(contentHash, func() (any, error) {
		return c.relocate(ctx, contentHash, originURL, data, mime)
	})
	if err != nil {
		return Result{}, err
	}
	return value.(Result), nil
}

func (c *Cache) download(ctx context.Context, originURL string, fetch Fetcher) ([]byte, error) {
	retries := c.cfg.DownloadRetries
	if retries < 0 {
		retries = 0
	}
	var lastErr error
	for attempt := 0; attempt <= retries; attempt++ {
		data, err := fetch(ctx, originURL)
		if err == nil {
			return data, nil
		}
		lastErr = err
		if !services.IsTransient(err) || ctx.Err() != nil {
			break
		}
	}
	return nil, lastErr
}

// normalize optionally re-encodes image assets to bounded JPEG. Failure to
// decode leaves the original bytes untouched; non-image content and animated
// formats pass through as-is.
func (c *Cache) normalize(data []byte) ([]byte, string) {
	mime := mimetype.Detect(data)
	if !c.cfg.Reencode {
		return data, mime.String()
	}
	switch mime.String() {
	case "image/jpeg", "image/png", "image/webp", "image/bmp", "image/tiff":
	default:
		return data, mime.String()
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return data, mime.String()
	}
	if c.cfg.MaxEdgePixels > 0 {
		bounds := img.Bounds()
		if bounds.Dx() > c.cfg.MaxEdgePixels || bounds.Dy() > c.cfg.MaxEdgePixels {
			img = imaging.Fit(img, c.cfg.MaxEdgePixels, c.cfg.MaxEdgePixels, imaging.Lanczos)
		}
	}
	quality := c.cfg.ReencodeQuality
	if quality <= 0 || quality > 100 {
		quality = 80
	}
	var out bytes.Buffer
	if err := encodeJPEG(&out, img, quality); err != nil {
		return data, mime.String()
	}
	// Re-encoding only pays off when it shrinks the asset.
	if out.Len() >= len(data) && mime.String() == "image/jpeg" {
		return data, mime.String()
	}
	return out.Bytes(), "image/jpeg"
}

func encodeJPEG(out *bytes.Buffer, img image.Image, quality int) error {
	return imaging.Encode(out, img, imaging.JPEG, imaging.JPEGQuality(quality))
}

func (c *Cache) relocate(ctx context.Context, contentHash, originURL string, data []byte, mime string) (Result, error) {
	existing, err := c.store.MediaByHash(ctx, contentHash)
	if err != nil {
		return Result{}, err
	}
	if existing != nil {
		if err := c.store.TouchMedia(ctx, contentHash); err != nil {
			return Result{}, err
		}
		c.logger.Debug("media cache hit",
			logging.String("content_hash", contentHash),
			logging.String("url", existing.RelocatedURL),
		)
		return Result{
			URL:         existing.RelocatedURL,
			ContentHash: contentHash,
			ByteSize:    existing.ByteSize,
			MimeType:    existing.MimeType,
			Reused:      true,
		}, nil
	}

	key := qiniu.ObjectKey(contentHash, extensionFor(mime))
	publicURL, err := c.uploader.Upload(ctx, key, data, mime)
	if err != nil {
		return Result{}, err
	}
	if _, err := c.store.RecordMedia(ctx, &queue.MediaMapping{
		ContentHash:  contentHash,
		OriginURL:    originURL,
		RelocatedURL: publicURL,
		ByteSize:     int64(len(data)),
		MimeType:     mime,
	}); err != nil {
		return Result{}, err
	}
	c.logger.Info("relocated media asset",
		logging.String("content_hash", contentHash),
		logging.Int("bytes", len(data)),
		logging.String("url", publicURL),
	)
	return Result{
		URL:         publicURL,
		ContentHash: contentHash,
		ByteSize:    int64(len(data)),
		MimeType:    mime,
	}, nil
}

func extensionFor(mime string) string {
	switch mime {
	case "image/jpeg":
		return "jpg"
	case "image/png":
		return "png"
	case "image/gif":
		return "gif"
	case "image/webp":
		return "webp"
	case "image/svg+xml":
		return "svg"
	case "image/bmp":
		return "bmp"
	case "image/tiff":
		return "tiff"
	default:
		return "bin"
	}
}
