package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateFeishu(); err != nil {
		return err
	}
	if err := c.validateNotion(); err != nil {
		return err
	}
	if err := c.validateStorage(); err != nil {
		return err
	}
	if err := c.validateMedia(); err != nil {
		return err
	}
	if err := c.validateDispatcher(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateFeishu() error {
	if strings.TrimSpace(c.Feishu.BaseURL) == "" {
		return errors.New("feishu.base_url must be set")
	}
	if c.Feishu.RequestTimeout <= 0 {
		return errors.New("feishu.request_timeout must be positive (seconds)")
	}
	return nil
}

func (c *Config) validateNotion() error {
	if strings.TrimSpace(c.Notion.BaseURL) == "" {
		return errors.New("notion.base_url must be set")
	}
	if strings.TrimSpace(c.Notion.Version) == "" {
		return errors.New("notion.version must be set")
	}
	if c.Notion.RequestTimeout <= 0 {
		return errors.New("notion.request_timeout must be positive (seconds)")
	}
	return nil
}

func (c *Config) validateStorage() error {
	if c.Storage.RequestTimeout <= 0 {
		return errors.New("storage.request_timeout must be positive (seconds)")
	}
	if strings.TrimSpace(c.Storage.UploadURL) != "" && strings.TrimSpace(c.Storage.CDNDomain) == "" {
		return errors.New("storage.cdn_domain must be set when storage.upload_url is configured")
	}
	return nil
}

func (c *Config) validateMedia() error {
	if c.Media.MaxAssetBytes <= 0 {
		return errors.New("media.max_asset_bytes must be positive")
	}
	if c.Media.ReencodeQuality < 1 || c.Media.ReencodeQuality > 100 {
		return errors.New("media.reencode_quality must be between 1 and 100")
	}
	if c.Media.MaxEdgePixels < 0 {
		return errors.New("media.max_edge_pixels must not be negative")
	}
	if c.Media.DownloadRetries < 0 {
		return errors.New("media.download_retries must not be negative")
	}
	return nil
}

func (c *Config) validateDispatcher() error {
	if err := ensurePositiveMap(map[string]int{
		"dispatcher.tick_interval":    c.Dispatcher.TickInterval,
		"dispatcher.max_concurrent":   c.Dispatcher.MaxConcurrent,
		"dispatcher.max_attempts":     c.Dispatcher.MaxAttempts,
		"dispatcher.backoff_base":     c.Dispatcher.BackoffBase,
		"dispatcher.shutdown_timeout": c.Dispatcher.ShutdownTimeout,
	}); err != nil {
		return err
	}
	if c.Dispatcher.BackoffCap < c.Dispatcher.BackoffBase {
		return errors.New("dispatcher.backoff_cap must not be less than dispatcher.backoff_base")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch strings.ToLower(strings.TrimSpace(c.Logging.Format)) {
	case "", "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for name, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}
	return nil
}
