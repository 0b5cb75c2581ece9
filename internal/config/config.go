package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	DataDir string `toml:"data_dir"`
	LogDir  string `toml:"log_dir"`
}

// Feishu contains credentials and endpoint configuration for the Feishu Open API.
type Feishu struct {
	AppID     string `toml:"app_id"`
	AppSecret string `toml:"app_secret"`
	BaseURL   string `toml:"base_url"`
	// RequestTimeout bounds individual API calls, in seconds.
	RequestTimeout int `toml:"request_timeout"`
}

// Notion contains credentials and endpoint configuration for the Notion API.
type Notion struct {
	Token    string `toml:"token"`
	BaseURL  string `toml:"base_url"`
	Version  string `toml:"version"`
	ParentID string `toml:"parent_id"`
	// RequestTimeout bounds individual API calls, in seconds.
	RequestTimeout int `toml:"request_timeout"`
}

// Storage contains configuration for the media relocation target.
type Storage struct {
	AccessKey string `toml:"access_key"`
	SecretKey string `toml:"secret_key"`
	Bucket    string `toml:"bucket"`
	UploadURL string `toml:"upload_url"`
	CDNDomain string `toml:"cdn_domain"`
	// RequestTimeout bounds upload calls, in seconds.
	RequestTimeout int `toml:"request_timeout"`
}

// Media contains configuration for asset download and re-encoding.
type Media struct {
	// MaxAssetBytes caps downloaded asset size. Oversized assets fail
	// their node only, never the whole document.
	MaxAssetBytes int64 `toml:"max_asset_bytes"`
	// Reencode enables normalization of assets to JPEG before upload.
	Reencode bool `toml:"reencode"`
	// ReencodeQuality is the JPEG quality used when re-encoding (1-100).
	ReencodeQuality int `toml:"reencode_quality"`
	// MaxEdgePixels bounds the longest image edge when re-encoding; larger
	// images are scaled down. Zero disables scaling.
	MaxEdgePixels int `toml:"max_edge_pixels"`
	// DownloadRetries is the per-asset retry budget before the node is
	// downgraded to a placeholder.
	DownloadRetries int `toml:"download_retries"`
}

// Dispatcher contains configuration for the background task loop.
type Dispatcher struct {
	// TickInterval is the poll interval in seconds.
	TickInterval int `toml:"tick_interval"`
	// MaxConcurrent bounds simultaneous task executions per tick.
	MaxConcurrent int `toml:"max_concurrent"`
	// MaxAttempts is the default retry ceiling for new tasks.
	MaxAttempts int `toml:"max_attempts"`
	// BackoffBase is the first retry delay in seconds; doubles per attempt.
	BackoffBase int `toml:"backoff_base"`
	// BackoffCap caps the retry delay in seconds.
	BackoffCap int `toml:"backoff_cap"`
	// ShutdownTimeout bounds graceful drain on stop, in seconds.
	ShutdownTimeout int `toml:"shutdown_timeout"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for docbridge.
//
// Sections by subsystem:
//   - Paths: data and log directories
//   - Feishu: source platform API credentials
//   - Notion: target platform API credentials and default parent
//   - Storage: media relocation bucket and CDN domain
//   - Media: asset size ceiling and re-encode policy
//   - Dispatcher: poll interval, concurrency, and retry backoff
//   - Logging: log format and level
type Config struct {
	Paths      Paths      `toml:"paths"`
	Feishu     Feishu     `toml:"feishu"`
	Notion     Notion     `toml:"notion"`
	Storage    Storage    `toml:"storage"`
	Media      Media      `toml:"media"`
	Dispatcher Dispatcher `toml:"dispatcher"`
	Logging    Logging    `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/docbridge/config.toml")
}

// SampleConfig returns the embedded sample configuration file content.
func SampleConfig() string {
	return sampleConfig
}

// Load locates, parses, and validates a configuration file. The returned config
// has all path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("docbridge.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

func (c *Config) normalize() error {
	var err error
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return err
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return err
	}
	c.Feishu.BaseURL = strings.TrimRight(strings.TrimSpace(c.Feishu.BaseURL), "/")
	c.Notion.BaseURL = strings.TrimRight(strings.TrimSpace(c.Notion.BaseURL), "/")
	c.Storage.CDNDomain = strings.TrimRight(strings.TrimSpace(c.Storage.CDNDomain), "/")
	c.Storage.UploadURL = strings.TrimRight(strings.TrimSpace(c.Storage.UploadURL), "/")
	return nil
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}
