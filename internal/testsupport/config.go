package testsupport

import (
	"path/filepath"
	"testing"

	"docbridge/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Feishu.AppID = "test-app"
	cfgVal.Feishu.AppSecret = "test-secret"
	cfgVal.Notion.Token = "test-token"
	cfgVal.Notion.ParentID = "test-parent"
	cfgVal.Storage.AccessKey = "test-access"
	cfgVal.Storage.SecretKey = "test-sk"
	cfgVal.Storage.Bucket = "test-bucket"
	cfgVal.Storage.CDNDomain = "https://cdn.test.example"

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithNotionParent overrides the default Notion parent page on the test config.
func WithNotionParent(id string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Notion.ParentID = id
	}
}

// WithMediaCeiling sets the maximum relocatable asset size on the test config.
func WithMediaCeiling(bytes int64) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Media.MaxAssetBytes = bytes
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.DataDir)
}
