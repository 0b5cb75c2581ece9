package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"docbridge/internal/config"
)

func TestLoadDefaultsAndExpandsPaths(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantData := filepath.Join(tempHome, ".local", "share", "docbridge")
	if cfg.Paths.DataDir != wantData {
		t.Fatalf("unexpected data dir: got %q want %q", cfg.Paths.DataDir, wantData)
	}
	if cfg.Dispatcher.TickInterval != 30 {
		t.Fatalf("unexpected tick interval: %d", cfg.Dispatcher.TickInterval)
	}
	if cfg.Dispatcher.MaxConcurrent != 5 {
		t.Fatalf("unexpected max concurrent: %d", cfg.Dispatcher.MaxConcurrent)
	}
	if cfg.Dispatcher.BackoffBase != 30 || cfg.Dispatcher.BackoffCap != 600 {
		t.Fatalf("unexpected backoff defaults: base %d cap %d", cfg.Dispatcher.BackoffBase, cfg.Dispatcher.BackoffCap)
	}
	if cfg.Media.MaxAssetBytes != 10<<20 {
		t.Fatalf("unexpected asset ceiling: %d", cfg.Media.MaxAssetBytes)
	}
	if !cfg.Media.Reencode {
		t.Fatal("expected re-encode enabled by default")
	}
	if cfg.Notion.Version == "" {
		t.Fatal("expected notion version default")
	}

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories failed: %v", err)
	}
	for _, dir := range []string{cfg.Paths.DataDir, cfg.Paths.LogDir} {
		info, err := os.Stat(dir)
		if err != nil {
			t.Fatalf("expected directory %q: %v", dir, err)
		}
		if !info.IsDir() {
			t.Fatalf("expected %q to be a directory", dir)
		}
	}
}

func TestLoadParsesFileAndNormalizesURLs(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := strings.Join([]string{
		`[feishu]`,
		`app_id = "cli_test"`,
		`base_url = "https://feishu.example.com/api/"`,
		``,
		`[notion]`,
		`token = "secret"`,
		``,
		`[storage]`,
		`upload_url = "https://up.example.com/"`,
		`cdn_domain = "https://cdn.example.com/"`,
		``,
		`[dispatcher]`,
		`tick_interval = 5`,
		`max_concurrent = 2`,
	}, "\n")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, _, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists {
		t.Fatal("expected config file to exist")
	}
	if cfg.Feishu.BaseURL != "https://feishu.example.com/api" {
		t.Fatalf("expected trailing slash trimmed, got %q", cfg.Feishu.BaseURL)
	}
	if cfg.Storage.CDNDomain != "https://cdn.example.com" {
		t.Fatalf("unexpected cdn domain: %q", cfg.Storage.CDNDomain)
	}
	if cfg.Dispatcher.TickInterval != 5 || cfg.Dispatcher.MaxConcurrent != 2 {
		t.Fatalf("dispatcher overrides not applied: %+v", cfg.Dispatcher)
	}
	// Unset sections keep defaults.
	if cfg.Dispatcher.MaxAttempts != 3 {
		t.Fatalf("expected default max attempts, got %d", cfg.Dispatcher.MaxAttempts)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{
			name:   "zero tick interval",
			mutate: func(c *config.Config) { c.Dispatcher.TickInterval = 0 },
			want:   "dispatcher.tick_interval",
		},
		{
			name:   "cap below base",
			mutate: func(c *config.Config) { c.Dispatcher.BackoffCap = 1 },
			want:   "dispatcher.backoff_cap",
		},
		{
			name:   "bad quality",
			mutate: func(c *config.Config) { c.Media.ReencodeQuality = 0 },
			want:   "media.reencode_quality",
		},
		{
			name:   "upload without cdn",
			mutate: func(c *config.Config) { c.Storage.UploadURL = "https://up.example.com" },
			want:   "storage.cdn_domain",
		},
		{
			name:   "bad log format",
			mutate: func(c *config.Config) { c.Logging.Format = "yaml" },
			want:   "logging.format",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.Default()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error to mention %q, got %v", tc.want, err)
			}
		})
	}
}

func TestSampleConfigParses(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sample.toml")
	if err := os.WriteFile(path, []byte(config.SampleConfig()), 0o644); err != nil {
		t.Fatalf("write sample: %v", err)
	}
	if _, _, _, err := config.Load(path); err != nil {
		t.Fatalf("sample config should load: %v", err)
	}
}
