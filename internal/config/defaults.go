package config

const (
	defaultDataDir        = "~/.local/share/docbridge"
	defaultLogDir         = "~/.local/share/docbridge/logs"
	defaultFeishuBaseURL  = "https://open.feishu.cn/open-apis"
	defaultNotionBaseURL  = "https://api.notion.com/v1"
	defaultNotionVersion  = "2022-06-28"
	defaultRequestTimeout = 30

	defaultMaxAssetBytes   = 10 << 20
	defaultReencodeQuality = 80
	defaultMaxEdgePixels   = 2400
	defaultDownloadRetries = 2

	defaultTickInterval    = 30
	defaultMaxConcurrent   = 5
	defaultMaxAttempts     = 3
	defaultBackoffBase     = 30
	defaultBackoffCap      = 600
	defaultShutdownTimeout = 30

	defaultLogFormat = "console"
	defaultLogLevel  = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
		},
		Feishu: Feishu{
			BaseURL:        defaultFeishuBaseURL,
			RequestTimeout: defaultRequestTimeout,
		},
		Notion: Notion{
			BaseURL:        defaultNotionBaseURL,
			Version:        defaultNotionVersion,
			RequestTimeout: defaultRequestTimeout,
		},
		Storage: Storage{
			RequestTimeout: defaultRequestTimeout,
		},
		Media: Media{
			MaxAssetBytes:   defaultMaxAssetBytes,
			Reencode:        true,
			ReencodeQuality: defaultReencodeQuality,
			MaxEdgePixels:   defaultMaxEdgePixels,
			DownloadRetries: defaultDownloadRetries,
		},
		Dispatcher: Dispatcher{
			TickInterval:    defaultTickInterval,
			MaxConcurrent:   defaultMaxConcurrent,
			MaxAttempts:     defaultMaxAttempts,
			BackoffBase:     defaultBackoffBase,
			BackoffCap:      defaultBackoffCap,
			ShutdownTimeout: defaultShutdownTimeout,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
