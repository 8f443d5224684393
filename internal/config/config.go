// Package config loads and validates the taskbot configuration file.
package config

import (
	"time"
)

// Config is the root configuration document.
type Config struct {
	// Version is the configuration schema version.
	Version int `yaml:"version"`

	Telegram      TelegramConfig      `yaml:"telegram"`
	OpenAI        OpenAIConfig        `yaml:"openai"`
	Tasks         TasksConfig         `yaml:"tasks"`
	Threads       ThreadsConfig       `yaml:"threads"`
	Auth          AuthConfig          `yaml:"auth"`
	Run           RunConfig           `yaml:"run"`
	Logging       LoggingConfig       `yaml:"logging"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// TelegramConfig configures the Telegram bot transport.
type TelegramConfig struct {
	Token string `yaml:"token"`

	// Mode is "long_polling" (default) or "webhook".
	Mode string `yaml:"mode" jsonschema:"enum=long_polling,enum=webhook"`

	WebhookURL    string `yaml:"webhook_url"`
	WebhookListen string `yaml:"webhook_listen"`
	WebhookSecret string `yaml:"webhook_secret"`
}

// OpenAIConfig configures the assistant service and speech-to-text.
type OpenAIConfig struct {
	APIKey       string `yaml:"api_key"`
	BaseURL      string `yaml:"base_url"`
	Organization string `yaml:"organization"`
	AssistantID  string `yaml:"assistant_id"`

	TranscriptionModel    string `yaml:"transcription_model"`
	TranscriptionLanguage string `yaml:"transcription_language"`

	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// TasksConfig configures the remote task API.
type TasksConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`

	// DefaultListFilter applies to get_tasks calls that do not say which
	// tasks they want: "open" (default), "completed" or "all".
	DefaultListFilter string `yaml:"default_list_filter" jsonschema:"enum=open,enum=completed,enum=all"`
}

// ThreadsConfig configures the conversation to thread mapping store.
type ThreadsConfig struct {
	// Driver is "sqlite" (pure Go, default), "sqlite3" (cgo) or "postgres".
	Driver string `yaml:"driver" jsonschema:"enum=sqlite,enum=sqlite3,enum=postgres"`
	DSN    string `yaml:"dsn"`
}

// AuthConfig holds the conversation allow-list.
type AuthConfig struct {
	AllowedChats []string `yaml:"allowed_chats"`
}

// RunConfig tunes the run orchestrator and tool dispatcher.
type RunConfig struct {
	PollInterval    time.Duration `yaml:"poll_interval"`
	PollMaxInterval time.Duration `yaml:"poll_max_interval"`
	PollFactor      float64       `yaml:"poll_factor"`

	// MaxWait bounds the total time spent on one run.
	MaxWait time.Duration `yaml:"max_wait"`

	// MaxPolls bounds status polls per run. Zero means unlimited.
	MaxPolls int `yaml:"max_polls"`

	ToolTimeout     time.Duration `yaml:"tool_timeout"`
	ToolConcurrency int           `yaml:"tool_concurrency"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// ObservabilityConfig configures metrics and tracing.
type ObservabilityConfig struct {
	// MetricsAddr enables the /metrics and /healthz listener when set.
	MetricsAddr string        `yaml:"metrics_addr"`
	Tracing     TracingConfig `yaml:"tracing"`
}

type TracingConfig struct {
	Endpoint     string  `yaml:"endpoint"`
	SamplingRate float64 `yaml:"sampling_rate"`
	Insecure     bool    `yaml:"insecure"`
	Environment  string  `yaml:"environment"`
}

const (
	ModeLongPolling = "long_polling"
	ModeWebhook     = "webhook"

	DriverSQLite   = "sqlite"
	DriverSQLite3  = "sqlite3"
	DriverPostgres = "postgres"

	ListFilterOpen      = "open"
	ListFilterCompleted = "completed"
	ListFilterAll       = "all"
)

func applyDefaults(cfg *Config) {
	if cfg.Version == 0 {
		cfg.Version = CurrentVersion
	}
	if cfg.Telegram.Mode == "" {
		cfg.Telegram.Mode = ModeLongPolling
	}
	if cfg.Telegram.WebhookListen == "" {
		cfg.Telegram.WebhookListen = ":8443"
	}
	if cfg.OpenAI.TranscriptionModel == "" {
		cfg.OpenAI.TranscriptionModel = "whisper-1"
	}
	if cfg.OpenAI.TranscriptionLanguage == "" {
		cfg.OpenAI.TranscriptionLanguage = "en"
	}
	if cfg.OpenAI.RequestTimeout == 0 {
		cfg.OpenAI.RequestTimeout = 60 * time.Second
	}
	if cfg.Tasks.Timeout == 0 {
		cfg.Tasks.Timeout = 15 * time.Second
	}
	if cfg.Tasks.DefaultListFilter == "" {
		cfg.Tasks.DefaultListFilter = ListFilterOpen
	}
	if cfg.Threads.Driver == "" {
		cfg.Threads.Driver = DriverSQLite
	}
	if cfg.Threads.DSN == "" && cfg.Threads.Driver != DriverPostgres {
		cfg.Threads.DSN = "chats.db"
	}
	if cfg.Run.PollInterval == 0 {
		cfg.Run.PollInterval = time.Second
	}
	if cfg.Run.PollFactor == 0 {
		cfg.Run.PollFactor = 1
	}
	if cfg.Run.PollMaxInterval == 0 {
		cfg.Run.PollMaxInterval = cfg.Run.PollInterval
	}
	if cfg.Run.MaxWait == 0 {
		cfg.Run.MaxWait = 5 * time.Minute
	}
	if cfg.Run.ToolTimeout == 0 {
		cfg.Run.ToolTimeout = 30 * time.Second
	}
	if cfg.Run.ToolConcurrency == 0 {
		cfg.Run.ToolConcurrency = 8
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}
