package config

import (
	"fmt"
	"net/url"
	"strings"
)

// ValidationError collects every problem found in a configuration.
type ValidationError struct {
	Issues []string
}

func (e *ValidationError) Error() string {
	if e == nil || len(e.Issues) == 0 {
		return ""
	}
	return "invalid config: " + strings.Join(e.Issues, "; ")
}

// Section names a group of settings a command needs before it can run.
type Section string

const (
	SectionTelegram  Section = "telegram"
	SectionAssistant Section = "assistant"
	SectionTasks     Section = "tasks"
	SectionAuth      Section = "auth"
)

func validateConfig(cfg *Config) error {
	var issues []string

	if err := ValidateVersion(cfg.Version); err != nil {
		issues = append(issues, err.Error())
	}

	switch cfg.Telegram.Mode {
	case ModeLongPolling:
	case ModeWebhook:
		if strings.TrimSpace(cfg.Telegram.WebhookURL) == "" {
			issues = append(issues, "telegram.webhook_url is required in webhook mode")
		}
	default:
		issues = append(issues, fmt.Sprintf("telegram.mode must be %q or %q", ModeLongPolling, ModeWebhook))
	}

	switch cfg.Threads.Driver {
	case DriverSQLite, DriverSQLite3, DriverPostgres:
	default:
		issues = append(issues, fmt.Sprintf("threads.driver %q is not supported", cfg.Threads.Driver))
	}
	if strings.TrimSpace(cfg.Threads.DSN) == "" {
		issues = append(issues, "threads.dsn is required")
	}

	if cfg.Tasks.BaseURL != "" {
		if u, err := url.Parse(cfg.Tasks.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
			issues = append(issues, "tasks.base_url must be an absolute URL")
		}
	}
	switch cfg.Tasks.DefaultListFilter {
	case ListFilterOpen, ListFilterCompleted, ListFilterAll:
	default:
		issues = append(issues, "tasks.default_list_filter must be open, completed or all")
	}

	if cfg.Run.PollInterval < 0 {
		issues = append(issues, "run.poll_interval must be positive")
	}
	if cfg.Run.PollMaxInterval < cfg.Run.PollInterval {
		issues = append(issues, "run.poll_max_interval must not be below run.poll_interval")
	}
	if cfg.Run.PollFactor < 1 {
		issues = append(issues, "run.poll_factor must be >= 1")
	}
	if cfg.Run.MaxWait < 0 {
		issues = append(issues, "run.max_wait must be positive")
	}
	if cfg.Run.MaxPolls < 0 {
		issues = append(issues, "run.max_polls must not be negative")
	}
	if cfg.Run.ToolConcurrency < 1 {
		issues = append(issues, "run.tool_concurrency must be at least 1")
	}

	switch strings.ToLower(cfg.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		issues = append(issues, fmt.Sprintf("logging.level %q is not recognized", cfg.Logging.Level))
	}
	switch cfg.Logging.Format {
	case "json", "text":
	default:
		issues = append(issues, "logging.format must be json or text")
	}

	if rate := cfg.Observability.Tracing.SamplingRate; rate < 0 || rate > 1 {
		issues = append(issues, "observability.tracing.sampling_rate must be between 0 and 1")
	}

	if len(issues) > 0 {
		return &ValidationError{Issues: issues}
	}
	return nil
}

// Require reports the settings missing for the given sections.
func (c *Config) Require(sections ...Section) error {
	var issues []string
	for _, section := range sections {
		switch section {
		case SectionTelegram:
			if c.Telegram.Token == "" {
				issues = append(issues, "telegram.token (TELEGRAM_TOKEN) is required")
			}
		case SectionAssistant:
			if c.OpenAI.APIKey == "" {
				issues = append(issues, "openai.api_key (OPENAI_API_KEY) is required")
			}
			if c.OpenAI.AssistantID == "" {
				issues = append(issues, "openai.assistant_id (OPENAI_ASSISTANT_ID) is required")
			}
		case SectionTasks:
			if c.Tasks.BaseURL == "" {
				issues = append(issues, "tasks.base_url (BASE_URL) is required")
			}
		case SectionAuth:
			if len(c.Auth.AllowedChats) == 0 {
				issues = append(issues, "auth.allowed_chats (ALLOWED_CHATS) must list at least one chat")
			}
		}
	}
	if len(issues) > 0 {
		return &ValidationError{Issues: issues}
	}
	return nil
}
