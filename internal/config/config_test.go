package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, name, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func env(vars map[string]string) LookupFunc {
	return func(key string) (string, bool) {
		v, ok := vars[key]
		return v, ok
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, "taskbot.yaml", `
version: 1
tasks:
  base_url: http://localhost:8445/api
`)

	cfg, err := LoadWithEnv(path, env(nil))
	if err != nil {
		t.Fatalf("LoadWithEnv() error = %v", err)
	}
	if cfg.Telegram.Mode != ModeLongPolling {
		t.Errorf("telegram.mode = %q", cfg.Telegram.Mode)
	}
	if cfg.Threads.Driver != DriverSQLite || cfg.Threads.DSN != "chats.db" {
		t.Errorf("threads = %+v", cfg.Threads)
	}
	if cfg.Run.PollInterval != time.Second || cfg.Run.PollMaxInterval != time.Second {
		t.Errorf("poll interval = %v/%v", cfg.Run.PollInterval, cfg.Run.PollMaxInterval)
	}
	if cfg.Run.MaxWait != 5*time.Minute {
		t.Errorf("max wait = %v", cfg.Run.MaxWait)
	}
	if cfg.Tasks.DefaultListFilter != ListFilterOpen {
		t.Errorf("default list filter = %q", cfg.Tasks.DefaultListFilter)
	}
	if cfg.OpenAI.TranscriptionModel != "whisper-1" {
		t.Errorf("transcription model = %q", cfg.OpenAI.TranscriptionModel)
	}
}

func TestLoadParsesDurationsAndLists(t *testing.T) {
	path := writeConfig(t, "taskbot.yaml", `
version: 1
auth:
  allowed_chats: ["42", "43"]
run:
  poll_interval: 250ms
  poll_max_interval: 2s
  poll_factor: 2
  max_wait: 90s
  tool_concurrency: 2
`)

	cfg, err := LoadWithEnv(path, env(nil))
	if err != nil {
		t.Fatalf("LoadWithEnv() error = %v", err)
	}
	if cfg.Run.PollInterval != 250*time.Millisecond || cfg.Run.PollMaxInterval != 2*time.Second {
		t.Errorf("poll = %v..%v", cfg.Run.PollInterval, cfg.Run.PollMaxInterval)
	}
	if cfg.Run.MaxWait != 90*time.Second || cfg.Run.ToolConcurrency != 2 {
		t.Errorf("run = %+v", cfg.Run)
	}
	if strings.Join(cfg.Auth.AllowedChats, ",") != "42,43" {
		t.Errorf("allowed chats = %v", cfg.Auth.AllowedChats)
	}
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	path := writeConfig(t, "taskbot.yaml", `
telegram:
  token: abc
  extra: true
`)
	if _, err := LoadWithEnv(path, env(nil)); err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestLoadExpandsEnvironment(t *testing.T) {
	path := writeConfig(t, "taskbot.yaml", `
openai:
  api_key: ${MY_KEY}
`)
	cfg, err := LoadWithEnv(path, env(map[string]string{"MY_KEY": "sk-test"}))
	if err != nil {
		t.Fatalf("LoadWithEnv() error = %v", err)
	}
	if cfg.OpenAI.APIKey != "sk-test" {
		t.Fatalf("api key = %q", cfg.OpenAI.APIKey)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	path := writeConfig(t, "taskbot.yaml", `
telegram:
  token: from-file
tasks:
  base_url: http://file.example/api
`)
	cfg, err := LoadWithEnv(path, env(map[string]string{
		"TELEGRAM_TOKEN":      "from-env",
		"ALLOWED_CHATS":       " 42, 99 ,,",
		"OPENAI_ASSISTANT_ID": "asst_1",
		"BASE_URL":            "http://env.example/api",
	}))
	if err != nil {
		t.Fatalf("LoadWithEnv() error = %v", err)
	}
	if cfg.Telegram.Token != "from-env" {
		t.Errorf("token = %q", cfg.Telegram.Token)
	}
	if strings.Join(cfg.Auth.AllowedChats, "|") != "42|99" {
		t.Errorf("allowed chats = %q", cfg.Auth.AllowedChats)
	}
	if cfg.OpenAI.AssistantID != "asst_1" {
		t.Errorf("assistant id = %q", cfg.OpenAI.AssistantID)
	}
	if cfg.Tasks.BaseURL != "http://env.example/api" {
		t.Errorf("base url = %q", cfg.Tasks.BaseURL)
	}
}

func TestLoadEnvOnly(t *testing.T) {
	cfg, err := LoadWithEnv("", env(map[string]string{"ALLOWED_CHATS": "7"}))
	if err != nil {
		t.Fatalf("LoadWithEnv() error = %v", err)
	}
	if len(cfg.Auth.AllowedChats) != 1 || cfg.Auth.AllowedChats[0] != "7" {
		t.Fatalf("allowed chats = %v", cfg.Auth.AllowedChats)
	}
}

func TestLoadJSON5(t *testing.T) {
	path := writeConfig(t, "taskbot.json5", `{
  // comments are allowed
  version: 1,
  threads: {driver: "postgres", dsn: "postgres://localhost/taskbot"},
  run: {max_polls: 30,},
}`)
	cfg, err := LoadWithEnv(path, env(nil))
	if err != nil {
		t.Fatalf("LoadWithEnv() error = %v", err)
	}
	if cfg.Threads.Driver != DriverPostgres || cfg.Run.MaxPolls != 30 {
		t.Fatalf("cfg = %+v / %+v", cfg.Threads, cfg.Run)
	}
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantKey string
	}{
		{"bad mode", "telegram:\n  mode: carrier_pigeon\n", "telegram.mode"},
		{"webhook without url", "telegram:\n  mode: webhook\n", "webhook_url"},
		{"bad driver", "threads:\n  driver: mysql\n  dsn: x\n", "threads.driver"},
		{"relative base url", "tasks:\n  base_url: /api\n", "tasks.base_url"},
		{"bad filter", "tasks:\n  default_list_filter: some\n", "default_list_filter"},
		{"poll factor", "run:\n  poll_factor: 0.5\n", "poll_factor"},
		{"max below interval", "run:\n  poll_interval: 2s\n  poll_max_interval: 1s\n", "poll_max_interval"},
		{"future version", "version: 9\n", "newer than this build"},
		{"bad level", "logging:\n  level: loud\n", "logging.level"},
		{"sampling", "observability:\n  tracing:\n    sampling_rate: 2\n", "sampling_rate"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, "taskbot.yaml", tt.body)
			_, err := LoadWithEnv(path, env(nil))
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if !strings.Contains(err.Error(), tt.wantKey) {
				t.Fatalf("expected %q in %v", tt.wantKey, err)
			}
		})
	}
}

func TestRequire(t *testing.T) {
	cfg := &Config{}
	err := cfg.Require(SectionTelegram, SectionAssistant, SectionTasks, SectionAuth)
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if len(verr.Issues) != 5 {
		t.Fatalf("issues = %v", verr.Issues)
	}

	cfg.Tasks.BaseURL = "http://x"
	if err := cfg.Require(SectionTasks); err != nil {
		t.Fatalf("Require(tasks) error = %v", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := LoadWithEnv(filepath.Join(t.TempDir(), "missing.yaml"), env(nil)); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestSplitList(t *testing.T) {
	got := SplitList(" a,b , ,c,")
	if strings.Join(got, "|") != "a|b|c" {
		t.Fatalf("SplitList() = %q", got)
	}
}
