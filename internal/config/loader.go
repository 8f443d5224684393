package config

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	json5 "github.com/yosuke-furukawa/json5/encoding/json5"
	"gopkg.in/yaml.v3"
)

// DefaultPath is the configuration file looked up when none is given.
const DefaultPath = "taskbot.yaml"

// LookupFunc resolves an environment variable.
type LookupFunc func(key string) (string, bool)

// Load reads the configuration at path, applies environment overrides and
// defaults, and validates the result. An empty path loads from the
// environment alone.
func Load(path string) (*Config, error) {
	return LoadWithEnv(path, os.LookupEnv)
}

// LoadWithEnv is Load with an explicit environment lookup.
func LoadWithEnv(path string, lookup LookupFunc) (*Config, error) {
	raw := map[string]any{}
	if strings.TrimSpace(path) != "" {
		var err error
		raw, err = LoadRaw(path, lookup)
		if err != nil {
			return nil, err
		}
	}

	cfg, err := decodeRawConfig(raw)
	if err != nil {
		return nil, err
	}
	applyEnvOverrides(cfg, lookup)
	applyDefaults(cfg)
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadRaw reads a configuration file into a raw map with ${VAR} references
// expanded. YAML is the default format; .json and .json5 files are parsed as
// JSON5.
func LoadRaw(path string, lookup LookupFunc) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	expanded := os.Expand(string(data), func(key string) string {
		value, _ := lookup(key)
		return value
	})
	return parseRawBytes([]byte(expanded), path)
}

func parseRawBytes(data []byte, pathHint string) (map[string]any, error) {
	format := strings.ToLower(filepath.Ext(pathHint))
	if format == ".json" || format == ".json5" {
		var raw map[string]any
		if err := json5.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
		if raw == nil {
			raw = map[string]any{}
		}
		return raw, nil
	}

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	var raw map[string]any
	if err := decoder.Decode(&raw); err != nil && err != io.EOF {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return nil, fmt.Errorf("failed to parse config: expected single document")
	}
	if raw == nil {
		raw = map[string]any{}
	}
	return raw, nil
}

func decodeRawConfig(raw map[string]any) (*Config, error) {
	var cfg Config
	if len(raw) == 0 {
		return &cfg, nil
	}
	payload, err := yaml.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize config: %w", err)
	}
	decoder := yaml.NewDecoder(bytes.NewReader(payload))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}

// applyEnvOverrides maps the environment variables the bot has always been
// deployed with onto the config. Non-empty variables win over file values.
func applyEnvOverrides(cfg *Config, lookup LookupFunc) {
	set := func(dst *string, keys ...string) {
		for _, key := range keys {
			if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
				*dst = strings.TrimSpace(v)
				return
			}
		}
	}

	set(&cfg.Telegram.Token, "TELEGRAM_TOKEN")
	set(&cfg.OpenAI.APIKey, "OPENAI_API_KEY")
	set(&cfg.OpenAI.AssistantID, "OPENAI_ASSISTANT_ID")
	set(&cfg.OpenAI.BaseURL, "OPENAI_BASE_URL")
	set(&cfg.Tasks.BaseURL, "TASKS_BASE_URL", "BASE_URL")
	set(&cfg.Threads.DSN, "THREADS_DSN")

	if v, ok := lookup("ALLOWED_CHATS"); ok && strings.TrimSpace(v) != "" {
		cfg.Auth.AllowedChats = SplitList(v)
	}
}

// SplitList splits a comma separated list, trimming blanks.
func SplitList(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
