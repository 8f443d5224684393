// Package main provides the taskbot command: a Telegram bot that manages a
// per-chat task list through an OpenAI assistant.
//
// # Basic Usage
//
// Start the bot:
//
//	taskbot serve --config taskbot.yaml
//
// Send one message without Telegram:
//
//	taskbot ask --chat 123456 "what's on my list?"
//
// Register the task functions on the assistant:
//
//	taskbot assistant sync
//
// # Environment Variables
//
// Every setting can come from the config file. These variables override it:
//
//   - TASKBOT_CONFIG: path to the configuration file (default: taskbot.yaml)
//   - TELEGRAM_TOKEN: Telegram bot token
//   - ALLOWED_CHATS: comma separated chat ids allowed to use the bot
//   - OPENAI_API_KEY: OpenAI API key
//   - OPENAI_ASSISTANT_ID: the assistant that runs conversations
//   - BASE_URL: root URL of the task API
package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jordan-barrett-jm/telegram-todo-bot-v2/internal/config"
	"github.com/jordan-barrett-jm/telegram-todo-bot-v2/internal/observability"
)

// Build information, set with:
//
//	go build -ldflags "-X main.version=v1.0.0 -X main.commit=$(git rev-parse HEAD) -X main.date=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var configPath string

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := buildRootCmd().Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

// buildRootCmd creates the root command with all subcommands attached.
func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "taskbot",
		Short: "Telegram task list bot backed by an OpenAI assistant",
		Long: `taskbot answers Telegram messages with an OpenAI assistant that can read
and change the chat's task list through the task API.

Text, photos, image documents and voice notes are accepted.`,
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "",
		"Path to the configuration file (default taskbot.yaml, or TASKBOT_CONFIG)")

	rootCmd.AddCommand(
		buildServeCmd(),
		buildMigrateCmd(),
		buildAskCmd(),
		buildThreadsCmd(),
		buildTasksCmd(),
		buildAssistantCmd(),
		buildConfigCmd(),
		buildVersionCmd(),
	)
	return rootCmd
}

// resolveConfigPath picks the config file to load. The default file is
// optional: when it does not exist the configuration comes from the
// environment alone.
func resolveConfigPath(path string) string {
	path = strings.TrimSpace(path)
	if path == "" {
		path = strings.TrimSpace(os.Getenv("TASKBOT_CONFIG"))
	}
	if path == "" {
		if _, err := os.Stat(config.DefaultPath); err != nil {
			return ""
		}
		return config.DefaultPath
	}
	return path
}

// loadConfig loads the configuration, checks the sections the command needs
// and installs the configured logger as the default.
func loadConfig(sections ...config.Section) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(resolveConfigPath(configPath))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Require(sections...); err != nil {
		return nil, nil, err
	}
	logger := observability.NewLogger(observability.LogConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	slog.SetDefault(logger)
	return cfg, logger, nil
}
