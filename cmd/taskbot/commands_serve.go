package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/jordan-barrett-jm/telegram-todo-bot-v2/internal/channels/telegram"
	"github.com/jordan-barrett-jm/telegram-todo-bot-v2/internal/config"
)

// buildServeCmd creates the "serve" command that runs the bot.
func buildServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the Telegram bot",
		Long: `Run the Telegram bot until SIGINT or SIGTERM.

The server will:
1. Load configuration and open the thread store
2. Serve /metrics and /healthz when observability.metrics_addr is set
3. Watch the config file and apply allow-list changes without a restart
4. Receive Telegram updates by long polling or webhook

In-flight messages are answered before the process exits.`,
		Example: `  # Start with the default config
  taskbot serve

  # Start with a specific file
  taskbot serve --config /etc/taskbot/taskbot.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
}

func runServe(ctx context.Context) error {
	cfg, logger, err := loadConfig(config.SectionTelegram, config.SectionAssistant, config.SectionTasks, config.SectionAuth)
	if err != nil {
		return err
	}
	logger.Info("starting taskbot",
		"version", version,
		"commit", commit,
		"telegram_mode", cfg.Telegram.Mode,
		"thread_store", cfg.Threads.Driver,
		"allowed_chats", len(cfg.Auth.AllowedChats),
	)

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, closeCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer closeCancel()
		if err := a.Close(closeCtx); err != nil {
			logger.Warn("shutdown incomplete", "error", err)
		}
	}()

	var metricsServer *http.Server
	if cfg.Observability.MetricsAddr != "" {
		metricsServer = &http.Server{
			Addr:              cfg.Observability.MetricsAddr,
			Handler:           newOpsHandler(a.registry),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server failed", "error", err)
			}
		}()
		logger.Info("metrics server listening", "addr", cfg.Observability.MetricsAddr)
	}

	if path := resolveConfigPath(configPath); path != "" {
		go watchAllowlist(ctx, path, a, logger)
	}

	adapter, err := telegram.NewAdapter(telegram.Config{
		Token:         cfg.Telegram.Token,
		Mode:          telegram.Mode(cfg.Telegram.Mode),
		WebhookURL:    cfg.Telegram.WebhookURL,
		WebhookListen: cfg.Telegram.WebhookListen,
		WebhookSecret: cfg.Telegram.WebhookSecret,
		Logger:        logger,
	}, a.gateway)
	if err != nil {
		return err
	}

	runErr := adapter.Run(ctx)
	logger.Info("shutting down")

	if metricsServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("metrics server shutdown failed", "error", err)
		}
	}
	if runErr != nil {
		return fmt.Errorf("telegram: %w", runErr)
	}
	return nil
}

// newOpsHandler serves Prometheus metrics and a liveness probe.
func newOpsHandler(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	return mux
}

// watchAllowlist applies auth.allowed_chats from every reload of the config
// file. Other settings need a restart.
func watchAllowlist(ctx context.Context, path string, a *app, logger *slog.Logger) {
	err := config.Watch(ctx, path, logger, func(cfg *config.Config) {
		a.store.Allowlist().Replace(cfg.Auth.AllowedChats)
	})
	if err != nil && ctx.Err() == nil {
		logger.Error("config watch stopped", "error", err)
	}
}
