package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/jordan-barrett-jm/telegram-todo-bot-v2/internal/assistant"
	"github.com/jordan-barrett-jm/telegram-todo-bot-v2/internal/backoff"
	"github.com/jordan-barrett-jm/telegram-todo-bot-v2/internal/config"
	"github.com/jordan-barrett-jm/telegram-todo-bot-v2/internal/gateway"
	"github.com/jordan-barrett-jm/telegram-todo-bot-v2/internal/media"
	"github.com/jordan-barrett-jm/telegram-todo-bot-v2/internal/observability"
	"github.com/jordan-barrett-jm/telegram-todo-bot-v2/internal/orchestrator"
	"github.com/jordan-barrett-jm/telegram-todo-bot-v2/internal/tasks"
	"github.com/jordan-barrett-jm/telegram-todo-bot-v2/internal/threads"
	"github.com/jordan-barrett-jm/telegram-todo-bot-v2/internal/tools"
)

// app holds the wired components shared by serve and ask.
type app struct {
	cfg    *config.Config
	logger *slog.Logger

	registry *prometheus.Registry
	metrics  *observability.Metrics
	tracer   *observability.Tracer

	assistant *assistant.Client
	store     *threads.Store
	gateway   *gateway.Service

	shutdownTracer func(context.Context) error
}

func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := observability.NewMetrics(registry)

	tracer, shutdownTracer, err := observability.NewTracer(ctx, observability.TraceConfig{
		ServiceName:    "taskbot",
		ServiceVersion: version,
		Environment:    cfg.Observability.Tracing.Environment,
		Endpoint:       cfg.Observability.Tracing.Endpoint,
		SamplingRate:   cfg.Observability.Tracing.SamplingRate,
		EnableInsecure: cfg.Observability.Tracing.Insecure,
	})
	if err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}

	client, err := newAssistantClient(cfg, logger)
	if err != nil {
		return nil, err
	}

	store, err := openStore(ctx, cfg, logger, client, metrics)
	if err != nil {
		return nil, err
	}

	registryTools, err := tools.NewRegistry(tools.TaskTools(newTaskClient(cfg), cfg.Tasks.DefaultListFilter)...)
	if err != nil {
		store.Close()
		return nil, err
	}
	dispatcher := tools.NewDispatcher(registryTools, tools.DispatcherConfig{
		CallTimeout: cfg.Run.ToolTimeout,
		Concurrency: cfg.Run.ToolConcurrency,
		Logger:      logger,
		Metrics:     metrics,
		Tracer:      tracer,
	})

	orch, err := orchestrator.New(orchestrator.Config{
		Service:     client,
		Dispatcher:  dispatcher,
		AssistantID: cfg.OpenAI.AssistantID,
		PollPolicy: backoff.Policy{
			Initial: cfg.Run.PollInterval,
			Max:     cfg.Run.PollMaxInterval,
			Factor:  cfg.Run.PollFactor,
		},
		MaxWait:  cfg.Run.MaxWait,
		MaxPolls: cfg.Run.MaxPolls,
		Logger:   logger,
		Metrics:  metrics,
		Tracer:   tracer,
	})
	if err != nil {
		store.Close()
		return nil, err
	}

	transcriber, err := media.NewTranscriber(media.TranscriberConfig{
		API:      client.API(),
		Model:    cfg.OpenAI.TranscriptionModel,
		Language: cfg.OpenAI.TranscriptionLanguage,
		Logger:   logger,
	})
	if err != nil {
		store.Close()
		return nil, err
	}

	svc, err := gateway.New(gateway.Config{
		Threads:     store,
		Runner:      orch,
		Uploader:    client,
		Transcriber: transcriber,
		Logger:      logger,
		Metrics:     metrics,
		Tracer:      tracer,
	})
	if err != nil {
		store.Close()
		return nil, err
	}

	return &app{
		cfg:            cfg,
		logger:         logger,
		registry:       registry,
		metrics:        metrics,
		tracer:         tracer,
		assistant:      client,
		store:          store,
		gateway:        svc,
		shutdownTracer: shutdownTracer,
	}, nil
}

// Close releases the store and flushes pending spans.
func (a *app) Close(ctx context.Context) error {
	var errs []error
	if err := a.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close thread store: %w", err))
	}
	if a.shutdownTracer != nil {
		if err := a.shutdownTracer(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown tracer: %w", err))
		}
	}
	return errors.Join(errs...)
}

func newAssistantClient(cfg *config.Config, logger *slog.Logger) (*assistant.Client, error) {
	return assistant.NewClient(assistant.Config{
		APIKey:         cfg.OpenAI.APIKey,
		BaseURL:        cfg.OpenAI.BaseURL,
		Organization:   cfg.OpenAI.Organization,
		RequestTimeout: cfg.OpenAI.RequestTimeout,
		Logger:         logger,
	})
}

func newTaskClient(cfg *config.Config) *tasks.Client {
	return tasks.NewClient(tasks.Config{
		BaseURL: cfg.Tasks.BaseURL,
		Timeout: cfg.Tasks.Timeout,
	})
}

// openStore opens the thread store. creator may be nil for commands that
// never create threads.
func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger, creator threads.ThreadCreator, metrics *observability.Metrics) (*threads.Store, error) {
	store, err := threads.Open(ctx, threads.Config{
		Driver:    cfg.Threads.Driver,
		DSN:       cfg.Threads.DSN,
		Allowlist: threads.NewAllowlist(cfg.Auth.AllowedChats),
		Creator:   creator,
		Logger:    logger,
		Metrics:   metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("open thread store: %w", err)
	}
	return store, nil
}
