// Package observability wires structured logging, Prometheus metrics and
// OpenTelemetry tracing for taskbot.
//
// Logging is plain log/slog. NewLogger returns a *slog.Logger whose handler
// redacts secrets and copies correlation fields (request, conversation,
// thread and run ids) from the context onto every record:
//
//	logger := observability.NewLogger(observability.LogConfig{Level: "info", Format: "json"})
//	ctx = observability.WithConversationID(ctx, "42")
//	logger.InfoContext(ctx, "message received")
//
// Metrics are registered on a caller supplied prometheus.Registerer so tests
// can use an isolated registry. A nil *Metrics is valid and records nothing.
//
// Tracing is disabled unless an OTLP endpoint is configured.
package observability
