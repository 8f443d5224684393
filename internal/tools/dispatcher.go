package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/sourcegraph/conc/panics"
	"github.com/sourcegraph/conc/pool"

	"github.com/jordan-barrett-jm/telegram-todo-bot-v2/internal/assistant"
	"github.com/jordan-barrett-jm/telegram-todo-bot-v2/internal/observability"
)

const (
	defaultCallTimeout = 30 * time.Second
	defaultConcurrency = 8
)

// DispatchError means the batch as a whole could not be completed because
// its context ended.
type DispatchError struct {
	Calls int
	Err   error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("dispatch of %d tool calls aborted: %v", e.Calls, e.Err)
}

func (e *DispatchError) Unwrap() error {
	return e.Err
}

// DispatcherConfig configures a Dispatcher.
type DispatcherConfig struct {
	// CallTimeout bounds each call. Defaults to 30s.
	CallTimeout time.Duration

	// Concurrency caps how many calls of one batch run at once. Defaults to 8.
	Concurrency int

	Logger  *slog.Logger
	Metrics *observability.Metrics
	Tracer  *observability.Tracer
}

// Dispatcher runs batches of tool calls.
type Dispatcher struct {
	registry    *Registry
	callTimeout time.Duration
	concurrency int
	logger      *slog.Logger
	metrics     *observability.Metrics
	tracer      *observability.Tracer
}

// NewDispatcher creates a Dispatcher over registry.
func NewDispatcher(registry *Registry, cfg DispatcherConfig) *Dispatcher {
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = defaultCallTimeout
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		registry:    registry,
		callTimeout: cfg.CallTimeout,
		concurrency: cfg.Concurrency,
		logger:      logger.With("component", "tools"),
		metrics:     cfg.Metrics,
		tracer:      cfg.Tracer,
	}
}

// Registry returns the dispatcher's tools.
func (d *Dispatcher) Registry() *Registry {
	return d.registry
}

// Dispatch runs calls concurrently on behalf of conversationID and returns
// one output per call, in input order. A failing call never fails the batch:
// its error becomes its output text. Only an ended ctx returns an error, as
// *DispatchError.
func (d *Dispatcher) Dispatch(ctx context.Context, conversationID string, calls []assistant.ToolCall) ([]assistant.ToolOutput, error) {
	if err := ctx.Err(); err != nil {
		return nil, &DispatchError{Calls: len(calls), Err: err}
	}

	ctx, span := d.tracer.Start(ctx, "tools.dispatch", "calls", len(calls), "conversation_id", conversationID)
	defer span.End()

	outputs := make([]assistant.ToolOutput, len(calls))
	p := pool.New().WithMaxGoroutines(d.concurrency)
	for i, call := range calls {
		p.Go(func() {
			outputs[i] = assistant.ToolOutput{
				CallID: call.ID,
				Output: d.execute(ctx, conversationID, call),
			}
		})
	}
	p.Wait()

	if err := ctx.Err(); err != nil {
		derr := &DispatchError{Calls: len(calls), Err: err}
		observability.RecordError(span, derr)
		return nil, derr
	}
	return outputs, nil
}

func (d *Dispatcher) execute(ctx context.Context, conversationID string, call assistant.ToolCall) string {
	start := time.Now()
	ctx, span := d.tracer.Start(ctx, "tools.call", "function", call.Name, "call_id", call.ID)
	defer span.End()

	output, err := d.run(ctx, conversationID, call)
	elapsed := time.Since(start)
	d.metrics.ToolCalled(call.Name, err != nil, elapsed)
	if err != nil {
		observability.RecordError(span, err)
		d.logger.WarnContext(ctx, "tool call failed",
			"function", call.Name,
			"call_id", call.ID,
			"duration", elapsed,
			"error", err,
		)
		return "error: " + err.Error()
	}
	d.logger.DebugContext(ctx, "tool call finished", "function", call.Name, "call_id", call.ID, "duration", elapsed)
	return output
}

func (d *Dispatcher) run(ctx context.Context, conversationID string, call assistant.ToolCall) (string, error) {
	tool, ok := d.registry.Get(call.Name)
	if !ok {
		return "", fmt.Errorf("unknown function %q", call.Name)
	}
	params := json.RawMessage(call.Arguments)
	if err := d.registry.Validate(call.Name, params); err != nil {
		return "", err
	}

	callCtx, cancel := context.WithTimeout(ctx, d.callTimeout)
	defer cancel()

	var (
		output string
		err    error
		pc     panics.Catcher
	)
	pc.Try(func() {
		output, err = tool.Execute(callCtx, conversationID, params)
	})
	if r := pc.Recovered(); r != nil {
		d.logger.ErrorContext(ctx, "tool call panicked", "function", call.Name, "panic", r.Value, "stack", string(r.Stack))
		return "", fmt.Errorf("tool %s panicked: %v", call.Name, r.Value)
	}
	if err != nil {
		if callCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
			return "", fmt.Errorf("timed out after %s: %w", d.callTimeout, err)
		}
		return "", err
	}
	return output, nil
}
