// Package orchestrator drives assistant runs to completion: it starts the run,
// executes the tool calls the run pauses for, submits their outputs and
// returns the assistant's final reply.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jordan-barrett-jm/telegram-todo-bot-v2/internal/assistant"
	"github.com/jordan-barrett-jm/telegram-todo-bot-v2/internal/backoff"
	"github.com/jordan-barrett-jm/telegram-todo-bot-v2/internal/observability"
)

const (
	defaultPollInterval     = time.Second
	defaultMaxWait          = 5 * time.Minute
	defaultRetrieveAttempts = 3
	cancelTimeout           = 10 * time.Second
)

// Dispatcher executes a batch of tool calls for a conversation.
type Dispatcher interface {
	Dispatch(ctx context.Context, conversationID string, calls []assistant.ToolCall) ([]assistant.ToolOutput, error)
}

// Config configures an Orchestrator.
type Config struct {
	Service     assistant.Service
	Dispatcher  Dispatcher
	AssistantID string

	// PollPolicy spaces status polls while the run is queued or in
	// progress. Defaults to a fixed 1s interval.
	PollPolicy backoff.Policy

	// MaxWait bounds a whole run. When it passes the run is cancelled and
	// reported as expired. Defaults to 5m.
	MaxWait time.Duration

	// MaxPolls bounds the number of status polls. Zero means unlimited.
	MaxPolls int

	// RetrievePolicy and RetrieveAttempts govern retries of a failed
	// status poll. Defaults to backoff.DefaultRetryPolicy and 3 attempts.
	RetrievePolicy   backoff.Policy
	RetrieveAttempts int

	Logger  *slog.Logger
	Metrics *observability.Metrics
	Tracer  *observability.Tracer
}

// Orchestrator runs one message through an assistant run at a time per call.
// It keeps no per-run state between calls, so one Orchestrator serves any
// number of conversations concurrently.
type Orchestrator struct {
	service          assistant.Service
	dispatcher       Dispatcher
	assistantID      string
	pollPolicy       backoff.Policy
	maxWait          time.Duration
	maxPolls         int
	retrievePolicy   backoff.Policy
	retrieveAttempts int
	logger           *slog.Logger
	metrics          *observability.Metrics
	tracer           *observability.Tracer
}

// New validates cfg and returns an Orchestrator.
func New(cfg Config) (*Orchestrator, error) {
	if cfg.Service == nil {
		return nil, errors.New("orchestrator: assistant service is required")
	}
	if cfg.Dispatcher == nil {
		return nil, errors.New("orchestrator: tool dispatcher is required")
	}
	if strings.TrimSpace(cfg.AssistantID) == "" {
		return nil, errors.New("orchestrator: assistant id is required")
	}
	if cfg.PollPolicy.Initial <= 0 {
		cfg.PollPolicy = backoff.Fixed(defaultPollInterval)
	}
	if cfg.MaxWait <= 0 {
		cfg.MaxWait = defaultMaxWait
	}
	if cfg.RetrievePolicy.Initial <= 0 {
		cfg.RetrievePolicy = backoff.DefaultRetryPolicy()
	}
	if cfg.RetrieveAttempts <= 0 {
		cfg.RetrieveAttempts = defaultRetrieveAttempts
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		service:          cfg.Service,
		dispatcher:       cfg.Dispatcher,
		assistantID:      cfg.AssistantID,
		pollPolicy:       cfg.PollPolicy,
		maxWait:          cfg.MaxWait,
		maxPolls:         cfg.MaxPolls,
		retrievePolicy:   cfg.RetrievePolicy,
		retrieveAttempts: cfg.RetrieveAttempts,
		logger:           logger.With("component", "orchestrator"),
		metrics:          cfg.Metrics,
		tracer:           cfg.Tracer,
	}, nil
}

// runState is the state of one orchestration. It lives on the stack of Run.
type runState struct {
	conversationID string
	threadID       string
	runID          string
	pending        []assistant.ToolCall
}

// Run posts content to threadID, drives the resulting run to a terminal
// status and returns the text of the thread's most recent message.
//
// Tool calls are executed on behalf of conversationID. A run that ends in any
// status other than completed returns *RunTerminalError. A failure while
// executing tools or submitting their outputs cancels the run and returns
// *ToolExecutionError. Any other failure after the run id is known also
// cancels the run before returning.
func (o *Orchestrator) Run(ctx context.Context, conversationID, threadID string, content assistant.MessageContent) (reply string, err error) {
	start := time.Now()
	ctx = observability.WithThreadID(ctx, threadID)
	ctx, span := o.tracer.Start(ctx, "orchestrator.run", "thread_id", threadID, "conversation_id", conversationID)
	defer span.End()

	st := &runState{conversationID: conversationID, threadID: threadID}
	defer func() {
		st.runID = ""
		st.pending = nil
		observability.RecordError(span, err)
		o.metrics.RunFinished(outcomeLabel(err), time.Since(start))
	}()

	if _, err := o.service.CreateMessage(ctx, threadID, content); err != nil {
		return "", fmt.Errorf("create message: %w", err)
	}

	runCtx, cancel := context.WithTimeout(ctx, o.maxWait)
	defer cancel()

	sink := NewEventSink()
	streamErr := o.service.StartRunStream(runCtx, threadID, o.assistantID, sink)
	st.absorb(sink)
	if streamErr != nil {
		if st.runID != "" && runCtx.Err() != nil {
			return "", o.abandon(ctx, runCtx, st)
		}
		// A run left active blocks new messages on the thread.
		if st.runID != "" {
			o.cancelRun(ctx, st)
		}
		return "", fmt.Errorf("start run: %w", streamErr)
	}
	if st.runID == "" {
		return "", errors.New("run stream ended without reporting a run id")
	}
	o.logger.DebugContext(ctx, "run started", "run_id", st.runID)

	polls := 0
	sleeps := 0
	for {
		if runCtx.Err() != nil || (o.maxPolls > 0 && polls >= o.maxPolls) {
			return "", o.abandon(ctx, runCtx, st)
		}

		run, err := o.retrieve(runCtx, st)
		polls++
		o.metrics.RunPolled()
		if err != nil {
			if runCtx.Err() != nil {
				continue
			}
			o.cancelRun(ctx, st)
			return "", fmt.Errorf("retrieve run %s: %w", st.runID, err)
		}

		switch {
		case run.Status == assistant.StatusRequiresAction:
			if err := o.handleRequiredAction(runCtx, st, run); err != nil {
				if ctx.Err() == nil && runCtx.Err() != nil {
					return "", o.abandon(ctx, runCtx, st)
				}
				o.cancelRun(ctx, st)
				return "", &ToolExecutionError{RunID: st.runID, Err: err}
			}
			sleeps = 0

		case run.Status.Active():
			sleeps++
			// An interrupted sleep is handled at the top of the loop.
			_ = backoff.SleepAttempt(runCtx, o.pollPolicy, sleeps)

		case run.Status == assistant.StatusCompleted:
			reply, err := o.latestReply(ctx, threadID)
			if err != nil {
				return "", err
			}
			o.logger.InfoContext(ctx, "run completed",
				"run_id", st.runID,
				"polls", polls,
				"duration", time.Since(start),
			)
			return reply, nil

		default:
			o.logger.WarnContext(ctx, "run ended without completing",
				"run_id", st.runID,
				"status", string(run.Status),
				"last_error", run.LastError,
			)
			return "", &RunTerminalError{RunID: st.runID, Status: run.Status, LastError: run.LastError}
		}
	}
}

func (o *Orchestrator) retrieve(ctx context.Context, st *runState) (assistant.Run, error) {
	return backoff.Retry(ctx, o.retrievePolicy, o.retrieveAttempts, func(ctx context.Context, attempt int) (assistant.Run, error) {
		return o.service.RetrieveRun(ctx, st.threadID, st.runID)
	})
}

// handleRequiredAction executes the pending batch and resumes the run with
// its outputs.
func (o *Orchestrator) handleRequiredAction(ctx context.Context, st *runState, run assistant.Run) error {
	calls := st.pending
	st.pending = nil
	if len(calls) == 0 {
		calls = run.RequiredCalls
	}
	if len(calls) == 0 {
		return errors.New("run requires action but no tool calls are pending")
	}

	o.logger.DebugContext(ctx, "dispatching tool calls", "run_id", st.runID, "calls", len(calls))
	outputs, err := o.dispatcher.Dispatch(ctx, st.conversationID, calls)
	if err != nil {
		return err
	}

	sink := NewEventSink()
	err = o.service.SubmitToolOutputsStream(ctx, st.threadID, st.runID, outputs, sink)
	st.absorb(sink)
	if err != nil {
		return err
	}
	return nil
}

// absorb takes the run id and pending calls reported by a finished stream.
func (st *runState) absorb(sink *EventSink) {
	if id := sink.RunID(); id != "" {
		st.runID = id
	}
	st.pending = append(st.pending, sink.Drain()...)
}

// abandon cancels a run that ran out of time or polls. If the caller's own
// context ended, that error is returned instead of an expiry.
func (o *Orchestrator) abandon(ctx, runCtx context.Context, st *runState) error {
	if st.runID != "" {
		o.cancelRun(ctx, st)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	o.logger.WarnContext(ctx, "run abandoned", "run_id", st.runID, "reason", abandonReason(runCtx))
	return &RunTerminalError{RunID: st.runID, Status: assistant.StatusExpired, Timeout: true}
}

func abandonReason(runCtx context.Context) string {
	if runCtx.Err() != nil {
		return "max_wait"
	}
	return "max_polls"
}

// cancelRun cancels the remote run even when ctx has already ended.
func (o *Orchestrator) cancelRun(ctx context.Context, st *runState) {
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cancelTimeout)
	defer cancel()
	if err := o.service.CancelRun(cctx, st.threadID, st.runID); err != nil {
		o.logger.WarnContext(ctx, "cancel run failed", "run_id", st.runID, "error", err)
		return
	}
	o.logger.InfoContext(ctx, "run cancelled", "run_id", st.runID)
}

func (o *Orchestrator) latestReply(ctx context.Context, threadID string) (string, error) {
	msgs, err := o.service.ListMessages(ctx, threadID, 1)
	if err != nil {
		return "", fmt.Errorf("list messages: %w", err)
	}
	if len(msgs) == 0 {
		return "", errors.New("thread has no messages")
	}
	return msgs[0].Text, nil
}

func outcomeLabel(err error) string {
	if err == nil {
		return string(assistant.StatusCompleted)
	}
	var terminal *RunTerminalError
	if errors.As(err, &terminal) {
		return string(terminal.Status)
	}
	var toolErr *ToolExecutionError
	if errors.As(err, &toolErr) {
		return "tool_error"
	}
	return "error"
}
