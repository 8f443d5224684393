package orchestrator

import (
	"context"
	"errors"
	"sync"

	"github.com/jordan-barrett-jm/telegram-todo-bot-v2/internal/assistant"
)

// fakeService scripts the assistant protocol. RetrieveRun pops statuses in
// order and repeats the last one.
type fakeService struct {
	mu sync.Mutex

	runID    string
	statuses []assistant.Run
	start    func(l assistant.StreamListener) error
	submit   func(outputs []assistant.ToolOutput, l assistant.StreamListener) error
	reply    string
	retrErr  error

	messages  []assistant.MessageContent
	submitted [][]assistant.ToolOutput
	cancelled []string
	polls     int
}

func (f *fakeService) CreateThread(context.Context) (string, error) {
	return "thread_new", nil
}

func (f *fakeService) CreateMessage(_ context.Context, _ string, content assistant.MessageContent) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, content)
	return "msg_user", nil
}

func (f *fakeService) StartRunStream(_ context.Context, _, _ string, l assistant.StreamListener) error {
	if f.start != nil {
		return f.start(l)
	}
	l.(assistant.RunAttacher).OnRunAttached(f.runID)
	l.OnSegmentDone(f.runID, assistant.StatusCompleted)
	return nil
}

func (f *fakeService) RetrieveRun(_ context.Context, _, runID string) (assistant.Run, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.polls++
	if f.retrErr != nil {
		return assistant.Run{}, f.retrErr
	}
	if len(f.statuses) == 0 {
		return assistant.Run{ID: runID, Status: assistant.StatusCompleted}, nil
	}
	run := f.statuses[0]
	if len(f.statuses) > 1 {
		f.statuses = f.statuses[1:]
	}
	run.ID = runID
	return run, nil
}

func (f *fakeService) SubmitToolOutputsStream(_ context.Context, _, runID string, outputs []assistant.ToolOutput, l assistant.StreamListener) error {
	f.mu.Lock()
	f.submitted = append(f.submitted, outputs)
	f.mu.Unlock()
	if f.submit != nil {
		return f.submit(outputs, l)
	}
	l.OnSegmentDone(runID, assistant.StatusCompleted)
	return nil
}

func (f *fakeService) CancelRun(_ context.Context, _, runID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = append(f.cancelled, runID)
	return nil
}

func (f *fakeService) ListMessages(context.Context, string, int) ([]assistant.Message, error) {
	return []assistant.Message{{ID: "msg_reply", Role: "assistant", Text: f.reply}}, nil
}

func (f *fakeService) pollCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.polls
}

func (f *fakeService) cancelledRuns() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.cancelled...)
}

// pauseForTools returns a start function that attaches runID and pauses
// for calls.
func pauseForTools(runID string, calls ...assistant.ToolCall) func(assistant.StreamListener) error {
	return func(l assistant.StreamListener) error {
		l.(assistant.RunAttacher).OnRunAttached(runID)
		for _, c := range calls {
			l.OnToolCall(runID, c)
		}
		l.OnSegmentDone(runID, assistant.StatusRequiresAction)
		return nil
	}
}

type fakeDispatcher struct {
	mu    sync.Mutex
	err   error
	calls [][]assistant.ToolCall
}

func (d *fakeDispatcher) Dispatch(_ context.Context, _ string, calls []assistant.ToolCall) ([]assistant.ToolOutput, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, calls)
	if d.err != nil {
		return nil, d.err
	}
	out := make([]assistant.ToolOutput, len(calls))
	for i, c := range calls {
		out[i] = assistant.ToolOutput{CallID: c.ID, Output: "ok:" + c.Name}
	}
	return out, nil
}

var errBoom = errors.New("boom")
