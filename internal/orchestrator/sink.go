package orchestrator

import (
	"strings"
	"sync"

	"github.com/jordan-barrett-jm/telegram-todo-bot-v2/internal/assistant"
)

// EventSink collects the events of one streaming call: the run id, the tool
// calls the run is waiting on, and the text emitted so far. A new sink is
// used for every streaming call and is never shared between runs.
type EventSink struct {
	mu      sync.Mutex
	runID   string
	pending []assistant.ToolCall
	text    strings.Builder
	status  assistant.RunStatus

	done     chan struct{}
	doneOnce sync.Once
}

var (
	_ assistant.StreamListener = (*EventSink)(nil)
	_ assistant.RunAttacher    = (*EventSink)(nil)
)

// NewEventSink returns an empty sink.
func NewEventSink() *EventSink {
	return &EventSink{done: make(chan struct{})}
}

func (s *EventSink) OnRunAttached(runID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setRunLocked(runID)
}

func (s *EventSink) OnTextDelta(runID, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setRunLocked(runID)
	s.text.WriteString(text)
}

func (s *EventSink) OnToolCall(runID string, call assistant.ToolCall) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setRunLocked(runID)
	s.pending = append(s.pending, call)
}

func (s *EventSink) OnSegmentDone(runID string, status assistant.RunStatus) {
	s.mu.Lock()
	s.setRunLocked(runID)
	s.status = status
	s.mu.Unlock()
	s.doneOnce.Do(func() { close(s.done) })
}

func (s *EventSink) setRunLocked(runID string) {
	if runID != "" {
		s.runID = runID
	}
}

// RunID returns the last run id the stream reported.
func (s *EventSink) RunID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runID
}

// Drain returns the pending tool calls and empties the batch.
func (s *EventSink) Drain() []assistant.ToolCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.pending
	s.pending = nil
	return out
}

// Text returns the streamed text.
func (s *EventSink) Text() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.text.String()
}

// Status returns the status reported when the segment ended, or "" if it
// has not ended.
func (s *EventSink) Status() assistant.RunStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Done is closed when the stream reports the end of its segment.
func (s *EventSink) Done() <-chan struct{} {
	return s.done
}
