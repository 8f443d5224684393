// Package assistant talks to the remote conversational assistant: threads,
// messages, streamed runs, tool output submission and file uploads.
package assistant

import (
	"context"
	"strings"
)

// RunStatus is the lifecycle state of a remote run.
type RunStatus string

const (
	StatusQueued         RunStatus = "queued"
	StatusInProgress     RunStatus = "in_progress"
	StatusRequiresAction RunStatus = "requires_action"
	StatusCancelling     RunStatus = "cancelling"
	StatusCompleted      RunStatus = "completed"
	StatusFailed         RunStatus = "failed"
	StatusCancelled      RunStatus = "cancelled"
	StatusExpired        RunStatus = "expired"
	StatusIncomplete     RunStatus = "incomplete"
)

// Active reports whether a run in this state will still change on its own
// or is waiting for the caller.
func (s RunStatus) Active() bool {
	switch s {
	case StatusQueued, StatusInProgress, StatusRequiresAction, StatusCancelling:
		return true
	default:
		return false
	}
}

// Terminal reports whether the run has finished.
func (s RunStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled, StatusExpired, StatusIncomplete:
		return true
	default:
		return false
	}
}

// ToolCall is one function invocation requested by the assistant.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string // JSON object
}

// ToolOutput answers exactly one ToolCall.
type ToolOutput struct {
	CallID string `json:"tool_call_id"`
	Output string `json:"output"`
}

// Run is a snapshot of a remote run.
type Run struct {
	ID       string
	ThreadID string
	Status   RunStatus

	// RequiredCalls lists the calls the run is waiting on when Status is
	// requires_action.
	RequiredCalls []ToolCall

	// LastError is the remote failure description, if any.
	LastError string
}

// PartType identifies a message content part.
type PartType string

const (
	PartText      PartType = "text"
	PartImageFile PartType = "image_file"
)

// ContentPart is one element of a multi-part message.
type ContentPart struct {
	Type   PartType
	Text   string
	FileID string
}

// MessageContent is the body of a user message: plain text or an ordered
// list of parts.
type MessageContent struct {
	Parts []ContentPart
}

// Text returns a single text part message.
func Text(s string) MessageContent {
	return MessageContent{Parts: []ContentPart{{Type: PartText, Text: s}}}
}

// WithImage appends an uploaded image reference.
func (m MessageContent) WithImage(fileID string) MessageContent {
	parts := make([]ContentPart, 0, len(m.Parts)+1)
	parts = append(parts, m.Parts...)
	parts = append(parts, ContentPart{Type: PartImageFile, FileID: fileID})
	return MessageContent{Parts: parts}
}

// IsPlainText reports whether the content is text only.
func (m MessageContent) IsPlainText() bool {
	for _, p := range m.Parts {
		if p.Type != PartText {
			return false
		}
	}
	return true
}

// PlainText joins the text parts.
func (m MessageContent) PlainText() string {
	var sb strings.Builder
	for _, p := range m.Parts {
		if p.Type != PartText || p.Text == "" {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(p.Text)
	}
	return sb.String()
}

// Empty reports whether there is nothing to send.
func (m MessageContent) Empty() bool {
	for _, p := range m.Parts {
		if p.Type == PartImageFile && p.FileID != "" {
			return false
		}
		if p.Type == PartText && strings.TrimSpace(p.Text) != "" {
			return false
		}
	}
	return true
}

// Message is a thread message flattened to its text.
type Message struct {
	ID    string
	Role  string
	RunID string
	Text  string
}

// StreamListener receives events from a streaming call. The transport calls
// the hooks synchronously, in stream order, from the goroutine that made the
// streaming call.
type StreamListener interface {
	// OnTextDelta is called for each fragment of assistant text.
	OnTextDelta(runID, text string)

	// OnToolCall is called once for each complete tool call request.
	OnToolCall(runID string, call ToolCall)

	// OnSegmentDone is called when the run pauses or finishes and the
	// stream is about to end.
	OnSegmentDone(runID string, status RunStatus)
}

// RunAttacher is implemented by listeners that want to learn the run id as
// soon as the stream carries it, before any text or tool calls.
type RunAttacher interface {
	OnRunAttached(runID string)
}

// Service is the assistant protocol used by the run orchestrator.
type Service interface {
	CreateThread(ctx context.Context) (string, error)

	// CreateMessage appends a user message and returns its id.
	CreateMessage(ctx context.Context, threadID string, content MessageContent) (string, error)

	// StartRunStream starts a run and blocks until its stream ends.
	StartRunStream(ctx context.Context, threadID, assistantID string, listener StreamListener) error

	RetrieveRun(ctx context.Context, threadID, runID string) (Run, error)

	// SubmitToolOutputsStream resumes a paused run and blocks until the
	// resumed stream ends.
	SubmitToolOutputsStream(ctx context.Context, threadID, runID string, outputs []ToolOutput, listener StreamListener) error

	CancelRun(ctx context.Context, threadID, runID string) error

	// ListMessages returns up to limit messages, most recent first.
	ListMessages(ctx context.Context, threadID string, limit int) ([]Message, error)
}
