package orchestrator

import (
	"fmt"

	"github.com/jordan-barrett-jm/telegram-todo-bot-v2/internal/assistant"
)

// ToolExecutionError means dispatching tool calls or submitting their
// outputs failed. The run was cancelled before this error was returned.
type ToolExecutionError struct {
	RunID string
	Err   error
}

func (e *ToolExecutionError) Error() string {
	return fmt.Sprintf("tool execution failed for run %s: %v", e.RunID, e.Err)
}

func (e *ToolExecutionError) Unwrap() error {
	return e.Err
}

// RunTerminalError means the run ended in a status other than completed.
type RunTerminalError struct {
	RunID     string
	Status    assistant.RunStatus
	LastError string

	// Timeout is set when the orchestrator gave up waiting and expired the
	// run itself.
	Timeout bool
}

func (e *RunTerminalError) Error() string {
	switch {
	case e.Timeout:
		return fmt.Sprintf("run %s did not finish in time", e.RunID)
	case e.LastError != "":
		return fmt.Sprintf("run %s ended with status %s: %s", e.RunID, e.Status, e.LastError)
	default:
		return fmt.Sprintf("run %s ended with status %s", e.RunID, e.Status)
	}
}
