package gateway

import (
	"errors"
	"fmt"

	"github.com/jordan-barrett-jm/telegram-todo-bot-v2/internal/orchestrator"
	"github.com/jordan-barrett-jm/telegram-todo-bot-v2/internal/threads"
)

// Replies sent in place of an assistant answer.
const (
	ReplyUnauthorized = "You are not allowed to use this bot"
	ReplyGeneric      = "Sorry, there was an error processing your request."
	ReplyToolFailure  = "Sorry, something went wrong while running your tasks. Please try again."
	ReplyEmpty        = "Please send a text, photo or voice message."
)

// UserMessage reduces err to a reply safe to show in the chat.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, threads.ErrUnauthorized) {
		return ReplyUnauthorized
	}
	if errors.Is(err, ErrEmptyMessage) {
		return ReplyEmpty
	}
	var toolErr *orchestrator.ToolExecutionError
	if errors.As(err, &toolErr) {
		return ReplyToolFailure
	}
	var runErr *orchestrator.RunTerminalError
	if errors.As(err, &runErr) {
		return fmt.Sprintf("Sorry, I couldn't finish that request (run %s).", runErr.Status)
	}
	return ReplyGeneric
}

// Outcome is the metrics label for the result of one message.
func Outcome(err error) string {
	if err == nil {
		return "replied"
	}
	var storageErr *threads.StorageError
	var toolErr *orchestrator.ToolExecutionError
	var runErr *orchestrator.RunTerminalError
	switch {
	case errors.Is(err, threads.ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrEmptyMessage):
		return "empty"
	case errors.As(err, &storageErr):
		return "storage_error"
	case errors.As(err, &toolErr):
		return "tool_error"
	case errors.As(err, &runErr):
		return "run_error"
	default:
		return "error"
	}
}
