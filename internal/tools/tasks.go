package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jordan-barrett-jm/telegram-todo-bot-v2/internal/tasks"
)

// TaskAPI is the subset of the task API client the task tools use.
type TaskAPI interface {
	ListTasks(ctx context.Context, chatID string, completed *bool) ([]tasks.Task, error)
	GetTask(ctx context.Context, chatID string, id int64) (*tasks.Task, error)
	CreateTask(ctx context.Context, chatID string, req tasks.CreateTaskRequest) (*tasks.Task, error)
	UpdateTask(ctx context.Context, chatID string, id int64, req tasks.UpdateTaskRequest) (*tasks.Task, error)
	DeleteTask(ctx context.Context, chatID string, id int64) (*tasks.Task, error)
}

var _ TaskAPI = (*tasks.Client)(nil)

// List filters for get_tasks calls that do not pass "completed".
const (
	ListOpen      = "open"
	ListCompleted = "completed"
	ListAll       = "all"
)

// TaskTools returns the five task tools bound to api. defaultFilter decides
// what get_tasks lists when the assistant gives no filter.
func TaskTools(api TaskAPI, defaultFilter string) []Tool {
	return []Tool{
		&GetTasksTool{api: api, defaultFilter: defaultFilter},
		&GetTaskTool{api: api},
		&CreateTaskTool{api: api},
		&UpdateTaskTool{api: api},
		&DeleteTaskTool{api: api},
	}
}

// GetTasksTool lists the conversation's tasks.
type GetTasksTool struct {
	api           TaskAPI
	defaultFilter string
}

func (t *GetTasksTool) Name() string { return "get_tasks" }

func (t *GetTasksTool) Description() string {
	return "List the user's tasks. By default only tasks that are not completed are returned."
}

func (t *GetTasksTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"completed": {
				"type": "boolean",
				"description": "Return only completed (true) or only open (false) tasks"
			}
		}
	}`)
}

type getTasksInput struct {
	Completed *bool `json:"completed"`
}

func (t *GetTasksTool) Execute(ctx context.Context, chatID string, params json.RawMessage) (string, error) {
	var input getTasksInput
	if err := decodeParams(params, &input); err != nil {
		return "", err
	}
	filter := input.Completed
	if filter == nil {
		filter = defaultCompleted(t.defaultFilter)
	}
	list, err := t.api.ListTasks(ctx, chatID, filter)
	if err != nil {
		return "", err
	}
	if list == nil {
		list = []tasks.Task{}
	}
	return encodeResult(list)
}

func defaultCompleted(filter string) *bool {
	switch filter {
	case ListAll:
		return nil
	case ListCompleted:
		v := true
		return &v
	default:
		v := false
		return &v
	}
}

// GetTaskTool fetches one task.
type GetTaskTool struct {
	api TaskAPI
}

func (t *GetTaskTool) Name() string { return "get_task" }

func (t *GetTaskTool) Description() string {
	return "Get a single task by its ID."
}

func (t *GetTaskTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"task_id": {"type": "integer", "minimum": 1, "description": "ID of the task"}
		},
		"required": ["task_id"]
	}`)
}

type taskIDInput struct {
	TaskID int64 `json:"task_id"`
}

func (t *GetTaskTool) Execute(ctx context.Context, chatID string, params json.RawMessage) (string, error) {
	var input taskIDInput
	if err := decodeParams(params, &input); err != nil {
		return "", err
	}
	task, err := t.api.GetTask(ctx, chatID, input.TaskID)
	if err != nil {
		return "", err
	}
	return encodeResult(task)
}

// CreateTaskTool adds a task.
type CreateTaskTool struct {
	api TaskAPI
}

func (t *CreateTaskTool) Name() string { return "create_task" }

func (t *CreateTaskTool) Description() string {
	return "Create a new task for the user."
}

func (t *CreateTaskTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"title": {"type": "string", "minLength": 1, "description": "Short title of the task"},
			"description": {"type": ["string", "null"], "description": "Optional longer description"},
			"completed": {"type": "boolean", "description": "Whether the task starts out completed"}
		},
		"required": ["title"]
	}`)
}

type createTaskInput struct {
	Title       string  `json:"title"`
	Description *string `json:"description"`
	Completed   *bool   `json:"completed"`
}

func (t *CreateTaskTool) Execute(ctx context.Context, chatID string, params json.RawMessage) (string, error) {
	var input createTaskInput
	if err := decodeParams(params, &input); err != nil {
		return "", err
	}
	task, err := t.api.CreateTask(ctx, chatID, tasks.CreateTaskRequest{
		Title:       input.Title,
		Description: input.Description,
		Completed:   input.Completed,
	})
	if err != nil {
		return "", err
	}
	return encodeResult(task)
}

// UpdateTaskTool changes fields of a task. Fields the assistant leaves out
// are not sent.
type UpdateTaskTool struct {
	api TaskAPI
}

func (t *UpdateTaskTool) Name() string { return "update_task" }

func (t *UpdateTaskTool) Description() string {
	return "Update the title, description or completion state of a task. Omitted fields are left unchanged."
}

func (t *UpdateTaskTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"task_id": {"type": "integer", "minimum": 1, "description": "ID of the task"},
			"title": {"type": "string", "minLength": 1},
			"description": {"type": ["string", "null"]},
			"completed": {"type": "boolean"}
		},
		"required": ["task_id"]
	}`)
}

type updateTaskInput struct {
	TaskID      int64   `json:"task_id"`
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Completed   *bool   `json:"completed"`
}

func (t *UpdateTaskTool) Execute(ctx context.Context, chatID string, params json.RawMessage) (string, error) {
	var input updateTaskInput
	if err := decodeParams(params, &input); err != nil {
		return "", err
	}
	task, err := t.api.UpdateTask(ctx, chatID, input.TaskID, tasks.UpdateTaskRequest{
		Title:       input.Title,
		Description: input.Description,
		Completed:   input.Completed,
	})
	if err != nil {
		return "", err
	}
	return encodeResult(task)
}

// DeleteTaskTool removes a task.
type DeleteTaskTool struct {
	api TaskAPI
}

func (t *DeleteTaskTool) Name() string { return "delete_task" }

func (t *DeleteTaskTool) Description() string {
	return "Delete a task by its ID."
}

func (t *DeleteTaskTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"task_id": {"type": "integer", "minimum": 1, "description": "ID of the task"}
		},
		"required": ["task_id"]
	}`)
}

func (t *DeleteTaskTool) Execute(ctx context.Context, chatID string, params json.RawMessage) (string, error) {
	var input taskIDInput
	if err := decodeParams(params, &input); err != nil {
		return "", err
	}
	task, err := t.api.DeleteTask(ctx, chatID, input.TaskID)
	if err != nil {
		return "", err
	}
	return encodeResult(task)
}

func decodeParams(params json.RawMessage, v any) error {
	if len(params) == 0 {
		params = json.RawMessage("{}")
	}
	if err := json.Unmarshal(params, v); err != nil {
		return fmt.Errorf("parse arguments: %w", err)
	}
	return nil
}

func encodeResult(v any) (string, error) {
	switch r := v.(type) {
	case nil:
		return "", errors.New("empty response from task API")
	case *tasks.Task:
		if r == nil {
			return "", errors.New("empty response from task API")
		}
	}
	out, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode result: %w", err)
	}
	return string(out), nil
}
