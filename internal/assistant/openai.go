package assistant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

const (
	defaultBaseURL = "https://api.openai.com/v1"
	betaHeader     = "assistants=v2"
)

// Config configures a Client.
type Config struct {
	APIKey       string
	BaseURL      string
	Organization string

	// RequestTimeout bounds the non-streaming calls. Streams are bounded
	// only by the caller's context.
	RequestTimeout time.Duration

	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Client implements Service on the OpenAI Assistants API. Plain calls go
// through go-openai; run streams and multi-part messages, which the SDK does
// not cover, are sent over HTTP directly.
type Client struct {
	api     *openai.Client
	http    *http.Client
	baseURL string
	apiKey  string
	org     string
	timeout time.Duration
	logger  *slog.Logger
}

var _ Service = (*Client)(nil)

// NewClient creates a Client.
func NewClient(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("openai api key is required")
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	oaCfg := openai.DefaultConfig(cfg.APIKey)
	oaCfg.BaseURL = baseURL
	oaCfg.OrgID = cfg.Organization
	oaCfg.HTTPClient = httpClient

	return &Client{
		api:     openai.NewClientWithConfig(oaCfg),
		http:    httpClient,
		baseURL: baseURL,
		apiKey:  cfg.APIKey,
		org:     cfg.Organization,
		timeout: cfg.RequestTimeout,
		logger:  logger.With("component", "assistant"),
	}, nil
}

// API exposes the underlying SDK client.
func (c *Client) API() *openai.Client {
	return c.api
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.timeout)
}

// CreateThread creates an empty thread.
func (c *Client) CreateThread(ctx context.Context) (string, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	thread, err := c.api.CreateThread(ctx, openai.ThreadRequest{})
	if err != nil {
		return "", fmt.Errorf("create thread: %w", err)
	}
	return thread.ID, nil
}

// CreateMessage appends a user message.
func (c *Client) CreateMessage(ctx context.Context, threadID string, content MessageContent) (string, error) {
	if content.Empty() {
		return "", errors.New("message content is empty")
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	if content.IsPlainText() {
		msg, err := c.api.CreateMessage(ctx, threadID, openai.MessageRequest{
			Role:    string(openai.ThreadMessageRoleUser),
			Content: content.PlainText(),
		})
		if err != nil {
			return "", fmt.Errorf("create message: %w", err)
		}
		return msg.ID, nil
	}

	parts := make([]map[string]any, 0, len(content.Parts))
	for _, p := range content.Parts {
		switch p.Type {
		case PartText:
			if strings.TrimSpace(p.Text) == "" {
				continue
			}
			parts = append(parts, map[string]any{"type": "text", "text": p.Text})
		case PartImageFile:
			parts = append(parts, map[string]any{
				"type":       "image_file",
				"image_file": map[string]string{"file_id": p.FileID},
			})
		}
	}
	body := map[string]any{"role": "user", "content": parts}

	var msg openai.Message
	if err := c.postJSON(ctx, "/threads/"+threadID+"/messages", body, &msg); err != nil {
		return "", fmt.Errorf("create message: %w", err)
	}
	return msg.ID, nil
}

// StartRunStream starts a streamed run of assistantID on threadID.
func (c *Client) StartRunStream(ctx context.Context, threadID, assistantID string, listener StreamListener) error {
	body := map[string]any{"assistant_id": assistantID, "stream": true}
	if err := c.stream(ctx, "/threads/"+threadID+"/runs", body, listener); err != nil {
		return fmt.Errorf("start run: %w", err)
	}
	return nil
}

// SubmitToolOutputsStream submits outputs and streams the resumed run.
func (c *Client) SubmitToolOutputsStream(ctx context.Context, threadID, runID string, outputs []ToolOutput, listener StreamListener) error {
	if outputs == nil {
		outputs = []ToolOutput{}
	}
	body := map[string]any{"tool_outputs": outputs, "stream": true}
	path := "/threads/" + threadID + "/runs/" + runID + "/submit_tool_outputs"
	if err := c.stream(ctx, path, body, listener); err != nil {
		return fmt.Errorf("submit tool outputs: %w", err)
	}
	return nil
}

// RetrieveRun fetches the current state of a run.
func (c *Client) RetrieveRun(ctx context.Context, threadID, runID string) (Run, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	run, err := c.api.RetrieveRun(ctx, threadID, runID)
	if err != nil {
		return Run{}, fmt.Errorf("retrieve run: %w", err)
	}
	return convertRun(run), nil
}

// CancelRun asks the service to cancel a run.
func (c *Client) CancelRun(ctx context.Context, threadID, runID string) error {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	if _, err := c.api.CancelRun(ctx, threadID, runID); err != nil {
		return fmt.Errorf("cancel run: %w", err)
	}
	return nil
}

// ListMessages returns the newest messages first.
func (c *Client) ListMessages(ctx context.Context, threadID string, limit int) ([]Message, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	if limit <= 0 {
		limit = 1
	}
	order := "desc"
	list, err := c.api.ListMessage(ctx, threadID, &limit, &order, nil, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	out := make([]Message, 0, len(list.Messages))
	for _, m := range list.Messages {
		out = append(out, convertMessage(m))
	}
	return out, nil
}

// UploadImage uploads an image for use in messages.
func (c *Client) UploadImage(ctx context.Context, name string, data []byte) (string, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	file, err := c.api.CreateFileBytes(ctx, openai.FileBytesRequest{
		Name:    name,
		Bytes:   data,
		Purpose: openai.PurposeAssistants,
	})
	if err != nil {
		return "", fmt.Errorf("upload image: %w", err)
	}
	return file.ID, nil
}

// SyncFunctionTools replaces the function tools registered on an assistant
// with tools, keeping any non-function tools it already has.
func (c *Client) SyncFunctionTools(ctx context.Context, assistantID string, tools []openai.Tool) (openai.Assistant, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	current, err := c.api.RetrieveAssistant(ctx, assistantID)
	if err != nil {
		return openai.Assistant{}, fmt.Errorf("retrieve assistant: %w", err)
	}

	merged := make([]openai.AssistantTool, 0, len(current.Tools)+len(tools))
	for _, t := range current.Tools {
		if t.Type != openai.AssistantToolTypeFunction {
			merged = append(merged, t)
		}
	}
	for _, t := range tools {
		merged = append(merged, openai.AssistantTool{
			Type:     openai.AssistantToolTypeFunction,
			Function: t.Function,
		})
	}

	updated, err := c.api.ModifyAssistant(ctx, assistantID, openai.AssistantRequest{
		Model: current.Model,
		Tools: merged,
	})
	if err != nil {
		return openai.Assistant{}, fmt.Errorf("modify assistant: %w", err)
	}
	c.logger.InfoContext(ctx, "assistant tools synced", "assistant_id", assistantID, "tools", len(merged))
	return updated, nil
}

func (c *Client) newRequest(ctx context.Context, path string, body any) (*http.Request, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("OpenAI-Beta", betaHeader)
	if c.org != "" {
		req.Header.Set("OpenAI-Organization", c.org)
	}
	return req, nil
}

func (c *Client) postJSON(ctx context.Context, path string, body, out any) error {
	req, err := c.newRequest(ctx, path, body)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return responseError(resp)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) stream(ctx context.Context, path string, body any, listener StreamListener) error {
	req, err := c.newRequest(ctx, path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return responseError(resp)
	}

	decoder := newEventDecoder(listener)
	return consumeSSE(ctx, resp.Body, decoder.handle)
}

func responseError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	serr := &StreamError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(raw))}
	var wrapped openai.ErrorResponse
	if err := json.Unmarshal(raw, &wrapped); err == nil && wrapped.Error != nil {
		serr.Code = errorCode(wrapped.Error.Code)
		serr.Message = wrapped.Error.Message
	}
	if serr.Message == "" {
		serr.Message = http.StatusText(resp.StatusCode)
	}
	return serr
}

func convertRun(run openai.Run) Run {
	out := Run{
		ID:       run.ID,
		ThreadID: run.ThreadID,
		Status:   RunStatus(run.Status),
	}
	if run.LastError != nil {
		out.LastError = run.LastError.Message
		if run.LastError.Code != "" {
			out.LastError = string(run.LastError.Code) + ": " + run.LastError.Message
		}
	}
	if run.RequiredAction != nil && run.RequiredAction.SubmitToolOutputs != nil {
		for _, tc := range run.RequiredAction.SubmitToolOutputs.ToolCalls {
			out.RequiredCalls = append(out.RequiredCalls, ToolCall{
				ID:        tc.ID,
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments,
			})
		}
	}
	return out
}

func convertMessage(m openai.Message) Message {
	out := Message{ID: m.ID, Role: m.Role}
	if m.RunID != nil {
		out.RunID = *m.RunID
	}
	var sb strings.Builder
	for _, c := range m.Content {
		if c.Text == nil {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(c.Text.Value)
	}
	out.Text = sb.String()
	return out
}
