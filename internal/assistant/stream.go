package assistant

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// StreamError is a failure reported by a streaming endpoint, either as a
// non-2xx response or as an error event inside the stream.
type StreamError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *StreamError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("assistant stream error %d: %s", e.StatusCode, e.Message)
	}
	if e.Code != "" {
		return fmt.Sprintf("assistant stream error (%s): %s", e.Code, e.Message)
	}
	return "assistant stream error: " + e.Message
}

var errStreamDone = errors.New("stream done")

// consumeSSE parses a Server-Sent Events stream, invoking fn for each event.
// fn may return errStreamDone to stop reading early.
func consumeSSE(ctx context.Context, r io.Reader, fn func(event, data string) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	var eventName string
	var dataBuf strings.Builder
	flush := func() error {
		if dataBuf.Len() == 0 {
			eventName = ""
			return nil
		}
		payload := dataBuf.String()
		dataBuf.Reset()
		name := eventName
		eventName = ""
		return fn(name, payload)
	}

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := scanner.Text()
		switch {
		case line == "":
			if err := flush(); err != nil {
				return stopOK(err)
			}
		case strings.HasPrefix(line, ":"):
		case strings.HasPrefix(line, "event:"):
			eventName = strings.TrimSpace(line[len("event:"):])
		case strings.HasPrefix(line, "data:"):
			if dataBuf.Len() > 0 {
				dataBuf.WriteByte('\n')
			}
			dataBuf.WriteString(strings.TrimSpace(line[len("data:"):]))
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	return stopOK(flush())
}

func stopOK(err error) error {
	if errors.Is(err, errStreamDone) {
		return nil
	}
	return err
}

// eventDecoder turns assistant stream events into listener calls for one
// streaming request.
type eventDecoder struct {
	listener StreamListener
	runID    string
	emitted  map[string]struct{}
}

func newEventDecoder(listener StreamListener) *eventDecoder {
	return &eventDecoder{listener: listener, emitted: make(map[string]struct{})}
}

func (d *eventDecoder) handle(event, data string) error {
	switch {
	case event == "done" || data == "[DONE]":
		return errStreamDone
	case event == "error":
		return decodeStreamError(data)
	case strings.HasPrefix(event, "thread.run.step."):
		var step struct {
			RunID string `json:"run_id"`
		}
		if err := json.Unmarshal([]byte(data), &step); err == nil {
			d.attach(step.RunID)
		}
		return nil
	case strings.HasPrefix(event, "thread.run."):
		var run openai.Run
		if err := json.Unmarshal([]byte(data), &run); err != nil {
			return fmt.Errorf("decode %s event: %w", event, err)
		}
		d.attach(run.ID)
		d.runEvent(convertRun(run))
		return nil
	case event == "thread.message.delta":
		return d.messageDelta(data)
	case strings.HasPrefix(event, "thread.message."):
		var msg struct {
			RunID string `json:"run_id"`
		}
		if err := json.Unmarshal([]byte(data), &msg); err == nil {
			d.attach(msg.RunID)
		}
		return nil
	default:
		return nil
	}
}

func (d *eventDecoder) attach(runID string) {
	if runID == "" || runID == d.runID {
		return
	}
	d.runID = runID
	if a, ok := d.listener.(RunAttacher); ok {
		a.OnRunAttached(runID)
	}
}

func (d *eventDecoder) runEvent(run Run) {
	switch {
	case run.Status == StatusRequiresAction:
		for _, call := range run.RequiredCalls {
			if _, seen := d.emitted[call.ID]; seen {
				continue
			}
			d.emitted[call.ID] = struct{}{}
			d.listener.OnToolCall(d.runID, call)
		}
		d.listener.OnSegmentDone(d.runID, run.Status)
	case run.Status.Terminal():
		d.listener.OnSegmentDone(d.runID, run.Status)
	}
}

func (d *eventDecoder) messageDelta(data string) error {
	var delta struct {
		Delta struct {
			Content []struct {
				Type string `json:"type"`
				Text *struct {
					Value string `json:"value"`
				} `json:"text"`
			} `json:"content"`
		} `json:"delta"`
	}
	if err := json.Unmarshal([]byte(data), &delta); err != nil {
		return fmt.Errorf("decode message delta: %w", err)
	}
	for _, part := range delta.Delta.Content {
		if part.Type != "text" || part.Text == nil || part.Text.Value == "" {
			continue
		}
		d.listener.OnTextDelta(d.runID, part.Text.Value)
	}
	return nil
}

func decodeStreamError(data string) error {
	var wrapped openai.ErrorResponse
	if err := json.Unmarshal([]byte(data), &wrapped); err == nil && wrapped.Error != nil {
		return &StreamError{Code: errorCode(wrapped.Error.Code), Message: wrapped.Error.Message}
	}
	var bare openai.APIError
	if err := json.Unmarshal([]byte(data), &bare); err == nil && bare.Message != "" {
		return &StreamError{Code: errorCode(bare.Code), Message: bare.Message}
	}
	return &StreamError{Message: data}
}

func errorCode(code any) string {
	if code == nil {
		return ""
	}
	return fmt.Sprint(code)
}
