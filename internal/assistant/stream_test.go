package assistant

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestConsumeSSE(t *testing.T) {
	input := ": keep-alive\n" +
		"event: first\n" +
		"data: line one\n" +
		"data: line two\n" +
		"\n" +
		"data: unnamed\n" +
		"\n" +
		"event: last\n" +
		"data: tail"

	type ev struct{ name, data string }
	var got []ev
	err := consumeSSE(context.Background(), strings.NewReader(input), func(event, data string) error {
		got = append(got, ev{event, data})
		return nil
	})
	if err != nil {
		t.Fatalf("consumeSSE: %v", err)
	}
	want := []ev{{"first", "line one\nline two"}, {"", "unnamed"}, {"last", "tail"}}
	if len(got) != len(want) {
		t.Fatalf("got %d events, want %d: %+v", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("event %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestConsumeSSEStopsOnDone(t *testing.T) {
	input := "event: a\ndata: 1\n\nevent: done\ndata: [DONE]\n\nevent: b\ndata: 2\n\n"
	var names []string
	err := consumeSSE(context.Background(), strings.NewReader(input), func(event, data string) error {
		names = append(names, event)
		if event == "done" {
			return errStreamDone
		}
		return nil
	})
	if err != nil {
		t.Fatalf("consumeSSE: %v", err)
	}
	if strings.Join(names, ",") != "a,done" {
		t.Fatalf("events = %v", names)
	}
}

func TestConsumeSSEPropagatesHandlerError(t *testing.T) {
	boom := errors.New("boom")
	err := consumeSSE(context.Background(), strings.NewReader("data: x\n\n"), func(string, string) error {
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
}

func TestConsumeSSECancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := consumeSSE(ctx, strings.NewReader("data: x\n\n"), func(string, string) error { return nil })
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v", err)
	}
}

func TestEventDecoderSkipsDuplicateToolCalls(t *testing.T) {
	l := &recordingListener{}
	d := newEventDecoder(l)
	action := `{"id":"run_1","status":"requires_action","required_action":{"type":"submit_tool_outputs","submit_tool_outputs":{"tool_calls":[{"id":"call_a","type":"function","function":{"name":"get_tasks","arguments":"{}"}}]}}}`
	for i := 0; i < 2; i++ {
		if err := d.handle("thread.run.requires_action", action); err != nil {
			t.Fatalf("handle: %v", err)
		}
	}
	if got := l.kinds(); got != "attach,tool,done,done" {
		t.Fatalf("events = %s", got)
	}
}

func TestEventDecoderAttachesFromMessage(t *testing.T) {
	l := &recordingListener{}
	d := newEventDecoder(l)
	if err := d.handle("thread.message.created", `{"id":"msg_1","run_id":"run_7"}`); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if err := d.handle("thread.message.delta", `{"delta":{"content":[{"type":"text","text":{"value":"hi"}}]}}`); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(l.events) != 2 || l.events[1].runID != "run_7" {
		t.Fatalf("events = %+v", l.events)
	}
}

func TestStreamErrorMessages(t *testing.T) {
	cases := []struct {
		err  *StreamError
		want string
	}{
		{&StreamError{StatusCode: 429, Message: "slow"}, "assistant stream error 429: slow"},
		{&StreamError{Code: "server_error", Message: "boom"}, "assistant stream error (server_error): boom"},
		{&StreamError{Message: "raw"}, "assistant stream error: raw"},
	}
	for _, tc := range cases {
		if got := tc.err.Error(); got != tc.want {
			t.Errorf("Error() = %q, want %q", got, tc.want)
		}
	}
}
