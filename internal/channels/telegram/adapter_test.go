package telegram

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/jordan-barrett-jm/telegram-todo-bot-v2/internal/gateway"
)

type fakeBotClient struct {
	mu       sync.Mutex
	sent     []*bot.SendMessageParams
	actions  int
	webhook  *bot.SetWebhookParams
	deleted  bool
	files    map[string]*models.File
	fileBase string
	sendErr  error
}

func (f *fakeBotClient) SendMessage(_ context.Context, params *bot.SendMessageParams) (*models.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	f.sent = append(f.sent, params)
	return &models.Message{ID: len(f.sent)}, nil
}

func (f *fakeBotClient) SendChatAction(context.Context, *bot.SendChatActionParams) (bool, error) {
	f.mu.Lock()
	f.actions++
	f.mu.Unlock()
	return true, nil
}

func (f *fakeBotClient) GetFile(_ context.Context, params *bot.GetFileParams) (*models.File, error) {
	file, ok := f.files[params.FileID]
	if !ok {
		return nil, errors.New("file not found")
	}
	return file, nil
}

func (f *fakeBotClient) FileDownloadLink(file *models.File) string {
	return f.fileBase + "/" + file.FilePath
}

func (f *fakeBotClient) SetWebhook(_ context.Context, params *bot.SetWebhookParams) (bool, error) {
	f.mu.Lock()
	f.webhook = params
	f.mu.Unlock()
	return true, nil
}

func (f *fakeBotClient) DeleteWebhook(context.Context, *bot.DeleteWebhookParams) (bool, error) {
	f.mu.Lock()
	f.deleted = true
	f.mu.Unlock()
	return true, nil
}

func (f *fakeBotClient) Start(ctx context.Context)        { <-ctx.Done() }
func (f *fakeBotClient) StartWebhook(ctx context.Context) { <-ctx.Done() }

func (f *fakeBotClient) WebhookHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) }
}

func (f *fakeBotClient) sentTexts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, p := range f.sent {
		out = append(out, p.Text)
	}
	return out
}

type fakeHandler struct {
	mu      sync.Mutex
	inbound []gateway.Inbound
	reply   string
	delay   time.Duration
}

func (h *fakeHandler) Handle(_ context.Context, in gateway.Inbound) string {
	if h.delay > 0 {
		time.Sleep(h.delay)
	}
	h.mu.Lock()
	h.inbound = append(h.inbound, in)
	h.mu.Unlock()
	return h.reply
}

func newTestAdapter(t *testing.T, handler Handler, client *fakeBotClient) *Adapter {
	t.Helper()
	a, err := NewAdapter(Config{Token: "test-token"}, handler)
	if err != nil {
		t.Fatalf("NewAdapter() error = %v", err)
	}
	a.client = client
	return a
}

func textUpdate(chatID int64, messageID int, text string) *models.Update {
	return &models.Update{Message: &models.Message{
		ID:   messageID,
		Chat: models.Chat{ID: chatID},
		Text: text,
	}}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{name: "missing token", cfg: Config{}, wantErr: "token is required"},
		{name: "webhook without url", cfg: Config{Token: "x", Mode: ModeWebhook}, wantErr: "webhook_url"},
		{name: "unknown mode", cfg: Config{Token: "x", Mode: "carrier_pigeon"}, wantErr: "unknown mode"},
		{name: "defaults", cfg: Config{Token: "x"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() error = %v", err)
				}
				if tt.cfg.Mode != ModeLongPolling || tt.cfg.TypingInterval != 4*time.Second || tt.cfg.HTTPClient == nil {
					t.Fatalf("defaults not applied: %+v", tt.cfg)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Validate() error = %v, want %q", err, tt.wantErr)
			}
		})
	}
}

func TestHandleTextMessage(t *testing.T) {
	client := &fakeBotClient{}
	handler := &fakeHandler{reply: "Added: buy milk"}
	a := newTestAdapter(t, handler, client)

	a.handleUpdate(context.Background(), textUpdate(42, 7, "add buy milk"))

	if len(handler.inbound) != 1 {
		t.Fatalf("handler calls = %d", len(handler.inbound))
	}
	if in := handler.inbound[0]; in.ConversationID != "42" || in.Text != "add buy milk" {
		t.Fatalf("inbound = %+v", in)
	}
	if len(client.sent) != 1 {
		t.Fatalf("sent = %d", len(client.sent))
	}
	sent := client.sent[0]
	if sent.Text != "Added: buy milk" || sent.ChatID != int64(42) {
		t.Fatalf("sent = %+v", sent)
	}
	if sent.ReplyParameters == nil || sent.ReplyParameters.MessageID != 7 {
		t.Fatalf("reply should quote the original message: %+v", sent.ReplyParameters)
	}
	if client.actions == 0 {
		t.Fatal("expected a typing action")
	}
}

func TestHandleCommands(t *testing.T) {
	client := &fakeBotClient{}
	handler := &fakeHandler{reply: "x"}
	a := newTestAdapter(t, handler, client)

	a.handleUpdate(context.Background(), textUpdate(1, 1, "/start"))
	a.handleUpdate(context.Background(), textUpdate(1, 2, "/start@todo_bot hello"))
	a.handleUpdate(context.Background(), textUpdate(1, 3, "/help"))

	if len(handler.inbound) != 0 {
		t.Fatalf("commands reached the handler: %+v", handler.inbound)
	}
	got := client.sentTexts()
	if len(got) != 2 || got[0] != Greeting || got[1] != Greeting {
		t.Fatalf("sent = %q", got)
	}
}

func TestHandleIgnoresEmptyUpdates(t *testing.T) {
	client := &fakeBotClient{}
	handler := &fakeHandler{reply: "x"}
	a := newTestAdapter(t, handler, client)

	a.handleUpdate(context.Background(), &models.Update{})
	a.handleUpdate(context.Background(), textUpdate(1, 1, "   "))

	if len(handler.inbound) != 0 || len(client.sent) != 0 {
		t.Fatalf("inbound = %d sent = %d", len(handler.inbound), len(client.sent))
	}
}

func TestHandleMedia(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/photos/big.jpg":
			w.Write([]byte("big-jpeg"))
		case "/documents/scan.png":
			w.Write([]byte("png"))
		case "/voice/note.oga":
			w.Write([]byte("OggS"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	client := &fakeBotClient{
		fileBase: srv.URL,
		files: map[string]*models.File{
			"small": {FilePath: "photos/small.jpg"},
			"big":   {FilePath: "photos/big.jpg"},
			"doc":   {FilePath: "documents/scan.png"},
			"voice": {FilePath: "voice/note.oga"},
			"gone":  {FilePath: "missing"},
		},
	}
	handler := &fakeHandler{reply: "ok"}
	a := newTestAdapter(t, handler, client)
	ctx := context.Background()

	a.handleUpdate(ctx, &models.Update{Message: &models.Message{
		ID: 1, Chat: models.Chat{ID: 5}, Caption: "add these",
		Photo: []models.PhotoSize{
			{FileID: "small", Width: 90, Height: 90},
			{FileID: "big", Width: 1280, Height: 960},
		},
	}})
	a.handleUpdate(ctx, &models.Update{Message: &models.Message{
		ID: 2, Chat: models.Chat{ID: 5},
		Document: &models.Document{FileID: "doc", MimeType: "image/png", FileName: "scan.png"},
	}})
	a.handleUpdate(ctx, &models.Update{Message: &models.Message{
		ID: 3, Chat: models.Chat{ID: 5},
		Voice: &models.Voice{FileID: "voice"},
	}})

	if len(handler.inbound) != 3 {
		t.Fatalf("handler calls = %d", len(handler.inbound))
	}
	photo := handler.inbound[0]
	if photo.Text != "add these" || photo.Image == nil || string(photo.Image.Data) != "big-jpeg" || photo.Image.FileName != "big.jpg" {
		t.Fatalf("photo inbound = %+v", photo)
	}
	doc := handler.inbound[1]
	if doc.Image == nil || doc.Image.MimeType != "image/png" || doc.Image.FileName != "scan.png" {
		t.Fatalf("document inbound = %+v", doc)
	}
	voice := handler.inbound[2]
	if voice.Voice == nil || string(voice.Voice.Data) != "OggS" || voice.Voice.MimeType != "audio/ogg" {
		t.Fatalf("voice inbound = %+v", voice)
	}

	a.handleUpdate(ctx, &models.Update{Message: &models.Message{
		ID: 4, Chat: models.Chat{ID: 5},
		Voice: &models.Voice{FileID: "gone"},
	}})
	if len(handler.inbound) != 3 {
		t.Fatal("failed download should not reach the handler")
	}
	texts := client.sentTexts()
	if texts[len(texts)-1] != gateway.ReplyGeneric {
		t.Fatalf("last reply = %q", texts[len(texts)-1])
	}
}

func TestNonImageDocumentIgnored(t *testing.T) {
	client := &fakeBotClient{}
	handler := &fakeHandler{reply: "x"}
	a := newTestAdapter(t, handler, client)

	a.handleUpdate(context.Background(), &models.Update{Message: &models.Message{
		ID: 1, Chat: models.Chat{ID: 5},
		Document: &models.Document{FileID: "doc", MimeType: "application/pdf"},
	}})
	if len(handler.inbound) != 0 {
		t.Fatal("pdf should be ignored")
	}
}

func TestLongReplyIsSplit(t *testing.T) {
	client := &fakeBotClient{}
	long := strings.Repeat("task line\n", 1000)
	a := newTestAdapter(t, &fakeHandler{reply: long}, client)

	a.handleUpdate(context.Background(), textUpdate(1, 9, "list everything"))

	if len(client.sent) < 2 {
		t.Fatalf("sent %d messages", len(client.sent))
	}
	for i, p := range client.sent {
		if len(p.Text) > MaxMessageLength {
			t.Fatalf("piece %d is %d bytes", i, len(p.Text))
		}
		if (i == 0) != (p.ReplyParameters != nil) {
			t.Fatalf("only the first piece should quote: %d", i)
		}
	}
}

func TestDispatchRunsConcurrently(t *testing.T) {
	client := &fakeBotClient{}
	handler := &fakeHandler{reply: "ok", delay: 50 * time.Millisecond}
	a := newTestAdapter(t, handler, client)

	start := time.Now()
	for i := 0; i < 5; i++ {
		a.dispatch(context.Background(), textUpdate(int64(i), i, "hi"))
	}
	a.wg.Wait()

	if len(client.sentTexts()) != 5 {
		t.Fatalf("sent = %d", len(client.sentTexts()))
	}
	if elapsed := time.Since(start); elapsed > 200*time.Millisecond {
		t.Fatalf("updates were handled serially: %s", elapsed)
	}
}

func TestRunLongPolling(t *testing.T) {
	client := &fakeBotClient{}
	a := newTestAdapter(t, &fakeHandler{}, client)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.run(ctx) }()
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run() error = %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("run did not stop")
	}
	if !client.deleted {
		t.Fatal("expected stale webhook to be deleted")
	}
}

func TestRunWebhook(t *testing.T) {
	client := &fakeBotClient{}
	a, err := NewAdapter(Config{
		Token:         "test-token",
		Mode:          ModeWebhook,
		WebhookURL:    "https://bot.example.com/telegram",
		WebhookListen: "127.0.0.1:0",
		WebhookSecret: "s3cret",
	}, &fakeHandler{})
	if err != nil {
		t.Fatalf("NewAdapter() error = %v", err)
	}
	a.client = client

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.run(ctx) }()
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("run did not stop")
	}
	client.mu.Lock()
	defer client.mu.Unlock()
	if client.webhook == nil || client.webhook.URL != "https://bot.example.com/telegram" || client.webhook.SecretToken != "s3cret" {
		t.Fatalf("webhook = %+v", client.webhook)
	}
}

func TestSplitText(t *testing.T) {
	cases := []struct {
		name  string
		text  string
		limit int
		want  []string
	}{
		{"empty", "  ", 10, nil},
		{"fits", "hello", 10, []string{"hello"}},
		{"newline", "aaaa\nbbbb\ncccc", 10, []string{"aaaa\nbbbb", "cccc"}},
		{"space", "aaaa bbbb cccc", 10, []string{"aaaa bbbb", "cccc"}},
		{"hard", "abcdefghij", 4, []string{"abcd", "efgh", "ij"}},
		{"utf8", "ééééé", 3, []string{"é", "é", "é", "é", "é"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := splitText(tc.text, tc.limit)
			if strings.Join(got, "|") != strings.Join(tc.want, "|") || len(got) != len(tc.want) {
				t.Fatalf("splitText(%q, %d) = %q, want %q", tc.text, tc.limit, got, tc.want)
			}
		})
	}
}
