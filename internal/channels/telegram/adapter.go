// Package telegram connects the gateway to a Telegram bot.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/jordan-barrett-jm/telegram-todo-bot-v2/internal/gateway"
)

// Mode is how the adapter receives updates.
type Mode string

const (
	ModeLongPolling Mode = "long_polling"
	ModeWebhook     Mode = "webhook"
)

// Greeting is the reply to /start.
const Greeting = "Hi! I keep track of your tasks. Tell me what to add, ask what's open, or send a photo or voice note."

// MaxDownloadBytes caps media downloads. The Bot API cannot serve larger files.
const MaxDownloadBytes = 20 * 1024 * 1024

// Handler produces the reply for one inbound message.
type Handler interface {
	Handle(ctx context.Context, in gateway.Inbound) string
}

// Config holds configuration for the Telegram adapter.
type Config struct {
	// Token is the bot token from @BotFather.
	Token string

	Mode Mode

	// WebhookURL is the public HTTPS URL Telegram posts updates to.
	WebhookURL string
	// WebhookListen is the local address of the webhook server, e.g. ":8443".
	WebhookListen string
	// WebhookSecret is checked against the X-Telegram-Bot-Api-Secret-Token header.
	WebhookSecret string

	// TypingInterval is how often the typing action is refreshed during a run.
	TypingInterval time.Duration

	// HTTPClient downloads media. Defaults to a client with a 60s timeout.
	HTTPClient *http.Client

	Logger *slog.Logger
}

// Validate checks the configuration and applies defaults.
func (c *Config) Validate() error {
	if c.Token == "" {
		return errors.New("telegram: token is required")
	}
	if c.Mode == "" {
		c.Mode = ModeLongPolling
	}
	switch c.Mode {
	case ModeLongPolling:
	case ModeWebhook:
		if c.WebhookURL == "" {
			return errors.New("telegram: webhook_url is required for webhook mode")
		}
		if c.WebhookListen == "" {
			c.WebhookListen = ":8443"
		}
	default:
		return fmt.Errorf("telegram: unknown mode %q", c.Mode)
	}
	if c.TypingInterval <= 0 {
		// Telegram shows the action for about five seconds.
		c.TypingInterval = 4 * time.Second
	}
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: 60 * time.Second}
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return nil
}

// Adapter receives Telegram updates, hands each message to a Handler and
// sends the reply back to the chat.
type Adapter struct {
	config  Config
	handler Handler
	client  BotClient
	logger  *slog.Logger

	wg sync.WaitGroup
}

// NewAdapter creates an adapter. The bot connection is made by Run.
func NewAdapter(config Config, handler Handler) (*Adapter, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if handler == nil {
		return nil, errors.New("telegram: handler is required")
	}
	return &Adapter{
		config:  config,
		handler: handler,
		logger:  config.Logger.With("component", "telegram"),
	}, nil
}

// Run connects to Telegram and processes updates until ctx is done. It
// returns after every in-flight message has been answered.
func (a *Adapter) Run(ctx context.Context) error {
	opts := []bot.Option{bot.WithDefaultHandler(a.onUpdate)}
	if a.config.WebhookSecret != "" {
		opts = append(opts, bot.WithWebhookSecretToken(a.config.WebhookSecret))
	}
	b, err := bot.New(a.config.Token, opts...)
	if err != nil {
		return fmt.Errorf("telegram: create bot: %w", err)
	}
	a.client = newRealBotClient(b)
	return a.run(ctx)
}

func (a *Adapter) run(ctx context.Context) error {
	defer a.wg.Wait()
	a.logger.Info("starting telegram adapter", "mode", a.config.Mode)

	if a.config.Mode == ModeWebhook {
		return a.runWebhook(ctx)
	}

	// A webhook left over from an earlier deployment blocks getUpdates.
	if _, err := a.client.DeleteWebhook(ctx, &bot.DeleteWebhookParams{}); err != nil {
		a.logger.Warn("failed to delete webhook", "error", err)
	}
	a.client.Start(ctx)
	a.logger.Info("telegram adapter stopped")
	return nil
}

func (a *Adapter) runWebhook(ctx context.Context) error {
	if _, err := a.client.SetWebhook(ctx, &bot.SetWebhookParams{
		URL:         a.config.WebhookURL,
		SecretToken: a.config.WebhookSecret,
	}); err != nil {
		return fmt.Errorf("telegram: set webhook: %w", err)
	}

	server := &http.Server{
		Addr:              a.config.WebhookListen,
		Handler:           a.client.WebhookHandler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	go a.client.StartWebhook(ctx)
	a.logger.Info("webhook server listening", "addr", a.config.WebhookListen, "url", a.config.WebhookURL)

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("telegram: webhook server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		a.logger.Warn("webhook server shutdown failed", "error", err)
	}
	a.logger.Info("telegram adapter stopped")
	return nil
}

func (a *Adapter) onUpdate(ctx context.Context, _ *bot.Bot, update *models.Update) {
	a.dispatch(ctx, update)
}

// dispatch handles update on its own goroutine so a slow run does not hold
// up other chats.
func (a *Adapter) dispatch(ctx context.Context, update *models.Update) {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.handleUpdate(ctx, update)
	}()
}

func (a *Adapter) handleUpdate(ctx context.Context, update *models.Update) {
	if update == nil || update.Message == nil {
		return
	}
	msg := update.Message
	chatID := msg.Chat.ID
	logger := a.logger.With("chat_id", chatID, "message_id", msg.ID)

	text := msg.Text
	if text == "" {
		text = msg.Caption
	}
	if command, ok := commandName(text); ok {
		if command == "start" {
			a.reply(ctx, msg, Greeting)
		} else {
			logger.Debug("ignoring command", "command", command)
		}
		return
	}

	in := gateway.Inbound{
		ConversationID: strconv.FormatInt(chatID, 10),
		Text:           text,
	}
	var err error
	switch {
	case len(msg.Photo) > 0:
		in.Image, err = a.download(ctx, largestPhoto(msg.Photo).FileID, "image/jpeg")
	case msg.Document != nil && strings.HasPrefix(msg.Document.MimeType, "image/"):
		in.Image, err = a.download(ctx, msg.Document.FileID, msg.Document.MimeType)
		if in.Image != nil && msg.Document.FileName != "" {
			in.Image.FileName = msg.Document.FileName
		}
	case msg.Voice != nil:
		mimeType := msg.Voice.MimeType
		if mimeType == "" {
			mimeType = "audio/ogg"
		}
		in.Voice, err = a.download(ctx, msg.Voice.FileID, mimeType)
	}
	if err != nil {
		logger.Error("failed to download media", "error", err)
		a.reply(ctx, msg, gateway.ReplyGeneric)
		return
	}
	if strings.TrimSpace(in.Text) == "" && in.Image == nil && in.Voice == nil {
		logger.Debug("ignoring message without supported content")
		return
	}

	a.sendTyping(ctx, chatID)
	typingCtx, stopTyping := context.WithCancel(ctx)
	go a.keepTyping(typingCtx, chatID)
	reply := a.handler.Handle(ctx, in)
	stopTyping()

	a.reply(ctx, msg, reply)
}

// keepTyping refreshes the typing action until ctx is done.
func (a *Adapter) keepTyping(ctx context.Context, chatID int64) {
	ticker := time.NewTicker(a.config.TypingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.sendTyping(ctx, chatID)
		}
	}
}

func (a *Adapter) sendTyping(ctx context.Context, chatID int64) {
	_, err := a.client.SendChatAction(ctx, &bot.SendChatActionParams{
		ChatID: chatID,
		Action: models.ChatActionTyping,
	})
	if err != nil && ctx.Err() == nil {
		a.logger.Debug("failed to send typing action", "chat_id", chatID, "error", err)
	}
}

// reply sends text to the chat of msg, quoting msg on the first piece.
func (a *Adapter) reply(ctx context.Context, msg *models.Message, text string) {
	for i, piece := range splitText(text, MaxMessageLength) {
		params := &bot.SendMessageParams{
			ChatID: msg.Chat.ID,
			Text:   piece,
		}
		if i == 0 {
			params.ReplyParameters = &models.ReplyParameters{
				MessageID:                msg.ID,
				AllowSendingWithoutReply: true,
			}
		}
		if _, err := a.client.SendMessage(ctx, params); err != nil {
			a.logger.Error("failed to send reply", "chat_id", msg.Chat.ID, "error", err)
			return
		}
	}
}

func (a *Adapter) download(ctx context.Context, fileID, mimeType string) (*gateway.Attachment, error) {
	file, err := a.client.GetFile(ctx, &bot.GetFileParams{FileID: fileID})
	if err != nil {
		return nil, fmt.Errorf("get file: %w", err)
	}
	if file.FileSize > MaxDownloadBytes {
		return nil, fmt.Errorf("file too large (%d bytes)", file.FileSize)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.client.FileDownloadLink(file), nil)
	if err != nil {
		return nil, err
	}
	resp, err := a.config.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download file: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download file: unexpected status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxDownloadBytes+1))
	if err != nil {
		return nil, fmt.Errorf("download file: %w", err)
	}
	if len(data) > MaxDownloadBytes {
		return nil, errors.New("file too large")
	}

	att := &gateway.Attachment{Data: data, MimeType: mimeType}
	if file.FilePath != "" {
		att.FileName = path.Base(file.FilePath)
	}
	return att, nil
}

// largestPhoto returns the highest resolution size of a photo.
func largestPhoto(sizes []models.PhotoSize) models.PhotoSize {
	best := sizes[0]
	for _, s := range sizes[1:] {
		if s.Width*s.Height > best.Width*best.Height {
			best = s
		}
	}
	return best
}

// commandName reports whether text is a bot command and returns its name
// without the slash or @botname suffix.
func commandName(text string) (string, bool) {
	if !strings.HasPrefix(text, "/") {
		return "", false
	}
	name := strings.TrimPrefix(strings.Fields(text)[0], "/")
	if at := strings.IndexByte(name, '@'); at >= 0 {
		name = name[:at]
	}
	return strings.ToLower(name), true
}
