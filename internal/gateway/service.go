// Package gateway handles one inbound chat message end to end: it authorizes
// the conversation, resolves its thread, prepares the message content, runs
// the assistant and reduces any failure to a reply the user can read.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jordan-barrett-jm/telegram-todo-bot-v2/internal/assistant"
	"github.com/jordan-barrett-jm/telegram-todo-bot-v2/internal/media"
	"github.com/jordan-barrett-jm/telegram-todo-bot-v2/internal/observability"
	"github.com/jordan-barrett-jm/telegram-todo-bot-v2/internal/orchestrator"
	"github.com/jordan-barrett-jm/telegram-todo-bot-v2/internal/threads"
)

// ErrEmptyMessage is returned for messages with no text, image or voice.
var ErrEmptyMessage = errors.New("message has no content")

// Attachment is media downloaded from the chat platform.
type Attachment struct {
	Data     []byte
	FileName string
	MimeType string
}

// Inbound is a message received from a conversation.
type Inbound struct {
	ConversationID string
	// Text is the message text or the media caption.
	Text  string
	Image *Attachment
	Voice *Attachment
}

// ThreadResolver maps a conversation to its assistant thread.
type ThreadResolver interface {
	Resolve(ctx context.Context, conversationID string) (string, error)
}

// Runner drives one assistant run.
type Runner interface {
	Run(ctx context.Context, conversationID, threadID string, content assistant.MessageContent) (string, error)
}

// ImageUploader stores an image so a message can reference it.
type ImageUploader interface {
	UploadImage(ctx context.Context, name string, data []byte) (string, error)
}

// Transcriber converts a voice note to text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio media.Audio) (string, error)
}

// Config configures a Service. Uploader and Transcriber are optional; without
// them images and voice notes are rejected.
type Config struct {
	Threads     ThreadResolver
	Runner      Runner
	Uploader    ImageUploader
	Transcriber Transcriber
	Locks       *orchestrator.KeyedLock

	Logger  *slog.Logger
	Metrics *observability.Metrics
	Tracer  *observability.Tracer
}

// Service processes inbound messages.
type Service struct {
	threads     ThreadResolver
	runner      Runner
	uploader    ImageUploader
	transcriber Transcriber
	locks       *orchestrator.KeyedLock
	logger      *slog.Logger
	metrics     *observability.Metrics
	tracer      *observability.Tracer
}

// New creates a Service.
func New(cfg Config) (*Service, error) {
	if cfg.Threads == nil {
		return nil, errors.New("gateway: thread resolver is required")
	}
	if cfg.Runner == nil {
		return nil, errors.New("gateway: runner is required")
	}
	locks := cfg.Locks
	if locks == nil {
		locks = orchestrator.NewKeyedLock()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		threads:     cfg.Threads,
		runner:      cfg.Runner,
		uploader:    cfg.Uploader,
		transcriber: cfg.Transcriber,
		locks:       locks,
		logger:      logger.With("component", "gateway"),
		metrics:     cfg.Metrics,
		tracer:      cfg.Tracer,
	}, nil
}

// Handle processes in and always returns text to send back. Failures are
// logged with their details and reduced to a short user-facing message.
func (s *Service) Handle(ctx context.Context, in Inbound) string {
	reply, err := s.Process(ctx, in)
	s.metrics.MessageHandled(Outcome(err))
	if err != nil {
		return UserMessage(err)
	}
	return reply
}

// Process is Handle without the error reduction.
func (s *Service) Process(ctx context.Context, in Inbound) (string, error) {
	start := time.Now()
	conversationID := strings.TrimSpace(in.ConversationID)
	ctx = observability.WithRequestID(ctx, uuid.NewString())
	ctx = observability.WithConversationID(ctx, conversationID)
	ctx, span := s.tracer.Start(ctx, "gateway.handle", "conversation_id", conversationID)
	defer span.End()

	reply, err := s.process(ctx, conversationID, in)
	observability.RecordError(span, err)
	if err != nil {
		level := slog.LevelError
		if errors.Is(err, threads.ErrUnauthorized) {
			level = slog.LevelWarn
		}
		s.logger.Log(ctx, level, "message handling failed",
			"outcome", Outcome(err),
			"duration", time.Since(start),
			"error", err,
		)
		return "", err
	}
	s.logger.InfoContext(ctx, "message handled", "duration", time.Since(start), "reply_length", len(reply))
	return reply, nil
}

func (s *Service) process(ctx context.Context, conversationID string, in Inbound) (string, error) {
	threadID, err := s.threads.Resolve(ctx, conversationID)
	if err != nil {
		return "", err
	}
	ctx = observability.WithThreadID(ctx, threadID)

	content, err := s.buildContent(ctx, in)
	if err != nil {
		return "", err
	}

	unlock, err := s.locks.Lock(ctx, conversationID)
	if err != nil {
		return "", fmt.Errorf("wait for conversation: %w", err)
	}
	defer unlock()

	return s.runner.Run(ctx, conversationID, threadID, content)
}

func (s *Service) buildContent(ctx context.Context, in Inbound) (assistant.MessageContent, error) {
	text := strings.TrimSpace(in.Text)

	if in.Voice != nil {
		if s.transcriber == nil {
			return assistant.MessageContent{}, errors.New("voice messages are not supported")
		}
		transcript, err := s.transcriber.Transcribe(ctx, media.Audio{
			Data:     in.Voice.Data,
			MimeType: in.Voice.MimeType,
			FileName: in.Voice.FileName,
		})
		if err != nil {
			return assistant.MessageContent{}, err
		}
		text = transcript
	}

	content := assistant.Text(text)
	if in.Image != nil {
		if s.uploader == nil {
			return assistant.MessageContent{}, errors.New("image messages are not supported")
		}
		name := in.Image.FileName
		if name == "" {
			name = "image.jpg"
		}
		fileID, err := s.uploader.UploadImage(ctx, name, in.Image.Data)
		if err != nil {
			return assistant.MessageContent{}, err
		}
		content = content.WithImage(fileID)
	}

	if content.Empty() {
		return assistant.MessageContent{}, ErrEmptyMessage
	}
	return content, nil
}
