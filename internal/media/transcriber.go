// Package media turns inbound voice notes into text.
package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// MaxAudioBytes is the largest upload the transcription API accepts.
const MaxAudioBytes = 25 * 1024 * 1024

// Audio is a downloaded voice note.
type Audio struct {
	Data     []byte
	MimeType string
	// FileName is optional; it is derived from MimeType when empty.
	FileName string
}

// AudioAPI is the part of the OpenAI client used for transcription.
type AudioAPI interface {
	CreateTranscription(ctx context.Context, request openai.AudioRequest) (openai.AudioResponse, error)
}

// TranscriberConfig configures a Transcriber.
type TranscriberConfig struct {
	API AudioAPI
	// Model defaults to whisper-1.
	Model string
	// Language is an ISO 639-1 code. Empty lets the API detect it.
	Language string
	Logger   *slog.Logger
}

// Transcriber converts audio to text with OpenAI Whisper.
type Transcriber struct {
	api      AudioAPI
	model    string
	language string
	logger   *slog.Logger
}

// NewTranscriber creates a Transcriber.
func NewTranscriber(cfg TranscriberConfig) (*Transcriber, error) {
	if cfg.API == nil {
		return nil, errors.New("transcription api is required")
	}
	model := cfg.Model
	if model == "" {
		model = openai.Whisper1
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Transcriber{
		api:      cfg.API,
		model:    model,
		language: cfg.Language,
		logger:   logger.With("component", "transcriber"),
	}, nil
}

// Transcribe returns the text spoken in audio.
func (t *Transcriber) Transcribe(ctx context.Context, audio Audio) (string, error) {
	if len(audio.Data) == 0 {
		return "", errors.New("audio data is empty")
	}
	if len(audio.Data) > MaxAudioBytes {
		return "", fmt.Errorf("audio data too large (%d bytes)", len(audio.Data))
	}
	name := audio.FileName
	if name == "" || !strings.Contains(name, ".") {
		name = FilenameForMimeType(audio.MimeType)
	}

	t.logger.DebugContext(ctx, "transcribing audio",
		"size_bytes", len(audio.Data),
		"mime_type", audio.MimeType,
		"model", t.model,
	)
	resp, err := t.api.CreateTranscription(ctx, openai.AudioRequest{
		Model:    t.model,
		FilePath: name,
		Reader:   bytes.NewReader(audio.Data),
		Language: t.language,
		Format:   openai.AudioResponseFormatJSON,
	})
	if err != nil {
		return "", fmt.Errorf("transcribe audio: %w", err)
	}

	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return "", errors.New("transcription is empty")
	}
	t.logger.DebugContext(ctx, "transcription complete", "text_length", len(text))
	return text, nil
}

// FilenameForMimeType returns a file name whose extension Whisper accepts.
func FilenameForMimeType(mimeType string) string {
	lower := strings.ToLower(mimeType)
	if idx := strings.Index(lower, ";"); idx != -1 {
		lower = strings.TrimSpace(lower[:idx])
	}
	switch lower {
	case "audio/flac":
		return "audio.flac"
	case "audio/m4a", "audio/mp4", "audio/x-m4a":
		return "audio.m4a"
	case "audio/mpga":
		return "audio.mpga"
	case "audio/ogg", "audio/opus":
		// Telegram voice notes are OGG/Opus.
		return "audio.ogg"
	case "audio/wav", "audio/x-wav":
		return "audio.wav"
	case "audio/webm":
		return "audio.webm"
	default:
		return "audio.mp3"
	}
}
