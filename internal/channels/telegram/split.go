package telegram

import (
	"strings"
	"unicode/utf8"
)

// MaxMessageLength is Telegram's limit for one text message.
const MaxMessageLength = 4096

// splitText breaks text into pieces of at most limit bytes, preferring to
// break at a newline, then at whitespace, and never inside a UTF-8 sequence.
func splitText(text string, limit int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if limit <= 0 || len(text) <= limit {
		return []string{text}
	}

	var chunks []string
	remaining := text
	for len(remaining) > limit {
		cut := limit
		for cut > 0 && !utf8.RuneStart(remaining[cut]) {
			cut--
		}
		if cut == 0 {
			cut = limit
		}
		window := remaining[:cut]

		breakIdx := strings.LastIndexByte(window, '\n')
		if breakIdx <= 0 {
			breakIdx = strings.LastIndexAny(window, " \t")
		}
		if breakIdx <= 0 {
			breakIdx = cut
		}

		if chunk := strings.TrimRight(remaining[:breakIdx], " \t\n"); chunk != "" {
			chunks = append(chunks, chunk)
		}
		remaining = strings.TrimLeft(remaining[breakIdx:], " \t\n")
	}
	if remaining != "" {
		chunks = append(chunks, remaining)
	}
	return chunks
}
