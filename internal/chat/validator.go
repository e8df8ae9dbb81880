package chat

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	MaxMessageBytes = 4096 // 4KB max frame body
	MaxTextChars    = 2000 // max character count
)

// ErrEmptyMessage is returned for blank chat input.
var ErrEmptyMessage = errors.New("chat: message text is empty")

// NormalizeMessage trims surrounding whitespace from text and checks that
// the result meets content requirements.
func NormalizeMessage(text string) (string, error) {
	text = strings.TrimSpace(text)
	if err := ValidateMessage(text); err != nil {
		return "", err
	}
	return text, nil
}

// ValidateMessage checks that a chat message meets content requirements.
func ValidateMessage(text string) error {
	if len(text) == 0 {
		return ErrEmptyMessage
	}
	if len(text) > MaxMessageBytes {
		return fmt.Errorf("chat: message exceeds %d byte limit", MaxMessageBytes)
	}
	if !utf8.ValidString(text) {
		return fmt.Errorf("chat: message contains invalid UTF-8")
	}
	if utf8.RuneCountInString(text) > MaxTextChars {
		return fmt.Errorf("chat: message exceeds %d character limit", MaxTextChars)
	}
	return nil
}
