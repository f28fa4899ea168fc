package middleware

import (
	"errors"
	"strings"
	"unicode/utf8"
)

const (
	maxEmailLength   = 254
	maxChatIDLength  = 128
	maxTitleLength   = 256
	maxMessageLength = 100000
)

// ValidateEmail performs a shallow sanity check on an email address.
func ValidateEmail(email string) error {
	if email == "" {
		return errors.New("email cannot be empty")
	}
	if len(email) > maxEmailLength {
		return errors.New("email exceeds maximum length")
	}
	at := strings.LastIndex(email, "@")
	if at <= 0 || at == len(email)-1 {
		return errors.New("invalid email format")
	}
	return nil
}

// ValidateChatID validates a client-generated chat ID.
func ValidateChatID(id string) error {
	if id == "" {
		return errors.New("chat ID cannot be empty")
	}
	if len(id) > maxChatIDLength {
		return errors.New("chat ID exceeds maximum length")
	}
	if strings.ContainsAny(id, "/?#") {
		return errors.New("invalid chat ID format")
	}
	return nil
}

// ValidateMessageText validates message text.
func ValidateMessageText(text string) error {
	if len(text) > maxMessageLength {
		return errors.New("message exceeds maximum length")
	}
	if !utf8.ValidString(text) {
		return errors.New("message must be valid UTF-8")
	}
	return nil
}

// ValidateTitle validates a chat title.
func ValidateTitle(title string) error {
	if len(title) > maxTitleLength {
		return errors.New("title exceeds maximum length")
	}
	if !utf8.ValidString(title) {
		return errors.New("title must be valid UTF-8")
	}
	return nil
}
