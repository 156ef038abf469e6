package middleware

import (
	"errors"
	"regexp"
	"strings"
	"unicode/utf8"
)

// MaxQueryLength bounds a submitted natural-language query in bytes.
const MaxQueryLength = 10000

var conversationIDPattern = regexp.MustCompile(`^[A-Za-z0-9_.:-]{1,128}$`)

// ValidateQueryText validates a submitted query.
func ValidateQueryText(text string) error {
	if strings.TrimSpace(text) == "" {
		return errors.New("query cannot be empty")
	}
	if len(text) > MaxQueryLength {
		return errors.New("query exceeds maximum length")
	}
	if !utf8.ValidString(text) {
		return errors.New("query must be valid UTF-8")
	}
	return nil
}

// ValidateConversationID validates a conversation ID. Locally created ids
// are UUIDs; remote ids are opaque tokens such as "conv_1712345678901".
func ValidateConversationID(id string) error {
	if !conversationIDPattern.MatchString(id) {
		return errors.New("invalid conversation ID format")
	}
	return nil
}
