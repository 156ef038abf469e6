package render

import (
	"fmt"
	"time"
	"unicode/utf8"
)

const (
	// TitleLength is the number of characters kept from the first user
	// message when deriving a conversation title.
	TitleLength = 50

	// PreviewLength is the number of title characters shown in the list.
	PreviewLength = 35

	ellipsis = "..."
)

// Truncate shortens s to at most n characters, appending an ellipsis when
// anything was cut.
func Truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n]) + ellipsis
}

// Title derives a conversation title from its first user message.
func Title(firstUserMessage string) string {
	return Truncate(firstUserMessage, TitleLength)
}

// Preview shortens a title for the conversation list.
func Preview(title string) string {
	return Truncate(title, PreviewLength)
}

// RelativeTime labels t relative to now for the conversation list.
func RelativeTime(t, now time.Time) string {
	if t.IsZero() {
		return ""
	}
	diff := now.Sub(t)
	switch {
	case diff < time.Minute:
		return "Just now"
	case diff < time.Hour:
		return fmt.Sprintf("%dm ago", int(diff/time.Minute))
	case diff < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(diff/time.Hour))
	case diff < 7*24*time.Hour:
		return fmt.Sprintf("%dd ago", int(diff/(24*time.Hour)))
	default:
		return t.Format("2006-01-02")
	}
}
