package model

import (
	"time"
)

// MessageType identifies who produced a message.
type MessageType string

const (
	MessageTypeUser MessageType = "user"
	MessageTypeBot  MessageType = "bot"
)

// Valid reports whether t is a known message type.
func (t MessageType) Valid() bool {
	return t == MessageTypeUser || t == MessageTypeBot
}

// Message is one turn in a conversation.
type Message struct {
	Type    MessageType `json:"type"`
	Content string      `json:"content"`

	// Content tags. A message is plain text unless one of these is set.
	IsHTML  bool `json:"is_html,omitempty"`
	IsChart bool `json:"is_chart,omitempty"`

	// ChartConfig is the opaque chart description of a bot chart message.
	ChartConfig any `json:"chart_config,omitempty"`

	// GeneratedQuery is attached to a user message after the remote
	// response for that turn arrives.
	GeneratedQuery string `json:"generated_query,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// IsUser reports whether the message was sent by the user.
func (m *Message) IsUser() bool {
	return m.Type == MessageTypeUser
}

// ContextPair is one (query, generated query) exchange sent to the
// query-translation service for multi-turn grounding.
type ContextPair struct {
	Query          string `json:"query"`
	GeneratedQuery string `json:"sql"`
}
