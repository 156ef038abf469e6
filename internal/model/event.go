package model

import (
	"time"
)

// ViewEventKind is the type of a view event.
type ViewEventKind string

const (
	ViewEventClearMessages    ViewEventKind = "clear_messages"
	ViewEventMessage          ViewEventKind = "message"
	ViewEventSuggestions      ViewEventKind = "suggestions"
	ViewEventConversationList ViewEventKind = "conversation_list"
	ViewEventLoading          ViewEventKind = "loading"
	ViewEventLogout           ViewEventKind = "logout"
)

// ViewEvent is a presentation instruction sent to the UI.
type ViewEvent struct {
	Kind           ViewEventKind         `json:"kind"`
	Sequence       uint64                `json:"sequence"`
	ConversationID string                `json:"conversation_id,omitempty"`
	Message        *Message              `json:"message,omitempty"`
	Visible        bool                  `json:"visible,omitempty"`
	Conversations  []ConversationSummary `json:"conversations,omitempty"`
	CreatedAt      time.Time             `json:"created_at"`
}

// HeartbeatEvent keeps an idle event stream open.
type HeartbeatEvent struct {
	Timestamp time.Time `json:"timestamp"`
}

// ErrorEvent reports a stream-level error.
type ErrorEvent struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
