// Package model defines data structures for the querychat client.
package model

import (
	"time"
)

// DefaultTitle is the label of a conversation whose first user message has
// not been seen yet.
const DefaultTitle = "New Chat"

// Conversation represents one chat thread held in the local cache.
type Conversation struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	CreatedAt   time.Time `json:"created_at"`
	LastUpdated time.Time `json:"last_updated"`
	Messages    []Message `json:"messages"`

	// Loaded is false while only the remote metadata is known.
	Loaded bool `json:"loaded"`

	// TitleFrozen is set once the title has been supplied by the remote
	// store or derived from the first user message.
	TitleFrozen bool `json:"title_frozen"`
}

// Recency returns the timestamp used to order the conversation list.
func (c *Conversation) Recency() time.Time {
	if !c.LastUpdated.IsZero() {
		return c.LastUpdated
	}
	return c.CreatedAt
}

// ConversationSummary is one row of the rendered conversation list.
type ConversationSummary struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Preview      string    `json:"preview"`
	CreatedAt    time.Time `json:"created_at"`
	LastUpdated  time.Time `json:"last_updated"`
	UpdatedLabel string    `json:"updated_label"`
	MessageCount int       `json:"message_count"`
	Loaded       bool      `json:"loaded"`
	Current      bool      `json:"current"`
}

// ListConversationsResponse is the gateway response for the conversation list.
type ListConversationsResponse struct {
	Conversations []ConversationSummary `json:"conversations"`
	CurrentID     string                `json:"current_id,omitempty"`
}

// CreateConversationResponse is the gateway response after creating a conversation.
type CreateConversationResponse struct {
	ID string `json:"id"`
}

// ContextResponse is the gateway response for a conversation's context window.
type ContextResponse struct {
	ConversationID string        `json:"conversation_id"`
	Context        []ContextPair `json:"context"`
}
