package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Response types returned by the query-execution service.
const (
	ResponseTypeTable = "table"
	ResponseTypeChart = "chart"
)

// TableResult is a tabular query result, or a domain error.
type TableResult struct {
	Columns []string `json:"columns,omitempty"`
	Rows    [][]any  `json:"rows,omitempty"`
	Error   string   `json:"error,omitempty"`
}

// RemoteConversation is a conversation summary from the remote store.
type RemoteConversation struct {
	ConversationID string    `json:"conversation_id"`
	Title          string    `json:"title"`
	CreatedAt      Timestamp `json:"created_at"`
	LastUpdated    Timestamp `json:"last_updated"`
}

// RemoteListConversationsResponse is the body of the remote list call.
type RemoteListConversationsResponse struct {
	Conversations []RemoteConversation `json:"conversations"`
}

// RemoteMessage is one historical message from the remote store.
type RemoteMessage struct {
	Type      MessageType  `json:"type"`
	Content   string       `json:"content,omitempty"`
	SQL       string       `json:"sql,omitempty"`
	Result    *TableResult `json:"result,omitempty"`
	Error     string       `json:"error,omitempty"`
	CreatedAt Timestamp    `json:"created_at"`
}

// RemoteMessagesResponse is the body of the remote fetch-messages call.
type RemoteMessagesResponse struct {
	Messages []RemoteMessage `json:"messages"`
}

// QueryRequest is sent to the query-execution service.
type QueryRequest struct {
	Query               string        `json:"query"`
	ConversationID      string        `json:"conversation_id"`
	ConversationHistory []ContextPair `json:"conversation_history"`
}

// QueryResponse is returned by the query-execution service. Exactly one of
// a tabular result, a chart, or a domain error is meaningful.
type QueryResponse struct {
	Result       *TableResult `json:"result,omitempty"`
	SQL          string       `json:"sql,omitempty"`
	ResponseType string       `json:"response_type,omitempty"`
	Chart        any          `json:"chart,omitempty"`
}

// DomainError returns the error reported inside the result, if any.
func (r *QueryResponse) DomainError() string {
	if r.Result == nil {
		return ""
	}
	return r.Result.Error
}

// IsChart reports whether the response carries a chart description.
func (r *QueryResponse) IsChart() bool {
	return r.ResponseType == ResponseTypeChart && r.Chart != nil
}

// SubmitQueryRequest is the gateway request to submit a query.
type SubmitQueryRequest struct {
	Query string `json:"query"`
}

// SubmitQueryResponse is the gateway response after a query turn.
type SubmitQueryResponse struct {
	ConversationID string `json:"conversation_id"`
	Outcome        string `json:"outcome"`
	GeneratedQuery string `json:"sql,omitempty"`
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// Timestamp accepts the timestamp shapes the remote store emits: RFC 3339,
// ISO-8601 without a zone, and SQLite's "YYYY-MM-DD HH:MM:SS". Zone-less
// values are read as UTC.
type Timestamp struct {
	time.Time
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *Timestamp) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		t.Time = time.Time{}
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("timestamp must be a string: %w", err)
	}
	parsed, err := ParseTimestamp(s)
	if err != nil {
		return err
	}
	t.Time = parsed
	return nil
}

// MarshalJSON implements json.Marshaler.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.Time.Format(time.RFC3339Nano))
}

// ParseTimestamp parses s with each supported layout in turn. An empty
// string yields the zero time.
func ParseTimestamp(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	for _, layout := range timestampLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			return parsed, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}
