// Package contextwindow derives the bounded list of prior (query, generated
// query) exchanges handed to the query-translation service.
package contextwindow

import (
	"github.com/capitalize-ai/querychat/internal/model"
)

// MaxPairs is the number of most recent exchanges kept in a context window.
const MaxPairs = 7

// Extract scans messages in chronological order and returns the last
// MaxPairs user turns that carry a generated query, oldest first. User
// messages without a generated query and all bot messages are skipped.
// The result never aliases messages.
func Extract(messages []model.Message) []model.ContextPair {
	pairs := make([]model.ContextPair, 0, MaxPairs)
	for i := range messages {
		msg := &messages[i]
		if !msg.IsUser() || msg.GeneratedQuery == "" {
			continue
		}
		pairs = append(pairs, model.ContextPair{
			Query:          msg.Content,
			GeneratedQuery: msg.GeneratedQuery,
		})
	}
	if len(pairs) > MaxPairs {
		pairs = append([]model.ContextPair(nil), pairs[len(pairs)-MaxPairs:]...)
	}
	return pairs
}
