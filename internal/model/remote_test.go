package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimestampLayouts(t *testing.T) {
	want := time.Date(2024, 3, 5, 14, 7, 9, 0, time.UTC)
	for _, in := range []string{
		`"2024-03-05T14:07:09Z"`,
		`"2024-03-05T14:07:09"`,
		`"2024-03-05 14:07:09"`,
	} {
		var ts Timestamp
		require.NoError(t, json.Unmarshal([]byte(in), &ts), in)
		assert.True(t, want.Equal(ts.Time), in)
	}
}

func TestTimestampFractionalAndEmpty(t *testing.T) {
	var ts Timestamp
	require.NoError(t, json.Unmarshal([]byte(`"2024-03-05T14:07:09.123456"`), &ts))
	assert.Equal(t, 123456000, ts.Nanosecond())

	require.NoError(t, json.Unmarshal([]byte(`null`), &ts))
	assert.True(t, ts.IsZero())

	require.NoError(t, json.Unmarshal([]byte(`""`), &ts))
	assert.True(t, ts.IsZero())

	assert.Error(t, json.Unmarshal([]byte(`"last tuesday"`), &ts))
}

func TestRemoteConversationDecoding(t *testing.T) {
	body := `{"conversations":[{"conversation_id":"conv_1","title":"show rows","created_at":"2024-01-01 10:00:00","last_updated":null}]}`

	var resp RemoteListConversationsResponse
	require.NoError(t, json.Unmarshal([]byte(body), &resp))
	require.Len(t, resp.Conversations, 1)
	conv := resp.Conversations[0]
	assert.Equal(t, "conv_1", conv.ConversationID)
	assert.Equal(t, 2024, conv.CreatedAt.Year())
	assert.True(t, conv.LastUpdated.IsZero())
}

func TestQueryResponseShapes(t *testing.T) {
	var chart QueryResponse
	require.NoError(t, json.Unmarshal([]byte(`{"response_type":"chart","chart":{"type":"bar"},"sql":"SELECT 1"}`), &chart))
	assert.True(t, chart.IsChart())
	assert.Empty(t, chart.DomainError())

	var failed QueryResponse
	require.NoError(t, json.Unmarshal([]byte(`{"result":{"error":"no such table"}}`), &failed))
	assert.False(t, failed.IsChart())
	assert.Equal(t, "no such table", failed.DomainError())
}

func TestConversationRecency(t *testing.T) {
	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	conv := &Conversation{CreatedAt: created}
	assert.Equal(t, created, conv.Recency())

	conv.LastUpdated = created.Add(time.Hour)
	assert.Equal(t, created.Add(time.Hour), conv.Recency())
}
