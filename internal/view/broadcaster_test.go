package view

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/querychat/internal/model"
	"github.com/capitalize-ai/querychat/pkg/logger"
)

type capturePublisher struct {
	mu     sync.Mutex
	events []model.ViewEvent
	err    error
}

func (p *capturePublisher) Publish(ctx context.Context, event model.ViewEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return p.err
}

func drain(ch <-chan model.ViewEvent) []model.ViewEvent {
	var out []model.ViewEvent
	for {
		select {
		case ev := <-ch:
			out = append(out, ev)
		default:
			return out
		}
	}
}

func TestEventsAreSequenced(t *testing.T) {
	b := NewBroadcaster(logger.NewNop())
	ch, cancel := b.Subscribe()
	defer cancel()

	b.ClearMessages()
	b.ShowMessage("c1", model.Message{Type: model.MessageTypeUser, Content: "hi"})
	b.SetLoading(true)

	events := drain(ch)
	require.Len(t, events, 3)
	assert.Equal(t, model.ViewEventClearMessages, events[0].Kind)
	assert.Equal(t, model.ViewEventMessage, events[1].Kind)
	assert.Equal(t, "c1", events[1].ConversationID)
	assert.Equal(t, "hi", events[1].Message.Content)
	assert.Equal(t, model.ViewEventLoading, events[2].Kind)
	assert.True(t, events[2].Visible)
	assert.Less(t, events[0].Sequence, events[1].Sequence)
	assert.Less(t, events[1].Sequence, events[2].Sequence)
}

func TestNewSubscriberGetsLatestState(t *testing.T) {
	b := NewBroadcaster(logger.NewNop())
	b.RenderList([]model.ConversationSummary{{ID: "old"}})
	b.RenderList([]model.ConversationSummary{{ID: "new"}})
	b.SetSuggestionsVisible(true)
	b.ClearMessages()

	ch, cancel := b.Subscribe()
	defer cancel()

	events := drain(ch)
	require.Len(t, events, 2)
	assert.Equal(t, model.ViewEventConversationList, events[0].Kind)
	assert.Equal(t, "new", events[0].Conversations[0].ID)
	assert.Equal(t, model.ViewEventSuggestions, events[1].Kind)
	assert.True(t, events[1].Visible)
}

func TestSlowSubscriberDoesNotBlock(t *testing.T) {
	b := NewBroadcaster(logger.NewNop(), WithBufferSize(2))
	ch, cancel := b.Subscribe()
	defer cancel()

	for i := 0; i < 10; i++ {
		b.ClearMessages()
	}
	assert.Len(t, drain(ch), 2)
}

func TestCancelUnsubscribes(t *testing.T) {
	b := NewBroadcaster(logger.NewNop())
	ch, cancel := b.Subscribe()
	assert.Equal(t, 1, b.Subscribers())

	cancel()
	cancel()
	assert.Equal(t, 0, b.Subscribers())

	_, open := <-ch
	assert.False(t, open)

	b.LoggedOut()
}

func TestPublisherReceivesEvents(t *testing.T) {
	pub := &capturePublisher{err: errors.New("nats down")}
	b := NewBroadcaster(logger.NewNop(), WithPublisher(pub))

	b.LoggedOut()
	b.SetSuggestionsVisible(false)
	b.Close()
	b.SetLoading(true)

	pub.mu.Lock()
	defer pub.mu.Unlock()
	require.Len(t, pub.events, 2)
	assert.Equal(t, model.ViewEventLogout, pub.events[0].Kind)
	assert.Equal(t, model.ViewEventSuggestions, pub.events[1].Kind)
}

type blockingPublisher struct {
	release chan struct{}
	calls   atomic.Int32
}

func (p *blockingPublisher) Publish(ctx context.Context, event model.ViewEvent) error {
	p.calls.Add(1)
	<-p.release
	return nil
}

func TestSlowPublisherDoesNotBlockEmit(t *testing.T) {
	pub := &blockingPublisher{release: make(chan struct{})}
	b := NewBroadcaster(logger.NewNop(), WithPublisher(pub), WithPublishQueueSize(1))
	ch, cancel := b.Subscribe()
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 5; i++ {
			b.SetLoading(i%2 == 0)
		}
	}()
	require.Eventually(t, func() bool {
		select {
		case <-done:
			return true
		default:
			return false
		}
	}, time.Second, time.Millisecond)
	assert.Len(t, drain(ch), 5)

	close(pub.release)
	b.Close()
	assert.Less(t, int(pub.calls.Load()), 5)
	assert.GreaterOrEqual(t, int(pub.calls.Load()), 1)
}

func TestCloseWithoutPublisher(t *testing.T) {
	b := NewBroadcaster(logger.NewNop())
	b.Close()
	b.Close()

	ch, cancel := b.Subscribe()
	defer cancel()
	b.LoggedOut()
	assert.Len(t, drain(ch), 1)
}
