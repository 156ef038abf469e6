// Package view is the UI abstraction boundary. It turns presentation calls
// from the store and session controller into view events and fans them out
// to subscribers (the SSE stream) and, optionally, to NATS.
package view

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/capitalize-ai/querychat/internal/model"
	"github.com/capitalize-ai/querychat/pkg/logger"
	"github.com/capitalize-ai/querychat/pkg/metrics"
)

const (
	// DefaultBufferSize is the per-subscriber event buffer.
	DefaultBufferSize = 64

	// DefaultPublishQueueSize is the number of events waiting for the
	// publisher before new ones are dropped.
	DefaultPublishQueueSize = 1024
)

// Publisher forwards view events to another process. It runs on the
// broadcaster's own goroutine, never on the caller's.
type Publisher interface {
	Publish(ctx context.Context, event model.ViewEvent) error
}

// Option configures a Broadcaster.
type Option func(*Broadcaster)

// WithPublisher forwards every event to p.
func WithPublisher(p Publisher) Option {
	return func(b *Broadcaster) {
		b.publisher = p
	}
}

// WithPublishQueueSize sets the publisher queue length.
func WithPublishQueueSize(n int) Option {
	return func(b *Broadcaster) {
		if n > 0 {
			b.queueSize = n
		}
	}
}

// WithBufferSize sets the per-subscriber buffer.
func WithBufferSize(n int) Option {
	return func(b *Broadcaster) {
		if n > 0 {
			b.bufferSize = n
		}
	}
}

// Broadcaster implements the store and session views. Sends never block: a
// subscriber whose buffer is full misses the event.
type Broadcaster struct {
	publisher  Publisher
	logger     *logger.Logger
	now        func() time.Time
	bufferSize int
	queueSize  int

	// queue feeds the publisher goroutine; done closes when it exits.
	queue chan model.ViewEvent
	done  chan struct{}

	mu          sync.Mutex
	closed      bool
	seq         uint64
	nextID      uint64
	subscribers map[uint64]chan model.ViewEvent

	// Latest state events, replayed to new subscribers.
	lastList        *model.ViewEvent
	lastSuggestions *model.ViewEvent
}

// NewBroadcaster creates a Broadcaster with no subscribers.
func NewBroadcaster(log *logger.Logger, opts ...Option) *Broadcaster {
	b := &Broadcaster{
		logger:      log.Named("view"),
		now:         time.Now,
		bufferSize:  DefaultBufferSize,
		queueSize:   DefaultPublishQueueSize,
		subscribers: make(map[uint64]chan model.ViewEvent),
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.publisher != nil {
		b.queue = make(chan model.ViewEvent, b.queueSize)
		b.done = make(chan struct{})
		go b.publishLoop()
	}
	return b
}

// Close stops forwarding to the publisher after the queued events are
// handed over. Subscribers keep receiving events.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	if b.queue != nil {
		close(b.queue)
	}
	b.mu.Unlock()

	if b.done != nil {
		<-b.done
	}
}

func (b *Broadcaster) publishLoop() {
	defer close(b.done)
	for event := range b.queue {
		if err := b.publisher.Publish(context.Background(), event); err != nil {
			b.logger.Warn("failed to publish view event",
				zap.String("kind", string(event.Kind)),
				zap.Error(err),
			)
		}
	}
}

// Subscribe registers a subscriber. The returned channel first receives the
// latest conversation list and suggestions state, then live events. Call
// cancel to unsubscribe; the channel is closed afterwards.
func (b *Broadcaster) Subscribe() (<-chan model.ViewEvent, func()) {
	ch := make(chan model.ViewEvent, b.bufferSize)

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subscribers[id] = ch
	for _, ev := range []*model.ViewEvent{b.lastList, b.lastSuggestions} {
		if ev != nil {
			ch <- *ev
		}
	}
	b.mu.Unlock()

	metrics.IncrementViewSubscribers()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subscribers, id)
			close(ch)
			b.mu.Unlock()
			metrics.DecrementViewSubscribers()
		})
	}
	return ch, cancel
}

// Subscribers returns the number of active subscribers.
func (b *Broadcaster) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subscribers)
}

// ClearMessages clears the visible thread.
func (b *Broadcaster) ClearMessages() {
	b.emit(model.ViewEvent{Kind: model.ViewEventClearMessages})
}

// ShowMessage appends a message to the visible thread. Chart messages carry
// their configuration for the UI's charting component.
func (b *Broadcaster) ShowMessage(conversationID string, msg model.Message) {
	b.emit(model.ViewEvent{
		Kind:           model.ViewEventMessage,
		ConversationID: conversationID,
		Message:        &msg,
	})
}

// SetSuggestionsVisible toggles the suggestions affordance.
func (b *Broadcaster) SetSuggestionsVisible(visible bool) {
	b.emit(model.ViewEvent{Kind: model.ViewEventSuggestions, Visible: visible})
}

// RenderList replaces the conversation list.
func (b *Broadcaster) RenderList(conversations []model.ConversationSummary) {
	b.emit(model.ViewEvent{Kind: model.ViewEventConversationList, Conversations: conversations})
}

// SetLoading toggles the loading indicator.
func (b *Broadcaster) SetLoading(visible bool) {
	b.emit(model.ViewEvent{Kind: model.ViewEventLoading, Visible: visible})
}

// LoggedOut tells the UI to redirect to sign-in.
func (b *Broadcaster) LoggedOut() {
	b.emit(model.ViewEvent{Kind: model.ViewEventLogout})
}

func (b *Broadcaster) emit(event model.ViewEvent) {
	b.mu.Lock()
	b.seq++
	event.Sequence = b.seq
	event.CreatedAt = b.now()

	switch event.Kind {
	case model.ViewEventConversationList:
		ev := event
		b.lastList = &ev
	case model.ViewEventSuggestions:
		ev := event
		b.lastSuggestions = &ev
	}

	for _, ch := range b.subscribers {
		select {
		case ch <- event:
		default:
			metrics.ViewEventsDroppedTotal.Inc()
		}
	}

	if b.queue != nil && !b.closed {
		select {
		case b.queue <- event:
		default:
			metrics.ViewEventsDroppedTotal.Inc()
			b.logger.Debug("publish queue full, dropping view event", zap.String("kind", string(event.Kind)))
		}
	}
	b.mu.Unlock()
}
