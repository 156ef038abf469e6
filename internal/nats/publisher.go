package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/capitalize-ai/querychat/internal/model"
)

const (
	// StreamName is the name of the view-event stream.
	StreamName = "QUERYCHAT_VIEW"

	// SubjectPrefix is the prefix for all view-event subjects.
	SubjectPrefix = "querychat.view"
)

// ViewSubject returns the subject a view event of the given kind is
// published on.
func ViewSubject(kind model.ViewEventKind) string {
	return SubjectPrefix + "." + string(kind)
}

// StreamSubjects returns the filter covering every view event.
func StreamSubjects() string {
	return SubjectPrefix + ".>"
}

// Publisher mirrors view events into JetStream.
type Publisher struct {
	client *Client
}

// NewPublisher creates a publisher on an established connection.
func NewPublisher(client *Client) *Publisher {
	return &Publisher{client: client}
}

// EnsureStream creates the view-event stream if it does not exist.
func (p *Publisher) EnsureStream(ctx context.Context) error {
	js := p.client.JetStream()

	_, err := js.Stream(ctx, StreamName)
	if err == nil {
		return nil
	}
	if !errors.Is(err, jetstream.ErrStreamNotFound) {
		return fmt.Errorf("failed to look up stream: %w", err)
	}

	_, err = js.CreateStream(ctx, jetstream.StreamConfig{
		Name:        StreamName,
		Subjects:    []string{StreamSubjects()},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      24 * time.Hour,
		MaxMsgs:     100_000,
		Discard:     jetstream.DiscardOld,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
		Description: "Presentation events emitted by the query chat session",
	})
	if err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}
	return nil
}

// Publish queues the event for asynchronous publication. It does not wait
// for the acknowledgement; failures are reported to the connection's async
// error handler.
func (p *Publisher) Publish(ctx context.Context, event model.ViewEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal view event: %w", err)
	}

	_, err = p.client.JetStream().PublishAsync(ViewSubject(event.Kind), data,
		jetstream.WithMsgID(messageID(event)),
	)
	if err != nil {
		return fmt.Errorf("failed to publish view event: %w", err)
	}
	return nil
}

// Recent reads up to limit view events stored after the given stream
// sequence. It returns the events and the last stream sequence read.
func (p *Publisher) Recent(ctx context.Context, afterSequence uint64, limit int) ([]model.ViewEvent, uint64, error) {
	cfg := jetstream.OrderedConsumerConfig{
		FilterSubjects: []string{StreamSubjects()},
		DeliverPolicy:  jetstream.DeliverAllPolicy,
	}
	if afterSequence > 0 {
		cfg.DeliverPolicy = jetstream.DeliverByStartSequencePolicy
		cfg.OptStartSeq = afterSequence + 1
	}

	consumer, err := p.client.JetStream().OrderedConsumer(ctx, StreamName, cfg)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create consumer: %w", err)
	}

	batch, err := consumer.Fetch(limit, jetstream.FetchMaxWait(2*time.Second))
	if err != nil {
		return nil, 0, fmt.Errorf("failed to fetch view events: %w", err)
	}

	var events []model.ViewEvent
	lastSequence := afterSequence
	for msg := range batch.Messages() {
		var event model.ViewEvent
		if err := json.Unmarshal(msg.Data(), &event); err != nil {
			continue
		}
		if meta, err := msg.Metadata(); err == nil {
			lastSequence = meta.Sequence.Stream
		}
		events = append(events, event)
	}

	if err := batch.Error(); err != nil && !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, jetstream.ErrNoMessages) {
		return nil, 0, fmt.Errorf("batch error: %w", err)
	}
	return events, lastSequence, nil
}

// messageID deduplicates retried publishes of the same event.
func messageID(event model.ViewEvent) string {
	return strconv.FormatInt(event.CreatedAt.UnixNano(), 36) + "-" + strconv.FormatUint(event.Sequence, 10)
}
