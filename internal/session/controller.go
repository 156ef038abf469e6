// Package session runs query turns: it enforces a single outstanding query,
// feeds the context window to the query-execution service and routes the
// response back into the conversation store.
package session

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/capitalize-ai/querychat/internal/model"
	"github.com/capitalize-ai/querychat/internal/remote"
	"github.com/capitalize-ai/querychat/internal/render"
	"github.com/capitalize-ai/querychat/internal/store"
	"github.com/capitalize-ai/querychat/pkg/logger"
	"github.com/capitalize-ai/querychat/pkg/metrics"
)

var (
	// ErrQueryInFlight is returned when a query is submitted while another
	// one is outstanding.
	ErrQueryInFlight = errors.New("a query is already in flight")

	// ErrEmptyQuery is returned for a blank query.
	ErrEmptyQuery = errors.New("query is empty")
)

// Outcome is how a query turn ended.
type Outcome string

const (
	OutcomeTable        Outcome = "table"
	OutcomeChart        Outcome = "chart"
	OutcomeDomainError  Outcome = "error"
	OutcomeTransport    Outcome = "transport_failure"
	OutcomeUnauthorized Outcome = "unauthorized"
)

// Executor is the remote query-execution service.
type Executor interface {
	ExecuteQuery(ctx context.Context, req *model.QueryRequest) (*model.QueryResponse, error)
}

// Store is the part of the conversation store a query turn touches.
type Store interface {
	CurrentID() string
	CreateConversation() string
	GetContext(conversationID string) []model.ContextPair
	AppendMessageTo(conversationID, content string, typ model.MessageType, opts store.AppendOptions) error
	AttachGeneratedQueryTo(conversationID, query string) bool
}

// View shows turn progress.
type View interface {
	SetLoading(visible bool)
	SetSuggestionsVisible(visible bool)
}

// Expirer is told when the remote service rejects the session.
type Expirer interface {
	Expire()
}

// Config holds the controller timings.
type Config struct {
	QueryTimeout time.Duration
}

// Result describes a completed query turn.
type Result struct {
	ConversationID string
	Outcome        Outcome
	GeneratedQuery string
}

// Controller wires user submissions to the store and the query service.
type Controller struct {
	store  Store
	exec   Executor
	view   View
	expiry Expirer
	cfg    Config
	tracer trace.Tracer
	logger *logger.Logger

	inFlight atomic.Bool
}

// NewController creates a Controller. expiry may be nil.
func NewController(st Store, exec Executor, view View, expiry Expirer, cfg Config, log *logger.Logger) *Controller {
	if cfg.QueryTimeout <= 0 {
		cfg.QueryTimeout = 30 * time.Second
	}
	return &Controller{
		store:  st,
		exec:   exec,
		view:   view,
		expiry: expiry,
		cfg:    cfg,
		tracer: otel.Tracer("github.com/capitalize-ai/querychat/internal/session"),
		logger: log.Named("session"),
	}
}

// InFlight reports whether a query is outstanding.
func (c *Controller) InFlight() bool {
	return c.inFlight.Load()
}

// Submit runs one query turn. It returns ErrEmptyQuery or ErrQueryInFlight
// when the submission is rejected; every other failure ends the turn with a
// notice in the thread and a nil error. The turn is not cancelled when ctx
// is, only bounded by the query timeout.
func (c *Controller) Submit(ctx context.Context, text string) (*Result, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyQuery
	}
	if !c.inFlight.CompareAndSwap(false, true) {
		metrics.QueriesRejectedTotal.Inc()
		return nil, ErrQueryInFlight
	}
	defer c.inFlight.Store(false)

	conversationID := c.store.CurrentID()
	if conversationID == "" {
		conversationID = c.store.CreateConversation()
	}
	log := c.logger.WithConversation(conversationID)

	history := c.store.GetContext(conversationID)
	if err := c.store.AppendMessageTo(conversationID, text, model.MessageTypeUser, store.AppendOptions{}); err != nil {
		return nil, err
	}

	c.view.SetSuggestionsVisible(false)
	c.view.SetLoading(true)
	defer c.view.SetLoading(false)

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.cfg.QueryTimeout)
	defer cancel()
	ctx, span := c.tracer.Start(ctx, "session submit",
		trace.WithAttributes(
			attribute.String("conversation.id", conversationID),
			attribute.Int("context.pairs", len(history)),
		),
	)
	defer span.End()

	start := time.Now()
	resp, err := c.exec.ExecuteQuery(ctx, &model.QueryRequest{
		Query:               text,
		ConversationID:      conversationID,
		ConversationHistory: history,
	})

	result := &Result{ConversationID: conversationID}
	switch {
	case errors.Is(err, remote.ErrUnauthorized):
		result.Outcome = OutcomeUnauthorized
		log.Warn("session expired during query")
		c.appendBot(conversationID, render.SessionExpiredNotice, store.AppendOptions{})
		if c.expiry != nil {
			c.expiry.Expire()
		}
	case err != nil:
		result.Outcome = OutcomeTransport
		log.Error("query execution failed", zap.Error(err))
		c.appendBot(conversationID, render.ConnectionErrorNotice, store.AppendOptions{})
	default:
		result.GeneratedQuery = resp.SQL
		result.Outcome = c.applyResponse(conversationID, resp, log)
	}

	span.SetAttributes(attribute.String("query.outcome", string(result.Outcome)))
	metrics.RecordQueryTurn(string(result.Outcome), time.Since(start).Seconds())
	log.Info("query turn finished",
		zap.String("outcome", string(result.Outcome)),
		zap.Duration("duration", time.Since(start)),
	)
	return result, nil
}

func (c *Controller) applyResponse(conversationID string, resp *model.QueryResponse, log *logger.Logger) Outcome {
	if resp.SQL != "" {
		c.store.AttachGeneratedQueryTo(conversationID, resp.SQL)
	}

	if msg := resp.DomainError(); msg != "" {
		c.appendBot(conversationID, render.ErrorNotice(msg), store.AppendOptions{})
		return OutcomeDomainError
	}

	if resp.IsChart() {
		c.appendBot(conversationID, "", store.AppendOptions{IsChart: true, ChartConfig: resp.Chart})
		return OutcomeChart
	}

	html, err := render.Table(resp.Result)
	if err != nil {
		log.Error("failed to render result table", zap.Error(err))
		c.appendBot(conversationID, render.ErrorNotice(err.Error()), store.AppendOptions{})
		return OutcomeDomainError
	}
	c.appendBot(conversationID, html, store.AppendOptions{IsHTML: true})
	return OutcomeTable
}

func (c *Controller) appendBot(conversationID, content string, opts store.AppendOptions) {
	if err := c.store.AppendMessageTo(conversationID, content, model.MessageTypeBot, opts); err != nil {
		c.logger.Error("failed to append bot message", zap.Error(err))
	}
}
