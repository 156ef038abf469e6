// Package remote is the HTTP client for the remote conversation store and
// the query-execution service.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/capitalize-ai/querychat/internal/model"
	"github.com/capitalize-ai/querychat/pkg/logger"
)

// ErrUnauthorized is returned when a remote endpoint answers 401. Callers
// treat it as an expired session.
var ErrUnauthorized = errors.New("session expired")

// StatusError is returned for any other non-2xx response.
type StatusError struct {
	Op         string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s failed: %d %s", e.Op, e.StatusCode, http.StatusText(e.StatusCode))
}

// CredentialSource supplies the bearer token attached to every request.
type CredentialSource interface {
	Token() string
}

// Client talks to the remote services.
type Client struct {
	baseURL    string
	httpClient *http.Client
	creds      CredentialSource
	tracer     trace.Tracer
	logger     *logger.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// NewClient creates a client for the service rooted at baseURL.
func NewClient(baseURL string, creds CredentialSource, log *logger.Logger, opts ...Option) *Client {
	c := &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{},
		creds:      creds,
		tracer:     otel.Tracer("github.com/capitalize-ai/querychat/internal/remote"),
		logger:     log.Named("remote"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ListConversations fetches the conversation summaries of the signed-in user.
func (c *Client) ListConversations(ctx context.Context) ([]model.RemoteConversation, error) {
	var resp model.RemoteListConversationsResponse
	if err := c.do(ctx, "list conversations", http.MethodGet, "/conversations", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Conversations, nil
}

// GetConversationMessages fetches the full message history of a conversation.
func (c *Client) GetConversationMessages(ctx context.Context, conversationID string) ([]model.RemoteMessage, error) {
	var resp model.RemoteMessagesResponse
	path := "/conversations/" + url.PathEscape(conversationID) + "/messages"
	if err := c.do(ctx, "get conversation messages", http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Messages, nil
}

// ExecuteQuery submits a natural-language query with its context window.
func (c *Client) ExecuteQuery(ctx context.Context, req *model.QueryRequest) (*model.QueryResponse, error) {
	if req.ConversationHistory == nil {
		req.ConversationHistory = []model.ContextPair{}
	}
	var resp model.QueryResponse
	if err := c.do(ctx, "execute query", http.MethodPost, "/ask", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) do(ctx context.Context, op, method, path string, body, out any) (err error) {
	ctx, span := c.tracer.Start(ctx, "remote "+op, trace.WithSpanKind(trace.SpanKindClient))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal %s request: %w", op, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build %s request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.creds != nil {
		if token := c.creds.Token(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	c.logger.Debug("remote call",
		zap.String("op", op),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)),
	)

	if resp.StatusCode == http.StatusUnauthorized {
		return ErrUnauthorized
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return &StatusError{Op: op, StatusCode: resp.StatusCode}
	}

	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", op, err)
	}
	return nil
}
