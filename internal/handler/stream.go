package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/capitalize-ai/querychat/internal/middleware"
	"github.com/capitalize-ai/querychat/internal/model"
	"github.com/capitalize-ai/querychat/pkg/logger"
)

// DefaultHeartbeatInterval is how often an idle stream sends a heartbeat.
const DefaultHeartbeatInterval = 30 * time.Second

// EventSource hands out view-event subscriptions.
type EventSource interface {
	Subscribe() (<-chan model.ViewEvent, func())
}

// StreamHandler streams view events to the UI over SSE.
type StreamHandler struct {
	events    EventSource
	heartbeat time.Duration
	logger    *logger.Logger
}

// NewStreamHandler creates a new stream handler.
func NewStreamHandler(events EventSource, heartbeat time.Duration, log *logger.Logger) *StreamHandler {
	if heartbeat <= 0 {
		heartbeat = DefaultHeartbeatInterval
	}
	return &StreamHandler{
		events:    events,
		heartbeat: heartbeat,
		logger:    log.Named("stream"),
	}
}

// Stream handles GET /api/v1/events
func (h *StreamHandler) Stream(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	events, cancel := h.events.Subscribe()
	defer cancel()

	log := h.logger.WithRequest(middleware.GetCorrelationID(ctx), middleware.GetUserID(ctx))
	log.Info("SSE client connected")

	if err := sendSSEEvent(w, flusher, "connected", &model.HeartbeatEvent{Timestamp: time.Now()}); err != nil {
		return
	}

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("SSE client disconnected")
			return

		case event, open := <-events:
			if !open {
				return
			}
			if err := sendSSEEvent(w, flusher, string(event.Kind), event); err != nil {
				log.Warn("failed to write view event", zap.Error(err))
				return
			}

		case <-heartbeat.C:
			if err := sendSSEEvent(w, flusher, "heartbeat", &model.HeartbeatEvent{
				Timestamp: time.Now(),
			}); err != nil {
				return
			}
		}
	}
}

func sendSSEEvent(w http.ResponseWriter, flusher http.Flusher, event string, data interface{}) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}

	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, jsonData); err != nil {
		return err
	}
	flusher.Flush()

	return nil
}
