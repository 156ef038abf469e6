package handler

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/capitalize-ai/querychat/internal/middleware"
	"github.com/capitalize-ai/querychat/internal/model"
	"github.com/capitalize-ai/querychat/internal/remote"
	"github.com/capitalize-ai/querychat/internal/store"
	"github.com/capitalize-ai/querychat/pkg/logger"
)

// SessionHandler handles session lifecycle endpoints.
type SessionHandler struct {
	store  *store.Store
	logger *logger.Logger
}

// NewSessionHandler creates a new session handler.
func NewSessionHandler(st *store.Store, log *logger.Logger) *SessionHandler {
	return &SessionHandler{
		store:  st,
		logger: log.Named("handler"),
	}
}

// Hydrate handles POST /api/v1/session/hydrate
// The list is returned even when only the most recent conversation failed
// to load; that conversation carries the failure notice.
func (h *SessionHandler) Hydrate(w http.ResponseWriter, r *http.Request) {
	if err := h.store.HydrateFromRemote(r.Context()); err != nil {
		log := h.logger.WithRequest(middleware.GetCorrelationID(r.Context()), middleware.GetUserID(r.Context()))
		if !errors.Is(err, store.ErrLoadFailed) || errors.Is(err, remote.ErrUnauthorized) {
			log.Warn("hydration failed", zap.Error(err))
			writeRemoteError(w, err, "failed to load conversations")
			return
		}
		log.Warn("hydrated without most recent history", zap.Error(err))
	}

	writeJSON(w, http.StatusOK, &model.ListConversationsResponse{
		Conversations: h.store.Summaries(),
		CurrentID:     h.store.CurrentID(),
	})
}
