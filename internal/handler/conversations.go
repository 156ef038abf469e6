// Package handler provides HTTP handlers for the gateway.
package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/capitalize-ai/querychat/internal/middleware"
	"github.com/capitalize-ai/querychat/internal/model"
	"github.com/capitalize-ai/querychat/internal/store"
	"github.com/capitalize-ai/querychat/pkg/logger"
)

// ConversationHandler handles conversation endpoints.
type ConversationHandler struct {
	store  *store.Store
	logger *logger.Logger
}

// NewConversationHandler creates a new conversation handler.
func NewConversationHandler(st *store.Store, log *logger.Logger) *ConversationHandler {
	return &ConversationHandler{
		store:  st,
		logger: log.Named("handler"),
	}
}

// Create handles POST /api/v1/conversations
func (h *ConversationHandler) Create(w http.ResponseWriter, r *http.Request) {
	id := h.store.CreateConversation()
	writeJSON(w, http.StatusCreated, &model.CreateConversationResponse{ID: id})
}

// List handles GET /api/v1/conversations
func (h *ConversationHandler) List(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, &model.ListConversationsResponse{
		Conversations: h.store.RenderList(),
		CurrentID:     h.store.CurrentID(),
	})
}

// Get handles GET /api/v1/conversations/:id
func (h *ConversationHandler) Get(w http.ResponseWriter, r *http.Request) {
	conversationID, ok := conversationIDParam(w, r)
	if !ok {
		return
	}

	conv, found := h.store.Conversation(conversationID)
	if !found {
		writeError(w, http.StatusNotFound, "conversation not found")
		return
	}

	writeJSON(w, http.StatusOK, conv)
}

// Load handles POST /api/v1/conversations/:id/load
func (h *ConversationHandler) Load(w http.ResponseWriter, r *http.Request) {
	conversationID, ok := conversationIDParam(w, r)
	if !ok {
		return
	}

	if err := h.store.LoadConversation(r.Context(), conversationID); err != nil {
		h.logger.WithRequest(middleware.GetCorrelationID(r.Context()), middleware.GetUserID(r.Context())).
			Warn("conversation load failed", zap.String("conversation_id", conversationID), zap.Error(err))
		writeRemoteError(w, err, "failed to load conversation")
		return
	}

	conv, found := h.store.Conversation(conversationID)
	if !found {
		writeError(w, http.StatusNotFound, "conversation not found")
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

// Context handles GET /api/v1/conversations/:id/context
func (h *ConversationHandler) Context(w http.ResponseWriter, r *http.Request) {
	conversationID, ok := conversationIDParam(w, r)
	if !ok {
		return
	}

	writeJSON(w, http.StatusOK, &model.ContextResponse{
		ConversationID: conversationID,
		Context:        h.store.GetContext(conversationID),
	})
}

func conversationIDParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	conversationID := chi.URLParam(r, "id")
	if err := middleware.ValidateConversationID(conversationID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return "", false
	}
	return conversationID, true
}
