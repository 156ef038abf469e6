package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/capitalize-ai/querychat/internal/middleware"
	"github.com/capitalize-ai/querychat/internal/model"
	"github.com/capitalize-ai/querychat/internal/session"
	"github.com/capitalize-ai/querychat/pkg/logger"
)

// QueryHandler handles query submission.
type QueryHandler struct {
	controller *session.Controller
	logger     *logger.Logger
}

// NewQueryHandler creates a new query handler.
func NewQueryHandler(controller *session.Controller, log *logger.Logger) *QueryHandler {
	return &QueryHandler{
		controller: controller,
		logger:     log.Named("handler"),
	}
}

// Submit handles POST /api/v1/query. The response is written once the turn
// has finished; its messages are also delivered on the event stream.
func (h *QueryHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var req model.SubmitQueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := middleware.ValidateQueryText(req.Query); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := h.controller.Submit(r.Context(), req.Query)
	switch {
	case errors.Is(err, session.ErrQueryInFlight):
		writeError(w, http.StatusConflict, err.Error())
		return
	case errors.Is(err, session.ErrEmptyQuery):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		h.logger.Error("query submission failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to submit query")
		return
	}

	writeJSON(w, http.StatusOK, &model.SubmitQueryResponse{
		ConversationID: res.ConversationID,
		Outcome:        string(res.Outcome),
		GeneratedQuery: res.GeneratedQuery,
	})
}
