package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/queryloom/queryloom/pkg/apperrors"
	"github.com/queryloom/queryloom/pkg/auth"
	"github.com/queryloom/queryloom/pkg/models"
	"github.com/queryloom/queryloom/pkg/pipeline"
	"github.com/queryloom/queryloom/pkg/sqlsafe"
	"github.com/queryloom/queryloom/pkg/store"
)

// QueryRequest is the submit-question payload.
type QueryRequest struct {
	Question           string `json:"question"`
	ConversationID     string `json:"conversation_id,omitempty"`
	ExplanationStyle   string `json:"explanation_style,omitempty"`
	ExecuteQuery       bool   `json:"execute_query"`
	ConfirmFingerprint string `json:"confirm_fingerprint,omitempty"`
}

// ExecuteSQLRequest is the raw-statement payload.
type ExecuteSQLRequest struct {
	SQL                string `json:"sql"`
	ConfirmFingerprint string `json:"confirm_fingerprint,omitempty"`
}

// ConversationResponse is the history payload.
type ConversationResponse struct {
	ConversationID uuid.UUID                  `json:"conversation_id"`
	Turns          []*models.ConversationTurn `json:"turns"`
}

// QueryHandler serves the question, raw-SQL, and conversation endpoints.
type QueryHandler struct {
	orchestrator *pipeline.Orchestrator
	turns        store.TurnStore
	logger       *zap.Logger
}

// NewQueryHandler creates a QueryHandler.
func NewQueryHandler(orchestrator *pipeline.Orchestrator, turns store.TurnStore, logger *zap.Logger) *QueryHandler {
	return &QueryHandler{
		orchestrator: orchestrator,
		turns:        turns,
		logger:       logger,
	}
}

// RegisterRoutes registers the query handler's routes on the given mux.
func (h *QueryHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware) {
	mux.HandleFunc("POST /api/v1/query", authMiddleware.RequireAuth(h.ProcessQuestion))
	mux.HandleFunc("POST /api/v1/execute-sql", authMiddleware.RequireAuth(h.ExecuteSQL))
	mux.HandleFunc("GET /api/v1/conversations/{id}", authMiddleware.RequireAuth(h.GetConversation))
}

// ProcessQuestion handles POST /api/v1/query.
func (h *QueryHandler) ProcessQuestion(w http.ResponseWriter, r *http.Request) {
	var req QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_request", "request body is not valid JSON")
		return
	}
	if req.Question == "" && req.ConfirmFingerprint == "" {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_request", "question is required")
		return
	}

	style, err := models.ParseExplanationStyle(req.ExplanationStyle)
	if err != nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	conversationID := uuid.Nil
	if req.ConversationID != "" {
		conversationID, err = uuid.Parse(req.ConversationID)
		if err != nil {
			_ = ErrorResponse(w, http.StatusBadRequest, "invalid_request", "conversation_id is not a valid UUID")
			return
		}
	}

	resp, err := h.orchestrator.Process(r.Context(), requestAccess(r), pipeline.ProcessRequest{
		Question:           req.Question,
		ConversationID:     conversationID,
		Style:              style,
		Execute:            req.ExecuteQuery,
		ConfirmFingerprint: req.ConfirmFingerprint,
	})
	if err != nil {
		h.writePipelineError(w, err)
		return
	}
	_ = WriteJSON(w, http.StatusOK, resp)
}

// ExecuteSQL handles POST /api/v1/execute-sql.
func (h *QueryHandler) ExecuteSQL(w http.ResponseWriter, r *http.Request) {
	var req ExecuteSQLRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_request", "request body is not valid JSON")
		return
	}
	if req.SQL == "" {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_request", "sql is required")
		return
	}

	resp, err := h.orchestrator.ExecuteRaw(r.Context(), requestAccess(r), pipeline.RawRequest{
		SQL:                req.SQL,
		ConfirmFingerprint: req.ConfirmFingerprint,
	})
	if err != nil {
		h.writePipelineError(w, err)
		return
	}
	_ = WriteJSON(w, http.StatusOK, resp)
}

// GetConversation handles GET /api/v1/conversations/{id}.
func (h *QueryHandler) GetConversation(w http.ResponseWriter, r *http.Request) {
	conversationID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_request", "conversation id is not a valid UUID")
		return
	}

	turns, err := h.turns.ListTurns(r.Context(), conversationID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			_ = ErrorResponse(w, http.StatusNotFound, "not_found", "conversation not found")
			return
		}
		h.logger.Error("failed to load conversation", zap.Error(err))
		_ = ErrorResponse(w, http.StatusInternalServerError, "internal_error", "failed to load conversation")
		return
	}

	_ = WriteJSON(w, http.StatusOK, ConversationResponse{
		ConversationID: conversationID,
		Turns:          turns,
	})
}

// writePipelineError maps orchestrator errors to transport status codes
// without leaking internals.
func (h *QueryHandler) writePipelineError(w http.ResponseWriter, err error) {
	category := apperrors.CategoryOf(err)
	status := http.StatusInternalServerError
	if category == apperrors.CategoryUpstreamUnavailable {
		status = http.StatusServiceUnavailable
	}

	var perr *apperrors.PipelineError
	message := "request could not be processed"
	if errors.As(err, &perr) {
		message = perr.Message
	}
	h.logger.Warn("pipeline request failed",
		zap.String("category", string(category)),
		zap.Error(err))
	_ = ErrorResponse(w, status, string(category), message)
}

// requestAccess extracts the caller's table permissions. Unauthenticated and
// unrestricted principals impose no restrictions.
func requestAccess(r *http.Request) sqlsafe.TableAccess {
	principal, ok := auth.GetPrincipal(r.Context())
	if !ok || !principal.Restricted() {
		return nil
	}
	return principal
}
