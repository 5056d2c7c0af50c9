package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/queryloom/queryloom/pkg/apperrors"
	"github.com/queryloom/queryloom/pkg/auth"
	"github.com/queryloom/queryloom/pkg/catalog"
)

// ConnectResponse reports the outcome of a connect attempt.
type ConnectResponse struct {
	Connected  bool   `json:"connected"`
	DatabaseID string `json:"database_id,omitempty"`
	Dialect    string `json:"dialect,omitempty"`
	IsSampleDB bool   `json:"is_sample_db"`
	Message    string `json:"message,omitempty"`
}

// StatusResponse reports the active connection.
type StatusResponse struct {
	Connected     bool   `json:"connected"`
	DatabaseID    string `json:"database_id,omitempty"`
	Dialect       string `json:"dialect,omitempty"`
	IsSampleDB    bool   `json:"is_sample_db"`
	SchemaVersion int64  `json:"schema_version,omitempty"`
	TableCount    int    `json:"table_count,omitempty"`
}

// DatabaseHandler serves connection management and schema inspection.
type DatabaseHandler struct {
	manager    *catalog.Manager
	samplePath string
	logger     *zap.Logger
}

// NewDatabaseHandler creates a DatabaseHandler.
func NewDatabaseHandler(manager *catalog.Manager, samplePath string, logger *zap.Logger) *DatabaseHandler {
	return &DatabaseHandler{
		manager:    manager,
		samplePath: samplePath,
		logger:     logger,
	}
}

// RegisterRoutes registers the database handler's routes on the given mux.
func (h *DatabaseHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware) {
	mux.HandleFunc("POST /api/v1/database/connect", authMiddleware.RequireAuth(h.Connect))
	mux.HandleFunc("GET /api/v1/database/status", authMiddleware.RequireAuth(h.Status))
	mux.HandleFunc("GET /api/v1/schema", authMiddleware.RequireAuth(h.Schema))
	mux.HandleFunc("POST /api/v1/schema/refresh", authMiddleware.RequireAuth(h.RefreshSchema))
}

// Connect handles POST /api/v1/database/connect. An empty body (or a body
// that fails to connect) falls back to the built-in sample database.
func (h *DatabaseHandler) Connect(w http.ResponseWriter, r *http.Request) {
	var req catalog.ConnectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_request", "request body is not valid JSON")
		return
	}

	if req.Dialect != "" || req.ConnectionString != "" {
		source, err := h.manager.Connect(r.Context(), req)
		if err == nil {
			_ = WriteJSON(w, http.StatusOK, ConnectResponse{
				Connected:  true,
				DatabaseID: source.ID,
				Dialect:    source.Dialect,
			})
			return
		}
		h.logger.Warn("connect failed, falling back to sample database", zap.Error(err))
	}

	source, err := h.manager.ConnectSample(r.Context(), h.samplePath)
	if err != nil {
		h.logger.Error("sample database bootstrap failed", zap.Error(err))
		_ = ErrorResponse(w, http.StatusServiceUnavailable, "connect_failed", "no database could be connected")
		return
	}
	_ = WriteJSON(w, http.StatusOK, ConnectResponse{
		Connected:  true,
		DatabaseID: source.ID,
		Dialect:    source.Dialect,
		IsSampleDB: true,
		Message:    "connected to the built-in sample database",
	})
}

// Status handles GET /api/v1/database/status.
func (h *DatabaseHandler) Status(w http.ResponseWriter, r *http.Request) {
	source, err := h.manager.Active()
	if err != nil {
		_ = WriteJSON(w, http.StatusOK, StatusResponse{Connected: false})
		return
	}

	resp := StatusResponse{
		Connected:  true,
		DatabaseID: source.ID,
		Dialect:    source.Dialect,
		IsSampleDB: source.IsSample,
	}
	if snapshot, err := h.manager.Snapshot(source.ID); err == nil {
		resp.SchemaVersion = snapshot.Version
		resp.TableCount = len(snapshot.Tables)
	}
	_ = WriteJSON(w, http.StatusOK, resp)
}

// Schema handles GET /api/v1/schema. The optional database_id query
// parameter selects a source other than the active one.
func (h *DatabaseHandler) Schema(w http.ResponseWriter, r *http.Request) {
	databaseID := r.URL.Query().Get("database_id")
	if databaseID == "" {
		source, err := h.manager.Active()
		if err != nil {
			_ = ErrorResponse(w, http.StatusServiceUnavailable, "no_active_database", "no database is connected")
			return
		}
		databaseID = source.ID
	}

	snapshot, err := h.manager.Snapshot(databaseID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			_ = ErrorResponse(w, http.StatusNotFound, "not_found", "no schema snapshot for database")
			return
		}
		h.logger.Error("failed to load schema snapshot", zap.Error(err))
		_ = ErrorResponse(w, http.StatusInternalServerError, "internal_error", "failed to load schema")
		return
	}
	_ = WriteJSON(w, http.StatusOK, snapshot)
}

// RefreshSchema handles POST /api/v1/schema/refresh: re-reflects the active
// source and atomically replaces its snapshot.
func (h *DatabaseHandler) RefreshSchema(w http.ResponseWriter, r *http.Request) {
	source, err := h.manager.Active()
	if err != nil {
		_ = ErrorResponse(w, http.StatusServiceUnavailable, "no_active_database", "no database is connected")
		return
	}

	snapshot, err := h.manager.Refresh(r.Context(), source.ID)
	if err != nil {
		h.logger.Error("schema refresh failed", zap.Error(err))
		_ = ErrorResponse(w, http.StatusInternalServerError, "refresh_failed", "schema reflection failed")
		return
	}
	_ = WriteJSON(w, http.StatusOK, snapshot)
}
