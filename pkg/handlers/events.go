package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/queryloom/queryloom/pkg/auth"
	"github.com/queryloom/queryloom/pkg/events"
)

// EventsHandler streams pipeline status events over SSE.
type EventsHandler struct {
	broker *events.Broker
	logger *zap.Logger
}

// NewEventsHandler creates an EventsHandler.
func NewEventsHandler(broker *events.Broker, logger *zap.Logger) *EventsHandler {
	return &EventsHandler{broker: broker, logger: logger}
}

// RegisterRoutes registers the events handler's routes on the given mux.
func (h *EventsHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware) {
	mux.HandleFunc("GET /api/v1/events/{conversationId}", authMiddleware.RequireAuth(h.Stream))
}

// Stream handles GET /api/v1/events/{conversationId}. The stream is purely
// observational: it closes when the client disconnects and losing it never
// affects pipeline progress.
func (h *EventsHandler) Stream(w http.ResponseWriter, r *http.Request) {
	conversationID, err := uuid.Parse(r.PathValue("conversationId"))
	if err != nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_request", "conversation id is not a valid UUID")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		_ = ErrorResponse(w, http.StatusInternalServerError, "streaming_unsupported", "response writer does not support streaming")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch, cancel := h.broker.Subscribe(conversationID)
	defer cancel()

	for {
		select {
		case <-r.Context().Done():
			return
		case event, open := <-ch:
			if !open {
				return
			}
			payload, err := json.Marshal(event)
			if err != nil {
				h.logger.Warn("failed to marshal status event", zap.Error(err))
				continue
			}
			if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
