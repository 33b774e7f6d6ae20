package handlers

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/rs/zerolog/log"

	"switchboard/internal/engine/webhooks"
	"switchboard/internal/pkg/errors"
)

type EventHandler struct {
	broadcaster *webhooks.Broadcaster
}

func NewEventHandler(broadcaster *webhooks.Broadcaster) *EventHandler {
	return &EventHandler{broadcaster: broadcaster}
}

type eventResponse struct {
	Success    bool `json:"success"`
	Dispatched int  `json:"dispatched"`
}

// Receive handles POST /events/:event_type. Providers get a 200 as soon as
// dispatch has started; dispatch outcomes never change the reply.
func (h *EventHandler) Receive(w http.ResponseWriter, r *http.Request) {
	eventType := param(r, "event_type")
	logger := log.Ctx(r.Context()).With().Str("component", "events").Str("event", eventType).Logger()

	body, err := io.ReadAll(r.Body)
	if err != nil || !json.Valid(body) {
		errors.Write(w, errors.New(errors.KindInvalidInput, "event body must be valid JSON"))
		return
	}

	n, err := h.broadcaster.Broadcast(r.Context(), webhooks.Event{EventType: eventType, Payload: body})
	switch {
	case err == nil:
	case err == webhooks.ErrShuttingDown:
		errors.WriteError(w, http.StatusServiceUnavailable, errors.ErrCodeInternal, "server is shutting down", nil)
		return
	case errors.Is(err, errors.KindTenantNotFound), errors.Is(err, errors.KindInvalidInput):
		logger.Warn().Err(err).Msg("event dropped: tenant could not be resolved")
	default:
		logger.Error().Err(err).Msg("event dispatch failed to start")
	}

	writeJSON(w, http.StatusOK, eventResponse{Success: true, Dispatched: n})
}
