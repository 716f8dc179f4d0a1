package http

import (
	"encoding/json"
	"net/http"

	"github.com/nuntius-io/nuntius/internal/domain"
	"github.com/nuntius-io/nuntius/internal/service"
	"github.com/nuntius-io/nuntius/pkg/logger"
)

// WebhookEventHandler receives normalised delivery events from email
// providers.
type WebhookEventHandler struct {
	service *service.EventService
	logger  logger.Logger
}

// NewWebhookEventHandler creates a new webhook event handler
func NewWebhookEventHandler(eventService *service.EventService, log logger.Logger) *WebhookEventHandler {
	return &WebhookEventHandler{
		service: eventService,
		logger:  log,
	}
}

// RegisterRoutes registers the webhook HTTP endpoints
func (h *WebhookEventHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /webhooks/email", h.handleIncomingWebhook)
}

// handleIncomingWebhook ingests one provider event. Malformed or
// unprocessable events are acknowledged with 200 so providers do not retry
// them forever; only an unreadable body is a client error.
func (h *WebhookEventHandler) handleIncomingWebhook(w http.ResponseWriter, r *http.Request) {
	var event domain.WebhookEvent
	if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
		h.logger.WithField("error", err.Error()).Warn("Failed to decode webhook body")
		WriteJSONError(w, "Failed to decode request body", http.StatusBadRequest)
		return
	}

	if err := h.service.ProcessEvent(r.Context(), &event); err != nil {
		h.logger.WithField("type", string(event.Type)).
			WithField("message_id", event.MessageID).
			WithField("error", err.Error()).
			Warn("Dropped webhook event")
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"success": false,
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
	})
}
