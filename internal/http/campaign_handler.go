package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/nuntius-io/nuntius/internal/domain"
	"github.com/nuntius-io/nuntius/internal/service"
	"github.com/nuntius-io/nuntius/pkg/logger"
)

// CampaignHandler exposes the operator-facing campaign endpoints.
type CampaignHandler struct {
	service *service.CampaignService
	logger  logger.Logger
}

// NewCampaignHandler creates a new campaign handler
func NewCampaignHandler(campaignService *service.CampaignService, log logger.Logger) *CampaignHandler {
	return &CampaignHandler{
		service: campaignService,
		logger:  log,
	}
}

// RegisterRoutes registers the campaign HTTP endpoints
func (h *CampaignHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/campaigns.get", h.handleGet)
	mux.HandleFunc("GET /api/campaigns.stats", h.handleStats)
	mux.HandleFunc("POST /api/campaigns.start", h.handleStart)
	mux.HandleFunc("POST /api/campaigns.pause", h.handlePause)
}

func (h *CampaignHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := campaignID(w, r)
	if !ok {
		return
	}

	campaign, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, id, err, "Failed to get campaign")
		return
	}
	writeJSON(w, http.StatusOK, campaign)
}

func (h *CampaignHandler) handleStats(w http.ResponseWriter, r *http.Request) {
	id, ok := campaignID(w, r)
	if !ok {
		return
	}

	stats, err := h.service.Stats(r.Context(), id)
	if err != nil {
		h.respondError(w, id, err, "Failed to compute campaign stats")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *CampaignHandler) handleStart(w http.ResponseWriter, r *http.Request) {
	id, ok := campaignIDFromBody(w, r)
	if !ok {
		return
	}

	if err := h.service.Start(r.Context(), id); err != nil {
		h.respondError(w, id, err, "Failed to start campaign")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

func (h *CampaignHandler) handlePause(w http.ResponseWriter, r *http.Request) {
	id, ok := campaignIDFromBody(w, r)
	if !ok {
		return
	}

	if err := h.service.Pause(r.Context(), id); err != nil {
		h.respondError(w, id, err, "Failed to pause campaign")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

func (h *CampaignHandler) respondError(w http.ResponseWriter, id int64, err error, msg string) {
	var notFound *domain.ErrNotFound
	if errors.As(err, &notFound) {
		WriteJSONError(w, "Campaign not found", http.StatusNotFound)
		return
	}
	h.logger.WithField("campaign_id", id).
		WithField("error", err.Error()).
		Error(msg)
	WriteJSONError(w, err.Error(), http.StatusBadRequest)
}

func campaignID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.URL.Query().Get("id"), 10, 64)
	if err != nil || id <= 0 {
		WriteJSONError(w, "Invalid campaign id", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

func campaignIDFromBody(w http.ResponseWriter, r *http.Request) (int64, bool) {
	var body struct {
		ID int64 `json:"id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.ID <= 0 {
		WriteJSONError(w, "Invalid campaign id", http.StatusBadRequest)
		return 0, false
	}
	return body.ID, true
}
