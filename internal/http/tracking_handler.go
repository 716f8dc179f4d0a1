package http

import (
	"encoding/base64"
	"errors"
	"net/http"
	"net/url"

	"github.com/nuntius-io/nuntius/internal/domain"
	"github.com/nuntius-io/nuntius/pkg/crypto"
	"github.com/nuntius-io/nuntius/pkg/logger"
)

// trackingPixel is a transparent 1x1 PNG served by the open endpoint.
var trackingPixel, _ = base64.StdEncoding.DecodeString(
	"iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAQAAAC1HAwCAAAAC0lEQVR42mNkYAAAAAYAAjCB0C8AAAAASUVORK5CYII=")

// TrackingHandler serves the per-message engagement endpoints embedded in
// outgoing mail: the open pixel and the signed click redirect.
type TrackingHandler struct {
	sendRecordRepo domain.SendRecordRepository
	campaignRepo   domain.CampaignRepository
	logger         logger.Logger
}

// NewTrackingHandler creates a new tracking handler
func NewTrackingHandler(sendRecordRepo domain.SendRecordRepository, campaignRepo domain.CampaignRepository, log logger.Logger) *TrackingHandler {
	return &TrackingHandler{
		sendRecordRepo: sendRecordRepo,
		campaignRepo:   campaignRepo,
		logger:         log,
	}
}

// RegisterRoutes registers the tracking HTTP endpoints
func (h *TrackingHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /open/{tracking_id}", h.handleOpen)
	mux.HandleFunc("GET /link/{tracking_id}/{signature}/{link}", h.handleClick)
}

// handleOpen counts one open and answers with the pixel.
func (h *TrackingHandler) handleOpen(w http.ResponseWriter, r *http.Request) {
	trackingID := r.PathValue("tracking_id")

	_, err := h.sendRecordRepo.IncrementOpenCount(r.Context(), trackingID)
	if err != nil {
		var notFound *domain.ErrNotFound
		if errors.As(err, &notFound) {
			http.NotFound(w, r)
			return
		}
		h.logger.WithField("tracking_id", trackingID).
			WithField("error", err.Error()).
			Error("Failed to count open")
		WriteJSONError(w, "Failed to record open", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(trackingPixel)
}

// handleClick verifies the link signature, counts one click and redirects to
// the target with the campaign's tracking parameters applied.
func (h *TrackingHandler) handleClick(w http.ResponseWriter, r *http.Request) {
	trackingID := r.PathValue("tracking_id")
	signature := r.PathValue("signature")
	link := r.PathValue("link")

	record, err := h.sendRecordRepo.GetByTrackingID(r.Context(), trackingID)
	if err != nil {
		var notFound *domain.ErrNotFound
		if errors.As(err, &notFound) {
			http.NotFound(w, r)
			return
		}
		WriteJSONError(w, "Failed to resolve link", http.StatusInternalServerError)
		return
	}
	if record.CampaignID == nil {
		http.NotFound(w, r)
		return
	}

	campaign, err := h.campaignRepo.GetByID(r.Context(), *record.CampaignID)
	if err != nil {
		WriteJSONError(w, "Failed to resolve link", http.StatusInternalServerError)
		return
	}

	if !crypto.VerifyURLSignature(campaign.SignatureKey, link, signature) {
		h.logger.WithField("tracking_id", trackingID).Warn("Rejected link with bad signature")
		WriteJSONError(w, "Invalid link signature", http.StatusForbidden)
		return
	}

	if _, err := h.sendRecordRepo.IncrementClickCount(r.Context(), trackingID); err != nil {
		h.logger.WithField("tracking_id", trackingID).
			WithField("error", err.Error()).
			Error("Failed to count click")
	}

	http.Redirect(w, r, campaignTarget(link, campaign.UTMName), http.StatusFound)
}

// campaignTarget decorates the destination with the campaign attribution
// parameters. Source and medium always identify this system, utm_campaign
// only fills in when the author left it unset.
func campaignTarget(link, utmName string) string {
	u, err := url.Parse(link)
	if err != nil {
		return link
	}
	query := u.Query()
	query.Set("utm_source", "nuntius")
	query.Set("utm_medium", "email")
	if !query.Has("utm_campaign") {
		query.Set("utm_campaign", utmName)
	}
	u.RawQuery = query.Encode()
	return u.String()
}
