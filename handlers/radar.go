package handlers

import (
	"context"
	"log"
	"net/http"
	"strings"

	"cinegenio/models"
	"cinegenio/services/radar"
)

type radarService interface {
	Radar(ctx context.Context) (*models.RadarResponse, error)
	Refresh(ctx context.Context) (*radar.RefreshResult, error)
	RefreshNow() bool
	GetStatus() radar.Status
}

var _ radarService = (*radar.Service)(nil)

// RadarHandler serves the release radar.
type RadarHandler struct {
	Service radarService
}

func NewRadarHandler(service radarService) *RadarHandler {
	return &RadarHandler{Service: service}
}

// GetRadar returns the current snapshot. With ?category= only that bucket is
// returned. No snapshot yet means 503 with state "unavailable".
func (h *RadarHandler) GetRadar(w http.ResponseWriter, r *http.Request) {
	resp, err := h.Service.Radar(r.Context())
	if err != nil {
		log.Printf("[radar] read failed: %v", err)
		writeError(w, http.StatusInternalServerError, "could not load radar")
		return
	}

	if category := strings.TrimSpace(r.URL.Query().Get("category")); category != "" {
		items := resp.ByCategory[models.Category(category)]
		if items == nil {
			items = []models.RadarItem{}
		}
		resp.Items = items
		resp.Total = len(items)
		resp.ByCategory = map[models.Category][]models.RadarItem{models.Category(category): items}
	}

	status := http.StatusOK
	if resp.State == "unavailable" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

func (h *RadarHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Service.GetStatus())
}

// TriggerRefresh queues a refresh on the background worker. Without a
// running worker the refresh runs inline and its result is returned.
func (h *RadarHandler) TriggerRefresh(w http.ResponseWriter, r *http.Request) {
	if h.Service.GetStatus().Running {
		queued := h.Service.RefreshNow()
		writeJSON(w, http.StatusAccepted, map[string]bool{"queued": queued})
		return
	}

	result, err := h.Service.Refresh(r.Context())
	if err != nil {
		log.Printf("[radar] manual refresh failed: %v", err)
		if radar.IsPersistenceError(err) {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}
