package handlers

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/goccy/go-json"
	"github.com/gorilla/mux"

	"cinegenio/models"
	"cinegenio/services/calendar"
)

const maxCalendarDays = 365

type calendarService interface {
	List(ctx context.Context, days int) (*models.CalendarResponse, error)
	Add(ctx context.Context, item models.RadarItem) (*models.CalendarEntry, error)
	Remove(ctx context.Context, id int64) error
}

var _ calendarService = (*calendar.Service)(nil)

// CalendarHandler serves the personal calendar of saved radar items.
type CalendarHandler struct {
	Service calendarService
}

func NewCalendarHandler(service calendarService) *CalendarHandler {
	return &CalendarHandler{Service: service}
}

// GetCalendar lists saved items releasing in the next ?days= days.
func (h *CalendarHandler) GetCalendar(w http.ResponseWriter, r *http.Request) {
	days := 0
	if daysStr := r.URL.Query().Get("days"); daysStr != "" {
		parsed, err := strconv.Atoi(daysStr)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, "days must be a positive integer")
			return
		}
		days = min(parsed, maxCalendarDays)
	}

	resp, err := h.Service.List(r.Context(), days)
	if err != nil {
		log.Printf("[calendar] list failed: %v", err)
		writeError(w, http.StatusInternalServerError, "could not load calendar")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *CalendarHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	var item models.RadarItem
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(&item); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	kind, ok := models.ParseMediaKind(string(item.MediaKind))
	if !ok {
		writeError(w, http.StatusBadRequest, "mediaKind must be movie or series")
		return
	}
	item.MediaKind = kind

	entry, err := h.Service.Add(r.Context(), item)
	switch {
	case errors.Is(err, calendar.ErrInvalidItem):
		writeError(w, http.StatusBadRequest, err.Error())
	case err != nil:
		log.Printf("[calendar] add failed: %v", err)
		writeError(w, http.StatusInternalServerError, "could not save item")
	default:
		writeJSON(w, http.StatusCreated, entry)
	}
}

func (h *CalendarHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	err = h.Service.Remove(r.Context(), id)
	switch {
	case errors.Is(err, calendar.ErrNotFound):
		writeError(w, http.StatusNotFound, "item not on calendar")
	case err != nil:
		log.Printf("[calendar] remove failed: %v", err)
		writeError(w, http.StatusInternalServerError, "could not remove item")
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}
