package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"cinegenio/models"
	"cinegenio/services/catalog"
)

type catalogService interface {
	Search(ctx context.Context, query, lang string) ([]models.RadarItem, error)
	Details(ctx context.Context, id int64, kind models.MediaKind) (*models.CatalogDetails, error)
}

var _ catalogService = (*catalog.Client)(nil)

// CatalogHandler serves catalog search and title details.
type CatalogHandler struct {
	Service catalogService
}

func NewCatalogHandler(service catalogService) *CatalogHandler {
	return &CatalogHandler{Service: service}
}

func (h *CatalogHandler) Search(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		writeError(w, http.StatusBadRequest, "query parameter q is required")
		return
	}
	results, err := h.Service.Search(r.Context(), q, r.URL.Query().Get("lang"))
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	if results == nil {
		results = []models.RadarItem{}
	}
	writeJSON(w, http.StatusOK, results)
}

// Details serves /api/titles/{kind}/{id}, including the region's watch providers.
func (h *CatalogHandler) Details(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	kind, ok := models.ParseMediaKind(vars["kind"])
	if !ok {
		writeError(w, http.StatusBadRequest, "kind must be movie or series")
		return
	}
	id, err := strconv.ParseInt(vars["id"], 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	details, err := h.Service.Details(r.Context(), id, kind)
	switch {
	case errors.Is(err, catalog.ErrNotFound):
		writeError(w, http.StatusNotFound, "title not found")
	case err != nil:
		writeError(w, http.StatusBadGateway, err.Error())
	default:
		writeJSON(w, http.StatusOK, details)
	}
}
