package handlers

import (
	"net/http"

	"github.com/gorilla/mux"
)

// Routes bundles the handlers mounted under /api.
type Routes struct {
	Radar    *RadarHandler
	Catalog  *CatalogHandler
	Calendar *CalendarHandler
	// RefreshLimit wraps the manual refresh endpoint; nil means unlimited.
	RefreshLimit mux.MiddlewareFunc
}

// Register mounts every API route on r.
func (rt Routes) Register(r *mux.Router) {
	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/version", GetVersion).Methods(http.MethodGet)

	if rt.Radar != nil {
		api.HandleFunc("/radar", rt.Radar.GetRadar).Methods(http.MethodGet)
		api.HandleFunc("/radar/status", rt.Radar.GetStatus).Methods(http.MethodGet)

		var refresh http.Handler = http.HandlerFunc(rt.Radar.TriggerRefresh)
		if rt.RefreshLimit != nil {
			refresh = rt.RefreshLimit(refresh)
		}
		api.Handle("/radar/refresh", refresh).Methods(http.MethodPost)
		api.HandleFunc("/radar/refresh", Options).Methods(http.MethodOptions)
	}

	if rt.Catalog != nil {
		api.HandleFunc("/search", rt.Catalog.Search).Methods(http.MethodGet)
		api.HandleFunc("/titles/{kind}/{id:[0-9]+}", rt.Catalog.Details).Methods(http.MethodGet)
	}

	if rt.Calendar != nil {
		api.HandleFunc("/calendar", rt.Calendar.GetCalendar).Methods(http.MethodGet)
		api.HandleFunc("/calendar", rt.Calendar.AddItem).Methods(http.MethodPost)
		api.HandleFunc("/calendar", Options).Methods(http.MethodOptions)
		api.HandleFunc("/calendar/{id:[0-9]+}", rt.Calendar.RemoveItem).Methods(http.MethodDelete)
		api.HandleFunc("/calendar/{id:[0-9]+}", Options).Methods(http.MethodOptions)
	}
}
