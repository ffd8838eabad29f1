package handlers_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/goccy/go-json"
	"github.com/gorilla/mux"

	"cinegenio/handlers"
	"cinegenio/models"
	"cinegenio/services/radar"
)

// --- Fake radar service ---

type fakeRadar struct {
	resp       *models.RadarResponse
	err        error
	running    bool
	queued     bool
	refreshes  int
	refreshErr error
}

func (f *fakeRadar) Radar(context.Context) (*models.RadarResponse, error) {
	return f.resp, f.err
}

func (f *fakeRadar) Refresh(context.Context) (*radar.RefreshResult, error) {
	f.refreshes++
	if f.refreshErr != nil {
		return nil, f.refreshErr
	}
	return &radar.RefreshResult{Generation: "gen-1", ItemCount: 2}, nil
}

func (f *fakeRadar) RefreshNow() bool {
	return f.queued
}

func (f *fakeRadar) GetStatus() radar.Status {
	return radar.Status{Running: f.running, State: radar.StateIdle}
}

func newRadarRouter(svc *fakeRadar) *mux.Router {
	r := mux.NewRouter()
	handlers.Routes{Radar: handlers.NewRadarHandler(svc)}.Register(r)
	return r
}

func serve(r http.Handler, method, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

func snapshot() *models.RadarResponse {
	trending := models.RadarItem{ExternalID: 1, MediaKind: models.MediaKindMovie, Title: "A", ReleaseDate: "2026-01-01", Category: models.CategoryTrending}
	upcoming := models.RadarItem{ExternalID: 2, MediaKind: models.MediaKindMovie, Title: "B", ReleaseDate: "2026-02-01", Category: models.CategoryUpcoming}
	return &models.RadarResponse{
		State: "ok",
		Items: []models.RadarItem{trending, upcoming},
		ByCategory: map[models.Category][]models.RadarItem{
			models.CategoryTrending: {trending},
			models.CategoryUpcoming: {upcoming},
		},
		Total:      2,
		Generation: "gen-1",
	}
}

// --- Tests ---

func TestGetRadar(t *testing.T) {
	rec := serve(newRadarRouter(&fakeRadar{resp: snapshot()}), http.MethodGet, "/api/radar")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body models.RadarResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Total != 2 || body.Generation != "gen-1" {
		t.Errorf("unexpected body %+v", body)
	}
}

func TestGetRadarCategoryFilter(t *testing.T) {
	rec := serve(newRadarRouter(&fakeRadar{resp: snapshot()}), http.MethodGet, "/api/radar?category=upcoming")
	var body models.RadarResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Total != 1 || body.Items[0].ExternalID != 2 {
		t.Fatalf("expected only the upcoming item, got %+v", body.Items)
	}

	rec = serve(newRadarRouter(&fakeRadar{resp: snapshot()}), http.MethodGet, "/api/radar?category=top_provider_8")
	body = models.RadarResponse{}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Total != 0 || body.Items == nil {
		t.Fatalf("expected an empty list, got %+v", body.Items)
	}
}

func TestGetRadarUnavailable(t *testing.T) {
	svc := &fakeRadar{resp: &models.RadarResponse{
		State:      "unavailable",
		Items:      []models.RadarItem{},
		ByCategory: map[models.Category][]models.RadarItem{},
		LastError:  "all 6 due categories failed",
	}}
	rec := serve(newRadarRouter(svc), http.MethodGet, "/api/radar")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
	var body models.RadarResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.LastError == "" {
		t.Error("expected lastError to explain the outage")
	}
}

func TestGetRadarStoreError(t *testing.T) {
	rec := serve(newRadarRouter(&fakeRadar{err: errors.New("disk gone")}), http.MethodGet, "/api/radar")
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
}

func TestTriggerRefreshQueuesOnWorker(t *testing.T) {
	svc := &fakeRadar{running: true, queued: true}
	rec := serve(newRadarRouter(svc), http.MethodPost, "/api/radar/refresh")
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", rec.Code)
	}
	if svc.refreshes != 0 {
		t.Error("expected no inline refresh while the worker runs")
	}
}

func TestTriggerRefreshInline(t *testing.T) {
	svc := &fakeRadar{}
	rec := serve(newRadarRouter(svc), http.MethodPost, "/api/radar/refresh")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if svc.refreshes != 1 {
		t.Fatalf("expected one inline refresh, got %d", svc.refreshes)
	}

	svc.refreshErr = &radar.PersistenceError{Op: "replace", Err: errors.New("locked")}
	rec = serve(newRadarRouter(svc), http.MethodPost, "/api/radar/refresh")
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 on persistence failure, got %d", rec.Code)
	}

	svc.refreshErr = errors.New("all 6 due categories failed")
	rec = serve(newRadarRouter(svc), http.MethodPost, "/api/radar/refresh")
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502 when the catalog is down, got %d", rec.Code)
	}
}

func TestRefreshLimitApplies(t *testing.T) {
	blocked := func(http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
		})
	}
	svc := &fakeRadar{}
	r := mux.NewRouter()
	handlers.Routes{Radar: handlers.NewRadarHandler(svc), RefreshLimit: blocked}.Register(r)

	if rec := serve(r, http.MethodPost, "/api/radar/refresh"); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	if svc.refreshes != 0 {
		t.Error("expected the limiter to stop the refresh")
	}
}

func TestGetRadarStatus(t *testing.T) {
	rec := serve(newRadarRouter(&fakeRadar{running: true}), http.MethodGet, "/api/radar/status")
	var status radar.Status
	if err := json.NewDecoder(rec.Body).Decode(&status); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !status.Running {
		t.Error("expected running status")
	}
}
