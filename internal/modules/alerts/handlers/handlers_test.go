package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tailwater/aquabalance/internal/domain"
	"github.com/tailwater/aquabalance/internal/modules/alerts"
)

type fakeAlertSource struct {
	active []*alerts.Alert
	recent []*alerts.Alert
}

func (f *fakeAlertSource) ListActive() ([]*alerts.Alert, error) { return f.active, nil }

func (f *fakeAlertSource) ListRecent(limit int) ([]*alerts.Alert, error) {
	if limit > 0 && limit < len(f.recent) {
		return f.recent[:limit], nil
	}
	return f.recent, nil
}

func (f *fakeAlertSource) CountActive() (int, error) { return len(f.active), nil }

type fakeResolver struct {
	resolved []int64
	err      error
}

func (f *fakeResolver) ResolveByUser(id int64) error {
	if f.err != nil {
		return f.err
	}
	f.resolved = append(f.resolved, id)
	return nil
}

func setupRouter(source *fakeAlertSource, resolver *fakeResolver) *chi.Mux {
	handler := NewHandler(source, resolver, zerolog.Nop())
	router := chi.NewRouter()
	router.Route("/api", func(r chi.Router) {
		handler.RegisterRoutes(r)
	})
	return router
}

func TestHandleListActiveOnly(t *testing.T) {
	source := &fakeAlertSource{
		active: []*alerts.Alert{{ID: 1, RuleID: "balance_error_critical", Status: alerts.StatusActive}},
		recent: []*alerts.Alert{
			{ID: 1, RuleID: "balance_error_critical", Status: alerts.StatusActive},
			{ID: 2, RuleID: "facility_overflow", Status: alerts.StatusResolved},
		},
	}
	router := setupRouter(source, &fakeResolver{})

	req := httptest.NewRequest(http.MethodGet, "/api/alerts?active=true", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var response struct {
		Alerts []*alerts.Alert `json:"alerts"`
		Total  int             `json:"total"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	require.Equal(t, 1, response.Total)
	assert.Equal(t, "balance_error_critical", response.Alerts[0].RuleID)
}

func TestHandleListRecentWithLimit(t *testing.T) {
	source := &fakeAlertSource{
		recent: []*alerts.Alert{{ID: 3}, {ID: 2}, {ID: 1}},
	}
	router := setupRouter(source, &fakeResolver{})

	req := httptest.NewRequest(http.MethodGet, "/api/alerts?limit=2", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var response struct {
		Total int `json:"total"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	assert.Equal(t, 2, response.Total)
}

func TestHandleListRejectsBadActiveFlag(t *testing.T) {
	router := setupRouter(&fakeAlertSource{}, &fakeResolver{})

	req := httptest.NewRequest(http.MethodGet, "/api/alerts?active=maybe", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleCount(t *testing.T) {
	source := &fakeAlertSource{active: []*alerts.Alert{{ID: 1}, {ID: 2}}}
	router := setupRouter(source, &fakeResolver{})

	req := httptest.NewRequest(http.MethodGet, "/api/alerts/count", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var response map[string]int
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	assert.Equal(t, 2, response["active"])
}

func TestHandleResolve(t *testing.T) {
	resolver := &fakeResolver{}
	router := setupRouter(&fakeAlertSource{}, resolver)

	req := httptest.NewRequest(http.MethodPost, "/api/alerts/42/resolve", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []int64{42}, resolver.resolved)
	assert.Contains(t, w.Body.String(), "resolved")
}

func TestHandleResolveUnknownAlert(t *testing.T) {
	resolver := &fakeResolver{err: domain.NotFoundf("alert 99 not found")}
	router := setupRouter(&fakeAlertSource{}, resolver)

	req := httptest.NewRequest(http.MethodPost, "/api/alerts/99/resolve", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandleResolveRejectsGarbageID(t *testing.T) {
	router := setupRouter(&fakeAlertSource{}, &fakeResolver{})

	req := httptest.NewRequest(http.MethodPost, "/api/alerts/banana/resolve", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}
