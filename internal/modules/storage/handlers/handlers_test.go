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
)

type fakeFacilities struct {
	byCode map[string]*domain.StorageFacility
}

func (f *fakeFacilities) GetByCode(code string) (*domain.StorageFacility, error) {
	facility, ok := f.byCode[domain.NormalizeCode(code)]
	if !ok {
		return nil, domain.NotFoundf("facility %s not found", domain.NormalizeCode(code))
	}
	return facility, nil
}

type fakeRecords struct {
	record *domain.StorageRecord
	err    error
	got    []domain.CalculationPeriod
}

func (f *fakeRecords) GetStorageRecord(facility *domain.StorageFacility, period domain.CalculationPeriod) (*domain.StorageRecord, error) {
	f.got = append(f.got, period)
	if f.err != nil {
		return nil, f.err
	}
	return f.record, nil
}

func setupRouter(facilities *fakeFacilities, records *fakeRecords) *chi.Mux {
	handler := NewHandler(facilities, records, zerolog.Nop())
	router := chi.NewRouter()
	router.Route("/api", func(r chi.Router) {
		handler.RegisterRoutes(r)
	})
	return router
}

func TestHandleGetRecord(t *testing.T) {
	facilities := &fakeFacilities{byCode: map[string]*domain.StorageFacility{
		"TSF1": {ID: 1, Code: "TSF1", CapacityM3: 500000},
	}}
	records := &fakeRecords{record: &domain.StorageRecord{
		FacilityCode:    "TSF1",
		Year:            2026,
		Month:           2,
		OpeningVolumeM3: 120000,
		ClosingVolumeM3: 125500,
		LevelPercent:    0.24,
	}}
	router := setupRouter(facilities, records)

	req := httptest.NewRequest(http.MethodGet, "/api/storage/tsf1?year=2026&month=2", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, records.got, 1)
	assert.Equal(t, domain.CalculationPeriod{Year: 2026, Month: 2}, records.got[0])

	var record domain.StorageRecord
	require.NoError(t, json.NewDecoder(w.Body).Decode(&record))
	assert.Equal(t, "TSF1", record.FacilityCode)
	assert.InDelta(t, 125500.0, record.ClosingVolumeM3, 0.001)
}

func TestHandleGetRecordUnknownFacility(t *testing.T) {
	router := setupRouter(&fakeFacilities{byCode: map[string]*domain.StorageFacility{}}, &fakeRecords{})

	req := httptest.NewRequest(http.MethodGet, "/api/storage/GHOST?year=2026&month=2", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandleGetRecordNoDataForMonth(t *testing.T) {
	facilities := &fakeFacilities{byCode: map[string]*domain.StorageFacility{
		"TSF1": {ID: 1, Code: "TSF1", CapacityM3: 500000},
	}}
	records := &fakeRecords{err: domain.NotFoundf("no storage data for TSF1 in 2026-05")}
	router := setupRouter(facilities, records)

	req := httptest.NewRequest(http.MethodGet, "/api/storage/TSF1?year=2026&month=5", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "no storage data")
}

func TestHandleGetRecordRequiresPeriodParams(t *testing.T) {
	facilities := &fakeFacilities{byCode: map[string]*domain.StorageFacility{
		"TSF1": {ID: 1, Code: "TSF1", CapacityM3: 500000},
	}}
	router := setupRouter(facilities, &fakeRecords{})

	req := httptest.NewRequest(http.MethodGet, "/api/storage/TSF1?year=2026", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "year and month")
}
