package handlers

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/tailwater/aquabalance/internal/domain"
	"github.com/tailwater/aquabalance/internal/events"
	"github.com/tailwater/aquabalance/internal/modules/facilities"
)

const testSchema = `
CREATE TABLE storage_facilities (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	code TEXT NOT NULL UNIQUE,
	name TEXT NOT NULL,
	facility_type TEXT NOT NULL,
	capacity_m3 REAL NOT NULL,
	surface_area_m2 REAL,
	current_volume_m3 REAL NOT NULL DEFAULT 0,
	is_lined INTEGER,
	status TEXT NOT NULL DEFAULT 'active',
	notes TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);
CREATE TABLE storage_history (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	facility_code TEXT NOT NULL REFERENCES storage_facilities(code) ON DELETE CASCADE,
	year INTEGER NOT NULL,
	month INTEGER NOT NULL,
	opening_volume_m3 REAL NOT NULL,
	closing_volume_m3 REAL NOT NULL,
	delta_m3 REAL NOT NULL,
	data_source TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	UNIQUE (facility_code, year, month)
);
CREATE TABLE facility_transfers (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	source_facility_code TEXT NOT NULL REFERENCES storage_facilities(code) ON DELETE CASCADE,
	dest_facility_code TEXT NOT NULL REFERENCES storage_facilities(code) ON DELETE CASCADE,
	year INTEGER NOT NULL,
	month INTEGER NOT NULL,
	volume_m3 REAL NOT NULL,
	transfer_method TEXT NOT NULL,
	notes TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL
);
`

func setupHandler(t *testing.T) (*Handler, *chi.Mux) {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec("PRAGMA foreign_keys = ON")
	require.NoError(t, err)
	_, err = db.Exec(testSchema)
	require.NoError(t, err)

	svc := facilities.NewService(
		facilities.NewRepository(db, zerolog.Nop()),
		facilities.NewHistoryRepository(db, zerolog.Nop()),
		facilities.NewTransferRepository(db, zerolog.Nop()),
		events.NewBus(zerolog.Nop()), zerolog.Nop())

	handler := NewHandler(svc, zerolog.Nop())
	router := chi.NewRouter()
	router.Route("/api", func(r chi.Router) {
		handler.RegisterRoutes(r)
	})
	return handler, router
}

func postJSON(t *testing.T, router *chi.Mux, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func createFacility(t *testing.T, router *chi.Mux, code string, status domain.FacilityStatus) {
	t.Helper()
	w := postJSON(t, router, "/api/facilities", map[string]interface{}{
		"code":              code,
		"name":              "Facility " + code,
		"facility_type":     "Pond",
		"capacity_m3":       250000.0,
		"surface_area_m2":   12000.0,
		"current_volume_m3": 80000.0,
		"is_lined":          true,
		"status":            string(status),
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
}

func TestHandleCreateAndGet(t *testing.T) {
	_, router := setupHandler(t)

	createFacility(t, router, "pnd1", domain.StatusActive)

	// Codes are normalized to upper case on create.
	req := httptest.NewRequest(http.MethodGet, "/api/facilities/PND1", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var facility domain.StorageFacility
	require.NoError(t, json.NewDecoder(w.Body).Decode(&facility))
	assert.Equal(t, "PND1", facility.Code)
	assert.Equal(t, domain.FacilityPond, facility.FacilityType)
	assert.InDelta(t, 250000.0, facility.CapacityM3, 0.001)
}

func TestHandleGetNotFound(t *testing.T) {
	_, router := setupHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/api/facilities/NOPE", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandleCreateDuplicateCode(t *testing.T) {
	_, router := setupHandler(t)

	createFacility(t, router, "TSF1", domain.StatusActive)
	w := postJSON(t, router, "/api/facilities", map[string]interface{}{
		"code":          "TSF1",
		"name":          "Duplicate",
		"facility_type": "Pond",
		"capacity_m3":   1000.0,
		"is_lined":      true,
	})

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "already exists")
}

func TestHandleCreateRejectsInvalidFacility(t *testing.T) {
	_, router := setupHandler(t)

	w := postJSON(t, router, "/api/facilities", map[string]interface{}{
		"code":          "BAD1",
		"name":          "Negative capacity",
		"facility_type": "Dam",
		"capacity_m3":   -5.0,
	})

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleListFiltersByStatus(t *testing.T) {
	_, router := setupHandler(t)

	createFacility(t, router, "PND1", domain.StatusActive)
	createFacility(t, router, "PND2", domain.StatusInactive)

	req := httptest.NewRequest(http.MethodGet, "/api/facilities?status=inactive", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var response struct {
		Facilities []*domain.StorageFacility `json:"facilities"`
		Total      int                       `json:"total"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	require.Equal(t, 1, response.Total)
	assert.Equal(t, "PND2", response.Facilities[0].Code)
}

func TestHandleListRejectsUnknownStatus(t *testing.T) {
	_, router := setupHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/api/facilities?status=flooded", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleUpdateRejectsCodeChange(t *testing.T) {
	_, router := setupHandler(t)

	createFacility(t, router, "PND1", domain.StatusActive)

	raw, _ := json.Marshal(map[string]interface{}{
		"code":          "PND9",
		"name":          "Renamed",
		"facility_type": "Pond",
		"capacity_m3":   250000.0,
		"is_lined":      true,
	})
	req := httptest.NewRequest(http.MethodPut, "/api/facilities/PND1", bytes.NewReader(raw))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "immutable")
}

func TestHandleUpdateAppliesChanges(t *testing.T) {
	_, router := setupHandler(t)

	createFacility(t, router, "PND1", domain.StatusActive)

	raw, _ := json.Marshal(map[string]interface{}{
		"name":              "Storm water pond",
		"facility_type":     "Pond",
		"capacity_m3":       300000.0,
		"current_volume_m3": 100000.0,
		"is_lined":          false,
		"status":            "active",
	})
	req := httptest.NewRequest(http.MethodPut, "/api/facilities/PND1", bytes.NewReader(raw))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var updated domain.StorageFacility
	require.NoError(t, json.NewDecoder(w.Body).Decode(&updated))
	assert.Equal(t, "PND1", updated.Code)
	assert.Equal(t, "Storm water pond", updated.Name)
	assert.InDelta(t, 300000.0, updated.CapacityM3, 0.001)
}

func TestHandleDeleteProtectsActiveFacilities(t *testing.T) {
	_, router := setupHandler(t)

	createFacility(t, router, "PND1", domain.StatusActive)

	req := httptest.NewRequest(http.MethodDelete, "/api/facilities/PND1", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "active")
}

func TestHandleDeleteRemovesInactiveFacility(t *testing.T) {
	_, router := setupHandler(t)

	createFacility(t, router, "PND1", domain.StatusInactive)

	req := httptest.NewRequest(http.MethodDelete, "/api/facilities/PND1", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/facilities/PND1", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandleHistoryRequiresFacility(t *testing.T) {
	_, router := setupHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/api/facilities/NOPE/history", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandleHistoryReturnsRecordedMonths(t *testing.T) {
	handler, router := setupHandler(t)

	createFacility(t, router, "TSF1", domain.StatusActive)
	require.NoError(t, handler.service.RecordHistory(&domain.StorageHistory{
		FacilityCode:    "TSF1",
		Year:            2026,
		Month:           3,
		OpeningVolumeM3: 80000,
		ClosingVolumeM3: 84000,
		DeltaM3:         4000,
		DataSource:      domain.SourceCalculated,
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/facilities/TSF1/history?limit=12", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var response struct {
		FacilityCode string                   `json:"facility_code"`
		History      []*domain.StorageHistory `json:"history"`
		Total        int                      `json:"total"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	assert.Equal(t, "TSF1", response.FacilityCode)
	require.Equal(t, 1, response.Total)
	assert.InDelta(t, 4000.0, response.History[0].DeltaM3, 0.001)
}

func TestHandleTransfers(t *testing.T) {
	_, router := setupHandler(t)

	createFacility(t, router, "TSF1", domain.StatusActive)
	createFacility(t, router, "PND1", domain.StatusActive)

	w := postJSON(t, router, "/api/facilities/transfers", map[string]interface{}{
		"source_facility_code": "TSF1",
		"dest_facility_code":   "PND1",
		"year":                 2026,
		"month":                3,
		"volume_m3":            1200.0,
		"transfer_method":      "pump",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	req := httptest.NewRequest(http.MethodGet, "/api/facilities/transfers?year=2026&month=3", nil)
	w2 := httptest.NewRecorder()
	router.ServeHTTP(w2, req)
	require.Equal(t, http.StatusOK, w2.Code)

	var byPeriod struct {
		Period    string                     `json:"period"`
		Transfers []*domain.FacilityTransfer `json:"transfers"`
		Total     int                        `json:"total"`
	}
	require.NoError(t, json.NewDecoder(w2.Body).Decode(&byPeriod))
	assert.Equal(t, "2026-03", byPeriod.Period)
	require.Equal(t, 1, byPeriod.Total)
	assert.InDelta(t, 1200.0, byPeriod.Transfers[0].VolumeM3, 0.001)

	req = httptest.NewRequest(http.MethodGet, "/api/facilities/PND1/transfers", nil)
	w3 := httptest.NewRecorder()
	router.ServeHTTP(w3, req)
	require.Equal(t, http.StatusOK, w3.Code)

	var byFacility struct {
		Total int `json:"total"`
	}
	require.NoError(t, json.NewDecoder(w3.Body).Decode(&byFacility))
	assert.Equal(t, 1, byFacility.Total)
}

func TestHandleTransfersForPeriodRequiresParams(t *testing.T) {
	_, router := setupHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/api/facilities/transfers", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "year and month")
}

func TestHandleTransferToMissingFacility(t *testing.T) {
	_, router := setupHandler(t)

	createFacility(t, router, "TSF1", domain.StatusActive)

	w := postJSON(t, router, "/api/facilities/transfers", map[string]interface{}{
		"source_facility_code": "TSF1",
		"dest_facility_code":   "GHOST",
		"year":                 2026,
		"month":                3,
		"volume_m3":            500.0,
		"transfer_method":      "gravity",
	})

	assert.Equal(t, http.StatusNotFound, w.Code)
}
