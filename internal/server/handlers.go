// Package server provides the HTTP server and routing for the water balance service.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/tailwater/aquabalance/internal/database"
)

// handleHealth handles liveness probe requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"status":  "healthy",
		"version": "1.0.0",
		"service": "aquabalance",
	}

	writeJSON(w, http.StatusOK, response)
}

// handleAPIHealth runs a quick check against every database. Degraded
// databases flip the overall status but the endpoint still answers 200 so
// monitoring can read the detail.
func (s *Server) handleAPIHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	databases := map[string]*database.DB{
		"water":  s.waterDB,
		"config": s.configDB,
		"alerts": s.alertsDB,
		"cache":  s.cacheDB,
	}

	status := "healthy"
	checks := make(map[string]string, len(databases))
	for name, db := range databases {
		if db == nil {
			checks[name] = "not initialized"
			status = "degraded"
			continue
		}
		if err := db.QuickCheck(ctx); err != nil {
			checks[name] = err.Error()
			status = "degraded"
			continue
		}
		checks[name] = "ok"
	}

	response := map[string]interface{}{
		"status":    status,
		"service":   "aquabalance",
		"databases": checks,
		"workbook": map[string]interface{}{
			"loaded":    s.container.WorkbookRepo.Loaded(),
			"signature": s.container.WorkbookRepo.CurrentSignature(),
		},
	}

	writeJSON(w, http.StatusOK, response)
}

// writeJSON writes a JSON response
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
