// Package server provides the HTTP server and routing for the water balance service.
package server

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/tailwater/aquabalance/internal/events"
	"github.com/tailwater/aquabalance/internal/modules/settings"
	"github.com/tailwater/aquabalance/internal/workbook"
)

// StatusMonitor periodically checks system state and emits events on changes.
// It also watches the workbook file for on-disk edits: when the signature
// drifts from the loaded copy it triggers a reload (if enabled in settings)
// so field staff saving the spreadsheet see fresh numbers without restarts.
type StatusMonitor struct {
	eventBus        *events.Bus
	workbookRepo    *workbook.Repository
	workbookService *workbook.Service
	settings        *settings.Service
	log             zerolog.Logger

	stop     chan struct{}
	stopOnce sync.Once

	// Track previous states so we only emit on change
	lastStatus string
	lastStale  bool
}

// NewStatusMonitor creates a new status monitor
func NewStatusMonitor(
	eventBus *events.Bus,
	workbookRepo *workbook.Repository,
	workbookService *workbook.Service,
	settingsService *settings.Service,
	log zerolog.Logger,
) *StatusMonitor {
	return &StatusMonitor{
		eventBus:        eventBus,
		workbookRepo:    workbookRepo,
		workbookService: workbookService,
		settings:        settingsService,
		log:             log.With().Str("component", "status_monitor").Logger(),
		stop:            make(chan struct{}),
	}
}

// Start begins periodic status monitoring
func (m *StatusMonitor) Start(interval time.Duration) {
	go m.monitor(interval)
}

// Stop terminates the monitoring loop
func (m *StatusMonitor) Stop() {
	m.stopOnce.Do(func() { close(m.stop) })
}

// monitor runs the periodic monitoring loop
func (m *StatusMonitor) monitor(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Do initial check
	m.checkStatuses()

	for {
		select {
		case <-m.stop:
			m.log.Debug().Msg("Status monitor stopped")
			return
		case <-ticker.C:
			m.checkStatuses()
		}
	}
}

// checkStatuses checks all monitored statuses and emits events on changes
func (m *StatusMonitor) checkStatuses() {
	m.checkWorkbookDrift()
	m.checkSystemStatus()
}

// checkSystemStatus emits SystemStatusChanged when the health summary flips
func (m *StatusMonitor) checkSystemStatus() {
	status := "healthy"
	wb := m.workbookRepo.CurrentStatus()
	if !wb.Loaded || wb.LoadError != "" {
		status = "degraded"
	}

	if status == m.lastStatus {
		return
	}
	m.lastStatus = status

	m.eventBus.EmitData("status_monitor", &events.SystemStatusChangedData{
		Status:    status,
		Timestamp: time.Now().Format(time.RFC3339),
	})
}

// checkWorkbookDrift compares the on-disk workbook signature against the
// loaded one and reloads (or flags staleness) when they diverge.
func (m *StatusMonitor) checkWorkbookDrift() {
	if !m.workbookRepo.Loaded() {
		return
	}

	sig, err := workbook.Signature(m.workbookRepo.Path())
	if err != nil {
		// File may be mid-save or temporarily locked; try again next tick.
		m.log.Debug().Err(err).Msg("Workbook signature probe failed")
		return
	}

	stale := sig != "" && sig != m.workbookRepo.CurrentSignature()
	if !stale {
		m.lastStale = false
		return
	}

	if m.settings.Enabled("workbook_autoreload_enabled") {
		m.log.Info().
			Str("path", m.workbookRepo.Path()).
			Msg("Workbook changed on disk, reloading")
		if _, err := m.workbookService.Reload(); err != nil {
			m.log.Error().Err(err).Msg("Workbook auto-reload failed")
		}
		m.lastStale = false
		return
	}

	// Autoreload disabled: announce staleness once per drift
	if !m.lastStale {
		m.lastStale = true
		m.log.Warn().
			Str("path", m.workbookRepo.Path()).
			Msg("Workbook changed on disk, auto-reload disabled")
		m.eventBus.Emit(events.SystemStatusChanged, "status_monitor", map[string]interface{}{
			"status":         "workbook_stale",
			"workbook_stale": true,
			"timestamp":      time.Now().Format(time.RFC3339),
		})
	}
}
