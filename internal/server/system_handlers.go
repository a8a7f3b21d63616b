// Package server provides the HTTP server and routing for the water balance service.
package server

import (
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/tailwater/aquabalance/internal/database"
	"github.com/tailwater/aquabalance/internal/modules/alerts"
	"github.com/tailwater/aquabalance/internal/modules/balance"
	"github.com/tailwater/aquabalance/internal/scheduler"
	"github.com/tailwater/aquabalance/internal/workbook"
)

// SystemHandlers handles system-wide monitoring and operations endpoints
type SystemHandlers struct {
	log         zerolog.Logger
	dataDir     string
	logDir      string
	startupTime time.Time
	waterDB     *database.DB
	configDB    *database.DB
	alertsDB    *database.DB
	cacheDB     *database.DB
	workbook    *workbook.Repository
	alertRepo   *alerts.AlertRepository
	resultRepo  *balance.ResultRepository
	sched       *scheduler.Scheduler

	// Jobs (set after job registration in main.go)
	monthlyBalanceJob scheduler.Job
	logCleanupJob     scheduler.Job
	dailyBackupJob    scheduler.Job
	offsiteBackupJob  scheduler.Job
	cacheSweepJob     scheduler.Job
	alertSweepJob     scheduler.Job
	checkDatabasesJob scheduler.Job
	walCheckpointJob  scheduler.Job
}

// NewSystemHandlers creates system handlers with injected dependencies
func NewSystemHandlers(
	log zerolog.Logger,
	dataDir string,
	logDir string,
	waterDB *database.DB,
	configDB *database.DB,
	alertsDB *database.DB,
	cacheDB *database.DB,
	workbookRepo *workbook.Repository,
	alertRepo *alerts.AlertRepository,
	resultRepo *balance.ResultRepository,
	sched *scheduler.Scheduler,
) *SystemHandlers {
	return &SystemHandlers{
		log:         log.With().Str("component", "system_handlers").Logger(),
		dataDir:     dataDir,
		logDir:      logDir,
		startupTime: time.Now(),
		waterDB:     waterDB,
		configDB:    configDB,
		alertsDB:    alertsDB,
		cacheDB:     cacheDB,
		workbook:    workbookRepo,
		alertRepo:   alertRepo,
		resultRepo:  resultRepo,
		sched:       sched,
	}
}

// SetJobs registers job references for manual triggering
// Called after jobs are registered in main.go
func (h *SystemHandlers) SetJobs(
	monthlyBalance scheduler.Job,
	logCleanup scheduler.Job,
	dailyBackup scheduler.Job,
	offsiteBackup scheduler.Job,
	cacheSweep scheduler.Job,
	alertSweep scheduler.Job,
	checkDatabases scheduler.Job,
	walCheckpoint scheduler.Job,
) {
	h.monthlyBalanceJob = monthlyBalance
	h.logCleanupJob = logCleanup
	h.dailyBackupJob = dailyBackup
	h.offsiteBackupJob = offsiteBackup
	h.cacheSweepJob = cacheSweep
	h.alertSweepJob = alertSweep
	h.checkDatabasesJob = checkDatabases
	h.walCheckpointJob = walCheckpoint
}

// SystemStatusResponse represents the system status response
type SystemStatusResponse struct {
	Status        string             `json:"status"` // "healthy" or "degraded"
	StartedAt     string             `json:"started_at"`
	UptimeSeconds float64            `json:"uptime_seconds"`
	Goroutines    int                `json:"goroutines"`
	Workbook      WorkbookStatusInfo `json:"workbook"`
	ActiveAlerts  int                `json:"active_alerts"`
	LastResult    *LastResultInfo    `json:"last_result,omitempty"`
}

// WorkbookStatusInfo summarizes the loaded workbook for status responses
type WorkbookStatusInfo struct {
	Path        string `json:"path"`
	Loaded      bool   `json:"loaded"`
	Signature   string `json:"signature,omitempty"`
	LoadedAt    string `json:"loaded_at,omitempty"`
	PeriodSpan  string `json:"period_span,omitempty"`
	Warnings    int    `json:"warnings"`
	SheetErrors int    `json:"sheet_errors"`
	LoadError   string `json:"load_error,omitempty"`
}

// LastResultInfo is the headline of the most recent balance run
type LastResultInfo struct {
	Year       int     `json:"year"`
	Month      int     `json:"month"`
	Mode       string  `json:"mode"`
	Status     string  `json:"status"`
	ErrorPct   float64 `json:"error_pct"`
	ComputedAt string  `json:"computed_at"`
}

// SystemHealthResponse represents host-level resource usage
type SystemHealthResponse struct {
	Status        string     `json:"status"`
	CPUPercent    float64    `json:"cpu_percent"`
	Memory        MemoryInfo `json:"memory"`
	Disk          DiskInfo   `json:"disk"`
	Goroutines    int        `json:"goroutines"`
	UptimeSeconds float64    `json:"uptime_seconds"`
}

// MemoryInfo contains RAM usage statistics
type MemoryInfo struct {
	TotalMB     float64 `json:"total_mb"`
	UsedMB      float64 `json:"used_mb"`
	UsedPercent float64 `json:"used_percent"`
}

// DiskInfo contains filesystem usage for the data directory
type DiskInfo struct {
	Path        string  `json:"path"`
	TotalGB     float64 `json:"total_gb"`
	FreeGB      float64 `json:"free_gb"`
	UsedPercent float64 `json:"used_percent"`
}

// JobInfo describes a registered background job
type JobInfo struct {
	Name       string `json:"name"`
	Schedule   string `json:"schedule"`
	Registered bool   `json:"registered"`
}

// JobsStatusResponse lists the background jobs known to the server
type JobsStatusResponse struct {
	TotalJobs int       `json:"total_jobs"`
	Jobs      []JobInfo `json:"jobs"`
}

// DBInfo contains stats for a single database file
type DBInfo struct {
	Name      string  `json:"name"`
	Path      string  `json:"path"`
	SizeMB    float64 `json:"size_mb"`
	WALSizeMB float64 `json:"wal_size_mb"`
	Pages     int64   `json:"pages"`
	FreePages int64   `json:"free_pages"`
}

// DatabaseStatsResponse represents database statistics
type DatabaseStatsResponse struct {
	Databases   []DBInfo `json:"databases"`
	TotalSizeMB float64  `json:"total_size_mb"`
	LastChecked string   `json:"last_checked"`
}

// DiskUsageResponse represents disk usage statistics
type DiskUsageResponse struct {
	DataDirMB float64 `json:"data_dir_mb"`
	LogsDirMB float64 `json:"logs_dir_mb"`
	BackupsMB float64 `json:"backups_mb"`
	TotalMB   float64 `json:"total_mb"`
}

// HandleSystemStatus returns overall service status
// GET /api/system/status
func (h *SystemHandlers) HandleSystemStatus(w http.ResponseWriter, r *http.Request) {
	h.log.Debug().Msg("Getting system status")

	wb := h.workbook.CurrentStatus()

	status := "healthy"
	if !wb.Loaded || wb.LoadError != "" {
		status = "degraded"
	}

	resp := SystemStatusResponse{
		Status:        status,
		StartedAt:     h.startupTime.Format(time.RFC3339),
		UptimeSeconds: time.Since(h.startupTime).Seconds(),
		Goroutines:    runtime.NumGoroutine(),
		Workbook: WorkbookStatusInfo{
			Path:        wb.Path,
			Loaded:      wb.Loaded,
			Signature:   wb.Signature,
			PeriodSpan:  wb.PeriodSpan,
			Warnings:    len(wb.Warnings),
			SheetErrors: len(wb.SheetErr),
			LoadError:   wb.LoadError,
		},
	}
	if !wb.LoadedAt.IsZero() {
		resp.Workbook.LoadedAt = wb.LoadedAt.Format(time.RFC3339)
	}

	if count, err := h.alertRepo.CountActive(); err != nil {
		h.log.Warn().Err(err).Msg("Failed to count active alerts")
	} else {
		resp.ActiveAlerts = count
	}

	if recent, err := h.resultRepo.ListRecent(1); err != nil {
		h.log.Warn().Err(err).Msg("Failed to load last balance result")
	} else if len(recent) > 0 {
		last := recent[0]
		resp.LastResult = &LastResultInfo{
			Year:       last.Year,
			Month:      last.Month,
			Mode:       string(last.Mode),
			Status:     string(last.Status),
			ErrorPct:   last.ErrorPct,
			ComputedAt: last.ComputedAt.Format(time.RFC3339),
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// HandleSystemHealth returns host CPU, memory and disk usage
// GET /api/system/health
func (h *SystemHandlers) HandleSystemHealth(w http.ResponseWriter, r *http.Request) {
	h.log.Debug().Msg("Getting system health")

	cpuPercent, memInfo := h.getSystemStats()

	resp := SystemHealthResponse{
		Status:        "healthy",
		CPUPercent:    cpuPercent,
		Memory:        memInfo,
		Goroutines:    runtime.NumGoroutine(),
		UptimeSeconds: time.Since(h.startupTime).Seconds(),
	}

	if usage, err := disk.Usage(h.dataDir); err != nil {
		h.log.Warn().Err(err).Str("path", h.dataDir).Msg("Failed to get disk usage")
	} else {
		resp.Disk = DiskInfo{
			Path:        h.dataDir,
			TotalGB:     float64(usage.Total) / 1024 / 1024 / 1024,
			FreeGB:      float64(usage.Free) / 1024 / 1024 / 1024,
			UsedPercent: usage.UsedPercent,
		}
		if usage.UsedPercent > 90 {
			resp.Status = "warning"
		}
	}
	if memInfo.UsedPercent > 90 {
		resp.Status = "warning"
	}

	writeJSON(w, http.StatusOK, resp)
}

// HandleJobsStatus lists the background jobs and their schedules
// GET /api/system/jobs
func (h *SystemHandlers) HandleJobsStatus(w http.ResponseWriter, r *http.Request) {
	h.log.Debug().Msg("Getting jobs status")

	entries := []struct {
		name     string
		schedule string
		job      scheduler.Job
	}{
		{"monthly_balance", "02:00 on day 2 of each month", h.monthlyBalanceJob},
		{"log_cleanup", "00:30 daily", h.logCleanupJob},
		{"daily_backup", "01:00 daily", h.dailyBackupJob},
		{"offsite_backup", "03:00 daily", h.offsiteBackupJob},
		{"cache_sweep", "03:00 Sunday", h.cacheSweepJob},
		{"alert_sweep", "hourly", h.alertSweepJob},
		{"check_databases", "04:00 daily", h.checkDatabasesJob},
		{"wal_checkpoint", "04:30 daily", h.walCheckpointJob},
	}

	jobs := make([]JobInfo, 0, len(entries))
	for _, e := range entries {
		jobs = append(jobs, JobInfo{
			Name:       e.name,
			Schedule:   e.schedule,
			Registered: e.job != nil,
		})
	}

	writeJSON(w, http.StatusOK, JobsStatusResponse{
		TotalJobs: len(jobs),
		Jobs:      jobs,
	})
}

// HandleDatabaseStats returns per-database file and page statistics
// GET /api/system/database/stats
func (h *SystemHandlers) HandleDatabaseStats(w http.ResponseWriter, r *http.Request) {
	h.log.Debug().Msg("Getting database stats")

	databases := []struct {
		name string
		db   *database.DB
	}{
		{"water.db", h.waterDB},
		{"config.db", h.configDB},
		{"alerts.db", h.alertsDB},
		{"cache.db", h.cacheDB},
	}

	infos := []DBInfo{}
	totalSizeMB := 0.0

	for _, entry := range databases {
		if entry.db == nil {
			continue
		}
		info := DBInfo{
			Name: entry.name,
			Path: filepath.Join(h.dataDir, entry.name),
		}
		stats, err := entry.db.GetStats()
		if err != nil {
			h.log.Warn().Err(err).Str("database", entry.name).Msg("Failed to get database stats")
		} else {
			info.SizeMB = float64(stats.SizeBytes) / 1024 / 1024
			info.WALSizeMB = float64(stats.WALSizeBytes) / 1024 / 1024
			info.Pages = stats.PageCount
			info.FreePages = stats.FreelistCount
		}
		totalSizeMB += info.SizeMB + info.WALSizeMB
		infos = append(infos, info)
	}

	writeJSON(w, http.StatusOK, DatabaseStatsResponse{
		Databases:   infos,
		TotalSizeMB: totalSizeMB,
		LastChecked: time.Now().Format(time.RFC3339),
	})
}

// HandleDiskUsage returns disk usage statistics
// GET /api/system/disk
func (h *SystemHandlers) HandleDiskUsage(w http.ResponseWriter, r *http.Request) {
	h.log.Debug().Msg("Getting disk usage")

	dataDirSize := h.getDirSize(h.dataDir)
	logsDirSize := h.getDirSize(h.logDir)
	backupsSize := h.getDirSize(filepath.Join(h.dataDir, "backups"))

	writeJSON(w, http.StatusOK, DiskUsageResponse{
		DataDirMB: dataDirSize,
		LogsDirMB: logsDirSize,
		BackupsMB: backupsSize,
		TotalMB:   dataDirSize + logsDirSize + backupsSize,
	})
}

// getDirSize calculates total size of a directory in MB
func (h *SystemHandlers) getDirSize(dirPath string) float64 {
	var totalSize int64

	err := filepath.Walk(dirPath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil // Skip errors
		}
		if !info.IsDir() {
			totalSize += info.Size()
		}
		return nil
	})

	if err != nil {
		h.log.Warn().Err(err).Str("dir", dirPath).Msg("Failed to calculate directory size")
		return 0
	}

	return float64(totalSize) / 1024 / 1024
}

// getSystemStats calculates CPU and RAM usage
// Uses a short interval (100ms) so status polls stay responsive
func (h *SystemHandlers) getSystemStats() (float64, MemoryInfo) {
	cpuPercent, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get CPU percentage")
		cpuPercent = []float64{0}
	}

	cpuAvg := 0.0
	if len(cpuPercent) > 0 {
		cpuAvg = cpuPercent[0]
	}

	memStat, err := mem.VirtualMemory()
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get memory statistics")
		return cpuAvg, MemoryInfo{}
	}

	return cpuAvg, MemoryInfo{
		TotalMB:     float64(memStat.Total) / 1024 / 1024,
		UsedMB:      float64(memStat.Used) / 1024 / 1024,
		UsedPercent: memStat.UsedPercent,
	}
}

// ============================================================================
// Job Trigger Endpoints
// ============================================================================

// HandleTriggerMonthlyBalance runs the monthly balance job immediately
// POST /api/system/jobs/monthly-balance
func (h *SystemHandlers) HandleTriggerMonthlyBalance(w http.ResponseWriter, r *http.Request) {
	if h.monthlyBalanceJob == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "error", "message": "Monthly balance job not registered"})
		return
	}
	h.log.Info().Msg("Manual monthly balance triggered")
	go func() { _ = h.sched.RunNow(h.monthlyBalanceJob) }()
	writeJSON(w, http.StatusOK, map[string]string{"status": "success", "message": "Monthly balance triggered successfully"})
}

// HandleTriggerLogCleanup runs the log cleanup job immediately
// POST /api/system/jobs/log-cleanup
func (h *SystemHandlers) HandleTriggerLogCleanup(w http.ResponseWriter, r *http.Request) {
	if h.logCleanupJob == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "error", "message": "Log cleanup job not registered"})
		return
	}
	h.log.Info().Msg("Manual log cleanup triggered")
	go func() { _ = h.sched.RunNow(h.logCleanupJob) }()
	writeJSON(w, http.StatusOK, map[string]string{"status": "success", "message": "Log cleanup triggered successfully"})
}

// HandleTriggerDailyBackup runs the daily backup job immediately
// POST /api/system/jobs/daily-backup
func (h *SystemHandlers) HandleTriggerDailyBackup(w http.ResponseWriter, r *http.Request) {
	if h.dailyBackupJob == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "error", "message": "Daily backup job not registered"})
		return
	}
	h.log.Info().Msg("Manual daily backup triggered")
	go func() { _ = h.sched.RunNow(h.dailyBackupJob) }()
	writeJSON(w, http.StatusOK, map[string]string{"status": "success", "message": "Daily backup triggered successfully"})
}

// HandleTriggerOffsiteBackup runs the offsite backup job immediately
// POST /api/system/jobs/offsite-backup
func (h *SystemHandlers) HandleTriggerOffsiteBackup(w http.ResponseWriter, r *http.Request) {
	if h.offsiteBackupJob == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "error", "message": "Offsite backup job not registered"})
		return
	}
	h.log.Info().Msg("Manual offsite backup triggered")
	go func() { _ = h.sched.RunNow(h.offsiteBackupJob) }()
	writeJSON(w, http.StatusOK, map[string]string{"status": "success", "message": "Offsite backup triggered successfully"})
}

// HandleTriggerCacheSweep runs the cache sweep job immediately
// POST /api/system/jobs/cache-sweep
func (h *SystemHandlers) HandleTriggerCacheSweep(w http.ResponseWriter, r *http.Request) {
	if h.cacheSweepJob == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "error", "message": "Cache sweep job not registered"})
		return
	}
	h.log.Info().Msg("Manual cache sweep triggered")
	go func() { _ = h.sched.RunNow(h.cacheSweepJob) }()
	writeJSON(w, http.StatusOK, map[string]string{"status": "success", "message": "Cache sweep triggered successfully"})
}

// HandleTriggerAlertSweep runs the alert sweep job immediately
// POST /api/system/jobs/alert-sweep
func (h *SystemHandlers) HandleTriggerAlertSweep(w http.ResponseWriter, r *http.Request) {
	if h.alertSweepJob == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "error", "message": "Alert sweep job not registered"})
		return
	}
	h.log.Info().Msg("Manual alert sweep triggered")
	go func() { _ = h.sched.RunNow(h.alertSweepJob) }()
	writeJSON(w, http.StatusOK, map[string]string{"status": "success", "message": "Alert sweep triggered successfully"})
}

// HandleTriggerCheckDatabases runs the database integrity check immediately
// POST /api/system/jobs/check-databases
func (h *SystemHandlers) HandleTriggerCheckDatabases(w http.ResponseWriter, r *http.Request) {
	if h.checkDatabasesJob == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "error", "message": "Check databases job not registered"})
		return
	}
	h.log.Info().Msg("Manual database check triggered")
	go func() { _ = h.sched.RunNow(h.checkDatabasesJob) }()
	writeJSON(w, http.StatusOK, map[string]string{"status": "success", "message": "Database check triggered successfully"})
}

// HandleTriggerWALCheckpoint runs the WAL checkpoint job immediately
// POST /api/system/jobs/wal-checkpoint
func (h *SystemHandlers) HandleTriggerWALCheckpoint(w http.ResponseWriter, r *http.Request) {
	if h.walCheckpointJob == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "error", "message": "WAL checkpoint job not registered"})
		return
	}
	h.log.Info().Msg("Manual WAL checkpoint triggered")
	go func() { _ = h.sched.RunNow(h.walCheckpointJob) }()
	writeJSON(w, http.StatusOK, map[string]string{"status": "success", "message": "WAL checkpoint triggered successfully"})
}
