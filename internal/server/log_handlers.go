// Package server provides the HTTP server and routing for the water balance service.
package server

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// activeLogName is the file the rotating sink currently writes to. Rotated
// files carry a dated suffix (app.log.2025-08-01) beside it.
const activeLogName = "app.log"

// LogHandlers serves the rotating log files written by the async sink
type LogHandlers struct {
	log    zerolog.Logger
	logDir string
}

// NewLogHandlers creates a new log handlers instance
func NewLogHandlers(log zerolog.Logger, logDir string) *LogHandlers {
	return &LogHandlers{
		log:    log.With().Str("component", "log_handlers").Logger(),
		logDir: logDir,
	}
}

// LogFileInfo represents information about a log file
type LogFileInfo struct {
	Name       string  `json:"name"`
	SizeMB     float64 `json:"size_mb"`
	ModifiedAt string  `json:"modified_at"`
	Active     bool    `json:"active"`
}

// LogListResponse represents the list of available log files
type LogListResponse struct {
	LogFiles []LogFileInfo `json:"log_files"`
	Total    int           `json:"total"`
}

// LogContentResponse represents log content
type LogContentResponse struct {
	File   string   `json:"file"`
	Lines  []string `json:"lines"`
	Total  int      `json:"total"`
	Status string   `json:"status"`
}

// HandleListLogs returns the log files in the log directory, newest first
// GET /api/system/logs/list
func (h *LogHandlers) HandleListLogs(w http.ResponseWriter, r *http.Request) {
	h.log.Debug().Msg("Listing log files")

	entries, err := os.ReadDir(h.logDir)
	if err != nil {
		h.log.Error().Err(err).Str("dir", h.logDir).Msg("Failed to read log directory")
		http.Error(w, "Failed to read log directory", http.StatusInternalServerError)
		return
	}

	files := []LogFileInfo{}
	for _, entry := range entries {
		if entry.IsDir() || !strings.Contains(entry.Name(), ".log") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		files = append(files, LogFileInfo{
			Name:       entry.Name(),
			SizeMB:     float64(info.Size()) / 1024 / 1024,
			ModifiedAt: info.ModTime().Format(time.RFC3339),
			Active:     entry.Name() == activeLogName,
		})
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].ModifiedAt > files[j].ModifiedAt
	})

	writeJSON(w, http.StatusOK, LogListResponse{
		LogFiles: files,
		Total:    len(files),
	})
}

// HandleGetLogs retrieves log content with filtering
// GET /api/system/logs?file=app.log&lines=100&level=error&search=workbook
func (h *LogHandlers) HandleGetLogs(w http.ResponseWriter, r *http.Request) {
	file := r.URL.Query().Get("file")
	level := r.URL.Query().Get("level")
	search := r.URL.Query().Get("search")
	lines := parseLineCount(r.URL.Query().Get("lines"), 100)

	path, err := h.resolveLogPath(file)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	h.log.Debug().
		Str("file", filepath.Base(path)).
		Int("lines", lines).
		Str("level", level).
		Str("search", search).
		Msg("Getting log content")

	logLines, total, err := h.readTail(path, lines)
	if err != nil {
		if os.IsNotExist(err) {
			http.Error(w, "Log file not found", http.StatusNotFound)
			return
		}
		h.log.Error().Err(err).Msg("Failed to read log file")
		http.Error(w, "Failed to read logs", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, LogContentResponse{
		File:   filepath.Base(path),
		Lines:  h.filterLogs(logLines, level, search),
		Total:  total,
		Status: "ok",
	})
}

// HandleGetErrors retrieves only error-level log lines
// GET /api/system/logs/errors?lines=500
func (h *LogHandlers) HandleGetErrors(w http.ResponseWriter, r *http.Request) {
	lines := parseLineCount(r.URL.Query().Get("lines"), 500)

	path, err := h.resolveLogPath(r.URL.Query().Get("file"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	h.log.Debug().Int("lines", lines).Msg("Getting error logs")

	logLines, total, err := h.readTail(path, lines)
	if err != nil {
		if os.IsNotExist(err) {
			http.Error(w, "Log file not found", http.StatusNotFound)
			return
		}
		h.log.Error().Err(err).Msg("Failed to read log file")
		http.Error(w, "Failed to read logs", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, LogContentResponse{
		File:   filepath.Base(path),
		Lines:  h.filterLogs(logLines, "error", ""),
		Total:  total,
		Status: "ok",
	})
}

// resolveLogPath maps a requested file name onto the log directory. Names
// with path separators or parent references are rejected so requests cannot
// escape the directory.
func (h *LogHandlers) resolveLogPath(name string) (string, error) {
	if name == "" {
		name = activeLogName
	}
	if strings.Contains(name, "..") || strings.ContainsAny(name, `/\`) {
		return "", fmt.Errorf("invalid log file name")
	}
	return filepath.Join(h.logDir, name), nil
}

// readTail returns the last n lines of the file and the total line count.
// Rotation caps files at 10 MiB so reading whole files is fine.
func (h *LogHandlers) readTail(path string, n int) ([]string, int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, 0, err
	}

	logLines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(logLines) == 1 && logLines[0] == "" {
		logLines = []string{}
	}

	total := len(logLines)
	if len(logLines) > n {
		logLines = logLines[len(logLines)-n:]
	}
	return logLines, total, nil
}

// parseLineCount parses a lines query parameter with a default and a cap
func parseLineCount(raw string, def int) int {
	lines := def
	if raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			lines = parsed
		}
	}
	if lines > 10000 {
		lines = 10000 // Max 10k lines for safety
	}
	return lines
}

// filterLogs filters log lines by level and search term
func (h *LogHandlers) filterLogs(lines []string, level string, search string) []string {
	if level == "" && search == "" {
		return lines
	}

	filtered := make([]string, 0)

	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		if level != "" && !h.lineMatchesLevel(line, level) {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(line), strings.ToLower(search)) {
			continue
		}
		filtered = append(filtered, line)
	}

	return filtered
}

// lineMatchesLevel checks if a log line matches the specified level
func (h *LogHandlers) lineMatchesLevel(line string, level string) bool {
	// zerolog JSON format: {"level":"error",...}
	if strings.Contains(line, `"level"`) {
		return strings.Contains(strings.ToLower(line), `"level":"`+strings.ToLower(level)+`"`)
	}

	// Plain text fallback: ERROR: message or [ERROR] message
	upperLine := strings.ToUpper(line)
	upperLevel := strings.ToUpper(level)

	return strings.Contains(upperLine, upperLevel+":") ||
		strings.Contains(upperLine, "["+upperLevel+"]") ||
		strings.Contains(upperLine, " "+upperLevel+" ")
}
