package logger

import (
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tailwater/aquabalance/internal/logging"
)

// Config holds logger configuration
type Config struct {
	Level  string // debug, info, warn, error
	Pretty bool   // Enable pretty console output

	// File logging (optional). When FilePath is set, records also go to a
	// rotating file through the async sink so request paths never block on
	// disk I/O.
	FilePath      string
	MaxBytes      int64
	Interval      logging.RotationInterval
	BackupCount   int
	RetentionDays int // rotated files older than this are removed at startup
}

// New creates a new structured logger writing to stdout only.
func New(cfg Config) zerolog.Logger {
	return zerolog.New(consoleOutput(cfg)).
		With().
		Timestamp().
		Caller().
		Logger()
}

// NewWithFile creates a logger that writes to stdout and to a rotating log
// file behind the async sink. The returned closer drains queued records and
// must be called on shutdown.
func NewWithFile(cfg Config) (zerolog.Logger, io.Closer, error) {
	rotating, err := logging.NewRotatingFile(logging.RotatingFileConfig{
		Path:        cfg.FilePath,
		MaxBytes:    cfg.MaxBytes,
		Interval:    cfg.Interval,
		BackupCount: cfg.BackupCount,
	})
	if err != nil {
		return zerolog.Logger{}, nil, err
	}

	retention := cfg.RetentionDays
	if retention <= 0 {
		retention = 90
	}
	// Old rotated files accumulate across restarts; sweep them once here.
	if removed, err := logging.CleanupOldLogs(filepath.Dir(cfg.FilePath), time.Duration(retention)*24*time.Hour); err == nil && removed > 0 {
		log.Info().Int("removed", removed).Msg("Cleaned up old log files")
	}

	async := logging.NewAsyncWriter(rotating, logging.AsyncWriterConfig{})
	sink := zerolog.MultiLevelWriter(consoleOutput(cfg), async)

	l := zerolog.New(sink).
		With().
		Timestamp().
		Caller().
		Logger()

	return l, closeFunc(func() error {
		err := async.Close()
		if cerr := rotating.Close(); err == nil {
			err = cerr
		}
		return err
	}), nil
}

func consoleOutput(cfg Config) io.Writer {
	// Parse log level
	level := zerolog.InfoLevel
	switch cfg.Level {
	case "debug":
		level = zerolog.DebugLevel
	case "info":
		level = zerolog.InfoLevel
	case "warn":
		level = zerolog.WarnLevel
	case "error":
		level = zerolog.ErrorLevel
	}

	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339

	var output io.Writer = os.Stdout
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: "15:04:05",
		}
	}
	return output
}

// SetGlobalLogger sets the package-level logger
func SetGlobalLogger(l zerolog.Logger) {
	log.Logger = l
}

type closeFunc func() error

func (f closeFunc) Close() error { return f() }
