// Package scheduler runs the site's recurring background jobs on cron
// schedules: the monthly balance compute, backups, cache and alert sweeps
// and database maintenance.
package scheduler

import (
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/tailwater/aquabalance/internal/events"
)

// Job represents a scheduled job
type Job interface {
	Run() error
	Name() string
}

// Scheduler manages background jobs
type Scheduler struct {
	cron     *cron.Cron
	eventBus *events.Bus
	log      zerolog.Logger
}

// New creates a new scheduler
func New(log zerolog.Logger) *Scheduler {
	return &Scheduler{
		cron: cron.New(cron.WithSeconds()),
		log:  log.With().Str("component", "scheduler").Logger(),
	}
}

// SetEventBus attaches the bus carrying job lifecycle events.
func (s *Scheduler) SetEventBus(bus *events.Bus) {
	s.eventBus = bus
}

// Start starts the scheduler
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info().Msg("Scheduler started")
}

// Stop stops the scheduler and waits for running jobs to finish
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.log.Info().Msg("Scheduler stopped")
}

// AddJob registers a new job with cron schedule
// Schedule examples (six fields, seconds first):
//   - "0 0 2 2 * *"    - 02:00 on day 2 of every month
//   - "0 0 * * * *"    - Every hour
//   - "0 0 3 * * SUN"  - Sunday 03:00
//   - "@every 30s"     - Every 30 seconds
func (s *Scheduler) AddJob(schedule string, job Job) error {
	_, err := s.cron.AddFunc(schedule, func() {
		_ = s.runJob(job)
	})
	if err != nil {
		return err
	}

	s.log.Info().
		Str("schedule", schedule).
		Str("job", job.Name()).
		Msg("Job registered")

	return nil
}

// RunNow executes a job immediately (outside schedule)
func (s *Scheduler) RunNow(job Job) error {
	s.log.Info().Str("job", job.Name()).Msg("Running job immediately")
	return s.runJob(job)
}

// runJob wraps a job run with logging and lifecycle events so UI streams can
// show background activity.
func (s *Scheduler) runJob(job Job) error {
	jobID := uuid.NewString()
	start := time.Now()

	s.log.Debug().Str("job", job.Name()).Str("job_id", jobID).Msg("Running job")
	s.emit(&events.JobStatusData{
		JobID:     jobID,
		JobType:   job.Name(),
		Status:    "started",
		Timestamp: start,
	})

	err := job.Run()
	duration := time.Since(start).Seconds()

	if err != nil {
		s.log.Error().
			Err(err).
			Str("job", job.Name()).
			Msg("Job failed")
		s.emit(&events.JobStatusData{
			JobID:     jobID,
			JobType:   job.Name(),
			Status:    "failed",
			Error:     err.Error(),
			Duration:  duration,
			Timestamp: time.Now(),
		})
		return err
	}

	s.log.Debug().Str("job", job.Name()).Msg("Job completed")
	s.emit(&events.JobStatusData{
		JobID:     jobID,
		JobType:   job.Name(),
		Status:    "completed",
		Duration:  duration,
		Timestamp: time.Now(),
	})

	return nil
}

func (s *Scheduler) emit(data *events.JobStatusData) {
	if s.eventBus == nil {
		return
	}
	s.eventBus.EmitData("scheduler", data)
}
