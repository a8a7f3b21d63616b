package scheduler

import (
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tailwater/aquabalance/internal/domain"
	"github.com/tailwater/aquabalance/internal/events"
)

// stubSettings satisfies JobSettings with a fixed flag map.
type stubSettings struct {
	flags   map[string]float64
	mode    domain.BalanceMode
	modeErr error
}

func (s *stubSettings) Enabled(key string) bool {
	return s.flags[key] != 0
}

func (s *stubSettings) Float(key string) float64 {
	return s.flags[key]
}

func (s *stubSettings) DefaultBalanceMode() (domain.BalanceMode, error) {
	if s.modeErr != nil {
		return "", s.modeErr
	}
	if s.mode == "" {
		return domain.ModeRegulator, nil
	}
	return s.mode, nil
}

type stubJob struct {
	name string
	err  error
	runs int
}

func (j *stubJob) Run() error {
	j.runs++
	return j.err
}

func (j *stubJob) Name() string { return j.name }

func TestSchedulerRunNowEmitsLifecycleEvents(t *testing.T) {
	bus := events.NewBus(zerolog.Nop())
	var received []*events.Event
	for _, et := range []events.EventType{events.JobStarted, events.JobCompleted, events.JobFailed} {
		bus.Subscribe(et, func(event *events.Event) {
			received = append(received, event)
		})
	}

	s := New(zerolog.Nop())
	s.SetEventBus(bus)

	job := &stubJob{name: "probe"}
	require.NoError(t, s.RunNow(job))
	assert.Equal(t, 1, job.runs)

	require.Len(t, received, 2)
	assert.Equal(t, events.JobStarted, received[0].Type)
	assert.Equal(t, "scheduler", received[0].Module)
	assert.Equal(t, "probe", received[0].Data["job_type"])
	assert.Equal(t, events.JobCompleted, received[1].Type)
	assert.Equal(t, received[0].Data["job_id"], received[1].Data["job_id"])
}

func TestSchedulerRunNowReportsFailure(t *testing.T) {
	bus := events.NewBus(zerolog.Nop())
	var received []*events.Event
	for _, et := range []events.EventType{events.JobStarted, events.JobCompleted, events.JobFailed} {
		bus.Subscribe(et, func(event *events.Event) {
			received = append(received, event)
		})
	}

	s := New(zerolog.Nop())
	s.SetEventBus(bus)

	job := &stubJob{name: "probe", err: errors.New("pump room flooded")}
	err := s.RunNow(job)
	require.Error(t, err)

	require.Len(t, received, 2)
	assert.Equal(t, events.JobStarted, received[0].Type)
	assert.Equal(t, events.JobFailed, received[1].Type)
	assert.Equal(t, "pump room flooded", received[1].Data["error"])
}

func TestSchedulerRunsWithoutEventBus(t *testing.T) {
	s := New(zerolog.Nop())
	job := &stubJob{name: "probe"}
	require.NoError(t, s.RunNow(job))
}

func TestSchedulerAddJobValidatesSchedule(t *testing.T) {
	s := New(zerolog.Nop())

	assert.Error(t, s.AddJob("not a schedule", &stubJob{name: "probe"}))
	assert.NoError(t, s.AddJob("0 0 2 2 * *", &stubJob{name: "monthly"}))
	assert.NoError(t, s.AddJob("0 0 * * * *", &stubJob{name: "hourly"}))
	assert.NoError(t, s.AddJob("0 0 3 * * SUN", &stubJob{name: "weekly"}))
}
