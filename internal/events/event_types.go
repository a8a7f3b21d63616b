package events

// EventType identifies a class of domain event flowing through the bus.
type EventType string

// Domain events. Names are stable: the UI subscribes to them over SSE and
// websocket by string value.
const (
	// Balance lifecycle
	BalanceComputed EventType = "BalanceComputed"

	// Alerting
	AlertRaised   EventType = "AlertRaised"
	AlertResolved EventType = "AlertResolved"

	// Facility registry
	FacilityChanged EventType = "FacilityChanged"

	// Workbook ingest
	WorkbookReloaded EventType = "WorkbookReloaded"

	// Configuration
	ConstantChanged EventType = "ConstantChanged"
	SettingsChanged EventType = "SettingsChanged"

	// System
	SystemStatusChanged EventType = "SystemStatusChanged"
	ErrorOccurred       EventType = "ErrorOccurred"

	// Job lifecycle (scheduler-run background jobs)
	JobStarted   EventType = "JobStarted"
	JobProgress  EventType = "JobProgress"
	JobCompleted EventType = "JobCompleted"
	JobFailed    EventType = "JobFailed"
)

// AllEventTypes lists every known event type, in the order the events
// stream advertises them.
func AllEventTypes() []EventType {
	return []EventType{
		BalanceComputed,
		AlertRaised,
		AlertResolved,
		FacilityChanged,
		WorkbookReloaded,
		ConstantChanged,
		SettingsChanged,
		SystemStatusChanged,
		ErrorOccurred,
		JobStarted,
		JobProgress,
		JobCompleted,
		JobFailed,
	}
}
