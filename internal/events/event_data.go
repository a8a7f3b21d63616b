package events

import (
	"encoding/json"
	"time"
)

// EventData is the interface that all event data types must implement
// This allows for type-safe event data while maintaining flexibility
type EventData interface {
	// EventType returns the event type this data is associated with
	EventType() EventType
}

// BalanceComputedData contains data for BalanceComputed events
type BalanceComputedData struct {
	Year            int     `json:"year"`
	Month           int     `json:"month"`
	Mode            string  `json:"mode"`
	Status          string  `json:"status"`
	TotalInflowsM3  float64 `json:"total_inflows_m3"`
	TotalOutflowsM3 float64 `json:"total_outflows_m3"`
	BalanceErrorM3  float64 `json:"balance_error_m3"`
	ErrorPct        float64 `json:"error_pct"`
}

// EventType returns the event type for BalanceComputedData
func (d *BalanceComputedData) EventType() EventType {
	return BalanceComputed
}

// AlertRaisedData contains data for AlertRaised events
type AlertRaisedData struct {
	AlertID     int64   `json:"alert_id"`
	RuleID      string  `json:"rule_id"`
	Severity    string  `json:"severity"`
	Title       string  `json:"title"`
	Message     string  `json:"message"`
	MetricValue float64 `json:"metric_value"`
	FacilityID  *int64  `json:"facility_id,omitempty"`
	ShowPopup   bool    `json:"show_popup"`
}

// EventType returns the event type for AlertRaisedData
func (d *AlertRaisedData) EventType() EventType {
	return AlertRaised
}

// AlertResolvedData contains data for AlertResolved events
type AlertResolvedData struct {
	AlertID    int64  `json:"alert_id"`
	RuleID     string `json:"rule_id"`
	ResolvedBy string `json:"resolved_by"`
}

// EventType returns the event type for AlertResolvedData
func (d *AlertResolvedData) EventType() EventType {
	return AlertResolved
}

// FacilityChangedData contains data for FacilityChanged events
type FacilityChangedData struct {
	Code   string `json:"code"`
	Action string `json:"action"` // "created", "updated", "deleted", "status_changed"
}

// EventType returns the event type for FacilityChangedData
func (d *FacilityChangedData) EventType() EventType {
	return FacilityChanged
}

// WorkbookReloadedData contains data for WorkbookReloaded events
type WorkbookReloadedData struct {
	Path      string  `json:"path"`
	Signature string  `json:"signature"`
	Sheets    int     `json:"sheets"`
	Duration  float64 `json:"duration_seconds"`
	Warnings  int     `json:"warnings,omitempty"`
}

// EventType returns the event type for WorkbookReloadedData
func (d *WorkbookReloadedData) EventType() EventType {
	return WorkbookReloaded
}

// ConstantChangedData contains data for ConstantChanged events
type ConstantChangedData struct {
	Key      string   `json:"key"`
	OldValue *float64 `json:"old_value,omitempty"`
	NewValue float64  `json:"new_value"`
}

// EventType returns the event type for ConstantChangedData
func (d *ConstantChangedData) EventType() EventType {
	return ConstantChanged
}

// SettingsChangedData contains data for SettingsChanged events
type SettingsChangedData struct {
	Key   string      `json:"key"`
	Value interface{} `json:"value"`
}

// EventType returns the event type for SettingsChangedData
func (d *SettingsChangedData) EventType() EventType {
	return SettingsChanged
}

// SystemStatusChangedData contains data for SystemStatusChanged events
type SystemStatusChangedData struct {
	Status    string `json:"status,omitempty"`
	Timestamp string `json:"timestamp"`
}

// EventType returns the event type for SystemStatusChangedData
func (d *SystemStatusChangedData) EventType() EventType {
	return SystemStatusChanged
}

// ErrorEventData contains data for ErrorOccurred events
type ErrorEventData struct {
	Error   string                 `json:"error"`
	Context map[string]interface{} `json:"context,omitempty"`
}

// EventType returns the event type for ErrorEventData
func (d *ErrorEventData) EventType() EventType {
	return ErrorOccurred
}

// JobStatusData contains data for job lifecycle events
type JobStatusData struct {
	JobID       string                 `json:"job_id"`
	JobType     string                 `json:"job_type"`
	Status      string                 `json:"status"` // "started", "progress", "completed", "failed"
	Description string                 `json:"description"`
	Error       string                 `json:"error,omitempty"`
	Duration    float64                `json:"duration,omitempty"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
	Timestamp   time.Time              `json:"timestamp"`
}

// EventType returns the event type for JobStatusData
// Note: The actual event type is determined by the Status field
func (d *JobStatusData) EventType() EventType {
	switch d.Status {
	case "started":
		return JobStarted
	case "progress":
		return JobProgress
	case "completed":
		return JobCompleted
	case "failed":
		return JobFailed
	default:
		return JobStarted
	}
}

// EventWithData represents an event with typed data
type EventWithData struct {
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Module    string    `json:"module"`
	Data      EventData `json:"data"`
}

// MarshalJSON customizes JSON serialization for EventWithData
func (e *EventWithData) MarshalJSON() ([]byte, error) {
	type Alias EventWithData
	aux := &struct {
		Data json.RawMessage `json:"data"`
		*Alias
	}{
		Alias: (*Alias)(e),
	}

	// Marshal the data separately
	if e.Data != nil {
		dataBytes, err := json.Marshal(e.Data)
		if err != nil {
			return nil, err
		}
		aux.Data = dataBytes
	}

	return json.Marshal(aux)
}

// UnmarshalJSON customizes JSON deserialization for EventWithData
func (e *EventWithData) UnmarshalJSON(data []byte) error {
	type Alias EventWithData
	aux := &struct {
		Data json.RawMessage `json:"data"`
		*Alias
	}{
		Alias: (*Alias)(e),
	}

	if err := json.Unmarshal(data, aux); err != nil {
		return err
	}

	// Unmarshal data based on event type
	if len(aux.Data) > 0 {
		var eventData EventData
		switch aux.Type {
		case BalanceComputed:
			eventData = &BalanceComputedData{}
		case AlertRaised:
			eventData = &AlertRaisedData{}
		case AlertResolved:
			eventData = &AlertResolvedData{}
		case FacilityChanged:
			eventData = &FacilityChangedData{}
		case WorkbookReloaded:
			eventData = &WorkbookReloadedData{}
		case ConstantChanged:
			eventData = &ConstantChangedData{}
		case SettingsChanged:
			eventData = &SettingsChangedData{}
		case SystemStatusChanged:
			eventData = &SystemStatusChangedData{}
		case ErrorOccurred:
			eventData = &ErrorEventData{}
		case JobStarted, JobProgress, JobCompleted, JobFailed:
			eventData = &JobStatusData{}
		default:
			// For unknown types, use raw map
			var rawData map[string]interface{}
			if err := json.Unmarshal(aux.Data, &rawData); err != nil {
				return err
			}
			// Convert to generic data type
			eventData = &GenericEventData{Type: aux.Type, Data: rawData}
		}

		if eventData != nil {
			if err := json.Unmarshal(aux.Data, eventData); err != nil {
				return err
			}
			e.Data = eventData
		}
	}

	return nil
}

// GenericEventData is a fallback for events that don't have a specific type
type GenericEventData struct {
	Type EventType              `json:"-"`
	Data map[string]interface{} `json:"-"`
}

// EventType returns the event type for GenericEventData
func (d *GenericEventData) EventType() EventType {
	return d.Type
}

// MarshalJSON customizes JSON serialization for GenericEventData
func (d *GenericEventData) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Data)
}

// UnmarshalJSON customizes JSON deserialization for GenericEventData
func (d *GenericEventData) UnmarshalJSON(data []byte) error {
	return json.Unmarshal(data, &d.Data)
}
