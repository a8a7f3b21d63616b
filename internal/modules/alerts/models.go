// Package alerts evaluates declarative rules against computed metrics and
// manages the resulting alert lifecycle: deduplication, popup notification
// and auto-resolution.
package alerts

import (
	"strconv"
	"strings"
	"time"

	"github.com/tailwater/aquabalance/internal/domain"
)

// Severity classifies an alert rule.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// ValidSeverity reports whether s is a known severity.
func ValidSeverity(s Severity) bool {
	switch s {
	case SeverityInfo, SeverityWarning, SeverityCritical:
		return true
	}
	return false
}

// severityRank orders severities for deterministic evaluation and listing:
// critical first, info last.
func severityRank(s Severity) int {
	switch s {
	case SeverityCritical:
		return 0
	case SeverityWarning:
		return 1
	default:
		return 2
	}
}

// Operator is the comparison an alert rule applies to its metric.
type Operator string

const (
	OpLess         Operator = "<"
	OpGreater      Operator = ">"
	OpLessEqual    Operator = "<="
	OpGreaterEqual Operator = ">="
	OpEqual        Operator = "="
)

// ValidOperator reports whether o is a known operator.
func ValidOperator(o Operator) bool {
	switch o {
	case OpLess, OpGreater, OpLessEqual, OpGreaterEqual, OpEqual:
		return true
	}
	return false
}

// AlertRule is one declarative rule: when the named metric satisfies
// operator/threshold, an alert of the given severity is raised.
type AlertRule struct {
	ID              int64     `json:"id"`
	RuleID          string    `json:"rule_id"`
	Category        string    `json:"category"`
	MetricName      string    `json:"metric_name"`
	Operator        Operator  `json:"operator"`
	Threshold       float64   `json:"threshold"`
	Severity        Severity  `json:"severity"`
	Title           string    `json:"title"`
	MessageTemplate string    `json:"message_template,omitempty"`
	ShowPopup       bool      `json:"show_popup"`
	AutoResolve     bool      `json:"auto_resolve"`
	Active          bool      `json:"active"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Validate enforces the rule invariants.
func (r *AlertRule) Validate() error {
	if strings.TrimSpace(r.RuleID) == "" {
		return domain.Invariantf("alert rule: rule_id is required")
	}
	if r.Category == "" {
		return domain.Invariantf("alert rule %s: category is required", r.RuleID)
	}
	if r.MetricName == "" {
		return domain.Invariantf("alert rule %s: metric name is required", r.RuleID)
	}
	if !ValidOperator(r.Operator) {
		return domain.Invariantf("alert rule %s: unknown operator %q", r.RuleID, r.Operator)
	}
	if !ValidSeverity(r.Severity) {
		return domain.Invariantf("alert rule %s: unknown severity %q", r.RuleID, r.Severity)
	}
	if r.Title == "" {
		return domain.Invariantf("alert rule %s: title is required", r.RuleID)
	}
	return nil
}

// Triggered reports whether the metric value satisfies the rule condition.
// NaN handling is the caller's job: the evaluator skips unevaluable signals
// before getting here.
func (r *AlertRule) Triggered(v float64) bool {
	switch r.Operator {
	case OpLess:
		return v < r.Threshold
	case OpGreater:
		return v > r.Threshold
	case OpLessEqual:
		return v <= r.Threshold
	case OpGreaterEqual:
		return v >= r.Threshold
	case OpEqual:
		return v == r.Threshold
	}
	return false
}

// RenderMessage fills the message template. {value}, {threshold} and
// {metric} are always available; the signal contributes extra fields such
// as {facility} and {period}. An empty template falls back to the title.
func (r *AlertRule) RenderMessage(value float64, fields map[string]string) string {
	msg := r.MessageTemplate
	if msg == "" {
		msg = r.Title
	}
	msg = strings.ReplaceAll(msg, "{value}", formatMetric(value))
	msg = strings.ReplaceAll(msg, "{threshold}", formatMetric(r.Threshold))
	msg = strings.ReplaceAll(msg, "{metric}", r.MetricName)
	for k, v := range fields {
		msg = strings.ReplaceAll(msg, "{"+k+"}", v)
	}
	return msg
}

// formatMetric renders a metric value without trailing zero noise.
func formatMetric(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// AlertStatus is the lifecycle state of an emitted alert.
type AlertStatus string

const (
	StatusActive    AlertStatus = "active"
	StatusResolved  AlertStatus = "resolved"
	StatusDismissed AlertStatus = "dismissed"
)

// Alert is one emitted alert row. The dedup identity is
// (rule_id, calculation_date, facility_id, source_id) while active.
type Alert struct {
	ID              int64       `json:"id"`
	RuleID          string      `json:"rule_id"`
	CalculationDate string      `json:"calculation_date"` // "YYYY-MM"
	FacilityID      *int64      `json:"facility_id,omitempty"`
	SourceID        string      `json:"source_id,omitempty"`
	Severity        Severity    `json:"severity"`
	Title           string      `json:"title"`
	Message         string      `json:"message"`
	MetricValue     float64     `json:"metric_value"`
	Threshold       float64     `json:"threshold"`
	Status          AlertStatus `json:"status"`
	CreatedAt       time.Time   `json:"created_at"`
	LastCheckedAt   time.Time   `json:"last_checked_at"`
	ResolvedAt      *time.Time  `json:"resolved_at,omitempty"`
	ResolvedBy      string      `json:"resolved_by,omitempty"`
}

// Signal is one metric observation offered to the rules of a category.
// Value nil (or NaN) means the metric could not be computed; such signals
// are skipped, never treated as zero.
type Signal struct {
	Category        string
	MetricName      string
	Value           *float64
	CalculationDate string
	FacilityID      *int64
	SourceID        string
	Fields          map[string]string
}

// seedRules is the default rule set installed on an empty alert_rules
// table. Sites tune thresholds afterwards through the rules repository.
func seedRules() []*AlertRule {
	return []*AlertRule{
		{
			RuleID: "balance_error_critical", Category: "balance", MetricName: "error_pct",
			Operator: OpGreaterEqual, Threshold: 5.0, Severity: SeverityCritical,
			Title:           "Water balance closure failure",
			MessageTemplate: "Balance closure error {value}% is at or above {threshold}% for {period}",
			ShowPopup:       true, AutoResolve: true, Active: true,
		},
		{
			RuleID: "balance_error_warning", Category: "balance", MetricName: "error_pct",
			Operator: OpGreaterEqual, Threshold: 3.0, Severity: SeverityWarning,
			Title:           "Water balance closure drifting",
			MessageTemplate: "Balance closure error {value}% is approaching the {threshold}% review gate for {period}",
			AutoResolve:     true, Active: true,
		},
		{
			RuleID: "abstraction_over_license", Category: "balance", MetricName: "abstraction_pct_of_license",
			Operator: OpGreater, Threshold: 100.0, Severity: SeverityCritical,
			Title:           "Abstraction exceeds license",
			MessageTemplate: "External abstraction at {value}% of the monthly license for {period}",
			ShowPopup:       true, AutoResolve: true, Active: true,
		},
		{
			RuleID: "recycled_pct_low", Category: "balance", MetricName: "recycled_pct",
			Operator: OpLess, Threshold: 40.0, Severity: SeverityInfo,
			Title:           "Recycled water share below target",
			MessageTemplate: "Recycled share {value}% below the {threshold}% target for {period}",
			AutoResolve:     true, Active: true,
		},
		{
			RuleID: "facility_overflow", Category: "storage", MetricName: "overflow_m3",
			Operator: OpGreater, Threshold: 0.0, Severity: SeverityCritical,
			Title:           "Facility overflow",
			MessageTemplate: "{facility} overflowed by {value} m3 in {period}",
			ShowPopup:       true, Active: true,
		},
		{
			RuleID: "facility_deficit", Category: "storage", MetricName: "deficit_m3",
			Operator: OpGreater, Threshold: 0.0, Severity: SeverityWarning,
			Title:           "Facility balance deficit",
			MessageTemplate: "{facility} closed {value} m3 below empty in {period} before clamping",
			Active:          true,
		},
		{
			RuleID: "facility_level_low", Category: "storage", MetricName: "level_pct",
			Operator: OpLess, Threshold: 15.0, Severity: SeverityWarning,
			Title:           "Facility below minimum operating level",
			MessageTemplate: "{facility} at {value}% of capacity, minimum operating level is {threshold}%",
			ShowPopup:       true, AutoResolve: true, Active: true,
		},
		{
			RuleID: "days_to_minimum_low", Category: "storage", MetricName: "days_to_minimum",
			Operator: OpLess, Threshold: 60.0, Severity: SeverityCritical,
			Title:           "Storage trending toward minimum",
			MessageTemplate: "{facility} reaches minimum operating level in {value} days on the current trend",
			ShowPopup:       true, AutoResolve: true, Active: true,
		},
	}
}
