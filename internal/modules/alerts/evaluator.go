package alerts

import (
	"math"

	"github.com/rs/zerolog"

	"github.com/tailwater/aquabalance/internal/domain"
	"github.com/tailwater/aquabalance/internal/events"
)

// SignalSource contributes extra signals to an evaluation cycle, such as
// the storage trend forecaster.
type SignalSource interface {
	Signals(period domain.CalculationPeriod) []Signal
}

// Evaluator matches computed metrics against the active rule set. Raised
// alerts deduplicate on (rule, period, facility, source); popup delivery is
// the AlertRaised event with show_popup set, which the SSE and websocket
// streams forward to UI consumers.
type Evaluator struct {
	rules  *RuleRepository
	alerts *AlertRepository
	log    zerolog.Logger

	eventBus *events.Bus
	extra    []SignalSource
}

// NewEvaluator creates an alert evaluator over the rule and alert stores.
func NewEvaluator(rules *RuleRepository, alerts *AlertRepository, log zerolog.Logger) *Evaluator {
	return &Evaluator{
		rules:  rules,
		alerts: alerts,
		log:    log.With().Str("service", "alert_evaluator").Logger(),
	}
}

// SetEventBus attaches the bus receiving AlertRaised/AlertResolved events.
func (e *Evaluator) SetEventBus(bus *events.Bus) {
	e.eventBus = bus
}

// AddSignalSource registers an additional signal contributor consulted on
// every balance evaluation.
func (e *Evaluator) AddSignalSource(src SignalSource) {
	e.extra = append(e.extra, src)
}

// EvaluateBalance derives signals from a computed balance result and runs
// them through the active rules. Implements the orchestrator's alert sink.
func (e *Evaluator) EvaluateBalance(result *domain.BalanceResult) {
	signals := balanceSignals(result)
	for _, src := range e.extra {
		signals = append(signals, src.Signals(result.Period)...)
	}
	e.Evaluate(signals)
}

// Evaluate runs every signal against the matching active rules. Rules are
// visited in severity-rank then rule-id order, so emission is deterministic.
func (e *Evaluator) Evaluate(signals []Signal) {
	rules, err := e.rules.ActiveRules()
	if err != nil {
		e.log.Error().Err(err).Msg("Failed to load alert rules, skipping evaluation")
		return
	}

	for _, rule := range rules {
		for i := range signals {
			sig := &signals[i]
			if sig.Category != rule.Category || sig.MetricName != rule.MetricName {
				continue
			}
			e.evaluateOne(rule, sig)
		}
	}
}

// evaluateOne applies a single rule to a single signal: skip unevaluable
// metrics, dedup against the existing active alert, raise or auto-resolve.
func (e *Evaluator) evaluateOne(rule *AlertRule, sig *Signal) {
	if sig.Value == nil || math.IsNaN(*sig.Value) {
		return
	}
	v := *sig.Value

	existing, err := e.alerts.FindActive(rule.RuleID, sig.CalculationDate, sig.FacilityID, sig.SourceID)
	if err != nil {
		e.log.Error().Err(err).Str("rule_id", rule.RuleID).Msg("Failed to query active alert")
		return
	}

	if !rule.Triggered(v) {
		if existing != nil && rule.AutoResolve {
			e.resolveAuto(existing)
		}
		return
	}

	if existing != nil {
		if err := e.alerts.Touch(existing.ID, v); err != nil {
			e.log.Error().Err(err).Int64("alert_id", existing.ID).Msg("Failed to refresh alert")
		}
		return
	}

	created, err := e.alerts.Insert(&Alert{
		RuleID:          rule.RuleID,
		CalculationDate: sig.CalculationDate,
		FacilityID:      sig.FacilityID,
		SourceID:        sig.SourceID,
		Severity:        rule.Severity,
		Title:           rule.Title,
		Message:         rule.RenderMessage(v, sig.Fields),
		MetricValue:     v,
		Threshold:       rule.Threshold,
		Status:          StatusActive,
	})
	if err != nil {
		e.log.Error().Err(err).Str("rule_id", rule.RuleID).Msg("Failed to insert alert")
		return
	}

	e.log.Warn().
		Str("rule_id", rule.RuleID).
		Str("severity", string(rule.Severity)).
		Float64("metric_value", v).
		Str("period", sig.CalculationDate).
		Msg("Alert raised")

	if e.eventBus != nil {
		e.eventBus.EmitData("alerts", &events.AlertRaisedData{
			AlertID:     created.ID,
			RuleID:      created.RuleID,
			Severity:    string(created.Severity),
			Title:       created.Title,
			Message:     created.Message,
			MetricValue: created.MetricValue,
			FacilityID:  created.FacilityID,
			ShowPopup:   rule.ShowPopup,
		})
	}
}

func (e *Evaluator) resolveAuto(a *Alert) {
	if err := e.alerts.Resolve(a.ID, "auto"); err != nil {
		e.log.Error().Err(err).Int64("alert_id", a.ID).Msg("Failed to auto-resolve alert")
		return
	}
	e.log.Info().
		Str("rule_id", a.RuleID).
		Int64("alert_id", a.ID).
		Msg("Alert auto-resolved")

	if e.eventBus != nil {
		e.eventBus.EmitData("alerts", &events.AlertResolvedData{
			AlertID:    a.ID,
			RuleID:     a.RuleID,
			ResolvedBy: "auto",
		})
	}
}

// SweepStale auto-resolves active auto-resolve alerts from periods before
// current. Their metric can no longer be observed, so a later recompute of
// that month restarts the cycle cleanly. Run hourly by the scheduler.
func (e *Evaluator) SweepStale(current domain.CalculationPeriod) (int, error) {
	rules, err := e.rules.ActiveRules()
	if err != nil {
		return 0, err
	}
	byID := make(map[string]*AlertRule, len(rules))
	for _, r := range rules {
		byID[r.RuleID] = r
	}

	active, err := e.alerts.ListActive()
	if err != nil {
		return 0, err
	}

	resolved := 0
	cutoff := current.String()
	for _, a := range active {
		rule := byID[a.RuleID]
		if rule == nil || !rule.AutoResolve {
			continue
		}
		// "YYYY-MM" compares chronologically as a string.
		if a.CalculationDate >= cutoff {
			continue
		}
		e.resolveAuto(a)
		resolved++
	}
	if resolved > 0 {
		e.log.Info().Int("resolved", resolved).Msg("Swept stale alerts")
	}
	return resolved, nil
}

// ResolveByUser transitions an alert to resolved on behalf of the API
// surface and emits the matching event.
func (e *Evaluator) ResolveByUser(id int64) error {
	a, err := e.alerts.GetByID(id)
	if err != nil {
		return err
	}
	if a == nil {
		return domain.NotFoundf("alert %d not found", id)
	}
	if err := e.alerts.Resolve(id, "user"); err != nil {
		return err
	}
	if e.eventBus != nil {
		e.eventBus.EmitData("alerts", &events.AlertResolvedData{
			AlertID:    id,
			RuleID:     a.RuleID,
			ResolvedBy: "user",
		})
	}
	return nil
}

// balanceSignals flattens one balance result into rule-matchable signals.
// System metrics carry no facility identity; per-facility lines use the
// facility code as the dedup source id.
func balanceSignals(result *domain.BalanceResult) []Signal {
	date := result.Period.String()
	system := map[string]string{"period": date}

	errorPct := result.ErrorPct
	signals := []Signal{
		{
			Category: "balance", MetricName: "error_pct",
			Value: &errorPct, CalculationDate: date, Fields: system,
		},
	}
	if result.KPIs != nil {
		signals = append(signals,
			Signal{
				Category: "balance", MetricName: "abstraction_pct_of_license",
				Value: result.KPIs.AbstractionPctOfLicense, CalculationDate: date, Fields: system,
			},
			Signal{
				Category: "balance", MetricName: "recycled_pct",
				Value: result.KPIs.RecycledPct, CalculationDate: date, Fields: system,
			},
		)
	}

	for i := range result.Storage.Facilities {
		fb := &result.Storage.Facilities[i]
		fields := map[string]string{"period": date, "facility": fb.FacilityCode}

		overflow := fb.OverflowM3
		deficit := fb.DeficitM3
		levelPct := fb.LevelPercent * 100
		signals = append(signals,
			Signal{
				Category: "storage", MetricName: "overflow_m3",
				Value: &overflow, CalculationDate: date,
				SourceID: fb.FacilityCode, Fields: fields,
			},
			Signal{
				Category: "storage", MetricName: "deficit_m3",
				Value: &deficit, CalculationDate: date,
				SourceID: fb.FacilityCode, Fields: fields,
			},
			Signal{
				Category: "storage", MetricName: "level_pct",
				Value: &levelPct, CalculationDate: date,
				SourceID: fb.FacilityCode, Fields: fields,
			},
		)
	}
	return signals
}
