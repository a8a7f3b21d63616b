package alerts

import (
	"math"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tailwater/aquabalance/internal/domain"
	"github.com/tailwater/aquabalance/internal/events"
)

type evalFixture struct {
	rules  *RuleRepository
	alerts *AlertRepository
	eval   *Evaluator

	raised   []*events.Event
	resolved []*events.Event
}

func newEvalFixture(t *testing.T) *evalFixture {
	db := alertsTestDB(t)
	f := &evalFixture{
		rules:  NewRuleRepository(db, zerolog.Nop()),
		alerts: NewAlertRepository(db, zerolog.Nop()),
	}
	f.eval = NewEvaluator(f.rules, f.alerts, zerolog.Nop())

	bus := events.NewBus(zerolog.Nop())
	bus.Subscribe(events.AlertRaised, func(e *events.Event) { f.raised = append(f.raised, e) })
	bus.Subscribe(events.AlertResolved, func(e *events.Event) { f.resolved = append(f.resolved, e) })
	f.eval.SetEventBus(bus)
	return f
}

func period(year, month int) domain.CalculationPeriod {
	return domain.CalculationPeriod{Year: year, Month: month}
}

func signal(category, metric string, v *float64, date string) Signal {
	return Signal{
		Category: category, MetricName: metric,
		Value: v, CalculationDate: date,
		Fields: map[string]string{"period": date},
	}
}

func TestEvaluator_AlertLifecycle(t *testing.T) {
	f := newEvalFixture(t)
	_, err := f.rules.Create(testRule("days_low"))
	require.NoError(t, err)

	// Breach opens one alert and emits a popup-worthy event.
	f.eval.Evaluate([]Signal{signal("storage", "days_to_minimum", fp(5), "2026-03")})

	active, err := f.alerts.ListActive()
	require.NoError(t, err)
	require.Len(t, active, 1)
	firstID := active[0].ID
	assert.Equal(t, "days_low", active[0].RuleID)
	assert.Equal(t, 5.0, active[0].MetricValue)
	assert.Equal(t, SeverityCritical, active[0].Severity)
	require.Len(t, f.raised, 1)
	assert.Equal(t, true, f.raised[0].Data["show_popup"])
	assert.Equal(t, "alerts", f.raised[0].Module)

	// A worsening reading refreshes the open alert instead of duplicating it.
	f.eval.Evaluate([]Signal{signal("storage", "days_to_minimum", fp(4), "2026-03")})

	active, err = f.alerts.ListActive()
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, firstID, active[0].ID)
	assert.Equal(t, 4.0, active[0].MetricValue)
	assert.Len(t, f.raised, 1)

	// Recovery auto-resolves the alert.
	f.eval.Evaluate([]Signal{signal("storage", "days_to_minimum", fp(9), "2026-03")})

	count, err := f.alerts.CountActive()
	require.NoError(t, err)
	assert.Zero(t, count)
	require.Len(t, f.resolved, 1)
	assert.Equal(t, "auto", f.resolved[0].Data["resolved_by"])

	closed, err := f.alerts.GetByID(firstID)
	require.NoError(t, err)
	assert.Equal(t, StatusResolved, closed.Status)
	assert.Equal(t, "auto", closed.ResolvedBy)
	assert.NotNil(t, closed.ResolvedAt)

	// A fresh breach starts a new cycle; the resolved row stays for history.
	f.eval.Evaluate([]Signal{signal("storage", "days_to_minimum", fp(5), "2026-03")})

	all, err := f.alerts.ListRecent(0)
	require.NoError(t, err)
	assert.Len(t, all, 2)
	count, err = f.alerts.CountActive()
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.Len(t, f.raised, 2)
}

func TestEvaluator_SkipsUnevaluableSignals(t *testing.T) {
	f := newEvalFixture(t)
	_, err := f.rules.Create(testRule("days_low"))
	require.NoError(t, err)

	nan := math.NaN()
	f.eval.Evaluate([]Signal{
		signal("storage", "days_to_minimum", nil, "2026-03"),
		signal("storage", "days_to_minimum", &nan, "2026-03"),
	})

	count, err := f.alerts.CountActive()
	require.NoError(t, err)
	assert.Zero(t, count)
	assert.Empty(t, f.raised)
}

func TestEvaluator_ManualRuleSurvivesRecovery(t *testing.T) {
	f := newEvalFixture(t)
	rule := testRule("overflow")
	rule.Category = "storage"
	rule.MetricName = "overflow_m3"
	rule.Operator = OpGreater
	rule.Threshold = 0
	rule.AutoResolve = false
	_, err := f.rules.Create(rule)
	require.NoError(t, err)

	sig := signal("storage", "overflow_m3", fp(120), "2026-03")
	sig.SourceID = "TSF1"
	f.eval.Evaluate([]Signal{sig})

	sig.Value = fp(0)
	f.eval.Evaluate([]Signal{sig})

	count, err := f.alerts.CountActive()
	require.NoError(t, err)
	assert.Equal(t, 1, count, "overflow needs human review, no auto-resolve")
	assert.Empty(t, f.resolved)
}

func TestEvaluator_SourceIdentitySeparatesAlerts(t *testing.T) {
	f := newEvalFixture(t)
	rule := testRule("level_low")
	rule.Category = "storage"
	rule.MetricName = "level_pct"
	rule.Threshold = 15
	_, err := f.rules.Create(rule)
	require.NoError(t, err)

	tsf := signal("storage", "level_pct", fp(8), "2026-03")
	tsf.SourceID = "TSF1"
	rwd := signal("storage", "level_pct", fp(12), "2026-03")
	rwd.SourceID = "RWD1"

	f.eval.Evaluate([]Signal{tsf, rwd})
	count, err := f.alerts.CountActive()
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	// Re-evaluation dedups per facility.
	f.eval.Evaluate([]Signal{tsf, rwd})
	count, err = f.alerts.CountActive()
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	assert.Len(t, f.raised, 2)
}

func TestEvaluator_EvaluateBalanceWithSeededRules(t *testing.T) {
	f := newEvalFixture(t)
	require.NoError(t, f.rules.EnsureSeeded())

	abstraction := 112.0
	recycled := 55.0
	result := &domain.BalanceResult{
		Period:   period(2026, 3),
		Mode:     domain.ModeRegulator,
		ErrorPct: 6.5,
		Status:   domain.StatusRed,
		KPIs: &domain.KPIResult{
			AbstractionPctOfLicense: &abstraction,
			RecycledPct:             &recycled,
		},
		Storage: domain.StorageChange{
			Facilities: []domain.FacilityBalance{
				{FacilityCode: "TSF1", LevelPercent: 0.10, OverflowM3: 350},
				{FacilityCode: "RWD1", LevelPercent: 0.60},
			},
		},
	}

	f.eval.EvaluateBalance(result)

	// Rules are visited critical-first, then by rule id, so the emission
	// order is stable run to run.
	var order []string
	for _, ev := range f.raised {
		order = append(order, ev.Data["rule_id"].(string))
	}
	assert.Equal(t, []string{
		"abstraction_over_license",
		"balance_error_critical",
		"facility_overflow",
		"balance_error_warning",
		"facility_level_low",
	}, order)

	active, err := f.alerts.ListActive()
	require.NoError(t, err)
	require.Len(t, active, 5)

	byRule := make(map[string]*Alert, len(active))
	for _, a := range active {
		byRule[a.RuleID] = a
	}
	overflow := byRule["facility_overflow"]
	require.NotNil(t, overflow)
	assert.Equal(t, "TSF1", overflow.SourceID)
	assert.Equal(t, "TSF1 overflowed by 350 m3 in 2026-03", overflow.Message)

	level := byRule["facility_level_low"]
	require.NotNil(t, level)
	assert.InDelta(t, 10.0, level.MetricValue, 1e-9)

	closure := byRule["balance_error_critical"]
	require.NotNil(t, closure)
	assert.Equal(t, "Balance closure error 6.5% is at or above 5% for 2026-03", closure.Message)
	assert.Empty(t, closure.SourceID)
}

func TestEvaluator_SweepStaleResolvesPastAutoAlerts(t *testing.T) {
	f := newEvalFixture(t)
	auto := testRule("auto_rule")
	manual := testRule("manual_rule")
	manual.AutoResolve = false
	_, err := f.rules.Create(auto)
	require.NoError(t, err)
	_, err = f.rules.Create(manual)
	require.NoError(t, err)

	f.eval.Evaluate([]Signal{
		signal("storage", "days_to_minimum", fp(2), "2026-02"),
		signal("storage", "days_to_minimum", fp(3), "2026-03"),
	})
	count, err := f.alerts.CountActive()
	require.NoError(t, err)
	require.Equal(t, 4, count)

	n, err := f.eval.SweepStale(period(2026, 3))
	require.NoError(t, err)
	assert.Equal(t, 1, n, "only the auto-resolve rule's past period sweeps")

	active, err := f.alerts.ListActive()
	require.NoError(t, err)
	require.Len(t, active, 3)
	for _, a := range active {
		if a.RuleID == "auto_rule" {
			assert.Equal(t, "2026-03", a.CalculationDate)
		}
	}

	// A deactivated rule drops out of the sweep's scope entirely.
	auto.Active = false
	_, err = f.rules.Update(auto)
	require.NoError(t, err)

	n, err = f.eval.SweepStale(period(2026, 4))
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestEvaluator_ResolveByUser(t *testing.T) {
	f := newEvalFixture(t)
	_, err := f.rules.Create(testRule("days_low"))
	require.NoError(t, err)
	f.eval.Evaluate([]Signal{signal("storage", "days_to_minimum", fp(5), "2026-03")})

	active, err := f.alerts.ListActive()
	require.NoError(t, err)
	require.Len(t, active, 1)

	require.NoError(t, f.eval.ResolveByUser(active[0].ID))

	a, err := f.alerts.GetByID(active[0].ID)
	require.NoError(t, err)
	assert.Equal(t, StatusResolved, a.Status)
	assert.Equal(t, "user", a.ResolvedBy)
	require.Len(t, f.resolved, 1)
	assert.Equal(t, "user", f.resolved[0].Data["resolved_by"])

	err = f.eval.ResolveByUser(9999)
	assert.Equal(t, domain.KindNotFound, domain.KindOf(err))
}
