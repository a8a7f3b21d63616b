package balance

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tailwater/aquabalance/internal/domain"
	"github.com/tailwater/aquabalance/internal/events"
)

// RecordSource computes the monthly storage record of one facility.
type RecordSource interface {
	GetStorageRecord(f *domain.StorageFacility, period domain.CalculationPeriod) (*domain.StorageRecord, error)
}

// FacilitySource lists the facilities a run computes over and persists
// their computed history.
type FacilitySource interface {
	ListActive() ([]*domain.StorageFacility, error)
	RecordHistory(h *domain.StorageHistory) error
}

// ParameterSink snapshots manual monthly totals after a persisting run.
type ParameterSink interface {
	Upsert(p *domain.MonthlyParameters) (*domain.MonthlyParameters, error)
}

// ResultStore persists period results for reporting.
type ResultStore interface {
	Save(result *domain.BalanceResult) (int64, error)
}

// ResultCache memoizes computed results against the workbook signature.
type ResultCache interface {
	Get(period domain.CalculationPeriod, mode domain.BalanceMode, signature string) (*domain.BalanceResult, error)
	Put(period domain.CalculationPeriod, mode domain.BalanceMode, signature string, result *domain.BalanceResult) error
}

// SignatureSource reports the signature of the loaded workbook. Cached
// results are only served while it matches.
type SignatureSource interface {
	CurrentSignature() string
}

// AlertSink evaluates alert rules against a freshly computed result.
type AlertSink interface {
	EvaluateBalance(result *domain.BalanceResult)
}

// maxParallelFacilities bounds the calculator fan-out of one run. Each
// facility stays single-goroutine so its month recursion is ordered.
const maxParallelFacilities = 4

// Orchestrator drives one balance run end to end: fan the storage
// calculator out across the active facilities, fold the records through
// the engine, evaluate alert rules, and persist what the mode requires.
// REGULATOR and AUDIT runs persist history, parameters and the result row;
// INTERNAL runs only compute.
type Orchestrator struct {
	engine     *Engine
	calculator RecordSource
	facilities FacilitySource
	log        zerolog.Logger

	params     ParameterSink
	results    ResultStore
	cache      ResultCache
	signatures SignatureSource
	alerts     AlertSink
	eventBus   *events.Bus
}

// NewOrchestrator creates an orchestrator over the required collaborators.
// Persistence, caching, alerting and events are attached separately and
// may be left unset; the run then skips those stages.
func NewOrchestrator(engine *Engine, calculator RecordSource, facilities FacilitySource, log zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		engine:     engine,
		calculator: calculator,
		facilities: facilities,
		log:        log.With().Str("service", "balance_orchestrator").Logger(),
	}
}

// SetPersistence attaches the stores written by REGULATOR and AUDIT runs.
func (o *Orchestrator) SetPersistence(params ParameterSink, results ResultStore) {
	o.params = params
	o.results = results
}

// SetResultCache attaches the signature-keyed result cache.
func (o *Orchestrator) SetResultCache(cache ResultCache, signatures SignatureSource) {
	o.cache = cache
	o.signatures = signatures
}

// SetAlertSink attaches the alert evaluator invoked on every fresh result.
func (o *Orchestrator) SetAlertSink(sink AlertSink) {
	o.alerts = sink
}

// SetEventBus attaches the bus that receives BalanceComputed events.
func (o *Orchestrator) SetEventBus(bus *events.Bus) {
	o.eventBus = bus
}

// Compute runs the balance for one period. An empty mode defaults to
// REGULATOR. Results computed under the current workbook signature are
// served from cache without re-running side effects.
func (o *Orchestrator) Compute(period domain.CalculationPeriod, mode domain.BalanceMode) (*domain.BalanceResult, error) {
	if !period.Valid() {
		return nil, domain.Invariantf("balance period %s out of range", period)
	}
	if mode == "" {
		mode = domain.ModeRegulator
	}
	if !domain.ValidBalanceMode(mode) {
		return nil, domain.Invariantf("unknown balance mode %q", mode)
	}

	signature := o.currentSignature()
	if o.cache != nil && signature != "" {
		cached, err := o.cache.Get(period, mode, signature)
		if err != nil {
			o.log.Warn().Err(err).Str("period", period.String()).Msg("Balance cache read failed, computing")
		} else if cached != nil {
			o.log.Debug().Str("period", period.String()).Str("mode", string(mode)).Msg("Balance served from cache")
			return cached, nil
		}
	}

	start := time.Now()
	active, err := o.facilities.ListActive()
	if err != nil {
		return nil, fmt.Errorf("failed to list active facilities: %w", err)
	}

	inputs, err := o.collectRecords(active, period)
	if err != nil {
		return nil, err
	}

	result, err := o.engine.Compute(period, mode, inputs)
	if err != nil {
		return nil, err
	}

	if o.alerts != nil {
		o.alerts.EvaluateBalance(result)
	}
	if mode != domain.ModeInternal {
		o.persist(result, inputs)
	}
	if o.cache != nil && signature != "" {
		if err := o.cache.Put(period, mode, signature, result); err != nil {
			o.log.Warn().Err(err).Str("period", period.String()).Msg("Failed to cache balance result")
		}
	}

	o.log.Info().
		Str("period", period.String()).
		Str("mode", string(mode)).
		Str("status", string(result.Status)).
		Float64("error_pct", result.ErrorPct).
		Int("facilities", len(result.Storage.Facilities)).
		Dur("elapsed", time.Since(start)).
		Msg("Balance computed")

	if o.eventBus != nil {
		o.eventBus.EmitData("balance", &events.BalanceComputedData{
			Year:            period.Year,
			Month:           period.Month,
			Mode:            string(mode),
			Status:          string(result.Status),
			TotalInflowsM3:  result.Inflows.Total(),
			TotalOutflowsM3: result.Outflows.Total(),
			BalanceErrorM3:  result.BalanceErrorM3,
			ErrorPct:        result.ErrorPct,
		})
	}
	return result, nil
}

func (o *Orchestrator) currentSignature() string {
	if o.signatures == nil {
		return ""
	}
	return o.signatures.CurrentSignature()
}

// collectRecords fans the calculator out across facilities, bounded by
// maxParallelFacilities. A facility with no data for the month yields an
// input with a nil record; any other calculator failure aborts the run.
func (o *Orchestrator) collectRecords(active []*domain.StorageFacility, period domain.CalculationPeriod) ([]FacilityInput, error) {
	inputs := make([]FacilityInput, len(active))
	errs := make([]error, len(active))

	sem := make(chan struct{}, maxParallelFacilities)
	var wg sync.WaitGroup
	for i, f := range active {
		wg.Add(1)
		go func(i int, f *domain.StorageFacility) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			rec, err := o.calculator.GetStorageRecord(f, period)
			if err != nil {
				if domain.IsNotFound(err) {
					inputs[i] = FacilityInput{Facility: f}
					return
				}
				errs[i] = err
				return
			}
			inputs[i] = FacilityInput{Facility: f, Record: rec}
		}(i, f)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return inputs, nil
}

// persist writes the computed months into storage history, snapshots the
// manual totals, and stores the result row. Persistence failures degrade
// to error logs: the caller still gets the computed result.
func (o *Orchestrator) persist(result *domain.BalanceResult, inputs []FacilityInput) {
	for _, in := range inputs {
		if in.Record == nil {
			continue
		}
		rec := in.Record

		h := &domain.StorageHistory{
			FacilityCode:    rec.FacilityCode,
			Year:            rec.Year,
			Month:           rec.Month,
			OpeningVolumeM3: rec.OpeningVolumeM3,
			ClosingVolumeM3: rec.ClosingVolumeM3,
			DeltaM3:         rec.Delta(),
			DataSource:      domain.SourceCalculated,
		}
		if err := o.facilities.RecordHistory(h); err != nil {
			o.log.Error().Err(err).Str("facility", rec.FacilityCode).Msg("Failed to record storage history")
		}

		if o.params != nil && in.Facility.ID != 0 {
			_, err := o.params.Upsert(&domain.MonthlyParameters{
				FacilityID:      in.Facility.ID,
				Year:            rec.Year,
				Month:           rec.Month,
				TotalInflowsM3:  rec.InflowManualM3,
				TotalOutflowsM3: rec.OutflowManualM3,
			})
			if err != nil {
				o.log.Error().Err(err).Str("facility", rec.FacilityCode).Msg("Failed to snapshot monthly parameters")
			}
		}
	}

	if o.results != nil {
		if _, err := o.results.Save(result); err != nil {
			o.log.Error().Err(err).Str("period", result.Period.String()).Msg("Failed to persist balance result")
		}
	}
}
