package facilities

import (
	"github.com/rs/zerolog"

	"github.com/tailwater/aquabalance/internal/domain"
	"github.com/tailwater/aquabalance/internal/events"
)

// WriteGuard snapshots a database before a destructive write. The facility
// service calls it ahead of updates and deletes; creation is additive and
// not guarded.
type WriteGuard interface {
	BackupBeforeWrite(database string) error
}

// Service owns the storage facility lifecycle. All mutations go through
// here so the invariants hold and downstream computed results are dropped.
type Service struct {
	repo      *Repository
	history   *HistoryRepository
	transfers *TransferRepository
	eventBus  *events.Bus
	guard     WriteGuard
	log       zerolog.Logger

	invalidators []func()
}

// NewService creates a new facility service
func NewService(repo *Repository, history *HistoryRepository, transfers *TransferRepository,
	eventBus *events.Bus, log zerolog.Logger) *Service {
	return &Service{
		repo:      repo,
		history:   history,
		transfers: transfers,
		eventBus:  eventBus,
		log:       log.With().Str("service", "facilities").Logger(),
	}
}

// SetWriteGuard installs the backup hook used before updates and deletes.
func (s *Service) SetWriteGuard(g WriteGuard) {
	s.guard = g
}

// AddInvalidationHook registers a function that drops computed results
// derived from facility attributes. Every mutation runs all hooks.
func (s *Service) AddInvalidationHook(fn func()) {
	s.invalidators = append(s.invalidators, fn)
}

func (s *Service) invalidateComputed() {
	for _, fn := range s.invalidators {
		fn()
	}
}

func (s *Service) backupBeforeWrite() {
	if s.guard == nil {
		return
	}
	if err := s.guard.BackupBeforeWrite("water"); err != nil {
		s.log.Warn().Err(err).Msg("Pre-write backup failed, proceeding with write")
	}
}

func (s *Service) emitChanged(code, action string) {
	if s.eventBus == nil {
		return
	}
	s.eventBus.EmitData("facilities", &events.FacilityChangedData{Code: code, Action: action})
}

// GetAll returns every facility ordered by code.
func (s *Service) GetAll() ([]*domain.StorageFacility, error) {
	return s.repo.GetAll()
}

// GetByID returns one facility by id.
func (s *Service) GetByID(id int64) (*domain.StorageFacility, error) {
	f, err := s.repo.GetByID(id)
	if err != nil {
		return nil, err
	}
	if f == nil {
		return nil, domain.NotFoundf("facility %d not found", id)
	}
	return f, nil
}

// GetByCode returns one facility by its unique code.
func (s *Service) GetByCode(code string) (*domain.StorageFacility, error) {
	f, err := s.repo.GetByCode(code)
	if err != nil {
		return nil, err
	}
	if f == nil {
		return nil, domain.NotFoundf("facility %s not found", domain.NormalizeCode(code))
	}
	return f, nil
}

// ListByStatus returns the facilities in one lifecycle state.
func (s *Service) ListByStatus(status domain.FacilityStatus) ([]*domain.StorageFacility, error) {
	if !domain.ValidFacilityStatus(status) {
		return nil, domain.Invariantf("unknown facility status %q", status)
	}
	return s.repo.ListByStatus(status)
}

// ListActive returns the facilities the balance engine computes over.
func (s *Service) ListActive() ([]*domain.StorageFacility, error) {
	return s.repo.ListByStatus(domain.StatusActive)
}

// Create validates and inserts a new facility. The code must be unused.
// Tanks get is_lined coerced to null before validation.
func (s *Service) Create(f *domain.StorageFacility) (*domain.StorageFacility, error) {
	f.ApplyTankLiningRule()
	if f.Status == "" {
		f.Status = domain.StatusActive
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}

	exists, err := s.repo.CodeExists(f.Code)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, domain.DuplicateCodef("facility code %s already exists", domain.NormalizeCode(f.Code))
	}

	created, err := s.repo.Create(f)
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("code", created.Code).
		Str("type", string(created.FacilityType)).
		Float64("capacity_m3", created.CapacityM3).
		Msg("Facility created")

	s.invalidateComputed()
	s.emitChanged(created.Code, "created")
	return created, nil
}

// Update applies mutable changes to an existing facility. The code is
// immutable; a changed code is rejected rather than silently renamed.
func (s *Service) Update(f *domain.StorageFacility) (*domain.StorageFacility, error) {
	existing, err := s.GetByID(f.ID)
	if err != nil {
		return nil, err
	}
	if f.Code != "" && domain.NormalizeCode(f.Code) != existing.Code {
		return nil, domain.Invariantf("facility code is immutable (%s cannot become %s)",
			existing.Code, domain.NormalizeCode(f.Code))
	}
	f.Code = existing.Code

	f.ApplyTankLiningRule()
	if err := f.Validate(); err != nil {
		return nil, err
	}

	s.backupBeforeWrite()
	if err := s.repo.Update(f); err != nil {
		return nil, err
	}

	s.log.Info().Str("code", f.Code).Msg("Facility updated")
	s.invalidateComputed()
	s.emitChanged(f.Code, "updated")
	return s.repo.GetByID(f.ID)
}

// Delete removes a facility. Active facilities are protected; deactivate
// or decommission first. History, parameters and transfers cascade away
// with the row.
func (s *Service) Delete(id int64) error {
	existing, err := s.GetByID(id)
	if err != nil {
		return err
	}
	if existing.Status == domain.StatusActive {
		return domain.Invariantf("facility %s is active and cannot be deleted", existing.Code)
	}

	s.backupBeforeWrite()
	if err := s.repo.Delete(id); err != nil {
		return err
	}

	s.log.Info().Str("code", existing.Code).Msg("Facility deleted")
	s.invalidateComputed()
	s.emitChanged(existing.Code, "deleted")
	return nil
}

// History returns the recent storage history for one facility, newest first.
func (s *Service) History(code string, limit int) ([]*domain.StorageHistory, error) {
	if _, err := s.GetByCode(code); err != nil {
		return nil, err
	}
	return s.history.GetForFacility(code, limit)
}

// RecordHistory persists one computed facility month. Called by the
// orchestrator after a persisting balance run.
func (s *Service) RecordHistory(h *domain.StorageHistory) error {
	return s.history.Upsert(h)
}

// CreateTransfer records water moved between two facilities. Both
// endpoints must exist.
func (s *Service) CreateTransfer(t *domain.FacilityTransfer) (*domain.FacilityTransfer, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	if _, err := s.GetByCode(t.SourceFacilityCode); err != nil {
		return nil, err
	}
	if _, err := s.GetByCode(t.DestFacilityCode); err != nil {
		return nil, err
	}
	return s.transfers.Create(t)
}

// TransfersForPeriod returns every transfer recorded in one month.
func (s *Service) TransfersForPeriod(period domain.CalculationPeriod) ([]*domain.FacilityTransfer, error) {
	return s.transfers.GetByPeriod(period)
}

// TransfersForFacility returns transfers touching one facility.
func (s *Service) TransfersForFacility(code string, limit int) ([]*domain.FacilityTransfer, error) {
	if _, err := s.GetByCode(code); err != nil {
		return nil, err
	}
	return s.transfers.GetForFacility(code, limit)
}
