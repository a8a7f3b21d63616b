package constants

import (
	"github.com/rs/zerolog"

	"github.com/tailwater/aquabalance/internal/domain"
	"github.com/tailwater/aquabalance/internal/events"
)

// Service provides bounded, audited access to the system constants.
// All engine-facing reads go through Value / ValueOr so a missing or
// corrupt row can never abort a balance run.
type Service struct {
	repo     *Repository
	eventBus *events.Bus
	log      zerolog.Logger
}

// NewService creates a new constants service
func NewService(repo *Repository, eventBus *events.Bus, log zerolog.Logger) *Service {
	return &Service{
		repo:     repo,
		eventBus: eventBus,
		log:      log.With().Str("service", "constants").Logger(),
	}
}

// EnsureSeeded inserts any missing defaults. Safe to call at every startup.
func (s *Service) EnsureSeeded() error {
	inserted, err := s.repo.SeedMissing(SeedDefaults)
	if err != nil {
		return err
	}
	if inserted > 0 {
		s.log.Info().Int("inserted", inserted).Msg("Seeded missing system constants")
	}
	return nil
}

// GetAll returns every constant ordered by category then key.
func (s *Service) GetAll() ([]*domain.SystemConstant, error) {
	return s.repo.GetAll()
}

// GetByCategory returns the constants of one category.
func (s *Service) GetByCategory(category string) ([]*domain.SystemConstant, error) {
	return s.repo.GetByCategory(category)
}

// Get returns a constant by key.
func (s *Service) Get(key string) (*domain.SystemConstant, error) {
	c, err := s.repo.Get(key)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, domain.NotFoundf("constant %s not found", key)
	}
	return c, nil
}

// Value returns the numeric value of a constant.
func (s *Service) Value(key string) (float64, error) {
	c, err := s.Get(key)
	if err != nil {
		return 0, err
	}
	return c.Value, nil
}

// ValueOr returns the numeric value of a constant, or the fallback when the
// row is absent or the read fails. Read failures are logged, not propagated.
func (s *Service) ValueOr(key string, fallback float64) float64 {
	c, err := s.repo.Get(key)
	if err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("Constant read failed, using fallback")
		return fallback
	}
	if c == nil {
		return fallback
	}
	return c.Value
}

// Set updates a constant value. The write is rejected for unknown keys,
// non-editable constants and values outside the configured bounds. Every
// accepted write lands in the audit trail and emits a ConstantChanged event.
func (s *Service) Set(key string, value float64, updatedBy string) (*domain.SystemConstant, error) {
	existing, err := s.repo.Get(key)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, domain.NotFoundf("constant %s not found", key)
	}
	if !existing.Editable {
		return nil, domain.Invariantf("constant %s is not editable", key)
	}
	if err := existing.CheckBounds(value); err != nil {
		return nil, err
	}

	oldValue := existing.Value
	if err := s.repo.UpdateValue(key, oldValue, value, updatedBy); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("key", key).
		Float64("old_value", oldValue).
		Float64("new_value", value).
		Str("updated_by", updatedBy).
		Msg("Constant updated")

	if s.eventBus != nil {
		s.eventBus.EmitData("constants", &events.ConstantChangedData{
			Key:      key,
			OldValue: &oldValue,
			NewValue: value,
		})
	}

	updated := *existing
	updated.Value = value
	return &updated, nil
}

// AuditTrail returns the recent audit entries for one constant, newest first.
func (s *Service) AuditTrail(key string, limit int) ([]AuditEntry, error) {
	return s.repo.GetAuditTrail(key, limit)
}
