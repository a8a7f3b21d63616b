package workbook

import (
	"github.com/rs/zerolog"

	"github.com/tailwater/aquabalance/internal/events"
)

// CachePurger removes persisted calculation entries for a workbook path.
// Implemented by the persistent storage-record cache.
type CachePurger interface {
	PurgeForWorkbook(path string) (int, error)
}

// MemoInvalidator drops in-memory calculation state derived from workbook
// frames. Implemented by the storage calculator.
type MemoInvalidator interface {
	InvalidateMemo()
}

// Service coordinates workbook reloads: re-read frames, purge stale caches,
// then announce the reload on the event bus.
type Service struct {
	repo     *Repository
	purgers  []CachePurger
	memos    []MemoInvalidator
	eventBus *events.Bus
	log      zerolog.Logger
}

// NewService creates the workbook service.
func NewService(repo *Repository, eventBus *events.Bus, log zerolog.Logger) *Service {
	return &Service{
		repo:     repo,
		eventBus: eventBus,
		log:      log.With().Str("component", "workbook_service").Logger(),
	}
}

// AddPurger registers a persistent cache to purge on reload.
func (s *Service) AddPurger(p CachePurger) {
	s.purgers = append(s.purgers, p)
}

// AddMemoInvalidator registers an in-memory cache to drop on reload.
func (s *Service) AddMemoInvalidator(m MemoInvalidator) {
	s.memos = append(s.memos, m)
}

// Repository returns the underlying frame store.
func (s *Service) Repository() *Repository {
	return s.repo
}

// Reload re-reads the workbook and invalidates everything derived from the
// previous content. Purge failures are logged, never fatal: a stale cache
// entry is also guarded by the signature check at read time.
func (s *Service) Reload() (ReloadStats, error) {
	stats, err := s.repo.Reload()

	for _, m := range s.memos {
		m.InvalidateMemo()
	}
	for _, p := range s.purgers {
		if purged, perr := p.PurgeForWorkbook(s.repo.Path()); perr != nil {
			s.log.Error().Err(perr).Str("path", s.repo.Path()).Msg("Cache purge failed during reload")
		} else if purged > 0 {
			s.log.Info().Int("entries", purged).Msg("Purged stale cache entries")
		}
	}

	if err != nil {
		return stats, err
	}

	if s.eventBus != nil {
		s.eventBus.EmitData("workbook", &events.WorkbookReloadedData{
			Path:      s.repo.Path(),
			Signature: stats.Signature,
			Sheets:    stats.Sheets,
			Duration:  stats.Duration.Seconds(),
			Warnings:  stats.Warnings,
		})
	}
	return stats, nil
}
