package settings

import (
	"fmt"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/tailwater/aquabalance/internal/domain"
	"github.com/tailwater/aquabalance/internal/events"
)

// Service provides settings business logic: typed reads with defaults,
// validated writes, change notification.
type Service struct {
	repo *Repository
	log  zerolog.Logger

	eventBus *events.Bus
}

// NewService creates a new settings service
func NewService(repo *Repository, log zerolog.Logger) *Service {
	return &Service{
		repo: repo,
		log:  log.With().Str("service", "settings").Logger(),
	}
}

// SetEventBus attaches the bus receiving SettingsChanged events.
func (s *Service) SetEventBus(bus *events.Bus) {
	s.eventBus = bus
}

// GetAll retrieves every known setting with stored values overlaid on the
// defaults. Unknown keys left behind by older versions are not surfaced.
func (s *Service) GetAll() (map[string]interface{}, error) {
	dbValues, err := s.repo.GetAll()
	if err != nil {
		return nil, err
	}

	result := make(map[string]interface{})
	for key, defaultValue := range SettingDefaults {
		if dbValue, exists := dbValues[key]; exists {
			if StringSettings[key] {
				result[key] = dbValue
			} else if floatVal, err := strconv.ParseFloat(dbValue, 64); err == nil {
				result[key] = floatVal
			} else {
				result[key] = defaultValue
			}
		} else {
			result[key] = defaultValue
		}
	}

	return result, nil
}

// Get retrieves one setting with fallback to its default. Unknown keys are
// KindNotFound.
func (s *Service) Get(key string) (interface{}, error) {
	dbValue, err := s.repo.Get(key)
	if err != nil {
		return nil, err
	}

	if dbValue != nil {
		if StringSettings[key] {
			return *dbValue, nil
		}
		if floatVal, err := strconv.ParseFloat(*dbValue, 64); err == nil {
			return floatVal, nil
		}
	}

	defaultValue, exists := SettingDefaults[key]
	if !exists {
		return nil, domain.NotFoundf("unknown setting: %s", key)
	}
	return defaultValue, nil
}

// Set validates and stores a setting value, then emits SettingsChanged.
func (s *Service) Set(key string, value interface{}) error {
	if _, exists := SettingDefaults[key]; !exists {
		return domain.NotFoundf("unknown setting: %s", key)
	}

	if err := validateSetting(key, value); err != nil {
		return err
	}
	if key == "default_balance_mode" {
		value = domain.NormalizeCode(value.(string))
	}

	var strValue string
	switch v := value.(type) {
	case string:
		strValue = v
	case float64:
		strValue = fmt.Sprintf("%f", v)
	case int:
		strValue = fmt.Sprintf("%d", v)
	case bool:
		// Flags are floats throughout, so booleans store as 1/0.
		strValue = "0"
		if v {
			strValue = "1"
		}
	default:
		return domain.InputFormatf("unsupported value type for setting %s", key)
	}

	var desc *string
	if d, ok := SettingDescriptions[key]; ok {
		desc = &d
	}
	if err := s.repo.Set(key, strValue, desc); err != nil {
		return err
	}

	s.log.Info().Str("key", key).Interface("value", value).Msg("Setting updated")
	if s.eventBus != nil {
		s.eventBus.EmitData("settings", &events.SettingsChangedData{Key: key, Value: value})
	}
	return nil
}

// validateSetting applies per-key rules before a value is stored.
func validateSetting(key string, value interface{}) error {
	switch key {
	case "default_balance_mode":
		mode, ok := value.(string)
		if !ok {
			return domain.InputFormatf("default_balance_mode must be a string")
		}
		if !domain.ValidBalanceMode(domain.BalanceMode(domain.NormalizeCode(mode))) {
			return domain.InputFormatf("invalid balance mode %q, must be REGULATOR, INTERNAL or AUDIT", mode)
		}
	case "popup_min_severity":
		sev, ok := value.(string)
		if !ok {
			return domain.InputFormatf("popup_min_severity must be a string")
		}
		if sev != "info" && sev != "warning" && sev != "critical" {
			return domain.InputFormatf("invalid severity %q, must be info, warning or critical", sev)
		}
	case "backup_retention_count", "offsite_retention_count", "log_retention_days":
		f, ok := toFloat(value)
		if !ok {
			return domain.InputFormatf("%s must be a number", key)
		}
		if f < 0 {
			return domain.InputFormatf("%s must not be negative", key)
		}
	}
	return nil
}

func toFloat(value interface{}) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	}
	return 0, false
}

// Float reads a numeric setting with its default as fallback. Read errors
// fall back too; job gates must not fail on a settings read.
func (s *Service) Float(key string) float64 {
	def, _ := SettingDefaults[key].(float64)
	v, err := s.repo.GetFloat(key, def)
	if err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("Failed to read setting, using default")
		return def
	}
	return v
}

// Int reads a numeric setting as int.
func (s *Service) Int(key string) int {
	return int(s.Float(key))
}

// Enabled reads a flag setting. Flags store 1/0.
func (s *Service) Enabled(key string) bool {
	return s.Float(key) != 0
}

// String reads a string setting with its default as fallback.
func (s *Service) String(key string) string {
	v, err := s.repo.Get(key)
	if err != nil || v == nil {
		def, _ := SettingDefaults[key].(string)
		return def
	}
	return *v
}

// DefaultBalanceMode returns the mode scheduled computes run in. Stored
// garbage falls back to REGULATOR rather than stopping the job.
func (s *Service) DefaultBalanceMode() (domain.BalanceMode, error) {
	value, err := s.repo.Get("default_balance_mode")
	if err != nil {
		return "", err
	}
	if value != nil {
		mode := domain.BalanceMode(domain.NormalizeCode(*value))
		if domain.ValidBalanceMode(mode) {
			return mode, nil
		}
		s.log.Warn().Str("value", *value).Msg("Stored balance mode invalid, using REGULATOR")
	}
	return domain.ModeRegulator, nil
}
