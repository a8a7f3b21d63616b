package settings

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tailwater/aquabalance/internal/domain"
	"github.com/tailwater/aquabalance/internal/events"
)

func setupService(t *testing.T) (*Service, *Repository, *[]*events.Event) {
	repo := setupRepo(t)
	svc := NewService(repo, zerolog.Nop())

	var changed []*events.Event
	bus := events.NewBus(zerolog.Nop())
	bus.Subscribe(events.SettingsChanged, func(e *events.Event) { changed = append(changed, e) })
	svc.SetEventBus(bus)

	return svc, repo, &changed
}

func TestService_GetFallsBackToDefaults(t *testing.T) {
	svc, _, _ := setupService(t)

	v, err := svc.Get("backup_retention_count")
	require.NoError(t, err)
	assert.Equal(t, 30.0, v)

	v, err = svc.Get("default_balance_mode")
	require.NoError(t, err)
	assert.Equal(t, "REGULATOR", v)

	_, err = svc.Get("no_such_setting")
	assert.Equal(t, domain.KindNotFound, domain.KindOf(err))
}

func TestService_SetRoundTripsTypedValues(t *testing.T) {
	svc, _, _ := setupService(t)

	require.NoError(t, svc.Set("log_retention_days", 45.0))
	v, err := svc.Get("log_retention_days")
	require.NoError(t, err)
	assert.Equal(t, 45.0, v)

	require.NoError(t, svc.Set("s3_bucket_name", "site-backups"))
	v, err = svc.Get("s3_bucket_name")
	require.NoError(t, err)
	assert.Equal(t, "site-backups", v)

	// Booleans store as 1/0 so the float readers keep working.
	require.NoError(t, svc.Set("backup_enabled", false))
	assert.False(t, svc.Enabled("backup_enabled"))
	require.NoError(t, svc.Set("backup_enabled", true))
	assert.True(t, svc.Enabled("backup_enabled"))
}

func TestService_SetRejectsUnknownAndInvalid(t *testing.T) {
	svc, _, changed := setupService(t)

	err := svc.Set("no_such_setting", 1.0)
	assert.Equal(t, domain.KindNotFound, domain.KindOf(err))

	err = svc.Set("default_balance_mode", "FAST")
	assert.Equal(t, domain.KindInputFormat, domain.KindOf(err))

	err = svc.Set("default_balance_mode", 3.0)
	assert.Equal(t, domain.KindInputFormat, domain.KindOf(err))

	err = svc.Set("popup_min_severity", "loud")
	assert.Equal(t, domain.KindInputFormat, domain.KindOf(err))

	err = svc.Set("backup_retention_count", -1.0)
	assert.Equal(t, domain.KindInputFormat, domain.KindOf(err))

	err = svc.Set("log_retention_days", "ninety")
	assert.Equal(t, domain.KindInputFormat, domain.KindOf(err))

	assert.Empty(t, *changed, "rejected writes emit nothing")
}

func TestService_SetEmitsSettingsChanged(t *testing.T) {
	svc, _, changed := setupService(t)

	require.NoError(t, svc.Set("offsite_retention_count", 6.0))

	require.Len(t, *changed, 1)
	ev := (*changed)[0]
	assert.Equal(t, "settings", ev.Module)
	assert.Equal(t, "offsite_retention_count", ev.Data["key"])
	assert.EqualValues(t, 6, ev.Data["value"])
}

func TestService_GetAllMergesDefaultsAndOverrides(t *testing.T) {
	svc, repo, _ := setupService(t)

	require.NoError(t, svc.Set("backup_retention_count", 14.0))
	// A key from an older release is not surfaced.
	require.NoError(t, repo.Set("legacy_led_brightness", "150", nil))

	all, err := svc.GetAll()
	require.NoError(t, err)
	assert.Len(t, all, len(SettingDefaults))
	assert.Equal(t, 14.0, all["backup_retention_count"])
	assert.Equal(t, "REGULATOR", all["default_balance_mode"])
	assert.NotContains(t, all, "legacy_led_brightness")
}

func TestService_DefaultBalanceMode(t *testing.T) {
	svc, repo, _ := setupService(t)

	mode, err := svc.DefaultBalanceMode()
	require.NoError(t, err)
	assert.Equal(t, domain.ModeRegulator, mode)

	// Lowercase input is accepted and stored normalized.
	require.NoError(t, svc.Set("default_balance_mode", "internal"))
	mode, err = svc.DefaultBalanceMode()
	require.NoError(t, err)
	assert.Equal(t, domain.ModeInternal, mode)

	v, err := svc.Get("default_balance_mode")
	require.NoError(t, err)
	assert.Equal(t, "INTERNAL", v)

	// Garbage written around the service falls back to REGULATOR.
	require.NoError(t, repo.Set("default_balance_mode", "FAST", nil))
	mode, err = svc.DefaultBalanceMode()
	require.NoError(t, err)
	assert.Equal(t, domain.ModeRegulator, mode)
}

func TestService_TypedHelpers(t *testing.T) {
	svc, _, _ := setupService(t)

	assert.Equal(t, 30, svc.Int("backup_retention_count"))
	assert.Equal(t, "warning", svc.String("popup_min_severity"))
	assert.True(t, svc.Enabled("popup_notifications_enabled"))
	assert.False(t, svc.Enabled("offsite_backup_enabled"))

	require.NoError(t, svc.Set("popup_min_severity", "critical"))
	assert.Equal(t, "critical", svc.String("popup_min_severity"))
}
