package settings

// SettingDefaults holds all default values for configurable runtime settings.
// Values tuned per deployment live here; numeric constants with bounds and an
// audit trail belong to the constants module instead.
var SettingDefaults = map[string]interface{}{
	// Balance computation
	"default_balance_mode":      "REGULATOR", // Mode used by the scheduled monthly compute
	"scheduled_compute_enabled": 1.0,         // 1.0 = run the monthly balance job

	// Alert delivery
	"popup_notifications_enabled": 1.0,       // 1.0 = forward show_popup alerts to UI streams
	"popup_min_severity":          "warning", // Lowest severity that still pops up
	"alert_sweep_enabled":         1.0,       // 1.0 = hourly stale-alert sweep runs

	// Workbook
	"workbook_path":               "",  // Overrides AQUA_WORKBOOK when set
	"workbook_autoreload_enabled": 1.0, // 1.0 = reload when the file changes on disk

	// Local backups
	"backup_enabled":         1.0,  // 1.0 = nightly VACUUM INTO snapshots
	"backup_retention_count": 30.0, // Snapshots kept per database (0 = keep forever)

	// Offsite backups (any S3-compatible endpoint)
	"offsite_backup_enabled":  0.0,  // 1.0 = upload nightly archives
	"offsite_retention_count": 12.0, // Remote archives kept (0 = keep forever)
	"s3_endpoint":             "",   // Custom endpoint URL, empty for AWS
	"s3_region":               "",   // Region, empty for endpoint default
	"s3_bucket_name":          "",   // Target bucket
	"s3_access_key_id":        "",   // Static credential
	"s3_secret_access_key":    "",   // Static credential

	// Logging
	"log_retention_days": 90.0, // Rotated log files older than this are removed
}

// StringSettings defines which settings are strings rather than floats.
var StringSettings = map[string]bool{
	"default_balance_mode": true,
	"popup_min_severity":   true,
	"workbook_path":        true,
	"s3_endpoint":          true,
	"s3_region":            true,
	"s3_bucket_name":       true,
	"s3_access_key_id":     true,
	"s3_secret_access_key": true,
}

// SettingDescriptions holds human-readable descriptions for settings that
// need explaining in the API surface.
var SettingDescriptions = map[string]string{
	"default_balance_mode":    "Balance mode for scheduled computes: REGULATOR, INTERNAL or AUDIT",
	"popup_min_severity":      "Lowest alert severity forwarded as a popup: info, warning or critical",
	"backup_retention_count":  "Local database snapshots kept per database, 0 keeps all",
	"offsite_retention_count": "Offsite backup archives kept in the bucket, 0 keeps all",
	"log_retention_days":      "Days of rotated log files kept on disk",
}

// SettingUpdate represents a setting value update request.
type SettingUpdate struct {
	Value interface{} `json:"value"`
}
