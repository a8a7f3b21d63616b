package alerts

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/tailwater/aquabalance/internal/domain"
)

// AlertRepository handles emitted alert database operations.
// Database: alerts.db (alerts table)
type AlertRepository struct {
	db  *sql.DB // alerts.db
	log zerolog.Logger
}

// NewAlertRepository creates a new alert repository
func NewAlertRepository(db *sql.DB, log zerolog.Logger) *AlertRepository {
	return &AlertRepository{
		db:  db,
		log: log.With().Str("repository", "alerts").Logger(),
	}
}

const alertColumns = `id, rule_id, calculation_date, facility_id, source_id,
	severity, title, message, metric_value, threshold, status,
	created_at, last_checked_at, resolved_at, resolved_by`

func scanAlert(row interface{ Scan(...interface{}) error }) (*Alert, error) {
	var a Alert
	var sourceID, resolvedBy sql.NullString
	var resolvedAt sql.NullInt64
	var createdAt, lastCheckedAt int64
	err := row.Scan(&a.ID, &a.RuleID, &a.CalculationDate, &a.FacilityID, &sourceID,
		&a.Severity, &a.Title, &a.Message, &a.MetricValue, &a.Threshold, &a.Status,
		&createdAt, &lastCheckedAt, &resolvedAt, &resolvedBy)
	if err != nil {
		return nil, err
	}
	a.SourceID = sourceID.String
	a.ResolvedBy = resolvedBy.String
	a.CreatedAt = time.Unix(createdAt, 0)
	a.LastCheckedAt = time.Unix(lastCheckedAt, 0)
	if resolvedAt.Valid {
		t := time.Unix(resolvedAt.Int64, 0)
		a.ResolvedAt = &t
	}
	return &a, nil
}

// FindActive returns the active alert matching the dedup identity, nil when
// there is none. NULL facility ids and empty source ids fold to sentinels so
// system-wide alerts dedup too.
func (r *AlertRepository) FindActive(ruleID, calculationDate string, facilityID *int64, sourceID string) (*Alert, error) {
	row := r.db.QueryRow(`
		SELECT `+alertColumns+` FROM alerts
		WHERE status = 'active' AND rule_id = ? AND calculation_date = ?
		  AND COALESCE(facility_id, -1) = COALESCE(?, -1)
		  AND COALESCE(source_id, '') = ?
	`, ruleID, calculationDate, facilityID, sourceID)
	a, err := scanAlert(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find active alert for rule %s: %w", ruleID, err)
	}
	return a, nil
}

// Insert stores a new alert and returns it with id and timestamps set.
func (r *AlertRepository) Insert(a *Alert) (*Alert, error) {
	if a.Status == "" {
		a.Status = StatusActive
	}
	now := time.Now().Unix()
	res, err := r.db.Exec(`
		INSERT INTO alerts
			(rule_id, calculation_date, facility_id, source_id, severity, title,
			 message, metric_value, threshold, status, created_at, last_checked_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, a.RuleID, a.CalculationDate, a.FacilityID, nullIfEmpty(a.SourceID),
		string(a.Severity), a.Title, a.Message, a.MetricValue, a.Threshold,
		string(a.Status), now, now)
	if err != nil {
		return nil, fmt.Errorf("failed to insert alert for rule %s: %w", a.RuleID, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get alert id: %w", err)
	}
	return r.GetByID(id)
}

// Touch refreshes a deduplicated alert: current metric value and check time,
// nothing else.
func (r *AlertRepository) Touch(id int64, metricValue float64) error {
	_, err := r.db.Exec(
		"UPDATE alerts SET metric_value = ?, last_checked_at = ? WHERE id = ?",
		metricValue, time.Now().Unix(), id)
	if err != nil {
		return fmt.Errorf("failed to touch alert %d: %w", id, err)
	}
	return nil
}

// Resolve transitions an active alert to resolved. resolvedBy is 'auto' for
// rule auto-resolution and 'user' for the API surface.
func (r *AlertRepository) Resolve(id int64, resolvedBy string) error {
	res, err := r.db.Exec(`
		UPDATE alerts SET status = 'resolved', resolved_at = ?, resolved_by = ?
		WHERE id = ? AND status = 'active'
	`, time.Now().Unix(), resolvedBy, id)
	if err != nil {
		return fmt.Errorf("failed to resolve alert %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check alert resolution: %w", err)
	}
	if n == 0 {
		return domain.NotFoundf("active alert %d not found", id)
	}
	return nil
}

// GetByID returns one alert, nil when absent.
func (r *AlertRepository) GetByID(id int64) (*Alert, error) {
	row := r.db.QueryRow("SELECT "+alertColumns+" FROM alerts WHERE id = ?", id)
	a, err := scanAlert(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get alert %d: %w", id, err)
	}
	return a, nil
}

// ListActive returns the active alerts, critical first, then by rule id and
// creation time. The order is what the UI shows and is deterministic.
func (r *AlertRepository) ListActive() ([]*Alert, error) {
	return r.list(`
		SELECT ` + alertColumns + ` FROM alerts
		WHERE status = 'active'
		ORDER BY CASE severity WHEN 'critical' THEN 0 WHEN 'warning' THEN 1 ELSE 2 END,
		         rule_id, created_at, id
	`)
}

// ListRecent returns the newest alerts in any status, up to limit.
func (r *AlertRepository) ListRecent(limit int) ([]*Alert, error) {
	if limit <= 0 {
		limit = 50
	}
	return r.list(`
		SELECT `+alertColumns+` FROM alerts
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`, limit)
}

func (r *AlertRepository) list(query string, args ...interface{}) ([]*Alert, error) {
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query alerts: %w", err)
	}
	defer rows.Close()

	var result []*Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		result = append(result, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating alerts: %w", err)
	}
	return result, nil
}

// CountActive reports the number of active alerts, used by the health surface.
func (r *AlertRepository) CountActive() (int, error) {
	var count int
	err := r.db.QueryRow("SELECT COUNT(*) FROM alerts WHERE status = 'active'").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count active alerts: %w", err)
	}
	return count, nil
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
