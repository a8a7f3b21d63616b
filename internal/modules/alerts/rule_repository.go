package alerts

import (
	"database/sql"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tailwater/aquabalance/internal/domain"
)

// rulesCacheTTL bounds how stale the in-memory active-rule set may get
// before the next evaluation refreshes it from the database.
const rulesCacheTTL = 5 * time.Minute

// RuleRepository handles alert rule database operations and keeps the
// active rule set memoized for the evaluator's hot path.
// Database: alerts.db (alert_rules table)
type RuleRepository struct {
	db  *sql.DB // alerts.db
	log zerolog.Logger

	mu       sync.RWMutex
	cached   []*AlertRule
	cachedAt time.Time
}

// NewRuleRepository creates a new alert rule repository
func NewRuleRepository(db *sql.DB, log zerolog.Logger) *RuleRepository {
	return &RuleRepository{
		db:  db,
		log: log.With().Str("repository", "alert_rules").Logger(),
	}
}

const ruleColumns = `id, rule_id, category, metric_name, operator, threshold,
	severity, title, message_template, show_popup, auto_resolve, active,
	created_at, updated_at`

func scanRule(row interface{ Scan(...interface{}) error }) (*AlertRule, error) {
	var r AlertRule
	var showPopup, autoResolve, active int
	var createdAt, updatedAt int64
	err := row.Scan(&r.ID, &r.RuleID, &r.Category, &r.MetricName, &r.Operator,
		&r.Threshold, &r.Severity, &r.Title, &r.MessageTemplate,
		&showPopup, &autoResolve, &active, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	r.ShowPopup = showPopup != 0
	r.AutoResolve = autoResolve != 0
	r.Active = active != 0
	r.CreatedAt = time.Unix(createdAt, 0)
	r.UpdatedAt = time.Unix(updatedAt, 0)
	return &r, nil
}

// GetAll returns every rule, active or not, ordered for stable listings.
func (r *RuleRepository) GetAll() ([]*AlertRule, error) {
	rows, err := r.db.Query(
		"SELECT " + ruleColumns + " FROM alert_rules ORDER BY category, rule_id")
	if err != nil {
		return nil, fmt.Errorf("failed to get alert rules: %w", err)
	}
	defer rows.Close()

	var result []*AlertRule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan alert rule: %w", err)
		}
		result = append(result, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating alert rules: %w", err)
	}
	return result, nil
}

// GetByRuleID returns one rule by its business key, nil when absent.
func (r *RuleRepository) GetByRuleID(ruleID string) (*AlertRule, error) {
	row := r.db.QueryRow(
		"SELECT "+ruleColumns+" FROM alert_rules WHERE rule_id = ?", ruleID)
	rule, err := scanRule(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get alert rule %s: %w", ruleID, err)
	}
	return rule, nil
}

// ActiveRules returns the active rules sorted by severity rank then rule id,
// served from the memo while it is younger than rulesCacheTTL. A refresh
// failure serves the stale set rather than dropping an evaluation cycle.
func (r *RuleRepository) ActiveRules() ([]*AlertRule, error) {
	r.mu.RLock()
	fresh := !r.cachedAt.IsZero() && time.Since(r.cachedAt) < rulesCacheTTL
	cached := r.cached
	r.mu.RUnlock()
	if fresh {
		return cached, nil
	}

	rules, err := r.loadActive()
	if err != nil {
		if cached != nil {
			r.log.Warn().Err(err).Msg("Alert rule refresh failed, serving cached rules")
			return cached, nil
		}
		return nil, err
	}

	r.mu.Lock()
	r.cached = rules
	r.cachedAt = time.Now()
	r.mu.Unlock()
	return rules, nil
}

func (r *RuleRepository) loadActive() ([]*AlertRule, error) {
	rows, err := r.db.Query(
		"SELECT " + ruleColumns + " FROM alert_rules WHERE active = 1")
	if err != nil {
		return nil, fmt.Errorf("failed to get active alert rules: %w", err)
	}
	defer rows.Close()

	var result []*AlertRule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan alert rule: %w", err)
		}
		result = append(result, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating alert rules: %w", err)
	}

	sort.Slice(result, func(i, j int) bool {
		ri, rj := severityRank(result[i].Severity), severityRank(result[j].Severity)
		if ri != rj {
			return ri < rj
		}
		return result[i].RuleID < result[j].RuleID
	})
	return result, nil
}

// Invalidate drops the active-rule memo. Called after every write.
func (r *RuleRepository) Invalidate() {
	r.mu.Lock()
	r.cached = nil
	r.cachedAt = time.Time{}
	r.mu.Unlock()
}

// Create inserts a new rule. A missing rule_id gets a generated one.
func (r *RuleRepository) Create(rule *AlertRule) (*AlertRule, error) {
	if rule.RuleID == "" {
		rule.RuleID = uuid.NewString()
	}
	if err := rule.Validate(); err != nil {
		return nil, err
	}
	existing, err := r.GetByRuleID(rule.RuleID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, domain.DuplicateCodef("alert rule %s already exists", rule.RuleID)
	}

	now := time.Now().Unix()
	res, err := r.db.Exec(`
		INSERT INTO alert_rules
			(rule_id, category, metric_name, operator, threshold, severity,
			 title, message_template, show_popup, auto_resolve, active,
			 created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, rule.RuleID, rule.Category, rule.MetricName, string(rule.Operator), rule.Threshold,
		string(rule.Severity), rule.Title, rule.MessageTemplate,
		boolToInt(rule.ShowPopup), boolToInt(rule.AutoResolve), boolToInt(rule.Active),
		now, now)
	if err != nil {
		return nil, fmt.Errorf("failed to create alert rule %s: %w", rule.RuleID, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get alert rule id: %w", err)
	}

	r.Invalidate()
	r.log.Info().Str("rule_id", rule.RuleID).Str("metric", rule.MetricName).Msg("Alert rule created")
	return r.getByID(id)
}

// Update rewrites a rule identified by its rule_id.
func (r *RuleRepository) Update(rule *AlertRule) (*AlertRule, error) {
	if err := rule.Validate(); err != nil {
		return nil, err
	}
	res, err := r.db.Exec(`
		UPDATE alert_rules SET
			category = ?, metric_name = ?, operator = ?, threshold = ?,
			severity = ?, title = ?, message_template = ?, show_popup = ?,
			auto_resolve = ?, active = ?, updated_at = ?
		WHERE rule_id = ?
	`, rule.Category, rule.MetricName, string(rule.Operator), rule.Threshold,
		string(rule.Severity), rule.Title, rule.MessageTemplate,
		boolToInt(rule.ShowPopup), boolToInt(rule.AutoResolve), boolToInt(rule.Active),
		time.Now().Unix(), rule.RuleID)
	if err != nil {
		return nil, fmt.Errorf("failed to update alert rule %s: %w", rule.RuleID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to check alert rule update: %w", err)
	}
	if n == 0 {
		return nil, domain.NotFoundf("alert rule %s not found", rule.RuleID)
	}

	r.Invalidate()
	return r.GetByRuleID(rule.RuleID)
}

// EnsureSeeded installs the default rule set when the table is empty.
// Idempotent: a populated table is left untouched.
func (r *RuleRepository) EnsureSeeded() error {
	var count int
	if err := r.db.QueryRow("SELECT COUNT(*) FROM alert_rules").Scan(&count); err != nil {
		return fmt.Errorf("failed to count alert rules: %w", err)
	}
	if count > 0 {
		return nil
	}
	for _, rule := range seedRules() {
		if _, err := r.Create(rule); err != nil {
			return fmt.Errorf("failed to seed alert rule %s: %w", rule.RuleID, err)
		}
	}
	r.log.Info().Int("rules", len(seedRules())).Msg("Seeded default alert rules")
	return nil
}

func (r *RuleRepository) getByID(id int64) (*AlertRule, error) {
	row := r.db.QueryRow(
		"SELECT "+ruleColumns+" FROM alert_rules WHERE id = ?", id)
	rule, err := scanRule(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get alert rule %d: %w", id, err)
	}
	return rule, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
