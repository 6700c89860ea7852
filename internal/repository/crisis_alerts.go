package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"wellness-crisis/internal/models"

	"go.uber.org/zap"
)

// CrisisAlertsRepository persistence for crisis alerts.
type CrisisAlertsRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewCrisisAlertsRepository creates the repository.
func NewCrisisAlertsRepository(db *sql.DB, logger *zap.Logger) *CrisisAlertsRepository {
	return &CrisisAlertsRepository{
		db:     db,
		logger: logger,
	}
}

// CrisisAlertFilters filter conditions for alert queries.
type CrisisAlertFilters struct {
	StartTime *time.Time // created_at >= StartTime
	EndTime   *time.Time // created_at <= EndTime

	Severity   *models.RiskLevel
	Severities []models.RiskLevel // IN query

	Status   *models.AlertStatus
	Statuses []models.AlertStatus // IN query

	TriggerSource *models.TriggerSource
}

const crisisAlertColumns = `
	alert_id,
	user_id,
	severity,
	trigger_source,
	indicators,
	confidence,
	lexicon_version,
	status,
	intervention_attempted,
	action_log,
	professional_contacted,
	contacts_notified,
	notified_contacts,
	merge_log,
	resolution_notes,
	created_at,
	acknowledged_at,
	resolved_at,
	updated_at
`

// rowScanner covers *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanCrisisAlert scans one row in crisisAlertColumns order.
func scanCrisisAlert(row rowScanner) (*models.CrisisAlert, error) {
	var alert models.CrisisAlert
	var indicators, actionLog, notifiedContacts, mergeLog []byte
	var resolutionNotes sql.NullString
	var acknowledgedAt, resolvedAt sql.NullTime

	err := row.Scan(
		&alert.AlertID,
		&alert.UserID,
		&alert.Severity,
		&alert.TriggerSource,
		&indicators,
		&alert.Confidence,
		&alert.LexiconVersion,
		&alert.Status,
		&alert.InterventionAttempted,
		&actionLog,
		&alert.ProfessionalContacted,
		&alert.ContactsNotified,
		&notifiedContacts,
		&mergeLog,
		&resolutionNotes,
		&alert.CreatedAt,
		&acknowledgedAt,
		&resolvedAt,
		&alert.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if resolutionNotes.Valid {
		alert.ResolutionNotes = &resolutionNotes.String
	}
	if acknowledgedAt.Valid {
		alert.AcknowledgedAt = &acknowledgedAt.Time
	}
	if resolvedAt.Valid {
		alert.ResolvedAt = &resolvedAt.Time
	}

	if len(indicators) > 0 {
		if err := json.Unmarshal(indicators, &alert.Indicators); err != nil {
			return nil, fmt.Errorf("failed to unmarshal indicators: %w", err)
		}
	}
	if len(actionLog) > 0 {
		if err := json.Unmarshal(actionLog, &alert.ActionLog); err != nil {
			return nil, fmt.Errorf("failed to unmarshal action_log: %w", err)
		}
	}
	if len(notifiedContacts) > 0 {
		if err := json.Unmarshal(notifiedContacts, &alert.NotifiedContacts); err != nil {
			return nil, fmt.Errorf("failed to unmarshal notified_contacts: %w", err)
		}
	}
	if len(mergeLog) > 0 {
		if err := json.Unmarshal(mergeLog, &alert.MergeLog); err != nil {
			return nil, fmt.Errorf("failed to unmarshal merge_log: %w", err)
		}
	}

	return &alert, nil
}

// GetCrisisAlert fetches a single alert by id.
func (r *CrisisAlertsRepository) GetCrisisAlert(ctx context.Context, alertID string) (*models.CrisisAlert, error) {
	if alertID == "" {
		return nil, fmt.Errorf("alert_id is required")
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM crisis_alerts
		WHERE alert_id = $1
	`, crisisAlertColumns)

	alert, err := scanCrisisAlert(r.db.QueryRowContext(ctx, query, alertID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("crisis alert not found: alert_id=%s", alertID)
		}
		return nil, fmt.Errorf("failed to get crisis alert: %w", err)
	}

	return alert, nil
}

// CreateCrisisAlert inserts a new alert.
func (r *CrisisAlertsRepository) CreateCrisisAlert(ctx context.Context, alert *models.CrisisAlert) error {
	if alert == nil {
		return fmt.Errorf("alert is required")
	}
	if alert.AlertID == "" {
		return fmt.Errorf("alert_id is required")
	}
	if alert.UserID == "" {
		return fmt.Errorf("user_id is required")
	}

	indicators, err := marshalOrDefault(alert.Indicators, "[]")
	if err != nil {
		return fmt.Errorf("failed to marshal indicators: %w", err)
	}
	actionLog, err := marshalOrDefault(alert.ActionLog, "[]")
	if err != nil {
		return fmt.Errorf("failed to marshal action_log: %w", err)
	}
	notifiedContacts, err := marshalOrDefault(alert.NotifiedContacts, "[]")
	if err != nil {
		return fmt.Errorf("failed to marshal notified_contacts: %w", err)
	}
	mergeLog, err := marshalOrDefault(alert.MergeLog, "[]")
	if err != nil {
		return fmt.Errorf("failed to marshal merge_log: %w", err)
	}

	query := `
		INSERT INTO crisis_alerts (
			alert_id,
			user_id,
			severity,
			trigger_source,
			indicators,
			confidence,
			lexicon_version,
			status,
			intervention_attempted,
			action_log,
			professional_contacted,
			contacts_notified,
			notified_contacts,
			merge_log,
			resolution_notes,
			created_at,
			acknowledged_at,
			resolved_at,
			updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19
		)
	`

	_, err = r.db.ExecContext(ctx,
		query,
		alert.AlertID,
		alert.UserID,
		alert.Severity,
		alert.TriggerSource,
		indicators,
		alert.Confidence,
		alert.LexiconVersion,
		alert.Status,
		alert.InterventionAttempted,
		actionLog,
		alert.ProfessionalContacted,
		alert.ContactsNotified,
		notifiedContacts,
		mergeLog,
		alert.ResolutionNotes,
		alert.CreatedAt,
		alert.AcknowledgedAt,
		alert.ResolvedAt,
		alert.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create crisis alert: %w", err)
	}

	return nil
}

// allowed fields for UpdateCrisisAlert
var allowedAlertFields = map[string]bool{
	"severity":               true,
	"indicators":             true,
	"confidence":             true,
	"status":                 true,
	"intervention_attempted": true,
	"action_log":             true,
	"professional_contacted": true,
	"contacts_notified":      true,
	"notified_contacts":      true,
	"merge_log":              true,
	"resolution_notes":       true,
	"acknowledged_at":        true,
	"resolved_at":            true,
}

// UpdateCrisisAlert partial update. updates maps column name to new value;
// JSON-typed values must already be marshaled by the caller or passed as
// marshalable Go values via MarshalField.
func (r *CrisisAlertsRepository) UpdateCrisisAlert(ctx context.Context, alertID string, updates map[string]interface{}) error {
	if alertID == "" {
		return fmt.Errorf("alert_id is required")
	}
	if len(updates) == 0 {
		return fmt.Errorf("updates cannot be empty")
	}

	setParts := []string{}
	args := []interface{}{}
	argN := 1

	for field, value := range updates {
		if !allowedAlertFields[field] {
			return fmt.Errorf("field '%s' is not allowed to update", field)
		}
		setParts = append(setParts, fmt.Sprintf("%s = $%d", field, argN))
		args = append(args, value)
		argN++
	}

	setParts = append(setParts, "updated_at = CURRENT_TIMESTAMP")

	args = append(args, alertID)
	query := fmt.Sprintf(`
		UPDATE crisis_alerts
		SET %s
		WHERE alert_id = $%d
	`, strings.Join(setParts, ", "), argN)

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update crisis alert: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("crisis alert not found: alert_id=%s", alertID)
	}

	return nil
}

// MarshalField marshals a JSON-typed update value for UpdateCrisisAlert.
func MarshalField(v interface{}) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal update field: %w", err)
	}
	return data, nil
}

// GetActiveAlertForDay looks up the user's active alert created on the
// given calendar day (UTC). Returns nil when none exists; this is the
// dedup check behind create-or-merge.
func (r *CrisisAlertsRepository) GetActiveAlertForDay(ctx context.Context, userID string, day time.Time) (*models.CrisisAlert, error) {
	if userID == "" {
		return nil, fmt.Errorf("user_id is required")
	}

	dayStart := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	dayEnd := dayStart.Add(24 * time.Hour)

	query := fmt.Sprintf(`
		SELECT %s
		FROM crisis_alerts
		WHERE user_id = $1
		  AND status = 'active'
		  AND created_at >= $2
		  AND created_at < $3
		ORDER BY created_at DESC
		LIMIT 1
	`, crisisAlertColumns)

	alert, err := scanCrisisAlert(r.db.QueryRowContext(ctx, query, userID, dayStart, dayEnd))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query active alert: %w", err)
	}

	return alert, nil
}

// buildWhereClause builds the WHERE clause for list and count queries.
func (r *CrisisAlertsRepository) buildWhereClause(userID string, filters CrisisAlertFilters, args *[]interface{}, argN *int) []string {
	where := []string{}

	if userID != "" {
		where = append(where, fmt.Sprintf("user_id = $%d", *argN))
		*args = append(*args, userID)
		*argN++
	}

	if filters.StartTime != nil {
		where = append(where, fmt.Sprintf("created_at >= $%d", *argN))
		*args = append(*args, *filters.StartTime)
		*argN++
	}
	if filters.EndTime != nil {
		where = append(where, fmt.Sprintf("created_at <= $%d", *argN))
		*args = append(*args, *filters.EndTime)
		*argN++
	}

	if filters.Severity != nil {
		where = append(where, fmt.Sprintf("severity = $%d", *argN))
		*args = append(*args, *filters.Severity)
		*argN++
	}
	if len(filters.Severities) > 0 {
		placeholders := make([]string, len(filters.Severities))
		for i := range filters.Severities {
			placeholders[i] = fmt.Sprintf("$%d", *argN)
			*args = append(*args, filters.Severities[i])
			*argN++
		}
		where = append(where, fmt.Sprintf("severity IN (%s)", strings.Join(placeholders, ", ")))
	}

	if filters.Status != nil {
		where = append(where, fmt.Sprintf("status = $%d", *argN))
		*args = append(*args, *filters.Status)
		*argN++
	}
	if len(filters.Statuses) > 0 {
		placeholders := make([]string, len(filters.Statuses))
		for i := range filters.Statuses {
			placeholders[i] = fmt.Sprintf("$%d", *argN)
			*args = append(*args, filters.Statuses[i])
			*argN++
		}
		where = append(where, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ", ")))
	}

	if filters.TriggerSource != nil {
		where = append(where, fmt.Sprintf("trigger_source = $%d", *argN))
		*args = append(*args, *filters.TriggerSource)
		*argN++
	}

	return where
}

// ListCrisisAlerts paged query, newest first. userID may be empty for
// operator-facing queries across users.
func (r *CrisisAlertsRepository) ListCrisisAlerts(ctx context.Context, userID string, filters CrisisAlertFilters, page, size int) ([]*models.CrisisAlert, int, error) {
	args := []interface{}{}
	argN := 1
	where := r.buildWhereClause(userID, filters, &args, &argN)

	whereClause := ""
	if len(where) > 0 {
		whereClause = "WHERE " + strings.Join(where, " AND ")
	}

	queryCount := fmt.Sprintf(`
		SELECT COUNT(*)
		FROM crisis_alerts
		%s
	`, whereClause)

	var total int
	if err := r.db.QueryRowContext(ctx, queryCount, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count crisis alerts: %w", err)
	}

	if page <= 0 {
		page = 1
	}
	if size <= 0 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`
		SELECT %s
		FROM crisis_alerts
		%s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d
	`, crisisAlertColumns, whereClause, argN, argN+1)

	args = append(args, size, offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query crisis alerts: %w", err)
	}
	defer rows.Close()

	alerts := []*models.CrisisAlert{}
	for rows.Next() {
		alert, err := scanCrisisAlert(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan crisis alert: %w", err)
		}
		alerts = append(alerts, alert)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate crisis alerts: %w", err)
	}

	return alerts, total, nil
}

// CountCrisisAlerts count by filter.
func (r *CrisisAlertsRepository) CountCrisisAlerts(ctx context.Context, userID string, filters CrisisAlertFilters) (int, error) {
	args := []interface{}{}
	argN := 1
	where := r.buildWhereClause(userID, filters, &args, &argN)

	whereClause := ""
	if len(where) > 0 {
		whereClause = "WHERE " + strings.Join(where, " AND ")
	}

	query := fmt.Sprintf(`
		SELECT COUNT(*)
		FROM crisis_alerts
		%s
	`, whereClause)

	var total int
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&total); err != nil {
		return 0, fmt.Errorf("failed to count crisis alerts: %w", err)
	}

	return total, nil
}

// ListAttentionQueue returns the operator-facing queue: escalated alerts
// plus critical alerts still active past the resolution SLA. Newest first.
func (r *CrisisAlertsRepository) ListAttentionQueue(ctx context.Context, staleBefore time.Time, page, size int) ([]*models.CrisisAlert, int, error) {
	if page <= 0 {
		page = 1
	}
	if size <= 0 {
		size = 20
	}
	offset := (page - 1) * size

	condition := `
		(status = 'escalated'
		 OR (status = 'active' AND severity = 'critical' AND created_at < $1))
	`

	var total int
	queryCount := fmt.Sprintf(`SELECT COUNT(*) FROM crisis_alerts WHERE %s`, condition)
	if err := r.db.QueryRowContext(ctx, queryCount, staleBefore).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count attention queue: %w", err)
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM crisis_alerts
		WHERE %s
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, crisisAlertColumns, condition)

	rows, err := r.db.QueryContext(ctx, query, staleBefore, size, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query attention queue: %w", err)
	}
	defer rows.Close()

	alerts := []*models.CrisisAlert{}
	for rows.Next() {
		alert, err := scanCrisisAlert(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan crisis alert: %w", err)
		}
		alerts = append(alerts, alert)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate attention queue: %w", err)
	}

	return alerts, total, nil
}

// marshalOrDefault marshals v, substituting def for nil slices so JSONB
// columns never hold SQL NULL.
func marshalOrDefault(v interface{}, def string) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	if string(data) == "null" {
		return []byte(def), nil
	}
	return data, nil
}
