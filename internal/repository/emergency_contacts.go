package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"wellness-crisis/internal/models"

	"go.uber.org/zap"
)

// EmergencyContactsRepository read path over emergency contacts plus the
// usage-counter write path used after dispatch attempts. Contact creation
// and editing belong to profile management, not this engine.
type EmergencyContactsRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewEmergencyContactsRepository creates the repository.
func NewEmergencyContactsRepository(db *sql.DB, logger *zap.Logger) *EmergencyContactsRepository {
	return &EmergencyContactsRepository{
		db:     db,
		logger: logger,
	}
}

const emergencyContactColumns = `
	contact_id,
	user_id,
	name,
	relationship,
	phone,
	email,
	priority,
	preferred_method,
	notify_on_crisis,
	can_provide_support,
	knows_mental_health,
	supportive_relationship,
	geographic_proximity,
	availability,
	times_contacted,
	last_contacted,
	response_rate,
	avg_response_minutes,
	active,
	created_at,
	updated_at
`

func scanEmergencyContact(row rowScanner) (*models.EmergencyContact, error) {
	var contact models.EmergencyContact
	var availability []byte
	var lastContacted sql.NullTime
	var responseRate sql.NullFloat64
	var avgResponseMinutes sql.NullInt64

	err := row.Scan(
		&contact.ContactID,
		&contact.UserID,
		&contact.Name,
		&contact.Relationship,
		&contact.Phone,
		&contact.Email,
		&contact.Priority,
		&contact.PreferredMethod,
		&contact.NotifyOnCrisis,
		&contact.CanProvideSupport,
		&contact.KnowsMentalHealth,
		&contact.SupportiveRelationship,
		&contact.GeographicProximity,
		&availability,
		&contact.TimesContacted,
		&lastContacted,
		&responseRate,
		&avgResponseMinutes,
		&contact.Active,
		&contact.CreatedAt,
		&contact.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if lastContacted.Valid {
		contact.LastContacted = &lastContacted.Time
	}
	if responseRate.Valid {
		contact.ResponseRate = &responseRate.Float64
	}
	if avgResponseMinutes.Valid {
		minutes := int(avgResponseMinutes.Int64)
		contact.AvgResponseMinutes = &minutes
	}
	if len(availability) > 0 && string(availability) != "null" {
		var window models.AvailabilityWindow
		if err := json.Unmarshal(availability, &window); err != nil {
			return nil, fmt.Errorf("failed to unmarshal availability: %w", err)
		}
		contact.Availability = &window
	}

	return &contact, nil
}

// ListCrisisContacts returns the user's active contacts flagged for
// crisis notification, ordered by priority rank (lowest first).
func (r *EmergencyContactsRepository) ListCrisisContacts(ctx context.Context, userID string) ([]*models.EmergencyContact, error) {
	if userID == "" {
		return nil, fmt.Errorf("user_id is required")
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM emergency_contacts
		WHERE user_id = $1
		  AND notify_on_crisis = true
		  AND active = true
		ORDER BY priority ASC, created_at ASC
	`, emergencyContactColumns)

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query crisis contacts: %w", err)
	}
	defer rows.Close()

	contacts := []*models.EmergencyContact{}
	for rows.Next() {
		contact, err := scanEmergencyContact(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan emergency contact: %w", err)
		}
		contacts = append(contacts, contact)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate emergency contacts: %w", err)
	}

	return contacts, nil
}

// RecordContactAttempt bumps usage counters after a dispatch attempt.
// An attempt is counted regardless of transport outcome: the counter
// measures attempts, not confirmed delivery.
func (r *EmergencyContactsRepository) RecordContactAttempt(ctx context.Context, contactID string, attemptedAt time.Time) error {
	if contactID == "" {
		return fmt.Errorf("contact_id is required")
	}

	query := `
		UPDATE emergency_contacts
		SET times_contacted = times_contacted + 1,
		    last_contacted = $1,
		    updated_at = CURRENT_TIMESTAMP
		WHERE contact_id = $2
	`

	result, err := r.db.ExecContext(ctx, query, attemptedAt, contactID)
	if err != nil {
		return fmt.Errorf("failed to record contact attempt: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("emergency contact not found: contact_id=%s", contactID)
	}

	return nil
}
