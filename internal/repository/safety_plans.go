package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"wellness-crisis/internal/models"

	"go.uber.org/zap"
)

// SafetyPlansRepository read path over safety plans plus the atomic
// access-counter increments. Plan authoring belongs to the user-facing
// collaborator, not this engine.
type SafetyPlansRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewSafetyPlansRepository creates the repository.
func NewSafetyPlansRepository(db *sql.DB, logger *zap.Logger) *SafetyPlansRepository {
	return &SafetyPlansRepository{
		db:     db,
		logger: logger,
	}
}

// GetSafetyPlan fetches the user's plan. Returns nil when the user has
// not authored one.
func (r *SafetyPlansRepository) GetSafetyPlan(ctx context.Context, userID string) (*models.SafetyPlan, error) {
	if userID == "" {
		return nil, fmt.Errorf("user_id is required")
	}

	query := `
		SELECT
			plan_id,
			user_id,
			warning_signs,
			coping_strategies,
			social_distractions,
			support_contacts,
			professional_contacts,
			means_restriction,
			reasons_for_living,
			times_accessed,
			times_accessed_in_crisis,
			created_at,
			updated_at
		FROM safety_plans
		WHERE user_id = $1
	`

	var plan models.SafetyPlan
	var warningSigns, copingStrategies, socialDistractions []byte
	var supportContacts, professionalContacts []byte
	var meansRestriction, reasonsForLiving []byte

	err := r.db.QueryRowContext(ctx, query, userID).Scan(
		&plan.PlanID,
		&plan.UserID,
		&warningSigns,
		&copingStrategies,
		&socialDistractions,
		&supportContacts,
		&professionalContacts,
		&meansRestriction,
		&reasonsForLiving,
		&plan.TimesAccessed,
		&plan.TimesAccessedInCrisis,
		&plan.CreatedAt,
		&plan.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get safety plan: %w", err)
	}

	sections := []struct {
		data []byte
		dest interface{}
		name string
	}{
		{warningSigns, &plan.WarningSigns, "warning_signs"},
		{copingStrategies, &plan.CopingStrategies, "coping_strategies"},
		{socialDistractions, &plan.SocialDistractions, "social_distractions"},
		{supportContacts, &plan.SupportContacts, "support_contacts"},
		{professionalContacts, &plan.ProfessionalContacts, "professional_contacts"},
		{meansRestriction, &plan.MeansRestriction, "means_restriction"},
		{reasonsForLiving, &plan.ReasonsForLiving, "reasons_for_living"},
	}
	for _, s := range sections {
		if len(s.data) == 0 {
			continue
		}
		if err := json.Unmarshal(s.data, s.dest); err != nil {
			return nil, fmt.Errorf("failed to unmarshal %s: %w", s.name, err)
		}
	}

	return &plan, nil
}

// RecordCrisisAccess atomically increments both access counters. A single
// UPDATE keeps the counters exact under concurrent crisis activations.
func (r *SafetyPlansRepository) RecordCrisisAccess(ctx context.Context, planID string) error {
	if planID == "" {
		return fmt.Errorf("plan_id is required")
	}

	query := `
		UPDATE safety_plans
		SET times_accessed = times_accessed + 1,
		    times_accessed_in_crisis = times_accessed_in_crisis + 1,
		    updated_at = CURRENT_TIMESTAMP
		WHERE plan_id = $1
	`

	result, err := r.db.ExecContext(ctx, query, planID)
	if err != nil {
		return fmt.Errorf("failed to record crisis access: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("safety plan not found: plan_id=%s", planID)
	}

	return nil
}
