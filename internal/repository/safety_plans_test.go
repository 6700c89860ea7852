package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupMockSafetyPlansDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock, *SafetyPlansRepository) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	logger := zap.NewNop()
	repo := NewSafetyPlansRepository(db, logger)

	return db, mock, repo
}

var safetyPlanTestColumns = []string{
	"plan_id", "user_id", "warning_signs", "coping_strategies",
	"social_distractions", "support_contacts", "professional_contacts",
	"means_restriction", "reasons_for_living",
	"times_accessed", "times_accessed_in_crisis", "created_at", "updated_at",
}

func TestGetSafetyPlan_Success(t *testing.T) {
	db, mock, repo := setupMockSafetyPlansDB(t)
	defer db.Close()

	ctx := context.Background()
	planID := uuid.New().String()
	userID := uuid.New().String()
	now := time.Now()

	rows := sqlmock.NewRows(safetyPlanTestColumns).AddRow(
		planID, userID,
		`["isolating myself","sleeping all day"]`,
		`["breathing exercises","call a friend","go for a walk"]`,
		`["watch a movie","visit the park"]`,
		`[{"name":"Asha","relationship":"sister","phone":"+911234567890"}]`,
		`[{"name":"Dr. Mehta","relationship":"therapist","phone":"+911112223334"}]`,
		`["ask roommate to hold medication"]`,
		`["my family","my dog","finishing my degree"]`,
		4, 1, now, now,
	)

	mock.ExpectQuery(`SELECT`).
		WithArgs(userID).
		WillReturnRows(rows)

	plan, err := repo.GetSafetyPlan(ctx, userID)

	require.NoError(t, err)
	require.NotNil(t, plan)
	assert.Equal(t, planID, plan.PlanID)
	assert.Len(t, plan.WarningSigns, 2)
	assert.Len(t, plan.CopingStrategies, 3)
	require.Len(t, plan.SupportContacts, 1)
	assert.Equal(t, "Asha", plan.SupportContacts[0].Name)
	require.Len(t, plan.ProfessionalContacts, 1)
	assert.Equal(t, "Dr. Mehta", plan.ProfessionalContacts[0].Name)
	assert.Len(t, plan.ReasonsForLiving, 3)
	assert.Equal(t, 4, plan.TimesAccessed)
	assert.Equal(t, 1, plan.TimesAccessedInCrisis)
	assert.True(t, plan.IsComplete())

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetSafetyPlan_NoneIsNotError(t *testing.T) {
	db, mock, repo := setupMockSafetyPlansDB(t)
	defer db.Close()

	userID := uuid.New().String()

	mock.ExpectQuery(`SELECT`).
		WithArgs(userID).
		WillReturnError(sql.ErrNoRows)

	plan, err := repo.GetSafetyPlan(context.Background(), userID)

	require.NoError(t, err)
	assert.Nil(t, plan)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetSafetyPlan_PartialPlan(t *testing.T) {
	db, mock, repo := setupMockSafetyPlansDB(t)
	defer db.Close()

	userID := uuid.New().String()
	now := time.Now()

	rows := sqlmock.NewRows(safetyPlanTestColumns).AddRow(
		uuid.New().String(), userID,
		`["isolating myself"]`,
		`["breathing exercises"]`,
		`[]`, `[]`, `[]`, `[]`, `[]`,
		0, 0, now, now,
	)

	mock.ExpectQuery(`SELECT`).
		WithArgs(userID).
		WillReturnRows(rows)

	plan, err := repo.GetSafetyPlan(context.Background(), userID)

	require.NoError(t, err)
	require.NotNil(t, plan)
	assert.False(t, plan.IsComplete())
	assert.Empty(t, plan.SupportContacts)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetSafetyPlan_MissingUserID(t *testing.T) {
	db, mock, repo := setupMockSafetyPlansDB(t)
	defer db.Close()

	plan, err := repo.GetSafetyPlan(context.Background(), "")

	assert.Error(t, err)
	assert.Nil(t, plan)
	assert.Contains(t, err.Error(), "user_id is required")

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordCrisisAccess_Success(t *testing.T) {
	db, mock, repo := setupMockSafetyPlansDB(t)
	defer db.Close()

	planID := uuid.New().String()

	mock.ExpectExec(`UPDATE safety_plans`).
		WithArgs(planID).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.RecordCrisisAccess(context.Background(), planID)

	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordCrisisAccess_NotFound(t *testing.T) {
	db, mock, repo := setupMockSafetyPlansDB(t)
	defer db.Close()

	planID := uuid.New().String()

	mock.ExpectExec(`UPDATE safety_plans`).
		WithArgs(planID).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.RecordCrisisAccess(context.Background(), planID)

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "not found")

	require.NoError(t, mock.ExpectationsWereMet())
}
