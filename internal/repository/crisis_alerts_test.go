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

	"wellness-crisis/internal/models"
)

func setupMockCrisisAlertsDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock, *CrisisAlertsRepository) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	logger := zap.NewNop()
	repo := NewCrisisAlertsRepository(db, logger)

	return db, mock, repo
}

var crisisAlertTestColumns = []string{
	"alert_id", "user_id", "severity", "trigger_source", "indicators",
	"confidence", "lexicon_version", "status", "intervention_attempted",
	"action_log", "professional_contacted", "contacts_notified",
	"notified_contacts", "merge_log", "resolution_notes",
	"created_at", "acknowledged_at", "resolved_at", "updated_at",
}

func TestGetCrisisAlert_Success(t *testing.T) {
	db, mock, repo := setupMockCrisisAlertsDB(t)
	defer db.Close()

	ctx := context.Background()
	alertID := uuid.New().String()
	userID := uuid.New().String()
	now := time.Now()

	rows := sqlmock.NewRows(crisisAlertTestColumns).AddRow(
		alertID, userID, "critical", "conversation",
		`[{"category":"suicidal_ideation","severity":"ideation","count":1,"phrases":["kill myself"],"spans":[{"start":10,"end":21}],"score":8}]`,
		0.8, "builtin-1", "active", false,
		`[]`, false, false, `[]`, `[]`, nil,
		now, nil, nil, now,
	)

	mock.ExpectQuery(`SELECT`).
		WithArgs(alertID).
		WillReturnRows(rows)

	alert, err := repo.GetCrisisAlert(ctx, alertID)

	require.NoError(t, err)
	assert.NotNil(t, alert)
	assert.Equal(t, alertID, alert.AlertID)
	assert.Equal(t, userID, alert.UserID)
	assert.Equal(t, models.RiskCritical, alert.Severity)
	assert.Equal(t, models.SourceConversation, alert.TriggerSource)
	assert.Equal(t, models.AlertActive, alert.Status)
	require.Len(t, alert.Indicators, 1)
	assert.Equal(t, "suicidal_ideation", alert.Indicators[0].Category)
	assert.Equal(t, 8.0, alert.Indicators[0].Score)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetCrisisAlert_NotFound(t *testing.T) {
	db, mock, repo := setupMockCrisisAlertsDB(t)
	defer db.Close()

	ctx := context.Background()
	alertID := uuid.New().String()

	mock.ExpectQuery(`SELECT`).
		WithArgs(alertID).
		WillReturnError(sql.ErrNoRows)

	alert, err := repo.GetCrisisAlert(ctx, alertID)

	assert.Error(t, err)
	assert.Nil(t, alert)
	assert.Contains(t, err.Error(), "not found")

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetCrisisAlert_InvalidAlertID(t *testing.T) {
	db, mock, repo := setupMockCrisisAlertsDB(t)
	defer db.Close()

	alert, err := repo.GetCrisisAlert(context.Background(), "")

	assert.Error(t, err)
	assert.Nil(t, alert)
	assert.Contains(t, err.Error(), "alert_id is required")

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateCrisisAlert_Success(t *testing.T) {
	db, mock, repo := setupMockCrisisAlertsDB(t)
	defer db.Close()

	ctx := context.Background()
	now := time.Now()

	alert := &models.CrisisAlert{
		AlertID:       uuid.New().String(),
		UserID:        uuid.New().String(),
		Severity:      models.RiskHigh,
		TriggerSource: models.SourceMood,
		Indicators: []models.CategoryMatch{
			{Category: "self_harm", Severity: models.SeveritySelfHarm, Count: 2, Score: 6},
		},
		Confidence:     0.6,
		LexiconVersion: "builtin-1",
		Status:         models.AlertActive,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	mock.ExpectExec(`INSERT INTO crisis_alerts`).
		WithArgs(
			alert.AlertID, alert.UserID, alert.Severity, alert.TriggerSource,
			sqlmock.AnyArg(), 0.6, "builtin-1", alert.Status, false,
			sqlmock.AnyArg(), false, false, sqlmock.AnyArg(), sqlmock.AnyArg(),
			nil, now, nil, nil, now,
		).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := repo.CreateCrisisAlert(ctx, alert)

	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateCrisisAlert_MissingUserID(t *testing.T) {
	db, mock, repo := setupMockCrisisAlertsDB(t)
	defer db.Close()

	alert := &models.CrisisAlert{AlertID: uuid.New().String()}

	err := repo.CreateCrisisAlert(context.Background(), alert)

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "user_id is required")

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateCrisisAlert_Success(t *testing.T) {
	db, mock, repo := setupMockCrisisAlertsDB(t)
	defer db.Close()

	ctx := context.Background()
	alertID := uuid.New().String()
	now := time.Now()

	updates := map[string]interface{}{
		"status":          string(models.AlertAcknowledged),
		"acknowledged_at": now,
	}

	mock.ExpectExec(`UPDATE crisis_alerts`).
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), alertID).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.UpdateCrisisAlert(ctx, alertID, updates)

	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateCrisisAlert_DisallowedField(t *testing.T) {
	db, mock, repo := setupMockCrisisAlertsDB(t)
	defer db.Close()

	err := repo.UpdateCrisisAlert(context.Background(), uuid.New().String(), map[string]interface{}{
		"user_id": "someone-else",
	})

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "not allowed to update")

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateCrisisAlert_NotFound(t *testing.T) {
	db, mock, repo := setupMockCrisisAlertsDB(t)
	defer db.Close()

	alertID := uuid.New().String()

	mock.ExpectExec(`UPDATE crisis_alerts`).
		WithArgs("resolved", alertID).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdateCrisisAlert(context.Background(), alertID, map[string]interface{}{
		"status": "resolved",
	})

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "not found")

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetActiveAlertForDay_Found(t *testing.T) {
	db, mock, repo := setupMockCrisisAlertsDB(t)
	defer db.Close()

	ctx := context.Background()
	alertID := uuid.New().String()
	userID := uuid.New().String()
	now := time.Now().UTC()

	rows := sqlmock.NewRows(crisisAlertTestColumns).AddRow(
		alertID, userID, "high", "mood", `[]`,
		0.5, "builtin-1", "active", true,
		`[]`, false, false, `[]`, `[]`, nil,
		now, nil, nil, now,
	)

	mock.ExpectQuery(`SELECT`).
		WithArgs(userID, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(rows)

	alert, err := repo.GetActiveAlertForDay(ctx, userID, now)

	require.NoError(t, err)
	require.NotNil(t, alert)
	assert.Equal(t, alertID, alert.AlertID)
	assert.Equal(t, models.AlertActive, alert.Status)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetActiveAlertForDay_NoneIsNotError(t *testing.T) {
	db, mock, repo := setupMockCrisisAlertsDB(t)
	defer db.Close()

	userID := uuid.New().String()

	mock.ExpectQuery(`SELECT`).
		WithArgs(userID, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnError(sql.ErrNoRows)

	alert, err := repo.GetActiveAlertForDay(context.Background(), userID, time.Now())

	require.NoError(t, err)
	assert.Nil(t, alert)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListCrisisAlerts_Success(t *testing.T) {
	db, mock, repo := setupMockCrisisAlertsDB(t)
	defer db.Close()

	ctx := context.Background()
	userID := uuid.New().String()
	now := time.Now()

	countRows := sqlmock.NewRows([]string{"count"}).AddRow(2)
	mock.ExpectQuery(`SELECT COUNT`).
		WithArgs(userID).
		WillReturnRows(countRows)

	listRows := sqlmock.NewRows(crisisAlertTestColumns).
		AddRow(uuid.New().String(), userID, "critical", "conversation", `[]`,
			0.8, "builtin-1", "escalated", true, `[]`, false, false, `[]`, `[]`, nil,
			now, nil, nil, now).
		AddRow(uuid.New().String(), userID, "medium", "voice", `[]`,
			0.3, "builtin-1", "resolved", true, `[]`, false, false, `[]`, `[]`, "feeling better",
			now.Add(-24*time.Hour), nil, now, now)

	mock.ExpectQuery(`SELECT`).
		WithArgs(userID, 20, 0).
		WillReturnRows(listRows)

	alerts, total, err := repo.ListCrisisAlerts(ctx, userID, CrisisAlertFilters{}, 1, 20)

	require.NoError(t, err)
	assert.Equal(t, 2, total)
	require.Len(t, alerts, 2)
	assert.Equal(t, models.AlertEscalated, alerts[0].Status)
	require.NotNil(t, alerts[1].ResolutionNotes)
	assert.Equal(t, "feeling better", *alerts[1].ResolutionNotes)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListCrisisAlerts_WithFilters(t *testing.T) {
	db, mock, repo := setupMockCrisisAlertsDB(t)
	defer db.Close()

	ctx := context.Background()
	userID := uuid.New().String()
	startTime := time.Now().Add(-30 * 24 * time.Hour)
	severity := models.RiskCritical

	countRows := sqlmock.NewRows([]string{"count"}).AddRow(1)
	mock.ExpectQuery(`SELECT COUNT`).
		WithArgs(userID, startTime, severity).
		WillReturnRows(countRows)

	listRows := sqlmock.NewRows(crisisAlertTestColumns).
		AddRow(uuid.New().String(), userID, "critical", "manual", `[]`,
			0.9, "builtin-1", "active", false, `[]`, false, false, `[]`, `[]`, nil,
			time.Now(), nil, nil, time.Now())

	mock.ExpectQuery(`SELECT`).
		WithArgs(userID, startTime, severity, 20, 0).
		WillReturnRows(listRows)

	filters := CrisisAlertFilters{
		StartTime: &startTime,
		Severity:  &severity,
	}
	alerts, total, err := repo.ListCrisisAlerts(ctx, userID, filters, 1, 20)

	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, alerts, 1)
	assert.Equal(t, models.RiskCritical, alerts[0].Severity)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCountCrisisAlerts_Success(t *testing.T) {
	db, mock, repo := setupMockCrisisAlertsDB(t)
	defer db.Close()

	userID := uuid.New().String()

	countRows := sqlmock.NewRows([]string{"count"}).AddRow(7)
	mock.ExpectQuery(`SELECT COUNT`).
		WithArgs(userID).
		WillReturnRows(countRows)

	count, err := repo.CountCrisisAlerts(context.Background(), userID, CrisisAlertFilters{})

	require.NoError(t, err)
	assert.Equal(t, 7, count)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListAttentionQueue_Success(t *testing.T) {
	db, mock, repo := setupMockCrisisAlertsDB(t)
	defer db.Close()

	ctx := context.Background()
	staleBefore := time.Now().Add(-4 * time.Hour)
	now := time.Now()

	countRows := sqlmock.NewRows([]string{"count"}).AddRow(1)
	mock.ExpectQuery(`SELECT COUNT`).
		WithArgs(staleBefore).
		WillReturnRows(countRows)

	listRows := sqlmock.NewRows(crisisAlertTestColumns).
		AddRow(uuid.New().String(), uuid.New().String(), "critical", "conversation", `[]`,
			0.9, "builtin-1", "escalated", true, `[]`, false, false, `[]`, `[]`, nil,
			now, nil, nil, now)

	mock.ExpectQuery(`SELECT`).
		WithArgs(staleBefore, 20, 0).
		WillReturnRows(listRows)

	alerts, total, err := repo.ListAttentionQueue(ctx, staleBefore, 1, 20)

	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, alerts, 1)
	assert.Equal(t, models.AlertEscalated, alerts[0].Status)

	require.NoError(t, mock.ExpectationsWereMet())
}
