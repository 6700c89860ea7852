package lifecycle

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"wellness-crisis/internal/cache"
	"wellness-crisis/internal/dispatcher"
	"wellness-crisis/internal/models"
	"wellness-crisis/internal/safetyplan"
)

type fakeAlertsRepo struct {
	mu      sync.Mutex
	alerts  map[string]*models.CrisisAlert
	updates []map[string]interface{}
}

func newFakeAlertsRepo() *fakeAlertsRepo {
	return &fakeAlertsRepo{alerts: map[string]*models.CrisisAlert{}}
}

func (f *fakeAlertsRepo) GetCrisisAlert(ctx context.Context, alertID string) (*models.CrisisAlert, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	alert, ok := f.alerts[alertID]
	if !ok {
		return nil, errors.New("crisis alert not found")
	}
	copied := *alert
	return &copied, nil
}

func (f *fakeAlertsRepo) CreateCrisisAlert(ctx context.Context, alert *models.CrisisAlert) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *alert
	f.alerts[alert.AlertID] = &copied
	return nil
}

func (f *fakeAlertsRepo) UpdateCrisisAlert(ctx context.Context, alertID string, updates map[string]interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	alert, ok := f.alerts[alertID]
	if !ok {
		return errors.New("crisis alert not found")
	}
	f.updates = append(f.updates, updates)
	if v, ok := updates["status"]; ok {
		alert.Status = models.AlertStatus(v.(string))
	}
	if v, ok := updates["severity"]; ok {
		alert.Severity = v.(models.RiskLevel)
	}
	if v, ok := updates["confidence"]; ok {
		alert.Confidence = v.(float64)
	}
	if v, ok := updates["intervention_attempted"]; ok {
		alert.InterventionAttempted = v.(bool)
	}
	if v, ok := updates["professional_contacted"]; ok {
		alert.ProfessionalContacted = v.(bool)
	}
	if v, ok := updates["contacts_notified"]; ok {
		alert.ContactsNotified = v.(bool)
	}
	if v, ok := updates["action_log"]; ok {
		var log []models.ActionRecord
		if err := json.Unmarshal(v.([]byte), &log); err != nil {
			return err
		}
		alert.ActionLog = log
	}
	if v, ok := updates["notified_contacts"]; ok {
		var outcomes []models.ContactOutcome
		if err := json.Unmarshal(v.([]byte), &outcomes); err != nil {
			return err
		}
		alert.NotifiedContacts = outcomes
	}
	return nil
}

func (f *fakeAlertsRepo) GetActiveAlertForDay(ctx context.Context, userID string, day time.Time) (*models.CrisisAlert, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	dayStart := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	for _, alert := range f.alerts {
		if alert.UserID == userID && alert.Status == models.AlertActive &&
			!alert.CreatedAt.Before(dayStart) && alert.CreatedAt.Before(dayStart.Add(24*time.Hour)) {
			copied := *alert
			return &copied, nil
		}
	}
	return nil, nil
}

type fakeIndex struct {
	mu      sync.Mutex
	entries map[string]*cache.ActiveAlertEntry
}

func newFakeIndex() *fakeIndex {
	return &fakeIndex{entries: map[string]*cache.ActiveAlertEntry{}}
}

func (f *fakeIndex) key(userID string, day time.Time) string {
	return userID + ":" + day.UTC().Format("2006-01-02")
}

func (f *fakeIndex) Get(ctx context.Context, userID string, day time.Time) (*cache.ActiveAlertEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.entries[f.key(userID, day)], nil
}

func (f *fakeIndex) Set(ctx context.Context, userID string, day time.Time, entry *cache.ActiveAlertEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries[f.key(userID, day)] = entry
	return nil
}

func (f *fakeIndex) Delete(ctx context.Context, userID string, day time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.entries, f.key(userID, day))
	return nil
}

type fakeNotifier struct {
	mu              sync.Mutex
	outcomes        []models.ContactOutcome
	notifyErr       error
	professionalErr error
	notified        int
	professional    int
	delay           time.Duration
}

func (f *fakeNotifier) Notify(ctx context.Context, userID, userName string, severity models.RiskLevel) ([]models.ContactOutcome, error) {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notified++
	if f.notifyErr != nil {
		return nil, f.notifyErr
	}
	return f.outcomes, nil
}

func (f *fakeNotifier) NotifyProfessional(ctx context.Context, userID string, severity models.RiskLevel) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.professional++
	return f.professionalErr
}

type fakePlans struct {
	view     *models.SafetyPlanCrisisView
	status   *safetyplan.PlanStatus
	planErr  error
	checkErr error
}

func (f *fakePlans) ActivateInCrisis(ctx context.Context, userID string) (*models.SafetyPlanCrisisView, error) {
	if f.planErr != nil {
		return nil, f.planErr
	}
	return f.view, nil
}

func (f *fakePlans) CheckPlan(ctx context.Context, userID string) (*safetyplan.PlanStatus, error) {
	if f.checkErr != nil {
		return nil, f.checkErr
	}
	return f.status, nil
}

func successOutcome() []models.ContactOutcome {
	return []models.ContactOutcome{
		{ContactID: "c1", Name: "Asha", Outcome: models.OutcomeSuccess, AttemptedAt: time.Now()},
	}
}

func setupLifecycle(notifier *fakeNotifier, plans *fakePlans) (*Lifecycle, *fakeAlertsRepo, *fakeIndex) {
	repo := newFakeAlertsRepo()
	index := newFakeIndex()
	if notifier == nil {
		notifier = &fakeNotifier{outcomes: successOutcome()}
	}
	if plans == nil {
		plans = &fakePlans{
			view:   &models.SafetyPlanCrisisView{CopingStrategies: []string{"breathe"}},
			status: &safetyplan.PlanStatus{Exists: true, Complete: true, CompletionPercent: 100},
		}
	}
	l := New(repo, index, notifier, plans, time.Second, 5*time.Second, zap.NewNop())
	return l, repo, index
}

func assessment(level models.RiskLevel, score float64) *models.RiskAssessment {
	return &models.RiskAssessment{
		Matches: []models.CategoryMatch{
			{Category: "suicidal_ideation", Severity: models.SeverityIdeation, Count: 1, Phrases: []string{"kill myself"}, Score: score},
		},
		Score:          score,
		Level:          level,
		Confidence:     score / 10,
		LexiconVersion: "builtin-1",
		AnalyzedAt:     time.Now(),
	}
}

func TestCreateOrMerge_CreatesFirstAlert(t *testing.T) {
	l, repo, index := setupLifecycle(nil, nil)

	alert, merged, err := l.CreateOrMerge(context.Background(), "user-1", assessment(models.RiskCritical, 8), models.SourceConversation)

	require.NoError(t, err)
	assert.False(t, merged)
	assert.NotEmpty(t, alert.AlertID)
	assert.Equal(t, models.AlertActive, alert.Status)
	assert.Equal(t, models.RiskCritical, alert.Severity)

	stored, err := repo.GetCrisisAlert(context.Background(), alert.AlertID)
	require.NoError(t, err)
	assert.Equal(t, models.AlertActive, stored.Status)

	entry, err := index.Get(context.Background(), "user-1", alert.CreatedAt)
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, alert.AlertID, entry.AlertID)
}

func TestCreateOrMerge_MergesSameDay(t *testing.T) {
	l, _, _ := setupLifecycle(nil, nil)
	ctx := context.Background()

	first, merged, err := l.CreateOrMerge(ctx, "user-1", assessment(models.RiskHigh, 6), models.SourceConversation)
	require.NoError(t, err)
	require.False(t, merged)

	second := &models.RiskAssessment{
		Matches: []models.CategoryMatch{
			{Category: "self_harm", Severity: models.SeveritySelfHarm, Count: 1, Phrases: []string{"cutting"}, Score: 3},
		},
		Score:      9,
		Level:      models.RiskCritical,
		Confidence: 0.9,
	}

	alert, merged, err := l.CreateOrMerge(ctx, "user-1", second, models.SourceMood)
	require.NoError(t, err)
	assert.True(t, merged)
	assert.Equal(t, first.AlertID, alert.AlertID)

	// Severity and confidence only go up; categories are unioned.
	assert.Equal(t, models.RiskCritical, alert.Severity)
	assert.InDelta(t, 0.9, alert.Confidence, 0.001)
	assert.Len(t, alert.Indicators, 2)

	require.Len(t, alert.MergeLog, 1)
	assert.Equal(t, models.SourceMood, alert.MergeLog[0].Source)
	assert.Equal(t, models.RiskCritical, alert.MergeLog[0].Level)
}

func TestCreateOrMerge_MergeNeverLowersSeverity(t *testing.T) {
	l, _, _ := setupLifecycle(nil, nil)
	ctx := context.Background()

	_, _, err := l.CreateOrMerge(ctx, "user-1", assessment(models.RiskCritical, 9), models.SourceConversation)
	require.NoError(t, err)

	alert, merged, err := l.CreateOrMerge(ctx, "user-1", assessment(models.RiskMedium, 3), models.SourceVoice)
	require.NoError(t, err)
	assert.True(t, merged)
	assert.Equal(t, models.RiskCritical, alert.Severity)
}

func TestCreateOrMerge_ConcurrentDetectionsYieldOneAlert(t *testing.T) {
	l, repo, _ := setupLifecycle(nil, nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := l.CreateOrMerge(ctx, "user-1", assessment(models.RiskHigh, 6), models.SourceConversation)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	repo.mu.Lock()
	defer repo.mu.Unlock()
	assert.Len(t, repo.alerts, 1)
}

func TestCreateOrMerge_SeparateUsersSeparateAlerts(t *testing.T) {
	l, repo, _ := setupLifecycle(nil, nil)
	ctx := context.Background()

	_, merged1, err := l.CreateOrMerge(ctx, "user-1", assessment(models.RiskHigh, 6), models.SourceConversation)
	require.NoError(t, err)
	_, merged2, err := l.CreateOrMerge(ctx, "user-2", assessment(models.RiskHigh, 6), models.SourceConversation)
	require.NoError(t, err)

	assert.False(t, merged1)
	assert.False(t, merged2)

	repo.mu.Lock()
	defer repo.mu.Unlock()
	assert.Len(t, repo.alerts, 2)
}

func TestAcknowledge_FromActive(t *testing.T) {
	l, _, index := setupLifecycle(nil, nil)
	ctx := context.Background()

	alert, _, err := l.CreateOrMerge(ctx, "user-1", assessment(models.RiskHigh, 6), models.SourceConversation)
	require.NoError(t, err)

	acked, err := l.Acknowledge(ctx, alert.AlertID, "operator-7")
	require.NoError(t, err)
	assert.Equal(t, models.AlertAcknowledged, acked.Status)
	assert.NotNil(t, acked.AcknowledgedAt)

	// Index entry dropped: the alert no longer merges.
	entry, err := index.Get(ctx, "user-1", alert.CreatedAt)
	require.NoError(t, err)
	assert.Nil(t, entry)
}

func TestResolve_RequiresNotes(t *testing.T) {
	l, _, _ := setupLifecycle(nil, nil)
	ctx := context.Background()

	alert, _, err := l.CreateOrMerge(ctx, "user-1", assessment(models.RiskHigh, 6), models.SourceConversation)
	require.NoError(t, err)

	_, err = l.Resolve(ctx, alert.AlertID, "")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "notes are required")
}

func TestResolve_FromAcknowledged(t *testing.T) {
	l, _, _ := setupLifecycle(nil, nil)
	ctx := context.Background()

	alert, _, err := l.CreateOrMerge(ctx, "user-1", assessment(models.RiskHigh, 6), models.SourceConversation)
	require.NoError(t, err)

	_, err = l.Acknowledge(ctx, alert.AlertID, "operator-7")
	require.NoError(t, err)

	resolved, err := l.Resolve(ctx, alert.AlertID, "spoke with user, safe with family")
	require.NoError(t, err)
	assert.Equal(t, models.AlertResolved, resolved.Status)
	require.NotNil(t, resolved.ResolvedAt)
	require.NotNil(t, resolved.ResolutionNotes)
}

func TestResolve_IsTerminal(t *testing.T) {
	l, _, _ := setupLifecycle(nil, nil)
	ctx := context.Background()

	alert, _, err := l.CreateOrMerge(ctx, "user-1", assessment(models.RiskHigh, 6), models.SourceConversation)
	require.NoError(t, err)

	_, err = l.Resolve(ctx, alert.AlertID, "all good")
	require.NoError(t, err)

	_, err = l.Acknowledge(ctx, alert.AlertID, "operator-7")
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = l.Escalate(ctx, alert.AlertID, "second thoughts")
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestEscalate_ThenResolveOnly(t *testing.T) {
	l, _, _ := setupLifecycle(nil, nil)
	ctx := context.Background()

	alert, _, err := l.CreateOrMerge(ctx, "user-1", assessment(models.RiskCritical, 9), models.SourceConversation)
	require.NoError(t, err)

	escalated, err := l.Escalate(ctx, alert.AlertID, "manual review requested")
	require.NoError(t, err)
	assert.Equal(t, models.AlertEscalated, escalated.Status)

	// Escalated does not go back through acknowledged.
	_, err = l.Acknowledge(ctx, alert.AlertID, "operator-7")
	assert.ErrorIs(t, err, ErrInvalidTransition)

	resolved, err := l.Resolve(ctx, alert.AlertID, "care team reached the user")
	require.NoError(t, err)
	assert.Equal(t, models.AlertResolved, resolved.Status)
}

func TestExecute_CriticalHappyPath(t *testing.T) {
	notifier := &fakeNotifier{outcomes: successOutcome()}
	l, _, _ := setupLifecycle(notifier, nil)
	ctx := context.Background()

	alert, _, err := l.CreateOrMerge(ctx, "user-1", assessment(models.RiskCritical, 9), models.SourceConversation)
	require.NoError(t, err)

	result, err := l.Execute(ctx, alert, "Maya")
	require.NoError(t, err)

	require.Len(t, result.Actions, 4)
	for _, action := range result.Actions {
		assert.Equal(t, models.OutcomeSuccess, action.Outcome, action.Type)
	}
	assert.False(t, result.Escalated)
	assert.Equal(t, models.AlertActive, alert.Status)
	assert.True(t, alert.InterventionAttempted)
	assert.True(t, alert.ProfessionalContacted)
	assert.True(t, alert.ContactsNotified)
	assert.Equal(t, 1, notifier.professional)
	assert.Equal(t, 1, notifier.notified)
	assert.NotEmpty(t, result.Resources)
}

func TestExecute_CriticalEscalatesWhenNoOneReached(t *testing.T) {
	notifier := &fakeNotifier{
		notifyErr:       dispatcher.ErrNoContacts,
		professionalErr: errors.New("gateway unreachable"),
	}
	l, _, index := setupLifecycle(notifier, nil)
	ctx := context.Background()

	alert, _, err := l.CreateOrMerge(ctx, "user-1", assessment(models.RiskCritical, 9), models.SourceConversation)
	require.NoError(t, err)

	result, err := l.Execute(ctx, alert, "")
	require.NoError(t, err)

	assert.True(t, result.Escalated)
	assert.Equal(t, models.AlertEscalated, alert.Status)

	entry, err := index.Get(ctx, "user-1", alert.CreatedAt)
	require.NoError(t, err)
	assert.Nil(t, entry)

	// The resource actions still ran: escalation is additive, not a replacement.
	assert.NotEmpty(t, result.Resources)
}

func TestExecute_CriticalNoEscalationWhenProfessionalReached(t *testing.T) {
	notifier := &fakeNotifier{notifyErr: dispatcher.ErrNoContacts}
	l, _, _ := setupLifecycle(notifier, nil)
	ctx := context.Background()

	alert, _, err := l.CreateOrMerge(ctx, "user-1", assessment(models.RiskCritical, 9), models.SourceConversation)
	require.NoError(t, err)

	result, err := l.Execute(ctx, alert, "")
	require.NoError(t, err)

	assert.False(t, result.Escalated)
	assert.Equal(t, models.AlertActive, alert.Status)

	// Notify action recorded as skipped, not failed.
	var notifyOutcome models.ActionOutcome
	for _, action := range result.Actions {
		if action.Type == "notify_emergency_contacts" {
			notifyOutcome = action.Outcome
		}
	}
	assert.Equal(t, models.OutcomeSkipped, notifyOutcome)
}

func TestExecute_HighSeverityNeverEscalates(t *testing.T) {
	notifier := &fakeNotifier{
		notifyErr:       dispatcher.ErrNoContacts,
		professionalErr: errors.New("gateway unreachable"),
	}
	plans := &fakePlans{planErr: safetyplan.ErrPlanNotFound}
	l, _, _ := setupLifecycle(notifier, plans)
	ctx := context.Background()

	alert, _, err := l.CreateOrMerge(ctx, "user-1", assessment(models.RiskHigh, 6), models.SourceConversation)
	require.NoError(t, err)

	result, err := l.Execute(ctx, alert, "")
	require.NoError(t, err)

	assert.False(t, result.Escalated)
	assert.Equal(t, models.AlertActive, alert.Status)
}

func TestExecute_SafetyPlanMissingIsSkipped(t *testing.T) {
	plans := &fakePlans{planErr: safetyplan.ErrPlanNotFound, status: &safetyplan.PlanStatus{}}
	l, _, _ := setupLifecycle(nil, plans)
	ctx := context.Background()

	alert, _, err := l.CreateOrMerge(ctx, "user-1", assessment(models.RiskHigh, 6), models.SourceConversation)
	require.NoError(t, err)

	result, err := l.Execute(ctx, alert, "")
	require.NoError(t, err)

	var planOutcome models.ActionRecord
	for _, action := range result.Actions {
		if action.Type == "activate_safety_plan" {
			planOutcome = action
		}
	}
	assert.Equal(t, models.OutcomeSkipped, planOutcome.Outcome)
	assert.Equal(t, "no safety plan authored", planOutcome.Detail)
	assert.Nil(t, result.SafetyPlan)
}

func TestExecute_BudgetExhaustedSkipsRemaining(t *testing.T) {
	notifier := &fakeNotifier{outcomes: successOutcome(), delay: 500 * time.Millisecond}
	repo := newFakeAlertsRepo()
	index := newFakeIndex()
	plans := &fakePlans{status: &safetyplan.PlanStatus{Exists: true}}
	// The notify attempt blocks until the whole budget is gone, so the
	// action after it must be skipped, not run.
	l := New(repo, index, notifier, plans, time.Second, 100*time.Millisecond, zap.NewNop())
	ctx := context.Background()

	alert, _, err := l.CreateOrMerge(ctx, "user-1", assessment(models.RiskCritical, 9), models.SourceConversation)
	require.NoError(t, err)

	result, err := l.Execute(ctx, alert, "")
	require.NoError(t, err)

	require.Len(t, result.Actions, 4)
	last := result.Actions[len(result.Actions)-1]
	assert.Equal(t, models.OutcomeSkipped, last.Outcome)
	assert.Equal(t, "intervention budget exhausted", last.Detail)
}

func TestExecute_ConcurrentRunsAppendToOneActionLog(t *testing.T) {
	notifier := &fakeNotifier{outcomes: successOutcome(), delay: 100 * time.Millisecond}
	l, repo, _ := setupLifecycle(notifier, nil)
	ctx := context.Background()

	first, merged, err := l.CreateOrMerge(ctx, "user-1", assessment(models.RiskCritical, 9), models.SourceConversation)
	require.NoError(t, err)
	require.False(t, merged)

	second, merged, err := l.CreateOrMerge(ctx, "user-1", assessment(models.RiskCritical, 9), models.SourceMood)
	require.NoError(t, err)
	require.True(t, merged)
	require.Equal(t, first.AlertID, second.AlertID)

	// Both interventions overlap on the notify delay; each must append
	// its four records instead of overwriting the other's.
	var wg sync.WaitGroup
	for _, target := range []*models.CrisisAlert{first, second} {
		wg.Add(1)
		go func(a *models.CrisisAlert) {
			defer wg.Done()
			_, err := l.Execute(ctx, a, "Maya")
			assert.NoError(t, err)
		}(target)
	}
	wg.Wait()

	stored, err := repo.GetCrisisAlert(ctx, first.AlertID)
	require.NoError(t, err)
	assert.Len(t, stored.ActionLog, 8)
	assert.Len(t, stored.NotifiedContacts, 2)
	assert.True(t, stored.ProfessionalContacted)
	assert.True(t, stored.ContactsNotified)
}

func TestExecute_NeverOverridesResolvedStatus(t *testing.T) {
	notifier := &fakeNotifier{
		notifyErr:       dispatcher.ErrNoContacts,
		professionalErr: errors.New("gateway unreachable"),
	}
	l, repo, _ := setupLifecycle(notifier, nil)
	ctx := context.Background()

	alert, _, err := l.CreateOrMerge(ctx, "user-1", assessment(models.RiskCritical, 9), models.SourceConversation)
	require.NoError(t, err)

	_, err = l.Resolve(ctx, alert.AlertID, "user confirmed safe")
	require.NoError(t, err)

	result, err := l.Execute(ctx, alert, "")
	require.NoError(t, err)

	// Escalation criteria were met, but the resolved status stands.
	assert.False(t, result.Escalated)

	stored, err := repo.GetCrisisAlert(ctx, alert.AlertID)
	require.NoError(t, err)
	assert.Equal(t, models.AlertResolved, stored.Status)
	assert.Len(t, stored.ActionLog, 4)
}

func TestExecute_MediumPlanCheckHasNoCounterSideEffect(t *testing.T) {
	plans := &fakePlans{status: &safetyplan.PlanStatus{Exists: true, Complete: false, CompletionPercent: 57}}
	l, _, _ := setupLifecycle(nil, plans)
	ctx := context.Background()

	alert, _, err := l.CreateOrMerge(ctx, "user-1", assessment(models.RiskMedium, 3), models.SourceMood)
	require.NoError(t, err)

	result, err := l.Execute(ctx, alert, "")
	require.NoError(t, err)

	require.NotNil(t, result.PlanStatus)
	assert.True(t, result.PlanStatus.Exists)
	assert.False(t, result.PlanStatus.Complete)
	assert.Nil(t, result.SafetyPlan)
}
