package lifecycle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"wellness-crisis/internal/cache"
	"wellness-crisis/internal/dispatcher"
	"wellness-crisis/internal/models"
	"wellness-crisis/internal/policy"
	"wellness-crisis/internal/safetyplan"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrInvalidTransition the requested state change is not allowed from
// the alert's current status.
var ErrInvalidTransition = errors.New("invalid alert status transition")

// AlertsRepository the persistence surface the lifecycle needs.
type AlertsRepository interface {
	GetCrisisAlert(ctx context.Context, alertID string) (*models.CrisisAlert, error)
	CreateCrisisAlert(ctx context.Context, alert *models.CrisisAlert) error
	UpdateCrisisAlert(ctx context.Context, alertID string, updates map[string]interface{}) error
	GetActiveAlertForDay(ctx context.Context, userID string, day time.Time) (*models.CrisisAlert, error)
}

// AlertIndex the cache surface for the per-day active alert pointer.
type AlertIndex interface {
	Get(ctx context.Context, userID string, day time.Time) (*cache.ActiveAlertEntry, error)
	Set(ctx context.Context, userID string, day time.Time, entry *cache.ActiveAlertEntry) error
	Delete(ctx context.Context, userID string, day time.Time) error
}

// ContactNotifier fans crisis notifications out to emergency contacts
// and the care team.
type ContactNotifier interface {
	Notify(ctx context.Context, userID, userName string, severity models.RiskLevel) ([]models.ContactOutcome, error)
	NotifyProfessional(ctx context.Context, userID string, severity models.RiskLevel) error
}

// PlanAccessor reads safety plans for intervention actions.
type PlanAccessor interface {
	ActivateInCrisis(ctx context.Context, userID string) (*models.SafetyPlanCrisisView, error)
	CheckPlan(ctx context.Context, userID string) (*safetyplan.PlanStatus, error)
}

// Lifecycle owns crisis alert creation, same-day merging, intervention
// execution and the status state machine. All writes for one user are
// serialized through a per-user mutex so concurrent detections cannot
// race each other into duplicate alerts.
type Lifecycle struct {
	alerts   AlertsRepository
	index    AlertIndex
	notifier ContactNotifier
	plans    PlanAccessor

	actionTimeout time.Duration
	totalBudget   time.Duration

	locks  *keyedMutex
	logger *zap.Logger
}

// New creates the lifecycle.
func New(alerts AlertsRepository, index AlertIndex, notifier ContactNotifier, plans PlanAccessor, actionTimeout, totalBudget time.Duration, logger *zap.Logger) *Lifecycle {
	if actionTimeout <= 0 {
		actionTimeout = 5 * time.Second
	}
	if totalBudget <= 0 {
		totalBudget = 15 * time.Second
	}
	return &Lifecycle{
		alerts:        alerts,
		index:         index,
		notifier:      notifier,
		plans:         plans,
		actionTimeout: actionTimeout,
		totalBudget:   totalBudget,
		locks:         newKeyedMutex(),
		logger:        logger,
	}
}

// CreateOrMerge raises a new alert for the assessment, or folds it into
// the user's existing active alert from the same calendar day. The
// merged flag reports which happened.
//
// The Redis index is consulted first as a fast path; Postgres stays the
// authority, so an index miss or a stale pointer falls through to the
// day-window query.
func (l *Lifecycle) CreateOrMerge(ctx context.Context, userID string, assessment *models.RiskAssessment, source models.TriggerSource) (*models.CrisisAlert, bool, error) {
	if userID == "" {
		return nil, false, fmt.Errorf("user_id is required")
	}
	if assessment == nil {
		return nil, false, fmt.Errorf("assessment is required")
	}

	unlock := l.locks.Lock(userID)
	defer unlock()

	now := time.Now().UTC()

	existing, err := l.findActiveAlert(ctx, userID, now)
	if err != nil {
		return nil, false, err
	}

	if existing != nil {
		if err := l.merge(ctx, existing, assessment, source, now); err != nil {
			return nil, false, err
		}
		return existing, true, nil
	}

	alert := &models.CrisisAlert{
		AlertID:        uuid.New().String(),
		UserID:         userID,
		Severity:       assessment.Level,
		TriggerSource:  source,
		Indicators:     assessment.Matches,
		Confidence:     assessment.Confidence,
		LexiconVersion: assessment.LexiconVersion,
		Status:         models.AlertActive,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := l.alerts.CreateCrisisAlert(ctx, alert); err != nil {
		return nil, false, fmt.Errorf("failed to create crisis alert: %w", err)
	}

	l.setIndex(ctx, alert)

	l.logger.Info("crisis alert created",
		zap.String("alert_id", alert.AlertID),
		zap.String("user_id", userID),
		zap.String("severity", string(alert.Severity)),
		zap.String("source", string(source)),
	)

	return alert, false, nil
}

// findActiveAlert resolves the user's active alert for the given day,
// cache first, database as authority.
func (l *Lifecycle) findActiveAlert(ctx context.Context, userID string, day time.Time) (*models.CrisisAlert, error) {
	entry, err := l.index.Get(ctx, userID, day)
	if err != nil {
		// Cache trouble never blocks the crisis path.
		l.logger.Warn("active alert index lookup failed",
			zap.String("user_id", userID),
			zap.Error(err),
		)
	}

	if entry != nil {
		alert, err := l.alerts.GetCrisisAlert(ctx, entry.AlertID)
		if err == nil && alert.Status == models.AlertActive {
			return alert, nil
		}
		// Stale pointer; drop it and fall through to the day query.
		if delErr := l.index.Delete(ctx, userID, day); delErr != nil {
			l.logger.Warn("failed to drop stale index entry",
				zap.String("user_id", userID),
				zap.Error(delErr),
			)
		}
	}

	alert, err := l.alerts.GetActiveAlertForDay(ctx, userID, day)
	if err != nil {
		return nil, fmt.Errorf("failed to query active alert: %w", err)
	}
	return alert, nil
}

// merge folds a new same-day detection into the existing alert:
// severity and confidence only ever go up, indicator categories are
// unioned, and the detection's origin is appended to the merge log.
func (l *Lifecycle) merge(ctx context.Context, alert *models.CrisisAlert, assessment *models.RiskAssessment, source models.TriggerSource, now time.Time) error {
	alert.Severity = models.MaxRiskLevel(alert.Severity, assessment.Level)
	if assessment.Confidence > alert.Confidence {
		alert.Confidence = assessment.Confidence
	}
	alert.Indicators = mergeIndicators(alert.Indicators, assessment.Matches)
	alert.MergeLog = append(alert.MergeLog, models.MergeOrigin{
		Source:   source,
		Level:    assessment.Level,
		Score:    assessment.Score,
		MergedAt: now,
	})
	alert.UpdatedAt = now

	indicators, err := json.Marshal(alert.Indicators)
	if err != nil {
		return fmt.Errorf("failed to marshal indicators: %w", err)
	}
	mergeLog, err := json.Marshal(alert.MergeLog)
	if err != nil {
		return fmt.Errorf("failed to marshal merge_log: %w", err)
	}

	err = l.alerts.UpdateCrisisAlert(ctx, alert.AlertID, map[string]interface{}{
		"severity":   alert.Severity,
		"confidence": alert.Confidence,
		"indicators": indicators,
		"merge_log":  mergeLog,
	})
	if err != nil {
		return fmt.Errorf("failed to merge crisis alert: %w", err)
	}

	l.setIndex(ctx, alert)

	l.logger.Info("crisis alert merged",
		zap.String("alert_id", alert.AlertID),
		zap.String("user_id", alert.UserID),
		zap.String("severity", string(alert.Severity)),
		zap.String("source", string(source)),
		zap.Int("merge_count", len(alert.MergeLog)),
	)

	return nil
}

// mergeIndicators unions category matches by category id. For a category
// seen in both, the stronger signal wins and phrases are unioned; spans
// refer to the originating text, so the first detection's spans are kept.
func mergeIndicators(existing, incoming []models.CategoryMatch) []models.CategoryMatch {
	merged := make([]models.CategoryMatch, len(existing))
	copy(merged, existing)

	byCategory := map[string]int{}
	for i, m := range merged {
		byCategory[m.Category] = i
	}

	for _, in := range incoming {
		i, ok := byCategory[in.Category]
		if !ok {
			byCategory[in.Category] = len(merged)
			merged = append(merged, in)
			continue
		}
		if in.Count > merged[i].Count {
			merged[i].Count = in.Count
		}
		if in.Score > merged[i].Score {
			merged[i].Score = in.Score
		}
		merged[i].Phrases = unionStrings(merged[i].Phrases, in.Phrases)
	}

	return merged
}

func unionStrings(a, b []string) []string {
	seen := map[string]bool{}
	out := make([]string, 0, len(a)+len(b))
	for _, s := range a {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	for _, s := range b {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

// setIndex best-effort index write; cache failure never blocks.
func (l *Lifecycle) setIndex(ctx context.Context, alert *models.CrisisAlert) {
	err := l.index.Set(ctx, alert.UserID, alert.CreatedAt, &cache.ActiveAlertEntry{
		AlertID:   alert.AlertID,
		Severity:  alert.Severity,
		CreatedAt: alert.CreatedAt,
	})
	if err != nil {
		l.logger.Warn("failed to update active alert index",
			zap.String("alert_id", alert.AlertID),
			zap.Error(err),
		)
	}
}

// dropIndex best-effort index removal once an alert leaves active.
func (l *Lifecycle) dropIndex(ctx context.Context, alert *models.CrisisAlert) {
	if err := l.index.Delete(ctx, alert.UserID, alert.CreatedAt); err != nil {
		l.logger.Warn("failed to drop active alert index entry",
			zap.String("alert_id", alert.AlertID),
			zap.Error(err),
		)
	}
}

// Acknowledge moves an active alert to acknowledged.
func (l *Lifecycle) Acknowledge(ctx context.Context, alertID, actor string) (*models.CrisisAlert, error) {
	if alertID == "" {
		return nil, fmt.Errorf("alert_id is required")
	}

	alert, err := l.alerts.GetCrisisAlert(ctx, alertID)
	if err != nil {
		return nil, err
	}

	unlock := l.locks.Lock(alert.UserID)
	defer unlock()

	alert, err = l.alerts.GetCrisisAlert(ctx, alertID)
	if err != nil {
		return nil, err
	}

	if !alert.Status.CanTransition(models.AlertAcknowledged) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, alert.Status, models.AlertAcknowledged)
	}

	now := time.Now().UTC()
	err = l.alerts.UpdateCrisisAlert(ctx, alertID, map[string]interface{}{
		"status":          string(models.AlertAcknowledged),
		"acknowledged_at": now,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to acknowledge alert: %w", err)
	}

	alert.Status = models.AlertAcknowledged
	alert.AcknowledgedAt = &now
	alert.UpdatedAt = now

	l.dropIndex(ctx, alert)

	l.logger.Info("crisis alert acknowledged",
		zap.String("alert_id", alertID),
		zap.String("actor", actor),
	)

	return alert, nil
}

// Resolve closes an alert. Notes are mandatory: a crisis is never closed
// without a record of how it ended.
func (l *Lifecycle) Resolve(ctx context.Context, alertID, notes string) (*models.CrisisAlert, error) {
	if alertID == "" {
		return nil, fmt.Errorf("alert_id is required")
	}
	if notes == "" {
		return nil, fmt.Errorf("resolution notes are required")
	}

	alert, err := l.alerts.GetCrisisAlert(ctx, alertID)
	if err != nil {
		return nil, err
	}

	unlock := l.locks.Lock(alert.UserID)
	defer unlock()

	alert, err = l.alerts.GetCrisisAlert(ctx, alertID)
	if err != nil {
		return nil, err
	}

	if !alert.Status.CanTransition(models.AlertResolved) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, alert.Status, models.AlertResolved)
	}

	now := time.Now().UTC()
	err = l.alerts.UpdateCrisisAlert(ctx, alertID, map[string]interface{}{
		"status":           string(models.AlertResolved),
		"resolved_at":      now,
		"resolution_notes": notes,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to resolve alert: %w", err)
	}

	alert.Status = models.AlertResolved
	alert.ResolvedAt = &now
	alert.ResolutionNotes = &notes
	alert.UpdatedAt = now

	l.dropIndex(ctx, alert)

	latency := now.Sub(alert.CreatedAt)
	l.logger.Info("crisis alert resolved",
		zap.String("alert_id", alertID),
		zap.Duration("resolution_latency", latency),
	)

	return alert, nil
}

// Escalate marks an active alert as needing human follow-up. Escalated
// alerts never resolve automatically.
func (l *Lifecycle) Escalate(ctx context.Context, alertID, reason string) (*models.CrisisAlert, error) {
	if alertID == "" {
		return nil, fmt.Errorf("alert_id is required")
	}

	alert, err := l.alerts.GetCrisisAlert(ctx, alertID)
	if err != nil {
		return nil, err
	}

	unlock := l.locks.Lock(alert.UserID)
	defer unlock()

	alert, err = l.alerts.GetCrisisAlert(ctx, alertID)
	if err != nil {
		return nil, err
	}

	if !alert.Status.CanTransition(models.AlertEscalated) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, alert.Status, models.AlertEscalated)
	}

	now := time.Now().UTC()
	err = l.alerts.UpdateCrisisAlert(ctx, alertID, map[string]interface{}{
		"status": string(models.AlertEscalated),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to escalate alert: %w", err)
	}

	alert.Status = models.AlertEscalated
	alert.UpdatedAt = now

	l.dropIndex(ctx, alert)

	l.logger.Warn("crisis alert escalated",
		zap.String("alert_id", alertID),
		zap.String("reason", reason),
	)

	return alert, nil
}

// ExecutionResult everything the intervention produced for the caller's
// response surface.
type ExecutionResult struct {
	Actions         []models.ActionRecord
	Resources       []policy.ResourceSet
	SafetyPlan      *models.SafetyPlanCrisisView
	PlanStatus      *safetyplan.PlanStatus
	ContactOutcomes []models.ContactOutcome
	Escalated       bool
}

// Execute runs the intervention plan for the alert's severity. Actions
// run in order, each under its own timeout and all under a total
// wall-clock budget; one action failing never aborts the rest. For a
// critical alert, both escalation-eligible actions failing or being
// skipped escalates the alert.
//
// The slow notification attempts run outside the per-user lock; only
// the persist step takes it, re-reading the alert so two overlapping
// interventions append to one action log instead of clobbering it.
func (l *Lifecycle) Execute(ctx context.Context, alert *models.CrisisAlert, userName string) (*ExecutionResult, error) {
	if alert == nil {
		return nil, fmt.Errorf("alert is required")
	}

	start := time.Now()
	deadline := start.Add(l.totalBudget)

	result := &ExecutionResult{}
	escalationFailures := 0
	escalationEligible := 0

	for _, spec := range policy.Resolve(alert.Severity) {
		if spec.EscalatesOnFailure {
			escalationEligible++
		}

		record := models.ActionRecord{
			Type:       string(spec.Type),
			ExecutedAt: time.Now().UTC(),
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			record.Outcome = models.OutcomeSkipped
			record.Detail = "intervention budget exhausted"
			result.Actions = append(result.Actions, record)
			if spec.EscalatesOnFailure {
				escalationFailures++
			}
			l.logger.Warn("intervention action skipped, budget exhausted",
				zap.String("alert_id", alert.AlertID),
				zap.String("action", string(spec.Type)),
			)
			continue
		}

		timeout := l.actionTimeout
		if remaining < timeout {
			timeout = remaining
		}
		actionCtx, cancel := context.WithTimeout(ctx, timeout)

		actionStart := time.Now()
		outcome, detail := l.runAction(actionCtx, spec.Type, alert, userName, result)
		cancel()

		record.Outcome = outcome
		record.Detail = detail
		record.ElapsedMs = time.Since(actionStart).Milliseconds()
		result.Actions = append(result.Actions, record)

		if spec.EscalatesOnFailure && outcome != models.OutcomeSuccess {
			escalationFailures++
		}
	}

	shouldEscalate := alert.Severity == models.RiskCritical &&
		escalationEligible > 0 &&
		escalationFailures == escalationEligible

	unlock := l.locks.Lock(alert.UserID)
	defer unlock()

	fresh, err := l.alerts.GetCrisisAlert(ctx, alert.AlertID)
	if err != nil {
		return nil, fmt.Errorf("failed to reload alert before recording intervention: %w", err)
	}

	fresh.ProfessionalContacted = fresh.ProfessionalContacted || alert.ProfessionalContacted
	fresh.ContactsNotified = fresh.ContactsNotified || alert.ContactsNotified
	fresh.ActionLog = append(fresh.ActionLog, result.Actions...)

	updates := map[string]interface{}{
		"intervention_attempted": true,
		"professional_contacted": fresh.ProfessionalContacted,
		"contacts_notified":      fresh.ContactsNotified,
	}

	actionLog, err := json.Marshal(fresh.ActionLog)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal action_log: %w", err)
	}
	updates["action_log"] = actionLog

	if len(result.ContactOutcomes) > 0 {
		fresh.NotifiedContacts = append(fresh.NotifiedContacts, result.ContactOutcomes...)
		notified, err := json.Marshal(fresh.NotifiedContacts)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal notified_contacts: %w", err)
		}
		updates["notified_contacts"] = notified
	}

	if shouldEscalate && !fresh.Status.CanTransition(models.AlertEscalated) {
		// A concurrent transition won the status; never overwrite it.
		shouldEscalate = false
		l.logger.Warn("escalation suppressed, alert already transitioned",
			zap.String("alert_id", alert.AlertID),
			zap.String("status", string(fresh.Status)),
		)
	}
	if shouldEscalate {
		updates["status"] = string(models.AlertEscalated)
	}

	if err := l.alerts.UpdateCrisisAlert(ctx, alert.AlertID, updates); err != nil {
		return nil, fmt.Errorf("failed to record intervention: %w", err)
	}

	alert.InterventionAttempted = true
	alert.ActionLog = fresh.ActionLog
	alert.NotifiedContacts = fresh.NotifiedContacts
	alert.ProfessionalContacted = fresh.ProfessionalContacted
	alert.ContactsNotified = fresh.ContactsNotified

	if shouldEscalate {
		alert.Status = models.AlertEscalated
		result.Escalated = true
		l.dropIndex(ctx, alert)
		l.logger.Warn("crisis alert escalated, critical intervention reached no one",
			zap.String("alert_id", alert.AlertID),
			zap.String("user_id", alert.UserID),
		)
	}

	l.logger.Info("intervention executed",
		zap.String("alert_id", alert.AlertID),
		zap.String("severity", string(alert.Severity)),
		zap.Int("action_count", len(result.Actions)),
		zap.Bool("escalated", result.Escalated),
		zap.Duration("elapsed", time.Since(start)),
	)

	return result, nil
}

// runAction executes one action and reports its outcome. Side effects
// land on the alert in memory; Execute persists them in one update.
func (l *Lifecycle) runAction(ctx context.Context, action policy.ActionType, alert *models.CrisisAlert, userName string, result *ExecutionResult) (models.ActionOutcome, string) {
	switch action {
	case policy.ActionImmediateCrisisResources:
		result.Resources = append(result.Resources, policy.ImmediateCrisisResources())
		return models.OutcomeSuccess, ""

	case policy.ActionCrisisResources:
		result.Resources = append(result.Resources, policy.CrisisResources())
		return models.OutcomeSuccess, ""

	case policy.ActionSupportResources:
		result.Resources = append(result.Resources, policy.SupportResources())
		return models.OutcomeSuccess, ""

	case policy.ActionSelfHelpResources:
		result.Resources = append(result.Resources, policy.SelfHelpResources())
		return models.OutcomeSuccess, ""

	case policy.ActionEmergencyServices:
		result.Resources = append(result.Resources, policy.EmergencyServices())
		return models.OutcomeSuccess, ""

	case policy.ActionProfessionalContact:
		if err := l.notifier.NotifyProfessional(ctx, alert.UserID, alert.Severity); err != nil {
			return models.OutcomeFailed, err.Error()
		}
		alert.ProfessionalContacted = true
		return models.OutcomeSuccess, ""

	case policy.ActionNotifyContacts:
		outcomes, err := l.notifier.Notify(ctx, alert.UserID, userName, alert.Severity)
		if err != nil {
			if errors.Is(err, dispatcher.ErrNoContacts) {
				return models.OutcomeSkipped, "no emergency contacts configured"
			}
			return models.OutcomeFailed, err.Error()
		}
		result.ContactOutcomes = append(result.ContactOutcomes, outcomes...)
		reached := 0
		for _, o := range outcomes {
			if o.Outcome == models.OutcomeSuccess {
				reached++
			}
		}
		if reached == 0 {
			return models.OutcomeFailed, "no contact could be reached"
		}
		alert.ContactsNotified = true
		return models.OutcomeSuccess, fmt.Sprintf("%d contact(s) notified", reached)

	case policy.ActionActivateSafetyPlan:
		view, err := l.plans.ActivateInCrisis(ctx, alert.UserID)
		if err != nil {
			if errors.Is(err, safetyplan.ErrPlanNotFound) {
				return models.OutcomeSkipped, "no safety plan authored"
			}
			return models.OutcomeFailed, err.Error()
		}
		result.SafetyPlan = view
		return models.OutcomeSuccess, ""

	case policy.ActionCheckSafetyPlan:
		status, err := l.plans.CheckPlan(ctx, alert.UserID)
		if err != nil {
			return models.OutcomeFailed, err.Error()
		}
		result.PlanStatus = status
		if !status.Exists {
			return models.OutcomeSuccess, "no plan yet, creation prompted"
		}
		return models.OutcomeSuccess, fmt.Sprintf("plan %.0f%% complete", status.CompletionPercent)

	case policy.ActionScheduleProfessional, policy.ActionScheduleCheckIn,
		policy.ActionSuggestCoping, policy.ActionSuggestWellness,
		policy.ActionPassiveMonitoring:
		// Markers for downstream surfaces; recording them is the action.
		return models.OutcomeSuccess, ""

	default:
		return models.OutcomeSkipped, fmt.Sprintf("unknown action: %s", action)
	}
}
