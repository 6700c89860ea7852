package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"wellness-crisis/internal/analyzer"
	"wellness-crisis/internal/models"
	"wellness-crisis/internal/policy"
	"wellness-crisis/internal/repository"
	"wellness-crisis/internal/safetyplan"

	"go.uber.org/zap"
)

// AnalyzeRequest one piece of user text to screen, regardless of which
// surface produced it.
type AnalyzeRequest struct {
	UserID   string               `json:"user_id"`
	UserName string               `json:"user_name,omitempty"` // display name for contact messages
	Text     string               `json:"text"`
	Source   models.TriggerSource `json:"source"`
}

// Response what the calling surface shows the user after screening.
type Response struct {
	RiskLevel  models.RiskLevel       `json:"risk_level"`
	Confidence float64                `json:"confidence"`
	Indicators []models.CategoryMatch `json:"indicators,omitempty"`

	AlertID   string `json:"alert_id,omitempty"`
	Merged    bool   `json:"merged,omitempty"`
	Escalated bool   `json:"escalated,omitempty"`

	Actions    []models.ActionRecord        `json:"actions,omitempty"`
	Resources  []policy.ResourceSet         `json:"resources,omitempty"`
	SafetyPlan *models.SafetyPlanCrisisView `json:"safety_plan,omitempty"`
	PlanStatus *safetyplan.PlanStatus       `json:"plan_status,omitempty"`

	// FailSafe marks a degraded response: something inside the engine
	// failed and the user got supportive content instead of silence.
	FailSafe bool `json:"fail_safe,omitempty"`
}

// AnalyzeAndRespond screens one text for crisis risk and runs the full
// response: alert creation or same-day merge, intervention execution,
// and the resource payload for the calling surface.
//
// Empty input is the caller's bug and comes back as an error. Any
// internal failure after that degrades to a supportive fail-safe
// response instead: on this path an error must never mean the user
// gets nothing.
func (s *CrisisService) AnalyzeAndRespond(ctx context.Context, req *AnalyzeRequest) (*Response, error) {
	if req == nil {
		return nil, fmt.Errorf("request is required")
	}
	if req.UserID == "" {
		return nil, fmt.Errorf("user_id is required")
	}
	source := req.Source
	if source == "" {
		source = models.SourceConversation
	}

	assessment, err := s.analyzer.Analyze(req.Text)
	if err != nil {
		if errors.Is(err, analyzer.ErrEmptyInput) {
			return nil, err
		}
		s.logger.Error("risk analysis failed, serving fail-safe response",
			zap.String("user_id", req.UserID),
			zap.Error(err),
		)
		return failSafeResponse(), nil
	}

	response := &Response{
		RiskLevel:  assessment.Level,
		Confidence: assessment.Confidence,
		Indicators: assessment.Matches,
	}

	// Low risk raises no alert; the user gets self-help material only.
	if assessment.Level == models.RiskLow {
		response.Resources = append(response.Resources, policy.SelfHelpResources())
		return response, nil
	}

	// The crisis response must outlive the caller's request: a dropped
	// HTTP connection is no reason to abandon an intervention.
	detached := context.WithoutCancel(ctx)

	alert, merged, err := s.lifecycle.CreateOrMerge(detached, req.UserID, assessment, source)
	if err != nil {
		s.logger.Error("failed to persist crisis alert, serving fail-safe response",
			zap.String("user_id", req.UserID),
			zap.String("severity", string(assessment.Level)),
			zap.Error(err),
		)
		failSafe := failSafeResponse()
		failSafe.RiskLevel = assessment.Level
		failSafe.Confidence = assessment.Confidence
		failSafe.Indicators = assessment.Matches
		if assessment.Level.AtLeast(models.RiskHigh) {
			failSafe.Resources = append(failSafe.Resources, policy.ImmediateCrisisResources())
		}
		return failSafe, nil
	}

	response.AlertID = alert.AlertID
	response.Merged = merged

	result, err := s.lifecycle.Execute(detached, alert, req.UserName)
	if err != nil {
		s.logger.Error("intervention execution failed, serving fail-safe resources",
			zap.String("alert_id", alert.AlertID),
			zap.Error(err),
		)
		response.FailSafe = true
		response.Resources = append(response.Resources, policy.SupportiveFallback())
		if assessment.Level.AtLeast(models.RiskHigh) {
			response.Resources = append(response.Resources, policy.ImmediateCrisisResources())
		}
		return response, nil
	}

	response.Actions = result.Actions
	response.Resources = result.Resources
	response.SafetyPlan = result.SafetyPlan
	response.PlanStatus = result.PlanStatus
	response.Escalated = result.Escalated

	return response, nil
}

// failSafeResponse the degraded answer when the engine cannot assess:
// a supportive check-in plus hotline numbers, never silence.
func failSafeResponse() *Response {
	return &Response{
		RiskLevel:  models.RiskLow,
		Confidence: 0,
		FailSafe:   true,
		Resources:  []policy.ResourceSet{policy.SupportiveFallback()},
	}
}

// AcknowledgeAlert marks an alert as seen by a human.
func (s *CrisisService) AcknowledgeAlert(ctx context.Context, alertID, actor string) (*models.CrisisAlert, error) {
	return s.lifecycle.Acknowledge(ctx, alertID, actor)
}

// ResolveAlert closes an alert with mandatory notes.
func (s *CrisisService) ResolveAlert(ctx context.Context, alertID, notes string) (*models.CrisisAlert, error) {
	return s.lifecycle.Resolve(ctx, alertID, notes)
}

// EscalateAlert flags an alert for human follow-up.
func (s *CrisisService) EscalateAlert(ctx context.Context, alertID, reason string) (*models.CrisisAlert, error) {
	return s.lifecycle.Escalate(ctx, alertID, reason)
}

// CrisisHistory returns the user's alerts over the trailing window,
// newest first.
func (s *CrisisService) CrisisHistory(ctx context.Context, userID string, days int) ([]*models.CrisisAlert, error) {
	if userID == "" {
		return nil, fmt.Errorf("user_id is required")
	}
	if days <= 0 {
		days = 30
	}

	startTime := time.Now().Add(-time.Duration(days) * 24 * time.Hour)
	filters := repository.CrisisAlertFilters{StartTime: &startTime}

	alerts, _, err := s.alerts.ListCrisisAlerts(ctx, userID, filters, 1, 100)
	if err != nil {
		return nil, fmt.Errorf("failed to load crisis history: %w", err)
	}

	return alerts, nil
}

// statisticsWindow how many alerts the statistics pass reads at most.
const statisticsWindow = 500

// CrisisStatistics aggregates the user's alert history: totals, severity
// distribution, intervention rate and the recent trend (this week's
// alert count against the week before).
func (s *CrisisService) CrisisStatistics(ctx context.Context, userID string) (*models.CrisisStatistics, error) {
	if userID == "" {
		return nil, fmt.Errorf("user_id is required")
	}

	alerts, total, err := s.alerts.ListCrisisAlerts(ctx, userID, repository.CrisisAlertFilters{}, 1, statisticsWindow)
	if err != nil {
		return nil, fmt.Errorf("failed to load alerts for statistics: %w", err)
	}

	stats := &models.CrisisStatistics{
		TotalAlerts:      total,
		RiskDistribution: map[models.RiskLevel]int{},
		RecentTrend:      "stable",
	}
	if len(alerts) == 0 {
		return stats, nil
	}

	now := time.Now()
	weekAgo := now.Add(-7 * 24 * time.Hour)
	twoWeeksAgo := now.Add(-14 * 24 * time.Hour)

	intervened := 0
	recentCount := 0
	previousCount := 0

	for _, alert := range alerts {
		stats.RiskDistribution[alert.Severity]++
		if alert.InterventionAttempted {
			intervened++
		}
		switch {
		case alert.CreatedAt.After(weekAgo):
			recentCount++
		case alert.CreatedAt.After(twoWeeksAgo):
			previousCount++
		}
	}

	stats.InterventionRate = float64(intervened) / float64(len(alerts)) * 100

	switch {
	case recentCount > previousCount:
		stats.RecentTrend = "increasing"
	case recentCount < previousCount:
		stats.RecentTrend = "decreasing"
	}

	return stats, nil
}
