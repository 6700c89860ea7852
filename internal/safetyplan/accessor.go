package safetyplan

import (
	"context"
	"errors"
	"fmt"

	"wellness-crisis/internal/models"

	"go.uber.org/zap"
)

// ErrPlanNotFound the user has not authored a safety plan. The caller
// prompts plan creation; nothing is synthesized on the user's behalf.
var ErrPlanNotFound = errors.New("safety plan not found")

const (
	maxCrisisSupportContacts = 3
	maxCrisisReasons         = 5
)

// crisisHotlines static list appended to every crisis view.
var crisisHotlines = []models.Hotline{
	{Name: "iCall", Phone: "+91-9152987821", Description: "Mon-Sat, 8am-10pm"},
	{Name: "Vandrevala Foundation", Phone: "1860-2662-345", Description: "24/7 crisis support"},
	{Name: "AASRA", Phone: "+91-9820466726", Description: "24/7 helpline"},
}

// PlansRepository the persistence surface the accessor needs.
type PlansRepository interface {
	GetSafetyPlan(ctx context.Context, userID string) (*models.SafetyPlan, error)
	RecordCrisisAccess(ctx context.Context, planID string) error
}

// Accessor reads safety plans on behalf of the crisis path.
type Accessor struct {
	plans  PlansRepository
	logger *zap.Logger
}

// NewAccessor creates the accessor.
func NewAccessor(plans PlansRepository, logger *zap.Logger) *Accessor {
	return &Accessor{
		plans:  plans,
		logger: logger,
	}
}

// ActivateInCrisis returns the abbreviated crisis view of the user's
// plan and counts the access. The view caps support contacts and
// reasons for living so the user is not scrolling through a document
// mid-crisis; coping strategies and professional contacts come whole.
func (a *Accessor) ActivateInCrisis(ctx context.Context, userID string) (*models.SafetyPlanCrisisView, error) {
	if userID == "" {
		return nil, fmt.Errorf("user_id is required")
	}

	plan, err := a.plans.GetSafetyPlan(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load safety plan: %w", err)
	}
	if plan == nil {
		return nil, ErrPlanNotFound
	}

	if err := a.plans.RecordCrisisAccess(ctx, plan.PlanID); err != nil {
		// The user still gets their plan even when the counter write fails.
		a.logger.Error("failed to record crisis access",
			zap.String("plan_id", plan.PlanID),
			zap.Error(err),
		)
	}

	view := &models.SafetyPlanCrisisView{
		CopingStrategies:     plan.CopingStrategies,
		SupportContacts:      capContacts(plan.SupportContacts, maxCrisisSupportContacts),
		ProfessionalContacts: plan.ProfessionalContacts,
		ReasonsForLiving:     capStrings(plan.ReasonsForLiving, maxCrisisReasons),
		Hotlines:             crisisHotlines,
	}

	a.logger.Info("safety plan activated in crisis",
		zap.String("user_id", userID),
		zap.String("plan_id", plan.PlanID),
	)

	return view, nil
}

// PlanStatus existence and completeness of a plan, for the medium-risk
// "check safety plan" action.
type PlanStatus struct {
	Exists            bool    `json:"exists"`
	Complete          bool    `json:"complete"`
	CompletionPercent float64 `json:"completion_percent"`
}

// CheckPlan reports plan status without touching access counters. Only
// crisis activation counts as an access.
func (a *Accessor) CheckPlan(ctx context.Context, userID string) (*PlanStatus, error) {
	if userID == "" {
		return nil, fmt.Errorf("user_id is required")
	}

	plan, err := a.plans.GetSafetyPlan(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load safety plan: %w", err)
	}
	if plan == nil {
		return &PlanStatus{}, nil
	}

	return &PlanStatus{
		Exists:            true,
		Complete:          plan.IsComplete(),
		CompletionPercent: plan.CompletionPercent(),
	}, nil
}

func capContacts(contacts []models.PlanContact, max int) []models.PlanContact {
	if len(contacts) <= max {
		return contacts
	}
	return contacts[:max]
}

func capStrings(items []string, max int) []string {
	if len(items) <= max {
		return items
	}
	return items[:max]
}
