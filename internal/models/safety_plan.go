package models

import (
	"time"
)

// PlanContact one person or professional listed in a safety plan section.
type PlanContact struct {
	Name         string `json:"name"`
	Phone        string `json:"phone"`
	Relationship string `json:"relationship,omitempty"`
}

// SafetyPlan a user's pre-authored seven-section crisis response document
// (safety_plans table). Created and edited by the user; this engine only
// reads it and increments access counters.
type SafetyPlan struct {
	PlanID string `json:"plan_id" db:"plan_id"`
	UserID string `json:"user_id" db:"user_id"`

	// The seven ordered sections. All JSONB.
	WarningSigns         []string      `json:"warning_signs" db:"warning_signs"`
	CopingStrategies     []string      `json:"coping_strategies" db:"coping_strategies"`
	SocialDistractions   []string      `json:"social_distractions" db:"social_distractions"`
	SupportContacts      []PlanContact `json:"support_contacts" db:"support_contacts"`
	ProfessionalContacts []PlanContact `json:"professional_contacts" db:"professional_contacts"`
	MeansRestriction     []string      `json:"means_restriction" db:"means_restriction"`
	ReasonsForLiving     []string      `json:"reasons_for_living" db:"reasons_for_living"`

	TimesAccessed         int `json:"times_accessed" db:"times_accessed"`
	TimesAccessedInCrisis int `json:"times_accessed_in_crisis" db:"times_accessed_in_crisis"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// IsComplete reports whether all seven sections are non-empty.
func (p *SafetyPlan) IsComplete() bool {
	return len(p.WarningSigns) > 0 &&
		len(p.CopingStrategies) > 0 &&
		len(p.SocialDistractions) > 0 &&
		len(p.SupportContacts) > 0 &&
		len(p.ProfessionalContacts) > 0 &&
		len(p.MeansRestriction) > 0 &&
		len(p.ReasonsForLiving) > 0
}

// CompletionPercent fraction of the seven sections that are filled in.
func (p *SafetyPlan) CompletionPercent() float64 {
	filled := 0
	if len(p.WarningSigns) > 0 {
		filled++
	}
	if len(p.CopingStrategies) > 0 {
		filled++
	}
	if len(p.SocialDistractions) > 0 {
		filled++
	}
	if len(p.SupportContacts) > 0 {
		filled++
	}
	if len(p.ProfessionalContacts) > 0 {
		filled++
	}
	if len(p.MeansRestriction) > 0 {
		filled++
	}
	if len(p.ReasonsForLiving) > 0 {
		filled++
	}
	return float64(filled) / 7 * 100
}

// Hotline a static crisis hotline entry.
type Hotline struct {
	Name        string `json:"name"`
	Phone       string `json:"phone"`
	Description string `json:"description,omitempty"`
}

// SafetyPlanCrisisView abbreviated plan shown during a crisis. Lists are
// capped: crisis-time cognitive load is limited, so the view shows the
// few most useful items rather than everything.
type SafetyPlanCrisisView struct {
	CopingStrategies     []string      `json:"coping_strategies"`
	SupportContacts      []PlanContact `json:"support_contacts"`      // top 3
	ProfessionalContacts []PlanContact `json:"professional_contacts"` // full
	ReasonsForLiving     []string      `json:"reasons_for_living"`    // top 5
	Hotlines             []Hotline     `json:"crisis_hotlines"`
}
