package policy

import (
	"wellness-crisis/internal/models"
)

// ActionType names one intervention action.
type ActionType string

const (
	ActionImmediateCrisisResources ActionType = "provide_immediate_crisis_resources"
	ActionCrisisResources          ActionType = "provide_crisis_resources"
	ActionSupportResources         ActionType = "provide_support_resources"
	ActionSelfHelpResources        ActionType = "provide_self_help_resources"
	ActionProfessionalContact      ActionType = "attempt_professional_contact"
	ActionScheduleProfessional     ActionType = "schedule_professional_contact"
	ActionNotifyContacts           ActionType = "notify_emergency_contacts"
	ActionEmergencyServices        ActionType = "surface_emergency_services"
	ActionActivateSafetyPlan       ActionType = "activate_safety_plan"
	ActionCheckSafetyPlan          ActionType = "check_safety_plan"
	ActionSuggestCoping            ActionType = "suggest_coping_strategies"
	ActionScheduleCheckIn          ActionType = "schedule_check_in"
	ActionSuggestWellness          ActionType = "suggest_wellness_activities"
	ActionPassiveMonitoring        ActionType = "flag_passive_monitoring"
)

// ActionSpec one entry of an intervention plan. EscalatesOnFailure marks
// the two critical-path actions whose combined failure escalates the
// alert; failure of any other action never aborts the rest of the plan.
type ActionSpec struct {
	Type               ActionType `json:"type"`
	EscalatesOnFailure bool       `json:"escalates_on_failure"`
}

// interventionTable static mapping from risk level to the ordered action
// list. A declarative table rather than branching logic, so every level's
// plan is enumerable and testable.
var interventionTable = map[models.RiskLevel][]ActionSpec{
	models.RiskCritical: {
		{Type: ActionImmediateCrisisResources},
		{Type: ActionProfessionalContact, EscalatesOnFailure: true},
		{Type: ActionNotifyContacts, EscalatesOnFailure: true},
		{Type: ActionEmergencyServices},
	},
	models.RiskHigh: {
		{Type: ActionCrisisResources},
		{Type: ActionScheduleProfessional},
		{Type: ActionActivateSafetyPlan},
		{Type: ActionNotifyContacts},
	},
	models.RiskMedium: {
		{Type: ActionSupportResources},
		{Type: ActionSuggestCoping},
		{Type: ActionCheckSafetyPlan},
		{Type: ActionScheduleCheckIn},
	},
	models.RiskLow: {
		{Type: ActionSelfHelpResources},
		{Type: ActionSuggestWellness},
		{Type: ActionPassiveMonitoring},
	},
}

// Resolve returns the ordered action list for a risk level. Total and
// deterministic: an unknown level falls back to the low-risk plan so a
// caller always gets a non-empty response. The returned slice is a copy.
func Resolve(level models.RiskLevel) []ActionSpec {
	actions, ok := interventionTable[level]
	if !ok {
		actions = interventionTable[models.RiskLow]
	}
	out := make([]ActionSpec, len(actions))
	copy(out, actions)
	return out
}
