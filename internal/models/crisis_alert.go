package models

import (
	"time"
)

// AlertStatus crisis alert lifecycle state.
type AlertStatus string

const (
	AlertActive       AlertStatus = "active"
	AlertAcknowledged AlertStatus = "acknowledged"
	AlertResolved     AlertStatus = "resolved"
	AlertEscalated    AlertStatus = "escalated"
)

// alertTransitions allowed state transitions. resolved is terminal.
var alertTransitions = map[AlertStatus][]AlertStatus{
	AlertActive:       {AlertAcknowledged, AlertResolved, AlertEscalated},
	AlertAcknowledged: {AlertResolved},
	AlertEscalated:    {AlertResolved},
	AlertResolved:     {},
}

// CanTransition reports whether moving from to next is an allowed transition.
func (s AlertStatus) CanTransition(next AlertStatus) bool {
	for _, allowed := range alertTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// TriggerSource what surface produced the analyzed text.
type TriggerSource string

const (
	SourceConversation TriggerSource = "conversation"
	SourceMood         TriggerSource = "mood"
	SourceVoice        TriggerSource = "voice"
	SourceManual       TriggerSource = "manual"
)

// ActionOutcome result of one intervention action.
type ActionOutcome string

const (
	OutcomeSuccess ActionOutcome = "success"
	OutcomeFailed  ActionOutcome = "failed"
	OutcomeSkipped ActionOutcome = "skipped"
)

// ActionRecord one executed intervention action with its outcome,
// appended to the alert's action log in execution order.
type ActionRecord struct {
	Type       string        `json:"type"`
	Outcome    ActionOutcome `json:"outcome"`
	Detail     string        `json:"detail,omitempty"`
	ExecutedAt time.Time     `json:"executed_at"`
	ElapsedMs  int64         `json:"elapsed_ms"`
}

// MergeOrigin records a same-day detection folded into an existing active
// alert instead of creating a duplicate.
type MergeOrigin struct {
	Source   TriggerSource `json:"source"`
	Level    RiskLevel     `json:"level"`
	Score    float64       `json:"score"`
	MergedAt time.Time     `json:"merged_at"`
}

// CrisisAlert the persisted record tracking one crisis episode for a user
// from detection through resolution (crisis_alerts table).
// Invariant: at most one active alert per (user, calendar day).
type CrisisAlert struct {
	AlertID        string          `json:"alert_id" db:"alert_id"`
	UserID         string          `json:"user_id" db:"user_id"`
	Severity       RiskLevel       `json:"severity" db:"severity"`
	TriggerSource  TriggerSource   `json:"trigger_source" db:"trigger_source"`
	Indicators     []CategoryMatch `json:"indicators" db:"indicators"` // JSONB
	Confidence     float64         `json:"confidence" db:"confidence"`
	LexiconVersion string          `json:"lexicon_version" db:"lexicon_version"`

	Status                AlertStatus `json:"status" db:"status"`
	InterventionAttempted bool        `json:"intervention_attempted" db:"intervention_attempted"`
	ActionLog             []ActionRecord `json:"action_log" db:"action_log"` // JSONB

	ProfessionalContacted bool             `json:"professional_contacted" db:"professional_contacted"`
	ContactsNotified      bool             `json:"contacts_notified" db:"contacts_notified"`
	NotifiedContacts      []ContactOutcome `json:"notified_contacts" db:"notified_contacts"` // JSONB
	MergeLog              []MergeOrigin    `json:"merge_log" db:"merge_log"`                 // JSONB

	ResolutionNotes *string    `json:"resolution_notes,omitempty" db:"resolution_notes"`
	CreatedAt       time.Time  `json:"created_at" db:"created_at"`
	AcknowledgedAt  *time.Time `json:"acknowledged_at,omitempty" db:"acknowledged_at"`
	ResolvedAt      *time.Time `json:"resolved_at,omitempty" db:"resolved_at"`
	UpdatedAt       time.Time  `json:"updated_at" db:"updated_at"`
}

// ResolutionLatency time from creation to resolution, nil while unresolved.
func (a *CrisisAlert) ResolutionLatency() *time.Duration {
	if a.ResolvedAt == nil {
		return nil
	}
	d := a.ResolvedAt.Sub(a.CreatedAt)
	return &d
}

// CrisisStatistics aggregate view over a user's alert history.
type CrisisStatistics struct {
	TotalAlerts      int               `json:"total_alerts"`
	RiskDistribution map[RiskLevel]int `json:"risk_distribution"`
	InterventionRate float64           `json:"intervention_rate"` // percent of alerts with an intervention
	RecentTrend      string            `json:"recent_trend"`      // increasing, decreasing, stable
}
