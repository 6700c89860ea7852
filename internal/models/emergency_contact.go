package models

import (
	"strings"
	"time"
)

// AvailabilityWindow hours and weekdays during which a contact may be
// notified. A nil window means always available.
type AvailabilityWindow struct {
	StartHour int      `json:"start_hour"` // inclusive, 0-23
	EndHour   int      `json:"end_hour"`   // inclusive, 0-23
	Days      []string `json:"days,omitempty"` // lowercase weekday names; empty = every day
}

// Contains reports whether t falls inside the window. A window with
// StartHour > EndHour wraps past midnight (22-6 covers a night shift);
// the Days filter applies to the day the hour falls on.
func (w *AvailabilityWindow) Contains(t time.Time) bool {
	if w == nil {
		return true
	}
	hour := t.Hour()
	if w.StartHour > w.EndHour {
		if hour < w.StartHour && hour > w.EndHour {
			return false
		}
	} else if hour < w.StartHour || hour > w.EndHour {
		return false
	}
	if len(w.Days) == 0 {
		return true
	}
	day := strings.ToLower(t.Weekday().String())
	for _, d := range w.Days {
		if strings.ToLower(d) == day {
			return true
		}
	}
	return false
}

// EmergencyContact a person the user has designated for crisis
// notification (emergency_contacts table). Profile management owns
// creation and editing; the dispatcher only reads contacts and updates
// usage counters after each attempt.
type EmergencyContact struct {
	ContactID    string `json:"contact_id" db:"contact_id"`
	UserID       string `json:"user_id" db:"user_id"`
	Name         string `json:"name" db:"name"`
	Relationship string `json:"relationship" db:"relationship"`
	Phone        string `json:"phone" db:"phone"`
	Email        string `json:"email" db:"email"`

	Priority        int    `json:"priority" db:"priority"` // 1 = contacted first
	PreferredMethod string `json:"preferred_method" db:"preferred_method"`

	NotifyOnCrisis          bool `json:"notify_on_crisis" db:"notify_on_crisis"`
	CanProvideSupport       bool `json:"can_provide_support" db:"can_provide_support"`
	KnowsMentalHealth       bool `json:"knows_mental_health" db:"knows_mental_health"`
	SupportiveRelationship  bool `json:"supportive_relationship" db:"supportive_relationship"`
	GeographicProximity     string `json:"geographic_proximity" db:"geographic_proximity"` // same_city, same_state, different_state

	Availability *AvailabilityWindow `json:"availability,omitempty" db:"availability"` // JSONB

	TimesContacted     int        `json:"times_contacted" db:"times_contacted"`
	LastContacted      *time.Time `json:"last_contacted,omitempty" db:"last_contacted"`
	ResponseRate       *float64   `json:"response_rate,omitempty" db:"response_rate"`              // 0-1, maintained externally
	AvgResponseMinutes *int       `json:"avg_response_minutes,omitempty" db:"avg_response_minutes"` // maintained externally

	Active    bool      `json:"active" db:"active"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// AvailableAt reports whether the contact may be notified at t.
func (c *EmergencyContact) AvailableAt(t time.Time) bool {
	return c.Availability.Contains(t)
}

// EffectivenessScore derived ranking score: contacts with a history of
// fast responses, a supportive relationship and physical proximity rank
// ahead of same-priority peers. Capped at 20.
func (c *EmergencyContact) EffectivenessScore(now time.Time) float64 {
	score := 0.0

	if c.Priority < 5 {
		score += float64(5 - c.Priority)
	}
	if c.ResponseRate != nil {
		score += *c.ResponseRate * 3
	}
	if c.AvgResponseMinutes != nil {
		switch {
		case *c.AvgResponseMinutes <= 30:
			score += 3
		case *c.AvgResponseMinutes <= 120:
			score += 2
		default:
			score += 1
		}
	}
	if c.SupportiveRelationship {
		score += 2
	}
	if c.KnowsMentalHealth {
		score += 2
	}
	if c.CanProvideSupport {
		score += 2
	}
	switch c.GeographicProximity {
	case "same_city":
		score += 2
	case "same_state":
		score += 1
	}
	if c.AvailableAt(now) {
		score++
	}

	if score > 20 {
		score = 20
	}
	return score
}

// ContactOutcome per-contact result of a notification fan-out.
type ContactOutcome struct {
	ContactID    string        `json:"contact_id"`
	Name         string        `json:"name"`
	Relationship string        `json:"relationship"`
	Outcome      ActionOutcome `json:"outcome"`
	Detail       string        `json:"detail,omitempty"`
	AttemptedAt  time.Time     `json:"attempted_at"`
}
