package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"wellness-crisis/internal/models"

	"go.uber.org/zap"
)

// ErrNoContacts no contact is flagged for crisis notification.
var ErrNoContacts = errors.New("no emergency contacts available for crisis notification")

// ContactsRepository the persistence surface the dispatcher needs.
type ContactsRepository interface {
	ListCrisisContacts(ctx context.Context, userID string) ([]*models.EmergencyContact, error)
	RecordContactAttempt(ctx context.Context, contactID string, attemptedAt time.Time) error
}

// Dispatcher fans a crisis notification out to the user's emergency
// contacts in rank order.
type Dispatcher struct {
	contacts       ContactsRepository
	transport      Transport
	maxContacts    int
	attemptTimeout time.Duration
	logger         *zap.Logger
}

// New creates the dispatcher.
func New(contacts ContactsRepository, transport Transport, maxContacts int, attemptTimeout time.Duration, logger *zap.Logger) *Dispatcher {
	if maxContacts <= 0 {
		maxContacts = 3
	}
	if attemptTimeout <= 0 {
		attemptTimeout = 5 * time.Second
	}
	return &Dispatcher{
		contacts:       contacts,
		transport:      transport,
		maxContacts:    maxContacts,
		attemptTimeout: attemptTimeout,
		logger:         logger,
	}
}

// Notify contacts the user's emergency contacts about an active crisis.
//
// Contacts are tried sequentially in priority order (effectiveness score
// breaks ties) up to the dispatch cap. Each attempt gets its own timeout
// and is never retried. A contact outside its availability window is
// skipped without touching its usage counters; an attempted contact gets
// its counters bumped whether or not the transport succeeded.
//
// The returned outcomes cover every contact considered. ErrNoContacts is
// returned when no eligible contact exists at all.
func (d *Dispatcher) Notify(ctx context.Context, userID, userName string, severity models.RiskLevel) ([]models.ContactOutcome, error) {
	if userID == "" {
		return nil, fmt.Errorf("user_id is required")
	}

	contacts, err := d.contacts.ListCrisisContacts(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list crisis contacts: %w", err)
	}
	if len(contacts) == 0 {
		return nil, ErrNoContacts
	}

	now := time.Now()
	rankContacts(contacts, now)

	outcomes := []models.ContactOutcome{}
	attempted := 0

	for _, contact := range contacts {
		if attempted >= d.maxContacts {
			break
		}

		if !contact.AvailableAt(now) {
			d.logger.Info("skipping contact outside availability window",
				zap.String("user_id", userID),
				zap.String("contact_id", contact.ContactID),
			)
			outcomes = append(outcomes, models.ContactOutcome{
				ContactID:    contact.ContactID,
				Name:         contact.Name,
				Relationship: contact.Relationship,
				Outcome:      models.OutcomeSkipped,
				Detail:       "outside availability window",
				AttemptedAt:  now,
			})
			continue
		}

		attempted++
		outcome := d.attempt(ctx, contact, severity, userName)
		outcomes = append(outcomes, outcome)
	}

	return outcomes, nil
}

// attempt sends to one contact and records the attempt. The usage
// counters measure attempts, not confirmed delivery, so they are bumped
// before the transport result is known to matter.
func (d *Dispatcher) attempt(ctx context.Context, contact *models.EmergencyContact, severity models.RiskLevel, userName string) models.ContactOutcome {
	attemptedAt := time.Now()

	outcome := models.ContactOutcome{
		ContactID:    contact.ContactID,
		Name:         contact.Name,
		Relationship: contact.Relationship,
		AttemptedAt:  attemptedAt,
	}

	if err := d.contacts.RecordContactAttempt(ctx, contact.ContactID, attemptedAt); err != nil {
		// Counter failures must not block the notification itself.
		d.logger.Error("failed to record contact attempt",
			zap.String("contact_id", contact.ContactID),
			zap.Error(err),
		)
	}

	message := BuildCrisisMessage(severity, userName, contact.Name)

	attemptCtx, cancel := context.WithTimeout(ctx, d.attemptTimeout)
	defer cancel()

	if err := d.transport.Send(attemptCtx, contact, message); err != nil {
		d.logger.Error("crisis notification attempt failed",
			zap.String("contact_id", contact.ContactID),
			zap.String("severity", string(severity)),
			zap.Error(err),
		)
		outcome.Outcome = models.OutcomeFailed
		outcome.Detail = err.Error()
		return outcome
	}

	d.logger.Info("crisis notification sent",
		zap.String("contact_id", contact.ContactID),
		zap.String("severity", string(severity)),
	)
	outcome.Outcome = models.OutcomeSuccess
	return outcome
}

// NotifyProfessional routes the alert to the user's care team. One
// attempt with the standard per-attempt timeout, no retry; a failure is
// the caller's signal to escalate through other channels.
func (d *Dispatcher) NotifyProfessional(ctx context.Context, userID string, severity models.RiskLevel) error {
	if userID == "" {
		return fmt.Errorf("user_id is required")
	}

	message := BuildProfessionalAlertMessage(severity)

	attemptCtx, cancel := context.WithTimeout(ctx, d.attemptTimeout)
	defer cancel()

	if err := d.transport.SendProfessionalAlert(attemptCtx, userID, severity, message); err != nil {
		d.logger.Error("professional contact attempt failed",
			zap.String("user_id", userID),
			zap.String("severity", string(severity)),
			zap.Error(err),
		)
		return fmt.Errorf("failed to notify professional: %w", err)
	}

	d.logger.Info("professional notified",
		zap.String("user_id", userID),
		zap.String("severity", string(severity)),
	)
	return nil
}

// rankContacts orders by priority rank, then effectiveness score within
// the same rank, then name for a stable order in tests and logs.
func rankContacts(contacts []*models.EmergencyContact, now time.Time) {
	sort.SliceStable(contacts, func(a, b int) bool {
		if contacts[a].Priority != contacts[b].Priority {
			return contacts[a].Priority < contacts[b].Priority
		}
		scoreA := contacts[a].EffectivenessScore(now)
		scoreB := contacts[b].EffectivenessScore(now)
		if scoreA != scoreB {
			return scoreA > scoreB
		}
		return contacts[a].Name < contacts[b].Name
	})
}
