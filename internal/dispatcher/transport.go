package dispatcher

import (
	"context"
	"fmt"
	"time"

	"wellness-crisis/internal/models"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// Transport delivers crisis messages through the notification gateway.
// Implementations must honor ctx cancellation; the dispatcher applies
// the per-attempt timeout through ctx.
type Transport interface {
	Send(ctx context.Context, contact *models.EmergencyContact, message *CrisisMessage) error
	SendProfessionalAlert(ctx context.Context, userID string, severity models.RiskLevel, message *CrisisMessage) error
}

// notifyRequest payload posted to the notification gateway.
type notifyRequest struct {
	ContactID string `json:"contact_id"`
	Name      string `json:"name"`
	Phone     string `json:"phone"`
	Email     string `json:"email,omitempty"`
	Method    string `json:"method"`
	Subject   string `json:"subject"`
	Body      string `json:"body"`
	Urgency   string `json:"urgency"`
}

// notifyResponse gateway reply envelope.
type notifyResponse struct {
	Status int    `json:"status"`
	Msg    string `json:"msg"`
}

// GatewayTransport posts notifications to the external gateway over
// HTTP. The crisis path never retries: a failed attempt is recorded and
// the dispatcher moves to the next contact, so the client is built
// without resty's retry machinery.
type GatewayTransport struct {
	httpClient *resty.Client
	logger     *zap.Logger
}

// NewGatewayTransport creates the gateway client.
func NewGatewayTransport(baseURL string, timeout time.Duration, logger *zap.Logger) *GatewayTransport {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	return &GatewayTransport{
		httpClient: client,
		logger:     logger,
	}
}

// Send posts one notification. Attempt only; the gateway accepting the
// request says nothing about the contact actually seeing it.
func (t *GatewayTransport) Send(ctx context.Context, contact *models.EmergencyContact, message *CrisisMessage) error {
	request := notifyRequest{
		ContactID: contact.ContactID,
		Name:      contact.Name,
		Phone:     contact.Phone,
		Email:     contact.Email,
		Method:    contact.PreferredMethod,
		Subject:   message.Subject,
		Body:      message.Body,
		Urgency:   message.Urgency,
	}

	var response notifyResponse
	resp, err := t.httpClient.R().
		SetContext(ctx).
		SetBody(request).
		SetResult(&response).
		Post("/notifications/send")

	if err != nil {
		t.logger.Error("notification gateway call failed",
			zap.String("contact_id", contact.ContactID),
			zap.Error(err),
		)
		return fmt.Errorf("failed to call notification gateway: %w", err)
	}

	if resp.StatusCode() >= 300 {
		t.logger.Error("notification gateway rejected request",
			zap.String("contact_id", contact.ContactID),
			zap.Int("status_code", resp.StatusCode()),
			zap.String("msg", response.Msg),
		)
		return fmt.Errorf("notification gateway error: %s (status: %d)", response.Msg, resp.StatusCode())
	}

	return nil
}

// professionalAlertRequest payload for the care-team escalation endpoint.
type professionalAlertRequest struct {
	UserID   string `json:"user_id"`
	Severity string `json:"severity"`
	Subject  string `json:"subject"`
	Body     string `json:"body"`
	Urgency  string `json:"urgency"`
}

// SendProfessionalAlert routes a crisis alert to the user's care team
// through the gateway. The gateway owns the mapping from user to the
// on-duty professional.
func (t *GatewayTransport) SendProfessionalAlert(ctx context.Context, userID string, severity models.RiskLevel, message *CrisisMessage) error {
	request := professionalAlertRequest{
		UserID:   userID,
		Severity: string(severity),
		Subject:  message.Subject,
		Body:     message.Body,
		Urgency:  message.Urgency,
	}

	var response notifyResponse
	resp, err := t.httpClient.R().
		SetContext(ctx).
		SetBody(request).
		SetResult(&response).
		Post("/notifications/professional")

	if err != nil {
		t.logger.Error("professional alert call failed",
			zap.String("user_id", userID),
			zap.Error(err),
		)
		return fmt.Errorf("failed to call notification gateway: %w", err)
	}

	if resp.StatusCode() >= 300 {
		t.logger.Error("professional alert rejected",
			zap.String("user_id", userID),
			zap.Int("status_code", resp.StatusCode()),
			zap.String("msg", response.Msg),
		)
		return fmt.Errorf("notification gateway error: %s (status: %d)", response.Msg, resp.StatusCode())
	}

	return nil
}
