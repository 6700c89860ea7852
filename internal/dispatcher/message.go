package dispatcher

import (
	"fmt"

	"wellness-crisis/internal/models"
)

// CrisisMessage text sent to an emergency contact. The wording is
// deliberately non-clinical: it asks the contact to reach out, it does
// not disclose what the user wrote.
type CrisisMessage struct {
	Subject string
	Body    string
	Urgency string // immediate, urgent, soon
}

// BuildProfessionalAlertMessage composes the care-team notification.
// Severity is the only variable: the care team sees the alert detail in
// their own tooling, the message just has to get them there.
func BuildProfessionalAlertMessage(severity models.RiskLevel) *CrisisMessage {
	switch severity {
	case models.RiskCritical:
		return &CrisisMessage{
			Subject: "Critical crisis alert for one of your clients",
			Body:    "A critical crisis alert was raised for one of your clients. Please review and respond immediately.",
			Urgency: "immediate",
		}
	case models.RiskHigh:
		return &CrisisMessage{
			Subject: "High-risk alert for one of your clients",
			Body:    "A high-risk alert was raised for one of your clients. Please review today.",
			Urgency: "urgent",
		}
	default:
		return &CrisisMessage{
			Subject: "Wellbeing alert for one of your clients",
			Body:    "A wellbeing alert was raised for one of your clients. Please review when you can.",
			Urgency: "soon",
		}
	}
}

// BuildCrisisMessage composes the notification for one contact by
// severity. userName is the display name profile management provides;
// it may be empty, in which case a neutral phrase is used.
func BuildCrisisMessage(severity models.RiskLevel, userName, contactName string) *CrisisMessage {
	who := userName
	if who == "" {
		who = "someone who listed you as an emergency contact"
	}

	greeting := ""
	if contactName != "" {
		greeting = fmt.Sprintf("Hi %s, ", contactName)
	}

	switch severity {
	case models.RiskCritical:
		return &CrisisMessage{
			Subject: "Urgent: please check in right now",
			Body: fmt.Sprintf(
				"%sthis is an urgent wellbeing alert. %s may be in serious distress "+
					"and needs someone right now. Please call or visit them immediately. "+
					"If you cannot reach them and believe they are in danger, contact "+
					"emergency services.",
				greeting, who),
			Urgency: "immediate",
		}
	case models.RiskHigh:
		return &CrisisMessage{
			Subject: "Please check in today",
			Body: fmt.Sprintf(
				"%s%s is going through a difficult time and could really use your "+
					"support today. Please reach out to them as soon as you can.",
				greeting, who),
			Urgency: "urgent",
		}
	default:
		return &CrisisMessage{
			Subject: "A check-in would mean a lot",
			Body: fmt.Sprintf(
				"%s%s has been struggling lately. A call or a visit from you in the "+
					"next day or two would mean a lot.",
				greeting, who),
			Urgency: "soon",
		}
	}
}
