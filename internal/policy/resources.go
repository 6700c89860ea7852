package policy

// Resource one crisis support resource surfaced to the user.
type Resource struct {
	Name        string `json:"name"`
	Contact     string `json:"contact"`
	Description string `json:"description,omitempty"`
}

// ResourceSet a titled group of resources attached to an action outcome.
type ResourceSet struct {
	Title            string     `json:"title"`
	Resources        []Resource `json:"resources"`
	ImmediateActions []string   `json:"immediate_actions,omitempty"`
}

// ImmediateCrisisResources 24/7 lines surfaced on critical alerts.
func ImmediateCrisisResources() ResourceSet {
	return ResourceSet{
		Title: "Immediate Help Available",
		Resources: []Resource{
			{Name: "National Suicide Prevention Lifeline", Contact: "988", Description: "24/7 crisis counseling"},
			{Name: "Crisis Text Line", Contact: "Text HOME to 741741", Description: "Free 24/7 crisis support via text"},
			{Name: "Vandrevala Foundation", Contact: "1860 266 2345", Description: "24/7 crisis helpline"},
		},
	}
}

// CrisisResources support lines surfaced on high alerts.
func CrisisResources() ResourceSet {
	return ResourceSet{
		Title: "Crisis Support Available",
		Resources: []Resource{
			{Name: "iCall", Contact: "022-25563291", Description: "Counseling helpline (Mon-Sat, 8AM-10PM)"},
			{Name: "AASRA", Contact: "022-27546669", Description: "24/7 suicide prevention helpline"},
			{Name: "Sneha", Contact: "044-24640050", Description: "Chennai-based crisis helpline"},
		},
		ImmediateActions: []string{
			"Reach out to someone you trust",
			"Remove access to means of self-harm",
			"Stay with supportive people",
			"Call a crisis hotline",
		},
	}
}

// SupportResources surfaced on medium alerts.
func SupportResources() ResourceSet {
	return ResourceSet{
		Title: "Support Resources",
		Resources: []Resource{
			{Name: "iCall", Contact: "022-25563291", Description: "Counseling helpline (Mon-Sat, 8AM-10PM)"},
			{Name: "Crisis Text Line", Contact: "Text HOME to 741741", Description: "Free 24/7 crisis support via text"},
		},
		ImmediateActions: []string{
			"Talk to someone you trust about how you feel",
			"Review your coping strategies",
		},
	}
}

// SelfHelpResources surfaced on low alerts.
func SelfHelpResources() ResourceSet {
	return ResourceSet{
		Title: "Self-Help Resources",
		Resources: []Resource{
			{Name: "Breathing exercise", Contact: "", Description: "Five minutes of slow breathing"},
			{Name: "Grounding exercise", Contact: "", Description: "Name five things you can see, four you can hear"},
		},
	}
}

// EmergencyServices numbers surfaced as a last resort.
func EmergencyServices() ResourceSet {
	return ResourceSet{
		Title: "Emergency Services",
		Resources: []Resource{
			{Name: "Emergency", Contact: "112", Description: "National emergency number"},
			{Name: "Police", Contact: "100", Description: "Police emergency"},
			{Name: "Medical Emergency", Contact: "108", Description: "Ambulance and medical emergency"},
		},
	}
}

// SupportiveFallback the fail-safe set surfaced when analysis itself
// fails: the user still gets a supportive check-in and hotline numbers
// rather than silence.
func SupportiveFallback() ResourceSet {
	return ResourceSet{
		Title: "Are you okay?",
		Resources: []Resource{
			{Name: "National Suicide Prevention Lifeline", Contact: "988", Description: "24/7 crisis counseling"},
			{Name: "Crisis Text Line", Contact: "Text HOME to 741741", Description: "Free 24/7 crisis support via text"},
		},
		ImmediateActions: []string{
			"If you are struggling right now, you are not alone",
			"Reach out to someone you trust or call a hotline",
		},
	}
}
