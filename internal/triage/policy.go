// Package triage holds the static care-urgency policy: what each triage level
// tells the patient to do and how the level is presented.
package triage

// Level is the urgency classification returned by the triage service.
type Level string

const (
	LevelEmergencyAmbulance Level = "emergency_ambulance"
	LevelEmergency          Level = "emergency"
	LevelConsultation6      Level = "consultation_6"
	LevelConsultation24     Level = "consultation_24"
	LevelConsultation       Level = "consultation"
	LevelSelfCare           Level = "self_care"
	LevelNoAction           Level = "no_action"
)

// Display is how a level is labelled for the patient.
type Display struct {
	Label   string `json:"label"`
	Urgency string `json:"urgency"`
	Color   string `json:"color"`
}

type policy struct {
	display         Display
	recommendations []string
}

var policies = map[Level]policy{
	LevelEmergencyAmbulance: {
		display: Display{Label: "Call an ambulance", Urgency: "Immediately", Color: "#b91c1c"},
		recommendations: []string{
			"Call emergency services (112 / 911) now.",
			"Do not drive yourself to the hospital.",
			"Stay with someone until help arrives and keep your phone nearby.",
			"Have a list of your current medications ready for the paramedics.",
		},
	},
	LevelEmergency: {
		display: Display{Label: "Go to the emergency department", Urgency: "Immediately", Color: "#dc2626"},
		recommendations: []string{
			"Go to the nearest emergency department now.",
			"Ask someone to drive you if possible.",
			"Call emergency services if your symptoms get worse on the way.",
		},
	},
	LevelConsultation6: {
		display: Display{Label: "See a doctor urgently", Urgency: "Within 6 hours", Color: "#ea580c"},
		recommendations: []string{
			"Contact a doctor or an urgent care clinic within the next 6 hours.",
			"Call emergency services if your symptoms suddenly worsen.",
			"Avoid strenuous activity until you have been seen.",
		},
	},
	LevelConsultation24: {
		display: Display{Label: "See a doctor soon", Urgency: "Within 24 hours", Color: "#d97706"},
		recommendations: []string{
			"Book an appointment with your doctor within the next 24 hours.",
			"Monitor your symptoms and note any changes.",
			"Seek urgent care if your symptoms worsen.",
		},
	},
	LevelConsultation: {
		display: Display{Label: "Consult a doctor", Urgency: "When convenient", Color: "#ca8a04"},
		recommendations: []string{
			"Schedule a visit with your doctor.",
			"Keep a diary of your symptoms until the visit.",
			"Seek care sooner if new symptoms appear.",
		},
	},
	LevelSelfCare: {
		display: Display{Label: "Self-care", Urgency: "No visit needed", Color: "#16a34a"},
		recommendations: []string{
			"Rest and stay well hydrated.",
			"Use over-the-counter remedies as directed if needed.",
			"Consult a doctor if symptoms persist for more than a few days or get worse.",
		},
	},
	LevelNoAction: {
		display: Display{Label: "No action needed", Urgency: "No visit needed", Color: "#15803d"},
		recommendations: []string{
			"No medical action appears to be required.",
			"Repeat the check if your symptoms change.",
		},
	},
}

var fallback = policy{
	display: Display{Label: "Consult a doctor", Urgency: "Unknown", Color: "#6b7280"},
	recommendations: []string{
		"Consult a healthcare professional about your symptoms.",
		"Monitor your symptoms and note any changes.",
		"Call emergency services if you feel your condition is life-threatening.",
	},
}

func lookup(level Level) policy {
	if p, ok := policies[level]; ok {
		return p
	}
	return fallback
}

// Recommendations returns the ordered instructions for level. Unknown levels
// get the generic list. The returned slice is a copy.
func Recommendations(level Level) []string {
	recs := lookup(level).recommendations
	out := make([]string, len(recs))
	copy(out, recs)
	return out
}

// Presentation returns the display entry for level.
func Presentation(level Level) Display {
	return lookup(level).display
}

// Known reports whether level has its own entry in the policy table.
func Known(level Level) bool {
	_, ok := policies[level]
	return ok
}

// IsEmergency reports whether level asks the patient to seek care immediately.
func IsEmergency(level Level) bool {
	return level == LevelEmergency || level == LevelEmergencyAmbulance
}
