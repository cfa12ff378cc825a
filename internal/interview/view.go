package interview

import (
	"time"

	"github.com/google/uuid"

	"symptom-interview/internal/triage"
)

// SessionView is the JSON shape of a session returned to clients.
type SessionView struct {
	ID            uuid.UUID     `json:"id"`
	State         State         `json:"state"`
	Profile       *Profile      `json:"profile,omitempty"`
	Evidence      []Evidence    `json:"evidence"`
	Question      *QuestionView `json:"question,omitempty"`
	Conditions    []Condition   `json:"conditions"`
	QuestionCount int           `json:"question_count"`
	MaxQuestions  int           `json:"max_questions"`
	Error         string        `json:"error,omitempty"`
	Triage        *TriageView   `json:"triage,omitempty"`
	Pending       bool          `json:"pending"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

type QuestionView struct {
	Text  string         `json:"text"`
	Type  QuestionType   `json:"type"`
	Items []QuestionItem `json:"items"`
}

type TriageView struct {
	Level           triage.Level   `json:"level"`
	Description     string         `json:"description"`
	Display         triage.Display `json:"display"`
	Recommendations []string       `json:"recommendations"`
}

func newTriageView(t TriageResult) *TriageView {
	return &TriageView{
		Level:           t.Level,
		Description:     t.Description,
		Display:         triage.Presentation(t.Level),
		Recommendations: triage.Recommendations(t.Level),
	}
}

func newSessionView(s *Session, pending bool) SessionView {
	v := SessionView{
		ID:            s.ID,
		State:         s.State,
		Evidence:      s.Evidence.Snapshot(),
		Conditions:    cloneConditions(s.Conditions),
		QuestionCount: s.QuestionCount,
		MaxQuestions:  s.MaxQuestions,
		Pending:       pending,
		UpdatedAt:     s.UpdatedAt,
	}
	if s.Profile != nil {
		p := *s.Profile
		v.Profile = &p
	}
	if s.Question != nil {
		v.Question = &QuestionView{
			Text:  s.Question.Text(),
			Type:  s.Question.Type(),
			Items: s.Question.Items(),
		}
	}
	if s.Err != nil {
		v.Error = s.Err.Error()
	}
	if s.Triage != nil {
		v.Triage = newTriageView(*s.Triage)
	}
	return v
}
