package interview

import (
	"time"

	"github.com/google/uuid"

	"symptom-interview/internal/triage"
	apperrors "symptom-interview/pkg/errors"
)

// DefaultMaxQuestions bounds the number of follow-up questions per session.
const DefaultMaxQuestions = 18

type Sex string

const (
	SexMale   Sex = "male"
	SexFemale Sex = "female"
)

// Profile holds the patient demographics captured at intake.
type Profile struct {
	Name string `json:"name,omitempty"`
	Age  int    `json:"age"`
	Sex  Sex    `json:"sex"`
}

func (p Profile) Validate() error {
	if p.Age < 1 || p.Age > 130 {
		return apperrors.NewValidationError("age must be between 1 and 130")
	}
	if p.Sex != SexMale && p.Sex != SexFemale {
		return apperrors.NewValidationError("sex must be male or female")
	}
	return nil
}

type Symptom struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	CommonName string `json:"common_name,omitempty"`
}

type Choice string

const (
	ChoicePresent Choice = "present"
	ChoiceAbsent  Choice = "absent"
	ChoiceUnknown Choice = "unknown"
)

func (c Choice) Valid() bool {
	return c == ChoicePresent || c == ChoiceAbsent || c == ChoiceUnknown
}

// Source records whether evidence was reported up front or in reply to a question.
type Source string

const (
	SourceInitial   Source = "initial"
	SourceSuggested Source = "suggested"
)

type Evidence struct {
	SymptomID string `json:"id"`
	Choice    Choice `json:"choice"`
	Source    Source `json:"source"`
}

type Condition struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	CommonName  string  `json:"common_name"`
	Probability float64 `json:"probability"`
}

// TriageResult is the urgency classification for a finished session.
type TriageResult struct {
	Level       triage.Level `json:"level"`
	Description string       `json:"description"`
}

// State is a position in the dialogue state machine.
type State string

const (
	StateIntake       State = "intake"
	StateSelecting    State = "selecting"
	StateInterviewing State = "interviewing"
	StateFinalizing   State = "finalizing"
	StateDone         State = "done"
)

// Session is the mutable aggregate for one interview, from intake to completion.
type Session struct {
	ID    uuid.UUID
	State State

	Profile  *Profile
	Evidence *EvidenceStore

	// Question is nil unless the controller is waiting for a reply.
	Question   Question
	Conditions []Condition

	QuestionCount int
	MaxQuestions  int

	// Err holds the last failed remote call; cleared by the next success.
	Err    error
	Triage *TriageResult

	CreatedAt time.Time
	UpdatedAt time.Time
}

func NewSession(maxQuestions int) *Session {
	if maxQuestions <= 0 {
		maxQuestions = DefaultMaxQuestions
	}
	now := time.Now().UTC()
	return &Session{
		ID:           uuid.New(),
		State:        StateIntake,
		Evidence:     NewEvidenceStore(),
		MaxQuestions: maxQuestions,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// DiagnosisRequest is the payload shared by the diagnosis and triage calls.
type DiagnosisRequest struct {
	Sex      Sex
	Age      int
	Evidence []Evidence
}

// DiagnosisResult is one reply from the diagnosis service. Question is nil when
// the service has nothing more to ask.
type DiagnosisResult struct {
	Question   Question
	Conditions []Condition
}

// Assessment is the immutable, persistable export of a finished session.
type Assessment struct {
	ID              uuid.UUID     `json:"id"`
	SessionID       uuid.UUID     `json:"session_id"`
	Profile         Profile       `json:"profile"`
	Evidence        []Evidence    `json:"evidence"`
	Conditions      []Condition   `json:"conditions"`
	Triage          *TriageResult `json:"triage,omitempty"`
	Recommendations []string      `json:"recommendations"`
	CreatedAt       time.Time     `json:"created_at"`
}

// SearchResult is the outcome of a symptom search. Degraded is set when the
// remote suggest call failed and the list is a local fallback.
type SearchResult struct {
	Symptoms []Symptom `json:"symptoms"`
	Degraded bool      `json:"degraded"`
}
