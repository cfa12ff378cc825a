package interview

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	apperrors "symptom-interview/pkg/errors"
)

// AssessmentStore persists finished assessments.
type AssessmentStore interface {
	Save(ctx context.Context, a Assessment) (uuid.UUID, error)
	Get(ctx context.Context, id uuid.UUID) (*Assessment, error)
	List(ctx context.Context) ([]Assessment, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// Recorder snapshots finished sessions and hands them to the store. A failed
// persist never touches the session it was recorded from.
type Recorder struct {
	store AssessmentStore
	now   func() time.Time
}

func NewRecorder(store AssessmentStore) *Recorder {
	return &Recorder{
		store: store,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// Record builds an Assessment from a session in the Done state. The result
// shares no memory with the session.
func (r *Recorder) Record(s *Session) (Assessment, error) {
	if s.State != StateDone {
		return Assessment{}, apperrors.NewValidationError(fmt.Sprintf("only finished sessions can be recorded, session is %s", s.State))
	}
	if s.Profile == nil {
		return Assessment{}, apperrors.NewValidationError("finished session has no profile")
	}

	a := Assessment{
		ID:              uuid.New(),
		SessionID:       s.ID,
		Profile:         *s.Profile,
		Evidence:        s.Evidence.Snapshot(),
		Conditions:      cloneConditions(s.Conditions),
		Recommendations: RecommendationsFor(s.Triage),
		CreatedAt:       r.now(),
	}
	if s.Triage != nil {
		t := *s.Triage
		a.Triage = &t
	}
	return a, nil
}

// Persist saves a recorded assessment and returns its id. It may be retried.
func (r *Recorder) Persist(ctx context.Context, a Assessment) (uuid.UUID, error) {
	id, err := r.store.Save(ctx, a)
	if err != nil {
		if apperrors.IsType(err, apperrors.ErrorTypePersistence) {
			return uuid.Nil, err
		}
		return uuid.Nil, apperrors.NewPersistenceError("failed to save assessment", err)
	}
	return id, nil
}
