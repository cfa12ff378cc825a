package storage

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"symptom-interview/internal/interview"
	apperrors "symptom-interview/pkg/errors"
)

// MemoryStore keeps assessments in process memory.
type MemoryStore struct {
	mu          sync.RWMutex
	assessments map[uuid.UUID]interview.Assessment
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		assessments: make(map[uuid.UUID]interview.Assessment),
	}
}

// Save stores a copy of a. Saving the same id twice replaces the first copy.
func (s *MemoryStore) Save(ctx context.Context, a interview.Assessment) (uuid.UUID, error) {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.assessments[a.ID] = cloneAssessment(a)
	return a.ID, nil
}

func (s *MemoryStore) Get(ctx context.Context, id uuid.UUID) (*interview.Assessment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.assessments[id]
	if !ok {
		return nil, apperrors.NewNotFoundError("assessment not found")
	}
	out := cloneAssessment(a)
	return &out, nil
}

// List returns all assessments, newest first.
func (s *MemoryStore) List(ctx context.Context) ([]interview.Assessment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]interview.Assessment, 0, len(s.assessments))
	for _, a := range s.assessments {
		result = append(result, cloneAssessment(a))
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

func (s *MemoryStore) Delete(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.assessments[id]; !ok {
		return apperrors.NewNotFoundError("assessment not found")
	}
	delete(s.assessments, id)
	return nil
}

func cloneAssessment(a interview.Assessment) interview.Assessment {
	out := a
	out.Evidence = cloneSlice(a.Evidence)
	out.Conditions = cloneSlice(a.Conditions)
	out.Recommendations = cloneSlice(a.Recommendations)
	if a.Triage != nil {
		t := *a.Triage
		out.Triage = &t
	}
	return out
}

func cloneSlice[T any](in []T) []T {
	if in == nil {
		return nil
	}
	out := make([]T, len(in))
	copy(out, in)
	return out
}
