package storage

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"symptom-interview/internal/interview"
	"symptom-interview/internal/triage"
	apperrors "symptom-interview/pkg/errors"
)

func sampleAssessment(created time.Time) interview.Assessment {
	return interview.Assessment{
		ID:        uuid.New(),
		SessionID: uuid.New(),
		Profile:   interview.Profile{Name: "Ada", Age: 41, Sex: interview.SexFemale},
		Evidence: []interview.Evidence{
			{SymptomID: "s_1193", Choice: interview.ChoicePresent, Source: interview.SourceInitial},
			{SymptomID: "s_102", Choice: interview.ChoiceAbsent, Source: interview.SourceSuggested},
		},
		Conditions: []interview.Condition{
			{ID: "c_87", Name: "Influenza", CommonName: "Flu", Probability: 0.61},
		},
		Triage:          &interview.TriageResult{Level: triage.LevelConsultation, Description: "See a doctor"},
		Recommendations: triage.Recommendations(triage.LevelConsultation),
		CreatedAt:       created.UTC(),
	}
}

func TestMemoryStoreRoundTrip(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	a := sampleAssessment(time.Now())

	id, err := s.Save(ctx, a)
	require.NoError(t, err)
	assert.Equal(t, a.ID, id)

	got, err := s.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, a, *got)

	got.Evidence[0].Choice = interview.ChoiceUnknown
	got.Triage.Level = triage.LevelEmergency
	again, err := s.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, a, *again, "returned copies must not alias stored data")
}

func TestMemoryStoreListNewestFirst(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	base := time.Now()
	older := sampleAssessment(base.Add(-time.Hour))
	newer := sampleAssessment(base)

	_, err := s.Save(ctx, older)
	require.NoError(t, err)
	_, err = s.Save(ctx, newer)
	require.NoError(t, err)

	list, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, newer.ID, list[0].ID)
	assert.Equal(t, older.ID, list[1].ID)
}

func TestMemoryStoreSaveIsIdempotent(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	a := sampleAssessment(time.Now())

	_, err := s.Save(ctx, a)
	require.NoError(t, err)
	_, err = s.Save(ctx, a)
	require.NoError(t, err)

	list, err := s.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestMemoryStoreNotFound(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	_, err := s.Get(ctx, uuid.New())
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeNotFound))

	err = s.Delete(ctx, uuid.New())
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeNotFound))
}

func TestMemoryStoreDelete(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	a := sampleAssessment(time.Now())
	_, err := s.Save(ctx, a)
	require.NoError(t, err)

	require.NoError(t, s.Delete(ctx, a.ID))

	_, err = s.Get(ctx, a.ID)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeNotFound))
}
