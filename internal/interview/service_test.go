package interview

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"symptom-interview/internal/triage"
	apperrors "symptom-interview/pkg/errors"
)

// Mocks

type MockAssessmentStore struct {
	mock.Mock
}

func (m *MockAssessmentStore) Save(ctx context.Context, a Assessment) (uuid.UUID, error) {
	args := m.Called(ctx, a)
	return args.Get(0).(uuid.UUID), args.Error(1)
}

func (m *MockAssessmentStore) Get(ctx context.Context, id uuid.UUID) (*Assessment, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Assessment), args.Error(1)
}

func (m *MockAssessmentStore) List(ctx context.Context) ([]Assessment, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]Assessment), args.Error(1)
}

func (m *MockAssessmentStore) Delete(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

type MockReportService struct {
	mock.Mock
	sent chan Assessment
}

func (m *MockReportService) Render(a Assessment) ([]byte, error) {
	args := m.Called(a)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

func (m *MockReportService) SendDoctorReport(ctx context.Context, a Assessment) error {
	args := m.Called(ctx, a)
	if m.sent != nil {
		m.sent <- a
	}
	return args.Error(0)
}

// Tests

func finishedSession(t *testing.T, svc Service, engine *scriptedEngine) uuid.UUID {
	t.Helper()
	ctx := context.Background()
	engine.push(DiagnosisResult{Question: singleAbout("s_102"), Conditions: fluConditions}, nil).
		push(DiagnosisResult{Conditions: fluConditions}, nil)

	view, err := svc.CreateSession(ctx)
	require.NoError(t, err)
	id := view.ID

	_, err = svc.ConfirmProfile(ctx, id, adultMale)
	require.NoError(t, err)
	_, err = svc.AddEvidence(ctx, id, "s_1193", ChoicePresent)
	require.NoError(t, err)
	view, err = svc.StartInterview(ctx, id)
	require.NoError(t, err)
	require.Equal(t, StateInterviewing, view.State)
	require.NotNil(t, view.Question)
	assert.Equal(t, QuestionSingle, view.Question.Type)

	view, err = svc.Act(ctx, id, Answer{Choice: ChoicePresent})
	require.NoError(t, err)
	require.Equal(t, StateDone, view.State, "service completes a finalizing session")
	return id
}

func TestService_InterviewToAssessment(t *testing.T) {
	t.Run("saves assessment and notifies clinician", func(t *testing.T) {
		// Arrange
		engine := &scriptedEngine{triage: TriageResult{Level: triage.LevelEmergencyAmbulance, Description: "Call an ambulance"}}
		store := new(MockAssessmentStore)
		reports := &MockReportService{sent: make(chan Assessment, 1)}
		svc := NewService(engine, store, reports, 0, zerolog.Nop())
		ctx := context.Background()
		id := finishedSession(t, svc, engine)

		view, err := svc.ResolveTriage(ctx, id)
		require.NoError(t, err)
		require.NotNil(t, view.Triage)

		savedID := uuid.New()
		store.On("Save", mock.Anything, mock.MatchedBy(func(a Assessment) bool {
			return a.SessionID == id &&
				a.Triage != nil && a.Triage.Level == triage.LevelEmergencyAmbulance &&
				len(a.Evidence) == 2 &&
				a.Recommendations[0] == triage.Recommendations(triage.LevelEmergencyAmbulance)[0]
		})).Return(savedID, nil)
		reports.On("SendDoctorReport", mock.Anything, mock.Anything).Return(nil)

		// Act
		a, err := svc.SaveAssessment(ctx, id)

		// Assert
		require.NoError(t, err)
		assert.Equal(t, savedID, a.ID)
		assert.Equal(t, fluConditions, a.Conditions)
		select {
		case sent := <-reports.sent:
			assert.Equal(t, savedID, sent.ID)
		case <-time.After(2 * time.Second):
			t.Fatal("report was not sent")
		}
		store.AssertExpectations(t)
	})

	t.Run("persistence failure leaves session intact", func(t *testing.T) {
		engine := &scriptedEngine{}
		store := new(MockAssessmentStore)
		svc := NewService(engine, store, nil, 0, zerolog.Nop())
		ctx := context.Background()
		id := finishedSession(t, svc, engine)
		before, err := svc.GetSession(ctx, id)
		require.NoError(t, err)

		store.On("Save", mock.Anything, mock.Anything).Return(uuid.Nil, errors.New("connection refused")).Once()

		_, err = svc.SaveAssessment(ctx, id)

		require.Error(t, err)
		assert.True(t, apperrors.IsType(err, apperrors.ErrorTypePersistence))
		after, err := svc.GetSession(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, before, after)

		store.On("Save", mock.Anything, mock.Anything).Return(uuid.New(), nil).Once()
		_, err = svc.SaveAssessment(ctx, id)
		assert.NoError(t, err)
	})

	t.Run("rejects saving an unfinished session", func(t *testing.T) {
		store := new(MockAssessmentStore)
		svc := NewService(&scriptedEngine{}, store, nil, 0, zerolog.Nop())
		ctx := context.Background()
		view, err := svc.CreateSession(ctx)
		require.NoError(t, err)

		_, err = svc.SaveAssessment(ctx, view.ID)

		assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeValidation))
		store.AssertNotCalled(t, "Save")
	})
}

func TestService_NetworkErrorIsReportedWithSession(t *testing.T) {
	engine := (&scriptedEngine{}).push(DiagnosisResult{}, apperrors.NewNetworkError("diagnosis call failed", errors.New("503")))
	svc := NewService(engine, new(MockAssessmentStore), nil, 0, zerolog.Nop())
	ctx := context.Background()
	view, _ := svc.CreateSession(ctx)
	_, err := svc.ConfirmProfile(ctx, view.ID, adultMale)
	require.NoError(t, err)
	_, err = svc.AddEvidence(ctx, view.ID, "s_1193", "")
	require.NoError(t, err)

	view, err = svc.StartInterview(ctx, view.ID)

	require.Error(t, err)
	assert.Equal(t, StateSelecting, view.State)
	assert.Contains(t, view.Error, "diagnosis call failed")
	assert.Equal(t, ChoicePresent, view.Evidence[0].Choice)
}

func TestService_UnknownSession(t *testing.T) {
	svc := NewService(&scriptedEngine{}, new(MockAssessmentStore), nil, 0, zerolog.Nop())

	_, err := svc.GetSession(context.Background(), uuid.New())

	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeNotFound))
}

func TestService_AssessmentQueries(t *testing.T) {
	store := new(MockAssessmentStore)
	reports := new(MockReportService)
	svc := NewService(&scriptedEngine{}, store, reports, 0, zerolog.Nop())
	ctx := context.Background()
	a := &Assessment{ID: uuid.New(), Profile: adultMale}

	store.On("List", mock.Anything).Return([]Assessment{*a}, nil)
	store.On("Get", mock.Anything, a.ID).Return(a, nil)
	store.On("Delete", mock.Anything, a.ID).Return(errors.New("db down"))
	reports.On("Render", *a).Return([]byte("%PDF-1.4"), nil)

	list, err := svc.ListAssessments(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	pdf, err := svc.RenderReport(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, []byte("%PDF-1.4"), pdf)

	err = svc.DeleteAssessment(ctx, a.ID)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypePersistence))
}

type deliveryResult struct {
	hadDeadline bool
	err         error
}

// stalledReports never delivers; it waits for its context to end.
type stalledReports struct {
	done chan deliveryResult
}

func (r *stalledReports) Render(a Assessment) ([]byte, error) {
	return nil, nil
}

func (r *stalledReports) SendDoctorReport(ctx context.Context, a Assessment) error {
	_, ok := ctx.Deadline()
	<-ctx.Done()
	r.done <- deliveryResult{hadDeadline: ok, err: ctx.Err()}
	return ctx.Err()
}

func TestService_StalledReportDeliveryTimesOut(t *testing.T) {
	prev := reportTimeout
	reportTimeout = 50 * time.Millisecond
	t.Cleanup(func() { reportTimeout = prev })

	engine := &scriptedEngine{}
	store := new(MockAssessmentStore)
	reports := &stalledReports{done: make(chan deliveryResult, 1)}
	svc := NewService(engine, store, reports, 0, zerolog.Nop())
	id := finishedSession(t, svc, engine)
	store.On("Save", mock.Anything, mock.Anything).Return(uuid.New(), nil)

	_, err := svc.SaveAssessment(context.Background(), id)
	require.NoError(t, err)

	select {
	case res := <-reports.done:
		assert.True(t, res.hadDeadline)
		assert.ErrorIs(t, res.err, context.DeadlineExceeded)
	case <-time.After(2 * time.Second):
		t.Fatal("report delivery was not cancelled")
	}
}

func TestService_FinalTurnCompletesWithoutFinalizingGap(t *testing.T) {
	engine := &blockingEngine{entered: make(chan struct{}), release: make(chan struct{})}
	svc := NewService(engine, new(MockAssessmentStore), nil, 0, zerolog.Nop())
	ctx := context.Background()
	view, err := svc.CreateSession(ctx)
	require.NoError(t, err)
	id := view.ID
	_, err = svc.ConfirmProfile(ctx, id, adultMale)
	require.NoError(t, err)
	_, err = svc.AddEvidence(ctx, id, "s_1193", ChoicePresent)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := svc.StartInterview(ctx, id)
		done <- err
	}()
	<-engine.entered

	_, err = svc.Reset(ctx, id)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeConflict))

	close(engine.release)
	require.NoError(t, <-done)
	view, err = svc.GetSession(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, StateDone, view.State)
	assert.False(t, view.Pending)
}
