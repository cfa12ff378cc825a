package interview

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"symptom-interview/internal/triage"
	apperrors "symptom-interview/pkg/errors"
)

// reportTimeout bounds background delivery of one clinician report.
var reportTimeout = 90 * time.Second

// Engine is the external reasoning service: diagnosis and triage share one request shape.
type Engine interface {
	DiagnosisEngine
	TriageEngine
}

// ReportService renders assessments and delivers them to a clinician.
type ReportService interface {
	Render(a Assessment) ([]byte, error)
	SendDoctorReport(ctx context.Context, a Assessment) error
}

type Service interface {
	CreateSession(ctx context.Context) (SessionView, error)
	GetSession(ctx context.Context, id uuid.UUID) (SessionView, error)
	ConfirmProfile(ctx context.Context, id uuid.UUID, p Profile) (SessionView, error)
	AddEvidence(ctx context.Context, id uuid.UUID, symptomID string, choice Choice) (SessionView, error)
	RemoveEvidence(ctx context.Context, id uuid.UUID, symptomID string) (SessionView, error)
	StartInterview(ctx context.Context, id uuid.UUID) (SessionView, error)
	Act(ctx context.Context, id uuid.UUID, a Action) (SessionView, error)
	ResolveTriage(ctx context.Context, id uuid.UUID) (SessionView, error)
	Reset(ctx context.Context, id uuid.UUID) (SessionView, error)

	SaveAssessment(ctx context.Context, id uuid.UUID) (*Assessment, error)
	ListAssessments(ctx context.Context) ([]Assessment, error)
	GetAssessment(ctx context.Context, id uuid.UUID) (*Assessment, error)
	DeleteAssessment(ctx context.Context, id uuid.UUID) error
	RenderReport(ctx context.Context, id uuid.UUID) ([]byte, error)
}

type service struct {
	engine       Engine
	resolver     *TriageResolver
	recorder     *Recorder
	store        AssessmentStore
	reportSvc    ReportService
	maxQuestions int
	logger       zerolog.Logger

	mu       sync.RWMutex
	sessions map[uuid.UUID]*Controller
}

// NewService wires the interview engine. reportSvc may be nil, in which case
// reports are neither rendered nor delivered.
func NewService(engine Engine, store AssessmentStore, reportSvc ReportService, maxQuestions int, logger zerolog.Logger) Service {
	if maxQuestions <= 0 {
		maxQuestions = DefaultMaxQuestions
	}
	return &service{
		engine:       engine,
		resolver:     NewTriageResolver(engine),
		recorder:     NewRecorder(store),
		store:        store,
		reportSvc:    reportSvc,
		maxQuestions: maxQuestions,
		logger:       logger,
		sessions:     make(map[uuid.UUID]*Controller),
	}
}

func (s *service) controller(id uuid.UUID) (*Controller, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.sessions[id]
	if !ok {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("session %s not found", id))
	}
	return c, nil
}

func (s *service) CreateSession(ctx context.Context) (SessionView, error) {
	sess := NewSession(s.maxQuestions)
	c := NewController(sess, s.engine, s.logger)

	s.mu.Lock()
	s.sessions[sess.ID] = c
	s.mu.Unlock()

	s.logger.Info().Str("session_id", sess.ID.String()).Msg("session created")
	return c.View(), nil
}

func (s *service) GetSession(ctx context.Context, id uuid.UUID) (SessionView, error) {
	c, err := s.controller(id)
	if err != nil {
		return SessionView{}, err
	}
	return c.View(), nil
}

func (s *service) ConfirmProfile(ctx context.Context, id uuid.UUID, p Profile) (SessionView, error) {
	return s.mutate(id, func(c *Controller) error { return c.ConfirmProfile(p) })
}

func (s *service) AddEvidence(ctx context.Context, id uuid.UUID, symptomID string, choice Choice) (SessionView, error) {
	return s.mutate(id, func(c *Controller) error { return c.AddEvidence(symptomID, choice) })
}

func (s *service) RemoveEvidence(ctx context.Context, id uuid.UUID, symptomID string) (SessionView, error) {
	return s.mutate(id, func(c *Controller) error { return c.RemoveEvidence(symptomID) })
}

func (s *service) StartInterview(ctx context.Context, id uuid.UUID) (SessionView, error) {
	return s.mutate(id, func(c *Controller) error { return c.StartAndComplete(ctx) })
}

func (s *service) Act(ctx context.Context, id uuid.UUID, a Action) (SessionView, error) {
	return s.mutate(id, func(c *Controller) error { return c.ActAndComplete(ctx, a) })
}

func (s *service) ResolveTriage(ctx context.Context, id uuid.UUID) (SessionView, error) {
	return s.mutate(id, func(c *Controller) error { return c.ResolveTriage(ctx, s.resolver) })
}

func (s *service) Reset(ctx context.Context, id uuid.UUID) (SessionView, error) {
	return s.mutate(id, func(c *Controller) error { return c.Reset() })
}

// mutate runs fn and returns the session view even when fn fails, so callers
// can show the error attached to the session.
func (s *service) mutate(id uuid.UUID, fn func(c *Controller) error) (SessionView, error) {
	c, err := s.controller(id)
	if err != nil {
		return SessionView{}, err
	}
	err = fn(c)
	return c.View(), err
}

// SaveAssessment records the finished session and persists it. Delivery of
// the clinician report runs in the background and never fails the save.
func (s *service) SaveAssessment(ctx context.Context, id uuid.UUID) (*Assessment, error) {
	c, err := s.controller(id)
	if err != nil {
		return nil, err
	}
	a, err := c.Record(s.recorder)
	if err != nil {
		return nil, err
	}

	savedID, err := s.recorder.Persist(ctx, a)
	if err != nil {
		s.logger.Error().Err(err).Str("session_id", id.String()).Msg("failed to persist assessment")
		return nil, err
	}
	a.ID = savedID
	s.logger.Info().
		Str("session_id", id.String()).
		Str("assessment_id", savedID.String()).
		Msg("assessment saved")

	if s.reportSvc != nil {
		go func(a Assessment) {
			bgCtx, cancel := context.WithTimeout(context.Background(), reportTimeout)
			defer cancel()
			logger := s.logger.With().Str("assessment_id", a.ID.String()).Logger()
			if a.Triage != nil && triage.IsEmergency(a.Triage.Level) {
				logger.Warn().Str("level", string(a.Triage.Level)).Msg("emergency triage, notifying clinician")
			}
			if err := s.reportSvc.SendDoctorReport(bgCtx, a); err != nil {
				logger.Error().Err(err).Msg("failed to send report")
				return
			}
			logger.Info().Msg("report sent")
		}(a)
	}
	return &a, nil
}

func (s *service) ListAssessments(ctx context.Context) ([]Assessment, error) {
	list, err := s.store.List(ctx)
	if err != nil {
		return nil, wrapPersistence("failed to list assessments", err)
	}
	return list, nil
}

func (s *service) GetAssessment(ctx context.Context, id uuid.UUID) (*Assessment, error) {
	a, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, wrapPersistence("failed to load assessment", err)
	}
	return a, nil
}

func (s *service) DeleteAssessment(ctx context.Context, id uuid.UUID) error {
	if err := s.store.Delete(ctx, id); err != nil {
		return wrapPersistence("failed to delete assessment", err)
	}
	s.logger.Info().Str("assessment_id", id.String()).Msg("assessment deleted")
	return nil
}

func (s *service) RenderReport(ctx context.Context, id uuid.UUID) ([]byte, error) {
	if s.reportSvc == nil {
		return nil, apperrors.NewNotFoundError("reports are not enabled")
	}
	a, err := s.GetAssessment(ctx, id)
	if err != nil {
		return nil, err
	}
	pdf, err := s.reportSvc.Render(*a)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to render report", err)
	}
	return pdf, nil
}

// wrapPersistence keeps typed store errors (not found) and marks the rest as persistence failures.
func wrapPersistence(msg string, err error) error {
	t := apperrors.TypeOf(err)
	if t == apperrors.ErrorTypeNotFound || t == apperrors.ErrorTypePersistence {
		return err
	}
	return apperrors.NewPersistenceError(msg, err)
}
