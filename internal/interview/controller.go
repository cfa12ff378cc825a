package interview

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	apperrors "symptom-interview/pkg/errors"
)

// DiagnosisEngine is the diagnosis service as seen by the controller.
type DiagnosisEngine interface {
	Diagnose(ctx context.Context, req DiagnosisRequest) (DiagnosisResult, error)
}

// Controller drives one Session through intake, evidence selection and the
// question loop. Only one operation may be in flight at a time; a second one
// is rejected with a conflict error rather than queued.
type Controller struct {
	session *Session
	engine  DiagnosisEngine
	logger  zerolog.Logger

	busy atomic.Bool
	// mu guards session fields; it is never held across a remote call.
	mu sync.RWMutex
}

func NewController(session *Session, engine DiagnosisEngine, logger zerolog.Logger) *Controller {
	return &Controller{
		session: session,
		engine:  engine,
		logger:  logger.With().Str("session_id", session.ID.String()).Logger(),
	}
}

// Session exposes the aggregate. Callers must not mutate it while an
// operation is running.
func (c *Controller) Session() *Session {
	return c.session
}

func (c *Controller) acquire() error {
	if !c.busy.CompareAndSwap(false, true) {
		return apperrors.NewConflictError("session has an operation in progress")
	}
	return nil
}

func (c *Controller) release() {
	c.busy.Store(false)
}

// pendingTurn is a diagnosis call prepared under the lock and run outside it.
type pendingTurn struct {
	req DiagnosisRequest
	// rollback is the evidence to restore if the call fails; nil when the
	// action did not touch evidence.
	rollback []Evidence
}

func (c *Controller) touch() {
	c.session.UpdatedAt = time.Now().UTC()
}

// ConfirmProfile validates the demographics and moves Intake to Selecting.
func (c *Controller) ConfirmProfile(p Profile) error {
	if err := c.acquire(); err != nil {
		return err
	}
	defer c.release()

	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.session
	if s.State != StateIntake {
		return apperrors.NewValidationError(fmt.Sprintf("profile can only be confirmed during intake, session is %s", s.State))
	}
	if err := p.Validate(); err != nil {
		return err
	}
	profile := p
	profile.Name = strings.TrimSpace(profile.Name)
	s.Profile = &profile
	s.State = StateSelecting
	c.touch()
	return nil
}

// AddEvidence records an initial symptom report while selecting.
func (c *Controller) AddEvidence(symptomID string, choice Choice) error {
	if err := c.acquire(); err != nil {
		return err
	}
	defer c.release()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session.State != StateSelecting {
		return apperrors.NewValidationError("evidence can only be added while selecting symptoms")
	}
	if strings.TrimSpace(symptomID) == "" {
		return apperrors.NewValidationError("symptom id is required")
	}
	if choice == "" {
		choice = ChoicePresent
	}
	if !choice.Valid() {
		return apperrors.NewValidationError(fmt.Sprintf("invalid choice %q", choice))
	}
	c.session.Evidence.Upsert(symptomID, choice, SourceInitial)
	c.touch()
	return nil
}

// RemoveEvidence drops an initial symptom report while selecting.
func (c *Controller) RemoveEvidence(symptomID string) error {
	if err := c.acquire(); err != nil {
		return err
	}
	defer c.release()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session.State != StateSelecting {
		return apperrors.NewValidationError("evidence can only be removed while selecting symptoms")
	}
	if !c.session.Evidence.Remove(symptomID) {
		return apperrors.NewNotFoundError(fmt.Sprintf("no evidence for symptom %s", symptomID))
	}
	c.touch()
	return nil
}

// Start begins the interview. It needs a confirmed profile and at least one
// piece of evidence; both are checked before any call is made. On failure the
// session stays in Selecting so Start can be retried.
func (c *Controller) Start(ctx context.Context) error {
	if err := c.acquire(); err != nil {
		return err
	}
	defer c.release()
	return c.start(ctx)
}

// StartAndComplete starts the interview and, if the first reply already ends
// it, completes the session without releasing the in-flight gate in between.
func (c *Controller) StartAndComplete(ctx context.Context) error {
	if err := c.acquire(); err != nil {
		return err
	}
	defer c.release()
	if err := c.start(ctx); err != nil {
		return err
	}
	c.completeIfFinalizing()
	return nil
}

func (c *Controller) start(ctx context.Context) error {
	c.mu.Lock()
	s := c.session
	var err error
	switch {
	case s.State != StateSelecting:
		err = apperrors.NewValidationError(fmt.Sprintf("interview cannot start from %s", s.State))
	case s.Profile == nil:
		err = apperrors.NewValidationError("patient profile is missing")
	case s.Evidence.Len() == 0:
		err = apperrors.NewValidationError("at least one symptom is required to start the interview")
	}
	if err == nil {
		err = s.Profile.Validate()
	}
	if err != nil {
		c.mu.Unlock()
		return err
	}
	turn := c.prepareTurn(nil)
	c.mu.Unlock()

	if turn == nil {
		return nil
	}
	return c.run(ctx, turn)
}

// Act applies a reply to the presented question and, when the action
// advances, runs the next diagnosis turn. If that call fails the evidence
// change made by the action is undone, so the same action can be sent again.
func (c *Controller) Act(ctx context.Context, a Action) error {
	if err := c.acquire(); err != nil {
		return err
	}
	defer c.release()
	return c.act(ctx, a)
}

// ActAndComplete is Act followed by Complete when the turn ended the
// interview, both under one hold of the in-flight gate.
func (c *Controller) ActAndComplete(ctx context.Context, a Action) error {
	if err := c.acquire(); err != nil {
		return err
	}
	defer c.release()
	if err := c.act(ctx, a); err != nil {
		return err
	}
	c.completeIfFinalizing()
	return nil
}

func (c *Controller) act(ctx context.Context, a Action) error {
	c.mu.Lock()
	turn, err := c.prepareAction(a)
	c.mu.Unlock()
	if err != nil || turn == nil {
		return err
	}
	return c.run(ctx, turn)
}

// prepareAction must be called with mu held.
func (c *Controller) prepareAction(a Action) (*pendingTurn, error) {
	s := c.session
	if s.State != StateInterviewing {
		return nil, apperrors.NewValidationError(fmt.Sprintf("no interview in progress, session is %s", s.State))
	}

	if _, ok := a.(SkipRemaining); ok {
		c.logger.Info().Int("question_count", s.QuestionCount).Msg("remaining questions skipped")
		c.finalize()
		return nil, nil
	}
	if s.Question == nil {
		return nil, apperrors.NewValidationError("no question is awaiting an answer")
	}

	switch q := s.Question.(type) {
	case SingleQuestion:
		ans, ok := a.(Answer)
		if !ok {
			return nil, apperrors.NewValidationError("a single question only accepts an answer")
		}
		if ans.SymptomID != "" && ans.SymptomID != q.Item.ID {
			return nil, apperrors.NewValidationError(fmt.Sprintf("symptom %s is not part of the question", ans.SymptomID))
		}
		if !ans.Choice.Valid() {
			return nil, apperrors.NewValidationError(fmt.Sprintf("invalid choice %q", ans.Choice))
		}
		rollback := s.Evidence.Snapshot()
		s.Evidence.Upsert(q.Item.ID, ans.Choice, SourceSuggested)
		c.touch()
		return c.prepareTurn(rollback), nil

	case GroupSingleQuestion:
		switch act := a.(type) {
		case Answer:
			if !hasItem(q, act.SymptomID) {
				return nil, apperrors.NewValidationError(fmt.Sprintf("symptom %q is not part of the question", act.SymptomID))
			}
			if act.Choice != "" && act.Choice != ChoicePresent {
				return nil, apperrors.NewValidationError("a group_single pick is always present")
			}
			rollback := s.Evidence.Snapshot()
			s.Evidence.Upsert(act.SymptomID, ChoicePresent, SourceSuggested)
			c.touch()
			return c.prepareTurn(rollback), nil
		case SkipGroup:
			// Resubmits the unchanged evidence; the service may ask the same question again.
			c.logger.Debug().Msg("group question skipped")
			return c.prepareTurn(nil), nil
		default:
			return nil, apperrors.NewValidationError("a group_single question accepts an answer or skip")
		}

	case GroupMultipleQuestion:
		switch act := a.(type) {
		case Toggle:
			if !hasItem(q, act.SymptomID) {
				return nil, apperrors.NewValidationError(fmt.Sprintf("symptom %q is not part of the question", act.SymptomID))
			}
			if !act.Choice.Valid() {
				return nil, apperrors.NewValidationError(fmt.Sprintf("invalid choice %q", act.Choice))
			}
			s.Evidence.Upsert(act.SymptomID, act.Choice, SourceSuggested)
			c.touch()
			return nil, nil
		case Continue:
			return c.prepareTurn(nil), nil
		default:
			return nil, apperrors.NewValidationError("a group_multiple question accepts toggles and continue")
		}

	default:
		return nil, apperrors.NewInternalError(fmt.Sprintf("unhandled question variant %T", q), nil)
	}
}

// prepareTurn applies the question bound before calling out. It returns nil
// when the bound is already reached and the session has been finalized.
// Must be called with mu held.
func (c *Controller) prepareTurn(rollback []Evidence) *pendingTurn {
	s := c.session
	if s.QuestionCount >= s.MaxQuestions {
		c.logger.Info().Int("question_count", s.QuestionCount).Msg("question limit reached, finalizing")
		c.finalize()
		return nil
	}
	return &pendingTurn{
		req: DiagnosisRequest{
			Sex:      s.Profile.Sex,
			Age:      s.Profile.Age,
			Evidence: s.Evidence.Snapshot(),
		},
		rollback: rollback,
	}
}

func (c *Controller) run(ctx context.Context, turn *pendingTurn) error {
	res, err := c.engine.Diagnose(ctx, turn.req)

	c.mu.Lock()
	defer c.mu.Unlock()

	if err != nil {
		if turn.rollback != nil {
			c.session.Evidence.Restore(turn.rollback)
		}
		c.session.Err = err
		c.touch()
		c.logger.Warn().Err(err).Int("question_count", c.session.QuestionCount).Msg("diagnosis call failed")
		return err
	}
	c.apply(res)
	return nil
}

// apply folds a diagnosis reply into the session. Must be called with mu held.
func (c *Controller) apply(res DiagnosisResult) {
	s := c.session
	s.Err = nil
	s.Conditions = cloneConditions(res.Conditions)
	c.touch()

	if res.Question != nil && res.Question.Text() != "" && s.QuestionCount < s.MaxQuestions {
		s.QuestionCount++
		s.Question = res.Question
		s.State = StateInterviewing
		c.logger.Debug().
			Int("question_count", s.QuestionCount).
			Str("question_type", string(res.Question.Type())).
			Msg("question presented")
		return
	}
	if res.Question != nil {
		c.logger.Info().Int("question_count", s.QuestionCount).Msg("question limit reached, discarding question")
	}
	c.finalize()
}

// finalize must be called with mu held.
func (c *Controller) finalize() {
	c.session.Question = nil
	c.session.State = StateFinalizing
	c.touch()
}

// Complete moves Finalizing to Done, freezing the condition list.
func (c *Controller) Complete() error {
	if err := c.acquire(); err != nil {
		return err
	}
	defer c.release()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session.State != StateFinalizing {
		return apperrors.NewValidationError(fmt.Sprintf("session cannot complete from %s", c.session.State))
	}
	c.complete()
	return nil
}

func (c *Controller) completeIfFinalizing() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session.State == StateFinalizing {
		c.complete()
	}
}

// complete must be called with mu held.
func (c *Controller) complete() {
	c.session.State = StateDone
	c.touch()
	c.logger.Info().Int("conditions", len(c.session.Conditions)).Msg("interview completed")
}

// ResolveTriage asks the triage service for an urgency level. It may be
// repeated; each success overwrites the stored result.
func (c *Controller) ResolveTriage(ctx context.Context, resolver *TriageResolver) error {
	if err := c.acquire(); err != nil {
		return err
	}
	defer c.release()

	c.mu.RLock()
	s := c.session
	if s.State != StateDone {
		state := s.State
		c.mu.RUnlock()
		return apperrors.NewValidationError(fmt.Sprintf("triage requires a finished interview, session is %s", state))
	}
	profile := *s.Profile
	evidence := s.Evidence.Snapshot()
	c.mu.RUnlock()

	result, err := resolver.Resolve(ctx, profile, evidence)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		s.Err = err
		c.touch()
		c.logger.Warn().Err(err).Msg("triage call failed")
		return err
	}
	s.Err = nil
	s.Triage = &result
	c.touch()
	return nil
}

// Record snapshots a finished session for persistence.
func (c *Controller) Record(recorder *Recorder) (Assessment, error) {
	if err := c.acquire(); err != nil {
		return Assessment{}, err
	}
	defer c.release()

	c.mu.RLock()
	defer c.mu.RUnlock()
	return recorder.Record(c.session)
}

// Reset returns the session to Intake with everything cleared.
func (c *Controller) Reset() error {
	if err := c.acquire(); err != nil {
		return err
	}
	defer c.release()

	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.session
	s.State = StateIntake
	s.Profile = nil
	s.Evidence.Clear()
	s.Question = nil
	s.Conditions = nil
	s.QuestionCount = 0
	s.Err = nil
	s.Triage = nil
	c.touch()
	c.logger.Info().Msg("session reset")
	return nil
}

// View returns a read-only copy of the session.
func (c *Controller) View() SessionView {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return newSessionView(c.session, c.busy.Load())
}

func cloneConditions(in []Condition) []Condition {
	if in == nil {
		return []Condition{}
	}
	out := make([]Condition, len(in))
	copy(out, in)
	return out
}
