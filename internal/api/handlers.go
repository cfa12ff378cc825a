package api

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"symptom-interview/internal/interview"
	apperrors "symptom-interview/pkg/errors"
)

// --- Health ---

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
}

// --- Sessions ---

func pathID(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		return uuid.Nil, apperrors.NewValidationError(fmt.Sprintf("invalid %s", name))
	}
	return id, nil
}

// sessionResponse writes the view even when the operation failed, so clients
// can render the error alongside the unchanged session.
type sessionResponse struct {
	Session interview.SessionView `json:"session"`
	Error   *errorResponse        `json:"error,omitempty"`
}

func (s *Server) writeSession(w http.ResponseWriter, r *http.Request, status int, view interview.SessionView, err error) {
	if err == nil {
		writeJSON(w, r, status, sessionResponse{Session: view})
		return
	}
	if view.ID == uuid.Nil {
		writeError(w, r, err)
		return
	}
	status, body := describeError(r, err)
	writeJSON(w, r, status, sessionResponse{Session: view, Error: &body})
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	view, err := s.svc.CreateSession(r.Context())
	s.writeSession(w, r, http.StatusCreated, view, err)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	view, err := s.svc.GetSession(r.Context(), id)
	s.writeSession(w, r, http.StatusOK, view, err)
}

type profileRequest struct {
	Name string `json:"name"`
	Age  int    `json:"age"`
	Sex  string `json:"sex"`
}

func (s *Server) handleConfirmProfile(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req profileRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	view, err := s.svc.ConfirmProfile(r.Context(), id, interview.Profile{
		Name: strings.TrimSpace(req.Name),
		Age:  req.Age,
		Sex:  interview.Sex(strings.ToLower(req.Sex)),
	})
	s.writeSession(w, r, http.StatusOK, view, err)
}

type evidenceRequest struct {
	SymptomID string `json:"symptom_id"`
	Choice    string `json:"choice,omitempty"`
}

func (s *Server) handleAddEvidence(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req evidenceRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	view, err := s.svc.AddEvidence(r.Context(), id, req.SymptomID, interview.Choice(req.Choice))
	s.writeSession(w, r, http.StatusOK, view, err)
}

func (s *Server) handleRemoveEvidence(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	view, err := s.svc.RemoveEvidence(r.Context(), id, chi.URLParam(r, "symptomID"))
	s.writeSession(w, r, http.StatusOK, view, err)
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	view, err := s.svc.StartInterview(r.Context(), id)
	s.recordTurn(r, view, err)
	s.writeSession(w, r, http.StatusOK, view, err)
}

func (s *Server) recordTurn(r *http.Request, view interview.SessionView, err error) {
	outcome := "question"
	switch {
	case err != nil:
		outcome = "error"
	case view.State == interview.StateFinalizing, view.State == interview.StateDone:
		outcome = "finalizing"
	}
	s.metrics.RecordTurn(r.Context(), outcome)
}

// actionRequest is the wire form of an interview action.
type actionRequest struct {
	Type      string `json:"type"`
	SymptomID string `json:"symptom_id,omitempty"`
	Choice    string `json:"choice,omitempty"`
}

const (
	actionAnswer        = "answer"
	actionToggle        = "toggle"
	actionContinue      = "continue"
	actionSkipGroup     = "skip_group"
	actionSkipRemaining = "skip_remaining"
)

func (req actionRequest) toAction() (interview.Action, error) {
	switch req.Type {
	case actionAnswer:
		return interview.Answer{SymptomID: req.SymptomID, Choice: interview.Choice(req.Choice)}, nil
	case actionToggle:
		return interview.Toggle{SymptomID: req.SymptomID, Choice: interview.Choice(req.Choice)}, nil
	case actionContinue:
		return interview.Continue{}, nil
	case actionSkipGroup:
		return interview.SkipGroup{}, nil
	case actionSkipRemaining:
		return interview.SkipRemaining{}, nil
	default:
		return nil, apperrors.NewValidationError(fmt.Sprintf("unknown action type %q", req.Type))
	}
}

func (s *Server) handleAction(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req actionRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	action, err := req.toAction()
	if err != nil {
		writeError(w, r, err)
		return
	}
	view, err := s.svc.Act(r.Context(), id, action)
	s.recordTurn(r, view, err)
	s.writeSession(w, r, http.StatusOK, view, err)
}

func (s *Server) handleTriage(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	view, err := s.svc.ResolveTriage(r.Context(), id)
	s.writeSession(w, r, http.StatusOK, view, err)
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	view, err := s.svc.Reset(r.Context(), id)
	s.writeSession(w, r, http.StatusOK, view, err)
}

// --- Assessments ---

func (s *Server) handleSaveAssessment(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	a, err := s.svc.SaveAssessment(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.metrics.RecordAssessment(r.Context())
	writeJSON(w, r, http.StatusCreated, a)
}

func (s *Server) handleListAssessments(w http.ResponseWriter, r *http.Request) {
	list, err := s.svc.ListAssessments(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	if list == nil {
		list = []interview.Assessment{}
	}
	writeJSON(w, r, http.StatusOK, map[string]any{"assessments": list})
}

func (s *Server) handleGetAssessment(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	a, err := s.svc.GetAssessment(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, a)
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	pdf, err := s.svc.RenderReport(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="report_%s.pdf"`, id))
	w.WriteHeader(http.StatusOK)
	w.Write(pdf)
}

func (s *Server) handleDeleteAssessment(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.svc.DeleteAssessment(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Symptom search ---

func parseAge(raw string) (int, error) {
	age, err := strconv.Atoi(raw)
	if err != nil || age < 1 || age > 130 {
		return 0, apperrors.NewValidationError("age must be an integer between 1 and 130")
	}
	return age, nil
}

func (s *Server) handleSearchSymptoms(w http.ResponseWriter, r *http.Request) {
	age, err := parseAge(r.URL.Query().Get("age"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	res, err := s.search.Search(r.Context(), r.URL.Query().Get("q"), age)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.metrics.RecordSearch(r.Context(), res.Degraded)
	writeJSON(w, r, http.StatusOK, res)
}
