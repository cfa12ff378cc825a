// Package api exposes the interview service over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"symptom-interview/internal/interview"
	"symptom-interview/internal/observability"
	"symptom-interview/internal/symptom"
	apperrors "symptom-interview/pkg/errors"
)

// Server is the HTTP API server.
type Server struct {
	svc      interview.Service
	search   symptom.Searcher
	debounce time.Duration
	metrics  *observability.Metrics
	logger   zerolog.Logger

	router chi.Router
	server *http.Server
}

// Options configures a Server.
type Options struct {
	Addr     string
	Debounce time.Duration
	// Metrics may be nil.
	Metrics *observability.Metrics
}

// New creates the API server and registers its routes.
func New(svc interview.Service, search symptom.Searcher, opts Options, logger zerolog.Logger) *Server {
	debounce := opts.Debounce
	if debounce <= 0 {
		debounce = symptom.DefaultDebounce
	}
	s := &Server{
		svc:      svc,
		search:   search,
		debounce: debounce,
		metrics:  opts.Metrics,
		logger:   logger,
	}
	s.router = s.routes()
	s.server = &http.Server{
		Addr:         opts.Addr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(observability.HTTPMiddleware(s.metrics))
	r.Use(observability.RequestLogger(s.logger))
	r.Use(middleware.Recoverer)
	r.Use(cors)

	r.Get("/healthz", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Get("/healthz", s.handleHealth)

		r.Post("/sessions", s.handleCreateSession)
		r.Route("/sessions/{id}", func(r chi.Router) {
			r.Get("/", s.handleGetSession)
			r.Put("/profile", s.handleConfirmProfile)
			r.Post("/evidence", s.handleAddEvidence)
			r.Delete("/evidence/{symptomID}", s.handleRemoveEvidence)
			r.Post("/start", s.handleStart)
			r.Post("/actions", s.handleAction)
			r.Post("/triage", s.handleTriage)
			r.Post("/assessment", s.handleSaveAssessment)
			r.Post("/reset", s.handleReset)
		})

		r.Get("/symptoms", s.handleSearchSymptoms)
		r.Get("/symptoms/ws", s.handleSearchWebSocket)

		r.Get("/assessments", s.handleListAssessments)
		r.Get("/assessments/{id}", s.handleGetAssessment)
		r.Get("/assessments/{id}/report", s.handleReport)
		r.Delete("/assessments/{id}", s.handleDeleteAssessment)
	})
	return r
}

// cors leaves every origin open; the API carries no credentials.
func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PUT, DELETE")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type, Content-Length, Accept-Encoding, X-Request-Id")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Handler returns the HTTP handler for testing.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves until ctx is canceled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", s.server.Addr).Msg("server starting")
		errCh <- s.server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

type errorResponse struct {
	Error string `json:"error"`
	Type  string `json:"type"`
}

// statusFor maps an application error type to an HTTP status.
func statusFor(t apperrors.ErrorType) int {
	switch t {
	case apperrors.ErrorTypeValidation:
		return http.StatusBadRequest
	case apperrors.ErrorTypeNotFound:
		return http.StatusNotFound
	case apperrors.ErrorTypeConflict:
		return http.StatusConflict
	case apperrors.ErrorTypeNetwork, apperrors.ErrorTypeProtocol:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		observability.LoggerFromContext(r.Context()).Error().Err(err).Msg("json encode error")
	}
}

// describeError maps err to a status and a client-safe body. Internal
// details stay in the log.
func describeError(r *http.Request, err error) (int, errorResponse) {
	t := apperrors.TypeOf(err)
	status := statusFor(t)
	msg := err.Error()

	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		msg = appErr.Message
	}
	if status >= http.StatusInternalServerError {
		observability.LoggerFromContext(r.Context()).Error().Err(err).Str("type", string(t)).Msg("request failed")
		if t == apperrors.ErrorTypeInternal {
			msg = "internal error"
		}
	}
	return status, errorResponse{Error: msg, Type: string(t)}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, body := describeError(r, err)
	writeJSON(w, r, status, body)
}

func readJSON(r *http.Request, v any) error {
	if r.Body == nil {
		return apperrors.NewValidationError("empty request body")
	}
	defer r.Body.Close()
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return apperrors.NewValidationError("invalid request: " + err.Error())
	}
	return nil
}
