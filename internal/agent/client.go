package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"symptom-interview/internal/interview"
	"symptom-interview/internal/observability"
	"symptom-interview/internal/triage"
	apperrors "symptom-interview/pkg/errors"
)

// Config holds the connection settings for the diagnostic reasoning service.
type Config struct {
	BaseURL    string
	AppID      string
	AppKey     string
	Timeout    time.Duration
	MaxRetries int
	// RetryInitialInterval is the first backoff delay; zero means 200ms.
	RetryInitialInterval time.Duration
}

// Client talks to the diagnosis, triage and symptom catalog endpoints. It
// implements interview.Engine and symptom.Catalog.
type Client struct {
	baseURL    string
	appID      string
	appKey     string
	maxRetries int
	initial    time.Duration
	httpClient *http.Client
	logger     zerolog.Logger
}

func NewClient(cfg Config, logger zerolog.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	initial := cfg.RetryInitialInterval
	if initial <= 0 {
		initial = 200 * time.Millisecond
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		appID:      cfg.AppID,
		appKey:     cfg.AppKey,
		maxRetries: cfg.MaxRetries,
		initial:    initial,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

type age struct {
	Value int    `json:"value"`
	Unit  string `json:"unit"`
}

type evidenceItem struct {
	ID       string `json:"id"`
	ChoiceID string `json:"choice_id"`
	Source   string `json:"source"`
}

type diagnosisRequest struct {
	Sex      string         `json:"sex"`
	Age      age            `json:"age"`
	Evidence []evidenceItem `json:"evidence"`
}

type questionItem struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type questionPayload struct {
	Text  string         `json:"text"`
	Type  string         `json:"type"`
	Items []questionItem `json:"items"`
}

type conditionPayload struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	CommonName  string  `json:"common_name"`
	Probability float64 `json:"probability"`
}

type diagnosisResponse struct {
	Question   *questionPayload   `json:"question"`
	Conditions []conditionPayload `json:"conditions"`
}

type triageResponse struct {
	TriageLevel string `json:"triage_level"`
	Description string `json:"description"`
}

type symptomPayload struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	CommonName string `json:"common_name"`
}

func newDiagnosisRequest(req interview.DiagnosisRequest) diagnosisRequest {
	out := diagnosisRequest{
		Sex:      string(req.Sex),
		Age:      age{Value: req.Age, Unit: "year"},
		Evidence: make([]evidenceItem, 0, len(req.Evidence)),
	}
	for _, ev := range req.Evidence {
		source := "initial"
		if ev.Source == interview.SourceSuggested {
			source = "suggest"
		}
		out.Evidence = append(out.Evidence, evidenceItem{
			ID:       ev.SymptomID,
			ChoiceID: string(ev.Choice),
			Source:   source,
		})
	}
	return out
}

// Diagnose calls POST /diagnosis.
func (c *Client) Diagnose(ctx context.Context, req interview.DiagnosisRequest) (interview.DiagnosisResult, error) {
	var resp diagnosisResponse
	if err := c.do(ctx, http.MethodPost, "/diagnosis", newDiagnosisRequest(req), &resp); err != nil {
		return interview.DiagnosisResult{}, err
	}

	result := interview.DiagnosisResult{Conditions: make([]interview.Condition, 0, len(resp.Conditions))}
	for _, cp := range resp.Conditions {
		if cp.ID == "" {
			return interview.DiagnosisResult{}, apperrors.NewProtocolError("condition without id in diagnosis response", nil)
		}
		result.Conditions = append(result.Conditions, interview.Condition{
			ID:          cp.ID,
			Name:        cp.Name,
			CommonName:  cp.CommonName,
			Probability: cp.Probability,
		})
	}

	if resp.Question != nil {
		items := make([]interview.QuestionItem, 0, len(resp.Question.Items))
		for _, it := range resp.Question.Items {
			items = append(items, interview.QuestionItem{ID: it.ID, Name: it.Name})
		}
		q, err := interview.NewQuestion(resp.Question.Text, interview.QuestionType(resp.Question.Type), items)
		if err != nil {
			return interview.DiagnosisResult{}, err
		}
		result.Question = q
	}
	return result, nil
}

// Triage calls POST /triage.
func (c *Client) Triage(ctx context.Context, req interview.DiagnosisRequest) (interview.TriageResult, error) {
	var resp triageResponse
	if err := c.do(ctx, http.MethodPost, "/triage", newDiagnosisRequest(req), &resp); err != nil {
		return interview.TriageResult{}, err
	}
	if resp.TriageLevel == "" {
		return interview.TriageResult{}, apperrors.NewProtocolError("triage response has no triage_level", nil)
	}
	return interview.TriageResult{
		Level:       triage.Level(resp.TriageLevel),
		Description: resp.Description,
	}, nil
}

// ListSymptoms calls GET /symptoms?age=N.
func (c *Client) ListSymptoms(ctx context.Context, ageYears int) ([]interview.Symptom, error) {
	q := url.Values{}
	q.Set("age", strconv.Itoa(ageYears))
	return c.symptoms(ctx, q)
}

// SuggestSymptoms calls GET /symptoms?q=<query>&age=N.
func (c *Client) SuggestSymptoms(ctx context.Context, query string, ageYears int) ([]interview.Symptom, error) {
	q := url.Values{}
	q.Set("q", query)
	q.Set("age", strconv.Itoa(ageYears))
	return c.symptoms(ctx, q)
}

func (c *Client) symptoms(ctx context.Context, q url.Values) ([]interview.Symptom, error) {
	var resp []symptomPayload
	if err := c.do(ctx, http.MethodGet, "/symptoms?"+q.Encode(), nil, &resp); err != nil {
		return nil, err
	}
	out := make([]interview.Symptom, 0, len(resp))
	for _, sp := range resp {
		if sp.ID == "" {
			return nil, apperrors.NewProtocolError("symptom without id in catalog response", nil)
		}
		out = append(out, interview.Symptom{ID: sp.ID, Name: sp.Name, CommonName: sp.CommonName})
	}
	return out, nil
}

// do sends one request, retrying transport failures and 5xx/429 responses
// with exponential backoff. Client errors and malformed bodies are not retried.
func (c *Client) do(ctx context.Context, method, path string, body any, out any) (err error) {
	ctx, span := observability.StartSpan(ctx, "reasoning "+method+" "+path,
		attribute.String("http.method", method),
		attribute.String("reasoning.path", path),
	)
	defer func() {
		observability.RecordError(span, err)
		span.End()
	}()

	var payload []byte
	if body != nil {
		payload, err = json.Marshal(body)
		if err != nil {
			return apperrors.NewInternalError("failed to encode request", err)
		}
	}

	attempt := 0
	operation := func() error {
		attempt++
		return c.once(ctx, method, path, payload, out)
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.initial
	policy.MaxElapsedTime = 0
	var b backoff.BackOff = backoff.WithContext(backoff.WithMaxRetries(policy, uint64(max(c.maxRetries, 0))), ctx)

	notify := func(err error, next time.Duration) {
		span.AddEvent("retry", trace.WithAttributes(attribute.Int("attempt", attempt)))
		c.logger.Warn().Err(err).
			Str("path", path).
			Int("attempt", attempt).
			Dur("retry_in", next).
			Msg("reasoning service call failed, retrying")
	}

	err = backoff.RetryNotify(operation, b, notify)
	if err == nil {
		return nil
	}
	var perm *backoff.PermanentError
	if errors.As(err, &perm) {
		err = perm.Err
	}
	var appErr *apperrors.AppError
	if !errors.As(err, &appErr) {
		return apperrors.NewNetworkError(fmt.Sprintf("%s %s aborted", method, path), err)
	}
	return err
}

func (c *Client) once(ctx context.Context, method, path string, payload []byte, out any) error {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return backoff.Permanent(apperrors.NewInternalError("failed to build request", err))
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.appID != "" {
		req.Header.Set("App-Id", c.appID)
	}
	if c.appKey != "" {
		req.Header.Set("App-Key", c.appKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		netErr := apperrors.NewNetworkError(fmt.Sprintf("%s %s failed", method, path), err)
		if ctx.Err() != nil {
			return backoff.Permanent(netErr)
		}
		return netErr
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		netErr := apperrors.NewNetworkError(
			fmt.Sprintf("%s %s returned %s", method, path, resp.Status),
			fmt.Errorf("body: %s", strings.TrimSpace(string(respBody))),
		)
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return netErr
		}
		return backoff.Permanent(netErr)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return apperrors.NewNetworkError(fmt.Sprintf("reading %s response", path), err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return backoff.Permanent(apperrors.NewProtocolError(fmt.Sprintf("invalid JSON from %s", path), err))
	}
	return nil
}
