package agent

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"symptom-interview/internal/interview"
	"symptom-interview/internal/triage"
	apperrors "symptom-interview/pkg/errors"
)

func newTestClient(t *testing.T, h http.HandlerFunc, retries int) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(Config{
		BaseURL:              srv.URL,
		AppID:                "app",
		AppKey:               "key",
		Timeout:              2 * time.Second,
		MaxRetries:           retries,
		RetryInitialInterval: time.Millisecond,
	}, zerolog.Nop())
}

var request = interview.DiagnosisRequest{
	Sex: interview.SexMale,
	Age: 30,
	Evidence: []interview.Evidence{
		{SymptomID: "s_1193", Choice: interview.ChoicePresent, Source: interview.SourceInitial},
		{SymptomID: "s_102", Choice: interview.ChoiceAbsent, Source: interview.SourceSuggested},
	},
}

func TestDiagnoseEncodesRequestAndParsesQuestion(t *testing.T) {
	var body diagnosisRequest
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/diagnosis", r.URL.Path)
		assert.Equal(t, "app", r.Header.Get("App-Id"))
		assert.Equal(t, "key", r.Header.Get("App-Key"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.Write([]byte(`{
			"question": {"text": "Do you have a headache?", "type": "single", "items": [{"id": "s_21", "name": "Headache"}]},
			"conditions": [{"id": "c_87", "name": "Influenza", "common_name": "Flu", "probability": 0.61}]
		}`))
	}, 0)

	res, err := c.Diagnose(context.Background(), request)

	require.NoError(t, err)
	assert.Equal(t, "male", body.Sex)
	assert.Equal(t, age{Value: 30, Unit: "year"}, body.Age)
	assert.Equal(t, []evidenceItem{
		{ID: "s_1193", ChoiceID: "present", Source: "initial"},
		{ID: "s_102", ChoiceID: "absent", Source: "suggest"},
	}, body.Evidence)

	require.NotNil(t, res.Question)
	assert.Equal(t, interview.QuestionSingle, res.Question.Type())
	assert.Equal(t, "Do you have a headache?", res.Question.Text())
	assert.Equal(t, []interview.Condition{{ID: "c_87", Name: "Influenza", CommonName: "Flu", Probability: 0.61}}, res.Conditions)
}

func TestDiagnoseWithoutQuestion(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"conditions": []}`))
	}, 0)

	res, err := c.Diagnose(context.Background(), request)

	require.NoError(t, err)
	assert.Nil(t, res.Question)
	assert.Empty(t, res.Conditions)
}

func TestDiagnoseRejectsMalformedQuestion(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"question": {"text": "Which?", "type": "group_single", "items": []}, "conditions": []}`))
	}, 0)

	_, err := c.Diagnose(context.Background(), request)

	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeProtocol))
}

func TestInvalidJSONIsProtocolError(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte(`{not json`))
	}, 3)

	_, err := c.Diagnose(context.Background(), request)

	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeProtocol))
	assert.Equal(t, int32(1), calls.Load(), "protocol errors are not retried")
}

func TestServerErrorsAreRetried(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{"triage_level": "consultation_24", "description": "See a doctor within a day"}`))
	}, 2)

	res, err := c.Triage(context.Background(), request)

	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, triage.LevelConsultation24, res.Level)
	assert.Equal(t, "See a doctor within a day", res.Description)
}

func TestRetriesExhaustedIsNetworkError(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}, 2)

	_, err := c.Diagnose(context.Background(), request)

	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeNetwork))
	assert.Equal(t, int32(3), calls.Load())
}

func TestClientErrorIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad evidence", http.StatusBadRequest)
	}, 2)

	_, err := c.Diagnose(context.Background(), request)

	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeNetwork))
	assert.Contains(t, err.Error(), "bad evidence")
	assert.Equal(t, int32(1), calls.Load())
}

func TestTriageWithoutLevelIsProtocolError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"description": "?"}`))
	}, 0)

	_, err := c.Triage(context.Background(), request)

	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeProtocol))
}

func TestUnreachableServiceIsNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()
	c := NewClient(Config{BaseURL: url, RetryInitialInterval: time.Millisecond}, zerolog.Nop())

	_, err := c.ListSymptoms(context.Background(), 30)

	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeNetwork))
}

func TestCanceledContextIsNetworkError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}, 5)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Diagnose(ctx, request)

	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeNetwork))
}

func TestSymptomEndpoints(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/symptoms", r.URL.Path)
		assert.Equal(t, "42", r.URL.Query().Get("age"))
		if q := r.URL.Query().Get("q"); q != "" {
			assert.Equal(t, "sore throat", q)
			w.Write([]byte(`[{"id": "s_20", "name": "Sore throat"}]`))
			return
		}
		w.Write([]byte(`[{"id": "s_1394", "name": "Fever", "common_name": "High temperature"}, {"id": "s_21", "name": "Headache"}]`))
	}, 0)
	ctx := context.Background()

	list, err := c.ListSymptoms(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, []interview.Symptom{
		{ID: "s_1394", Name: "Fever", CommonName: "High temperature"},
		{ID: "s_21", Name: "Headache"},
	}, list)

	suggested, err := c.SuggestSymptoms(ctx, "sore throat", 42)
	require.NoError(t, err)
	assert.Equal(t, []interview.Symptom{{ID: "s_20", Name: "Sore throat"}}, suggested)
}

func TestSymptomWithoutIDIsProtocolError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"name": "Nameless"}]`))
	}, 0)

	_, err := c.ListSymptoms(context.Background(), 30)

	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeProtocol))
}
