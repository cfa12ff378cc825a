package interview

import (
	"context"
	"sync"
)

type engineReply struct {
	result DiagnosisResult
	err    error
}

// scriptedEngine replays queued diagnosis replies in order and records every request.
type scriptedEngine struct {
	mu       sync.Mutex
	replies  []engineReply
	requests []DiagnosisRequest

	triage    TriageResult
	triageErr error
	triageN   int
}

func (e *scriptedEngine) push(result DiagnosisResult, err error) *scriptedEngine {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.replies = append(e.replies, engineReply{result: result, err: err})
	return e
}

func (e *scriptedEngine) Diagnose(ctx context.Context, req DiagnosisRequest) (DiagnosisResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.requests = append(e.requests, req)
	if len(e.replies) == 0 {
		return DiagnosisResult{Conditions: []Condition{}}, nil
	}
	next := e.replies[0]
	e.replies = e.replies[1:]
	return next.result, next.err
}

func (e *scriptedEngine) Triage(ctx context.Context, req DiagnosisRequest) (TriageResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.triageN++
	return e.triage, e.triageErr
}

func (e *scriptedEngine) calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.requests)
}

func (e *scriptedEngine) lastRequest() DiagnosisRequest {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.requests[len(e.requests)-1]
}

// blockingEngine holds every call until release is closed.
type blockingEngine struct {
	entered chan struct{}
	release chan struct{}
}

func (e *blockingEngine) Diagnose(ctx context.Context, req DiagnosisRequest) (DiagnosisResult, error) {
	e.entered <- struct{}{}
	<-e.release
	return DiagnosisResult{}, nil
}

func (e *blockingEngine) Triage(ctx context.Context, req DiagnosisRequest) (TriageResult, error) {
	return TriageResult{}, nil
}

func singleAbout(id string) Question {
	return SingleQuestion{Prompt: "Do you have " + id + "?", Item: QuestionItem{ID: id, Name: id}}
}

var (
	fluConditions = []Condition{
		{ID: "c_87", Name: "Common cold", CommonName: "Cold", Probability: 0.61},
		{ID: "c_55", Name: "Influenza", CommonName: "Flu", Probability: 0.22},
	}
	adultMale = Profile{Age: 30, Sex: SexMale}
)
