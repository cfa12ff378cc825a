package interview

import (
	"context"

	"symptom-interview/internal/triage"
)

// TriageEngine is the triage service as seen by the resolver.
type TriageEngine interface {
	Triage(ctx context.Context, req DiagnosisRequest) (TriageResult, error)
}

// TriageResolver turns final evidence into an urgency level. It holds no state.
type TriageResolver struct {
	engine TriageEngine
}

func NewTriageResolver(engine TriageEngine) *TriageResolver {
	return &TriageResolver{engine: engine}
}

func (r *TriageResolver) Resolve(ctx context.Context, profile Profile, evidence []Evidence) (TriageResult, error) {
	if err := profile.Validate(); err != nil {
		return TriageResult{}, err
	}
	return r.engine.Triage(ctx, DiagnosisRequest{
		Sex:      profile.Sex,
		Age:      profile.Age,
		Evidence: evidence,
	})
}

// RecommendationsFor looks up the patient instructions for a triage result.
// A nil result yields no instructions.
func RecommendationsFor(t *TriageResult) []string {
	if t == nil {
		return []string{}
	}
	return triage.Recommendations(t.Level)
}
