// Package symptom implements local symptom search backed by the remote catalog.
package symptom

import (
	"context"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"symptom-interview/internal/interview"
)

const (
	maxResults    = 10
	minLocalQuery = 2
)

// Catalog is the remote symptom catalog.
type Catalog interface {
	ListSymptoms(ctx context.Context, age int) ([]interview.Symptom, error)
	SuggestSymptoms(ctx context.Context, query string, age int) ([]interview.Symptom, error)
}

// Index caches the catalog per age and answers searches with a cascading
// fallback: local match, then remote suggest, then the first cached symptoms.
type Index struct {
	catalog Catalog
	logger  zerolog.Logger

	mu    sync.RWMutex
	byAge map[int][]interview.Symptom
}

func NewIndex(catalog Catalog, logger zerolog.Logger) *Index {
	return &Index{
		catalog: catalog,
		logger:  logger,
		byAge:   make(map[int][]interview.Symptom),
	}
}

// Load fetches and caches the catalog for age.
func (ix *Index) Load(ctx context.Context, age int) ([]interview.Symptom, error) {
	ix.mu.RLock()
	cached, ok := ix.byAge[age]
	ix.mu.RUnlock()
	if ok {
		return cached, nil
	}

	list, err := ix.catalog.ListSymptoms(ctx, age)
	if err != nil {
		return nil, err
	}
	ix.mu.Lock()
	ix.byAge[age] = list
	ix.mu.Unlock()
	ix.logger.Debug().Int("age", age).Int("symptoms", len(list)).Msg("symptom catalog loaded")
	return list, nil
}

// Search never fails: if the remote suggest call errors, the first cached
// symptoms are returned with Degraded set.
func (ix *Index) Search(ctx context.Context, query string, age int) (interview.SearchResult, error) {
	cached, err := ix.Load(ctx, age)
	if err != nil {
		ix.logger.Warn().Err(err).Int("age", age).Msg("symptom catalog unavailable")
	}

	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return interview.SearchResult{Symptoms: head(cached)}, nil
	}

	if len([]rune(q)) >= minLocalQuery {
		if local := filter(cached, q); len(local) > 0 {
			return interview.SearchResult{Symptoms: local}, nil
		}
	}

	remote, err := ix.catalog.SuggestSymptoms(ctx, query, age)
	if err != nil {
		ix.logger.Warn().Err(err).Str("query", query).Msg("symptom search degraded")
		return interview.SearchResult{Symptoms: head(cached), Degraded: true}, nil
	}
	if remote == nil {
		remote = []interview.Symptom{}
	}
	return interview.SearchResult{Symptoms: remote}, nil
}

func filter(list []interview.Symptom, q string) []interview.Symptom {
	out := []interview.Symptom{}
	for _, s := range list {
		if strings.Contains(strings.ToLower(s.Name), q) || strings.Contains(strings.ToLower(s.CommonName), q) {
			out = append(out, s)
			if len(out) == maxResults {
				break
			}
		}
	}
	return out
}

func head(list []interview.Symptom) []interview.Symptom {
	n := len(list)
	if n > maxResults {
		n = maxResults
	}
	out := make([]interview.Symptom, n)
	copy(out, list[:n])
	return out
}
