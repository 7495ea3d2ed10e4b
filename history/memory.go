package history

import (
	"context"
	"sync"

	"github.com/discordwell/vibariant/engine"
)

// InMemoryStore is a Store implementation backed by a plain map, used by
// handler and router tests so they don't need a live Redis instance.
type InMemoryStore struct {
	mu      sync.Mutex
	data    map[string][]engine.HistoricalExperiment
	weights map[string][4]float64
}

// NewInMemoryStore creates an empty in-memory history store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		data:    make(map[string][]engine.HistoricalExperiment),
		weights: make(map[string][4]float64),
	}
}

// Append prepends h to the project's history, most-recent first.
func (s *InMemoryStore) Append(_ context.Context, projectID string, h engine.HistoricalExperiment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[projectID] = append([]engine.HistoricalExperiment{h}, s.data[projectID]...)
	if len(s.data[projectID]) > maxHistoryLen {
		s.data[projectID] = s.data[projectID][:maxHistoryLen]
	}
	return nil
}

// List returns up to limit entries for a project, most-recent first.
func (s *InMemoryStore) List(_ context.Context, projectID string, limit int) ([]engine.HistoricalExperiment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	all := s.data[projectID]
	if limit <= 0 || limit > len(all) {
		limit = len(all)
	}
	out := make([]engine.HistoricalExperiment, limit)
	copy(out, all[:limit])
	return out, nil
}

// Ping always succeeds; there is no connection to verify.
func (s *InMemoryStore) Ping(_ context.Context) error {
	return nil
}

// GetEngagementWeights returns the project's last calibrated weight
// vector, or nil if none has been set.
func (s *InMemoryStore) GetEngagementWeights(_ context.Context, projectID string) (*[4]float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.weights[projectID]
	if !ok {
		return nil, nil
	}
	return &w, nil
}

// SetEngagementWeights stores a newly calibrated weight vector. The
// in-memory store has no concurrent writers to race, so last-write-wins
// under the mutex is equivalent to RedisStore's CAS.
func (s *InMemoryStore) SetEngagementWeights(_ context.Context, projectID string, weights [4]float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.weights[projectID] = weights
	return nil
}
