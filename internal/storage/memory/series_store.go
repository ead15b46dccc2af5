// Package memory provides in-memory store implementations for development
// and testing.
package memory

import (
	"context"
	"sync"

	"github.com/JetBrains-Research/pubtrends-datasets/internal/geo"
)

// SeriesStore keeps series records in a map keyed by accession.
type SeriesStore struct {
	mu     sync.RWMutex
	series map[string]geo.Series
}

// NewSeriesStore constructs an empty SeriesStore.
func NewSeriesStore() *SeriesStore {
	return &SeriesStore{series: make(map[string]geo.Series)}
}

// Save upserts the records keyed by accession.
func (s *SeriesStore) Save(_ context.Context, series []geo.Series) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range series {
		s.series[rec.Accession] = rec
	}
	return nil
}

// Get returns the stored records for the given accessions, preserving the
// input order for those that exist.
func (s *SeriesStore) Get(_ context.Context, accessions []string) ([]geo.Series, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []geo.Series
	for _, acc := range accessions {
		if rec, ok := s.series[acc]; ok {
			out = append(out, rec)
		}
	}
	return out, nil
}

// Len reports the number of stored records.
func (s *SeriesStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.series)
}
