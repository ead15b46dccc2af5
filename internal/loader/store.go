package loader

import (
	"context"

	"github.com/JetBrains-Research/pubtrends-datasets/internal/geo"
)

// Store loads series from the local store.
type Store struct {
	series geo.SeriesStore
}

// NewStore creates a store-backed loader.
func NewStore(series geo.SeriesStore) *Store {
	return &Store{series: series}
}

// LoadSeries implements Loader.
func (s *Store) LoadSeries(ctx context.Context, accessions []string) ([]geo.Series, error) {
	if len(accessions) == 0 {
		return nil, nil
	}
	return s.series.Get(ctx, accessions)
}
