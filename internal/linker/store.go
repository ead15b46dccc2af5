package linker

import "context"

// AccessionSource looks up stored series accessions by the PubMed IDs they
// reference. *postgres.SeriesStore satisfies this.
type AccessionSource interface {
	AccessionsForPubMed(ctx context.Context, pubmedIDs []int64) ([]string, error)
}

// Store links publications against series already present in the local
// store. It is the cheapest linker and usually runs first in a Chain.
type Store struct {
	source AccessionSource
}

// NewStore creates a store-backed linker.
func NewStore(source AccessionSource) *Store {
	return &Store{source: source}
}

// LinkDatasets implements Linker.
func (s *Store) LinkDatasets(ctx context.Context, pubmedIDs []int64) ([]string, error) {
	if len(pubmedIDs) == 0 {
		return nil, ErrNoPubMedIDs
	}
	return s.source.AccessionsForPubMed(ctx, pubmedIDs)
}
