// Package linker resolves the GEO series accessions referenced by PubMed
// publications. Several sources know about paper/dataset links and none of
// them is complete, so callers usually compose the concrete linkers into a
// Chain.
package linker

import (
	"context"
	"errors"
)

// ErrNoPubMedIDs is returned when a linker is invoked with an empty ID set.
var ErrNoPubMedIDs = errors.New("linker: at least one PubMed ID is required")

// Linker maps PubMed IDs to the accessions of GEO series associated with
// those publications.
type Linker interface {
	LinkDatasets(ctx context.Context, pubmedIDs []int64) ([]string, error)
}
