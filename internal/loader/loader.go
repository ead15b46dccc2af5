// Package loader retrieves series records by accession. Loaders differ in
// cost: the local store answers from disk while the NCBI quick-view loader
// goes to the network, so callers compose them into a Chain that only falls
// through for accessions the cheaper sources could not resolve.
package loader

import (
	"context"

	"github.com/JetBrains-Research/pubtrends-datasets/internal/geo"
)

// Loader resolves series records for a set of accessions. Accessions with no
// matching record are omitted from the result.
type Loader interface {
	LoadSeries(ctx context.Context, accessions []string) ([]geo.Series, error)
}
