package loader

import (
	"context"

	"github.com/JetBrains-Research/pubtrends-datasets/internal/geo"
)

// BestEffortSaver persists series records without ever failing the caller.
// *postgres.SeriesStore satisfies this.
type BestEffortSaver interface {
	SaveBestEffort(ctx context.Context, series []geo.Series)
}

// Caching wraps a loader and writes whatever it resolves back to the local
// store, so repeat lookups are answered without another network round trip.
// The write-back is fire-and-forget and never affects the load result.
type Caching struct {
	inner Loader
	store BestEffortSaver
}

// NewCaching creates a write-back caching loader around inner.
func NewCaching(inner Loader, store BestEffortSaver) *Caching {
	return &Caching{inner: inner, store: store}
}

// LoadSeries implements Loader.
func (c *Caching) LoadSeries(ctx context.Context, accessions []string) ([]geo.Series, error) {
	series, err := c.inner.LoadSeries(ctx, accessions)
	if err != nil || len(series) == 0 {
		return series, err
	}
	c.store.SaveBestEffort(ctx, series)
	return series, nil
}
