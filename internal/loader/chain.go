package loader

import (
	"context"

	"go.uber.org/zap"

	"github.com/JetBrains-Research/pubtrends-datasets/internal/geo"
)

// Chain tries several loaders in order, querying each one only for the
// accessions the previous loaders left unresolved. Results keep the order of
// the requested accessions. A failing loader is logged and skipped.
type Chain struct {
	loaders []Loader
	logger  *zap.Logger
}

// NewChain composes the given loaders. At least one is required.
func NewChain(logger *zap.Logger, loaders ...Loader) *Chain {
	if len(loaders) == 0 {
		panic("loader: chain requires at least one loader")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Chain{loaders: loaders, logger: logger}
}

// LoadSeries implements Loader.
func (c *Chain) LoadSeries(ctx context.Context, accessions []string) ([]geo.Series, error) {
	if len(accessions) == 0 {
		return nil, nil
	}

	remaining := dedupe(accessions)
	found := make(map[string]geo.Series)
	for _, l := range c.loaders {
		if len(remaining) == 0 {
			break
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		results, err := l.LoadSeries(ctx, remaining)
		if err != nil {
			c.logger.Warn("series loader failed, trying next source", zap.Error(err))
			continue
		}
		for _, record := range results {
			if record.Accession == "" {
				continue
			}
			if _, ok := found[record.Accession]; !ok {
				found[record.Accession] = record
			}
		}
		unresolved := remaining[:0]
		for _, acc := range remaining {
			if _, ok := found[acc]; !ok {
				unresolved = append(unresolved, acc)
			}
		}
		remaining = unresolved
	}

	ordered := make([]geo.Series, 0, len(found))
	emitted := make(map[string]struct{}, len(found))
	for _, acc := range accessions {
		if _, ok := emitted[acc]; ok {
			continue
		}
		if record, ok := found[acc]; ok {
			ordered = append(ordered, record)
			emitted[acc] = struct{}{}
		}
	}
	return ordered, nil
}

func dedupe(accessions []string) []string {
	seen := make(map[string]struct{}, len(accessions))
	out := make([]string, 0, len(accessions))
	for _, acc := range accessions {
		if _, ok := seen[acc]; ok {
			continue
		}
		seen[acc] = struct{}{}
		out = append(out, acc)
	}
	return out
}
