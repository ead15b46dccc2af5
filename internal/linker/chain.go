package linker

import (
	"context"

	"go.uber.org/zap"
)

// Chain queries several linkers in order and merges their results,
// deduplicating accessions in first-seen order. A failing linker is logged
// and skipped so that one flaky source does not hide the others' links.
type Chain struct {
	linkers []Linker
	logger  *zap.Logger
}

// NewChain composes the given linkers. At least one is required.
func NewChain(logger *zap.Logger, linkers ...Linker) *Chain {
	if len(linkers) == 0 {
		panic("linker: chain requires at least one linker")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Chain{linkers: linkers, logger: logger}
}

// LinkDatasets implements Linker.
func (c *Chain) LinkDatasets(ctx context.Context, pubmedIDs []int64) ([]string, error) {
	if len(pubmedIDs) == 0 {
		return nil, ErrNoPubMedIDs
	}

	seen := make(map[string]struct{})
	var merged []string
	for _, l := range c.linkers {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		accessions, err := l.LinkDatasets(ctx, pubmedIDs)
		if err != nil {
			c.logger.Warn("dataset linker failed, trying next source", zap.Error(err))
			continue
		}
		for _, acc := range accessions {
			if _, ok := seen[acc]; ok {
				continue
			}
			seen[acc] = struct{}{}
			merged = append(merged, acc)
		}
	}
	return merged, nil
}
