// Package backfill coordinates bulk ingestion of GEO series metadata for a
// date range: discovery, job bookkeeping, concurrent fetch/parse/save per
// accession, and guaranteed job finalization.
package backfill

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JetBrains-Research/pubtrends-datasets/internal/geo"
	"github.com/JetBrains-Research/pubtrends-datasets/internal/metrics"
)

// ArchiveFetcher downloads one series archive and returns its local path.
type ArchiveFetcher interface {
	Fetch(ctx context.Context, accession string) (string, error)
}

// Parser converts a downloaded archive into a canonical series record.
type Parser interface {
	Parse(ctx context.Context, path string) (geo.Series, error)
}

// Options control a backfill run.
type Options struct {
	// SkipExisting avoids the network fetch for accessions already present
	// in the series store.
	SkipExisting bool
	// IgnoreFailures logs per-accession failures and keeps going instead of
	// aborting the run on the first error.
	IgnoreFailures bool
}

// Backfiller runs backfill jobs.
type Backfiller struct {
	discoverer geo.Discoverer
	fetcher    ArchiveFetcher
	parser     Parser
	series     geo.SeriesStore
	jobs       geo.JobStore
	logger     *zap.Logger
}

// New constructs a Backfiller.
func New(
	discoverer geo.Discoverer,
	fetcher ArchiveFetcher,
	parser Parser,
	series geo.SeriesStore,
	jobs geo.JobStore,
	logger *zap.Logger,
) *Backfiller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Backfiller{
		discoverer: discoverer,
		fetcher:    fetcher,
		parser:     parser,
		series:     series,
		jobs:       jobs,
		logger:     logger,
	}
}

// Run ingests every series whose last-update date falls in [start, end] and
// returns the successfully ingested records in discovery order.
//
// The job record is created only after discovery succeeds and always reaches
// exactly one terminal status: successful when the run completes, cancelled
// when the context ends the run, failed when an error propagates out.
func (b *Backfiller) Run(
	ctx context.Context,
	start, end time.Time,
	opts Options,
) ([]geo.Series, error) {
	accessions, err := b.discoverer.Accessions(ctx, start, end)
	if err != nil {
		return nil, fmt.Errorf("discover accessions: %w", err)
	}

	job, err := b.jobs.CreateJob(ctx, accessions, start, end)
	if err != nil {
		return nil, fmt.Errorf("create backfill job: %w", err)
	}
	logger := b.logger.With(zap.Int64("job_id", job.ID))
	logger.Info("backfill job created",
		zap.Int("accessions", len(accessions)),
		zap.Time("range_start", start),
		zap.Time("range_end", end))

	status := geo.JobFailed
	defer func() {
		// Finalization must survive cancellation of the run's context.
		finalCtx := context.WithoutCancel(ctx)
		if ferr := b.jobs.SetJobStatus(finalCtx, job.ID, status); ferr != nil {
			logger.Error("finalize job status failed",
				zap.String("status", string(status)), zap.Error(ferr))
		}
		metrics.JobFinalized(string(status))
		logger.Info("backfill job finalized", zap.String("status", string(status)))
	}()

	results := make([]*geo.Series, len(accessions))
	g, runCtx := errgroup.WithContext(ctx)
	for i, accession := range accessions {
		g.Go(func() error {
			rec, err := b.processItem(runCtx, job.ID, accession, opts.SkipExisting)
			if err != nil {
				if opts.IgnoreFailures {
					logger.Error("dataset ingestion failed",
						zap.String("accession", accession), zap.Error(err))
					return nil
				}
				return fmt.Errorf("ingest %s: %w", accession, err)
			}
			results[i] = &rec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		if ctx.Err() != nil {
			status = geo.JobCancelled
		}
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		status = geo.JobCancelled
		return nil, err
	}
	status = geo.JobSuccessful

	out := make([]geo.Series, 0, len(results))
	for _, rec := range results {
		if rec != nil {
			out = append(out, *rec)
		}
	}
	logger.Info("backfill job completed",
		zap.Int("succeeded", len(out)),
		zap.Int("failed", len(accessions)-len(out)))
	return out, nil
}

// processItem runs one accession's ingestion and records its terminal item
// status. An attempt abandoned by cancellation has not settled, so its item
// stays pending.
func (b *Backfiller) processItem(
	ctx context.Context,
	jobID int64,
	accession string,
	skipExisting bool,
) (geo.Series, error) {
	rec, err := b.ingest(ctx, accession, skipExisting)
	if err != nil && ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		return geo.Series{}, err
	}

	status := geo.ItemSuccessful
	if err != nil {
		status = geo.ItemFailed
	}
	statusCtx := context.WithoutCancel(ctx)
	if serr := b.jobs.SetItemStatus(statusCtx, jobID, accession, status); serr != nil {
		b.logger.Error("update item status failed",
			zap.Int64("job_id", jobID),
			zap.String("accession", accession),
			zap.Error(serr))
	}
	metrics.ItemSettled(string(status))
	return rec, err
}

// ingest performs one accession's fetch, parse and save. With skipExisting
// set, a record already in the store is returned without a network call.
func (b *Backfiller) ingest(ctx context.Context, accession string, skipExisting bool) (geo.Series, error) {
	if skipExisting {
		existing, err := b.series.Get(ctx, []string{accession})
		if err != nil {
			b.logger.Warn("existence check failed, fetching anyway",
				zap.String("accession", accession), zap.Error(err))
		}
		if len(existing) > 0 {
			b.logger.Debug("dataset already present, skipping fetch",
				zap.String("accession", accession))
			return existing[0], nil
		}
	}

	path, err := b.fetcher.Fetch(ctx, accession)
	if err != nil {
		return geo.Series{}, err
	}
	defer func() {
		if rmErr := os.Remove(path); rmErr != nil && !os.IsNotExist(rmErr) {
			b.logger.Warn("remove downloaded archive failed",
				zap.String("path", path), zap.Error(rmErr))
		}
	}()

	rec, err := b.parser.Parse(ctx, path)
	if err != nil {
		return geo.Series{}, err
	}
	if err := b.series.Save(ctx, []geo.Series{rec}); err != nil {
		return geo.Series{}, fmt.Errorf("save series %s: %w", accession, err)
	}
	b.logger.Info("dataset ingested", zap.String("accession", accession))
	return rec, nil
}
