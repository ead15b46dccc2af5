package geo

import (
	"context"
	"time"
)

// SeriesStore persists canonical series records keyed by accession.
type SeriesStore interface {
	// Save upserts the given records in a single batched write.
	Save(ctx context.Context, series []Series) error
	// Get returns the stored records whose accession appears in the given
	// set. Missing accessions are silently omitted.
	Get(ctx context.Context, accessions []string) ([]Series, error)
}

// JobStore tracks backfill jobs and their per-accession items.
type JobStore interface {
	// CreateJob inserts a job in in_progress status together with one
	// pending item per accession, all in one transaction.
	CreateJob(ctx context.Context, accessions []string, rangeStart, rangeEnd time.Time) (Job, error)
	// SetItemStatus updates exactly one item row.
	SetItemStatus(ctx context.Context, jobID int64, accession string, status ItemStatus) error
	// SetJobStatus writes the job's terminal status.
	SetJobStatus(ctx context.Context, jobID int64, status JobStatus) error
	// GetJob loads a single job or returns ErrNotFound.
	GetJob(ctx context.Context, jobID int64) (Job, error)
	// ListJobs returns all jobs, most recent first.
	ListJobs(ctx context.Context) ([]Job, error)
	// ListItems returns the items of one job ordered by accession.
	ListItems(ctx context.Context, jobID int64) ([]JobItem, error)
}

// Discoverer finds accessions whose last-update date falls in [start, end].
type Discoverer interface {
	Accessions(ctx context.Context, start, end time.Time) ([]string, error)
}
