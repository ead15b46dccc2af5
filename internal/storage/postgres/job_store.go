package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/JetBrains-Research/pubtrends-datasets/internal/geo"
)

// JobStore implements geo.JobStore on the jobs and job_items tables.
type JobStore struct {
	pool   db
	logger *zap.Logger
}

// NewJobStore connects a JobStore to the database at dsn.
func NewJobStore(ctx context.Context, dsn string, logger *zap.Logger) (*JobStore, error) {
	if dsn == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return NewJobStoreWithPool(pool, logger), nil
}

// NewJobStoreWithPool constructs a store from an existing pool (primarily
// for testing).
func NewJobStoreWithPool(pool db, logger *zap.Logger) *JobStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &JobStore{pool: pool, logger: logger}
}

// Close releases the underlying pool resources.
func (s *JobStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// CreateJob inserts the job row and one pending item per accession in a
// single transaction, so a failure leaves no partial job behind.
func (s *JobStore) CreateJob(
	ctx context.Context,
	accessions []string,
	rangeStart, rangeEnd time.Time,
) (geo.Job, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return geo.Job{}, fmt.Errorf("begin create job: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	job := geo.Job{
		CreatedAt:  time.Now().UTC(),
		Status:     geo.JobInProgress,
		RangeStart: rangeStart,
		RangeEnd:   rangeEnd,
	}
	err = tx.QueryRow(ctx,
		`INSERT INTO jobs (created_at, status, range_start, range_end)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id`,
		job.CreatedAt, job.Status, job.RangeStart, job.RangeEnd,
	).Scan(&job.ID)
	if err != nil {
		return geo.Job{}, fmt.Errorf("insert job: %w", err)
	}

	if len(accessions) > 0 {
		batch := &pgx.Batch{}
		for _, acc := range accessions {
			batch.Queue(
				`INSERT INTO job_items (job_id, accession, status) VALUES ($1, $2, $3)`,
				job.ID, acc, geo.ItemPending)
		}
		results := tx.SendBatch(ctx, batch)
		for range accessions {
			if _, err := results.Exec(); err != nil {
				_ = results.Close()
				return geo.Job{}, fmt.Errorf("insert job item: %w", err)
			}
		}
		if err := results.Close(); err != nil {
			return geo.Job{}, fmt.Errorf("close item batch: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return geo.Job{}, fmt.Errorf("commit create job: %w", err)
	}
	return job, nil
}

// SetItemStatus updates exactly one (job_id, accession) row. Concurrent calls
// for different accessions touch disjoint rows and cannot lose updates.
func (s *JobStore) SetItemStatus(
	ctx context.Context,
	jobID int64,
	accession string,
	status geo.ItemStatus,
) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE job_items SET status = $1 WHERE job_id = $2 AND accession = $3`,
		status, jobID, accession)
	if err != nil {
		return fmt.Errorf("update item status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update item status: job %d has no item %s: %w",
			jobID, accession, geo.ErrNotFound)
	}
	return nil
}

// SetJobStatus writes the job's terminal status.
func (s *JobStore) SetJobStatus(ctx context.Context, jobID int64, status geo.JobStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE jobs SET status = $1 WHERE id = $2`,
		status, jobID)
	if err != nil {
		return fmt.Errorf("update job status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update job status: job %d: %w", jobID, geo.ErrNotFound)
	}
	return nil
}

// GetJob loads a single job or returns geo.ErrNotFound.
func (s *JobStore) GetJob(ctx context.Context, jobID int64) (geo.Job, error) {
	var job geo.Job
	err := s.pool.QueryRow(ctx,
		`SELECT id, created_at, status, range_start, range_end
		 FROM jobs WHERE id = $1`,
		jobID,
	).Scan(&job.ID, &job.CreatedAt, &job.Status, &job.RangeStart, &job.RangeEnd)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return geo.Job{}, geo.ErrNotFound
		}
		return geo.Job{}, fmt.Errorf("select job: %w", err)
	}
	return job, nil
}

// ListJobs returns all jobs, most recent first.
func (s *JobStore) ListJobs(ctx context.Context) ([]geo.Job, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, created_at, status, range_start, range_end
		 FROM jobs ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []geo.Job
	for rows.Next() {
		var job geo.Job
		if err := rows.Scan(&job.ID, &job.CreatedAt, &job.Status, &job.RangeStart, &job.RangeEnd); err != nil {
			return nil, fmt.Errorf("scan job row: %w", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate job rows: %w", err)
	}
	return jobs, nil
}

// ListItems returns the items of one job ordered by accession.
func (s *JobStore) ListItems(ctx context.Context, jobID int64) ([]geo.JobItem, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT job_id, accession, status
		 FROM job_items WHERE job_id = $1 ORDER BY accession`,
		jobID)
	if err != nil {
		return nil, fmt.Errorf("list job items: %w", err)
	}
	defer rows.Close()

	var items []geo.JobItem
	for rows.Next() {
		var item geo.JobItem
		if err := rows.Scan(&item.JobID, &item.Accession, &item.Status); err != nil {
			return nil, fmt.Errorf("scan job item row: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate job item rows: %w", err)
	}
	return items, nil
}
