package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/JetBrains-Research/pubtrends-datasets/internal/geo"
)

// JobStore keeps jobs and their items in memory.
type JobStore struct {
	mu     sync.RWMutex
	nextID int64
	jobs   map[int64]geo.Job
	items  map[int64]map[string]geo.ItemStatus
}

// NewJobStore constructs an empty JobStore.
func NewJobStore() *JobStore {
	return &JobStore{
		jobs:  make(map[int64]geo.Job),
		items: make(map[int64]map[string]geo.ItemStatus),
	}
}

// CreateJob registers an in_progress job with one pending item per accession.
func (s *JobStore) CreateJob(
	_ context.Context,
	accessions []string,
	rangeStart, rangeEnd time.Time,
) (geo.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	job := geo.Job{
		ID:         s.nextID,
		CreatedAt:  time.Now().UTC(),
		Status:     geo.JobInProgress,
		RangeStart: rangeStart,
		RangeEnd:   rangeEnd,
	}
	items := make(map[string]geo.ItemStatus, len(accessions))
	for _, acc := range accessions {
		items[acc] = geo.ItemPending
	}
	s.jobs[job.ID] = job
	s.items[job.ID] = items
	return job, nil
}

// SetItemStatus updates one item's status.
func (s *JobStore) SetItemStatus(
	_ context.Context,
	jobID int64,
	accession string,
	status geo.ItemStatus,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	items, ok := s.items[jobID]
	if !ok {
		return fmt.Errorf("job %d: %w", jobID, geo.ErrNotFound)
	}
	if _, ok := items[accession]; !ok {
		return fmt.Errorf("job %d item %s: %w", jobID, accession, geo.ErrNotFound)
	}
	items[accession] = status
	return nil
}

// SetJobStatus updates one job's status.
func (s *JobStore) SetJobStatus(_ context.Context, jobID int64, status geo.JobStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return fmt.Errorf("job %d: %w", jobID, geo.ErrNotFound)
	}
	job.Status = status
	s.jobs[jobID] = job
	return nil
}

// GetJob fetches a job by ID.
func (s *JobStore) GetJob(_ context.Context, jobID int64) (geo.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return geo.Job{}, geo.ErrNotFound
	}
	return job, nil
}

// ListJobs returns all jobs, most recent first.
func (s *JobStore) ListJobs(_ context.Context) ([]geo.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	jobs := make([]geo.Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		jobs = append(jobs, job)
	}
	sort.Slice(jobs, func(i, j int) bool {
		if jobs[i].CreatedAt.Equal(jobs[j].CreatedAt) {
			return jobs[i].ID > jobs[j].ID
		}
		return jobs[i].CreatedAt.After(jobs[j].CreatedAt)
	})
	return jobs, nil
}

// ListItems returns the items of one job ordered by accession.
func (s *JobStore) ListItems(_ context.Context, jobID int64) ([]geo.JobItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	items, ok := s.items[jobID]
	if !ok {
		return nil, fmt.Errorf("job %d: %w", jobID, geo.ErrNotFound)
	}
	out := make([]geo.JobItem, 0, len(items))
	for acc, status := range items {
		out = append(out, geo.JobItem{JobID: jobID, Accession: acc, Status: status})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Accession < out[j].Accession })
	return out, nil
}
