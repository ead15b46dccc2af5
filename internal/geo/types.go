// Package geo defines the core types and interfaces for GEO dataset ingestion.
// It includes the canonical series record, backfill job bookkeeping, and the
// store contracts shared by the Postgres and in-memory implementations.
package geo

import (
	"errors"
	"time"
)

// ErrNotFound signals that the requested record does not exist.
var ErrNotFound = errors.New("record not found")

// Series is the canonical metadata record for one GEO series, keyed by its
// accession (e.g. "GSE12345"). Contact and contributor information is
// flattened into ";\t"-joined strings at normalization time.
type Series struct {
	// ID is the optional numeric internal identifier carried over from
	// GEOmetadb dumps; nil for records ingested directly from NCBI.
	ID *int64
	// Accession uniquely identifies the series and never changes.
	Accession string
	Title     string
	Status    string
	// SubmissionDate and LastUpdateDate keep GEO's own "Mon 02 2006" style
	// date strings verbatim.
	SubmissionDate string
	LastUpdateDate string
	// PubMedID is nil when the series has no publication link or the raw
	// value could not be parsed as an integer.
	PubMedID *int64
	Summary  string
	Type     string
	// Contributor holds the ordered contributor list joined with ";\t".
	Contributor   string
	WebLink       string
	OverallDesign string
	Repeats       string
	RepeatsSample string
	Variable      string
	VariableDesc  string
	// Contact holds "Label: value" segments joined with ";\t".
	Contact           string
	SupplementaryFile string
}

// JobStatus tracks the lifecycle of one backfill job.
type JobStatus string

// Job statuses persisted in jobs.status. A job starts in_progress and moves
// to exactly one of the terminal statuses.
const (
	JobInProgress JobStatus = "in_progress"
	JobSuccessful JobStatus = "successful"
	JobFailed     JobStatus = "failed"
	JobCancelled  JobStatus = "cancelled"
)

// Terminal reports whether no further job status transition is allowed.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobSuccessful, JobFailed, JobCancelled:
		return true
	default:
		return false
	}
}

// ItemStatus tracks one accession's attempt within a backfill job.
type ItemStatus string

// Item statuses persisted in job_items.status.
const (
	ItemPending    ItemStatus = "pending"
	ItemSuccessful ItemStatus = "successful"
	ItemFailed     ItemStatus = "failed"
)

// Job models one backfill run over a last-update date range.
type Job struct {
	ID        int64
	CreatedAt time.Time
	Status    JobStatus
	// RangeStart and RangeEnd bound the last-update dates the job covered.
	RangeStart time.Time
	RangeEnd   time.Time
}

// JobItem records the outcome of one accession within a job.
type JobItem struct {
	JobID     int64
	Accession string
	Status    ItemStatus
}
