package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JetBrains-Research/pubtrends-datasets/internal/geo"
)

const (
	progressTimeout = 3 * time.Second
	datasetsTimeout = 60 * time.Second
	maxPubMedIDs    = 200
)

// getDatasets handles GET /api/datasets?pubmed_ids=1,2,3. It resolves the
// accessions linked to the given publications and loads the matching series.
// Returns {"datasets": [...]} on success, 400 for malformed IDs, or 502 when
// every link source failed.
func (s *Server) getDatasets(w http.ResponseWriter, r *http.Request) {
	pubmedIDs, err := parsePubMedIDs(r)
	if err != nil {
		writeError(w, s.logger, http.StatusBadRequest, err.Error())
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), datasetsTimeout)
	defer cancel()

	accessions, err := s.linker.LinkDatasets(ctx, pubmedIDs)
	if err != nil {
		s.logger.Error("link datasets failed", zap.Error(err))
		writeError(w, s.logger, http.StatusBadGateway, "failed to link datasets")
		return
	}
	series, err := s.loader.LoadSeries(ctx, accessions)
	if err != nil {
		s.logger.Error("load series failed", zap.Error(err))
		writeError(w, s.logger, http.StatusBadGateway, "failed to load datasets")
		return
	}
	writeJSON(w, s.logger, http.StatusOK, map[string]any{
		"datasets": toSeriesDTOs(series),
	})
}

// listJobs handles GET /api/jobs. It returns {"jobs": [...]} most recent
// first, 503 when the store is not configured, or 500 for store errors.
func (s *Server) listJobs(w http.ResponseWriter, r *http.Request) {
	if s.jobs == nil {
		writeError(w, s.logger, http.StatusServiceUnavailable, "job store unavailable")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), progressTimeout)
	defer cancel()

	jobs, err := s.jobs.ListJobs(ctx)
	if err != nil {
		s.logger.Error("list jobs failed", zap.Error(err))
		writeError(w, s.logger, http.StatusInternalServerError, "failed to list jobs")
		return
	}
	writeJSON(w, s.logger, http.StatusOK, map[string]any{
		"jobs": toJobDTOs(jobs),
	})
}

// getJob handles GET /api/jobs/{job_id}. Returns {"job": {...}} on success,
// 400 for malformed IDs, or 404 when the job does not exist.
func (s *Server) getJob(w http.ResponseWriter, r *http.Request) {
	if s.jobs == nil {
		writeError(w, s.logger, http.StatusServiceUnavailable, "job store unavailable")
		return
	}
	jobID, err := parseJobID(r)
	if err != nil {
		writeError(w, s.logger, http.StatusBadRequest, err.Error())
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), progressTimeout)
	defer cancel()

	job, err := s.jobs.GetJob(ctx, jobID)
	if err != nil {
		if errors.Is(err, geo.ErrNotFound) {
			writeError(w, s.logger, http.StatusNotFound, "job not found")
			return
		}
		s.logger.Error("get job failed", zap.Error(err))
		writeError(w, s.logger, http.StatusInternalServerError, "failed to load job")
		return
	}
	writeJSON(w, s.logger, http.StatusOK, map[string]any{"job": toJobDTO(job)})
}

// listJobItems handles GET /api/jobs/{job_id}/items. Returns
// {"items": [...]} ordered by accession.
func (s *Server) listJobItems(w http.ResponseWriter, r *http.Request) {
	if s.jobs == nil {
		writeError(w, s.logger, http.StatusServiceUnavailable, "job store unavailable")
		return
	}
	jobID, err := parseJobID(r)
	if err != nil {
		writeError(w, s.logger, http.StatusBadRequest, err.Error())
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), progressTimeout)
	defer cancel()

	if _, err := s.jobs.GetJob(ctx, jobID); err != nil {
		if errors.Is(err, geo.ErrNotFound) {
			writeError(w, s.logger, http.StatusNotFound, "job not found")
			return
		}
		s.logger.Error("get job failed", zap.Error(err))
		writeError(w, s.logger, http.StatusInternalServerError, "failed to load job")
		return
	}
	items, err := s.jobs.ListItems(ctx, jobID)
	if err != nil {
		s.logger.Error("list job items failed", zap.Error(err))
		writeError(w, s.logger, http.StatusInternalServerError, "failed to list job items")
		return
	}
	writeJSON(w, s.logger, http.StatusOK, map[string]any{
		"items": toItemDTOs(items),
	})
}

func parseJobID(r *http.Request) (int64, error) {
	jobIDStr := chi.URLParam(r, "job_id")
	if jobIDStr == "" {
		return 0, errors.New("job_id is required")
	}
	jobID, err := strconv.ParseInt(jobIDStr, 10, 64)
	if err != nil || jobID <= 0 {
		return 0, errors.New("invalid job_id")
	}
	return jobID, nil
}

func parsePubMedIDs(r *http.Request) ([]int64, error) {
	raw := strings.TrimSpace(r.URL.Query().Get("pubmed_ids"))
	if raw == "" {
		return nil, errors.New("pubmed_ids is required")
	}
	parts := strings.Split(raw, ",")
	if len(parts) > maxPubMedIDs {
		return nil, errors.New("too many pubmed_ids")
	}
	ids := make([]int64, 0, len(parts))
	for _, part := range parts {
		id, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
		if err != nil || id <= 0 {
			return nil, errors.New("invalid pubmed_ids")
		}
		ids = append(ids, id)
	}
	return ids, nil
}

type jobDTO struct {
	ID         int64     `json:"id"`
	CreatedAt  time.Time `json:"created_at"`
	Status     string    `json:"status"`
	RangeStart time.Time `json:"range_start"`
	RangeEnd   time.Time `json:"range_end"`
}

type itemDTO struct {
	Accession string `json:"accession"`
	Status    string `json:"status"`
}

type seriesDTO struct {
	Accession         string `json:"accession"`
	Title             string `json:"title,omitempty"`
	Status            string `json:"status,omitempty"`
	SubmissionDate    string `json:"submission_date,omitempty"`
	LastUpdateDate    string `json:"last_update_date,omitempty"`
	PubMedID          *int64 `json:"pubmed_id,omitempty"`
	Summary           string `json:"summary,omitempty"`
	Type              string `json:"type,omitempty"`
	Contributor       string `json:"contributor,omitempty"`
	WebLink           string `json:"web_link,omitempty"`
	OverallDesign     string `json:"overall_design,omitempty"`
	Contact           string `json:"contact,omitempty"`
	SupplementaryFile string `json:"supplementary_file,omitempty"`
}

func toJobDTOs(in []geo.Job) []jobDTO {
	out := make([]jobDTO, 0, len(in))
	for _, job := range in {
		out = append(out, toJobDTO(job))
	}
	return out
}

func toJobDTO(job geo.Job) jobDTO {
	return jobDTO{
		ID:         job.ID,
		CreatedAt:  job.CreatedAt,
		Status:     string(job.Status),
		RangeStart: job.RangeStart,
		RangeEnd:   job.RangeEnd,
	}
}

func toItemDTOs(in []geo.JobItem) []itemDTO {
	out := make([]itemDTO, 0, len(in))
	for _, item := range in {
		out = append(out, itemDTO{
			Accession: item.Accession,
			Status:    string(item.Status),
		})
	}
	return out
}

func toSeriesDTOs(in []geo.Series) []seriesDTO {
	out := make([]seriesDTO, 0, len(in))
	for _, s := range in {
		out = append(out, seriesDTO{
			Accession:         s.Accession,
			Title:             s.Title,
			Status:            s.Status,
			SubmissionDate:    s.SubmissionDate,
			LastUpdateDate:    s.LastUpdateDate,
			PubMedID:          s.PubMedID,
			Summary:           s.Summary,
			Type:              s.Type,
			Contributor:       s.Contributor,
			WebLink:           s.WebLink,
			OverallDesign:     s.OverallDesign,
			Contact:           s.Contact,
			SupplementaryFile: s.SupplementaryFile,
		})
	}
	return out
}
