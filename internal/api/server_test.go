package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JetBrains-Research/pubtrends-datasets/internal/geo"
	"github.com/JetBrains-Research/pubtrends-datasets/internal/storage/memory"
)

type stubLinker struct {
	accessions []string
	err        error
	gotIDs     []int64
}

func (s *stubLinker) LinkDatasets(_ context.Context, pubmedIDs []int64) ([]string, error) {
	s.gotIDs = pubmedIDs
	return s.accessions, s.err
}

type stubLoader struct {
	series []geo.Series
	err    error
}

func (s *stubLoader) LoadSeries(context.Context, []string) ([]geo.Series, error) {
	return s.series, s.err
}

func newTestServer(t *testing.T, l *stubLinker, ld *stubLoader, jobs geo.JobStore) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(NewServer(l, ld, jobs, zap.NewNop()).Handler())
	t.Cleanup(srv.Close)
	return srv
}

func getJSON(t *testing.T, url string, wantStatus int) map[string]any {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, wantStatus, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body
}

func TestHealthz(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, &stubLinker{}, &stubLoader{}, memory.NewJobStore())
	body := getJSON(t, srv.URL+"/healthz", http.StatusOK)
	assert.Equal(t, "ok", body["status"])
}

func TestGetDatasets(t *testing.T) {
	t.Parallel()

	pubmed := int64(424242)
	l := &stubLinker{accessions: []string{"GSE1"}}
	ld := &stubLoader{series: []geo.Series{{
		Accession: "GSE1",
		Title:     "Profiling",
		PubMedID:  &pubmed,
	}}}
	srv := newTestServer(t, l, ld, memory.NewJobStore())

	body := getJSON(t, srv.URL+"/api/datasets?pubmed_ids=424242,7", http.StatusOK)
	assert.Equal(t, []int64{424242, 7}, l.gotIDs)
	datasets := body["datasets"].([]any)
	require.Len(t, datasets, 1)
	first := datasets[0].(map[string]any)
	assert.Equal(t, "GSE1", first["accession"])
	assert.Equal(t, "Profiling", first["title"])
	assert.EqualValues(t, 424242, first["pubmed_id"])
}

func TestGetDatasetsBadInput(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, &stubLinker{}, &stubLoader{}, memory.NewJobStore())
	for _, query := range []string{"", "?pubmed_ids=", "?pubmed_ids=abc", "?pubmed_ids=1,-2"} {
		body := getJSON(t, srv.URL+"/api/datasets"+query, http.StatusBadRequest)
		assert.NotEmpty(t, body["error"])
	}
}

func TestGetDatasetsLinkerFailure(t *testing.T) {
	t.Parallel()

	l := &stubLinker{err: assert.AnError}
	srv := newTestServer(t, l, &stubLoader{}, memory.NewJobStore())
	body := getJSON(t, srv.URL+"/api/datasets?pubmed_ids=1", http.StatusBadGateway)
	assert.Equal(t, "failed to link datasets", body["error"])
}

func TestJobEndpoints(t *testing.T) {
	t.Parallel()

	jobs := memory.NewJobStore()
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	job, err := jobs.CreateJob(context.Background(), []string{"GSE2", "GSE1"}, start, start.AddDate(0, 1, 0))
	require.NoError(t, err)
	require.NoError(t, jobs.SetItemStatus(context.Background(), job.ID, "GSE1", geo.ItemSuccessful))

	srv := newTestServer(t, &stubLinker{}, &stubLoader{}, jobs)

	body := getJSON(t, srv.URL+"/api/jobs", http.StatusOK)
	list := body["jobs"].([]any)
	require.Len(t, list, 1)
	assert.Equal(t, "in_progress", list[0].(map[string]any)["status"])

	body = getJSON(t, srv.URL+"/api/jobs/1", http.StatusOK)
	assert.EqualValues(t, 1, body["job"].(map[string]any)["id"])

	body = getJSON(t, srv.URL+"/api/jobs/1/items", http.StatusOK)
	items := body["items"].([]any)
	require.Len(t, items, 2)
	// Items come back ordered by accession.
	assert.Equal(t, "GSE1", items[0].(map[string]any)["accession"])
	assert.Equal(t, "successful", items[0].(map[string]any)["status"])
	assert.Equal(t, "pending", items[1].(map[string]any)["status"])
}

func TestJobNotFound(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, &stubLinker{}, &stubLoader{}, memory.NewJobStore())
	body := getJSON(t, srv.URL+"/api/jobs/99", http.StatusNotFound)
	assert.Equal(t, "job not found", body["error"])

	body = getJSON(t, srv.URL+"/api/jobs/99/items", http.StatusNotFound)
	assert.Equal(t, "job not found", body["error"])

	body = getJSON(t, srv.URL+"/api/jobs/notanumber", http.StatusBadRequest)
	assert.Equal(t, "invalid job_id", body["error"])
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, &stubLinker{}, &stubLoader{}, memory.NewJobStore())
	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
