package backfill

import (
	"bytes"
	"compress/gzip"
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JetBrains-Research/pubtrends-datasets/internal/fetcher"
	"github.com/JetBrains-Research/pubtrends-datasets/internal/geo"
	"github.com/JetBrains-Research/pubtrends-datasets/internal/soft"
	"github.com/JetBrains-Research/pubtrends-datasets/internal/storage/memory"
)

type fakeDiscoverer struct {
	accessions []string
	err        error
}

func (d *fakeDiscoverer) Accessions(_ context.Context, _, _ time.Time) ([]string, error) {
	return d.accessions, d.err
}

// fakeFetcher records per-accession call counts and can fail selectively or
// block until cancellation.
type fakeFetcher struct {
	mu    sync.Mutex
	calls map[string]int
	errs  map[string]error
	block bool
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{calls: make(map[string]int), errs: make(map[string]error)}
}

func (f *fakeFetcher) Fetch(ctx context.Context, accession string) (string, error) {
	f.mu.Lock()
	f.calls[accession]++
	f.mu.Unlock()
	if f.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	if err := f.errs[accession]; err != nil {
		return "", err
	}
	return filepath.Join("downloads", accession+".soft.gz"), nil
}

func (f *fakeFetcher) callCount(accession string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[accession]
}

// fakeParser derives the record from the archive file name.
type fakeParser struct{}

func (fakeParser) Parse(_ context.Context, path string) (geo.Series, error) {
	accession := strings.TrimSuffix(filepath.Base(path), ".soft.gz")
	return geo.Series{Accession: accession, Title: "Title " + accession}, nil
}

func newTestBackfiller(
	d geo.Discoverer,
	f ArchiveFetcher,
	series *memory.SeriesStore,
	jobs *memory.JobStore,
) *Backfiller {
	return New(d, f, fakeParser{}, series, jobs, zap.NewNop())
}

func itemStatuses(t *testing.T, jobs *memory.JobStore, jobID int64) map[string]geo.ItemStatus {
	t.Helper()
	items, err := jobs.ListItems(context.Background(), jobID)
	require.NoError(t, err)
	out := make(map[string]geo.ItemStatus, len(items))
	for _, item := range items {
		out[item.Accession] = item.Status
	}
	return out
}

func TestRunIngestsAllDiscoveredSeries(t *testing.T) {
	t.Parallel()

	series := memory.NewSeriesStore()
	jobs := memory.NewJobStore()
	b := newTestBackfiller(
		&fakeDiscoverer{accessions: []string{"GSE1", "GSE2", "GSE3"}},
		newFakeFetcher(), series, jobs)

	got, err := b.Run(context.Background(), time.Now().AddDate(0, -1, 0), time.Now(), Options{})
	require.NoError(t, err)
	require.Len(t, got, 3)
	// Discovery order is preserved in the returned records.
	assert.Equal(t, "GSE1", got[0].Accession)
	assert.Equal(t, "GSE2", got[1].Accession)
	assert.Equal(t, "GSE3", got[2].Accession)
	assert.Equal(t, 3, series.Len())

	job, err := jobs.GetJob(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, geo.JobSuccessful, job.Status)
	assert.Equal(t, map[string]geo.ItemStatus{
		"GSE1": geo.ItemSuccessful,
		"GSE2": geo.ItemSuccessful,
		"GSE3": geo.ItemSuccessful,
	}, itemStatuses(t, jobs, job.ID))
}

func TestRunCreatesPendingItemsAtJobCreation(t *testing.T) {
	t.Parallel()

	jobs := memory.NewJobStore()
	job, err := jobs.CreateJob(context.Background(),
		[]string{"GSE1", "GSE2", "GSE3"}, time.Now(), time.Now())
	require.NoError(t, err)

	statuses := itemStatuses(t, jobs, job.ID)
	require.Len(t, statuses, 3)
	for acc, status := range statuses {
		assert.Equal(t, geo.ItemPending, status, acc)
	}
}

func TestRunEmptyDiscovery(t *testing.T) {
	t.Parallel()

	jobs := memory.NewJobStore()
	b := newTestBackfiller(&fakeDiscoverer{}, newFakeFetcher(), memory.NewSeriesStore(), jobs)

	got, err := b.Run(context.Background(), time.Now(), time.Now(), Options{})
	require.NoError(t, err)
	assert.Empty(t, got)

	job, err := jobs.GetJob(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, geo.JobSuccessful, job.Status)
	items, err := jobs.ListItems(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestRunDiscoveryFailureCreatesNoJob(t *testing.T) {
	t.Parallel()

	jobs := memory.NewJobStore()
	b := newTestBackfiller(&fakeDiscoverer{err: assert.AnError},
		newFakeFetcher(), memory.NewSeriesStore(), jobs)

	_, err := b.Run(context.Background(), time.Now(), time.Now(), Options{})
	require.ErrorIs(t, err, assert.AnError)

	all, err := jobs.ListJobs(context.Background())
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestRunFirstFailureAbortsRun(t *testing.T) {
	t.Parallel()

	f := newFakeFetcher()
	f.errs["GSE2"] = assert.AnError
	jobs := memory.NewJobStore()
	b := newTestBackfiller(&fakeDiscoverer{accessions: []string{"GSE2"}},
		f, memory.NewSeriesStore(), jobs)

	_, err := b.Run(context.Background(), time.Now(), time.Now(), Options{IgnoreFailures: false})
	require.ErrorIs(t, err, assert.AnError)

	job, getErr := jobs.GetJob(context.Background(), 1)
	require.NoError(t, getErr)
	assert.Equal(t, geo.JobFailed, job.Status)
	assert.Equal(t, map[string]geo.ItemStatus{"GSE2": geo.ItemFailed},
		itemStatuses(t, jobs, job.ID))
}

func TestRunIgnoreFailuresReturnsSuccessesOnly(t *testing.T) {
	t.Parallel()

	f := newFakeFetcher()
	f.errs["GSE2"] = assert.AnError
	series := memory.NewSeriesStore()
	jobs := memory.NewJobStore()
	b := newTestBackfiller(&fakeDiscoverer{accessions: []string{"GSE1", "GSE2", "GSE3"}},
		f, series, jobs)

	got, err := b.Run(context.Background(), time.Now(), time.Now(), Options{IgnoreFailures: true})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "GSE1", got[0].Accession)
	assert.Equal(t, "GSE3", got[1].Accession)

	job, getErr := jobs.GetJob(context.Background(), 1)
	require.NoError(t, getErr)
	// The pipeline itself completed even though one item failed.
	assert.Equal(t, geo.JobSuccessful, job.Status)
	assert.Equal(t, map[string]geo.ItemStatus{
		"GSE1": geo.ItemSuccessful,
		"GSE2": geo.ItemFailed,
		"GSE3": geo.ItemSuccessful,
	}, itemStatuses(t, jobs, job.ID))
}

func TestRunSkipExistingAvoidsFetch(t *testing.T) {
	t.Parallel()

	existing := geo.Series{Accession: "GSE1", Title: "Already here"}
	series := memory.NewSeriesStore()
	require.NoError(t, series.Save(context.Background(), []geo.Series{existing}))

	f := newFakeFetcher()
	jobs := memory.NewJobStore()
	b := newTestBackfiller(&fakeDiscoverer{accessions: []string{"GSE1"}}, f, series, jobs)

	got, err := b.Run(context.Background(), time.Now(), time.Now(), Options{SkipExisting: true})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, existing, got[0])
	assert.Zero(t, f.callCount("GSE1"))

	assert.Equal(t, map[string]geo.ItemStatus{"GSE1": geo.ItemSuccessful},
		itemStatuses(t, jobs, 1))
}

func TestRunCancellationMarksJobCancelled(t *testing.T) {
	t.Parallel()

	f := newFakeFetcher()
	f.block = true
	jobs := memory.NewJobStore()
	b := newTestBackfiller(&fakeDiscoverer{accessions: []string{"GSE1", "GSE2"}},
		f, memory.NewSeriesStore(), jobs)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := b.Run(ctx, time.Now(), time.Now(), Options{})
		done <- err
	}()

	require.Eventually(t, func() bool {
		return f.callCount("GSE1") > 0 && f.callCount("GSE2") > 0
	}, time.Second, 5*time.Millisecond)
	cancel()

	err := <-done
	require.ErrorIs(t, err, context.Canceled)

	job, getErr := jobs.GetJob(context.Background(), 1)
	require.NoError(t, getErr)
	assert.Equal(t, geo.JobCancelled, job.Status)
	// Abandoned in-flight items never settled.
	for acc, status := range itemStatuses(t, jobs, job.ID) {
		assert.Equal(t, geo.ItemPending, status, acc)
	}
}

// End-to-end: real fetcher and parse pool against a local archive server.
func TestRunWithRealFetcherAndParser(t *testing.T) {
	t.Parallel()

	const document = "^SERIES = GSE000000\n" +
		"!Series_title = Title\n" +
		"!Series_geo_accession = GSE000000\n" +
		"!Series_pubmed_id = 12345\n"
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	_, err := gz.Write([]byte(document))
	require.NoError(t, err)
	require.NoError(t, gz.Close())

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t,
			"/geo/series/GSE000nnn/GSE000000/soft/GSE000000_family.soft.gz",
			r.URL.Path)
		_, _ = w.Write(buf.Bytes())
	}))
	defer srv.Close()

	f := fetcher.New(fetcher.Config{
		BaseURL:        srv.URL,
		DownloadDir:    t.TempDir(),
		MaxConnections: 2,
		MaxAttempts:    3,
	}, zap.NewNop())
	pool := soft.NewPool(1, zap.NewNop())
	defer pool.Close()

	series := memory.NewSeriesStore()
	jobs := memory.NewJobStore()
	b := New(&fakeDiscoverer{accessions: []string{"GSE000000"}}, f, pool, series, jobs, zap.NewNop())

	got, err := b.Run(context.Background(), time.Now().AddDate(0, 0, -7), time.Now(), Options{})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "GSE000000", got[0].Accession)
	assert.Equal(t, "Title", got[0].Title)
	require.NotNil(t, got[0].PubMedID)
	assert.Equal(t, int64(12345), *got[0].PubMedID)

	job, err := jobs.GetJob(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, geo.JobSuccessful, job.Status)
	assert.Equal(t, map[string]geo.ItemStatus{"GSE000000": geo.ItemSuccessful},
		itemStatuses(t, jobs, job.ID))
}
