package fetcher

import (
	"bytes"
	"compress/gzip"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func gzipBody(t *testing.T, content string) []byte {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	_, err := gz.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, gz.Close())
	return buf.Bytes()
}

func newTestFetcher(t *testing.T, serverURL string) *Fetcher {
	t.Helper()
	return New(Config{
		BaseURL:        serverURL,
		DownloadDir:    t.TempDir(),
		MaxConnections: 2,
		MaxAttempts:    3,
		RetryBaseDelay: time.Millisecond,
	}, zap.NewNop())
}

func TestFetchDownloadsArchive(t *testing.T) {
	t.Parallel()

	body := gzipBody(t, "^SERIES = GSE12345\n!Series_title = Title\n")
	var gotPath atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath.Store(r.URL.Path)
		_, _ = w.Write(body)
	}))
	defer srv.Close()

	f := newTestFetcher(t, srv.URL)
	path, err := f.Fetch(context.Background(), "GSE12345")
	require.NoError(t, err)

	assert.Equal(t, "/geo/series/GSE12nnn/GSE12345/soft/GSE12345_family.soft.gz", gotPath.Load())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, body, data)
}

func TestFetchRetriesHTTPErrors(t *testing.T) {
	t.Parallel()

	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		requests.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	f := newTestFetcher(t, srv.URL)
	path, err := f.Fetch(context.Background(), "GSE1")
	require.Error(t, err)
	assert.Empty(t, path)
	assert.Equal(t, int32(3), requests.Load())
	assert.ErrorContains(t, err, "unexpected status 502")
}

func TestFetchRetriesCorruptArchive(t *testing.T) {
	t.Parallel()

	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		requests.Add(1)
		_, _ = w.Write([]byte("this is not gzip"))
	}))
	defer srv.Close()

	dir := t.TempDir()
	f := New(Config{
		BaseURL:        srv.URL,
		DownloadDir:    dir,
		MaxConnections: 1,
		MaxAttempts:    3,
		RetryBaseDelay: time.Millisecond,
	}, zap.NewNop())

	_, err := f.Fetch(context.Background(), "GSE2")
	require.ErrorIs(t, err, ErrCorruptArchive)
	assert.Equal(t, int32(3), requests.Load())

	// No partial artifact survives a failed run.
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestFetchDoesNotRetryCancellation(t *testing.T) {
	t.Parallel()

	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		requests.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	f := newTestFetcher(t, srv.URL)
	_, err := f.Fetch(ctx, "GSE3")
	require.Error(t, err)
	assert.LessOrEqual(t, requests.Load(), int32(1))
}

func TestFetchAbortsStalledBody(t *testing.T) {
	t.Parallel()

	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte{0x1f, 0x8b})
		w.(http.Flusher).Flush()
		// Stall until the client gives up on the body.
		<-r.Context().Done()
	}))
	defer srv.Close()

	dir := t.TempDir()
	f := New(Config{
		BaseURL:        srv.URL,
		DownloadDir:    dir,
		MaxConnections: 1,
		MaxAttempts:    2,
		RetryBaseDelay: time.Millisecond,
		ReadTimeout:    50 * time.Millisecond,
	}, zap.NewNop())

	start := time.Now()
	_, err := f.Fetch(context.Background(), "GSE4")
	require.ErrorIs(t, err, ErrStalledDownload)
	assert.Less(t, time.Since(start), 3*time.Second)
	// A stall burns the retry budget like any network error.
	assert.Equal(t, int32(2), requests.Load())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestFetchRecoversAfterStalledAttempt(t *testing.T) {
	t.Parallel()

	body := gzipBody(t, "^SERIES = GSE5\n!Series_title = T\n")
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if requests.Add(1) == 1 {
			w.WriteHeader(http.StatusOK)
			w.(http.Flusher).Flush()
			<-r.Context().Done()
			return
		}
		_, _ = w.Write(body)
	}))
	defer srv.Close()

	f := New(Config{
		BaseURL:        srv.URL,
		DownloadDir:    t.TempDir(),
		MaxConnections: 1,
		MaxAttempts:    3,
		RetryBaseDelay: time.Millisecond,
		ReadTimeout:    50 * time.Millisecond,
	}, zap.NewNop())

	path, err := f.Fetch(context.Background(), "GSE5")
	require.NoError(t, err)
	assert.Equal(t, int32(2), requests.Load())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, body, data)
}

func TestFetchBoundsConcurrentDownloads(t *testing.T) {
	t.Parallel()

	const maxConnections = 2
	var (
		mu       sync.Mutex
		inFlight int
		peak     int
	)
	body := gzipBody(t, "^SERIES = GSE1\n!Series_title = T\n")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		mu.Lock()
		inFlight++
		if inFlight > peak {
			peak = inFlight
		}
		mu.Unlock()

		time.Sleep(20 * time.Millisecond)

		mu.Lock()
		inFlight--
		mu.Unlock()
		_, _ = w.Write(body)
	}))
	defer srv.Close()

	f := New(Config{
		BaseURL:        srv.URL,
		DownloadDir:    t.TempDir(),
		MaxConnections: maxConnections,
		MaxAttempts:    1,
	}, zap.NewNop())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		accession := "GSE" + string(rune('1'+i))
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.Fetch(context.Background(), accession)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.LessOrEqual(t, peak, maxConnections)
}

func TestRetryPolicy(t *testing.T) {
	t.Parallel()

	p := NewRetryPolicy(3, time.Millisecond)
	assert.False(t, p.ShouldRetry(nil, 1))
	assert.True(t, p.ShouldRetry(assert.AnError, 1))
	assert.True(t, p.ShouldRetry(assert.AnError, 2))
	assert.False(t, p.ShouldRetry(assert.AnError, 3))
	assert.False(t, p.ShouldRetry(context.Canceled, 1))
	assert.False(t, p.ShouldRetry(context.DeadlineExceeded, 1))
}

func TestRetryPolicyBackoffGrows(t *testing.T) {
	t.Parallel()

	p := NewRetryPolicy(5, 100*time.Millisecond)
	for attempt := 1; attempt < 4; attempt++ {
		d := p.Backoff(attempt)
		assert.Greater(t, d, time.Duration(0))
		assert.LessOrEqual(t, d, p.maxDelay)
	}
}
