// Package fetcher downloads GEO series archives over HTTPS under a global
// concurrency gate.
package fetcher

import (
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/JetBrains-Research/pubtrends-datasets/internal/geo"
	"github.com/JetBrains-Research/pubtrends-datasets/internal/metrics"
)

// ErrCorruptArchive signals that the downloaded bytes are not a valid gzip
// stream. It shares the retry budget with network errors.
var ErrCorruptArchive = errors.New("downloaded archive is not valid gzip")

// ErrStalledDownload signals that the peer stopped sending body bytes for
// longer than Config.ReadTimeout. It shares the retry budget with network
// errors.
var ErrStalledDownload = errors.New("download stalled")

// DefaultBaseURL is the NCBI GEO mirror.
const DefaultBaseURL = "https://ftp.ncbi.nlm.nih.gov"

// Config controls download behavior.
type Config struct {
	// BaseURL is the GEO mirror root; defaults to DefaultBaseURL.
	BaseURL string
	// DownloadDir receives the fetched .soft.gz files.
	DownloadDir string
	// MaxConnections bounds concurrent in-flight downloads process-wide.
	MaxConnections int
	// MaxAttempts is the total attempt budget per accession.
	MaxAttempts int
	// RetryBaseDelay seeds the backoff schedule; zero keeps the default.
	RetryBaseDelay time.Duration
	// ConnectTimeout and HeaderTimeout bound connection setup and the wait
	// for response headers. ReadTimeout bounds the gap between body chunks,
	// not the whole transfer; large archives may legitimately take minutes
	// to stream as long as bytes keep arriving.
	ConnectTimeout time.Duration
	HeaderTimeout  time.Duration
	ReadTimeout    time.Duration
}

// Fetcher downloads one series archive per call, gated by a process-wide
// semaphore sized to Config.MaxConnections.
type Fetcher struct {
	cfg    Config
	client *http.Client
	gate   *semaphore.Weighted
	retry  *RetryPolicy
	logger *zap.Logger
}

// New builds a Fetcher.
func New(cfg Config, logger *zap.Logger) *Fetcher {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.MaxConnections <= 0 {
		cfg.MaxConnections = 4
	}
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}
	if cfg.HeaderTimeout == 0 {
		cfg.HeaderTimeout = 30 * time.Second
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	client := &http.Client{
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   cfg.ConnectTimeout,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			TLSHandshakeTimeout:   15 * time.Second,
			ResponseHeaderTimeout: cfg.HeaderTimeout,
			MaxIdleConns:          cfg.MaxConnections,
			IdleConnTimeout:       90 * time.Second,
		},
	}
	return &Fetcher{
		cfg:    cfg,
		client: client,
		gate:   semaphore.NewWeighted(int64(cfg.MaxConnections)),
		retry:  NewRetryPolicy(cfg.MaxAttempts, cfg.RetryBaseDelay),
		logger: logger,
	}
}

// Fetch downloads the family SOFT archive for one accession and returns the
// local file path. Failed attempts leave no partial file behind; after the
// retry budget is exhausted the last error is returned.
func (f *Fetcher) Fetch(ctx context.Context, accession string) (string, error) {
	url := fmt.Sprintf("%s/%s", f.cfg.BaseURL, geo.ArchivePath(accession))
	path := filepath.Join(f.cfg.DownloadDir, accession+".soft.gz")

	var lastErr error
	for attempt := 1; ; attempt++ {
		err := f.download(ctx, url, path)
		if err == nil {
			return path, nil
		}
		lastErr = err
		if !f.retry.ShouldRetry(err, attempt) {
			break
		}
		metrics.FetchRetried()
		f.logger.Warn("archive download failed, retrying",
			zap.String("accession", accession),
			zap.String("url", url),
			zap.Int("attempt", attempt),
			zap.Error(err))
		select {
		case <-time.After(f.retry.Backoff(attempt)):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	f.logger.Error("archive download failed",
		zap.String("accession", accession),
		zap.String("url", url),
		zap.Error(lastErr))
	return "", lastErr
}

// download performs one gated attempt: stream the body to path, then validate
// the gzip stream. Any failure removes the partial file.
func (f *Fetcher) download(ctx context.Context, url, path string) (err error) {
	if err := f.gate.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("acquire download slot: %w", err)
	}
	defer f.gate.Release(1)

	defer func() {
		if err != nil {
			removeIfExists(path)
		}
	}()

	start := time.Now()
	f.logger.Info("downloading archive", zap.String("url", url))

	reqCtx, cancelReq := context.WithCancel(ctx)
	defer cancelReq()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("get %s: %w", url, err)
	}
	defer resp.Body.Close() //nolint:errcheck // read-only

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("get %s: unexpected status %d", url, resp.StatusCode)
	}

	// The watchdog aborts the request when no body bytes arrive for
	// ReadTimeout; each received chunk rearms it.
	watchdog := time.AfterFunc(f.cfg.ReadTimeout, cancelReq)
	defer watchdog.Stop()

	written, err := writeStream(path, &idleWatchReader{
		body:     resp.Body,
		watchdog: watchdog,
		timeout:  f.cfg.ReadTimeout,
	})
	if err != nil {
		if reqCtx.Err() != nil && ctx.Err() == nil {
			return fmt.Errorf("get %s: %w: no data for %s", url, ErrStalledDownload, f.cfg.ReadTimeout)
		}
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := validateArchive(path); err != nil {
		return err
	}

	metrics.AddFetchBytes(written)
	metrics.ObserveFetchDuration(time.Since(start))
	return nil
}

// idleWatchReader rearms the stall watchdog on every received chunk so that
// only gaps between chunks, not total transfer time, are bounded.
type idleWatchReader struct {
	body     io.Reader
	watchdog *time.Timer
	timeout  time.Duration
}

func (r *idleWatchReader) Read(p []byte) (int, error) {
	n, err := r.body.Read(p)
	if n > 0 {
		r.watchdog.Reset(r.timeout)
	}
	return n, err
}

// writeStream copies the response body to path in chunks rather than
// buffering the whole archive in memory.
func writeStream(path string, body io.Reader) (int64, error) {
	out, err := os.Create(path)
	if err != nil {
		return 0, err
	}
	written, err := io.Copy(out, body)
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	return written, err
}

// validateArchive checks that the file at path starts a readable gzip stream.
func validateArchive(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrCorruptArchive, err)
	}
	defer f.Close() //nolint:errcheck // read-only

	gz, err := gzip.NewReader(f)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrCorruptArchive, err)
	}
	defer gz.Close() //nolint:errcheck // read-only

	buf := make([]byte, 1)
	if _, err := gz.Read(buf); err != nil && err != io.EOF {
		return fmt.Errorf("%w: %s", ErrCorruptArchive, err)
	}
	return nil
}

func removeIfExists(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		zap.L().Warn("remove partial download failed", zap.String("path", path), zap.Error(err))
	}
}
