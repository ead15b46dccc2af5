// Package discovery finds GEO series updated in a date range via the NCBI
// E-utilities search API.
package discovery

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// DefaultBaseURL is the NCBI E-utilities endpoint root.
const DefaultBaseURL = "https://eutils.ncbi.nlm.nih.gov/entrez/eutils"

// GDS ids encode series accessions with a leading "2" and zero padding,
// e.g. 200012345 -> GSE12345.
var gdsIDPattern = regexp.MustCompile(`^20+`)

// Config controls the discovery client.
type Config struct {
	// BaseURL defaults to DefaultBaseURL.
	BaseURL string
	// Timeout bounds each search request.
	Timeout time.Duration
	// MaxAttempts is the total attempt budget per search.
	MaxAttempts int
	// RetryDelay is the fixed wait between attempts.
	RetryDelay time.Duration
	// RequestsPerSecond throttles calls; NCBI allows 3/s without an API key.
	RequestsPerSecond float64
	// RetMax caps the number of ids returned per search.
	RetMax int
}

// Client implements geo.Discoverer against esearch.fcgi.
type Client struct {
	cfg     Config
	client  *http.Client
	limiter *rate.Limiter
	logger  *zap.Logger
}

// New builds a Client.
func New(cfg Config, logger *zap.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = 2 * time.Second
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 3
	}
	if cfg.RetMax <= 0 {
		cfg.RetMax = 50000
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1),
		logger:  logger,
	}
}

type esearchResult struct {
	XMLName xml.Name `xml:"eSearchResult"`
	IDs     []string `xml:"IdList>Id"`
}

// Accessions returns the series accessions whose last-update date falls in
// [start, end], in the order the search API reports them.
func (c *Client) Accessions(ctx context.Context, start, end time.Time) ([]string, error) {
	term := fmt.Sprintf("%s:%s[UDAT] AND (gse[ETYP] OR gds[ETYP])",
		start.Format("2006/01/02"), end.Format("2006/01/02"))
	params := url.Values{
		"db":         {"gds"},
		"term":       {term},
		"retmax":     {strconv.Itoa(c.cfg.RetMax)},
		"usehistory": {"y"},
	}
	endpoint := c.cfg.BaseURL + "/esearch.fcgi?" + params.Encode()

	body, err := c.getWithRetry(ctx, endpoint)
	if err != nil {
		return nil, err
	}

	var result esearchResult
	if err := xml.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("decode esearch response: %w", err)
	}

	accessions := make([]string, 0, len(result.IDs))
	for _, id := range result.IDs {
		accessions = append(accessions, gdsIDPattern.ReplaceAllString(id, "GSE"))
	}
	c.logger.Info("discovered series accessions",
		zap.Int("count", len(accessions)),
		zap.Time("range_start", start),
		zap.Time("range_end", end))
	return accessions, nil
}

func (c *Client) getWithRetry(ctx context.Context, endpoint string) ([]byte, error) {
	var lastErr error
	for attempt := 1; attempt <= c.cfg.MaxAttempts; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit wait: %w", err)
		}
		body, err := c.get(ctx, endpoint)
		if err == nil {
			return body, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
		c.logger.Warn("esearch request failed",
			zap.Int("attempt", attempt), zap.Error(err))
		if attempt < c.cfg.MaxAttempts {
			select {
			case <-time.After(c.cfg.RetryDelay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}
	return nil, fmt.Errorf("esearch failed after %d attempts: %w", c.cfg.MaxAttempts, lastErr)
}

func (c *Client) get(ctx context.Context, endpoint string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get esearch: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck // read-only

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("esearch: unexpected status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read esearch response: %w", err)
	}
	return body, nil
}
