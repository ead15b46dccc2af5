package loader

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/JetBrains-Research/pubtrends-datasets/internal/geo"
	"github.com/JetBrains-Research/pubtrends-datasets/internal/soft"
)

// DefaultQueryURL is the production GEO accession viewer endpoint.
const DefaultQueryURL = "https://www.ncbi.nlm.nih.gov/geo/query/acc.cgi"

// NCBIConfig configures an NCBI quick-view loader.
type NCBIConfig struct {
	// URL of the acc.cgi endpoint. Defaults to DefaultQueryURL.
	URL string
	// Timeout bounds each HTTP request. Defaults to 30s.
	Timeout time.Duration
}

// NCBI loads series metadata one accession at a time from GEO's accession
// viewer in quick-view text form. The response uses the same line format as
// family archives, just uncompressed and limited to the series entity.
type NCBI struct {
	client *http.Client
	url    string
	logger *zap.Logger
}

// NewNCBI creates an NCBI quick-view loader.
func NewNCBI(cfg NCBIConfig, logger *zap.Logger) *NCBI {
	if cfg.URL == "" {
		cfg.URL = DefaultQueryURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NCBI{
		client: &http.Client{Timeout: cfg.Timeout},
		url:    cfg.URL,
		logger: logger,
	}
}

// LoadSeries implements Loader. Accessions are fetched sequentially; a
// failed download fails the whole load so that a Chain can report it.
func (n *NCBI) LoadSeries(ctx context.Context, accessions []string) ([]geo.Series, error) {
	series := make([]geo.Series, 0, len(accessions))
	for _, accession := range accessions {
		record, err := n.load(ctx, accession)
		if err != nil {
			return nil, err
		}
		series = append(series, record)
	}
	return series, nil
}

func (n *NCBI) load(ctx context.Context, accession string) (geo.Series, error) {
	params := url.Values{
		"acc":  {accession},
		"targ": {"self"},
		"form": {"text"},
		"view": {"quick"},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, n.url+"?"+params.Encode(), nil)
	if err != nil {
		return geo.Series{}, fmt.Errorf("build request for %s: %w", accession, err)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return geo.Series{}, fmt.Errorf("download %s: %w", accession, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return geo.Series{}, fmt.Errorf("download %s: unexpected status %d", accession, resp.StatusCode)
	}

	meta, err := soft.ParseMetadata(resp.Body)
	if err != nil {
		return geo.Series{}, fmt.Errorf("parse %s: %w", accession, err)
	}
	return soft.Normalize(meta, n.logger), nil
}
