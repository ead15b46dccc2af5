package linker

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

// DefaultEuropePMCURL is the production EuropePMC annotations endpoint.
const DefaultEuropePMCURL = "https://www.ebi.ac.uk/europepmc/annotations_api/annotationsByArticleIds"

// europePMCBatchSize is the maximum number of article IDs accepted per
// annotations request.
const europePMCBatchSize = 8

// EuropePMCConfig configures a EuropePMC linker.
type EuropePMCConfig struct {
	// URL of the annotations endpoint. Defaults to DefaultEuropePMCURL.
	URL string
	// Timeout bounds each HTTP request. Defaults to 10s.
	Timeout time.Duration
}

// EuropePMC resolves publication links through EuropePMC's text-mined
// accession annotations. Publications are queried in batches of up to
// eight IDs, the API's per-request limit.
type EuropePMC struct {
	client *http.Client
	url    string
	logger *zap.Logger
}

// NewEuropePMC creates a EuropePMC linker.
func NewEuropePMC(cfg EuropePMCConfig, logger *zap.Logger) *EuropePMC {
	if cfg.URL == "" {
		cfg.URL = DefaultEuropePMCURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EuropePMC{
		client: &http.Client{Timeout: cfg.Timeout},
		url:    cfg.URL,
		logger: logger,
	}
}

type pmcArticle struct {
	Annotations []struct {
		Exact string `json:"exact"`
	} `json:"annotations"`
}

// LinkDatasets implements Linker. Annotations may repeat the same accession
// across articles, so the merged result is deduplicated preserving first-seen
// order.
func (e *EuropePMC) LinkDatasets(ctx context.Context, pubmedIDs []int64) ([]string, error) {
	if len(pubmedIDs) == 0 {
		return nil, ErrNoPubMedIDs
	}

	seen := make(map[string]struct{})
	var accessions []string
	for start := 0; start < len(pubmedIDs); start += europePMCBatchSize {
		end := start + europePMCBatchSize
		if end > len(pubmedIDs) {
			end = len(pubmedIDs)
		}
		batch, err := e.fetchBatch(ctx, pubmedIDs[start:end])
		if err != nil {
			return nil, err
		}
		for _, acc := range batch {
			if _, ok := seen[acc]; ok {
				continue
			}
			seen[acc] = struct{}{}
			accessions = append(accessions, acc)
		}
	}
	return accessions, nil
}

func (e *EuropePMC) fetchBatch(ctx context.Context, pubmedIDs []int64) ([]string, error) {
	articleIDs := make([]string, len(pubmedIDs))
	for i, id := range pubmedIDs {
		articleIDs[i] = fmt.Sprintf("MED:%d", id)
	}
	params := url.Values{
		"articleIds": {strings.Join(articleIDs, ",")},
		"type":       {"Accession Numbers"},
		"subType":    {"geo"},
		"format":     {"json"},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.url+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build europepmc request: %w", err)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("europepmc request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("europepmc: unexpected status %d", resp.StatusCode)
	}

	var articles []pmcArticle
	if err := json.NewDecoder(resp.Body).Decode(&articles); err != nil {
		return nil, fmt.Errorf("decode europepmc response: %w", err)
	}

	var accessions []string
	for _, article := range articles {
		for _, annotation := range article.Annotations {
			accessions = append(accessions, annotation.Exact)
		}
	}
	return accessions, nil
}
