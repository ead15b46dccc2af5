package linker

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// accessionPattern matches series accessions in efetch document summaries.
// Series are the only GEO entry type carrying the full metadata set, so only
// GSE accessions are extracted.
var accessionPattern = regexp.MustCompile(`Accession: (GSE\d+)`)

// ELinkConfig configures an ELink linker.
type ELinkConfig struct {
	// BaseURL of the NCBI E-utilities endpoints. Defaults to DefaultEutilsURL.
	BaseURL string
	// Timeout bounds each HTTP request. Defaults to 10s.
	Timeout time.Duration
}

// DefaultEutilsURL is the production NCBI E-utilities endpoint.
const DefaultEutilsURL = "https://eutils.ncbi.nlm.nih.gov/entrez/eutils"

// ELink resolves publication links through the NCBI ELink and EFetch
// services in two hops. ELink translates PubMed IDs into internal GEO
// dataset IDs, and EFetch translates those into series accessions.
type ELink struct {
	client  *http.Client
	baseURL string
	logger  *zap.Logger
}

// NewELink creates an ELink linker.
func NewELink(cfg ELinkConfig, logger *zap.Logger) *ELink {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultEutilsURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ELink{
		client:  &http.Client{Timeout: cfg.Timeout},
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		logger:  logger,
	}
}

type elinkResult struct {
	Error    string `json:"ERROR"`
	LinkSets []struct {
		LinkSetDBs []struct {
			Links []string `json:"links"`
		} `json:"linksetdbs"`
	} `json:"linksets"`
}

// LinkDatasets implements Linker.
func (e *ELink) LinkDatasets(ctx context.Context, pubmedIDs []int64) ([]string, error) {
	if len(pubmedIDs) == 0 {
		return nil, ErrNoPubMedIDs
	}
	geoIDs, err := e.fetchGeoIDs(ctx, pubmedIDs)
	if err != nil {
		return nil, err
	}
	if len(geoIDs) == 0 {
		return nil, nil
	}
	return e.fetchAccessions(ctx, geoIDs)
}

// fetchGeoIDs resolves internal GEO dataset IDs for the given publications.
// The IDs are posted in the request body because large ID sets overflow the
// URL length limit on GET.
func (e *ELink) fetchGeoIDs(ctx context.Context, pubmedIDs []int64) ([]string, error) {
	params := url.Values{
		"dbfrom":   {"pubmed"},
		"db":       {"gds"},
		"linkname": {"pubmed_gds"},
		"retmode":  {"json"},
	}
	body := url.Values{"id": {joinIDs(pubmedIDs)}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		e.baseURL+"/elink.fcgi?"+params.Encode(),
		strings.NewReader(body.Encode()))
	if err != nil {
		return nil, fmt.Errorf("build elink request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("elink request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("elink: unexpected status %d", resp.StatusCode)
	}

	var result elinkResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode elink response: %w", err)
	}
	if result.Error != "" {
		return nil, fmt.Errorf("elink: %s", result.Error)
	}
	if len(result.LinkSets) == 0 || len(result.LinkSets[0].LinkSetDBs) == 0 {
		return nil, nil
	}
	return result.LinkSets[0].LinkSetDBs[0].Links, nil
}

// fetchAccessions translates GEO dataset IDs into series accessions by
// scanning efetch document summaries.
func (e *ELink) fetchAccessions(ctx context.Context, geoIDs []string) ([]string, error) {
	params := url.Values{
		"db": {"gds"},
		"id": {strings.Join(geoIDs, ",")},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		e.baseURL+"/efetch.fcgi?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build efetch request: %w", err)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("efetch request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("efetch: unexpected status %d", resp.StatusCode)
	}

	summaries, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read efetch response: %w", err)
	}

	matches := accessionPattern.FindAllStringSubmatch(string(summaries), -1)
	accessions := make([]string, 0, len(matches))
	for _, m := range matches {
		accessions = append(accessions, m[1])
	}
	return accessions, nil
}

func joinIDs(ids []int64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return strings.Join(parts, ",")
}
