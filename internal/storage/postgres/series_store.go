// Package postgres provides Postgres-backed persistence implementations.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/JetBrains-Research/pubtrends-datasets/internal/geo"
)

// db is the subset of pgxpool.Pool the stores use; pgxmock satisfies it.
type db interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
	Begin(ctx context.Context) (pgx.Tx, error)
	Close()
}

// SeriesStore implements geo.SeriesStore on the series table.
type SeriesStore struct {
	pool   db
	logger *zap.Logger
}

// NewSeriesStore connects a SeriesStore to the database at dsn.
func NewSeriesStore(ctx context.Context, dsn string, logger *zap.Logger) (*SeriesStore, error) {
	if dsn == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return NewSeriesStoreWithPool(pool, logger), nil
}

// NewSeriesStoreWithPool constructs a store from an existing pool (primarily
// for testing).
func NewSeriesStoreWithPool(pool db, logger *zap.Logger) *SeriesStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SeriesStore{pool: pool, logger: logger}
}

// Close releases the underlying pool resources.
func (s *SeriesStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

const upsertSeriesSQL = `
INSERT INTO series (
	internal_id, accession, title, status, submission_date, last_update_date,
	pubmed_id, summary, type, contributor, web_link, overall_design,
	repeats, repeats_sample_list, variable, variable_description,
	contact, supplementary_file
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)
ON CONFLICT (accession) DO UPDATE SET
	internal_id = EXCLUDED.internal_id,
	title = EXCLUDED.title,
	status = EXCLUDED.status,
	submission_date = EXCLUDED.submission_date,
	last_update_date = EXCLUDED.last_update_date,
	pubmed_id = EXCLUDED.pubmed_id,
	summary = EXCLUDED.summary,
	type = EXCLUDED.type,
	contributor = EXCLUDED.contributor,
	web_link = EXCLUDED.web_link,
	overall_design = EXCLUDED.overall_design,
	repeats = EXCLUDED.repeats,
	repeats_sample_list = EXCLUDED.repeats_sample_list,
	variable = EXCLUDED.variable,
	variable_description = EXCLUDED.variable_description,
	contact = EXCLUDED.contact,
	supplementary_file = EXCLUDED.supplementary_file`

// Save upserts the records keyed by accession in one batched round trip.
func (s *SeriesStore) Save(ctx context.Context, series []geo.Series) error {
	if len(series) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, rec := range series {
		batch.Queue(upsertSeriesSQL,
			rec.ID,
			rec.Accession,
			rec.Title,
			rec.Status,
			rec.SubmissionDate,
			rec.LastUpdateDate,
			rec.PubMedID,
			rec.Summary,
			rec.Type,
			rec.Contributor,
			rec.WebLink,
			rec.OverallDesign,
			rec.Repeats,
			rec.RepeatsSample,
			rec.Variable,
			rec.VariableDesc,
			rec.Contact,
			rec.SupplementaryFile,
		)
	}
	results := s.pool.SendBatch(ctx, batch)
	defer results.Close() //nolint:errcheck // final Close reports the first error below

	for range series {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("upsert series: %w", err)
		}
	}
	return nil
}

// SaveBestEffort saves records and only logs on failure, so fire-and-forget
// callers never abort their pipeline on a store error.
func (s *SeriesStore) SaveBestEffort(ctx context.Context, series []geo.Series) {
	if err := s.Save(ctx, series); err != nil {
		s.logger.Error("save series failed", zap.Int("count", len(series)), zap.Error(err))
	}
}

const selectSeriesSQL = `
SELECT internal_id, accession, title, status, submission_date, last_update_date,
	pubmed_id, summary, type, contributor, web_link, overall_design,
	repeats, repeats_sample_list, variable, variable_description,
	contact, supplementary_file
FROM series
WHERE accession = ANY($1)`

// Get returns the stored records for the given accessions.
func (s *SeriesStore) Get(ctx context.Context, accessions []string) ([]geo.Series, error) {
	if len(accessions) == 0 {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx, selectSeriesSQL, accessions)
	if err != nil {
		return nil, fmt.Errorf("select series: %w", err)
	}
	defer rows.Close()

	var out []geo.Series
	for rows.Next() {
		var rec geo.Series
		if err := rows.Scan(
			&rec.ID,
			&rec.Accession,
			&rec.Title,
			&rec.Status,
			&rec.SubmissionDate,
			&rec.LastUpdateDate,
			&rec.PubMedID,
			&rec.Summary,
			&rec.Type,
			&rec.Contributor,
			&rec.WebLink,
			&rec.OverallDesign,
			&rec.Repeats,
			&rec.RepeatsSample,
			&rec.Variable,
			&rec.VariableDesc,
			&rec.Contact,
			&rec.SupplementaryFile,
		); err != nil {
			return nil, fmt.Errorf("scan series row: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate series rows: %w", err)
	}
	return out, nil
}

// AccessionsForPubMed returns the accessions of series linked to any of the
// given PubMed IDs, ordered by accession.
func (s *SeriesStore) AccessionsForPubMed(ctx context.Context, pubmedIDs []int64) ([]string, error) {
	if len(pubmedIDs) == 0 {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx,
		`SELECT accession FROM series WHERE pubmed_id = ANY($1) ORDER BY accession`,
		pubmedIDs)
	if err != nil {
		return nil, fmt.Errorf("select accessions by pubmed: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var acc string
		if err := rows.Scan(&acc); err != nil {
			return nil, fmt.Errorf("scan accession: %w", err)
		}
		out = append(out, acc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate accession rows: %w", err)
	}
	return out, nil
}
