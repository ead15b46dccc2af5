package cmd

import (
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JetBrains-Research/pubtrends-datasets/internal/backfill"
	"github.com/JetBrains-Research/pubtrends-datasets/internal/discovery"
	"github.com/JetBrains-Research/pubtrends-datasets/internal/fetcher"
	"github.com/JetBrains-Research/pubtrends-datasets/internal/metrics"
	"github.com/JetBrains-Research/pubtrends-datasets/internal/soft"
	"github.com/JetBrains-Research/pubtrends-datasets/internal/storage/postgres"
)

const dateLayout = "2006-01-02"

// newBackfillCmd creates the 'backfill' subcommand. It ingests every GEO
// series whose last-update date falls inside the given range.
func newBackfillCmd() *cobra.Command {
	var (
		skipExisting   bool
		ignoreFailures bool
	)
	cmd := &cobra.Command{
		Use:   "backfill <start> [end]",
		Short: "Ingests GEO series updated in a date range",
		Long: `Discovers the accessions of GEO series updated between <start> and [end]
(dates in YYYY-MM-DD form, end defaulting to today), downloads their family
archives, and upserts the parsed metadata. Progress is tracked as a job with
one item per accession.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBackfillCommand(cmd, args, skipExisting, ignoreFailures)
		},
	}
	cmd.Flags().BoolVar(&skipExisting, "skip-existing", false, "skip accessions already present in the store")
	cmd.Flags().BoolVar(&ignoreFailures, "ignore-failures", false, "keep going when individual series fail")
	return cmd
}

func runBackfillCommand(cmd *cobra.Command, args []string, skipExisting, ignoreFailures bool) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck // best-effort flush

	start, err := time.Parse(dateLayout, args[0])
	if err != nil {
		return fmt.Errorf("invalid start date %q: expected YYYY-MM-DD", args[0])
	}
	end := time.Now().UTC()
	if len(args) == 2 {
		end, err = time.Parse(dateLayout, args[1])
		if err != nil {
			return fmt.Errorf("invalid end date %q: expected YYYY-MM-DD", args[1])
		}
	}
	if end.Before(start) {
		return errors.New("end date must not precede start date")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics.Init()

	series, err := postgres.NewSeriesStore(ctx, cfg.DB.DSN, logger.Named("series_store"))
	if err != nil {
		return fmt.Errorf("connect series store: %w", err)
	}
	defer series.Close()
	jobs, err := postgres.NewJobStore(ctx, cfg.DB.DSN, logger.Named("job_store"))
	if err != nil {
		return fmt.Errorf("connect job store: %w", err)
	}
	defer jobs.Close()

	discoverer := discovery.New(discovery.Config{
		BaseURL:           cfg.Discovery.BaseURL,
		MaxAttempts:       cfg.Discovery.MaxAttempts,
		RequestsPerSecond: float64(cfg.Discovery.RequestsPerSecond),
		RetMax:            cfg.Discovery.RetMax,
	}, logger.Named("discovery"))

	fetch := fetcher.New(fetcher.Config{
		BaseURL:        cfg.GEO.FTPBaseURL,
		DownloadDir:    cfg.GEO.DownloadFolder,
		MaxConnections: cfg.GEO.MaxConnections,
		MaxAttempts:    cfg.GEO.MaxAttempts,
		RetryBaseDelay: cfg.GEO.RetryBaseDelay(),
	}, logger.Named("fetcher"))

	pool := soft.NewPool(cfg.GEO.ParserWorkers, logger.Named("parser"))
	defer pool.Close()

	runner := backfill.New(discoverer, fetch, pool, series, jobs, logger.Named("backfill"))
	records, err := runner.Run(ctx, start, end, backfill.Options{
		SkipExisting:   skipExisting,
		IgnoreFailures: ignoreFailures,
	})
	if err != nil {
		return fmt.Errorf("backfill: %w", err)
	}

	logger.Info("backfill finished",
		zap.Int("series_ingested", len(records)),
		zap.String("range_start", start.Format(dateLayout)),
		zap.String("range_end", end.Format(dateLayout)),
	)
	return nil
}
