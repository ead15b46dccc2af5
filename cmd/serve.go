package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JetBrains-Research/pubtrends-datasets/internal/api"
	"github.com/JetBrains-Research/pubtrends-datasets/internal/linker"
	"github.com/JetBrains-Research/pubtrends-datasets/internal/loader"
	"github.com/JetBrains-Research/pubtrends-datasets/internal/metrics"
	"github.com/JetBrains-Research/pubtrends-datasets/internal/storage/postgres"
)

// newServeCmd creates the 'serve' subcommand hosting the HTTP API.
func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serves the dataset resolution and job progress API",
		Long: `Starts the HTTP server. GET /api/datasets resolves the GEO series referenced
by PubMed publications through the local store, NCBI ELink, and EuropePMC.
GET /api/jobs exposes backfill progress. Prometheus metrics are served on
/metrics.`,
		RunE: runServeCommand,
	}
}

func runServeCommand(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck // best-effort flush

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

	// Local store first, then the remote sources.
	links := linker.NewChain(logger.Named("linker"),
		linker.NewStore(series),
		linker.NewELink(linker.ELinkConfig{BaseURL: cfg.Discovery.BaseURL}, logger.Named("elink")),
		linker.NewEuropePMC(linker.EuropePMCConfig{URL: cfg.EuropePMC.URL}, logger.Named("europepmc")),
	)
	// Quick-view results are cached back into the store so repeat lookups
	// stay local.
	loads := loader.NewChain(logger.Named("loader"),
		loader.NewStore(series),
		loader.NewCaching(
			loader.NewNCBI(loader.NCBIConfig{URL: cfg.GEO.QueryURL}, logger.Named("ncbi_loader")),
			series,
		),
	)

	apiServer := api.NewServer(links, loads, jobs, logger.Named("api"))
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	logger.Info("shutdown complete")
	return nil
}
