// Package main wires together the geodatasets service binaries.
//
// Architecture overview:
//   - Backfill pipeline: the backfill command discovers accessions of GEO
//     series updated in a date range via the E-utilities search API, downloads
//     family archives from the NCBI FTP mirror under a connection semaphore,
//     parses SOFT metadata on a fixed worker pool, and upserts the records
//     into Postgres. Progress is tracked as a job row plus one item row per
//     accession, both driven to terminal statuses even on cancellation.
//   - HTTP API: the serve command hosts dataset resolution (/api/datasets)
//     backed by a chain of linkers (local store, NCBI ELink, EuropePMC) and
//     loaders (local store, GEO quick-view), plus job progress endpoints and
//     Prometheus metrics.
//   - Configuration & plumbing: Viper populates config from env/file with the
//     GEODATASETS prefix; zap provides structured logging; pgx pools back the
//     stores. Shutdown is coordinated via context cancellation from SIGINT or
//     SIGTERM.
package main

import "github.com/JetBrains-Research/pubtrends-datasets/cmd"

func main() {
	cmd.Execute()
}
