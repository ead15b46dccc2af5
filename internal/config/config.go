// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	DB        DBConfig        `mapstructure:"db"`
	GEO       GEOConfig       `mapstructure:"geo"`
	Discovery DiscoveryConfig `mapstructure:"discovery"`
	EuropePMC EuropePMCConfig `mapstructure:"europepmc"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// DBConfig controls access to the relational database.
type DBConfig struct {
	DSN string `mapstructure:"dsn"`
}

// GEOConfig governs archive download and parsing behavior.
type GEOConfig struct {
	// FTPBaseURL is the host serving series family archives.
	FTPBaseURL string `mapstructure:"ftp_base_url"`
	// QueryURL is the accession viewer used by the quick-view loader.
	QueryURL string `mapstructure:"query_url"`
	// DownloadFolder holds archives between download and parse.
	DownloadFolder string `mapstructure:"download_folder"`
	// MaxConnections bounds concurrent downloads from the archive host.
	MaxConnections int `mapstructure:"max_connections"`
	// ParserWorkers sizes the parse pool. Zero means one per CPU.
	ParserWorkers int `mapstructure:"parser_workers"`
	// MaxAttempts bounds download retries per accession.
	MaxAttempts int `mapstructure:"max_attempts"`
	// RetryBaseDelayMs is the initial backoff between download attempts.
	RetryBaseDelayMs int `mapstructure:"retry_base_delay_ms"`
}

// DiscoveryConfig configures the E-utilities search client.
type DiscoveryConfig struct {
	BaseURL           string `mapstructure:"base_url"`
	RetMax            int    `mapstructure:"retmax"`
	RequestsPerSecond int    `mapstructure:"requests_per_second"`
	MaxAttempts       int    `mapstructure:"max_attempts"`
}

// EuropePMCConfig configures the annotations-based dataset linker.
type EuropePMCConfig struct {
	URL string `mapstructure:"url"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("GEODATASETS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("geo.ftp_base_url", "https://ftp.ncbi.nlm.nih.gov")
	v.SetDefault("geo.query_url", "https://www.ncbi.nlm.nih.gov/geo/query/acc.cgi")
	v.SetDefault("geo.download_folder", "gse")
	v.SetDefault("geo.max_connections", 10)
	v.SetDefault("geo.parser_workers", 0)
	v.SetDefault("geo.max_attempts", 3)
	v.SetDefault("geo.retry_base_delay_ms", 250)
	v.SetDefault("discovery.base_url", "https://eutils.ncbi.nlm.nih.gov/entrez/eutils")
	v.SetDefault("discovery.retmax", 50000)
	v.SetDefault("discovery.requests_per_second", 3)
	v.SetDefault("discovery.max_attempts", 5)
	v.SetDefault("europepmc.url", "https://www.ebi.ac.uk/europepmc/annotations_api/annotationsByArticleIds")
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.GEO.DownloadFolder == "" {
		return fmt.Errorf("geo.download_folder must be set")
	}
	if c.GEO.MaxConnections <= 0 {
		return fmt.Errorf("geo.max_connections must be > 0")
	}
	if c.GEO.ParserWorkers < 0 {
		return fmt.Errorf("geo.parser_workers must be >= 0")
	}
	if c.GEO.MaxAttempts <= 0 {
		return fmt.Errorf("geo.max_attempts must be > 0")
	}
	if c.Discovery.RequestsPerSecond <= 0 {
		return fmt.Errorf("discovery.requests_per_second must be > 0")
	}
	return nil
}

// RetryBaseDelay converts the configured backoff into a duration.
func (c GEOConfig) RetryBaseDelay() time.Duration {
	return time.Duration(c.RetryBaseDelayMs) * time.Millisecond
}
