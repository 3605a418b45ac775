package config

import (
	"fmt"
	"log"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config carries every runtime knob. Values come from the environment with
// a .env file as a development convenience; defaults are production-safe.
type Config struct {
	Port    int    `envconfig:"PORT" default:"8080"`
	DataDir string `envconfig:"DATA_DIR" default:"./data"`
	DBPath  string `envconfig:"DB_PATH"`

	// IANA zone used for the refresh schedules (daily pricing at 03:00,
	// weekly metadata on Sunday at 02:00).
	LocalTZ          string `envconfig:"LOCAL_TZ" default:"America/New_York"`
	SchedulerEnabled bool   `envconfig:"SCHEDULER_ENABLED" default:"true"`

	RefreshBatchSize int `envconfig:"REFRESH_BATCH_SIZE" default:"200"`

	// Outbound request ceilings, requests per second
	ScrapeRequestsPerSec   float64 `envconfig:"SCRAPE_REQUESTS_PER_SEC" default:"0.5"`
	MetadataRequestsPerSec float64 `envconfig:"METADATA_REQUESTS_PER_SEC" default:"2"`

	ScrapeCacheTTLSeconds int `envconfig:"SCRAPE_CACHE_TTL_SECONDS" default:"3600"`

	PriceChartingBaseURL string `envconfig:"PRICECHARTING_BASE_URL" default:"https://www.pricecharting.com"`
	TCGdexBaseURL        string `envconfig:"TCGDEX_BASE_URL" default:"https://api.tcgdex.net/v2/en"`

	CORSAllowedOrigins []string `envconfig:"CORS_ALLOWED_ORIGINS" default:"http://localhost:3000,http://localhost:5173"`
}

// Load reads a .env file if present, then the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err == nil {
		log.Printf("Config: loaded .env file")
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("processing environment: %w", err)
	}

	if cfg.DBPath == "" {
		cfg.DBPath = filepath.Join(cfg.DataDir, "cataloguer.db")
	}
	if cfg.RefreshBatchSize <= 0 {
		return nil, fmt.Errorf("REFRESH_BATCH_SIZE must be positive, got %d", cfg.RefreshBatchSize)
	}
	if cfg.ScrapeRequestsPerSec <= 0 || cfg.MetadataRequestsPerSec <= 0 {
		return nil, fmt.Errorf("request rates must be positive")
	}

	return &cfg, nil
}
