// Package config loads application configuration from file and environment
// and initializes the global logger.
package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Sources   SourcesConfig   `yaml:"sources" mapstructure:"sources"`
	Query     QueryConfig     `yaml:"query" mapstructure:"query"`
	Reconcile ReconcileConfig `yaml:"reconcile" mapstructure:"reconcile"`
	Download  DownloadConfig  `yaml:"download" mapstructure:"download"`
	Catalog   CatalogConfig   `yaml:"catalog" mapstructure:"catalog"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// SourcesConfig holds per-backend catalog endpoints and credentials.
type SourcesConfig struct {
	CDSE        CDSEConfig        `yaml:"cdse" mapstructure:"cdse"`
	EarthSearch EarthSearchConfig `yaml:"earth_search" mapstructure:"earth_search"`
}

// CDSEConfig holds Copernicus Data Space STAC and OAuth settings.
type CDSEConfig struct {
	BaseURL      string `yaml:"base_url" mapstructure:"base_url"`
	TokenURL     string `yaml:"token_url" mapstructure:"token_url"`
	ClientID     string `yaml:"client_id" mapstructure:"client_id"`
	ClientSecret string `yaml:"client_secret" mapstructure:"client_secret"`
	Collection   string `yaml:"collection" mapstructure:"collection"`
}

// EarthSearchConfig holds AWS Earth Search STAC settings (no auth required).
type EarthSearchConfig struct {
	BaseURL    string `yaml:"base_url" mapstructure:"base_url"`
	Collection string `yaml:"collection" mapstructure:"collection"`
}

// QueryConfig holds the default spatio-temporal matchup window.
type QueryConfig struct {
	TimeDeltaDays int     `yaml:"time_delta_days" mapstructure:"time_delta_days"`
	MaxCloudCover float64 `yaml:"max_cloud_cover" mapstructure:"max_cloud_cover"`
	TimeoutSecs   int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	Concurrency   int     `yaml:"concurrency" mapstructure:"concurrency"`
}

// ReconcileConfig holds cross-source pairing policy. The tolerance decides
// when two records from different catalogs describe the same physical pass.
type ReconcileConfig struct {
	PairToleranceMinutes int `yaml:"pair_tolerance_minutes" mapstructure:"pair_tolerance_minutes"`
}

// DownloadConfig configures the asset download stage.
type DownloadConfig struct {
	Concurrency int `yaml:"concurrency" mapstructure:"concurrency"`
	MaxRetries  int `yaml:"max_retries" mapstructure:"max_retries"`
	TimeoutSecs int `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// CatalogConfig configures catalog persistence.
type CatalogConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("MATCHUP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("sources.cdse.base_url", "https://sh.dataspace.copernicus.eu/api/v1/catalog/1.0.0")
	v.SetDefault("sources.cdse.token_url", "https://identity.dataspace.copernicus.eu/auth/realms/CDSE/protocol/openid-connect/token")
	v.SetDefault("sources.cdse.collection", "sentinel-2-l1c")
	// Credentials usually arrive via MATCHUP_SOURCES_CDSE_* env vars; the keys
	// must be registered for viper to surface env-only values on Unmarshal.
	v.SetDefault("sources.cdse.client_id", "")
	v.SetDefault("sources.cdse.client_secret", "")
	v.SetDefault("sources.earth_search.base_url", "https://earth-search.aws.element84.com/v1")
	v.SetDefault("sources.earth_search.collection", "sentinel-2-l2a")
	v.SetDefault("query.time_delta_days", 1)
	v.SetDefault("query.max_cloud_cover", 10)
	v.SetDefault("query.timeout_secs", 30)
	v.SetDefault("query.concurrency", 4)
	v.SetDefault("reconcile.pair_tolerance_minutes", 5)
	v.SetDefault("download.concurrency", 3)
	v.SetDefault("download.max_retries", 3)
	v.SetDefault("download.timeout_secs", 600)
	v.SetDefault("catalog.path", "matchup_catalog.json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
