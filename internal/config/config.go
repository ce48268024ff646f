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
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Readiness ReadinessConfig `yaml:"readiness" mapstructure:"readiness"`
	Pairing   PairingConfig   `yaml:"pairing" mapstructure:"pairing"`
	Backfill  BackfillConfig  `yaml:"backfill" mapstructure:"backfill"`
	Sommelier SommelierConfig `yaml:"sommelier" mapstructure:"sommelier"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// ReadinessConfig tunes the readiness calculator. The structure weights
// decide how a red's tannin/acidity/oak/power combine into the aging
// potential score; the bucket cutoffs split that score into low/medium/high
// aging potential.
type ReadinessConfig struct {
	AlgorithmVersion int `yaml:"algorithm_version" mapstructure:"algorithm_version"`

	TanninWeight  float64 `yaml:"tannin_weight" mapstructure:"tannin_weight"`
	AcidityWeight float64 `yaml:"acidity_weight" mapstructure:"acidity_weight"`
	OakWeight     float64 `yaml:"oak_weight" mapstructure:"oak_weight"`
	PowerWeight   float64 `yaml:"power_weight" mapstructure:"power_weight"`

	MediumBucketCutoff float64 `yaml:"medium_bucket_cutoff" mapstructure:"medium_bucket_cutoff"`
	HighBucketCutoff   float64 `yaml:"high_bucket_cutoff" mapstructure:"high_bucket_cutoff"`
}

// PairingConfig tunes lineup selection.
type PairingConfig struct {
	MinRating    float64 `yaml:"min_rating" mapstructure:"min_rating"`
	MaxPowerJump int     `yaml:"max_power_jump" mapstructure:"max_power_jump"`
}

// BackfillConfig tunes the backfill orchestrator.
type BackfillConfig struct {
	BatchSize int `yaml:"batch_size" mapstructure:"batch_size"`
	Workers   int `yaml:"workers" mapstructure:"workers"`
}

// SommelierConfig holds settings for the AI profile source.
type SommelierConfig struct {
	AnthropicKey   string  `yaml:"anthropic_key" mapstructure:"anthropic_key"`
	Model          string  `yaml:"model" mapstructure:"model"`
	RequestsPerSec float64 `yaml:"requests_per_sec" mapstructure:"requests_per_sec"`
	Enabled        bool    `yaml:"enabled" mapstructure:"enabled"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
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
	v.SetEnvPrefix("CELLAR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.database_url", "")
	v.SetDefault("sommelier.anthropic_key", "")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("readiness.algorithm_version", 3)
	v.SetDefault("readiness.tannin_weight", 0.35)
	v.SetDefault("readiness.acidity_weight", 0.25)
	v.SetDefault("readiness.oak_weight", 0.15)
	v.SetDefault("readiness.power_weight", 0.25)
	v.SetDefault("readiness.medium_bucket_cutoff", 2.5)
	v.SetDefault("readiness.high_bucket_cutoff", 4.25)
	v.SetDefault("pairing.min_rating", 70)
	v.SetDefault("pairing.max_power_jump", 4)
	v.SetDefault("backfill.batch_size", 200)
	v.SetDefault("backfill.workers", 5)
	v.SetDefault("sommelier.model", "claude-haiku-4-5-20251001")
	v.SetDefault("sommelier.requests_per_sec", 2)
	v.SetDefault("sommelier.enabled", false)

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
