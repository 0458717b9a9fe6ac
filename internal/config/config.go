package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/Rezme-Inc/incentive-agent/internal/model"
)

// Config holds the full application configuration.
type Config struct {
	Store StoreConfig `yaml:"store" mapstructure:"store"`
	KB    KBConfig    `yaml:"kb" mapstructure:"kb"`
	Log   LogConfig   `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// KBConfig configures reconciliation and lifecycle policy.
type KBConfig struct {
	SimilarityThreshold float64   `yaml:"similarity_threshold" mapstructure:"similarity_threshold"`
	AgencyWeight        float64   `yaml:"agency_weight" mapstructure:"agency_weight"`
	MissThreshold       int       `yaml:"miss_threshold" mapstructure:"miss_threshold"`
	RefreshConcurrency  int       `yaml:"refresh_concurrency" mapstructure:"refresh_concurrency"`
	TTLDays             TTLConfig `yaml:"ttl_days" mapstructure:"ttl_days"`
}

// TTLConfig holds per-tier freshness TTLs in days.
type TTLConfig struct {
	Federal int `yaml:"federal" mapstructure:"federal"`
	State   int `yaml:"state" mapstructure:"state"`
	County  int `yaml:"county" mapstructure:"county"`
	City    int `yaml:"city" mapstructure:"city"`
}

// Map returns the TTLs keyed by tier for the freshness policy.
func (t TTLConfig) Map() map[model.Tier]int {
	return map[model.Tier]int{
		model.TierFederal: t.Federal,
		model.TierState:   t.State,
		model.TierCounty:  t.County,
		model.TierCity:    t.City,
	}
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
	v.SetEnvPrefix("INCENTIVE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "incentive.db")
	v.SetDefault("kb.similarity_threshold", 0.80)
	v.SetDefault("kb.agency_weight", 0.30)
	v.SetDefault("kb.miss_threshold", 3)
	v.SetDefault("kb.refresh_concurrency", 4)
	v.SetDefault("kb.ttl_days.federal", 30)
	v.SetDefault("kb.ttl_days.state", 30)
	v.SetDefault("kb.ttl_days.county", 14)
	v.SetDefault("kb.ttl_days.city", 7)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

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
