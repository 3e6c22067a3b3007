// Package config loads application configuration from config.yaml and
// RECON_* environment variables, and initializes the global logger.
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
	Data   DataConfig   `yaml:"data" mapstructure:"data"`
	Audit  AuditConfig  `yaml:"audit" mapstructure:"audit"`
	Runlog RunlogConfig `yaml:"runlog" mapstructure:"runlog"`
	Server ServerConfig `yaml:"server" mapstructure:"server"`
	Log    LogConfig    `yaml:"log" mapstructure:"log"`
}

// DataConfig locates the company data directories and template definitions.
type DataConfig struct {
	Root      string `yaml:"root" mapstructure:"root"`
	Templates string `yaml:"templates" mapstructure:"templates"`
}

// AuditConfig tunes the audit thresholds.
type AuditConfig struct {
	DuplicateMultiplicity int     `yaml:"duplicate_multiplicity" mapstructure:"duplicate_multiplicity"`
	StdDevMultiple        float64 `yaml:"stddev_multiple" mapstructure:"stddev_multiple"`
	AmountCeiling         float64 `yaml:"amount_ceiling" mapstructure:"amount_ceiling"`
	MaxRowRefs            int     `yaml:"max_row_refs" mapstructure:"max_row_refs"`
}

// RunlogConfig configures the run history backend.
type RunlogConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	Path        string `yaml:"path" mapstructure:"path"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	RatePerSecond  float64  `yaml:"rate_per_second" mapstructure:"rate_per_second"`
	RateBurst      int      `yaml:"rate_burst" mapstructure:"rate_burst"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// LogConfig configures logging output.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from config.yaml (if present), environment
// variables with the RECON prefix, and defaults.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("RECON")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("data.root", "companies")
	v.SetDefault("data.templates", "")
	v.SetDefault("audit.duplicate_multiplicity", 2)
	v.SetDefault("audit.stddev_multiple", 3.0)
	v.SetDefault("audit.amount_ceiling", 1000000.0)
	v.SetDefault("audit.max_row_refs", 100)
	v.SetDefault("runlog.driver", "sqlite")
	v.SetDefault("runlog.path", "runs.db")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.rate_per_second", 10.0)
	v.SetDefault("server.rate_burst", 20)
	v.SetDefault("server.allowed_origins", []string{"*"})
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
