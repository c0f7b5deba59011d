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
	Store  StoreConfig  `yaml:"store" mapstructure:"store"`
	Feed   FeedConfig   `yaml:"feed" mapstructure:"feed"`
	Check  CheckConfig  `yaml:"check" mapstructure:"check"`
	Server ServerConfig `yaml:"server" mapstructure:"server"`
	Log    LogConfig    `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the corpus database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	SQLitePath  string `yaml:"sqlite_path" mapstructure:"sqlite_path"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// FeedConfig configures bulk feed ingestion.
type FeedConfig struct {
	TempDir       string `yaml:"temp_dir" mapstructure:"temp_dir"`
	LayoutFile    string `yaml:"layout_file" mapstructure:"layout_file"`
	FTPTimeout    int    `yaml:"ftp_timeout_secs" mapstructure:"ftp_timeout_secs"`
	ProgressEvery int    `yaml:"progress_every" mapstructure:"progress_every"`
}

// CheckConfig configures availability check behavior.
type CheckConfig struct {
	Jurisdiction   string `yaml:"jurisdiction" mapstructure:"jurisdiction"`
	PerCategoryCap int    `yaml:"per_category_cap" mapstructure:"per_category_cap"`
	MergedCap      int    `yaml:"merged_cap" mapstructure:"merged_cap"`
	MaxSuggestions int    `yaml:"max_suggestions" mapstructure:"max_suggestions"`
}

// ServerConfig configures the availability HTTP server.
type ServerConfig struct {
	Port          int     `yaml:"port" mapstructure:"port"`
	RatePerSecond float64 `yaml:"rate_per_second" mapstructure:"rate_per_second"`
	RateBurst     int     `yaml:"rate_burst" mapstructure:"rate_burst"`
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
	v.SetEnvPrefix("REGISTRY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.sqlite_path", "registry.db")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("feed.temp_dir", "/tmp/registry-feed")
	v.SetDefault("feed.ftp_timeout_secs", 30)
	v.SetDefault("feed.progress_every", 1000)
	v.SetDefault("check.jurisdiction", "FL")
	v.SetDefault("check.per_category_cap", 20)
	v.SetDefault("check.merged_cap", 50)
	v.SetDefault("check.max_suggestions", 5)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.rate_per_second", 25)
	v.SetDefault("server.rate_burst", 50)
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
