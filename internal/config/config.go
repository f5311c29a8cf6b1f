package config

import (
	"slices"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store   StoreConfig   `yaml:"store" mapstructure:"store"`
	Server  ServerConfig  `yaml:"server" mapstructure:"server"`
	Log     LogConfig     `yaml:"log" mapstructure:"log"`
	Extract ExtractConfig `yaml:"extract" mapstructure:"extract"`
	DSL     DSLConfig     `yaml:"dsl" mapstructure:"dsl"`
	Render  RenderConfig  `yaml:"render" mapstructure:"render"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port        int      `yaml:"port" mapstructure:"port"`
	RateLimit   float64  `yaml:"rate_limit" mapstructure:"rate_limit"`
	RateBurst   int      `yaml:"rate_burst" mapstructure:"rate_burst"`
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// ExtractConfig configures variable extraction.
type ExtractConfig struct {
	Version     string `yaml:"version" mapstructure:"version"`
	MaxExamples int    `yaml:"max_examples" mapstructure:"max_examples"`
}

// DSLConfig configures template parsing.
type DSLConfig struct {
	LenientIfClose bool `yaml:"lenient_if_close" mapstructure:"lenient_if_close"`
}

// RenderConfig configures feedback rendering.
type RenderConfig struct {
	Partial       bool `yaml:"partial" mapstructure:"partial"`
	Precision     int  `yaml:"precision" mapstructure:"precision"`
	MaxConcurrent int  `yaml:"max_concurrent" mapstructure:"max_concurrent"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("FEEDBACK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.database_url", "")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.rate_limit", 20)
	v.SetDefault("server.rate_burst", 40)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("extract.version", "v1")
	v.SetDefault("extract.max_examples", 3)
	v.SetDefault("dsl.lenient_if_close", false)
	v.SetDefault("render.partial", false)
	v.SetDefault("render.precision", 2)
	v.SetDefault("render.max_concurrent", 8)

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

var drivers = []string{"postgres", "sqlite"}

// Validate checks the settings a command mode depends on. Modes: "serve",
// "store" (any command touching the database) and "offline" (file-only
// commands).
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "serve":
		if c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
		if c.Server.RateLimit <= 0 {
			errs = append(errs, "server.rate_limit must be > 0")
		}
		if c.Server.RateBurst <= 0 {
			errs = append(errs, "server.rate_burst must be > 0")
		}
		errs = append(errs, c.storeErrors()...)
	case "store":
		errs = append(errs, c.storeErrors()...)
	case "offline":
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if c.Extract.Version == "" {
		errs = append(errs, "extract.version is required")
	}
	if c.Extract.MaxExamples < 0 {
		errs = append(errs, "extract.max_examples must be >= 0")
	}
	if c.Render.Precision <= 0 {
		errs = append(errs, "render.precision must be > 0")
	}
	if c.Render.MaxConcurrent <= 0 {
		errs = append(errs, "render.max_concurrent must be > 0")
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (c *Config) storeErrors() []string {
	var errs []string
	if !slices.Contains(drivers, c.Store.Driver) {
		errs = append(errs, "store.driver must be one of "+strings.Join(drivers, ", "))
	}
	if c.Store.DatabaseURL == "" && c.Store.Driver != "sqlite" {
		errs = append(errs, "store.database_url is required")
	}
	return errs
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
