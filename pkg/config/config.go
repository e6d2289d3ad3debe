package config

import (
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds application configuration loaded from environment variables or config files.
type Config struct {
	AppEnv          string        `mapstructure:"APP_ENV" validate:"required,oneof=development staging production test"`
	HTTPAddr        string        `mapstructure:"HTTP_ADDR" validate:"required,hostname_port"`
	ShutdownTimeout time.Duration `mapstructure:"SHUTDOWN_TIMEOUT" validate:"required"`
	CORSOrigins     []string      `mapstructure:"CORS_ORIGINS"`
	RateLimitRPS    float64       `mapstructure:"RATE_LIMIT_RPS" validate:"gte=0"`
	RateLimitBurst  int           `mapstructure:"RATE_LIMIT_BURST" validate:"gte=0"`

	LogLevel  string `mapstructure:"LOG_LEVEL" validate:"required,oneof=debug info warn error dpanic panic fatal"`
	LogFormat string `mapstructure:"LOG_FORMAT" validate:"required,oneof=json console"`

	// StorageDriver selects the primary document store. The local data file
	// is always kept as the load fallback.
	StorageDriver string `mapstructure:"STORAGE_DRIVER" validate:"required,oneof=file postgres"`
	DatabaseURL   string `mapstructure:"DATABASE_URL" validate:"required_if=StorageDriver postgres,omitempty,url|uri"`
	DataFile      string `mapstructure:"DATA_FILE" validate:"required"`
	DataBackup    bool   `mapstructure:"DATA_BACKUP"`
	DocumentKey   string `mapstructure:"DOCUMENT_KEY" validate:"required"`
	RevisionKeep  int    `mapstructure:"REVISION_KEEP" validate:"gte=0"`

	RedisAddr     string        `mapstructure:"REDIS_ADDR" validate:"omitempty,hostname_port"`
	RedisPassword string        `mapstructure:"REDIS_PASSWORD"`
	RedisChannel  string        `mapstructure:"REDIS_CHANNEL"`
	CacheTTL      time.Duration `mapstructure:"CACHE_TTL"`

	AsynqConcurrency int `mapstructure:"ASYNQ_CONCURRENCY" validate:"gte=1,lte=1000"`

	UndoCapacity       int     `mapstructure:"UNDO_CAPACITY" validate:"gte=1,lte=10000"`
	VertexHitThreshold float64 `mapstructure:"VERTEX_HIT_THRESHOLD" validate:"gt=0"`
	SimplifyEpsilon    float64 `mapstructure:"SIMPLIFY_EPSILON" validate:"gte=0"`

	GoMaxProcs int `mapstructure:"GOMAXPROCS" validate:"gte=0,lte=4096"`
}

var (
	cfg      *Config
	validate = validator.New(validator.WithRequiredStructEnabled())
)

var keys = []string{
	"APP_ENV",
	"HTTP_ADDR",
	"SHUTDOWN_TIMEOUT",
	"CORS_ORIGINS",
	"RATE_LIMIT_RPS",
	"RATE_LIMIT_BURST",
	"LOG_LEVEL",
	"LOG_FORMAT",
	"STORAGE_DRIVER",
	"DATABASE_URL",
	"DATA_FILE",
	"DATA_BACKUP",
	"DOCUMENT_KEY",
	"REVISION_KEEP",
	"REDIS_ADDR",
	"REDIS_PASSWORD",
	"REDIS_CHANNEL",
	"CACHE_TTL",
	"ASYNQ_CONCURRENCY",
	"UNDO_CAPACITY",
	"VERTEX_HIT_THRESHOLD",
	"SIMPLIFY_EPSILON",
	"GOMAXPROCS",
}

// Load initializes configuration using Viper. It loads from .env if present,
// applies defaults, binds env vars, and validates the result.
func Load() (*Config, error) {
	// Load .env if present (non-fatal)
	_ = godotenv.Load(".env.local")
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AutomaticEnv()

	v.SetDefault("APP_ENV", "development")
	v.SetDefault("HTTP_ADDR", "0.0.0.0:8080")
	v.SetDefault("SHUTDOWN_TIMEOUT", "15s")
	v.SetDefault("CORS_ORIGINS", "*")
	v.SetDefault("RATE_LIMIT_RPS", 10.0)
	v.SetDefault("RATE_LIMIT_BURST", 20)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
	v.SetDefault("STORAGE_DRIVER", "file")
	v.SetDefault("DATA_FILE", "data/territories.json")
	v.SetDefault("DATA_BACKUP", false)
	v.SetDefault("DOCUMENT_KEY", "default")
	v.SetDefault("REVISION_KEEP", 0)
	v.SetDefault("REDIS_CHANNEL", "territory-events")
	v.SetDefault("CACHE_TTL", "10m")
	v.SetDefault("ASYNQ_CONCURRENCY", 1)
	v.SetDefault("UNDO_CAPACITY", 50)
	v.SetDefault("VERTEX_HIT_THRESHOLD", 10.0)
	v.SetDefault("SIMPLIFY_EPSILON", 2.0)
	v.SetDefault("GOMAXPROCS", 0)

	// Optional config file
	_ = v.ReadInConfig()

	for _, key := range keys {
		_ = v.BindEnv(key)
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("config unmarshal error: %w", err)
	}

	for key, dst := range map[string]*time.Duration{
		"SHUTDOWN_TIMEOUT": &c.ShutdownTimeout,
		"CACHE_TTL":        &c.CacheTTL,
	} {
		if s := v.GetString(key); s != "" {
			d, err := time.ParseDuration(s)
			if err != nil {
				return nil, fmt.Errorf("invalid %s: %w", key, err)
			}
			*dst = d
		}
	}

	if err := validate.Struct(&c); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	if c.GoMaxProcs > 0 {
		runtime.GOMAXPROCS(c.GoMaxProcs)
	}

	cfg = &c
	return cfg, nil
}

// MustLoad loads configuration or exits the process on failure.
func MustLoad() *Config {
	c, err := Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	return c
}

// Get returns the loaded configuration. Panics if not loaded.
func Get() *Config {
	if cfg == nil {
		panic("config not loaded: call config.Load or config.MustLoad first")
	}
	return cfg
}
