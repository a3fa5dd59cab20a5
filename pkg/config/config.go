package config

import (
	"errors"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database DatabaseConfig
	Redis    RedisConfig
	JWT      JWTConfig
	CORS     CORSConfig
	Log      LogConfig
	Ledger   LedgerConfig
	Rewards  RewardsConfig
	Store    StoreConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret            string
	Expiration        time.Duration
	RefreshExpiration time.Duration
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// LedgerConfig tunes the reconciliation sweep and transaction listing.
type LedgerConfig struct {
	ReconcileInterval  time.Duration
	ReconcileBatchSize int
	ReconcileWorkers   int
	MaxPageSize        int
}

// RewardsConfig governs batch rule application and duplicate detection.
type RewardsConfig struct {
	MaxBatchSize      int
	IdempotencyTTL    time.Duration
	IdempotencyWindow time.Duration
}

// StoreConfig bounds order shapes accepted by the debit coordinator.
type StoreConfig struct {
	MaxItemsPerOrder   int
	MaxQuantityPerItem int
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret:            v.GetString("JWT_SECRET"),
		Expiration:        parseDuration(v.GetString("JWT_EXPIRATION"), 24*time.Hour),
		RefreshExpiration: parseDuration(v.GetString("REFRESH_TOKEN_EXPIRATION"), 7*24*time.Hour),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Ledger = LedgerConfig{
		ReconcileInterval:  parseDuration(v.GetString("LEDGER_RECONCILE_INTERVAL"), time.Hour),
		ReconcileBatchSize: v.GetInt("LEDGER_RECONCILE_BATCH_SIZE"),
		ReconcileWorkers:   v.GetInt("LEDGER_RECONCILE_WORKERS"),
		MaxPageSize:        v.GetInt("LEDGER_MAX_PAGE_SIZE"),
	}

	cfg.Rewards = RewardsConfig{
		MaxBatchSize:      v.GetInt("REWARDS_MAX_BATCH_SIZE"),
		IdempotencyTTL:    parseDuration(v.GetString("REWARDS_IDEMPOTENCY_TTL"), 24*time.Hour),
		IdempotencyWindow: parseDuration(v.GetString("REWARDS_IDEMPOTENCY_WINDOW"), 30*time.Second),
	}

	cfg.Store = StoreConfig{
		MaxItemsPerOrder:   v.GetInt("STORE_MAX_ITEMS_PER_ORDER"),
		MaxQuantityPerItem: v.GetInt("STORE_MAX_QUANTITY_PER_ITEM"),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "rewards_ledger")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_EXPIRATION", "24h")
	v.SetDefault("REFRESH_TOKEN_EXPIRATION", "168h")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("LEDGER_RECONCILE_INTERVAL", "1h")
	v.SetDefault("LEDGER_RECONCILE_BATCH_SIZE", 500)
	v.SetDefault("LEDGER_RECONCILE_WORKERS", 2)
	v.SetDefault("LEDGER_MAX_PAGE_SIZE", 200)

	v.SetDefault("REWARDS_MAX_BATCH_SIZE", 100)
	v.SetDefault("REWARDS_IDEMPOTENCY_TTL", "24h")
	v.SetDefault("REWARDS_IDEMPOTENCY_WINDOW", "30s")

	v.SetDefault("STORE_MAX_ITEMS_PER_ORDER", 20)
	v.SetDefault("STORE_MAX_QUANTITY_PER_ITEM", 50)
}

func parseDuration(value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return d
}

func splitAndTrim(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
