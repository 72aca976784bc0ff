package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// LoadEnv loads variables from a .env file if present.
func LoadEnv() {
	if err := godotenv.Load(); err != nil {
		log.Printf("no .env file found: %v", err)
	}
}

// GetEnv returns an environment variable or a default value.
func GetEnv(key, defaultVal string) string {
	if val, ok := os.LookupEnv(key); ok && val != "" {
		return val
	}
	return defaultVal
}

// GetIntEnv returns an int environment variable or a default value.
func GetIntEnv(key string, defaultVal int) int {
	if val, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(strings.TrimSpace(val)); err == nil {
			return i
		}
	}
	return defaultVal
}

// GetBoolEnv returns a bool environment variable or a default value.
func GetBoolEnv(key string, defaultVal bool) bool {
	if val, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(strings.TrimSpace(val)); err == nil {
			return b
		}
	}
	return defaultVal
}

// GetDurationEnv returns a duration environment variable (e.g. "10s") or a default value.
func GetDurationEnv(key string, defaultVal time.Duration) time.Duration {
	if val, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(strings.TrimSpace(val)); err == nil {
			return d
		}
	}
	return defaultVal
}

// IsProduction checks if the app runs in production mode.
func IsProduction() bool {
	return GetEnv("ENV", "development") == "production"
}

// HTTPConfig holds the listener settings.
type HTTPConfig struct {
	Port        string
	CORSOrigins string
}

// DBConfig holds the PostgreSQL connection and pool settings.
type DBConfig struct {
	Host            string
	Port            string
	User            string
	Password        string
	Name            string
	SSLMode         string
	MaxIdleConns    int
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// DSN renders the connection string understood by the gorm postgres driver.
func (c DBConfig) DSN() string {
	return "host=" + c.Host +
		" user=" + c.User +
		" password=" + c.Password +
		" dbname=" + c.Name +
		" port=" + c.Port +
		" sslmode=" + c.SSLMode
}

// RedisConfig holds the Redis connection settings.
type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     string
	Password string
	DB       int
}

// JWTConfig holds the token signing settings.
type JWTConfig struct {
	Secret    string
	AccessTTL time.Duration
	Issuer    string
}

// CryptoConfig holds the keys protecting card numbers at rest.
type CryptoConfig struct {
	PanKey  string // base64, 32 bytes
	HMACKey string
}

// TransfersConfig holds the paging and TTL limits of the transfer engine.
type TransfersConfig struct {
	DefaultPageSize int
	MaxPageSize     int
	MaxTTLSeconds   int // 0 = unlimited
}

// SchedulerConfig holds the settings of the pending-transfer sweeper.
type SchedulerConfig struct {
	Enabled    bool
	FixedDelay time.Duration
	BatchSize  int
	Mode       string
}

// RateLimitConfig holds the per-IP limits of the auth endpoints.
type RateLimitConfig struct {
	Max    int
	Window time.Duration
}

// Config is the full application configuration.
type Config struct {
	Env           string
	HTTP          HTTPConfig
	DB            DBConfig
	Redis         RedisConfig
	JWT           JWTConfig
	Crypto        CryptoConfig
	Transfers     TransfersConfig
	Scheduler     SchedulerConfig
	AuthRateLimit RateLimitConfig
}

// Load assembles the configuration from the environment, falling back to
// defaults for anything missing or malformed.
func Load() Config {
	cfg := Config{
		Env: GetEnv("ENV", "development"),
		HTTP: HTTPConfig{
			Port:        GetEnv("PORT", "3000"),
			CORSOrigins: GetEnv("CORS_ORIGINS", "http://localhost:5173"),
		},
		DB: DBConfig{
			Host:            GetEnv("DB_HOST", "localhost"),
			Port:            GetEnv("DB_PORT", "5432"),
			User:            GetEnv("DB_USER", "postgres"),
			Password:        GetEnv("DB_PASSWORD", "postgres"),
			Name:            GetEnv("DB_NAME", "bankcards"),
			SSLMode:         GetEnv("DB_SSLMODE", "disable"),
			MaxIdleConns:    GetIntEnv("DB_MAX_IDLE_CONNS", 10),
			MaxOpenConns:    GetIntEnv("DB_MAX_OPEN_CONNS", 100),
			ConnMaxLifetime: GetDurationEnv("DB_CONN_MAX_LIFETIME", time.Hour),
			ConnMaxIdleTime: GetDurationEnv("DB_CONN_MAX_IDLE_TIME", 30*time.Minute),
		},
		Redis: RedisConfig{
			Enabled:  GetBoolEnv("REDIS_ENABLED", true),
			Host:     GetEnv("REDIS_HOST", "localhost"),
			Port:     GetEnv("REDIS_PORT", "6379"),
			Password: GetEnv("REDIS_PASSWORD", ""),
			DB:       GetIntEnv("REDIS_DB", 0),
		},
		JWT: JWTConfig{
			Secret:    GetEnv("JWT_SECRET", ""),
			AccessTTL: GetDurationEnv("JWT_ACCESS_TTL", 15*time.Minute),
			Issuer:    GetEnv("JWT_ISSUER", "bankcards-api"),
		},
		Crypto: CryptoConfig{
			PanKey:  GetEnv("CRYPTO_PAN_KEY", ""),
			HMACKey: GetEnv("CRYPTO_HMAC_KEY", ""),
		},
		Transfers: TransfersConfig{
			DefaultPageSize: GetIntEnv("TRANSFERS_DEFAULT_PAGE_SIZE", 10),
			MaxPageSize:     GetIntEnv("TRANSFERS_MAX_PAGE_SIZE", 100),
			MaxTTLSeconds:   GetIntEnv("TRANSFERS_MAX_TTL_SECONDS", 0),
		},
		Scheduler: SchedulerConfig{
			Enabled:    GetBoolEnv("TRANSFERS_SCHEDULER_ENABLED", false),
			FixedDelay: GetDurationEnv("TRANSFERS_SCHEDULER_FIXED_DELAY", 10*time.Second),
			BatchSize:  GetIntEnv("TRANSFERS_SCHEDULER_BATCH_SIZE", 100),
			Mode:       strings.ToUpper(GetEnv("TRANSFERS_SCHEDULER_MODE", "EXPIRE")),
		},
		AuthRateLimit: RateLimitConfig{
			Max:    GetIntEnv("AUTH_RATE_LIMIT_MAX", 5),
			Window: GetDurationEnv("AUTH_RATE_LIMIT_WINDOW", time.Minute),
		},
	}

	if cfg.Transfers.DefaultPageSize <= 0 {
		cfg.Transfers.DefaultPageSize = 10
	}
	if cfg.Transfers.MaxPageSize <= 0 {
		cfg.Transfers.MaxPageSize = 100
	}
	if cfg.Transfers.MaxTTLSeconds < 0 {
		cfg.Transfers.MaxTTLSeconds = 0
	}
	if cfg.Scheduler.FixedDelay <= 0 {
		cfg.Scheduler.FixedDelay = 10 * time.Second
	}
	if cfg.Scheduler.BatchSize <= 0 {
		cfg.Scheduler.BatchSize = 100
	}

	return cfg
}
