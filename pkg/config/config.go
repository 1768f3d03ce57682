package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
// ⭐ SSOT: 모든 환경변수는 여기서만 읽음
type Config struct {
	// Server
	Port string
	Env  string // development, staging, production

	// Storage backend: postgres | memory
	Storage string

	// Database
	Database DatabaseConfig

	// Redis
	Redis RedisConfig

	// Data providers
	Providers ProvidersConfig

	// Pipeline
	Fusion     FusionConfig
	Enrichment EnrichmentConfig
	Screening  ScreeningConfig
	Schedule   ScheduleConfig

	// Stock list (inbound universe)
	StockListFile string

	// Logging
	LogLevel  string
	LogFormat string

	// Monitoring
	MetricsEnabled bool
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	Enabled  bool
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	URL string

	// Connection Pool
	MaxConns        int
	MinConns        int
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// ProvidersConfig holds external data provider settings
type ProvidersConfig struct {
	NSEBaseURL       string
	NSEEnabled       bool
	YahooEnabled     bool
	YahooSuffix      string // ".NS" (NSE) or ".BO" (BSE)
	ScreenerBaseURL  string
	ScreenerEnabled  bool
	AlphaVantageKey  string
	AlphaVantageURL  string
	AlphaVantageRPM  int // requests per minute (free tier: 5)
	FetchTimeout     time.Duration
	BreakerTimeout   time.Duration
	BreakerThreshold int // consecutive failures before a provider is cut off
}

// FusionConfig holds multi-source fusion settings
type FusionConfig struct {
	QualityThreshold int           // early-stop threshold (0-100)
	FetcherDelay     time.Duration // pause between provider calls
	CacheTTL         time.Duration
	CacheEnabled     bool
}

// EnrichmentConfig holds batch enrichment settings
type EnrichmentConfig struct {
	AcceptQuality   int           // records below this are re-enriched
	FreshnessWindow time.Duration // records older than this are re-enriched
	Workers         int
	RatePerSecond   float64 // shared token bucket across workers
	Burst           int
	BatchSize       int // default max stocks per scheduled run
	PriceBatchSize  int // intraday price refresh size
}

// ScreeningConfig holds screener settings
type ScreeningConfig struct {
	MinQuality   int
	DefaultLimit int
	MaxLimit     int
}

// ScheduleConfig holds cron expressions (with seconds)
type ScheduleConfig struct {
	EnrichDaily      string
	PricesIntraday   string
	PopulateWeekly   string
	RelativeStrength string
}

// Load reads configuration from environment variables
// ⭐ SSOT: 이 함수만 os.Getenv()를 호출함
func Load() (*Config, error) {
	loadEnvFile()

	cfg := &Config{
		Port:    getEnv("PORT", "8089"),
		Env:     getEnv("ENV", "development"),
		Storage: getEnv("STORAGE", "postgres"),

		Database: DatabaseConfig{
			URL:             getEnv("DATABASE_URL", ""),
			MaxConns:        getEnvAsInt("DB_MAX_CONNS", 25),
			MinConns:        getEnvAsInt("DB_MIN_CONNS", 5),
			MaxConnLifetime: getEnvAsDuration("DB_MAX_CONN_LIFETIME", "1h"),
			MaxConnIdleTime: getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", "30m"),
		},

		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			Enabled:  getEnvAsBool("REDIS_ENABLED", false),
		},

		Providers: ProvidersConfig{
			NSEBaseURL:       getEnv("NSE_BASE_URL", "https://www.nseindia.com"),
			NSEEnabled:       getEnvAsBool("NSE_ENABLED", true),
			YahooEnabled:     getEnvAsBool("YAHOO_ENABLED", true),
			YahooSuffix:      getEnv("YAHOO_SUFFIX", ".NS"),
			ScreenerBaseURL:  getEnv("SCREENER_BASE_URL", "https://www.screener.in"),
			ScreenerEnabled:  getEnvAsBool("SCREENER_ENABLED", true),
			AlphaVantageKey:  getEnv("ALPHAVANTAGE_API_KEY", ""),
			AlphaVantageURL:  getEnv("ALPHAVANTAGE_BASE_URL", "https://www.alphavantage.co"),
			AlphaVantageRPM:  getEnvAsInt("ALPHAVANTAGE_RPM", 5),
			FetchTimeout:     getEnvAsDuration("PROVIDER_FETCH_TIMEOUT", "15s"),
			BreakerTimeout:   getEnvAsDuration("PROVIDER_BREAKER_TIMEOUT", "60s"),
			BreakerThreshold: getEnvAsInt("PROVIDER_BREAKER_THRESHOLD", 5),
		},

		Fusion: FusionConfig{
			QualityThreshold: getEnvAsInt("FUSION_QUALITY_THRESHOLD", 80),
			FetcherDelay:     getEnvAsDuration("FUSION_FETCHER_DELAY", "500ms"),
			CacheTTL:         getEnvAsDuration("FUSION_CACHE_TTL", "15m"),
			CacheEnabled:     getEnvAsBool("FUSION_CACHE_ENABLED", true),
		},

		Enrichment: EnrichmentConfig{
			AcceptQuality:   getEnvAsInt("ENRICH_ACCEPT_QUALITY", 80),
			FreshnessWindow: getEnvAsDuration("ENRICH_FRESHNESS_WINDOW", "168h"),
			Workers:         getEnvAsInt("ENRICH_WORKERS", 4),
			RatePerSecond:   getEnvAsFloat("ENRICH_RATE_PER_SECOND", 5),
			Burst:           getEnvAsInt("ENRICH_BURST", 10),
			BatchSize:       getEnvAsInt("ENRICH_BATCH_SIZE", 20),
			PriceBatchSize:  getEnvAsInt("ENRICH_PRICE_BATCH_SIZE", 200),
		},

		Screening: ScreeningConfig{
			MinQuality:   getEnvAsInt("SCREEN_MIN_QUALITY", 30),
			DefaultLimit: getEnvAsInt("SCREEN_DEFAULT_LIMIT", 100),
			MaxLimit:     getEnvAsInt("SCREEN_MAX_LIMIT", 1000),
		},

		Schedule: ScheduleConfig{
			EnrichDaily:      getEnv("SCHEDULE_ENRICH_DAILY", "0 0 18 * * 1-5"),
			PricesIntraday:   getEnv("SCHEDULE_PRICES_INTRADAY", "0 */15 9-15 * * 1-5"),
			PopulateWeekly:   getEnv("SCHEDULE_POPULATE_WEEKLY", "0 0 6 * * 0"),
			RelativeStrength: getEnv("SCHEDULE_RELATIVE_STRENGTH", "0 30 18 * * 1-5"),
		},

		StockListFile: getEnv("STOCK_LIST_FILE", "data/EQUITY_L.csv"),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),

		MetricsEnabled: getEnvAsBool("METRICS_ENABLED", true),
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// validate checks if required configuration values are set
func (c *Config) validate() error {
	switch c.Storage {
	case "postgres":
		if c.Database.URL == "" {
			return fmt.Errorf("DATABASE_URL is required when STORAGE=postgres")
		}
	case "memory":
	default:
		return fmt.Errorf("STORAGE must be one of: postgres, memory")
	}

	if c.Env != "development" && c.Env != "staging" && c.Env != "production" {
		return fmt.Errorf("ENV must be one of: development, staging, production")
	}

	if c.Fusion.QualityThreshold < 0 || c.Fusion.QualityThreshold > 100 {
		return fmt.Errorf("FUSION_QUALITY_THRESHOLD must be within 0-100")
	}

	if c.Enrichment.Workers < 1 {
		return fmt.Errorf("ENRICH_WORKERS must be at least 1")
	}

	return nil
}

// AlphaVantageEnabled reports whether the Alpha Vantage provider can be used
func (c *Config) AlphaVantageEnabled() bool {
	return c.Providers.AlphaVantageKey != ""
}

// loadEnvFile tries to load .env from multiple locations
func loadEnvFile() {
	paths := []string{".env"}

	if exe, err := os.Executable(); err == nil {
		exeDir := filepath.Dir(exe)
		paths = append(paths,
			filepath.Join(exeDir, ".env"),
			filepath.Join(exeDir, "..", ".env"),
		)
	}

	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			_ = godotenv.Load(path)
			return
		}
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		valueStr = defaultValue
	}

	duration, err := time.ParseDuration(valueStr)
	if err != nil {
		duration, _ = time.ParseDuration(defaultValue)
	}

	return duration
}
