// internal/config/config.go

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Environment string
	LogLevel    string
	Server      ServerConfig
	Database    DatabaseConfig
	NATS        NATSConfig
	Scoring     ScoringConfig
	Trend       TrendConfig
	Refresh     RefreshConfig
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	CorsOrigins     []string
	MaxBatchItems   int
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Database     string
	MaxOpenConns int
	MaxIdleConns int
	MaxLifetime  time.Duration
	SSLMode      string
}

// NATSConfig holds NATS configuration
type NATSConfig struct {
	URL            string
	MaxReconnects  int
	ReconnectWait  time.Duration
	ConnectTimeout time.Duration
}

// ScoringConfig holds Problem Score parameters
type ScoringConfig struct {
	WeightEngagement float64 `yaml:"W_E"`
	WeightNegativity float64 `yaml:"W_N"`
	WeightQuestion   float64 `yaml:"W_Q"`
	WeightPain       float64 `yaml:"W_P"`
	WeightDensity    float64 `yaml:"W_D"`
	WeightFreshness  float64 `yaml:"W_T"`
	HalfLifeHours    float64 `yaml:"half_life_hours"`
	DensityNorm      float64 `yaml:"density_norm"`
	ProfilePath      string  `yaml:"-"`
}

// TrendConfig holds trend detection configuration
type TrendConfig struct {
	BucketHours           int     `yaml:"bucket_hours"`
	WindowShortHours      int     `yaml:"window_short_hours"`
	WindowLongHours       int     `yaml:"window_long_hours"`
	TrendDelta            float64 `yaml:"trend_delta"`
	MinSupport            int     `yaml:"min_support"`
	TailBuckets           int     `yaml:"tail_buckets"`
	MaxConcurrentClusters int     `yaml:"max_concurrent_clusters"`
	EventsTopic           string  `yaml:"-"`
}

// RefreshConfig holds the periodic re-analysis job configuration
type RefreshConfig struct {
	Enabled  bool
	Schedule string
	Lookback time.Duration
}

// Load loads configuration from an optional .env file, environment variables
// and an optional YAML scoring profile. Later sources override earlier ones.
func Load() (Config, error) {
	// A missing .env is normal outside local development
	_ = godotenv.Load()

	p := &parser{}

	config := Config{
		Environment: getEnv("APP_ENV", "development"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            getEnvAsInt("SERVER_PORT", 8080),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
			CorsOrigins:     getEnvAsSlice("SERVER_CORS_ORIGINS", []string{"*"}),
			MaxBatchItems:   getEnvAsInt("SERVER_MAX_BATCH_ITEMS", 1000),
		},
		Database: DatabaseConfig{
			Host:         getEnv("DB_HOST", "localhost"),
			Port:         getEnvAsInt("DB_PORT", 5432),
			User:         getEnv("DB_USER", "postgres"),
			Password:     getEnv("DB_PASSWORD", "postgres"),
			Database:     getEnv("DB_NAME", "magnet"),
			MaxOpenConns: getEnvAsInt("DB_MAX_OPEN_CONNS", 10),
			MaxIdleConns: getEnvAsInt("DB_MAX_IDLE_CONNS", 2),
			MaxLifetime:  getEnvAsDuration("DB_MAX_LIFETIME", 5*time.Minute),
			SSLMode:      getEnv("DB_SSL_MODE", "disable"),
		},
		NATS: NATSConfig{
			URL:            getEnv("NATS_URL", "nats://localhost:4222"),
			MaxReconnects:  getEnvAsInt("NATS_MAX_RECONNECTS", 10),
			ReconnectWait:  getEnvAsDuration("NATS_RECONNECT_WAIT", 1*time.Second),
			ConnectTimeout: getEnvAsDuration("NATS_CONNECT_TIMEOUT", 2*time.Second),
		},
		Scoring: ScoringConfig{
			WeightEngagement: p.getFloat("W_E", 0.35),
			WeightNegativity: p.getFloat("W_N", 0.20),
			WeightQuestion:   p.getFloat("W_Q", 0.15),
			WeightPain:       p.getFloat("W_P", 0.15),
			WeightDensity:    p.getFloat("W_D", 0.10),
			WeightFreshness:  p.getFloat("W_T", 0.05),
			HalfLifeHours:    p.getFloat("HALF_LIFE_HOURS", 72),
			DensityNorm:      p.getFloat("DENSITY_NORM", 20),
			ProfilePath:      getEnv("SCORING_PROFILE", ""),
		},
		Trend: TrendConfig{
			BucketHours:           p.getInt("TREND_BUCKET_HOURS", 6),
			WindowShortHours:      p.getInt("TREND_WINDOW_SHORT_H", 24),
			WindowLongHours:       p.getInt("TREND_WINDOW_LONG_H", 72),
			TrendDelta:            p.getFloat("TREND_DELTA", 0.15),
			MinSupport:            p.getInt("MIN_SUPPORT", 3),
			TailBuckets:           p.getInt("TREND_TAIL_BUCKETS", 10),
			MaxConcurrentClusters: p.getInt("TREND_MAX_CONCURRENT_CLUSTERS", 4),
			EventsTopic:           getEnv("TREND_EVENTS_TOPIC", "magnet.trend"),
		},
		Refresh: RefreshConfig{
			Enabled:  getEnvAsBool("REFRESH_ENABLED", true),
			Schedule: getEnv("REFRESH_SCHEDULE", "*/15 * * * *"),
			Lookback: time.Duration(p.getInt("REFRESH_LOOKBACK_HOURS", 72)) * time.Hour,
		},
	}

	if p.err != nil {
		return Config{}, p.err
	}

	if config.Scoring.ProfilePath != "" {
		if err := applyProfile(&config, config.Scoring.ProfilePath); err != nil {
			return Config{}, err
		}
	}

	return config, validate(config)
}

// validate checks if config is valid
func validate(config Config) error {
	if config.Server.MaxBatchItems <= 0 {
		return fmt.Errorf("SERVER_MAX_BATCH_ITEMS must be positive")
	}
	if config.Refresh.Enabled && config.Refresh.Lookback <= 0 {
		return fmt.Errorf("REFRESH_LOOKBACK_HOURS must be positive")
	}

	return nil
}

// Helper functions

// parser reads the numeric scoring knobs strictly: a value that is set but
// cannot be parsed is an error rather than a silent fallback.
type parser struct {
	err error
}

func (p *parser) getFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		p.fail(key, err)
		return defaultValue
	}
	return value
}

func (p *parser) getInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		p.fail(key, err)
		return defaultValue
	}
	return value
}

func (p *parser) fail(key string, err error) {
	if p.err == nil {
		p.err = fmt.Errorf("parse %s: %w", key, err)
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	parts := strings.Split(valueStr, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
