package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Application settings
type Config struct {
	Server      ServerConfig
	Logging     LoggingConfig
	Aggregation AggregationConfig
	Platforms   PlatformsConfig
	Conversion  ConversionLogConfig
	Postgres    PostgresConfig
	ClickHouse  ClickHouseConfig
	Redis       RedisConfig
	Kafka       KafkaConfig
	Settings    SettingsConfig
}

// Server settings
type ServerConfig struct {
	Port            string
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
}

type AggregationConfig struct {
	// FetchConcurrency bounds simultaneous account fetches of one aggregation.
	FetchConcurrency int
	// LookupConcurrency bounds simultaneous metadata lookups inside one adapter.
	LookupConcurrency  int
	AdapterTimeout     time.Duration
	HTTPTimeout        time.Duration
	RateLimitPerSecond int
	SnapshotTTL        time.Duration
	Timezone           string
}

// Location resolves the reporting timezone, falling back to UTC.
func (a AggregationConfig) Location() *time.Location {
	loc, err := time.LoadLocation(a.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

type PlatformsConfig struct {
	Meta   MetaConfig
	TikTok TikTokConfig
	Google GoogleConfig
	Line   LineConfig
}

type MetaConfig struct {
	BaseURL          string
	AccessToken      string
	ConversionAction string
}

type TikTokConfig struct {
	BaseURL     string
	AccessToken string
}

type GoogleConfig struct {
	BaseURL         string
	DeveloperToken  string
	ClientID        string
	ClientSecret    string
	RefreshToken    string
	LoginCustomerID string
}

type LineConfig struct {
	BaseURL     string
	AccessToken string
}

type ConversionLogConfig struct {
	BaseURL  string
	LoginID  string
	Password string
}

type PostgresConfig struct {
	URL      string
	MaxConns int
	MinConns int
}

type ClickHouseConfig struct {
	DSN   string
	Table string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type KafkaConfig struct {
	Brokers []string
	Topic   string
	Secret  string
}

type SettingsConfig struct {
	// FilePath selects the YAML settings provider when Postgres is not configured.
	FilePath string
}

// Logging settings
type LoggingConfig struct {
	Level string
}

// Load reads configuration from the environment. A .env file in the working
// directory is loaded first when present; real environment variables win.
func Load() (*Config, error) {
	_ = godotenv.Load()

	config := &Config{
		Server: ServerConfig{
			Port:            getEnv("PORT", "8080"),
			RequestTimeout:  getDurationEnv("REQUEST_TIMEOUT", "60s"),
			ShutdownTimeout: getDurationEnv("SHUTDOWN_TIMEOUT", "15s"),
		},
		Aggregation: AggregationConfig{
			FetchConcurrency:   getIntEnv("FETCH_CONCURRENCY", 8),
			LookupConcurrency:  getIntEnv("LOOKUP_CONCURRENCY", 4),
			AdapterTimeout:     getDurationEnv("ADAPTER_TIMEOUT", "45s"),
			HTTPTimeout:        getDurationEnv("HTTP_TIMEOUT", "20s"),
			RateLimitPerSecond: getIntEnv("RATE_LIMIT_PER_SECOND", 10),
			SnapshotTTL:        getDurationEnv("SNAPSHOT_TTL", "5m"),
			Timezone:           getEnv("REPORT_TIMEZONE", "Asia/Tokyo"),
		},
		Platforms: PlatformsConfig{
			Meta: MetaConfig{
				BaseURL:          getEnv("META_API_URL", "https://graph.facebook.com/v19.0"),
				AccessToken:      getEnv("META_ACCESS_TOKEN", ""),
				ConversionAction: getEnv("META_CONVERSION_ACTION", "offsite_conversion.fb_pixel_purchase"),
			},
			TikTok: TikTokConfig{
				BaseURL:     getEnv("TIKTOK_API_URL", "https://business-api.tiktok.com/open_api/v1.3"),
				AccessToken: getEnv("TIKTOK_ACCESS_TOKEN", ""),
			},
			Google: GoogleConfig{
				BaseURL:         getEnv("GOOGLE_ADS_API_URL", "https://googleads.googleapis.com/v17"),
				DeveloperToken:  getEnv("GOOGLE_ADS_DEVELOPER_TOKEN", ""),
				ClientID:        getEnv("GOOGLE_ADS_CLIENT_ID", ""),
				ClientSecret:    getEnv("GOOGLE_ADS_CLIENT_SECRET", ""),
				RefreshToken:    getEnv("GOOGLE_ADS_REFRESH_TOKEN", ""),
				LoginCustomerID: getEnv("GOOGLE_ADS_LOGIN_CUSTOMER_ID", ""),
			},
			Line: LineConfig{
				BaseURL:     getEnv("LINE_ADS_API_URL", "https://ads.line.me/api/v3"),
				AccessToken: getEnv("LINE_ADS_ACCESS_TOKEN", ""),
			},
		},
		Conversion: ConversionLogConfig{
			BaseURL:  getEnv("MSP_BASE_URL", ""),
			LoginID:  getEnv("MSP_LOGIN_ID", ""),
			Password: getEnv("MSP_PASSWORD", ""),
		},
		Postgres: PostgresConfig{
			URL:      getEnv("POSTGRES_URL", ""),
			MaxConns: getIntEnv("POSTGRES_MAX_CONNS", 10),
			MinConns: getIntEnv("POSTGRES_MIN_CONNS", 1),
		},
		ClickHouse: ClickHouseConfig{
			DSN:   getEnv("CLICKHOUSE_DSN", ""),
			Table: getEnv("CLICKHOUSE_TABLE", "daily_metrics"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getIntEnv("REDIS_DB", 0),
		},
		Kafka: KafkaConfig{
			Brokers: getSliceEnv("KAFKA_BROKERS", nil),
			Topic:   getEnv("KAFKA_TOPIC", "adreport.snapshots"),
			Secret:  getEnv("KAFKA_SIGNING_SECRET", ""),
		},
		Settings: SettingsConfig{
			FilePath: getEnv("SETTINGS_FILE", "config/projects.yml"),
		},
		Logging: LoggingConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate checks values that would otherwise fail deep inside a request.
func (c *Config) Validate() error {
	if c.Aggregation.FetchConcurrency <= 0 {
		return fmt.Errorf("FETCH_CONCURRENCY must be positive, got %d", c.Aggregation.FetchConcurrency)
	}
	if c.Aggregation.LookupConcurrency <= 0 {
		return fmt.Errorf("LOOKUP_CONCURRENCY must be positive, got %d", c.Aggregation.LookupConcurrency)
	}
	if c.Aggregation.RateLimitPerSecond <= 0 {
		return fmt.Errorf("RATE_LIMIT_PER_SECOND must be positive, got %d", c.Aggregation.RateLimitPerSecond)
	}
	if _, err := time.LoadLocation(c.Aggregation.Timezone); err != nil {
		return fmt.Errorf("invalid REPORT_TIMEZONE %q: %w", c.Aggregation.Timezone, err)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getDurationEnv(key, defaultValue string) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	duration, _ := time.ParseDuration(defaultValue)
	return duration
}

func getSliceEnv(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
