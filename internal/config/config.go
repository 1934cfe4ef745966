// Package config loads the core runtime's configuration the way
// pkg/config.Load does: viper-backed, environment-variable driven, with
// an optional .env file and sane defaults so a worker can boot with zero
// configuration in development.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds everything the core runtime needs to boot: event store,
// event bus, projection cache, saga timing, and retry/DLQ tuning.
type Config struct {
	App        AppConfig        `mapstructure:"app"`
	EventStore DatabaseConfig   `mapstructure:"event_store"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Kafka      KafkaConfig      `mapstructure:"kafka"`
	OTel       OTelConfig       `mapstructure:"otel"`
	Saga       SagaConfig       `mapstructure:"saga"`
	Retry      RetryConfig      `mapstructure:"retry"`
	Stripe     StripeConfig     `mapstructure:"stripe"`
}

// AppConfig holds process-level settings.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
	LogLevel    string `mapstructure:"log_level"`
}

// DatabaseConfig holds PostgreSQL connection settings for the event store.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxOpenConns    int32         `mapstructure:"max_open_conns"`
	MaxIdleConns    int32         `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
}

// DSN returns the PostgreSQL connection string.
func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode,
	)
}

// RedisConfig holds Redis connection settings for the projection cache.
type RedisConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
}

// Addr returns the Redis address.
func (r *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// KafkaConfig holds the event bus broker settings.
type KafkaConfig struct {
	Brokers       []string `mapstructure:"brokers"`
	ConsumerGroup string   `mapstructure:"consumer_group"`
	ClientID      string   `mapstructure:"client_id"`
}

// OTelConfig holds OpenTelemetry settings.
type OTelConfig struct {
	Enabled       bool    `mapstructure:"enabled"`
	ServiceName   string  `mapstructure:"service_name"`
	CollectorAddr string  `mapstructure:"collector_addr"`
	SampleRatio   float64 `mapstructure:"sample_ratio"`
}

// SagaConfig holds reservation-saga timing (spec.md §4.4.4).
type SagaConfig struct {
	ReservationTimeout time.Duration `mapstructure:"reservation_timeout"`
}

// RetryConfig holds consumer-runtime retry/backoff tuning (spec.md §4.6).
type RetryConfig struct {
	MaxRetries      int           `mapstructure:"max_retries"`
	InitialInterval time.Duration `mapstructure:"initial_interval"`
	MaxInterval     time.Duration `mapstructure:"max_interval"`
}

// StripeConfig holds the payment gateway credentials.
type StripeConfig struct {
	SecretKey     string `mapstructure:"secret_key"`
	WebhookSecret string `mapstructure:"webhook_secret"`
	Environment   string `mapstructure:"environment"`
}

// Load reads configuration from the environment (and an optional .env
// file), applying the same defaults-then-override pattern as pkg/config.Load.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // .env is optional; env vars still apply

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	cfg := &Config{}
	if err := bind(v, cfg); err != nil {
		return nil, fmt.Errorf("failed to bind config: %w", err)
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_NAME", "ticketcore")
	v.SetDefault("APP_ENVIRONMENT", "development")
	v.SetDefault("APP_LOG_LEVEL", "info")

	v.SetDefault("EVENT_STORE_HOST", "localhost")
	v.SetDefault("EVENT_STORE_PORT", 5432)
	v.SetDefault("EVENT_STORE_USER", "postgres")
	v.SetDefault("EVENT_STORE_PASSWORD", "postgres")
	v.SetDefault("EVENT_STORE_DBNAME", "ticketcore_events")
	v.SetDefault("EVENT_STORE_SSLMODE", "disable")
	v.SetDefault("EVENT_STORE_MAX_OPEN_CONNS", 25)
	v.SetDefault("EVENT_STORE_MAX_IDLE_CONNS", 5)
	v.SetDefault("EVENT_STORE_CONN_MAX_LIFETIME", "1h")
	v.SetDefault("EVENT_STORE_CONN_MAX_IDLE_TIME", "30m")

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("REDIS_POOL_SIZE", 50)
	v.SetDefault("REDIS_MIN_IDLE_CONNS", 5)
	v.SetDefault("REDIS_DIAL_TIMEOUT", "5s")

	v.SetDefault("KAFKA_BROKERS", []string{"localhost:9092"})
	v.SetDefault("KAFKA_CONSUMER_GROUP", "ticketcore")
	v.SetDefault("KAFKA_CLIENT_ID", "ticketcore")

	v.SetDefault("OTEL_ENABLED", false)
	v.SetDefault("OTEL_SERVICE_NAME", "ticketcore")
	v.SetDefault("OTEL_SAMPLE_RATIO", 1.0)

	v.SetDefault("SAGA_RESERVATION_TIMEOUT", "5m")

	v.SetDefault("RETRY_MAX_RETRIES", 5)
	v.SetDefault("RETRY_INITIAL_INTERVAL", "100ms")
	v.SetDefault("RETRY_MAX_INTERVAL", "30s")

	v.SetDefault("STRIPE_ENVIRONMENT", "test")
}

func bind(v *viper.Viper, cfg *Config) error {
	cfg.App = AppConfig{
		Name:        v.GetString("APP_NAME"),
		Environment: v.GetString("APP_ENVIRONMENT"),
		LogLevel:    v.GetString("APP_LOG_LEVEL"),
	}
	cfg.EventStore = DatabaseConfig{
		Host:            v.GetString("EVENT_STORE_HOST"),
		Port:            v.GetInt("EVENT_STORE_PORT"),
		User:            v.GetString("EVENT_STORE_USER"),
		Password:        v.GetString("EVENT_STORE_PASSWORD"),
		DBName:          v.GetString("EVENT_STORE_DBNAME"),
		SSLMode:         v.GetString("EVENT_STORE_SSLMODE"),
		MaxOpenConns:    int32(v.GetInt("EVENT_STORE_MAX_OPEN_CONNS")),
		MaxIdleConns:    int32(v.GetInt("EVENT_STORE_MAX_IDLE_CONNS")),
		ConnMaxLifetime: v.GetDuration("EVENT_STORE_CONN_MAX_LIFETIME"),
		ConnMaxIdleTime: v.GetDuration("EVENT_STORE_CONN_MAX_IDLE_TIME"),
	}
	cfg.Redis = RedisConfig{
		Host:         v.GetString("REDIS_HOST"),
		Port:         v.GetInt("REDIS_PORT"),
		Password:     v.GetString("REDIS_PASSWORD"),
		DB:           v.GetInt("REDIS_DB"),
		PoolSize:     v.GetInt("REDIS_POOL_SIZE"),
		MinIdleConns: v.GetInt("REDIS_MIN_IDLE_CONNS"),
		DialTimeout:  v.GetDuration("REDIS_DIAL_TIMEOUT"),
	}
	cfg.Kafka = KafkaConfig{
		Brokers:       v.GetStringSlice("KAFKA_BROKERS"),
		ConsumerGroup: v.GetString("KAFKA_CONSUMER_GROUP"),
		ClientID:      v.GetString("KAFKA_CLIENT_ID"),
	}
	cfg.OTel = OTelConfig{
		Enabled:       v.GetBool("OTEL_ENABLED"),
		ServiceName:   v.GetString("OTEL_SERVICE_NAME"),
		CollectorAddr: v.GetString("OTEL_COLLECTOR_ADDR"),
		SampleRatio:   v.GetFloat64("OTEL_SAMPLE_RATIO"),
	}
	cfg.Saga = SagaConfig{
		ReservationTimeout: v.GetDuration("SAGA_RESERVATION_TIMEOUT"),
	}
	cfg.Retry = RetryConfig{
		MaxRetries:      v.GetInt("RETRY_MAX_RETRIES"),
		InitialInterval: v.GetDuration("RETRY_INITIAL_INTERVAL"),
		MaxInterval:     v.GetDuration("RETRY_MAX_INTERVAL"),
	}
	cfg.Stripe = StripeConfig{
		SecretKey:     v.GetString("STRIPE_SECRET_KEY"),
		WebhookSecret: v.GetString("STRIPE_WEBHOOK_SECRET"),
		Environment:   v.GetString("STRIPE_ENVIRONMENT"),
	}
	return nil
}
