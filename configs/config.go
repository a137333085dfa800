package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Admin    AdminConfig    `mapstructure:"admin"`
	Business BusinessConfig `mapstructure:"business"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Events   EventsConfig   `mapstructure:"events"`
	PayPal   PayPalConfig   `mapstructure:"paypal"`
	Jobs     JobsConfig     `mapstructure:"jobs"`
	LogLevel string         `mapstructure:"log_level"`
}

type ServerConfig struct {
	Port    string `mapstructure:"port"`
	AppName string `mapstructure:"app_name"`
}

type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	Silent          bool          `mapstructure:"silent"`
}

type AuthConfig struct {
	JWTSecret     string        `mapstructure:"jwt_secret"`
	TokenTTL      time.Duration `mapstructure:"token_ttl"`
	WebhookSecret string        `mapstructure:"webhook_secret"`
}

type AdminConfig struct {
	FullName string `mapstructure:"full_name"`
	Email    string `mapstructure:"email"`
	Password string `mapstructure:"password"`
}

type BusinessConfig struct {
	PlatformFeeRate float64       `mapstructure:"platform_fee_rate"`
	LessonMinutes   int           `mapstructure:"lesson_minutes"`
	Currency        string        `mapstructure:"currency"`
	PaymentTimeout  time.Duration `mapstructure:"payment_timeout"`
	ReconcileGrace  time.Duration `mapstructure:"reconcile_grace"`
	GatewayRetries  uint64        `mapstructure:"gateway_retries"`
	GatewayBackoff  time.Duration `mapstructure:"gateway_backoff"`
	SweepBatchSize  int           `mapstructure:"sweep_batch_size"`
}

// RedisConfig with an empty Addr means account locks stay in process.
type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	LockTTL  time.Duration `mapstructure:"lock_ttl"`
}

type EventsConfig struct {
	Driver       string   `mapstructure:"driver"`
	Brokers      []string `mapstructure:"brokers"`
	NATSURL      string   `mapstructure:"nats_url"`
	RelayBatch   int      `mapstructure:"relay_batch"`
	MaxRetries   int      `mapstructure:"max_retries"`
	TopicPrefix  string   `mapstructure:"topic_prefix"`
	PublishLimit int      `mapstructure:"publish_limit"`
}

type PayPalConfig struct {
	BaseURL      string        `mapstructure:"base_url"`
	ClientID     string        `mapstructure:"client_id"`
	ClientSecret string        `mapstructure:"client_secret"`
	ReturnURL    string        `mapstructure:"return_url"`
	CancelURL    string        `mapstructure:"cancel_url"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

// Enabled reports whether live PayPal credentials are configured. Without
// them payments go through the sandbox gateway.
func (p PayPalConfig) Enabled() bool {
	return p.ClientID != "" && p.ClientSecret != ""
}

type JobsConfig struct {
	CompleteLessons  string `mapstructure:"complete_lessons"`
	ReconcilePayment string `mapstructure:"reconcile_payments"`
	RelayOutbox      string `mapstructure:"relay_outbox"`
}

// legacyEnv maps config keys onto the flat variable names deployments
// already export.
var legacyEnv = map[string]string{
	"server.port":                "PORT",
	"database.dsn":               "DATABASE_URL",
	"auth.jwt_secret":            "JWT_SECRET",
	"auth.webhook_secret":        "PAYMENT_WEBHOOK_SECRET",
	"admin.email":                "ADMIN_EMAIL",
	"admin.password":             "ADMIN_PASSWORD",
	"admin.full_name":            "ADMIN_FULL_NAME",
	"business.platform_fee_rate": "PLATFORM_COMMISSION_RATE",
	"paypal.base_url":            "PAYPAL_API_BASE_URL",
	"paypal.client_id":           "PAYPAL_CLIENT_ID",
	"paypal.client_secret":       "PAYPAL_CLIENT_SECRET",
	"redis.addr":                 "REDIS_ADDR",
	"log_level":                  "LOG_LEVEL",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "3000")
	v.SetDefault("server.app_name", "Tutor Marketplace")
	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("auth.token_ttl", 72*time.Hour)
	v.SetDefault("admin.full_name", "Platform Admin")
	v.SetDefault("business.platform_fee_rate", 0.15)
	v.SetDefault("business.lesson_minutes", 60)
	v.SetDefault("business.currency", "USD")
	v.SetDefault("business.payment_timeout", 15*time.Minute)
	v.SetDefault("business.reconcile_grace", 15*time.Minute)
	v.SetDefault("business.gateway_retries", 3)
	v.SetDefault("business.gateway_backoff", 200*time.Millisecond)
	v.SetDefault("business.sweep_batch_size", 100)
	v.SetDefault("redis.lock_ttl", 10*time.Second)
	v.SetDefault("events.driver", "log")
	v.SetDefault("events.relay_batch", 100)
	v.SetDefault("events.max_retries", 10)
	v.SetDefault("events.publish_limit", 4)
	v.SetDefault("paypal.base_url", "https://api-m.sandbox.paypal.com")
	v.SetDefault("paypal.timeout", 10*time.Second)
	v.SetDefault("jobs.complete_lessons", "@every 1m")
	v.SetDefault("jobs.reconcile_payments", "@every 1m")
	v.SetDefault("jobs.relay_outbox", "@every 5s")
	v.SetDefault("log_level", "info")

	// Registered so Unmarshal picks up their environment overrides.
	v.SetDefault("database.silent", false)
	v.SetDefault("redis.db", 0)
	for _, key := range []string{
		"auth.webhook_secret", "admin.email", "admin.password",
		"redis.addr", "redis.password", "events.nats_url", "events.topic_prefix",
		"paypal.client_id", "paypal.client_secret", "paypal.return_url", "paypal.cancel_url",
	} {
		v.SetDefault(key, "")
	}
}

// Load reads .env if present, then the optional YAML file at path, then the
// environment. Nested keys map to variables like BUSINESS_PAYMENT_TIMEOUT.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(".env"); err != nil {
		log.Println("Warning: .env file not found, reading from system environment variables")
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, env := range legacyEnv {
		if err := v.BindEnv(key, strings.ToUpper(strings.ReplaceAll(key, ".", "_")), env); err != nil {
			return nil, fmt.Errorf("config: bind %s: %w", key, err)
		}
	}
	// Slices are not picked up by AutomaticEnv alone.
	if err := v.BindEnv("events.brokers", "EVENTS_BROKERS", "KAFKA_BROKERS"); err != nil {
		return nil, fmt.Errorf("config: bind events.brokers: %w", err)
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch {
	case c.Database.DSN == "":
		return fmt.Errorf("config: database dsn is required")
	case c.Auth.JWTSecret == "":
		return fmt.Errorf("config: jwt secret is required")
	case c.Business.PlatformFeeRate < 0 || c.Business.PlatformFeeRate >= 1:
		return fmt.Errorf("config: platform fee rate %v out of range", c.Business.PlatformFeeRate)
	case c.Business.LessonMinutes <= 0:
		return fmt.Errorf("config: lesson minutes must be positive")
	}
	switch c.Events.Driver {
	case "log", "kafka", "nats":
	default:
		return fmt.Errorf("config: unknown events driver %q", c.Events.Driver)
	}
	return nil
}
