package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"storefront-service/database"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the storefront service.
type Config struct {
	Port string
	Env  string

	StoreDriver string // memory | postgres | dynamodb | mongo
	Postgres    database.PostgresConfig
	MongoURI    string
	MongoDB     string
	DDBTable    string
	DDBCreate   bool

	CacheEnabled bool
	RedisURL     string
	CacheTTL     time.Duration

	EventsDriver string // none | log | sns | sqs | kafka
	SNSTopicArn  string
	SQSQueueURL  string
	SQSQueueName string
	KafkaBrokers []string
	KafkaTopic   string

	RestockThreshold int
	RestockRatio     float64

	AuthRequired  bool
	AuthVerifier  string // static | db
	AdminUsername string
	AdminPassword string
	JWTSecret     string
	SessionTTL    time.Duration

	AllowedOrigins []string
	LoginRateLimit int // attempts per minute per IP

	S3Bucket      string
	S3Prefix      string
	PublicBaseURL string

	MetricsEnabled     bool
	MetricsNamespace   string
	CloudWatchLogs     bool
	CloudWatchLogGroup string

	UseSecrets  bool
	SecretsName string
	SeedData    bool
}

// SecretFieldGetter is satisfied by the Secrets Manager client.
type SecretFieldGetter interface {
	GetSecretField(ctx context.Context, name, field string) (string, error)
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	if b, err := strconv.ParseBool(os.Getenv(key)); err == nil {
		return b
	}
	return fallback
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// LoadConfig loads .env when present and reads the environment. Call
// Validate once secrets have been applied.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		Env:         getEnv("APP_ENV", "development"),
		StoreDriver: strings.ToLower(getEnv("STORE_DRIVER", "memory")),
		Postgres: database.PostgresConfig{
			Host:     getEnv("POSTGRES_HOST", "localhost"),
			Port:     getEnv("POSTGRES_PORT", "5432"),
			User:     os.Getenv("POSTGRES_USER"),
			Password: os.Getenv("POSTGRES_PASSWORD"),
			DBName:   os.Getenv("POSTGRES_DB"),
			SSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),
			TimeZone: getEnv("POSTGRES_TIMEZONE", "UTC"),
		},
		MongoURI:  getEnv("MONGO_URI", "mongodb://localhost:27017"),
		MongoDB:   getEnv("MONGO_DB", "storefront"),
		DDBTable:  getEnv("DDB_TABLE_PRODUCTS", "Products"),
		DDBCreate: getBool("DDB_CREATE_TABLE", false),

		CacheEnabled: getBool("CACHE_ENABLED", false),
		RedisURL:     getEnv("REDIS_URL", "redis://localhost:6379/0"),

		EventsDriver: strings.ToLower(getEnv("EVENTS_DRIVER", "log")),
		SNSTopicArn:  os.Getenv("RESTOCK_SNS_TOPIC_ARN"),
		SQSQueueURL:  os.Getenv("RESTOCK_SQS_QUEUE_URL"),
		SQSQueueName: os.Getenv("RESTOCK_SQS_QUEUE_NAME"),
		KafkaBrokers: splitList(getEnv("KAFKA_BROKERS", "localhost:9092")),
		KafkaTopic:   getEnv("KAFKA_TOPIC", "inventory-events"),

		AuthRequired:  getBool("AUTH_REQUIRED", true),
		AuthVerifier:  strings.ToLower(getEnv("AUTH_VERIFIER", "static")),
		AdminUsername: getEnv("ADMIN_USERNAME", "admin"),
		AdminPassword: os.Getenv("ADMIN_PASSWORD"),
		JWTSecret:     os.Getenv("JWT_SECRET"),

		AllowedOrigins: splitList(getEnv("ALLOWED_ORIGINS", "http://localhost:3000")),

		S3Bucket:      os.Getenv("AWS_S3_BUCKET"),
		S3Prefix:      getEnv("AWS_S3_PREFIX", "products/"),
		PublicBaseURL: os.Getenv("AWS_PUBLIC_BASE_URL"),

		MetricsEnabled:     getBool("METRICS_ENABLED", false),
		MetricsNamespace:   getEnv("METRICS_NAMESPACE", "Storefront"),
		CloudWatchLogs:     getBool("CLOUDWATCH_ENABLED", false),
		CloudWatchLogGroup: getEnv("CLOUDWATCH_LOG_GROUP", "/storefront/services"),

		UseSecrets:  getBool("AWS_USE_SECRETS", false),
		SecretsName: getEnv("AWS_SECRETS_NAME", "storefront/service"),
		SeedData:    getBool("SEED_DATA", false),
	}

	var err error
	if cfg.CacheTTL, err = time.ParseDuration(getEnv("CACHE_TTL", "5m")); err != nil {
		return nil, fmt.Errorf("invalid CACHE_TTL: %w", err)
	}
	if cfg.SessionTTL, err = time.ParseDuration(getEnv("SESSION_TTL", "12h")); err != nil {
		return nil, fmt.Errorf("invalid SESSION_TTL: %w", err)
	}
	if cfg.RestockThreshold, err = strconv.Atoi(getEnv("RESTOCK_THRESHOLD", "0")); err != nil || cfg.RestockThreshold < 0 {
		return nil, fmt.Errorf("RESTOCK_THRESHOLD must be a non-negative integer")
	}
	if cfg.RestockRatio, err = strconv.ParseFloat(getEnv("RESTOCK_RATIO", "0"), 64); err != nil || cfg.RestockRatio < 0 || cfg.RestockRatio > 1 {
		return nil, fmt.Errorf("RESTOCK_RATIO must be between 0 and 1")
	}
	if cfg.LoginRateLimit, err = strconv.Atoi(getEnv("LOGIN_RATE_LIMIT", "10")); err != nil || cfg.LoginRateLimit <= 0 {
		return nil, fmt.Errorf("LOGIN_RATE_LIMIT must be a positive integer")
	}

	return cfg, nil
}

// ApplySecrets overrides credentials with fields of the JSON secret named by
// AWS_SECRETS_NAME. Missing fields keep the environment value.
func (c *Config) ApplySecrets(ctx context.Context, sm SecretFieldGetter) {
	override := func(field string, dst *string) {
		if v, err := sm.GetSecretField(ctx, c.SecretsName, field); err == nil && v != "" {
			*dst = v
		}
	}
	override("JWT_SECRET", &c.JWTSecret)
	override("ADMIN_PASSWORD", &c.AdminPassword)
	override("POSTGRES_PASSWORD", &c.Postgres.Password)
}

// Validate checks cross-field requirements once secrets are applied.
func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}

	switch c.StoreDriver {
	case "memory", "postgres", "dynamodb", "mongo":
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver)
	}

	switch c.AuthVerifier {
	case "static":
		if c.AdminPassword == "" {
			return fmt.Errorf("ADMIN_PASSWORD is required for the static verifier")
		}
	case "db":
		if c.StoreDriver != "postgres" {
			return fmt.Errorf("AUTH_VERIFIER=db requires STORE_DRIVER=postgres")
		}
	default:
		return fmt.Errorf("unknown AUTH_VERIFIER %q", c.AuthVerifier)
	}

	switch c.EventsDriver {
	case "none", "log", "kafka":
	case "sns":
		if c.SNSTopicArn == "" {
			return fmt.Errorf("RESTOCK_SNS_TOPIC_ARN is required for EVENTS_DRIVER=sns")
		}
	case "sqs":
		if c.SQSQueueURL == "" && c.SQSQueueName == "" {
			return fmt.Errorf("RESTOCK_SQS_QUEUE_URL or RESTOCK_SQS_QUEUE_NAME is required for EVENTS_DRIVER=sqs")
		}
	default:
		return fmt.Errorf("unknown EVENTS_DRIVER %q", c.EventsDriver)
	}
	return nil
}

// NeedsAWS reports whether any configured component talks to AWS.
func (c *Config) NeedsAWS() bool {
	return c.UseSecrets || c.StoreDriver == "dynamodb" || c.EventsDriver == "sns" ||
		c.EventsDriver == "sqs" || c.S3Bucket != "" || c.MetricsEnabled || c.CloudWatchLogs
}
