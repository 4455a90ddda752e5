package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("ADMIN_PASSWORD", "pw")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "memory", cfg.StoreDriver)
	assert.Equal(t, "log", cfg.EventsDriver)
	assert.Equal(t, "static", cfg.AuthVerifier)
	assert.True(t, cfg.AuthRequired)
	assert.Equal(t, 12*time.Hour, cfg.SessionTTL)
	assert.Equal(t, 5*time.Minute, cfg.CacheTTL)
	assert.Zero(t, cfg.RestockThreshold)
	assert.Zero(t, cfg.RestockRatio)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.AllowedOrigins)
	assert.False(t, cfg.NeedsAWS())
}

func TestLoadConfig_Overrides(t *testing.T) {
	t.Setenv("STORE_DRIVER", "Postgres")
	t.Setenv("EVENTS_DRIVER", "kafka")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("RESTOCK_THRESHOLD", "3")
	t.Setenv("RESTOCK_RATIO", "0.2")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("AUTH_REQUIRED", "false")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.StoreDriver)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, 3, cfg.RestockThreshold)
	assert.InDelta(t, 0.2, cfg.RestockRatio, 1e-9)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
	assert.False(t, cfg.AuthRequired)
}

func TestLoadConfig_RejectsBadNumbers(t *testing.T) {
	cases := map[string]string{
		"RESTOCK_THRESHOLD": "-1",
		"RESTOCK_RATIO":     "1.5",
		"SESSION_TTL":       "forever",
		"LOGIN_RATE_LIMIT":  "0",
	}
	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, value)
			_, err := LoadConfig()
			assert.Error(t, err)
		})
	}
}

func TestConfig_Validate(t *testing.T) {
	base := func() *Config {
		return &Config{
			JWTSecret:     "secret",
			StoreDriver:   "memory",
			AuthVerifier:  "static",
			AdminPassword: "pw",
			EventsDriver:  "none",
		}
	}

	assert.NoError(t, base().Validate())

	cfg := base()
	cfg.JWTSecret = ""
	assert.EqualError(t, cfg.Validate(), "JWT_SECRET is required")

	cfg = base()
	cfg.StoreDriver = "sqlite"
	assert.Error(t, cfg.Validate())

	cfg = base()
	cfg.AdminPassword = ""
	assert.Error(t, cfg.Validate())

	cfg = base()
	cfg.AuthVerifier = "db"
	assert.EqualError(t, cfg.Validate(), "AUTH_VERIFIER=db requires STORE_DRIVER=postgres")
	cfg.StoreDriver = "postgres"
	assert.NoError(t, cfg.Validate())

	cfg = base()
	cfg.EventsDriver = "sns"
	assert.Error(t, cfg.Validate())
	cfg.SNSTopicArn = "arn:aws:sns:us-east-1:000000000000:restock"
	assert.NoError(t, cfg.Validate())
	assert.True(t, cfg.NeedsAWS())

	cfg = base()
	cfg.EventsDriver = "sqs"
	assert.Error(t, cfg.Validate())
	cfg.SQSQueueName = "restock"
	assert.NoError(t, cfg.Validate())

	cfg = base()
	cfg.EventsDriver = "webhook"
	assert.Error(t, cfg.Validate())
}

type fakeSecrets map[string]string

func (f fakeSecrets) GetSecretField(_ context.Context, name, field string) (string, error) {
	if name != "storefront/service" {
		return "", errors.New("secret not found")
	}
	if v, ok := f[field]; ok {
		return v, nil
	}
	return "", errors.New("field not found")
}

func TestConfig_ApplySecrets(t *testing.T) {
	cfg := &Config{JWTSecret: "from-env", AdminPassword: "env-pw", SecretsName: "storefront/service"}
	cfg.Postgres.Password = "env-db"

	cfg.ApplySecrets(context.Background(), fakeSecrets{
		"JWT_SECRET":        "from-secrets",
		"POSTGRES_PASSWORD": "",
	})

	assert.Equal(t, "from-secrets", cfg.JWTSecret)
	assert.Equal(t, "env-pw", cfg.AdminPassword)
	assert.Equal(t, "env-db", cfg.Postgres.Password)
}
