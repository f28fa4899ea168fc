package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"PORT", "STORE_DRIVER", "JWT_EXPIRATION", "NATS_URL", "CORS_ORIGINS", "PREDICTION_PROVIDER"} {
		t.Setenv(key, "")
	}

	cfg := Load()

	assert.Equal(t, "8000", cfg.ServerPort)
	assert.Equal(t, StoreSQLite, cfg.StoreDriver)
	assert.Equal(t, 24*time.Hour, cfg.JWTExpiration)
	assert.Empty(t, cfg.NATSURL)
	assert.Equal(t, "flowise", cfg.PredictionProvider)
	assert.Equal(t, []string{"http://localhost:5173"}, cfg.CORSOrigins)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("STORE_DRIVER", "mongo")
	t.Setenv("JWT_EXPIRATION", "2h")
	t.Setenv("RATE_LIMIT_REQUESTS", "not-a-number")
	t.Setenv("TRACING_ENABLED", "true")
	t.Setenv("CORS_ORIGINS", "http://a.test, http://b.test,,")

	cfg := Load()

	assert.Equal(t, "9090", cfg.ServerPort)
	assert.Equal(t, StoreMongo, cfg.StoreDriver)
	assert.Equal(t, 2*time.Hour, cfg.JWTExpiration)
	assert.Equal(t, 300, cfg.RateLimitRequests)
	assert.True(t, cfg.TracingEnabled)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.CORSOrigins)
}
