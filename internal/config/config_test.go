package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("REMOTE_API_URL", "")
	t.Setenv("QUERY_TIMEOUT", "")
	t.Setenv("NATS_URL", "")
	t.Setenv("HOST", "")
	t.Setenv("PORT", "")
	t.Setenv("ALLOWED_ORIGINS", "")

	cfg := Load()
	assert.Equal(t, "127.0.0.1:8090", cfg.Addr())
	assert.Equal(t, []string{"http://localhost:8090", "http://127.0.0.1:8090"}, cfg.AllowedOrigins)
	assert.Equal(t, "http://127.0.0.1:8000", cfg.RemoteAPIURL)
	assert.Equal(t, 30*time.Second, cfg.QueryTimeout)
	assert.Equal(t, 2*time.Second, cfg.LogoutDelay)
	assert.True(t, cfg.HydrateOnStart)
	assert.False(t, cfg.NATSEnabled())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("REMOTE_API_URL", "https://sql.example.com/")
	t.Setenv("QUERY_TIMEOUT", "45s")
	t.Setenv("HYDRATE_ON_START", "false")
	t.Setenv("RATE_LIMIT_REQUESTS", "nope")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example.com, ,https://b.example.com")
	t.Setenv("NATS_URL", "nats://localhost:4222")
	t.Setenv("HOST", "0.0.0.0")
	t.Setenv("PORT", "9000")

	cfg := Load()
	assert.Equal(t, "0.0.0.0:9000", cfg.Addr())
	assert.Equal(t, "https://sql.example.com", cfg.RemoteAPIURL)
	assert.Equal(t, 45*time.Second, cfg.QueryTimeout)
	assert.False(t, cfg.HydrateOnStart)
	assert.Equal(t, 30, cfg.RateLimitRequests)
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.AllowedOrigins)
	assert.True(t, cfg.NATSEnabled())
}
