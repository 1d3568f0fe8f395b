package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad_Defaults(t *testing.T) {
	for _, k := range []string{"SERVER_PORT", "JWT_EXPIRY_HOURS", "ALLOWED_ORIGINS", "EXPIRY_GRACE_SECONDS", "PORTAL_URL"} {
		t.Setenv(k, "")
	}

	cfg := Load()
	assert.Equal(t, "8080", cfg.ServerPort)
	assert.Equal(t, 24*time.Hour, cfg.JWTExpiry)
	assert.Nil(t, cfg.AllowedOrigins)
	assert.Equal(t, time.Minute, cfg.ExpiryGrace)
	assert.Equal(t, "http://localhost:8080", cfg.PortalURL)
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("JWT_EXPIRY_HOURS", "2")
	t.Setenv("ALLOWED_ORIGINS", " https://a.example , ,https://b.example")
	t.Setenv("CLIENT_TIMEOUT_SECONDS", "5")
	t.Setenv("PORTAL_URL", "https://portal.example/")
	t.Setenv("AUTH_RATE_LIMIT", "not-a-number")

	cfg := Load()
	assert.Equal(t, "9090", cfg.ServerPort)
	assert.Equal(t, 2*time.Hour, cfg.JWTExpiry)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
	assert.Equal(t, 5*time.Second, cfg.ClientTimeout)
	assert.Equal(t, "https://portal.example", cfg.PortalURL)
	assert.Equal(t, 20, cfg.AuthRateLimit)
}

func TestCacheKeys(t *testing.T) {
	assert.Equal(t, "login:7", CacheKey.UserSessionKey(7))
	assert.Equal(t, "exam:e1:payload", CacheKey.ExamPayloadKey("e1"))
	assert.Equal(t, "student:7:exam:e1:submit_lock", CacheKey.AttemptSubmitLockKey("e1", 7))
	assert.Equal(t, "exam:e1:monitor", CacheKey.ExamMonitorChannel("e1"))
}
