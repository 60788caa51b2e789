package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := Load()
	assert.Equal(t, "3000", cfg.AppPort)
	assert.Equal(t, 5*time.Minute, cfg.OTPTTL)
	assert.Equal(t, 15*time.Minute, cfg.ConnectionCodeTTL)
	assert.Equal(t, time.Minute, cfg.SweepInterval)
	assert.Equal(t, []string{"*"}, cfg.AllowedOrigins)
	assert.Equal(t, "connection_codes", cfg.DynamoTables.ConnectionCodes)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("APP_PORT", "8080")
	t.Setenv("OTP_TTL", "90s")
	t.Setenv("SMTP_PORT", "2525")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, https://b.example,")

	cfg := Load()
	assert.Equal(t, "8080", cfg.AppPort)
	assert.Equal(t, 90*time.Second, cfg.OTPTTL)
	assert.Equal(t, 2525, cfg.SMTPPort)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
}

func TestLoad_InvalidDurationFallsBack(t *testing.T) {
	t.Setenv("SWEEP_INTERVAL", "soon")
	t.Setenv("CONNECTION_CODE_TTL", "-5m")

	cfg := Load()
	assert.Equal(t, time.Minute, cfg.SweepInterval)
	assert.Equal(t, 15*time.Minute, cfg.ConnectionCodeTTL)
}
