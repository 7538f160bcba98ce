package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CONFIG_ENV", "nonexistent")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "release", cfg.Mode)
	assert.Equal(t, 8000, cfg.Port)
	assert.Equal(t, "redis://localhost:6379", cfg.RedisURL)
	assert.Equal(t, 16000, cfg.InputRate)
	assert.Equal(t, 24000, cfg.OutputRate)
	assert.Equal(t, 300*time.Second, cfg.SessionTTL)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("CONFIG_ENV", "nonexistent")
	t.Setenv("GEMINI_API_KEY", "test-key")
	t.Setenv("GEMINI_MODEL", "gemini-test-model")
	t.Setenv("REDIS_URL", "redis://example:6380/1")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "test-key", cfg.GeminiAPIKey)
	assert.Equal(t, "gemini-test-model", cfg.GeminiModel)
	assert.Equal(t, "redis://example:6380/1", cfg.RedisURL)
	assert.NoError(t, cfg.Validate())
}

func TestValidateRejectsMissingSettings(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"missing api key", Config{GeminiModel: "m", RedisURL: "redis://x"}},
		{"missing model", Config{GeminiAPIKey: "k", RedisURL: "redis://x"}},
		{"missing redis url", Config{GeminiAPIKey: "k", GeminiModel: "m"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, tt.cfg.Validate())
		})
	}
}
