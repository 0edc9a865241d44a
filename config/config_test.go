package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("CHAT_REGISTRY_BACKEND", "")
	t.Setenv("CHAT_IDLE_TIMEOUT", "")

	cfg := Load()

	assert.Equal(t, "3000", cfg.Port)
	assert.Equal(t, BackendMemory, cfg.RegistryBackend)
	assert.Equal(t, AttachmentDisk, cfg.AttachmentBackend)
	assert.Equal(t, 60*time.Second, cfg.Session.IdleTimeout)
	assert.Equal(t, int64(8192), cfg.Session.MaxFrameBytes)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("PORT", "8080")
	t.Setenv("CHAT_REGISTRY_BACKEND", BackendRedis)
	t.Setenv("REDIS_DB", "3")
	t.Setenv("CHAT_DB_DEBUG", "true")
	t.Setenv("CHAT_IDLE_TIMEOUT", "90s")
	t.Setenv("CHAT_FRAME_RATE", "2.5")

	cfg := Load()

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, BackendRedis, cfg.RegistryBackend)
	assert.Equal(t, 3, cfg.RedisDB)
	assert.True(t, cfg.DBDebug)
	assert.Equal(t, 90*time.Second, cfg.Session.IdleTimeout)
	assert.InDelta(t, 2.5, cfg.Session.FrameRate, 0.0001)
}

func TestGetEnv_InvalidFallsBack(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
		check func(t *testing.T)
	}{
		{
			name:  "int",
			key:   "TEST_CFG_INT",
			value: "abc",
			check: func(t *testing.T) { assert.Equal(t, 7, getEnvInt("TEST_CFG_INT", 7)) },
		},
		{
			name:  "bool",
			key:   "TEST_CFG_BOOL",
			value: "maybe",
			check: func(t *testing.T) { assert.True(t, getEnvBool("TEST_CFG_BOOL", true)) },
		},
		{
			name:  "duration",
			key:   "TEST_CFG_DURATION",
			value: "soon",
			check: func(t *testing.T) {
				assert.Equal(t, time.Second, getEnvDuration("TEST_CFG_DURATION", time.Second))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			tt.check(t)
		})
	}
}
