package config

import (
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("STEAM_API_KEY", "key")
	t.Setenv("STEAM_USER_IDS", "1, 2 ,1,,3")
	t.Setenv("DISCORD_WEBHOOK_URL", "https://discord.com/api/webhooks/1/t")
	t.Setenv("DATABASE_URL", "postgres://localhost/watch")
}

func TestLoad_Defaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load(true)
	require.NoError(t, err)

	assert.Equal(t, []string{"1", "2", "3"}, cfg.UserIDs)
	assert.Equal(t, time.Hour, cfg.RecentWindow)
	assert.Equal(t, int64(3600), cfg.RecentWindowSeconds())
	assert.Equal(t, 4, cfg.WorkerConcurrency)
	assert.Equal(t, 400_000, cfg.MaxRecordBytes)
	assert.True(t, cfg.EventLogEnabled)
	assert.Equal(t, 5*time.Minute, cfg.PollInterval)
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
}

func TestLoad_Overrides(t *testing.T) {
	setRequired(t)
	t.Setenv("RECENT_WINDOW_SECONDS", "600")
	t.Setenv("WORKER_CONCURRENCY", "9")
	t.Setenv("MAX_RECORD_BYTES", "1024")
	t.Setenv("EVENT_LOG_ENABLED", "false")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load(true)
	require.NoError(t, err)

	assert.Equal(t, 10*time.Minute, cfg.RecentWindow)
	assert.Equal(t, 9, cfg.WorkerConcurrency)
	assert.Equal(t, 1024, cfg.MaxRecordBytes)
	assert.False(t, cfg.EventLogEnabled)
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
}

func TestLoad_MissingRequired(t *testing.T) {
	tests := []struct {
		name  string
		unset string
	}{
		{"steam key", "STEAM_API_KEY"},
		{"users", "STEAM_USER_IDS"},
		{"webhook", "DISCORD_WEBHOOK_URL"},
		{"database", "DATABASE_URL"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequired(t)
			t.Setenv(tt.unset, "")

			_, err := Load(true)

			var cfgErr *Error
			require.True(t, errors.As(err, &cfgErr))
			assert.Equal(t, tt.unset, cfgErr.Key)
		})
	}
}

func TestLoad_DatabaseOptional(t *testing.T) {
	setRequired(t)
	t.Setenv("DATABASE_URL", "")

	cfg, err := Load(false)
	require.NoError(t, err)
	assert.Empty(t, cfg.DatabaseURL)
}

func TestLoad_InvalidConcurrency(t *testing.T) {
	setRequired(t)
	t.Setenv("WORKER_CONCURRENCY", "0")

	_, err := Load(true)

	var cfgErr *Error
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "WORKER_CONCURRENCY", cfgErr.Key)
}

func TestLoadDatabase(t *testing.T) {
	t.Setenv("STEAM_API_KEY", "")
	t.Setenv("DATABASE_URL", "")

	_, err := LoadDatabase()
	var cfgErr *Error
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "DATABASE_URL", cfgErr.Key)

	t.Setenv("DATABASE_URL", "postgres://localhost/watch")
	cfg, err := LoadDatabase()
	require.NoError(t, err)
	assert.Equal(t, "postgres://localhost/watch", cfg.DatabaseURL)
}

func TestLoad_MaxRecordBytes(t *testing.T) {
	tests := []struct {
		value   string
		wantErr bool
	}{
		{"0", false},
		{"1024", false},
		{"200", true},
		{"-1", true},
	}
	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			setRequired(t)
			t.Setenv("MAX_RECORD_BYTES", tt.value)

			_, err := Load(true)
			if !tt.wantErr {
				require.NoError(t, err)
				return
			}
			var cfgErr *Error
			require.ErrorAs(t, err, &cfgErr)
			assert.Equal(t, "MAX_RECORD_BYTES", cfgErr.Key)
		})
	}
}

func TestLoadWithUsers_ReplacesEnvList(t *testing.T) {
	setRequired(t)
	t.Setenv("STEAM_USER_IDS", "")

	_, err := Load(true)
	var cfgErr *Error
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "STEAM_USER_IDS", cfgErr.Key)

	cfg, err := LoadWithUsers(true, []string{"9", "8", "9"})
	require.NoError(t, err)
	assert.Equal(t, []string{"9", "8"}, cfg.UserIDs)

	t.Setenv("STEAM_USER_IDS", "1,2")
	cfg, err = LoadWithUsers(true, []string{"7"})
	require.NoError(t, err)
	assert.Equal(t, []string{"7"}, cfg.UserIDs)
}
