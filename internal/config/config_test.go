package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emilythestrangee/consensus/backend/internal/config"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")

	cfg, err := config.Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.Env)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "s3cret", cfg.JWTSecret)
	assert.Equal(t, "localhost", cfg.DB.Host)
	assert.Equal(t, 5432, cfg.DB.Port)
	assert.Equal(t, 5*time.Second, cfg.Outbox.PollInterval)
	assert.Equal(t, 100, cfg.Outbox.BatchSize)
	assert.Equal(t, 10, cfg.Outbox.MaxAttempts)
	assert.True(t, cfg.Outbox.Listen)
	assert.False(t, cfg.Twilio.Enabled())
	assert.False(t, cfg.Apple.Enabled())
	assert.Equal(t, "https://appleid.apple.com/auth/keys", cfg.Apple.KeysURL)
}

func TestLoadAppleClientID(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("APPLE_CLIENT_ID", "com.example.consensus")

	cfg, err := config.Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
	assert.True(t, cfg.Apple.Enabled())
	assert.Equal(t, "com.example.consensus", cfg.Apple.ClientID)
}

func TestLoadRequiresJWTSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	require.NoError(t, os.Unsetenv("JWT_SECRET"))

	_, err := config.Load(filepath.Join(t.TempDir(), "missing.env"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWT_SECRET")
}

func TestLoadFromEnvFile(t *testing.T) {
	t.Setenv("PORT", "9090")
	path := filepath.Join(t.TempDir(), ".env")
	contents := "JWT_SECRET=from-file\nPORT=7070\nDB_NAME=votes\nOUTBOX_POLL_INTERVAL=250ms\n" +
		"TWILIO_ACCOUNT_SID=AC123\nTWILIO_AUTH_TOKEN=tok\nTWILIO_FROM_NUMBER=+15550000000\n"
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	t.Cleanup(func() {
		for _, key := range []string{"JWT_SECRET", "DB_NAME", "OUTBOX_POLL_INTERVAL", "TWILIO_ACCOUNT_SID", "TWILIO_AUTH_TOKEN", "TWILIO_FROM_NUMBER"} {
			_ = os.Unsetenv(key)
		}
	})

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, "from-file", cfg.JWTSecret)
	// the process environment wins over the file
	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, "votes", cfg.DB.Name)
	assert.Equal(t, 250*time.Millisecond, cfg.Outbox.PollInterval)
	assert.True(t, cfg.Twilio.Enabled())
}

func TestLoadRejectsBadBatchSize(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("OUTBOX_BATCH_SIZE", "0")

	_, err := config.Load(filepath.Join(t.TempDir(), "missing.env"))
	assert.Error(t, err)
}
