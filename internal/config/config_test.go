package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// allConfigKeys lists every DEVBOT_ env var that Load() reads.
var allConfigKeys = []string{
	"DEVBOT_SESSION_ID",
	"DEVBOT_STORE_BACKEND",
	"DEVBOT_DB_PATH",
	"DEVBOT_STORE_DIR",
	"DEVBOT_NATS_URL",
	"DEVBOT_NATS_BUCKET",
	"DEVBOT_SEND_TIME",
	"DEVBOT_TIMEZONE",
	"DEVBOT_SCHEDULE_ENABLED",
	"DEVBOT_DESTINATIONS",
	"DEVBOT_PLAN_PATH",
	"DEVBOT_SHORTENER_URL",
	"DEVBOT_LISTEN_ADDR",
	"DEVBOT_RECONNECT_DELAY",
}

// isolateConfigEnv saves and unsets all DEVBOT_ env vars so tests don't
// inherit values from the host environment. t.Cleanup restores original
// values after the test.
func isolateConfigEnv(t *testing.T) {
	t.Helper()
	for _, key := range allConfigKeys {
		if orig, ok := os.LookupEnv(key); ok {
			t.Cleanup(func() { os.Setenv(key, orig) })
		} else {
			t.Cleanup(func() { os.Unsetenv(key) })
		}
		os.Unsetenv(key)
	}
}

func TestLoad_Success(t *testing.T) {
	isolateConfigEnv(t)
	t.Setenv("DEVBOT_SESSION_ID", "household")
	t.Setenv("DEVBOT_STORE_BACKEND", "file")
	t.Setenv("DEVBOT_STORE_DIR", "/tmp/devbot")
	t.Setenv("DEVBOT_SEND_TIME", "07:30")
	t.Setenv("DEVBOT_TIMEZONE", "Europe/Lisbon")
	t.Setenv("DEVBOT_DESTINATIONS", "111, 222 ,333")
	t.Setenv("DEVBOT_PLAN_PATH", "/tmp/plan.yaml")
	t.Setenv("DEVBOT_RECONNECT_DELAY", "10s")

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, "household", cfg.SessionID)
	assert.Equal(t, StoreFile, cfg.StoreBackend)
	assert.Equal(t, "/tmp/devbot", cfg.StoreDir)
	assert.Equal(t, "07:30", cfg.SendTime)
	assert.Equal(t, "Europe/Lisbon", cfg.Timezone)
	assert.Equal(t, []string{"111", "222", "333"}, cfg.Destinations)
	assert.Equal(t, "/tmp/plan.yaml", cfg.PlanPath)
	assert.Equal(t, 10*time.Second, cfg.ReconnectDelay)
}

func TestLoad_Defaults(t *testing.T) {
	isolateConfigEnv(t)
	t.Setenv("DEVBOT_DESTINATIONS", "111")
	t.Setenv("DEVBOT_PLAN_PATH", "/tmp/plan.yaml")

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, "primary", cfg.SessionID)
	assert.Equal(t, StoreSQLite, cfg.StoreBackend)
	assert.Equal(t, "devbot.db", cfg.DBPath)
	assert.Equal(t, "06:00", cfg.SendTime)
	assert.Equal(t, "America/Sao_Paulo", cfg.Timezone)
	assert.True(t, cfg.ScheduleEnabled)
	assert.Equal(t, "127.0.0.1:8080", cfg.ListenAddr)
	assert.Equal(t, 5*time.Second, cfg.ReconnectDelay)
}

func TestLoad_ScheduleDisabledSkipsRequirements(t *testing.T) {
	isolateConfigEnv(t)
	t.Setenv("DEVBOT_SCHEDULE_ENABLED", "false")

	cfg, err := Load()

	require.NoError(t, err)
	assert.False(t, cfg.ScheduleEnabled)
	assert.Empty(t, cfg.Destinations)
}

func TestLoad_MissingDestinations(t *testing.T) {
	isolateConfigEnv(t)
	t.Setenv("DEVBOT_PLAN_PATH", "/tmp/plan.yaml")

	_, err := Load()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "DEVBOT_DESTINATIONS")
}

func TestLoad_MissingPlanPath(t *testing.T) {
	isolateConfigEnv(t)
	t.Setenv("DEVBOT_DESTINATIONS", "111")

	_, err := Load()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "DEVBOT_PLAN_PATH")
}

func TestLoad_InvalidBackend(t *testing.T) {
	isolateConfigEnv(t)
	t.Setenv("DEVBOT_STORE_BACKEND", "redis")
	t.Setenv("DEVBOT_DESTINATIONS", "111")
	t.Setenv("DEVBOT_PLAN_PATH", "/tmp/plan.yaml")

	_, err := Load()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "DEVBOT_STORE_BACKEND")
}

func TestLoad_InvalidBoolean(t *testing.T) {
	isolateConfigEnv(t)
	t.Setenv("DEVBOT_SCHEDULE_ENABLED", "maybe")

	_, err := Load()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "DEVBOT_SCHEDULE_ENABLED")
}

func TestLoad_InvalidReconnectDelay(t *testing.T) {
	isolateConfigEnv(t)
	t.Setenv("DEVBOT_SCHEDULE_ENABLED", "false")

	t.Run("unparsable", func(t *testing.T) {
		t.Setenv("DEVBOT_RECONNECT_DELAY", "soon")
		_, err := Load()
		require.Error(t, err)
	})

	t.Run("non-positive", func(t *testing.T) {
		t.Setenv("DEVBOT_RECONNECT_DELAY", "-1s")
		_, err := Load()
		require.Error(t, err)
	})
}
