package config

import (
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadReadsEnvironment(t *testing.T) {
	t.Setenv("SHEETSYNC_ADDR", ":9000")
	t.Setenv("SHEETSYNC_MODE", "both")
	t.Setenv("SHEETSYNC_LOG_RETENTION", "50")
	t.Setenv("SHEETSYNC_SYNC_ENDPOINT", "http://sync.local/api/upload")
	t.Setenv("SHEETSYNC_SYNC_TIMEOUT", "30s")
	t.Setenv("SHEETSYNC_USE_UTC", "yes")
	t.Setenv("SHEETSYNC_BARK_ENABLED", "1")

	cfg := Load()
	assert.Equal(t, ":9000", cfg.Server.Addr)
	assert.Equal(t, "both", cfg.Server.Mode)
	assert.Equal(t, 50, cfg.Log.Retention)
	assert.Equal(t, "http://sync.local/api/upload", cfg.Sync.Endpoint)
	assert.Equal(t, 30*time.Second, cfg.Sync.Timeout)
	assert.True(t, cfg.UseUTC)
	assert.True(t, cfg.Notification.Bark.Enabled)
	assert.Equal(t, time.UTC, cfg.Location())
}

func TestFlagsOverrideEnvironment(t *testing.T) {
	t.Setenv("SHEETSYNC_ADDR", ":9000")
	t.Setenv("SHEETSYNC_LOG_LEVEL", "warn")

	cfg := Load()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	cfg.BindFlags(fs)
	require.NoError(t, fs.Parse([]string{"--addr", ":7171", "--week-start", "mon"}))

	assert.Equal(t, ":7171", cfg.Server.Addr)
	assert.Equal(t, "warn", cfg.Log.Level, "unset flags keep the environment value")

	cfg.StateDir = t.TempDir()
	require.NoError(t, cfg.Finalize())
	assert.Equal(t, time.Monday, cfg.WeekStart)
}

func TestFinalizeValidates(t *testing.T) {
	cfg := &Config{StateDir: t.TempDir(), Server: ServerConfig{Mode: "grpc"}, WeekStartName: "sunday"}
	assert.ErrorContains(t, cfg.Finalize(), "invalid mode")

	cfg = &Config{StateDir: t.TempDir(), WeekStartName: "someday"}
	assert.ErrorContains(t, cfg.Finalize(), "week start")

	cfg = &Config{StateDir: t.TempDir(), WeekStartName: "0", Log: LogConfig{Retention: -1}}
	require.NoError(t, cfg.Finalize())
	assert.Equal(t, "http", cfg.Server.Mode)
	assert.Equal(t, defaultLogRetention, cfg.Log.Retention)
	assert.Equal(t, defaultShutdownGrace, cfg.ShutdownGrace)
	assert.Equal(t, time.Sunday, cfg.WeekStart)
}

func TestParseWeekday(t *testing.T) {
	cases := map[string]time.Weekday{
		"Sunday": time.Sunday,
		"mon":    time.Monday,
		" sat ":  time.Saturday,
		"3":      time.Wednesday,
	}
	for in, want := range cases {
		got, err := ParseWeekday(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseWeekday("7")
	assert.Error(t, err)
}
