package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
)

// ServerConfig holds server-related settings.
type ServerConfig struct {
	Addr      string
	AuthToken string
	Mode      string
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level     string
	Retention int
}

// SyncConfig holds settings of the upload collaborator.
type SyncConfig struct {
	Endpoint   string
	Timeout    time.Duration
	RatePerSec int
}

// BarkConfig holds Bark notification settings.
type BarkConfig struct {
	URL     string
	Enabled bool
}

// NotificationConfig holds all notification settings.
type NotificationConfig struct {
	Bark BarkConfig
}

// Config holds all runtime configuration options for the daemon.
type Config struct {
	Server       ServerConfig
	Log          LogConfig
	Sync         SyncConfig
	Notification NotificationConfig

	StateDir      string
	TasksFile     string
	Lister        string
	UseUTC        bool
	WeekStartName string
	ShutdownGrace time.Duration

	// WeekStart is resolved from WeekStartName by Finalize.
	WeekStart time.Weekday
}

const (
	defaultAddr          = "127.0.0.1:7070"
	defaultLogLevel      = "info"
	defaultLogRetention  = 100
	defaultMode          = "http"
	defaultSyncTimeout   = 2 * time.Minute
	defaultSyncRate      = 2
	defaultLister        = "native"
	defaultWeekStart     = "sunday"
	defaultShutdownGrace = 5 * time.Second
	appName              = "sheetsync"
)

// Modes lists the accepted values of Server.Mode.
var Modes = []string{"http", "mcp", "both"}

// getEnvString returns the environment variable value or default
func getEnvString(key, defaultVal string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return defaultVal
}

// getEnvInt returns the environment variable as int or default
func getEnvInt(key string, defaultVal int) int {
	if val, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

// getEnvBool returns the environment variable as bool or default
func getEnvBool(key string, defaultVal bool) bool {
	if val, ok := os.LookupEnv(key); ok {
		lower := strings.ToLower(val)
		return lower == "true" || lower == "1" || lower == "yes"
	}
	return defaultVal
}

// getEnvDuration returns the environment variable as duration or default
func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}

// Load reads .env files and SHEETSYNC_* environment variables.
// Priority: environment variables > .env file > defaults. Flags bound with
// BindFlags are applied on top when the command line is parsed.
func Load() *Config {
	// .env is optional; the current directory wins over the user config dir.
	envFiles := []string{".env"}
	if configDir, err := os.UserConfigDir(); err == nil {
		envFiles = append(envFiles, filepath.Join(configDir, appName, ".env"))
	}
	for _, f := range envFiles {
		_ = godotenv.Load(f)
	}

	return &Config{
		Server: ServerConfig{
			Addr:      getEnvString("SHEETSYNC_ADDR", defaultAddr),
			AuthToken: getEnvString("SHEETSYNC_AUTH_TOKEN", ""),
			Mode:      getEnvString("SHEETSYNC_MODE", defaultMode),
		},
		Log: LogConfig{
			Level:     getEnvString("SHEETSYNC_LOG_LEVEL", defaultLogLevel),
			Retention: getEnvInt("SHEETSYNC_LOG_RETENTION", defaultLogRetention),
		},
		Sync: SyncConfig{
			Endpoint:   getEnvString("SHEETSYNC_SYNC_ENDPOINT", ""),
			Timeout:    getEnvDuration("SHEETSYNC_SYNC_TIMEOUT", defaultSyncTimeout),
			RatePerSec: getEnvInt("SHEETSYNC_SYNC_RATE", defaultSyncRate),
		},
		Notification: NotificationConfig{
			Bark: BarkConfig{
				URL:     getEnvString("SHEETSYNC_BARK_URL", ""),
				Enabled: getEnvBool("SHEETSYNC_BARK_ENABLED", false),
			},
		},
		StateDir:      getEnvString("SHEETSYNC_STATE_DIR", ""),
		TasksFile:     getEnvString("SHEETSYNC_TASKS_FILE", ""),
		Lister:        getEnvString("SHEETSYNC_LISTER", defaultLister),
		UseUTC:        getEnvBool("SHEETSYNC_USE_UTC", false),
		WeekStartName: getEnvString("SHEETSYNC_WEEK_START", defaultWeekStart),
		ShutdownGrace: getEnvDuration("SHEETSYNC_SHUTDOWN_GRACE", defaultShutdownGrace),
	}
}

// BindFlags registers command-line overrides. Current values act as defaults,
// so a flag only wins when it is given.
func (c *Config) BindFlags(fs *pflag.FlagSet) {
	fs.StringVar(&c.Server.Addr, "addr", c.Server.Addr, "HTTP listen address")
	fs.StringVar(&c.Server.Mode, "mode", c.Server.Mode, "Serving mode: http, mcp or both")
	fs.StringVar(&c.StateDir, "state-dir", c.StateDir, "Directory holding the database")
	fs.StringVar(&c.TasksFile, "tasks-file", c.TasksFile, "JSON or YAML task file to import and watch")
	fs.StringVar(&c.Log.Level, "log-level", c.Log.Level, "Log level (debug, info, warn, error)")
	fs.IntVar(&c.Log.Retention, "log-retention", c.Log.Retention, "Execution log entries kept per task")
	fs.StringVar(&c.Sync.Endpoint, "sync-endpoint", c.Sync.Endpoint, "URL files are uploaded to")
	fs.DurationVar(&c.Sync.Timeout, "sync-timeout", c.Sync.Timeout, "Timeout of one upload request")
	fs.IntVar(&c.Sync.RatePerSec, "sync-rate", c.Sync.RatePerSec, "Uploads per second, 0 for unlimited")
	fs.StringVar(&c.Lister, "lister", c.Lister, "Directory lister: native or none")
	fs.BoolVar(&c.UseUTC, "use-utc", c.UseUTC, "Evaluate triggers in UTC instead of local time")
	fs.StringVar(&c.WeekStartName, "week-start", c.WeekStartName, "First day of the week for the this_week filter")
	fs.DurationVar(&c.ShutdownGrace, "shutdown-grace", c.ShutdownGrace, "Grace period when shutting down")
}

// Finalize validates the merged configuration and fills derived fields.
func (c *Config) Finalize() error {
	c.Server.Mode = strings.ToLower(strings.TrimSpace(c.Server.Mode))
	if c.Server.Mode == "" {
		c.Server.Mode = defaultMode
	}
	if !validMode(c.Server.Mode) {
		return fmt.Errorf("invalid mode %q, want one of %s", c.Server.Mode, strings.Join(Modes, ", "))
	}

	wd, err := ParseWeekday(c.WeekStartName)
	if err != nil {
		return err
	}
	c.WeekStart = wd

	if c.Log.Retention < 1 {
		c.Log.Retention = defaultLogRetention
	}
	if c.ShutdownGrace <= 0 {
		c.ShutdownGrace = defaultShutdownGrace
	}

	if c.StateDir == "" {
		dir, err := defaultStateDir()
		if err != nil {
			return fmt.Errorf("resolve default state dir: %w", err)
		}
		c.StateDir = dir
	}
	return nil
}

// Location is the time zone triggers are evaluated in.
func (c *Config) Location() *time.Location {
	if c.UseUTC {
		return time.UTC
	}
	return time.Local
}

// ParseWeekday accepts English day names, three-letter abbreviations and 0-6.
func ParseWeekday(s string) (time.Weekday, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if n, err := strconv.Atoi(s); err == nil && n >= 0 && n <= 6 {
		return time.Weekday(n), nil
	}
	for d := time.Sunday; d <= time.Saturday; d++ {
		name := strings.ToLower(d.String())
		if s == name || s == name[:3] {
			return d, nil
		}
	}
	return time.Sunday, fmt.Errorf("invalid week start %q", s)
}

func validMode(mode string) bool {
	for _, m := range Modes {
		if m == mode {
			return true
		}
	}
	return false
}

func defaultStateDir() (string, error) {
	baseDir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	path := filepath.Join(baseDir, appName)
	if err := os.MkdirAll(path, 0o755); err != nil {
		return "", err
	}
	return path, nil
}
