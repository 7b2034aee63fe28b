package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// clearOverrides keeps the caller's environment out of the test.
func clearOverrides(t *testing.T) {
	t.Helper()
	t.Setenv(EnvBaseURL, "")
	t.Setenv(EnvMode, "")
}

func TestLoad(t *testing.T) {
	clearOverrides(t)
	yaml := `
realtime:
  base_url: https://dashboard.example.com
  mode: production
  connect_timeout: 5s
watch:
  hotels: ["7", "42"]
database:
  enabled: true
  host: localhost
  port: 5433
  name: activity
  user: testuser
  password: testpass
`
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Realtime.BaseURL != "https://dashboard.example.com" {
		t.Errorf("Realtime.BaseURL = %q, want %q", cfg.Realtime.BaseURL, "https://dashboard.example.com")
	}
	if !cfg.Realtime.Production() {
		t.Errorf("Realtime.Production() = false, want true")
	}
	if cfg.Realtime.ConnectTimeout != 5*time.Second {
		t.Errorf("Realtime.ConnectTimeout = %v, want %v", cfg.Realtime.ConnectTimeout, 5*time.Second)
	}
	if len(cfg.Watch.Hotels) != 2 || cfg.Watch.Hotels[1] != "42" {
		t.Errorf("Watch.Hotels = %v, want [7 42]", cfg.Watch.Hotels)
	}
	if cfg.Database.Port != 5433 {
		t.Errorf("Database.Port = %d, want %d", cfg.Database.Port, 5433)
	}
}

func TestLoadWithEnvSubstitution(t *testing.T) {
	clearOverrides(t)
	t.Setenv("TEST_DB_PASSWORD", "secret123")

	yaml := `
database:
  enabled: true
  host: localhost
  name: activity
  user: testuser
  password: ${TEST_DB_PASSWORD}
`
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Database.Password != "secret123" {
		t.Errorf("Database.Password = %q, want %q", cfg.Database.Password, "secret123")
	}
}

func TestLoadDotEnv(t *testing.T) {
	clearOverrides(t)
	const key = "DASHSYNC_TEST_DOTENV_HOST"
	t.Cleanup(func() { os.Unsetenv(key) })

	path := writeTempFile(t, "realtime:\n  base_url: http://${"+key+"}:3000\n")
	envPath := filepath.Join(filepath.Dir(path), ".env")
	if err := os.WriteFile(envPath, []byte(key+"=dotenv.local\n"), 0644); err != nil {
		t.Fatalf("write .env: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Realtime.BaseURL != "http://dotenv.local:3000" {
		t.Errorf("Realtime.BaseURL = %q, want %q", cfg.Realtime.BaseURL, "http://dotenv.local:3000")
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv(EnvBaseURL, "http://override:4000")
	t.Setenv(EnvMode, "production")

	path := writeTempFile(t, "realtime:\n  base_url: http://file:3000\n  mode: development\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Realtime.BaseURL != "http://override:4000" {
		t.Errorf("Realtime.BaseURL = %q, want %q", cfg.Realtime.BaseURL, "http://override:4000")
	}
	if cfg.Realtime.Mode != "production" {
		t.Errorf("Realtime.Mode = %q, want %q", cfg.Realtime.Mode, "production")
	}
}

func TestLoadErrors(t *testing.T) {
	clearOverrides(t)

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Load(missing) expected error, got nil")
	}

	path := writeTempFile(t, "realtime: [not, a, map]\n")
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "parse config yaml") {
		t.Errorf("Load(bad yaml) error = %v, want parse error", err)
	}
}

func TestLoadWithDefaults(t *testing.T) {
	clearOverrides(t)
	path := writeTempFile(t, "watch:\n  hotels: [\"7\"]\n")

	cfg, err := LoadWithDefaults(path)
	if err != nil {
		t.Fatalf("LoadWithDefaults failed: %v", err)
	}

	if cfg.Realtime.BaseURL != DefaultBaseURL {
		t.Errorf("Realtime.BaseURL = %q, want %q", cfg.Realtime.BaseURL, DefaultBaseURL)
	}
	if cfg.Realtime.Production() {
		t.Errorf("Realtime.Production() = true, want false")
	}
	if cfg.Realtime.ConnectTimeout != DefaultConnectTimeout {
		t.Errorf("Realtime.ConnectTimeout = %v, want %v", cfg.Realtime.ConnectTimeout, DefaultConnectTimeout)
	}
	if cfg.Realtime.ReconnectCeiling != DefaultReconnectCeiling {
		t.Errorf("Realtime.ReconnectCeiling = %d, want %d", cfg.Realtime.ReconnectCeiling, DefaultReconnectCeiling)
	}
	if cfg.Realtime.StreamRetryBase != DefaultStreamRetryBase {
		t.Errorf("Realtime.StreamRetryBase = %v, want %v", cfg.Realtime.StreamRetryBase, DefaultStreamRetryBase)
	}
	if len(cfg.Watch.Events) != len(DefaultEvents) {
		t.Errorf("Watch.Events = %v, want %v", cfg.Watch.Events, DefaultEvents)
	}
	if cfg.Writer.BatchSize != DefaultBatchSize {
		t.Errorf("Writer.BatchSize = %d, want %d", cfg.Writer.BatchSize, DefaultBatchSize)
	}
	if cfg.Health.Port != DefaultHealthPort {
		t.Errorf("Health.Port = %d, want %d", cfg.Health.Port, DefaultHealthPort)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate, got %v", err)
	}
}

func TestLoadAndValidate(t *testing.T) {
	clearOverrides(t)
	path := writeTempFile(t, "realtime:\n  mode: staging\n")

	_, err := LoadAndValidate(path)
	if err == nil {
		t.Fatal("LoadAndValidate expected error, got nil")
	}
	if !strings.HasPrefix(err.Error(), "validate config: realtime.mode") {
		t.Errorf("error = %q, want validate config: realtime.mode prefix", err.Error())
	}
}

func TestFromEnv(t *testing.T) {
	t.Setenv(EnvBaseURL, "https://env.example.com")
	t.Setenv(EnvMode, "")

	cfg := FromEnv()

	if cfg.Realtime.BaseURL != "https://env.example.com" {
		t.Errorf("Realtime.BaseURL = %q, want %q", cfg.Realtime.BaseURL, "https://env.example.com")
	}
	if cfg.Realtime.Mode != DefaultMode {
		t.Errorf("Realtime.Mode = %q, want %q", cfg.Realtime.Mode, DefaultMode)
	}
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		var c Config
		c.applyDefaults()
		return c
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "valid defaults",
			mutate:  func(*Config) {},
			wantErr: "",
		},
		{
			name:    "missing base url",
			mutate:  func(c *Config) { c.Realtime.BaseURL = "" },
			wantErr: "realtime.base_url is required",
		},
		{
			name:    "unsupported scheme",
			mutate:  func(c *Config) { c.Realtime.BaseURL = "ftp://example.com" },
			wantErr: `realtime.base_url scheme must be http, https, ws or wss, got "ftp"`,
		},
		{
			name:    "missing host",
			mutate:  func(c *Config) { c.Realtime.BaseURL = "http://" },
			wantErr: "realtime.base_url host is required",
		},
		{
			name:    "unknown mode",
			mutate:  func(c *Config) { c.Realtime.Mode = "staging" },
			wantErr: `realtime.mode must be "development" or "production", got "staging"`,
		},
		{
			name:    "zero ceiling",
			mutate:  func(c *Config) { c.Realtime.ReconnectCeiling = -1 },
			wantErr: "realtime.reconnect_ceiling must be >= 1",
		},
		{
			name: "retry max below base",
			mutate: func(c *Config) {
				c.Realtime.StreamRetryBase = 10 * time.Second
				c.Realtime.StreamRetryMax = 5 * time.Second
			},
			wantErr: "realtime.stream_retry_max (5s) cannot be less than stream_retry_base (10s)",
		},
		{
			name:    "ping timeout not above interval",
			mutate:  func(c *Config) { c.Realtime.PingTimeout = c.Realtime.PingInterval },
			wantErr: "realtime.ping_timeout (30s) must exceed ping_interval (30s)",
		},
		{
			name:    "hotel with colon",
			mutate:  func(c *Config) { c.Watch.Hotels = []string{"7", "a:b"} },
			wantErr: `watch.hotels[1] must be non-empty and contain no ':', got "a:b"`,
		},
		{
			name: "disabled database is not checked",
			mutate: func(c *Config) {
				c.Database.Enabled = false
				c.Database.Host = ""
			},
			wantErr: "",
		},
		{
			name: "enabled database missing password",
			mutate: func(c *Config) {
				c.Database = DBConfig{Enabled: true, Host: "localhost", Name: "db", User: "user", MaxConns: 4}
			},
			wantErr: "database.password is required",
		},
		{
			name: "min_conns exceeds max_conns",
			mutate: func(c *Config) {
				c.Database = DBConfig{Enabled: true, Host: "localhost", Name: "db", User: "user", Password: "pass", MaxConns: 2, MinConns: 5}
			},
			wantErr: "database.min_conns (5) cannot exceed max_conns (2)",
		},
		{
			name:    "batch size",
			mutate:  func(c *Config) { c.Writer.BatchSize = 0 },
			wantErr: "writer.batch_size must be >= 1",
		},
		{
			name:    "health port",
			mutate:  func(c *Config) { c.Health.Port = 70000 },
			wantErr: "health.port must be between 0 and 65535, got 70000",
		},
		{
			name:    "log level",
			mutate:  func(c *Config) { c.Log.Level = "trace" },
			wantErr: `log.level must be one of debug, info, warn, error, got "trace"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() unexpected error: %v", err)
				}
			} else {
				if err == nil {
					t.Errorf("Validate() expected error containing %q, got nil", tt.wantErr)
				} else if err.Error() != tt.wantErr {
					t.Errorf("Validate() error = %q, want %q", err.Error(), tt.wantErr)
				}
			}
		})
	}
}

func TestSlogLevel(t *testing.T) {
	tests := []struct {
		level string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := (LogConfig{Level: tt.level}).SlogLevel(); got != tt.want {
			t.Errorf("SlogLevel(%q) = %v, want %v", tt.level, got, tt.want)
		}
	}
}

func writeTempFile(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	return path
}
