package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/nandanugg/geofence-monitor/module/core/domain"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(origDir) })
	return dir
}

func TestLoadDefaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, StoreMemory, cfg.Store.Driver)
	assert.Equal(t, "geofences.db", cfg.Store.SQLitePath)
	assert.Equal(t, "geofences.yaml", cfg.Store.YAMLPath)
	assert.True(t, cfg.RabbitMQ.Enabled)
	assert.Equal(t, "tcp://localhost:1883", cfg.MQTT.Broker)
	assert.Equal(t, "geofence-server", cfg.MQTT.ClientID)
	assert.True(t, cfg.Location.ForegroundPermission)
	assert.True(t, cfg.Location.BackgroundPermission)
	assert.InDelta(t, 10, cfg.Location.MinDistanceMeters, 0.001)
	assert.Equal(t, 1000, cfg.Location.DeferralMS)
	assert.Equal(t, "high", cfg.Location.Accuracy)
	assert.Equal(t, 30*time.Second, cfg.Location.CurrentFixTimeout)
	assert.Equal(t, "level", cfg.Monitor.Mode)
	assert.Zero(t, cfg.Monitor.AlertCooldown)
	assert.Equal(t, 64, cfg.Monitor.QueueSize)
	assert.InDelta(t, 500, cfg.Geofence.RadiusMeters, 0.001)
	assert.Equal(t, 5, cfg.Geofence.Max)
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
log:
  level: debug
  format: console
store:
  driver: sqlite
  sqlite_path: /var/lib/geofence/state.db
monitor:
  mode: edge
  alert_cooldown: 2m
location:
  deferral_ms: 0
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, StoreSQLite, cfg.Store.Driver)
	assert.Equal(t, "/var/lib/geofence/state.db", cfg.Store.SQLitePath)
	assert.Equal(t, "edge", cfg.Monitor.Mode)
	assert.Equal(t, 2*time.Minute, cfg.Monitor.AlertCooldown)
	assert.Zero(t, cfg.Location.DeferralMS)
	// defaults still apply for unset values
	assert.Equal(t, 8080, cfg.Server.Port)
}

func TestLoadExplicitPath(t *testing.T) {
	chdirTemp(t)
	path := filepath.Join(t.TempDir(), "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 7070\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.Server.Port)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("server:\n  port: 9090\n"), 0o644))

	t.Setenv("GEOFENCE_SERVER_PORT", "9191")
	t.Setenv("GEOFENCE_MQTT_ENABLED", "false")
	t.Setenv("GEOFENCE_LOCATION_BACKGROUND_PERMISSION", "false")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 9191, cfg.Server.Port)
	assert.False(t, cfg.MQTT.Enabled)
	assert.False(t, cfg.Location.BackgroundPermission)
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			Store:    StoreConfig{Driver: StoreMemory},
			Monitor:  MonitorConfig{Mode: "level"},
			Location: LocationConfig{Accuracy: "high", MinDistanceMeters: 10, DeferralMS: 1000},
			Geofence: GeofenceConfig{RadiusMeters: 500, Max: 5},
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"valid", func(*Config) {}, false},
		{"postgres without url", func(c *Config) { c.Store.Driver = StorePostgres }, true},
		{"postgres with url", func(c *Config) {
			c.Store.Driver = StorePostgres
			c.Store.DatabaseURL = "postgres://localhost/geofence"
		}, false},
		{"unknown driver", func(c *Config) { c.Store.Driver = "redis" }, true},
		{"unknown mode", func(c *Config) { c.Monitor.Mode = "pulse" }, true},
		{"unknown accuracy", func(c *Config) { c.Location.Accuracy = "extreme" }, true},
		{"max changed", func(c *Config) { c.Geofence.Max = 10 }, true},
		{"zero radius", func(c *Config) { c.Geofence.RadiusMeters = 0 }, true},
		{"negative deferral", func(c *Config) { c.Location.DeferralMS = -1 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(&c)
			err := c.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSubscribeOptions(t *testing.T) {
	opts := LocationConfig{Accuracy: "balanced", MinDistanceMeters: 25, DeferralMS: 500}.SubscribeOptions()

	assert.Equal(t, domain.AccuracyBalanced, opts.Accuracy)
	assert.InDelta(t, 25, opts.MinDistanceMeters, 0.001)
	assert.Equal(t, 500*time.Millisecond, opts.Deferral)
	assert.Equal(t, "Using your location", opts.Notice.Title)
}

func TestInitLogger(t *testing.T) {
	t.Cleanup(func() { zap.ReplaceGlobals(zap.NewNop()) })

	require.NoError(t, InitLogger(LogConfig{Level: "debug", Format: "console"}))
	assert.True(t, zap.L().Core().Enabled(zap.DebugLevel))

	require.NoError(t, InitLogger(LogConfig{Level: "warn", Format: "json"}))
	assert.False(t, zap.L().Core().Enabled(zap.InfoLevel))

	assert.Error(t, InitLogger(LogConfig{Level: "loud"}))
}
