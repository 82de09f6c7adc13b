package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	bwerr "github.com/jiin/botwatch/internal/errors"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestParseDurationWithDays(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected time.Duration
	}{
		{"days", "7d", 7 * 24 * time.Hour},
		{"hours", "24h", 24 * time.Hour},
		{"minutes", "30m", 30 * time.Minute},
		{"single day", "1d", 24 * time.Hour},
		{"empty string", "", 24 * time.Hour},
		{"invalid", "invalid", 24 * time.Hour},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, parseDurationWithDays(tt.input, 24*time.Hour))
		})
	}
}

func TestRetentionConfig(t *testing.T) {
	r := &RetentionConfig{}
	assert.Zero(t, r.GetMaxAge(), "empty max_age disables age-based cleanup")
	assert.Equal(t, time.Hour, r.GetCleanupInterval())

	r = &RetentionConfig{MaxAge: "7d", CleanupInterval: "30m"}
	assert.Equal(t, 7*24*time.Hour, r.GetMaxAge())
	assert.Equal(t, 30*time.Minute, r.GetCleanupInterval())
}

func TestMonitoringConfig_Defaults(t *testing.T) {
	var m MonitoringConfig

	assert.Equal(t, DefaultMetricsInterval, m.GetMetricsInterval())
	assert.Equal(t, DefaultMetricsDir, m.GetMetricsDir())
	assert.Equal(t, DefaultMaxMetricsFiles, m.GetMaxMetricsFiles())
	assert.Equal(t, time.Second, m.GetCPUSampleWindow())
	assert.True(t, m.AlertsEnabled())
	assert.True(t, m.MetricsLoggingEnabled())

	off := false
	m.EnableAlerts = &off
	m.EnableMetricsLogging = &off
	assert.False(t, m.AlertsEnabled())
	assert.False(t, m.MetricsLoggingEnabled())
}

func TestThresholds_Defaults(t *testing.T) {
	var th Thresholds
	assert.Equal(t, 80.0, th.GetCPU())
	assert.Equal(t, 80.0, th.GetMemory())
	assert.Equal(t, 5000.0, th.GetResponseTime())
	assert.Equal(t, 5.0, th.GetErrorRate())
	assert.Equal(t, 100.0, th.GetQueueSize())

	th = Thresholds{CPU: 1, ErrorRate: -3}
	assert.Equal(t, 1.0, th.GetCPU())
	assert.Equal(t, 5.0, th.GetErrorRate(), "non-positive falls back to default")
}

func TestAlertingConfig_GetCooldown(t *testing.T) {
	assert.Equal(t, 5*time.Minute, (&AlertingConfig{}).GetCooldown())
	assert.Equal(t, time.Minute, (&AlertingConfig{Cooldown: time.Minute}).GetCooldown())
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
monitoring:
  metrics_interval: 10s
  metrics_dir: /tmp/botwatch
  max_metrics_files: 5
  enable_alerts: false
  thresholds:
    cpu: 1
    error_rate: 1
retention:
  max_age: 7d
alerting:
  cooldown: 1m
  channels:
    slack:
      enabled: true
      webhook_url: https://hooks.slack.test/x
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 10*time.Second, cfg.Monitoring.GetMetricsInterval())
	assert.Equal(t, "/tmp/botwatch", cfg.Monitoring.GetMetricsDir())
	assert.Equal(t, 5, cfg.Monitoring.GetMaxMetricsFiles())
	assert.False(t, cfg.Monitoring.AlertsEnabled())
	assert.True(t, cfg.Monitoring.MetricsLoggingEnabled())
	assert.Equal(t, 1.0, cfg.Monitoring.Thresholds.GetCPU())
	assert.Equal(t, 80.0, cfg.Monitoring.Thresholds.GetMemory())
	assert.Equal(t, 7*24*time.Hour, cfg.Retention.GetMaxAge())
	assert.Equal(t, time.Minute, cfg.Alerting.GetCooldown())
	assert.True(t, cfg.Alerting.Channels.Slack.Enabled)
}

func TestLoad_NoFile(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, DefaultMaxMetricsFiles, cfg.Monitoring.MaxMetricsFiles)
	assert.Equal(t, 5000.0, cfg.Monitoring.Thresholds.ResponseTime)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("BOTWATCH_SERVER_PORT", "7070")
	t.Setenv("BOTWATCH_MONITORING_THRESHOLDS_CPU", "42")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, 42.0, cfg.Monitoring.Thresholds.GetCPU())
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.True(t, bwerr.HasCode(err, bwerr.CodeConfigLoadReadFailure))

	path := writeConfig(t, "server:\n  port: 70000\n")
	_, err = Load(path)
	require.Error(t, err)
	assert.True(t, bwerr.IsInvalidInput(err))

	path = writeConfig(t, "alerting:\n  channels:\n    webhook:\n      enabled: true\n")
	_, err = Load(path)
	require.Error(t, err)
	assert.True(t, bwerr.HasCode(err, bwerr.CodeConfigValidateInvalidValue))
}

func TestDump(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	data, err := Dump(cfg)
	require.NoError(t, err)
	assert.Contains(t, string(data), "port: 8080")
	assert.Contains(t, string(data), "max_metrics_files: 1440")
}

func TestManager_Reload(t *testing.T) {
	path := writeConfig(t, "server:\n  port: 9000\n")

	m, err := newManager(path, 20*time.Millisecond)
	require.NoError(t, err)
	defer m.Stop()

	assert.Equal(t, 9000, m.Get().Server.Port)

	reloaded := make(chan *Config, 4)
	m.OnReload(func(c *Config) { reloaded <- c })

	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 9001\n"), 0644))

	select {
	case c := <-reloaded:
		assert.Equal(t, 9001, c.Server.Port)
	case <-time.After(3 * time.Second):
		t.Fatal("config was not reloaded")
	}
	assert.Equal(t, 9001, m.Get().Server.Port)
}

func TestManager_RejectsInvalidReload(t *testing.T) {
	path := writeConfig(t, "server:\n  port: 9000\n")

	m, err := newManager(path, time.Hour)
	require.NoError(t, err)
	defer m.Stop()

	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: -1\n"), 0644))
	m.checkAndReload()

	assert.Equal(t, 9000, m.Get().Server.Port)
}
