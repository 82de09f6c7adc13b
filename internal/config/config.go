package config

import (
	"crypto/md5"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	bwerr "github.com/jiin/botwatch/internal/errors"
	"github.com/jiin/botwatch/internal/logger"
)

// EnvPrefix is the prefix for environment overrides, e.g. BOTWATCH_SERVER_PORT
const EnvPrefix = "BOTWATCH"

type Config struct {
	Server     ServerConfig     `mapstructure:"server" yaml:"server"`
	Logging    LoggingConfig    `mapstructure:"logging" yaml:"logging,omitempty"`
	Monitoring MonitoringConfig `mapstructure:"monitoring" yaml:"monitoring"`
	Retention  RetentionConfig  `mapstructure:"retention" yaml:"retention,omitempty"`
	Alerting   AlertingConfig   `mapstructure:"alerting" yaml:"alerting,omitempty"`
}

type ServerConfig struct {
	Port int `mapstructure:"port" yaml:"port"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level,omitempty"`   // debug, info, warn, error (default: info)
	Format string `mapstructure:"format" yaml:"format,omitempty"` // text, json (default: text)
	Output string `mapstructure:"output" yaml:"output,omitempty"` // stdout, stderr or file path
}

// LoggerConfig converts to the logger package configuration
func (l LoggingConfig) LoggerConfig() logger.Config {
	return logger.Config{Level: l.Level, Format: l.Format, Output: l.Output}
}

// MonitoringConfig configures the metrics collector, alert thresholds and
// snapshot persistence.
type MonitoringConfig struct {
	MetricsInterval      time.Duration `mapstructure:"metrics_interval" yaml:"metrics_interval,omitempty"`
	MetricsDir           string        `mapstructure:"metrics_dir" yaml:"metrics_dir,omitempty"`
	MaxMetricsFiles      int           `mapstructure:"max_metrics_files" yaml:"max_metrics_files,omitempty"`
	CPUSampleWindow      time.Duration `mapstructure:"cpu_sample_window" yaml:"cpu_sample_window,omitempty"`
	EnableAlerts         *bool         `mapstructure:"enable_alerts" yaml:"enable_alerts,omitempty"`
	EnableMetricsLogging *bool         `mapstructure:"enable_metrics_logging" yaml:"enable_metrics_logging,omitempty"`
	Thresholds           Thresholds    `mapstructure:"thresholds" yaml:"thresholds,omitempty"`
}

const (
	DefaultMetricsInterval = 60 * time.Second
	DefaultMetricsDir      = "./data/metrics"
	DefaultMaxMetricsFiles = 1440
	DefaultCPUSampleWindow = time.Second
)

// GetMetricsInterval returns the collection interval with default
func (m *MonitoringConfig) GetMetricsInterval() time.Duration {
	if m.MetricsInterval <= 0 {
		return DefaultMetricsInterval
	}
	return m.MetricsInterval
}

// GetMetricsDir returns the snapshot directory with default
func (m *MonitoringConfig) GetMetricsDir() string {
	if m.MetricsDir == "" {
		return DefaultMetricsDir
	}
	return m.MetricsDir
}

// GetMaxMetricsFiles returns the retention cap with default
func (m *MonitoringConfig) GetMaxMetricsFiles() int {
	if m.MaxMetricsFiles <= 0 {
		return DefaultMaxMetricsFiles
	}
	return m.MaxMetricsFiles
}

// GetCPUSampleWindow returns the CPU delta window with default
func (m *MonitoringConfig) GetCPUSampleWindow() time.Duration {
	if m.CPUSampleWindow <= 0 {
		return DefaultCPUSampleWindow
	}
	return m.CPUSampleWindow
}

// AlertsEnabled returns whether threshold evaluation is on (default true)
func (m *MonitoringConfig) AlertsEnabled() bool {
	if m.EnableAlerts == nil {
		return true
	}
	return *m.EnableAlerts
}

// MetricsLoggingEnabled returns whether snapshots are persisted (default true)
func (m *MonitoringConfig) MetricsLoggingEnabled() bool {
	if m.EnableMetricsLogging == nil {
		return true
	}
	return *m.EnableMetricsLogging
}

// Thresholds holds the alert boundaries. Non-positive values fall back
// to the defaults.
type Thresholds struct {
	CPU          float64 `mapstructure:"cpu" yaml:"cpu,omitempty"`                     // percent
	Memory       float64 `mapstructure:"memory" yaml:"memory,omitempty"`               // percent
	ResponseTime float64 `mapstructure:"response_time" yaml:"response_time,omitempty"` // ms, average
	ErrorRate    float64 `mapstructure:"error_rate" yaml:"error_rate,omitempty"`       // percent
	QueueSize    float64 `mapstructure:"queue_size" yaml:"queue_size,omitempty"`       // count
}

const (
	DefaultCPUThreshold          = 80
	DefaultMemoryThreshold       = 80
	DefaultResponseTimeThreshold = 5000
	DefaultErrorRateThreshold    = 5
	DefaultQueueSizeThreshold    = 100
)

func (t Thresholds) GetCPU() float64          { return orDefault(t.CPU, DefaultCPUThreshold) }
func (t Thresholds) GetMemory() float64       { return orDefault(t.Memory, DefaultMemoryThreshold) }
func (t Thresholds) GetResponseTime() float64 { return orDefault(t.ResponseTime, DefaultResponseTimeThreshold) }
func (t Thresholds) GetErrorRate() float64    { return orDefault(t.ErrorRate, DefaultErrorRateThreshold) }
func (t Thresholds) GetQueueSize() float64    { return orDefault(t.QueueSize, DefaultQueueSizeThreshold) }

func orDefault(v, def float64) float64 {
	if v <= 0 {
		return def
	}
	return v
}

type RetentionConfig struct {
	MaxAge          string `mapstructure:"max_age" yaml:"max_age,omitempty"`
	CleanupInterval string `mapstructure:"cleanup_interval" yaml:"cleanup_interval,omitempty"`
}

// GetMaxAge returns the age limit for snapshot files; zero disables
// age-based cleanup.
func (r *RetentionConfig) GetMaxAge() time.Duration {
	return parseDurationWithDays(r.MaxAge, 0)
}

func (r *RetentionConfig) GetCleanupInterval() time.Duration {
	return parseDurationWithDays(r.CleanupInterval, time.Hour)
}

// AlertingConfig holds notification configuration
type AlertingConfig struct {
	Cooldown time.Duration  `mapstructure:"cooldown" yaml:"cooldown,omitempty"`
	Channels ChannelsConfig `mapstructure:"channels" yaml:"channels,omitempty"`
}

// GetCooldown returns the cooldown with default
func (a *AlertingConfig) GetCooldown() time.Duration {
	if a.Cooldown <= 0 {
		return 5 * time.Minute
	}
	return a.Cooldown
}

// ChannelsConfig holds all notification channel configurations
type ChannelsConfig struct {
	Webhook WebhookConfig `mapstructure:"webhook" yaml:"webhook,omitempty"`
	Slack   SlackConfig   `mapstructure:"slack" yaml:"slack,omitempty"`
	Discord DiscordConfig `mapstructure:"discord" yaml:"discord,omitempty"`
}

// WebhookConfig holds generic webhook notification settings
type WebhookConfig struct {
	Enabled bool              `mapstructure:"enabled" yaml:"enabled"`
	URL     string            `mapstructure:"url" yaml:"url,omitempty"`
	Method  string            `mapstructure:"method" yaml:"method,omitempty"`
	Headers map[string]string `mapstructure:"headers" yaml:"headers,omitempty"`
}

// SlackConfig holds Slack notification settings
type SlackConfig struct {
	Enabled    bool   `mapstructure:"enabled" yaml:"enabled"`
	WebhookURL string `mapstructure:"webhook_url" yaml:"webhook_url,omitempty"`
	Channel    string `mapstructure:"channel" yaml:"channel,omitempty"`
	Username   string `mapstructure:"username" yaml:"username,omitempty"`
}

// DiscordConfig holds Discord notification settings
type DiscordConfig struct {
	Enabled    bool   `mapstructure:"enabled" yaml:"enabled"`
	WebhookURL string `mapstructure:"webhook_url" yaml:"webhook_url,omitempty"`
}

func parseDurationWithDays(s string, defaultVal time.Duration) time.Duration {
	if s == "" {
		return defaultVal
	}
	// Handle "d" suffix for days
	if len(s) > 1 && s[len(s)-1] == 'd' {
		var days int
		if _, err := fmt.Sscanf(s, "%dd", &days); err == nil {
			return time.Duration(days) * 24 * time.Hour
		}
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return defaultVal
	}
	return d
}

// SetDefaults registers every default on v
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.output", "stdout")
	v.SetDefault("monitoring.metrics_interval", DefaultMetricsInterval)
	v.SetDefault("monitoring.metrics_dir", DefaultMetricsDir)
	v.SetDefault("monitoring.max_metrics_files", DefaultMaxMetricsFiles)
	v.SetDefault("monitoring.cpu_sample_window", DefaultCPUSampleWindow)
	v.SetDefault("monitoring.enable_alerts", true)
	v.SetDefault("monitoring.enable_metrics_logging", true)
	v.SetDefault("monitoring.thresholds.cpu", DefaultCPUThreshold)
	v.SetDefault("monitoring.thresholds.memory", DefaultMemoryThreshold)
	v.SetDefault("monitoring.thresholds.response_time", DefaultResponseTimeThreshold)
	v.SetDefault("monitoring.thresholds.error_rate", DefaultErrorRateThreshold)
	v.SetDefault("monitoring.thresholds.queue_size", DefaultQueueSizeThreshold)
	v.SetDefault("retention.cleanup_interval", "1h")
	v.SetDefault("alerting.cooldown", 5*time.Minute)
}

// SetupEnv binds BOTWATCH_* environment overrides
func SetupEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

func newViper(path string) *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	SetupEnv(v)
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
	}
	return v
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, bwerr.Errorf(bwerr.CodeConfigValidateInvalidValue, "unmarshalling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values that cannot be defaulted away
func (c *Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return bwerr.New(bwerr.CodeConfigValidateInvalidValue, "server.port out of range", bwerr.Field("port", c.Server.Port))
	}
	if c.Monitoring.MaxMetricsFiles < 0 {
		return bwerr.New(bwerr.CodeConfigValidateInvalidValue, "monitoring.max_metrics_files must not be negative",
			bwerr.Field("max_metrics_files", c.Monitoring.MaxMetricsFiles))
	}
	if c.Alerting.Channels.Webhook.Enabled && c.Alerting.Channels.Webhook.URL == "" {
		return bwerr.New(bwerr.CodeConfigValidateInvalidValue, "alerting.channels.webhook.url is required when enabled")
	}
	return nil
}

// Load reads configuration from path (optional) with env overrides.
func Load(path string) (*Config, error) {
	v := newViper(path)
	if path != "" {
		if err := v.ReadInConfig(); err != nil {
			return nil, bwerr.Errorf(bwerr.CodeConfigLoadReadFailure, "reading config %s: %w", path, err)
		}
	}
	return decode(v)
}

// Dump renders the configuration as YAML
func Dump(cfg *Config) ([]byte, error) {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config: %w", err)
	}
	return data, nil
}

// Manager handles configuration with hot reload support
type Manager struct {
	mu           sync.RWMutex
	v            *viper.Viper
	config       *Config
	callbacks    []func(*Config)
	configPath   string
	lastHash     string
	pollInterval time.Duration
	stopPolling  chan struct{}
	stopOnce     sync.Once
}

// NewManager creates a new config manager with hot reload
func NewManager(path string) (*Manager, error) {
	return newManager(path, 5*time.Second)
}

func newManager(path string, pollInterval time.Duration) (*Manager, error) {
	v := newViper(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, bwerr.Errorf(bwerr.CodeConfigLoadReadFailure, "reading config %s: %w", path, err)
	}

	cfg, err := decode(v)
	if err != nil {
		return nil, err
	}

	initialHash, _ := fileHash(path)

	m := &Manager{
		v:            v,
		config:       cfg,
		configPath:   path,
		lastHash:     initialHash,
		pollInterval: pollInterval,
		stopPolling:  make(chan struct{}),
	}

	// fsnotify covers native filesystems; polling covers mounted volumes
	v.OnConfigChange(func(e fsnotify.Event) {
		logger.Info("Config file changed (fsnotify)", "file", e.Name)
		m.checkAndReload()
	})
	v.WatchConfig()

	go m.pollForChanges()

	logger.Info("Config hot-reload enabled", "poll_interval", m.pollInterval.String())

	return m, nil
}

// fileHash calculates MD5 hash of a file
func fileHash(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := md5.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}

	return fmt.Sprintf("%x", h.Sum(nil)), nil
}

func (m *Manager) pollForChanges() {
	ticker := time.NewTicker(m.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.checkAndReload()
		case <-m.stopPolling:
			return
		}
	}
}

// checkAndReload reloads only when the file content actually changed, so
// fsnotify and polling never double-fire for one edit.
func (m *Manager) checkAndReload() {
	currentHash, err := fileHash(m.configPath)
	if err != nil {
		logger.Warn("Config polling: failed to hash file", "error", err)
		return
	}

	m.mu.Lock()
	if currentHash == m.lastHash {
		m.mu.Unlock()
		return
	}
	m.lastHash = currentHash
	m.mu.Unlock()

	m.reload()
}

// Stop stops the config manager polling
func (m *Manager) Stop() {
	m.stopOnce.Do(func() { close(m.stopPolling) })
}

// Get returns the current configuration
func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config
}

// OnReload registers a callback for config changes
func (m *Manager) OnReload(callback func(*Config)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callbacks = append(m.callbacks, callback)
}

func (m *Manager) reload() {
	m.mu.Lock()
	err := m.v.ReadInConfig()
	m.mu.Unlock()
	if err != nil {
		logger.Error("Failed to re-read config file", "file", m.configPath, "error", err)
		return
	}

	cfg, err := decode(m.v)
	if err != nil {
		logger.Error("Rejected reloaded config", "file", m.configPath, "error", err)
		return
	}

	m.mu.Lock()
	m.config = cfg
	callbacks := append([]func(*Config){}, m.callbacks...)
	m.mu.Unlock()

	logger.Info("Config reloaded", "file", m.configPath, "callbacks", len(callbacks))
	for _, cb := range callbacks {
		cb(cfg)
	}
}
