package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/jiin/botwatch/internal/alerter"
	"github.com/jiin/botwatch/internal/collector"
	"github.com/jiin/botwatch/internal/config"
	bwerr "github.com/jiin/botwatch/internal/errors"
	"github.com/jiin/botwatch/internal/logger"
	"github.com/jiin/botwatch/internal/models"
	"github.com/jiin/botwatch/internal/storage"
)

// Monitor samples the host and the bot's traffic counters on a fixed
// delay, evaluates alert thresholds, persists snapshots and publishes
// events to subscribers.
type Monitor struct {
	sampler   collector.SystemSampler
	counters  *collector.Counters
	engine    *alerter.Engine
	store     storage.Storage
	bus       *Bus
	now       func() time.Time
	interval  time.Duration
	cpuWindow time.Duration
	persist   bool
	log       *logger.Logger

	settingsMu    sync.RWMutex
	thresholds    config.Thresholds
	alertsEnabled bool

	// at most one collection cycle runs at a time
	cycleMu sync.Mutex

	currentMu sync.RWMutex
	current   *models.Snapshot

	// serializes Start and Stop so started always precedes stopped
	lifecycleMu sync.Mutex

	runMu   sync.Mutex
	running bool
	cancel  context.CancelFunc
}

// Option configures a Monitor
type Option func(*Monitor)

// WithSampler replaces the gopsutil host sampler
func WithSampler(s collector.SystemSampler) Option {
	return func(m *Monitor) { m.sampler = s }
}

// WithStore replaces the file store built from config
func WithStore(s storage.Storage) Option {
	return func(m *Monitor) { m.store = s }
}

func WithClock(now func() time.Time) Option {
	return func(m *Monitor) { m.now = now }
}

// WithCPUWindow overrides monitoring.cpu_sample_window
func WithCPUWindow(d time.Duration) Option {
	return func(m *Monitor) { m.cpuWindow = d }
}

// New creates a monitor from config. It does not start collecting.
func New(cfg config.MonitoringConfig, opts ...Option) *Monitor {
	m := &Monitor{
		counters:      collector.NewCounters(),
		engine:        alerter.NewEngine(),
		bus:           NewBus(),
		now:           time.Now,
		interval:      cfg.GetMetricsInterval(),
		cpuWindow:     cfg.GetCPUSampleWindow(),
		persist:       cfg.MetricsLoggingEnabled(),
		thresholds:    cfg.Thresholds,
		alertsEnabled: cfg.AlertsEnabled(),
		log:           logger.WithComponent("monitor"),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.sampler == nil {
		m.sampler = collector.NewHostSampler()
	}
	if m.store == nil {
		m.store = storage.NewFileStore(cfg.GetMetricsDir(), cfg.GetMaxMetricsFiles())
	}
	return m
}

// Start runs one collection synchronously and then schedules the next
// ones. It is a no-op if already running.
func (m *Monitor) Start() {
	m.lifecycleMu.Lock()
	defer m.lifecycleMu.Unlock()

	m.runMu.Lock()
	if m.running {
		m.runMu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	m.running = true
	m.cancel = cancel
	m.runMu.Unlock()

	if m.persist {
		if d, ok := m.store.(interface{ EnsureDir() error }); ok {
			if err := d.EnsureDir(); err != nil {
				m.log.Error("Failed to create metrics directory", "error", err)
			}
		}
	}

	if _, err := m.CollectMetrics(context.Background()); err != nil {
		m.log.Error("Initial metrics collection failed", "error", err)
	}

	go m.loop(ctx)

	m.log.Info("Monitor started", "interval", m.interval.String(), "persist", m.persist)
	m.bus.Publish(models.Event{Type: models.EventStarted, Timestamp: m.now()})
}

// Stop cancels future collections. A cycle already in flight completes,
// and a Stop racing Start waits for Start to finish.
func (m *Monitor) Stop() {
	m.lifecycleMu.Lock()
	defer m.lifecycleMu.Unlock()

	m.runMu.Lock()
	if !m.running {
		m.runMu.Unlock()
		return
	}
	m.running = false
	m.cancel()
	m.cancel = nil
	m.runMu.Unlock()

	m.log.Info("Monitor stopped")
	m.bus.Publish(models.Event{Type: models.EventStopped, Timestamp: m.now()})
}

// Running reports whether the schedule is active
func (m *Monitor) Running() bool {
	m.runMu.Lock()
	defer m.runMu.Unlock()
	return m.running
}

// loop waits interval after each cycle finishes, so a slow cycle delays
// the next one instead of overlapping it.
func (m *Monitor) loop(ctx context.Context) {
	timer := time.NewTimer(m.interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		// the cycle is not bound to ctx: Stop must not abort it midway
		if _, err := m.CollectMetrics(context.Background()); err != nil {
			m.log.Error("Metrics collection failed", "error", err)
		}
		timer.Reset(m.interval)
	}
}

// CollectMetrics runs one full cycle and returns the new snapshot. A
// sampling failure aborts the cycle and leaves the counters untouched for
// the next one; persistence failures are only logged.
func (m *Monitor) CollectMetrics(ctx context.Context) (*models.Snapshot, error) {
	m.cycleMu.Lock()
	defer m.cycleMu.Unlock()

	ts := m.now()

	system, err := m.sampleSystem(ctx)
	if err != nil {
		return nil, err
	}

	app, ai := m.counters.Drain()
	snap := &models.Snapshot{
		Timestamp:   ts.UnixMilli(),
		System:      system,
		Application: app,
		AI:          ai,
	}

	m.settingsMu.RLock()
	thresholds, alertsEnabled := m.thresholds, m.alertsEnabled
	m.settingsMu.RUnlock()

	if alertsEnabled {
		for _, a := range m.engine.Evaluate(snap, thresholds, ts) {
			if a.Resolved {
				m.log.Info("Alert resolved", "id", a.ID, "value", a.Value, "open_for", a.Duration(ts).String())
				m.bus.Publish(models.Event{Type: models.EventAlertResolved, Timestamp: ts, Alert: &a})
				continue
			}
			m.log.Warn("Alert opened", "id", a.ID, "value", a.Value, "threshold", a.Threshold, "message", a.Message)
			m.bus.Publish(models.Event{Type: models.EventAlert, Timestamp: ts, Alert: &a})
		}
	}

	if m.persist {
		if err := m.store.Save(snap); err != nil {
			m.log.Error("Failed to save metrics snapshot", "error", err)
		}
		m.log.Info("Metrics collected",
			"cpu", snap.System.CPU,
			"memory", snap.System.Memory.Percentage,
			"messages", snap.Application.MessageCount,
			"errors", snap.Application.ErrorCount,
			"ai_requests", snap.AI.RequestCount,
		)
	}

	m.currentMu.Lock()
	m.current = snap
	m.currentMu.Unlock()

	m.bus.Publish(models.Event{Type: models.EventMetrics, Timestamp: ts, Snapshot: snap})

	return snap, nil
}

func (m *Monitor) sampleSystem(ctx context.Context) (models.SystemMetrics, error) {
	cpu, err := collector.SampleCPU(ctx, m.sampler, m.cpuWindow)
	if err != nil {
		return models.SystemMetrics{}, bwerr.Wrap(err, bwerr.CodeMonitorCollectSystemFailure, "sampling cpu")
	}
	mem, err := m.sampler.Memory(ctx)
	if err != nil {
		return models.SystemMetrics{}, bwerr.Wrap(err, bwerr.CodeMonitorCollectSystemFailure, "sampling memory")
	}
	uptime, err := m.sampler.Uptime(ctx)
	if err != nil {
		return models.SystemMetrics{}, bwerr.Wrap(err, bwerr.CodeMonitorCollectSystemFailure, "reading uptime")
	}
	return models.SystemMetrics{
		CPU:    cpu,
		Memory: collector.MemoryUsage(mem),
		Uptime: uptime,
	}, nil
}

// GetMetrics returns a copy of the latest snapshot, or nil before the
// first successful cycle.
func (m *Monitor) GetMetrics() *models.Snapshot {
	m.currentMu.RLock()
	defer m.currentMu.RUnlock()
	if m.current == nil {
		return nil
	}
	snap := *m.current
	return &snap
}

// GetActiveAlerts returns the open alerts in evaluation order
func (m *Monitor) GetActiveAlerts() []models.Alert {
	return m.engine.Active()
}

// GetMetricsHistory reads persisted snapshots, newest first
func (m *Monitor) GetMetricsHistory(query models.HistoryQuery) ([]models.Snapshot, error) {
	return m.store.GetHistory(query)
}

// Subscribe registers for monitor events; see Bus.Subscribe
func (m *Monitor) Subscribe(buffer int) (<-chan models.Event, func()) {
	return m.bus.Subscribe(buffer)
}

// UpdateThresholds applies from the next cycle on
func (m *Monitor) UpdateThresholds(th config.Thresholds) {
	m.settingsMu.Lock()
	m.thresholds = th
	m.settingsMu.Unlock()
	m.log.Info("Alert thresholds updated",
		"cpu", th.GetCPU(), "memory", th.GetMemory(), "response_time", th.GetResponseTime(),
		"error_rate", th.GetErrorRate(), "queue_size", th.GetQueueSize())
}

// SetAlertsEnabled toggles threshold evaluation. Alerts already open stay
// open while evaluation is off.
func (m *Monitor) SetAlertsEnabled(enabled bool) {
	m.settingsMu.Lock()
	m.alertsEnabled = enabled
	m.settingsMu.Unlock()
}

// Thresholds returns the thresholds in effect
func (m *Monitor) Thresholds() config.Thresholds {
	m.settingsMu.RLock()
	defer m.settingsMu.RUnlock()
	return m.thresholds
}

// AlertsEnabled reports whether threshold evaluation is on
func (m *Monitor) AlertsEnabled() bool {
	m.settingsMu.RLock()
	defer m.settingsMu.RUnlock()
	return m.alertsEnabled
}

// ApplyConfig pushes the reloadable part of a new config into the monitor.
// Interval, directory and retention cap need a restart.
func (m *Monitor) ApplyConfig(cfg config.MonitoringConfig) {
	m.UpdateThresholds(cfg.Thresholds)
	m.SetAlertsEnabled(cfg.AlertsEnabled())
}
