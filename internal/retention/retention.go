package retention

import (
	"context"
	"sync"
	"time"

	"github.com/jiin/botwatch/internal/config"
	"github.com/jiin/botwatch/internal/logger"
)

// Cleaner deletes snapshots saved before a cutoff
type Cleaner interface {
	Cleanup(olderThan time.Time) (int64, error)
}

// Manager sweeps snapshots older than max_age on a fixed interval. It
// complements the count cap applied on every save.
type Manager struct {
	store    Cleaner
	maxAge   time.Duration
	interval time.Duration
	now      func() time.Time

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	log    *logger.Logger
}

// NewManager creates a new retention manager
func NewManager(store Cleaner, cfg config.RetentionConfig) *Manager {
	return &Manager{
		store:    store,
		maxAge:   cfg.GetMaxAge(),
		interval: cfg.GetCleanupInterval(),
		now:      time.Now,
		log:      logger.WithComponent("retention"),
	}
}

// Enabled reports whether age-based cleanup is configured
func (m *Manager) Enabled() bool {
	return m.maxAge > 0
}

// Start begins the background cleanup routine. It is a no-op when
// max_age is unset or the routine is already running.
func (m *Manager) Start() {
	if !m.Enabled() {
		m.log.Debug("Retention disabled, max_age not set")
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.done = make(chan struct{})

	go func() {
		defer close(m.done)
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()

		// Run cleanup immediately on start
		m.RunCleanup()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.RunCleanup()
			}
		}
	}()

	m.log.Info("Retention manager started", "max_age", m.maxAge.String(), "interval", m.interval.String())
}

// RunCleanup performs one sweep and returns the number of files removed
func (m *Manager) RunCleanup() int64 {
	olderThan := m.now().Add(-m.maxAge)
	deleted, err := m.store.Cleanup(olderThan)
	if err != nil {
		m.log.Error("Retention cleanup failed", "error", err)
		return deleted
	}
	if deleted > 0 {
		m.log.Info("Retention cleanup", "deleted", deleted, "older_than", olderThan.Format(time.RFC3339))
	}
	return deleted
}

// Stop stops the background cleanup routine and waits for it to exit
func (m *Manager) Stop() {
	m.mu.Lock()
	cancel, done := m.cancel, m.done
	m.cancel, m.done = nil, nil
	m.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}
