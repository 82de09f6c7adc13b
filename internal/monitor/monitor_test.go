package monitor

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jiin/botwatch/internal/collector"
	"github.com/jiin/botwatch/internal/config"
	bwerr "github.com/jiin/botwatch/internal/errors"
	"github.com/jiin/botwatch/internal/models"
	"github.com/jiin/botwatch/internal/storage"
)

// fakeSampler advances its CPU counters by one second per read, split
// between busy and idle by load (0..1).
type fakeSampler struct {
	mu       sync.Mutex
	load     float64
	busy     float64
	idle     float64
	cpuErr   error
	memErr   error
	inFlight int32
	maxSeen  int32
}

func (s *fakeSampler) setLoad(load float64) {
	s.mu.Lock()
	s.load = load
	s.mu.Unlock()
}

func (s *fakeSampler) CPUTimes(context.Context) (collector.CPUTimes, error) {
	n := atomic.AddInt32(&s.inFlight, 1)
	defer atomic.AddInt32(&s.inFlight, -1)
	for {
		seen := atomic.LoadInt32(&s.maxSeen)
		if n <= seen || atomic.CompareAndSwapInt32(&s.maxSeen, seen, n) {
			break
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cpuErr != nil {
		return collector.CPUTimes{}, s.cpuErr
	}
	s.busy += s.load
	s.idle += 1 - s.load
	return collector.CPUTimes{Busy: s.busy, Idle: s.idle}, nil
}

func (s *fakeSampler) Memory(context.Context) (collector.MemoryInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.memErr != nil {
		return collector.MemoryInfo{}, s.memErr
	}
	return collector.MemoryInfo{Total: 1000, Available: 600}, nil
}

func (s *fakeSampler) Uptime(context.Context) (uint64, error) { return 3600, nil }

// wrappingSampler reports counters that go backwards
type wrappingSampler struct {
	fakeSampler
	calls int
}

func (s *wrappingSampler) CPUTimes(context.Context) (collector.CPUTimes, error) {
	s.calls++
	if s.calls%2 == 1 {
		return collector.CPUTimes{Busy: 1e9, Idle: 1e9}, nil
	}
	return collector.CPUTimes{Busy: 1, Idle: 1}, nil
}

// gatedSampler blocks its first CPU read until release is closed
type gatedSampler struct {
	fakeSampler
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (s *gatedSampler) CPUTimes(ctx context.Context) (collector.CPUTimes, error) {
	s.once.Do(func() {
		close(s.entered)
		<-s.release
	})
	return s.fakeSampler.CPUTimes(ctx)
}

type failingStore struct {
	storage.Storage
}

func (failingStore) Save(*models.Snapshot) error { return errors.New("disk full") }

func boolPtr(b bool) *bool { return &b }

func testConfig(t *testing.T) config.MonitoringConfig {
	return config.MonitoringConfig{
		MetricsInterval: time.Hour,
		MetricsDir:      filepath.Join(t.TempDir(), "metrics"),
		MaxMetricsFiles: 50,
		// high thresholds so only the test under way trips anything
		Thresholds: config.Thresholds{CPU: 99, Memory: 99, ResponseTime: 1e9, ErrorRate: 100, QueueSize: 1e9},
	}
}

func newTestMonitor(t *testing.T, cfg config.MonitoringConfig, opts ...Option) (*Monitor, *fakeSampler) {
	t.Helper()
	sampler := &fakeSampler{load: 0.5}
	opts = append([]Option{WithSampler(sampler), WithCPUWindow(time.Millisecond)}, opts...)
	return New(cfg, opts...), sampler
}

func drain(ch <-chan models.Event) []models.Event {
	var out []models.Event
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, ev)
		default:
			return out
		}
	}
}

func ofType(events []models.Event, typ models.EventType) []models.Event {
	var out []models.Event
	for _, ev := range events {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}

func TestCollectMetrics_DrainsCountersExactly(t *testing.T) {
	m, _ := newTestMonitor(t, testConfig(t))
	ctx := context.Background()

	times := []time.Duration{120 * time.Millisecond, 80 * time.Millisecond, 400 * time.Millisecond, 200 * time.Millisecond}
	for _, d := range times {
		m.TrackMessage(WithResponseTime(d))
	}

	snap, err := m.CollectMetrics(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, len(times), snap.Application.MessageCount)
	assert.InDelta(t, 200, snap.Application.ResponseTime.Avg, 1e-9)
	assert.InDelta(t, 80, snap.Application.ResponseTime.Min, 1e-9)
	assert.InDelta(t, 400, snap.Application.ResponseTime.Max, 1e-9)

	// a later call must not reach the produced snapshot
	m.TrackMessage(WithResponseTime(time.Hour))
	assert.EqualValues(t, len(times), snap.Application.MessageCount)
	assert.EqualValues(t, len(times), m.GetMetrics().Application.MessageCount)
}

func TestCollectMetrics_ResetIsTotal(t *testing.T) {
	m, _ := newTestMonitor(t, testConfig(t))
	ctx := context.Background()

	m.TrackMessage(WithResponseTime(time.Second), WithQueueSize(4))
	m.TrackError(models.ErrorReport{Message: "boom"})
	m.TrackAIRequest(WithTokens(100), WithProcessingTime(time.Second))
	_, err := m.CollectMetrics(ctx)
	require.NoError(t, err)

	snap, err := m.CollectMetrics(ctx)
	require.NoError(t, err)
	assert.Zero(t, snap.Application.MessageCount)
	assert.Zero(t, snap.Application.ErrorCount)
	assert.Zero(t, snap.Application.ErrorRate)
	assert.Equal(t, models.Stats{}, snap.Application.ResponseTime)
	assert.Zero(t, snap.AI.RequestCount)
	assert.Zero(t, snap.AI.TokenCount)
	assert.Equal(t, models.Stats{}, snap.AI.ProcessingTime)
	assert.EqualValues(t, 4, snap.Application.QueueSize, "queue size is a gauge")
}

func TestCollectMetrics_SystemSection(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	m, _ := newTestMonitor(t, testConfig(t), WithClock(func() time.Time { return now }))

	snap, err := m.CollectMetrics(context.Background())
	require.NoError(t, err)
	assert.Equal(t, now.UnixMilli(), snap.Timestamp)
	assert.InDelta(t, 50, snap.System.CPU, 1e-9)
	assert.Equal(t, uint64(1000), snap.System.Memory.Total)
	assert.Equal(t, uint64(400), snap.System.Memory.Used)
	assert.InDelta(t, 40, snap.System.Memory.Percentage, 1e-9)
	assert.Equal(t, uint64(3600), snap.System.Uptime)
}

func TestCollectMetrics_ErrorRate(t *testing.T) {
	m, _ := newTestMonitor(t, testConfig(t))
	ctx := context.Background()

	m.TrackError(models.ErrorReport{Message: "no messages yet"})
	snap, err := m.CollectMetrics(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, snap.Application.ErrorCount)
	assert.Zero(t, snap.Application.ErrorRate)

	for k := 0; k < 4; k++ {
		m.TrackMessage()
	}
	m.TrackError(models.ErrorReport{Message: "one of four"})
	snap, err = m.CollectMetrics(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 25, snap.Application.ErrorRate, 1e-9)
}

func TestCollectMetrics_CPUIsClamped(t *testing.T) {
	sampler := &wrappingSampler{}
	m := New(testConfig(t), WithSampler(sampler), WithCPUWindow(time.Millisecond))

	snap, err := m.CollectMetrics(context.Background())
	require.NoError(t, err)
	assert.GreaterOrEqual(t, snap.System.CPU, 0.0)
	assert.LessOrEqual(t, snap.System.CPU, 100.0)
	assert.False(t, math.IsNaN(snap.System.CPU))
}

func TestAlerts_OpenOnceWhileSustained(t *testing.T) {
	cfg := testConfig(t)
	cfg.Thresholds.CPU = 10
	m, _ := newTestMonitor(t, cfg)
	events, cancel := m.Subscribe(64)
	defer cancel()

	for k := 0; k < 5; k++ {
		_, err := m.CollectMetrics(context.Background())
		require.NoError(t, err)
	}

	alerts := ofType(drain(events), models.EventAlert)
	require.Len(t, alerts, 1)
	assert.Equal(t, "threshold_cpu", alerts[0].Alert.ID)

	active := m.GetActiveAlerts()
	require.Len(t, active, 1)
	assert.Equal(t, models.MetricCPU, active[0].Metric)
}

func TestAlerts_Resolve(t *testing.T) {
	cfg := testConfig(t)
	cfg.Thresholds.CPU = 60
	m, sampler := newTestMonitor(t, cfg)
	events, cancel := m.Subscribe(64)
	defer cancel()
	ctx := context.Background()

	sampler.setLoad(0.9)
	_, err := m.CollectMetrics(ctx)
	require.NoError(t, err)
	require.Len(t, m.GetActiveAlerts(), 1)

	sampler.setLoad(0.2)
	_, err = m.CollectMetrics(ctx)
	require.NoError(t, err)
	_, err = m.CollectMetrics(ctx)
	require.NoError(t, err)

	assert.Empty(t, m.GetActiveAlerts())
	resolved := ofType(drain(events), models.EventAlertResolved)
	require.Len(t, resolved, 1)
	assert.True(t, resolved[0].Alert.Resolved)
	assert.NotNil(t, resolved[0].Alert.ResolvedAt)
}

func TestAlerts_ExampleScenario(t *testing.T) {
	cfg := testConfig(t)
	cfg.Thresholds.CPU = 1
	cfg.Thresholds.ErrorRate = 1
	m, _ := newTestMonitor(t, cfg)
	events, cancel := m.Subscribe(64)
	defer cancel()

	m.TrackMessage()
	m.TrackError(models.ErrorReport{Source: "whatsapp", Message: "send failed"})
	snap, err := m.CollectMetrics(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 100, snap.Application.ErrorRate, 1e-9)

	var ids []string
	for _, ev := range ofType(drain(events), models.EventAlert) {
		ids = append(ids, ev.Alert.ID)
	}
	assert.Equal(t, []string{"threshold_cpu", "threshold_errorRate"}, ids)
	assert.Len(t, m.GetActiveAlerts(), 2)
}

func TestAlerts_Disabled(t *testing.T) {
	cfg := testConfig(t)
	cfg.Thresholds.CPU = 1
	cfg.EnableAlerts = boolPtr(false)
	m, _ := newTestMonitor(t, cfg)

	_, err := m.CollectMetrics(context.Background())
	require.NoError(t, err)
	assert.Empty(t, m.GetActiveAlerts())

	m.SetAlertsEnabled(true)
	_, err = m.CollectMetrics(context.Background())
	require.NoError(t, err)
	assert.Len(t, m.GetActiveAlerts(), 1)
}

func TestUpdateThresholds(t *testing.T) {
	m, _ := newTestMonitor(t, testConfig(t))
	ctx := context.Background()

	_, err := m.CollectMetrics(ctx)
	require.NoError(t, err)
	assert.Empty(t, m.GetActiveAlerts())

	cfg := testConfig(t)
	cfg.Thresholds.Memory = 30
	m.ApplyConfig(cfg)
	assert.Equal(t, 30.0, m.Thresholds().GetMemory())

	_, err = m.CollectMetrics(ctx)
	require.NoError(t, err)
	active := m.GetActiveAlerts()
	require.Len(t, active, 1)
	assert.Equal(t, models.MetricMemory, active[0].Metric)
}

func TestCollectMetrics_SamplingFailure(t *testing.T) {
	m, sampler := newTestMonitor(t, testConfig(t))
	events, cancel := m.Subscribe(16)
	defer cancel()

	m.TrackMessage()
	sampler.mu.Lock()
	sampler.memErr = errors.New("meminfo unreadable")
	sampler.mu.Unlock()

	_, err := m.CollectMetrics(context.Background())
	require.Error(t, err)
	assert.True(t, bwerr.HasCode(err, bwerr.CodeMonitorCollectSystemFailure))
	assert.Nil(t, m.GetMetrics())
	assert.Empty(t, ofType(drain(events), models.EventMetrics))

	sampler.mu.Lock()
	sampler.memErr = nil
	sampler.mu.Unlock()

	snap, err := m.CollectMetrics(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 1, snap.Application.MessageCount, "counters survive a failed cycle")
}

func TestCollectMetrics_PersistenceFailureIsNotFatal(t *testing.T) {
	m, _ := newTestMonitor(t, testConfig(t), WithStore(failingStore{}))
	events, cancel := m.Subscribe(16)
	defer cancel()

	snap, err := m.CollectMetrics(context.Background())
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Len(t, ofType(drain(events), models.EventMetrics), 1)
	assert.NotNil(t, m.GetMetrics())
}

func TestCollectMetrics_Persistence(t *testing.T) {
	cfg := testConfig(t)
	m, _ := newTestMonitor(t, cfg)

	_, err := m.CollectMetrics(context.Background())
	require.NoError(t, err)
	_, err = m.CollectMetrics(context.Background())
	require.NoError(t, err)

	history, err := m.GetMetricsHistory(models.HistoryQuery{})
	require.NoError(t, err)
	assert.Len(t, history, 2)
	assert.GreaterOrEqual(t, history[0].Timestamp, history[1].Timestamp)
}

func TestCollectMetrics_PersistenceDisabled(t *testing.T) {
	cfg := testConfig(t)
	cfg.EnableMetricsLogging = boolPtr(false)
	m, _ := newTestMonitor(t, cfg)

	_, err := m.CollectMetrics(context.Background())
	require.NoError(t, err)

	_, err = os.Stat(cfg.MetricsDir)
	assert.True(t, os.IsNotExist(err))
}

func TestCollectMetrics_AtMostOneCycle(t *testing.T) {
	m, sampler := newTestMonitor(t, testConfig(t), WithCPUWindow(5*time.Millisecond))

	var wg sync.WaitGroup
	for k := 0; k < 4; k++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := m.CollectMetrics(context.Background())
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, atomic.LoadInt32(&sampler.maxSeen))
}

func TestTrackError_PublishesEvent(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	m, _ := newTestMonitor(t, testConfig(t), WithClock(func() time.Time { return now }))
	events, cancel := m.Subscribe(4)
	defer cancel()

	m.TrackError(models.ErrorReport{Source: "crm", Message: "sheet locked", Context: map[string]any{"row": 7}})

	got := drain(events)
	require.Len(t, got, 1)
	assert.Equal(t, models.EventError, got[0].Type)
	require.NotNil(t, got[0].Error)
	assert.Equal(t, "sheet locked", got[0].Error.Message)
	assert.Equal(t, now, got[0].Error.Timestamp)
	assert.Equal(t, 7, got[0].Error.Context["row"])
}

func TestStartStop(t *testing.T) {
	cfg := testConfig(t)
	cfg.MetricsInterval = 10 * time.Millisecond
	m, _ := newTestMonitor(t, cfg)
	events, cancel := m.Subscribe(256)
	defer cancel()

	m.Start()
	assert.True(t, m.Running())
	require.NotNil(t, m.GetMetrics(), "first collection is synchronous")
	m.Start()

	assert.Eventually(t, func() bool {
		n, err := m.store.Count()
		return err == nil && n >= 3
	}, 2*time.Second, 5*time.Millisecond)

	m.Stop()
	m.Stop()
	assert.False(t, m.Running())

	got := drain(events)
	assert.Len(t, ofType(got, models.EventStarted), 1)
	assert.Len(t, ofType(got, models.EventStopped), 1)
	assert.GreaterOrEqual(t, len(ofType(got, models.EventMetrics)), 3)
	assert.Equal(t, models.EventMetrics, got[0].Type, "initial cycle runs before started")
}

func TestStopDuringFirstCycle(t *testing.T) {
	sampler := &gatedSampler{
		fakeSampler: fakeSampler{load: 0.5},
		entered:     make(chan struct{}),
		release:     make(chan struct{}),
	}
	m := New(testConfig(t), WithSampler(sampler), WithCPUWindow(time.Millisecond))
	events, cancel := m.Subscribe(16)
	defer cancel()

	started := make(chan struct{})
	go func() {
		m.Start()
		close(started)
	}()
	<-sampler.entered

	stopped := make(chan struct{})
	go func() {
		m.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
		t.Fatal("Stop returned while Start was still collecting")
	case <-time.After(20 * time.Millisecond):
	}

	close(sampler.release)
	<-started
	<-stopped

	assert.False(t, m.Running())
	var lifecycle []models.EventType
	for _, ev := range drain(events) {
		if ev.Type == models.EventStarted || ev.Type == models.EventStopped {
			lifecycle = append(lifecycle, ev.Type)
		}
	}
	assert.Equal(t, []models.EventType{models.EventStarted, models.EventStopped}, lifecycle)
}

func TestAlerts_TransitionsInEvaluationOrder(t *testing.T) {
	cfg := testConfig(t)
	cfg.Thresholds.CPU = 60
	m, sampler := newTestMonitor(t, cfg)
	events, cancel := m.Subscribe(64)
	defer cancel()
	ctx := context.Background()

	sampler.setLoad(0.9)
	_, err := m.CollectMetrics(ctx)
	require.NoError(t, err)
	drain(events)

	// cpu recovers while memory (40% used) now breaches
	sampler.setLoad(0.2)
	m.UpdateThresholds(config.Thresholds{CPU: 60, Memory: 30, ResponseTime: 1e9, ErrorRate: 100, QueueSize: 1e9})
	_, err = m.CollectMetrics(ctx)
	require.NoError(t, err)

	var got []string
	for _, ev := range drain(events) {
		if ev.Alert != nil {
			got = append(got, string(ev.Type)+":"+ev.Alert.Metric)
		}
	}
	assert.Equal(t, []string{
		string(models.EventAlertResolved) + ":" + models.MetricCPU,
		string(models.EventAlert) + ":" + models.MetricMemory,
	}, got)
}

func TestGetMetrics_BeforeFirstCycle(t *testing.T) {
	m, _ := newTestMonitor(t, testConfig(t))
	assert.Nil(t, m.GetMetrics())
	assert.Empty(t, m.GetActiveAlerts())
}
