package alerter

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jiin/botwatch/internal/models"
)

type recordingChannel struct {
	name     string
	enabled  bool
	err      error
	mu       sync.Mutex
	sent     []string
	resolved []string
}

func (c *recordingChannel) Name() string    { return c.name }
func (c *recordingChannel) IsEnabled() bool { return c.enabled }

func (c *recordingChannel) Send(a *models.Alert) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, a.Metric)
	return c.err
}

func (c *recordingChannel) SendResolved(a *models.Alert) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resolved = append(c.resolved, a.Metric)
	return c.err
}

func alertEvent(typ models.EventType, metric string) models.Event {
	return models.Event{Type: typ, Alert: &models.Alert{ID: models.AlertID(metric), Metric: metric}}
}

func TestNotifier_Cooldown(t *testing.T) {
	ch := &recordingChannel{name: "rec", enabled: true}
	n := NewNotifierWithChannels([]Channel{ch}, 5*time.Minute)
	now := t0
	n.now = func() time.Time { return now }

	n.Handle(alertEvent(models.EventAlert, models.MetricCPU))
	n.Handle(alertEvent(models.EventAlertResolved, models.MetricCPU))

	// flaps back within cooldown: suppressed, and so is its resolution
	now = now.Add(time.Minute)
	n.Handle(alertEvent(models.EventAlert, models.MetricCPU))
	n.Handle(alertEvent(models.EventAlertResolved, models.MetricCPU))

	now = now.Add(10 * time.Minute)
	n.Handle(alertEvent(models.EventAlert, models.MetricCPU))

	assert.Equal(t, []string{"cpu", "cpu"}, ch.sent)
	assert.Equal(t, []string{"cpu"}, ch.resolved)
}

func TestNotifier_CooldownIsPerMetric(t *testing.T) {
	ch := &recordingChannel{name: "rec", enabled: true}
	n := NewNotifierWithChannels([]Channel{ch}, time.Hour)

	n.Handle(alertEvent(models.EventAlert, models.MetricCPU))
	n.Handle(alertEvent(models.EventAlert, models.MetricMemory))

	assert.Equal(t, []string{"cpu", "memory"}, ch.sent)
}

func TestNotifier_SkipsDisabledAndSurvivesFailures(t *testing.T) {
	broken := &recordingChannel{name: "broken", enabled: true, err: errors.New("boom")}
	off := &recordingChannel{name: "off"}
	ok := &recordingChannel{name: "ok", enabled: true}
	n := NewNotifierWithChannels([]Channel{broken, off, ok}, time.Minute)

	n.Handle(alertEvent(models.EventAlert, models.MetricQueueSize))

	assert.Len(t, broken.sent, 1)
	assert.Empty(t, off.sent)
	assert.Len(t, ok.sent, 1)
	assert.Equal(t, []string{"broken", "ok"}, n.GetEnabledChannels())
}

func TestNotifier_IgnoresOtherEvents(t *testing.T) {
	ch := &recordingChannel{name: "rec", enabled: true}
	n := NewNotifierWithChannels([]Channel{ch}, time.Minute)

	n.Handle(models.Event{Type: models.EventMetrics, Snapshot: &models.Snapshot{}})
	n.Handle(models.Event{Type: models.EventError, Error: &models.ErrorReport{Message: "x"}})

	assert.Empty(t, ch.sent)
}

func TestNotifier_Run(t *testing.T) {
	ch := &recordingChannel{name: "rec", enabled: true}
	n := NewNotifierWithChannels([]Channel{ch}, time.Minute)

	events := make(chan models.Event, 2)
	events <- alertEvent(models.EventAlert, models.MetricErrorRate)
	events <- alertEvent(models.EventAlertResolved, models.MetricErrorRate)
	close(events)

	done := make(chan struct{})
	go func() {
		n.Run(context.Background(), events)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after events closed")
	}
	assert.Equal(t, []string{"errorRate"}, ch.sent)
	assert.Equal(t, []string{"errorRate"}, ch.resolved)
}

func TestNotifier_TestAlert(t *testing.T) {
	a := &recordingChannel{name: "slack", enabled: true}
	b := &recordingChannel{name: "discord", enabled: true}
	n := NewNotifierWithChannels([]Channel{a, b}, time.Minute)

	sent := n.TestAlert(TestAlertOptions{Channels: []string{"Discord"}})
	require.Equal(t, []string{"discord"}, sent)
	assert.Empty(t, a.sent)

	sent = n.TestAlert(TestAlertOptions{})
	assert.ElementsMatch(t, []string{"slack", "discord"}, sent)
}
