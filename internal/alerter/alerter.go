package alerter

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/jiin/botwatch/internal/config"
	"github.com/jiin/botwatch/internal/logger"
	"github.com/jiin/botwatch/internal/models"
)

// Notifier fans alert transitions out to notification channels. An alert
// that re-opens within the cooldown of its last notification is not
// re-sent; resolutions go out only for alerts that were notified.
type Notifier struct {
	mu        sync.RWMutex
	channels  []Channel
	cooldown  time.Duration
	lastFired map[string]time.Time // cooldown tracking: metric -> last notified
	notified  map[string]bool      // metric -> open alert was sent
	now       func() time.Time
	log       *logger.Logger
}

// NewNotifier creates a notifier from alerting config
func NewNotifier(cfg config.AlertingConfig) *Notifier {
	return NewNotifierWithChannels(BuildChannels(cfg.Channels), cfg.GetCooldown())
}

// NewNotifierWithChannels creates a notifier over explicit channels
func NewNotifierWithChannels(channels []Channel, cooldown time.Duration) *Notifier {
	return &Notifier{
		channels:  channels,
		cooldown:  cooldown,
		lastFired: make(map[string]time.Time),
		notified:  make(map[string]bool),
		now:       time.Now,
		log:       logger.WithComponent("notifier"),
	}
}

// UpdateConfig swaps channels and cooldown; cooldown state is kept
func (n *Notifier) UpdateConfig(cfg config.AlertingConfig) {
	channels := BuildChannels(cfg.Channels)

	n.mu.Lock()
	defer n.mu.Unlock()
	n.channels = channels
	n.cooldown = cfg.GetCooldown()
	n.log.Info("Notifier configuration updated", "channels", len(channels), "cooldown", n.cooldown.String())
}

// Run consumes monitor events until ctx is done or events is closed
func (n *Notifier) Run(ctx context.Context, events <-chan models.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			n.Handle(ev)
		}
	}
}

// Handle processes a single event; non-alert events are ignored
func (n *Notifier) Handle(ev models.Event) {
	if ev.Alert == nil {
		return
	}
	switch ev.Type {
	case models.EventAlert:
		n.fire(ev.Alert)
	case models.EventAlertResolved:
		n.resolve(ev.Alert)
	}
}

func (n *Notifier) fire(alert *models.Alert) {
	now := n.now()

	n.mu.Lock()
	last, exists := n.lastFired[alert.Metric]
	if exists && now.Sub(last) < n.cooldown {
		n.notified[alert.Metric] = false
		n.mu.Unlock()
		n.log.Debug("Alert notification suppressed by cooldown", "metric", alert.Metric)
		return
	}
	n.lastFired[alert.Metric] = now
	n.notified[alert.Metric] = true
	n.mu.Unlock()

	n.sendNotifications(alert)
}

func (n *Notifier) resolve(alert *models.Alert) {
	n.mu.Lock()
	wasNotified := n.notified[alert.Metric]
	delete(n.notified, alert.Metric)
	n.mu.Unlock()

	if !wasNotified {
		return
	}
	n.sendResolutionNotifications(alert)
}

// sendNotifications sends alert to all enabled channels
func (n *Notifier) sendNotifications(alert *models.Alert) {
	for _, ch := range n.enabledChannels() {
		if err := ch.Send(alert); err != nil {
			n.log.Error("Failed to send alert", "channel", ch.Name(), "metric", alert.Metric, "error", err)
		}
	}
}

// sendResolutionNotifications sends resolution to all enabled channels
func (n *Notifier) sendResolutionNotifications(alert *models.Alert) {
	for _, ch := range n.enabledChannels() {
		if err := ch.SendResolved(alert); err != nil {
			n.log.Error("Failed to send resolution", "channel", ch.Name(), "metric", alert.Metric, "error", err)
		}
	}
}

func (n *Notifier) enabledChannels() []Channel {
	n.mu.RLock()
	defer n.mu.RUnlock()

	out := make([]Channel, 0, len(n.channels))
	for _, ch := range n.channels {
		if ch.IsEnabled() {
			out = append(out, ch)
		}
	}
	return out
}

// GetEnabledChannels returns list of enabled channel names
func (n *Notifier) GetEnabledChannels() []string {
	names := []string{}
	for _, ch := range n.enabledChannels() {
		names = append(names, ch.Name())
	}
	return names
}

// TestAlertOptions contains options for test alerts
type TestAlertOptions struct {
	Channels []string `json:"channels"` // specific channels to test, empty = all
	Message  string   `json:"message"`
}

// TestAlert sends a synthetic alert, bypassing cooldown. It returns the
// names of the channels that accepted it.
func (n *Notifier) TestAlert(opts TestAlertOptions) []string {
	message := opts.Message
	if message == "" {
		message = "This is a test alert from botwatch"
	}

	alert := &models.Alert{
		ID:        "test",
		Type:      "test",
		Metric:    "test",
		Message:   message,
		Timestamp: n.now(),
	}

	wanted := make(map[string]bool)
	for _, name := range opts.Channels {
		wanted[strings.ToLower(name)] = true
	}

	sent := []string{}
	for _, ch := range n.enabledChannels() {
		if len(wanted) > 0 && !wanted[strings.ToLower(ch.Name())] {
			continue
		}
		if err := ch.Send(alert); err != nil {
			n.log.Error("Failed to send test alert", "channel", ch.Name(), "error", err)
			continue
		}
		sent = append(sent, ch.Name())
	}
	return sent
}
