package alerter

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/jiin/botwatch/internal/config"
	"github.com/jiin/botwatch/internal/models"
)

// Observation is one metric reading compared against its threshold
type Observation struct {
	Metric    string
	Value     float64
	Threshold float64
}

// Observe extracts the thresholded readings from a snapshot in evaluation
// order. Response time is omitted when no sample was recorded, so an idle
// interval neither opens nor resolves its alert.
func Observe(snap *models.Snapshot, th config.Thresholds) []Observation {
	obs := make([]Observation, 0, len(models.MetricOrder))
	for _, metric := range models.MetricOrder {
		var value, threshold float64
		switch metric {
		case models.MetricCPU:
			value, threshold = snap.System.CPU, th.GetCPU()
		case models.MetricMemory:
			value, threshold = snap.System.Memory.Percentage, th.GetMemory()
		case models.MetricResponseTime:
			if snap.Application.ResponseSamples == 0 {
				continue
			}
			value, threshold = snap.Application.ResponseTime.Avg, th.GetResponseTime()
		case models.MetricErrorRate:
			value, threshold = snap.Application.ErrorRate, th.GetErrorRate()
		case models.MetricQueueSize:
			value, threshold = float64(snap.Application.QueueSize), th.GetQueueSize()
		}
		obs = append(obs, Observation{Metric: metric, Value: value, Threshold: threshold})
	}
	return obs
}

// Breached reports whether the value is at or above the threshold
func (o Observation) Breached() bool {
	if math.IsNaN(o.Value) || math.IsInf(o.Value, 0) {
		return false
	}
	return o.Value >= o.Threshold
}

// FormatMessage renders the human-readable alert text
func FormatMessage(metric string, value, threshold float64) string {
	switch metric {
	case models.MetricCPU:
		return fmt.Sprintf("CPU usage is %.1f%% (threshold: %g%%)", value, threshold)
	case models.MetricMemory:
		return fmt.Sprintf("Memory usage is %.1f%% (threshold: %g%%)", value, threshold)
	case models.MetricResponseTime:
		return fmt.Sprintf("Average response time is %.0fms (threshold: %gms)", value, threshold)
	case models.MetricErrorRate:
		return fmt.Sprintf("Error rate is %.1f%% (threshold: %g%%)", value, threshold)
	case models.MetricQueueSize:
		return fmt.Sprintf("Queue size is %.0f (threshold: %g)", value, threshold)
	default:
		return fmt.Sprintf("%s is %g (threshold: %g)", metric, value, threshold)
	}
}

// Engine tracks open threshold alerts. An alert opens the first time its
// metric breaches, is held silently while the breach persists and is
// resolved and dropped on the first reading below threshold.
type Engine struct {
	mu     sync.RWMutex
	active map[string]*models.Alert // key: metric
}

func NewEngine() *Engine {
	return &Engine{active: make(map[string]*models.Alert)}
}

// Evaluate applies one snapshot and returns the alerts that opened or
// resolved, in evaluation order. Resolutions have Resolved set.
func (e *Engine) Evaluate(snap *models.Snapshot, th config.Thresholds, now time.Time) []models.Alert {
	e.mu.Lock()
	defer e.mu.Unlock()

	var transitions []models.Alert
	for _, o := range Observe(snap, th) {
		existing, open := e.active[o.Metric]

		switch {
		case o.Breached() && !open:
			alert := &models.Alert{
				ID:        models.AlertID(o.Metric),
				Type:      models.AlertTypeThreshold,
				Metric:    o.Metric,
				Value:     o.Value,
				Threshold: o.Threshold,
				Message:   FormatMessage(o.Metric, o.Value, o.Threshold),
				Timestamp: now,
			}
			e.active[o.Metric] = alert
			transitions = append(transitions, *alert)

		case !o.Breached() && open:
			resolvedAt := now
			existing.Resolved = true
			existing.ResolvedAt = &resolvedAt
			delete(e.active, o.Metric)
			transitions = append(transitions, *existing)
		}
	}
	return transitions
}

// Active returns a copy of the open alerts in evaluation order
func (e *Engine) Active() []models.Alert {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]models.Alert, 0, len(e.active))
	for _, metric := range models.MetricOrder {
		if a, ok := e.active[metric]; ok {
			out = append(out, *a)
		}
	}
	return out
}
