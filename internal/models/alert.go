package models

import "time"

// Metric names, in threshold evaluation order
const (
	MetricCPU          = "cpu"
	MetricMemory       = "memory"
	MetricResponseTime = "responseTime"
	MetricErrorRate    = "errorRate"
	MetricQueueSize    = "queueSize"
)

// MetricOrder is the fixed order thresholds are evaluated in
var MetricOrder = []string{MetricCPU, MetricMemory, MetricResponseTime, MetricErrorRate, MetricQueueSize}

// AlertTypeThreshold is the only alert type produced today
const AlertTypeThreshold = "threshold"

// Alert represents a threshold breach. At most one alert per metric is
// open at a time; ID is derived from the metric name.
type Alert struct {
	ID         string     `json:"id"`
	Type       string     `json:"type"`
	Metric     string     `json:"metric"`
	Value      float64    `json:"value"`
	Threshold  float64    `json:"threshold"`
	Message    string     `json:"message"`
	Timestamp  time.Time  `json:"timestamp"`
	Resolved   bool       `json:"resolved"`
	ResolvedAt *time.Time `json:"resolvedAt,omitempty"`
}

// AlertID returns the deterministic alert id for a metric
func AlertID(metric string) string {
	return AlertTypeThreshold + "_" + metric
}

// Duration returns how long the alert was (or has been) open
func (a *Alert) Duration(now time.Time) time.Duration {
	if a.ResolvedAt != nil {
		return a.ResolvedAt.Sub(a.Timestamp)
	}
	return now.Sub(a.Timestamp)
}
