package models

import "time"

// Stats is an avg/min/max aggregate over the samples of one interval.
// All fields are zero when no samples were recorded.
type Stats struct {
	Avg float64 `json:"avg"`
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// MemoryMetrics holds OS memory usage in bytes
type MemoryMetrics struct {
	Total      uint64  `json:"total"`
	Used       uint64  `json:"used"`
	Percentage float64 `json:"percentage"`
}

// SystemMetrics holds OS-level measurements
type SystemMetrics struct {
	CPU    float64       `json:"cpu"` // 0 ~ 100
	Memory MemoryMetrics `json:"memory"`
	Uptime uint64        `json:"uptime"` // seconds
}

// ApplicationMetrics holds chat traffic counters for one interval
type ApplicationMetrics struct {
	MessageCount int64   `json:"messageCount"`
	ResponseTime Stats   `json:"responseTime"` // ms
	ErrorCount   int64   `json:"errorCount"`
	ErrorRate    float64 `json:"errorRate"` // 0 ~ 100
	QueueSize    int64   `json:"queueSize"`
	ActiveChats  int64   `json:"activeChats"`

	// Whether any response-time sample was recorded this interval.
	ResponseSamples int `json:"-"`
}

// AIMetrics holds LLM backend counters for one interval
type AIMetrics struct {
	RequestCount   int64 `json:"requestCount"`
	TokenCount     int64 `json:"tokenCount"`
	ProcessingTime Stats `json:"processingTime"` // ms
}

// Snapshot is one point-in-time measurement. It is never mutated after
// the collection cycle that produced it returns.
type Snapshot struct {
	Timestamp   int64              `json:"timestamp"` // epoch ms
	System      SystemMetrics      `json:"system"`
	Application ApplicationMetrics `json:"application"`
	AI          AIMetrics          `json:"ai"`
}

// Time returns the snapshot timestamp as a time.Time
func (s *Snapshot) Time() time.Time {
	return time.UnixMilli(s.Timestamp)
}

// HistoryQuery selects persisted snapshots. Zero StartTime/EndTime mean
// unbounded; a non-positive Limit means DefaultHistoryLimit.
type HistoryQuery struct {
	Limit     int
	StartTime time.Time
	EndTime   time.Time
}

// DefaultHistoryLimit is the number of snapshots returned when no limit is given
const DefaultHistoryLimit = 60

// GetLimit returns the limit with default
func (q HistoryQuery) GetLimit() int {
	if q.Limit <= 0 {
		return DefaultHistoryLimit
	}
	return q.Limit
}

// Contains reports whether ts (epoch ms) falls inside the inclusive range
func (q HistoryQuery) Contains(ts int64) bool {
	if !q.StartTime.IsZero() && ts < q.StartTime.UnixMilli() {
		return false
	}
	if !q.EndTime.IsZero() && ts > q.EndTime.UnixMilli() {
		return false
	}
	return true
}

// HistoryResponse represents historical metrics data
type HistoryResponse struct {
	Count     int        `json:"count"`
	Snapshots []Snapshot `json:"snapshots"`
}
