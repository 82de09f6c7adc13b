package analyzer

import (
	"math"
	"time"

	"github.com/jiin/botwatch/internal/models"
)

// Summary aggregates a window of snapshots
type Summary struct {
	DataPoints int       `json:"data_points"`
	From       time.Time `json:"from"`
	To         time.Time `json:"to"`

	AvgCPU        float64 `json:"avg_cpu"`
	PeakCPU       float64 `json:"peak_cpu"`
	AvgMemory     float64 `json:"avg_memory"`
	PeakMemory    float64 `json:"peak_memory"`
	AvgErrorRate  float64 `json:"avg_error_rate"`
	PeakErrorRate float64 `json:"peak_error_rate"`

	// OverallErrorRate is total errors over total messages, not an
	// average of per-interval rates.
	OverallErrorRate float64 `json:"overall_error_rate"`

	TotalMessages   int64 `json:"total_messages"`
	TotalErrors     int64 `json:"total_errors"`
	TotalAIRequests int64 `json:"total_ai_requests"`
	TotalTokens     int64 `json:"total_tokens"`

	// AvgResponseTime weights each interval's average by its message count
	AvgResponseTime  float64 `json:"avg_response_time"`
	PeakResponseTime float64 `json:"peak_response_time"`
	PeakQueueSize    int64   `json:"peak_queue_size"`
}

// Summarize returns nil for an empty window
func Summarize(snaps []models.Snapshot) *Summary {
	if len(snaps) == 0 {
		return nil
	}

	s := &Summary{DataPoints: len(snaps)}
	var cpuSum, memSum, errRateSum float64
	var weightedRT, rtWeight float64

	for i, snap := range snaps {
		ts := snap.Time()
		if i == 0 || ts.Before(s.From) {
			s.From = ts
		}
		if i == 0 || ts.After(s.To) {
			s.To = ts
		}

		cpuSum += snap.System.CPU
		s.PeakCPU = math.Max(s.PeakCPU, snap.System.CPU)
		memSum += snap.System.Memory.Percentage
		s.PeakMemory = math.Max(s.PeakMemory, snap.System.Memory.Percentage)
		errRateSum += snap.Application.ErrorRate
		s.PeakErrorRate = math.Max(s.PeakErrorRate, snap.Application.ErrorRate)

		s.TotalMessages += snap.Application.MessageCount
		s.TotalErrors += snap.Application.ErrorCount
		s.TotalAIRequests += snap.AI.RequestCount
		s.TotalTokens += snap.AI.TokenCount

		if rt := snap.Application.ResponseTime; rt.Avg > 0 && snap.Application.MessageCount > 0 {
			w := float64(snap.Application.MessageCount)
			weightedRT += rt.Avg * w
			rtWeight += w
		}
		s.PeakResponseTime = math.Max(s.PeakResponseTime, snap.Application.ResponseTime.Max)
		if snap.Application.QueueSize > s.PeakQueueSize {
			s.PeakQueueSize = snap.Application.QueueSize
		}
	}

	n := float64(len(snaps))
	s.AvgCPU = round1(cpuSum / n)
	s.AvgMemory = round1(memSum / n)
	s.AvgErrorRate = round1(errRateSum / n)
	if rtWeight > 0 {
		s.AvgResponseTime = round1(weightedRT / rtWeight)
	}
	if s.TotalMessages > 0 {
		s.OverallErrorRate = round1(float64(s.TotalErrors) / float64(s.TotalMessages) * 100)
	}
	return s
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
