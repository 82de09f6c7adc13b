package analyzer

import (
	"math"

	"github.com/jiin/botwatch/internal/models"
)

// Series names accepted by DetectAnomalies
const (
	SeriesMessages   = "messages"
	SeriesAIRequests = "aiRequests"
)

// SeriesValue extracts one numeric series from a snapshot. ok is false for
// an unknown series name.
func SeriesValue(snap *models.Snapshot, series string) (float64, bool) {
	switch series {
	case models.MetricCPU:
		return snap.System.CPU, true
	case models.MetricMemory:
		return snap.System.Memory.Percentage, true
	case models.MetricResponseTime:
		return snap.Application.ResponseTime.Avg, true
	case models.MetricErrorRate:
		return snap.Application.ErrorRate, true
	case models.MetricQueueSize:
		return float64(snap.Application.QueueSize), true
	case SeriesMessages:
		return float64(snap.Application.MessageCount), true
	case SeriesAIRequests:
		return float64(snap.AI.RequestCount), true
	default:
		return 0, false
	}
}

func calculateMean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func calculateStdDev(values []float64, mean float64) float64 {
	if len(values) < 2 {
		return 0
	}
	var sumSquares float64
	for _, v := range values {
		diff := v - mean
		sumSquares += diff * diff
	}
	return math.Sqrt(sumSquares / float64(len(values)-1))
}
