package collector

import (
	"context"
	"math"
	"time"

	"github.com/jiin/botwatch/internal/models"
)

// SampleCPU measures CPU usage over window by diffing two counter reads.
// The wait honours ctx. The result is always within [0, 100].
func SampleCPU(ctx context.Context, s SystemSampler, window time.Duration) (float64, error) {
	start, err := s.CPUTimes(ctx)
	if err != nil {
		return 0, err
	}

	timer := time.NewTimer(window)
	select {
	case <-ctx.Done():
		timer.Stop()
		return 0, ctx.Err()
	case <-timer.C:
	}

	end, err := s.CPUTimes(ctx)
	if err != nil {
		return 0, err
	}

	return CPUPercent(start, end), nil
}

// CPUPercent computes 100 - 100*idleDelta/totalDelta, clamped. Counter
// wraparound or a non-advancing total yields 0 rather than a bogus value.
func CPUPercent(start, end CPUTimes) float64 {
	total := end.Total() - start.Total()
	if total <= 0 || math.IsNaN(total) {
		return 0
	}
	idle := end.Idle - start.Idle
	return clampPercent(100 - 100*idle/total)
}

// MemoryUsage converts OS totals into the snapshot representation
func MemoryUsage(info MemoryInfo) models.MemoryMetrics {
	used := uint64(0)
	if info.Total > info.Available {
		used = info.Total - info.Available
	}
	out := models.MemoryMetrics{Total: info.Total, Used: used}
	if info.Total > 0 {
		out.Percentage = clampPercent(float64(used) / float64(info.Total) * 100)
	}
	return out
}

func clampPercent(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 100:
		return 100
	default:
		return v
	}
}
