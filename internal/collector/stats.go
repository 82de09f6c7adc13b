package collector

import "github.com/jiin/botwatch/internal/models"

// Aggregate returns avg/min/max over samples, or zero Stats when empty
func Aggregate(samples []float64) models.Stats {
	if len(samples) == 0 {
		return models.Stats{}
	}

	out := models.Stats{Min: samples[0], Max: samples[0]}
	var sum float64
	for _, v := range samples {
		sum += v
		if v < out.Min {
			out.Min = v
		}
		if v > out.Max {
			out.Max = v
		}
	}
	out.Avg = sum / float64(len(samples))
	return out
}

// ErrorRate returns errors/messages*100, or 0 when there were no messages
func ErrorRate(errors, messages int64) float64 {
	if messages <= 0 {
		return 0
	}
	return float64(errors) / float64(messages) * 100
}
