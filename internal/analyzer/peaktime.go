package analyzer

import (
	"sort"
	"time"

	"github.com/jiin/botwatch/internal/models"
)

// PeakTimeResult contains hourly traffic analysis
type PeakTimeResult struct {
	AnalyzedFrom time.Time       `json:"analyzed_from"`
	AnalyzedTo   time.Time       `json:"analyzed_to"`
	DataPoints   int             `json:"data_points"`
	PeakHours    []HourlyStats   `json:"peak_hours"`
	QuietHours   []HourlyStats   `json:"quiet_hours"`
	DailyPattern []HourlyStats   `json:"daily_pattern"`
	Summary      PeakTimeSummary `json:"summary"`
}

// HourlyStats contains message traffic for one hour of the day
type HourlyStats struct {
	Hour            int     `json:"hour"`
	AvgMessages     float64 `json:"avg_messages"` // per interval
	MaxMessages     int64   `json:"max_messages"`
	AvgResponseTime float64 `json:"avg_response_time"`
	SampleSize      int     `json:"sample_size"`
}

// PeakTimeSummary provides a summary of peak time analysis
type PeakTimeSummary struct {
	BusiestHour     int     `json:"busiest_hour"`
	BusiestMessages float64 `json:"busiest_hour_messages"`
	QuietestHour    int     `json:"quietest_hour"`
	QuietestMessage float64 `json:"quietest_hour_messages"`
	Recommendation  string  `json:"recommendation"`
}

type hourlyBucket struct {
	messages      []int64
	responseTimes []float64
}

// AnalyzePeakTime buckets message traffic by hour of day in loc
func AnalyzePeakTime(snaps []models.Snapshot, loc *time.Location) *PeakTimeResult {
	if loc == nil {
		loc = time.UTC
	}
	if len(snaps) == 0 {
		return &PeakTimeResult{}
	}

	var buckets [24]hourlyBucket
	var minTime, maxTime time.Time
	for i, snap := range snaps {
		ts := snap.Time().In(loc)
		b := &buckets[ts.Hour()]
		b.messages = append(b.messages, snap.Application.MessageCount)
		if snap.Application.ResponseTime.Avg > 0 {
			b.responseTimes = append(b.responseTimes, snap.Application.ResponseTime.Avg)
		}

		if i == 0 || ts.Before(minTime) {
			minTime = ts
		}
		if i == 0 || ts.After(maxTime) {
			maxTime = ts
		}
	}

	dailyPattern := make([]HourlyStats, 24)
	for hour := range buckets {
		b := buckets[hour]
		stats := HourlyStats{Hour: hour, SampleSize: len(b.messages)}
		var sum int64
		for _, m := range b.messages {
			sum += m
			if m > stats.MaxMessages {
				stats.MaxMessages = m
			}
		}
		if len(b.messages) > 0 {
			stats.AvgMessages = float64(sum) / float64(len(b.messages))
		}
		stats.AvgResponseTime = calculateMean(b.responseTimes)
		dailyPattern[hour] = stats
	}

	// only hours with data compete for peak and quiet
	observed := make([]HourlyStats, 0, 24)
	for _, h := range dailyPattern {
		if h.SampleSize > 0 {
			observed = append(observed, h)
		}
	}
	sort.SliceStable(observed, func(i, j int) bool {
		return observed[i].AvgMessages > observed[j].AvgMessages
	})

	n := min(3, len(observed))
	peakHours := append([]HourlyStats{}, observed[:n]...)
	quietHours := make([]HourlyStats, 0, n)
	for i := len(observed) - 1; i >= len(observed)-n; i-- {
		quietHours = append(quietHours, observed[i])
	}

	summary := PeakTimeSummary{
		BusiestHour:     peakHours[0].Hour,
		BusiestMessages: peakHours[0].AvgMessages,
		QuietestHour:    quietHours[0].Hour,
		QuietestMessage: quietHours[0].AvgMessages,
	}
	summary.Recommendation = peakTimeRecommendation(summary, peakHours[0], observed)

	return &PeakTimeResult{
		AnalyzedFrom: minTime,
		AnalyzedTo:   maxTime,
		DataPoints:   len(snaps),
		PeakHours:    peakHours,
		QuietHours:   quietHours,
		DailyPattern: dailyPattern,
		Summary:      summary,
	}
}

func peakTimeRecommendation(summary PeakTimeSummary, busiest HourlyStats, observed []HourlyStats) string {
	if summary.BusiestMessages == 0 {
		return "No message traffic in the analyzed window."
	}

	var rts []float64
	for _, h := range observed {
		if h.AvgResponseTime > 0 {
			rts = append(rts, h.AvgResponseTime)
		}
	}
	if mean := calculateMean(rts); mean > 0 && busiest.AvgResponseTime > mean*1.5 {
		return "Response time degrades at peak. Consider more AI capacity during busy hours."
	}
	if summary.QuietestMessage == 0 || summary.BusiestMessages > summary.QuietestMessage*5 {
		return "Traffic is strongly concentrated. Schedule CRM syncs and maintenance in the quiet hours."
	}
	return "Traffic is evenly spread. No scheduling changes needed."
}
