package analyzer

import (
	"math"
	"sort"
	"time"

	bwerr "github.com/jiin/botwatch/internal/errors"
	"github.com/jiin/botwatch/internal/models"
)

// MinAnomalySamples is the smallest window DetectAnomalies will judge
const MinAnomalySamples = 10

// AnomalyResult contains anomaly detection results
type AnomalyResult struct {
	Series       string       `json:"series"`
	AnalyzedFrom time.Time    `json:"analyzed_from"`
	AnalyzedTo   time.Time    `json:"analyzed_to"`
	DataPoints   int          `json:"data_points"`
	Anomalies    []Anomaly    `json:"anomalies"`
	Statistics   AnomalyStats `json:"statistics"`
	RiskLevel    string       `json:"risk_level"` // unknown, normal, elevated, high
}

// Anomaly represents a detected anomaly
type Anomaly struct {
	Timestamp time.Time `json:"timestamp"`
	Type      string    `json:"type"`
	Severity  string    `json:"severity"` // warning, critical
	Message   string    `json:"message"`
	Value     float64   `json:"value"`
	Expected  float64   `json:"expected"`
	Deviation float64   `json:"deviation"`
}

// AnomalyStats contains statistical information
type AnomalyStats struct {
	Mean           float64 `json:"mean"`
	StdDeviation   float64 `json:"std_deviation"`
	Threshold      float64 `json:"threshold"`
	AnomalyCount   int     `json:"anomaly_count"`
	AnomalyPercent float64 `json:"anomaly_percent"`
}

// DetectAnomalies flags points more than two standard deviations from the
// window mean, and jumps of more than 50% between consecutive points.
func DetectAnomalies(series string, snaps []models.Snapshot, loc *time.Location) (*AnomalyResult, error) {
	if loc == nil {
		loc = time.UTC
	}
	if _, ok := SeriesValue(&models.Snapshot{}, series); !ok {
		return nil, bwerr.New(bwerr.CodeAnalyzerSeriesInvalid, "unknown series", bwerr.Field("series", series))
	}

	result := &AnomalyResult{
		Series:     series,
		DataPoints: len(snaps),
		RiskLevel:  "unknown",
		Anomalies:  []Anomaly{},
	}
	if len(snaps) < MinAnomalySamples {
		return result, nil
	}

	// oldest first, whatever order history came back in
	ordered := make([]models.Snapshot, len(snaps))
	copy(ordered, snaps)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Timestamp < ordered[j].Timestamp })

	values := make([]float64, len(ordered))
	for i := range ordered {
		values[i], _ = SeriesValue(&ordered[i], series)
	}
	result.AnalyzedFrom = ordered[0].Time().In(loc)
	result.AnalyzedTo = ordered[len(ordered)-1].Time().In(loc)

	mean := calculateMean(values)
	stdDev := calculateStdDev(values, mean)
	const threshold = 2.0

	for i, v := range values {
		ts := ordered[i].Time().In(loc)

		if stdDev > 0 {
			deviation := (v - mean) / stdDev
			if math.Abs(deviation) > threshold {
				severity := "warning"
				if math.Abs(deviation) > 3 {
					severity = "critical"
				}
				kind, message := "high_value", "Value significantly higher than normal"
				if deviation < 0 {
					kind, message = "low_value", "Value significantly lower than normal"
				}
				result.Anomalies = append(result.Anomalies, Anomaly{
					Timestamp: ts, Type: kind, Severity: severity, Message: message,
					Value: v, Expected: mean, Deviation: deviation,
				})
			}
		}

		if i > 0 && values[i-1] > 0 {
			change := (v - values[i-1]) / values[i-1] * 100
			switch {
			case change > 50:
				result.Anomalies = append(result.Anomalies, Anomaly{
					Timestamp: ts, Type: "sudden_spike", Severity: "warning",
					Message: "Sudden increase detected", Value: v, Expected: values[i-1], Deviation: change,
				})
			case change < -50:
				result.Anomalies = append(result.Anomalies, Anomaly{
					Timestamp: ts, Type: "sudden_drop", Severity: "warning",
					Message: "Sudden decrease detected", Value: v, Expected: values[i-1], Deviation: change,
				})
			}
		}
	}

	anomalyPercent := float64(len(result.Anomalies)) / float64(len(values)) * 100
	switch {
	case anomalyPercent > 10:
		result.RiskLevel = "high"
	case anomalyPercent > 5:
		result.RiskLevel = "elevated"
	default:
		result.RiskLevel = "normal"
	}

	result.Statistics = AnomalyStats{
		Mean:           mean,
		StdDeviation:   stdDev,
		Threshold:      threshold,
		AnomalyCount:   len(result.Anomalies),
		AnomalyPercent: anomalyPercent,
	}
	return result, nil
}
