package report

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jiin/botwatch/internal/models"
)

var t0 = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func TestBuildReportData_Empty(t *testing.T) {
	data := BuildReportData("24h", nil, nil, t0, time.UTC)

	assert.Nil(t, data.Summary)
	assert.Nil(t, data.PeakTime)
	assert.Empty(t, data.Anomalies)

	html, err := GenerateHTMLReport(data)
	require.NoError(t, err)
	assert.Contains(t, string(html), "No snapshots in this range")
	assert.Contains(t, string(html), "No open alerts")
}

func TestBuildReportData(t *testing.T) {
	var snaps []models.Snapshot
	for i := 0; i < 20; i++ {
		s := models.Snapshot{Timestamp: t0.Add(time.Duration(i) * time.Minute).UnixMilli()}
		s.System.CPU = 20
		if i == 12 {
			s.System.CPU = 97
		}
		s.Application.MessageCount = 5
		snaps = append(snaps, s)
	}
	alerts := []models.Alert{{ID: "threshold_cpu", Metric: models.MetricCPU, Message: "CPU usage is 97.0% (threshold: 80%)", Timestamp: t0}}

	data := BuildReportData("1h", snaps, alerts, t0.Add(time.Hour), time.UTC)

	require.NotNil(t, data.Summary)
	assert.Equal(t, int64(100), data.Summary.TotalMessages)
	require.NotNil(t, data.PeakTime)
	require.Len(t, data.Anomalies, 1)
	assert.Equal(t, models.MetricCPU, data.Anomalies[0].Series)

	html, err := GenerateHTMLReport(data)
	require.NoError(t, err)
	body := string(html)
	assert.Contains(t, body, "CPU Anomalies")
	assert.Contains(t, body, "CPU usage is 97.0%")
	assert.Contains(t, body, "9:00")
}
