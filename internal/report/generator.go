package report

import (
	"bytes"
	"html/template"
	"time"

	"github.com/jiin/botwatch/internal/analyzer"
	"github.com/jiin/botwatch/internal/models"
)

// AnomalySeries are the series checked for anomalies in a report
var AnomalySeries = []string{models.MetricCPU, models.MetricResponseTime, models.MetricErrorRate, analyzer.SeriesMessages}

// ReportData contains all data for report generation
type ReportData struct {
	GeneratedAt time.Time
	Range       string
	DataPoints  int
	Summary     *analyzer.Summary
	Anomalies   []SeriesAnomalies
	PeakTime    *analyzer.PeakTimeResult
	Alerts      []models.Alert
}

// SeriesAnomalies groups the anomalies found in one series
type SeriesAnomalies struct {
	Series    string
	RiskLevel string
	Anomalies []analyzer.Anomaly
}

// BuildReportData runs every analysis over snaps. alerts are the alerts
// open at generation time.
func BuildReportData(rangeStr string, snaps []models.Snapshot, alerts []models.Alert, now time.Time, loc *time.Location) *ReportData {
	if loc == nil {
		loc = time.Local
	}

	data := &ReportData{
		GeneratedAt: now.In(loc),
		Range:       rangeStr,
		DataPoints:  len(snaps),
		Summary:     analyzer.Summarize(snaps),
		Alerts:      alerts,
	}
	if len(snaps) == 0 {
		return data
	}

	data.PeakTime = analyzer.AnalyzePeakTime(snaps, loc)
	for _, series := range AnomalySeries {
		result, err := analyzer.DetectAnomalies(series, snaps, loc)
		if err != nil || len(result.Anomalies) == 0 {
			continue
		}
		data.Anomalies = append(data.Anomalies, SeriesAnomalies{
			Series:    series,
			RiskLevel: result.RiskLevel,
			Anomalies: result.Anomalies,
		})
	}
	return data
}

var reportTmpl = template.Must(template.New("report").Funcs(template.FuncMap{
	"label": metricLabel,
}).Parse(reportTemplate))

// GenerateHTMLReport renders data as a standalone HTML page
func GenerateHTMLReport(data *ReportData) ([]byte, error) {
	var buf bytes.Buffer
	if err := reportTmpl.Execute(&buf, data); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func metricLabel(series string) string {
	switch series {
	case models.MetricCPU:
		return "CPU"
	case models.MetricMemory:
		return "Memory"
	case models.MetricResponseTime:
		return "Response time"
	case models.MetricErrorRate:
		return "Error rate"
	case models.MetricQueueSize:
		return "Queue size"
	case analyzer.SeriesMessages:
		return "Messages"
	case analyzer.SeriesAIRequests:
		return "AI requests"
	default:
		return series
	}
}

const reportTemplate = `<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>Bot Monitoring Report - {{.GeneratedAt.Format "2006-01-02"}}</title>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; margin: 0; padding: 20px; background: #f3f4f6; color: #111827; }
        .container { max-width: 900px; margin: 0 auto; background: white; border-radius: 12px; padding: 40px; }
        h1 { margin: 0 0 8px 0; font-size: 26px; }
        h2 { color: #374151; border-bottom: 2px solid #e5e7eb; padding-bottom: 8px; margin-top: 32px; font-size: 18px; }
        .subtitle { color: #6b7280; font-size: 14px; }
        .stat-grid { display: grid; grid-template-columns: repeat(4, 1fr); gap: 16px; margin: 20px 0; }
        .stat-card { background: #f9fafb; border-radius: 8px; padding: 16px; text-align: center; }
        .stat-value { font-size: 24px; font-weight: bold; }
        .stat-label { font-size: 12px; color: #6b7280; margin-top: 4px; }
        .item { padding: 10px 14px; margin: 8px 0; border-radius: 6px; font-size: 13px; }
        .critical { background: #fee2e2; }
        .warning { background: #fef3c7; }
        .info { background: #dbeafe; }
        .no-data { padding: 20px; background: #f9fafb; border-radius: 8px; color: #6b7280; text-align: center; }
        @media print { body { background: white; padding: 0; } }
    </style>
</head>
<body>
    <div class="container">
        <h1>Sales Bot Monitoring Report</h1>
        <div class="subtitle">
            <strong>Generated:</strong> {{.GeneratedAt.Format "2006-01-02 15:04:05"}} |
            <strong>Range:</strong> {{.Range}} |
            <strong>Data Points:</strong> {{.DataPoints}}
        </div>

        <h2>Summary</h2>
        {{with .Summary}}
        <div class="stat-grid">
            <div class="stat-card"><div class="stat-value">{{printf "%.1f" .AvgCPU}}%</div><div class="stat-label">Avg CPU (peak {{printf "%.1f" .PeakCPU}}%)</div></div>
            <div class="stat-card"><div class="stat-value">{{printf "%.1f" .AvgMemory}}%</div><div class="stat-label">Avg Memory (peak {{printf "%.1f" .PeakMemory}}%)</div></div>
            <div class="stat-card"><div class="stat-value">{{printf "%.0f" .AvgResponseTime}}ms</div><div class="stat-label">Avg Response (peak {{printf "%.0f" .PeakResponseTime}}ms)</div></div>
            <div class="stat-card"><div class="stat-value">{{printf "%.1f" .OverallErrorRate}}%</div><div class="stat-label">Error Rate</div></div>
        </div>
        <div class="stat-grid">
            <div class="stat-card"><div class="stat-value">{{.TotalMessages}}</div><div class="stat-label">Messages</div></div>
            <div class="stat-card"><div class="stat-value">{{.TotalErrors}}</div><div class="stat-label">Errors</div></div>
            <div class="stat-card"><div class="stat-value">{{.TotalAIRequests}}</div><div class="stat-label">AI Requests</div></div>
            <div class="stat-card"><div class="stat-value">{{.TotalTokens}}</div><div class="stat-label">Tokens</div></div>
        </div>
        {{else}}
        <div class="no-data">No snapshots in this range</div>
        {{end}}

        <h2>Open Alerts</h2>
        {{if .Alerts}}
        {{range .Alerts}}
        <div class="item critical"><strong>{{label .Metric}}</strong>: {{.Message}} <span style="color: #6b7280;">(since {{.Timestamp.Format "15:04"}})</span></div>
        {{end}}
        {{else}}
        <div class="no-data">No open alerts</div>
        {{end}}

        {{with .PeakTime}}
        <h2>Traffic by Hour</h2>
        <div class="stat-grid">
            <div class="stat-card"><div class="stat-value">{{.Summary.BusiestHour}}:00</div><div class="stat-label">Busiest Hour</div></div>
            <div class="stat-card"><div class="stat-value">{{printf "%.1f" .Summary.BusiestMessages}}</div><div class="stat-label">Messages / Interval</div></div>
            <div class="stat-card"><div class="stat-value">{{.Summary.QuietestHour}}:00</div><div class="stat-label">Quietest Hour</div></div>
            <div class="stat-card"><div class="stat-value">{{printf "%.1f" .Summary.QuietestMessage}}</div><div class="stat-label">Messages / Interval</div></div>
        </div>
        <div class="item info">{{.Summary.Recommendation}}</div>
        {{end}}

        {{range .Anomalies}}
        <h2>{{label .Series}} Anomalies ({{len .Anomalies}}, risk {{.RiskLevel}})</h2>
        {{range .Anomalies}}
        <div class="item {{.Severity}}"><strong>{{.Type}}</strong>: {{.Message}} <span style="color: #6b7280;">({{.Timestamp.Format "01-02 15:04"}}, {{printf "%.1f" .Value}})</span></div>
        {{end}}
        {{end}}
    </div>
</body>
</html>`
