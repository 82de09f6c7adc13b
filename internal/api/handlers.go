package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jiin/botwatch/internal/alerter"
	"github.com/jiin/botwatch/internal/analyzer"
	"github.com/jiin/botwatch/internal/config"
	bwerr "github.com/jiin/botwatch/internal/errors"
	"github.com/jiin/botwatch/internal/models"
	"github.com/jiin/botwatch/internal/monitor"
	"github.com/jiin/botwatch/internal/report"
)

// Monitor is the part of *monitor.Monitor the API serves
type Monitor interface {
	Running() bool
	GetMetrics() *models.Snapshot
	CollectMetrics(ctx context.Context) (*models.Snapshot, error)
	GetActiveAlerts() []models.Alert
	GetMetricsHistory(query models.HistoryQuery) ([]models.Snapshot, error)
	Thresholds() config.Thresholds
	AlertsEnabled() bool
	TrackMessage(opts ...monitor.MessageOption)
	TrackError(report models.ErrorReport)
	TrackAIRequest(opts ...monitor.AIOption)
}

// AlertTester sends synthetic alerts through the configured channels
type AlertTester interface {
	TestAlert(opts alerter.TestAlertOptions) []string
	GetEnabledChannels() []string
}

type Handler struct {
	monitor  Monitor
	notifier AlertTester
	hub      *Hub
	loc      *time.Location
	now      func() time.Time
}

func NewHandler(m Monitor, notifier AlertTester, hub *Hub, loc *time.Location) *Handler {
	if loc == nil {
		loc = time.Local
	}
	return &Handler{
		monitor:  m,
		notifier: notifier,
		hub:      hub,
		loc:      loc,
		now:      time.Now,
	}
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "monitoring": h.monitor.Running()})
}

// GetMetrics returns the latest snapshot
func (h *Handler) GetMetrics(c *gin.Context) {
	snap := h.monitor.GetMetrics()
	if snap == nil {
		RespondErr(c, bwerr.New(bwerr.CodeAPINotFound, "no metrics collected yet"))
		return
	}
	c.JSON(http.StatusOK, snap)
}

// CollectMetrics runs a collection cycle now
func (h *Handler) CollectMetrics(c *gin.Context) {
	snap, err := h.monitor.CollectMetrics(c.Request.Context())
	if err != nil {
		RespondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

// GetHistory returns persisted snapshots, newest first. points > 0
// downsamples the result.
func (h *Handler) GetHistory(c *gin.Context) {
	query, err := parseHistoryQuery(c)
	if err != nil {
		RespondErr(c, err)
		return
	}

	snaps, err := h.monitor.GetMetricsHistory(query)
	if err != nil {
		RespondErr(c, err)
		return
	}

	var points int
	if raw := c.Query("points"); raw != "" {
		if points, err = strconv.Atoi(raw); err != nil || points < 0 {
			RespondErr(c, bwerr.New(bwerr.CodeAPIRequestInvalid, "points must be a non-negative integer", bwerr.Field("points", raw)))
			return
		}
	}
	snaps = downsampleSnapshots(snaps, points)

	if snaps == nil {
		snaps = []models.Snapshot{}
	}
	c.JSON(http.StatusOK, models.HistoryResponse{Count: len(snaps), Snapshots: snaps})
}

func (h *Handler) GetSummary(c *gin.Context) {
	snaps, ok := h.window(c, DefaultRangeLong)
	if !ok {
		return
	}
	summary := analyzer.Summarize(snaps)
	if summary == nil {
		RespondNoData(c)
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (h *Handler) GetAnomalies(c *gin.Context) {
	snaps, ok := h.window(c, DefaultRangeLong)
	if !ok {
		return
	}
	if len(snaps) == 0 {
		RespondNoData(c)
		return
	}

	result, err := analyzer.DetectAnomalies(c.DefaultQuery("series", models.MetricCPU), snaps, h.loc)
	if err != nil {
		RespondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *Handler) GetPeakHours(c *gin.Context) {
	snaps, ok := h.window(c, DefaultRangeWeek)
	if !ok {
		return
	}
	if len(snaps) == 0 {
		RespondNoData(c)
		return
	}
	c.JSON(http.StatusOK, analyzer.AnalyzePeakTime(snaps, h.loc))
}

// window loads the snapshots inside ?range= ending now
func (h *Handler) window(c *gin.Context, defaultRange time.Duration) ([]models.Snapshot, bool) {
	tr := ParseTimeRange(c.Query("range"), defaultRange, h.now())
	snaps, err := h.monitor.GetMetricsHistory(tr.Query(maxAnalysisSnapshots))
	if err != nil {
		RespondErr(c, err)
		return nil, false
	}
	return snaps, true
}

// GetReport renders the HTML report for ?range=
func (h *Handler) GetReport(c *gin.Context) {
	rangeParam := c.DefaultQuery("range", "24h")
	snaps, ok := h.window(c, DefaultRangeLong)
	if !ok {
		return
	}

	data := report.BuildReportData(rangeParam, snaps, h.monitor.GetActiveAlerts(), h.now(), h.loc)
	html, err := report.GenerateHTMLReport(data)
	if err != nil {
		RespondErr(c, err)
		return
	}
	c.Header("Content-Security-Policy", "default-src 'none'; style-src 'unsafe-inline'")
	c.Data(http.StatusOK, "text/html; charset=utf-8", html)
}

type AlertsResponse struct {
	Count  int            `json:"count"`
	Alerts []models.Alert `json:"alerts"`
}

func (h *Handler) GetAlerts(c *gin.Context) {
	alerts := h.monitor.GetActiveAlerts()
	c.JSON(http.StatusOK, AlertsResponse{Count: len(alerts), Alerts: alerts})
}

func (h *Handler) GetThresholds(c *gin.Context) {
	th := h.monitor.Thresholds()
	c.JSON(http.StatusOK, gin.H{
		"alerts_enabled": h.monitor.AlertsEnabled(),
		"thresholds": gin.H{
			models.MetricCPU:          th.GetCPU(),
			models.MetricMemory:       th.GetMemory(),
			models.MetricResponseTime: th.GetResponseTime(),
			models.MetricErrorRate:    th.GetErrorRate(),
			models.MetricQueueSize:    th.GetQueueSize(),
		},
	})
}

// TestAlert sends a synthetic alert. Cooldown does not apply.
func (h *Handler) TestAlert(c *gin.Context) {
	if h.notifier == nil {
		RespondError(c, http.StatusServiceUnavailable, "alerting is not configured")
		return
	}

	var opts alerter.TestAlertOptions
	if !bindBody(c, &opts) {
		return
	}

	enabled := h.notifier.GetEnabledChannels()
	if len(enabled) == 0 {
		RespondBadRequest(c, "no alert channels enabled")
		return
	}

	sent := h.notifier.TestAlert(opts)
	status := http.StatusOK
	if len(sent) == 0 {
		status = http.StatusBadGateway
	}
	c.JSON(status, gin.H{"enabled": enabled, "sent": sent})
}

// TrackMessageRequest is the body of POST /api/track/message
type TrackMessageRequest struct {
	ResponseTimeMs *float64 `json:"responseTimeMs"`
	QueueSize      *int     `json:"queueSize"`
	ActiveChats    *int     `json:"activeChats"`
}

// maxTrackedDuration bounds reported response and processing times
const maxTrackedDuration = 24 * time.Hour

func validDuration(field string, ms *float64) error {
	if ms == nil {
		return nil
	}
	if *ms < 0 || *ms > float64(maxTrackedDuration/time.Millisecond) {
		return bwerr.New(bwerr.CodeAPIRequestInvalid, field+" must be between 0 and "+maxTrackedDuration.String(),
			bwerr.Field(field, *ms))
	}
	return nil
}

func (r TrackMessageRequest) validate() error {
	if err := validDuration("responseTimeMs", r.ResponseTimeMs); err != nil {
		return err
	}
	switch {
	case r.QueueSize != nil && *r.QueueSize < 0:
		return bwerr.New(bwerr.CodeAPIRequestInvalid, "queueSize must not be negative")
	case r.ActiveChats != nil && *r.ActiveChats < 0:
		return bwerr.New(bwerr.CodeAPIRequestInvalid, "activeChats must not be negative")
	}
	return nil
}

func (h *Handler) TrackMessage(c *gin.Context) {
	var req TrackMessageRequest
	if !bindBody(c, &req) {
		return
	}
	if err := req.validate(); err != nil {
		RespondErr(c, err)
		return
	}

	var opts []monitor.MessageOption
	if req.ResponseTimeMs != nil {
		opts = append(opts, monitor.WithResponseTime(millis(*req.ResponseTimeMs)))
	}
	if req.QueueSize != nil {
		opts = append(opts, monitor.WithQueueSize(*req.QueueSize))
	}
	if req.ActiveChats != nil {
		opts = append(opts, monitor.WithActiveChats(*req.ActiveChats))
	}
	h.monitor.TrackMessage(opts...)
	c.Status(http.StatusAccepted)
}

// TrackErrorRequest is the body of POST /api/track/error
type TrackErrorRequest struct {
	Source  string         `json:"source"`
	Message string         `json:"message"`
	Context map[string]any `json:"context"`
}

func (h *Handler) TrackError(c *gin.Context) {
	var req TrackErrorRequest
	if !bindBody(c, &req) {
		return
	}
	if req.Message == "" {
		RespondErr(c, bwerr.New(bwerr.CodeAPIRequestInvalid, "message is required"))
		return
	}

	h.monitor.TrackError(models.ErrorReport{
		Source:    req.Source,
		Message:   req.Message,
		Context:   req.Context,
		Timestamp: h.now(),
	})
	c.Status(http.StatusAccepted)
}

// TrackAIRequest is the body of POST /api/track/ai
type TrackAIRequest struct {
	Tokens           int      `json:"tokens"`
	ProcessingTimeMs *float64 `json:"processingTimeMs"`
}

func (h *Handler) TrackAI(c *gin.Context) {
	var req TrackAIRequest
	if !bindBody(c, &req) {
		return
	}
	if req.Tokens < 0 {
		RespondErr(c, bwerr.New(bwerr.CodeAPIRequestInvalid, "tokens must not be negative"))
		return
	}
	if err := validDuration("processingTimeMs", req.ProcessingTimeMs); err != nil {
		RespondErr(c, err)
		return
	}

	opts := []monitor.AIOption{monitor.WithTokens(req.Tokens)}
	if req.ProcessingTimeMs != nil {
		opts = append(opts, monitor.WithProcessingTime(millis(*req.ProcessingTimeMs)))
	}
	h.monitor.TrackAIRequest(opts...)
	c.Status(http.StatusAccepted)
}

// Stream upgrades to a websocket that receives every monitor event
func (h *Handler) Stream(c *gin.Context) {
	var initial *WSMessage
	if snap := h.monitor.GetMetrics(); snap != nil {
		initial = &WSMessage{Type: string(models.EventMetrics), Timestamp: snap.Time(), Data: snap}
	}
	h.hub.Serve(c, initial)
}

// bindBody decodes a JSON body. An empty body leaves v zero.
func bindBody(c *gin.Context, v any) bool {
	if c.Request.ContentLength == 0 {
		return true
	}
	if err := c.ShouldBindJSON(v); err != nil {
		RespondErr(c, bwerr.Wrap(err, bwerr.CodeAPIRequestInvalid, "invalid request body"))
		return false
	}
	return true
}

func millis(ms float64) time.Duration {
	return time.Duration(ms * float64(time.Millisecond))
}
