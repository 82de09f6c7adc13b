package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	bwerr "github.com/jiin/botwatch/internal/errors"
	"github.com/jiin/botwatch/internal/models"
)

// Common default durations
const (
	DefaultRangeShort = time.Hour
	DefaultRangeLong  = 24 * time.Hour
	DefaultRangeWeek  = 7 * 24 * time.Hour
)

// maxAnalysisSnapshots caps how many snapshots one analysis request reads
const maxAnalysisSnapshots = 10080

// TimeRange represents a time range with from and to timestamps
type TimeRange struct {
	From time.Time
	To   time.Time
}

// ParseTimeRange parses a duration string ending at now. If parsing fails
// or the duration is not positive, it uses the provided default.
func ParseTimeRange(rangeParam string, defaultDuration time.Duration, now time.Time) TimeRange {
	duration, err := time.ParseDuration(rangeParam)
	if err != nil || duration <= 0 {
		duration = defaultDuration
	}
	return TimeRange{From: now.Add(-duration), To: now}
}

// Query converts the range into a history query
func (r TimeRange) Query(limit int) models.HistoryQuery {
	return models.HistoryQuery{Limit: limit, StartTime: r.From, EndTime: r.To}
}

// ParseTimeParam accepts epoch milliseconds or RFC3339. Empty means zero.
func ParseTimeParam(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	if ms, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return time.UnixMilli(ms), nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, bwerr.New(bwerr.CodeAPIRequestInvalid, "time must be epoch milliseconds or RFC3339",
			bwerr.Field("value", raw))
	}
	return t, nil
}

// parseHistoryQuery reads limit, start and end from the query string
func parseHistoryQuery(c *gin.Context) (models.HistoryQuery, error) {
	var q models.HistoryQuery

	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			return q, bwerr.New(bwerr.CodeAPIRequestInvalid, "limit must be a non-negative integer", bwerr.Field("limit", raw))
		}
		q.Limit = limit
	}

	var err error
	if q.StartTime, err = ParseTimeParam(c.Query("start")); err != nil {
		return q, err
	}
	if q.EndTime, err = ParseTimeParam(c.Query("end")); err != nil {
		return q, err
	}
	if !q.StartTime.IsZero() && !q.EndTime.IsZero() && q.EndTime.Before(q.StartTime) {
		return q, bwerr.New(bwerr.CodeAPIRequestInvalid, "end must not be before start")
	}
	return q, nil
}

// ErrorResponse represents a structured error response
type ErrorResponse struct {
	Error      string `json:"error"`
	Code       string `json:"code,omitempty"`
	StatusCode int    `json:"status_code"`
	Status     string `json:"status"`
}

// RespondError sends a JSON error response with status code
func RespondError(c *gin.Context, statusCode int, message string) {
	c.JSON(statusCode, ErrorResponse{
		Error:      message,
		StatusCode: statusCode,
		Status:     http.StatusText(statusCode),
	})
}

// RespondErr maps a coded error to its status
func RespondErr(c *gin.Context, err error) {
	statusCode := bwerr.HTTPStatus(err)
	c.JSON(statusCode, ErrorResponse{
		Error:      err.Error(),
		Code:       string(bwerr.CodeOf(err)),
		StatusCode: statusCode,
		Status:     http.StatusText(statusCode),
	})
}

// RespondNotFound sends a 404 error response
func RespondNotFound(c *gin.Context, message string) {
	RespondError(c, http.StatusNotFound, message)
}

// RespondBadRequest sends a 400 error response
func RespondBadRequest(c *gin.Context, message string) {
	RespondError(c, http.StatusBadRequest, message)
}

// RespondNoData sends a standard "no data available" response
func RespondNoData(c *gin.Context) {
	RespondNotFound(c, "no data available for analysis")
}

// downsampleSnapshots reduces snapshots to about maxPoints by averaging
// gauges and summing counters over equal-size buckets.
func downsampleSnapshots(data []models.Snapshot, maxPoints int) []models.Snapshot {
	if maxPoints <= 0 || len(data) <= maxPoints {
		return data
	}

	bucketSize := (len(data) + maxPoints - 1) / maxPoints
	result := make([]models.Snapshot, 0, maxPoints)

	for i := 0; i < len(data); i += bucketSize {
		end := min(i+bucketSize, len(data))
		bucket := data[i:end]

		var cpu, mem, errRate, rtAvg, aiAvg float64
		var rtMin, rtMax, aiMin, aiMax float64
		var messages, errs, requests, tokens int64
		var queue, chats int64

		for k, s := range bucket {
			cpu += s.System.CPU
			mem += s.System.Memory.Percentage
			errRate += s.Application.ErrorRate
			rtAvg += s.Application.ResponseTime.Avg
			aiAvg += s.AI.ProcessingTime.Avg
			messages += s.Application.MessageCount
			errs += s.Application.ErrorCount
			requests += s.AI.RequestCount
			tokens += s.AI.TokenCount
			queue = max(queue, s.Application.QueueSize)
			chats = max(chats, s.Application.ActiveChats)

			if k == 0 || s.Application.ResponseTime.Min < rtMin {
				rtMin = s.Application.ResponseTime.Min
			}
			rtMax = max(rtMax, s.Application.ResponseTime.Max)
			if k == 0 || s.AI.ProcessingTime.Min < aiMin {
				aiMin = s.AI.ProcessingTime.Min
			}
			aiMax = max(aiMax, s.AI.ProcessingTime.Max)
		}

		n := float64(len(bucket))
		mid := bucket[len(bucket)/2]
		agg := models.Snapshot{Timestamp: mid.Timestamp}
		agg.System = mid.System
		agg.System.CPU = cpu / n
		agg.System.Memory.Percentage = mem / n
		agg.Application = models.ApplicationMetrics{
			MessageCount: messages,
			ResponseTime: models.Stats{Avg: rtAvg / n, Min: rtMin, Max: rtMax},
			ErrorCount:   errs,
			ErrorRate:    errRate / n,
			QueueSize:    queue,
			ActiveChats:  chats,
		}
		agg.AI = models.AIMetrics{
			RequestCount:   requests,
			TokenCount:     tokens,
			ProcessingTime: models.Stats{Avg: aiAvg / n, Min: aiMin, Max: aiMax},
		}
		result = append(result, agg)
	}

	return result
}
