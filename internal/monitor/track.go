package monitor

import (
	"time"

	"github.com/jiin/botwatch/internal/collector"
	"github.com/jiin/botwatch/internal/models"
)

// MessageOption annotates a tracked message
type MessageOption func(*collector.Message)

// WithResponseTime records how long the bot took to answer
func WithResponseTime(d time.Duration) MessageOption {
	ms := durationMillis(d)
	return func(m *collector.Message) { m.ResponseTime = &ms }
}

// WithQueueSize reports the current outbound queue length
func WithQueueSize(n int) MessageOption {
	v := int64(n)
	return func(m *collector.Message) { m.QueueSize = &v }
}

// WithActiveChats reports the number of open conversations
func WithActiveChats(n int) MessageOption {
	v := int64(n)
	return func(m *collector.Message) { m.ActiveChats = &v }
}

// AIOption annotates a tracked AI request
type AIOption func(*collector.AIRequest)

func WithTokens(n int) AIOption {
	return func(r *collector.AIRequest) { r.TokenCount = int64(n) }
}

func WithProcessingTime(d time.Duration) AIOption {
	ms := durationMillis(d)
	return func(r *collector.AIRequest) { r.ProcessingTime = &ms }
}

func durationMillis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

// TrackMessage counts one handled message. Queue size and active chats
// overwrite the previous report; response time is added to the interval's
// samples.
func (m *Monitor) TrackMessage(opts ...MessageOption) {
	var msg collector.Message
	for _, opt := range opts {
		opt(&msg)
	}
	m.counters.RecordMessage(msg)
}

// TrackError counts one error and publishes an error event right away
func (m *Monitor) TrackError(report models.ErrorReport) {
	m.counters.RecordError()

	if report.Timestamp.IsZero() {
		report.Timestamp = m.now()
	}
	m.log.Warn("Application error tracked", "source", report.Source, "message", report.Message)
	m.bus.Publish(models.Event{Type: models.EventError, Timestamp: report.Timestamp, Error: &report})
}

// TrackAIRequest counts one LLM call
func (m *Monitor) TrackAIRequest(opts ...AIOption) {
	var req collector.AIRequest
	for _, opt := range opts {
		opt(&req)
	}
	m.counters.RecordAIRequest(req)
}
