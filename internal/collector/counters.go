package collector

import (
	"sync"

	"github.com/jiin/botwatch/internal/models"
)

// Message is one tracked chat message. Nil fields were not reported.
type Message struct {
	ResponseTime *float64 // ms
	QueueSize    *int64
	ActiveChats  *int64
}

// AIRequest is one tracked LLM call
type AIRequest struct {
	TokenCount     int64
	ProcessingTime *float64 // ms
}

// Counters accumulates tracking calls for the current interval. It is safe
// for concurrent use.
type Counters struct {
	mu sync.Mutex

	messages        int64
	errors          int64
	responseTimes   []float64
	aiRequests      int64
	tokens          int64
	processingTimes []float64

	// gauges; last writer wins and they survive a drain
	queueSize   int64
	activeChats int64
}

func NewCounters() *Counters {
	return &Counters{}
}

func (c *Counters) RecordMessage(m Message) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.messages++
	if m.ResponseTime != nil {
		c.responseTimes = append(c.responseTimes, *m.ResponseTime)
	}
	if m.QueueSize != nil {
		c.queueSize = *m.QueueSize
	}
	if m.ActiveChats != nil {
		c.activeChats = *m.ActiveChats
	}
}

func (c *Counters) RecordError() {
	c.mu.Lock()
	c.errors++
	c.mu.Unlock()
}

func (c *Counters) RecordAIRequest(r AIRequest) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.aiRequests++
	if r.TokenCount > 0 {
		c.tokens += r.TokenCount
	}
	if r.ProcessingTime != nil {
		c.processingTimes = append(c.processingTimes, *r.ProcessingTime)
	}
}

// Drain returns the interval's aggregates and resets the per-interval
// counters in the same critical section, so no tracking call is lost or
// counted twice.
func (c *Counters) Drain() (models.ApplicationMetrics, models.AIMetrics) {
	c.mu.Lock()
	messages, errors := c.messages, c.errors
	responseTimes := c.responseTimes
	aiRequests, tokens := c.aiRequests, c.tokens
	processingTimes := c.processingTimes
	queueSize, activeChats := c.queueSize, c.activeChats

	c.messages, c.errors = 0, 0
	c.responseTimes = nil
	c.aiRequests, c.tokens = 0, 0
	c.processingTimes = nil
	c.mu.Unlock()

	app := models.ApplicationMetrics{
		MessageCount:    messages,
		ResponseTime:    Aggregate(responseTimes),
		ErrorCount:      errors,
		ErrorRate:       ErrorRate(errors, messages),
		QueueSize:       queueSize,
		ActiveChats:     activeChats,
		ResponseSamples: len(responseTimes),
	}
	ai := models.AIMetrics{
		RequestCount:   aiRequests,
		TokenCount:     tokens,
		ProcessingTime: Aggregate(processingTimes),
	}
	return app, ai
}
