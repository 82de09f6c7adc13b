package exporter

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jiin/botwatch/internal/models"
)

const namespace = "botwatch"

// Exporter mirrors monitor events into Prometheus metrics on its own registry
type Exporter struct {
	registry *prometheus.Registry

	cpu          prometheus.Gauge
	memory       *prometheus.GaugeVec
	uptime       prometheus.Gauge
	responseTime *prometheus.GaugeVec
	errorRate    prometheus.Gauge
	queueSize    prometheus.Gauge
	activeChats  prometheus.Gauge
	aiTime       *prometheus.GaugeVec

	messages   prometheus.Counter
	errors     prometheus.Counter
	aiRequests prometheus.Counter
	aiTokens   prometheus.Counter

	alertActive      *prometheus.GaugeVec
	alertTransitions *prometheus.CounterVec
	lastCollection   prometheus.Gauge
}

// New creates an exporter with every metric registered
func New() *Exporter {
	e := &Exporter{
		registry: prometheus.NewRegistry(),

		cpu: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "cpu_usage_percent",
			Help: "Host CPU usage over the sampling window",
		}),
		memory: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "memory_bytes",
			Help: "Host memory by kind (total, used)",
		}, []string{"kind"}),
		uptime: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "host_uptime_seconds",
			Help: "Host uptime",
		}),
		responseTime: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "response_time_ms",
			Help: "Bot response time over the last interval by statistic",
		}, []string{"stat"}),
		errorRate: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "error_rate_percent",
			Help: "Errors per message over the last interval",
		}),
		queueSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "queue_size",
			Help: "Last reported outbound queue length",
		}),
		activeChats: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "active_chats",
			Help: "Last reported number of open conversations",
		}),
		aiTime: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "ai_processing_time_ms",
			Help: "AI processing time over the last interval by statistic",
		}, []string{"stat"}),

		messages: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "messages_total",
			Help: "Messages handled",
		}),
		errors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "errors_total",
			Help: "Errors tracked",
		}),
		aiRequests: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "ai_requests_total",
			Help: "AI requests made",
		}),
		aiTokens: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "ai_tokens_total",
			Help: "AI tokens consumed",
		}),

		alertActive: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "alert_active",
			Help: "1 while a threshold alert is open for the metric",
		}, []string{"metric"}),
		alertTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "alert_transitions_total",
			Help: "Alert open/resolve transitions by metric",
		}, []string{"metric", "state"}),
		lastCollection: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "last_collection_timestamp_seconds",
			Help: "Unix time of the latest snapshot",
		}),
	}

	e.registry.MustRegister(
		e.cpu, e.memory, e.uptime,
		e.responseTime, e.errorRate, e.queueSize, e.activeChats, e.aiTime,
		e.messages, e.errors, e.aiRequests, e.aiTokens,
		e.alertActive, e.alertTransitions, e.lastCollection,
	)

	for _, metric := range models.MetricOrder {
		e.alertActive.WithLabelValues(metric).Set(0)
	}
	return e
}

// Registry exposes the underlying registry
func (e *Exporter) Registry() *prometheus.Registry {
	return e.registry
}

// Handler serves the registry in the Prometheus text format
func (e *Exporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{})
}

// Run consumes monitor events until ctx is done or events is closed
func (e *Exporter) Run(ctx context.Context, events <-chan models.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			e.Handle(ev)
		}
	}
}

// Handle applies one event
func (e *Exporter) Handle(ev models.Event) {
	switch ev.Type {
	case models.EventMetrics:
		if ev.Snapshot != nil {
			e.ObserveSnapshot(ev.Snapshot)
		}
	case models.EventAlert:
		if ev.Alert != nil {
			e.alertActive.WithLabelValues(ev.Alert.Metric).Set(1)
			e.alertTransitions.WithLabelValues(ev.Alert.Metric, "open").Inc()
		}
	case models.EventAlertResolved:
		if ev.Alert != nil {
			e.alertActive.WithLabelValues(ev.Alert.Metric).Set(0)
			e.alertTransitions.WithLabelValues(ev.Alert.Metric, "resolved").Inc()
		}
	}
}

// ObserveSnapshot sets gauges from a snapshot and adds its interval counts
// to the running totals.
func (e *Exporter) ObserveSnapshot(s *models.Snapshot) {
	e.cpu.Set(s.System.CPU)
	e.memory.WithLabelValues("total").Set(float64(s.System.Memory.Total))
	e.memory.WithLabelValues("used").Set(float64(s.System.Memory.Used))
	e.uptime.Set(float64(s.System.Uptime))

	setStats(e.responseTime, s.Application.ResponseTime)
	setStats(e.aiTime, s.AI.ProcessingTime)
	e.errorRate.Set(s.Application.ErrorRate)
	e.queueSize.Set(float64(s.Application.QueueSize))
	e.activeChats.Set(float64(s.Application.ActiveChats))

	e.messages.Add(float64(s.Application.MessageCount))
	e.errors.Add(float64(s.Application.ErrorCount))
	e.aiRequests.Add(float64(s.AI.RequestCount))
	e.aiTokens.Add(float64(s.AI.TokenCount))

	e.lastCollection.Set(float64(s.Timestamp) / 1000)
}

func setStats(g *prometheus.GaugeVec, s models.Stats) {
	g.WithLabelValues("avg").Set(s.Avg)
	g.WithLabelValues("min").Set(s.Min)
	g.WithLabelValues("max").Set(s.Max)
}
