package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jiin/botwatch/internal/logger"
)

const maxBodyBytes = 64 << 10

// Options wires the server to the running components
type Options struct {
	Addr     string
	Monitor  Monitor
	Notifier AlertTester
	// Metrics serves the Prometheus exposition at /metrics when set
	Metrics  http.Handler
	Location *time.Location
}

// Server is the HTTP and websocket front of the monitor
type Server struct {
	engine      *gin.Engine
	hub         *Hub
	testLimiter *RateLimiter
	http        *http.Server
	log         *logger.Logger
}

func NewServer(opts Options) *Server {
	s := &Server{
		hub:         NewHub(NewConnectionLimiter(5, 100)),
		testLimiter: NewRateLimiter(1, 10*time.Second, 3),
		log:         logger.WithComponent("api"),
	}
	s.engine = s.newRouter(NewHandler(opts.Monitor, opts.Notifier, s.hub, opts.Location), opts.Metrics)
	s.http = &http.Server{
		Addr:              opts.Addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) newRouter(handler *Handler, metrics http.Handler) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), RequestLogger(s.log), SecurityHeadersMiddleware())

	r.GET("/health", handler.Health)
	r.GET("/ws", handler.Stream)
	if metrics != nil {
		r.GET("/metrics", gin.WrapH(metrics))
	}

	api := r.Group("/api", MaxBodySizeMiddleware(maxBodyBytes))
	{
		api.GET("/metrics", handler.GetMetrics)
		api.POST("/metrics/collect", handler.CollectMetrics)
		api.GET("/metrics/history", handler.GetHistory)
		api.GET("/metrics/summary", handler.GetSummary)
		api.GET("/metrics/anomalies", handler.GetAnomalies)
		api.GET("/metrics/peak-hours", handler.GetPeakHours)
		api.GET("/report", handler.GetReport)

		api.GET("/alerts", handler.GetAlerts)
		api.GET("/thresholds", handler.GetThresholds)
		api.POST("/alerts/test", RateLimitMiddleware(s.testLimiter, 10*time.Second), handler.TestAlert)

		api.POST("/track/message", handler.TrackMessage)
		api.POST("/track/error", handler.TrackError)
		api.POST("/track/ai", handler.TrackAI)
	}

	r.NoRoute(func(c *gin.Context) {
		RespondNotFound(c, "not found")
	})
	return r
}

// Handler returns the router
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Hub returns the websocket hub, to be fed with monitor events
func (s *Server) Hub() *Hub {
	return s.hub
}

// ListenAndServe blocks until the server stops. It returns nil after a
// graceful Shutdown.
func (s *Server) ListenAndServe() error {
	s.log.Info("HTTP server listening", "addr", s.http.Addr)
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains HTTP requests and disconnects websocket clients
func (s *Server) Shutdown(ctx context.Context) error {
	s.testLimiter.Stop()
	s.hub.Close()
	return s.http.Shutdown(ctx)
}
