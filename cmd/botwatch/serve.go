package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jiin/botwatch/internal/alerter"
	"github.com/jiin/botwatch/internal/api"
	"github.com/jiin/botwatch/internal/config"
	"github.com/jiin/botwatch/internal/exporter"
	"github.com/jiin/botwatch/internal/logger"
	"github.com/jiin/botwatch/internal/monitor"
	"github.com/jiin/botwatch/internal/retention"
	"github.com/jiin/botwatch/internal/storage"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the monitor and its HTTP API",
		Long:  "Start metric collection, alert notification, retention cleanup and the HTTP/websocket API. A config file given with --config is watched and reloaded.",
		RunE:  runServe,
	}
	cmd.Flags().Int("port", 0, "override server.port")
	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	var (
		cfg *config.Config
		mgr *config.Manager
		err error
	)
	if path := configPath(cmd); path != "" {
		if mgr, err = config.NewManager(path); err != nil {
			return err
		}
		defer mgr.Stop()
		cfg = mgr.Get()
	} else if cfg, err = config.Load(""); err != nil {
		return err
	}

	if port, _ := cmd.Flags().GetInt("port"); port > 0 {
		cfg.Server.Port = port
	}
	if err := logger.Init(cfg.Logging.LoggerConfig()); err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	log := logger.WithComponent("main")

	store := storage.NewFileStore(cfg.Monitoring.GetMetricsDir(), cfg.Monitoring.GetMaxMetricsFiles())
	mon := monitor.New(cfg.Monitoring, monitor.WithStore(store))
	notifier := alerter.NewNotifier(cfg.Alerting)
	exp := exporter.New()
	cleaner := retention.NewManager(store, cfg.Retention)
	srv := api.NewServer(api.Options{
		Addr:     fmt.Sprintf(":%d", cfg.Server.Port),
		Monitor:  mon,
		Notifier: notifier,
		Metrics:  exp.Handler(),
	})

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// subscribe before Start so the first cycle reaches every consumer
	notifierEvents, cancelNotifier := mon.Subscribe(64)
	defer cancelNotifier()
	exporterEvents, cancelExporter := mon.Subscribe(64)
	defer cancelExporter()
	hubEvents, cancelHub := mon.Subscribe(256)
	defer cancelHub()

	go notifier.Run(ctx, notifierEvents)
	go exp.Run(ctx, exporterEvents)
	go srv.Hub().Run(ctx, hubEvents)

	if mgr != nil {
		mgr.OnReload(func(c *config.Config) {
			mon.ApplyConfig(c.Monitoring)
			notifier.UpdateConfig(c.Alerting)
		})
	}

	mon.Start()
	cleaner.Start()

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	log.Info("botwatch started",
		"port", cfg.Server.Port,
		"interval", cfg.Monitoring.GetMetricsInterval().String(),
		"metrics_dir", store.Dir(),
		"channels", len(notifier.GetEnabledChannels()),
	)

	var serveErr error
	select {
	case <-ctx.Done():
		log.Info("Shutting down")
	case serveErr = <-errCh:
	}

	mon.Stop()
	cleaner.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP shutdown failed", "error", err)
	}
	return serveErr
}
