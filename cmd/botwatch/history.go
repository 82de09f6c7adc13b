package main

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/jiin/botwatch/internal/api"
	"github.com/jiin/botwatch/internal/logger"
	"github.com/jiin/botwatch/internal/models"
	"github.com/jiin/botwatch/internal/storage"
)

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Print saved snapshots as JSON, newest first",
		Long:  "Read the snapshot directory directly. Works whether or not the server is running.",
		RunE:  runHistory,
	}
	cmd.Flags().String("dir", "", "snapshot directory (default: monitoring.metrics_dir)")
	cmd.Flags().Int("limit", models.DefaultHistoryLimit, "maximum number of snapshots")
	cmd.Flags().String("start", "", "earliest snapshot time, epoch ms or RFC3339")
	cmd.Flags().String("end", "", "latest snapshot time, epoch ms or RFC3339")
	return cmd
}

// openStore opens the store named by --dir, falling back to config
func openStore(cmd *cobra.Command) (*storage.FileStore, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	// stdout carries the command output
	logCfg := cfg.Logging.LoggerConfig()
	logCfg.Output = "stderr"
	if err := logger.Init(logCfg); err != nil {
		return nil, err
	}

	dir, _ := cmd.Flags().GetString("dir")
	if dir == "" {
		dir = cfg.Monitoring.GetMetricsDir()
	}
	return storage.NewFileStore(dir, cfg.Monitoring.GetMaxMetricsFiles()), nil
}

func runHistory(cmd *cobra.Command, _ []string) error {
	store, err := openStore(cmd)
	if err != nil {
		return err
	}

	var query models.HistoryQuery
	query.Limit, _ = cmd.Flags().GetInt("limit")
	start, _ := cmd.Flags().GetString("start")
	if query.StartTime, err = api.ParseTimeParam(start); err != nil {
		return err
	}
	end, _ := cmd.Flags().GetString("end")
	if query.EndTime, err = api.ParseTimeParam(end); err != nil {
		return err
	}

	snaps, err := store.GetHistory(query)
	if err != nil {
		return err
	}
	if snaps == nil {
		snaps = []models.Snapshot{}
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(models.HistoryResponse{Count: len(snaps), Snapshots: snaps})
}
