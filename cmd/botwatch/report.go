package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/jiin/botwatch/internal/api"
	"github.com/jiin/botwatch/internal/report"
)

func newReportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Render an HTML report from saved snapshots",
		RunE:  runReport,
	}
	cmd.Flags().String("dir", "", "snapshot directory (default: monitoring.metrics_dir)")
	cmd.Flags().String("range", "24h", "how far back to look")
	cmd.Flags().StringP("out", "o", "", "output file (default: stdout)")
	return cmd
}

func runReport(cmd *cobra.Command, _ []string) error {
	store, err := openStore(cmd)
	if err != nil {
		return err
	}

	rangeParam, _ := cmd.Flags().GetString("range")
	now := time.Now()
	tr := api.ParseTimeRange(rangeParam, api.DefaultRangeLong, now)

	// every file on disk may fall inside the window
	count, err := store.Count()
	if err != nil {
		return err
	}
	snaps, err := store.GetHistory(tr.Query(count))
	if err != nil {
		return err
	}

	html, err := report.GenerateHTMLReport(report.BuildReportData(rangeParam, snaps, nil, now, time.Local))
	if err != nil {
		return err
	}

	out, _ := cmd.Flags().GetString("out")
	if out == "" {
		_, err = cmd.OutOrStdout().Write(html)
		return err
	}
	return os.WriteFile(out, html, 0644)
}
