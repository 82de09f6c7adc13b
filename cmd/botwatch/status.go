package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jiin/botwatch/internal/api"
	"github.com/jiin/botwatch/internal/models"
)

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the latest metrics and open alerts of a running server",
		RunE:  runStatus,
	}
	cmd.Flags().String("addr", "http://localhost:8080", "server base URL")
	return cmd
}

func runStatus(cmd *cobra.Command, _ []string) error {
	addr, _ := cmd.Flags().GetString("addr")
	addr = strings.TrimRight(addr, "/")
	client := &http.Client{Timeout: 5 * time.Second}
	out := cmd.OutOrStdout()

	var snap models.Snapshot
	found, err := getJSON(client, addr+"/api/metrics", &snap)
	if err != nil {
		return err
	}
	if !found {
		fmt.Fprintln(out, "No metrics collected yet")
	} else {
		fmt.Fprintf(out, "Collected:   %s\n", snap.Time().Format(time.RFC3339))
		fmt.Fprintf(out, "CPU:         %.1f%%\n", snap.System.CPU)
		fmt.Fprintf(out, "Memory:      %.1f%%\n", snap.System.Memory.Percentage)
		fmt.Fprintf(out, "Messages:    %d (errors %d, %.1f%%)\n",
			snap.Application.MessageCount, snap.Application.ErrorCount, snap.Application.ErrorRate)
		fmt.Fprintf(out, "Response:    avg %.0fms, max %.0fms\n", snap.Application.ResponseTime.Avg, snap.Application.ResponseTime.Max)
		fmt.Fprintf(out, "Queue/chats: %d / %d\n", snap.Application.QueueSize, snap.Application.ActiveChats)
		fmt.Fprintf(out, "AI:          %d requests, %d tokens\n", snap.AI.RequestCount, snap.AI.TokenCount)
	}

	var alerts api.AlertsResponse
	if _, err := getJSON(client, addr+"/api/alerts", &alerts); err != nil {
		return err
	}
	if alerts.Count == 0 {
		fmt.Fprintln(out, "No open alerts")
		return nil
	}
	fmt.Fprintf(out, "Open alerts (%d):\n", alerts.Count)
	for _, a := range alerts.Alerts {
		fmt.Fprintf(out, "  - %s (since %s)\n", a.Message, a.Timestamp.Format(time.RFC3339))
	}
	return nil
}

// getJSON decodes a 200 response into v. found is false on 404.
func getJSON(client *http.Client, url string, v any) (found bool, err error) {
	resp, err := client.Get(url)
	if err != nil {
		return false, fmt.Errorf("requesting %s: %w", url, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return false, nil
	default:
		return false, fmt.Errorf("%s returned %s", url, resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return false, fmt.Errorf("decoding %s: %w", url, err)
	}
	return true, nil
}
