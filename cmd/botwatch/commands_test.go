package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jiin/botwatch/internal/models"
	"github.com/jiin/botwatch/internal/storage"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(args)
	err := root.Execute()
	return buf.String(), err
}

// seedStore saves n snapshots one minute apart, ending now
func seedStore(t *testing.T, n int) string {
	t.Helper()
	dir := t.TempDir()
	start := time.Now().Add(-time.Duration(n) * time.Minute)

	var i int
	store := storage.NewFileStore(dir, 100, storage.WithClock(func() time.Time {
		return start.Add(time.Duration(i) * time.Minute)
	}))
	for i = 0; i < n; i++ {
		snap := &models.Snapshot{Timestamp: start.Add(time.Duration(i) * time.Minute).UnixMilli()}
		snap.Application.MessageCount = int64(i + 1)
		require.NoError(t, store.Save(snap))
	}
	return dir
}

func TestRootCommand_Help(t *testing.T) {
	out, err := execute(t, "--help")
	require.NoError(t, err)
	for _, sub := range []string{"serve", "history", "report", "status", "config", "version"} {
		assert.Contains(t, out, sub)
	}
	assert.Contains(t, out, "--config")
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "botwatch dev")
}

func TestConfigShow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "botwatch.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 9191\n"), 0644))

	out, err := execute(t, "config", "show", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "port: 9191")
	assert.Contains(t, out, "metrics_dir:")
}

func TestConfigShow_MissingFile(t *testing.T) {
	_, err := execute(t, "config", "show", "--config", "/nonexistent/botwatch.yaml")
	assert.Error(t, err)
}

func TestServe_InvalidConfig(t *testing.T) {
	_, err := execute(t, "serve", "--config", "/nonexistent/botwatch.yaml")
	assert.Error(t, err)
}

func TestHistoryCommand(t *testing.T) {
	dir := seedStore(t, 5)

	out, err := execute(t, "history", "--dir", dir, "--limit", "2")
	require.NoError(t, err)

	var resp models.HistoryResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Equal(t, 2, resp.Count)
	assert.Equal(t, int64(5), resp.Snapshots[0].Application.MessageCount, "newest first")
	assert.Equal(t, int64(4), resp.Snapshots[1].Application.MessageCount)
}

func TestHistoryCommand_EmptyDir(t *testing.T) {
	out, err := execute(t, "history", "--dir", filepath.Join(t.TempDir(), "missing"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"count":0,"snapshots":[]}`, out)
}

func TestHistoryCommand_InvalidTime(t *testing.T) {
	_, err := execute(t, "history", "--dir", t.TempDir(), "--start", "soon")
	assert.Error(t, err)
}

func TestReportCommand(t *testing.T) {
	dir := seedStore(t, 3)
	out := filepath.Join(t.TempDir(), "report.html")

	_, err := execute(t, "report", "--dir", dir, "--range", "1h", "--out", out)
	require.NoError(t, err)

	html, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(html), "Sales Bot Monitoring Report")
	assert.Contains(t, string(html), "<strong>Data Points:</strong> 3")
}

func TestStatusCommand(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/metrics":
			snap := models.Snapshot{Timestamp: time.Now().UnixMilli()}
			snap.System.CPU = 42.5
			snap.Application.MessageCount = 7
			_ = json.NewEncoder(w).Encode(snap)
		case "/api/alerts":
			_, _ = w.Write([]byte(`{"count":1,"alerts":[{"id":"threshold_cpu","metric":"cpu","message":"CPU usage is 91.0% (threshold: 80%)","timestamp":"2026-03-02T09:00:00Z"}]}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	out, err := execute(t, "status", "--addr", srv.URL+"/")
	require.NoError(t, err)
	assert.Contains(t, out, "CPU:         42.5%")
	assert.Contains(t, out, "Messages:    7")
	assert.Contains(t, out, "CPU usage is 91.0%")
}

func TestStatusCommand_NoMetricsYet(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/alerts" {
			_, _ = w.Write([]byte(`{"count":0,"alerts":[]}`))
			return
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()

	out, err := execute(t, "status", "--addr", srv.URL)
	require.NoError(t, err)
	assert.Contains(t, out, "No metrics collected yet")
	assert.Contains(t, out, "No open alerts")
}

func TestStatusCommand_Unreachable(t *testing.T) {
	_, err := execute(t, "status", "--addr", "http://127.0.0.1:1")
	assert.Error(t, err)
}
