package alerter

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	bwerr "github.com/jiin/botwatch/internal/errors"
	"github.com/jiin/botwatch/internal/models"
)

// Common constants for alert channels
const (
	DefaultHTTPTimeout = 10 * time.Second
	DefaultUsername    = "botwatch"
	FooterText         = "botwatch alert"
)

const (
	EmojiFired    = "🚨"
	EmojiResolved = "✅"
)

// Colors (hex strings for Slack, int for Discord)
const (
	ColorFired       = "#E74C3C"
	ColorResolved    = "#2ECC71"
	ColorFiredInt    = 0xE74C3C
	ColorResolvedInt = 0x2ECC71
)

// MetricLabel returns a display name for a metric
func MetricLabel(metric string) string {
	switch metric {
	case models.MetricCPU:
		return "CPU"
	case models.MetricMemory:
		return "Memory"
	case models.MetricResponseTime:
		return "Response time"
	case models.MetricErrorRate:
		return "Error rate"
	case models.MetricQueueSize:
		return "Queue size"
	default:
		return metric
	}
}

// NewHTTPClient creates a standard HTTP client for alert channels
func NewHTTPClient() *http.Client {
	return &http.Client{
		Timeout: DefaultHTTPTimeout,
	}
}

// PostJSON sends a JSON payload to a URL
func PostJSON(client *http.Client, url string, payload any) error {
	return SendJSON(client, http.MethodPost, url, nil, payload)
}

// SendJSON sends a JSON payload with the given method and extra headers
func SendJSON(client *http.Client, method, url string, headers map[string]string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequest(method, url, bytes.NewReader(body))
	if err != nil {
		return bwerr.Wrap(err, bwerr.CodeAlerterChannelSendFailure, "building request")
	}
	req.Header.Set("Content-Type", "application/json")
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := client.Do(req)
	if err != nil {
		return bwerr.Wrap(err, bwerr.CodeAlerterChannelSendFailure, "request failed")
	}
	defer resp.Body.Close()

	// Drain body for connection reuse
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 400 {
		return bwerr.New(bwerr.CodeAlerterChannelSendFailure, fmt.Sprintf("server returned status %d", resp.StatusCode),
			bwerr.Field("status", resp.StatusCode))
	}

	return nil
}

// GetUsername returns the provided username or the default
func GetUsername(username string) string {
	if username != "" {
		return username
	}
	return DefaultUsername
}

// FormatAlertTitle formats an alert title with emoji
func FormatAlertTitle(alert *models.Alert) string {
	return fmt.Sprintf("%s Alert: %s", EmojiFired, MetricLabel(alert.Metric))
}

// FormatResolvedTitle formats a resolved alert title
func FormatResolvedTitle(alert *models.Alert) string {
	return fmt.Sprintf("%s Resolved: %s", EmojiResolved, MetricLabel(alert.Metric))
}

func formatValue(v float64) string {
	return fmt.Sprintf("%.2f", v)
}

func resolvedTime(alert *models.Alert) time.Time {
	if alert.ResolvedAt != nil {
		return *alert.ResolvedAt
	}
	return time.Now()
}

// CardField is one labelled value shown beside the alert text
type CardField struct {
	Name  string
	Value string
}

// Card is the chat-agnostic content of a notification. Chat channels map
// it onto their own attachment or embed shape.
type Card struct {
	Title    string
	Text     string
	Fields   []CardField
	Resolved bool
	At       time.Time
}

// NewCard builds the notification content for an opened or resolved alert
func NewCard(alert *models.Alert, resolved bool) Card {
	if !resolved {
		return Card{
			Title: FormatAlertTitle(alert),
			Text:  alert.Message,
			Fields: []CardField{
				{Name: "Value", Value: formatValue(alert.Value)},
				{Name: "Threshold", Value: formatValue(alert.Threshold)},
				{Name: "Status", Value: "Open"},
			},
			At: alert.Timestamp,
		}
	}

	at := resolvedTime(alert)
	return Card{
		Title: FormatResolvedTitle(alert),
		Text:  alert.Message,
		Fields: []CardField{
			{Name: "Open for", Value: alert.Duration(at).Round(time.Second).String()},
			{Name: "Status", Value: "Resolved"},
		},
		Resolved: true,
		At:       at,
	}
}
