package alerter

import (
	"net/http"
	"time"

	"github.com/jiin/botwatch/internal/config"
	"github.com/jiin/botwatch/internal/models"
)

// WebhookChannel sends alerts via generic HTTP webhook
type WebhookChannel struct {
	cfg    config.WebhookConfig
	client *http.Client
}

// NewWebhookChannel creates a new webhook channel
func NewWebhookChannel(cfg config.WebhookConfig) *WebhookChannel {
	return &WebhookChannel{
		cfg:    cfg,
		client: NewHTTPClient(),
	}
}

func (w *WebhookChannel) Name() string {
	return "webhook"
}

func (w *WebhookChannel) IsEnabled() bool {
	return w.cfg.Enabled && w.cfg.URL != ""
}

// WebhookPayload is the JSON payload sent to webhooks
type WebhookPayload struct {
	Event     string       `json:"event"` // "alert" or "alertResolved"
	Alert     models.Alert `json:"alert"`
	Timestamp time.Time    `json:"timestamp"`
}

func (w *WebhookChannel) Send(alert *models.Alert) error {
	return w.sendPayload(models.EventAlert, alert)
}

func (w *WebhookChannel) SendResolved(alert *models.Alert) error {
	return w.sendPayload(models.EventAlertResolved, alert)
}

func (w *WebhookChannel) sendPayload(event models.EventType, alert *models.Alert) error {
	if !w.IsEnabled() {
		return nil
	}

	payload := WebhookPayload{
		Event:     string(event),
		Alert:     *alert,
		Timestamp: time.Now(),
	}

	method := w.cfg.Method
	if method == "" {
		method = http.MethodPost
	}

	return SendJSON(w.client, method, w.cfg.URL, w.cfg.Headers, payload)
}
