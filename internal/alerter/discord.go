package alerter

import (
	"net/http"
	"time"

	"github.com/jiin/botwatch/internal/config"
	"github.com/jiin/botwatch/internal/models"
)

// DiscordChannel posts alerts as embeds to a Discord webhook
type DiscordChannel struct {
	cfg    config.DiscordConfig
	client *http.Client
}

func NewDiscordChannel(cfg config.DiscordConfig) *DiscordChannel {
	return &DiscordChannel{cfg: cfg, client: NewHTTPClient()}
}

func (d *DiscordChannel) Name() string { return "discord" }

func (d *DiscordChannel) IsEnabled() bool {
	return d.cfg.Enabled && d.cfg.WebhookURL != ""
}

// DiscordMessage is the webhook execute payload
type DiscordMessage struct {
	Username string         `json:"username,omitempty"`
	Content  string         `json:"content,omitempty"`
	Embeds   []DiscordEmbed `json:"embeds,omitempty"`
}

type DiscordEmbed struct {
	Title       string              `json:"title,omitempty"`
	Description string              `json:"description,omitempty"`
	Color       int                 `json:"color,omitempty"`
	Fields      []DiscordEmbedField `json:"fields,omitempty"`
	Footer      *DiscordEmbedFooter `json:"footer,omitempty"`
	Timestamp   string              `json:"timestamp,omitempty"`
}

type DiscordEmbedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

type DiscordEmbedFooter struct {
	Text string `json:"text"`
}

func (d *DiscordChannel) Send(alert *models.Alert) error {
	return d.post(NewCard(alert, false))
}

func (d *DiscordChannel) SendResolved(alert *models.Alert) error {
	return d.post(NewCard(alert, true))
}

func (d *DiscordChannel) post(card Card) error {
	if !d.IsEnabled() {
		return nil
	}
	return PostJSON(d.client, d.cfg.WebhookURL, embedMessage(card))
}

func embedMessage(card Card) DiscordMessage {
	color := ColorFiredInt
	if card.Resolved {
		color = ColorResolvedInt
	}

	fields := make([]DiscordEmbedField, len(card.Fields))
	for k, f := range card.Fields {
		fields[k] = DiscordEmbedField{Name: f.Name, Value: f.Value, Inline: true}
	}

	return DiscordMessage{
		Username: DefaultUsername,
		Embeds: []DiscordEmbed{{
			Title:       card.Title,
			Description: card.Text,
			Color:       color,
			Fields:      fields,
			Footer:      &DiscordEmbedFooter{Text: FooterText},
			Timestamp:   card.At.UTC().Format(time.RFC3339),
		}},
	}
}
