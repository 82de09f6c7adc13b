package alerter

import (
	"net/http"

	"github.com/jiin/botwatch/internal/config"
	"github.com/jiin/botwatch/internal/models"
)

// SlackChannel posts alerts to a Slack incoming webhook
type SlackChannel struct {
	cfg    config.SlackConfig
	client *http.Client
}

func NewSlackChannel(cfg config.SlackConfig) *SlackChannel {
	return &SlackChannel{cfg: cfg, client: NewHTTPClient()}
}

func (s *SlackChannel) Name() string { return "slack" }

func (s *SlackChannel) IsEnabled() bool {
	return s.cfg.Enabled && s.cfg.WebhookURL != ""
}

// SlackMessage is the incoming webhook payload
type SlackMessage struct {
	Channel     string            `json:"channel,omitempty"`
	Username    string            `json:"username,omitempty"`
	IconEmoji   string            `json:"icon_emoji,omitempty"`
	Attachments []SlackAttachment `json:"attachments"`
}

type SlackAttachment struct {
	Color     string       `json:"color"`
	Title     string       `json:"title"`
	Text      string       `json:"text"`
	Fields    []SlackField `json:"fields,omitempty"`
	Footer    string       `json:"footer,omitempty"`
	Timestamp int64        `json:"ts,omitempty"`
}

type SlackField struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Short bool   `json:"short"`
}

func (s *SlackChannel) Send(alert *models.Alert) error {
	return s.post(NewCard(alert, false))
}

func (s *SlackChannel) SendResolved(alert *models.Alert) error {
	return s.post(NewCard(alert, true))
}

func (s *SlackChannel) post(card Card) error {
	if !s.IsEnabled() {
		return nil
	}
	return PostJSON(s.client, s.cfg.WebhookURL, s.message(card))
}

func (s *SlackChannel) message(card Card) SlackMessage {
	color, icon := ColorFired, ":warning:"
	if card.Resolved {
		color, icon = ColorResolved, ":white_check_mark:"
	}

	fields := make([]SlackField, len(card.Fields))
	for k, f := range card.Fields {
		fields[k] = SlackField{Title: f.Name, Value: f.Value, Short: true}
	}

	return SlackMessage{
		Channel:   s.cfg.Channel,
		Username:  GetUsername(s.cfg.Username),
		IconEmoji: icon,
		Attachments: []SlackAttachment{{
			Color:     color,
			Title:     card.Title,
			Text:      card.Text,
			Fields:    fields,
			Footer:    FooterText,
			Timestamp: card.At.Unix(),
		}},
	}
}
