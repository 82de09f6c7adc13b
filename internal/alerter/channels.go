package alerter

import (
	"github.com/jiin/botwatch/internal/config"
	"github.com/jiin/botwatch/internal/logger"
	"github.com/jiin/botwatch/internal/models"
)

// Channel defines the interface for notification channels
type Channel interface {
	// Name returns the channel name
	Name() string

	// Send sends an alert notification
	Send(alert *models.Alert) error

	// SendResolved sends a resolution notification
	SendResolved(alert *models.Alert) error

	// IsEnabled returns whether the channel is enabled
	IsEnabled() bool
}

// BuildChannels creates every enabled channel from config
func BuildChannels(cfg config.ChannelsConfig) []Channel {
	channels := make([]Channel, 0, 3)

	if cfg.Webhook.Enabled {
		channels = append(channels, NewWebhookChannel(cfg.Webhook))
		logger.Info("Alerter: webhook channel enabled")
	}
	if cfg.Slack.Enabled {
		channels = append(channels, NewSlackChannel(cfg.Slack))
		logger.Info("Alerter: Slack channel enabled")
	}
	if cfg.Discord.Enabled {
		channels = append(channels, NewDiscordChannel(cfg.Discord))
		logger.Info("Alerter: Discord channel enabled")
	}
	return channels
}
