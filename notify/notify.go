package notify

import (
	"github.com/dualtier/dtman/config"
	"github.com/dualtier/dtman/log"
)

// Channel delivers an operational alert to one destination. Every
// implementation gets the same (message, context) contract.
type Channel interface {
	Name() string
	Send(message string, context map[string]interface{}) error
}

// Notifier fans a message out to all configured channels. Delivery is
// best-effort; a failing channel never blocks the others.
type Notifier struct {
	channels []Channel
	enabled  bool
}

func NewNotifier(cfg *config.NotifyConfig) *Notifier {
	n := &Notifier{enabled: cfg.Enabled}
	for _, name := range cfg.Channels {
		switch name {
		case "console":
			n.channels = append(n.channels, &ConsoleChannel{})
		case "webhook":
			if cfg.WebhookUrl != "" {
				n.channels = append(n.channels, NewWebhookChannel(cfg.WebhookUrl))
			}
		case "chat":
			if cfg.ChatWebhookUrl != "" {
				n.channels = append(n.channels, NewChatChannel(cfg.ChatWebhookUrl))
			}
		default:
			log.Logger.Warnf("unknown notify channel %s, skipped", name)
		}
	}
	return n
}

func (n *Notifier) Notify(message string, context map[string]interface{}) {
	if n == nil || !n.enabled {
		return
	}
	for _, ch := range n.channels {
		if err := ch.Send(message, context); err != nil {
			log.Logger.Errorf("notify channel %s failed: %v", ch.Name(), err)
		}
	}
}
