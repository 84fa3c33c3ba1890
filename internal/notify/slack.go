package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/KafClaw/pinguess/internal/bus"
	"github.com/slack-go/slack"
)

// SlackNotifier posts success and external-reset events to an incoming webhook.
type SlackNotifier struct {
	webhookURL string
	channel    string
	timeout    time.Duration
}

// NewSlackNotifier creates a notifier. An empty channel uses the webhook default.
func NewSlackNotifier(webhookURL, channel string) *SlackNotifier {
	return &SlackNotifier{webhookURL: webhookURL, channel: channel, timeout: 10 * time.Second}
}

// Wants reports whether an event type is worth a Slack message.
func (n *SlackNotifier) Wants(eventType string) bool {
	return eventType == bus.EventSuccess || eventType == bus.EventReset
}

// SlackText renders evt as a single line.
func SlackText(evt *bus.Event) string {
	agent := fmt.Sprintf("agent %d/%d", evt.AgentID, evt.AgentCount)
	switch evt.Type {
	case bus.EventSuccess:
		return fmt.Sprintf(":tada: %s guessed the PIN: *%04d*", agent, evt.Candidate)
	case bus.EventReset:
		return fmt.Sprintf(":recycle: %s reset its partition (%s)", agent, evt.Message)
	default:
		return fmt.Sprintf("%s: %s %s", agent, evt.Type, evt.Message)
	}
}

// Handle is a bus subscriber. Failures are logged and dropped.
func (n *SlackNotifier) Handle(evt *bus.Event) {
	if !n.Wants(evt.Type) {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), n.timeout)
	defer cancel()
	msg := &slack.WebhookMessage{
		Channel:  n.channel,
		Username: "pinguess",
		Text:     SlackText(evt),
	}
	if err := slack.PostWebhookContext(ctx, n.webhookURL, msg); err != nil {
		slog.Warn("SlackNotifier: webhook failed", "type", evt.Type, "error", err)
	}
}
