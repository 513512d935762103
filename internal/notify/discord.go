package notify

import (
	"context"
	"fmt"

	"github.com/alanyoungcy/candlesync/internal/platform/httpx"
)

// DiscordSender posts to a Discord webhook.
type DiscordSender struct {
	webhookURL string
	transport  *httpx.Client
}

// NewDiscordSender creates a sender for webhookURL.
func NewDiscordSender(webhookURL string, transport *httpx.Client) *DiscordSender {
	return &DiscordSender{webhookURL: webhookURL, transport: transport}
}

// Send renders the title in bold. Discord answers 204 on success.
func (d *DiscordSender) Send(ctx context.Context, title, message string) error {
	resp, err := d.transport.PostJSON(ctx, d.webhookURL, map[string]string{
		"content": fmt.Sprintf("**%s**\n%s", title, message),
	})
	if err != nil {
		return fmt.Errorf("discord: send: %w", err)
	}
	if !resp.OK() {
		return fmt.Errorf("discord: unexpected status %d: %s", resp.StatusCode, truncate(resp.Body, 1024))
	}
	return nil
}

// Name returns "discord".
func (d *DiscordSender) Name() string {
	return "discord"
}
