package notify

import (
	"context"
	"net/http"
)

// discordMaxContent is the webhook message length limit.
const discordMaxContent = 2000

// DiscordSender posts ledger alerts to a Discord channel webhook.
type DiscordSender struct {
	webhookURL string
	client     *http.Client
}

// NewDiscordSender creates a DiscordSender for the given webhook URL.
func NewDiscordSender(webhookURL string) *DiscordSender {
	return &DiscordSender{webhookURL: webhookURL, client: newWebhookClient()}
}

// Send posts the title in bold followed by message, truncated to the
// webhook limit. Mentions are disabled since messages quote user text.
func (d *DiscordSender) Send(ctx context.Context, title, message string) error {
	content := "**" + title + "**\n" + message
	if len(content) > discordMaxContent {
		content = content[:discordMaxContent-3] + "..."
	}
	return postJSON(ctx, d.client, d.Name(), d.webhookURL, map[string]any{
		"content":          content,
		"allowed_mentions": map[string][]string{"parse": {}},
	})
}

// Name returns the sender identifier.
func (d *DiscordSender) Name() string { return "discord" }
