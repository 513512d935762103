package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/alanyoungcy/candlesync/internal/platform/httpx"
)

// DefaultTelegramAPI is the Bot API base URL.
const DefaultTelegramAPI = "https://api.telegram.org"

// TelegramSender posts to a chat through the Bot API sendMessage method.
type TelegramSender struct {
	apiBase   string
	token     string
	chatID    string
	transport *httpx.Client
}

// NewTelegramSender creates a sender. An empty apiBase uses DefaultTelegramAPI.
func NewTelegramSender(apiBase, token, chatID string, transport *httpx.Client) *TelegramSender {
	if apiBase == "" {
		apiBase = DefaultTelegramAPI
	}
	return &TelegramSender{
		apiBase:   strings.TrimRight(apiBase, "/"),
		token:     token,
		chatID:    chatID,
		transport: transport,
	}
}

// Send renders the title in bold Markdown.
func (t *TelegramSender) Send(ctx context.Context, title, message string) error {
	resp, err := t.transport.PostJSON(ctx, t.apiBase+"/bot"+t.token+"/sendMessage", map[string]string{
		"chat_id":    t.chatID,
		"text":       fmt.Sprintf("*%s*\n%s", title, message),
		"parse_mode": "Markdown",
	})
	if err != nil {
		return fmt.Errorf("telegram: send: %w", err)
	}
	if !resp.OK() {
		return fmt.Errorf("telegram: unexpected status %d: %s", resp.StatusCode, truncate(resp.Body, 1024))
	}
	return nil
}

// Name returns "telegram".
func (t *TelegramSender) Name() string {
	return "telegram"
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		b = b[:n]
	}
	return string(b)
}
