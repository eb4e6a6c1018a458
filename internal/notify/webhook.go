package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

var defaultHTTPClient = &http.Client{Timeout: 10 * time.Second}

// postJSON posts payload to url and treats any non-2xx status as an error.
func postJSON(ctx context.Context, client *http.Client, url string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, respBody)
	}
	return nil
}

// TelegramSender posts alerts through the Telegram Bot API.
type TelegramSender struct {
	apiBase string
	token   string
	chatID  string
	client  *http.Client
}

// NewTelegramSender creates a TelegramSender for the bot token and chat id.
func NewTelegramSender(token, chatID string) *TelegramSender {
	return &TelegramSender{
		apiBase: "https://api.telegram.org",
		token:   token,
		chatID:  chatID,
		client:  defaultHTTPClient,
	}
}

func (t *TelegramSender) Send(ctx context.Context, title, message string) error {
	err := postJSON(ctx, t.client, fmt.Sprintf("%s/bot%s/sendMessage", t.apiBase, t.token), map[string]string{
		"chat_id":    t.chatID,
		"text":       fmt.Sprintf("*%s*\n%s", title, message),
		"parse_mode": "Markdown",
	})
	if err != nil {
		return fmt.Errorf("telegram: %w", err)
	}
	return nil
}

func (t *TelegramSender) Name() string { return "telegram" }

// DiscordSender posts alerts to a Discord webhook.
type DiscordSender struct {
	webhookURL string
	client     *http.Client
}

// NewDiscordSender creates a DiscordSender for the webhook URL.
func NewDiscordSender(webhookURL string) *DiscordSender {
	return &DiscordSender{webhookURL: webhookURL, client: defaultHTTPClient}
}

func (d *DiscordSender) Send(ctx context.Context, title, message string) error {
	err := postJSON(ctx, d.client, d.webhookURL, map[string]string{
		"content": fmt.Sprintf("**%s**\n%s", title, message),
	})
	if err != nil {
		return fmt.Errorf("discord: %w", err)
	}
	return nil
}

func (d *DiscordSender) Name() string { return "discord" }
