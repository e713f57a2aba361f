package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/muratovtemurbek/healthhub-uz/pkg/config"
	"github.com/muratovtemurbek/healthhub-uz/pkg/logger"
)

// BotClient pushes messages through the Telegram Bot API.
type BotClient struct {
	httpClient *http.Client
	token      string
	enabled    bool
}

func NewBotClient(cfg config.TelegramConfig) *BotClient {
	return &BotClient{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		token:      cfg.BotToken,
		enabled:    cfg.BotToken != "",
	}
}

func (c *BotClient) SendMessage(ctx context.Context, chatID int64, text string) error {
	if !c.enabled {
		return fmt.Errorf("telegram bot not configured")
	}

	payload, err := json.Marshal(map[string]any{
		"chat_id":    chatID,
		"text":       text,
		"parse_mode": "Markdown",
	})
	if err != nil {
		return err
	}

	url := fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", c.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send telegram message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram API responded %d", resp.StatusCode)
	}
	return nil
}

// DevTransport prints messages to the log instead of sending them.
type DevTransport struct{}

func (DevTransport) SendMessage(ctx context.Context, chatID int64, text string) error {
	logger.InfoContext(ctx, "dev telegram message", "chat_id", chatID, "text", text)
	return nil
}
