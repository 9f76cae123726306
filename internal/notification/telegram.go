package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"stockswap-backend/internal/model"
)

// TelegramNotifier sends order alerts via the Telegram Bot API.
type TelegramNotifier struct {
	botToken string
	chatID   string
	client   *http.Client
}

// NewTelegramNotifier creates a Telegram notifier.
// botToken: Bot API token from @BotFather
// chatID: Target chat/group/channel ID
func NewTelegramNotifier(botToken, chatID string) *TelegramNotifier {
	return &TelegramNotifier{
		botToken: botToken,
		chatID:   chatID,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

func (t *TelegramNotifier) Send(ctx context.Context, alert Alert) error {
	emoji := "ℹ️"
	switch alert.Level {
	case AlertWarning:
		emoji = "⚠️"
	case AlertCritical:
		emoji = "🚨"
	}

	// Order ID and maker address go in code spans; base58 text needs no
	// MarkdownV2 escaping there.
	var b strings.Builder
	fmt.Fprintf(&b, "%s *%s*\n", emoji, escapeMarkdownV2(statusHeadline(alert.Status)))
	fmt.Fprintf(&b, "Order: `%s`\n", alert.OrderID)
	fmt.Fprintf(&b, "Maker: `%s`\n", alert.Maker)
	if alert.Summary != "" {
		b.WriteString(escapeMarkdownV2(alert.Summary))
	}

	body, _ := json.Marshal(map[string]interface{}{
		"chat_id":    t.chatID,
		"text":       b.String(),
		"parse_mode": "MarkdownV2",
	})

	url := fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", t.botToken)
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("telegram: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("telegram: send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram: unexpected status %d", resp.StatusCode)
	}

	log.Printf("[telegram] sent alert: order=%s status=%s", alert.OrderID, alert.Status)
	return nil
}

func statusHeadline(status model.OrderStatus) string {
	switch status {
	case model.StatusExecuted:
		return "Order executed"
	case model.StatusCancelled:
		return "Order cancelled"
	case model.StatusExpired:
		return "Order monitoring expired"
	case model.StatusStopped:
		return "Order monitoring stopped"
	default:
		return "Order update"
	}
}

// escapeMarkdownV2 escapes the characters Telegram reserves in MarkdownV2
// outside code spans.
func escapeMarkdownV2(s string) string {
	const reserved = "_*[]()~`>#+-=|{}.!"
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if strings.IndexByte(reserved, s[i]) >= 0 {
			b.WriteByte('\\')
		}
		b.WriteByte(s[i])
	}
	return b.String()
}
