package notification

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	tgbot "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"signal-engine/internal/logger"
)

// TelegramConfig configures a TelegramNotifier.
type TelegramConfig struct {
	Token string
	// DefaultChats receive alerts without a Recipient.
	DefaultChats []int64
	// Endpoint overrides the Bot API URL pattern (tgbot.APIEndpoint).
	Endpoint   string
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// TelegramNotifier sends alerts via the Telegram Bot API. A Recipient is a
// numeric chat ID.
type TelegramNotifier struct {
	bot   *tgbot.BotAPI
	chats []int64
	log   *slog.Logger
}

// NewTelegramNotifier connects to the Bot API (one getMe call) and returns
// a notifier.
func NewTelegramNotifier(cfg TelegramConfig) (*TelegramNotifier, error) {
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = tgbot.APIEndpoint
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 10 * time.Second}
	}
	bot, err := tgbot.NewBotAPIWithClient(cfg.Token, endpoint, hc)
	if err != nil {
		return nil, fmt.Errorf("telegram: connect: %w", err)
	}
	return &TelegramNotifier{
		bot:   bot,
		chats: cfg.DefaultChats,
		log:   logger.Component(cfg.Logger, "telegram"),
	}, nil
}

func (t *TelegramNotifier) Name() string { return "telegram" }

func (t *TelegramNotifier) Send(ctx context.Context, alert Alert) error {
	chats := t.chats
	if alert.Recipient != "" {
		id, err := strconv.ParseInt(alert.Recipient, 10, 64)
		if err != nil {
			return fmt.Errorf("telegram: recipient %q is not a chat id", alert.Recipient)
		}
		chats = []int64{id}
	}
	if len(chats) == 0 {
		return fmt.Errorf("telegram: no chat for alert %q", alert.Title)
	}

	emoji := "ℹ️"
	switch alert.Level {
	case AlertWarning:
		emoji = "⚠️"
	case AlertCritical:
		emoji = "🚨"
	}
	text := fmt.Sprintf("%s *%s*\n\n%s", emoji, escapeMarkdown(alert.Title), escapeMarkdown(alert.Message))

	for _, chat := range chats {
		if err := ctx.Err(); err != nil {
			return err
		}
		msg := tgbot.NewMessage(chat, text)
		msg.ParseMode = tgbot.ModeMarkdownV2
		if _, err := t.bot.Send(msg); err != nil {
			return fmt.Errorf("telegram: send to %d: %w", chat, err)
		}
	}

	t.log.Debug("sent alert", slog.String("title", alert.Title), slog.Int("chats", len(chats)))
	return nil
}

// escapeMarkdown escapes special characters for Telegram MarkdownV2.
func escapeMarkdown(s string) string {
	specials := []byte{'_', '*', '[', ']', '(', ')', '~', '`', '>', '#', '+', '-', '=', '|', '{', '}', '.', '!'}
	var buf bytes.Buffer
	for i := 0; i < len(s); i++ {
		for _, sp := range specials {
			if s[i] == sp {
				buf.WriteByte('\\')
				break
			}
		}
		buf.WriteByte(s[i])
	}
	return buf.String()
}
