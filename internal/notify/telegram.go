// Package notify carries best-effort out-of-band pings to responders who
// have no live connection when a conversation request arrives. Delivery
// failures degrade silently; the request itself is already durable.
package notify

import (
	"context"
	"fmt"

	"consultgo/backend/internal/models"
	"consultgo/backend/pkg/logger"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// TelegramNotifier pings responders over a Telegram bot.
type TelegramNotifier struct {
	BotAPI *tgbotapi.BotAPI
	Log    *logger.Logger
}

// NewTelegramNotifier authorizes the bot. Returns an error only when the
// token is set but rejected.
func NewTelegramNotifier(token string, log *logger.Logger) (*TelegramNotifier, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram authorization failed: %w", err)
	}
	bot.Debug = false
	log.Info("telegram notifier authorized", zap.String("account", bot.Self.UserName))
	return &TelegramNotifier{BotAPI: bot, Log: log}, nil
}

// NotifyRequest tells an offline responder a new conversation is waiting.
func (n *TelegramNotifier) NotifyRequest(ctx context.Context, responder *models.Responder, conv *models.Conversation) {
	if responder.NotifyChatID == 0 {
		return
	}
	text := fmt.Sprintf("New conversation request is waiting for you (request %s).", conv.ID)
	msg := tgbotapi.NewMessage(responder.NotifyChatID, text)
	if _, err := n.BotAPI.Send(msg); err != nil {
		n.Log.Warn("telegram notification failed",
			zap.String("responder_id", responder.ID),
			zap.String("conversation_id", conv.ID),
			zap.Error(err))
	}
}
