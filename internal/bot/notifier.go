package bot

import (
	"context"
	"fmt"
)

// AdminChat posts operator alerts into the admin's Telegram chat.
type AdminChat struct {
	bot    *Bot
	chatID int64
}

func NewAdminChat(b *Bot, chatID int64) *AdminChat {
	return &AdminChat{bot: b, chatID: chatID}
}

func (a *AdminChat) Notify(ctx context.Context, subject, body string) error {
	a.bot.logger.Infof("NOTIFY: sending %q to admin chat %d", subject, a.chatID)
	return a.bot.sendMessage(ctx, a.chatID, fmt.Sprintf("⚠️ %s\n\n%s", subject, body), nil)
}
