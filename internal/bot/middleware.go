package bot

import (
	"context"
	"runtime/debug"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

type updateHandler func(context.Context, tgbotapi.Update)

// withRecovery keeps a panicking handler from taking the update loop down.
func (b *Bot) withRecovery(handler updateHandler) updateHandler {
	return func(ctx context.Context, update tgbotapi.Update) {
		defer func() {
			if rec := recover(); rec != nil {
				b.logger.Errorf("Panic while handling update %d: %v\n%s", update.UpdateID, rec, debug.Stack())
			}
		}()
		handler(ctx, update)
	}
}

func (b *Bot) withMessageLog(handler updateHandler) updateHandler {
	return func(ctx context.Context, update tgbotapi.Update) {
		started := time.Now()
		var userID int64
		if update.Message.From != nil {
			userID = update.Message.From.ID
		}
		b.logger.Infof("Processing message from user %d in chat %d", userID, update.Message.Chat.ID)

		handler(ctx, update)

		b.logger.Debugf("Handled update %d in %s", update.UpdateID, time.Since(started))
	}
}
