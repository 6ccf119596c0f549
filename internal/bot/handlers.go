package bot

import (
	"context"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// HandleUpdate passes a chat message to r. /start is the pairing of a new
// chat and reaches r as an empty text. r answers the chat itself, failures
// included, so an error is only logged here.
func (b *Bot) HandleUpdate(ctx context.Context, r Responder, update tgbotapi.Update) {
	message := update.Message
	chatID := message.Chat.ID

	text := message.Text
	switch {
	case message.IsCommand() && message.Command() == "start":
		text = ""
	case text == "":
		b.logger.Debugf("Ignoring non-text message in chat %d", chatID)
		return
	}

	if err := r.Respond(ctx, strconv.FormatInt(chatID, 10), text); err != nil {
		b.logger.Errorf("Failed to respond in chat %d: %v", chatID, err)
	}
}
