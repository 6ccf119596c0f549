package bot

import (
	"context"
	"fmt"
	"strconv"

	"github.com/Fi44er/email_attestation_bot/internal/service"
	"github.com/Fi44er/email_attestation_bot/utils"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/time/rate"
)

// telegramAPI is the part of *tgbotapi.BotAPI the bot uses.
type telegramAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Responder handles one chat message of a device.
type Responder interface {
	Respond(ctx context.Context, deviceAddress, text string) error
}

// Bot carries messages between Telegram chats and the attestation service.
// A device address is the decimal chat ID.
type Bot struct {
	API     telegramAPI
	logger  *utils.Logger
	limiter *rate.Limiter
}

// NewBot sends at most perSecond messages per second; zero means unlimited.
func NewBot(api telegramAPI, perSecond float64, logger *utils.Logger) *Bot {
	limit := rate.Inf
	if perSecond > 0 {
		limit = rate.Limit(perSecond)
	}
	return &Bot{
		API:     api,
		logger:  logger,
		limiter: rate.NewLimiter(limit, 1),
	}
}

// Run feeds incoming messages to r until ctx is done. Messages are handled
// one at a time so a device's replies keep their order.
func (b *Bot) Run(ctx context.Context, r Responder) error {
	b.logger.Info("Starting bot...")
	cfg := tgbotapi.NewUpdate(0)
	cfg.Timeout = 60
	updates := b.API.GetUpdatesChan(cfg)
	defer b.API.StopReceivingUpdates()

	handle := b.withRecovery(b.withMessageLog(func(ctx context.Context, update tgbotapi.Update) {
		b.HandleUpdate(ctx, r, update)
	}))

	for {
		select {
		case <-ctx.Done():
			b.logger.Info("Bot stopped")
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			if update.Message == nil {
				continue
			}
			handle(ctx, update)
		}
	}
}

// Send delivers reply to the chat of deviceAddress. Commands become a one
// time reply keyboard; a reply without commands removes the previous one.
func (b *Bot) Send(ctx context.Context, deviceAddress string, reply service.Reply) error {
	chatID, err := strconv.ParseInt(deviceAddress, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid device address %q: %w", deviceAddress, err)
	}

	var markup interface{} = tgbotapi.NewRemoveKeyboard(false)
	if len(reply.Commands) > 0 {
		markup = GetCommandMenu(reply.Commands)
	}
	return b.sendMessage(ctx, chatID, reply.Text, markup)
}

// sendMessage sends plain text: replies quote emails and addresses that
// Markdown would mangle.
func (b *Bot) sendMessage(ctx context.Context, chatID int64, text string, replyMarkup interface{}) error {
	if err := b.limiter.Wait(ctx); err != nil {
		return err
	}

	msg := tgbotapi.NewMessage(chatID, text)
	msg.DisableWebPagePreview = true
	if replyMarkup != nil {
		msg.ReplyMarkup = replyMarkup
	}
	if _, err := b.API.Send(msg); err != nil {
		return fmt.Errorf("failed to send message to %d: %w", chatID, err)
	}
	return nil
}

func GetCommandMenu(commands []string) tgbotapi.ReplyKeyboardMarkup {
	rows := make([][]tgbotapi.KeyboardButton, 0, len(commands))
	for _, command := range commands {
		rows = append(rows, tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton(command)))
	}

	keyboard := tgbotapi.NewReplyKeyboard(rows...)
	keyboard.OneTimeKeyboard = true
	keyboard.ResizeKeyboard = true
	return keyboard
}
