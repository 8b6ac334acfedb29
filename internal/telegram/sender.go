// Package telegram adapts the bot to the Telegram Bot API transport.
package telegram

import (
	"context"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/telecalbot/telecalbot/internal/model"
	"github.com/telecalbot/telecalbot/pkg/logger"
)

// Sender implements the Messenger interface over the Bot API.
type Sender struct {
	api    *tgbotapi.BotAPI
	logger *logger.Logger
}

func NewSender(api *tgbotapi.BotAPI, log *logger.Logger) *Sender {
	if log == nil {
		log = logger.NewNop()
	}
	return &Sender{api: api, logger: log}
}

// SendMessage sends a new message and returns its id.
func (s *Sender) SendMessage(_ context.Context, chatID int64, text string, keyboard model.Keyboard) (int, error) {
	msg := tgbotapi.NewMessage(chatID, text)
	if len(keyboard) > 0 {
		msg.ReplyMarkup = toMarkup(keyboard)
	}
	sent, err := s.api.Send(msg)
	if err != nil {
		return 0, err
	}
	return sent.MessageID, nil
}

// EditMessage updates a message in place. When Telegram reports that
// the message can no longer be edited, the text is sent as a fresh
// message instead so the user never loses the prompt.
func (s *Sender) EditMessage(ctx context.Context, chatID int64, messageID int, text string, keyboard model.Keyboard) error {
	edit := tgbotapi.NewEditMessageText(chatID, messageID, text)
	if len(keyboard) > 0 {
		markup := toMarkup(keyboard)
		edit.ReplyMarkup = &markup
	}
	_, err := s.api.Send(edit)
	if err == nil {
		return nil
	}
	if isNotModified(err) {
		return nil
	}
	if isNoLongerEditable(err) {
		s.logger.Debug("message no longer editable, sending fresh",
			zap.Int64("chat_id", chatID),
			zap.Int("message_id", messageID),
		)
		_, sendErr := s.SendMessage(ctx, chatID, text, keyboard)
		return sendErr
	}
	return err
}

func isNotModified(err error) bool {
	return strings.Contains(strings.ToLower(err.Error()), "message is not modified")
}

func isNoLongerEditable(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "can't be edited") ||
		strings.Contains(msg, "can not be edited") ||
		strings.Contains(msg, "message to edit not found")
}

func toMarkup(keyboard model.Keyboard) tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(keyboard))
	for _, row := range keyboard {
		buttons := make([]tgbotapi.InlineKeyboardButton, 0, len(row))
		for _, btn := range row {
			buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData(btn.Label, btn.Data))
		}
		rows = append(rows, buttons)
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}
