package telegram

import (
	"context"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/telecalbot/telecalbot/internal/conversation"
	"github.com/telecalbot/telecalbot/internal/handler"
	"github.com/telecalbot/telecalbot/pkg/logger"
)

const updateTimeout = 30 // seconds, long-poll

// Bot runs the long-poll update loop and routes updates to the
// command handler and the booking conversation.
type Bot struct {
	api      *tgbotapi.BotAPI
	handlers *handler.Handler
	conv     *conversation.Manager
	adminID  int64
	logger   *logger.Logger
}

// Config collects the Bot's collaborators.
type Config struct {
	API      *tgbotapi.BotAPI
	Handlers *handler.Handler
	Conv     *conversation.Manager
	AdminID  int64
	Logger   *logger.Logger
}

func New(cfg Config) *Bot {
	log := cfg.Logger
	if log == nil {
		log = logger.NewNop()
	}
	return &Bot{
		api:      cfg.API,
		handlers: cfg.Handlers,
		conv:     cfg.Conv,
		adminID:  cfg.AdminID,
		logger:   log,
	}
}

// Run registers the command menu and processes updates until the
// context is cancelled.
func (b *Bot) Run(ctx context.Context) error {
	b.registerCommands()

	u := tgbotapi.NewUpdate(0)
	u.Timeout = updateTimeout
	updates := b.api.GetUpdatesChan(u)

	b.logger.Info("telegram update loop started",
		zap.String("bot_username", b.api.Self.UserName),
	)

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			go b.handleUpdate(ctx, update)
		}
	}
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	ctx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()

	var err error
	switch {
	case update.CallbackQuery != nil:
		err = b.handleCallback(ctx, update.CallbackQuery)
	case update.Message != nil && update.Message.IsCommand():
		err = b.handleCommand(ctx, update.Message)
	case update.Message != nil && update.Message.Text != "":
		err = b.handleText(ctx, update.Message)
	default:
		return
	}
	if err != nil {
		b.logger.Error("update handling failed",
			zap.Int("update_id", update.UpdateID),
			zap.Error(err),
		)
	}
}

func (b *Bot) handleCallback(ctx context.Context, query *tgbotapi.CallbackQuery) error {
	// Telegram shows a spinner until the callback is answered.
	if _, err := b.api.Request(tgbotapi.NewCallback(query.ID, "")); err != nil {
		b.logger.Warn("failed to answer callback query", zap.Error(err))
	}
	if query.Message == nil {
		return nil
	}

	user := userFrom(query.From, query.Message.Chat.ID)
	messageID := query.Message.MessageID

	handled, err := b.conv.HandleCallback(ctx, user.ID, messageID, query.Data)
	if err != nil || handled {
		return err
	}
	_, err = b.handlers.HandleCallback(ctx, user, messageID, query.Data)
	return err
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) error {
	user := userFrom(msg.From, msg.Chat.ID)
	args := msg.CommandArguments()

	switch msg.Command() {
	case "start":
		return b.handlers.Start(ctx, user)
	case "help":
		return b.handlers.Help(ctx, user)
	case "book":
		return b.handlers.Book(ctx, user)
	case "cancel":
		return b.handlers.Cancel(ctx, user)
	case "cancel_booking":
		return b.handlers.CancelBooking(ctx, user)
	case "pending":
		return b.handlers.Pending(ctx, user)
	case "approve":
		return b.handlers.Approve(ctx, user, args)
	case "reject":
		return b.handlers.Reject(ctx, user, args)
	case "setlimit":
		var replyToID int64
		if msg.ReplyToMessage != nil && msg.ReplyToMessage.From != nil {
			replyToID = msg.ReplyToMessage.From.ID
		}
		return b.handlers.SetLimit(ctx, user, args, replyToID)
	case "removelimit":
		return b.handlers.RemoveLimit(ctx, user, args)
	case "limits":
		return b.handlers.ListLimits(ctx, user)
	default:
		return b.handlers.Help(ctx, user)
	}
}

func (b *Bot) handleText(ctx context.Context, msg *tgbotapi.Message) error {
	user := userFrom(msg.From, msg.Chat.ID)

	handled, err := b.conv.HandleText(ctx, user.ID, msg.Text)
	if err != nil || handled {
		return err
	}
	return b.handlers.Text(ctx, user)
}

func (b *Bot) registerCommands() {
	userCommands := []tgbotapi.BotCommand{
		{Command: "book", Description: "Записаться на встречу"},
		{Command: "cancel", Description: "Отменить текущую запись"},
		{Command: "cancel_booking", Description: "Отменить подтверждённую встречу"},
		{Command: "help", Description: "Справка"},
	}
	if _, err := b.api.Request(tgbotapi.NewSetMyCommands(userCommands...)); err != nil {
		b.logger.Warn("failed to register command menu", zap.Error(err))
	}

	adminCommands := append(userCommands,
		tgbotapi.BotCommand{Command: "pending", Description: "Запросы на доступ"},
		tgbotapi.BotCommand{Command: "approve", Description: "Одобрить доступ"},
		tgbotapi.BotCommand{Command: "reject", Description: "Отклонить доступ"},
		tgbotapi.BotCommand{Command: "setlimit", Description: "Ограничить длительность"},
		tgbotapi.BotCommand{Command: "removelimit", Description: "Снять ограничение"},
		tgbotapi.BotCommand{Command: "limits", Description: "Список ограничений"},
	)
	scope := tgbotapi.NewBotCommandScopeChat(b.adminID)
	if _, err := b.api.Request(tgbotapi.NewSetMyCommandsWithScope(scope, adminCommands...)); err != nil {
		b.logger.Warn("failed to register admin command menu", zap.Error(err))
	}
}

func userFrom(from *tgbotapi.User, chatID int64) handler.User {
	if from == nil {
		return handler.User{ChatID: chatID}
	}
	name := strings.TrimSpace(strings.Join([]string{from.FirstName, from.LastName}, " "))
	return handler.User{
		ID:          from.ID,
		ChatID:      chatID,
		DisplayName: name,
		Username:    from.UserName,
	}
}
