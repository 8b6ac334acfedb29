// Package handler implements the bot's command surface: onboarding,
// whitelist-gated booking entry and the admin commands.
package handler

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/telecalbot/telecalbot/internal/model"
	"github.com/telecalbot/telecalbot/pkg/logger"
)

// User identifies the Telegram user behind an incoming update.
type User struct {
	ID          int64
	ChatID      int64
	DisplayName string
	Username    string
}

// Whitelist is the approved-users store.
type Whitelist interface {
	IsApproved(ctx context.Context, telegramID int64) (bool, error)
	Add(ctx context.Context, entry model.WhitelistEntry) error
}

// AccessRequests is the pending-request store.
type AccessRequests interface {
	Create(ctx context.Context, req model.AccessRequest) (bool, error)
	Pending(ctx context.Context) ([]model.AccessRequest, error)
	Approve(ctx context.Context, telegramID, approvedBy int64) (bool, error)
	Reject(ctx context.Context, telegramID int64) (bool, error)
}

// Limits is the duration-limit store.
type Limits interface {
	SetLimit(ctx context.Context, telegramID int64, minutes int, setBy int64) error
	RemoveLimit(ctx context.Context, telegramID int64) (bool, error)
	All(ctx context.Context) ([]model.DurationLimit, error)
}

// Bookings is the stored-booking store.
type Bookings interface {
	Upcoming(ctx context.Context, telegramID int64) ([]model.StoredBooking, error)
	Get(ctx context.Context, id, telegramID int64) (*model.StoredBooking, error)
	MarkCancelled(ctx context.Context, id, telegramID int64) (bool, error)
}

// Scheduler cancels bookings upstream.
type Scheduler interface {
	CancelBooking(ctx context.Context, uid, reason string) error
}

// Conversations is the booking conversation entry point.
type Conversations interface {
	Start(ctx context.Context, userID, chatID int64) error
	Active(userID int64) bool
	HandleText(ctx context.Context, userID int64, text string) (bool, error)
	CancelCommand(ctx context.Context, userID int64) (bool, error)
}

// Messenger sends and edits chat messages.
type Messenger interface {
	SendMessage(ctx context.Context, chatID int64, text string, keyboard model.Keyboard) (int, error)
	EditMessage(ctx context.Context, chatID int64, messageID int, text string, keyboard model.Keyboard) error
}

// Handler wires the command surface together.
type Handler struct {
	adminID   int64
	whitelist Whitelist
	requests  AccessRequests
	limits    Limits
	bookings  Bookings
	scheduler Scheduler
	conv      Conversations
	messenger Messenger
	logger    *logger.Logger
}

// Config collects the Handler's collaborators.
type Config struct {
	AdminID   int64
	Whitelist Whitelist
	Requests  AccessRequests
	Limits    Limits
	Bookings  Bookings
	Scheduler Scheduler
	Conv      Conversations
	Messenger Messenger
	Logger    *logger.Logger
}

func New(cfg Config) *Handler {
	log := cfg.Logger
	if log == nil {
		log = logger.NewNop()
	}
	return &Handler{
		adminID:   cfg.AdminID,
		whitelist: cfg.Whitelist,
		requests:  cfg.Requests,
		limits:    cfg.Limits,
		bookings:  cfg.Bookings,
		scheduler: cfg.Scheduler,
		conv:      cfg.Conv,
		messenger: cfg.Messenger,
		logger:    log,
	}
}

// Start handles /start: the admin is whitelisted automatically,
// approved users get the welcome, everyone else files an access
// request and the admin is notified.
func (h *Handler) Start(ctx context.Context, user User) error {
	if user.ID == h.adminID {
		if err := h.whitelist.Add(ctx, model.WhitelistEntry{
			TelegramID:  user.ID,
			DisplayName: user.DisplayName,
			Username:    user.Username,
			ApprovedBy:  user.ID,
		}); err != nil {
			return fmt.Errorf("auto-whitelist admin: %w", err)
		}
		_, err := h.messenger.SendMessage(ctx, user.ChatID, textWelcome+"\n\n"+h.helpText(true, true), nil)
		return err
	}

	approved, err := h.whitelist.IsApproved(ctx, user.ID)
	if err != nil {
		return fmt.Errorf("check whitelist: %w", err)
	}
	if approved {
		_, err := h.messenger.SendMessage(ctx, user.ChatID, textWelcome+"\n\n"+h.helpText(true, false), nil)
		return err
	}

	created, err := h.requests.Create(ctx, model.AccessRequest{
		TelegramID:  user.ID,
		DisplayName: user.DisplayName,
		Username:    user.Username,
	})
	if err != nil {
		return fmt.Errorf("create access request: %w", err)
	}
	if created {
		h.notifyAdmin(ctx, user)
	}
	_, err = h.messenger.SendMessage(ctx, user.ChatID,
		fmt.Sprintf(textAccessPendingFmt, user.ID), nil)
	return err
}

// Help replies with the command list for the user's privilege level.
func (h *Handler) Help(ctx context.Context, user User) error {
	approved, err := h.whitelist.IsApproved(ctx, user.ID)
	if err != nil {
		return fmt.Errorf("check whitelist: %w", err)
	}
	_, err = h.messenger.SendMessage(ctx, user.ChatID, h.helpText(approved, user.ID == h.adminID), nil)
	return err
}

// Book starts a booking conversation for whitelisted users.
func (h *Handler) Book(ctx context.Context, user User) error {
	approved, err := h.whitelist.IsApproved(ctx, user.ID)
	if err != nil {
		return fmt.Errorf("check whitelist: %w", err)
	}
	if !approved && user.ID != h.adminID {
		_, err := h.messenger.SendMessage(ctx, user.ChatID, textNotApproved, nil)
		return err
	}
	return h.conv.Start(ctx, user.ID, user.ChatID)
}

// Cancel handles /cancel. Outside a conversation there is nothing to
// cancel and the user is told so.
func (h *Handler) Cancel(ctx context.Context, user User) error {
	handled, err := h.conv.CancelCommand(ctx, user.ID)
	if err != nil {
		return err
	}
	if !handled {
		_, err = h.messenger.SendMessage(ctx, user.ChatID, textNothingToCancel, nil)
	}
	return err
}

// Text handles plain text that no conversation claimed: approved users
// get the help text, everyone else goes through the /start path.
func (h *Handler) Text(ctx context.Context, user User) error {
	approved, err := h.whitelist.IsApproved(ctx, user.ID)
	if err != nil {
		return fmt.Errorf("check whitelist: %w", err)
	}
	if approved || user.ID == h.adminID {
		_, err := h.messenger.SendMessage(ctx, user.ChatID, h.helpText(true, user.ID == h.adminID), nil)
		return err
	}
	return h.Start(ctx, user)
}

func (h *Handler) notifyAdmin(ctx context.Context, user User) {
	name := user.DisplayName
	if user.Username != "" {
		name = fmt.Sprintf("%s (@%s)", name, user.Username)
	}
	text := fmt.Sprintf(textNewRequestFmt, name, user.ID, user.ID, user.ID)
	if _, err := h.messenger.SendMessage(ctx, h.adminID, text, nil); err != nil {
		h.logger.Warn("failed to notify admin about access request",
			zap.Int64("user_id", user.ID),
			zap.Error(err),
		)
	}
}

func (h *Handler) helpText(approved, admin bool) string {
	if !approved {
		return textHelpGuest
	}
	if admin {
		return textHelpUser + "\n" + textHelpAdmin
	}
	return textHelpUser
}
