package handler

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// requireAdmin guards an admin command. It reports whether the caller
// may proceed; non-admins get a refusal message.
func (h *Handler) requireAdmin(ctx context.Context, user User) (bool, error) {
	if user.ID == h.adminID {
		return true, nil
	}
	_, err := h.messenger.SendMessage(ctx, user.ChatID, textAdminOnly, nil)
	return false, err
}

// Pending handles /pending.
func (h *Handler) Pending(ctx context.Context, user User) error {
	ok, err := h.requireAdmin(ctx, user)
	if !ok || err != nil {
		return err
	}

	pending, err := h.requests.Pending(ctx)
	if err != nil {
		return fmt.Errorf("list pending requests: %w", err)
	}
	if len(pending) == 0 {
		_, err := h.messenger.SendMessage(ctx, user.ChatID, textNoPending, nil)
		return err
	}

	var b strings.Builder
	b.WriteString("Запросы на доступ:\n")
	for _, req := range pending {
		name := req.DisplayName
		if req.Username != "" {
			name = fmt.Sprintf("%s (@%s)", name, req.Username)
		}
		fmt.Fprintf(&b, "\n%s — ID %d\n/approve %d  /reject %d\n", name, req.TelegramID, req.TelegramID, req.TelegramID)
	}
	_, err = h.messenger.SendMessage(ctx, user.ChatID, b.String(), nil)
	return err
}

// Approve handles /approve <id>. The approved user is notified.
func (h *Handler) Approve(ctx context.Context, user User, args string) error {
	ok, err := h.requireAdmin(ctx, user)
	if !ok || err != nil {
		return err
	}

	targetID, ok := parseUserID(args)
	if !ok {
		_, err := h.messenger.SendMessage(ctx, user.ChatID, textBadUserID, nil)
		return err
	}

	approved, err := h.requests.Approve(ctx, targetID, user.ID)
	if err != nil {
		return fmt.Errorf("approve request: %w", err)
	}
	if !approved {
		_, err := h.messenger.SendMessage(ctx, user.ChatID, textNoSuchReq, nil)
		return err
	}

	if _, err := h.messenger.SendMessage(ctx, targetID, textAccessGranted, nil); err != nil {
		h.logger.Warn("failed to notify approved user",
			zap.Int64("user_id", targetID),
			zap.Error(err),
		)
	}
	_, err = h.messenger.SendMessage(ctx, user.ChatID,
		fmt.Sprintf("Доступ для %d открыт.", targetID), nil)
	return err
}

// Reject handles /reject <id>.
func (h *Handler) Reject(ctx context.Context, user User, args string) error {
	ok, err := h.requireAdmin(ctx, user)
	if !ok || err != nil {
		return err
	}

	targetID, ok := parseUserID(args)
	if !ok {
		_, err := h.messenger.SendMessage(ctx, user.ChatID, textBadUserID, nil)
		return err
	}

	rejected, err := h.requests.Reject(ctx, targetID)
	if err != nil {
		return fmt.Errorf("reject request: %w", err)
	}
	if !rejected {
		_, err := h.messenger.SendMessage(ctx, user.ChatID, textNoSuchReq, nil)
		return err
	}
	_, err = h.messenger.SendMessage(ctx, user.ChatID,
		fmt.Sprintf("Запрос от %d отклонён.", targetID), nil)
	return err
}

// SetLimit handles /setlimit <id> <30|60>. When the command is sent as
// a reply to a user's message, replyToID supplies the target and args
// carry only the minutes.
func (h *Handler) SetLimit(ctx context.Context, user User, args string, replyToID int64) error {
	ok, err := h.requireAdmin(ctx, user)
	if !ok || err != nil {
		return err
	}

	fields := strings.Fields(args)
	var targetID int64
	var minutesArg string
	switch {
	case replyToID != 0 && len(fields) == 1:
		targetID = replyToID
		minutesArg = fields[0]
	case len(fields) == 2:
		id, idOK := parseUserID(fields[0])
		if !idOK {
			_, err := h.messenger.SendMessage(ctx, user.ChatID, textBadUserID, nil)
			return err
		}
		targetID = id
		minutesArg = fields[1]
	default:
		_, err := h.messenger.SendMessage(ctx, user.ChatID,
			"Использование: /setlimit <id> <30|60>", nil)
		return err
	}

	minutes, err := strconv.Atoi(minutesArg)
	if err != nil || (minutes != 30 && minutes != 60) {
		_, err := h.messenger.SendMessage(ctx, user.ChatID, textBadLimit, nil)
		return err
	}

	if err := h.limits.SetLimit(ctx, targetID, minutes, user.ID); err != nil {
		return fmt.Errorf("set duration limit: %w", err)
	}
	_, err = h.messenger.SendMessage(ctx, user.ChatID,
		fmt.Sprintf("Для %d установлено ограничение %d минут.", targetID, minutes), nil)
	return err
}

// RemoveLimit handles /removelimit <id>.
func (h *Handler) RemoveLimit(ctx context.Context, user User, args string) error {
	ok, err := h.requireAdmin(ctx, user)
	if !ok || err != nil {
		return err
	}

	targetID, ok := parseUserID(args)
	if !ok {
		_, err := h.messenger.SendMessage(ctx, user.ChatID, textBadUserID, nil)
		return err
	}

	removed, err := h.limits.RemoveLimit(ctx, targetID)
	if err != nil {
		return fmt.Errorf("remove duration limit: %w", err)
	}
	if !removed {
		_, err := h.messenger.SendMessage(ctx, user.ChatID, textNoSuchLimit, nil)
		return err
	}
	_, err = h.messenger.SendMessage(ctx, user.ChatID,
		fmt.Sprintf("Ограничение для %d снято.", targetID), nil)
	return err
}

// ListLimits handles /limits.
func (h *Handler) ListLimits(ctx context.Context, user User) error {
	ok, err := h.requireAdmin(ctx, user)
	if !ok || err != nil {
		return err
	}

	limits, err := h.limits.All(ctx)
	if err != nil {
		return fmt.Errorf("list duration limits: %w", err)
	}
	if len(limits) == 0 {
		_, err := h.messenger.SendMessage(ctx, user.ChatID, textNoLimits, nil)
		return err
	}

	var b strings.Builder
	b.WriteString("Ограничения длительности:\n")
	for _, limit := range limits {
		fmt.Fprintf(&b, "%d — %d минут\n", limit.TelegramID, limit.MaxDurationMinutes)
	}
	_, err = h.messenger.SendMessage(ctx, user.ChatID, b.String(), nil)
	return err
}

func parseUserID(args string) (int64, bool) {
	id, err := strconv.ParseInt(strings.TrimSpace(args), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
