package handler

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/telecalbot/telecalbot/internal/model"
)

const cancelBookingPrefix = "cancelbook:"

// CancelBooking handles /cancel_booking: upcoming bookings are listed
// as buttons and the chosen one is cancelled via the callback path.
func (h *Handler) CancelBooking(ctx context.Context, user User) error {
	upcoming, err := h.bookings.Upcoming(ctx, user.ID)
	if err != nil {
		return fmt.Errorf("list upcoming bookings: %w", err)
	}
	if len(upcoming) == 0 {
		_, err := h.messenger.SendMessage(ctx, user.ChatID, textNoUpcoming, nil)
		return err
	}

	kb := make(model.Keyboard, 0, len(upcoming)+1)
	for _, booking := range upcoming {
		kb = append(kb, model.Row(model.Button{
			Label: bookingLabel(booking),
			Data:  fmt.Sprintf("%s%d", cancelBookingPrefix, booking.ID),
		}))
	}
	kb = append(kb, model.Row(model.Button{Label: "Закрыть", Data: cancelBookingPrefix + "close"}))

	_, err = h.messenger.SendMessage(ctx, user.ChatID, textPickCancelBooking, kb)
	return err
}

// HandleCallback processes cancel-booking button presses. It reports
// false for payloads that belong to someone else.
func (h *Handler) HandleCallback(ctx context.Context, user User, messageID int, data string) (bool, error) {
	if !strings.HasPrefix(data, cancelBookingPrefix) {
		return false, nil
	}
	payload := strings.TrimPrefix(data, cancelBookingPrefix)

	if payload == "close" {
		return true, h.messenger.EditMessage(ctx, user.ChatID, messageID, textNothingToCancel, nil)
	}

	rowID, err := strconv.ParseInt(payload, 10, 64)
	if err != nil {
		return true, nil
	}

	booking, err := h.bookings.Get(ctx, rowID, user.ID)
	if err != nil {
		return true, fmt.Errorf("load booking: %w", err)
	}
	if booking == nil || booking.Status != "active" {
		return true, h.messenger.EditMessage(ctx, user.ChatID, messageID, textBookingGone, nil)
	}

	if err := h.scheduler.CancelBooking(ctx, booking.CalcomBookingUID, textCancelReason); err != nil {
		h.logger.Warn("upstream booking cancellation failed",
			zap.Int64("user_id", user.ID),
			zap.String("booking_uid", booking.CalcomBookingUID),
			zap.Error(err),
		)
		return true, h.messenger.EditMessage(ctx, user.ChatID, messageID, textCancelFailed, nil)
	}

	if _, err := h.bookings.MarkCancelled(ctx, rowID, user.ID); err != nil {
		h.logger.Warn("failed to mark booking cancelled",
			zap.Int64("user_id", user.ID),
			zap.Int64("booking_id", rowID),
			zap.Error(err),
		)
	}

	h.logger.Info("booking cancelled",
		zap.Int64("user_id", user.ID),
		zap.String("booking_uid", booking.CalcomBookingUID),
	)
	return true, h.messenger.EditMessage(ctx, user.ChatID, messageID,
		fmt.Sprintf("%s\n%s", textCancelDone, bookingLabel(*booking)), nil)
}

func bookingLabel(booking model.StoredBooking) string {
	label := booking.Start.UTC().Format("02.01.2006 15:04 UTC")
	if booking.Title != "" {
		label = fmt.Sprintf("%s — %s", booking.Title, label)
	}
	return label
}
