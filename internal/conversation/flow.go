package conversation

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/telecalbot/telecalbot/internal/calcom"
	"github.com/telecalbot/telecalbot/internal/model"
)

const maxNameLength = 100

// dispatchCallback advances the state machine for a button press.
// Unrecognized payloads for the current state are ignored: the session
// stays where it is and nothing is mutated.
func (m *Manager) dispatchCallback(ctx context.Context, s *session, messageID int, data string) error {
	if data == "cancel" {
		m.endLocked(s, "cancelled")
		return m.messenger.EditMessage(ctx, s.ChatID, messageID, textCancelled, nil)
	}

	switch s.State {
	case model.StateSelectingTimezone:
		if tz, ok := cutPrefix(data, "tz:"); ok {
			return m.selectTimezone(ctx, s, messageID, tz)
		}

	case model.StateSelectingDuration:
		if raw, ok := cutPrefix(data, "duration:"); ok {
			minutes, err := strconv.Atoi(raw)
			if err != nil || (minutes != 30 && minutes != 60) {
				return nil
			}
			s.DurationMinutes = minutes
			return m.showAvailability(ctx, s, messageID)
		}

	case model.StateViewingAvailability:
		switch {
		case strings.HasPrefix(data, "slot:"):
			parts := strings.SplitN(data, ":", 3)
			if len(parts) != 3 {
				return nil
			}
			s.SelectedDate = parts[1]
			s.SelectedSlotTime = parts[2]
			s.State = model.StateEnteringName
			return m.messenger.EditMessage(ctx, s.ChatID, messageID, textEnterName, nil)

		case strings.HasPrefix(data, "dates:"):
			offset, err := strconv.Atoi(strings.TrimPrefix(data, "dates:"))
			if err != nil || offset < 0 {
				return nil
			}
			s.OffsetDays = offset
			return m.showAvailability(ctx, s, messageID)

		case data == "change_tz":
			s.State = model.StateSelectingTimezone
			return m.messenger.EditMessage(ctx, s.ChatID, messageID, textChooseTimezone, timezoneKeyboard(m.timezones))

		case strings.HasPrefix(data, "tz:"):
			// Retry button after a fetch failure.
			return m.selectTimezone(ctx, s, messageID, strings.TrimPrefix(data, "tz:"))

		case data == "noop":
			return nil
		}

	case model.StateEmailDecision:
		switch data {
		case "email_yes":
			s.State = model.StateEnteringEmail
			return m.messenger.EditMessage(ctx, s.ChatID, messageID, textEnterEmail, nil)
		case "email_no":
			s.Email = ""
			s.State = model.StateConfirming
			return m.messenger.EditMessage(ctx, s.ChatID, messageID, confirmationText(&s.Session), confirmationKeyboard())
		}

	case model.StateConfirming:
		switch {
		case data == "confirm":
			return m.confirmBooking(ctx, s, messageID)
		case strings.HasPrefix(data, "tz:"):
			// "Pick another time" after a booking conflict.
			return m.selectTimezone(ctx, s, messageID, strings.TrimPrefix(data, "tz:"))
		}
	}

	return nil
}

// selectTimezone stores the chosen timezone, then either auto-assigns
// the user's admin-set duration limit or shows the duration picker.
func (m *Manager) selectTimezone(ctx context.Context, s *session, messageID int, timezoneID string) error {
	s.Timezone = timezoneID
	s.OffsetDays = 0

	var limit *int
	if m.limits != nil {
		var err error
		limit, err = m.limits.GetLimit(ctx, s.UserID)
		if err != nil {
			m.logger.Warn("duration limit lookup failed",
				zap.Int64("user_id", s.UserID),
				zap.Error(err),
			)
			limit = nil
		}
	}

	if limit != nil {
		s.DurationMinutes = *limit
		return m.showAvailability(ctx, s, messageID)
	}

	s.State = model.StateSelectingDuration
	return m.messenger.EditMessage(ctx, s.ChatID, messageID, textChooseDuration, durationKeyboard())
}

// showAvailability fetches a 14-day window starting at today+offsetDays
// in the user's timezone and renders the slot keyboard.
func (m *Manager) showAvailability(ctx context.Context, s *session, messageID int) error {
	if err := m.messenger.EditMessage(ctx, s.ChatID, messageID, textLoading, nil); err != nil {
		return err
	}

	duration := s.DurationMinutes
	if duration == 0 {
		duration = defaultDurationMinutes
	}

	eventTypeID, err := m.eventTypes.EventTypeID(duration)
	if err != nil {
		// Deployment misconfiguration, not recoverable by the user.
		m.endLocked(s, "failed")
		_ = m.messenger.EditMessage(ctx, s.ChatID, messageID, textGenericError, nil)
		return fmt.Errorf("resolve event type for %d minutes: %w", duration, err)
	}

	loc, locErr := time.LoadLocation(s.Timezone)
	if locErr != nil {
		loc = time.UTC
	}
	startDate := time.Now().In(loc).AddDate(0, 0, s.OffsetDays)
	endDate := startDate.AddDate(0, 0, availabilityWindowDays)

	snapshot, err := m.api.GetAvailability(ctx, eventTypeID, startDate, endDate, s.Timezone)
	if err != nil {
		m.logger.Warn("availability fetch failed",
			zap.Int64("user_id", s.UserID),
			zap.Error(err),
		)
		s.State = model.StateViewingAvailability
		return m.messenger.EditMessage(ctx, s.ChatID, messageID, textFetchFailed, retryKeyboard(s.Timezone))
	}

	if !snapshot.HasSlots() {
		s.State = model.StateViewingAvailability
		return m.messenger.EditMessage(ctx, s.ChatID, messageID, textNoSlots, noAvailabilityKeyboard())
	}

	s.State = model.StateViewingAvailability
	text := fmt.Sprintf(textAvailabilityFmt, s.Timezone)
	return m.messenger.EditMessage(ctx, s.ChatID, messageID, text, availabilityKeyboard(snapshot.Slots, s.OffsetDays))
}

// handleName validates and stores the attendee name.
func (m *Manager) handleName(ctx context.Context, s *session, text string) error {
	name := strings.TrimSpace(text)

	if name == "" {
		_, err := m.messenger.SendMessage(ctx, s.ChatID, textNameEmpty, nil)
		return err
	}
	if len([]rune(name)) > maxNameLength {
		_, err := m.messenger.SendMessage(ctx, s.ChatID, textNameTooLong, nil)
		return err
	}

	s.Name = name
	s.State = model.StateEmailDecision
	_, err := m.messenger.SendMessage(ctx, s.ChatID, fmt.Sprintf(textGreetFmt, name), emailDecisionKeyboard())
	return err
}

// handleEmail validates and stores the attendee email.
func (m *Manager) handleEmail(ctx context.Context, s *session, text string) error {
	email := strings.TrimSpace(text)

	if !validEmail(email) {
		_, err := m.messenger.SendMessage(ctx, s.ChatID, textEmailInvalid, nil)
		return err
	}

	s.Email = email
	s.State = model.StateConfirming
	_, err := m.messenger.SendMessage(ctx, s.ChatID, confirmationText(&s.Session), confirmationKeyboard())
	return err
}

// confirmationText renders the booking summary shown before the final
// confirm button.
func confirmationText(s *model.Session) string {
	duration := s.DurationMinutes
	if duration == 0 {
		duration = defaultDurationMinutes
	}
	emailLine := ""
	if s.Email != "" {
		emailLine = "\nEmail: " + s.Email
	}
	return fmt.Sprintf(
		"Подтвердите запись:\n\nВремя: %s\nДлительность: %s\nИмя: %s%s\n\nНажмите «Подтвердить запись» для продолжения.",
		formatDisplayTime(s.SelectedSlotTime, s.Timezone),
		durationOptionLabel(duration),
		s.Name,
		emailLine,
	)
}

// confirmBooking creates the booking via Cal.com and finishes the
// conversation on success. Conflicts and other API failures return the
// user to the availability view.
func (m *Manager) confirmBooking(ctx context.Context, s *session, messageID int) error {
	if err := m.messenger.EditMessage(ctx, s.ChatID, messageID, textCreating, nil); err != nil {
		return err
	}

	duration := s.DurationMinutes
	if duration == 0 {
		duration = defaultDurationMinutes
	}

	eventTypeID, err := m.eventTypes.EventTypeID(duration)
	if err != nil {
		m.endLocked(s, "failed")
		_ = m.messenger.EditMessage(ctx, s.ChatID, messageID, textGenericError, nil)
		return fmt.Errorf("resolve event type for %d minutes: %w", duration, err)
	}

	email := s.Email
	if email == "" {
		email = fmt.Sprintf("telegram-%d@%s", s.UserID, m.placeholderDomain)
	}

	startUTC, err := slotToUTC(s.SelectedSlotTime)
	if err != nil {
		m.logger.Error("stored slot time is unparseable",
			zap.Int64("user_id", s.UserID),
			zap.String("slot_time", s.SelectedSlotTime),
		)
		s.State = model.StateViewingAvailability
		return m.messenger.EditMessage(ctx, s.ChatID, messageID, textGenericError, pickAnotherKeyboard(s.Timezone))
	}

	booking, err := m.api.CreateBooking(ctx, model.BookingRequest{
		EventTypeID: eventTypeID,
		Start:       startUTC,
		Attendee: model.Attendee{
			Name:     s.Name,
			Email:    email,
			TimeZone: s.Timezone,
			Language: "en",
		},
		Metadata: map[string]string{
			"telegram_user_id": strconv.FormatInt(s.UserID, 10),
			"booked_via":       "telegram_bot",
		},
	})
	if err != nil {
		s.State = model.StateViewingAvailability
		text := textGenericError
		if calcom.IsConflict(err) {
			text = textSlotTaken
		} else {
			m.logger.Warn("booking creation failed",
				zap.Int64("user_id", s.UserID),
				zap.Error(err),
			)
		}
		return m.messenger.EditMessage(ctx, s.ChatID, messageID, text, pickAnotherKeyboard(s.Timezone))
	}

	durationLabel, labelErr := formatDurationLabel(booking.Start, booking.End)
	if labelErr != nil {
		durationLabel = durationOptionLabel(duration)
	}
	emailNote := ""
	if s.Email != "" {
		emailNote = fmt.Sprintf("\nПисьмо с подтверждением отправлено на %s.", s.Email)
	}
	text := fmt.Sprintf(
		"Готово! Ваша встреча подтверждена.\n\nВремя: %s\nДлительность: %s\n\nМы свяжемся через Telegram в назначенное время.%s",
		formatDisplayTime(s.SelectedSlotTime, s.Timezone),
		durationLabel,
		emailNote,
	)

	if m.records != nil {
		if _, saveErr := m.records.Save(ctx, s.UserID, *booking); saveErr != nil {
			m.logger.Warn("failed to persist booking record",
				zap.Int64("user_id", s.UserID),
				zap.Int64("booking_id", booking.ID),
				zap.Error(saveErr),
			)
		}
	}

	m.logger.Info("booking created",
		zap.Int64("user_id", s.UserID),
		zap.Int64("booking_id", booking.ID),
		zap.String("start", booking.Start),
	)
	m.endLocked(s, "completed")
	return m.messenger.EditMessage(ctx, s.ChatID, messageID, text, nil)
}

func cutPrefix(s, prefix string) (string, bool) {
	if strings.HasPrefix(s, prefix) {
		return s[len(prefix):], true
	}
	return "", false
}
