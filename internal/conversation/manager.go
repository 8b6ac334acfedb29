// Package conversation implements the multi-step booking conversation:
// timezone, duration, slot, name and email collection, confirmation,
// and the Cal.com booking call.
package conversation

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/telecalbot/telecalbot/internal/model"
	"github.com/telecalbot/telecalbot/pkg/logger"
	"github.com/telecalbot/telecalbot/pkg/metrics"
)

const (
	defaultIdleTimeout       = 15 * time.Minute
	defaultPlaceholderDomain = "telecalbot.local"
	defaultDurationMinutes   = 30
	availabilityWindowDays   = 14
)

// SchedulingAPI is the scheduling provider surface the conversation
// drives. Implemented by calcom.Client.
type SchedulingAPI interface {
	GetAvailability(ctx context.Context, eventTypeID int, startDate, endDate time.Time, timezone string) (model.AvailabilitySnapshot, error)
	CreateBooking(ctx context.Context, req model.BookingRequest) (*model.BookingResult, error)
}

// DurationLimits looks up an admin-set per-user duration cap.
// A nil result means the user has no limit.
type DurationLimits interface {
	GetLimit(ctx context.Context, telegramID int64) (*int, error)
}

// BookingRecords persists created bookings for later cancellation.
type BookingRecords interface {
	Save(ctx context.Context, telegramID int64, booking model.BookingResult) (int64, error)
}

// Messenger delivers outbound messages. EditMessage must fall back to
// sending a new message when the original can no longer be edited.
type Messenger interface {
	SendMessage(ctx context.Context, chatID int64, text string, keyboard model.Keyboard) (int, error)
	EditMessage(ctx context.Context, chatID int64, messageID int, text string, keyboard model.Keyboard) error
}

// EventTypes resolves a meeting duration to a Cal.com event type id.
// Implemented by config.Config.
type EventTypes interface {
	EventTypeID(durationMinutes int) (int, error)
}

// Config wires a Manager.
type Config struct {
	API        SchedulingAPI
	Messenger  Messenger
	EventTypes EventTypes
	Limits     DurationLimits // optional; nil behaves as "no limits set"
	Records    BookingRecords // optional; nil skips booking persistence

	Timezones         []Timezone
	IdleTimeout       time.Duration
	PlaceholderDomain string
	Logger            *logger.Logger
}

// session is one user's booking attempt plus its runtime bookkeeping.
// All field access happens under mu; per-session transitions are
// therefore strictly sequential.
type session struct {
	model.Session

	mu         sync.Mutex
	timer      *time.Timer
	lastAction time.Time
	ended      bool
}

// Manager owns all active booking conversations, one session per user.
type Manager struct {
	api        SchedulingAPI
	messenger  Messenger
	eventTypes EventTypes
	limits     DurationLimits
	records    BookingRecords

	timezones         []Timezone
	idleTimeout       time.Duration
	placeholderDomain string
	logger            *logger.Logger

	mu       sync.Mutex
	sessions map[int64]*session
}

// NewManager creates a conversation manager.
func NewManager(cfg Config) *Manager {
	timezones := cfg.Timezones
	if len(timezones) == 0 {
		timezones = DefaultTimezones
	}
	idleTimeout := cfg.IdleTimeout
	if idleTimeout <= 0 {
		idleTimeout = defaultIdleTimeout
	}
	domain := cfg.PlaceholderDomain
	if domain == "" {
		domain = defaultPlaceholderDomain
	}
	log := cfg.Logger
	if log == nil {
		log = logger.Global()
	}
	return &Manager{
		api:               cfg.API,
		messenger:         cfg.Messenger,
		eventTypes:        cfg.EventTypes,
		limits:            cfg.Limits,
		records:           cfg.Records,
		timezones:         timezones,
		idleTimeout:       idleTimeout,
		placeholderDomain: domain,
		logger:            log,
		sessions:          make(map[int64]*session),
	}
}

// Start begins a booking conversation for a user. An existing session
// for the same user is discarded and replaced.
func (m *Manager) Start(ctx context.Context, userID, chatID int64) error {
	m.mu.Lock()
	if old, ok := m.sessions[userID]; ok {
		delete(m.sessions, userID)
		m.mu.Unlock()
		old.mu.Lock()
		if !old.ended {
			old.ended = true
			old.timer.Stop()
			metrics.ConversationEnded("cancelled")
		}
		old.mu.Unlock()
		m.mu.Lock()
	}

	s := &session{
		Session: model.Session{
			UserID: userID,
			ChatID: chatID,
			State:  model.StateSelectingTimezone,
		},
		lastAction: time.Now(),
	}
	s.timer = time.AfterFunc(m.idleTimeout, func() { m.expire(userID) })
	m.sessions[userID] = s
	m.mu.Unlock()

	metrics.ConversationStarted()
	m.logger.Info("booking conversation started", zap.Int64("user_id", userID))

	_, err := m.messenger.SendMessage(ctx, chatID, textChooseTimezone, timezoneKeyboard(m.timezones))
	return err
}

// Active reports whether a user has a booking conversation in progress.
func (m *Manager) Active(userID int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.sessions[userID]
	return ok
}

// HandleCallback routes a button press into the state machine. It
// reports false when the user has no active session.
func (m *Manager) HandleCallback(ctx context.Context, userID int64, messageID int, data string) (bool, error) {
	return m.withSession(userID, func(s *session) error {
		return m.dispatchCallback(ctx, s, messageID, data)
	})
}

// HandleText routes a free-text message into the state machine. It
// reports false when no active session is waiting for text input.
func (m *Manager) HandleText(ctx context.Context, userID int64, text string) (bool, error) {
	m.mu.Lock()
	s, ok := m.sessions[userID]
	m.mu.Unlock()
	if !ok {
		return false, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return false, nil
	}
	if s.State != model.StateEnteringName && s.State != model.StateEnteringEmail {
		// Not waiting for text; let the caller fall through to help.
		return false, nil
	}
	s.touch(m.idleTimeout)

	if s.State == model.StateEnteringName {
		return true, m.handleName(ctx, s, text)
	}
	return true, m.handleEmail(ctx, s, text)
}

// CancelCommand handles the /cancel fallback. It reports false when
// there was nothing to cancel.
func (m *Manager) CancelCommand(ctx context.Context, userID int64) (bool, error) {
	return m.withSession(userID, func(s *session) error {
		m.endLocked(s, "cancelled")
		_, err := m.messenger.SendMessage(ctx, s.ChatID, textCancelled, nil)
		return err
	})
}

func (m *Manager) withSession(userID int64, fn func(*session) error) (bool, error) {
	m.mu.Lock()
	s, ok := m.sessions[userID]
	m.mu.Unlock()
	if !ok {
		return false, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return false, nil
	}
	s.touch(m.idleTimeout)
	return true, fn(s)
}

// touch records activity and pushes the idle timer out. Callers hold s.mu.
func (s *session) touch(idleTimeout time.Duration) {
	s.lastAction = time.Now()
	s.timer.Reset(idleTimeout)
}

// endLocked finishes a session. Callers hold s.mu.
func (m *Manager) endLocked(s *session, outcome string) {
	if s.ended {
		return
	}
	s.ended = true
	s.timer.Stop()
	s.Session = model.Session{UserID: s.UserID, ChatID: s.ChatID}

	m.mu.Lock()
	if cur, ok := m.sessions[s.UserID]; ok && cur == s {
		delete(m.sessions, s.UserID)
	}
	m.mu.Unlock()

	metrics.ConversationEnded(outcome)
	m.logger.Info("booking conversation ended",
		zap.Int64("user_id", s.UserID),
		zap.String("outcome", outcome),
	)
}

// expire force-ends an idle session and tells the user to restart.
func (m *Manager) expire(userID int64) {
	m.mu.Lock()
	s, ok := m.sessions[userID]
	m.mu.Unlock()
	if !ok {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return
	}
	// An action may have slipped in between the timer firing and us
	// taking the lock.
	if remaining := m.idleTimeout - time.Since(s.lastAction); remaining > 0 {
		s.timer.Reset(remaining)
		return
	}

	chatID := s.ChatID
	m.endLocked(s, "expired")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if _, err := m.messenger.SendMessage(ctx, chatID, textTimedOut, nil); err != nil {
		m.logger.Warn("failed to deliver timeout notice",
			zap.Int64("user_id", userID),
			zap.Error(err),
		)
	}
}
