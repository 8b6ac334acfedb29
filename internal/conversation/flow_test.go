package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telecalbot/telecalbot/internal/calcom"
	"github.com/telecalbot/telecalbot/internal/model"
	"github.com/telecalbot/telecalbot/pkg/logger"
)

type sentMessage struct {
	chatID   int64
	text     string
	keyboard model.Keyboard
}

type editedMessage struct {
	chatID    int64
	messageID int
	text      string
	keyboard  model.Keyboard
}

type fakeMessenger struct {
	mu     sync.Mutex
	sent   []sentMessage
	edited []editedMessage
}

func (f *fakeMessenger) SendMessage(_ context.Context, chatID int64, text string, kb model.Keyboard) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentMessage{chatID: chatID, text: text, keyboard: kb})
	return 1000 + len(f.sent), nil
}

func (f *fakeMessenger) EditMessage(_ context.Context, chatID int64, messageID int, text string, kb model.Keyboard) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.edited = append(f.edited, editedMessage{chatID: chatID, messageID: messageID, text: text, keyboard: kb})
	return nil
}

func (f *fakeMessenger) lastEdit(t *testing.T) editedMessage {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.edited)
	return f.edited[len(f.edited)-1]
}

func (f *fakeMessenger) lastSent(t *testing.T) sentMessage {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.sent)
	return f.sent[len(f.sent)-1]
}

type fakeAPI struct {
	snapshot     model.AvailabilitySnapshot
	availErr     error
	bookingErr   error
	booking      *model.BookingResult
	lastRequest  model.BookingRequest
	bookingCalls int
}

func (f *fakeAPI) GetAvailability(_ context.Context, _ int, _, _ time.Time, _ string) (model.AvailabilitySnapshot, error) {
	return f.snapshot, f.availErr
}

func (f *fakeAPI) CreateBooking(_ context.Context, req model.BookingRequest) (*model.BookingResult, error) {
	f.bookingCalls++
	f.lastRequest = req
	if f.bookingErr != nil {
		return nil, f.bookingErr
	}
	return f.booking, nil
}

type fakeLimits struct {
	limit *int
	err   error
}

func (f *fakeLimits) GetLimit(context.Context, int64) (*int, error) { return f.limit, f.err }

type fakeRecords struct {
	saved []model.BookingResult
	err   error
}

func (f *fakeRecords) Save(_ context.Context, _ int64, booking model.BookingResult) (int64, error) {
	if f.err != nil {
		return 0, f.err
	}
	f.saved = append(f.saved, booking)
	return int64(len(f.saved)), nil
}

type stubEventTypes struct {
	ids       map[int]int
	err       error
	requested []int
}

func (s *stubEventTypes) EventTypeID(minutes int) (int, error) {
	s.requested = append(s.requested, minutes)
	if s.err != nil {
		return 0, s.err
	}
	if id, ok := s.ids[minutes]; ok {
		return id, nil
	}
	return 0, fmt.Errorf("no event type for %d minutes", minutes)
}

func testSnapshot() model.AvailabilitySnapshot {
	return model.AvailabilitySnapshot{
		Slots: map[string][]model.TimeSlot{
			"2026-09-01": {
				{Time: "2026-09-01T10:00:00+03:00"},
				{Time: "2026-09-01T11:00:00+03:00"},
			},
			"2026-09-02": {
				{Time: "2026-09-02T14:00:00+03:00"},
			},
		},
	}
}

type managerFixture struct {
	manager   *Manager
	messenger *fakeMessenger
	api       *fakeAPI
	limits    *fakeLimits
	records   *fakeRecords
	events    *stubEventTypes
}

func newFixture(t *testing.T) *managerFixture {
	t.Helper()
	f := &managerFixture{
		messenger: &fakeMessenger{},
		api:       &fakeAPI{snapshot: testSnapshot()},
		limits:    &fakeLimits{},
		records:   &fakeRecords{},
		events: &stubEventTypes{ids: map[int]int{
			30: 111,
			60: 222,
		}},
	}
	f.api.booking = &model.BookingResult{
		ID:    9001,
		UID:   "uid-9001",
		Start: "2026-09-01T07:00:00.000Z",
		End:   "2026-09-01T07:30:00.000Z",
	}
	f.manager = NewManager(Config{
		API:        f.api,
		Messenger:  f.messenger,
		EventTypes: f.events,
		Limits:     f.limits,
		Records:    f.records,
		Logger:     logger.NewNop(),
	})
	return f
}

const (
	testUserID = int64(42)
	testChatID = int64(4242)
	testMsgID  = 77
)

func (f *managerFixture) callback(t *testing.T, data string) {
	t.Helper()
	handled, err := f.manager.HandleCallback(context.Background(), testUserID, testMsgID, data)
	require.NoError(t, err)
	require.True(t, handled)
}

func (f *managerFixture) advanceToViewing(t *testing.T) {
	t.Helper()
	require.NoError(t, f.manager.Start(context.Background(), testUserID, testChatID))
	f.callback(t, "tz:Europe/Moscow")
	f.callback(t, "duration:30")
}

func (f *managerFixture) advanceToConfirming(t *testing.T) {
	t.Helper()
	f.advanceToViewing(t)
	f.callback(t, "slot:2026-09-01:2026-09-01T10:00:00+03:00")
	handled, err := f.manager.HandleText(context.Background(), testUserID, "Иван Петров")
	require.NoError(t, err)
	require.True(t, handled)
	f.callback(t, "email_no")
}

func TestStartSendsTimezoneKeyboard(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.manager.Start(context.Background(), testUserID, testChatID))

	msg := f.messenger.lastSent(t)
	assert.Equal(t, testChatID, msg.chatID)
	assert.Equal(t, textChooseTimezone, msg.text)
	// One row per timezone plus the cancel row.
	assert.Len(t, msg.keyboard, len(DefaultTimezones)+1)
	assert.True(t, f.manager.Active(testUserID))
}

func TestTimezoneWithoutLimitShowsDurationPicker(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.manager.Start(context.Background(), testUserID, testChatID))

	f.callback(t, "tz:Europe/Moscow")

	edit := f.messenger.lastEdit(t)
	assert.Equal(t, textChooseDuration, edit.text)
	require.Len(t, edit.keyboard, 3)
	assert.Equal(t, "duration:30", edit.keyboard[0][0].Data)
	assert.Equal(t, "duration:60", edit.keyboard[1][0].Data)
}

func TestTimezoneWithLimitSkipsDurationPicker(t *testing.T) {
	f := newFixture(t)
	limit := 60
	f.limits.limit = &limit
	require.NoError(t, f.manager.Start(context.Background(), testUserID, testChatID))

	f.callback(t, "tz:Europe/Moscow")

	// Availability was requested straight away for the 60-minute type.
	require.NotEmpty(t, f.events.requested)
	assert.Equal(t, 60, f.events.requested[0])
	edit := f.messenger.lastEdit(t)
	assert.Contains(t, edit.text, "Доступное время")
}

func TestLimitLookupFailureFallsBackToPicker(t *testing.T) {
	f := newFixture(t)
	f.limits.err = errors.New("db down")
	require.NoError(t, f.manager.Start(context.Background(), testUserID, testChatID))

	f.callback(t, "tz:Europe/Moscow")

	edit := f.messenger.lastEdit(t)
	assert.Equal(t, textChooseDuration, edit.text)
}

func TestAvailabilityFetchFailureOffersRetry(t *testing.T) {
	f := newFixture(t)
	f.api.availErr = errors.New("cal.com unreachable")
	require.NoError(t, f.manager.Start(context.Background(), testUserID, testChatID))

	f.callback(t, "tz:Europe/Moscow")
	f.callback(t, "duration:30")

	edit := f.messenger.lastEdit(t)
	assert.Equal(t, textFetchFailed, edit.text)
	require.NotEmpty(t, edit.keyboard)
	assert.Equal(t, "tz:Europe/Moscow", edit.keyboard[0][0].Data)
	assert.True(t, f.manager.Active(testUserID), "session survives a fetch failure")

	// Retry succeeds once the API recovers.
	f.api.availErr = nil
	f.callback(t, "tz:Europe/Moscow")
	assert.Contains(t, f.messenger.lastEdit(t).text, "Доступное время")
}

func TestAvailabilityEmptyShowsNoSlots(t *testing.T) {
	f := newFixture(t)
	f.api.snapshot = model.AvailabilitySnapshot{Slots: map[string][]model.TimeSlot{}}
	f.advanceToViewing(t)

	edit := f.messenger.lastEdit(t)
	assert.Equal(t, textNoSlots, edit.text)
}

func TestInvalidDurationIgnored(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.manager.Start(context.Background(), testUserID, testChatID))
	f.callback(t, "tz:Europe/Moscow")
	before := len(f.messenger.edited)

	f.callback(t, "duration:45")
	f.callback(t, "duration:abc")

	assert.Len(t, f.messenger.edited, before, "invalid durations change nothing")
	f.callback(t, "duration:30")
	assert.Contains(t, f.messenger.lastEdit(t).text, "Доступное время")
}

func TestSlotSelectionAsksForName(t *testing.T) {
	f := newFixture(t)
	f.advanceToViewing(t)

	f.callback(t, "slot:2026-09-01:2026-09-01T10:00:00+03:00")

	assert.Equal(t, textEnterName, f.messenger.lastEdit(t).text)
}

func TestNameValidation(t *testing.T) {
	f := newFixture(t)
	f.advanceToViewing(t)
	f.callback(t, "slot:2026-09-01:2026-09-01T10:00:00+03:00")

	handled, err := f.manager.HandleText(context.Background(), testUserID, "   ")
	require.NoError(t, err)
	require.True(t, handled)
	assert.Equal(t, textNameEmpty, f.messenger.lastSent(t).text)

	handled, err = f.manager.HandleText(context.Background(), testUserID, strings.Repeat("я", 101))
	require.NoError(t, err)
	require.True(t, handled)
	assert.Equal(t, textNameTooLong, f.messenger.lastSent(t).text)

	handled, err = f.manager.HandleText(context.Background(), testUserID, "  Иван  ")
	require.NoError(t, err)
	require.True(t, handled)
	msg := f.messenger.lastSent(t)
	assert.Equal(t, fmt.Sprintf(textGreetFmt, "Иван"), msg.text)
	assert.Equal(t, "email_yes", msg.keyboard[0][0].Data)
}

func TestEmailValidation(t *testing.T) {
	f := newFixture(t)
	f.advanceToViewing(t)
	f.callback(t, "slot:2026-09-01:2026-09-01T10:00:00+03:00")
	handled, err := f.manager.HandleText(context.Background(), testUserID, "Иван")
	require.NoError(t, err)
	require.True(t, handled)
	f.callback(t, "email_yes")

	for _, bad := range []string{"not-an-email", "user@nodot", "a@b@c"} {
		handled, err = f.manager.HandleText(context.Background(), testUserID, bad)
		require.NoError(t, err)
		require.True(t, handled)
		assert.Equal(t, textEmailInvalid, f.messenger.lastSent(t).text, "input %q", bad)
	}

	handled, err = f.manager.HandleText(context.Background(), testUserID, "ivan@example.com")
	require.NoError(t, err)
	require.True(t, handled)
	msg := f.messenger.lastSent(t)
	assert.Contains(t, msg.text, "Подтвердите запись")
	assert.Contains(t, msg.text, "ivan@example.com")
	assert.Equal(t, "confirm", msg.keyboard[0][0].Data)
}

func TestConfirmWithoutEmailUsesPlaceholder(t *testing.T) {
	f := newFixture(t)
	f.advanceToConfirming(t)

	f.callback(t, "confirm")

	require.Equal(t, 1, f.api.bookingCalls)
	req := f.api.lastRequest
	assert.Equal(t, 111, req.EventTypeID)
	assert.Equal(t, "2026-09-01T07:00:00Z", req.Start)
	assert.Equal(t, "Иван Петров", req.Attendee.Name)
	assert.Equal(t, fmt.Sprintf("telegram-%d@telecalbot.local", testUserID), req.Attendee.Email)
	assert.Equal(t, "Europe/Moscow", req.Attendee.TimeZone)
	assert.Equal(t, "42", req.Metadata["telegram_user_id"])
	assert.Equal(t, "telegram_bot", req.Metadata["booked_via"])

	edit := f.messenger.lastEdit(t)
	assert.Contains(t, edit.text, "Готово! Ваша встреча подтверждена.")
	assert.Contains(t, edit.text, "30 мин.")
	assert.NotContains(t, edit.text, "Письмо с подтверждением")

	require.Len(t, f.records.saved, 1)
	assert.Equal(t, int64(9001), f.records.saved[0].ID)
	assert.False(t, f.manager.Active(testUserID), "session ends after booking")
}

func TestConfirmConflictReturnsToAvailability(t *testing.T) {
	f := newFixture(t)
	f.advanceToConfirming(t)
	f.api.bookingErr = &calcom.APIError{StatusCode: 409, Message: "slot taken"}

	f.callback(t, "confirm")

	edit := f.messenger.lastEdit(t)
	assert.Equal(t, textSlotTaken, edit.text)
	require.NotEmpty(t, edit.keyboard)
	assert.Equal(t, "tz:Europe/Moscow", edit.keyboard[0][0].Data)
	assert.True(t, f.manager.Active(testUserID))
	assert.Empty(t, f.records.saved)

	// The user can go back and pick a fresh slot.
	f.callback(t, "tz:Europe/Moscow")
	assert.Contains(t, f.messenger.lastEdit(t).text, "Доступное время")
}

func TestConfirmGenericFailureKeepsSession(t *testing.T) {
	f := newFixture(t)
	f.advanceToConfirming(t)
	f.api.bookingErr = &calcom.APIError{StatusCode: 500, Message: "boom"}

	f.callback(t, "confirm")

	assert.Equal(t, textGenericError, f.messenger.lastEdit(t).text)
	assert.True(t, f.manager.Active(testUserID))
}

func TestRecordSaveFailureDoesNotBreakBooking(t *testing.T) {
	f := newFixture(t)
	f.advanceToConfirming(t)
	f.records.err = errors.New("insert failed")

	f.callback(t, "confirm")

	assert.Contains(t, f.messenger.lastEdit(t).text, "Готово! Ваша встреча подтверждена.")
	assert.False(t, f.manager.Active(testUserID))
}

func TestCancelCallbackEndsSession(t *testing.T) {
	f := newFixture(t)
	f.advanceToViewing(t)

	f.callback(t, "cancel")

	assert.Equal(t, textCancelled, f.messenger.lastEdit(t).text)
	assert.False(t, f.manager.Active(testUserID))

	handled, err := f.manager.HandleCallback(context.Background(), testUserID, testMsgID, "duration:30")
	require.NoError(t, err)
	assert.False(t, handled, "callbacks after cancel are not handled")
}

func TestCancelCommandEndsSession(t *testing.T) {
	f := newFixture(t)
	f.advanceToViewing(t)

	handled, err := f.manager.CancelCommand(context.Background(), testUserID)
	require.NoError(t, err)
	require.True(t, handled)
	assert.Equal(t, textCancelled, f.messenger.lastSent(t).text)
	assert.False(t, f.manager.Active(testUserID))

	handled, err = f.manager.CancelCommand(context.Background(), testUserID)
	require.NoError(t, err)
	assert.False(t, handled)
}

func TestChangeTimezoneFromAvailability(t *testing.T) {
	f := newFixture(t)
	f.advanceToViewing(t)

	f.callback(t, "change_tz")

	edit := f.messenger.lastEdit(t)
	assert.Equal(t, textChooseTimezone, edit.text)
	assert.Len(t, edit.keyboard, len(DefaultTimezones)+1)
}

func TestDatePaginationRefetches(t *testing.T) {
	f := newFixture(t)
	f.advanceToViewing(t)
	before := len(f.messenger.edited)

	f.callback(t, "dates:5")

	// A loading edit plus the refreshed keyboard.
	assert.Greater(t, len(f.messenger.edited), before)
	assert.Contains(t, f.messenger.lastEdit(t).text, "Доступное время")
}

func TestNoopAndUnknownPayloadsIgnored(t *testing.T) {
	f := newFixture(t)
	f.advanceToViewing(t)
	before := len(f.messenger.edited)

	f.callback(t, "noop")
	f.callback(t, "slot:malformed")
	f.callback(t, "confirm")

	assert.Len(t, f.messenger.edited, before)
	assert.True(t, f.manager.Active(testUserID))
}

func TestTextIgnoredOutsideInputStates(t *testing.T) {
	f := newFixture(t)
	f.advanceToViewing(t)

	handled, err := f.manager.HandleText(context.Background(), testUserID, "привет")
	require.NoError(t, err)
	assert.False(t, handled)
}

func TestRestartReplacesSession(t *testing.T) {
	f := newFixture(t)
	f.advanceToViewing(t)

	require.NoError(t, f.manager.Start(context.Background(), testUserID, testChatID))

	assert.Equal(t, textChooseTimezone, f.messenger.lastSent(t).text)
	// Old state is gone: duration callback belongs to the old flow.
	before := len(f.messenger.edited)
	f.callback(t, "duration:30")
	assert.Len(t, f.messenger.edited, before)
}
