package handler

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telecalbot/telecalbot/internal/model"
	"github.com/telecalbot/telecalbot/pkg/logger"
)

const (
	adminID = int64(1)
	userID  = int64(42)
	chatID  = int64(4242)
	msgID   = 77
)

type recordedMessage struct {
	chatID   int64
	text     string
	keyboard model.Keyboard
}

type stubMessenger struct {
	sent   []recordedMessage
	edited []recordedMessage
}

func (s *stubMessenger) SendMessage(_ context.Context, chatID int64, text string, kb model.Keyboard) (int, error) {
	s.sent = append(s.sent, recordedMessage{chatID: chatID, text: text, keyboard: kb})
	return 100 + len(s.sent), nil
}

func (s *stubMessenger) EditMessage(_ context.Context, chatID int64, _ int, text string, kb model.Keyboard) error {
	s.edited = append(s.edited, recordedMessage{chatID: chatID, text: text, keyboard: kb})
	return nil
}

func (s *stubMessenger) sentTo(chatID int64) []recordedMessage {
	var out []recordedMessage
	for _, msg := range s.sent {
		if msg.chatID == chatID {
			out = append(out, msg)
		}
	}
	return out
}

type stubWhitelist struct {
	approved map[int64]bool
	added    []model.WhitelistEntry
}

func (s *stubWhitelist) IsApproved(_ context.Context, id int64) (bool, error) {
	return s.approved[id], nil
}

func (s *stubWhitelist) Add(_ context.Context, entry model.WhitelistEntry) error {
	if s.approved == nil {
		s.approved = map[int64]bool{}
	}
	s.approved[entry.TelegramID] = true
	s.added = append(s.added, entry)
	return nil
}

type stubRequests struct {
	created  []model.AccessRequest
	existing map[int64]bool
	pending  []model.AccessRequest
	approved []int64
	rejected []int64
}

func (s *stubRequests) Create(_ context.Context, req model.AccessRequest) (bool, error) {
	if s.existing[req.TelegramID] {
		return false, nil
	}
	if s.existing == nil {
		s.existing = map[int64]bool{}
	}
	s.existing[req.TelegramID] = true
	s.created = append(s.created, req)
	return true, nil
}

func (s *stubRequests) Pending(context.Context) ([]model.AccessRequest, error) {
	return s.pending, nil
}

func (s *stubRequests) Approve(_ context.Context, id, _ int64) (bool, error) {
	if !s.existing[id] {
		return false, nil
	}
	s.approved = append(s.approved, id)
	return true, nil
}

func (s *stubRequests) Reject(_ context.Context, id int64) (bool, error) {
	if !s.existing[id] {
		return false, nil
	}
	s.rejected = append(s.rejected, id)
	return true, nil
}

type stubLimits struct {
	set     map[int64]int
	removed []int64
}

func (s *stubLimits) SetLimit(_ context.Context, id int64, minutes int, _ int64) error {
	if s.set == nil {
		s.set = map[int64]int{}
	}
	s.set[id] = minutes
	return nil
}

func (s *stubLimits) RemoveLimit(_ context.Context, id int64) (bool, error) {
	if _, ok := s.set[id]; !ok {
		return false, nil
	}
	delete(s.set, id)
	s.removed = append(s.removed, id)
	return true, nil
}

func (s *stubLimits) All(context.Context) ([]model.DurationLimit, error) {
	var out []model.DurationLimit
	for id, minutes := range s.set {
		out = append(out, model.DurationLimit{TelegramID: id, MaxDurationMinutes: minutes})
	}
	return out, nil
}

type stubBookings struct {
	bookings  map[int64]*model.StoredBooking
	cancelled []int64
}

func (s *stubBookings) Upcoming(_ context.Context, telegramID int64) ([]model.StoredBooking, error) {
	var out []model.StoredBooking
	for _, booking := range s.bookings {
		if booking.TelegramID == telegramID && booking.Status == "active" {
			out = append(out, *booking)
		}
	}
	return out, nil
}

func (s *stubBookings) Get(_ context.Context, id, telegramID int64) (*model.StoredBooking, error) {
	booking, ok := s.bookings[id]
	if !ok || booking.TelegramID != telegramID {
		return nil, nil
	}
	copied := *booking
	return &copied, nil
}

func (s *stubBookings) MarkCancelled(_ context.Context, id, _ int64) (bool, error) {
	booking, ok := s.bookings[id]
	if !ok || booking.Status != "active" {
		return false, nil
	}
	booking.Status = "cancelled"
	s.cancelled = append(s.cancelled, id)
	return true, nil
}

type stubScheduler struct {
	cancelled []string
	err       error
}

func (s *stubScheduler) CancelBooking(_ context.Context, uid, _ string) error {
	if s.err != nil {
		return s.err
	}
	s.cancelled = append(s.cancelled, uid)
	return nil
}

type stubConversations struct {
	started []int64
	active  map[int64]bool
}

func (s *stubConversations) Start(_ context.Context, userID, _ int64) error {
	s.started = append(s.started, userID)
	return nil
}

func (s *stubConversations) Active(userID int64) bool { return s.active[userID] }

func (s *stubConversations) HandleText(context.Context, int64, string) (bool, error) {
	return false, nil
}

func (s *stubConversations) CancelCommand(_ context.Context, userID int64) (bool, error) {
	if !s.active[userID] {
		return false, nil
	}
	delete(s.active, userID)
	return true, nil
}

type fixture struct {
	handler   *Handler
	messenger *stubMessenger
	whitelist *stubWhitelist
	requests  *stubRequests
	limits    *stubLimits
	bookings  *stubBookings
	scheduler *stubScheduler
	conv      *stubConversations
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		messenger: &stubMessenger{},
		whitelist: &stubWhitelist{approved: map[int64]bool{}},
		requests:  &stubRequests{existing: map[int64]bool{}},
		limits:    &stubLimits{},
		bookings:  &stubBookings{bookings: map[int64]*model.StoredBooking{}},
		scheduler: &stubScheduler{},
		conv:      &stubConversations{active: map[int64]bool{}},
	}
	f.handler = New(Config{
		AdminID:   adminID,
		Whitelist: f.whitelist,
		Requests:  f.requests,
		Limits:    f.limits,
		Bookings:  f.bookings,
		Scheduler: f.scheduler,
		Conv:      f.conv,
		Messenger: f.messenger,
		Logger:    logger.NewNop(),
	})
	return f
}

func regularUser() User {
	return User{ID: userID, ChatID: chatID, DisplayName: "Ivan", Username: "ivan42"}
}

func adminUser() User {
	return User{ID: adminID, ChatID: adminID, DisplayName: "Admin"}
}

func TestStartAutoWhitelistsAdmin(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.handler.Start(context.Background(), adminUser()))

	require.Len(t, f.whitelist.added, 1)
	assert.Equal(t, adminID, f.whitelist.added[0].TelegramID)
	msgs := f.messenger.sentTo(adminID)
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0].text, textWelcome)
	assert.Contains(t, msgs[0].text, "/pending")
}

func TestStartUnknownUserFilesRequest(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.handler.Start(context.Background(), regularUser()))

	require.Len(t, f.requests.created, 1)
	assert.Equal(t, userID, f.requests.created[0].TelegramID)

	adminMsgs := f.messenger.sentTo(adminID)
	require.Len(t, adminMsgs, 1, "admin is notified")
	assert.Contains(t, adminMsgs[0].text, fmt.Sprintf("/approve %d", userID))

	userMsgs := f.messenger.sentTo(chatID)
	require.Len(t, userMsgs, 1)
	assert.Contains(t, userMsgs[0].text, fmt.Sprintf("%d", userID))
}

func TestStartRepeatRequestDoesNotRenotify(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.handler.Start(context.Background(), regularUser()))
	require.NoError(t, f.handler.Start(context.Background(), regularUser()))

	assert.Len(t, f.messenger.sentTo(adminID), 1, "one notification per request")
	assert.Len(t, f.messenger.sentTo(chatID), 2, "user is told both times")
}

func TestStartApprovedUserGetsWelcome(t *testing.T) {
	f := newFixture(t)
	f.whitelist.approved[userID] = true

	require.NoError(t, f.handler.Start(context.Background(), regularUser()))

	msgs := f.messenger.sentTo(chatID)
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0].text, "/book")
	assert.NotContains(t, msgs[0].text, "/approve")
	assert.Empty(t, f.requests.created)
}

func TestBookGatedByWhitelist(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.handler.Book(context.Background(), regularUser()))
	assert.Empty(t, f.conv.started)
	assert.Equal(t, textNotApproved, f.messenger.sentTo(chatID)[0].text)

	f.whitelist.approved[userID] = true
	require.NoError(t, f.handler.Book(context.Background(), regularUser()))
	assert.Equal(t, []int64{userID}, f.conv.started)
}

func TestCancelOutsideConversation(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.handler.Cancel(context.Background(), regularUser()))
	assert.Equal(t, textNothingToCancel, f.messenger.sentTo(chatID)[0].text)

	f.conv.active[userID] = true
	require.NoError(t, f.handler.Cancel(context.Background(), regularUser()))
	assert.False(t, f.conv.active[userID])
}

func TestAdminCommandsRefuseNonAdmin(t *testing.T) {
	f := newFixture(t)
	user := regularUser()
	ctx := context.Background()

	require.NoError(t, f.handler.Pending(ctx, user))
	require.NoError(t, f.handler.Approve(ctx, user, "7"))
	require.NoError(t, f.handler.Reject(ctx, user, "7"))
	require.NoError(t, f.handler.SetLimit(ctx, user, "7 30", 0))
	require.NoError(t, f.handler.RemoveLimit(ctx, user, "7"))
	require.NoError(t, f.handler.ListLimits(ctx, user))

	for _, msg := range f.messenger.sentTo(chatID) {
		assert.Equal(t, textAdminOnly, msg.text)
	}
	assert.Empty(t, f.requests.approved)
	assert.Empty(t, f.limits.set)
}

func TestApproveNotifiesUser(t *testing.T) {
	f := newFixture(t)
	f.requests.existing[userID] = true

	require.NoError(t, f.handler.Approve(context.Background(), adminUser(), "42"))

	assert.Equal(t, []int64{userID}, f.requests.approved)
	userMsgs := f.messenger.sentTo(userID)
	require.Len(t, userMsgs, 1)
	assert.Equal(t, textAccessGranted, userMsgs[0].text)
}

func TestApproveUnknownRequest(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.handler.Approve(context.Background(), adminUser(), "42"))

	assert.Equal(t, textNoSuchReq, f.messenger.sentTo(adminID)[0].text)
}

func TestApproveRejectsBadID(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.handler.Approve(context.Background(), adminUser(), "not-a-number"))

	assert.Equal(t, textBadUserID, f.messenger.sentTo(adminID)[0].text)
}

func TestSetLimitParsesArgs(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.handler.SetLimit(ctx, adminUser(), "42 60", 0))
	assert.Equal(t, 60, f.limits.set[userID])

	// Reply form: target comes from the replied-to message.
	require.NoError(t, f.handler.SetLimit(ctx, adminUser(), "30", 99))
	assert.Equal(t, 30, f.limits.set[99])
}

func TestSetLimitRejectsInvalidMinutes(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.handler.SetLimit(context.Background(), adminUser(), "42 45", 0))

	assert.Empty(t, f.limits.set)
	assert.Equal(t, textBadLimit, f.messenger.sentTo(adminID)[0].text)
}

func TestRemoveLimit(t *testing.T) {
	f := newFixture(t)
	f.limits.set = map[int64]int{userID: 30}

	require.NoError(t, f.handler.RemoveLimit(context.Background(), adminUser(), "42"))
	assert.Empty(t, f.limits.set)

	require.NoError(t, f.handler.RemoveLimit(context.Background(), adminUser(), "42"))
	msgs := f.messenger.sentTo(adminID)
	assert.Equal(t, textNoSuchLimit, msgs[len(msgs)-1].text)
}

func TestPendingListsRequests(t *testing.T) {
	f := newFixture(t)
	f.requests.pending = []model.AccessRequest{
		{TelegramID: 42, DisplayName: "Ivan", Username: "ivan42", Status: model.RequestPending},
	}

	require.NoError(t, f.handler.Pending(context.Background(), adminUser()))

	msg := f.messenger.sentTo(adminID)[0]
	assert.Contains(t, msg.text, "Ivan")
	assert.Contains(t, msg.text, "/approve 42")
}

func TestCancelBookingListsUpcoming(t *testing.T) {
	f := newFixture(t)
	f.bookings.bookings[7] = &model.StoredBooking{
		ID:               7,
		TelegramID:       userID,
		CalcomBookingUID: "uid-7",
		Start:            time.Date(2026, 9, 1, 7, 0, 0, 0, time.UTC),
		Status:           "active",
	}

	require.NoError(t, f.handler.CancelBooking(context.Background(), regularUser()))

	msg := f.messenger.sentTo(chatID)[0]
	assert.Equal(t, textPickCancelBooking, msg.text)
	require.Len(t, msg.keyboard, 2)
	assert.Equal(t, "cancelbook:7", msg.keyboard[0][0].Data)
}

func TestCancelBookingEmpty(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.handler.CancelBooking(context.Background(), regularUser()))

	assert.Equal(t, textNoUpcoming, f.messenger.sentTo(chatID)[0].text)
}

func TestCancelBookingCallbackCancelsUpstream(t *testing.T) {
	f := newFixture(t)
	f.bookings.bookings[7] = &model.StoredBooking{
		ID:               7,
		TelegramID:       userID,
		CalcomBookingUID: "uid-7",
		Start:            time.Date(2026, 9, 1, 7, 0, 0, 0, time.UTC),
		Status:           "active",
	}

	handled, err := f.handler.HandleCallback(context.Background(), regularUser(), msgID, "cancelbook:7")
	require.NoError(t, err)
	require.True(t, handled)

	assert.Equal(t, []string{"uid-7"}, f.scheduler.cancelled)
	assert.Equal(t, []int64{7}, f.bookings.cancelled)
	require.NotEmpty(t, f.messenger.edited)
	assert.Contains(t, f.messenger.edited[0].text, textCancelDone)
}

func TestCancelBookingCallbackUpstreamFailure(t *testing.T) {
	f := newFixture(t)
	f.bookings.bookings[7] = &model.StoredBooking{
		ID: 7, TelegramID: userID, CalcomBookingUID: "uid-7", Status: "active",
	}
	f.scheduler.err = errors.New("cal.com is down")

	handled, err := f.handler.HandleCallback(context.Background(), regularUser(), msgID, "cancelbook:7")
	require.NoError(t, err)
	require.True(t, handled)

	assert.Empty(t, f.bookings.cancelled, "store untouched when upstream fails")
	assert.Equal(t, textCancelFailed, f.messenger.edited[0].text)
}

func TestCancelBookingCallbackInactiveBooking(t *testing.T) {
	f := newFixture(t)
	f.bookings.bookings[7] = &model.StoredBooking{
		ID: 7, TelegramID: userID, CalcomBookingUID: "uid-7", Status: "cancelled",
	}

	handled, err := f.handler.HandleCallback(context.Background(), regularUser(), msgID, "cancelbook:7")
	require.NoError(t, err)
	require.True(t, handled)
	assert.Equal(t, textBookingGone, f.messenger.edited[0].text)
	assert.Empty(t, f.scheduler.cancelled)
}

func TestCallbackIgnoresForeignPayloads(t *testing.T) {
	f := newFixture(t)

	handled, err := f.handler.HandleCallback(context.Background(), regularUser(), msgID, "tz:Europe/Moscow")
	require.NoError(t, err)
	assert.False(t, handled)
}
