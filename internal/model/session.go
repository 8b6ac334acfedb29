// Package model defines data structures shared across the bot.
package model

// State is a node of the booking conversation state machine.
type State string

const (
	StateSelectingTimezone    State = "selecting_timezone"
	StateSelectingDuration    State = "selecting_duration"
	StateViewingAvailability  State = "viewing_availability"
	StateEnteringName         State = "entering_name"
	StateEmailDecision        State = "email_decision"
	StateEnteringEmail        State = "entering_email"
	StateConfirming           State = "confirming"
)

// Session is the ephemeral per-user state of one booking attempt.
// It lives from /book until confirmation, cancellation or timeout.
type Session struct {
	UserID int64
	ChatID int64
	State  State

	// Selections, filled in as the conversation advances.
	Timezone         string
	OffsetDays       int
	DurationMinutes  int    // 0 until chosen or auto-assigned
	SelectedDate     string // "2006-01-02"
	SelectedSlotTime string // zoned ISO timestamp as returned by Cal.com
	Name             string
	Email            string // empty when the user skipped email
}
