package model

import "time"

// RequestStatus is the lifecycle status of an access request.
type RequestStatus string

const (
	RequestPending  RequestStatus = "pending"
	RequestApproved RequestStatus = "approved"
	RequestRejected RequestStatus = "rejected"
)

// WhitelistEntry is a user approved to use the bot.
type WhitelistEntry struct {
	TelegramID  int64
	DisplayName string
	Username    string
	ApprovedAt  time.Time
	ApprovedBy  int64
}

// AccessRequest is a pending request to use the bot.
type AccessRequest struct {
	TelegramID  int64
	DisplayName string
	Username    string
	RequestedAt time.Time
	Status      RequestStatus
}

// DurationLimit caps the meeting duration a user may book.
type DurationLimit struct {
	TelegramID         int64
	MaxDurationMinutes int
	SetAt              time.Time
	SetBy              int64
}

// StoredBooking is a persisted booking record, kept for the
// /cancel_booking flow.
type StoredBooking struct {
	ID               int64
	TelegramID       int64
	CalcomBookingID  int64
	CalcomBookingUID string
	Title            string
	Start            time.Time
	End              time.Time
	Status           string // "active" or "cancelled"
	CreatedAt        time.Time
	CancelledAt      *time.Time
}
