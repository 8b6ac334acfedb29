package model

// TimeSlot is a single bookable start time offered by Cal.com.
type TimeSlot struct {
	Time string `json:"time"` // zoned ISO timestamp, e.g. "2026-01-01T10:00:00.000+03:00"
}

// AvailabilitySnapshot holds available slots grouped by date.
// Neither the date keys nor the slots within a date are guaranteed
// sorted by the API; consumers must sort both.
type AvailabilitySnapshot struct {
	Slots map[string][]TimeSlot `json:"slots"`
}

// HasSlots reports whether any date in the snapshot has at least one slot.
func (a AvailabilitySnapshot) HasSlots() bool {
	for _, slots := range a.Slots {
		if len(slots) > 0 {
			return true
		}
	}
	return false
}

// Attendee carries attendee details for a booking request.
type Attendee struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	TimeZone string `json:"timeZone"`
	Language string `json:"language"`
}

// BookingRequest is the payload for creating a Cal.com booking.
type BookingRequest struct {
	EventTypeID int               `json:"eventTypeId"`
	Start       string            `json:"start"` // UTC ISO timestamp
	Attendee    Attendee          `json:"attendee"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// BookingResult is the parsed response of a created Cal.com booking.
type BookingResult struct {
	ID     int64  `json:"id"`
	UID    string `json:"uid"`
	Title  string `json:"title"`
	Start  string `json:"start"` // UTC ISO timestamp
	End    string `json:"end"`   // UTC ISO timestamp
	Status string `json:"status"`
}
