package conversation

import (
	"fmt"
	"sort"

	"github.com/telecalbot/telecalbot/internal/model"
)

const (
	// maxDatesShown caps the distinct dates on one availability screen.
	maxDatesShown = 5
	// maxSlotsPerDate caps the slot buttons under one date header.
	maxSlotsPerDate = 6
	// slotsPerRow is how many slot buttons share a keyboard row.
	slotsPerRow = 3
	// pageStep is how many day-groups one pagination press advances.
	pageStep = 5
)

func cancelRow() []model.Button {
	return model.Row(model.Button{Label: buttonCancel, Data: "cancel"})
}

// timezoneKeyboard offers every configured timezone plus cancel.
func timezoneKeyboard(timezones []Timezone) model.Keyboard {
	kb := make(model.Keyboard, 0, len(timezones)+1)
	for _, tz := range timezones {
		kb = append(kb, model.Row(model.Button{Label: tz.Label, Data: "tz:" + tz.ID}))
	}
	return append(kb, cancelRow())
}

// durationKeyboard offers the configured meeting durations plus cancel.
func durationKeyboard() model.Keyboard {
	return model.Keyboard{
		model.Row(model.Button{Label: durationOptionLabel(30), Data: "duration:30"}),
		model.Row(model.Button{Label: durationOptionLabel(60), Data: "duration:60"}),
		cancelRow(),
	}
}

// availabilityKeyboard renders slots grouped by date: at most
// maxDatesShown dates ascending, at most maxSlotsPerDate slots per
// date ascending, slot buttons grouped slotsPerRow to a row.
func availabilityKeyboard(slots map[string][]model.TimeSlot, offsetDays int) model.Keyboard {
	dates := make([]string, 0, len(slots))
	for date := range slots {
		dates = append(dates, date)
	}
	sort.Strings(dates)
	if len(dates) > maxDatesShown {
		dates = dates[:maxDatesShown]
	}

	var kb model.Keyboard
	for _, date := range dates {
		daySlots := slots[date]
		if len(daySlots) == 0 {
			continue
		}

		kb = append(kb, model.Row(model.Button{
			Label: fmt.Sprintf("— %s —", formatDateHeader(date)),
			Data:  "noop",
		}))

		sorted := make([]model.TimeSlot, len(daySlots))
		copy(sorted, daySlots)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i].Time < sorted[j].Time })
		if len(sorted) > maxSlotsPerDate {
			sorted = sorted[:maxSlotsPerDate]
		}

		var row []model.Button
		for _, slot := range sorted {
			row = append(row, model.Button{
				Label: formatSlotTime(slot.Time),
				Data:  fmt.Sprintf("slot:%s:%s", date, slot.Time),
			})
			if len(row) == slotsPerRow {
				kb = append(kb, row)
				row = nil
			}
		}
		if len(row) > 0 {
			kb = append(kb, row)
		}
	}

	var nav []model.Button
	if offsetDays > 0 {
		nav = append(nav, model.Button{Label: buttonPrevDates, Data: fmt.Sprintf("dates:%d", offsetDays-pageStep)})
	}
	nav = append(nav, model.Button{Label: buttonMoreDates, Data: fmt.Sprintf("dates:%d", offsetDays+pageStep)})
	kb = append(kb, nav)
	kb = append(kb, model.Row(model.Button{Label: buttonTimezone, Data: "change_tz"}))
	return append(kb, cancelRow())
}

// noAvailabilityKeyboard offers a timezone change or cancel.
func noAvailabilityKeyboard() model.Keyboard {
	return model.Keyboard{
		model.Row(
			model.Button{Label: buttonTimezone, Data: "change_tz"},
			model.Button{Label: buttonCancel, Data: "cancel"},
		),
	}
}

// retryKeyboard offers re-fetching availability for a timezone.
func retryKeyboard(timezoneID string) model.Keyboard {
	return model.Keyboard{
		model.Row(
			model.Button{Label: buttonRetry, Data: "tz:" + timezoneID},
			model.Button{Label: buttonCancel, Data: "cancel"},
		),
	}
}

// pickAnotherKeyboard returns to availability after a booking failure.
func pickAnotherKeyboard(timezoneID string) model.Keyboard {
	return model.Keyboard{
		model.Row(
			model.Button{Label: buttonPickAnother, Data: "tz:" + timezoneID},
			model.Button{Label: buttonCancel, Data: "cancel"},
		),
	}
}

// emailDecisionKeyboard asks whether to collect an email.
func emailDecisionKeyboard() model.Keyboard {
	return model.Keyboard{
		model.Row(
			model.Button{Label: buttonEmailYes, Data: "email_yes"},
			model.Button{Label: buttonEmailNo, Data: "email_no"},
		),
	}
}

// confirmationKeyboard offers confirm or cancel.
func confirmationKeyboard() model.Keyboard {
	return model.Keyboard{
		model.Row(
			model.Button{Label: buttonConfirm, Data: "confirm"},
			model.Button{Label: buttonCancel, Data: "cancel"},
		),
	}
}
