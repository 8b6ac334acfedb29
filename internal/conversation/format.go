package conversation

import (
	"fmt"
	"strings"
	"time"
)

// Weekday names indexed by time.Weekday (Sunday first).
var russianWeekdays = [7]string{
	"Воскресенье",
	"Понедельник",
	"Вторник",
	"Среда",
	"Четверг",
	"Пятница",
	"Суббота",
}

// Month abbreviations indexed by time.Month - 1.
var russianMonthsAbbr = [12]string{
	"янв", "фев", "мар", "апр", "мая", "июн",
	"июл", "авг", "сен", "окт", "ноя", "дек",
}

// parseISO parses an ISO 8601 timestamp, accepting both offset and
// UTC "Z" forms, with or without fractional seconds.
func parseISO(value string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, value)
	if err == nil {
		return t, nil
	}
	// Cal.com occasionally omits the offset on UTC timestamps.
	return time.Parse("2006-01-02T15:04:05", value)
}

// formatDateHeader formats "2006-01-02" as "Понедельник, 6 янв".
func formatDateHeader(dateStr string) string {
	t, err := time.Parse("2006-01-02", dateStr)
	if err != nil {
		return dateStr
	}
	return fmt.Sprintf("%s, %d %s", russianWeekdays[t.Weekday()], t.Day(), russianMonthsAbbr[t.Month()-1])
}

// formatSlotTime formats a zoned ISO timestamp as "14:00".
func formatSlotTime(iso string) string {
	t, err := parseISO(iso)
	if err != nil {
		return iso
	}
	return t.Format("15:04")
}

// formatDisplayTime formats a slot for user-facing display,
// e.g. "Понедельник, 6 янв в 14:00 (Europe/Moscow)". The timestamp is
// rendered in its own zone, which is the user's selected timezone.
func formatDisplayTime(iso, timezoneID string) string {
	t, err := parseISO(iso)
	if err != nil {
		return iso
	}
	return fmt.Sprintf("%s, %d %s в %s (%s)",
		russianWeekdays[t.Weekday()], t.Day(), russianMonthsAbbr[t.Month()-1],
		t.Format("15:04"), timezoneID)
}

// slotToUTC converts a zoned ISO timestamp to a UTC ISO string for the
// booking request.
func slotToUTC(iso string) (string, error) {
	t, err := parseISO(iso)
	if err != nil {
		return "", fmt.Errorf("invalid slot time %q: %w", iso, err)
	}
	return t.UTC().Format("2006-01-02T15:04:05Z"), nil
}

// formatDurationLabel derives a human-readable duration from a
// booking's start and end timestamps: whole hours become "N ч.",
// everything else "N мин.".
func formatDurationLabel(startISO, endISO string) (string, error) {
	start, err := parseISO(startISO)
	if err != nil {
		return "", err
	}
	end, err := parseISO(endISO)
	if err != nil {
		return "", err
	}
	minutes := int(end.Sub(start).Minutes())
	if minutes >= 60 && minutes%60 == 0 {
		return fmt.Sprintf("%d ч.", minutes/60), nil
	}
	return fmt.Sprintf("%d мин.", minutes), nil
}

// durationOptionLabel names a selectable duration, e.g. "30 минут".
func durationOptionLabel(minutes int) string {
	switch minutes {
	case 30:
		return "30 минут"
	case 60:
		return "60 минут"
	}
	return fmt.Sprintf("%d мин.", minutes)
}

// validEmail applies a minimal heuristic: an "@" must be present, and
// the part after the last "@" must contain a dot.
func validEmail(email string) bool {
	at := strings.LastIndex(email, "@")
	if at < 0 {
		return false
	}
	return strings.Contains(email[at+1:], ".")
}
