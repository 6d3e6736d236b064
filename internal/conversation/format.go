package conversation

import (
	"fmt"
	"strings"
	"time"

	"github.com/bookwell/booking-assistant/internal/calendar"
)

// Summary renders the collected details for the confirmation prompt.
func Summary(b *BookingEntities) string {
	var sb strings.Builder
	sb.WriteString("Here's what I have:")
	if b.ServiceType != nil {
		fmt.Fprintf(&sb, "\n  Service: %s", *b.ServiceType)
	}
	if b.PreferredDate != nil {
		if d, err := time.Parse("2006-01-02", *b.PreferredDate); err == nil {
			fmt.Fprintf(&sb, "\n  Date: %s", d.Format("Monday, January 2"))
		} else {
			fmt.Fprintf(&sb, "\n  Date: %s", *b.PreferredDate)
		}
	}
	if b.PreferredTime != nil {
		fmt.Fprintf(&sb, "\n  Time: %s", formatClock(*b.PreferredTime))
	}
	if b.DurationMinutes != nil {
		fmt.Fprintf(&sb, "\n  Duration: %d minutes", *b.DurationMinutes)
	}
	if b.Purpose != nil {
		fmt.Fprintf(&sb, "\n  Purpose: %s", *b.Purpose)
	}
	return sb.String()
}

// FormatSlots groups availability into morning, afternoon and evening
// sections, capping each to keep the reply readable.
func FormatSlots(slots []calendar.TimeSlot) string {
	if len(slots) == 0 {
		return "I don't see any open slots that day. Want to try another date?"
	}

	var morning, afternoon, evening []string
	for _, s := range slots {
		entry := formatClock(s.Start.Format("15:04"))
		switch h := s.Start.Hour(); {
		case h < 12:
			morning = append(morning, entry)
		case h < 17:
			afternoon = append(afternoon, entry)
		default:
			evening = append(evening, entry)
		}
	}

	var sb strings.Builder
	writeGroup := func(label string, entries []string) {
		if len(entries) == 0 {
			return
		}
		if len(entries) > 4 {
			entries = entries[:4]
		}
		fmt.Fprintf(&sb, "\n%s: %s", label, strings.Join(entries, ", "))
	}
	writeGroup("Morning", morning)
	writeGroup("Afternoon", afternoon)
	writeGroup("Evening", evening)
	return sb.String()
}

// formatClock converts "14:30" to "2:30 PM".
func formatClock(hhmm string) string {
	t, err := time.Parse("15:04", hhmm)
	if err != nil {
		return hhmm
	}
	return strings.TrimPrefix(t.Format("3:04 PM"), "0")
}
