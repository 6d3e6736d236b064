package conversation

import (
	"fmt"
	"time"
)

// ValidateEntities checks the accumulated fields for values that can never
// book: zero or negative durations, dates in the past, malformed times.
// It returns a user-facing problem description for the first violation.
func ValidateEntities(b *BookingEntities, now time.Time) error {
	if b.DurationMinutes != nil && *b.DurationMinutes <= 0 {
		return fmt.Errorf("duration must be positive, got %d minutes", *b.DurationMinutes)
	}
	if b.DurationMinutes != nil && *b.DurationMinutes > 8*60 {
		return fmt.Errorf("duration of %d minutes is longer than a business day", *b.DurationMinutes)
	}
	if b.PreferredDate != nil {
		d, err := time.ParseInLocation("2006-01-02", *b.PreferredDate, now.Location())
		if err != nil {
			return fmt.Errorf("date %q is not a valid calendar date", *b.PreferredDate)
		}
		today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
		if d.Before(today) {
			return fmt.Errorf("date %s is in the past", *b.PreferredDate)
		}
	}
	if b.PreferredTime != nil {
		if _, err := time.Parse("15:04", *b.PreferredTime); err != nil {
			return fmt.Errorf("time %q is not a valid time of day", *b.PreferredTime)
		}
	}
	return nil
}

// StartTime combines the collected date and time into a concrete start.
// Both fields must be set and valid.
func (b *BookingEntities) StartTime(loc *time.Location) (time.Time, error) {
	if b.PreferredDate == nil || b.PreferredTime == nil {
		return time.Time{}, fmt.Errorf("conversation: date and time not yet collected")
	}
	t, err := time.ParseInLocation("2006-01-02 15:04", *b.PreferredDate+" "+*b.PreferredTime, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("conversation: parse start: %w", err)
	}
	return t, nil
}
