// Package calendar abstracts the scheduling backend behind a small
// interface. The mock backend generates deterministic business-hours
// availability; the google backend talks to Google Calendar.
package calendar

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrSlotUnavailable means the requested start time conflicts with an
// existing booking or falls outside business hours.
var ErrSlotUnavailable = errors.New("calendar: slot unavailable")

// TimeSlot is one bookable window.
type TimeSlot struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// BookingRequest carries everything needed to place a booking.
type BookingRequest struct {
	ServiceType string
	Start       time.Time
	DurationMin int
	Purpose     string
	Email       string
}

// Confirmation is the receipt for a placed booking.
type Confirmation struct {
	BookingID        string    `json:"booking_id"`
	ConfirmationCode string    `json:"confirmation_code"`
	ServiceType      string    `json:"service_type"`
	Start            time.Time `json:"start"`
	End              time.Time `json:"end"`
}

// Calendar is implemented by every scheduling backend.
type Calendar interface {
	// AvailableSlots lists open windows of the given duration on date.
	AvailableSlots(ctx context.Context, date time.Time, durationMin int) ([]TimeSlot, error)

	// CreateBooking places a booking, failing with ErrSlotUnavailable on
	// conflict.
	CreateBooking(ctx context.Context, req BookingRequest) (Confirmation, error)
}

// newBookingID builds the external booking reference from the creation time.
func newBookingID(now time.Time) string {
	return fmt.Sprintf("BK%d", now.Unix())
}

// newConfirmationCode builds the human-facing code handed to the customer.
func newConfirmationCode(now time.Time, seq int) string {
	return fmt.Sprintf("CNF-%s-%04d", now.Format("20060102"), seq)
}
