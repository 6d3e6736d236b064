package calendar

import (
	"context"
	"sync"
	"time"
)

// MockCalendar keeps bookings in memory and derives availability from
// business hours. A deterministic subset of slots starts out busy so
// development conversations see realistic conflicts.
type MockCalendar struct {
	mu       sync.Mutex
	openHour int
	closeHr  int
	bookings []TimeSlot
	seq      int
	now      func() time.Time
}

func NewMockCalendar(openHour, closeHour int) *MockCalendar {
	if openHour <= 0 || closeHour <= openHour {
		openHour, closeHour = 9, 17
	}
	return &MockCalendar{openHour: openHour, closeHr: closeHour, now: time.Now}
}

// WithClock pins time for tests and returns the receiver.
func (c *MockCalendar) WithClock(now func() time.Time) *MockCalendar {
	c.now = now
	return c
}

func (c *MockCalendar) AvailableSlots(ctx context.Context, date time.Time, durationMin int) ([]TimeSlot, error) {
	if durationMin <= 0 {
		durationMin = 60
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	day := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location())
	var slots []TimeSlot
	step := 30 * time.Minute
	open := day.Add(time.Duration(c.openHour) * time.Hour)
	close := day.Add(time.Duration(c.closeHr) * time.Hour)
	for start := open; !start.Add(time.Duration(durationMin) * time.Minute).After(close); start = start.Add(step) {
		slot := TimeSlot{Start: start, End: start.Add(time.Duration(durationMin) * time.Minute)}
		if c.seeded(slot.Start) || c.conflicts(slot) {
			continue
		}
		slots = append(slots, slot)
	}
	return slots, nil
}

func (c *MockCalendar) CreateBooking(ctx context.Context, req BookingRequest) (Confirmation, error) {
	if req.DurationMin <= 0 {
		req.DurationMin = 60
	}
	end := req.Start.Add(time.Duration(req.DurationMin) * time.Minute)

	c.mu.Lock()
	defer c.mu.Unlock()

	dayOpen := req.Start.Hour() >= c.openHour && end.Hour() <= c.closeHr && (end.Hour() < c.closeHr || end.Minute() == 0)
	if !dayOpen {
		return Confirmation{}, ErrSlotUnavailable
	}
	slot := TimeSlot{Start: req.Start, End: end}
	if c.seeded(req.Start) || c.conflicts(slot) {
		return Confirmation{}, ErrSlotUnavailable
	}

	c.bookings = append(c.bookings, slot)
	c.seq++
	now := c.now()
	return Confirmation{
		BookingID:        newBookingID(now),
		ConfirmationCode: newConfirmationCode(now, c.seq),
		ServiceType:      req.ServiceType,
		Start:            req.Start,
		End:              end,
	}, nil
}

// seeded marks a stable pseudo-random subset of starts as pre-booked.
func (c *MockCalendar) seeded(start time.Time) bool {
	return (start.Day()+start.Hour()*2+start.Minute()/30)%5 == 0
}

func (c *MockCalendar) conflicts(slot TimeSlot) bool {
	for _, b := range c.bookings {
		if slot.Start.Before(b.End) && b.Start.Before(slot.End) {
			return true
		}
	}
	return false
}
