package calendar

import (
	"context"
	"fmt"
	"time"

	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"
)

// GoogleCalendar books against a real Google Calendar. Availability comes
// from the freebusy endpoint filtered to business hours.
type GoogleCalendar struct {
	svc        *gcal.Service
	calendarID string
	openHour   int
	closeHr    int
	seq        int
	now        func() time.Time
}

func NewGoogleCalendar(ctx context.Context, credentialsFile, calendarID string, openHour, closeHour int) (*GoogleCalendar, error) {
	svc, err := gcal.NewService(ctx, option.WithCredentialsFile(credentialsFile))
	if err != nil {
		return nil, fmt.Errorf("calendar: create google client: %w", err)
	}
	if openHour <= 0 || closeHour <= openHour {
		openHour, closeHour = 9, 17
	}
	return &GoogleCalendar{
		svc:        svc,
		calendarID: calendarID,
		openHour:   openHour,
		closeHr:    closeHour,
		now:        time.Now,
	}, nil
}

func (c *GoogleCalendar) AvailableSlots(ctx context.Context, date time.Time, durationMin int) ([]TimeSlot, error) {
	if durationMin <= 0 {
		durationMin = 60
	}
	day := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location())
	open := day.Add(time.Duration(c.openHour) * time.Hour)
	close := day.Add(time.Duration(c.closeHr) * time.Hour)

	busy, err := c.busyWindows(ctx, open, close)
	if err != nil {
		return nil, err
	}

	var slots []TimeSlot
	step := 30 * time.Minute
	for start := open; !start.Add(time.Duration(durationMin) * time.Minute).After(close); start = start.Add(step) {
		slot := TimeSlot{Start: start, End: start.Add(time.Duration(durationMin) * time.Minute)}
		if overlapsAny(slot, busy) {
			continue
		}
		slots = append(slots, slot)
	}
	return slots, nil
}

func (c *GoogleCalendar) CreateBooking(ctx context.Context, req BookingRequest) (Confirmation, error) {
	if req.DurationMin <= 0 {
		req.DurationMin = 60
	}
	end := req.Start.Add(time.Duration(req.DurationMin) * time.Minute)

	busy, err := c.busyWindows(ctx, req.Start, end)
	if err != nil {
		return Confirmation{}, err
	}
	if overlapsAny(TimeSlot{Start: req.Start, End: end}, busy) {
		return Confirmation{}, ErrSlotUnavailable
	}

	summary := req.ServiceType
	if summary == "" {
		summary = "Booking"
	}
	event := &gcal.Event{
		Summary:     summary,
		Description: req.Purpose,
		Start:       &gcal.EventDateTime{DateTime: req.Start.Format(time.RFC3339)},
		End:         &gcal.EventDateTime{DateTime: end.Format(time.RFC3339)},
	}
	if req.Email != "" {
		event.Attendees = []*gcal.EventAttendee{{Email: req.Email}}
	}
	if _, err := c.svc.Events.Insert(c.calendarID, event).Context(ctx).Do(); err != nil {
		return Confirmation{}, fmt.Errorf("calendar: insert event: %w", err)
	}

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

func (c *GoogleCalendar) busyWindows(ctx context.Context, from, to time.Time) ([]TimeSlot, error) {
	resp, err := c.svc.Freebusy.Query(&gcal.FreeBusyRequest{
		TimeMin: from.Format(time.RFC3339),
		TimeMax: to.Format(time.RFC3339),
		Items:   []*gcal.FreeBusyRequestItem{{Id: c.calendarID}},
	}).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("calendar: freebusy query: %w", err)
	}

	var busy []TimeSlot
	if cal, ok := resp.Calendars[c.calendarID]; ok {
		for _, period := range cal.Busy {
			start, err1 := time.Parse(time.RFC3339, period.Start)
			end, err2 := time.Parse(time.RFC3339, period.End)
			if err1 != nil || err2 != nil {
				continue
			}
			busy = append(busy, TimeSlot{Start: start, End: end})
		}
	}
	return busy, nil
}

func overlapsAny(slot TimeSlot, busy []TimeSlot) bool {
	for _, b := range busy {
		if slot.Start.Before(b.End) && b.Start.Before(slot.End) {
			return true
		}
	}
	return false
}
