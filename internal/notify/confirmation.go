package notify

import (
	"fmt"
	"time"

	"github.com/bookwell/booking-assistant/internal/calendar"
)

// ConfirmationEmail builds the message sent after a booking completes.
func ConfirmationEmail(to string, conf calendar.Confirmation) EmailMessage {
	service := conf.ServiceType
	if service == "" {
		service = "appointment"
	}
	body := fmt.Sprintf(
		"Your %s is booked.\n\nWhen: %s\nDuration: %d minutes\nConfirmation code: %s\nBooking reference: %s\n\nReply to this email if you need to make changes.",
		service,
		conf.Start.Format("Monday, January 2 2006 at 3:04 PM"),
		int(conf.End.Sub(conf.Start)/time.Minute),
		conf.ConfirmationCode,
		conf.BookingID,
	)
	return EmailMessage{
		To:      to,
		Subject: fmt.Sprintf("Booking confirmed: %s on %s", service, conf.Start.Format("Jan 2")),
		Body:    body,
	}
}
