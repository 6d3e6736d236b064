package conversation

import (
	"fmt"
	"time"

	"github.com/bookwell/booking-assistant/internal/extract"
)

// StepResult tells the service what the machine decided for one turn.
// When PlaceBooking is set the caller runs the booking and then finishes
// the turn with CompleteBooking or BookingFailed. When ListSlots is set
// the caller appends formatted availability to the reply.
type StepResult struct {
	Reply        string
	PlaceBooking bool
	ListSlots    bool
}

var fieldPrompts = []struct {
	field  string
	prompt string
}{
	{"service_type", "What type of service would you like to book?"},
	{"preferred_date", "What day works best for you?"},
	{"preferred_time", "What time would you like?"},
	{"duration_minutes", "How long should I book it for?"},
}

// Step advances the session one turn based on the analyzed message. It
// mutates the session's stage and entities; the reply does not include the
// user or assistant history entries, which the service records.
func Step(s *Session, res extract.Result, now time.Time) StepResult {
	// Cancellation wins from any live stage.
	if res.Intent == extract.IntentCancellation && !s.Stage.Terminal() {
		s.Stage = StageCancelled
		return StepResult{Reply: "No problem, I've cancelled this booking request. Message me any time to start a new one."}
	}

	// A finished conversation restarts on a new booking ask.
	if s.Stage.Terminal() {
		if res.Intent == extract.IntentBooking {
			s.Entities = BookingEntities{}
			s.Booking = nil
			s.Stage = StageCollecting
			return stepCollecting(s, res, now)
		}
		return StepResult{Reply: "This conversation has ended. Say something like \"book a meeting\" to start a new booking."}
	}

	switch s.Stage {
	case StageGreeting:
		return stepGreeting(s, res, now)
	case StageCollecting:
		return stepCollecting(s, res, now)
	case StageConfirming:
		return stepConfirming(s, res, now)
	default:
		s.Stage = StageGreeting
		return stepGreeting(s, res, now)
	}
}

func stepGreeting(s *Session, res extract.Result, now time.Time) StepResult {
	if res.Intent == extract.IntentInquiry {
		return StepResult{Reply: "Here's what's open:", ListSlots: true}
	}
	if res.Intent == extract.IntentBooking || hasAnyEntity(res.Entities) {
		s.Stage = StageCollecting
		return stepCollecting(s, res, now)
	}
	return StepResult{Reply: "Hello! I can help you book an appointment. What would you like to schedule?"}
}

func stepCollecting(s *Session, res extract.Result, now time.Time) StepResult {
	s.Entities.Merge(res.Entities)

	if err := ValidateEntities(&s.Entities, now); err != nil {
		clearInvalid(&s.Entities, now)
		return StepResult{Reply: fmt.Sprintf("Hmm, %s. Could you give me that again?", err)}
	}

	if res.Intent == extract.IntentInquiry {
		return StepResult{Reply: "Here's what's open:", ListSlots: true}
	}

	if s.Entities.Complete() {
		s.Stage = StageConfirming
		return StepResult{Reply: Summary(&s.Entities) + "\n\nShall I book it?"}
	}

	missing := s.Entities.MissingFields()
	for _, fp := range fieldPrompts {
		if fp.field == missing[0] {
			return StepResult{Reply: fp.prompt}
		}
	}
	return StepResult{Reply: "Could you tell me a bit more about what you'd like to book?"}
}

func stepConfirming(s *Session, res extract.Result, now time.Time) StepResult {
	if res.Confirmed {
		return StepResult{PlaceBooking: true}
	}
	// New details while confirming update the summary, even when the message
	// also pushes back ("no, make it 3 pm").
	if hasAnyEntity(res.Entities) {
		s.Entities.Merge(res.Entities)
		if err := ValidateEntities(&s.Entities, now); err != nil {
			clearInvalid(&s.Entities, now)
			s.Stage = StageCollecting
			return StepResult{Reply: fmt.Sprintf("Hmm, %s. Could you give me that again?", err)}
		}
		return StepResult{Reply: Summary(&s.Entities) + "\n\nShall I book it?"}
	}
	if res.Rejected {
		s.Stage = StageCollecting
		return StepResult{Reply: "Okay, what would you like to change?"}
	}
	return StepResult{Reply: "Just say \"yes\" to confirm, or tell me what to change."}
}

// CompleteBooking finalizes the session after the calendar accepted the
// booking.
func CompleteBooking(s *Session, receipt BookingReceipt) StepResult {
	s.Stage = StageCompleted
	s.Booking = &receipt
	return StepResult{Reply: fmt.Sprintf(
		"You're all set! Your booking is confirmed for %s.\nConfirmation code: %s (reference %s).",
		receipt.Start.Format("Monday, January 2 at 3:04 PM"),
		receipt.ConfirmationCode, receipt.BookingID,
	)}
}

// BookingFailed keeps the session in confirming so the user can pick
// another slot.
func BookingFailed(s *Session) StepResult {
	s.Stage = StageConfirming
	return StepResult{Reply: "That slot just became unavailable. Would you like to pick a different time?", ListSlots: true}
}

func hasAnyEntity(e extract.Entities) bool {
	return e.ServiceType != nil || e.Date != nil || e.Time != nil ||
		e.DurationMin != nil || e.Purpose != nil || e.Email != nil
}

// clearInvalid drops whichever field failed validation so the next answer
// can fill it cleanly.
func clearInvalid(b *BookingEntities, now time.Time) {
	if b.DurationMinutes != nil && (*b.DurationMinutes <= 0 || *b.DurationMinutes > 8*60) {
		b.DurationMinutes = nil
	}
	if b.PreferredDate != nil {
		d, err := time.ParseInLocation("2006-01-02", *b.PreferredDate, now.Location())
		today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
		if err != nil || d.Before(today) {
			b.PreferredDate = nil
		}
	}
	if b.PreferredTime != nil {
		if _, err := time.Parse("15:04", *b.PreferredTime); err != nil {
			b.PreferredTime = nil
		}
	}
}
