// Package conversation implements the booking dialogue: the stage machine,
// session storage, entity accumulation and the orchestration of calendar,
// cache and LLM collaborators.
package conversation

import (
	"time"

	"github.com/bookwell/booking-assistant/internal/extract"
)

// Stage is the dialogue phase a session is in.
type Stage string

const (
	StageGreeting   Stage = "greeting"
	StageCollecting Stage = "collecting_info"
	StageConfirming Stage = "confirming"
	StageCompleted  Stage = "completed"
	StageCancelled  Stage = "cancelled"
)

// Terminal reports whether no further transitions leave this stage.
func (s Stage) Terminal() bool {
	return s == StageCompleted || s == StageCancelled
}

// Message roles in session history.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatMessage is one turn of history kept on the session.
type ChatMessage struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// BookingEntities accumulates the details collected across turns. Nil means
// the field has not been provided yet.
type BookingEntities struct {
	ServiceType     *string `json:"service_type"`
	PreferredDate   *string `json:"preferred_date"` // YYYY-MM-DD
	PreferredTime   *string `json:"preferred_time"` // HH:MM, 24-hour
	DurationMinutes *int    `json:"duration_minutes"`
	Purpose         *string `json:"purpose"`
	Email           *string `json:"email"`
}

// Merge folds newly extracted entities into the accumulated set. Non-nil
// incoming values overwrite; nil never erases an earlier answer.
func (b *BookingEntities) Merge(e extract.Entities) {
	if e.ServiceType != nil {
		b.ServiceType = e.ServiceType
	}
	if e.Date != nil {
		b.PreferredDate = e.Date
	}
	if e.Time != nil {
		b.PreferredTime = e.Time
	}
	if e.DurationMin != nil {
		b.DurationMinutes = e.DurationMin
	}
	if e.Purpose != nil {
		b.Purpose = e.Purpose
	}
	if e.Email != nil {
		b.Email = e.Email
	}
}

// MissingFields returns the required fields not yet collected, in the order
// the assistant asks for them.
func (b *BookingEntities) MissingFields() []string {
	var missing []string
	if b.ServiceType == nil {
		missing = append(missing, "service_type")
	}
	if b.PreferredDate == nil {
		missing = append(missing, "preferred_date")
	}
	if b.PreferredTime == nil {
		missing = append(missing, "preferred_time")
	}
	if b.DurationMinutes == nil {
		missing = append(missing, "duration_minutes")
	}
	return missing
}

// Complete reports whether every required field has been collected.
func (b *BookingEntities) Complete() bool {
	return len(b.MissingFields()) == 0
}

// Session is one customer conversation. SlotsListed marks that the last
// assistant turn showed availability, so a bare "option 2" reply can be
// resolved against it.
type Session struct {
	ID          string          `json:"id"`
	Stage       Stage           `json:"stage"`
	Entities    BookingEntities `json:"entities"`
	History     []ChatMessage   `json:"history"`
	Booking     *BookingReceipt `json:"booking,omitempty"`
	SlotsListed bool            `json:"slots_listed,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	LastActive  time.Time       `json:"last_active"`
}

// BookingReceipt is stored on the session once the booking completes.
type BookingReceipt struct {
	BookingID        string    `json:"booking_id"`
	ConfirmationCode string    `json:"confirmation_code"`
	Start            time.Time `json:"start"`
	End              time.Time `json:"end"`
}

func (s *Session) appendMessage(role, content string, at time.Time) {
	s.History = append(s.History, ChatMessage{Role: role, Content: content, Timestamp: at})
	s.LastActive = at
}
