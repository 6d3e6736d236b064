package llm

import (
	"context"
	"time"

	"github.com/bookwell/booking-assistant/internal/extract"
)

// MockProvider answers deterministically without any network calls. It is
// the default provider for development and the terminal fallback in
// production.
type MockProvider struct {
	now func() time.Time
}

func NewMockProvider() *MockProvider {
	return &MockProvider{now: time.Now}
}

// NewMockProviderAt pins the clock, so relative dates in tests resolve
// predictably.
func NewMockProviderAt(now func() time.Time) *MockProvider {
	return &MockProvider{now: now}
}

func (p *MockProvider) Generate(ctx context.Context, prompt, contextInfo string) (string, error) {
	switch extract.DetectIntent(prompt) {
	case extract.IntentBooking:
		return "I'd be happy to help you book that. Could you share the details?", nil
	case extract.IntentInquiry:
		return "Let me check the calendar for you.", nil
	case extract.IntentCancellation:
		return "No problem, I can cancel or reschedule that for you.", nil
	default:
		return "Hello! I can help you book an appointment. What would you like to schedule?", nil
	}
}

func (p *MockProvider) ExtractEntities(ctx context.Context, text string) (extract.Result, error) {
	return extract.Extract(text, p.now()), nil
}
