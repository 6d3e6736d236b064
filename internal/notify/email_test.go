package notify

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/bookwell/booking-assistant/internal/calendar"
)

func TestNewSendGridSender_NilWithoutAPIKey(t *testing.T) {
	sender := NewSendGridSender(SendGridConfig{
		APIKey:    "",
		FromEmail: "bookings@example.com",
	}, nil)

	if sender != nil {
		t.Error("expected nil sender when API key is empty")
	}
}

func TestNewSendGridSender_DefaultFromName(t *testing.T) {
	sender := NewSendGridSender(SendGridConfig{
		APIKey:    "test-key",
		FromEmail: "bookings@example.com",
	}, nil)

	if sender == nil {
		t.Fatal("expected non-nil sender")
	}
	if sender.fromName != "Booking Assistant" {
		t.Errorf("expected default from name 'Booking Assistant', got %q", sender.fromName)
	}
}

func TestSendGridSender_Send_NilClient(t *testing.T) {
	sender := &SendGridSender{}

	err := sender.Send(context.Background(), EmailMessage{
		To:      "customer@example.com",
		Subject: "Test",
		Body:    "Test body",
	})

	if err == nil {
		t.Error("expected error when client is nil")
	}
}

func TestStubEmailSender_Send(t *testing.T) {
	sender := NewStubEmailSender(nil)

	err := sender.Send(context.Background(), EmailMessage{
		To:      "customer@example.com",
		Subject: "Booking confirmed",
		Body:    "See you soon",
	})

	if err != nil {
		t.Errorf("stub sender should not return error, got: %v", err)
	}
}

func TestConfirmationEmail(t *testing.T) {
	start := time.Date(2025, 6, 9, 10, 0, 0, 0, time.UTC)
	msg := ConfirmationEmail("customer@example.com", calendar.Confirmation{
		BookingID:        "BK1749470400",
		ConfirmationCode: "CNF-20250609-0001",
		ServiceType:      "consultation",
		Start:            start,
		End:              start.Add(30 * time.Minute),
	})

	if msg.To != "customer@example.com" {
		t.Errorf("To = %q", msg.To)
	}
	if !strings.Contains(msg.Subject, "consultation") {
		t.Errorf("subject missing service: %q", msg.Subject)
	}
	for _, want := range []string{"CNF-20250609-0001", "BK1749470400", "30 minutes", "Monday, June 9"} {
		if !strings.Contains(msg.Body, want) {
			t.Errorf("body missing %q:\n%s", want, msg.Body)
		}
	}
}
