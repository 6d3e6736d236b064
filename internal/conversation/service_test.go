package conversation

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bookwell/booking-assistant/internal/cache"
	"github.com/bookwell/booking-assistant/internal/calendar"
	"github.com/bookwell/booking-assistant/internal/llm"
)

type countingCalendar struct {
	mu      sync.Mutex
	creates int
	fail    bool
}

func (c *countingCalendar) AvailableSlots(ctx context.Context, date time.Time, durationMin int) ([]calendar.TimeSlot, error) {
	start := time.Date(date.Year(), date.Month(), date.Day(), 10, 0, 0, 0, date.Location())
	return []calendar.TimeSlot{{Start: start, End: start.Add(time.Duration(durationMin) * time.Minute)}}, nil
}

func (c *countingCalendar) CreateBooking(ctx context.Context, req calendar.BookingRequest) (calendar.Confirmation, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.creates++
	if c.fail {
		return calendar.Confirmation{}, calendar.ErrSlotUnavailable
	}
	return calendar.Confirmation{
		BookingID:        "BK1749470400",
		ConfirmationCode: "CNF-20250609-0001",
		ServiceType:      req.ServiceType,
		Start:            req.Start,
		End:              req.Start.Add(time.Duration(req.DurationMin) * time.Minute),
	}, nil
}

func newTestService(cal calendar.Calendar) *Service {
	clock := func() time.Time { return anchor }
	store := NewMemoryStore(time.Hour).WithClock(clock)
	provider := llm.NewMockProviderAt(clock)
	return NewService(
		store,
		cache.New(),
		provider,
		cal,
		nil, // email
		nil, // transcripts
		nil, // metrics
		nil, // logger
		ServiceConfig{DefaultDuration: 60},
	).WithClock(clock)
}

func startSession(t *testing.T, svc *Service) string {
	t.Helper()
	resp, err := svc.StartSession(context.Background())
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	if resp.Stage != StageGreeting {
		t.Fatalf("new session stage = %s", resp.Stage)
	}
	if len(resp.Suggestions) == 0 || len(resp.Suggestions) > 3 {
		t.Fatalf("suggestions = %v, want 1..3", resp.Suggestions)
	}
	return resp.SessionID
}

func TestFullBookingFlow(t *testing.T) {
	cal := &countingCalendar{}
	svc := newTestService(cal)
	ctx := context.Background()
	id := startSession(t, svc)

	resp, err := svc.HandleMessage(ctx, id, "book a meeting next monday at 10 am for 30 minutes")
	if err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	if resp.Stage != StageConfirming {
		t.Fatalf("stage = %s, want confirming", resp.Stage)
	}
	if resp.Entities.PreferredDate == nil || *resp.Entities.PreferredDate != "2025-06-09" {
		t.Errorf("date = %v", resp.Entities.PreferredDate)
	}

	resp, err = svc.HandleMessage(ctx, id, "yes")
	if err != nil {
		t.Fatalf("HandleMessage(yes): %v", err)
	}
	if resp.Stage != StageCompleted {
		t.Fatalf("stage = %s, want completed", resp.Stage)
	}
	if cal.creates != 1 {
		t.Errorf("CreateBooking called %d times, want exactly 1", cal.creates)
	}
	if resp.Booking == nil || resp.Booking.ConfirmationCode != "CNF-20250609-0001" {
		t.Errorf("booking = %+v", resp.Booking)
	}
	if !strings.Contains(resp.Reply, "CNF-20250609-0001") {
		t.Errorf("reply missing confirmation code: %q", resp.Reply)
	}
}

func TestBookingFailureStaysInConfirming(t *testing.T) {
	cal := &countingCalendar{fail: true}
	svc := newTestService(cal)
	ctx := context.Background()
	id := startSession(t, svc)

	if _, err := svc.HandleMessage(ctx, id, "book a meeting next monday at 10 am for 30 minutes"); err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	resp, err := svc.HandleMessage(ctx, id, "yes")
	if err != nil {
		t.Fatalf("HandleMessage(yes): %v", err)
	}
	if resp.Stage != StageConfirming {
		t.Fatalf("stage = %s, want confirming after calendar conflict", resp.Stage)
	}
	if resp.Booking != nil {
		t.Error("no receipt expected on failure")
	}
	if !strings.Contains(resp.Reply, "unavailable") {
		t.Errorf("reply = %q", resp.Reply)
	}

	// The user can confirm again once the slot changes.
	cal.fail = false
	if _, err := svc.HandleMessage(ctx, id, "make it 11 am"); err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	resp, err = svc.HandleMessage(ctx, id, "yes")
	if err != nil {
		t.Fatalf("HandleMessage(yes): %v", err)
	}
	if resp.Stage != StageCompleted {
		t.Errorf("stage = %s, want completed on retry", resp.Stage)
	}
}

func TestCancellationEndsSession(t *testing.T) {
	svc := newTestService(&countingCalendar{})
	ctx := context.Background()
	id := startSession(t, svc)

	if _, err := svc.HandleMessage(ctx, id, "book a consultation"); err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	resp, err := svc.HandleMessage(ctx, id, "actually, cancel that")
	if err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	if resp.Stage != StageCancelled {
		t.Errorf("stage = %s, want cancelled", resp.Stage)
	}
}

func TestRepeatedMessageHitsCache(t *testing.T) {
	svc := newTestService(&countingCalendar{})
	ctx := context.Background()
	id := startSession(t, svc)

	first, err := svc.HandleMessage(ctx, id, "what slots are open tomorrow?")
	if err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	if first.FromCache {
		t.Fatal("first lookup cannot be a hit")
	}
	second, err := svc.HandleMessage(ctx, id, "what slots are open tomorrow?")
	if err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	if !second.FromCache {
		t.Fatal("repeated identical message should hit the analysis cache")
	}
	if second.Reply != first.Reply {
		t.Errorf("cached reply differs:\n%q\n%q", second.Reply, first.Reply)
	}

	stats := svc.CacheStats()
	if stats.Hits != 1 {
		t.Errorf("cache hits = %d, want 1", stats.Hits)
	}
}

func TestCachedAnalysisStillMergesEntities(t *testing.T) {
	svc := newTestService(&countingCalendar{})
	ctx := context.Background()

	// First session seeds the analysis cache with "at 3 pm".
	a := startSession(t, svc)
	if _, err := svc.HandleMessage(ctx, a, "book a consultation"); err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	if _, err := svc.HandleMessage(ctx, a, "at 3 pm"); err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}

	// A second session at a different point in its dialogue sends the same
	// text. The cached analysis must merge into this session's entities and
	// advance its own machine, not replay the first session's reply.
	b := startSession(t, svc)
	if _, err := svc.HandleMessage(ctx, b, "book a consultation tomorrow"); err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	resp, err := svc.HandleMessage(ctx, b, "at 3 pm")
	if err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	if !resp.FromCache {
		t.Fatal("second session's identical message should reuse the cached analysis")
	}
	if resp.Entities.PreferredTime == nil || *resp.Entities.PreferredTime != "15:00" {
		t.Errorf("time = %v, want 15:00 merged from the cached analysis", resp.Entities.PreferredTime)
	}
	if resp.Entities.PreferredDate == nil || *resp.Entities.PreferredDate != "2025-06-05" {
		t.Errorf("date = %v, want this session's own date kept", resp.Entities.PreferredDate)
	}
	if !strings.Contains(resp.Reply, "long") {
		t.Errorf("reply = %q, want the duration prompt for this session", resp.Reply)
	}
}

func TestSlotChoicePicksListedSlot(t *testing.T) {
	svc := newTestService(&countingCalendar{})
	ctx := context.Background()
	id := startSession(t, svc)

	if _, err := svc.HandleMessage(ctx, id, "what slots are open tomorrow?"); err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	resp, err := svc.HandleMessage(ctx, id, "option 1")
	if err != nil {
		t.Fatalf("HandleMessage(option 1): %v", err)
	}
	if resp.Entities.PreferredTime == nil || *resp.Entities.PreferredTime != "10:00" {
		t.Errorf("time = %v, want the listed slot's start", resp.Entities.PreferredTime)
	}
	if resp.Entities.PreferredDate == nil || *resp.Entities.PreferredDate != "2025-06-05" {
		t.Errorf("date = %v, want tomorrow", resp.Entities.PreferredDate)
	}
	if resp.Stage != StageCollecting {
		t.Errorf("stage = %s, want collecting", resp.Stage)
	}
}

func TestSlotChoiceOrdinalWords(t *testing.T) {
	svc := newTestService(&countingCalendar{})
	ctx := context.Background()
	id := startSession(t, svc)

	if _, err := svc.HandleMessage(ctx, id, "what slots are open tomorrow?"); err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	resp, err := svc.HandleMessage(ctx, id, "the last one")
	if err != nil {
		t.Fatalf("HandleMessage(the last one): %v", err)
	}
	if resp.Entities.PreferredTime == nil || *resp.Entities.PreferredTime != "10:00" {
		t.Errorf("time = %v, want the final listed slot's start", resp.Entities.PreferredTime)
	}
}

func TestUnknownSessionStartsFresh(t *testing.T) {
	svc := newTestService(&countingCalendar{})
	ctx := context.Background()

	resp, err := svc.HandleMessage(ctx, "does-not-exist", "book a meeting")
	if err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	if resp.Stage != StageCollecting {
		t.Errorf("stage = %s, want %s", resp.Stage, StageCollecting)
	}
	if _, err := svc.GetSession(ctx, "does-not-exist"); err != nil {
		t.Errorf("session should now exist, err = %v", err)
	}
}

func TestSessionHistoryRecorded(t *testing.T) {
	svc := newTestService(&countingCalendar{})
	ctx := context.Background()
	id := startSession(t, svc)

	if _, err := svc.HandleMessage(ctx, id, "book a consultation"); err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	session, err := svc.GetSession(ctx, id)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	// Greeting + user turn + assistant turn.
	if len(session.History) != 3 {
		t.Fatalf("history length = %d, want 3", len(session.History))
	}
	if session.History[1].Role != RoleUser || session.History[2].Role != RoleAssistant {
		t.Errorf("unexpected roles: %+v", session.History)
	}
}

func TestCleanupExpired(t *testing.T) {
	current := anchor
	clock := func() time.Time { return current }
	store := NewMemoryStore(time.Hour).WithClock(clock)
	svc := NewService(store, cache.New(), llm.NewMockProviderAt(clock), &countingCalendar{},
		nil, nil, nil, nil, ServiceConfig{}).WithClock(clock)

	id := startSession(t, svc)
	if _, err := svc.HandleMessage(context.Background(), id, "book a consultation"); err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	current = current.Add(2 * time.Hour)

	removed, err := svc.CleanupExpired(context.Background())
	if err != nil {
		t.Fatalf("CleanupExpired: %v", err)
	}
	if removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}
	if _, err := svc.GetSession(context.Background(), id); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("expired session should be gone, err = %v", err)
	}
	svc.mu.Lock()
	locks := len(svc.locks)
	svc.mu.Unlock()
	if locks != 0 {
		t.Errorf("session locks left = %d, want 0 after cleanup", locks)
	}
}
