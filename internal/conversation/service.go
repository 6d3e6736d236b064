package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bookwell/booking-assistant/internal/cache"
	"github.com/bookwell/booking-assistant/internal/calendar"
	"github.com/bookwell/booking-assistant/internal/extract"
	"github.com/bookwell/booking-assistant/internal/llm"
	"github.com/bookwell/booking-assistant/internal/notify"
	"github.com/bookwell/booking-assistant/internal/observability/metrics"
	"github.com/bookwell/booking-assistant/pkg/logging"
)

// ErrSessionNotFound is returned by reads of unknown or expired session
// IDs. HandleMessage never returns it; an unknown ID restarts the dialogue.
var ErrSessionNotFound = errors.New("conversation: session not found")

// TurnResponse is the outcome of one user message.
type TurnResponse struct {
	SessionID   string          `json:"session_id"`
	Stage       Stage           `json:"stage"`
	Reply       string          `json:"reply"`
	Suggestions []string        `json:"suggestions"`
	Entities    BookingEntities `json:"entities"`
	Booking     *BookingReceipt `json:"booking,omitempty"`
	// FromCache means the message analysis was served from the cache
	// instead of re-running extraction. The stage machine runs either way.
	FromCache bool `json:"-"`
}

// ServiceConfig tunes the conversation service.
type ServiceConfig struct {
	ExtractTimeout  time.Duration
	ExtractWorkers  int
	DefaultDuration int
	Location        *time.Location
}

// Service wires the stage machine to its collaborators: session storage,
// the analysis cache, the LLM provider, the calendar and notifications.
type Service struct {
	store        SessionStore
	extractCache *cache.Cache
	provider     llm.Provider
	cal          calendar.Calendar
	emailer      notify.EmailSender
	transcripts  *TranscriptStore
	metrics      *metrics.ConversationMetrics
	logger       *logging.Logger

	extractTimeout  time.Duration
	extractSem      chan struct{}
	defaultDuration int
	loc             *time.Location
	now             func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewService(
	store SessionStore,
	extractCache *cache.Cache,
	provider llm.Provider,
	cal calendar.Calendar,
	emailer notify.EmailSender,
	transcripts *TranscriptStore,
	m *metrics.ConversationMetrics,
	logger *logging.Logger,
	cfg ServiceConfig,
) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.ExtractTimeout <= 0 {
		cfg.ExtractTimeout = 2 * time.Second
	}
	if cfg.ExtractWorkers <= 0 {
		cfg.ExtractWorkers = 4
	}
	if cfg.DefaultDuration <= 0 {
		cfg.DefaultDuration = 60
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &Service{
		store:           store,
		extractCache:    extractCache,
		provider:        provider,
		cal:             cal,
		emailer:         emailer,
		transcripts:     transcripts,
		metrics:         m,
		logger:          logger,
		extractTimeout:  cfg.ExtractTimeout,
		extractSem:      make(chan struct{}, cfg.ExtractWorkers),
		defaultDuration: cfg.DefaultDuration,
		loc:             cfg.Location,
		now:             time.Now,
		locks:           make(map[string]*sync.Mutex),
	}
}

// WithClock pins time for tests and returns the receiver.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// StartSession creates a fresh greeting-stage session.
func (s *Service) StartSession(ctx context.Context) (*TurnResponse, error) {
	now := s.now()
	session := &Session{
		ID:         uuid.NewString(),
		Stage:      StageGreeting,
		CreatedAt:  now,
		LastActive: now,
	}
	reply := "Hello! I can help you book an appointment. What would you like to schedule?"
	session.appendMessage(RoleAssistant, reply, now)

	if err := s.store.Save(ctx, session); err != nil {
		return nil, fmt.Errorf("conversation: save new session: %w", err)
	}
	s.recordTranscript(ctx, session.ID, RoleAssistant, reply, now)

	return &TurnResponse{
		SessionID:   session.ID,
		Stage:       session.Stage,
		Reply:       reply,
		Suggestions: Suggestions(session),
	}, nil
}

// HandleMessage processes one user message through the full pipeline:
// entity extraction (cached per message text), the stage machine and the
// calendar.
func (s *Service) HandleMessage(ctx context.Context, sessionID, text string) (*TurnResponse, error) {
	started := s.now()

	lock := s.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	session, err := s.store.Load(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("conversation: load session: %w", err)
	}
	if session == nil {
		// An unknown or expired ID starts over rather than failing the turn.
		session = &Session{
			ID:         sessionID,
			Stage:      StageGreeting,
			CreatedAt:  s.now(),
			LastActive: s.now(),
		}
	}

	startStage := session.Stage
	now := s.now()
	session.appendMessage(RoleUser, text, now)
	s.recordTranscript(ctx, sessionID, RoleUser, text, now)

	res, fromCache := s.cachedAnalysis(ctx, text, now)
	s.slotChoice(ctx, session, &res, text, now)
	out := Step(session, res, now)

	reply := out.Reply
	switch {
	case out.PlaceBooking:
		reply = s.placeBooking(ctx, session)
	case startStage == StageGreeting && session.Stage == StageGreeting && res.Intent == extract.IntentUnknown:
		reply = s.chitchat(ctx, session, text, reply)
	}

	if out.ListSlots {
		reply += "\n" + s.slotListing(ctx, session, now)
	}
	session.SlotsListed = out.ListSlots

	session.appendMessage(RoleAssistant, reply, s.now())
	if err := s.store.Save(ctx, session); err != nil {
		return nil, fmt.Errorf("conversation: save session: %w", err)
	}
	s.recordTranscript(ctx, sessionID, RoleAssistant, reply, s.now())
	if s.transcripts != nil && session.Stage != startStage {
		if err := s.transcripts.UpdateStage(ctx, sessionID, session.Stage); err != nil {
			s.logger.Warn("transcript stage update failed", "error", err, "session_id", sessionID)
		}
	}

	s.observeTurn(startStage, res.Intent, started)

	return &TurnResponse{
		SessionID:   sessionID,
		Stage:       session.Stage,
		Reply:       reply,
		Suggestions: Suggestions(session),
		Entities:    session.Entities,
		Booking:     session.Booking,
		FromCache:   fromCache,
	}, nil
}

// cachedAnalysis serves the extraction result for a message from the cache
// when an identical message was analyzed recently, saving the provider
// call. The stage machine always runs on the result, so a hit never skips
// the entity merge.
func (s *Service) cachedAnalysis(ctx context.Context, text string, now time.Time) (extract.Result, bool) {
	if s.extractCache == nil {
		return s.analyze(ctx, text, now), false
	}
	key := cache.Key(text)
	if raw, ok := s.extractCache.Get(key); ok {
		var res extract.Result
		if err := json.Unmarshal([]byte(raw), &res); err == nil {
			return res, true
		}
	}
	res := s.analyze(ctx, text, now)
	if b, err := json.Marshal(res); err == nil {
		s.extractCache.Set(key, string(b))
	}
	return res, false
}

// GetSession returns the live session, or ErrSessionNotFound.
func (s *Service) GetSession(ctx context.Context, sessionID string) (*Session, error) {
	session, err := s.store.Load(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("conversation: load session: %w", err)
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}
	return session, nil
}

// ListSessions returns every live session.
func (s *Service) ListSessions(ctx context.Context) ([]*Session, error) {
	return s.store.List(ctx)
}

// CleanupExpired evicts expired sessions, sweeps the analysis cache and
// drops per-session locks that no longer have a session behind them.
func (s *Service) CleanupExpired(ctx context.Context) (int, error) {
	removed, err := s.store.CleanupExpired(ctx)
	if s.extractCache != nil {
		s.extractCache.Sweep()
	}
	s.pruneLocks(ctx)
	return removed, err
}

func (s *Service) pruneLocks(ctx context.Context) {
	sessions, err := s.store.List(ctx)
	if err != nil {
		return
	}
	live := make(map[string]struct{}, len(sessions))
	for _, sess := range sessions {
		live[sess.ID] = struct{}{}
	}
	s.mu.Lock()
	for id := range s.locks {
		if _, ok := live[id]; !ok {
			delete(s.locks, id)
		}
	}
	s.mu.Unlock()
}

// AvailableSlots lists open windows for the given date.
func (s *Service) AvailableSlots(ctx context.Context, date time.Time, durationMin int) ([]calendar.TimeSlot, error) {
	if durationMin <= 0 {
		durationMin = s.defaultDuration
	}
	return s.cal.AvailableSlots(ctx, date, durationMin)
}

// CacheStats exposes analysis cache counters for the admin surface.
func (s *Service) CacheStats() cache.Stats {
	if s.extractCache == nil {
		return cache.Stats{}
	}
	return s.extractCache.Stats()
}

// analyze runs heuristic extraction immediately and gives the LLM provider
// a bounded window to do better. The semaphore caps concurrent provider
// calls; on timeout or error the heuristic result stands.
func (s *Service) analyze(ctx context.Context, text string, now time.Time) extract.Result {
	heuristic := extract.Extract(text, now)
	if s.provider == nil {
		return heuristic
	}

	select {
	case s.extractSem <- struct{}{}:
	default:
		// All workers busy, heuristics are good enough.
		return heuristic
	}

	type extraction struct {
		res extract.Result
		err error
	}
	ch := make(chan extraction, 1)
	go func() {
		defer func() { <-s.extractSem }()
		callCtx, cancel := context.WithTimeout(context.Background(), s.extractTimeout)
		defer cancel()
		res, err := s.provider.ExtractEntities(callCtx, text)
		ch <- extraction{res, err}
	}()

	select {
	case got := <-ch:
		if got.err != nil {
			s.logger.Warn("provider extraction failed, using heuristics", "error", got.err)
			return heuristic
		}
		return mergeResults(heuristic, got.res)
	case <-time.After(s.extractTimeout):
		s.metrics.ExtractTimeout()
		return heuristic
	case <-ctx.Done():
		return heuristic
	}
}

// mergeResults prefers provider entities but keeps heuristic values the
// provider missed, and trusts heuristics for the confirm/reject flags.
func mergeResults(heuristic, provider extract.Result) extract.Result {
	out := provider
	if out.Entities.ServiceType == nil {
		out.Entities.ServiceType = heuristic.Entities.ServiceType
	}
	if out.Entities.Date == nil {
		out.Entities.Date = heuristic.Entities.Date
	}
	if out.Entities.Time == nil {
		out.Entities.Time = heuristic.Entities.Time
	}
	if out.Entities.DurationMin == nil {
		out.Entities.DurationMin = heuristic.Entities.DurationMin
	}
	if out.Entities.Purpose == nil {
		out.Entities.Purpose = heuristic.Entities.Purpose
	}
	if out.Entities.Email == nil {
		out.Entities.Email = heuristic.Entities.Email
	}
	if out.Intent == "" || out.Intent == extract.IntentUnknown {
		out.Intent = heuristic.Intent
	}
	out.Confirmed = heuristic.Confirmed
	out.Rejected = heuristic.Rejected
	return out
}

func (s *Service) placeBooking(ctx context.Context, session *Session) string {
	start, err := session.Entities.StartTime(s.loc)
	if err != nil {
		s.metrics.ObserveBooking("invalid")
		session.Stage = StageCollecting
		return "I'm missing the date or time. When would you like to book?"
	}

	duration := s.defaultDuration
	if session.Entities.DurationMinutes != nil {
		duration = *session.Entities.DurationMinutes
	}
	req := calendar.BookingRequest{
		Start:       start,
		DurationMin: duration,
	}
	if session.Entities.ServiceType != nil {
		req.ServiceType = *session.Entities.ServiceType
	}
	if session.Entities.Purpose != nil {
		req.Purpose = *session.Entities.Purpose
	}
	if session.Entities.Email != nil {
		req.Email = *session.Entities.Email
	}

	conf, err := s.cal.CreateBooking(ctx, req)
	if err != nil {
		s.metrics.ObserveBooking("failed")
		s.logger.Warn("booking failed", "error", err, "session_id", session.ID)
		out := BookingFailed(session)
		return out.Reply + "\n" + s.slotListing(ctx, session, s.now())
	}

	s.metrics.ObserveBooking("completed")
	out := CompleteBooking(session, BookingReceipt{
		BookingID:        conf.BookingID,
		ConfirmationCode: conf.ConfirmationCode,
		Start:            conf.Start,
		End:              conf.End,
	})
	s.sendConfirmation(session, conf)
	return out.Reply
}

// sendConfirmation emails the receipt when the customer shared an address.
// Failures are logged, never surfaced to the conversation.
func (s *Service) sendConfirmation(session *Session, conf calendar.Confirmation) {
	if s.emailer == nil || session.Entities.Email == nil {
		return
	}
	to := *session.Entities.Email
	msg := notify.ConfirmationEmail(to, conf)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.emailer.Send(ctx, msg); err != nil {
			s.logger.Warn("confirmation email failed", "error", err, "to", to)
		}
	}()
}

// chitchat asks the provider for a friendlier greeting reply, keeping the
// template on any failure.
func (s *Service) chitchat(ctx context.Context, session *Session, text, fallback string) string {
	if s.provider == nil {
		return fallback
	}
	callCtx, cancel := context.WithTimeout(ctx, s.extractTimeout)
	defer cancel()
	reply, err := s.provider.Generate(callCtx, text, "stage: "+string(session.Stage))
	if err != nil || reply == "" {
		return fallback
	}
	return reply
}

// slotChoice resolves a pick like "option 2" against the availability the
// assistant listed last turn, filling the date and time entities.
func (s *Service) slotChoice(ctx context.Context, session *Session, res *extract.Result, text string, now time.Time) {
	if !session.SlotsListed || res.Entities.Time != nil {
		return
	}
	idx := extract.ExtractSlotIndex(text)
	if idx == 0 {
		return
	}
	date, duration := s.slotQuery(session, now)
	slots, err := s.cal.AvailableSlots(ctx, date, duration)
	if err != nil || len(slots) == 0 {
		return
	}
	if idx == -1 {
		idx = len(slots)
	}
	if idx > len(slots) {
		return
	}
	chosen := slots[idx-1].Start
	t := chosen.Format("15:04")
	d := chosen.Format("2006-01-02")
	res.Entities.Time = &t
	res.Entities.Date = &d
}

// slotQuery picks the date and duration availability is computed for: the
// collected preferences when present, otherwise tomorrow at the default
// duration.
func (s *Service) slotQuery(session *Session, now time.Time) (time.Time, int) {
	date := now.AddDate(0, 0, 1)
	if session.Entities.PreferredDate != nil {
		if d, err := time.ParseInLocation("2006-01-02", *session.Entities.PreferredDate, s.loc); err == nil {
			date = d
		}
	}
	duration := s.defaultDuration
	if session.Entities.DurationMinutes != nil {
		duration = *session.Entities.DurationMinutes
	}
	return date, duration
}

func (s *Service) slotListing(ctx context.Context, session *Session, now time.Time) string {
	date, duration := s.slotQuery(session, now)
	slots, err := s.cal.AvailableSlots(ctx, date, duration)
	if err != nil {
		s.logger.Warn("slot listing failed", "error", err)
		return "I couldn't check the calendar just now. Want to try again in a moment?"
	}
	return FormatSlots(slots)
}

func (s *Service) recordTranscript(ctx context.Context, sessionID, role, content string, at time.Time) {
	if s.transcripts == nil {
		return
	}
	msg := ChatMessage{Role: role, Content: content, Timestamp: at}
	if err := s.transcripts.AppendMessage(ctx, sessionID, msg); err != nil {
		s.logger.Warn("transcript append failed", "error", err, "session_id", sessionID)
	}
}

func (s *Service) observeTurn(stage Stage, intent string, started time.Time) {
	s.metrics.ObserveTurn(string(stage), intent, s.now().Sub(started).Seconds())
}

func (s *Service) sessionLock(id string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l, ok := s.locks[id]; ok {
		return l
	}
	l := &sync.Mutex{}
	s.locks[id] = l
	return l
}
