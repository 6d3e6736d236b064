// Package llm abstracts the language-model providers used for response
// generation and entity extraction. Every provider implements the same
// interface so the conversation service can swap them by configuration.
package llm

import (
	"context"
	"errors"
	"strings"

	"github.com/bookwell/booking-assistant/internal/extract"
)

// ErrProviderUnavailable signals that the provider could not serve the
// request (network failure, auth, quota). Callers fall back to heuristics.
var ErrProviderUnavailable = errors.New("llm: provider unavailable")

// Provider generates assistant replies and extracts booking entities.
type Provider interface {
	// Generate returns a reply to prompt. contextInfo carries conversation
	// state the model should respect (stage, known entities).
	Generate(ctx context.Context, prompt, contextInfo string) (string, error)

	// ExtractEntities analyzes one user message and returns structured
	// entities plus the detected intent.
	ExtractEntities(ctx context.Context, text string) (extract.Result, error)
}

const extractionSystemPrompt = `You extract booking details from a single user message.
Respond with ONLY a JSON object, no prose, in this shape:
{"intent":"booking|cancellation|inquiry|confirmation|rejection|unknown",
 "confirmed":false,"rejected":false,
 "entities":{"service_type":null,"date":"YYYY-MM-DD or null","time":"HH:MM or null",
  "duration_minutes":null,"purpose":null,"email":null}}
Use null for anything the message does not state.`

const assistantSystemPrompt = `You are a friendly booking assistant. Keep replies short,
ask for at most one missing detail at a time, and never invent availability.`

// cleanJSON strips markdown code fences models often wrap around JSON.
func cleanJSON(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		if i := strings.LastIndex(s, "```"); i >= 0 {
			s = s[:i]
		}
	}
	return strings.TrimSpace(s)
}
