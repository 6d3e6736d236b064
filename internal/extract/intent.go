package extract

import "strings"

// Intent labels returned by DetectIntent.
const (
	IntentBooking      = "booking"
	IntentCancellation = "cancellation"
	IntentInquiry      = "inquiry"
	IntentConfirmation = "confirmation"
	IntentRejection    = "rejection"
	IntentUnknown      = "unknown"
)

// Cancellation triggers are explicit abandon words only. Modification
// wording ("change", "reschedule") counts as rejection, so a confirming
// session returns to collecting instead of terminating.
var intentKeywords = map[string][]string{
	IntentBooking:      {"book", "schedule", "appointment", "meeting", "reserve", "set up"},
	IntentCancellation: {"cancel", "never mind", "forget it"},
	IntentInquiry:      {"when", "what time", "available", "free", "open", "what slots"},
	IntentConfirmation: {"yes", "confirm", "okay", "sure", "proceed", "that works", "perfect"},
	IntentRejection:    {"no", "not", "don't", "different", "another", "else", "change", "reschedule", "postpone"},
}

// Multi-word phrases are stronger signals than single keywords.
var strongPhrases = map[string][]string{
	IntentBooking:      {"set up", "book a", "schedule a"},
	IntentInquiry:      {"what time", "what slots"},
	IntentConfirmation: {"that works"},
}

// DetectIntent scores keyword matches per intent and returns the winner.
// An explicit cancel word alongside a booking word reads as cancellation
// ("cancel my appointment"); a booking word alone wins even when generic
// rejection words also appear.
func DetectIntent(text string) string {
	lower := strings.ToLower(text)

	hasCancel := containsAny(lower, intentKeywords[IntentCancellation])
	hasBook := containsAny(lower, intentKeywords[IntentBooking])
	if hasCancel {
		return IntentCancellation
	}
	if hasBook {
		return IntentBooking
	}

	scores := make(map[string]int, len(intentKeywords))
	for intent, words := range intentKeywords {
		for _, w := range words {
			if containsWord(lower, w) {
				scores[intent]++
			}
		}
		for _, p := range strongPhrases[intent] {
			if containsWord(lower, p) {
				scores[intent] += 2
			}
		}
	}

	best, bestScore := IntentUnknown, 0
	// Deterministic tie-break: check intents in a fixed priority order.
	for _, intent := range []string{IntentBooking, IntentCancellation, IntentInquiry, IntentConfirmation, IntentRejection} {
		if scores[intent] > bestScore {
			best, bestScore = intent, scores[intent]
		}
	}
	return best
}

func isConfirmation(lower string) bool {
	if isRejection(lower) {
		return false
	}
	return containsAny(lower, intentKeywords[IntentConfirmation])
}

func isRejection(lower string) bool {
	return containsAny(lower, intentKeywords[IntentRejection])
}

func containsAny(text string, words []string) bool {
	for _, w := range words {
		if containsWord(text, w) {
			return true
		}
	}
	return false
}

// containsWord matches on word boundaries so "no" does not fire inside
// "know" or "noon". Longer keywords may match as a stem, letting "book"
// cover "booking" and "cancel" cover "cancelled".
func containsWord(text, word string) bool {
	idx := 0
	for {
		i := strings.Index(text[idx:], word)
		if i < 0 {
			return false
		}
		start := idx + i
		end := start + len(word)
		beforeOK := start == 0 || !isWordChar(text[start-1])
		afterOK := end == len(text) || !isWordChar(text[end]) || len(word) > 3
		if beforeOK && afterOK {
			return true
		}
		idx = start + 1
	}
}

func isWordChar(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c == '\''
}
