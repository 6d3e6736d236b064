// Package extract derives booking entities and intent from free-form user
// text with deterministic rules. It is the fast path of the pipeline and the
// fallback when no LLM provider responds in time.
package extract

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Entities holds the booking fields recognized in a single message. Nil
// pointer fields mean the message said nothing about that field.
type Entities struct {
	ServiceType *string `json:"service_type"`
	Date        *string `json:"date"` // YYYY-MM-DD
	Time        *string `json:"time"` // HH:MM, 24-hour
	DurationMin *int    `json:"duration_minutes"`
	Purpose     *string `json:"purpose"`
	Email       *string `json:"email"`
}

// Result is the full outcome of analyzing one message.
type Result struct {
	Entities  Entities `json:"entities"`
	Intent    string   `json:"intent"`
	Confirmed bool     `json:"confirmed"`
	Rejected  bool     `json:"rejected"`
}

// serviceKeywords maps trigger words to canonical service names. Checked in
// a fixed order so overlapping triggers resolve deterministically.
var serviceKeywords = []struct {
	trigger string
	service string
}{
	{"therapy", "therapy session"},
	{"workshop", "workshop"},
	{"business", "business consultation"},
	{"creative", "creative session"},
	{"consultation", "consultation"},
	{"meeting", "meeting"},
	{"appointment", "consultation"},
}

var (
	emailRe = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)

	// Time patterns, most specific first.
	timeClockRe = regexp.MustCompile(`\b(\d{1,2}):(\d{2})\s*(am|pm|a\.m\.|p\.m\.)?\b`)
	timeHourRe  = regexp.MustCompile(`\b(\d{1,2})\s*(am|pm|a\.m\.|p\.m\.)\b`)

	durComboRe = regexp.MustCompile(`\b(\d+)\s*(?:hours?|hrs?)\s*(?:and\s*)?(\d+)\s*(?:minutes?|mins?)\b`)
	durHourRe  = regexp.MustCompile(`\b(\d+(?:\.\d+)?)\s*(?:hours?|hrs?)\b`)
	durMinRe   = regexp.MustCompile(`\b(\d+)\s*(?:minutes?|mins?)\b`)

	dateISORe = regexp.MustCompile(`\b(\d{4})-(\d{1,2})-(\d{1,2})\b`)
	dateDMYRe = regexp.MustCompile(`\b(\d{1,2})/(\d{1,2})/(\d{4})\b`)
	// "March 5" or "March 5th"
	dateMonthDayRe = regexp.MustCompile(`\b(january|february|march|april|may|june|july|august|september|october|november|december)\s+(\d{1,2})(?:st|nd|rd|th)?\b`)

	weekdayRe = regexp.MustCompile(`\b(?:next|this)\s+(monday|tuesday|wednesday|thursday|friday|saturday|sunday)\b`)

	purposeRe = regexp.MustCompile(`\b(?:for|about|regarding)\s+(?:a\s+|an\s+|the\s+)?([a-z][a-z0-9\s]{2,60}?)(?:[.,!?]|$)`)

	slotIndexRe = regexp.MustCompile(`\b(?:option|slot|number)\s*(\d{1,2})\b`)
)

var months = map[string]time.Month{
	"january": time.January, "february": time.February, "march": time.March,
	"april": time.April, "may": time.May, "june": time.June, "july": time.July,
	"august": time.August, "september": time.September, "october": time.October,
	"november": time.November, "december": time.December,
}

var weekdays = map[string]time.Weekday{
	"monday": time.Monday, "tuesday": time.Tuesday, "wednesday": time.Wednesday,
	"thursday": time.Thursday, "friday": time.Friday,
	"saturday": time.Saturday, "sunday": time.Sunday,
}

// Extract analyzes one user message. now anchors relative date words like
// "tomorrow" and "next friday".
func Extract(text string, now time.Time) Result {
	lower := strings.ToLower(text)
	return Result{
		Entities: Entities{
			ServiceType: extractService(lower),
			Date:        extractDate(lower, now),
			Time:        extractTime(lower),
			DurationMin: extractDuration(lower),
			Purpose:     extractPurpose(lower, now),
			Email:       ExtractEmail(text),
		},
		Intent:    DetectIntent(lower),
		Confirmed: isConfirmation(lower),
		Rejected:  isRejection(lower),
	}
}

// ExtractEmail returns the first email address in the text, if any.
func ExtractEmail(text string) *string {
	if m := emailRe.FindString(text); m != "" {
		m = strings.ToLower(m)
		return &m
	}
	return nil
}

// slotOrdinals resolves ordinal words to slot positions, checked in order so
// the first match wins.
var slotOrdinals = []struct {
	word  string
	index int
}{
	{"first", 1}, {"second", 2}, {"third", 3}, {"fourth", 4}, {"fifth", 5},
	{"sixth", 6}, {"seventh", 7}, {"eighth", 8}, {"ninth", 9}, {"tenth", 10},
	{"earliest", 1}, {"last", -1},
}

// ExtractSlotIndex recognizes a slot choice like "option 2", "the first
// one" or a bare small number. Returns the 1-based index, -1 for the last
// listed slot, or 0 when the message picks nothing.
func ExtractSlotIndex(text string) int {
	lower := strings.ToLower(strings.TrimSpace(text))
	if m := slotIndexRe.FindStringSubmatch(lower); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil && n >= 1 {
			return n
		}
	}
	for _, ord := range slotOrdinals {
		if containsWord(lower, ord.word) {
			return ord.index
		}
	}
	if n, err := strconv.Atoi(lower); err == nil && n >= 1 && n <= 20 {
		return n
	}
	return 0
}

func extractService(lower string) *string {
	for _, kw := range serviceKeywords {
		if strings.Contains(lower, kw.trigger) {
			s := kw.service
			return &s
		}
	}
	return nil
}

func extractDate(lower string, now time.Time) *string {
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	if strings.Contains(lower, "tomorrow") {
		return datePtr(today.AddDate(0, 0, 1))
	}
	if strings.Contains(lower, "today") {
		return datePtr(today)
	}
	if m := weekdayRe.FindStringSubmatch(lower); m != nil {
		target := weekdays[m[1]]
		ahead := (int(target) - int(today.Weekday()) + 7) % 7
		if ahead == 0 {
			ahead = 7
		}
		return datePtr(today.AddDate(0, 0, ahead))
	}
	if m := dateISORe.FindStringSubmatch(lower); m != nil {
		if d, ok := buildDate(atoi(m[1]), atoi(m[2]), atoi(m[3]), now.Location()); ok {
			return datePtr(d)
		}
	}
	if m := dateDMYRe.FindStringSubmatch(lower); m != nil {
		if d, ok := buildDate(atoi(m[3]), atoi(m[2]), atoi(m[1]), now.Location()); ok {
			return datePtr(d)
		}
	}
	if m := dateMonthDayRe.FindStringSubmatch(lower); m != nil {
		d, ok := buildDate(now.Year(), int(months[m[1]]), atoi(m[2]), now.Location())
		if ok {
			if d.Before(today) {
				d = d.AddDate(1, 0, 0)
			}
			return datePtr(d)
		}
	}
	return nil
}

func buildDate(year, month, day int, loc *time.Location) (time.Time, bool) {
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return time.Time{}, false
	}
	d := time.Date(year, time.Month(month), day, 0, 0, 0, 0, loc)
	// time.Date normalizes overflow, e.g. Feb 30 becomes March. Reject that.
	if d.Day() != day || int(d.Month()) != month {
		return time.Time{}, false
	}
	return d, true
}

func extractTime(lower string) *string {
	if m := timeClockRe.FindStringSubmatch(lower); m != nil {
		hour, minute := atoi(m[1]), atoi(m[2])
		if adjusted, ok := to24h(hour, minute, m[3]); ok {
			return &adjusted
		}
	}
	if m := timeHourRe.FindStringSubmatch(lower); m != nil {
		if adjusted, ok := to24h(atoi(m[1]), 0, m[2]); ok {
			return &adjusted
		}
	}
	return nil
}

func to24h(hour, minute int, meridiem string) (string, bool) {
	if minute < 0 || minute > 59 {
		return "", false
	}
	switch {
	case strings.HasPrefix(meridiem, "p"):
		if hour < 1 || hour > 12 {
			return "", false
		}
		if hour != 12 {
			hour += 12
		}
	case strings.HasPrefix(meridiem, "a"):
		if hour < 1 || hour > 12 {
			return "", false
		}
		if hour == 12 {
			hour = 0
		}
	default:
		if hour < 0 || hour > 23 {
			return "", false
		}
	}
	return fmt.Sprintf("%02d:%02d", hour, minute), true
}

func extractDuration(lower string) *int {
	if m := durComboRe.FindStringSubmatch(lower); m != nil {
		total := atoi(m[1])*60 + atoi(m[2])
		return &total
	}
	if m := durHourRe.FindStringSubmatch(lower); m != nil {
		if hrs, err := strconv.ParseFloat(m[1], 64); err == nil {
			total := int(hrs * 60)
			return &total
		}
	}
	if m := durMinRe.FindStringSubmatch(lower); m != nil {
		total := atoi(m[1])
		return &total
	}
	return nil
}

// extractPurpose pulls the clause after "for"/"about"/"regarding", skipping
// candidates that are really a date, time or duration phrase ("for 30
// minutes" is not a purpose).
func extractPurpose(lower string, now time.Time) *string {
	for _, m := range purposeRe.FindAllStringSubmatch(lower, -1) {
		candidate := strings.TrimSpace(m[1])
		if candidate == "" {
			continue
		}
		if extractDuration(candidate) != nil || extractTime(candidate) != nil {
			continue
		}
		if extractDate(candidate, now) != nil {
			continue
		}
		if strings.HasPrefix(candidate, "next ") || strings.HasPrefix(candidate, "this ") {
			continue
		}
		return &candidate
	}
	return nil
}

func datePtr(d time.Time) *string {
	s := d.Format("2006-01-02")
	return &s
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
