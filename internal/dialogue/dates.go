package dialogue

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Relative-date parsing for due dates and fulfillment times. Handles the
// phrasings people actually type in chat ("tomorrow 5pm", "next friday",
// "the 19th at 14:30") and never resolves to a moment in the past: day and
// month references roll forward to the next occurrence.

var monthNames = map[string]time.Month{
	"jan": time.January, "january": time.January,
	"feb": time.February, "february": time.February,
	"mar": time.March, "march": time.March,
	"apr": time.April, "april": time.April,
	"may": time.May,
	"jun": time.June, "june": time.June,
	"jul": time.July, "july": time.July,
	"aug": time.August, "august": time.August,
	"sep": time.September, "sept": time.September, "september": time.September,
	"oct": time.October, "october": time.October,
	"nov": time.November, "november": time.November,
	"dec": time.December, "december": time.December,
}

var weekdayNames = map[string]time.Weekday{
	"sunday": time.Sunday, "monday": time.Monday, "tuesday": time.Tuesday,
	"wednesday": time.Wednesday, "thursday": time.Thursday,
	"friday": time.Friday, "saturday": time.Saturday,
}

var (
	reClock12  = regexp.MustCompile(`\b(\d{1,2})(?::(\d{2}))?\s*(am|pm)\b`)
	reClock24  = regexp.MustCompile(`\b(\d{1,2}):(\d{2})\b`)
	reWeekday  = regexp.MustCompile(`\b(?:(this|next|coming)\s+)?(sunday|monday|tuesday|wednesday|thursday|friday|saturday)\b`)
	reDayMonth = regexp.MustCompile(`\b(\d{1,2})(?:st|nd|rd|th)?\s+(?:of\s+)?([a-z]+)\b`)
	reMonthDay = regexp.MustCompile(`\b([a-z]+)\s+(\d{1,2})(?:st|nd|rd|th)?\b`)
	reBareDay  = regexp.MustCompile(`\b(\d{1,2})(?:st|nd|rd|th)\b`)
)

var fallbackLayouts = []string{
	"2006-01-02 15:04",
	"2006-01-02",
	"02/01/2006 15:04",
	"02/01/2006",
	"Jan 2 2006",
	"2 Jan 2006",
}

// ParseWhen resolves a free-text moment relative to now. Returns nil when
// nothing date-like can be extracted.
func ParseWhen(text string, now time.Time) *time.Time {
	s := strings.ToLower(strings.TrimSpace(text))
	if s == "" {
		return nil
	}

	hour, minute, hasClock := parseClock(s)

	day, roll, hasDay := parseDay(s, now)
	if !hasDay {
		if hasClock {
			// Time only: today, rolled to tomorrow once the time has passed.
			day = now
			roll = rollDays(1)
		} else {
			return parseFallback(s, now)
		}
	}

	result := time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, now.Location())
	if hasClock && roll != nil && !result.After(now) {
		result = roll(result)
	}
	return &result
}

func rollDays(n int) func(time.Time) time.Time {
	return func(t time.Time) time.Time { return t.AddDate(0, 0, n) }
}

// parseClock extracts an explicit time of day. Without one the result lands
// on midnight, which is fine for day-granular deadlines.
func parseClock(s string) (hour, minute int, ok bool) {
	if m := reClock12.FindStringSubmatch(s); m != nil {
		h, _ := strconv.Atoi(m[1])
		if h < 1 || h > 12 {
			return 0, 0, false
		}
		if m[2] != "" {
			minute, _ = strconv.Atoi(m[2])
		}
		if m[3] == "pm" && h < 12 {
			h += 12
		}
		if m[3] == "am" && h == 12 {
			h = 0
		}
		return h, minute, true
	}
	if m := reClock24.FindStringSubmatch(s); m != nil {
		h, _ := strconv.Atoi(m[1])
		mm, _ := strconv.Atoi(m[2])
		if h > 23 || mm > 59 {
			return 0, 0, false
		}
		return h, mm, true
	}
	return 0, 0, false
}

// parseDay resolves the calendar day. roll is how to jump forward when the
// combined moment has already passed: a day for "today", a week for weekday
// references, a month for a bare day-of-month, a year when the month was
// named. Nil means the day is already unambiguously in the future.
func parseDay(s string, now time.Time) (day time.Time, roll func(time.Time) time.Time, ok bool) {
	switch {
	case strings.Contains(s, "tomorrow"):
		return now.AddDate(0, 0, 1), nil, true
	case strings.Contains(s, "today") || strings.Contains(s, "tonight"):
		return now, rollDays(1), true
	case strings.Contains(s, "next week"):
		return now.AddDate(0, 0, 7), nil, true
	case strings.Contains(s, "next month"):
		return now.AddDate(0, 1, 0), nil, true
	}

	if m := reWeekday.FindStringSubmatch(s); m != nil {
		target := weekdayNames[m[2]]
		delta := (int(target) - int(now.Weekday()) + 7) % 7
		if delta == 0 && m[1] == "next" {
			delta = 7
		}
		return now.AddDate(0, 0, delta), rollDays(7), true
	}

	if d, mo, found := parseDayOfMonth(s); found {
		day := rollForward(d, mo, now)
		if mo == 0 {
			return day, func(t time.Time) time.Time { return t.AddDate(0, 1, 0) }, true
		}
		return day, func(t time.Time) time.Time { return t.AddDate(1, 0, 0) }, true
	}

	return time.Time{}, nil, false
}

func parseDayOfMonth(s string) (day int, month time.Month, found bool) {
	for _, m := range reDayMonth.FindAllStringSubmatch(s, -1) {
		if mo, ok := monthNames[m[2]]; ok {
			d, _ := strconv.Atoi(m[1])
			if d >= 1 && d <= 31 {
				return d, mo, true
			}
		}
	}
	for _, m := range reMonthDay.FindAllStringSubmatch(s, -1) {
		if mo, ok := monthNames[m[1]]; ok {
			d, _ := strconv.Atoi(m[2])
			if d >= 1 && d <= 31 {
				return d, mo, true
			}
		}
	}
	if m := reBareDay.FindStringSubmatch(s); m != nil {
		d, _ := strconv.Atoi(m[1])
		if d >= 1 && d <= 31 {
			return d, 0, true
		}
	}
	return 0, 0, false
}

// rollForward picks the next occurrence of the given day (and optional
// month) that is not before today.
func rollForward(day int, month time.Month, now time.Time) time.Time {
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	if month == 0 {
		candidate := time.Date(now.Year(), now.Month(), day, 0, 0, 0, 0, now.Location())
		if candidate.Before(today) {
			candidate = candidate.AddDate(0, 1, 0)
		}
		return candidate
	}
	candidate := time.Date(now.Year(), month, day, 0, 0, 0, 0, now.Location())
	if candidate.Before(today) {
		candidate = candidate.AddDate(1, 0, 0)
	}
	return candidate
}

func parseFallback(s string, now time.Time) *time.Time {
	for _, layout := range fallbackLayouts {
		if t, err := time.ParseInLocation(layout, s, now.Location()); err == nil {
			return &t
		}
	}
	return nil
}
