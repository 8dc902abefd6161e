package dialogue

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Reference resolution turns ordinal and numeric phrases ("the 3rd one",
// "order 5", "1,2,3") into 1-based positions in the list the user was last
// shown. Pure functions, no I/O.

var ordinalWords = map[string]int{
	"first": 1, "second": 2, "third": 3, "fourth": 4, "fifth": 5,
	"sixth": 6, "seventh": 7, "eighth": 8, "ninth": 9, "tenth": 10,
}

var (
	reOrdinalWord   = regexp.MustCompile(`\b(first|second|third|fourth|fifth|sixth|seventh|eighth|ninth|tenth)\b`)
	reOrdinalSmall  = regexp.MustCompile(`\b(10|[1-9])(?:st|nd|rd|th)\b`)
	reKeywordNumber = regexp.MustCompile(`\b(?:order|task|item|number)\s*#?\s*(\d{1,4})\b`)
	reNumberKeyword = regexp.MustCompile(`\b(\d{1,4})(?:st|nd|rd|th)?\s+(?:order|task|item)s?\b`)
	reBareOrdinal   = regexp.MustCompile(`\b(\d{1,4})(?:st|nd|rd|th)\b`)
	reWholeNumber   = regexp.MustCompile(`^\s*#?(\d{1,4})\s*$`)
	reAnyNumber     = regexp.MustCompile(`\d{1,4}`)
)

// ResolveSingle finds the one position referenced by text, trying the most
// specific phrasings first. Returns false when nothing in [1, max] matches.
func ResolveSingle(text string, max int) (int, bool) {
	if max < 1 {
		return 0, false
	}
	s := strings.ToLower(text)

	// Ordinal words and small numeric ordinals ("third", "3rd").
	if m := reOrdinalWord.FindStringSubmatch(s); m != nil {
		if pos := ordinalWords[m[1]]; inRange(pos, max) {
			return pos, true
		}
	}
	if pos, ok := firstInRange(reOrdinalSmall, s, max); ok {
		return pos, true
	}

	// "order 5", "task #2", "number 3".
	if pos, ok := firstInRange(reKeywordNumber, s, max); ok {
		return pos, true
	}

	// "5th order", "2 task".
	if pos, ok := firstInRange(reNumberKeyword, s, max); ok {
		return pos, true
	}

	// Bare "19th".
	if pos, ok := firstInRange(reBareOrdinal, s, max); ok {
		return pos, true
	}

	// The whole message is just a number.
	if m := reWholeNumber.FindStringSubmatch(s); m != nil {
		if pos, err := strconv.Atoi(m[1]); err == nil && inRange(pos, max) {
			return pos, true
		}
	}

	// Any bare number anywhere.
	for _, m := range reAnyNumber.FindAllString(s, -1) {
		if pos, err := strconv.Atoi(m); err == nil && inRange(pos, max) {
			return pos, true
		}
	}

	return 0, false
}

// ResolveMultiple extracts every referenced position: all in-range bare
// numbers unioned with any ordinal words, de-duplicated and sorted ascending.
// Used for batch replies like "1 2 3" or "second and fourth".
func ResolveMultiple(text string, max int) []int {
	if max < 1 {
		return nil
	}
	s := strings.ToLower(text)

	seen := make(map[int]struct{})
	for _, m := range reAnyNumber.FindAllString(s, -1) {
		if pos, err := strconv.Atoi(m); err == nil && inRange(pos, max) {
			seen[pos] = struct{}{}
		}
	}
	for _, m := range reOrdinalWord.FindAllStringSubmatch(s, -1) {
		if pos := ordinalWords[m[1]]; inRange(pos, max) {
			seen[pos] = struct{}{}
		}
	}

	if len(seen) == 0 {
		return nil
	}
	positions := make([]int, 0, len(seen))
	for pos := range seen {
		positions = append(positions, pos)
	}
	sort.Ints(positions)
	return positions
}

func firstInRange(re *regexp.Regexp, s string, max int) (int, bool) {
	for _, m := range re.FindAllStringSubmatch(s, -1) {
		if pos, err := strconv.Atoi(m[1]); err == nil && inRange(pos, max) {
			return pos, true
		}
	}
	return 0, false
}

func inRange(pos, max int) bool {
	return pos >= 1 && pos <= max
}

var reOrderID = regexp.MustCompile(`(?i)\bORD-[0-9A-F]{8}\b`)

// extractOrderID pulls an explicit order id out of free text.
func extractOrderID(text string) string {
	return strings.ToUpper(reOrderID.FindString(text))
}
