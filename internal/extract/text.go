package extract

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	whitespaceRun = regexp.MustCompile(`\s+`)
	datePattern   = regexp.MustCompile(`\d{1,2}/\d{1,2}/\d{4}`)
	intPattern    = regexp.MustCompile(`\d+`)
)

// NormalizeWhitespace collapses runs of whitespace to single spaces and
// trims the result.
func NormalizeWhitespace(s string) string {
	return strings.TrimSpace(whitespaceRun.ReplaceAllString(s, " "))
}

// CollapseDuplicateText undoes a source quirk where a field is rendered
// twice back to back ("FFCAM FFCAM"). After whitespace normalization, if
// the entire string is of the form "X X" with identical halves, only X is
// kept. Anything else is returned unchanged (normalized). The match is
// anchored and exact: "CLUB ALPIN PARIS CLUB ALPIN MARSEILLE" stays as is.
func CollapseDuplicateText(s string) string {
	clean := NormalizeWhitespace(s)
	if len(clean) < 3 || len(clean)%2 == 0 {
		return clean
	}
	half := len(clean) / 2
	if clean[half] == ' ' && clean[:half] == clean[half+1:] {
		return clean[:half]
	}
	return clean
}

// ExtractDates scans free text for dd/mm/yyyy tokens and returns them in
// document order. No sorting, no dedup: the storage layer re-derives the
// dependent rows wholesale on every sync.
func ExtractDates(s string) []string {
	return datePattern.FindAllString(s, -1)
}

// ExtractPrice takes the first integer substring. Absence of any digit
// yields 0, meaning free or unspecified, not an error.
func ExtractPrice(s string) int {
	m := intPattern.FindString(s)
	if m == "" {
		return 0
	}
	n, err := strconv.Atoi(m)
	if err != nil {
		return 0
	}
	return n
}

// ExtractSeats takes the first integer substring if present. A field with
// no digits yields nil (unknown), which is distinct from 0 (none left).
func ExtractSeats(s string) *int {
	m := intPattern.FindString(s)
	if m == "" {
		return nil
	}
	n, err := strconv.Atoi(m)
	if err != nil {
		return nil
	}
	return &n
}
