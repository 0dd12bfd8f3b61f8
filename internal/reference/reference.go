// Package reference resolves course reference numbers embedded in generated
// identifiers. Two historical formats are in circulation and both must be
// accepted.
package reference

import "regexp"

// Legacy format: two digits, dash, three uppercase letters, dash, four
// digits, e.g. "24-SKI-0042". Modern format: four-digit year followed by
// uppercase letters and digits, e.g. "2024ALPI0123". Both anchor at the
// end of the candidate string.
var (
	legacyPattern = regexp.MustCompile(`\d{2}-[A-Z]{3}-\d{4}$`)
	modernPattern = regexp.MustCompile(`\d{4}[A-Z]+\d+$`)
)

// FromIdentifier extracts the trailing course reference from a candidate
// identifier. It returns the reference and whether one was found.
func FromIdentifier(candidate string) (string, bool) {
	if m := legacyPattern.FindString(candidate); m != "" {
		return m, true
	}
	if m := modernPattern.FindString(candidate); m != "" {
		return m, true
	}
	return "", false
}

// Valid reports whether s is, in its entirety, a well-formed reference in
// either format.
func Valid(s string) bool {
	ref, ok := FromIdentifier(s)
	return ok && ref == s
}
