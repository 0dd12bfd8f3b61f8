package extract

import (
	"regexp"
	"strconv"
	"strings"
)

var charCodeArray = regexp.MustCompile(`\[\s*\d+(?:\s*,\s*\d+)*\s*\]`)

// DecodeObfuscatedEmail recovers the organizer contact address from an
// inline script that embeds it as a numeric character-code array. The
// decoded string is expected to contain a "mailto:" marker; the address
// runs from there to the next quote, query string or end of input.
//
// The second return value is false when nothing decodable is present.
// That is not an error: the listing simply has no published contact.
//
// This function is the only place coupled to the source's obfuscation
// scheme. If the site changes its technique, change this function, not
// its callers.
func DecodeObfuscatedEmail(script string) (string, bool) {
	raw := charCodeArray.FindString(script)
	if raw == "" {
		return "", false
	}

	var b strings.Builder
	for _, tok := range strings.Split(strings.Trim(raw, "[]"), ",") {
		code, err := strconv.Atoi(strings.TrimSpace(tok))
		if err != nil || code < 0 {
			return "", false
		}
		b.WriteRune(rune(code))
	}

	decoded := b.String()
	idx := strings.Index(decoded, "mailto:")
	if idx < 0 {
		return "", false
	}
	addr := decoded[idx+len("mailto:"):]
	if end := strings.IndexAny(addr, `"'?<> `); end >= 0 {
		addr = addr[:end]
	}
	if !strings.Contains(addr, "@") {
		return "", false
	}
	return addr, true
}
