package scans

import (
	"strings"
	"unicode"
)

// NormalizeRisk trims a risk label and title-cases each word ("low" -> "Low",
// "INFORMATIONAL" -> "Informational"). Training and inference must both go
// through this function. It is idempotent.
func NormalizeRisk(risk string) string {
	risk = strings.TrimSpace(risk)
	var b strings.Builder
	b.Grow(len(risk))
	prevLetter := false
	for _, r := range risk {
		isLetter := unicode.IsLetter(r)
		switch {
		case isLetter && !prevLetter:
			b.WriteRune(unicode.ToTitle(r))
		case isLetter:
			b.WriteRune(unicode.ToLower(r))
		default:
			b.WriteRune(r)
		}
		prevLetter = isLetter
	}
	return b.String()
}

// NormalizeName trims surrounding whitespace from an alert name.
func NormalizeName(name string) string {
	return strings.TrimSpace(name)
}
