package util

import "strings"

// SanitizeText strips NUL and other control characters that PDF extractors emit
// and that Postgres text columns and vector payloads reject. Newlines and tabs
// are kept because the chunker splits on them.
func SanitizeText(s string) string {
	if s == "" {
		return s
	}
	s = strings.ReplaceAll(s, "\x00", "")

	var b strings.Builder
	b.Grow(len(s))
	for _, ch := range s {
		if ch < 0x20 && ch != '\n' && ch != '\r' && ch != '\t' {
			continue
		}
		b.WriteRune(ch)
	}
	return strings.TrimSpace(b.String())
}
