package jaas

import (
	"regexp"
	"strings"
)

var (
	pemWellFormed = regexp.MustCompile(`-----BEGIN[^-]+-----\s*\n`)
	pemParts      = regexp.MustCompile(`(?s)(-----BEGIN [A-Z ]+-----)(.+)(-----END [A-Z ]+-----)`)
	whitespace    = regexp.MustCompile(`\s+`)
)

const pemLineWidth = 64

// FormatPEMKey restores line breaks in a PEM block that was pasted as a single
// line. Keys that already have a newline after the header are returned as is,
// and text without a recognizable header and footer passes through unchanged.
func FormatPEMKey(key string) string {
	if pemWellFormed.MatchString(key) {
		return key
	}

	m := pemParts.FindStringSubmatch(key)
	if m == nil {
		return key
	}
	header, body, footer := m[1], whitespace.ReplaceAllString(m[2], ""), m[3]

	var b strings.Builder
	b.WriteString(header)
	b.WriteByte('\n')
	for len(body) > 0 {
		n := min(pemLineWidth, len(body))
		b.WriteString(body[:n])
		b.WriteByte('\n')
		body = body[n:]
	}
	b.WriteString(footer)
	b.WriteByte('\n')
	return b.String()
}
