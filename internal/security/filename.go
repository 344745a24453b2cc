// Package security holds input hygiene helpers for values that end up in
// output paths.
package security

import "strings"

// maxFilenameLen bounds a sanitised name so derived paths stay short.
const maxFilenameLen = 128

// SanitizeFilename makes a safe file name stem from an arbitrary string,
// such as a lap ID taken from an input file name. Runs of characters other
// than ASCII letters, digits, dot, underscore and dash become a single
// underscore, leading and trailing dots and underscores are trimmed, and an
// empty result becomes "unknown". Path separators can never survive.
func SanitizeFilename(s string) string {
	var b strings.Builder
	lastUnderscore := false
	for _, r := range s {
		if b.Len() >= maxFilenameLen {
			break
		}
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-':
			b.WriteRune(r)
			lastUnderscore = false
		case !lastUnderscore:
			b.WriteByte('_')
			lastUnderscore = true
		}
	}
	out := strings.Trim(b.String(), "._")
	if out == "" {
		return "unknown"
	}
	return out
}
