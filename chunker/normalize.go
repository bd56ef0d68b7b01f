package chunker

import (
	"strings"
	"unicode"
)

// Normalize strips control characters and collapses runs of horizontal
// whitespace so that chunk boundaries are stable across upload formats.
// Newlines are kept, with runs of blank lines collapsed to one.
func Normalize(text string) string {
	var b strings.Builder
	b.Grow(len(text))

	newlines := 0
	spaces := 0

	for _, r := range text {
		switch {
		case r == '\n':
			newlines++
			spaces = 0
		case r == '\r':
			// dropped; \r\n is handled by the \n branch
		case r == '\t' || r == ' ':
			spaces++
		case unicode.IsControl(r):
			// dropped
		default:
			if newlines > 0 {
				if b.Len() > 0 {
					b.WriteByte('\n')
					if newlines > 1 {
						b.WriteByte('\n')
					}
				}
				newlines = 0
			} else if spaces > 0 && b.Len() > 0 {
				b.WriteByte(' ')
			}
			spaces = 0
			b.WriteRune(r)
		}
	}

	return b.String()
}
