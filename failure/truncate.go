package failure

import "unicode/utf8"

const (
	// MaxMessageLength bounds external and internal messages, in bytes.
	MaxMessageLength = 50000
	// MaxStacktraceLength bounds stacktraces, in bytes.
	MaxStacktraceLength = 100000

	attributionMessage = "Remainder truncated by the platform."
	ellipsis           = "..."
	// minAbbreviatedWidth is the narrowest abbreviation worth producing.
	minAbbreviatedWidth = 4
)

// Truncate bounds s to maxLen bytes. A string that fits is returned unchanged.
// A longer string is cut on a rune boundary and suffixed with "... " and an
// attribution note, so the result is never longer than maxLen. When maxLen is
// too small to hold the note, s is returned unchanged.
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	width := maxLen - len(attributionMessage) - 1
	if width < minAbbreviatedWidth {
		return s
	}
	return abbreviate(s, width) + " " + attributionMessage
}

func abbreviate(s string, width int) string {
	if len(s) <= width {
		return s
	}
	cut := width - len(ellipsis)
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + ellipsis
}
