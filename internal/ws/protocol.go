package ws

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/charmbracelet/x/ansi"
)

// FramePrefix starts every output frame pushed to clients.
const FramePrefix = "MSG "

// FormatDelta renders one session's new lines, each as "[session] line",
// joined by newlines.
func FormatDelta(session string, lines []string) string {
	var b strings.Builder
	for i, line := range lines {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteByte('[')
		b.WriteString(session)
		b.WriteString("] ")
		b.WriteString(line)
	}
	return b.String()
}

// Frame joins per-session deltas into a single sanitized output frame.
func Frame(batch []string) []byte {
	return []byte(FramePrefix + Sanitize(strings.Join(batch, "\n")))
}

// Sanitize makes console output safe to display: it strips ANSI escape
// sequences and § color codes, drops control characters other than
// newline and tab, and replaces invalid UTF-8 with U+FFFD.
func Sanitize(s string) string {
	s = strings.ToValidUTF8(s, string(utf8.RuneError))
	s = ansi.Strip(s)

	var b strings.Builder
	b.Grow(len(s))
	skip := false
	for _, r := range s {
		if skip {
			skip = false
			// Control characters are never color code arguments.
			if !unicode.IsControl(r) {
				continue
			}
		}
		switch {
		case r == '§':
			skip = true
		case r == '\n' || r == '\t':
			b.WriteRune(r)
		case unicode.IsControl(r):
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
