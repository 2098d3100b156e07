package textutil

import (
	"bytes"
	"unicode/utf8"
)

// NormalizeUTF8LF converts CRLF and CR to LF and replaces invalid UTF-8
// sequences with the Unicode replacement character.
func NormalizeUTF8LF(b []byte) []byte {
	b = bytes.ReplaceAll(b, []byte("\r\n"), []byte("\n"))
	b = bytes.ReplaceAll(b, []byte("\r"), []byte("\n"))
	return bytes.ToValidUTF8(b, []byte("\uFFFD"))
}

// EnsureTrailingLF appends a single \n if not already present.
func EnsureTrailingLF(b []byte) []byte {
	if len(b) == 0 || b[len(b)-1] == '\n' {
		return b
	}
	return append(b, '\n')
}

// sniffLen bounds how much of a blob LooksText inspects.
const sniffLen = 8000

// LooksText reports whether b is worth a textual diff: no NUL byte and
// valid UTF-8 in the first sniffLen bytes. A multi-byte rune cut by the
// bound does not count against it.
func LooksText(b []byte) bool {
	if len(b) > sniffLen {
		b = b[:sniffLen]
		if i := lastRuneStart(b); !utf8.FullRune(b[i:]) {
			b = b[:i]
		}
	}
	if bytes.IndexByte(b, 0) >= 0 {
		return false
	}
	return utf8.Valid(b)
}

func lastRuneStart(b []byte) int {
	i := len(b) - 1
	for i > 0 && !utf8.RuneStart(b[i]) {
		i--
	}
	return i
}
