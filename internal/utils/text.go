package utils

import (
	"strings"
	"unicode/utf8"
)

// TruncateUTF8 returns s cut to at most n bytes without splitting a rune.
// Invalid sequences are replaced with U+FFFD first so the result always
// fits a utf8mb4 column.
func TruncateUTF8(s string, n int) string {
	s = strings.ToValidUTF8(s, "�")
	if len(s) <= n {
		return s
	}
	s = s[:n]
	for len(s) > 0 {
		r, size := utf8.DecodeLastRuneInString(s)
		if r != utf8.RuneError || size > 1 {
			break
		}
		s = s[:len(s)-1]
	}
	return s
}
