package utils

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestTruncateUTF8(t *testing.T) {
	long := strings.Repeat("a", 1023) + "é"

	got := TruncateUTF8(long, 1024)
	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, strings.Repeat("a", 1023), got)

	assert.Equal(t, "ab", TruncateUTF8("ab", 4))
	assert.Equal(t, "a", TruncateUTF8("aé", 2))
	assert.Equal(t, "aé", TruncateUTF8("aé", 3))
}

func TestTruncateUTF8_RepairsInvalidInput(t *testing.T) {
	// already at the limit but ending mid-rune
	broken := strings.Repeat("a", 1023) + "\xc3"

	got := TruncateUTF8(broken, 1024)
	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, strings.Repeat("a", 1023), got)

	assert.Equal(t, "a�b", TruncateUTF8("a\xffb", 10))
}
