package vault

import "strings"

const upperhex = "0123456789ABCDEF"

// ContentDisposition renders an attachment disposition with the filename in
// RFC 5987 extended notation so non-ASCII and reserved characters survive.
func ContentDisposition(fileName string) string {
	return "attachment; filename*=utf-8''" + EncodeRFC5987(fileName)
}

// EncodeRFC5987 percent-encodes every byte outside RFC 5987 attr-char.
func EncodeRFC5987(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if isAttrChar(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(upperhex[c>>4])
		b.WriteByte(upperhex[c&15])
	}
	return b.String()
}

func isAttrChar(c byte) bool {
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return true
	}
	return strings.IndexByte("!#$&+-.^_`|~", c) >= 0
}
