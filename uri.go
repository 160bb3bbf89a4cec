package httpcore

import "strings"

// Canonify reduces a raw request-target (as it appeared on the request line)
// to a canonical path:
//
//  1. truncate at the first '?'
//  2. if the target begins with "http://" or "https://" (case-insensitive),
//     skip the scheme and authority and continue from the first '/'; if there
//     is none, the canonical path is "/"
//  3. percent-decode in place: each well-formed "%XX" becomes the decoded
//     byte; everything else (including a malformed escape) is copied through
//     one byte at a time
//
// A decoded NUL byte ends the string at that point, matching C-string
// truncation semantics, and a malformed escape copies its '%' through
// verbatim rather than rejecting the request — deliberate garbage-in,
// garbage-out behavior rather than strict validation.
//
// Canonify never fails; it always returns some string.
func Canonify(raw string) string {
	if i := strings.IndexByte(raw, '?'); i >= 0 {
		raw = raw[:i]
	}

	raw = stripSchemeAuthority(raw)

	var b strings.Builder
	b.Grow(len(raw))
	for i := 0; i < len(raw); {
		c := raw[i]
		if c == '%' && i+2 < len(raw) && isHex(raw[i+1]) && isHex(raw[i+2]) {
			decoded := unhex(raw[i+1])<<4 | unhex(raw[i+2])
			if decoded == 0 {
				return b.String()
			}
			b.WriteByte(decoded)
			i += 3
			continue
		}
		b.WriteByte(c)
		i++
	}
	return b.String()
}

func stripSchemeAuthority(raw string) string {
	lower := raw
	var rest string
	switch {
	case hasPrefixFold(lower, "http://"):
		rest = raw[len("http://"):]
	case hasPrefixFold(lower, "https://"):
		rest = raw[len("https://"):]
	default:
		return raw
	}
	if i := strings.IndexByte(rest, '/'); i >= 0 {
		return rest[i:]
	}
	return "/"
}

func hasPrefixFold(s, prefix string) bool {
	if len(s) < len(prefix) {
		return false
	}
	return strings.EqualFold(s[:len(prefix)], prefix)
}

func isHex(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

func unhex(c byte) byte {
	switch {
	case c >= '0' && c <= '9':
		return c - '0'
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10
	}
	return 0
}
