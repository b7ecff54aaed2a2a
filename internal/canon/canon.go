// Package canon holds the canonical forms used across the bridge: NFC text
// and suffixed WhatsApp addresses (JIDs).
package canon

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

const (
	IndividualSuffix = "@c.us"
	GroupSuffix      = "@g.us"
)

// Text returns s in Unicode normalization form C.
func Text(s string) string {
	return norm.NFC.String(s)
}

// Address canonicalizes a destination. Addresses that already carry the
// individual or group suffix are kept; anything else is reduced to its
// digits and given the individual suffix. Returns "" when no digits remain.
// Address is idempotent.
func Address(raw string) string {
	s := strings.TrimSpace(raw)
	if HasSuffix(s) {
		return s
	}
	digits := Digits(s)
	if digits == "" {
		return ""
	}
	return digits + IndividualSuffix
}

// HasSuffix reports whether addr ends with a known JID suffix.
func HasSuffix(addr string) bool {
	return strings.HasSuffix(addr, IndividualSuffix) || strings.HasSuffix(addr, GroupSuffix)
}

// IsGroup reports whether addr is a group JID.
func IsGroup(addr string) bool {
	return strings.HasSuffix(addr, GroupSuffix)
}

// User strips the JID suffix, leaving the user (or group id) part.
func User(addr string) string {
	if s, ok := strings.CutSuffix(addr, IndividualSuffix); ok {
		return s
	}
	if s, ok := strings.CutSuffix(addr, GroupSuffix); ok {
		return s
	}
	return addr
}

// Digits returns only the ASCII digits of s.
func Digits(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if c := s[i]; c >= '0' && c <= '9' {
			b.WriteByte(c)
		}
	}
	return b.String()
}
