// Package equiv decides whether two field values denote the same fact.
//
// None of the rules fail: malformed input degrades to literal comparison.
package equiv

import (
	"strings"

	"github.com/Napageneral/rolodex/internal/fields"
)

// waitSeparator splits a dial string into segments dialed after a wait.
const waitSeparator = ";"

// Equal reports whether a and b are the same fact for the given kind.
func Equal(kind fields.Kind, a, b string) bool {
	switch kind {
	case fields.Phone:
		return SameNumber(a, b)
	case fields.SipAddress:
		return SIP(a, b)
	default:
		return a == b
	}
}

// SameNumber compares two values that may be either dial strings or SIP
// style addresses.
func SameNumber(a, b string) bool {
	if isURIAddress(a) || isURIAddress(b) {
		return SIP(a, b)
	}
	if strings.Contains(a, "@") || strings.Contains(b, "@") {
		ua, ha := splitNumberAddress(a)
		ub, hb := splitNumberAddress(b)
		return Phone(ua, ub) && strings.EqualFold(ha, hb)
	}
	return Phone(a, b)
}

// splitNumberAddress splits a dial string with an optional @host suffix.
func splitNumberAddress(s string) (number, host string) {
	i := strings.Index(s, "@")
	if i < 0 {
		return s, ""
	}
	return s[:i], s[i:]
}

// isURIAddress reports whether s has an @ with a user part that is not a
// dial string.
func isURIAddress(s string) bool {
	i := strings.Index(s, "@")
	if i < 0 {
		return false
	}
	user := s[:i]
	if strings.TrimSpace(user) == "" {
		return true
	}
	for _, r := range user {
		if !isDialable(r) && !isSeparator(r) {
			return true
		}
	}
	return false
}

// SIP compares two SIP style addresses. The user part is case sensitive and
// the host part is not. A value without @ is treated as a bare host.
func SIP(a, b string) bool {
	ua, ha := splitAddress(a)
	ub, hb := splitAddress(b)
	return ua == ub && strings.EqualFold(ha, hb)
}

func splitAddress(s string) (user, host string) {
	i := strings.Index(s, "@")
	if i < 0 {
		return "", s
	}
	return s[:i], s[i:]
}

// Phone compares two dial strings loosely: formatting is ignored, wait
// segments must match positionally, a leading +1 (or a bare 1 before a ten
// digit number) may be omitted on one side, and +CC matches a national
// number written with a trunk 0.
func Phone(a, b string) bool {
	if a == b {
		return true
	}
	if strings.Contains(a, "#") != strings.Contains(b, "#") ||
		strings.Contains(a, "*") != strings.Contains(b, "*") {
		return false
	}
	partsA := strings.Split(a, waitSeparator)
	partsB := strings.Split(b, waitSeparator)
	if len(partsA) != len(partsB) {
		return false
	}
	for i := range partsA {
		if !phoneSegment(partsA[i], partsB[i]) {
			return false
		}
	}
	return true
}

func phoneSegment(a, b string) bool {
	ta, tb := strings.TrimSpace(a), strings.TrimSpace(b)
	if ta == "" || tb == "" {
		return ta == tb
	}
	da, plusA := dialDigits(ta)
	db, plusB := dialDigits(tb)
	if da == "" || db == "" {
		// Not a number on at least one side.
		return ta == tb
	}
	if da == db {
		return true
	}
	switch {
	case plusA && !plusB:
		return nanpMatch(da, db) || trunkMatch(da, db)
	case plusB && !plusA:
		return nanpMatch(db, da) || trunkMatch(db, da)
	case !plusA && !plusB:
		return nanpTrunkMatch(da, db) || nanpTrunkMatch(db, da)
	}
	return false
}

// nanpMatch reports whether the international number intl (digits after +)
// is the North American number national written without country code.
func nanpMatch(intl, national string) bool {
	if len(national) < minMatch {
		return false
	}
	return strings.HasPrefix(intl, "1") && intl[1:] == national
}

// nanpTrunkMatch reports whether long is the ten digit North American number
// national dialed with the 1 trunk prefix and no +.
func nanpTrunkMatch(long, national string) bool {
	return len(national) == 10 && len(long) == 11 && long[0] == '1' && long[1:] == national
}

// trunkMatch reports whether the international number intl is national
// written with a single trunk 0 in place of a one to three digit country
// code. A leading 00 is an international prefix, not a trunk 0.
func trunkMatch(intl, national string) bool {
	if len(national) < 2 || national[0] != '0' || national[1] == '0' {
		return false
	}
	significant := national[1:]
	if len(significant) < minMatch {
		return false
	}
	for cc := 1; cc <= 3 && cc < len(intl); cc++ {
		if intl[cc:] == significant {
			return true
		}
	}
	return false
}

// minMatch is the shortest national number that qualifies for country code
// tolerance. Shorter strings are short codes and only compare literally.
const minMatch = 7

// dialDigits strips everything but dialable characters, converting keypad
// letters to digits, and reports whether the number started with +.
func dialDigits(s string) (string, bool) {
	var b strings.Builder
	plus := false
	seen := false
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9', r == '*', r == '#':
			b.WriteRune(r)
			seen = true
		case r == '+':
			if !seen {
				plus = true
			}
		default:
			if d, ok := keypadDigit(r); ok {
				b.WriteByte(d)
				seen = true
			}
		}
	}
	return b.String(), plus
}

func isDialable(r rune) bool {
	return (r >= '0' && r <= '9') || r == '*' || r == '#' || r == '+'
}

func isSeparator(r rune) bool {
	switch r {
	case ' ', '-', '.', '(', ')', '/', ';', ',':
		return true
	}
	return false
}

func keypadDigit(r rune) (byte, bool) {
	if r >= 'a' && r <= 'z' {
		r -= 'a' - 'A'
	}
	switch {
	case r >= 'A' && r <= 'C':
		return '2', true
	case r >= 'D' && r <= 'F':
		return '3', true
	case r >= 'G' && r <= 'I':
		return '4', true
	case r >= 'J' && r <= 'L':
		return '5', true
	case r >= 'M' && r <= 'O':
		return '6', true
	case r >= 'P' && r <= 'S':
		return '7', true
	case r >= 'T' && r <= 'V':
		return '8', true
	case r >= 'W' && r <= 'Z':
		return '9', true
	}
	return 0, false
}
