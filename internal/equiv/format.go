package equiv

import "strings"

// FormatPhone renders a dial string for display. North American numbers get
// the usual grouping; everything else is returned trimmed. Wait segments are
// preserved as written.
func FormatPhone(s string) string {
	s = strings.TrimSpace(s)
	if s == "" || strings.ContainsAny(s, "@;,") {
		return s
	}
	digits, plus := dialDigits(s)
	if strings.ContainsAny(digits, "*#") {
		return s
	}
	switch {
	case plus && len(digits) == 11 && digits[0] == '1':
		return "+1 " + digits[1:4] + "-" + digits[4:7] + "-" + digits[7:]
	case !plus && len(digits) == 11 && digits[0] == '1':
		return "1 (" + digits[1:4] + ") " + digits[4:7] + "-" + digits[7:]
	case !plus && len(digits) == 10:
		return "(" + digits[0:3] + ") " + digits[3:6] + "-" + digits[6:]
	case !plus && len(digits) == 7:
		return digits[0:3] + "-" + digits[3:]
	}
	return s
}
