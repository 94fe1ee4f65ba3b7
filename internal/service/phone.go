// internal/service/phone.go
package service

import "strings"

// NormalizePhone converts common US formats to E.164. Returns "" when the
// input cannot be normalized.
func NormalizePhone(raw string) string {
	raw = strings.TrimSpace(raw)

	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()

	switch {
	case len(digits) == 10:
		return "+1" + digits
	case len(digits) == 11 && strings.HasPrefix(digits, "1"):
		return "+" + digits
	case strings.HasPrefix(raw, "+") && len(digits) >= 8:
		return "+" + digits
	default:
		return ""
	}
}
