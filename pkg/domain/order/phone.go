package order

import "strings"

// NormalizePhone canonicalizes a customer phone number so that every lookup
// and key uses one form: digits only, country-coded, no leading "+" or
// national trunk "0".
//
//	"0812xxxx"    → "62812xxxx"
//	"+62812xxxx"  → "62812xxxx"
//	"812xxxx"     → "62812xxxx"
//	"62812xxxx"   → "62812xxxx"
//
// Transport suffixes such as "@s.whatsapp.net" are stripped first.
func NormalizePhone(raw, countryCode string) string {
	if at := strings.IndexByte(raw, '@'); at >= 0 {
		raw = raw[:at]
	}

	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if digits == "" {
		return ""
	}

	switch {
	case strings.HasPrefix(digits, countryCode):
		return digits
	case strings.HasPrefix(digits, "0"):
		return countryCode + digits[1:]
	default:
		return countryCode + digits
	}
}
