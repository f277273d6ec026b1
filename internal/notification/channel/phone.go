package channel

import (
	"strings"
)

// PhoneRules is a country's canonicalization rule set.
type PhoneRules struct {
	CountryCode      string // without "+", e.g. "966"
	SubscriberLength int    // national mobile number length without trunk prefix
	MobilePrefix     string // leading digit(s) of a bare mobile number
}

// SaudiRules is the default rule set: +966, 9 digit mobiles starting with 5.
var SaudiRules = PhoneRules{CountryCode: "966", SubscriberLength: 9, MobilePrefix: "5"}

const whatsappPrefix = "whatsapp:"

// NormalizePhone canonicalizes raw into "+<digits>". It is idempotent.
// An input without digits yields "".
func NormalizePhone(raw string, rules PhoneRules) string {
	s := strings.TrimSpace(raw)
	if len(s) >= len(whatsappPrefix) && strings.EqualFold(s[:len(whatsappPrefix)], whatsappPrefix) {
		s = strings.TrimSpace(s[len(whatsappPrefix):])
	}

	international := strings.HasPrefix(s, "+")
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, s)

	if digits == "" {
		return ""
	}
	if international {
		return "+" + digits
	}

	switch {
	case strings.HasPrefix(digits, "00"):
		digits = digits[2:]
	case strings.HasPrefix(digits, "0"):
		digits = rules.CountryCode + digits[1:]
	case len(digits) == rules.SubscriberLength && strings.HasPrefix(digits, rules.MobilePrefix):
		digits = rules.CountryCode + digits
	}

	return "+" + digits
}
