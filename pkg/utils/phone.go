package utils

import (
	"regexp"
	"strings"
)

var nonPhoneChars = regexp.MustCompile(`[^\d+]`)

// NormalizePhoneE164 normalizes a phone number into E.164 form.
// Rules:
// - keep a leading '+' if present
// - remove all spaces and punctuation
// - 10-digit inputs get the default country code prefixed
// Returns "" for empty input.
func NormalizePhoneE164(phone, defaultCountryCode string) string {
	if phone == "" {
		return ""
	}
	if defaultCountryCode == "" {
		defaultCountryCode = "+1"
	}
	if !strings.HasPrefix(defaultCountryCode, "+") {
		defaultCountryCode = "+" + defaultCountryCode
	}

	clean := nonPhoneChars.ReplaceAllString(phone, "")
	if strings.HasPrefix(clean, "+") {
		return clean
	}
	if len(clean) == 10 {
		return defaultCountryCode + clean
	}
	if len(clean) == 11 && strings.HasPrefix(clean, strings.TrimPrefix(defaultCountryCode, "+")) {
		return "+" + clean
	}
	return "+" + clean
}
