// Package redact strips credentials and personal data from strings before
// they reach logs. Vendor error bodies and URLs routinely echo access tokens
// and phone numbers back.
package redact

import "regexp"

// Placeholders.
const (
	Placeholder           = "[REDACTED]"
	CredentialPlaceholder = "[REDACTED_CREDENTIAL]"
	KeyPlaceholder        = "[REDACTED_KEY]"
	JWTPlaceholder        = "[REDACTED_JWT]"
	PhonePlaceholder      = "[REDACTED_PHONE]"
	EmailPlaceholder      = "[REDACTED_EMAIL]"
)

type rule struct {
	pattern     *regexp.Regexp
	replacement string
}

// Applied in order; JWTs go before the generic bearer rule.
var rules = []rule{
	{regexp.MustCompile(`(?i)(postgres(?:ql)?|mysql|redis)://[^@\s]+@`), "${1}://" + CredentialPlaceholder + "@"},
	{regexp.MustCompile(`eyJ[A-Za-z0-9_-]+\.eyJ[A-Za-z0-9_-]+\.[A-Za-z0-9_-]+`), JWTPlaceholder},
	{regexp.MustCompile(`(?i)\bbearer\s+[A-Za-z0-9._~+/=-]{8,}`), "Bearer " + KeyPlaceholder},
	{regexp.MustCompile(`\bsk-[A-Za-z0-9]{16,}`), KeyPlaceholder},
	{regexp.MustCompile(`(?i)\b(access_token|client_secret|client_id|secret|api_key|apikey|key)=[^&\s"']+`), "${1}=" + Placeholder},
	{regexp.MustCompile(`(?i)"(access_token|refresh_token|api_key|secret|session_key)"\s*:\s*"[^"]*"`), `"${1}":"` + Placeholder + `"`},
	{regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`), EmailPlaceholder},
	{regexp.MustCompile(`(?:\+?86)?\b1[3-9]\d{9}\b`), PhonePlaceholder},
}

// String redacts sensitive data in s.
func String(s string) string {
	if s == "" {
		return s
	}
	for _, r := range rules {
		s = r.pattern.ReplaceAllString(s, r.replacement)
	}
	return s
}

// Error redacts err.Error(). A nil error yields "".
func Error(err error) string {
	if err == nil {
		return ""
	}
	return String(err.Error())
}
