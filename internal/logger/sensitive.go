package logger

import (
	"regexp"
	"strings"
)

// SensitiveDataPatterns match values that must never reach log output.
// The first capture group is kept, the rest is replaced.
var SensitiveDataPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(bearer\s+)([A-Za-z0-9-._~+/]+=*)`),
	regexp.MustCompile(`(?i)((api|access|auth|token|secret|key|passw(or)?d)[0-9a-z\-_\.]*[\s:=]+)([^;,\s]{5,})`),
	regexp.MustCompile(`(?i)(session|csrf|sid)=([^;,\s]{5,})`),
}

var (
	dsnPasswordPattern = regexp.MustCompile(`(://[^:/\s@]+:)[^@\s]+@`)
	emailPattern       = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)
)

// SensitiveKeywords mark field names whose values are redacted wholesale
var SensitiveKeywords = []string{
	"password", "passwd", "secret", "credential", "token", "api_key",
	"authorization", "cookie", "session", "csrf", "email", "dsn",
}

// RedactSensitiveData replaces sensitive substrings with "[REDACTED]".
func RedactSensitiveData(input string) string {
	if input == "" {
		return input
	}

	for _, pattern := range SensitiveDataPatterns {
		input = pattern.ReplaceAllString(input, "${1}[REDACTED]")
	}
	input = dsnPasswordPattern.ReplaceAllString(input, "${1}[REDACTED]@")
	input = emailPattern.ReplaceAllString(input, "[EMAIL]")

	return input
}

// IsSensitiveKey reports whether a field name suggests a sensitive value.
func IsSensitiveKey(key string) bool {
	keyLower := strings.ToLower(key)
	for _, sensitive := range SensitiveKeywords {
		if strings.Contains(keyLower, sensitive) {
			return true
		}
	}
	return false
}

// Redacted returns a string field whose value is masked when the key is sensitive.
func Redacted(key, value string) Field {
	if value != "" && IsSensitiveKey(key) {
		return String(key, "[REDACTED]")
	}
	return String(key, RedactSensitiveData(value))
}
