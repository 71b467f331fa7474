package logger

import (
	"regexp"
	"strings"
)

// SensitiveDataPatterns match credentials that must not reach log output
var SensitiveDataPatterns = []*regexp.Regexp{
	// Bearer tokens and JWTs
	regexp.MustCompile(`(?i)(bearer\s+)([A-Za-z0-9-._~+/]+=*)`),
	regexp.MustCompile(`(?i)(eyJ[a-zA-Z0-9_-]{5,}\.eyJ[a-zA-Z0-9_-]{5,})\.[a-zA-Z0-9_-]{5,}`),

	// key=value style secrets
	regexp.MustCompile(`(?i)((api|access|auth|token|secret|key|passw(or)?d)[0-9a-z\-_\.]*[\s:=]+)([^;,\s]{5,})`),
}

// credentialPattern matches user:password@ in DSNs and broker URLs
var credentialPattern = regexp.MustCompile(`([A-Za-z0-9_.-]+:)[^@\s/:]+@`)

// SensitiveKeywords mark field keys whose values are redacted
var SensitiveKeywords = []string{
	"password", "passwd", "secret", "credential", "token", "dsn", "api_key", "apikey",
}

// RedactSensitiveData replaces sensitive information with "[REDACTED]"
func RedactSensitiveData(input string) string {
	if input == "" {
		return input
	}
	input = credentialPattern.ReplaceAllString(input, "$1[REDACTED]@")
	for _, pattern := range SensitiveDataPatterns {
		input = pattern.ReplaceAllString(input, "$1[REDACTED]")
	}
	return input
}

// RedactFields returns a copy of fields with values of sensitive keys
// replaced and string values scrubbed.
func RedactFields(fields []Field) []Field {
	out := make([]Field, len(fields))
	for i, f := range fields {
		out[i] = f
		s, ok := f.Value.(string)
		if !ok {
			continue
		}
		if isSensitiveKey(f.Key) && s != "" {
			out[i].Value = "[REDACTED]"
			continue
		}
		out[i].Value = RedactSensitiveData(s)
	}
	return out
}

func isSensitiveKey(key string) bool {
	key = strings.ToLower(key)
	for _, k := range SensitiveKeywords {
		if strings.Contains(key, k) {
			return true
		}
	}
	return false
}
