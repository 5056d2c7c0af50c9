// Package logging provides zap logger construction and log sanitization.
package logging

import (
	"regexp"
)

const (
	// MaxQueryLogLength caps how much of a SQL statement appears in logs.
	MaxQueryLogLength = 120
	// RedactedText replaces sensitive values in log output.
	RedactedText = "[REDACTED]"
)

var (
	// password=..., pwd=..., pass=... up to the next delimiter
	passwordPattern = regexp.MustCompile(`(?i)(password|pwd|pass)=[^;&\s]+`)

	// Bearer tokens (three base64url segments)
	bearerPattern = regexp.MustCompile(`Bearer\s+[A-Za-z0-9-_]+\.[A-Za-z0-9-_]+\.[A-Za-z0-9-_]*`)

	// api_key=... style credentials
	apiKeyPattern = regexp.MustCompile(`(?i)(api[_-]?key|apikey|key)=[A-Za-z0-9-_]{20,}`)

	// user:pass@host inside connection URLs
	urlCredsPattern = regexp.MustCompile(`://[^:/\s]+:[^@\s]+@[^/\s]+`)
)

// SanitizeConnectionString redacts credentials before a connection string is logged.
func SanitizeConnectionString(connStr string) string {
	if connStr == "" {
		return ""
	}
	out := passwordPattern.ReplaceAllString(connStr, "${1}="+RedactedText)
	out = urlCredsPattern.ReplaceAllString(out, "://"+RedactedText+"@"+RedactedText)
	return out
}

// SanitizeError redacts credentials that may leak through driver errors.
func SanitizeError(err error) string {
	if err == nil {
		return ""
	}
	out := passwordPattern.ReplaceAllString(err.Error(), "${1}="+RedactedText)
	out = bearerPattern.ReplaceAllString(out, "Bearer "+RedactedText)
	out = apiKeyPattern.ReplaceAllString(out, "${1}="+RedactedText)
	out = urlCredsPattern.ReplaceAllString(out, "://"+RedactedText+"@"+RedactedText)
	return out
}

// SanitizeQuery truncates and redacts a SQL statement for logging.
func SanitizeQuery(query string) string {
	if query == "" {
		return ""
	}
	out := query
	if len(out) > MaxQueryLogLength {
		out = out[:MaxQueryLogLength] + "..."
	}
	out = passwordPattern.ReplaceAllString(out, "${1}="+RedactedText)
	out = apiKeyPattern.ReplaceAllString(out, "${1}="+RedactedText)
	return out
}
