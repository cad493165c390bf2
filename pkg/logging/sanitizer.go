package logging

import (
	"regexp"

	"github.com/ekaya-inc/ekaya-datasources/pkg/models"
)

const (
	// RedactedText is the replacement text for sensitive data in log lines
	RedactedText = "[REDACTED]"
	// MaskedPassword replaces passwords in datasource payloads sent to clients
	MaskedPassword = "********"
)

var (
	// Pattern to match potential passwords in connection strings
	// Matches: password=xxx, pwd=xxx, pass=xxx (until next delimiter)
	passwordPattern = regexp.MustCompile(`(?i)(password|pwd|pass)=[^;&\s]+`)

	// Pattern to match JWT tokens (three base64 segments separated by dots)
	jwtPattern = regexp.MustCompile(`Bearer\s+[A-Za-z0-9-_]+\.[A-Za-z0-9-_]+\.[A-Za-z0-9-_]*`)

	// Pattern to match connection string credentials (user:pass@host format)
	connStringPattern = regexp.MustCompile(`://[^:/\s]+:[^@\s]+@`)
)

// SanitizeConnectionString removes sensitive data from connection strings.
// Use this before logging any connection URL built from a datasource configuration.
func SanitizeConnectionString(connStr string) string {
	if connStr == "" {
		return ""
	}

	sanitized := passwordPattern.ReplaceAllString(connStr, "${1}="+RedactedText)
	sanitized = connStringPattern.ReplaceAllString(sanitized, "://"+RedactedText+"@")

	return sanitized
}

// SanitizeError sanitizes error messages that might contain sensitive data.
func SanitizeError(err error) string {
	if err == nil {
		return ""
	}

	sanitized := passwordPattern.ReplaceAllString(err.Error(), "${1}="+RedactedText)
	sanitized = jwtPattern.ReplaceAllString(sanitized, "Bearer "+RedactedText)
	sanitized = connStringPattern.ReplaceAllString(sanitized, "://"+RedactedText+"@")

	return sanitized
}

// MaskSecrets returns a copy of cfg whose password is replaced with MaskedPassword.
// Empty passwords stay empty so clients can tell "not set" from "set".
func MaskSecrets(cfg *models.DatasourceConfiguration) *models.DatasourceConfiguration {
	out := cfg.Clone()
	if out != nil && out.Authentication != nil && out.Authentication.Password != "" {
		out.Authentication.Password = MaskedPassword
	}
	return out
}
