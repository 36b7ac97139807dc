package logger

import "strings"

// SanitizedEmail masks an address for log output, keeping just enough shape
// to correlate entries: first character of the local part and the TLD.
func SanitizedEmail(email string) string {
	local, domain, ok := strings.Cut(email, "@")
	if !ok || local == "" || domain == "" {
		return "[invalid-email]"
	}

	masked := local[:1]
	if len(local) > 1 {
		masked += strings.Repeat("*", len(local)-1)
	}

	labels := strings.Split(domain, ".")
	for i := 0; i < len(labels)-1; i++ {
		labels[i] = strings.Repeat("*", len(labels[i]))
	}

	return masked + "@" + strings.Join(labels, ".")
}

// Query parameter names that mark the whole query string as sensitive
var sensitiveParams = []string{
	"password",
	"token",
	"secret",
	"code",
	"api_key",
	"apikey",
	"email",
	"auth",
}

// SanitizeQueryString reports whether a raw query string should be redacted
// from logs instead of recorded verbatim.
func SanitizeQueryString(rawQuery string) bool {
	query := strings.ToLower(rawQuery)
	for _, param := range sensitiveParams {
		if strings.Contains(query, param) {
			return true
		}
	}
	return false
}
