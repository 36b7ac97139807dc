package middleware

import "net/http"

// SecurityHeadersConfig controls the environment-sensitive headers
type SecurityHeadersConfig struct {
	Env string
}

// SecurityHeaders sets the browser hardening headers on every response. The
// service only serves JSON, so the CSP forbids loading anything.
func SecurityHeaders(config SecurityHeadersConfig) func(http.Handler) http.Handler {
	production := config.Env == "production"

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("X-Frame-Options", "DENY")
			h.Set("Referrer-Policy", "no-referrer")
			h.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
			h.Set("Cache-Control", "no-store")
			h.Set("Permissions-Policy", "camera=(), geolocation=(), microphone=(), payment=()")

			// HSTS only where TLS terminates in front of us
			if production && (r.Header.Get("X-Forwarded-Proto") == "https" || r.URL.Scheme == "https") {
				h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
			}

			next.ServeHTTP(w, r)
		})
	}
}
