package http

import (
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// IPConfig lists the proxies whose forwarding headers may be believed
type IPConfig struct {
	TrustedProxies []string // CIDR ranges
}

// trusts reports whether addr falls inside any trusted proxy range.
// Invalid CIDR entries are skipped.
func (c *IPConfig) trusts(addr string) bool {
	if c == nil || len(c.TrustedProxies) == 0 {
		return false
	}

	ip, err := netip.ParseAddr(addr)
	if err != nil {
		return false
	}

	for _, cidr := range c.TrustedProxies {
		prefix, err := netip.ParsePrefix(cidr)
		if err != nil {
			continue
		}
		if prefix.Contains(ip.Unmap()) {
			return true
		}
	}
	return false
}

// ExtractClientIP resolves the client address used for rate-limit keys and
// audit records. X-Forwarded-For and X-Real-IP are believed only when the
// direct peer is a trusted proxy, otherwise a client could spoof its own
// address by setting the header itself.
func ExtractClientIP(r *http.Request, config *IPConfig) string {
	peer := peerAddr(r)

	if config.trusts(peer) {
		// X-Forwarded-For holds "client, proxy1, proxy2"; the first
		// parseable entry is the client
		for _, hop := range strings.Split(r.Header.Get("X-Forwarded-For"), ",") {
			hop = strings.TrimSpace(hop)
			if _, err := netip.ParseAddr(hop); err == nil {
				return hop
			}
		}

		if xri := r.Header.Get("X-Real-IP"); xri != "" {
			if _, err := netip.ParseAddr(xri); err == nil {
				return xri
			}
		}
	}

	return peer
}

// peerAddr strips the port from RemoteAddr
func peerAddr(r *http.Request) string {
	if r.RemoteAddr == "" {
		return "unknown"
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
