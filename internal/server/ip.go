package server

import (
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// clientIP resolves the caller's network address. Behind a trusted proxy the
// first X-Forwarded-For hop wins; otherwise the socket address is used. An
// IPv6-mapped IPv4 address ("::ffff:203.0.113.9") is unmapped so the stored
// form matches what the installed app later reports.
func (s *Server) clientIP(r *http.Request) string {
	var ip string
	if s.cfg.TrustProxy {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			ip = strings.TrimSpace(strings.SplitN(xff, ",", 2)[0])
		}
	}
	if ip == "" {
		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			host = r.RemoteAddr
		}
		ip = host
	}

	if addr, err := netip.ParseAddr(ip); err == nil {
		return addr.Unmap().String()
	}
	return ip
}
