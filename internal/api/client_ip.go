package api

import (
	"net"
	"net/http"
	"strings"
)

var defaultTrustedProxyCIDRs = []string{
	"127.0.0.1/32",
	"::1/128",
}

// clientIPResolver honours X-Forwarded-For only when the direct peer is a
// trusted proxy.
type clientIPResolver struct {
	trusted cidrSet
}

func newClientIPResolver(trustedCIDRs []string) clientIPResolver {
	if len(trustedCIDRs) == 0 {
		trustedCIDRs = defaultTrustedProxyCIDRs
	}
	return clientIPResolver{trusted: parseCIDRSet(trustedCIDRs)}
}

func (c clientIPResolver) clientIPFromRequest(r *http.Request) string {
	peer := remoteHost(r)
	if !c.trusted.contains(peer) {
		return peer
	}
	if fwd := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if ip := net.ParseIP(strings.TrimSpace(first)); ip != nil {
			return ip.String()
		}
	}
	if real := net.ParseIP(strings.TrimSpace(r.Header.Get("X-Real-IP"))); real != nil {
		return real.String()
	}
	return peer
}

func remoteHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err == nil && host != "" {
		return host
	}
	return strings.TrimSpace(r.RemoteAddr)
}
