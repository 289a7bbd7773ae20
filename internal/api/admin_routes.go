package api

import (
	"log/slog"
	"net/http"
	"net/http/pprof"
	"net/netip"
	"strings"
)

var defaultAdminRouteCIDRs = []string{
	"127.0.0.1/32",
	"::1/128",
}

// cidrSet matches client addresses against configured prefixes. Bare
// addresses are accepted as single-host prefixes.
type cidrSet []netip.Prefix

func parseCIDRSet(cidrs []string) cidrSet {
	set := make(cidrSet, 0, len(cidrs))
	for _, raw := range cidrs {
		value := strings.TrimSpace(raw)
		if value == "" {
			continue
		}
		if addr, err := netip.ParseAddr(value); err == nil {
			addr = addr.Unmap()
			set = append(set, netip.PrefixFrom(addr, addr.BitLen()))
			continue
		}
		prefix, err := netip.ParsePrefix(value)
		if err != nil {
			slog.Warn("ignoring invalid CIDR", "cidr", value, "error", err)
			continue
		}
		set = append(set, prefix.Masked())
	}
	return set
}

func (c cidrSet) contains(host string) bool {
	addr, err := netip.ParseAddr(strings.TrimSpace(host))
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, prefix := range c {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}

// adminRouteAccess hides operator endpoints (/admin/health, pprof) from
// clients outside the allowlist by answering 404.
type adminRouteAccess struct {
	allowList cidrSet
	clientIP  func(*http.Request) string
}

func newAdminRouteAccess(cidrs []string, clientIP func(*http.Request) string) adminRouteAccess {
	if clientIP == nil {
		clientIP = remoteHost
	}
	return adminRouteAccess{
		allowList: parseCIDRSet(cidrs),
		clientIP:  clientIP,
	}
}

func (a adminRouteAccess) wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.allows(r) {
			http.NotFound(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (a adminRouteAccess) allows(r *http.Request) bool {
	return a.allowList.contains(a.clientIP(r))
}

func (s *Server) registerPprofRoutes() {
	guard := func(h http.HandlerFunc) http.Handler { return s.adminRouteAccess.wrap(h) }
	s.mux.Handle("GET /debug/pprof/", guard(pprof.Index))
	s.mux.Handle("GET /debug/pprof/cmdline", guard(pprof.Cmdline))
	s.mux.Handle("GET /debug/pprof/profile", guard(pprof.Profile))
	s.mux.Handle("GET /debug/pprof/symbol", guard(pprof.Symbol))
	s.mux.Handle("POST /debug/pprof/symbol", guard(pprof.Symbol))
	s.mux.Handle("GET /debug/pprof/trace", guard(pprof.Trace))
	s.mux.Handle("GET /debug/pprof/{profile}", guard(func(w http.ResponseWriter, r *http.Request) {
		pprof.Handler(r.PathValue("profile")).ServeHTTP(w, r)
	}))
}
