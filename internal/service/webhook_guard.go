package service

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"strings"
	"syscall"
	"time"
)

var errPrivateWebhookTarget = errors.New("webhook target is not a public address")

// sharedAddressSpace is the carrier-grade NAT range, private in practice
// though netip does not flag it.
var sharedAddressSpace = netip.MustParsePrefix("100.64.0.0/10")

// publicWebhookAddr reports whether a hook may be delivered to ip.
func publicWebhookAddr(ip netip.Addr) bool {
	ip = ip.Unmap()
	switch {
	case !ip.IsValid(),
		ip.IsUnspecified(),
		ip.IsLoopback(),
		ip.IsPrivate(),
		ip.IsLinkLocalUnicast(),
		ip.IsLinkLocalMulticast(),
		ip.IsInterfaceLocalMulticast(),
		ip.IsMulticast(),
		sharedAddressSpace.Contains(ip):
		return false
	}
	return true
}

// checkWebhookHost rejects hosts that name a non-public address outright.
// Names that resolve somewhere private are caught at dial time instead.
func checkWebhookHost(host string) error {
	host = strings.TrimSuffix(strings.ToLower(host), ".")
	if host == "localhost" || strings.HasSuffix(host, ".localhost") {
		return errPrivateWebhookTarget
	}
	if ip, err := netip.ParseAddr(strings.Trim(host, "[]")); err == nil && !publicWebhookAddr(ip) {
		return errPrivateWebhookTarget
	}
	return nil
}

// newWebhookClient builds the delivery client. Unless allowPrivate reports
// true, every connection is refused once DNS resolves it to a non-public
// address, which also covers redirects.
func newWebhookClient(allowPrivate func() bool) *http.Client {
	dialer := &net.Dialer{
		Timeout:   5 * time.Second,
		KeepAlive: 30 * time.Second,
		Control: func(network, address string, _ syscall.RawConn) error {
			if allowPrivate() {
				return nil
			}
			ap, err := netip.ParseAddrPort(address)
			if err != nil {
				return fmt.Errorf("webhook dial %s: %w", address, err)
			}
			if !publicWebhookAddr(ap.Addr()) {
				return fmt.Errorf("webhook dial %s: %w", address, errPrivateWebhookTarget)
			}
			return nil
		},
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
		return dialer.DialContext(ctx, network, addr)
	}
	return &http.Client{Timeout: 5 * time.Second, Transport: transport}
}
