package api

import (
	"fmt"
	"net"
	"strings"

	"github.com/labstack/echo/v4"
)

// newIPExtractor decides how the client address is resolved for rate limits
// and logs. Without trusted proxies forwarding headers are ignored and the
// peer address is used. With them, X-Forwarded-For is walked from the right
// and the first address outside the trusted ranges is the client.
func newIPExtractor(trustedProxies []string) (echo.IPExtractor, error) {
	if len(trustedProxies) == 0 {
		return echo.ExtractIPDirect(), nil
	}

	opts := []echo.TrustOption{
		echo.TrustLoopback(false),
		echo.TrustLinkLocal(false),
		echo.TrustPrivateNet(false),
	}
	for _, proxy := range trustedProxies {
		ipNet, err := parseTrustedProxy(proxy)
		if err != nil {
			return nil, err
		}
		opts = append(opts, echo.TrustIPRange(ipNet))
	}
	return echo.ExtractIPFromXFFHeader(opts...), nil
}

// parseTrustedProxy accepts a CIDR range or a single address.
func parseTrustedProxy(value string) (*net.IPNet, error) {
	value = strings.TrimSpace(value)
	if _, ipNet, err := net.ParseCIDR(value); err == nil {
		return ipNet, nil
	}

	ip := net.ParseIP(value)
	if ip == nil {
		return nil, fmt.Errorf("invalid trusted proxy %q, expected an IP address or CIDR range", value)
	}
	bits := net.IPv6len * 8
	if v4 := ip.To4(); v4 != nil {
		ip, bits = v4, net.IPv4len*8
	}
	return &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)}, nil
}
