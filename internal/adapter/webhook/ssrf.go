package webhook

import (
	"fmt"
	"net"
	"net/netip"
	"net/url"
)

// ValidateURL rejects webhook destinations that could be used to forge
// requests to internal services: non-HTTP schemes and hosts that resolve
// to loopback, private, link-local, or otherwise non-public addresses.
// Validation runs both at registration and again before every dispatch,
// since DNS answers can change between the two.
func ValidateURL(raw string, allowPrivate bool) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("parse webhook url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("webhook url scheme %q not allowed", u.Scheme)
	}
	host := u.Hostname()
	if host == "" {
		return fmt.Errorf("webhook url has no host")
	}
	if allowPrivate {
		return nil
	}

	addrs, err := resolveHost(host)
	if err != nil {
		return fmt.Errorf("resolve webhook host %s: %w", host, err)
	}
	for _, addr := range addrs {
		if err := checkAddr(addr); err != nil {
			return fmt.Errorf("webhook host %s: %w", host, err)
		}
	}
	return nil
}

func resolveHost(host string) ([]netip.Addr, error) {
	if addr, err := netip.ParseAddr(host); err == nil {
		return []netip.Addr{addr}, nil
	}
	ips, err := net.LookupIP(host)
	if err != nil {
		return nil, err
	}
	addrs := make([]netip.Addr, 0, len(ips))
	for _, ip := range ips {
		if addr, ok := netip.AddrFromSlice(ip); ok {
			addrs = append(addrs, addr.Unmap())
		}
	}
	return addrs, nil
}

func checkAddr(addr netip.Addr) error {
	switch {
	case addr.IsLoopback():
		return fmt.Errorf("resolves to loopback address %s", addr)
	case addr.IsPrivate():
		return fmt.Errorf("resolves to private address %s", addr)
	case addr.IsLinkLocalUnicast(), addr.IsLinkLocalMulticast():
		return fmt.Errorf("resolves to link-local address %s", addr)
	case addr.IsUnspecified():
		return fmt.Errorf("resolves to unspecified address %s", addr)
	case addr.IsMulticast():
		return fmt.Errorf("resolves to multicast address %s", addr)
	case !addr.IsValid(), !addr.IsGlobalUnicast():
		return fmt.Errorf("resolves to non-routable address %s", addr)
	}
	return nil
}
