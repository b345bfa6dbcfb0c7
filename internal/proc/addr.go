package proc

import (
	"fmt"
	"net"
	"net/netip"
	"strconv"
	"strings"
)

// parseEndpoint parses the address:port spellings printed by lsof, sockstat
// and netstat: "127.0.0.1:8080", "[::1]:8080", "*:53", "*.53",
// "127.0.0.1.8080" and "::1.8080". A "*" host is the unspecified address of
// the family given by v6.
func parseEndpoint(s string, v6 bool) (netip.AddrPort, error) {
	if strings.HasPrefix(s, "[") {
		end := strings.LastIndexByte(s, ']')
		if end == -1 || end+2 > len(s) || (s[end+1] != ':' && s[end+1] != '.') {
			return netip.AddrPort{}, fmt.Errorf("malformed endpoint %q", s)
		}
		return joinEndpoint(s[1:end], s[end+2:], v6, s)
	}

	// Prefer the colon form, falling back to the BSD dot form when the
	// part after the last colon is not a port ("::1.8080").
	if i := strings.LastIndexByte(s, ':'); i != -1 {
		if ap, err := joinEndpoint(s[:i], s[i+1:], v6, s); err == nil {
			return ap, nil
		}
	}
	if i := strings.LastIndexByte(s, '.'); i != -1 {
		return joinEndpoint(s[:i], s[i+1:], v6, s)
	}
	return netip.AddrPort{}, fmt.Errorf("malformed endpoint %q", s)
}

func joinEndpoint(host, port string, v6 bool, orig string) (netip.AddrPort, error) {
	p, err := strconv.ParseUint(port, 10, 16)
	if err != nil {
		return netip.AddrPort{}, fmt.Errorf("endpoint %q: bad port", orig)
	}
	addr, err := parseHost(host, v6)
	if err != nil {
		return netip.AddrPort{}, fmt.Errorf("endpoint %q: %w", orig, err)
	}
	return netip.AddrPortFrom(addr, uint16(p)), nil
}

func parseHost(host string, v6 bool) (netip.Addr, error) {
	if host == "*" || host == "" {
		if v6 {
			return netip.IPv6Unspecified(), nil
		}
		return netip.IPv4Unspecified(), nil
	}
	return netip.ParseAddr(host)
}

func addrFromIP(ip net.IP) (netip.Addr, bool) {
	addr, ok := netip.AddrFromSlice(ip)
	if !ok {
		return netip.Addr{}, false
	}
	return addr.Unmap(), true
}
