package util

import (
	"fmt"
	"net/http"
	"net/netip"
	"strings"
)

// TrustedProxies is the CIDR allowlist whose forwarded headers are believed.
type TrustedProxies struct {
	prefixes []netip.Prefix
}

// NewTrustedProxies parses CIDR or bare IP entries. Empty input returns nil (trust none).
func NewTrustedProxies(entries []string) (*TrustedProxies, error) {
	prefixes := make([]netip.Prefix, 0, len(entries))
	for _, raw := range entries {
		entry := strings.TrimSpace(raw)
		if entry == "" {
			continue
		}
		if strings.Contains(entry, "/") {
			prefix, err := netip.ParsePrefix(entry)
			if err != nil {
				return nil, fmt.Errorf("trusted proxy %q: %w", entry, err)
			}
			prefixes = append(prefixes, prefix.Masked())
			continue
		}
		addr, err := netip.ParseAddr(entry)
		if err != nil {
			return nil, fmt.Errorf("trusted proxy %q: %w", entry, err)
		}
		addr = addr.Unmap()
		prefixes = append(prefixes, netip.PrefixFrom(addr, addr.BitLen()))
	}
	if len(prefixes) == 0 {
		return nil, nil
	}
	return &TrustedProxies{prefixes: prefixes}, nil
}

// Contains reports whether addr falls inside a trusted range.
func (t *TrustedProxies) Contains(addr netip.Addr) bool {
	if t == nil || !addr.IsValid() {
		return false
	}
	addr = addr.Unmap()
	for _, p := range t.prefixes {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// ClientIP resolves the caller address used as the rate-limit key.
// X-Forwarded-For and X-Real-IP are only honoured when the direct peer is trusted;
// the chain is walked right to left and the first untrusted hop wins.
func ClientIP(r *http.Request, trusted *TrustedProxies) string {
	remote, ok := parseRemoteAddr(r.RemoteAddr)
	if !ok {
		return strings.TrimSpace(r.RemoteAddr)
	}
	if !trusted.Contains(remote) {
		return remote.String()
	}

	if chain := parseForwardedFor(r.Header.Get("X-Forwarded-For")); len(chain) > 0 {
		chain = append(chain, remote)
		for i := len(chain) - 1; i >= 0; i-- {
			if !trusted.Contains(chain[i]) {
				return chain[i].String()
			}
		}
		return chain[0].String()
	}
	if realIP, ok := parseAddr(r.Header.Get("X-Real-IP")); ok {
		return realIP.String()
	}
	return remote.String()
}

func parseForwardedFor(raw string) []netip.Addr {
	parts := strings.Split(raw, ",")
	out := make([]netip.Addr, 0, len(parts))
	for _, part := range parts {
		if addr, ok := parseAddr(part); ok {
			out = append(out, addr)
		}
	}
	return out
}

func parseRemoteAddr(raw string) (netip.Addr, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return netip.Addr{}, false
	}
	if ap, err := netip.ParseAddrPort(raw); err == nil {
		return ap.Addr().Unmap(), true
	}
	return parseAddr(raw)
}

func parseAddr(raw string) (netip.Addr, bool) {
	addr, err := netip.ParseAddr(strings.TrimSpace(raw))
	if err != nil {
		return netip.Addr{}, false
	}
	return addr.Unmap(), true
}
