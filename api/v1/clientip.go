package v1

import (
	"net/netip"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// reportingAddr finds the public address an event batch was reported from,
// used only for country enrichment. Integrations usually run behind the
// tenant's own proxy, so X-Forwarded-For is checked before the socket
// address; an integration relaying on behalf of devices can set the header
// itself. Returns "" when no public address can be determined, which
// disables enrichment for the batch.
func reportingAddr(c *fiber.Ctx) string {
	candidates := strings.Split(c.Get(fiber.HeaderXForwardedFor), ",")
	candidates = append(candidates, c.Get("X-Real-IP"))

	if addr := firstPublicAddr(candidates); addr != "" {
		return addr
	}

	for _, raw := range []string{c.Context().RemoteAddr().String(), c.IP()} {
		if addr := canonicalAddr(raw); isPublicAddr(addr) {
			return addr.String()
		}
	}
	return ""
}

// firstPublicAddr picks the first public IPv4 out of the candidates,
// falling back to the first public IPv6 when no v4 is present.
func firstPublicAddr(candidates []string) string {
	var v6 string
	for _, raw := range candidates {
		addr := canonicalAddr(raw)
		if !isPublicAddr(addr) {
			continue
		}
		if addr.Is4() {
			return addr.String()
		}
		if v6 == "" {
			v6 = addr.String()
		}
	}
	return v6
}

// canonicalAddr parses one header entry into an address. Entries arrive in
// several shapes: bare, quoted, with a port, bracketed IPv6, or with a zone
// suffix. 4-in-6 mapped addresses are unmapped so private-range checks see
// the real IPv4. The zero Addr is returned for anything unparsable.
func canonicalAddr(raw string) netip.Addr {
	s := strings.Trim(strings.TrimSpace(raw), `"`)
	if s == "" {
		return netip.Addr{}
	}
	if i := strings.IndexByte(s, '%'); i >= 0 {
		s = s[:i]
	}

	if ap, err := netip.ParseAddrPort(s); err == nil {
		return ap.Addr().Unmap()
	}

	s = strings.TrimSuffix(strings.TrimPrefix(s, "["), "]")
	if addr, err := netip.ParseAddr(s); err == nil {
		return addr.Unmap()
	}
	return netip.Addr{}
}

// isPublicAddr reports whether the address is usable for geo lookup:
// valid and neither private (RFC 1918 / ULA), loopback, link-local nor
// unspecified.
func isPublicAddr(a netip.Addr) bool {
	if !a.IsValid() {
		return false
	}
	return !a.IsPrivate() &&
		!a.IsLoopback() &&
		!a.IsLinkLocalUnicast() &&
		!a.IsLinkLocalMulticast() &&
		!a.IsUnspecified()
}
