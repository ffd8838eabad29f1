package utils

import (
	"net"
	"net/url"
	"strings"
)

var privateRanges = []*net.IPNet{
	mustParseCIDR("10.0.0.0/8"),
	mustParseCIDR("172.16.0.0/12"),
	mustParseCIDR("192.168.0.0/16"),
	mustParseCIDR("127.0.0.0/8"),
	mustParseCIDR("169.254.0.0/16"), // link-local IPv4
	mustParseCIDR("::1/128"),
	mustParseCIDR("fe80::/10"),
	mustParseCIDR("fc00::/7"), // unique local IPv6
}

// OriginPolicy decides which browser origins may call the API. LAN origins
// are always trusted; public ones only when listed.
type OriginPolicy struct {
	extra map[string]bool
}

// NewOriginPolicy trusts LAN origins plus every origin in extra, compared by
// scheme and host. "*" trusts everything.
func NewOriginPolicy(extra []string) *OriginPolicy {
	p := &OriginPolicy{extra: make(map[string]bool, len(extra))}
	for _, origin := range extra {
		if key := normalizeOrigin(origin); key != "" {
			p.extra[key] = true
		}
	}
	return p
}

// Allows reports whether origin may receive CORS headers.
func (p *OriginPolicy) Allows(origin string) bool {
	if origin == "" {
		return false
	}
	if p != nil && (p.extra["*"] || p.extra[normalizeOrigin(origin)]) {
		return true
	}
	return IsAllowedOrigin(origin)
}

func normalizeOrigin(origin string) string {
	origin = strings.TrimSpace(origin)
	if origin == "*" {
		return origin
	}
	parsed, err := url.Parse(origin)
	if err != nil || parsed.Host == "" {
		return ""
	}
	return strings.ToLower(parsed.Scheme + "://" + parsed.Host)
}

// IsAllowedOrigin trusts localhost, private and link-local IPs, .local
// hostnames and single-label hostnames.
func IsAllowedOrigin(origin string) bool {
	parsed, err := url.Parse(origin)
	if err != nil || parsed.Host == "" {
		return false
	}

	hostname := parsed.Hostname()
	switch {
	case hostname == "localhost":
		return true
	case strings.HasSuffix(hostname, ".local"):
		return true
	}

	if ip := net.ParseIP(hostname); ip != nil {
		for _, network := range privateRanges {
			if network.Contains(ip) {
				return true
			}
		}
		return false
	}

	// no dots = LAN name
	return !strings.Contains(hostname, ".")
}

func mustParseCIDR(s string) *net.IPNet {
	_, network, err := net.ParseCIDR(s)
	if err != nil {
		panic(err)
	}
	return network
}
