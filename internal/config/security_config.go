package config

import (
	"net/netip"
	"strings"
)

type SecurityConfig interface {
	GetLoginRateLimitPerMinute() int
	GetTrustedProxies() TrustedProxies
}

type Security struct{}

var _ SecurityConfig = Security{}

func (Security) GetLoginRateLimitPerMinute() int {
	return GetEnvInt("LOGIN_RATE_LIMIT_PER_MINUTE", 20)
}

// TrustedProxies are the peers whose X-Forwarded-For header is believed.
type TrustedProxies []netip.Prefix

// Contains reports whether ip (without port) belongs to a trusted proxy.
func (t TrustedProxies) Contains(ip string) bool {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, prefix := range t {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}

// GetTrustedProxies reads TRUSTED_PROXIES as a comma separated list of IPs or CIDRs.
// Malformed entries are skipped. Empty means no proxy is trusted.
func (Security) GetTrustedProxies() TrustedProxies {
	return ParseTrustedProxies(GetEnv("TRUSTED_PROXIES", ""))
}

func ParseTrustedProxies(value string) TrustedProxies {
	var proxies TrustedProxies
	for _, entry := range strings.Split(value, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if prefix, err := netip.ParsePrefix(entry); err == nil {
			proxies = append(proxies, prefix.Masked())
			continue
		}
		if addr, err := netip.ParseAddr(entry); err == nil {
			addr = addr.Unmap()
			proxies = append(proxies, netip.PrefixFrom(addr, addr.BitLen()))
		}
	}
	return proxies
}
