package audit

import (
	"net/netip"
	"strings"

	"github.com/mssola/useragent"
)

// MaskIP drops the host part of an address: the last octet for IPv4, everything
// after the /48 prefix for IPv6. Unparseable input is discarded.
func MaskIP(raw string) string {
	addr, err := netip.ParseAddr(strings.TrimSpace(raw))
	if err != nil {
		return ""
	}
	addr = addr.Unmap()
	bits := 24
	if addr.Is6() {
		bits = 48
	}
	prefix, err := addr.Prefix(bits)
	if err != nil {
		return ""
	}
	return prefix.Addr().String()
}

// SummarizeUserAgent reduces a raw user agent to "Browser Version on OS".
func SummarizeUserAgent(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	ua := useragent.New(raw)
	if ua.Bot() {
		return "bot"
	}
	name, version := ua.Browser()
	if major, _, found := strings.Cut(version, "."); found {
		version = major
	}
	summary := strings.TrimSpace(name + " " + version)
	if os := ua.OS(); os != "" {
		if summary == "" {
			return os
		}
		summary += " on " + os
	}
	if summary == "" {
		return "unknown"
	}
	return summary
}

// Redact returns metadata safe to persist.
func (m Metadata) Redact() Metadata {
	return Metadata{
		IP:        MaskIP(m.IP),
		UserAgent: SummarizeUserAgent(m.UserAgent),
		RequestID: m.RequestID,
		Source:    m.Source,
	}
}
