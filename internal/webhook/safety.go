package webhook

import (
	"net"
	"net/url"
	"strings"
)

// IsSafeCallback rejects callback targets that would point a delivery at the
// service's own network: non-http(s) schemes, literal private or loopback
// IPs, and literal localhost names. No DNS resolution is performed, so a
// hostname that resolves to a private address at send time is not caught.
func IsSafeCallback(raw string) bool {
	parsed, err := url.Parse(raw)
	if err != nil {
		return false
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return false
	}
	host := parsed.Hostname()
	if host == "" {
		return false
	}
	if ip := net.ParseIP(host); ip != nil {
		if ip.IsLoopback() || ip.IsPrivate() {
			return false
		}
		return true
	}
	switch strings.ToLower(host) {
	case "localhost", "127.0.0.1", "::1":
		return false
	}
	return true
}
