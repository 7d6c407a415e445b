package utils

import (
	"net"
	"net/url"
	"regexp"
	"strings"
)

var (
	keyFormat = regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9_-]*[a-zA-Z0-9])?$`)

	privateRanges = mustParseCIDRs(
		"10.0.0.0/8",
		"172.16.0.0/12",
		"192.168.0.0/16",
		"169.254.0.0/16",
		"fc00::/7",
		"fe80::/10",
	)
)

func mustParseCIDRs(cidrs ...string) []*net.IPNet {
	nets := make([]*net.IPNet, 0, len(cidrs))
	for _, cidr := range cidrs {
		_, n, err := net.ParseCIDR(cidr)
		if err != nil {
			panic(err)
		}
		nets = append(nets, n)
	}
	return nets
}

// ValidateURL accepts absolute http(s) URLs that do not point at loopback or
// private address literals. Host names are not resolved.
func ValidateURL(rawURL string) error {
	if rawURL == "" {
		return ErrEmptyURL
	}

	parsed, err := url.ParseRequestURI(rawURL)
	if err != nil {
		return ErrInvalidURL
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return ErrInvalidScheme
	}
	if parsed.Host == "" {
		return ErrEmptyHost
	}

	hostname := strings.ToLower(parsed.Hostname())
	if hostname == "localhost" || strings.HasSuffix(hostname, ".localhost") {
		return ErrLocalhostNotAllowed
	}

	ip := net.ParseIP(hostname)
	if ip == nil {
		return nil
	}
	if ip.IsLoopback() || ip.IsUnspecified() {
		return ErrLocalhostNotAllowed
	}
	for _, n := range privateRanges {
		if n.Contains(ip) {
			return ErrPrivateIPNotAllowed
		}
	}
	return nil
}

// ValidateKey checks a shortlink key: length bounds, URL-safe characters
// and the reserved list.
func ValidateKey(key string, minLength, maxLength int) error {
	if len(key) < minLength {
		return ErrKeyTooShort
	}
	if len(key) > maxLength {
		return ErrKeyTooLong
	}
	if !keyFormat.MatchString(key) {
		return ErrKeyInvalidFormat
	}
	if IsReservedKey(key) {
		return ErrKeyReserved
	}
	return nil
}
