package security

import (
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/karmashop-resbrevis/karmapurgex/config"
	"github.com/karmashop-resbrevis/karmapurgex/model"

	"github.com/mssola/useragent"
	"github.com/rs/zerolog/log"
)

// Signals are the client attributes the decision engine judges a visit on.
type Signals struct {
	IP        string
	UserAgent string
	Device    model.DeviceType
	// SuspiciousMatch is the first configured keyword found in the
	// user-agent, empty when none matched.
	SuspiciousMatch string
	// IsLikelyBrowser only picks the error response shape.
	IsLikelyBrowser bool
}

// SignalExtractor derives Signals from a raw request.
type SignalExtractor struct {
	trustedHeader  string
	trustedProxies []*net.IPNet
	fallbackIP     string
	keywords       []string
}

// NewSignalExtractor parses the trusted proxy list, which accepts CIDRs and
// bare addresses.
func NewSignalExtractor(cfg config.SecurityConfig) (*SignalExtractor, error) {
	proxies := make([]*net.IPNet, 0, len(cfg.TrustedProxies))
	for _, entry := range cfg.TrustedProxies {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if !strings.Contains(entry, "/") {
			ip := net.ParseIP(entry)
			if ip == nil {
				return nil, fmt.Errorf("invalid trusted proxy %q", entry)
			}
			bits := 128
			if ip.To4() != nil {
				ip = ip.To4()
				bits = 32
			}
			proxies = append(proxies, &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)})
			continue
		}
		_, network, err := net.ParseCIDR(entry)
		if err != nil {
			return nil, fmt.Errorf("invalid trusted proxy %q: %w", entry, err)
		}
		proxies = append(proxies, network)
	}

	keywords := make([]string, 0, len(cfg.SuspiciousKeywords))
	for _, k := range cfg.SuspiciousKeywords {
		if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
			keywords = append(keywords, k)
		}
	}

	fallback := cfg.FallbackIP
	if fallback == "" {
		fallback = "8.8.8.8"
	}

	return &SignalExtractor{
		trustedHeader:  cfg.TrustedIPHeader,
		trustedProxies: proxies,
		fallbackIP:     fallback,
		keywords:       keywords,
	}, nil
}

// Extract reads every signal from r.
func (e *SignalExtractor) Extract(r *http.Request) Signals {
	ua := r.UserAgent()
	return Signals{
		IP:              e.ClientIP(r),
		UserAgent:       ua,
		Device:          DeviceOf(ua),
		SuspiciousMatch: e.MatchKeyword(ua),
		IsLikelyBrowser: IsLikelyBrowser(r.Header.Get("Accept"), ua),
	}
}

// ClientIP resolves the visitor address: the trusted header when the direct
// peer is a trusted proxy, then the first X-Forwarded-For hop, then the
// fallback. Loopback addresses map to the fallback as well.
func (e *SignalExtractor) ClientIP(r *http.Request) string {
	ip := ""
	if e.trustedHeader != "" && e.fromTrustedProxy(r) {
		ip = strings.TrimSpace(r.Header.Get(e.trustedHeader))
	}
	if ip == "" {
		if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
			ip = strings.TrimSpace(strings.Split(forwarded, ",")[0])
		}
	}
	if ip == "" || isLoopback(ip) {
		return e.fallbackIP
	}
	return ip
}

func (e *SignalExtractor) fromTrustedProxy(r *http.Request) bool {
	if len(e.trustedProxies) == 0 {
		return false
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	peer := net.ParseIP(host)
	if peer == nil {
		return false
	}
	for _, network := range e.trustedProxies {
		if network.Contains(peer) {
			return true
		}
	}
	log.Debug().Str("peer", host).Msg("Ignoring trusted IP header from untrusted peer")
	return false
}

// MatchKeyword returns the first suspicious keyword contained in ua.
func (e *SignalExtractor) MatchKeyword(ua string) string {
	lower := strings.ToLower(ua)
	for _, k := range e.keywords {
		if strings.Contains(lower, k) {
			return k
		}
	}
	return ""
}

// DeviceOf classifies a user-agent as Mobile or Desktop.
func DeviceOf(ua string) model.DeviceType {
	if ua != "" && useragent.New(ua).Mobile() {
		return model.DeviceMobile
	}
	return model.DeviceDesktop
}

func IsLikelyBrowser(accept, ua string) bool {
	return strings.Contains(strings.ToLower(accept), "text/html") ||
		strings.Contains(strings.ToLower(ua), "mozilla")
}

func isLoopback(ip string) bool {
	if strings.EqualFold(ip, "localhost") {
		return true
	}
	parsed := net.ParseIP(ip)
	return parsed != nil && parsed.IsLoopback()
}
