package security

import (
	"net/http/httptest"
	"testing"

	"github.com/karmashop-resbrevis/karmapurgex/config"
	"github.com/karmashop-resbrevis/karmapurgex/model"
)

const (
	chromeDesktop = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	safariIPhone  = "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Mobile/15E148 Safari/604.1"
)

func newTestExtractor(t *testing.T, proxies ...string) *SignalExtractor {
	t.Helper()
	cfg := config.Defaults().Security
	cfg.TrustedProxies = proxies
	e, err := NewSignalExtractor(cfg)
	if err != nil {
		t.Fatalf("NewSignalExtractor() error = %v", err)
	}
	return e
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name       string
		proxies    []string
		remoteAddr string
		headers    map[string]string
		want       string
	}{
		{
			name:       "trusted header from trusted peer",
			proxies:    []string{"10.0.0.0/8"},
			remoteAddr: "10.1.2.3:5555",
			headers:    map[string]string{"X-Visitor-IP": "1.2.3.4", "X-Forwarded-For": "5.6.7.8"},
			want:       "1.2.3.4",
		},
		{
			name:       "trusted header ignored from untrusted peer",
			proxies:    []string{"10.0.0.0/8"},
			remoteAddr: "203.0.113.9:5555",
			headers:    map[string]string{"X-Visitor-IP": "1.2.3.4", "X-Forwarded-For": "5.6.7.8"},
			want:       "5.6.7.8",
		},
		{
			name:       "trusted header ignored without proxy list",
			remoteAddr: "10.1.2.3:5555",
			headers:    map[string]string{"X-Visitor-IP": "1.2.3.4"},
			want:       "8.8.8.8",
		},
		{
			name:       "single trusted address",
			proxies:    []string{"192.0.2.1"},
			remoteAddr: "192.0.2.1:1234",
			headers:    map[string]string{"X-Visitor-IP": "9.9.9.9"},
			want:       "9.9.9.9",
		},
		{
			name:       "first forwarded hop",
			remoteAddr: "192.0.2.1:1234",
			headers:    map[string]string{"X-Forwarded-For": "5.6.7.8, 10.0.0.1, 10.0.0.2"},
			want:       "5.6.7.8",
		},
		{
			name:       "fallback when no headers",
			remoteAddr: "192.0.2.1:1234",
			want:       "8.8.8.8",
		},
		{
			name:       "ipv4 loopback normalized",
			remoteAddr: "192.0.2.1:1234",
			headers:    map[string]string{"X-Forwarded-For": "127.0.0.1"},
			want:       "8.8.8.8",
		},
		{
			name:       "ipv6 loopback normalized",
			remoteAddr: "192.0.2.1:1234",
			headers:    map[string]string{"X-Forwarded-For": "::1"},
			want:       "8.8.8.8",
		},
		{
			name:       "mapped loopback normalized",
			remoteAddr: "192.0.2.1:1234",
			headers:    map[string]string{"X-Forwarded-For": "::ffff:127.0.0.1"},
			want:       "8.8.8.8",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestExtractor(t, tt.proxies...)
			req := httptest.NewRequest("GET", "/resolve/abc", nil)
			req.RemoteAddr = tt.remoteAddr
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			if got := e.ClientIP(req); got != tt.want {
				t.Errorf("ClientIP() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNewSignalExtractorInvalidProxy(t *testing.T) {
	cfg := config.Defaults().Security
	cfg.TrustedProxies = []string{"not-an-ip"}
	if _, err := NewSignalExtractor(cfg); err == nil {
		t.Error("expected error for invalid trusted proxy")
	}
}

func TestMatchKeyword(t *testing.T) {
	e := newTestExtractor(t)
	tests := []struct {
		ua   string
		want string
	}{
		{"Googlebot/2.1 (+http://www.google.com/bot.html)", "bot"},
		{"curl/8.4.0", "curl"},
		{"python-requests/2.31", "python"},
		{"Mozilla/5.0 HeadlessChrome/120.0", "headless"},
		{chromeDesktop, ""},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.ua, func(t *testing.T) {
			if got := e.MatchKeyword(tt.ua); got != tt.want {
				t.Errorf("MatchKeyword(%q) = %q, want %q", tt.ua, got, tt.want)
			}
		})
	}
}

func TestDeviceOf(t *testing.T) {
	tests := []struct {
		name string
		ua   string
		want model.DeviceType
	}{
		{"desktop chrome", chromeDesktop, model.DeviceDesktop},
		{"iphone safari", safariIPhone, model.DeviceMobile},
		{"empty", "", model.DeviceDesktop},
		{"curl", "curl/8.4.0", model.DeviceDesktop},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DeviceOf(tt.ua); got != tt.want {
				t.Errorf("DeviceOf() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestIsLikelyBrowser(t *testing.T) {
	tests := []struct {
		name   string
		accept string
		ua     string
		want   bool
	}{
		{"html accept", "text/html,application/xhtml+xml", "curl/8", true},
		{"mozilla ua", "*/*", chromeDesktop, true},
		{"api client", "application/json", "python-requests/2.31", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsLikelyBrowser(tt.accept, tt.ua); got != tt.want {
				t.Errorf("IsLikelyBrowser() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestExtract(t *testing.T) {
	e := newTestExtractor(t)
	req := httptest.NewRequest("GET", "/resolve/abc", nil)
	req.Header.Set("User-Agent", safariIPhone)
	req.Header.Set("X-Forwarded-For", "1.2.3.4")

	s := e.Extract(req)
	if s.IP != "1.2.3.4" || s.Device != model.DeviceMobile || s.SuspiciousMatch != "" || !s.IsLikelyBrowser {
		t.Errorf("Extract() = %+v", s)
	}
}
