package utils

import (
	"errors"
	"strings"
	"testing"
)

func TestValidateURL(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		wantErr error
	}{
		{"Valid HTTP URL", "http://example.com", nil},
		{"Valid HTTPS URL with query", "https://www.example.com/path?query=value", nil},
		{"Valid URL with port", "https://example.com:8080/api", nil},
		{"Host name is not resolved", "https://internal.corp.example", nil},
		{"Public IP literal", "http://8.8.8.8/", nil},
		{"Empty URL", "", ErrEmptyURL},
		{"Invalid URL format", "not a url", ErrInvalidURL},
		{"Invalid scheme - FTP", "ftp://example.com", ErrInvalidScheme},
		{"Invalid scheme - JavaScript", "javascript:alert('xss')", ErrInvalidScheme},
		{"Localhost - hostname", "http://localhost:8080", ErrLocalhostNotAllowed},
		{"Localhost - subdomain", "http://app.localhost", ErrLocalhostNotAllowed},
		{"Localhost - 127.0.0.1", "http://127.0.0.1", ErrLocalhostNotAllowed},
		{"Localhost - 127.1.2.3", "http://127.1.2.3", ErrLocalhostNotAllowed},
		{"Localhost - IPv6 loopback", "http://[::1]", ErrLocalhostNotAllowed},
		{"Unspecified - 0.0.0.0", "http://0.0.0.0", ErrLocalhostNotAllowed},
		{"Private IP - 10.x.x.x", "http://10.0.0.1", ErrPrivateIPNotAllowed},
		{"Private IP - 192.168.x.x", "http://192.168.1.1", ErrPrivateIPNotAllowed},
		{"Private IP - 172.16-31.x.x", "http://172.31.255.254", ErrPrivateIPNotAllowed},
		{"Link-local IP", "http://169.254.1.1", ErrPrivateIPNotAllowed},
		{"IPv6 ULA", "http://[fd00::1]", ErrPrivateIPNotAllowed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := ValidateURL(tt.url); !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidateURL(%q) error = %v, wantErr %v", tt.url, err, tt.wantErr)
			}
		})
	}
}

func TestValidateKey(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		wantErr error
	}{
		{"Simple", "abc", nil},
		{"With dash and underscore", "promo_2024-q1", nil},
		{"Digits only", "2024", nil},
		{"Too short", "ab", ErrKeyTooShort},
		{"Too long", strings.Repeat("a", 65), ErrKeyTooLong},
		{"Leading dash", "-abc", ErrKeyInvalidFormat},
		{"Trailing underscore", "abc_", ErrKeyInvalidFormat},
		{"Slash", "a/b/c", ErrKeyInvalidFormat},
		{"Space", "a bc", ErrKeyInvalidFormat},
		{"Reserved", "Resolve", ErrKeyReserved},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := ValidateKey(tt.key, 3, 64); !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidateKey(%q) error = %v, wantErr %v", tt.key, err, tt.wantErr)
			}
		})
	}
}
