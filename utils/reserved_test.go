package utils

import "testing"

func TestIsReservedKey(t *testing.T) {
	tests := []struct {
		name     string
		key      string
		expected bool
	}{
		{"Reserved - resolve", "resolve", true},
		{"Reserved - API (uppercase)", "API", true},
		{"Reserved - Admin (mixed case)", "Admin", true},
		{"Reserved - metrics", "metrics", true},
		{"Not reserved - promo", "promo", false},
		{"Not reserved - resolve-me", "resolve-me", false},
		{"Empty string", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsReservedKey(tt.key); got != tt.expected {
				t.Errorf("IsReservedKey(%q) = %v, want %v", tt.key, got, tt.expected)
			}
		})
	}
}
