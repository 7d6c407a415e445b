package utils

import (
	"strings"
	"testing"

	"github.com/karmashop-resbrevis/karmapurgex/config"
)

func TestValidateAccessKey(t *testing.T) {
	rules := config.Defaults().Auth

	tests := []struct {
		name    string
		key     string
		wantErr bool
	}{
		{"Valid", "hunter22x", false},
		{"Too short", "ab1", true},
		{"Too long", strings.Repeat("a1", 100), true},
		{"No digit", "onlyletters", true},
		{"No letter", "1234567890", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateAccessKey(tt.key, rules)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateAccessKey(%q) error = %v, wantErr %v", tt.key, err, tt.wantErr)
			}
		})
	}

	if got := AccessKeyRequirements(rules); !strings.Contains(got, "8-128 characters") {
		t.Errorf("AccessKeyRequirements() = %q", got)
	}
}

func TestNewAPIKey(t *testing.T) {
	a, b := NewAPIKey(), NewAPIKey()
	if a == b {
		t.Error("NewAPIKey() returned the same key twice")
	}
	if !strings.HasPrefix(a, "kp_") || len(a) != 35 {
		t.Errorf("NewAPIKey() = %q, want kp_ followed by 32 hex characters", a)
	}
}
