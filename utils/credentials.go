package utils

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/karmashop-resbrevis/karmapurgex/config"

	"github.com/google/uuid"
)

// ValidateAccessKey checks an owner's login key against the configured
// rules.
func ValidateAccessKey(key string, rules config.AuthConfig) error {
	if len(key) < rules.MinKeyLength {
		return fmt.Errorf("key must be at least %d characters long", rules.MinKeyLength)
	}
	if rules.MaxKeyLength > 0 && len(key) > rules.MaxKeyLength {
		return fmt.Errorf("key must not exceed %d characters", rules.MaxKeyLength)
	}
	if rules.RequireLetters && !strings.ContainsFunc(key, unicode.IsLetter) {
		return fmt.Errorf("key must contain at least one letter")
	}
	if rules.RequireDigit && !strings.ContainsFunc(key, unicode.IsDigit) {
		return fmt.Errorf("key must contain at least one digit")
	}
	return nil
}

// AccessKeyRequirements describes the rules for error messages.
func AccessKeyRequirements(rules config.AuthConfig) string {
	requirements := []string{fmt.Sprintf("%d-%d characters", rules.MinKeyLength, rules.MaxKeyLength)}
	if rules.RequireLetters {
		requirements = append(requirements, "at least one letter")
	}
	if rules.RequireDigit {
		requirements = append(requirements, "at least one digit")
	}
	return strings.Join(requirements, ", ")
}

// NewAPIKey returns a fresh resolution API key.
func NewAPIKey() string {
	return "kp_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}
