package model

import (
	"strings"
	"time"
)

// Tier is the subscription level of an owner.
type Tier string

const (
	TierFree       Tier = "free"
	TierPro        Tier = "pro"
	TierEnterprise Tier = "enterprise"
)

func ParseTier(s string) (Tier, bool) {
	switch Tier(strings.ToLower(strings.TrimSpace(s))) {
	case TierFree:
		return TierFree, true
	case TierPro:
		return TierPro, true
	case TierEnterprise:
		return TierEnterprise, true
	}
	return "", false
}

// MaxShortlinks is the per-owner shortlink cap; -1 means unlimited.
func (t Tier) MaxShortlinks() int {
	switch t {
	case TierPro:
		return 3
	case TierEnterprise:
		return -1
	default:
		return 1
	}
}

// Duration is the length class of a subscription period.
type Duration string

const (
	Duration7Day   Duration = "7day"
	Duration1Month Duration = "1month"
	Duration1Year  Duration = "1year"
)

// ParseDuration normalizes the accepted spellings, including the short
// aliases "month" and "year".
func ParseDuration(s string) (Duration, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "7day", "7days", "week":
		return Duration7Day, true
	case "1month", "month":
		return Duration1Month, true
	case "1year", "year":
		return Duration1Year, true
	}
	return "", false
}

// Normalize maps aliases onto the canonical value. Unknown values are
// returned unchanged.
func (d Duration) Normalize() Duration {
	if n, ok := ParseDuration(string(d)); ok {
		return n
	}
	return d
}

// End returns the end of a period starting at start.
func (d Duration) End(start time.Time) time.Time {
	switch d.Normalize() {
	case Duration1Month:
		return start.AddDate(0, 1, 0)
	case Duration1Year:
		return start.AddDate(1, 0, 0)
	default:
		return start.AddDate(0, 0, 7)
	}
}

type ProfileStatus string

const (
	ProfileApproved ProfileStatus = "approved"
	ProfileWaiting  ProfileStatus = "waiting"
	ProfileDenied   ProfileStatus = "denied"
	ProfileExpired  ProfileStatus = "expired"
)

func ParseProfileStatus(s string) (ProfileStatus, bool) {
	switch ProfileStatus(strings.ToLower(strings.TrimSpace(s))) {
	case ProfileApproved:
		return ProfileApproved, true
	case ProfileWaiting:
		return ProfileWaiting, true
	case ProfileDenied:
		return ProfileDenied, true
	case ProfileExpired:
		return ProfileExpired, true
	}
	return "", false
}

// Profile is an owner's subscription record. APIKey is the credential
// presented on the resolution endpoint.
type Profile struct {
	Username          string        `json:"username" bson:"username"`
	APIKey            string        `json:"apiKey" bson:"apiKey"`
	Status            ProfileStatus `json:"status" bson:"status"`
	Subscription      Tier          `json:"subscription" bson:"subscription"`
	SubscriptionType  Duration      `json:"subscriptionType" bson:"subscriptionType"`
	SubscriptionStart time.Time     `json:"subscriptionStart" bson:"subscriptionStart"`
	CreatedAt         time.Time     `json:"createdAt" bson:"createdAt"`
	UpdatedAt         time.Time     `json:"updatedAt" bson:"updatedAt"`
}

// PeriodEnd is the end of the current subscription period.
func (p *Profile) PeriodEnd() time.Time {
	return p.SubscriptionType.End(p.SubscriptionStart)
}

// Lapsed reports whether the current period ended before now.
func (p *Profile) Lapsed(now time.Time) bool {
	return p.PeriodEnd().Before(now)
}

// ProfileUpdateRequest is the admin payload for changing a subscription.
type ProfileUpdateRequest struct {
	Subscription     string `json:"subscription" validate:"omitempty,oneof=free pro enterprise"`
	SubscriptionType string `json:"subscriptionType" validate:"omitempty,oneof=7day 1month 1year month year"`
	Status           string `json:"status" validate:"omitempty,oneof=approved waiting denied expired"`
	RestartPeriod    bool   `json:"restartPeriod"`
}
