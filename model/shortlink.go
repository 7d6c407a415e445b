package model

import (
	"strings"
	"time"
)

// LivenessStatus is the health classification of a destination URL.
// An empty value means the check is still pending.
type LivenessStatus string

const (
	LivenessLive    LivenessStatus = "LIVE"
	LivenessDead    LivenessStatus = "DEAD"
	LivenessRedFlag LivenessStatus = "RED FLAG"
)

func (s LivenessStatus) Valid() bool {
	switch s {
	case LivenessLive, LivenessDead, LivenessRedFlag, "":
		return true
	}
	return false
}

// DeviceType is the coarse visitor device classification.
type DeviceType string

const (
	DeviceDesktop DeviceType = "Desktop"
	DeviceMobile  DeviceType = "Mobile"
	// DeviceAny disables the device rule.
	DeviceAny DeviceType = "Allow All"
)

// ParseDeviceType accepts the owner-facing spellings, case-insensitively.
func ParseDeviceType(s string) (DeviceType, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return "", true
	case "desktop":
		return DeviceDesktop, true
	case "mobile":
		return DeviceMobile, true
	case "allow all":
		return DeviceAny, true
	}
	return "", false
}

// ConnectionPolicy selects which connection classes a shortlink refuses.
type ConnectionPolicy string

const (
	ConnectionAllowAll   ConnectionPolicy = "Allow All"
	ConnectionBlockVPN   ConnectionPolicy = "Block VPN"
	ConnectionBlockProxy ConnectionPolicy = "Block Proxy"
	ConnectionBlockAll   ConnectionPolicy = "Block All"
)

func ParseConnectionPolicy(s string) (ConnectionPolicy, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return "", true
	case "allow all":
		return ConnectionAllowAll, true
	case "block vpn":
		return ConnectionBlockVPN, true
	case "block proxy":
		return ConnectionBlockProxy, true
	case "block all":
		return ConnectionBlockAll, true
	}
	return "", false
}

const (
	ShortlinkActive = "ACTIVE"
)

// Shortlink maps an owner's key to one or two destinations plus access rules.
type Shortlink struct {
	ID                 string           `json:"id" bson:"id"`
	Owner              string           `json:"owner" bson:"owner"`
	Key                string           `json:"key" bson:"key"`
	URL                string           `json:"url" bson:"url"`
	SecondaryURL       string           `json:"secondaryUrl,omitempty" bson:"secondaryUrl,omitempty"`
	PrimaryURLStatus   LivenessStatus   `json:"primaryUrlStatus" bson:"primaryUrlStatus"`
	SecondaryURLStatus LivenessStatus   `json:"secondaryUrlStatus,omitempty" bson:"secondaryUrlStatus,omitempty"`
	Status             string           `json:"status" bson:"status"`
	StatusCode         int              `json:"statusCode,omitempty" bson:"statusCode,omitempty"`
	AllowedDevice      DeviceType       `json:"allowedDevice,omitempty" bson:"allowedDevice,omitempty"`
	ConnectionType     ConnectionPolicy `json:"connectionType,omitempty" bson:"connectionType,omitempty"`
	AllowedCountry     string           `json:"allowedCountry,omitempty" bson:"allowedCountry,omitempty"`
	AllowedISP         string           `json:"allowedIsp,omitempty" bson:"allowedIsp,omitempty"`
	WhitelistedIPs     []string         `json:"whitelistedIps" bson:"whitelistedIps"`
	BlacklistedIPs     []string         `json:"blacklistedIps" bson:"blacklistedIps"`
	CreatedAt          time.Time        `json:"createdAt" bson:"createdAt"`
	UpdatedAt          time.Time        `json:"updatedAt" bson:"updatedAt"`
}

// IsWhitelisted reports literal membership of ip in the allow-list.
func (s *Shortlink) IsWhitelisted(ip string) bool {
	return containsIP(s.WhitelistedIPs, ip)
}

// IsBlacklisted reports literal membership of ip in the deny-list.
func (s *Shortlink) IsBlacklisted(ip string) bool {
	return containsIP(s.BlacklistedIPs, ip)
}

// Destination returns the primary URL when it is LIVE, else the secondary
// URL when it is LIVE.
func (s *Shortlink) Destination() (string, bool) {
	if s.PrimaryURLStatus == LivenessLive && s.URL != "" {
		return s.URL, true
	}
	if s.SecondaryURLStatus == LivenessLive && s.SecondaryURL != "" {
		return s.SecondaryURL, true
	}
	return "", false
}

// HasAdvancedRules reports whether any tier-gated field is set.
func (s *Shortlink) HasAdvancedRules() bool {
	return s.AllowedDevice != "" || s.ConnectionType != "" || s.AllowedCountry != "" ||
		s.AllowedISP != "" || s.SecondaryURL != "" ||
		len(s.WhitelistedIPs) > 0 || len(s.BlacklistedIPs) > 0
}

func containsIP(list []string, ip string) bool {
	for _, entry := range list {
		if strings.TrimSpace(entry) == ip {
			return true
		}
	}
	return false
}

// ShortlinkRequest is the create/update payload of the management API.
type ShortlinkRequest struct {
	// OriginalKey names the shortlink to replace on update; empty means Key.
	OriginalKey    string   `json:"originalKey,omitempty"`
	Key            string   `json:"key" validate:"required"`
	URL            string   `json:"url" validate:"required,url"`
	SecondaryURL   string   `json:"secondaryUrl" validate:"omitempty,url"`
	StatusCode     int      `json:"statusCode" validate:"omitempty,oneof=302 403 404"`
	AllowedDevice  string   `json:"allowedDevice"`
	ConnectionType string   `json:"connectionType"`
	AllowedCountry string   `json:"allowedCountry" validate:"omitempty,alpha,len=2"`
	AllowedISP     string   `json:"allowedIsp" validate:"omitempty,max=128"`
	WhitelistedIPs []string `json:"whitelistedIps" validate:"omitempty,dive,ip"`
	BlacklistedIPs []string `json:"blacklistedIps" validate:"omitempty,dive,ip"`
}

// ShortlinkPatch carries the partial update of PATCH /api/shortlinks. Nil
// fields are left unchanged.
type ShortlinkPatch struct {
	Key            string    `json:"key" validate:"required"`
	Status         *string   `json:"status,omitempty" validate:"omitempty,max=32"`
	StatusCode     *int      `json:"statusCode,omitempty" validate:"omitempty,oneof=302 403 404"`
	AllowedDevice  *string   `json:"allowedDevice,omitempty"`
	ConnectionType *string   `json:"connectionType,omitempty"`
	AllowedCountry *string   `json:"allowedCountry,omitempty" validate:"omitempty,alpha,len=2"`
	AllowedISP     *string   `json:"allowedIsp,omitempty" validate:"omitempty,max=128"`
	WhitelistedIPs *[]string `json:"whitelistedIps,omitempty" validate:"omitempty,dive,ip"`
	BlacklistedIPs *[]string `json:"blacklistedIps,omitempty" validate:"omitempty,dive,ip"`
}

// HasAdvancedRules reports whether the patch touches a tier-gated field with
// a non-empty value.
func (p *ShortlinkPatch) HasAdvancedRules() bool {
	nonEmpty := func(s *string) bool { return s != nil && *s != "" }
	return nonEmpty(p.AllowedDevice) || nonEmpty(p.ConnectionType) ||
		nonEmpty(p.AllowedCountry) || nonEmpty(p.AllowedISP) ||
		(p.WhitelistedIPs != nil && len(*p.WhitelistedIPs) > 0) ||
		(p.BlacklistedIPs != nil && len(*p.BlacklistedIPs) > 0)
}

// StatusPatchRequest sets the liveness status of one of a shortlink's URLs.
type StatusPatchRequest struct {
	Key    string `json:"key" validate:"required"`
	URL    string `json:"url" validate:"required"`
	Status string `json:"status" validate:"required,liveness"`
	Type   string `json:"type" validate:"required,oneof=primary secondary"`
}
