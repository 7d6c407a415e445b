package engine

import (
	"strings"

	"github.com/karmashop-resbrevis/karmapurgex/model"
)

// BlockReason is the human-readable verdict reason stored with a visit and
// returned to blocked callers.
type BlockReason string

const (
	ReasonBot          BlockReason = "BOT is not allowed"
	ReasonCountry      BlockReason = "Your country is banned from accessing this resource."
	ReasonDevice       BlockReason = "Device not allowed"
	ReasonProxy        BlockReason = "PROXY is not allowed"
	ReasonVPN          BlockReason = "VPN is not allowed"
	ReasonDatacenter   BlockReason = "DATACENTER is not allowed"
	ReasonVPNOrProxy   BlockReason = "VPN or Proxy is not allowed"
	ReasonAccessDenied BlockReason = "Access denied"
	ReasonUserAgent    BlockReason = "BOT User Agent"
	ReasonHuman        BlockReason = "Real Human"
	ReasonWhitelisted  BlockReason = "Whitelisted IP"
	ReasonBlacklisted  BlockReason = "IP Blacklisted"
)

// Connection classes reported by IP intelligence.
const (
	ConnVPN        = "vpn"
	ConnProxy      = "proxy"
	ConnDatacenter = "datacenter"
)

// Policy is one access rule. Evaluate returns the reason and true when the
// visitor must be blocked.
type Policy interface {
	Evaluate(v *Visitor) (BlockReason, bool)
}

// ISPRule blocks bot-like networks: the intelligence bot flag, or an ISP
// naming a cloud provider. An ISP matching AllowedISP skips this rule only.
type ISPRule struct {
	AllowedISP     string
	CloudProviders []string
}

func (r ISPRule) Evaluate(v *Visitor) (BlockReason, bool) {
	isp := strings.ToLower(v.ISP)
	if r.AllowedISP != "" && strings.Contains(isp, strings.ToLower(r.AllowedISP)) {
		return "", false
	}
	if v.BotFlagged {
		return ReasonBot, true
	}
	for _, provider := range r.CloudProviders {
		if provider != "" && strings.Contains(isp, strings.ToLower(provider)) {
			return ReasonBot, true
		}
	}
	return "", false
}

// CountryRule admits only visitors resolved to Allowed. An unresolved
// country is blocked.
type CountryRule struct {
	Allowed string
}

func (r CountryRule) Evaluate(v *Visitor) (BlockReason, bool) {
	if v.CountryCode == "" || !strings.EqualFold(v.CountryCode, r.Allowed) {
		return ReasonCountry, true
	}
	return "", false
}

type DeviceRule struct {
	Allowed model.DeviceType
}

func (r DeviceRule) Evaluate(v *Visitor) (BlockReason, bool) {
	if v.Device != r.Allowed {
		return ReasonDevice, true
	}
	return "", false
}

// ConnectionRule applies the shortlink's connection policy. Datacenter
// addresses are refused under every policy.
type ConnectionRule struct {
	Policy model.ConnectionPolicy
}

func (r ConnectionRule) Evaluate(v *Visitor) (BlockReason, bool) {
	class := v.ConnectionType

	blocked := class == ConnDatacenter
	switch r.Policy {
	case model.ConnectionBlockProxy:
		blocked = blocked || class == ConnProxy
	case model.ConnectionBlockVPN:
		blocked = blocked || class == ConnVPN
	case model.ConnectionBlockAll:
		blocked = blocked || class == ConnProxy || class == ConnVPN
	}
	if !blocked {
		return "", false
	}

	if r.Policy == model.ConnectionBlockAll {
		return ReasonVPNOrProxy, true
	}
	switch class {
	case ConnProxy:
		return ReasonProxy, true
	case ConnVPN:
		return ReasonVPN, true
	case ConnDatacenter:
		return ReasonDatacenter, true
	}
	return ReasonAccessDenied, true
}

// UserAgentRule blocks user-agents that matched a suspicious keyword.
type UserAgentRule struct{}

func (UserAgentRule) Evaluate(v *Visitor) (BlockReason, bool) {
	if v.SuspiciousMatch != "" {
		return ReasonUserAgent, true
	}
	return "", false
}
