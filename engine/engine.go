// Package engine decides whether a visitor may follow a shortlink and what
// the response looks like.
package engine

import (
	"errors"
	"math/rand"
	"net/http"

	"github.com/karmashop-resbrevis/karmapurgex/config"
	"github.com/karmashop-resbrevis/karmapurgex/ipintel"
	"github.com/karmashop-resbrevis/karmapurgex/model"
	"github.com/karmashop-resbrevis/karmapurgex/security"
)

// ErrNoDestination means the visitor was allowed but neither URL is LIVE.
var ErrNoDestination = errors.New("no valid destination found")

// Visitor is everything the policies look at.
type Visitor struct {
	IP              string
	Device          model.DeviceType
	SuspiciousMatch string
	ISP             string
	BotFlagged      bool
	CountryCode     string
	// ConnectionType is lower-case: vpn, proxy, datacenter, residential...
	ConnectionType string
}

// NewVisitor combines request signals with the merged intelligence result.
func NewVisitor(sig security.Signals, intel *ipintel.Result) *Visitor {
	v := &Visitor{
		IP:              sig.IP,
		Device:          sig.Device,
		SuspiciousMatch: sig.SuspiciousMatch,
	}
	if intel != nil {
		v.ISP = intel.ISP()
		v.BotFlagged = intel.BotFlagged()
		v.CountryCode = intel.CountryCode()
		v.ConnectionType = intel.ConnectionType()
	}
	return v
}

// Config holds the tables the engine consults. It is read-only after
// construction.
type Config struct {
	CloudProviders []string
	DecoyURLs      []string
	// Intn picks a decoy; defaults to math/rand.
	Intn func(n int) int
}

func ConfigFrom(sec config.SecurityConfig) Config {
	return Config{
		CloudProviders: append([]string(nil), sec.CloudProviders...),
		DecoyURLs:      append([]string(nil), sec.DecoyURLs...),
	}
}

type Engine struct {
	cfg Config
}

func New(cfg Config) *Engine {
	if cfg.Intn == nil {
		cfg.Intn = rand.Intn
	}
	return &Engine{cfg: cfg}
}

// List records whether an allow/deny list decided the verdict.
type List int

const (
	ListNone List = iota
	ListWhitelisted
	ListBlacklisted
)

type Verdict struct {
	Allowed bool
	Reason  BlockReason
	List    List
	// VisitType is the classification label of the logged visit.
	VisitType string
}

// PoliciesFor builds the ordered rule list of a shortlink: ISP/bot,
// country, device, connection type, user-agent.
func (e *Engine) PoliciesFor(link *model.Shortlink) []Policy {
	policies := []Policy{
		ISPRule{AllowedISP: link.AllowedISP, CloudProviders: e.cfg.CloudProviders},
	}
	if link.AllowedCountry != "" {
		policies = append(policies, CountryRule{Allowed: link.AllowedCountry})
	}
	if link.AllowedDevice == model.DeviceDesktop || link.AllowedDevice == model.DeviceMobile {
		policies = append(policies, DeviceRule{Allowed: link.AllowedDevice})
	}
	policies = append(policies,
		ConnectionRule{Policy: link.ConnectionType},
		UserAgentRule{},
	)
	return policies
}

// Decide applies list precedence and then the rules, first block wins.
func (e *Engine) Decide(link *model.Shortlink, v *Visitor) Verdict {
	if link.IsWhitelisted(v.IP) {
		return Verdict{Allowed: true, Reason: ReasonWhitelisted, List: ListWhitelisted, VisitType: model.VisitWhitelisted}
	}
	if link.IsBlacklisted(v.IP) {
		return Verdict{Reason: ReasonBlacklisted, List: ListBlacklisted, VisitType: model.VisitBlacklisted}
	}

	visitType := v.ConnectionType
	if visitType == "" {
		visitType = v.SuspiciousMatch
	}
	if visitType == "" {
		visitType = model.VisitUnknown
	}

	for _, p := range e.PoliciesFor(link) {
		if reason, blocked := p.Evaluate(v); blocked {
			return Verdict{Reason: reason, VisitType: visitType}
		}
	}
	return Verdict{Allowed: true, Reason: ReasonHuman, VisitType: visitType}
}

// Response is what the resolution endpoint sends back. Location is set for
// redirects, Error for JSON block bodies.
type Response struct {
	Status   int
	Location string
	Error    string
}

func (r Response) IsRedirect() bool {
	return r.Location != ""
}

// Respond turns a verdict into a response. Allowed visitors go to the first
// LIVE destination. Deny-listed visitors always get a 403. Other blocks use
// the shortlink's 403/404 status, or a decoy redirect.
func (e *Engine) Respond(link *model.Shortlink, verdict Verdict) (Response, error) {
	if verdict.Allowed {
		dest, ok := link.Destination()
		if !ok {
			return Response{}, ErrNoDestination
		}
		return Response{Status: http.StatusFound, Location: dest}, nil
	}

	if verdict.List == ListBlacklisted {
		return Response{Status: http.StatusForbidden, Error: string(verdict.Reason)}, nil
	}

	switch link.StatusCode {
	case http.StatusForbidden, http.StatusNotFound:
		return Response{Status: link.StatusCode, Error: string(verdict.Reason)}, nil
	}
	return e.Decoy(verdict.Reason), nil
}

// Decoy picks one decoy URL per call.
func (e *Engine) Decoy(reason BlockReason) Response {
	if len(e.cfg.DecoyURLs) == 0 {
		return Response{Status: http.StatusForbidden, Error: string(reason)}
	}
	return Response{Status: http.StatusFound, Location: e.cfg.DecoyURLs[e.cfg.Intn(len(e.cfg.DecoyURLs))]}
}
