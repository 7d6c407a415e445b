// Package resolver runs one visit through the full resolution pipeline:
// rate limit, concurrent lookups, decision, visit log, quota.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/karmashop-resbrevis/karmapurgex/engine"
	"github.com/karmashop-resbrevis/karmapurgex/ipintel"
	"github.com/karmashop-resbrevis/karmapurgex/metrics"
	"github.com/karmashop-resbrevis/karmapurgex/model"
	"github.com/karmashop-resbrevis/karmapurgex/quota"
	"github.com/karmashop-resbrevis/karmapurgex/security"
	"github.com/karmashop-resbrevis/karmapurgex/store"

	"github.com/rs/zerolog/log"
)

var (
	ErrRateLimited             = errors.New("rate limit exceeded")
	ErrMissingAPIKey           = errors.New("missing API key")
	ErrInvalidAPIKey           = errors.New("invalid API key")
	ErrSubscriptionExpired     = errors.New("subscription expired")
	ErrMissingKey              = errors.New("missing key")
	ErrShortlinkNotFound       = errors.New("shortlink not found")
	ErrVerificationUnavailable = errors.New("unable to verify IP location")
	ErrNoDestination           = engine.ErrNoDestination
)

// Visit log reasons for list decisions. They differ from the response text
// of a deny-listed visitor.
const (
	logReasonWhitelisted = "Whitelisted IP"
	logReasonBlacklisted = "Blacklisted IP"
)

type RateLimiter interface {
	Allow(ctx context.Context, ip string) (bool, error)
}

type IntelLookup interface {
	Lookup(ctx context.Context, ip string) (*ipintel.Result, error)
}

type VisitDispatcher interface {
	Dispatch(visit model.Visit)
}

type QuotaCharger interface {
	Charge(ctx context.Context, profile *model.Profile, shortlinkKey string) (int64, error)
}

// Request is one call to the resolution endpoint.
type Request struct {
	Key     string
	APIKey  string
	Signals security.Signals
}

// Outcome is the result of a resolution that reached a verdict.
type Outcome struct {
	Response engine.Response
	Verdict  engine.Verdict
	Link     *model.Shortlink
}

type Resolver struct {
	links    store.ShortlinkRepository
	profiles store.ProfileRepository
	limiter  RateLimiter
	intel    IntelLookup
	engine   *engine.Engine
	visits   VisitDispatcher
	quota    QuotaCharger
}

type Deps struct {
	Links    store.ShortlinkRepository
	Profiles store.ProfileRepository
	Limiter  RateLimiter
	Intel    IntelLookup
	Engine   *engine.Engine
	Visits   VisitDispatcher
	Quota    QuotaCharger
}

func New(d Deps) *Resolver {
	return &Resolver{
		links:    d.Links,
		profiles: d.Profiles,
		limiter:  d.Limiter,
		intel:    d.Intel,
		engine:   d.Engine,
		visits:   d.Visits,
		quota:    d.Quota,
	}
}

type lookups struct {
	link     *model.Shortlink
	linkErr  error
	profile  *model.Profile
	profErr  error
	intel    *ipintel.Result
	intelErr error
}

// Resolve returns the response for a visit, or one of the package errors
// when the request is rejected before or after the decision.
func (r *Resolver) Resolve(ctx context.Context, req Request) (Outcome, error) {
	sig := req.Signals

	allowed, err := r.limiter.Allow(ctx, sig.IP)
	if err != nil {
		return Outcome{}, err
	}
	if !allowed {
		metrics.RateLimitedTotal.Inc()
		return Outcome{}, ErrRateLimited
	}

	if req.APIKey == "" {
		return r.reject(ErrMissingAPIKey)
	}

	res := r.lookup(ctx, req)

	if res.profErr != nil {
		if errors.Is(res.profErr, store.ErrNotFound) {
			return r.reject(ErrInvalidAPIKey)
		}
		return Outcome{}, fmt.Errorf("profile lookup: %w", res.profErr)
	}
	if res.profile.Status == model.ProfileExpired {
		return r.reject(ErrSubscriptionExpired)
	}
	if req.Key == "" {
		return r.reject(ErrMissingKey)
	}
	if res.linkErr != nil {
		if errors.Is(res.linkErr, store.ErrNotFound) {
			return r.reject(ErrShortlinkNotFound)
		}
		return Outcome{}, fmt.Errorf("shortlink lookup: %w", res.linkErr)
	}
	if res.intelErr != nil {
		log.Warn().Err(res.intelErr).Str("ip", sig.IP).Msg("IP verification failed")
		return r.reject(ErrVerificationUnavailable)
	}

	link := res.link
	visitor := engine.NewVisitor(sig, res.intel)
	verdict := r.engine.Decide(link, visitor)

	r.visits.Dispatch(newVisit(link, req, res.intel, verdict))

	resp, err := r.engine.Respond(link, verdict)
	if err != nil {
		metrics.ResolutionsTotal.WithLabelValues("no_destination").Inc()
		return Outcome{Verdict: verdict, Link: link}, err
	}
	out := Outcome{Response: resp, Verdict: verdict, Link: link}

	if !verdict.Allowed {
		metrics.ResolutionsTotal.WithLabelValues("blocked").Inc()
		metrics.BlockedVisitsTotal.WithLabelValues(string(verdict.Reason)).Inc()
		return out, nil
	}

	if verdict.List == engine.ListNone {
		if _, err := r.quota.Charge(ctx, res.profile, link.Key); err != nil {
			if errors.Is(err, quota.ErrExceeded) {
				metrics.ResolutionsTotal.WithLabelValues("quota_exceeded").Inc()
			}
			return out, err
		}
	}

	metrics.ResolutionsTotal.WithLabelValues("redirect").Inc()
	return out, nil
}

func (r *Resolver) reject(err error) (Outcome, error) {
	metrics.ResolutionsTotal.WithLabelValues("rejected").Inc()
	return Outcome{}, err
}

// lookup runs the shortlink, profile and IP intelligence reads concurrently.
func (r *Resolver) lookup(ctx context.Context, req Request) lookups {
	var (
		res lookups
		wg  sync.WaitGroup
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		res.profile, res.profErr = r.profiles.GetByAPIKey(ctx, req.APIKey)
	}()
	go func() {
		defer wg.Done()
		res.intel, res.intelErr = r.intel.Lookup(ctx, req.Signals.IP)
	}()
	if req.Key != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res.link, res.linkErr = r.links.GetByKey(ctx, req.Key)
		}()
	}

	wg.Wait()
	return res
}

func newVisit(link *model.Shortlink, req Request, intel *ipintel.Result, verdict engine.Verdict) model.Visit {
	reason := string(verdict.Reason)
	switch verdict.List {
	case engine.ListWhitelisted:
		reason = logReasonWhitelisted
	case engine.ListBlacklisted:
		reason = logReasonBlacklisted
	}

	return model.Visit{
		ShortlinkKey: link.Key,
		ShortlinkID:  link.ID,
		Owner:        link.Owner,
		APIKey:       req.APIKey,
		IP:           req.Signals.IP,
		UserAgent:    req.Signals.UserAgent,
		Device:       req.Signals.Device,
		Location:     intel.Location(),
		Timezone:     intel.Timezone(),
		Type:         verdict.VisitType,
		IsBot:        intel.BotFlagged(),
		IsBlocked:    !verdict.Allowed,
		BlockReason:  reason,
	}
}
