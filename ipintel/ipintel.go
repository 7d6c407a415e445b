// Package ipintel looks a visitor IP up at a reputation provider and a geo
// provider concurrently and merges whatever each one returns.
package ipintel

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/karmashop-resbrevis/karmapurgex/metrics"
	"github.com/karmashop-resbrevis/karmapurgex/model"

	"github.com/rs/zerolog/log"
)

// ErrUnavailable means no provider produced a usable answer.
var ErrUnavailable = errors.New("ip intelligence unavailable")

// Reputation is the IP classification half of a lookup.
type Reputation struct {
	Bot            bool   `json:"bot"`
	Type           string `json:"type"`
	ASNDescription string `json:"asnDescription"`
	CountryCode    string `json:"countryCode"`
}

// Geo is the location half of a lookup.
type Geo struct {
	Country     string  `json:"country"`
	CountryCode string  `json:"countryCode"`
	Region      string  `json:"region"`
	City        string  `json:"city"`
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
	ISP         string  `json:"isp"`
	FlagImg     string  `json:"flagImg"`
	Timezone    string  `json:"timezone"`
}

// Result is the merged view of every provider that answered.
type Result struct {
	IP         string
	Reputation *Reputation
	Geo        *Geo
	Success    bool
}

// ISP prefers the reputation provider's ASN description.
func (r *Result) ISP() string {
	if r.Reputation != nil && r.Reputation.ASNDescription != "" {
		return r.Reputation.ASNDescription
	}
	if r.Geo != nil {
		return r.Geo.ISP
	}
	return ""
}

// CountryCode prefers the reputation provider, falling back to geo.
func (r *Result) CountryCode() string {
	if r.Reputation != nil && r.Reputation.CountryCode != "" {
		return r.Reputation.CountryCode
	}
	if r.Geo != nil {
		return r.Geo.CountryCode
	}
	return ""
}

// ConnectionType is the lower-cased IP class, e.g. vpn, proxy, datacenter.
func (r *Result) ConnectionType() string {
	if r.Reputation == nil {
		return ""
	}
	return strings.ToLower(r.Reputation.Type)
}

func (r *Result) BotFlagged() bool {
	return r.Reputation != nil && r.Reputation.Bot
}

// Location is the geo block persisted with a visit.
func (r *Result) Location() model.Location {
	var loc model.Location
	if r.Geo != nil {
		loc = model.Location{
			Country:     r.Geo.Country,
			CountryCode: r.Geo.CountryCode,
			Region:      r.Geo.Region,
			City:        r.Geo.City,
			Latitude:    r.Geo.Latitude,
			Longitude:   r.Geo.Longitude,
			ISP:         r.Geo.ISP,
			FlagImg:     r.Geo.FlagImg,
		}
	}
	if loc.CountryCode == "" {
		loc.CountryCode = r.CountryCode()
	}
	if loc.ISP == "" {
		loc.ISP = r.ISP()
	}
	return loc
}

func (r *Result) Timezone() string {
	if r.Geo == nil {
		return ""
	}
	return r.Geo.Timezone
}

// Provider answers one half of a lookup. Implementations fill Reputation,
// Geo or both.
type Provider interface {
	Name() string
	Lookup(ctx context.Context, ip string) (*Result, error)
}

// Gateway fans a lookup out to every provider, each under its own timeout.
type Gateway struct {
	providers []Provider
	timeout   time.Duration
}

func NewGateway(timeout time.Duration, providers ...Provider) *Gateway {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Gateway{providers: providers, timeout: timeout}
}

// Lookup waits for every provider to answer or time out. A provider failure
// only drops its half; ErrUnavailable is returned when all of them failed.
func (g *Gateway) Lookup(ctx context.Context, ip string) (*Result, error) {
	results := make([]*Result, len(g.providers))
	errs := make([]error, len(g.providers))

	var wg sync.WaitGroup
	for i, p := range g.providers {
		wg.Add(1)
		go func(i int, p Provider) {
			defer wg.Done()

			pctx, cancel := context.WithTimeout(ctx, g.timeout)
			defer cancel()

			start := time.Now()
			res, err := p.Lookup(pctx, ip)
			metrics.ProviderLatency.WithLabelValues(p.Name()).Observe(time.Since(start).Seconds())
			if err != nil {
				metrics.ProviderFailuresTotal.WithLabelValues(p.Name()).Inc()
				log.Warn().Err(err).Str("provider", p.Name()).Str("ip", ip).Msg("IP lookup failed")
				errs[i] = fmt.Errorf("%s: %w", p.Name(), err)
				return
			}
			results[i] = res
		}(i, p)
	}
	wg.Wait()

	merged := &Result{IP: ip}
	for _, res := range results {
		if res == nil {
			continue
		}
		if merged.Reputation == nil && res.Reputation != nil {
			merged.Reputation = res.Reputation
		}
		if merged.Geo == nil && res.Geo != nil {
			merged.Geo = res.Geo
		}
		merged.Success = true
	}

	if !merged.Success {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, errors.Join(errs...))
	}
	return merged, nil
}
