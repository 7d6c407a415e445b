// Package quota charges allowed redirects against an owner's subscription
// ceiling.
package quota

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/karmashop-resbrevis/karmapurgex/config"
	"github.com/karmashop-resbrevis/karmapurgex/metrics"
	"github.com/karmashop-resbrevis/karmapurgex/model"
	"github.com/karmashop-resbrevis/karmapurgex/store"
)

// ErrExceeded means the period total went over the ceiling. The redirect
// that caused it has already been counted.
var ErrExceeded = errors.New("quota exceeded")

// Ceilings maps "<tier>_<duration>" onto the redirect ceiling of a period.
type Ceilings struct {
	Table    map[string]int64
	Fallback int64
}

func CeilingsFrom(cfg config.QuotaConfig) Ceilings {
	table := make(map[string]int64, len(cfg.Ceilings))
	for k, v := range cfg.Ceilings {
		table[k] = v
	}
	fallback := cfg.Fallback
	if fallback <= 0 {
		fallback = 100
	}
	return Ceilings{Table: table, Fallback: fallback}
}

// Limit looks up the ceiling for a tier and duration, aliases included.
func (c Ceilings) Limit(tier model.Tier, d model.Duration) int64 {
	if limit, ok := c.Table[fmt.Sprintf("%s_%s", tier, d.Normalize())]; ok {
		return limit
	}
	return c.Fallback
}

// Period returns the [start, end] day range of the subscription period.
func Period(start time.Time, d model.Duration) (from, to string) {
	return model.DayOf(start), model.DayOf(d.End(start))
}

type Accountant struct {
	usage    store.UsageRepository
	ceilings Ceilings
	now      func() time.Time
}

func NewAccountant(usage store.UsageRepository, ceilings Ceilings) *Accountant {
	return &Accountant{usage: usage, ceilings: ceilings, now: time.Now}
}

// Charge counts one redirect for today and checks the period total. It
// returns the total and ErrExceeded when the total is strictly above the
// ceiling.
func (a *Accountant) Charge(ctx context.Context, profile *model.Profile, shortlinkKey string) (int64, error) {
	if err := a.usage.Increment(ctx, profile.APIKey, shortlinkKey, model.DayOf(a.now())); err != nil {
		return 0, fmt.Errorf("increment usage: %w", err)
	}

	from, to := Period(profile.SubscriptionStart, profile.SubscriptionType)
	total, err := a.usage.Sum(ctx, profile.APIKey, from, to)
	if err != nil {
		return 0, fmt.Errorf("sum usage: %w", err)
	}

	limit := a.ceilings.Limit(profile.Subscription, profile.SubscriptionType)
	if total > limit {
		metrics.QuotaExceededTotal.Inc()
		return total, fmt.Errorf("%w: %d of %d", ErrExceeded, total, limit)
	}
	return total, nil
}

// Usage reports the current period of profile without charging it.
func (a *Accountant) Usage(ctx context.Context, profile *model.Profile) (model.SubscriptionUsage, error) {
	from, to := Period(profile.SubscriptionStart, profile.SubscriptionType)
	used, err := a.usage.Sum(ctx, profile.APIKey, from, to)
	if err != nil {
		return model.SubscriptionUsage{}, fmt.Errorf("sum usage: %w", err)
	}
	return model.SubscriptionUsage{
		Profile:     *profile,
		PeriodStart: profile.SubscriptionStart,
		PeriodEnd:   profile.PeriodEnd(),
		Used:        used,
		Limit:       a.ceilings.Limit(profile.Subscription, profile.SubscriptionType),
	}, nil
}
