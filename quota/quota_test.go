package quota

import (
	"context"
	"testing"
	"time"

	"github.com/karmashop-resbrevis/karmapurgex/config"
	"github.com/karmashop-resbrevis/karmapurgex/model"
	"github.com/karmashop-resbrevis/karmapurgex/store"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *store.Store) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})
	return mr, store.NewRedis(client)
}

func TestCeilingsLimit(t *testing.T) {
	c := CeilingsFrom(config.Defaults().Quota)

	tests := []struct {
		tier     model.Tier
		duration model.Duration
		want     int64
	}{
		{model.TierFree, model.Duration7Day, 100},
		{model.TierPro, model.Duration1Month, 62000},
		{model.TierPro, "month", 62000},
		{model.TierEnterprise, "year", 1620000},
		{model.TierEnterprise, model.Duration7Day, 420000},
		{"gold", model.Duration1Month, 100},
		{model.TierPro, "fortnight", 100},
	}
	for _, tt := range tests {
		t.Run(string(tt.tier)+"_"+string(tt.duration), func(t *testing.T) {
			assert.Equal(t, tt.want, c.Limit(tt.tier, tt.duration))
		})
	}
}

func TestPeriod(t *testing.T) {
	start := time.Date(2024, 1, 31, 10, 0, 0, 0, time.UTC)

	from, to := Period(start, model.Duration7Day)
	assert.Equal(t, "2024-01-31", from)
	assert.Equal(t, "2024-02-07", to)

	_, to = Period(start, "month")
	assert.Equal(t, "2024-03-02", to)

	_, to = Period(start, model.Duration1Year)
	assert.Equal(t, "2025-01-31", to)
}

func TestChargeAtCeiling(t *testing.T) {
	mr, s := setupTestRedis(t)
	ctx := context.Background()

	now := time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)
	acct := NewAccountant(s.Usage, CeilingsFrom(config.Defaults().Quota))
	acct.now = func() time.Time { return now }

	profile := &model.Profile{
		APIKey:            "k1",
		Subscription:      model.TierPro,
		SubscriptionType:  model.Duration1Month,
		SubscriptionStart: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
	}

	// 61999 redirects already counted earlier in the period.
	mr.HSet("usage:k1:days", "2024-03-05", "61999")

	total, err := acct.Charge(ctx, profile, "abc")
	require.NoError(t, err, "reaching the ceiling exactly is allowed")
	assert.Equal(t, int64(62000), total)

	total, err = acct.Charge(ctx, profile, "abc")
	assert.ErrorIs(t, err, ErrExceeded)
	assert.Equal(t, int64(62001), total)

	total, err = s.Usage.Sum(ctx, "k1", "2024-03-01", "2024-04-01")
	require.NoError(t, err)
	assert.Equal(t, int64(62001), total, "the refused redirect stays counted")
}

func TestChargeIgnoresOtherPeriods(t *testing.T) {
	mr, s := setupTestRedis(t)
	ctx := context.Background()

	acct := NewAccountant(s.Usage, Ceilings{Table: map[string]int64{"free_7day": 2}, Fallback: 100})
	acct.now = func() time.Time { return time.Date(2024, 3, 3, 0, 0, 0, 0, time.UTC) }

	profile := &model.Profile{
		APIKey:            "k1",
		Subscription:      model.TierFree,
		SubscriptionType:  model.Duration7Day,
		SubscriptionStart: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
	}
	mr.HSet("usage:k1:days", "2024-02-20", "500")
	mr.HSet("usage:other:days", "2024-03-02", "500")

	for i := 0; i < 2; i++ {
		_, err := acct.Charge(ctx, profile, "abc")
		require.NoError(t, err)
	}
	_, err := acct.Charge(ctx, profile, "abc")
	assert.ErrorIs(t, err, ErrExceeded)
}

func TestUsage(t *testing.T) {
	_, s := setupTestRedis(t)
	ctx := context.Background()
	now := time.Now().UTC()

	acct := NewAccountant(s.Usage, CeilingsFrom(config.Defaults().Quota))
	profile := &model.Profile{
		APIKey:            "k1",
		Subscription:      model.TierEnterprise,
		SubscriptionType:  "year",
		SubscriptionStart: now.Add(-24 * time.Hour),
	}
	_, err := acct.Charge(ctx, profile, "abc")
	require.NoError(t, err)

	usage, err := acct.Usage(ctx, profile)
	require.NoError(t, err)
	assert.Equal(t, int64(1), usage.Used)
	assert.Equal(t, int64(1620000), usage.Limit)
	assert.Equal(t, profile.SubscriptionStart.AddDate(1, 0, 0), usage.PeriodEnd)
}
