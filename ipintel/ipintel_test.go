package ipintel

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/karmashop-resbrevis/karmapurgex/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	name   string
	result *Result
	err    error
	delay  time.Duration
	calls  int32
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) Lookup(ctx context.Context, ip string) (*Result, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.result, f.err
}

func reputationOnly(typ, asn, cc string, bot bool) *fakeProvider {
	return &fakeProvider{name: "reputation", result: &Result{
		Reputation: &Reputation{Bot: bot, Type: typ, ASNDescription: asn, CountryCode: cc},
		Success:    true,
	}}
}

func geoOnly(cc, isp string) *fakeProvider {
	return &fakeProvider{name: "geo", result: &Result{
		Geo:     &Geo{Country: "Indonesia", CountryCode: cc, City: "Jakarta", ISP: isp, Timezone: "Asia/Jakarta"},
		Success: true,
	}}
}

func TestGatewayMergesBothProviders(t *testing.T) {
	g := NewGateway(time.Second, reputationOnly("Residential", "PT Telkom", "ID", false), geoOnly("ID", "Telkomsel"))

	res, err := g.Lookup(context.Background(), "1.2.3.4")
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "PT Telkom", res.ISP())
	assert.Equal(t, "ID", res.CountryCode())
	assert.Equal(t, "residential", res.ConnectionType())
	assert.Equal(t, "Asia/Jakarta", res.Timezone())

	loc := res.Location()
	assert.Equal(t, "Telkomsel", loc.ISP)
	assert.Equal(t, "Jakarta", loc.City)
}

func TestGatewayOneProviderFails(t *testing.T) {
	t.Run("reputation down", func(t *testing.T) {
		failing := &fakeProvider{name: "reputation", err: errors.New("boom")}
		g := NewGateway(time.Second, failing, geoOnly("FR", "Orange"))

		res, err := g.Lookup(context.Background(), "1.2.3.4")
		require.NoError(t, err)
		assert.Nil(t, res.Reputation)
		assert.Equal(t, "FR", res.CountryCode(), "country code falls back to geo")
		assert.Equal(t, "Orange", res.ISP(), "ISP falls back to geo connection")
		assert.False(t, res.BotFlagged())
	})

	t.Run("geo down", func(t *testing.T) {
		failing := &fakeProvider{name: "geo", err: errors.New("boom")}
		g := NewGateway(time.Second, reputationOnly("vpn", "M247", "US", true), failing)

		res, err := g.Lookup(context.Background(), "1.2.3.4")
		require.NoError(t, err)
		assert.Nil(t, res.Geo)
		assert.Equal(t, "US", res.Location().CountryCode)
		assert.True(t, res.BotFlagged())
	})
}

func TestGatewayTotalFailure(t *testing.T) {
	g := NewGateway(time.Second,
		&fakeProvider{name: "reputation", err: errors.New("down")},
		&fakeProvider{name: "geo", err: errors.New("down")},
	)
	_, err := g.Lookup(context.Background(), "1.2.3.4")
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestGatewayTimeoutIsPerProvider(t *testing.T) {
	slow := &fakeProvider{name: "reputation", delay: time.Second, result: &Result{Success: true}}
	fast := geoOnly("ID", "Telkomsel")
	g := NewGateway(50*time.Millisecond, slow, fast)

	start := time.Now()
	res, err := g.Lookup(context.Background(), "1.2.3.4")
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.Nil(t, res.Reputation, "timed out provider is treated as absent")
	assert.NotNil(t, res.Geo)
	assert.Less(t, elapsed, 500*time.Millisecond)
}

func TestReputationProvider(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-rapidapi-key") != "secret" {
			t.Errorf("missing rapidapi key header")
		}
		switch r.URL.Path {
		case "/ip/1.2.3.4":
			w.Write([]byte(`{"ip":"1.2.3.4","bot":true,"type":"datacenter","asn_description":"Amazon.com, Inc.","country_code":"US"}`))
		case "/ip/bad":
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"error":"Invalid IP address"}`))
		default:
			w.WriteHeader(http.StatusBadGateway)
		}
	}))
	defer srv.Close()

	p := NewReputationProvider(config.IPIntelConfig{
		ReputationURL: srv.URL + "/ip/%s?info=true",
		RapidAPIKey:   "secret",
		RapidAPIHost:  "example",
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	res, err := p.Lookup(ctx, "1.2.3.4")
	require.NoError(t, err)
	require.NotNil(t, res.Reputation)
	assert.True(t, res.Reputation.Bot)
	assert.Equal(t, "datacenter", res.Reputation.Type)
	assert.Equal(t, "Amazon.com, Inc.", res.Reputation.ASNDescription)

	_, err = p.Lookup(ctx, "bad")
	assert.Error(t, err, "error body is a failure")

	_, err = p.Lookup(ctx, "9.9.9.9")
	assert.Error(t, err, "5xx is a failure")
}

func TestGeoProvider(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/1.2.3.4" {
			w.Write([]byte(`{"success":true,"country":"Indonesia","country_code":"ID","region":"Jakarta","city":"Jakarta",
				"latitude":-6.2,"longitude":106.8,"connection":{"isp":"Telkomsel"},"flag":{"img":"https://cdn/id.svg"},
				"timezone":{"id":"Asia/Jakarta"}}`))
			return
		}
		w.Write([]byte(`{"success":false,"message":"Invalid IP address"}`))
	}))
	defer srv.Close()

	p := NewGeoProvider(config.IPIntelConfig{GeoURL: srv.URL + "/%s"})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	res, err := p.Lookup(ctx, "1.2.3.4")
	require.NoError(t, err)
	require.NotNil(t, res.Geo)
	assert.Equal(t, "ID", res.Geo.CountryCode)
	assert.Equal(t, "Telkomsel", res.Geo.ISP)
	assert.Equal(t, "https://cdn/id.svg", res.Geo.FlagImg)
	assert.Equal(t, "Asia/Jakarta", res.Geo.Timezone)
	assert.InDelta(t, 106.8, res.Geo.Longitude, 0.001)

	_, err = p.Lookup(ctx, "0.0.0.0")
	assert.Error(t, err)
}

func TestEndpoint(t *testing.T) {
	assert.Equal(t, "https://ipwho.is/1.2.3.4", endpoint("https://ipwho.is/%s", "1.2.3.4"))
	assert.Equal(t, "https://ipwho.is/1.2.3.4", endpoint("https://ipwho.is/", "1.2.3.4"))
}
