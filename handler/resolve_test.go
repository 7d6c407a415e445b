package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/karmashop-resbrevis/karmapurgex/engine"
	"github.com/karmashop-resbrevis/karmapurgex/ipintel"
	"github.com/karmashop-resbrevis/karmapurgex/model"
	"github.com/karmashop-resbrevis/karmapurgex/quota"
	"github.com/karmashop-resbrevis/karmapurgex/ratelimit"
	"github.com/karmashop-resbrevis/karmapurgex/resolver"
	"github.com/karmashop-resbrevis/karmapurgex/security"
	"github.com/karmashop-resbrevis/karmapurgex/store"
	"github.com/karmashop-resbrevis/karmapurgex/visitlog"

	"github.com/gorilla/mux"
)

const browserUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36"

type stubIntel struct {
	err error
}

func (s stubIntel) Lookup(ctx context.Context, ip string) (*ipintel.Result, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &ipintel.Result{
		IP:      ip,
		Geo:     &ipintel.Geo{Country: "Indonesia", CountryCode: "ID", ISP: "PT Telkom Indonesia"},
		Success: true,
	}, nil
}

func newResolveRouter(t *testing.T, limit int, intel resolver.IntelLookup) (http.Handler, *store.Store) {
	t.Helper()
	s, client := setupTestRedis(t)
	cfg := testConfig()

	visits := visitlog.New(s.Visits, time.Hour, time.Second)
	t.Cleanup(visits.Close)

	r := resolver.New(resolver.Deps{
		Links:    s.Shortlinks,
		Profiles: s.Profiles,
		Limiter:  ratelimit.New(client, limit, time.Minute),
		Intel:    intel,
		Engine: engine.New(engine.Config{
			CloudProviders: cfg.Security.CloudProviders,
			DecoyURLs:      []string{"https://decoy.example"},
			Intn:           func(int) int { return 0 },
		}),
		Visits: visits,
		Quota:  quota.NewAccountant(s.Usage, quota.CeilingsFrom(cfg.Quota)),
	})

	extractor, err := security.NewSignalExtractor(cfg.Security)
	if err != nil {
		t.Fatalf("Failed to build extractor: %v", err)
	}

	h := NewResolveHandler(r, extractor, "https://notfound.example")
	router := mux.NewRouter()
	router.HandleFunc("/resolve/{key}", h.Resolve).Methods(http.MethodGet)
	return router, s
}

func visit(router http.Handler, key, apiKey, ip, ua string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/resolve/"+key, nil)
	req.Header.Set("X-Forwarded-For", ip)
	req.Header.Set("User-Agent", ua)
	if apiKey != "" {
		req.Header.Set("X-API-Key", apiKey)
	}
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func TestResolve_RedirectsHuman(t *testing.T) {
	router, s := newResolveRouter(t, 10, stubIntel{})
	seedProfile(t, s, "alice", model.TierFree)
	seedLink(t, s, "alice", "promo", "https://example.com/landing")

	rr := visit(router, "promo", "alice-key", "36.71.0.10", browserUA)
	if rr.Code != http.StatusFound {
		t.Fatalf("Expected 302, got %d: %s", rr.Code, rr.Body.String())
	}
	if loc := rr.Header().Get("Location"); loc != "https://example.com/landing" {
		t.Errorf("Expected redirect to destination, got %q", loc)
	}
}

func TestResolve_ErrorStatuses(t *testing.T) {
	tests := []struct {
		name     string
		key      string
		apiKey   string
		ua       string
		intel    stubIntel
		status   int
		location string
		message  string
	}{
		{name: "browser without api key", key: "promo", ua: browserUA, status: http.StatusFound, location: "https://notfound.example"},
		{name: "client without api key", key: "promo", ua: "curl/8.4.0", status: http.StatusNotFound, message: "Missing API key"},
		{name: "unknown api key", key: "promo", apiKey: "nope", ua: browserUA, status: http.StatusForbidden},
		{name: "unknown shortlink", key: "missing", apiKey: "alice-key", ua: browserUA, status: http.StatusNotFound, message: "Shortlink not found"},
		{name: "intel down", key: "promo", apiKey: "alice-key", ua: browserUA, intel: stubIntel{err: ipintel.ErrUnavailable}, status: http.StatusBadGateway, message: "Unable to verify IP location"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router, s := newResolveRouter(t, 10, tt.intel)
			seedProfile(t, s, "alice", model.TierFree)
			seedLink(t, s, "alice", "promo", "https://example.com")

			rr := visit(router, tt.key, tt.apiKey, "36.71.0.10", tt.ua)
			if rr.Code != tt.status {
				t.Fatalf("Expected %d, got %d: %s", tt.status, rr.Code, rr.Body.String())
			}
			if tt.location != "" && rr.Header().Get("Location") != tt.location {
				t.Errorf("Expected Location %q, got %q", tt.location, rr.Header().Get("Location"))
			}
			if tt.message != "" {
				if got := decodeError(t, rr).Error; got != tt.message {
					t.Errorf("Expected error %q, got %q", tt.message, got)
				}
			}
		})
	}
}

func TestResolve_ExpiredSubscription(t *testing.T) {
	router, s := newResolveRouter(t, 10, stubIntel{})
	p := seedProfile(t, s, "alice", model.TierFree)
	p.Status = model.ProfileExpired
	if err := s.Profiles.Update(context.Background(), p); err != nil {
		t.Fatalf("Failed to expire profile: %v", err)
	}
	seedLink(t, s, "alice", "promo", "https://example.com")

	rr := visit(router, "promo", "alice-key", "36.71.0.10", browserUA)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("Expected 404, got %d", rr.Code)
	}
	if got := decodeError(t, rr).Error; got != "Subscription Expired." {
		t.Errorf("Unexpected error %q", got)
	}
}

func TestResolve_DenyListBlocks(t *testing.T) {
	router, s := newResolveRouter(t, 10, stubIntel{})
	seedProfile(t, s, "alice", model.TierPro)
	link := seedLink(t, s, "alice", "promo", "https://example.com")
	link.BlacklistedIPs = []string{"36.71.0.10"}
	if err := s.Shortlinks.Update(context.Background(), link); err != nil {
		t.Fatalf("Failed to update shortlink: %v", err)
	}

	rr := visit(router, "promo", "alice-key", "36.71.0.10", browserUA)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("Expected 403, got %d: %s", rr.Code, rr.Body.String())
	}
	if got := decodeError(t, rr).Error; got != "IP Blacklisted" {
		t.Errorf("Unexpected error %q", got)
	}
}

func TestResolve_RateLimited(t *testing.T) {
	router, s := newResolveRouter(t, 1, stubIntel{})
	seedProfile(t, s, "alice", model.TierFree)
	seedLink(t, s, "alice", "promo", "https://example.com")

	if rr := visit(router, "promo", "alice-key", "36.71.0.10", browserUA); rr.Code != http.StatusFound {
		t.Fatalf("First visit should redirect, got %d", rr.Code)
	}
	rr := visit(router, "promo", "alice-key", "36.71.0.10", browserUA)
	if rr.Code != http.StatusTooManyRequests {
		t.Errorf("Expected 429, got %d", rr.Code)
	}

	// Another visitor has its own window.
	if rr := visit(router, "promo", "alice-key", "36.71.0.11", browserUA); rr.Code != http.StatusFound {
		t.Errorf("Other visitor should redirect, got %d", rr.Code)
	}
}
