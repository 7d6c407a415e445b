package handler

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/karmashop-resbrevis/karmapurgex/config"
	"github.com/karmashop-resbrevis/karmapurgex/middleware"
	"github.com/karmashop-resbrevis/karmapurgex/model"
	"github.com/karmashop-resbrevis/karmapurgex/store"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"golang.org/x/crypto/bcrypt"
)

// setupTestRedis creates a miniredis-backed store for testing
func setupTestRedis(t *testing.T) (*store.Store, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})
	return store.NewRedis(client), client
}

func testConfig() config.Config {
	cfg := config.Defaults()
	cfg.WebServer.BaseURL = "https://go.example"
	cfg.Auth.BcryptCost = bcrypt.MinCost
	return cfg
}

// staticChecker reports the same liveness for every URL.
type staticChecker struct {
	status model.LivenessStatus
	calls  int
}

func (c *staticChecker) Check(ctx context.Context, url string) model.LivenessStatus {
	c.calls++
	return c.status
}

func seedProfile(t *testing.T, s *store.Store, username string, tier model.Tier) *model.Profile {
	t.Helper()
	p := &model.Profile{
		Username:          username,
		APIKey:            username + "-key",
		Status:            model.ProfileApproved,
		Subscription:      tier,
		SubscriptionType:  model.Duration1Month,
		SubscriptionStart: time.Now().UTC().Add(-time.Hour),
	}
	if err := s.Profiles.Create(context.Background(), p); err != nil {
		t.Fatalf("Failed to seed profile: %v", err)
	}
	return p
}

func seedLink(t *testing.T, s *store.Store, owner, key, url string) *model.Shortlink {
	t.Helper()
	link := &model.Shortlink{
		ID:               key + "-id",
		Owner:            owner,
		Key:              key,
		URL:              url,
		PrimaryURLStatus: model.LivenessLive,
		Status:           model.ShortlinkActive,
	}
	if err := s.Shortlinks.Create(context.Background(), link); err != nil {
		t.Fatalf("Failed to seed shortlink: %v", err)
	}
	return link
}

// ownerRequest builds a request already authenticated as username.
func ownerRequest(method, target, username string, body []byte) *http.Request {
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req.WithContext(middleware.WithUsername(req.Context(), username))
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to decode error body %q: %v", rr.Body.String(), err)
	}
	return resp
}
