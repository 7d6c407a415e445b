package security

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/karmashop-resbrevis/karmapurgex/config"
	"github.com/karmashop-resbrevis/karmapurgex/model"
)

func TestLivenessCheck(t *testing.T) {
	live := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodHead {
			t.Errorf("expected HEAD, got %s", r.Method)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer live.Close()

	gone := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer gone.Close()

	noHead := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer noHead.Close()

	forbidden := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer forbidden.Close()

	closed := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	closedURL := closed.URL
	closed.Close()

	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
	}))
	defer slow.Close()

	checker := NewLivenessChecker(config.SecurityConfig{LivenessTimeout: 5})
	checker.timeout = 100 * time.Millisecond

	tests := []struct {
		name string
		url  string
		want model.LivenessStatus
	}{
		{"reachable", live.URL, model.LivenessLive},
		{"not found", gone.URL, model.LivenessLive},
		{"head not allowed", noHead.URL, model.LivenessLive},
		{"forbidden", forbidden.URL, model.LivenessLive},
		{"connection refused", closedURL, model.LivenessDead},
		{"timeout", slow.URL, model.LivenessDead},
		{"blocklisted", live.URL + "/secure-login", model.LivenessRedFlag},
		{"malformed", "://nope", model.LivenessDead},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := checker.Check(context.Background(), tt.url); got != tt.want {
				t.Errorf("Check(%q) = %q, want %q", tt.url, got, tt.want)
			}
		})
	}
}

func TestLivenessSafeBrowsing(t *testing.T) {
	target := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer target.Close()

	flagged := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("key") != "sb-key" {
			t.Errorf("missing API key in query")
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"matches":[{"threatType":"MALWARE","threat":{"url":"x"}}]}`))
	}))
	defer flagged.Close()

	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer failing.Close()

	checker := NewLivenessChecker(config.SecurityConfig{SafeBrowsingAPIKey: "sb-key", LivenessTimeout: 2})

	checker.safeBrowsingURL = flagged.URL
	if got := checker.Check(context.Background(), target.URL); got != model.LivenessRedFlag {
		t.Errorf("flagged URL = %q, want RED FLAG", got)
	}

	checker.safeBrowsingURL = failing.URL
	if got := checker.Check(context.Background(), target.URL); got != model.LivenessLive {
		t.Errorf("Safe Browsing outage = %q, want LIVE", got)
	}
}
