package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/karmashop-resbrevis/karmapurgex/auth"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(GetUsername(r)))
}

func TestUserAuthProtect(t *testing.T) {
	jwtManager := auth.NewJWTManager("secret", time.Hour)
	token, _, err := jwtManager.Generate("alice")
	require.NoError(t, err)

	h := NewUserAuth(jwtManager).Protect(http.HandlerFunc(okHandler))

	tests := []struct {
		name       string
		header     string
		wantStatus int
		wantBody   string
	}{
		{"valid token", "Bearer " + token, http.StatusOK, "alice"},
		{"missing header", "", http.StatusUnauthorized, ""},
		{"wrong scheme", "Basic " + token, http.StatusUnauthorized, ""},
		{"bad token", "Bearer nope", http.StatusUnauthorized, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/shortlinks", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, req)

			assert.Equal(t, tt.wantStatus, rr.Code)
			if tt.wantBody != "" {
				assert.Equal(t, tt.wantBody, rr.Body.String())
			}
		})
	}
}

func TestAdminAuth(t *testing.T) {
	tests := []struct {
		name       string
		key        string
		enabled    bool
		header     string
		wantStatus int
	}{
		{"valid key", "admin", true, "admin", http.StatusOK},
		{"missing key", "admin", true, "", http.StatusUnauthorized},
		{"wrong key", "admin", true, "guess", http.StatusForbidden},
		{"not configured", "", true, "anything", http.StatusServiceUnavailable},
		{"disabled", "admin", false, "admin", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewAdminAuth(tt.key, tt.enabled).Protect(http.HandlerFunc(okHandler))
			req := httptest.NewRequest(http.MethodPut, "/admin/profiles/alice", nil)
			if tt.header != "" {
				req.Header.Set("X-Admin-Key", tt.header)
			}
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, req)
			assert.Equal(t, tt.wantStatus, rr.Code)
		})
	}
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(1, 2, func(r *http.Request) string { return r.Header.Get("X-Client") })
	h := rl.Limit(http.HandlerFunc(okHandler))

	send := func(client string) int {
		req := httptest.NewRequest(http.MethodGet, "/api/shortlinks", nil)
		req.Header.Set("X-Client", client)
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		return rr.Code
	}

	assert.Equal(t, http.StatusOK, send("a"))
	assert.Equal(t, http.StatusOK, send("a"))
	assert.Equal(t, http.StatusTooManyRequests, send("a"))
	assert.Equal(t, http.StatusOK, send("b"), "buckets are per client")
}

func TestRateLimiterSweep(t *testing.T) {
	rl := NewRateLimiter(1, 1, nil)
	now := time.Now()
	rl.now = func() time.Time { return now }

	rl.getLimiter("old")
	now = now.Add(time.Hour)
	rl.getLimiter("fresh")

	assert.Equal(t, 1, rl.Sweep(30*time.Minute))
	assert.Len(t, rl.limiters, 1)
	assert.Contains(t, rl.limiters, "fresh")
}

func TestRequestLoggerSetsRequestID(t *testing.T) {
	r := mux.NewRouter()
	r.Use(RequestLogger)
	r.HandleFunc("/resolve/{key}", okHandler)

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/resolve/abc", nil))
	assert.NotEmpty(t, rr.Header().Get("X-Request-ID"))

	req := httptest.NewRequest(http.MethodGet, "/resolve/abc", nil)
	req.Header.Set("X-Request-ID", "given")
	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	assert.Equal(t, "given", rr.Header().Get("X-Request-ID"))
}

func TestCORSPreflight(t *testing.T) {
	h := CORS(http.HandlerFunc(okHandler))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodOptions, "/api/shortlinks", nil))
	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Equal(t, "*", rr.Header().Get("Access-Control-Allow-Origin"))
}
