package handler

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/karmashop-resbrevis/karmapurgex/model"
)

func TestActivityList(t *testing.T) {
	s, _ := setupTestRedis(t)
	recorder := NewActivityRecorder(s.Activity, 0)
	h := NewActivityHandler(s.Activity, testConfig().OperationTimeout())

	base := httptest.NewRequest(http.MethodPost, "/api/shortlinks", nil)
	base.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	recorder.Record(base, "alice", model.ActivityShortlinkCreated, map[string]interface{}{"key": "one"})
	recorder.Record(base, "alice", model.ActivityShortlinkDeleted, map[string]interface{}{"key": "one"})
	recorder.Record(base, "alice", model.ActivityLogin, nil)
	recorder.Record(base, "bob", model.ActivityLogin, nil)

	t.Run("paged", func(t *testing.T) {
		rr := httptest.NewRecorder()
		h.List(rr, ownerRequest(http.MethodGet, "/api/activity?limit=2", "alice", nil))
		if rr.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d", rr.Code)
		}
		var resp model.ActivityListResponse
		if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
			t.Fatalf("Failed to decode: %v", err)
		}
		if resp.Total != 3 || len(resp.Activities) != 2 {
			t.Fatalf("Expected 2 of 3 entries, got %d of %d", len(resp.Activities), resp.Total)
		}
		if resp.Activities[0].Action != model.ActivityLogin {
			t.Errorf("Expected most recent first, got %q", resp.Activities[0].Action)
		}
		if resp.Activities[0].IP != "203.0.113.7" {
			t.Errorf("Expected first forwarded hop, got %q", resp.Activities[0].IP)
		}
	})

	t.Run("action filter", func(t *testing.T) {
		rr := httptest.NewRecorder()
		h.List(rr, ownerRequest(http.MethodGet, "/api/activity?action=shortlink_created", "alice", nil))
		var resp model.ActivityListResponse
		if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
			t.Fatalf("Failed to decode: %v", err)
		}
		if len(resp.Activities) != 1 || resp.Activities[0].Action != model.ActivityShortlinkCreated {
			t.Errorf("Unexpected filtered entries: %+v", resp.Activities)
		}
	})

	t.Run("unauthenticated", func(t *testing.T) {
		rr := httptest.NewRecorder()
		h.List(rr, httptest.NewRequest(http.MethodGet, "/api/activity", nil))
		if rr.Code != http.StatusUnauthorized {
			t.Errorf("Expected 401, got %d", rr.Code)
		}
	})
}
