package handler

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/karmashop-resbrevis/karmapurgex/middleware"
	"github.com/karmashop-resbrevis/karmapurgex/model"
	"github.com/karmashop-resbrevis/karmapurgex/store"

	"github.com/rs/zerolog/log"
)

// ActivityRecorder appends entries to an owner's audit trail. Failures are
// logged and never fail the request that caused them.
type ActivityRecorder struct {
	repo    store.ActivityRepository
	timeout time.Duration
	now     func() time.Time
}

func NewActivityRecorder(repo store.ActivityRepository, timeout time.Duration) *ActivityRecorder {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &ActivityRecorder{repo: repo, timeout: timeout, now: time.Now}
}

// Record stores one entry for username using the client address of r.
func (a *ActivityRecorder) Record(r *http.Request, username, action string, details map[string]interface{}) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), a.timeout)
	defer cancel()

	entry := model.ActivityLog{
		Timestamp: a.now().UTC(),
		Action:    action,
		Details:   details,
		IP:        requestIP(r),
		UserAgent: r.UserAgent(),
	}
	if err := a.repo.Log(ctx, username, entry); err != nil {
		log.Error().Err(err).Str("username", username).Str("action", action).Msg("Failed to log activity")
	}
}

type ActivityHandler struct {
	repo    store.ActivityRepository
	timeout time.Duration
}

func NewActivityHandler(repo store.ActivityRepository, timeout time.Duration) *ActivityHandler {
	return &ActivityHandler{repo: repo, timeout: timeout}
}

// List handles GET /api/activity?page=&limit=&action=
func (h *ActivityHandler) List(w http.ResponseWriter, r *http.Request) {
	username := middleware.GetUsername(r)
	if username == "" {
		SendJSONError(w, http.StatusUnauthorized, errors.New("unauthorized"), "Authentication required")
		return
	}

	page := 1
	limit := 50
	if pageStr := r.URL.Query().Get("page"); pageStr != "" {
		if p, err := strconv.Atoi(pageStr); err == nil && p > 0 {
			page = p
		}
	}
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l <= 100 {
			limit = l
		}
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	activities, total, err := h.repo.List(ctx, username, (page-1)*limit, limit)
	if err != nil {
		log.Error().Err(err).Str("username", username).Msg("Failed to list activity")
		SendJSONError(w, http.StatusInternalServerError, err, "Failed to retrieve activity logs")
		return
	}

	// The action filter narrows the current page only.
	if action := r.URL.Query().Get("action"); action != "" {
		filtered := make([]model.ActivityLog, 0, len(activities))
		for _, a := range activities {
			if a.Action == action {
				filtered = append(filtered, a)
			}
		}
		activities = filtered
	}
	if activities == nil {
		activities = []model.ActivityLog{}
	}

	SendJSONSuccess(w, http.StatusOK, model.ActivityListResponse{
		Page:       page,
		Limit:      limit,
		Total:      total,
		Activities: activities,
	})
}

// requestIP is the audit address of a management request: the first
// forwarded hop, else the peer address.
func requestIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(first)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
