package handler

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/karmashop-resbrevis/karmapurgex/cache"
	"github.com/karmashop-resbrevis/karmapurgex/config"
	"github.com/karmashop-resbrevis/karmapurgex/model"
	"github.com/karmashop-resbrevis/karmapurgex/store"
	"github.com/karmashop-resbrevis/karmapurgex/utils"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"
)

// AdminStats represents system-wide statistics
type AdminStats struct {
	TotalLinks       int            `json:"totalLinks"`
	LinksByLiveness  map[string]int `json:"linksByLiveness"`
	TotalProfiles    int            `json:"totalProfiles"`
	ProfilesByTier   map[string]int `json:"profilesByTier"`
	ProfilesByStatus map[string]int `json:"profilesByStatus"`
	CacheEnabled     bool           `json:"cacheEnabled"`
	CacheHitRate     float64        `json:"cacheHitRate,omitempty"`
	LastUpdated      time.Time      `json:"lastUpdated"`
}

// ProfileListResponse represents a paginated profile list
type ProfileListResponse struct {
	Profiles   []model.Profile `json:"profiles"`
	Total      int             `json:"total"`
	Page       int             `json:"page"`
	PageSize   int             `json:"pageSize"`
	TotalPages int             `json:"totalPages"`
}

// AdminHandler manages subscriptions on behalf of operators. Changing a
// profile here stands in for a payment flow.
type AdminHandler struct {
	store  *store.Store
	cache  *cache.Cache
	config config.Config
	now    func() time.Time
}

func NewAdminHandler(s *store.Store, c *cache.Cache, cfg config.Config) *AdminHandler {
	return &AdminHandler{store: s, cache: c, config: cfg, now: time.Now}
}

// Stats handles GET /admin/stats
func (h *AdminHandler) Stats(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.config.OperationTimeout())
	defer cancel()

	links, err := h.store.Shortlinks.ListAll(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list shortlinks for stats")
		SendJSONError(w, http.StatusInternalServerError, err, "Failed to retrieve statistics")
		return
	}
	profiles, err := h.store.Profiles.List(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list profiles for stats")
		SendJSONError(w, http.StatusInternalServerError, err, "Failed to retrieve statistics")
		return
	}

	stats := AdminStats{
		TotalLinks:       len(links),
		LinksByLiveness:  make(map[string]int),
		TotalProfiles:    len(profiles),
		ProfilesByTier:   make(map[string]int),
		ProfilesByStatus: make(map[string]int),
		CacheEnabled:     h.config.Cache.Enabled && h.cache != nil,
		LastUpdated:      h.now().UTC(),
	}
	for _, link := range links {
		status := string(link.PrimaryURLStatus)
		if status == "" {
			status = "PENDING"
		}
		stats.LinksByLiveness[status]++
	}
	for _, p := range profiles {
		stats.ProfilesByTier[string(p.Subscription)]++
		stats.ProfilesByStatus[string(p.Status)]++
	}
	if stats.CacheEnabled {
		stats.CacheHitRate = h.cache.GetMetricsSnapshot().HitRatio
	}

	SendJSONSuccess(w, http.StatusOK, stats)
}

// ListProfiles handles GET /admin/profiles?page=&pageSize=&status=
func (h *AdminHandler) ListProfiles(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.config.OperationTimeout())
	defer cancel()

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("pageSize"))
	if pageSize < 1 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}

	profiles, err := h.store.Profiles.List(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list profiles")
		SendJSONError(w, http.StatusInternalServerError, err, "Failed to list profiles")
		return
	}

	if status := r.URL.Query().Get("status"); status != "" {
		filtered := profiles[:0]
		for _, p := range profiles {
			if string(p.Status) == status {
				filtered = append(filtered, p)
			}
		}
		profiles = filtered
	}
	sort.Slice(profiles, func(i, j int) bool {
		return profiles[i].Username < profiles[j].Username
	})

	total := len(profiles)
	start := (page - 1) * pageSize
	if start > total {
		start = total
	}
	end := start + pageSize
	if end > total {
		end = total
	}
	paged := profiles[start:end]
	if paged == nil {
		paged = []model.Profile{}
	}

	SendJSONSuccess(w, http.StatusOK, ProfileListResponse{
		Profiles:   paged,
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: (total + pageSize - 1) / pageSize,
	})
}

// UpdateProfile handles PUT /admin/profiles/{username}. Changing the tier or
// duration, or setting restartPeriod, starts a new period now.
func (h *AdminHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.config.OperationTimeout())
	defer cancel()

	username := mux.Vars(r)["username"]

	var req model.ProfileUpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		SendJSONError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}
	if msg, err := utils.Validate(&req); err != nil {
		SendJSONError(w, http.StatusBadRequest, errors.New("validation failed"), msg)
		return
	}

	profile, err := h.store.Profiles.Get(ctx, username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			SendJSONError(w, http.StatusNotFound, errors.New("profile not found"), "")
			return
		}
		log.Error().Err(err).Str("username", username).Msg("Failed to load profile")
		SendJSONError(w, http.StatusInternalServerError, err, "Failed to update profile")
		return
	}

	restart := req.RestartPeriod
	if req.Subscription != "" {
		tier, _ := model.ParseTier(req.Subscription)
		restart = restart || tier != profile.Subscription
		profile.Subscription = tier
	}
	if req.SubscriptionType != "" {
		d, _ := model.ParseDuration(req.SubscriptionType)
		restart = restart || d != profile.SubscriptionType.Normalize()
		profile.SubscriptionType = d
	}
	if req.Status != "" {
		status, _ := model.ParseProfileStatus(req.Status)
		profile.Status = status
	}

	now := h.now().UTC()
	if restart {
		profile.SubscriptionStart = now
		if req.Status == "" && profile.Status == model.ProfileExpired {
			profile.Status = model.ProfileApproved
		}
	}
	profile.UpdatedAt = now

	if err := h.store.Profiles.Update(ctx, profile); err != nil {
		log.Error().Err(err).Str("username", username).Msg("Failed to update profile")
		SendJSONError(w, http.StatusInternalServerError, err, "Failed to update profile")
		return
	}

	log.Info().
		Str("username", username).
		Str("subscription", string(profile.Subscription)).
		Str("duration", string(profile.SubscriptionType)).
		Str("status", string(profile.Status)).
		Bool("period_restarted", restart).
		Msg("Profile updated by admin")

	SendJSONSuccess(w, http.StatusOK, SuccessResponse{Success: true, Data: profile})
}
