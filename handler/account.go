package handler

import (
	"context"
	"errors"
	"net/http"
	"sort"

	"github.com/karmashop-resbrevis/karmapurgex/config"
	"github.com/karmashop-resbrevis/karmapurgex/middleware"
	"github.com/karmashop-resbrevis/karmapurgex/model"
	"github.com/karmashop-resbrevis/karmapurgex/quota"
	"github.com/karmashop-resbrevis/karmapurgex/store"
	"github.com/karmashop-resbrevis/karmapurgex/utils"

	"github.com/rs/zerolog/log"
)

// AccountHandler serves an owner's statistics and subscription.
type AccountHandler struct {
	store    *store.Store
	quota    *quota.Accountant
	activity *ActivityRecorder
	config   config.Config
}

func NewAccountHandler(s *store.Store, accountant *quota.Accountant, activity *ActivityRecorder, cfg config.Config) *AccountHandler {
	return &AccountHandler{store: s, quota: accountant, activity: activity, config: cfg}
}

// Stats handles GET /api/account. A profile without an API key gets one
// issued on the first call.
func (h *AccountHandler) Stats(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.config.OperationTimeout())
	defer cancel()

	username := middleware.GetUsername(r)
	profile, ok := h.profile(ctx, w, username)
	if !ok {
		return
	}

	if profile.APIKey == "" {
		profile.APIKey = utils.NewAPIKey()
		if err := h.store.Profiles.Update(ctx, profile); err != nil {
			log.Error().Err(err).Str("username", username).Msg("Failed to issue API key")
			SendJSONError(w, http.StatusInternalServerError, err, "Failed to issue API key")
			return
		}
		h.activity.Record(r, username, model.ActivityAPIKeyIssued, nil)
		log.Info().Str("username", username).Msg("API key issued")
	}

	links, err := h.store.Shortlinks.ListByOwner(ctx, username)
	if err != nil {
		log.Error().Err(err).Str("username", username).Msg("Failed to list shortlinks")
		SendJSONError(w, http.StatusInternalServerError, err, "Failed to load statistics")
		return
	}

	visits := make(map[string][]model.Visit, len(links))
	for _, link := range links {
		v, err := h.store.Visits.ListByShortlink(ctx, link.Key)
		if err != nil {
			log.Error().Err(err).Str("key", link.Key).Msg("Failed to list visits")
			SendJSONError(w, http.StatusInternalServerError, err, "Failed to load statistics")
			return
		}
		visits[link.Key] = v
	}

	stats := Aggregate(links, visits)
	stats.APIKey = profile.APIKey
	SendJSONSuccess(w, http.StatusOK, stats)
}

// Aggregate folds the visits of every shortlink into account statistics.
// Humans and bots partition the visits; blocked visits are counted in one
// of them as well. Chart days are ascending.
func Aggregate(links []model.Shortlink, visits map[string][]model.Visit) model.AccountStats {
	stats := model.AccountStats{
		TotalLinks: len(links),
		PerLink:    make([]model.LinkStats, 0, len(links)),
		ChartData:  []model.DayDeviceStats{},
	}
	days := make(map[string]*model.DayDeviceStats)

	for _, link := range links {
		ls := model.LinkStats{Key: link.Key, URL: link.URL}
		for _, v := range visits[link.Key] {
			ls.Total++
			stats.TotalVisits++
			stats.Devices.Add(v.Device)

			if v.IsBot {
				ls.Bots++
				stats.Bots++
				stats.BotsByDevice.Add(v.Device)
			} else {
				ls.Humans++
				stats.Humans++
				stats.HumansByDevice.Add(v.Device)
			}
			if v.IsBlocked {
				ls.Blocked++
				stats.Blocked++
				stats.BlockedByDevice.Add(v.Device)
			}

			date := model.DayOf(v.VisitedAt)
			day, ok := days[date]
			if !ok {
				day = &model.DayDeviceStats{Date: date}
				days[date] = day
			}
			if v.Device == model.DeviceMobile {
				day.Mobile++
			} else {
				day.Desktop++
			}
		}
		stats.PerLink = append(stats.PerLink, ls)
	}

	for _, day := range days {
		stats.ChartData = append(stats.ChartData, *day)
	}
	sort.Slice(stats.ChartData, func(i, j int) bool {
		return stats.ChartData[i].Date < stats.ChartData[j].Date
	})
	return stats
}

// Subscription handles GET /api/subscription
func (h *AccountHandler) Subscription(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.config.OperationTimeout())
	defer cancel()

	profile, ok := h.profile(ctx, w, middleware.GetUsername(r))
	if !ok {
		return
	}

	usage, err := h.quota.Usage(ctx, profile)
	if err != nil {
		log.Error().Err(err).Str("username", profile.Username).Msg("Failed to compute usage")
		SendJSONError(w, http.StatusInternalServerError, err, "Failed to load subscription")
		return
	}
	SendJSONSuccess(w, http.StatusOK, usage)
}

func (h *AccountHandler) profile(ctx context.Context, w http.ResponseWriter, username string) (*model.Profile, bool) {
	profile, err := h.store.Profiles.Get(ctx, username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			SendJSONError(w, http.StatusNotFound, errors.New("profile not found"), "No subscription profile for this account")
			return nil, false
		}
		log.Error().Err(err).Str("username", username).Msg("Failed to load profile")
		SendJSONError(w, http.StatusInternalServerError, err, "Failed to load profile")
		return nil, false
	}
	return profile, true
}
