package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/karmashop-resbrevis/karmapurgex/config"
	"github.com/karmashop-resbrevis/karmapurgex/middleware"
	"github.com/karmashop-resbrevis/karmapurgex/model"
	"github.com/karmashop-resbrevis/karmapurgex/store"
	"github.com/karmashop-resbrevis/karmapurgex/utils"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

var (
	errLinkCap         = errors.New("You have reached your shortlink limit for your plan. Please upgrade your subscription to create more shortlinks.")
	errAdvancedFilters = errors.New("Free users cannot use advanced filters.")
	errNotFound        = errors.New("Shortlink not found")
)

// LivenessChecker classifies a destination URL.
type LivenessChecker interface {
	Check(ctx context.Context, url string) model.LivenessStatus
}

// ShortlinkHandler serves the owner management API under /api/shortlinks.
type ShortlinkHandler struct {
	store    *store.Store
	checker  LivenessChecker
	activity *ActivityRecorder
	config   config.Config
	now      func() time.Time
}

func NewShortlinkHandler(s *store.Store, checker LivenessChecker, activity *ActivityRecorder, cfg config.Config) *ShortlinkHandler {
	return &ShortlinkHandler{store: s, checker: checker, activity: activity, config: cfg, now: time.Now}
}

// List handles GET /api/shortlinks
func (h *ShortlinkHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.config.OperationTimeout())
	defer cancel()

	username := middleware.GetUsername(r)
	links, err := h.store.Shortlinks.ListByOwner(ctx, username)
	if err != nil {
		log.Error().Err(err).Str("username", username).Msg("Failed to list shortlinks")
		SendJSONError(w, http.StatusInternalServerError, err, "Failed to list shortlinks")
		return
	}
	if links == nil {
		links = []model.Shortlink{}
	}
	SendJSONSuccess(w, http.StatusOK, links)
}

// Create handles POST /api/shortlinks
func (h *ShortlinkHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.config.OperationTimeout())
	defer cancel()

	username := middleware.GetUsername(r)

	var req model.ShortlinkRequest
	if err := decodeJSON(r, &req); err != nil {
		SendJSONError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}
	link, ok := h.linkFromRequest(w, &req)
	if !ok {
		return
	}

	profile, ok := h.ownerProfile(ctx, w, username)
	if !ok {
		return
	}

	if max := profile.Subscription.MaxShortlinks(); max >= 0 {
		count, err := h.store.Shortlinks.CountByOwner(ctx, username)
		if err != nil {
			log.Error().Err(err).Str("username", username).Msg("Failed to count shortlinks")
			SendJSONError(w, http.StatusInternalServerError, err, "Failed to create shortlink")
			return
		}
		if count >= max {
			SendJSONError(w, http.StatusForbidden, errLinkCap, "")
			return
		}
	}

	if profile.Subscription == model.TierFree && link.HasAdvancedRules() {
		SendJSONError(w, http.StatusForbidden, errAdvancedFilters, "")
		return
	}

	exists, err := h.store.Shortlinks.Exists(ctx, link.Key)
	if err != nil {
		log.Error().Err(err).Str("key", link.Key).Msg("Failed to check key availability")
		SendJSONError(w, http.StatusInternalServerError, err, "Failed to create shortlink")
		return
	}
	if exists {
		h.sendConflict(ctx, w, link.Key, "Key already exists")
		return
	}

	now := h.now().UTC()
	link.ID = uuid.New().String()
	link.Owner = username
	link.Status = model.ShortlinkActive
	link.CreatedAt = now
	link.UpdatedAt = now
	h.checkLiveness(ctx, link)

	if err := h.store.Shortlinks.Create(ctx, link); err != nil {
		if errors.Is(err, store.ErrKeyExists) {
			h.sendConflict(ctx, w, link.Key, "Key already exists")
			return
		}
		log.Error().Err(err).Str("key", link.Key).Msg("Failed to create shortlink")
		SendJSONError(w, http.StatusInternalServerError, err, "Failed to create shortlink")
		return
	}

	h.activity.Record(r, username, model.ActivityShortlinkCreated, map[string]interface{}{
		"key": link.Key,
		"url": link.URL,
	})
	log.Info().Str("username", username).Str("key", link.Key).Str("status", string(link.PrimaryURLStatus)).Msg("Shortlink created")

	SendJSONSuccess(w, http.StatusCreated, SuccessResponse{Success: true, Data: link})
}

// Update handles PUT /api/shortlinks. originalKey selects the shortlink
// being replaced; a different key renames it.
func (h *ShortlinkHandler) Update(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.config.OperationTimeout())
	defer cancel()

	username := middleware.GetUsername(r)

	var req model.ShortlinkRequest
	if err := decodeJSON(r, &req); err != nil {
		SendJSONError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}
	originalKey := req.OriginalKey
	if originalKey == "" {
		originalKey = req.Key
	}

	link, ok := h.linkFromRequest(w, &req)
	if !ok {
		return
	}

	existing, ok := h.ownedLink(ctx, w, username, originalKey)
	if !ok {
		return
	}
	profile, ok := h.ownerProfile(ctx, w, username)
	if !ok {
		return
	}
	if profile.Subscription == model.TierFree && link.HasAdvancedRules() {
		SendJSONError(w, http.StatusForbidden, errAdvancedFilters, "")
		return
	}

	renamed := link.Key != existing.Key
	if renamed {
		exists, err := h.store.Shortlinks.Exists(ctx, link.Key)
		if err != nil {
			log.Error().Err(err).Str("key", link.Key).Msg("Failed to check key availability")
			SendJSONError(w, http.StatusInternalServerError, err, "Failed to update shortlink")
			return
		}
		if exists {
			h.sendConflict(ctx, w, link.Key, "New key already exists")
			return
		}
	}

	link.ID = existing.ID
	link.Owner = existing.Owner
	link.Status = existing.Status
	link.CreatedAt = existing.CreatedAt
	link.UpdatedAt = h.now().UTC()
	h.checkLiveness(ctx, link)

	var err error
	if renamed {
		err = h.rename(ctx, existing.Key, link)
	} else {
		err = h.store.Shortlinks.Update(ctx, link)
	}
	if err != nil {
		if errors.Is(err, store.ErrKeyExists) {
			h.sendConflict(ctx, w, link.Key, "New key already exists")
			return
		}
		log.Error().Err(err).Str("key", originalKey).Msg("Failed to update shortlink")
		SendJSONError(w, http.StatusInternalServerError, err, "Failed to update shortlink")
		return
	}

	details := map[string]interface{}{"key": link.Key, "url": link.URL}
	if renamed {
		details["previousKey"] = existing.Key
	}
	h.activity.Record(r, username, model.ActivityShortlinkUpdated, details)

	SendJSONSuccess(w, http.StatusOK, SuccessResponse{Success: true, Data: link})
}

// rename moves a shortlink to a new key. Visits stay recorded under the old
// key.
func (h *ShortlinkHandler) rename(ctx context.Context, oldKey string, link *model.Shortlink) error {
	if err := h.store.Shortlinks.Create(ctx, link); err != nil {
		return err
	}
	if err := h.store.Shortlinks.Delete(ctx, oldKey); err != nil {
		return fmt.Errorf("remove renamed shortlink %s: %w", oldKey, err)
	}
	return nil
}

// Patch handles PATCH /api/shortlinks. Only the fields present are changed.
func (h *ShortlinkHandler) Patch(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.config.OperationTimeout())
	defer cancel()

	username := middleware.GetUsername(r)

	var patch model.ShortlinkPatch
	if err := decodeJSON(r, &patch); err != nil {
		SendJSONError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}
	if msg, err := utils.Validate(&patch); err != nil {
		SendJSONError(w, http.StatusBadRequest, errors.New("validation failed"), msg)
		return
	}

	link, ok := h.ownedLink(ctx, w, username, patch.Key)
	if !ok {
		return
	}
	if patch.HasAdvancedRules() {
		profile, ok := h.ownerProfile(ctx, w, username)
		if !ok {
			return
		}
		if profile.Subscription == model.TierFree {
			SendJSONError(w, http.StatusForbidden, errAdvancedFilters, "")
			return
		}
	}

	if err := applyPatch(link, &patch); err != nil {
		SendJSONError(w, http.StatusBadRequest, err, "Invalid field value")
		return
	}
	link.UpdatedAt = h.now().UTC()

	if err := h.store.Shortlinks.Update(ctx, link); err != nil {
		log.Error().Err(err).Str("key", link.Key).Msg("Failed to patch shortlink")
		SendJSONError(w, http.StatusInternalServerError, err, "Failed to update shortlink")
		return
	}

	h.activity.Record(r, username, model.ActivityShortlinkUpdated, map[string]interface{}{"key": link.Key})
	SendJSONSuccess(w, http.StatusOK, SuccessResponse{Success: true, Data: link})
}

func applyPatch(link *model.Shortlink, p *model.ShortlinkPatch) error {
	if p.Status != nil {
		link.Status = *p.Status
	}
	if p.StatusCode != nil {
		link.StatusCode = *p.StatusCode
	}
	if p.AllowedDevice != nil {
		device, ok := model.ParseDeviceType(*p.AllowedDevice)
		if !ok {
			return fmt.Errorf("unknown device %q", *p.AllowedDevice)
		}
		link.AllowedDevice = device
	}
	if p.ConnectionType != nil {
		policy, ok := model.ParseConnectionPolicy(*p.ConnectionType)
		if !ok {
			return fmt.Errorf("unknown connection type %q", *p.ConnectionType)
		}
		link.ConnectionType = policy
	}
	if p.AllowedCountry != nil {
		link.AllowedCountry = strings.ToUpper(strings.TrimSpace(*p.AllowedCountry))
	}
	if p.AllowedISP != nil {
		link.AllowedISP = strings.TrimSpace(*p.AllowedISP)
	}
	if p.WhitelistedIPs != nil {
		link.WhitelistedIPs = *p.WhitelistedIPs
	}
	if p.BlacklistedIPs != nil {
		link.BlacklistedIPs = *p.BlacklistedIPs
	}
	return nil
}

type deleteRequest struct {
	Key string `json:"key" validate:"required"`
}

// Delete handles DELETE /api/shortlinks with body {"key": ...}. Visits of
// the shortlink are removed with it.
func (h *ShortlinkHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.config.OperationTimeout())
	defer cancel()

	username := middleware.GetUsername(r)

	var req deleteRequest
	if err := decodeJSON(r, &req); err != nil {
		SendJSONError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}
	if msg, err := utils.Validate(&req); err != nil {
		SendJSONError(w, http.StatusBadRequest, errors.New("validation failed"), msg)
		return
	}

	link, ok := h.ownedLink(ctx, w, username, req.Key)
	if !ok {
		return
	}
	if err := h.store.DeleteShortlink(ctx, link.Key); err != nil {
		log.Error().Err(err).Str("key", link.Key).Msg("Failed to delete shortlink")
		SendJSONError(w, http.StatusInternalServerError, err, "Failed to delete shortlink")
		return
	}

	h.activity.Record(r, username, model.ActivityShortlinkDeleted, map[string]interface{}{"key": link.Key})
	log.Info().Str("username", username).Str("key", link.Key).Msg("Shortlink deleted")

	SendJSONSuccess(w, http.StatusOK, SuccessResponse{Success: true})
}

// PatchStatus handles PATCH /api/shortlinks/status. The url must match the
// shortlink's current primary or secondary URL.
func (h *ShortlinkHandler) PatchStatus(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.config.OperationTimeout())
	defer cancel()

	username := middleware.GetUsername(r)

	var req model.StatusPatchRequest
	if err := decodeJSON(r, &req); err != nil {
		SendJSONError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}
	if msg, err := utils.Validate(&req); err != nil {
		SendJSONError(w, http.StatusBadRequest, errors.New("validation failed"), msg)
		return
	}

	link, ok := h.ownedLink(ctx, w, username, req.Key)
	if !ok {
		return
	}

	status := model.LivenessStatus(req.Status)
	switch {
	case req.Type == "primary" && link.URL == req.URL:
		link.PrimaryURLStatus = status
	case req.Type == "secondary" && link.SecondaryURL != "" && link.SecondaryURL == req.URL:
		link.SecondaryURLStatus = status
	default:
		SendJSONError(w, http.StatusNotFound, errNotFound, "")
		return
	}
	link.UpdatedAt = h.now().UTC()

	if err := h.store.Shortlinks.Update(ctx, link); err != nil {
		log.Error().Err(err).Str("key", link.Key).Msg("Failed to update URL status")
		SendJSONError(w, http.StatusInternalServerError, err, "Failed to update status")
		return
	}

	h.activity.Record(r, username, model.ActivityStatusChanged, map[string]interface{}{
		"key":    link.Key,
		"type":   req.Type,
		"status": req.Status,
	})
	SendJSONSuccess(w, http.StatusOK, SuccessResponse{Success: true, Data: link})
}

// linkFromRequest validates a create/update payload and converts it. It
// writes the 400 response itself.
func (h *ShortlinkHandler) linkFromRequest(w http.ResponseWriter, req *model.ShortlinkRequest) (*model.Shortlink, bool) {
	req.Key = strings.TrimSpace(req.Key)
	req.URL = strings.TrimSpace(req.URL)
	req.SecondaryURL = strings.TrimSpace(req.SecondaryURL)

	if msg, err := utils.Validate(req); err != nil {
		SendJSONError(w, http.StatusBadRequest, errors.New("validation failed"), msg)
		return nil, false
	}
	if err := utils.ValidateKey(req.Key, h.config.Features.MinKeyLength, h.config.Features.MaxKeyLength); err != nil {
		SendJSONError(w, http.StatusBadRequest, err, "Invalid key")
		return nil, false
	}
	if err := utils.ValidateURL(req.URL); err != nil {
		SendJSONError(w, http.StatusBadRequest, err, "Invalid URL")
		return nil, false
	}
	if req.SecondaryURL != "" {
		if err := utils.ValidateURL(req.SecondaryURL); err != nil {
			SendJSONError(w, http.StatusBadRequest, err, "Invalid secondary URL")
			return nil, false
		}
	}
	device, ok := model.ParseDeviceType(req.AllowedDevice)
	if !ok {
		SendJSONError(w, http.StatusBadRequest, fmt.Errorf("unknown device %q", req.AllowedDevice), "Allowed device must be Desktop, Mobile or Allow All")
		return nil, false
	}
	policy, ok := model.ParseConnectionPolicy(req.ConnectionType)
	if !ok {
		SendJSONError(w, http.StatusBadRequest, fmt.Errorf("unknown connection type %q", req.ConnectionType), "Connection type must be Allow All, Block VPN, Block Proxy or Block All")
		return nil, false
	}

	return &model.Shortlink{
		Key:            req.Key,
		URL:            req.URL,
		SecondaryURL:   req.SecondaryURL,
		StatusCode:     req.StatusCode,
		AllowedDevice:  device,
		ConnectionType: policy,
		AllowedCountry: strings.ToUpper(req.AllowedCountry),
		AllowedISP:     strings.TrimSpace(req.AllowedISP),
		WhitelistedIPs: req.WhitelistedIPs,
		BlacklistedIPs: req.BlacklistedIPs,
	}, true
}

func (h *ShortlinkHandler) checkLiveness(ctx context.Context, link *model.Shortlink) {
	link.PrimaryURLStatus = h.checker.Check(ctx, link.URL)
	link.SecondaryURLStatus = ""
	if link.SecondaryURL != "" {
		link.SecondaryURLStatus = h.checker.Check(ctx, link.SecondaryURL)
	}
}

// ownedLink loads key and hides shortlinks of other owners behind a 404.
func (h *ShortlinkHandler) ownedLink(ctx context.Context, w http.ResponseWriter, username, key string) (*model.Shortlink, bool) {
	link, err := h.store.Shortlinks.GetByKey(ctx, key)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			SendJSONError(w, http.StatusNotFound, errNotFound, "")
			return nil, false
		}
		log.Error().Err(err).Str("key", key).Msg("Failed to load shortlink")
		SendJSONError(w, http.StatusInternalServerError, err, "Failed to load shortlink")
		return nil, false
	}
	if link.Owner != username {
		SendJSONError(w, http.StatusNotFound, errNotFound, "")
		return nil, false
	}
	return link, true
}

func (h *ShortlinkHandler) ownerProfile(ctx context.Context, w http.ResponseWriter, username string) (*model.Profile, bool) {
	profile, err := h.store.Profiles.Get(ctx, username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			SendJSONError(w, http.StatusForbidden, errors.New("profile not found"), "No subscription profile for this account")
			return nil, false
		}
		log.Error().Err(err).Str("username", username).Msg("Failed to load profile")
		SendJSONError(w, http.StatusInternalServerError, err, "Failed to load profile")
		return nil, false
	}
	return profile, true
}

func (h *ShortlinkHandler) sendConflict(ctx context.Context, w http.ResponseWriter, key, msg string) {
	suggestions := utils.SuggestKeys(ctx, h.store.Shortlinks, key, h.config.Features.KeySuggestionsCount)
	SendJSONErrorWithSuggestions(w, http.StatusConflict, errors.New(msg), "Try one of the suggested keys", suggestions)
}
