package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/karmashop-resbrevis/karmapurgex/auth"
	"github.com/karmashop-resbrevis/karmapurgex/config"
	"github.com/karmashop-resbrevis/karmapurgex/model"
	"github.com/karmashop-resbrevis/karmapurgex/store"
	"github.com/karmashop-resbrevis/karmapurgex/utils"

	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"
)

var errInvalidCredentials = errors.New("invalid credentials")

// UserHandler handles owner signup and login
type UserHandler struct {
	store      *store.Store
	jwtManager *auth.JWTManager
	activity   *ActivityRecorder
	config     config.Config
	now        func() time.Time
}

func NewUserHandler(s *store.Store, jwtManager *auth.JWTManager, activity *ActivityRecorder, cfg config.Config) *UserHandler {
	return &UserHandler{store: s, jwtManager: jwtManager, activity: activity, config: cfg, now: time.Now}
}

// Signup handles POST /api/signup. The new owner starts on an approved free
// 7-day subscription with a fresh API key.
func (uh *UserHandler) Signup(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), uh.config.OperationTimeout())
	defer cancel()

	var req model.SignupRequest
	if err := decodeJSON(r, &req); err != nil {
		SendJSONError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}
	req.Username = strings.ToLower(strings.TrimSpace(req.Username))
	if msg, err := utils.Validate(&req); err != nil {
		SendJSONError(w, http.StatusBadRequest, errors.New("validation failed"), msg)
		return
	}
	if err := utils.ValidateAccessKey(req.Key, uh.config.Auth); err != nil {
		SendJSONError(w, http.StatusBadRequest, err, "Key requirements: "+utils.AccessKeyRequirements(uh.config.Auth))
		return
	}

	cost := uh.config.Auth.BcryptCost
	if cost < bcrypt.MinCost {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Key), cost)
	if err != nil {
		log.Error().Err(err).Msg("Failed to hash key")
		SendJSONError(w, http.StatusInternalServerError, err, "Failed to process signup")
		return
	}

	now := uh.now().UTC()
	user := &model.User{Username: req.Username, KeyHash: string(hash), CreatedAt: now}
	if err := uh.store.Users.Create(ctx, user); err != nil {
		if errors.Is(err, store.ErrKeyExists) {
			SendJSONError(w, http.StatusConflict, errors.New("username exists"), "This username is already taken")
			return
		}
		log.Error().Err(err).Str("username", req.Username).Msg("Failed to save user")
		SendJSONError(w, http.StatusInternalServerError, err, "Failed to process signup")
		return
	}

	profile := &model.Profile{
		Username:          req.Username,
		APIKey:            utils.NewAPIKey(),
		Status:            model.ProfileApproved,
		Subscription:      model.TierFree,
		SubscriptionType:  model.Duration7Day,
		SubscriptionStart: now,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := uh.store.Profiles.Create(ctx, profile); err != nil && !errors.Is(err, store.ErrKeyExists) {
		log.Error().Err(err).Str("username", req.Username).Msg("Failed to create profile")
		SendJSONError(w, http.StatusInternalServerError, err, "Failed to process signup")
		return
	}

	log.Info().Str("username", req.Username).Msg("Owner signed up")
	SendJSONSuccess(w, http.StatusCreated, SuccessResponse{Success: true, Data: profile})
}

// Login handles POST /api/login
func (uh *UserHandler) Login(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), uh.config.OperationTimeout())
	defer cancel()

	var req model.LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		SendJSONError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}
	req.Username = strings.ToLower(strings.TrimSpace(req.Username))
	if msg, err := utils.Validate(&req); err != nil {
		SendJSONError(w, http.StatusBadRequest, errors.New("validation failed"), msg)
		return
	}

	user, err := uh.store.Users.Get(ctx, req.Username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			SendJSONError(w, http.StatusUnauthorized, errInvalidCredentials, "Invalid username or key")
			return
		}
		log.Error().Err(err).Str("username", req.Username).Msg("Failed to load user")
		SendJSONError(w, http.StatusInternalServerError, err, "Failed to process login")
		return
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.KeyHash), []byte(req.Key)); err != nil {
		uh.activity.Record(r, user.Username, model.ActivityLoginFailed, nil)
		SendJSONError(w, http.StatusUnauthorized, errInvalidCredentials, "Invalid username or key")
		return
	}

	profile, err := uh.store.Profiles.Get(ctx, user.Username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			SendJSONError(w, http.StatusForbidden, errors.New("profile not found"), "No subscription profile for this account")
			return
		}
		log.Error().Err(err).Str("username", user.Username).Msg("Failed to load profile")
		SendJSONError(w, http.StatusInternalServerError, err, "Failed to process login")
		return
	}
	if !uh.admit(ctx, w, profile) {
		return
	}

	token, expiresAt, err := uh.jwtManager.Generate(user.Username)
	if err != nil {
		log.Error().Err(err).Str("username", user.Username).Msg("Failed to issue token")
		SendJSONError(w, http.StatusInternalServerError, err, "Failed to process login")
		return
	}

	user.LastLogin = uh.now().UTC()
	if err := uh.store.Users.Update(ctx, user); err != nil {
		log.Warn().Err(err).Str("username", user.Username).Msg("Failed to record last login")
	}
	uh.activity.Record(r, user.Username, model.ActivityLogin, nil)

	SendJSONSuccess(w, http.StatusOK, model.LoginResponse{
		Token:     token,
		ExpiresAt: expiresAt,
		Profile:   *profile,
	})
}

// admit refuses profiles that may not log in. An approved profile whose
// period has ended is flipped to expired first.
func (uh *UserHandler) admit(ctx context.Context, w http.ResponseWriter, profile *model.Profile) bool {
	if profile.Status == model.ProfileApproved && profile.Lapsed(uh.now()) {
		profile.Status = model.ProfileExpired
		profile.UpdatedAt = uh.now().UTC()
		if err := uh.store.Profiles.Update(ctx, profile); err != nil {
			log.Error().Err(err).Str("username", profile.Username).Msg("Failed to expire profile")
		}
	}

	switch profile.Status {
	case model.ProfileApproved:
		return true
	case model.ProfileWaiting:
		SendJSONError(w, http.StatusForbidden, errors.New("account pending"), "Your account is awaiting approval")
	case model.ProfileDenied:
		SendJSONError(w, http.StatusForbidden, errors.New("account denied"), "Your account has been denied")
	case model.ProfileExpired:
		SendJSONError(w, http.StatusForbidden, errors.New("Subscription Expired."), "Renew your subscription to continue")
	default:
		SendJSONError(w, http.StatusForbidden, errors.New("account inactive"), "")
	}
	return false
}
