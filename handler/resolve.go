package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/karmashop-resbrevis/karmapurgex/quota"
	"github.com/karmashop-resbrevis/karmapurgex/resolver"
	"github.com/karmashop-resbrevis/karmapurgex/security"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"
)

// resolveTimeout covers the store reads and both IP lookups.
const resolveTimeout = 10 * time.Second

type ResolveHandler struct {
	resolver    *resolver.Resolver
	signals     *security.SignalExtractor
	notFoundURL string
}

func NewResolveHandler(r *resolver.Resolver, signals *security.SignalExtractor, notFoundURL string) *ResolveHandler {
	return &ResolveHandler{resolver: r, signals: signals, notFoundURL: notFoundURL}
}

// Resolve handles GET /resolve/{key}. The caller's API key arrives in
// X-API-Key.
func (h *ResolveHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), resolveTimeout)
	defer cancel()

	sig := h.signals.Extract(r)
	req := resolver.Request{
		Key:     mux.Vars(r)["key"],
		APIKey:  r.Header.Get("X-API-Key"),
		Signals: sig,
	}

	out, err := h.resolver.Resolve(ctx, req)
	if err != nil {
		h.sendError(w, r, sig, req.Key, err)
		return
	}

	if out.Response.IsRedirect() {
		http.Redirect(w, r, out.Response.Location, http.StatusFound)
		return
	}
	SendJSONError(w, out.Response.Status, errors.New(out.Response.Error), "")
}

func (h *ResolveHandler) sendError(w http.ResponseWriter, r *http.Request, sig security.Signals, key string, err error) {
	switch {
	case errors.Is(err, resolver.ErrRateLimited):
		SendJSONError(w, http.StatusTooManyRequests, errors.New("Rate limit exceeded"), "")
	case errors.Is(err, resolver.ErrMissingAPIKey):
		if sig.IsLikelyBrowser && h.notFoundURL != "" {
			http.Redirect(w, r, h.notFoundURL, http.StatusFound)
			return
		}
		SendJSONError(w, http.StatusNotFound, errors.New("Missing API key"), "")
	case errors.Is(err, resolver.ErrInvalidAPIKey):
		SendJSONError(w, http.StatusForbidden, errors.New("Invalid API key"), "")
	case errors.Is(err, resolver.ErrSubscriptionExpired):
		SendJSONError(w, http.StatusNotFound, errors.New("Subscription Expired."), "")
	case errors.Is(err, resolver.ErrMissingKey):
		SendJSONError(w, http.StatusBadRequest, errors.New("Missing key"), "")
	case errors.Is(err, resolver.ErrShortlinkNotFound):
		SendJSONError(w, http.StatusNotFound, errors.New("Shortlink not found"), "")
	case errors.Is(err, resolver.ErrVerificationUnavailable):
		SendJSONError(w, http.StatusBadGateway, errors.New("Unable to verify IP location"), "")
	case errors.Is(err, resolver.ErrNoDestination):
		log.Warn().Str("key", key).Msg("Shortlink has no LIVE destination")
		SendJSONError(w, http.StatusBadGateway, errors.New("No valid destination found"), "")
	case errors.Is(err, quota.ErrExceeded):
		SendJSONError(w, http.StatusTooManyRequests, errors.New("Subscription request limit reached."), "")
	default:
		log.Error().Err(err).Str("key", key).Str("ip", sig.IP).Msg("Resolution failed")
		SendJSONError(w, http.StatusInternalServerError, errors.New("internal error"), "Failed to resolve shortlink")
	}
}
