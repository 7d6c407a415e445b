package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/karmashop-resbrevis/karmapurgex/middleware"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"
	"github.com/skip2/go-qrcode"
)

var qrLevels = map[string]qrcode.RecoveryLevel{
	"low":     qrcode.Low,
	"medium":  qrcode.Medium,
	"high":    qrcode.High,
	"highest": qrcode.Highest,
}

// QR handles GET /api/shortlinks/{key}/qr?size=&level=
// The image encodes the public resolution URL of the shortlink.
func (h *ShortlinkHandler) QR(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.config.OperationTimeout())
	defer cancel()

	key := mux.Vars(r)["key"]
	link, ok := h.ownedLink(ctx, w, middleware.GetUsername(r), key)
	if !ok {
		return
	}

	query := r.URL.Query()

	size := 256
	if sizeStr := query.Get("size"); sizeStr != "" {
		parsed, err := strconv.Atoi(sizeStr)
		if err != nil {
			SendJSONError(w, http.StatusBadRequest, errors.New("invalid size parameter"), "Size must be a number")
			return
		}
		if parsed < 128 || parsed > 1024 {
			SendJSONError(w, http.StatusBadRequest, errors.New("size out of range"), "Size must be between 128 and 1024")
			return
		}
		size = parsed
	}

	levelName := query.Get("level")
	if levelName == "" {
		levelName = "medium"
	}
	level, ok := qrLevels[levelName]
	if !ok {
		SendJSONError(w, http.StatusBadRequest, errors.New("invalid level parameter"), "Level must be: low, medium, high, or highest")
		return
	}

	target := fmt.Sprintf("%s/resolve/%s", strings.TrimRight(h.config.WebServer.BaseURL, "/"), url.PathEscape(link.Key))
	png, err := qrcode.Encode(target, level, size)
	if err != nil {
		log.Error().Err(err).Str("url", target).Msg("Failed to generate QR code")
		SendJSONError(w, http.StatusInternalServerError, err, "Failed to generate QR code")
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "private, max-age=3600")
	w.Header().Set("Content-Length", strconv.Itoa(len(png)))
	if _, err := w.Write(png); err != nil {
		log.Error().Err(err).Msg("Failed to write QR code response")
		return
	}

	log.Debug().Str("key", link.Key).Int("size", size).Str("level", levelName).Msg("QR code generated")
}
