package handler

import (
	"net/http"

	jsoniter "github.com/json-iterator/go"
	"github.com/rs/zerolog/log"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ErrorResponse is the body of every JSON error.
type ErrorResponse struct {
	Error       string   `json:"error"`
	Message     string   `json:"message,omitempty"`
	Suggestions []string `json:"suggestions,omitempty"`
}

// SuccessResponse acknowledges a mutation.
type SuccessResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
}

func SendJSONError(w http.ResponseWriter, statusCode int, err error, message string) {
	SendJSONErrorWithSuggestions(w, statusCode, err, message, nil)
}

// SendJSONErrorWithSuggestions adds alternative keys to a conflict error.
func SendJSONErrorWithSuggestions(w http.ResponseWriter, statusCode int, err error, message string, suggestions []string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	response := ErrorResponse{
		Error:       err.Error(),
		Message:     message,
		Suggestions: suggestions,
	}
	if encodeErr := json.NewEncoder(w).Encode(response); encodeErr != nil {
		log.Error().Err(encodeErr).Msg("Failed to encode error response")
	}
}

func SendJSONSuccess(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error().Err(err).Msg("Failed to encode success response")
	}
}

// decodeJSON reads a request body into dst. Unknown fields are ignored.
func decodeJSON(r *http.Request, dst interface{}) error {
	return json.NewDecoder(r.Body).Decode(dst)
}
