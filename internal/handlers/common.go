package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"together-backend/internal/services"

	"github.com/rs/zerolog/log"
)

const maxBodyBytes = 1 << 20

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error string `json:"error"`
}

// respondError sends an error response
func respondError(w http.ResponseWriter, message string, statusCode int) {
	respondJSON(w, statusCode, ErrorResponse{Error: message})
}

func respondJSON(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}

// decodeBody reads a JSON request body into dst. An empty body leaves dst
// untouched.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(dst)
	if err == nil || errors.Is(err, io.EOF) {
		return true
	}
	respondError(w, "Invalid request body", http.StatusBadRequest)
	return false
}

// respondServiceError maps a service error onto an HTTP status. Unknown
// errors are logged and reported without detail.
func respondServiceError(w http.ResponseWriter, err error, userID, action string) {
	var (
		validation *services.ValidationError
		conflict   *services.ConflictError
	)
	switch {
	case errors.As(err, &validation):
		respondError(w, validation.Message, http.StatusBadRequest)
	case errors.As(err, &conflict):
		respondError(w, conflict.Reason, http.StatusConflict)
	case errors.Is(err, services.ErrUnauthorized):
		respondError(w, err.Error(), http.StatusUnauthorized)
	case errors.Is(err, services.ErrNoPartner), errors.Is(err, services.ErrForbidden):
		respondError(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, services.ErrNotFound):
		respondError(w, err.Error(), http.StatusNotFound)
	default:
		log.Error().Err(err).Str("user_id", userID).Msg("Failed to " + action)
		respondError(w, "Failed to "+action, http.StatusInternalServerError)
	}
}

// queryFlag reads a boolean query parameter such as ?refresh=1
func queryFlag(r *http.Request, name string) bool {
	v, err := strconv.ParseBool(r.URL.Query().Get(name))
	return err == nil && v
}

// queryInt reads an optional integer query parameter
func queryInt(r *http.Request, name string) (*int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return nil, err
	}
	return &v, nil
}
