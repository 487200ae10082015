package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"ride-pool-backend/internal/middleware"
	"ride-pool-backend/internal/services"

	"github.com/rs/zerolog/log"
)

// ErrorResponse represents an error response
type ErrorResponse struct {
	Message string `json:"message"`
}

// MessageResponse is the success body of operations with nothing else to return
type MessageResponse struct {
	Message string `json:"message"`
}

func respondJSON(w http.ResponseWriter, statusCode int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}

// respondError sends an error response
func respondError(w http.ResponseWriter, message string, statusCode int) {
	respondJSON(w, statusCode, ErrorResponse{Message: message})
}

// respondServiceError reports err to the client. Business rule failures carry
// their own status and message; anything else is logged and hidden behind a 500.
func respondServiceError(w http.ResponseWriter, r *http.Request, op, rideID string, err error) {
	userID := middleware.GetUserID(r.Context())

	var se *services.ServiceError
	if errors.As(err, &se) {
		log.Info().
			Str("op", op).
			Str("ride_id", rideID).
			Str("user_id", userID).
			Int("status", se.Status).
			Msg(se.Message)
		respondError(w, se.Message, se.Status)
		return
	}

	log.Error().
		Err(err).
		Str("op", op).
		Str("ride_id", rideID).
		Str("user_id", userID).
		Msg("Request failed")
	respondError(w, "Internal Server Error", http.StatusInternalServerError)
}

// decodeBody decodes a JSON request body into v. An empty body leaves v untouched.
func decodeBody(r *http.Request, v interface{}) error {
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}
