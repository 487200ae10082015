package handlers

import (
	"net/http"
	"net/url"
	"strconv"
	"time"

	"ride-pool-backend/internal/middleware"
	"ride-pool-backend/internal/models"
	"ride-pool-backend/internal/services"

	"github.com/go-chi/chi/v5"
)

// RideHandler handles ride-related HTTP requests
type RideHandler struct {
	rideService *services.RideService
}

// NewRideHandler creates a new ride handler
func NewRideHandler(rideService *services.RideService) *RideHandler {
	return &RideHandler{
		rideService: rideService,
	}
}

// Routes mounts the ride endpoints. mutating wraps every route that changes state.
func (h *RideHandler) Routes(r chi.Router, mutating func(http.Handler) http.Handler) {
	if mutating == nil {
		mutating = func(next http.Handler) http.Handler { return next }
	}
	r.With(mutating).Post("/create", h.CreateRide)
	r.With(mutating).Get("/join/{id}", h.JoinRide)
	r.With(mutating).Post("/accept/{id}", h.AcceptRequest)
	r.With(mutating).Post("/reject/{id}", h.RejectRequest)
	r.With(mutating).Delete("/revoke/{id}", h.RevokeRequest)
	r.With(mutating).Delete("/remove/{id}", h.RemoveRequest)
	r.With(mutating).Delete("/kick/{id}", h.KickUser)
	r.With(mutating).Delete("/delete/{id}", h.DeleteRide)
	r.With(mutating).Put("/update/{id}", h.UpdateRide)
	r.Get("/find/{id}", h.FindRide)
	r.Get("/search", h.SearchRides)
}

// CreateRideResponse is returned after a ride is posted
type CreateRideResponse struct {
	Message string `json:"message"`
	ID      string `json:"id"`
}

// RideResponse carries a single ride
type RideResponse struct {
	Message string       `json:"message"`
	Ride    *models.Ride `json:"ride"`
}

// RidesResponse carries a list of rides
type RidesResponse struct {
	Message string         `json:"message"`
	Rides   []*models.Ride `json:"rides"`
}

// TargetRequest names the user an owner acts on
type TargetRequest struct {
	UserEmail string `json:"userEmail"`
}

// EmailRequest names the user removed from a ride or its queue
type EmailRequest struct {
	Email string `json:"email"`
}

// CreateRide handles POST /ride/create
func (h *RideHandler) CreateRide(w http.ResponseWriter, r *http.Request) {
	var in services.CreateRideInput
	if err := decodeBody(r, &in); err != nil {
		respondError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	ride, err := h.rideService.CreateRide(r.Context(), middleware.GetUserID(r.Context()), in)
	if err != nil {
		respondServiceError(w, r, "createRide", "", err)
		return
	}

	respondJSON(w, http.StatusCreated, CreateRideResponse{Message: "Posted ride.", ID: ride.ID})
}

// JoinRide handles GET /ride/join/{id}
func (h *RideHandler) JoinRide(w http.ResponseWriter, r *http.Request) {
	rideID := chi.URLParam(r, "id")
	if err := h.rideService.RequestToJoin(r.Context(), rideID, middleware.GetUserID(r.Context())); err != nil {
		respondServiceError(w, r, "requestToJoin", rideID, err)
		return
	}
	respondJSON(w, http.StatusOK, MessageResponse{Message: "Requested to join this ride."})
}

// AcceptRequest handles POST /ride/accept/{id}
func (h *RideHandler) AcceptRequest(w http.ResponseWriter, r *http.Request) {
	rideID := chi.URLParam(r, "id")
	var req TargetRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.rideService.Accept(r.Context(), rideID, middleware.GetUserID(r.Context()), req.UserEmail); err != nil {
		respondServiceError(w, r, "accept", rideID, err)
		return
	}
	respondJSON(w, http.StatusOK, MessageResponse{Message: "Accepted into this ride."})
}

// RejectRequest handles POST /ride/reject/{id}
func (h *RideHandler) RejectRequest(w http.ResponseWriter, r *http.Request) {
	rideID := chi.URLParam(r, "id")
	var req TargetRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.rideService.Reject(r.Context(), rideID, middleware.GetUserID(r.Context()), req.UserEmail); err != nil {
		respondServiceError(w, r, "reject", rideID, err)
		return
	}
	respondJSON(w, http.StatusOK, MessageResponse{Message: "Removed from request queue."})
}

// RevokeRequest handles DELETE /ride/revoke/{id}
func (h *RideHandler) RevokeRequest(w http.ResponseWriter, r *http.Request) {
	rideID := chi.URLParam(r, "id")
	if err := h.rideService.Revoke(r.Context(), rideID, middleware.GetUserID(r.Context())); err != nil {
		respondServiceError(w, r, "revoke", rideID, err)
		return
	}
	respondJSON(w, http.StatusOK, MessageResponse{Message: "Removed from request queue."})
}

// RemoveRequest handles DELETE /ride/remove/{id}
func (h *RideHandler) RemoveRequest(w http.ResponseWriter, r *http.Request) {
	rideID := chi.URLParam(r, "id")
	var req EmailRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.rideService.RemoveRequest(r.Context(), rideID, middleware.GetUserID(r.Context()), req.Email); err != nil {
		respondServiceError(w, r, "removeRequest", rideID, err)
		return
	}
	respondJSON(w, http.StatusOK, MessageResponse{Message: "Removed from request queue."})
}

// KickUser handles DELETE /ride/kick/{id}
func (h *RideHandler) KickUser(w http.ResponseWriter, r *http.Request) {
	rideID := chi.URLParam(r, "id")
	var req EmailRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.rideService.RemoveOrKick(r.Context(), rideID, middleware.GetUserID(r.Context()), req.Email); err != nil {
		respondServiceError(w, r, "removeOrKick", rideID, err)
		return
	}
	respondJSON(w, http.StatusOK, MessageResponse{Message: "Removed from ride participants."})
}

// DeleteRide handles DELETE /ride/delete/{id}
func (h *RideHandler) DeleteRide(w http.ResponseWriter, r *http.Request) {
	rideID := chi.URLParam(r, "id")
	if err := h.rideService.DeleteRide(r.Context(), rideID, middleware.GetUserID(r.Context())); err != nil {
		respondServiceError(w, r, "deleteRide", rideID, err)
		return
	}
	respondJSON(w, http.StatusOK, MessageResponse{Message: "Ride deleted."})
}

// UpdateRide handles PUT /ride/update/{id}
func (h *RideHandler) UpdateRide(w http.ResponseWriter, r *http.Request) {
	rideID := chi.URLParam(r, "id")
	var patch models.RidePatch
	if err := decodeBody(r, &patch); err != nil {
		respondError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	ride, err := h.rideService.UpdateRide(r.Context(), rideID, middleware.GetUserID(r.Context()), patch)
	if err != nil {
		respondServiceError(w, r, "updateRide", rideID, err)
		return
	}
	respondJSON(w, http.StatusOK, RideResponse{Message: "Ride updated.", Ride: ride})
}

// FindRide handles GET /ride/find/{id}
func (h *RideHandler) FindRide(w http.ResponseWriter, r *http.Request) {
	rideID := chi.URLParam(r, "id")
	ride, err := h.rideService.FindRide(r.Context(), rideID, middleware.GetUserID(r.Context()))
	if err != nil {
		respondServiceError(w, r, "findRide", rideID, err)
		return
	}
	respondJSON(w, http.StatusOK, RideResponse{Message: "Fetched ride.", Ride: ride})
}

// SearchRides handles GET /ride/search
func (h *RideHandler) SearchRides(w http.ResponseWriter, r *http.Request) {
	filter, msg := parseRideFilter(r.URL.Query())
	if msg != "" {
		respondError(w, msg, http.StatusBadRequest)
		return
	}

	rides, err := h.rideService.SearchRides(r.Context(), filter)
	if err != nil {
		respondServiceError(w, r, "searchRides", "", err)
		return
	}
	respondJSON(w, http.StatusOK, RidesResponse{Message: "Fetched rides.", Rides: rides})
}

// parseRideFilter reads the search query. It returns a client-facing message
// for the first malformed parameter.
func parseRideFilter(q url.Values) (models.RideFilter, string) {
	filter := models.RideFilter{Order: models.DefaultOrdering}

	places := []struct {
		name string
		dst  *models.Optional[models.Place]
	}{
		{"fromPlace", &filter.FromPlace},
		{"toPlace", &filter.ToPlace},
	}
	for _, p := range places {
		if v := q.Get(p.name); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || !models.Place(n).Valid() {
				return filter, p.name + " must be one of the listed locations"
			}
			*p.dst = models.Some(models.Place(n))
		}
	}

	if v := q.Get("startTime"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return filter, "startTime must be an RFC 3339 timestamp"
		}
		filter.StartTime = t
	}
	if v := q.Get("endTime"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return filter, "endTime must be an RFC 3339 timestamp"
		}
		filter.EndTime = models.Some(t)
	}

	if v := q.Get("availableSeats"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return filter, "availableSeats must be an integer"
		}
		filter.AvailableSeats = models.Some(n)
	}

	startAt := 1
	if v := q.Get("startAtRide"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return filter, "startAtRide must be a positive integer"
		}
		startAt = n
	}
	if v := q.Get("endAtRide"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return filter, "endAtRide must be a positive integer"
		}
		if n < startAt {
			return filter, "endAtRide must not be less than startAtRide"
		}
		filter.Offset = startAt - 1
		filter.Limit = n - startAt + 1
	}

	order, err := models.ParseOrdering(q.Get("orderBy"))
	if err != nil {
		return filter, "orderBy must be one of createdAt, timeRangeStart, seats, optionally prefixed with -"
	}
	filter.Order = order

	return filter, ""
}
