package handlers

import (
	"net/http"

	"ride-pool-backend/internal/middleware"
	"ride-pool-backend/internal/models"
	"ride-pool-backend/internal/services"
)

// UserHandler handles user-related HTTP requests
type UserHandler struct {
	userService *services.UserService
}

// NewUserHandler creates a new user handler
func NewUserHandler(userService *services.UserService) *UserHandler {
	return &UserHandler{
		userService: userService,
	}
}

// CreateUserResponse is returned after registration
type CreateUserResponse struct {
	Message string                 `json:"message"`
	User    *models.User           `json:"user"`
	Avatar  *services.AvatarUpload `json:"avatarUpload,omitempty"`
}

// LoginRequest carries the Google ID token the client signed in with
type LoginRequest struct {
	Token       string `json:"token"`
	DeviceToken string `json:"deviceToken"`
}

// LoginResponse carries the issued access token
type LoginResponse struct {
	Message     string `json:"message"`
	AccessToken string `json:"accessToken"`
}

// AvatarResponse carries a fresh profile picture upload URL
type AvatarResponse struct {
	Message string                 `json:"message"`
	Avatar  *services.AvatarUpload `json:"avatarUpload"`
}

// CreateUser handles POST /user/create
func (h *UserHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var in services.RegisterInput
	if err := decodeBody(r, &in); err != nil {
		respondError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	user, upload, err := h.userService.Register(r.Context(), in)
	if err != nil {
		respondServiceError(w, r, "createUser", "", err)
		return
	}

	respondJSON(w, http.StatusCreated, CreateUserResponse{Message: "Created user.", User: user, Avatar: upload})
}

// Login handles POST /user/login
func (h *UserHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	token, err := h.userService.Login(r.Context(), req.Token, req.DeviceToken)
	if err != nil {
		respondServiceError(w, r, "login", "", err)
		return
	}

	respondJSON(w, http.StatusOK, LoginResponse{Message: "Logged in user.", AccessToken: token})
}

// RequestAvatarUpload handles POST /user/avatar
func (h *UserHandler) RequestAvatarUpload(w http.ResponseWriter, r *http.Request) {
	upload, err := h.userService.RequestAvatarUpload(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		respondServiceError(w, r, "requestAvatarUpload", "", err)
		return
	}

	respondJSON(w, http.StatusOK, AvatarResponse{Message: "Upload URL created.", Avatar: upload})
}
