package handlers

import (
	"net/http"

	"together-backend/internal/middleware"
	"together-backend/internal/services"

	"github.com/rs/zerolog/log"
)

// UserHandler handles registration, login and profile requests
type UserHandler struct {
	userService   *services.UserService
	avatarService *services.AvatarService
}

// NewUserHandler creates a new user handler. avatarService may be nil when
// object storage is not configured.
func NewUserHandler(userService *services.UserService, avatarService *services.AvatarService) *UserHandler {
	return &UserHandler{
		userService:   userService,
		avatarService: avatarService,
	}
}

// LoginRequest represents the request body for logging in
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// UpdateProfileRequest represents the request body for a profile update
type UpdateProfileRequest struct {
	Name string `json:"name"`
}

// ChangePasswordRequest represents the request body for a password change
type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

// EmailNotificationsRequest toggles email notifications
type EmailNotificationsRequest struct {
	Enabled *bool `json:"enabled"`
}

// PushTokenRequest registers an APNs device token
type PushTokenRequest struct {
	Token string `json:"token"`
}

// AvatarUploadRequest asks for a presigned avatar upload URL
type AvatarUploadRequest struct {
	ContentType string `json:"content_type"`
}

// Register handles POST /api/auth/register
func (h *UserHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req services.RegisterRequest
	if !decodeBody(w, r, &req) {
		return
	}

	result, err := h.userService.Register(r.Context(), req)
	if err != nil {
		respondServiceError(w, err, "", "register user")
		return
	}

	log.Info().Str("user_id", result.User.ID).Msg("User registered")
	respondJSON(w, http.StatusCreated, result)
}

// Login handles POST /api/auth/login
func (h *UserHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !decodeBody(w, r, &req) {
		return
	}

	result, err := h.userService.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		respondServiceError(w, err, "", "log in")
		return
	}
	respondJSON(w, http.StatusOK, result)
}

// GetProfile handles GET /api/auth/profile
func (h *UserHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	user, err := h.userService.GetProfile(r.Context(), userID)
	if err != nil {
		respondServiceError(w, err, userID, "get profile")
		return
	}
	respondJSON(w, http.StatusOK, user)
}

// UpdateProfile handles PUT /api/auth/profile
func (h *UserHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var req UpdateProfileRequest
	if !decodeBody(w, r, &req) {
		return
	}

	user, err := h.userService.UpdateProfile(r.Context(), userID, req.Name)
	if err != nil {
		respondServiceError(w, err, userID, "update profile")
		return
	}
	respondJSON(w, http.StatusOK, user)
}

// ChangePassword handles PUT /api/auth/password
func (h *UserHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var req ChangePasswordRequest
	if !decodeBody(w, r, &req) {
		return
	}

	if err := h.userService.ChangePassword(r.Context(), userID, req.CurrentPassword, req.NewPassword); err != nil {
		respondServiceError(w, err, userID, "change password")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "password updated"})
}

// SetEmailNotifications handles PUT /api/auth/notifications/email
func (h *UserHandler) SetEmailNotifications(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var req EmailNotificationsRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Enabled == nil {
		respondError(w, "enabled is required", http.StatusBadRequest)
		return
	}

	user, err := h.userService.SetEmailNotifications(r.Context(), userID, *req.Enabled)
	if err != nil {
		respondServiceError(w, err, userID, "update notification settings")
		return
	}
	respondJSON(w, http.StatusOK, user)
}

// SetPushToken handles PUT /api/auth/notifications/push. An empty token
// unregisters the device.
func (h *UserHandler) SetPushToken(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var req PushTokenRequest
	if !decodeBody(w, r, &req) {
		return
	}

	if err := h.userService.SetPushToken(r.Context(), userID, req.Token); err != nil {
		respondServiceError(w, err, userID, "update push token")
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"registered": req.Token != ""})
}

// RequestAvatarUpload handles POST /api/auth/profile/avatar
func (h *UserHandler) RequestAvatarUpload(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	if h.avatarService == nil {
		respondError(w, "Avatar uploads are not configured", http.StatusServiceUnavailable)
		return
	}

	var req AvatarUploadRequest
	if !decodeBody(w, r, &req) {
		return
	}

	upload, err := h.avatarService.RequestUpload(r.Context(), userID, req.ContentType)
	if err != nil {
		respondServiceError(w, err, userID, "prepare avatar upload")
		return
	}

	respondJSON(w, http.StatusOK, upload)
}
