package handlers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"nexosql-backend/pkg/apitypes"
	"nexosql-backend/pkg/httputil"
)

// UserService defines the interface expected from the user service.
type UserService interface {
	Register(ctx context.Context, req apitypes.RegisterRequest) (*apitypes.AuthResponse, error)
	Login(ctx context.Context, req apitypes.LoginRequest) (*apitypes.AuthResponse, error)
	Refresh(ctx context.Context, refreshToken string) (*apitypes.AuthResponse, error)
	Profile(ctx context.Context, userID uuid.UUID) (*apitypes.User, error)
	UpdateProfile(ctx context.Context, userID uuid.UUID, req apitypes.UpdateProfileRequest) (*apitypes.User, error)
	Delete(ctx context.Context, userID uuid.UUID) error
}

type UserHandler struct {
	users UserService
}

func NewUserHandler(users UserService) *UserHandler {
	return &UserHandler{users: users}
}

// HandleRegister handles POST /api/users.
func (h *UserHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req apitypes.RegisterRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Email == "" || req.Password == "" {
		httputil.RespondError(w, http.StatusBadRequest, "Email and password are required")
		return
	}
	resp, err := h.users.Register(r.Context(), req)
	if err != nil {
		respondServiceError(w, r, err, "Registration failed due to an internal error")
		return
	}
	httputil.RespondJSON(w, http.StatusCreated, resp)
}

// HandleLogin handles POST /api/auth/login.
func (h *UserHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req apitypes.LoginRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Email == "" || req.Password == "" {
		httputil.RespondError(w, http.StatusBadRequest, "Email and password are required")
		return
	}
	resp, err := h.users.Login(r.Context(), req)
	if err != nil {
		respondServiceError(w, r, err, "Login failed due to an internal error")
		return
	}
	httputil.RespondJSON(w, http.StatusOK, resp)
}

// HandleRefresh handles POST /api/auth/refresh.
func (h *UserHandler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	var req apitypes.RefreshRequest
	if !decode(w, r, &req) {
		return
	}
	if req.RefreshToken == "" {
		httputil.RespondError(w, http.StatusBadRequest, "refreshToken is required")
		return
	}
	resp, err := h.users.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		respondServiceError(w, r, err, "Refresh failed due to an internal error")
		return
	}
	httputil.RespondJSON(w, http.StatusOK, resp)
}

// HandleGetProfile handles GET /api/users/profile.
func (h *UserHandler) HandleGetProfile(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	user, err := h.users.Profile(r.Context(), userID)
	if err != nil {
		respondServiceError(w, r, err, "Failed to load profile")
		return
	}
	httputil.RespondJSON(w, http.StatusOK, user)
}

// HandleUpdateProfile handles PUT /api/users/profile.
func (h *UserHandler) HandleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req apitypes.UpdateProfileRequest
	if !decode(w, r, &req) {
		return
	}
	user, err := h.users.UpdateProfile(r.Context(), userID, req)
	if err != nil {
		respondServiceError(w, r, err, "Failed to update profile")
		return
	}
	httputil.RespondJSON(w, http.StatusOK, user)
}

// HandleDeleteAccount handles DELETE /api/users.
func (h *UserHandler) HandleDeleteAccount(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	if err := h.users.Delete(r.Context(), userID); err != nil {
		respondServiceError(w, r, err, "Failed to delete account")
		return
	}
	httputil.RespondJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}
