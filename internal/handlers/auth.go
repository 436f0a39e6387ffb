package handlers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"flashcard-backend/internal/middleware"
	"flashcard-backend/internal/models"
)

type authenticator interface {
	SignUp(ctx context.Context, req models.SignUpRequest) (*models.AuthTokens, error)
	SignInWithPassword(ctx context.Context, req models.LoginRequest) (*models.AuthTokens, error)
	SignInWithGoogle(ctx context.Context, idToken string) (*models.AuthTokens, error)
	Refresh(ctx context.Context, refreshToken string) (*models.AuthTokens, error)
	SignOut(ctx context.Context, userID uuid.UUID, refreshToken string) error
}

type AuthHandler struct {
	authService authenticator
}

func NewAuthHandler(authService authenticator) *AuthHandler {
	return &AuthHandler{authService: authService}
}

func (h *AuthHandler) SignUp(w http.ResponseWriter, r *http.Request) {
	var req models.SignUpRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	tokens, err := h.authService.SignUp(r.Context(), req)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, tokens)
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req models.LoginRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	tokens, err := h.authService.SignInWithPassword(r.Context(), req)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, tokens)
}

func (h *AuthHandler) GoogleLogin(w http.ResponseWriter, r *http.Request) {
	var req models.GoogleLoginRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	tokens, err := h.authService.SignInWithGoogle(r.Context(), req.IDToken)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, tokens)
}

func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req models.RefreshRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	tokens, err := h.authService.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, tokens)
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	var req models.RefreshRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	userID := middleware.GetUserID(r.Context())
	if err := h.authService.SignOut(r.Context(), userID, req.RefreshToken); err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Logged out successfully"})
}
