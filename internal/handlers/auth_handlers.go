// File: internal/handlers/auth_handlers.go
package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/iyunix/go-chatkeep/internal/domain"
	"github.com/iyunix/go-chatkeep/internal/middleware"
	"github.com/iyunix/go-chatkeep/internal/services/user_services"
)

// Authenticator is the part of the auth service the handlers call.
type Authenticator interface {
	Register(ctx context.Context, username, password string) (*domain.User, error)
	Login(ctx context.Context, username, password string) (*domain.User, string, error)
	TokenTTL() time.Duration
}

// AuthHandler holds the dependencies for authentication handlers.
type AuthHandler struct {
	auth         Authenticator
	secureCookie bool
	logger       Logger
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(auth Authenticator, secureCookie bool, logger Logger) *AuthHandler {
	return &AuthHandler{auth: auth, secureCookie: secureCookie, logger: logger}
}

// Register handles new user registrations from a form or multipart body.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	username := strings.TrimSpace(r.FormValue("username"))
	password := r.FormValue("password")

	u, err := h.auth.Register(r.Context(), username, password)
	if err != nil {
		switch {
		case errors.Is(err, user_services.ErrInvalidInput):
			writeError(w, strings.TrimPrefix(err.Error(), user_services.ErrInvalidInput.Error()+": "), http.StatusBadRequest)
		case errors.Is(err, user_services.ErrUsernameTaken):
			writeError(w, "Username already taken", http.StatusConflict)
		default:
			h.logger.Error("registration failed", "error", err)
			writeError(w, "Registration failed, please try again", http.StatusInternalServerError)
		}
		return
	}

	writeJSON(w, http.StatusCreated, u)
}

// Login verifies credentials and sets the session cookie.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	username := strings.TrimSpace(r.FormValue("username"))
	password := r.FormValue("password")

	u, token, err := h.auth.Login(r.Context(), username, password)
	if err != nil {
		if errors.Is(err, user_services.ErrInvalidCredentials) {
			writeError(w, "Invalid username or password", http.StatusUnauthorized)
			return
		}
		h.logger.Error("login failed", "error", err)
		writeError(w, "Login failed, please try again", http.StatusInternalServerError)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     middleware.AuthCookie,
		Value:    token,
		Path:     "/",
		Expires:  time.Now().Add(h.auth.TokenTTL()),
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, u)
}

// Logout clears the session cookie.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	middleware.ClearAuthCookie(w)
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}
