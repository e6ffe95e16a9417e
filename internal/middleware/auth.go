package middleware

import (
	"net/http"
	"time"
)

// TokenValidator resolves a session token to a user ID.
type TokenValidator interface {
	ValidateJWTToken(tokenString string) (uint, error)
}

// NewJWTMiddleware creates middleware to validate JWT from cookie.
// Requests without a valid token get a 401 JSON response.
func NewJWTMiddleware(validator TokenValidator, logger Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(AuthCookie)
			if err != nil {
				logger.Debug("missing auth cookie", "path", r.URL.Path)
				unauthorized(w)
				return
			}

			userID, err := validator.ValidateJWTToken(cookie.Value)
			if err != nil {
				logger.Warn("invalid auth token", "path", r.URL.Path, "error", err)
				ClearAuthCookie(w)
				unauthorized(w)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
		})
	}
}

// ClearAuthCookie expires the session cookie.
func ClearAuthCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     AuthCookie,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
	})
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	w.Write([]byte(`{"error":"authentication required"}`))
}
