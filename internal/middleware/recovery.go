// In: internal/middleware/recovery.go

package middleware

import (
	"net/http"
	"runtime/debug"
)

// NewRecoveryMiddleware turns a handler panic into a 500 and logs the stack.
func NewRecoveryMiddleware(logger Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					logger.Error("panic recovered",
						"error", err,
						"path", r.URL.Path,
						"stack", string(debug.Stack()))

					w.Header().Set("Connection", "close")
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					w.Write([]byte(`{"error":"Something went wrong on our end."}`))
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}
