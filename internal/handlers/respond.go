package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/iyunix/go-chatkeep/internal/middleware"
	"github.com/iyunix/go-chatkeep/internal/services/chat"
)

// Logger defines the logging interface used by handlers.
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
	Debug(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
}

// writeJSON is a helper for sending JSON responses.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError is a helper for sending JSON error responses.
func writeError(w http.ResponseWriter, message string, status int) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeChatError maps the chat error taxonomy onto status codes.
// Store failures get a generic message; the cause is only logged.
func writeChatError(w http.ResponseWriter, logger Logger, err error) {
	switch {
	case chat.IsNotFound(err):
		writeError(w, "Chat not found", http.StatusNotFound)
	case chat.IsValidation(err):
		var ce *chat.ChatError
		msg := "Invalid request"
		if errors.As(err, &ce) && ce.Message != "" {
			msg = ce.Message
		}
		writeError(w, msg, http.StatusBadRequest)
	case chat.IsStoreUnavailable(err):
		logger.Error("chat store unavailable", "error", err)
		writeError(w, "Service temporarily unavailable, please try again", http.StatusServiceUnavailable)
	default:
		logger.Error("chat operation failed", "error", err)
		writeError(w, "Something went wrong, please try again", http.StatusInternalServerError)
	}
}

func userIDFrom(w http.ResponseWriter, r *http.Request) (uint, bool) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, "Unauthorized", http.StatusUnauthorized)
	}
	return userID, ok
}

func chatIDFrom(w http.ResponseWriter, r *http.Request) (uint, bool) {
	chatID, err := strconv.ParseUint(mux.Vars(r)["id"], 10, 32)
	if err != nil || chatID == 0 {
		writeError(w, "Invalid chat ID", http.StatusBadRequest)
		return 0, false
	}
	return uint(chatID), true
}
