// File: internal/handlers/chat_handler.go
package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/iyunix/go-chatkeep/internal/services/chat"
)

// multipartOverhead leaves room for form fields next to the image.
const multipartOverhead = 1 << 20

type ChatHandler struct {
	chats          chat.Service
	maxUploadBytes int64
	logger         Logger
}

func NewChatHandler(chats chat.Service, maxUploadBytes int64, logger Logger) *ChatHandler {
	return &ChatHandler{
		chats:          chats,
		maxUploadBytes: maxUploadBytes,
		logger:         logger,
	}
}

// ListChats sweeps the user's data and returns the history list.
func (h *ChatHandler) ListChats(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFrom(w, r)
	if !ok {
		return
	}

	h.sweep(r, userID)

	summaries, err := h.chats.ListHistories(r.Context(), userID)
	if err != nil {
		writeChatError(w, h.logger, err)
		return
	}

	var activeID uint
	if len(summaries) > 0 {
		activeID = summaries[0].ID
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"chats":          summaries,
		"active_chat_id": activeID,
	})
}

// ActiveChat returns the most recent chat with its messages, creating one for new users.
func (h *ChatHandler) ActiveChat(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFrom(w, r)
	if !ok {
		return
	}

	h.sweep(r, userID)

	active, err := h.chats.GetOrCreateActiveChat(r.Context(), userID)
	if err != nil {
		writeChatError(w, h.logger, err)
		return
	}
	h.writeLoaded(w, r, userID, active.ID)
}

func (h *ChatHandler) NewChat(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFrom(w, r)
	if !ok {
		return
	}

	created, err := h.chats.NewChat(r.Context(), userID)
	if err != nil {
		writeChatError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *ChatHandler) GetChat(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFrom(w, r)
	if !ok {
		return
	}
	chatID, ok := chatIDFrom(w, r)
	if !ok {
		return
	}
	h.writeLoaded(w, r, userID, chatID)
}

func (h *ChatHandler) DeleteChat(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFrom(w, r)
	if !ok {
		return
	}
	chatID, ok := chatIDFrom(w, r)
	if !ok {
		return
	}

	if err := h.chats.DeleteChat(r.Context(), userID, chatID); err != nil {
		writeChatError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "chat_id": chatID})
}

// SendMessage accepts a form with a "message" field and an optional "image" file.
func (h *ChatHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFrom(w, r)
	if !ok {
		return
	}
	chatID, ok := chatIDFrom(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes+multipartOverhead)
	image, err := h.readImage(r)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, "Upload too large", http.StatusRequestEntityTooLarge)
			return
		}
		writeError(w, "Invalid form data", http.StatusBadRequest)
		return
	}

	res, err := h.chats.SendMessage(r.Context(), userID, chatID, r.FormValue("message"), image)
	if err != nil {
		writeChatError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"user_message": viewOf(res.UserMessage),
		"bot_reply":    viewOf(res.BotReply),
		"chat_id":      res.ChatID,
		"has_image":    res.Image != nil,
		"image_info":   res.Image,
	})
}

func (h *ChatHandler) readImage(r *http.Request) (*chat.ImageUpload, error) {
	if err := r.ParseMultipartForm(h.maxUploadBytes + multipartOverhead); err != nil {
		if errors.Is(err, http.ErrNotMultipart) {
			return nil, r.ParseForm()
		}
		return nil, err
	}

	file, header, err := r.FormFile("image")
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer file.Close()

	if header.Filename == "" {
		return nil, nil
	}
	data, err := io.ReadAll(file)
	if err != nil {
		return nil, err
	}
	return &chat.ImageUpload{
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Data:        data,
	}, nil
}

func (h *ChatHandler) writeLoaded(w http.ResponseWriter, r *http.Request, userID, chatID uint) {
	loaded, err := h.chats.LoadChat(r.Context(), userID, chatID)
	if err != nil {
		writeChatError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"chat":     loaded.Chat,
		"messages": viewsOf(loaded.Messages),
	})
}

// sweep failures never block reads; the next access retries.
func (h *ChatHandler) sweep(r *http.Request, userID uint) {
	if _, err := h.chats.RunRetentionSweep(r.Context(), userID); err != nil {
		h.logger.Warn("retention sweep failed", "user_id", userID, "error", err)
	}
}
