package chat

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/iyunix/go-chatkeep/internal/domain"
	"github.com/iyunix/go-chatkeep/internal/services/responder"
	"github.com/iyunix/go-chatkeep/internal/storage"
)

// SendMessage stores the user's turn (uploading its image first, if any) and then
// stores the assistant reply produced by Exchange.
func (m *Manager) SendMessage(ctx context.Context, userID, chatID uint, text string, image *ImageUpload) (*SendResult, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, NewValidationError("send_message", "message is required")
	}
	if image != nil {
		if err := m.validateImage(image); err != nil {
			return nil, err
		}
	}

	// Ownership is checked before anything is uploaded.
	if _, err := m.ownedChat(ctx, "send_message", userID, chatID); err != nil {
		return nil, err
	}

	var info *ImageInfo
	if image != nil {
		uploaded, err := m.uploadImage(ctx, chatID, image)
		if err != nil {
			return nil, err
		}
		info = uploaded
	}

	imageURL := ""
	if info != nil {
		imageURL = info.URL
	}
	userMsg, err := m.AppendMessage(ctx, userID, chatID, domain.RoleUser, text, imageURL)
	if err != nil {
		if info != nil {
			// Nothing references the blob yet, so remove it.
			if delErr := m.blobs.Delete(context.WithoutCancel(ctx), []string{info.Filename}); delErr != nil {
				m.logger.Warn("failed to remove unreferenced upload", "chat_id", chatID, "key", info.Filename, "error", delErr)
			}
		}
		return nil, err
	}

	reply, err := m.Exchange(ctx, ExchangeRequest{
		UserID:     userID,
		ChatID:     chatID,
		UserText:   text,
		ImageURL:   imageURL,
		InFlightID: userMsg.ID,
	})
	if err != nil {
		return nil, err
	}

	return &SendResult{
		UserMessage: userMsg,
		BotReply:    reply,
		ChatID:      chatID,
		Image:       info,
	}, nil
}

// Exchange asks the responder for a reply to one user turn and stores it as an assistant message.
// Responder failures are stored as a fixed fallback text instead of being returned.
func (m *Manager) Exchange(ctx context.Context, req ExchangeRequest) (*domain.Message, error) {
	recent, err := m.messageRepo.FindRecent(ctx, req.ChatID, m.config.MessageContextLimit+1)
	if err != nil {
		return nil, NewStoreError("exchange", req.ChatID, err)
	}
	conversation := BuildContext(recent, m.config.MessageContextLimit, req.InFlightID)

	userMessage := req.UserText
	if req.ImageURL != "" {
		userMessage = imagePrompt(req.UserText, req.ImageURL)
	}
	payload := responder.NewPayload(userMessage, conversation, req.ChatID, req.UserID, m.now())

	reply := m.respond(ctx, payload)
	if len(reply) > domain.MaxContentLength {
		m.logger.Warn("reply too long, truncating", "chat_id", req.ChatID, "bytes", len(reply))
		reply = truncateUTF8(reply, domain.MaxContentLength)
	}

	// The reply is stored even if the caller has gone away so the transcript keeps both turns.
	stored, err := m.AppendMessage(context.WithoutCancel(ctx), req.UserID, req.ChatID, domain.RoleAssistant, reply, "")
	if err != nil {
		return nil, err
	}
	return stored, nil
}

func (m *Manager) respond(ctx context.Context, payload responder.Payload) string {
	rctx, cancel := context.WithTimeout(ctx, m.config.ResponderTimeout)
	defer cancel()

	reply, err := m.responder.Respond(rctx, payload)
	if err == nil && strings.TrimSpace(reply) != "" {
		return reply
	}

	errType := ErrTypeResponderError
	if responder.IsTimeout(err) {
		errType = ErrTypeResponderTimeout
	}
	cause := &ChatError{Type: errType, Operation: "exchange", Message: "responder failed", ChatID: payload.ChatID, UserID: payload.UserID, Cause: err}
	m.logger.Error("responder failed, storing fallback reply", "chat_id", payload.ChatID, "error", cause)

	if err == nil {
		return responder.FallbackMessage(responder.NewDecodeError("exchange", "empty reply", nil))
	}
	return responder.FallbackMessage(err)
}

// truncateUTF8 cuts s to at most n bytes without splitting a rune.
func truncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func (m *Manager) validateImage(image *ImageUpload) error {
	if image.Filename == "" {
		return NewValidationError("send_message", "image filename is required")
	}
	if !storage.AllowedImageExtension(image.Filename) {
		return NewValidationError("send_message", "image type not allowed; use png, jpg, jpeg, gif or webp")
	}
	if len(image.Data) == 0 {
		return NewValidationError("send_message", "image is empty")
	}
	if int64(len(image.Data)) > m.config.MaxUploadBytes {
		return NewValidationError("send_message", "image is too large")
	}
	return nil
}

func (m *Manager) uploadImage(ctx context.Context, chatID uint, image *ImageUpload) (*ImageInfo, error) {
	key, err := storage.NewImageKey(image.Filename)
	if err != nil {
		return nil, NewValidationError("send_message", err.Error())
	}

	contentType := image.ContentType
	if contentType == "" {
		contentType = storage.ContentTypeFor(image.Filename)
	}

	if err := m.blobs.Upload(ctx, key, image.Data, contentType); err != nil {
		m.logger.Error("image upload failed", "chat_id", chatID, "error", err)
		return nil, NewStoreError("send_message", chatID, err)
	}

	return &ImageInfo{
		Filename:    key,
		URL:         m.blobs.PublicURL(key),
		ContentType: contentType,
	}, nil
}
