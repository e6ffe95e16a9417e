// File: internal/repository/message/message_repository.go
package message

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/iyunix/go-chatkeep/internal/domain"
	"gorm.io/gorm"
)

// ErrStore marks database failures; callers treat it as the store being unavailable.
var ErrStore = errors.New("message store error")

// ErrInvalidMessage marks messages rejected before they reach the database.
var ErrInvalidMessage = errors.New("invalid message")

type gormMessageRepository struct {
	db *gorm.DB
}

func NewMessageRepository(db *gorm.DB) MessageRepository {
	return &gormMessageRepository{db: db}
}

// Create inserts a message, keeping a caller-supplied created_at.
func (r *gormMessageRepository) Create(ctx context.Context, message *domain.Message) (*domain.Message, error) {
	if err := r.validateMessageInput(message); err != nil {
		log.Printf("[MessageRepository] Validation failed: %v", err)
		return nil, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}

	if err := r.db.WithContext(ctx).Create(message).Error; err != nil {
		// Content is user data; only the chat ID is logged.
		log.Printf("[MessageRepository] Database error during message creation for chat ID %d: %v", message.ChatID, err)
		return nil, fmt.Errorf("%w: creating message: %v", ErrStore, err)
	}

	log.Printf("[MessageRepository] Message created with ID: %d for chat: %d", message.ID, message.ChatID)
	return message, nil
}

// FindByChatID loads the full history of a chat in chronological order.
func (r *gormMessageRepository) FindByChatID(ctx context.Context, chatID uint) ([]domain.Message, error) {
	if chatID == 0 {
		return nil, errors.New("invalid chat ID")
	}

	var messages []domain.Message
	err := r.db.WithContext(ctx).
		Where("chat_id = ?", chatID).
		Order("created_at ASC, id ASC").
		Find(&messages).Error

	if err != nil {
		log.Printf("[MessageRepository] Database error finding messages for chat ID %d: %v", chatID, err)
		return nil, fmt.Errorf("%w: fetching messages: %v", ErrStore, err)
	}

	return messages, nil
}

// FindOldest loads the first limit messages of a chat, oldest first.
func (r *gormMessageRepository) FindOldest(ctx context.Context, chatID uint, limit int) ([]domain.Message, error) {
	return r.findOrdered(ctx, chatID, limit, "created_at ASC, id ASC", "FindOldest")
}

// FindRecent loads the last limit messages of a chat, newest first.
func (r *gormMessageRepository) FindRecent(ctx context.Context, chatID uint, limit int) ([]domain.Message, error) {
	return r.findOrdered(ctx, chatID, limit, "created_at DESC, id DESC", "FindRecent")
}

func (r *gormMessageRepository) findOrdered(ctx context.Context, chatID uint, limit int, order, operation string) ([]domain.Message, error) {
	if chatID == 0 {
		return nil, errors.New("invalid chat ID")
	}
	if limit <= 0 {
		return []domain.Message{}, nil
	}

	var messages []domain.Message
	err := r.db.WithContext(ctx).
		Where("chat_id = ?", chatID).
		Order(order).
		Limit(limit).
		Find(&messages).Error

	if err != nil {
		log.Printf("[MessageRepository] %s database error for chat ID %d: %v", operation, chatID, err)
		return nil, fmt.Errorf("%w: %s: %v", ErrStore, operation, err)
	}

	return messages, nil
}

// FindWithImages loads the image-bearing messages of a chat.
func (r *gormMessageRepository) FindWithImages(ctx context.Context, chatID uint) ([]domain.Message, error) {
	if chatID == 0 {
		return nil, errors.New("invalid chat ID")
	}

	var messages []domain.Message
	err := r.db.WithContext(ctx).
		Where("chat_id = ? AND has_image = ?", chatID, true).
		Order("created_at ASC, id ASC").
		Find(&messages).Error

	if err != nil {
		log.Printf("[MessageRepository] Database error finding image messages for chat ID %d: %v", chatID, err)
		return nil, fmt.Errorf("%w: fetching image messages: %v", ErrStore, err)
	}

	return messages, nil
}

func (r *gormMessageRepository) CountByChatID(ctx context.Context, chatID uint) (int64, error) {
	if chatID == 0 {
		return 0, errors.New("invalid chat ID")
	}

	var count int64
	err := r.db.WithContext(ctx).Model(&domain.Message{}).Where("chat_id = ?", chatID).Count(&count).Error
	if err != nil {
		log.Printf("[MessageRepository] Database error counting messages for chat ID %d: %v", chatID, err)
		return 0, fmt.Errorf("%w: counting messages: %v", ErrStore, err)
	}

	return count, nil
}

// DeleteByChatID removes every message of a chat.
func (r *gormMessageRepository) DeleteByChatID(ctx context.Context, chatID uint) (int64, error) {
	if chatID == 0 {
		return 0, errors.New("invalid chat ID")
	}

	result := r.db.WithContext(ctx).
		Where("chat_id = ?", chatID).
		Delete(&domain.Message{})

	if result.Error != nil {
		log.Printf("[MessageRepository] Database error deleting messages for chat ID %d: %v", chatID, result.Error)
		return 0, fmt.Errorf("%w: deleting messages: %v", ErrStore, result.Error)
	}

	log.Printf("[MessageRepository] Deleted %d messages for chat %d", result.RowsAffected, chatID)
	return result.RowsAffected, nil
}

// DeleteByIDs removes the listed messages, scoped to one chat.
func (r *gormMessageRepository) DeleteByIDs(ctx context.Context, chatID uint, messageIDs []uint) (int64, error) {
	if len(messageIDs) == 0 {
		return 0, nil
	}

	if chatID == 0 {
		return 0, errors.New("invalid chat ID")
	}

	for _, messageID := range messageIDs {
		if messageID == 0 {
			return 0, errors.New("invalid message ID in batch")
		}
	}

	result := r.db.WithContext(ctx).
		Where("id IN ? AND chat_id = ?", messageIDs, chatID).
		Delete(&domain.Message{})

	if result.Error != nil {
		log.Printf("[MessageRepository] Database error in bulk delete for chat ID %d: %v", chatID, result.Error)
		return 0, fmt.Errorf("%w: bulk message deletion: %v", ErrStore, result.Error)
	}

	log.Printf("[MessageRepository] Bulk deleted %d messages for chat %d", result.RowsAffected, chatID)
	return result.RowsAffected, nil
}

// ===== VALIDATION HELPERS =====

func (r *gormMessageRepository) validateMessageInput(message *domain.Message) error {
	if message == nil {
		return errors.New("message cannot be nil")
	}

	if message.ChatID == 0 {
		return errors.New("chat ID is required")
	}

	if !domain.IsValidRole(message.Role) {
		return fmt.Errorf("invalid role %q", message.Role)
	}

	if len(message.Content) > domain.MaxContentLength {
		return fmt.Errorf("content must be %d bytes or less", domain.MaxContentLength)
	}

	if message.HasImage != (message.ImageURL != "") {
		return errors.New("has_image must be set exactly when image_url is present")
	}

	return nil
}
