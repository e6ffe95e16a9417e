// File: internal/repository/chat/chat_repository.go
package chat

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/iyunix/go-chatkeep/internal/domain"
	"gorm.io/gorm"
)

var ErrChatNotFound = errors.New("chat not found")

// ErrStore marks database failures; callers treat it as the store being unavailable.
var ErrStore = errors.New("chat store error")

type gormChatRepository struct {
	db *gorm.DB
}

func NewChatRepository(db *gorm.DB) ChatRepository {
	return &gormChatRepository{db: db}
}

// Create inserts a chat, keeping caller-supplied timestamps.
func (r *gormChatRepository) Create(ctx context.Context, chat *domain.Chat) (*domain.Chat, error) {
	if err := r.validateChatInput(chat); err != nil {
		log.Printf("[ChatRepository] Validation failed: %v", err)
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	if err := r.db.WithContext(ctx).Create(chat).Error; err != nil {
		log.Printf("[ChatRepository] Database error during chat creation for user ID %d: %v", chat.UserID, err)
		return nil, fmt.Errorf("%w: creating chat: %v", ErrStore, err)
	}

	log.Printf("[ChatRepository] Chat created successfully with ID: %d for user: %d", chat.ID, chat.UserID)
	return chat, nil
}

// FindByIDAndUserID returns ErrChatNotFound both for missing chats and for chats owned by someone else.
func (r *gormChatRepository) FindByIDAndUserID(ctx context.Context, chatID, userID uint) (*domain.Chat, error) {
	if chatID == 0 || userID == 0 {
		return nil, ErrChatNotFound
	}

	var chat domain.Chat
	err := r.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", chatID, userID).
		First(&chat).Error
	return r.handleFindError(err, &chat, "FindByIDAndUserID")
}

// FindByUserID loads every chat of a user, most recently updated first.
func (r *gormChatRepository) FindByUserID(ctx context.Context, userID uint) ([]domain.Chat, error) {
	if userID == 0 {
		return nil, errors.New("invalid user ID")
	}

	var chats []domain.Chat
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("updated_at DESC, id DESC").
		Find(&chats).Error

	if err != nil {
		log.Printf("[ChatRepository] Database error finding chats for user ID %d: %v", userID, err)
		return nil, fmt.Errorf("%w: fetching chats: %v", ErrStore, err)
	}

	return chats, nil
}

// FindRecent loads at most limit chats, most recently updated first.
func (r *gormChatRepository) FindRecent(ctx context.Context, userID uint, limit int) ([]domain.Chat, error) {
	if userID == 0 {
		return nil, errors.New("invalid user ID")
	}
	if limit <= 0 {
		return []domain.Chat{}, nil
	}

	var chats []domain.Chat
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("updated_at DESC, id DESC").
		Limit(limit).
		Find(&chats).Error

	if err != nil {
		log.Printf("[ChatRepository] Database error finding recent chats for user ID %d: %v", userID, err)
		return nil, fmt.Errorf("%w: finding recent chats: %v", ErrStore, err)
	}

	return chats, nil
}

// TouchUpdatedAt sets updated_at to the given instant.
func (r *gormChatRepository) TouchUpdatedAt(ctx context.Context, chatID uint, at time.Time) error {
	if chatID == 0 {
		return errors.New("invalid chat ID")
	}

	result := r.db.WithContext(ctx).
		Model(&domain.Chat{}).
		Where("id = ?", chatID).
		Update("updated_at", at)

	if result.Error != nil {
		log.Printf("[ChatRepository] Database error updating timestamp for chat ID %d: %v", chatID, result.Error)
		return fmt.Errorf("%w: updating chat timestamp: %v", ErrStore, result.Error)
	}

	if result.RowsAffected == 0 {
		return ErrChatNotFound
	}

	return nil
}

// Delete removes the chat row only. Callers remove messages and blobs first.
// Deleting an already-deleted chat is not an error.
func (r *gormChatRepository) Delete(ctx context.Context, chatID uint) error {
	if chatID == 0 {
		return errors.New("invalid chat ID")
	}

	result := r.db.WithContext(ctx).
		Where("id = ?", chatID).
		Delete(&domain.Chat{})

	if result.Error != nil {
		log.Printf("[ChatRepository] Database error deleting chat ID %d: %v", chatID, result.Error)
		return fmt.Errorf("%w: deleting chat: %v", ErrStore, result.Error)
	}

	log.Printf("[ChatRepository] Chat deleted: ID %d (rows affected: %d)", chatID, result.RowsAffected)
	return nil
}

// Ping checks the underlying connection.
func (r *gormChatRepository) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStore, err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrStore, err)
	}
	return nil
}

// ===== VALIDATION HELPERS =====

func (r *gormChatRepository) validateChatInput(chat *domain.Chat) error {
	if chat == nil {
		return errors.New("chat cannot be nil")
	}

	if chat.UserID == 0 {
		return errors.New("user ID is required")
	}

	if err := r.validateChatTitle(chat.Title); err != nil {
		return fmt.Errorf("title validation: %w", err)
	}

	return nil
}

func (r *gormChatRepository) validateChatTitle(title string) error {
	if len(title) > 200 {
		return errors.New("title must be 200 characters or less")
	}

	// Basic XSS protection
	if strings.Contains(title, "<script") || strings.Contains(title, "javascript:") {
		return errors.New("invalid characters detected in title")
	}

	return nil
}

// handleFindError - Secure error handling without data leakage
func (r *gormChatRepository) handleFindError(err error, chat *domain.Chat, operation string) (*domain.Chat, error) {
	if err == nil {
		return chat, nil
	}

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrChatNotFound
	}

	log.Printf("[ChatRepository] %s database error: %v", operation, err)
	return nil, fmt.Errorf("%w: database query failed", ErrStore)
}
