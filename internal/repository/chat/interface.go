package chat

import (
	"context"
	"time"

	"github.com/iyunix/go-chatkeep/internal/domain"
)

// ChatRepository handles chat data operations.
type ChatRepository interface {
	Create(ctx context.Context, chat *domain.Chat) (*domain.Chat, error)
	FindByIDAndUserID(ctx context.Context, chatID, userID uint) (*domain.Chat, error)
	FindByUserID(ctx context.Context, userID uint) ([]domain.Chat, error)
	FindRecent(ctx context.Context, userID uint, limit int) ([]domain.Chat, error)
	TouchUpdatedAt(ctx context.Context, chatID uint, at time.Time) error
	Delete(ctx context.Context, chatID uint) error
	Ping(ctx context.Context) error
}
