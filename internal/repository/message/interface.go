// File: internal/repository/message/interface.go
package message

import (
	"context"

	"github.com/iyunix/go-chatkeep/internal/domain"
)

type MessageRepository interface {
	Create(ctx context.Context, message *domain.Message) (*domain.Message, error)
	FindByChatID(ctx context.Context, chatID uint) ([]domain.Message, error)
	FindOldest(ctx context.Context, chatID uint, limit int) ([]domain.Message, error)
	FindRecent(ctx context.Context, chatID uint, limit int) ([]domain.Message, error)
	FindWithImages(ctx context.Context, chatID uint) ([]domain.Message, error)
	CountByChatID(ctx context.Context, chatID uint) (int64, error)
	DeleteByChatID(ctx context.Context, chatID uint) (int64, error)
	DeleteByIDs(ctx context.Context, chatID uint, messageIDs []uint) (int64, error)
}
