package chat

import (
	"context"

	"github.com/iyunix/go-chatkeep/internal/domain"
)

// LifecycleProvider covers chat creation, loading, listing and deletion.
type LifecycleProvider interface {
	NewChat(ctx context.Context, userID uint) (*domain.Chat, error)
	GetOrCreateActiveChat(ctx context.Context, userID uint) (*domain.Chat, error)
	AppendMessage(ctx context.Context, userID, chatID uint, role, content, imageURL string) (*domain.Message, error)
	ListHistories(ctx context.Context, userID uint) ([]domain.ChatSummary, error)
	LoadChat(ctx context.Context, userID, chatID uint) (*LoadedChat, error)
	DeleteChat(ctx context.Context, userID, chatID uint) error
	RunRetentionSweep(ctx context.Context, userID uint) (*SweepReport, error)
}

// ExchangeProvider handles a user turn and its assistant reply.
type ExchangeProvider interface {
	SendMessage(ctx context.Context, userID, chatID uint, text string, image *ImageUpload) (*SendResult, error)
	Exchange(ctx context.Context, req ExchangeRequest) (*domain.Message, error)
}

// Service combines all chat capabilities
type Service interface {
	LifecycleProvider
	ExchangeProvider
	HealthCheck(ctx context.Context) error
}

var _ Service = (*Manager)(nil)
