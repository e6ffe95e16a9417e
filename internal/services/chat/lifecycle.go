package chat

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/iyunix/go-chatkeep/internal/domain"
	chatrepo "github.com/iyunix/go-chatkeep/internal/repository/chat"
	messagerepo "github.com/iyunix/go-chatkeep/internal/repository/message"
	"github.com/iyunix/go-chatkeep/internal/services/responder"
	"github.com/iyunix/go-chatkeep/internal/services/retention"
	"github.com/iyunix/go-chatkeep/internal/storage"
	"github.com/sourcegraph/conc/pool"
)

// Manager owns every chat mutation: creation, appends, sweeps and cascade deletes.
// It holds no per-request state and is shared by all handlers.
type Manager struct {
	config      *Config
	chatRepo    chatrepo.ChatRepository
	messageRepo messagerepo.MessageRepository
	blobs       BlobStore
	responder   responder.Responder
	sweepGate   SweepGate
	logger      Logger
	now         func() time.Time
}

func NewManager(
	config *Config,
	chatRepo chatrepo.ChatRepository,
	messageRepo messagerepo.MessageRepository,
	blobs BlobStore,
	resp responder.Responder,
	logger Logger,
) (*Manager, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid chat config: %w", err)
	}
	if chatRepo == nil || messageRepo == nil || blobs == nil || resp == nil {
		return nil, errors.New("chat manager requires repositories, a blob store and a responder")
	}
	return &Manager{
		config:      config,
		chatRepo:    chatRepo,
		messageRepo: messageRepo,
		blobs:       blobs,
		responder:   resp,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}, nil
}

// WithSweepGate throttles sweeps through gate. A nil gate sweeps on every call.
func (m *Manager) WithSweepGate(gate SweepGate) *Manager {
	m.sweepGate = gate
	return m
}

// NewChat creates an empty chat titled after the current time.
func (m *Manager) NewChat(ctx context.Context, userID uint) (*domain.Chat, error) {
	now := m.now()
	created, err := m.chatRepo.Create(ctx, &domain.Chat{
		UserID:    userID,
		Title:     "Chat " + now.Format("15:04"),
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		m.logger.Error("failed to create chat", "user_id", userID, "error", err)
		return nil, NewStoreError("new_chat", 0, err)
	}

	m.logger.Info("chat created", "user_id", userID, "chat_id", created.ID)
	return created, nil
}

// GetOrCreateActiveChat returns the most recently updated chat, creating one if the user has none.
func (m *Manager) GetOrCreateActiveChat(ctx context.Context, userID uint) (*domain.Chat, error) {
	recent, err := m.chatRepo.FindRecent(ctx, userID, 1)
	if err != nil {
		return nil, NewStoreError("active_chat", 0, err)
	}
	if len(recent) > 0 {
		return &recent[0], nil
	}
	return m.NewChat(ctx, userID)
}

// AppendMessage stores one turn in a chat the user owns and advances the chat's updated_at.
// It is the only path that moves updated_at.
func (m *Manager) AppendMessage(ctx context.Context, userID, chatID uint, role, content, imageURL string) (*domain.Message, error) {
	if !domain.IsValidRole(role) {
		return nil, NewValidationError("append_message", fmt.Sprintf("invalid role %q", role))
	}
	if _, err := m.ownedChat(ctx, "append_message", userID, chatID); err != nil {
		return nil, err
	}

	now := m.now()
	msg, err := m.messageRepo.Create(ctx, &domain.Message{
		ChatID:    chatID,
		Role:      role,
		Content:   content,
		HasImage:  imageURL != "",
		ImageURL:  imageURL,
		CreatedAt: now,
	})
	if err != nil {
		if errors.Is(err, messagerepo.ErrInvalidMessage) {
			return nil, &ChatError{Type: ErrTypeValidation, Operation: "append_message", Message: "invalid message", ChatID: chatID, Cause: err}
		}
		return nil, NewStoreError("append_message", chatID, err)
	}

	if err := m.chatRepo.TouchUpdatedAt(ctx, chatID, now); err != nil {
		// The chat vanished between the ownership check and the touch, most likely a concurrent delete.
		if errors.Is(err, chatrepo.ErrChatNotFound) {
			if _, delErr := m.messageRepo.DeleteByIDs(context.WithoutCancel(ctx), chatID, []uint{msg.ID}); delErr != nil {
				m.logger.Error("failed to remove message of deleted chat", "chat_id", chatID, "message_id", msg.ID, "error", delErr)
			}
			return nil, NewNotFoundError("append_message", userID, chatID)
		}
		return nil, NewStoreError("append_message", chatID, err)
	}

	return msg, nil
}

// ListHistories returns at most MaxChatHistories summaries, most recently updated first.
func (m *Manager) ListHistories(ctx context.Context, userID uint) ([]domain.ChatSummary, error) {
	chats, err := m.chatRepo.FindRecent(ctx, userID, m.config.MaxChatHistories)
	if err != nil {
		return nil, NewStoreError("list_histories", 0, err)
	}

	summaries := make([]domain.ChatSummary, 0, len(chats))
	for _, c := range chats {
		summaries = append(summaries, c.Summary())
	}
	return summaries, nil
}

// LoadChat returns an owned chat with its oldest LoadChatMessageLimit messages in reading order.
func (m *Manager) LoadChat(ctx context.Context, userID, chatID uint) (*LoadedChat, error) {
	c, err := m.ownedChat(ctx, "load_chat", userID, chatID)
	if err != nil {
		return nil, err
	}

	messages, err := m.messageRepo.FindOldest(ctx, chatID, m.config.LoadChatMessageLimit)
	if err != nil {
		return nil, NewStoreError("load_chat", chatID, err)
	}
	return &LoadedChat{Chat: c, Messages: messages}, nil
}

// DeleteChat removes an owned chat with its messages and images.
func (m *Manager) DeleteChat(ctx context.Context, userID, chatID uint) error {
	c, err := m.ownedChat(ctx, "delete_chat", userID, chatID)
	if err != nil {
		return err
	}

	failures, err := m.cascadeDelete(ctx, c.ID)
	if err != nil {
		return NewStoreError("delete_chat", chatID, err)
	}

	m.logger.Info("chat deleted", "user_id", userID, "chat_id", chatID, "blob_delete_failures", failures)
	return nil
}

// RunRetentionSweep enforces the per-user chat cap and then the per-chat message cap.
// It keeps going after a failing chat and reports every failure at the end.
func (m *Manager) RunRetentionSweep(ctx context.Context, userID uint) (*SweepReport, error) {
	report := &SweepReport{}

	if m.sweepGate != nil {
		allowed, err := m.sweepGate.Allow(ctx, fmt.Sprintf("user:%d", userID))
		if err != nil {
			m.logger.Warn("sweep gate unavailable, sweeping anyway", "user_id", userID, "error", err)
		} else if !allowed {
			report.Skipped = true
			return report, nil
		}
	}

	chats, err := m.chatRepo.FindByUserID(ctx, userID)
	if err != nil {
		return report, NewStoreError("retention_sweep", 0, err)
	}

	var errs []error
	purge := retention.SelectChatsToPurge(chats, m.config.MaxTotalChatsPerUser)
	purged := make(map[uint]bool, len(purge))
	for _, c := range purge {
		failures, err := m.cascadeDelete(ctx, c.ID)
		report.BlobDeleteFailures += failures
		if err != nil {
			errs = append(errs, fmt.Errorf("chat %d: %w", c.ID, err))
			continue
		}
		purged[c.ID] = true
		report.ChatsPurged++
	}

	for _, c := range chats {
		if purged[c.ID] {
			continue
		}
		removed, failures, err := m.trimMessages(ctx, c.ID)
		report.MessagesPurged += removed
		report.BlobDeleteFailures += failures
		if err != nil {
			errs = append(errs, fmt.Errorf("chat %d: %w", c.ID, err))
		}
	}

	if report.ChatsPurged > 0 || report.MessagesPurged > 0 {
		m.logger.Info("retention sweep removed data",
			"user_id", userID,
			"chats_purged", report.ChatsPurged,
			"messages_purged", report.MessagesPurged,
			"blob_delete_failures", report.BlobDeleteFailures)
	}

	if len(errs) > 0 {
		return report, NewStoreError("retention_sweep", 0, errors.Join(errs...))
	}
	return report, nil
}

// HealthCheck reports whether the chat store is reachable.
func (m *Manager) HealthCheck(ctx context.Context) error {
	if err := m.chatRepo.Ping(ctx); err != nil {
		return NewStoreError("health_check", 0, err)
	}
	return nil
}

// cascadeDelete removes a chat in a fixed order: image blobs, then message rows, then the chat row.
// Blob failures are counted and logged but never stop the rows from going.
// Once started it ignores cancellation so rows never outlive their blobs.
func (m *Manager) cascadeDelete(ctx context.Context, chatID uint) (int, error) {
	ctx = context.WithoutCancel(ctx)
	withImages, err := m.messageRepo.FindWithImages(ctx, chatID)
	if err != nil {
		return 0, err
	}

	failures := m.deleteBlobs(ctx, chatID, imageKeys(withImages))

	if _, err := m.messageRepo.DeleteByChatID(ctx, chatID); err != nil {
		return failures, err
	}
	if err := m.chatRepo.Delete(ctx, chatID); err != nil {
		return failures, err
	}
	return failures, nil
}

// trimMessages drops the oldest messages beyond MaxMessagesPerChat, with their images.
func (m *Manager) trimMessages(ctx context.Context, chatID uint) (int64, int, error) {
	ctx = context.WithoutCancel(ctx)
	count, err := m.messageRepo.CountByChatID(ctx, chatID)
	if err != nil {
		return 0, 0, err
	}
	if count <= int64(m.config.MaxMessagesPerChat) {
		return 0, 0, nil
	}

	messages, err := m.messageRepo.FindByChatID(ctx, chatID)
	if err != nil {
		return 0, 0, err
	}
	purge := retention.SelectMessagesToPurge(messages, m.config.MaxMessagesPerChat)
	if len(purge) == 0 {
		return 0, 0, nil
	}

	failures := m.deleteBlobs(ctx, chatID, imageKeys(purge))
	removed, err := m.messageRepo.DeleteByIDs(ctx, chatID, retention.IDs(purge))
	return removed, failures, err
}

// deleteBlobs removes each key on its own so one bad key cannot hide the rest.
func (m *Manager) deleteBlobs(ctx context.Context, chatID uint, keys []string) int {
	if len(keys) == 0 {
		return 0
	}

	var failures atomic.Int64
	p := pool.New().WithMaxGoroutines(m.config.BlobDeleteConcurrency)
	for _, key := range keys {
		p.Go(func() {
			if err := m.blobs.Delete(ctx, []string{key}); err != nil {
				failures.Add(1)
				blobErr := &ChatError{Type: ErrTypeBlobDeleteFailed, Operation: "delete_blob", Message: key, ChatID: chatID, Cause: err}
				m.logger.Warn("blob delete failed, continuing", "chat_id", chatID, "key", key, "error", blobErr)
			}
		})
	}
	p.Wait()

	return int(failures.Load())
}

func (m *Manager) ownedChat(ctx context.Context, operation string, userID, chatID uint) (*domain.Chat, error) {
	c, err := m.chatRepo.FindByIDAndUserID(ctx, chatID, userID)
	if err != nil {
		if errors.Is(err, chatrepo.ErrChatNotFound) {
			return nil, NewNotFoundError(operation, userID, chatID)
		}
		return nil, NewStoreError(operation, chatID, err)
	}
	return c, nil
}

func imageKeys(messages []domain.Message) []string {
	keys := make([]string, 0, len(messages))
	seen := make(map[string]bool, len(messages))
	for _, msg := range messages {
		if !msg.HasImage {
			continue
		}
		key := storage.KeyFromURL(msg.ImageURL)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		keys = append(keys, key)
	}
	return keys
}
