package chat

import (
	"fmt"
	"time"
)

type Config struct {
	// Display caps
	MaxChatHistories     int // Chats shown in the history list
	LoadChatMessageLimit int // Messages returned when a chat is opened

	// Retention caps, enforced by sweeps
	MaxTotalChatsPerUser int
	MaxMessagesPerChat   int

	// Exchange
	MessageContextLimit int           // Messages rendered into the responder context
	ResponderTimeout    time.Duration // Bound on a single responder call
	MaxUploadBytes      int64         // Largest accepted image upload

	// Cascade deletes
	BlobDeleteConcurrency int
}

func (c *Config) Validate() error {
	if c.MaxChatHistories < 1 {
		return fmt.Errorf("max_chat_histories must be at least 1")
	}
	if c.LoadChatMessageLimit < 1 {
		return fmt.Errorf("load_chat_message_limit must be at least 1")
	}
	if c.MaxTotalChatsPerUser < 1 {
		return fmt.Errorf("max_total_chats_per_user must be at least 1")
	}
	if c.MaxMessagesPerChat < 1 {
		return fmt.Errorf("max_messages_per_chat must be at least 1")
	}
	if c.MessageContextLimit < 0 {
		return fmt.Errorf("message_context_limit cannot be negative")
	}
	if c.ResponderTimeout <= 0 {
		return fmt.Errorf("responder_timeout must be positive")
	}
	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("max_upload_bytes must be positive")
	}
	if c.BlobDeleteConcurrency < 1 {
		return fmt.Errorf("blob_delete_concurrency must be at least 1")
	}
	return nil
}

func DefaultConfig() *Config {
	return &Config{
		MaxChatHistories:      10,
		LoadChatMessageLimit:  30,
		MaxTotalChatsPerUser:  2000,
		MaxMessagesPerChat:    10000,
		MessageContextLimit:   10,
		ResponderTimeout:      60 * time.Second,
		MaxUploadBytes:        16 << 20,
		BlobDeleteConcurrency: 4,
	}
}
