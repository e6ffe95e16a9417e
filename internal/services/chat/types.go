package chat

import (
	"context"

	"github.com/iyunix/go-chatkeep/internal/domain"
)

// Logger defines the logging interface used across chat services
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
	Debug(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
}

// BlobStore holds uploaded chat images.
type BlobStore interface {
	Upload(ctx context.Context, key string, data []byte, contentType string) error
	PublicURL(key string) string
	Delete(ctx context.Context, keys []string) error
}

// SweepGate decides whether a user's sweep may run now.
type SweepGate interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// ImageUpload is an image attached to an outgoing user message.
type ImageUpload struct {
	Filename    string
	ContentType string
	Data        []byte
}

type ImageInfo struct {
	Filename    string `json:"filename"`
	URL         string `json:"url"`
	ContentType string `json:"content_type"`
}

// SendResult is what a send produces: both stored turns.
type SendResult struct {
	UserMessage *domain.Message
	BotReply    *domain.Message
	ChatID      uint
	Image       *ImageInfo
}

type LoadedChat struct {
	Chat     *domain.Chat
	Messages []domain.Message
}

// SweepReport counts what a retention sweep removed.
type SweepReport struct {
	Skipped            bool
	ChatsPurged        int
	MessagesPurged     int64
	BlobDeleteFailures int
}

// ExchangeRequest describes one turn to be answered.
type ExchangeRequest struct {
	UserID     uint
	ChatID     uint
	UserText   string
	ImageURL   string
	InFlightID uint // id of the stored user turn, kept out of the context
}
