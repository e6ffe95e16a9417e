// File: internal/domain/chat.go
package domain

import "time"

// Chat represents a single conversation thread.
type Chat struct {
	ID        uint      `json:"id" gorm:"primarykey"`
	UserID    uint      `json:"user_id" gorm:"not null;index"` // The ID of the user who owns the chat
	Title     string    `json:"title"`                         // Display title, e.g. "Chat 14:05"
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at" gorm:"index"` // Advances on every message append
}

// ChatSummary is the history-list view of a chat, without message bodies.
type ChatSummary struct {
	ID        uint      `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Summary strips a chat down to its history-list view.
func (c Chat) Summary() ChatSummary {
	return ChatSummary{
		ID:        c.ID,
		Title:     c.Title,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
}
