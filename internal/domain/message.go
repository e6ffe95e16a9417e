// File: internal/domain/message.go
package domain

import "time"

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// MaxContentLength bounds a message body in bytes.
const MaxContentLength = 100000

// Message represents a single message within a chat.
type Message struct {
	ID        uint      `json:"id" gorm:"primarykey"`
	ChatID    uint      `json:"chat_id" gorm:"not null;index"` // The ID of the chat this message belongs to
	Role      string    `json:"role" gorm:"not null"`          // "user" or "assistant"
	Content   string    `json:"content" gorm:"not null"`
	HasImage  bool      `json:"has_image" gorm:"not null;default:false"`
	ImageURL  string    `json:"image_url,omitempty"` // Set iff HasImage
	CreatedAt time.Time `json:"created_at" gorm:"index"`
}

// IsValidRole reports whether role is one of the two conversational roles.
func IsValidRole(role string) bool {
	return role == RoleUser || role == RoleAssistant
}
