package chat

import (
	"strings"

	"github.com/iyunix/go-chatkeep/internal/domain"
	"github.com/iyunix/go-chatkeep/internal/services/retention"
)

// ConversationStart is sent as context when there is no prior conversation.
const ConversationStart = "This is the start of the conversation."

// BuildContext renders the windowSize most recent messages, oldest first, one
// "User: ..." or "Assistant: ..." line each. The message with id inFlightID is
// the turn being answered and is left out before the window is taken.
// Input order does not matter.
func BuildContext(messages []domain.Message, windowSize int, inFlightID uint) string {
	if windowSize <= 0 || len(messages) == 0 {
		return ConversationStart
	}

	newest := retention.SortNewestFirst(messages)
	window := make([]domain.Message, 0, windowSize)
	for _, m := range newest {
		if inFlightID != 0 && m.ID == inFlightID {
			continue
		}
		window = append(window, m)
		if len(window) == windowSize {
			break
		}
	}
	if len(window) == 0 {
		return ConversationStart
	}

	lines := make([]string, 0, len(window))
	for i := len(window) - 1; i >= 0; i-- {
		lines = append(lines, speaker(window[i].Role)+": "+window[i].Content)
	}
	return strings.Join(lines, "\n")
}

func speaker(role string) string {
	if role == domain.RoleUser {
		return "User"
	}
	return "Assistant"
}

// imagePrompt replaces the raw user text when an image is attached.
func imagePrompt(userText, imageURL string) string {
	return "Image Analysis Request:\n" +
		"User Message: " + userText + "\n" +
		"Image URL: " + imageURL + "\n\n" +
		"Please analyze the attached image and respond to the user's message in context."
}
