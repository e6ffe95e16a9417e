// Package responder talks to the external AI service that produces assistant replies.
package responder

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"time"
)

// Payload is the request body sent to the responder.
type Payload struct {
	UserMessage         string `json:"user_message"`
	ConversationContext string `json:"conversation_context"`
	ChatID              uint   `json:"chat_id"`
	UserID              uint   `json:"user_id"`
	Timestamp           string `json:"timestamp"`
}

// NewPayload stamps the payload with the given time in RFC 3339 form.
func NewPayload(userMessage, conversationContext string, chatID, userID uint, at time.Time) Payload {
	return Payload{
		UserMessage:         userMessage,
		ConversationContext: conversationContext,
		ChatID:              chatID,
		UserID:              userID,
		Timestamp:           at.Format(time.RFC3339Nano),
	}
}

// Responder returns the assistant text for one payload.
type Responder interface {
	Respond(ctx context.Context, payload Payload) (string, error)
}

// Logger defines the logging interface used by responders.
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
	Debug(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
}

// replyKeys are tried in order when the reply is a JSON object.
var replyKeys = []string{"output", "response", "message", "text"}

// NormalizeReply turns a raw responder body into assistant text.
// A JSON string is used as is. A JSON object yields the first non-empty
// candidate key, else the whole object. Anything that is not JSON is used verbatim.
func NormalizeReply(body []byte) string {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return ""
	}

	var decoded interface{}
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()
	if err := dec.Decode(&decoded); err != nil || dec.More() {
		return string(trimmed)
	}

	switch v := decoded.(type) {
	case string:
		return v
	case map[string]interface{}:
		for _, key := range replyKeys {
			if text := candidateText(v[key]); text != "" {
				return text
			}
		}
		return string(trimmed)
	default:
		return string(trimmed)
	}
}

func candidateText(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case bool:
		if !val {
			return ""
		}
	}
	encoded, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	s := string(encoded)
	if s == "0" || s == "{}" || s == "[]" {
		return ""
	}
	return strings.TrimSpace(s)
}
