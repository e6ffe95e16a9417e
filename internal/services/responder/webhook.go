package responder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// maxReplyBytes bounds how much of a reply body is read.
const maxReplyBytes = 4 << 20

type WebhookConfig struct {
	URL     string
	Timeout time.Duration
}

func (c *WebhookConfig) Validate() error {
	if c.URL == "" {
		return fmt.Errorf("webhook URL is required")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	return nil
}

// WebhookResponder posts the payload as JSON to a workflow webhook.
type WebhookResponder struct {
	config     *WebhookConfig
	httpClient *http.Client
	logger     Logger
}

func NewWebhookResponder(config *WebhookConfig, logger Logger) (*WebhookResponder, error) {
	if err := config.Validate(); err != nil {
		return nil, NewConfigError(err.Error())
	}
	return &WebhookResponder{
		config: config,
		// The client timeout is a backstop; callers also bound the call with their context.
		httpClient: &http.Client{Timeout: config.Timeout},
		logger:     logger,
	}, nil
}

func (r *WebhookResponder) Respond(ctx context.Context, payload Payload) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", &ResponderError{Type: ErrTypeConfig, Operation: "webhook", Message: "failed to encode payload", Cause: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.config.URL, bytes.NewReader(body))
	if err != nil {
		return "", &ResponderError{Type: ErrTypeConfig, Operation: "webhook", Message: "failed to create request", Cause: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json, text/plain")

	start := time.Now()
	resp, err := r.httpClient.Do(req)
	if err != nil {
		r.logger.Error("webhook request failed",
			"chat_id", payload.ChatID,
			"duration", time.Since(start),
			"error", err)
		return "", NewTransportError("webhook", err)
	}
	defer resp.Body.Close()

	r.logger.Info("webhook responded",
		"chat_id", payload.ChatID,
		"status", resp.StatusCode,
		"duration", time.Since(start))

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, maxReplyBytes))
		return "", NewStatusError("webhook", resp.StatusCode)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxReplyBytes))
	if err != nil {
		if isTimeout(err) {
			return "", NewTransportError("webhook", err)
		}
		return "", NewDecodeError("webhook", "failed to read reply", err)
	}

	reply := NormalizeReply(raw)
	if reply == "" {
		return "", NewDecodeError("webhook", "empty reply", nil)
	}
	return reply, nil
}
