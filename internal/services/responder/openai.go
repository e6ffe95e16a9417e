package responder

import (
	"context"
	"errors"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

type OpenAIConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float32
}

func (c *OpenAIConfig) Validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("api key is required")
	}
	if c.Model == "" {
		return fmt.Errorf("model is required")
	}
	return nil
}

const systemPrompt = "You are a helpful assistant in an ongoing chat. " +
	"The conversation so far is given below; answer the user's latest message in that context.\n\n" +
	"Conversation so far:\n%s"

// OpenAIResponder answers through an OpenAI-compatible chat completion endpoint.
type OpenAIResponder struct {
	config *OpenAIConfig
	client *openai.Client
	logger Logger
}

func NewOpenAIResponder(config *OpenAIConfig, logger Logger) (*OpenAIResponder, error) {
	if err := config.Validate(); err != nil {
		return nil, NewConfigError(err.Error())
	}

	clientConfig := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		clientConfig.BaseURL = config.BaseURL
	}

	return &OpenAIResponder{
		config: config,
		client: openai.NewClientWithConfig(clientConfig),
		logger: logger,
	}, nil
}

func (p *OpenAIResponder) Respond(ctx context.Context, payload Payload) (string, error) {
	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: p.config.Model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: fmt.Sprintf(systemPrompt, payload.ConversationContext),
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: payload.UserMessage,
			},
		},
		Temperature: p.config.Temperature,
		User:        fmt.Sprintf("%d", payload.UserID),
	})
	if err != nil {
		p.logger.Error("chat completion failed", "chat_id", payload.ChatID, "model", p.config.Model, "error", err)
		return "", classifyOpenAIError(err)
	}

	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return "", NewDecodeError("completion", "empty completion response", nil)
	}

	p.logger.Info("chat completion received",
		"chat_id", payload.ChatID,
		"model", resp.Model,
		"total_tokens", resp.Usage.TotalTokens)
	return resp.Choices[0].Message.Content, nil
}

func classifyOpenAIError(err error) *ResponderError {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode != 0 {
		se := NewStatusError("completion", apiErr.HTTPStatusCode)
		se.Cause = err
		return se
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode != 0 {
		se := NewStatusError("completion", reqErr.HTTPStatusCode)
		se.Cause = err
		return se
	}
	return NewTransportError("completion", err)
}
