// File: internal/config/config.go
package config

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

type Config struct {
	ServerPort   string `env:"SERVER_PORT" env-default:"8080"`
	Environment  string `env:"ENV"`
	LogLevel     string `env:"LOG_LEVEL" env-default:"INFO"`
	JWTSecretKey string `env:"JWT_SECRET_KEY"`
	DatabasePath string `env:"DATABASE_PATH" env-default:"chatkeep.db"`

	// Blob storage for uploaded chat images.
	BlobDir           string `env:"BLOB_DIR" env-default:"data/chat-images"`
	BlobPublicBaseURL string `env:"BLOB_PUBLIC_BASE_URL" env-default:"/blobs"`
	MaxUploadBytes    int64  `env:"MAX_UPLOAD_BYTES" env-default:"16777216"`

	// AI responder: "webhook" posts to N8N_WEBHOOK_URL, "openai" uses a chat completion endpoint.
	ResponderMode      string `env:"RESPONDER_MODE" env-default:"webhook"`
	WebhookURL         string `env:"N8N_WEBHOOK_URL"`
	OpenAIAPIKey       string `env:"OPENAI_API_KEY"`
	OpenAIBaseURL      string `env:"OPENAI_BASE_URL"`
	OpenAIModel        string `env:"OPENAI_MODEL" env-default:"gpt-4o-mini"`
	AIResponderTimeout int    `env:"AI_RESPONDER_TIMEOUT" env-default:"60"` // seconds

	// Retention and windowing. The display cap and the retention cap are independent.
	MaxChatHistories     int `env:"MAX_CHAT_HISTORIES" env-default:"10"`
	MaxMessagesPerChat   int `env:"MAX_MESSAGES_PER_CHAT" env-default:"10000"`
	MaxTotalChatsPerUser int `env:"MAX_TOTAL_CHATS_PER_USER" env-default:"2000"`
	MessageContextLimit  int `env:"MESSAGE_CONTEXT_LIMIT" env-default:"10"`
	LoadChatMessageLimit int `env:"LOAD_CHAT_MESSAGE_LIMIT" env-default:"30"`

	// Sweep throttling. 0 sweeps on every access.
	SweepMinInterval int    `env:"SWEEP_MIN_INTERVAL" env-default:"0"` // seconds
	RedisAddr        string `env:"REDIS_ADDR"`
}

// Load reads configuration from environment variables or .env file.
func Load() (*Config, error) {
	if !isProduction(os.Getenv("ENV")) {
		if err := godotenv.Load(); err != nil {
			log.Println("No .env file found; continuing with environment variables")
		}
	}

	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("reading environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cap sanity everywhere and required secrets in production.
func (c *Config) Validate() error {
	if c.MaxChatHistories < 1 {
		return fmt.Errorf("MAX_CHAT_HISTORIES must be at least 1")
	}
	if c.MaxMessagesPerChat < 1 {
		return fmt.Errorf("MAX_MESSAGES_PER_CHAT must be at least 1")
	}
	if c.MaxTotalChatsPerUser < 1 {
		return fmt.Errorf("MAX_TOTAL_CHATS_PER_USER must be at least 1")
	}
	if c.MessageContextLimit < 0 {
		return fmt.Errorf("MESSAGE_CONTEXT_LIMIT cannot be negative")
	}
	if c.LoadChatMessageLimit < 1 {
		return fmt.Errorf("LOAD_CHAT_MESSAGE_LIMIT must be at least 1")
	}
	if c.AIResponderTimeout < 1 {
		return fmt.Errorf("AI_RESPONDER_TIMEOUT must be at least 1 second")
	}
	if c.SweepMinInterval < 0 {
		return fmt.Errorf("SWEEP_MIN_INTERVAL cannot be negative")
	}
	switch c.ResponderMode {
	case "webhook", "openai":
	default:
		return fmt.Errorf("RESPONDER_MODE must be webhook or openai, got %q", c.ResponderMode)
	}

	if isProduction(c.Environment) {
		missing := []string{}
		if c.JWTSecretKey == "" {
			missing = append(missing, "JWT_SECRET_KEY")
		}
		if c.ResponderMode == "webhook" && c.WebhookURL == "" {
			missing = append(missing, "N8N_WEBHOOK_URL")
		}
		if c.ResponderMode == "openai" && c.OpenAIAPIKey == "" {
			missing = append(missing, "OPENAI_API_KEY")
		}
		if len(missing) > 0 {
			return fmt.Errorf("missing required production environment variables: %v", missing)
		}
	}
	return nil
}

// ResponderTimeout is AI_RESPONDER_TIMEOUT as a duration.
func (c *Config) ResponderTimeout() time.Duration {
	return time.Duration(c.AIResponderTimeout) * time.Second
}

// SweepInterval is SWEEP_MIN_INTERVAL as a duration.
func (c *Config) SweepInterval() time.Duration {
	return time.Duration(c.SweepMinInterval) * time.Second
}

func isProduction(env string) bool {
	return strings.ToLower(env) == "production"
}
