// File: internal/services/user_services/auth_service.go
package user_services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/iyunix/go-chatkeep/internal/auth"
	"github.com/iyunix/go-chatkeep/internal/domain"
	"github.com/iyunix/go-chatkeep/internal/repository/user"
)

const tokenTTL = 7 * 24 * time.Hour

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUsernameTaken      = errors.New("username already taken")
	ErrInvalidInput       = errors.New("invalid registration input")
)

var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_]{3,50}$`)

type AuthService struct {
	userRepo     user.UserRepository
	jwtSecretKey []byte
	logger       Logger
}

func NewAuthService(userRepo user.UserRepository, jwtSecretKey string, logger Logger) *AuthService {
	return &AuthService{
		userRepo:     userRepo,
		jwtSecretKey: []byte(jwtSecretKey),
		logger:       logger,
	}
}

// Login authenticates a user and returns a JWT token
func (s *AuthService) Login(ctx context.Context, username, password string) (*domain.User, string, error) {
	if username == "" || password == "" {
		s.logger.Warn("login attempt with empty credentials",
			"has_username", username != "",
			"has_password", password != "")
		return nil, "", ErrInvalidCredentials
	}

	u, err := s.userRepo.FindByUsername(ctx, username)
	if err != nil {
		if !errors.Is(err, user.ErrUserNotFound) {
			s.logger.Error("login lookup failed", "username", maskUsername(username), "error", err)
			return nil, "", fmt.Errorf("looking up user: %w", err)
		}
		s.logger.Warn("login failed - user not found", "username", maskUsername(username))
		return nil, "", ErrInvalidCredentials
	}

	if err := u.ValidatePassword(password); err != nil {
		s.logger.Warn("login failed - invalid password", "username", maskUsername(username), "user_id", u.ID)
		return nil, "", ErrInvalidCredentials
	}

	token, err := auth.GenerateJWT(u.ID, s.jwtSecretKey, tokenTTL)
	if err != nil {
		s.logger.Error("JWT token generation failed", "error", err, "user_id", u.ID)
		return nil, "", fmt.Errorf("failed to generate token: %w", err)
	}

	s.logger.Info("login successful", "username", maskUsername(username), "user_id", u.ID)
	return u, token, nil
}

// Register creates a user with a bcrypt-hashed password.
func (s *AuthService) Register(ctx context.Context, username, password string) (*domain.User, error) {
	if !usernamePattern.MatchString(username) {
		return nil, fmt.Errorf("%w: username must be 3-50 characters, alphanumeric or underscore", ErrInvalidInput)
	}

	u := &domain.User{Username: username}
	if err := u.IsValid(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if err := u.HashPassword(password); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	exists, err := s.userRepo.ExistsByUsername(ctx, username)
	if err != nil {
		s.logger.Error("username lookup failed", "username", maskUsername(username), "error", err)
		return nil, fmt.Errorf("checking username: %w", err)
	}
	if exists {
		s.logger.Warn("registration failed - username already exists", "username", maskUsername(username))
		return nil, ErrUsernameTaken
	}

	created, err := s.userRepo.Create(ctx, u)
	if err != nil {
		s.logger.Error("user creation failed", "username", maskUsername(username), "error", err)
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	s.logger.Info("user registered successfully", "username", maskUsername(username), "user_id", created.ID)
	return created, nil
}

// ValidateJWTToken validates a JWT token and returns the user ID
func (s *AuthService) ValidateJWTToken(tokenString string) (uint, error) {
	userID, err := auth.ValidateToken(tokenString, s.jwtSecretKey)
	if err != nil {
		s.logger.Debug("JWT token validation failed", "error", err)
		return 0, err
	}
	return userID, nil
}

// TokenTTL is how long issued session tokens stay valid.
func (s *AuthService) TokenTTL() time.Duration {
	return tokenTTL
}
