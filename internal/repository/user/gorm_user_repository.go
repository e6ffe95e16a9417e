// File: internal/repository/user/gorm_user_repository.go
package user

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/iyunix/go-chatkeep/internal/domain"
	"gorm.io/gorm"
)

var ErrUserNotFound = errors.New("user not found")

type gormUserRepository struct {
	db *gorm.DB
}

func NewGormUserRepository(db *gorm.DB) UserRepository {
	return &gormUserRepository{db: db}
}

// Create - input validation and secure logging
func (r *gormUserRepository) Create(ctx context.Context, user *domain.User) (*domain.User, error) {
	if err := r.validateUserInput(user); err != nil {
		log.Printf("[UserRepository] Validation failed: %v", err)
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	if err := r.db.WithContext(ctx).Create(user).Error; err != nil {
		log.Printf("[UserRepository] Database error during user creation: %v", err)
		return nil, errors.New("database error creating user")
	}

	log.Printf("[UserRepository] User created successfully with ID: %d", user.ID)
	return user, nil
}

func (r *gormUserRepository) FindByUsername(ctx context.Context, username string) (*domain.User, error) {
	if err := r.validateUsername(username); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	var user domain.User
	err := r.db.WithContext(ctx).Where("username = ?", username).First(&user).Error
	return r.handleFindError(err, &user)
}

func (r *gormUserRepository) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&domain.User{}).Where("username = ?", username).Count(&count).Error
	if err != nil {
		log.Printf("[UserRepository] Database error checking username existence: %v", err)
		return false, errors.New("database error checking username")
	}
	return count > 0, nil
}

// ===== VALIDATION HELPERS =====

func (r *gormUserRepository) validateUserInput(user *domain.User) error {
	if user == nil {
		return errors.New("user cannot be nil")
	}

	if err := r.validateUsername(user.Username); err != nil {
		return fmt.Errorf("username validation: %w", err)
	}

	if user.Password == "" {
		return errors.New("password hash is required")
	}

	return nil
}

// validateUsername - SQL injection protection
func (r *gormUserRepository) validateUsername(username string) error {
	if len(username) < 3 || len(username) > 50 {
		return errors.New("username must be between 3 and 50 characters")
	}

	maliciousPatterns := []string{
		"--", "/*", "*/", "xp_", "sp_",
		"union", "select", "insert", "delete", "drop", "create", "alter",
		"<script", "javascript:", "vbscript:",
	}

	lowerUsername := strings.ToLower(username)
	for _, pattern := range maliciousPatterns {
		if strings.Contains(lowerUsername, pattern) {
			return errors.New("invalid characters detected in username")
		}
	}

	return nil
}

// ===== ERROR HANDLING HELPERS =====

func (r *gormUserRepository) handleFindError(err error, user *domain.User) (*domain.User, error) {
	if err == nil {
		return user, nil
	}

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}

	log.Printf("[UserRepository] Database query error: %v", err)
	return nil, errors.New("database query failed")
}
