package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/CUknot/nexus_chat/models"
	"github.com/CUknot/nexus_chat/utils"
	"gorm.io/gorm"
)

// RegisterInput is the data needed to create an account.
type RegisterInput struct {
	FullName     string
	Email        string
	Password     string
	ProfileImage string
}

// UserService looks up and registers users and issues their tokens.
type UserService struct {
	db     *gorm.DB
	tokens *utils.TokenManager
}

func NewUserService(db *gorm.DB, tokens *utils.TokenManager) *UserService {
	return &UserService{db: db, tokens: tokens}
}

// GetByID returns the user with the given ID or ErrUserNotFound.
func (s *UserService) GetByID(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).First(&user, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

// Exists reports whether a user with the given ID is stored.
func (s *UserService) Exists(ctx context.Context, id string) (bool, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// Register creates a user and returns it together with a fresh token.
func (s *UserService) Register(ctx context.Context, in RegisterInput) (*models.User, string, error) {
	email := normalizeEmail(in.Email)

	var existing int64
	if err := s.db.WithContext(ctx).Model(&models.User{}).Where("email = ?", email).Count(&existing).Error; err != nil {
		return nil, "", err
	}
	if existing > 0 {
		return nil, "", ErrEmailTaken
	}

	user := models.User{
		FullName:     strings.TrimSpace(in.FullName),
		Email:        email,
		Password:     in.Password,
		ProfileImage: in.ProfileImage,
	}
	if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, "", ErrEmailTaken
		}
		return nil, "", fmt.Errorf("create user: %w", err)
	}

	token, err := s.tokens.GenerateToken(user.ID)
	if err != nil {
		return nil, "", fmt.Errorf("generate token: %w", err)
	}
	return &user, token, nil
}

// Authenticate checks an email/password pair and issues a token.
func (s *UserService) Authenticate(ctx context.Context, email, password string) (*models.User, string, error) {
	var user models.User
	if err := s.db.WithContext(ctx).Where("email = ?", normalizeEmail(email)).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, "", ErrInvalidCredentials
		}
		return nil, "", err
	}
	if err := user.ValidatePassword(password); err != nil {
		return nil, "", ErrInvalidCredentials
	}

	token, err := s.tokens.GenerateToken(user.ID)
	if err != nil {
		return nil, "", fmt.Errorf("generate token: %w", err)
	}
	return &user, token, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
