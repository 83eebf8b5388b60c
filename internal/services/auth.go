package services

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"tradechat-backend/internal/middleware"
	"tradechat-backend/internal/models"
	"tradechat-backend/internal/repository"
)

const refreshTokenTTL = 7 * 24 * time.Hour

type AuthService struct {
	users      repository.UserStore
	jwt        *middleware.JWTAuth
	tokens     TokenStore
	bcryptCost int
	log        *zap.Logger
}

// NewAuthService builds the auth flows. tokens may be nil, which disables
// refresh tokens.
func NewAuthService(users repository.UserStore, jwt *middleware.JWTAuth, tokens TokenStore, log *zap.Logger) *AuthService {
	return &AuthService{
		users:      users,
		jwt:        jwt,
		tokens:     tokens,
		bcryptCost: 12,
		log:        log.With(zap.String("service", "auth")),
	}
}

var usernameRegex = regexp.MustCompile(`^[a-z0-9_.-]{3,32}$`)

func normalizeUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}

func (s *AuthService) Register(ctx context.Context, req models.RegisterRequest) (*models.AuthResponse, error) {
	username := normalizeUsername(req.Username)

	fieldErrors := make(map[string]string)
	if !usernameRegex.MatchString(username) {
		fieldErrors["username"] = "Username must be 3-32 characters of letters, digits, '.', '_' or '-'"
	}
	if err := validatePassword(req.Password); err != nil {
		fieldErrors["password"] = err.Error()
	}
	if len(fieldErrors) > 0 {
		return nil, &ValidationError{Fields: fieldErrors}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &models.User{
		Username:     username,
		PasswordHash: string(hash),
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, &ConflictError{Message: "Username already taken"}
		}
		return nil, &StoreError{Err: err}
	}

	s.log.Info("user registered", zap.String("user_id", user.ID))
	return s.issueTokens(ctx, user)
}

func (s *AuthService) Login(ctx context.Context, req models.LoginRequest) (*models.AuthResponse, error) {
	user, err := s.users.GetByUsername(ctx, normalizeUsername(req.Username))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, &UnauthorizedError{Message: "Invalid username or password"}
		}
		return nil, &StoreError{Err: err}
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return nil, &UnauthorizedError{Message: "Invalid username or password"}
	}

	return s.issueTokens(ctx, user)
}

// Refresh rotates a refresh token and issues a new access token.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*models.AuthResponse, error) {
	if s.tokens == nil || refreshToken == "" {
		return nil, &UnauthorizedError{Message: "Invalid or expired refresh token. Please log in again."}
	}

	userID, err := s.tokens.Lookup(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, ErrTokenNotFound) {
			return nil, &UnauthorizedError{Message: "Invalid or expired refresh token. Please log in again."}
		}
		return nil, &StoreError{Err: err}
	}

	// Rotation. A token that cannot be revoked must not be exchanged.
	if err := s.tokens.Delete(ctx, refreshToken); err != nil {
		return nil, &StoreError{Err: err}
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, &UnauthorizedError{Message: "Account no longer exists"}
		}
		return nil, &StoreError{Err: err}
	}

	return s.issueTokens(ctx, user)
}

func (s *AuthService) Logout(ctx context.Context, refreshToken string) error {
	if s.tokens == nil || refreshToken == "" {
		return nil
	}
	return s.tokens.Delete(ctx, refreshToken)
}

func (s *AuthService) ChangePassword(ctx context.Context, userID string, req models.ChangePasswordRequest) error {
	if err := validatePassword(req.NewPassword); err != nil {
		return &ValidationError{Fields: map[string]string{"new_password": err.Error()}}
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return &NotFoundError{Message: "User not found"}
		}
		return &StoreError{Err: err}
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.CurrentPassword)); err != nil {
		return &UnauthorizedError{Message: "Current password is incorrect"}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), s.bcryptCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	if err := s.users.UpdatePassword(ctx, user.ID, string(hash)); err != nil {
		return &StoreError{Err: err}
	}
	return nil
}

func (s *AuthService) Me(ctx context.Context, userID string) (*models.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, &NotFoundError{Message: "User not found"}
		}
		return nil, &StoreError{Err: err}
	}
	return user, nil
}

func (s *AuthService) issueTokens(ctx context.Context, user *models.User) (*models.AuthResponse, error) {
	accessToken, err := s.jwt.GenerateAccessToken(user.ID, user.Username)
	if err != nil {
		return nil, fmt.Errorf("failed to generate access token: %w", err)
	}

	resp := &models.AuthResponse{
		ID:       user.ID,
		Username: user.Username,
		Token:    accessToken,
	}

	if s.tokens != nil {
		refreshToken, err := generateToken(32)
		if err != nil {
			return nil, err
		}
		if err := s.tokens.Save(ctx, refreshToken, user.ID, refreshTokenTTL); err != nil {
			return nil, fmt.Errorf("failed to store refresh token: %w", err)
		}
		resp.RefreshToken = refreshToken
	}

	return resp, nil
}

func generateToken(bytes int) (string, error) {
	b := make([]byte, bytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

func validatePassword(pw string) error {
	if len(pw) < 8 {
		return fmt.Errorf("Password must be at least 8 characters")
	}
	hasNumber := false
	for _, ch := range pw {
		if unicode.IsDigit(ch) {
			hasNumber = true
			break
		}
	}
	if !hasNumber {
		return fmt.Errorf("Password must contain at least one number")
	}
	return nil
}
