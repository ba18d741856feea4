package services

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"truth-dare-backend/internal/models"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	codeLength        = 6
	codeChars         = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	jwtExpDays        = 365
	maxUsernameLength = 32
)

// ErrInvalidUsername is returned for usernames that are too long or contain control characters
var ErrInvalidUsername = errors.New("username must be at most 32 printable characters")

// AuthProvider resolves a bearer token to a stable user id
type AuthProvider interface {
	ValidateJWT(token string) (string, error)
}

// UserStore persists users
type UserStore interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id string) (*models.User, error)
	UpdatePushToken(ctx context.Context, userID string, pushToken *string) error
}

// UserService handles user-related business logic
type UserService struct {
	userRepo  UserStore
	jwtSecret string
}

// NewUserService creates a new user service
func NewUserService(userRepo UserStore, jwtSecret string) *UserService {
	return &UserService{
		userRepo:  userRepo,
		jwtSecret: jwtSecret,
	}
}

// generateCode generates a random 6-character code
func generateCode() string {
	code := make([]byte, codeLength)
	for i := range code {
		n, _ := rand.Int(rand.Reader, big.NewInt(int64(len(codeChars))))
		code[i] = codeChars[n.Int64()]
	}
	return string(code)
}

// GenerateJWT generates a JWT token for a user
func (s *UserService) GenerateJWT(userID string) (string, error) {
	claims := jwt.MapClaims{
		"user_id": userID,
		"exp":     time.Now().AddDate(0, 0, jwtExpDays).Unix(),
		"iat":     time.Now().Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(s.jwtSecret))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	return tokenString, nil
}

// ValidateJWT validates a JWT token and returns the user ID
func (s *UserService) ValidateJWT(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.jwtSecret), nil
	})

	if err != nil {
		return "", fmt.Errorf("failed to parse token: %w", err)
	}

	if !token.Valid {
		return "", fmt.Errorf("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", fmt.Errorf("invalid token claims")
	}

	userID, ok := claims["user_id"].(string)
	if !ok || userID == "" {
		return "", fmt.Errorf("user_id not found in token")
	}

	return userID, nil
}

// CreateUser registers a player. An empty username gets a generated one.
func (s *UserService) CreateUser(ctx context.Context, username string) (*models.User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		username = "player-" + generateCode()
	}
	if len(username) > maxUsernameLength || strings.ContainsFunc(username, isControl) {
		return nil, ErrInvalidUsername
	}

	userID := uuid.New().String()

	token, err := s.GenerateJWT(userID)
	if err != nil {
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}

	user := &models.User{
		ID:        userID,
		Username:  username,
		Token:     token,
		CreatedAt: time.Now(),
	}

	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	return user, nil
}

// UpdatePushToken stores the APNs device token of a user; empty clears it
func (s *UserService) UpdatePushToken(ctx context.Context, userID, pushToken string) error {
	var tok *string
	if t := strings.TrimSpace(pushToken); t != "" {
		tok = &t
	}
	return s.userRepo.UpdatePushToken(ctx, userID, tok)
}

func isControl(r rune) bool {
	return r < 0x20 || r == 0x7f
}
