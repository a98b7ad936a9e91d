package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/envisagecorpa/realtime-chat-sub000/internal/store"
)

var (
	// ErrInvalidCredentials is returned when handle/password don't match.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUserExists is returned when registering an already taken handle.
	ErrUserExists = errors.New("user already exists")
	// ErrInvalidHandle is returned when a handle doesn't meet constraints.
	ErrInvalidHandle = errors.New("invalid handle")
	// ErrInvalidPassword is returned when a password doesn't meet constraints.
	ErrInvalidPassword = errors.New("invalid password")
)

// Service provides authentication operations for registered accounts.
// Guest-style participants authenticate over the socket with a bare handle
// and never pass through here.
type Service struct {
	store     store.UserStore
	jwtConfig *JWTConfig
}

// NewService creates a new authentication service.
func NewService(userStore store.UserStore, jwtConfig *JWTConfig) *Service {
	return &Service{
		store:     userStore,
		jwtConfig: jwtConfig,
	}
}

// Register creates a registered user with a hashed password and returns
// a JWT token. Handles are normalized before any uniqueness check.
func (s *Service) Register(ctx context.Context, handle, password string) (string, error) {
	handle = store.NormalizeHandle(handle)
	if err := store.ValidateHandle(handle); err != nil {
		return "", ErrInvalidHandle
	}
	if len(password) < 6 {
		return "", ErrInvalidPassword
	}

	hashedPassword, err := HashPassword(password)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}

	user, err := s.store.CreateUser(ctx, handle, hashedPassword)
	if err != nil {
		if errors.Is(err, store.ErrUserExists) {
			return "", ErrUserExists
		}
		return "", fmt.Errorf("create user: %w", err)
	}

	token, err := GenerateToken(s.jwtConfig, user.ID, user.Handle)
	if err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}

	return token, nil
}

// Login validates credentials and returns a JWT token.
func (s *Service) Login(ctx context.Context, handle, password string) (string, error) {
	user, err := s.store.GetUserByHandle(ctx, store.NormalizeHandle(handle))
	if err != nil {
		return "", ErrInvalidCredentials
	}

	// Handles created through the socket flow have no password and
	// cannot be logged into.
	if user.PasswordHash == "" {
		return "", ErrInvalidCredentials
	}
	if errPwd := ComparePassword(user.PasswordHash, password); errPwd != nil {
		return "", ErrInvalidCredentials
	}

	token, err := GenerateToken(s.jwtConfig, user.ID, user.Handle)
	if err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}

	return token, nil
}

// ValidateToken validates a JWT token and returns the claims.
func (s *Service) ValidateToken(tokenString string) (*Claims, error) {
	return ValidateToken(s.jwtConfig, tokenString)
}
