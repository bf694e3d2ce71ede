package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"roster/presence-server/models"
	"roster/presence-server/utils"
)

// AuthService handles registration and login. On a successful login it
// marks the user online, which is the only credential-driven write to
// the presence store.
type AuthService struct {
	users       CredentialStore
	presence    Store
	logger      *utils.Logger
	jwtSecret   string
	tokenExpiry time.Duration

	now func() time.Time
}

func NewAuthService(users CredentialStore, presence Store, logger *utils.Logger, jwtSecret string, tokenExpiry time.Duration) *AuthService {
	return &AuthService{
		users:       users,
		presence:    presence,
		logger:      logger,
		jwtSecret:   jwtSecret,
		tokenExpiry: tokenExpiry,
		now:         time.Now,
	}
}

// SetNowFunc overrides the clock. Intended for tests.
func (as *AuthService) SetNowFunc(now func() time.Time) {
	as.now = now
}

// Register creates the account and its presence record. The record
// starts offline with its heartbeat set to the creation time.
func (as *AuthService) Register(ctx context.Context, username, password string) error {
	if _, err := as.users.FindByUsername(ctx, username); err == nil {
		return ErrDuplicateKey
	} else if !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("failed to look up user: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	user := &models.User{
		ID:           uuid.New(),
		Username:     username,
		PasswordHash: string(hash),
	}

	if err := as.users.CreateUser(ctx, user); err != nil {
		return err
	}

	if err := as.presence.Create(ctx, username, as.now()); err != nil {
		return err
	}

	as.logger.Info("User registered", "username", username)
	return nil
}

// Login verifies the credentials, marks the user online and issues a
// session token. Unknown username and wrong password both come back as
// ErrAuthenticationFailed.
func (as *AuthService) Login(ctx context.Context, username, password string) (string, error) {
	user, err := as.users.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", ErrAuthenticationFailed
		}
		return "", fmt.Errorf("failed to look up user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return "", ErrAuthenticationFailed
	}

	err = as.presence.MarkOnline(ctx, username, as.now())
	if errors.Is(err, ErrNotFound) {
		// Presence is ephemeral: after a restart the credentials
		// survive but the record does not. Rebuild it on login.
		if createErr := as.presence.Create(ctx, username, as.now()); createErr != nil && !errors.Is(createErr, ErrDuplicateKey) {
			return "", fmt.Errorf("failed to recreate presence record: %w", createErr)
		}
		err = as.presence.MarkOnline(ctx, username, as.now())
	}
	if err != nil {
		return "", fmt.Errorf("failed to mark user online: %w", err)
	}

	token, err := as.issueToken(username)
	if err != nil {
		return "", fmt.Errorf("failed to issue token: %w", err)
	}

	as.logger.Info("User logged in", "username", username)
	return token, nil
}

func (as *AuthService) issueToken(username string) (string, error) {
	now := as.now()

	claims := jwt.MapClaims{
		"username": username,
		"iat":      now.Unix(),
		"exp":      now.Add(as.tokenExpiry).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(as.jwtSecret))
}
