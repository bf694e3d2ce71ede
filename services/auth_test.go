package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"roster/presence-server/models"
	"roster/presence-server/utils"
)

// fakeCredentialStore is an in-memory CredentialStore for tests.
type fakeCredentialStore struct {
	mu    sync.Mutex
	users map[string]*models.User
}

func newFakeCredentialStore() *fakeCredentialStore {
	return &fakeCredentialStore{users: make(map[string]*models.User)}
}

func (f *fakeCredentialStore) CreateUser(ctx context.Context, user *models.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.users[user.Username]; exists {
		return ErrDuplicateKey
	}
	f.users[user.Username] = user
	return nil
}

func (f *fakeCredentialStore) FindByUsername(ctx context.Context, username string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, exists := f.users[username]
	if !exists {
		return nil, ErrNotFound
	}
	return user, nil
}

func newTestAuth(t *testing.T) (*AuthService, *MemoryStore) {
	t.Helper()

	store := NewMemoryStore()
	auth := NewAuthService(newFakeCredentialStore(), store, utils.NewLogger(), "test-secret", time.Hour)
	return auth, store
}

func TestAuthService_Register_CreatesOfflinePresenceRecord(t *testing.T) {
	auth, store := newTestAuth(t)
	ctx := context.Background()

	if err := auth.Register(ctx, "alice", "s3cret"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	record, err := store.Get(ctx, "alice")
	if err != nil {
		t.Fatalf("presence record should exist after registration: %v", err)
	}
	if record.Online || record.Busy {
		t.Errorf("record must start offline and not busy: %+v", record)
	}
}

func TestAuthService_Register_Duplicate_ReturnsError(t *testing.T) {
	auth, _ := newTestAuth(t)
	ctx := context.Background()

	if err := auth.Register(ctx, "alice", "s3cret"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	err := auth.Register(ctx, "alice", "other")
	if !errors.Is(err, ErrDuplicateKey) {
		t.Errorf("expected ErrDuplicateKey, got %v", err)
	}
}

func TestAuthService_Login_MarksUserOnline(t *testing.T) {
	auth, store := newTestAuth(t)
	ctx := context.Background()

	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	auth.SetNowFunc(func() time.Time { return now })

	if err := auth.Register(ctx, "alice", "s3cret"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	token, err := auth.Login(ctx, "alice", "s3cret")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if token == "" {
		t.Fatal("login should return a session token")
	}

	record, _ := store.Get(ctx, "alice")
	if !record.Online {
		t.Error("user must be online after login")
	}
	if !record.LastHeartbeat.Equal(now) {
		t.Errorf("login must refresh the heartbeat, got %v", record.LastHeartbeat)
	}
}

func TestAuthService_Login_IssuesTokenWithUsernameClaim(t *testing.T) {
	auth, _ := newTestAuth(t)
	ctx := context.Background()

	if err := auth.Register(ctx, "alice", "s3cret"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	tokenString, err := auth.Login(ctx, "alice", "s3cret")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		return []byte("test-secret"), nil
	})
	if err != nil || !token.Valid {
		t.Fatalf("token should parse and validate: %v", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		t.Fatal("expected map claims")
	}
	if claims["username"] != "alice" {
		t.Errorf("expected username claim alice, got %v", claims["username"])
	}
}

func TestAuthService_Login_AfterRestart_RebuildsPresenceRecord(t *testing.T) {
	credentials := newFakeCredentialStore()
	ctx := context.Background()

	// Register against the first store, then simulate a restart: the
	// credentials survive, the presence state does not.
	before := NewAuthService(credentials, NewMemoryStore(), utils.NewLogger(), "test-secret", time.Hour)
	if err := before.Register(ctx, "alice", "s3cret"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	fresh := NewMemoryStore()
	after := NewAuthService(credentials, fresh, utils.NewLogger(), "test-secret", time.Hour)

	token, err := after.Login(ctx, "alice", "s3cret")
	if err != nil {
		t.Fatalf("login with valid credentials must succeed after a restart: %v", err)
	}
	if token == "" {
		t.Fatal("login should return a session token")
	}

	record, err := fresh.Get(ctx, "alice")
	if err != nil {
		t.Fatalf("presence record should be rebuilt on login: %v", err)
	}
	if !record.Online {
		t.Error("rebuilt record must be online after login")
	}
	if record.Busy {
		t.Error("rebuilt record must not be busy")
	}
}

func TestAuthService_Login_WrongPassword_FailsLikeUnknownUser(t *testing.T) {
	auth, store := newTestAuth(t)
	ctx := context.Background()

	if err := auth.Register(ctx, "alice", "s3cret"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Wrong password and unknown username must be indistinguishable.
	_, wrongPass := auth.Login(ctx, "alice", "nope")
	_, unknown := auth.Login(ctx, "mallory", "nope")

	if !errors.Is(wrongPass, ErrAuthenticationFailed) {
		t.Errorf("expected ErrAuthenticationFailed for wrong password, got %v", wrongPass)
	}
	if !errors.Is(unknown, ErrAuthenticationFailed) {
		t.Errorf("expected ErrAuthenticationFailed for unknown user, got %v", unknown)
	}

	record, _ := store.Get(ctx, "alice")
	if record.Online {
		t.Error("failed login must not mark the user online")
	}
}
