package services

import (
	"context"
	"errors"
	"time"

	"roster/presence-server/models"
)

var (
	// ErrDuplicateKey is returned when registering a username that
	// already has a presence record.
	ErrDuplicateKey = errors.New("username already registered")

	// ErrNotFound is returned for operations on a username that has no
	// presence record.
	ErrNotFound = errors.New("user not found")

	// ErrAuthenticationFailed is returned for a bad password or an
	// unknown username. The two cases are deliberately not
	// distinguished.
	ErrAuthenticationFailed = errors.New("invalid credentials")
)

// Store is the single source of truth for presence records. Every
// operation is atomic per record: concurrent callers never observe a
// record with only one of a multi-field update applied.
type Store interface {
	// Create inserts a new offline record. Exactly one of any set of
	// concurrent Create calls for the same username succeeds; the rest
	// fail with ErrDuplicateKey.
	Create(ctx context.Context, username string, now time.Time) error

	// MarkOnline sets the online flag and refreshes the heartbeat
	// timestamp. It does not touch the busy flag.
	MarkOnline(ctx context.Context, username string, now time.Time) error

	// SetBusy sets the busy flag. It has no effect on the online flag
	// or the heartbeat timestamp, and succeeds even for an offline
	// record.
	SetBusy(ctx context.Context, username string, busy bool) error

	// Get returns a copy of a single record.
	Get(ctx context.Context, username string) (models.PresenceRecord, error)

	// Snapshot returns a point-in-time copy of all records. The copy is
	// detached: later store mutations do not affect it.
	Snapshot(ctx context.Context) ([]models.PresenceRecord, error)

	// EvictStale demotes every record that is online but whose last
	// heartbeat is older than ttl, clearing the online and busy flags
	// together. Returns the number of records evicted. A failure on one
	// record does not stop eviction of the others.
	EvictStale(ctx context.Context, now time.Time, ttl time.Duration) (int, error)
}

// CredentialStore persists account credentials. It is an external
// collaborator of the presence core; the gorm-backed implementation
// lives in the db package.
type CredentialStore interface {
	// CreateUser inserts a new account, failing with ErrDuplicateKey if
	// the username is taken.
	CreateUser(ctx context.Context, user *models.User) error

	// FindByUsername returns the account for a username, or ErrNotFound.
	FindByUsername(ctx context.Context, username string) (*models.User, error)
}
