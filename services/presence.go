package services

import (
	"context"
	"sort"
	"time"

	"roster/presence-server/models"
	"roster/presence-server/utils"
)

// PresenceService implements the heartbeat and availability operations
// on top of a Store. It is the only path that turns a record online;
// the Sweeper is the only path that turns one offline.
type PresenceService struct {
	store  Store
	logger *utils.Logger
	ttl    time.Duration

	// now is swappable so tests can drive time explicitly.
	now func() time.Time
}

func NewPresenceService(store Store, logger *utils.Logger, ttl time.Duration) *PresenceService {
	return &PresenceService{
		store:  store,
		logger: logger,
		ttl:    ttl,
		now:    time.Now,
	}
}

// SetNowFunc overrides the clock. Intended for tests.
func (ps *PresenceService) SetNowFunc(now func() time.Time) {
	ps.now = now
}

// Heartbeat marks the user online and refreshes its liveness timestamp.
// Repeated heartbeats are idempotent: they only extend liveness.
func (ps *PresenceService) Heartbeat(ctx context.Context, username string) error {
	if err := ps.store.MarkOnline(ctx, username, ps.now()); err != nil {
		return err
	}
	ps.logger.Debug("Heartbeat received", "username", username)
	return nil
}

// SetBusy updates the user's busy flag. Deliberately permissive: it
// succeeds for offline users too and never touches the online flag or
// the heartbeat timestamp.
func (ps *PresenceService) SetBusy(ctx context.Context, username string, busy bool) error {
	if err := ps.store.SetBusy(ctx, username, busy); err != nil {
		return err
	}
	ps.logger.Debug("Busy flag updated", "username", username, "busy", busy)
	return nil
}

// Status returns a single user's presence with a freshness-checked
// IsOnline, so a stale record awaiting the next sweep already reads as
// offline.
func (ps *PresenceService) Status(ctx context.Context, username string) (models.StatusResponse, error) {
	record, err := ps.store.Get(ctx, username)
	if err != nil {
		return models.StatusResponse{}, err
	}

	return models.StatusResponse{
		Username:      record.Username,
		Online:        record.Online,
		Busy:          record.Busy,
		LastHeartbeat: record.LastHeartbeat,
		IsOnline:      ps.fresh(record, ps.now()),
	}, nil
}

// ListAvailable returns the users that are online, fresh and not busy.
// Freshness is re-derived from the heartbeat timestamp rather than
// trusted from the online flag, because up to one sweep interval may
// pass between actual expiry and the Sweeper clearing the flag. Results
// are sorted so output is deterministic; the store itself promises no
// order.
func (ps *PresenceService) ListAvailable(ctx context.Context) ([]string, error) {
	snapshot, err := ps.store.Snapshot(ctx)
	if err != nil {
		return nil, err
	}

	now := ps.now()
	available := make([]string, 0, len(snapshot))
	for _, record := range snapshot {
		if ps.fresh(record, now) && !record.Busy {
			available = append(available, record.Username)
		}
	}

	sort.Strings(available)
	return available, nil
}

func (ps *PresenceService) fresh(record models.PresenceRecord, now time.Time) bool {
	return record.Online && now.Sub(record.LastHeartbeat) <= ps.ttl
}
