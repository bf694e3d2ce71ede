package services

import (
	"context"
	"sync"
	"time"

	"roster/presence-server/models"
)

// MemoryStore keeps presence records in a mutex-guarded map. It is the
// default backend: presence is ephemeral state and survives neither
// restarts nor needs to.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*models.PresenceRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]*models.PresenceRecord),
	}
}

func (ms *MemoryStore) Create(ctx context.Context, username string, now time.Time) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	if _, exists := ms.records[username]; exists {
		return ErrDuplicateKey
	}

	ms.records[username] = &models.PresenceRecord{
		Username:      username,
		Online:        false,
		Busy:          false,
		LastHeartbeat: now,
	}
	return nil
}

func (ms *MemoryStore) MarkOnline(ctx context.Context, username string, now time.Time) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	record, exists := ms.records[username]
	if !exists {
		return ErrNotFound
	}

	record.Online = true
	record.LastHeartbeat = now
	return nil
}

func (ms *MemoryStore) SetBusy(ctx context.Context, username string, busy bool) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	record, exists := ms.records[username]
	if !exists {
		return ErrNotFound
	}

	record.Busy = busy
	return nil
}

func (ms *MemoryStore) Get(ctx context.Context, username string) (models.PresenceRecord, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	record, exists := ms.records[username]
	if !exists {
		return models.PresenceRecord{}, ErrNotFound
	}

	return *record, nil
}

func (ms *MemoryStore) Snapshot(ctx context.Context) ([]models.PresenceRecord, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	snapshot := make([]models.PresenceRecord, 0, len(ms.records))
	for _, record := range ms.records {
		snapshot = append(snapshot, *record)
	}
	return snapshot, nil
}

func (ms *MemoryStore) EvictStale(ctx context.Context, now time.Time, ttl time.Duration) (int, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	evicted := 0
	for _, record := range ms.records {
		if record.Online && now.Sub(record.LastHeartbeat) > ttl {
			// Both flags flip under the same lock hold: no reader ever
			// sees an offline-but-busy record.
			record.Online = false
			record.Busy = false
			evicted++
		}
	}
	return evicted, nil
}
