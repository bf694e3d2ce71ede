package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"roster/presence-server/models"
	"roster/presence-server/utils"
)

const (
	presenceKeyPrefix = "presence:"
	memberSetKey      = "presence_members"
)

// RedisStore is a Store backed by Redis, for deployments where several
// transport instances share one presence view. Records are JSON values
// under presence:<username>; a set tracks all known usernames so
// Snapshot and EvictStale can enumerate them. Keys carry no Redis TTL:
// staleness is decided from the stored heartbeat timestamp, and only
// eviction turns the flags off, so an offline record keeps existing.
type RedisStore struct {
	client *redis.Client
	logger *utils.Logger
}

func NewRedisStore(client *redis.Client, logger *utils.Logger) *RedisStore {
	return &RedisStore{
		client: client,
		logger: logger,
	}
}

// NewRedisClient connects to Redis and verifies the connection.
func NewRedisClient(redisURL string, db int) (*redis.Client, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	opt.DB = db

	client := redis.NewClient(opt)

	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return client, nil
}

func (rs *RedisStore) Create(ctx context.Context, username string, now time.Time) error {
	record := models.PresenceRecord{
		Username:      username,
		Online:        false,
		Busy:          false,
		LastHeartbeat: now,
	}

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal presence record: %w", err)
	}

	// SETNX arbitrates concurrent creates: exactly one caller wins.
	// Both writes go in one MULTI/EXEC block so a record can never
	// exist outside the member set, where Snapshot and EvictStale
	// would miss it. Re-adding the member on a lost race is harmless.
	var created *redis.BoolCmd
	_, err = rs.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		created = pipe.SetNX(ctx, presenceKeyPrefix+username, data, 0)
		pipe.SAdd(ctx, memberSetKey, username)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to create presence record: %w", err)
	}
	if !created.Val() {
		return ErrDuplicateKey
	}
	return nil
}

func (rs *RedisStore) MarkOnline(ctx context.Context, username string, now time.Time) error {
	return rs.update(ctx, username, func(record *models.PresenceRecord) {
		record.Online = true
		record.LastHeartbeat = now
	})
}

func (rs *RedisStore) SetBusy(ctx context.Context, username string, busy bool) error {
	return rs.update(ctx, username, func(record *models.PresenceRecord) {
		record.Busy = busy
	})
}

func (rs *RedisStore) Get(ctx context.Context, username string) (models.PresenceRecord, error) {
	data, err := rs.client.Get(ctx, presenceKeyPrefix+username).Result()
	if err != nil {
		if err == redis.Nil {
			return models.PresenceRecord{}, ErrNotFound
		}
		return models.PresenceRecord{}, fmt.Errorf("failed to get presence record: %w", err)
	}

	var record models.PresenceRecord
	if err := json.Unmarshal([]byte(data), &record); err != nil {
		return models.PresenceRecord{}, fmt.Errorf("failed to unmarshal presence record: %w", err)
	}
	return record, nil
}

func (rs *RedisStore) Snapshot(ctx context.Context) ([]models.PresenceRecord, error) {
	usernames, err := rs.client.SMembers(ctx, memberSetKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list presence members: %w", err)
	}

	if len(usernames) == 0 {
		return []models.PresenceRecord{}, nil
	}

	// Fetch all records in one pipeline
	pipe := rs.client.Pipeline()
	cmds := make([]*redis.StringCmd, len(usernames))
	for i, username := range usernames {
		cmds[i] = pipe.Get(ctx, presenceKeyPrefix+username)
	}

	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, fmt.Errorf("failed to fetch presence records: %w", err)
	}

	snapshot := make([]models.PresenceRecord, 0, len(usernames))
	for i, cmd := range cmds {
		data, err := cmd.Result()
		if err != nil {
			if err == redis.Nil {
				continue
			}
			rs.logger.Error("Failed to read presence record", "username", usernames[i], "error", err)
			continue
		}

		var record models.PresenceRecord
		if err := json.Unmarshal([]byte(data), &record); err != nil {
			rs.logger.Error("Failed to unmarshal presence record", "username", usernames[i], "error", err)
			continue
		}
		snapshot = append(snapshot, record)
	}
	return snapshot, nil
}

func (rs *RedisStore) EvictStale(ctx context.Context, now time.Time, ttl time.Duration) (int, error) {
	usernames, err := rs.client.SMembers(ctx, memberSetKey).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to list presence members: %w", err)
	}

	evicted := 0
	for _, username := range usernames {
		demoted, err := rs.evictOne(ctx, username, now, ttl)
		if err != nil {
			// One record's failure must not stop the pass.
			rs.logger.Error("Failed to evict stale record", "username", username, "error", err)
			continue
		}
		if demoted {
			evicted++
		}
	}
	return evicted, nil
}

// evictOne demotes a single record if it is stale, under a WATCH
// transaction so the online and busy flags flip together or not at all.
func (rs *RedisStore) evictOne(ctx context.Context, username string, now time.Time, ttl time.Duration) (bool, error) {
	demoted := false
	err := rs.client.Watch(ctx, func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, presenceKeyPrefix+username).Result()
		if err != nil {
			if err == redis.Nil {
				return nil
			}
			return err
		}

		var record models.PresenceRecord
		if err := json.Unmarshal([]byte(data), &record); err != nil {
			return err
		}

		if !record.Online || now.Sub(record.LastHeartbeat) <= ttl {
			return nil
		}

		record.Online = false
		record.Busy = false

		updated, err := json.Marshal(record)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, presenceKeyPrefix+username, updated, 0)
			return nil
		})
		if err == nil {
			demoted = true
		}
		return err
	}, presenceKeyPrefix+username)
	return demoted, err
}

// update applies fn to a record under a WATCH transaction, retrying on
// contention so each mutation is atomic per record.
func (rs *RedisStore) update(ctx context.Context, username string, fn func(*models.PresenceRecord)) error {
	key := presenceKeyPrefix + username

	for {
		err := rs.client.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Result()
			if err != nil {
				if err == redis.Nil {
					return ErrNotFound
				}
				return err
			}

			var record models.PresenceRecord
			if err := json.Unmarshal([]byte(data), &record); err != nil {
				return fmt.Errorf("failed to unmarshal presence record: %w", err)
			}

			fn(&record)

			updated, err := json.Marshal(record)
			if err != nil {
				return fmt.Errorf("failed to marshal presence record: %w", err)
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, updated, 0)
				return nil
			})
			return err
		}, key)

		if err == redis.TxFailedErr {
			continue
		}
		return err
	}
}
