package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"chainmirror/internal/models"
)

// casCheckpointScript swaps the checkpoint only when the stored version
// matches the expected one. Expected version 0 means "no record yet".
var casCheckpointScript = redis.NewScript(`
local cur = redis.call('GET', KEYS[1])
if cur then
  local decoded = cjson.decode(cur)
  if tonumber(decoded['version']) ~= tonumber(ARGV[1]) then
    return 0
  end
elseif tonumber(ARGV[1]) ~= 0 then
  return 0
end
redis.call('SET', KEYS[1], ARGV[2])
return 1
`)

// releaseLeaseScript deletes the lease only when held with the given token.
var releaseLeaseScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
  return redis.call('DEL', KEYS[1])
end
return 0
`)

// RedisKV is the key-value backend: a fixed hash for events partitioned
// under one logical namespace, plus a fixed singleton key for the sync
// checkpoint and a TTL lease key.
type RedisKV struct {
	client    *redis.Client
	namespace string
}

// NewRedisKV connects to Redis and verifies the connection.
func NewRedisKV(ctx context.Context, addr, password string, db int, namespace string) (*RedisKV, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return &RedisKV{
		client:    client,
		namespace: namespace,
	}, nil
}

func (k *RedisKV) eventsKey() string     { return k.namespace + ":events" }
func (k *RedisKV) checkpointKey() string { return k.namespace + ":sync_state" }
func (k *RedisKV) leaseKey() string      { return k.namespace + ":sync_lease" }

// PutEvent stores the event under its id in the events hash. The write is
// idempotent: an existing id is left untouched and reported as not inserted.
func (k *RedisKV) PutEvent(ctx context.Context, event *models.BlockchainEvent) (bool, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return false, fmt.Errorf("failed to marshal event: %w", err)
	}

	inserted, err := k.client.HSetNX(ctx, k.eventsKey(), event.ID, payload).Result()
	if err != nil {
		return false, fmt.Errorf("failed to store event %s: %w", event.ID, err)
	}

	return inserted, nil
}

// GetEvent retrieves one event by id. A missing id returns (nil, nil).
func (k *RedisKV) GetEvent(ctx context.Context, id string) (*models.BlockchainEvent, error) {
	payload, err := k.client.HGet(ctx, k.eventsKey(), id).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get event %s: %w", id, err)
	}

	var event models.BlockchainEvent
	if err := json.Unmarshal([]byte(payload), &event); err != nil {
		return nil, fmt.Errorf("failed to unmarshal event %s: %w", id, err)
	}

	return &event, nil
}

// GetCheckpoint returns the stored checkpoint, or (nil, nil) when none has
// been seeded yet.
func (k *RedisKV) GetCheckpoint(ctx context.Context) (*models.SyncCheckpoint, error) {
	payload, err := k.client.Get(ctx, k.checkpointKey()).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get checkpoint: %w", err)
	}

	var cp models.SyncCheckpoint
	if err := json.Unmarshal([]byte(payload), &cp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal checkpoint: %w", err)
	}

	return &cp, nil
}

// SeedCheckpoint writes the checkpoint only if none exists yet.
func (k *RedisKV) SeedCheckpoint(ctx context.Context, cp *models.SyncCheckpoint) (bool, error) {
	payload, err := json.Marshal(cp)
	if err != nil {
		return false, fmt.Errorf("failed to marshal checkpoint: %w", err)
	}

	seeded, err := k.client.SetNX(ctx, k.checkpointKey(), payload, 0).Result()
	if err != nil {
		return false, fmt.Errorf("failed to seed checkpoint: %w", err)
	}

	return seeded, nil
}

// CompareAndSwapCheckpoint persists cp only if the stored version still
// equals expectedVersion. A lost race returns ErrVersionConflict.
func (k *RedisKV) CompareAndSwapCheckpoint(ctx context.Context, cp *models.SyncCheckpoint, expectedVersion uint64) error {
	payload, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint: %w", err)
	}

	res, err := casCheckpointScript.Run(ctx, k.client,
		[]string{k.checkpointKey()},
		expectedVersion, payload,
	).Int()
	if err != nil {
		return fmt.Errorf("failed to swap checkpoint: %w", err)
	}
	if res == 0 {
		return ErrVersionConflict
	}

	return nil
}

// Ping checks the Redis connection.
func (k *RedisKV) Ping(ctx context.Context) error {
	return k.client.Ping(ctx).Err()
}

// Close closes the Redis client.
func (k *RedisKV) Close() error {
	return k.client.Close()
}

// RedisLease is a TTL lease over the sync cycle, so overlapping triggers
// cannot race on the checkpoint.
type RedisLease struct {
	kv    *RedisKV
	ttl   time.Duration
	token string
}

// NewRedisLease creates a lease with the given TTL.
func NewRedisLease(kv *RedisKV, ttl time.Duration) *RedisLease {
	return &RedisLease{
		kv:    kv,
		ttl:   ttl,
		token: uuid.NewString(),
	}
}

// Acquire takes the lease if it is free. Returns false when another holder
// has it; the TTL bounds how long a crashed holder can keep it.
func (l *RedisLease) Acquire(ctx context.Context) (bool, error) {
	ok, err := l.kv.client.SetNX(ctx, l.kv.leaseKey(), l.token, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire sync lease: %w", err)
	}
	return ok, nil
}

// Release frees the lease if this holder still owns it. Releasing a lease
// that expired and was re-acquired by someone else is a no-op.
func (l *RedisLease) Release(ctx context.Context) error {
	if err := releaseLeaseScript.Run(ctx, l.kv.client, []string{l.kv.leaseKey()}, l.token).Err(); err != nil {
		return fmt.Errorf("failed to release sync lease: %w", err)
	}
	return nil
}
