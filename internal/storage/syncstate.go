package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"chainmirror/internal/models"
)

// SyncStateStore persists the singleton sync checkpoint in the key-value
// backend. All mutation flows through version-checked compare-and-swap so
// concurrent writers cannot silently lose updates.
type SyncStateStore struct {
	kv *RedisKV
}

// NewSyncStateStore wraps the key-value backend.
func NewSyncStateStore(kv *RedisKV) *SyncStateStore {
	return &SyncStateStore{kv: kv}
}

// Initialize seeds the default checkpoint exactly once. Safe to call on
// every cold start.
func (s *SyncStateStore) Initialize(ctx context.Context) error {
	seeded, err := s.kv.SeedCheckpoint(ctx, models.DefaultCheckpoint())
	if err != nil {
		return fmt.Errorf("failed to initialize sync state: %w", err)
	}
	if seeded {
		slog.Info("Seeded default sync checkpoint", "last_processed_block", 0, "status", models.StatusSynced)
	}
	return nil
}

// GetState returns the current checkpoint, creating and persisting the
// default record on first access.
func (s *SyncStateStore) GetState(ctx context.Context) (*models.SyncCheckpoint, error) {
	cp, err := s.kv.GetCheckpoint(ctx)
	if err != nil {
		return nil, err
	}
	if cp != nil {
		return cp, nil
	}

	// First access: seed the default and re-read so concurrent callers
	// converge on one record.
	if _, err := s.kv.SeedCheckpoint(ctx, models.DefaultCheckpoint()); err != nil {
		return nil, err
	}

	cp, err = s.kv.GetCheckpoint(ctx)
	if err != nil {
		return nil, err
	}
	if cp == nil {
		return nil, errors.New("checkpoint missing after seeding")
	}

	return cp, nil
}

// UpdateState merges the partial update into the current record, stamps the
// timestamp and persists through compare-and-swap. A lost race is retried
// once against the fresh record before surfacing ErrVersionConflict.
func (s *SyncStateStore) UpdateState(ctx context.Context, update models.CheckpointUpdate) (*models.SyncCheckpoint, error) {
	for attempt := 0; attempt < 2; attempt++ {
		current, err := s.GetState(ctx)
		if err != nil {
			return nil, err
		}

		next := update.Apply(*current)
		err = s.kv.CompareAndSwapCheckpoint(ctx, &next, current.Version)
		if err == nil {
			return &next, nil
		}
		if !errors.Is(err, ErrVersionConflict) {
			return nil, err
		}

		slog.Warn("Checkpoint update lost a version race, retrying", "attempt", attempt+1)
	}

	return nil, ErrVersionConflict
}

// GetLastProcessedBlockNumber defaults to 0 on a missing or unreadable
// checkpoint rather than erroring.
func (s *SyncStateStore) GetLastProcessedBlockNumber(ctx context.Context) uint64 {
	cp, err := s.kv.GetCheckpoint(ctx)
	if err != nil || cp == nil {
		return 0
	}
	return cp.LastProcessedBlock
}
