package storage

import (
	"context"
	"errors"

	"chainmirror/internal/models"
)

// ErrVersionConflict is returned when a checkpoint compare-and-swap loses
// against a concurrent writer.
var ErrVersionConflict = errors.New("checkpoint version conflict")

// ErrLeaseHeld is returned when the sync lease is held by another holder.
var ErrLeaseHeld = errors.New("sync lease held by another holder")

// EventRepository is the query and write surface over mirrored events.
type EventRepository interface {
	// Store persists the event to both backends. The boolean reports
	// whether a new record was created; redundant delivery of the same
	// logical event returns false without error.
	Store(ctx context.Context, event *models.BlockchainEvent) (bool, error)

	ByEventName(ctx context.Context, name string, limit int) ([]models.BlockchainEvent, error)
	ByBlockRange(ctx context.Context, from, to uint64, limit int) ([]models.BlockchainEvent, error)
	ByTransactionHash(ctx context.Context, hash string) ([]models.BlockchainEvent, error)
	Latest(ctx context.Context, limit int) ([]models.BlockchainEvent, error)
	LatestWithParsedArgs(ctx context.Context, limit int) ([]models.BlockchainEvent, error)
}

// StateRepository is the durable checkpoint surface.
type StateRepository interface {
	// GetState returns the checkpoint, creating and persisting the
	// default record on first access.
	GetState(ctx context.Context) (*models.SyncCheckpoint, error)

	// UpdateState merges the partial update into the current record,
	// stamps the timestamp and persists through compare-and-swap.
	UpdateState(ctx context.Context, update models.CheckpointUpdate) (*models.SyncCheckpoint, error)

	// GetLastProcessedBlockNumber defaults to 0 on a missing or
	// unreadable checkpoint rather than erroring.
	GetLastProcessedBlockNumber(ctx context.Context) uint64
}

// Lease guards against overlapping sync cycles. The TTL bounds how long a
// crashed holder can block progress.
type Lease interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}
