// Package syncer drives the repeatable sync cycle: read checkpoint, plan a
// block range, fetch logs, decode and store them, advance the checkpoint.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"

	"chainmirror/internal/decoder"
	"chainmirror/internal/metrics"
	"chainmirror/internal/models"
	"chainmirror/internal/planner"
	"chainmirror/internal/storage"
)

// LogSource provides the chain head and bounded log queries. Retry behavior
// lives behind this interface; a returned error means attempts are exhausted
// and the failure is fatal to the current cycle.
type LogSource interface {
	HeadBlock(ctx context.Context) (uint64, error)
	FetchLogs(ctx context.Context, fromBlock, toBlock uint64) ([]types.Log, error)
}

// LogDecoder maps one raw log to a typed event.
type LogDecoder interface {
	Decode(lg types.Log) (*decoder.DecodedEvent, error)
}

// Syncer is the sole arbiter of fatal vs. recoverable failures in a cycle.
type Syncer struct {
	source     LogSource
	decoder    LogDecoder
	events     storage.EventRepository
	state      storage.StateRepository
	lease      storage.Lease
	maxBatch   uint64
	cycleDelay time.Duration
}

// New creates a Syncer.
func New(
	source LogSource,
	dec LogDecoder,
	events storage.EventRepository,
	state storage.StateRepository,
	lease storage.Lease,
	maxBatch uint64,
	cycleDelay time.Duration,
) *Syncer {
	return &Syncer{
		source:     source,
		decoder:    dec,
		events:     events,
		state:      state,
		lease:      lease,
		maxBatch:   maxBatch,
		cycleDelay: cycleDelay,
	}
}

// RunCycle executes one bounded sync cycle and returns the updated
// checkpoint. A cycle that cannot take the sync lease returns
// storage.ErrLeaseHeld without touching the checkpoint. Fatal failures set
// the checkpoint to ERROR without advancing it and propagate to the caller;
// the next cycle resumes from the last committed checkpoint.
func (s *Syncer) RunCycle(ctx context.Context) (*models.SyncCheckpoint, error) {
	held, err := s.lease.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire sync lease: %w", err)
	}
	if !held {
		return nil, storage.ErrLeaseHeld
	}
	defer func() {
		if err := s.lease.Release(ctx); err != nil {
			slog.Warn("Failed to release sync lease", "error", err)
		}
	}()

	start := time.Now()
	defer func() {
		metrics.CycleDuration.Observe(time.Since(start).Seconds())
	}()

	// Mark the cycle in flight. Best effort: a failed mark is not worth
	// aborting over.
	cp, err := s.state.UpdateState(ctx, models.CheckpointUpdate{
		SyncStatus: models.StatusPtr(models.StatusSyncing),
	})
	if err != nil {
		slog.Warn("Failed to mark checkpoint SYNCING", "error", err)
		if cp, err = s.state.GetState(ctx); err != nil {
			return nil, fmt.Errorf("failed to read checkpoint: %w", err)
		}
	}
	lastProcessed := cp.LastProcessedBlock

	head, err := s.source.HeadBlock(ctx)
	if err != nil {
		s.markError(ctx, err)
		return nil, err
	}
	metrics.ChainHead.Set(float64(head))

	// Already caught up: record the no-op cycle and return. The
	// checkpoint never moves backwards, even if the reported head is
	// momentarily behind it.
	if lastProcessed >= head {
		updated, err := s.state.UpdateState(ctx, models.CheckpointUpdate{
			LastProcessedBlock: models.Uint64Ptr(maxUint64(lastProcessed, head)),
			SyncStatus:         models.StatusPtr(models.StatusSynced),
			ErrorMessage:       models.StringPtr(""),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to record no-op cycle: %w", err)
		}
		s.observeCheckpoint(updated, head)
		metrics.SyncCycles.WithLabelValues("noop").Inc()
		slog.Debug("Already synced with chain head", "head", head)
		return updated, nil
	}

	rng, err := planner.PlanRange(lastProcessed, head, s.maxBatch)
	if err != nil {
		// Unreachable given the head check above, kept for safety.
		return cp, nil
	}

	slog.Info("Starting sync cycle",
		"from_block", rng.From,
		"to_block", rng.To,
		"head", head,
	)

	logs, err := s.source.FetchLogs(ctx, rng.From, rng.To)
	if err != nil {
		s.markError(ctx, err)
		metrics.SyncCycles.WithLabelValues("error").Inc()
		return nil, err
	}

	if len(logs) == 0 {
		updated, err := s.state.UpdateState(ctx, models.CheckpointUpdate{
			LastProcessedBlock: models.Uint64Ptr(rng.To),
			SyncStatus:         models.StatusPtr(statusFor(rng.To, head)),
			ErrorMessage:       models.StringPtr(""),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to advance checkpoint over empty range: %w", err)
		}
		s.observeCheckpoint(updated, head)
		metrics.SyncCycles.WithLabelValues("empty").Inc()
		slog.Info("No logs in range, checkpoint advanced",
			"to_block", rng.To,
			"status", updated.SyncStatus,
		)
		return updated, nil
	}

	// Decode and store sequentially, in node order. A decode failure
	// skips that log only; a storage failure is fatal to the cycle.
	var (
		stored    uint64
		skipped   int
		highest   = lastProcessed
		lastEvent *models.BlockchainEvent
	)
	for _, lg := range logs {
		decoded, err := s.decoder.Decode(lg)
		if err != nil {
			metrics.DecodeFailures.Inc()
			skipped++
			slog.Warn("Skipping undecodable log",
				"block", lg.BlockNumber,
				"tx_hash", lg.TxHash.Hex(),
				"log_index", lg.Index,
				"error", err,
			)
			continue
		}

		event := buildEvent(lg, decoded)
		inserted, err := s.events.Store(ctx, event)
		if err != nil {
			storeErr := fmt.Errorf("failed to store event %s: %w", event.ID, err)
			s.markError(ctx, storeErr)
			metrics.SyncCycles.WithLabelValues("error").Inc()
			return nil, storeErr
		}
		if inserted {
			stored++
		}
		if lg.BlockNumber > highest {
			highest = lg.BlockNumber
		}
		lastEvent = event
	}

	finalBlock := rng.To
	if lastEvent != nil && highest > finalBlock {
		finalBlock = highest
	}

	status := statusFor(finalBlock, head)
	update := models.CheckpointUpdate{
		LastProcessedBlock:   models.Uint64Ptr(finalBlock),
		SyncStatus:           models.StatusPtr(status),
		TotalEventsProcessed: models.Uint64Ptr(cp.TotalEventsProcessed + stored),
		ErrorMessage:         models.StringPtr(""),
	}
	if lastEvent != nil {
		update.LastProcessedBlockHash = models.StringPtr(lastEvent.BlockHash)
		update.LastSyncedEventName = models.StringPtr(lastEvent.EventName)
		update.LastSyncedTransactionHash = models.StringPtr(lastEvent.TransactionHash)
	}

	updated, err := s.state.UpdateState(ctx, update)
	if err != nil {
		return nil, fmt.Errorf("failed to advance checkpoint: %w", err)
	}

	s.observeCheckpoint(updated, head)
	metrics.SyncCycles.WithLabelValues("processed").Inc()
	slog.Info("Sync cycle completed",
		"from_block", rng.From,
		"to_block", finalBlock,
		"events_stored", stored,
		"logs_skipped", skipped,
		"status", status,
	)

	return updated, nil
}

// PerformFullSync seeds the checkpoint just before startBlock and runs
// cycles until the mirror is caught up. An ERROR status halts the loop and
// the failure propagates; the caller decides when to re-invoke.
func (s *Syncer) PerformFullSync(ctx context.Context, startBlock uint64) error {
	seed := uint64(0)
	if startBlock > 0 {
		seed = startBlock - 1
	}

	if _, err := s.state.UpdateState(ctx, models.CheckpointUpdate{
		LastProcessedBlock: models.Uint64Ptr(seed),
		SyncStatus:         models.StatusPtr(models.StatusSyncing),
		ErrorMessage:       models.StringPtr(""),
	}); err != nil {
		return fmt.Errorf("failed to seed checkpoint for full sync: %w", err)
	}

	slog.Info("Full sync started", "start_block", startBlock)

	for {
		cp, err := s.RunCycle(ctx)
		if err != nil {
			return err
		}
		if cp.SyncStatus != models.StatusSyncing {
			slog.Info("Full sync finished",
				"last_processed_block", cp.LastProcessedBlock,
				"total_events", cp.TotalEventsProcessed,
			)
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.cycleDelay):
		}
	}
}

// ResetSyncState is the administrative override for recovery after manual
// intervention. It bypasses the normal cycle and clears any error.
func (s *Syncer) ResetSyncState(ctx context.Context, blockNumber uint64) (*models.SyncCheckpoint, error) {
	updated, err := s.state.UpdateState(ctx, models.CheckpointUpdate{
		LastProcessedBlock: models.Uint64Ptr(blockNumber),
		SyncStatus:         models.StatusPtr(models.StatusSynced),
		ErrorMessage:       models.StringPtr(""),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to reset sync state: %w", err)
	}

	slog.Info("Sync state reset", "last_processed_block", blockNumber)
	metrics.CheckpointBlock.Set(float64(blockNumber))
	return updated, nil
}

// markError records a fatal cycle failure without advancing the checkpoint.
func (s *Syncer) markError(ctx context.Context, cause error) {
	if _, err := s.state.UpdateState(ctx, models.CheckpointUpdate{
		SyncStatus:   models.StatusPtr(models.StatusError),
		ErrorMessage: models.StringPtr(cause.Error()),
	}); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("Failed to record sync error", "error", err, "cause", cause)
	}
}

func (s *Syncer) observeCheckpoint(cp *models.SyncCheckpoint, head uint64) {
	metrics.CheckpointBlock.Set(float64(cp.LastProcessedBlock))
	if head >= cp.LastProcessedBlock {
		metrics.SyncLag.Set(float64(head - cp.LastProcessedBlock))
	} else {
		metrics.SyncLag.Set(0)
	}
}

// buildEvent maps a raw log plus its decoded view into the mirrored record.
func buildEvent(lg types.Log, decoded *decoder.DecodedEvent) *models.BlockchainEvent {
	topics := make([]string, len(lg.Topics))
	for i, topic := range lg.Topics {
		topics[i] = topic.Hex()
	}

	event := &models.BlockchainEvent{
		BlockNumber:      lg.BlockNumber,
		BlockHash:        lg.BlockHash.Hex(),
		TransactionHash:  lg.TxHash.Hex(),
		TransactionIndex: lg.TxIndex,
		LogIndex:         lg.Index,
		ContractAddress:  lg.Address.Hex(),
		RawData:          hexutil.Encode(lg.Data),
		Topics:           topics,
		DecodedArgs:      decoded.Args,
		EventSignature:   decoded.Signature,
		EventName:        decoded.Name,
		DecodedTopic:     decoded.Topic,
		ObservedAt:       time.Now().UTC(),
	}
	event.EnsureID()
	return event
}

func statusFor(finalBlock, head uint64) models.SyncStatus {
	if finalBlock >= head {
		return models.StatusSynced
	}
	return models.StatusSyncing
}

func maxUint64(a, b uint64) uint64 {
	if a > b {
		return a
	}
	return b
}
