package models

import "time"

// SyncStatus is the lifecycle state of the mirror.
type SyncStatus string

const (
	// StatusSyncing means a cycle is in flight, or the mirror is
	// intentionally behind the chain head with more work remaining.
	StatusSyncing SyncStatus = "SYNCING"

	// StatusSynced means the mirror is caught up to the chain head.
	StatusSynced SyncStatus = "SYNCED"

	// StatusError means the last cycle failed; LastProcessedBlock is
	// stale but internally consistent.
	StatusError SyncStatus = "ERROR"
)

// SyncCheckpoint is the singleton resumption record for the mirror.
// It is created once with defaults (block 0, SYNCED), mutated only through
// compare-and-swap updates, and never deleted.
type SyncCheckpoint struct {
	LastProcessedBlock        uint64     `json:"last_processed_block"`
	LastProcessedBlockHash    string     `json:"last_processed_block_hash"`
	LastSyncedEventName       string     `json:"last_synced_event_name"`
	LastSyncedTransactionHash string     `json:"last_synced_transaction_hash"`
	SyncStatus                SyncStatus `json:"sync_status"`
	TotalEventsProcessed      uint64     `json:"total_events_processed"`
	ErrorMessage              string     `json:"error_message,omitempty"`
	LastProcessedTimestamp    time.Time  `json:"last_processed_timestamp"`

	// Version is the optimistic-concurrency token. Every successful
	// update increments it; writers must present the version they read.
	Version uint64 `json:"version"`
}

// DefaultCheckpoint returns the record seeded on first access.
func DefaultCheckpoint() *SyncCheckpoint {
	return &SyncCheckpoint{
		LastProcessedBlock:     0,
		SyncStatus:             StatusSynced,
		LastProcessedTimestamp: time.Now().UTC(),
		Version:                1,
	}
}

// CheckpointUpdate is a partial checkpoint mutation. Nil fields are left
// untouched by the merge; a non-nil empty ErrorMessage clears the message.
type CheckpointUpdate struct {
	LastProcessedBlock        *uint64
	LastProcessedBlockHash    *string
	LastSyncedEventName       *string
	LastSyncedTransactionHash *string
	SyncStatus                *SyncStatus
	TotalEventsProcessed      *uint64
	ErrorMessage              *string
}

// Apply merges the update into a copy of cp, stamps the timestamp and bumps
// the version. The receiver value is not modified.
func (u CheckpointUpdate) Apply(cp SyncCheckpoint) SyncCheckpoint {
	if u.LastProcessedBlock != nil {
		cp.LastProcessedBlock = *u.LastProcessedBlock
	}
	if u.LastProcessedBlockHash != nil {
		cp.LastProcessedBlockHash = *u.LastProcessedBlockHash
	}
	if u.LastSyncedEventName != nil {
		cp.LastSyncedEventName = *u.LastSyncedEventName
	}
	if u.LastSyncedTransactionHash != nil {
		cp.LastSyncedTransactionHash = *u.LastSyncedTransactionHash
	}
	if u.SyncStatus != nil {
		cp.SyncStatus = *u.SyncStatus
	}
	if u.TotalEventsProcessed != nil {
		cp.TotalEventsProcessed = *u.TotalEventsProcessed
	}
	if u.ErrorMessage != nil {
		cp.ErrorMessage = *u.ErrorMessage
	}
	cp.LastProcessedTimestamp = time.Now().UTC()
	cp.Version++
	return cp
}

// Uint64Ptr, StringPtr and StatusPtr are small helpers for building updates.
func Uint64Ptr(v uint64) *uint64         { return &v }
func StringPtr(v string) *string         { return &v }
func StatusPtr(v SyncStatus) *SyncStatus { return &v }
