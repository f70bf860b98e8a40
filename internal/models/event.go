package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// BlockchainEvent is one decoded contract log, mirrored off-chain.
// Records are created once per processed log and never mutated.
type BlockchainEvent struct {
	// ID is the idempotency key, derived from the log's natural identity
	// (transaction hash + log index) so redundant delivery deduplicates.
	ID string `json:"id"`

	// Chain context
	BlockNumber      uint64 `json:"block_number"`
	BlockHash        string `json:"block_hash"`
	TransactionHash  string `json:"transaction_hash"`
	TransactionIndex uint   `json:"transaction_index"`
	LogIndex         uint   `json:"log_index"`
	ContractAddress  string `json:"contract_address"`

	// Raw payload as returned by the node
	RawData string   `json:"raw_data"`
	Topics  []string `json:"topics"`

	// Decoded payload
	DecodedArgs    map[string]interface{} `json:"decoded_args,omitempty"`
	EventSignature string                 `json:"event_signature"`
	EventName      string                 `json:"event_name"`
	DecodedTopic   string                 `json:"decoded_topic"`

	ObservedAt time.Time `json:"observed_at"`
}

// EnsureID fills in the idempotency key if the event does not carry one.
// A random UUID is the fallback for events that somehow lack a transaction
// hash.
func (e *BlockchainEvent) EnsureID() {
	if e.ID != "" {
		return
	}
	if e.TransactionHash != "" {
		e.ID = fmt.Sprintf("%s:%d", e.TransactionHash, e.LogIndex)
		return
	}
	e.ID = uuid.NewString()
}
