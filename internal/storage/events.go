package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"chainmirror/internal/metrics"
	"chainmirror/internal/models"
)

// DualEventStore writes each event sequentially to the key-value backend and
// the relational backend. Both writes are idempotent on the event's natural
// key, so a crash between the two writes converges once the range is
// re-processed. There is no two-phase commit.
type DualEventStore struct {
	kv *RedisKV
	pg *PostgresStore
}

// NewDualEventStore composes the two backends.
func NewDualEventStore(kv *RedisKV, pg *PostgresStore) *DualEventStore {
	return &DualEventStore{kv: kv, pg: pg}
}

// Store persists the event. The key-value write happens first, then the
// relational write; either failure propagates to the caller. The relational
// backend is authoritative for the inserted/duplicate report.
func (s *DualEventStore) Store(ctx context.Context, event *models.BlockchainEvent) (bool, error) {
	event.EnsureID()
	if event.ObservedAt.IsZero() {
		event.ObservedAt = time.Now().UTC()
	}

	if _, err := s.kv.PutEvent(ctx, event); err != nil {
		return false, fmt.Errorf("key-value write failed: %w", err)
	}

	inserted, err := s.pg.InsertEvent(ctx, event)
	if err != nil {
		return false, fmt.Errorf("relational write failed: %w", err)
	}

	if inserted {
		metrics.EventsStored.WithLabelValues(event.EventName).Inc()
	}

	return inserted, nil
}

// ByEventName delegates to the relational backend.
func (s *DualEventStore) ByEventName(ctx context.Context, name string, limit int) ([]models.BlockchainEvent, error) {
	return s.pg.ByEventName(ctx, name, limit)
}

// ByBlockRange delegates to the relational backend.
func (s *DualEventStore) ByBlockRange(ctx context.Context, from, to uint64, limit int) ([]models.BlockchainEvent, error) {
	return s.pg.ByBlockRange(ctx, from, to, limit)
}

// ByTransactionHash delegates to the relational backend.
func (s *DualEventStore) ByTransactionHash(ctx context.Context, hash string) ([]models.BlockchainEvent, error) {
	return s.pg.ByTransactionHash(ctx, hash)
}

// Latest delegates to the relational backend.
func (s *DualEventStore) Latest(ctx context.Context, limit int) ([]models.BlockchainEvent, error) {
	return s.pg.Latest(ctx, limit)
}

// LatestWithParsedArgs returns the latest events with string-encoded
// sub-fields re-parsed into structured values. Values that fail to parse
// pass through unparsed.
func (s *DualEventStore) LatestWithParsedArgs(ctx context.Context, limit int) ([]models.BlockchainEvent, error) {
	events, err := s.pg.Latest(ctx, limit)
	if err != nil {
		return nil, err
	}

	for i := range events {
		events[i].DecodedArgs = reparseArgs(events[i].DecodedArgs)
	}

	return events, nil
}

// reparseArgs attempts to decode string values that look like embedded JSON.
func reparseArgs(args map[string]interface{}) map[string]interface{} {
	if len(args) == 0 {
		return args
	}

	out := make(map[string]interface{}, len(args))
	for name, value := range args {
		str, ok := value.(string)
		if !ok || !looksLikeJSON(str) {
			out[name] = value
			continue
		}

		var parsed interface{}
		if err := json.Unmarshal([]byte(str), &parsed); err != nil {
			out[name] = value
			continue
		}
		out[name] = parsed
	}

	return out
}

func looksLikeJSON(s string) bool {
	trimmed := strings.TrimSpace(s)
	return strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[")
}
