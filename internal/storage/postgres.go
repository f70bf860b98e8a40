package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"chainmirror/internal/models"
)

// eventColumns is the shared column list for event queries.
const eventColumns = `
	id, block_number, block_hash, transaction_hash, transaction_index,
	log_index, contract_address, raw_data, topics, decoded_args,
	event_signature, event_name, decoded_topic, observed_at
`

// PostgresStore is the relational backend: one row per event, block number
// stored as text and cast to integer for range filtering and ordering.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a connection pool and verifies connectivity.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

// InitSchema creates the events table and its indexes. Safe to call on
// every cold start.
func (s *PostgresStore) InitSchema(ctx context.Context) error {
	ddl := `
		CREATE TABLE IF NOT EXISTS blockchain_events (
			id TEXT PRIMARY KEY,
			block_number TEXT NOT NULL,
			block_hash TEXT NOT NULL DEFAULT '',
			transaction_hash TEXT NOT NULL,
			transaction_index BIGINT NOT NULL DEFAULT 0,
			log_index BIGINT NOT NULL DEFAULT 0,
			contract_address TEXT NOT NULL DEFAULT '',
			raw_data TEXT NOT NULL DEFAULT '',
			topics TEXT[] NOT NULL DEFAULT '{}',
			decoded_args JSONB,
			event_signature TEXT NOT NULL DEFAULT '',
			event_name TEXT NOT NULL DEFAULT '',
			decoded_topic TEXT NOT NULL DEFAULT '',
			observed_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);

		CREATE UNIQUE INDEX IF NOT EXISTS blockchain_events_tx_log_idx
			ON blockchain_events (transaction_hash, log_index);

		CREATE INDEX IF NOT EXISTS blockchain_events_name_idx
			ON blockchain_events (event_name);

		CREATE INDEX IF NOT EXISTS blockchain_events_block_idx
			ON blockchain_events ((CAST(block_number AS BIGINT)));
	`

	if _, err := s.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("failed to create events schema: %w", err)
	}

	return nil
}

// InsertEvent writes one event row. The unique (transaction_hash, log_index)
// index makes redundant delivery a no-op; the boolean reports whether a new
// row was created.
func (s *PostgresStore) InsertEvent(ctx context.Context, event *models.BlockchainEvent) (bool, error) {
	argsJSON, err := json.Marshal(event.DecodedArgs)
	if err != nil {
		return false, fmt.Errorf("failed to marshal decoded_args: %w", err)
	}

	query := `
		INSERT INTO blockchain_events (
			id, block_number, block_hash, transaction_hash, transaction_index,
			log_index, contract_address, raw_data, topics, decoded_args,
			event_signature, event_name, decoded_topic, observed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT DO NOTHING
	`

	tag, err := s.pool.Exec(ctx, query,
		event.ID,
		strconv.FormatUint(event.BlockNumber, 10),
		event.BlockHash,
		event.TransactionHash,
		event.TransactionIndex,
		event.LogIndex,
		event.ContractAddress,
		event.RawData,
		event.Topics,
		argsJSON,
		event.EventSignature,
		event.EventName,
		event.DecodedTopic,
		event.ObservedAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert event %s: %w", event.ID, err)
	}

	return tag.RowsAffected() > 0, nil
}

// ByEventName lists the most recent events with the given name.
func (s *PostgresStore) ByEventName(ctx context.Context, name string, limit int) ([]models.BlockchainEvent, error) {
	query := `
		SELECT ` + eventColumns + `
		FROM blockchain_events
		WHERE event_name = $1
		ORDER BY CAST(block_number AS BIGINT) DESC, log_index DESC
		LIMIT $2
	`

	rows, err := s.pool.Query(ctx, query, name, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query events by name: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// ByBlockRange lists events in the inclusive block range, in chain order.
func (s *PostgresStore) ByBlockRange(ctx context.Context, from, to uint64, limit int) ([]models.BlockchainEvent, error) {
	query := `
		SELECT ` + eventColumns + `
		FROM blockchain_events
		WHERE CAST(block_number AS BIGINT) BETWEEN $1 AND $2
		ORDER BY CAST(block_number AS BIGINT) ASC, log_index ASC
		LIMIT $3
	`

	rows, err := s.pool.Query(ctx, query, from, to, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query events by block range: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// ByTransactionHash lists all events emitted by one transaction.
func (s *PostgresStore) ByTransactionHash(ctx context.Context, hash string) ([]models.BlockchainEvent, error) {
	query := `
		SELECT ` + eventColumns + `
		FROM blockchain_events
		WHERE transaction_hash = $1
		ORDER BY log_index ASC
	`

	rows, err := s.pool.Query(ctx, query, hash)
	if err != nil {
		return nil, fmt.Errorf("failed to query events by transaction: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// Latest lists the most recently mirrored events.
func (s *PostgresStore) Latest(ctx context.Context, limit int) ([]models.BlockchainEvent, error) {
	query := `
		SELECT ` + eventColumns + `
		FROM blockchain_events
		ORDER BY CAST(block_number AS BIGINT) DESC, log_index DESC
		LIMIT $1
	`

	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query latest events: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

func scanEvents(rows pgx.Rows) ([]models.BlockchainEvent, error) {
	var events []models.BlockchainEvent

	for rows.Next() {
		var event models.BlockchainEvent
		var blockNumber string
		var argsJSON []byte

		err := rows.Scan(
			&event.ID,
			&blockNumber,
			&event.BlockHash,
			&event.TransactionHash,
			&event.TransactionIndex,
			&event.LogIndex,
			&event.ContractAddress,
			&event.RawData,
			&event.Topics,
			&argsJSON,
			&event.EventSignature,
			&event.EventName,
			&event.DecodedTopic,
			&event.ObservedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}

		if parsed, err := strconv.ParseUint(blockNumber, 10, 64); err == nil {
			event.BlockNumber = parsed
		} else {
			slog.Warn("Unparseable block number in event row", "id", event.ID, "block_number", blockNumber)
		}

		if len(argsJSON) > 0 {
			if err := json.Unmarshal(argsJSON, &event.DecodedArgs); err != nil {
				slog.Warn("Failed to unmarshal decoded args", "id", event.ID, "error", err)
			}
		}

		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating events: %w", err)
	}

	return events, nil
}

// Ping checks if the database connection is alive.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close closes the database connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}
