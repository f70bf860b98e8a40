package chain

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"chainmirror/internal/metrics"
	"chainmirror/internal/retry"
)

// Fetcher performs bounded log queries for a single contract, retrying
// transient failures according to the configured strategy. After the attempt
// bound is exhausted the error propagates and is fatal to the current cycle.
type Fetcher struct {
	client   Client
	strategy retry.Strategy
	address  common.Address
}

// NewFetcher creates a Fetcher for the given contract address.
func NewFetcher(client Client, strategy retry.Strategy, address common.Address) *Fetcher {
	return &Fetcher{
		client:   client,
		strategy: strategy,
		address:  address,
	}
}

// FetchLogs queries the node for all logs emitted by the contract in the
// inclusive block range [fromBlock, toBlock].
func (f *Fetcher) FetchLogs(ctx context.Context, fromBlock, toBlock uint64) ([]types.Log, error) {
	query := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(fromBlock),
		ToBlock:   new(big.Int).SetUint64(toBlock),
		Addresses: []common.Address{f.address},
	}

	var logs []types.Log
	err := f.strategy.Execute(ctx, func() error {
		var fetchErr error
		logs, fetchErr = f.client.FilterLogs(ctx, query)
		if fetchErr != nil {
			metrics.FetchFailures.Inc()
		}
		return fetchErr
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch logs for blocks %d-%d: %w", fromBlock, toBlock, err)
	}

	slog.Debug("Logs fetched",
		"from_block", fromBlock,
		"to_block", toBlock,
		"count", len(logs),
	)

	return logs, nil
}

// HeadBlock returns the current chain head, retried like a fetch.
func (f *Fetcher) HeadBlock(ctx context.Context) (uint64, error) {
	var head uint64
	err := f.strategy.Execute(ctx, func() error {
		var headErr error
		head, headErr = f.client.HeadBlock(ctx)
		return headErr
	})
	if err != nil {
		return 0, fmt.Errorf("failed to get chain head: %w", err)
	}
	return head, nil
}
