// Package chain wraps the Ethereum JSON-RPC client behind the two calls the
// mirror needs: the current head block and bounded log queries.
package chain

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
)

// Client is the minimal RPC surface consumed by the sync pipeline.
type Client interface {
	// HeadBlock returns the current chain head block number.
	HeadBlock(ctx context.Context) (uint64, error)

	// FilterLogs runs one bounded log query against the node.
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)

	Close()
}

// RPCClient implements Client over go-ethereum's ethclient.
type RPCClient struct {
	eth *ethclient.Client
}

// Dial connects to the given JSON-RPC endpoint.
func Dial(ctx context.Context, rawurl string) (*RPCClient, error) {
	eth, err := ethclient.DialContext(ctx, rawurl)
	if err != nil {
		return nil, fmt.Errorf("failed to dial rpc endpoint: %w", err)
	}
	return &RPCClient{eth: eth}, nil
}

// HeadBlock returns the current block number from the node.
func (c *RPCClient) HeadBlock(ctx context.Context) (uint64, error) {
	head, err := c.eth.BlockNumber(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to get chain head: %w", err)
	}
	return head, nil
}

// FilterLogs forwards the query to the node.
func (c *RPCClient) FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	logs, err := c.eth.FilterLogs(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("failed to filter logs: %w", err)
	}
	return logs, nil
}

// Close releases the underlying RPC connection.
func (c *RPCClient) Close() {
	c.eth.Close()
}
