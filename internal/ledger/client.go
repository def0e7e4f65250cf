// Package ledger is the boundary to the remote EVM ledger: a narrow client
// interface over go-ethereum, a rate-limited wrapper for metered providers,
// and typed reads of the batch tracker contract.
package ledger

import (
	"context"
	"fmt"
	"math/big"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"golang.org/x/time/rate"
)

// Client captures the subset of ethclient used by this module.
type Client interface {
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
	SubscribeFilterLogs(ctx context.Context, q ethereum.FilterQuery, ch chan<- types.Log) (ethereum.Subscription, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

var _ Client = (*RPCClient)(nil)

// RPCClient is a thin wrapper over ethclient.Client that satisfies Client.
// Live subscriptions need a websocket or IPC endpoint.
type RPCClient struct {
	*ethclient.Client
}

// Dial connects to an EVM node.
func Dial(ctx context.Context, rawURL string) (*RPCClient, error) {
	c, err := ethclient.DialContext(ctx, rawURL)
	if err != nil {
		return nil, fmt.Errorf("dial ledger rpc: %w", err)
	}
	return &RPCClient{Client: c}, nil
}

// RateLimitedClient waits on a token bucket before every call.
type RateLimitedClient struct {
	next    Client
	limiter *rate.Limiter
}

// RateLimited wraps c so that at most rps calls per second are made, with
// bursts of up to burst. rps <= 0 disables limiting and returns c unchanged.
func RateLimited(c Client, rps float64, burst int) Client {
	if rps <= 0 {
		return c
	}
	if burst < 1 {
		burst = 1
	}
	return &RateLimitedClient{next: c, limiter: rate.NewLimiter(rate.Limit(rps), burst)}
}

func (c *RateLimitedClient) wait(ctx context.Context) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	return nil
}

func (c *RateLimitedClient) FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	return c.next.FilterLogs(ctx, q)
}

func (c *RateLimitedClient) SubscribeFilterLogs(ctx context.Context, q ethereum.FilterQuery, ch chan<- types.Log) (ethereum.Subscription, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	return c.next.SubscribeFilterLogs(ctx, q, ch)
}

func (c *RateLimitedClient) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	return c.next.HeaderByNumber(ctx, number)
}

func (c *RateLimitedClient) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	return c.next.CallContract(ctx, msg, blockNumber)
}
