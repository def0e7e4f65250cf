// Package ledgertest provides an in-memory ledger.Client for tests.
package ledgertest

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"sync/atomic"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/event"

	"github.com/devblac/batchtrace/internal/ledger"
)

// GenesisTime is the timestamp of block 0; block n is n seconds later.
const GenesisTime uint64 = 1_700_000_000

// ContractAddress is the address fake logs are emitted from.
var ContractAddress = common.HexToAddress("0x00000000000000000000000000000000000b47c4")

var _ ledger.Client = (*Client)(nil)

// Client is a scriptable ledger.Client. Hooks left nil use the defaults
// described on each field.
type Client struct {
	// HeaderFunc answers HeaderByNumber. Default: a header stamped
	// GenesisTime+n, and the highest known log block for a nil number.
	HeaderFunc func(ctx context.Context, number *big.Int) (*types.Header, error)

	// FilterFunc answers FilterLogs. Default: the stored logs matching the
	// query address, first topic and block range.
	FilterFunc func(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)

	// CallFunc answers CallContract. Default: an error.
	CallFunc func(ctx context.Context, msg ethereum.CallMsg) ([]byte, error)

	// SubscribeErr, when set, fails SubscribeFilterLogs.
	SubscribeErr func() error

	HeaderCalls    atomic.Int64
	FilterCalls    atomic.Int64
	CallCalls      atomic.Int64
	SubscribeCalls atomic.Int64

	mu      sync.Mutex
	logs    []types.Log
	feeds   map[common.Hash]*event.Feed
	failers map[chan error]struct{}
}

// New returns an empty fake.
func New() *Client {
	return &Client{
		feeds:   make(map[common.Hash]*event.Feed),
		failers: make(map[chan error]struct{}),
	}
}

// AddLogs stores historical logs for FilterLogs.
func (c *Client) AddLogs(logs ...types.Log) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.logs = append(c.logs, logs...)
}

// Emit pushes a live log to every subscription on its first topic and
// returns how many subscriptions received it.
func (c *Client) Emit(lg types.Log) int {
	if len(lg.Topics) == 0 {
		return 0
	}
	return c.feed(lg.Topics[0]).Send(lg)
}

// FailSubscriptions makes every live subscription report err.
func (c *Client) FailSubscriptions(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for ch := range c.failers {
		select {
		case ch <- err:
		default:
		}
	}
}

func (c *Client) feed(topic common.Hash) *event.Feed {
	c.mu.Lock()
	defer c.mu.Unlock()
	f, ok := c.feeds[topic]
	if !ok {
		f = new(event.Feed)
		c.feeds[topic] = f
	}
	return f
}

func (c *Client) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	c.HeaderCalls.Add(1)
	if c.HeaderFunc != nil {
		return c.HeaderFunc(ctx, number)
	}
	if number == nil {
		c.mu.Lock()
		var head uint64
		for _, lg := range c.logs {
			if lg.BlockNumber > head {
				head = lg.BlockNumber
			}
		}
		c.mu.Unlock()
		number = new(big.Int).SetUint64(head)
	}
	return Header(number.Uint64()), nil
}

func (c *Client) FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	c.FilterCalls.Add(1)
	if c.FilterFunc != nil {
		return c.FilterFunc(ctx, q)
	}
	return c.Stored(q), nil
}

// Stored returns the stored logs matching the query address, first topic and
// block range. FilterFunc hooks can use it to fall back to the default.
func (c *Client) Stored(q ethereum.FilterQuery) []types.Log {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []types.Log
	for _, lg := range c.logs {
		if matches(q, lg) {
			out = append(out, lg)
		}
	}
	return out
}

func (c *Client) CallContract(ctx context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	c.CallCalls.Add(1)
	if c.CallFunc != nil {
		return c.CallFunc(ctx, msg)
	}
	return nil, errors.New("ledgertest: no CallFunc configured")
}

func (c *Client) SubscribeFilterLogs(ctx context.Context, q ethereum.FilterQuery, ch chan<- types.Log) (ethereum.Subscription, error) {
	c.SubscribeCalls.Add(1)
	if c.SubscribeErr != nil {
		if err := c.SubscribeErr(); err != nil {
			return nil, err
		}
	}
	if len(q.Topics) == 0 || len(q.Topics[0]) != 1 {
		return nil, fmt.Errorf("ledgertest: subscription needs exactly one event topic")
	}

	inner := c.feed(q.Topics[0][0]).Subscribe(ch)
	fail := make(chan error, 1)
	c.mu.Lock()
	c.failers[fail] = struct{}{}
	c.mu.Unlock()

	return event.NewSubscription(func(quit <-chan struct{}) error {
		defer func() {
			inner.Unsubscribe()
			c.mu.Lock()
			delete(c.failers, fail)
			c.mu.Unlock()
		}()
		select {
		case <-quit:
			return nil
		case err := <-fail:
			return err
		}
	}), nil
}

func matches(q ethereum.FilterQuery, lg types.Log) bool {
	if len(q.Addresses) > 0 {
		found := false
		for _, a := range q.Addresses {
			if a == lg.Address {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if q.FromBlock != nil && lg.BlockNumber < q.FromBlock.Uint64() {
		return false
	}
	if q.ToBlock != nil && lg.BlockNumber > q.ToBlock.Uint64() {
		return false
	}
	if len(q.Topics) > 0 && len(q.Topics[0]) > 0 {
		if len(lg.Topics) == 0 {
			return false
		}
		hit := false
		for _, t := range q.Topics[0] {
			if t == lg.Topics[0] {
				hit = true
				break
			}
		}
		if !hit {
			return false
		}
	}
	return true
}

// Header returns the canonical fake header for block n.
func Header(n uint64) *types.Header {
	return &types.Header{
		Number: new(big.Int).SetUint64(n),
		Time:   GenesisTime + n,
	}
}

// Log builds a log of the named event with positional args, the way the
// batch tracker contract would emit it: indexed args become topics, the rest
// are ABI-encoded into data.
func Log(a *abi.ABI, name string, block uint64, index uint, args ...any) types.Log {
	ev, ok := a.Events[name]
	if !ok {
		panic("ledgertest: unknown event " + name)
	}
	if len(args) != len(ev.Inputs) {
		panic(fmt.Sprintf("ledgertest: %s takes %d args, got %d", name, len(ev.Inputs), len(args)))
	}
	topics := []common.Hash{ev.ID}
	var data []any
	for i, in := range ev.Inputs {
		if !in.Indexed {
			data = append(data, args[i])
			continue
		}
		switch v := args[i].(type) {
		case *big.Int:
			topics = append(topics, common.BigToHash(v))
		case common.Address:
			topics = append(topics, common.BytesToHash(v.Bytes()))
		default:
			panic(fmt.Sprintf("ledgertest: unsupported indexed arg %T", v))
		}
	}
	packed, err := ev.Inputs.NonIndexed().Pack(data...)
	if err != nil {
		panic(fmt.Sprintf("ledgertest: pack %s: %v", name, err))
	}
	return types.Log{
		Address:     ContractAddress,
		Topics:      topics,
		Data:        packed,
		BlockNumber: block,
		TxHash:      crypto.Keccak256Hash([]byte(fmt.Sprintf("%s/%d/%d", name, block, index))),
		Index:       index,
	}
}

// PackResult ABI-encodes the outputs of method, for CallFunc answers.
func PackResult(a *abi.ABI, method string, values ...any) []byte {
	m, ok := a.Methods[method]
	if !ok {
		panic("ledgertest: unknown method " + method)
	}
	out, err := m.Outputs.Pack(values...)
	if err != nil {
		panic(fmt.Sprintf("ledgertest: pack %s result: %v", method, err))
	}
	return out
}

// MethodID returns the 4-byte selector of method.
func MethodID(a *abi.ABI, method string) []byte {
	return a.Methods[method].ID
}
