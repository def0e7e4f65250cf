package ledger

import (
	"context"
	"fmt"
	"math/big"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// Batch is the on-chain state of one batch as returned by getBatch.
type Batch struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Creator   string    `json:"creator"`
	Completed bool      `json:"completed"`
	CreatedAt time.Time `json:"created_at"`
}

// Contract performs read calls against a deployed batch tracker.
type Contract struct {
	client  Client
	address common.Address
	abi     *abi.ABI
}

// NewContract binds the reads of a at address. A nil ABI uses DefaultABI.
func NewContract(client Client, address common.Address, a *abi.ABI) *Contract {
	if a == nil {
		a = DefaultABI()
	}
	return &Contract{client: client, address: address, abi: a}
}

// Address returns the contract address.
func (c *Contract) Address() common.Address { return c.address }

// ABI returns the bound ABI.
func (c *Contract) ABI() *abi.ABI { return c.abi }

// Client returns the accessor used for calls.
func (c *Contract) Client() Client { return c.client }

func (c *Contract) call(ctx context.Context, method string, args ...any) ([]any, error) {
	data, err := c.abi.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	out, err := c.client.CallContract(ctx, ethereum.CallMsg{To: &c.address, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}
	values, err := c.abi.Unpack(method, out)
	if err != nil {
		return nil, fmt.Errorf("contract %s: unpack result: %w", method, err)
	}
	return values, nil
}

// BatchCount returns the number of batches registered on the contract.
// Batch ids run from 1 to the count.
func (c *Contract) BatchCount(ctx context.Context) (uint64, error) {
	values, err := c.call(ctx, "batchCount")
	if err != nil {
		return 0, err
	}
	n, ok := values[0].(*big.Int)
	if !ok {
		return 0, fmt.Errorf("contract batchCount: unexpected result type %T", values[0])
	}
	return n.Uint64(), nil
}

// Batch reads one batch by id.
func (c *Contract) Batch(ctx context.Context, id *big.Int) (Batch, error) {
	values, err := c.call(ctx, "getBatch", id)
	if err != nil {
		return Batch{}, err
	}
	if len(values) != 5 {
		return Batch{}, fmt.Errorf("contract getBatch: expected 5 results, got %d", len(values))
	}
	bid, ok1 := values[0].(*big.Int)
	name, ok2 := values[1].(string)
	creator, ok3 := values[2].(common.Address)
	completed, ok4 := values[3].(bool)
	created, ok5 := values[4].(*big.Int)
	if !ok1 || !ok2 || !ok3 || !ok4 || !ok5 {
		return Batch{}, fmt.Errorf("contract getBatch: unexpected result types")
	}
	return Batch{
		ID:        bid.String(),
		Name:      name,
		Creator:   creator.Hex(),
		Completed: completed,
		CreatedAt: time.Unix(created.Int64(), 0).UTC(),
	}, nil
}
