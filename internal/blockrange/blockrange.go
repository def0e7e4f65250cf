// Package blockrange splits historical block queries into bounded chunks and
// runs them one after another.
package blockrange

import (
	"errors"
	"fmt"
	"iter"
	"math"
	"math/big"
	"strconv"

	"github.com/devblac/batchtrace/internal/retry"
)

// Latest marks an open-ended range that runs to the chain head.
const Latest uint64 = math.MaxUint64

// DefaultChunkSize is used when a Config leaves ChunkSize at zero.
const DefaultChunkSize = 2000

// Range is an inclusive block interval. To may be Latest.
type Range struct {
	From uint64
	To   uint64
}

// IsOpen reports whether the range runs to the chain head.
func (r Range) IsOpen() bool { return r.To == Latest }

// FromBig returns From as a *big.Int.
func (r Range) FromBig() *big.Int { return new(big.Int).SetUint64(r.From) }

// ToBig returns To as a *big.Int, or nil for Latest as go-ethereum expects.
func (r Range) ToBig() *big.Int {
	if r.IsOpen() {
		return nil
	}
	return new(big.Int).SetUint64(r.To)
}

func (r Range) String() string {
	if r.IsOpen() {
		return fmt.Sprintf("%d-latest", r.From)
	}
	return fmt.Sprintf("%d-%d", r.From, r.To)
}

// ParseBlock parses a block number or the literal "latest".
func ParseBlock(s string) (uint64, error) {
	if s == "" || s == "latest" {
		return Latest, nil
	}
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse block %q: %w", s, err)
	}
	return n, nil
}

// Config describes a chunked scan of [From, To].
type Config struct {
	From      uint64
	To        uint64
	ChunkSize uint64

	// Retry wraps every chunk query. Nil means retry.DefaultPolicy.
	Retry *retry.Policy
}

var errInvertedRange = errors.New("from block is after to block")

// Validate rejects inverted concrete ranges.
func (c Config) Validate() error {
	if c.To != Latest && c.From > c.To {
		return fmt.Errorf("%w: %d > %d", errInvertedRange, c.From, c.To)
	}
	return nil
}

func (c Config) chunkSize() uint64 {
	if c.ChunkSize == 0 {
		return DefaultChunkSize
	}
	return c.ChunkSize
}

func (c Config) retryPolicy() retry.Policy {
	if c.Retry == nil {
		return retry.DefaultPolicy()
	}
	return *c.Retry
}

// GenerateBlockRanges lazily yields sub-ranges of at most ChunkSize blocks
// covering [From, To]. An open-ended config yields a single {From, Latest}
// range, since the head height is not known up front.
func GenerateBlockRanges(cfg Config) iter.Seq[Range] {
	return func(yield func(Range) bool) {
		if cfg.To == Latest {
			yield(Range{From: cfg.From, To: Latest})
			return
		}
		size := cfg.chunkSize()
		for start := cfg.From; start <= cfg.To; {
			end := cfg.To
			if cfg.To-start >= size {
				end = start + size - 1
			}
			if !yield(Range{From: start, To: end}) {
				return
			}
			if end == cfg.To {
				return
			}
			start = end + 1
		}
	}
}

// ChunkCount returns how many ranges GenerateBlockRanges yields for cfg.
func ChunkCount(cfg Config) int {
	if cfg.To == Latest {
		return 1
	}
	if cfg.From > cfg.To {
		return 0
	}
	size := cfg.chunkSize()
	span := cfg.To - cfg.From
	return int(span/size) + 1
}
