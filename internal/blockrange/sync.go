package blockrange

import (
	"context"
	"fmt"

	"github.com/devblac/batchtrace/internal/retry"
)

// QueryFunc fetches the results for one range.
type QueryFunc[T any] func(ctx context.Context, r Range) ([]T, error)

// ProgressFunc is called after each completed chunk.
type ProgressFunc func(completed, total int)

// PaginateQuery runs query over every range of cfg, strictly one chunk at a
// time, and concatenates the results. Each chunk goes through the retry
// engine. The first chunk that still fails aborts the whole call and the
// results gathered so far are discarded.
func PaginateQuery[T any](ctx context.Context, query QueryFunc[T], cfg Config, onProgress ProgressFunc) ([]T, error) {
	res := Sync(ctx, query, cfg, onProgress)
	if res.Err != nil {
		return nil, res.Err
	}
	return res.Results, nil
}

// Result is the outcome of Sync. On failure Results and Completed hold what
// finished before the failing chunk, so a caller can resume after the last
// completed range.
type Result[T any] struct {
	Results   []T
	Completed []Range
	Err       error
}

// Resume returns the first block not covered by Completed, and false if
// nothing completed.
func (r Result[T]) Resume() (uint64, bool) {
	if len(r.Completed) == 0 {
		return 0, false
	}
	last := r.Completed[len(r.Completed)-1]
	if last.IsOpen() {
		return Latest, true
	}
	return last.To + 1, true
}

// Sync is PaginateQuery that keeps partial progress on failure.
func Sync[T any](ctx context.Context, query QueryFunc[T], cfg Config, onProgress ProgressFunc) Result[T] {
	var res Result[T]
	if err := cfg.Validate(); err != nil {
		res.Err = err
		return res
	}

	policy := cfg.retryPolicy()
	total := ChunkCount(cfg)
	done := 0
	for r := range GenerateBlockRanges(cfg) {
		if err := ctx.Err(); err != nil {
			res.Err = err
			return res
		}
		items, err := retry.Do(ctx, policy, func(ctx context.Context) ([]T, error) {
			return query(ctx, r)
		})
		if err != nil {
			res.Err = fmt.Errorf("blocks %s: %w", r, err)
			return res
		}
		res.Results = append(res.Results, items...)
		res.Completed = append(res.Completed, r)
		done++
		if onProgress != nil {
			onProgress(done, total)
		}
	}
	return res
}
