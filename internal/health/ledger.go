package health

import (
	"context"
	"fmt"

	"github.com/devblac/batchtrace/internal/ledger"
)

// LedgerPing returns a check that fetches the head header from c.
func LedgerPing(c ledger.Client) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		if _, err := c.HeaderByNumber(ctx, nil); err != nil {
			return fmt.Errorf("ledger head: %w", err)
		}
		return nil
	}
}
