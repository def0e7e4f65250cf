package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/devblac/batchtrace/internal/config"
	"github.com/devblac/batchtrace/internal/fault"
	"github.com/devblac/batchtrace/internal/ledger"
	"github.com/devblac/batchtrace/internal/logging"
)

const defaultPingTimeout = 8 * time.Second

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate config and ping the ledger endpoint",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()

		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("config invalid: %w", err)
		}
		fmt.Fprintf(out, "config OK (version %d)\n", cfg.Version)

		a, err := ledger.LoadABI(cfg.Ledger.ABIPath)
		if err != nil {
			return fmt.Errorf("abi invalid: %w", err)
		}
		fmt.Fprintf(out, "- abi: %d events OK\n", len(a.Events))

		ctx, cancel := context.WithTimeout(cmd.Context(), defaultPingTimeout)
		defer cancel()

		log := logging.New()

		rpc, err := ledger.Dial(ctx, cfg.Ledger.RPCURL)
		if err != nil {
			return reportLedgerError(out, log, "ledger", err)
		}
		defer rpc.Close()

		chainID, err := rpc.ChainID(ctx)
		if err != nil {
			return reportLedgerError(out, log, "ledger", err)
		}
		fmt.Fprintf(out, "- ledger: chainId %s OK\n", chainID)

		count, err := ledger.NewContract(rpc, cfg.Ledger.ContractAddress(), a).BatchCount(ctx)
		if err != nil {
			return reportLedgerError(out, log, "contract "+cfg.Ledger.Contract, err)
		}
		fmt.Fprintf(out, "- contract %s: %d batches OK\n", cfg.Ledger.Contract, count)

		fmt.Fprintln(out, "validate: success")
		return nil
	},
}

// reportLedgerError prints the classified message for subject. The raw cause
// only goes to the debug log.
func reportLedgerError(out io.Writer, log *slog.Logger, subject string, err error) error {
	fe := fault.Classify(err)
	fmt.Fprintf(out, "- %s: ERROR %s\n", subject, fault.UserMessage(fe))
	log.Debug("validate failed", "subject", subject, "code", string(fe.Code), "error", err)
	return fmt.Errorf("validate: %s failed (%s)", subject, fe.Code)
}
