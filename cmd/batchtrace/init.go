package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

var flagForce bool

func init() {
	initCmd.Flags().BoolVar(&flagForce, "force", false, "Overwrite existing files")
}

const sampleConfig = `version: 1

global:
  db_path: batchtrace.db

ledger:
  rpc_url: ${BATCHTRACE_RPC_URL}
  contract: "0x0000000000000000000000000000000000000000"
  # abi_path: ./batchtracker.abi.json
  rate_limit:
    rps: 0
    burst: 1

retry:
  max_retries: 3
  base_delay: 1s

sync:
  chunk_size: 2000

cache:
  entity:
    ttl: 60s
    max_size: 200
  live_event:
    ttl: 30s
    max_size: 500
  aggregate:
    ttl: 120s
    max_size: 100

events:
  history_size: 100
  queue_size: 256

# sinks:
#   - id: ops-slack
#     type: slack
#     webhook_url: ${SLACK_WEBHOOK_URL}
#     template: "{{.Kind}} batch {{.BatchID}} at block {{.Block}}"
#     match:
#       - kind in created,completed
`

const sampleEnv = `BATCHTRACE_RPC_URL=ws://127.0.0.1:8546
`

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Scaffold a sample config and .env",
	RunE: func(cmd *cobra.Command, args []string) error {
		envPath := filepath.Join(filepath.Dir(cfgPath), ".env")
		for path, body := range map[string]string{cfgPath: sampleConfig, envPath: sampleEnv} {
			if err := scaffold(path, body, flagForce); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
		}
		return nil
	},
}

func scaffold(path, body string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s exists (use --force to overwrite)", path)
		} else if !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("stat %s: %w", path, err)
		}
	}
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
