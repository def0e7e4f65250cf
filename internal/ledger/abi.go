package ledger

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

//go:embed contracts/batchtracker.abi.json
var batchTrackerABI []byte

// Contract event names.
const (
	EventBatchCreated      = "BatchCreated"
	EventBatchCompleted    = "BatchCompleted"
	EventCollectorAdded    = "CollectorAdded"
	EventTesterAdded       = "TesterAdded"
	EventProcessorAdded    = "ProcessorAdded"
	EventManufacturerAdded = "ManufacturerAdded"
)

var requiredEvents = []string{
	EventBatchCreated,
	EventBatchCompleted,
	EventCollectorAdded,
	EventTesterAdded,
	EventProcessorAdded,
	EventManufacturerAdded,
}

var requiredMethods = []string{"getBatch", "batchCount"}

// DefaultABI returns the embedded batch tracker ABI.
func DefaultABI() *abi.ABI {
	a, err := parseABI(batchTrackerABI)
	if err != nil {
		panic(fmt.Sprintf("embedded abi: %v", err))
	}
	return a
}

// LoadABI reads an ABI JSON file. An empty path returns the embedded ABI.
// The file must declare every event and read method the client relies on.
func LoadABI(path string) (*abi.ABI, error) {
	if path == "" {
		return DefaultABI(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read abi %s: %w", path, err)
	}
	a, err := parseABI(data)
	if err != nil {
		return nil, fmt.Errorf("parse abi %s: %w", path, err)
	}
	return a, nil
}

func parseABI(data []byte) (*abi.ABI, error) {
	a, err := abi.JSON(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	for _, name := range requiredEvents {
		if _, ok := a.Events[name]; !ok {
			return nil, fmt.Errorf("missing event %s", name)
		}
	}
	for _, name := range requiredMethods {
		if _, ok := a.Methods[name]; !ok {
			return nil, fmt.Errorf("missing method %s", name)
		}
	}
	return &a, nil
}
