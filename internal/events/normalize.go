package events

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// decoder turns raw logs of the six kinds into positional argument lists.
type decoder struct {
	events [len(kindEvents)]abi.Event
}

func newDecoder(a *abi.ABI) (*decoder, error) {
	d := &decoder{}
	for _, k := range Kinds {
		ev, ok := a.Events[k.EventName()]
		if !ok {
			return nil, fmt.Errorf("abi has no %s event", k.EventName())
		}
		d.events[k] = ev
	}
	return d, nil
}

func (d *decoder) topic(k Kind) common.Hash { return d.events[k].ID }

// args decodes lg in declaration order of the event inputs.
func (d *decoder) args(k Kind, lg types.Log) ([]any, error) {
	ev := d.events[k]
	if len(lg.Topics) == 0 || lg.Topics[0] != ev.ID {
		return nil, fmt.Errorf("log is not a %s event", ev.Name)
	}
	named := map[string]any{}
	indexed, nonIndexed := splitIndexed(ev.Inputs)
	if err := abi.ParseTopicsIntoMap(named, indexed, lg.Topics[1:]); err != nil {
		return nil, fmt.Errorf("parse %s topics: %w", ev.Name, err)
	}
	if err := nonIndexed.UnpackIntoMap(named, lg.Data); err != nil {
		return nil, fmt.Errorf("unpack %s data: %w", ev.Name, err)
	}
	out := make([]any, len(ev.Inputs))
	for i, in := range ev.Inputs {
		out[i] = named[in.Name]
	}
	return out, nil
}

func splitIndexed(args abi.Arguments) (indexed abi.Arguments, nonIndexed abi.Arguments) {
	for _, a := range args {
		if a.Indexed {
			indexed = append(indexed, a)
		} else {
			nonIndexed = append(nonIndexed, a)
		}
	}
	return indexed, nonIndexed
}

// Normalize builds the typed event for kind k from positional args and log
// metadata. args[0] is the batch id; the actor address is the last arg.
func Normalize(k Kind, args []any, lg types.Log, ts *time.Time) (Event, error) {
	want := 2
	if k == KindCreated {
		want = 3
	}
	if len(args) != want {
		return nil, fmt.Errorf("%s: expected %d args, got %d", k, want, len(args))
	}
	id, ok := args[0].(*big.Int)
	if !ok || id == nil {
		return nil, fmt.Errorf("%s: batch id has type %T", k, args[0])
	}
	actor, ok := args[want-1].(common.Address)
	if !ok {
		return nil, fmt.Errorf("%s: actor has type %T", k, args[want-1])
	}

	m := Meta{
		SubjectID:       id.String(),
		BlockNumber:     lg.BlockNumber,
		TransactionHash: lg.TxHash.Hex(),
		LogIndex:        lg.Index,
		Timestamp:       ts,
	}
	who := actor.Hex()

	switch k {
	case KindCreated:
		name, ok := args[1].(string)
		if !ok {
			return nil, fmt.Errorf("%s: batch name has type %T", k, args[1])
		}
		return BatchCreated{Meta: m, BatchName: name, Creator: who}, nil
	case KindCompleted:
		return BatchCompleted{Meta: m, CompletedBy: who}, nil
	case KindCollector:
		return CollectorAdded{Meta: m, Collector: who}, nil
	case KindTester:
		return TesterAdded{Meta: m, Tester: who}, nil
	case KindProcessor:
		return ProcessorAdded{Meta: m, Processor: who}, nil
	case KindManufacturer:
		return ManufacturerAdded{Meta: m, Manufacturer: who}, nil
	}
	return nil, fmt.Errorf("unknown event kind %d", int(k))
}
