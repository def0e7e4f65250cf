package events

import (
	"fmt"
	"time"

	"github.com/devblac/batchtrace/internal/ledger"
)

// Kind is one of the six contract events the pipeline understands.
type Kind int

// Declaration order is significant: GetAllEvents breaks block-number ties by it.
const (
	KindCreated Kind = iota
	KindCompleted
	KindCollector
	KindTester
	KindProcessor
	KindManufacturer
)

// Kinds lists every kind in declaration order.
var Kinds = []Kind{KindCreated, KindCompleted, KindCollector, KindTester, KindProcessor, KindManufacturer}

var kindNames = [...]string{"created", "completed", "collector", "tester", "processor", "manufacturer"}

var kindEvents = [...]string{
	ledger.EventBatchCreated,
	ledger.EventBatchCompleted,
	ledger.EventCollectorAdded,
	ledger.EventTesterAdded,
	ledger.EventProcessorAdded,
	ledger.EventManufacturerAdded,
}

// Valid reports whether k is one of the six kinds.
func (k Kind) Valid() bool { return k >= KindCreated && k <= KindManufacturer }

func (k Kind) String() string {
	if !k.Valid() {
		return fmt.Sprintf("kind(%d)", int(k))
	}
	return kindNames[k]
}

// EventName is the contract event name of k.
func (k Kind) EventName() string {
	if !k.Valid() {
		return ""
	}
	return kindEvents[k]
}

// ParseKind accepts a kind name ("tester") or contract event name ("TesterAdded").
func ParseKind(s string) (Kind, error) {
	for _, k := range Kinds {
		if s == k.String() || s == k.EventName() {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown event kind %q", s)
}

// Meta holds the fields every normalized event shares.
type Meta struct {
	SubjectID       string     `json:"subject_id"`
	BlockNumber     uint64     `json:"block_number"`
	TransactionHash string     `json:"transaction_hash"`
	LogIndex        uint       `json:"log_index"`
	Timestamp       *time.Time `json:"timestamp,omitempty"`
}

// Base returns the shared fields.
func (m Meta) Base() Meta { return m }

func (Meta) sealed() {}

// Event is a normalized contract event. The set of implementations is
// closed: BatchCreated, BatchCompleted, CollectorAdded, TesterAdded,
// ProcessorAdded and ManufacturerAdded.
//
// Timestamp is nil when the block lookup failed.
type Event interface {
	Kind() Kind
	// Actor is the address that triggered the event.
	Actor() string
	Base() Meta
	sealed()
}

type BatchCreated struct {
	Meta
	BatchName string `json:"batch_name"`
	Creator   string `json:"creator"`
}

type BatchCompleted struct {
	Meta
	CompletedBy string `json:"completed_by"`
}

type CollectorAdded struct {
	Meta
	Collector string `json:"collector"`
}

type TesterAdded struct {
	Meta
	Tester string `json:"tester"`
}

type ProcessorAdded struct {
	Meta
	Processor string `json:"processor"`
}

type ManufacturerAdded struct {
	Meta
	Manufacturer string `json:"manufacturer"`
}

func (BatchCreated) Kind() Kind      { return KindCreated }
func (BatchCompleted) Kind() Kind    { return KindCompleted }
func (CollectorAdded) Kind() Kind    { return KindCollector }
func (TesterAdded) Kind() Kind       { return KindTester }
func (ProcessorAdded) Kind() Kind    { return KindProcessor }
func (ManufacturerAdded) Kind() Kind { return KindManufacturer }

func (e BatchCreated) Actor() string      { return e.Creator }
func (e BatchCompleted) Actor() string    { return e.CompletedBy }
func (e CollectorAdded) Actor() string    { return e.Collector }
func (e TesterAdded) Actor() string       { return e.Tester }
func (e ProcessorAdded) Actor() string    { return e.Processor }
func (e ManufacturerAdded) Actor() string { return e.Manufacturer }

// ForSubject returns the events whose subject is id, keeping order.
func ForSubject(evs []Event, id string) []Event {
	var out []Event
	for _, e := range evs {
		if e.Base().SubjectID == id {
			out = append(out, e)
		}
	}
	return out
}
