// Package events subscribes to and queries the batch tracker's contract
// events and normalizes them into typed records.
//
// Every live subscription owns one ordered queue drained by a single worker
// goroutine. The worker enriches each log with its block timestamp and then
// invokes the handler, so a handler sees events of its kind in arrival order
// and never runs concurrently with itself. Kinds are independent: a slow
// enrichment on one subscription does not hold back another.
package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sort"
	"sync"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"golang.org/x/sync/errgroup"

	"github.com/devblac/batchtrace/internal/blockrange"
	"github.com/devblac/batchtrace/internal/ledger"
	"github.com/devblac/batchtrace/internal/retry"
)

const (
	DefaultQueueSize   = 256
	DefaultEnrichLimit = 8
)

// Handler receives normalized events of one kind.
type Handler func(Event)

// Listener owns the live subscriptions on one contract.
type Listener struct {
	client      ledger.Client
	address     common.Address
	dec         *decoder
	retry       retry.Policy
	log         *slog.Logger
	queueSize   int
	enrichLimit int

	mu   sync.Mutex
	subs map[*subscription]struct{}
}

// Option configures a Listener.
type Option func(*Listener)

// WithLogger sets the logger; the default is slog.Default.
func WithLogger(l *slog.Logger) Option {
	return func(ls *Listener) {
		if l != nil {
			ls.log = l
		}
	}
}

// WithRetry sets the policy applied to every remote call.
func WithRetry(p retry.Policy) Option {
	return func(ls *Listener) { ls.retry = p }
}

// WithQueueSize bounds each subscription's pending log queue.
func WithQueueSize(n int) Option {
	return func(ls *Listener) {
		if n > 0 {
			ls.queueSize = n
		}
	}
}

// WithEnrichLimit bounds concurrent timestamp lookups in historical queries.
func WithEnrichLimit(n int) Option {
	return func(ls *Listener) {
		if n > 0 {
			ls.enrichLimit = n
		}
	}
}

// NewListener binds a listener to the contract c.
func NewListener(c *ledger.Contract, opts ...Option) (*Listener, error) {
	dec, err := newDecoder(c.ABI())
	if err != nil {
		return nil, err
	}
	l := &Listener{
		client:      c.Client(),
		address:     c.Address(),
		dec:         dec,
		retry:       retry.DefaultPolicy(),
		log:         slog.Default(),
		queueSize:   DefaultQueueSize,
		enrichLimit: DefaultEnrichLimit,
		subs:        make(map[*subscription]struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.log = l.log.With("component", "events")
	return l, nil
}

// Subscribe starts delivering live events of kind to handler. The returned
// function stops delivery: once it returns, queued and in-flight events are
// dropped and handler is never invoked again. It must not be called from
// inside handler. Cancelling ctx also ends the subscription.
func (l *Listener) Subscribe(ctx context.Context, kind Kind, handler Handler) (func(), error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("subscribe: unknown event kind %d", int(kind))
	}
	if handler == nil {
		return nil, errors.New("subscribe: nil handler")
	}
	subCtx, cancel := context.WithCancel(ctx)
	s := &subscription{
		l:       l,
		kind:    kind,
		handler: handler,
		logs:    make(chan types.Log, l.queueSize),
		ctx:     subCtx,
		cancel:  cancel,
		done:    make(chan struct{}),
		log:     l.log.With("kind", kind.String()),
	}
	raw, err := l.subscribeRaw(subCtx, kind, s.logs)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("subscribe %s: %w", kind, err)
	}
	s.raw = raw

	l.mu.Lock()
	l.subs[s] = struct{}{}
	l.mu.Unlock()

	go s.run()
	s.log.Debug("subscribed")
	return s.unsubscribe, nil
}

// RemoveAllListeners stops every live subscription and waits for their
// workers to exit.
func (l *Listener) RemoveAllListeners() {
	l.mu.Lock()
	subs := make([]*subscription, 0, len(l.subs))
	for s := range l.subs {
		subs = append(subs, s)
	}
	l.mu.Unlock()
	for _, s := range subs {
		s.unsubscribe()
	}
}

// ListenerCount reports the number of live subscriptions.
func (l *Listener) ListenerCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.subs)
}

func (l *Listener) query(kind Kind, from, to *big.Int) ethereum.FilterQuery {
	return ethereum.FilterQuery{
		FromBlock: from,
		ToBlock:   to,
		Addresses: []common.Address{l.address},
		Topics:    [][]common.Hash{{l.dec.topic(kind)}},
	}
}

func (l *Listener) subscribeRaw(ctx context.Context, kind Kind, ch chan<- types.Log) (ethereum.Subscription, error) {
	q := l.query(kind, nil, nil)
	return retry.Do(ctx, l.retry, func(ctx context.Context) (ethereum.Subscription, error) {
		return l.client.SubscribeFilterLogs(ctx, q, ch)
	})
}

// blockTime looks up the timestamp of block n. Failure is logged and yields nil.
func (l *Listener) blockTime(ctx context.Context, n uint64) *time.Time {
	h, err := retry.Do(ctx, l.retry, func(ctx context.Context) (*types.Header, error) {
		return l.client.HeaderByNumber(ctx, new(big.Int).SetUint64(n))
	})
	if err != nil {
		if ctx.Err() == nil {
			l.log.Warn("block timestamp lookup failed", "block", n, "err", err)
		}
		return nil
	}
	ts := time.Unix(int64(h.Time), 0).UTC()
	return &ts
}

func (l *Listener) normalize(ctx context.Context, kind Kind, lg types.Log) (Event, error) {
	args, err := l.dec.args(kind, lg)
	if err != nil {
		return nil, err
	}
	return Normalize(kind, args, lg, l.blockTime(ctx, lg.BlockNumber))
}

// QueryPastEvents returns the events of kind in the inclusive block range
// [from, to]; to may be blockrange.Latest. The log query is retried per the
// listener's policy. Timestamps are enriched best-effort.
func (l *Listener) QueryPastEvents(ctx context.Context, kind Kind, from, to uint64) ([]Event, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("query: unknown event kind %d", int(kind))
	}
	r := blockrange.Range{From: from, To: to}
	q := l.query(kind, r.FromBig(), r.ToBig())
	logs, err := retry.Do(ctx, l.retry, func(ctx context.Context) ([]types.Log, error) {
		return l.client.FilterLogs(ctx, q)
	})
	if err != nil {
		return nil, fmt.Errorf("query %s events %s: %w", kind, r, err)
	}

	out := make([]Event, len(logs))
	var g errgroup.Group
	g.SetLimit(l.enrichLimit)
	for i, lg := range logs {
		g.Go(func() error {
			ev, err := l.normalize(ctx, kind, lg)
			if err != nil {
				return fmt.Errorf("decode %s log %s/%d: %w", kind, lg.TxHash.Hex(), lg.Index, err)
			}
			out[i] = ev
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// GetAllEvents queries all six kinds over [from, to] concurrently and merges
// them by block number. Events in the same block keep kind declaration
// order, then the provider's order within a kind. Any kind failing fails the
// whole call.
func (l *Listener) GetAllEvents(ctx context.Context, from, to uint64) ([]Event, error) {
	perKind := make([][]Event, len(Kinds))
	g, gctx := errgroup.WithContext(ctx)
	for i, k := range Kinds {
		g.Go(func() error {
			evs, err := l.QueryPastEvents(gctx, k, from, to)
			if err != nil {
				return err
			}
			perKind[i] = evs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var all []Event
	for _, evs := range perKind {
		all = append(all, evs...)
	}
	sort.SliceStable(all, func(i, j int) bool {
		return all[i].Base().BlockNumber < all[j].Base().BlockNumber
	})
	return all, nil
}

type subscription struct {
	l       *Listener
	kind    Kind
	handler Handler
	logs    chan types.Log
	raw     ethereum.Subscription
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
	once    sync.Once
	log     *slog.Logger
}

func (s *subscription) unsubscribe() {
	s.once.Do(func() {
		s.cancel()
		<-s.done
		s.log.Debug("unsubscribed")
	})
}

func (s *subscription) run() {
	defer close(s.done)
	defer func() {
		s.l.mu.Lock()
		delete(s.l.subs, s)
		s.l.mu.Unlock()
	}()
	defer func() { s.raw.Unsubscribe() }()

	for {
		select {
		case <-s.ctx.Done():
			return
		case err := <-s.raw.Err():
			if s.ctx.Err() != nil {
				return
			}
			s.log.Warn("subscription dropped, resubscribing", "err", err)
			s.raw.Unsubscribe()
			raw, rerr := s.l.subscribeRaw(s.ctx, s.kind, s.logs)
			if rerr != nil {
				if s.ctx.Err() == nil {
					s.log.Error("resubscribe failed", "err", rerr)
				}
				return
			}
			s.raw = raw
		case lg := <-s.logs:
			s.deliver(lg)
		}
	}
}

func (s *subscription) deliver(lg types.Log) {
	if lg.Removed {
		s.log.Debug("skipping removed log", "block", lg.BlockNumber, "tx", lg.TxHash.Hex())
		return
	}
	ev, err := s.l.normalize(s.ctx, s.kind, lg)
	if err != nil {
		s.log.Warn("dropping undecodable log", "block", lg.BlockNumber, "err", err)
		return
	}
	if s.ctx.Err() != nil {
		return
	}
	s.handler(ev)
}
