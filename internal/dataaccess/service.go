// Package dataaccess is the read side of the batch tracker: cached,
// retried contract reads, live cache invalidation driven by contract events,
// and resumable historical backfill.
package dataaccess

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"regexp"

	"github.com/ethereum/go-ethereum/core/types"
	"golang.org/x/sync/errgroup"

	"github.com/devblac/batchtrace/internal/blockrange"
	"github.com/devblac/batchtrace/internal/events"
	"github.com/devblac/batchtrace/internal/fault"
	"github.com/devblac/batchtrace/internal/ledger"
	"github.com/devblac/batchtrace/internal/paginate"
	"github.com/devblac/batchtrace/internal/retry"
	"github.com/devblac/batchtrace/internal/storage"
)

const (
	batchesKey   = "batches-all"
	fetchWorkers = 8
)

var aggregateKeys = regexp.MustCompile(`^batches-`)

func batchKey(id string) string  { return "batch-" + id }
func eventsKey(id string) string { return "events-" + id }

// Observer receives pipeline counts. metrics.Metrics implements it.
type Observer interface {
	EventDelivered(kind string)
	ChunkSynced()
	Failure()
}

type noopObserver struct{}

func (noopObserver) EventDelivered(string) {}
func (noopObserver) ChunkSynced()          {}
func (noopObserver) Failure()              {}

// Checkpointer persists backfill progress. *storage.Store implements it.
type Checkpointer interface {
	GetCheckpoint(ctx context.Context, job string) (storage.Checkpoint, bool, error)
	SaveCheckpoint(ctx context.Context, job string, next, to uint64) error
}

// Service combines the contract, its event listener and the cache registry.
type Service struct {
	contract    *ledger.Contract
	listener    *events.Listener
	caches      *Registry
	retry       retry.Policy
	history     *events.History
	chunkSize   uint64
	checkpoints Checkpointer
	obs         Observer
	log         *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

func WithRetry(p retry.Policy) Option { return func(s *Service) { s.retry = p } }

func WithHistory(h *events.History) Option {
	return func(s *Service) {
		if h != nil {
			s.history = h
		}
	}
}

func WithChunkSize(n uint64) Option { return func(s *Service) { s.chunkSize = n } }

func WithCheckpoints(c Checkpointer) Option { return func(s *Service) { s.checkpoints = c } }

func WithObserver(o Observer) Option {
	return func(s *Service) {
		if o != nil {
			s.obs = o
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

// New builds a service. A nil registry gets DefaultPolicies.
func New(contract *ledger.Contract, listener *events.Listener, caches *Registry, opts ...Option) *Service {
	if caches == nil {
		caches = NewRegistry(DefaultPolicies())
	}
	s := &Service{
		contract:  contract,
		listener:  listener,
		caches:    caches,
		retry:     retry.DefaultPolicy(),
		history:   events.NewHistory(events.DefaultHistorySize),
		chunkSize: blockrange.DefaultChunkSize,
		obs:       noopObserver{},
		log:       slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With("component", "dataaccess")
	return s
}

// Caches returns the registry backing the service.
func (s *Service) Caches() *Registry { return s.caches }

// History returns the buffer of recently delivered live events.
func (s *Service) History() *events.History { return s.history }

func (s *Service) fail(err error) error {
	s.obs.Failure()
	return err
}

// parseID parses a decimal batch id. Cache keys use the canonical form so
// "007" and "7" share the entry that events for batch 7 invalidate.
func parseID(id string) (*big.Int, error) {
	n, ok := new(big.Int).SetString(id, 10)
	if !ok || n.Sign() < 0 {
		return nil, fault.New(fault.Unknown, fmt.Sprintf("invalid batch id %q", id))
	}
	return n, nil
}

// Batch returns one batch, served from the entity cache when fresh.
func (s *Service) Batch(ctx context.Context, id string) (ledger.Batch, error) {
	n, err := parseID(id)
	if err != nil {
		return ledger.Batch{}, err
	}
	key := batchKey(n.String())
	if b, ok := s.caches.Entities.Get(key); ok {
		return b, nil
	}
	b, err := retry.Do(ctx, s.retry, func(ctx context.Context) (ledger.Batch, error) {
		return s.contract.Batch(ctx, n)
	})
	if err != nil {
		return ledger.Batch{}, s.fail(err)
	}
	s.caches.Entities.Set(key, b)
	return b, nil
}

// Batches returns every batch, 1 through the on-chain count, served from the
// aggregate cache when fresh. Individual batches are fetched through Batch.
func (s *Service) Batches(ctx context.Context) ([]ledger.Batch, error) {
	if all, ok := s.caches.Aggregates.Get(batchesKey); ok {
		return all, nil
	}
	count, err := retry.Do(ctx, s.retry, s.contract.BatchCount)
	if err != nil {
		return nil, s.fail(err)
	}

	all := make([]ledger.Batch, count)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(fetchWorkers)
	for i := range all {
		g.Go(func() error {
			b, err := s.Batch(gctx, fmt.Sprint(i+1))
			if err != nil {
				return err
			}
			all[i] = b
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	s.caches.Aggregates.Set(batchesKey, all)
	return all, nil
}

// BatchesPage returns one page of Batches.
func (s *Service) BatchesPage(ctx context.Context, req paginate.Request) (paginate.Page[ledger.Batch], error) {
	all, err := s.Batches(ctx)
	if err != nil {
		return paginate.Page[ledger.Batch]{}, err
	}
	return paginate.Slice(all, req), nil
}

// BatchEvents returns every contract event of batch id in block order,
// served from the live-event cache when fresh.
func (s *Service) BatchEvents(ctx context.Context, id string) ([]events.Event, error) {
	n, err := parseID(id)
	if err != nil {
		return nil, err
	}
	id = n.String()
	key := eventsKey(id)
	if evs, ok := s.caches.LiveEvents.Get(key); ok {
		return evs, nil
	}
	all, err := s.listener.GetAllEvents(ctx, 0, blockrange.Latest)
	if err != nil {
		return nil, s.fail(err)
	}
	evs := events.ForSubject(all, id)
	s.caches.LiveEvents.Set(key, evs)
	return evs, nil
}

// Watch subscribes to all six event kinds and then clears the caches. Every
// delivered event is recorded
// in History, invalidates the cached state of its batch and every aggregate,
// and is then passed to forward if non-nil. The returned function stops all
// subscriptions.
func (s *Service) Watch(ctx context.Context, forward events.Handler) (func(), error) {
	var stops []func()
	stopAll := func() {
		for _, stop := range stops {
			stop()
		}
	}
	for _, k := range events.Kinds {
		stop, err := s.listener.Subscribe(ctx, k, func(ev events.Event) {
			s.apply(ev)
			if forward != nil {
				forward(ev)
			}
		})
		if err != nil {
			stopAll()
			return nil, s.fail(err)
		}
		stops = append(stops, stop)
	}
	// Entries read before the subscriptions were live may predate events that
	// will never be delivered.
	s.caches.Clear()
	s.log.Info("watching contract events", "contract", s.contract.Address().Hex())
	return stopAll, nil
}

func (s *Service) apply(ev events.Event) {
	s.history.Append(ev)
	id := ev.Base().SubjectID
	s.caches.Entities.Delete(batchKey(id))
	s.caches.LiveEvents.Delete(eventsKey(id))
	n := s.caches.Aggregates.InvalidateMatching(aggregateKeys)
	s.obs.EventDelivered(ev.Kind().String())
	s.log.Debug("event applied", "kind", ev.Kind().String(), "batch", id, "block", ev.Base().BlockNumber, "aggregates_dropped", n)
}

// BackfillReport summarizes one Backfill run.
type BackfillReport struct {
	Events    []events.Event
	From      uint64
	To        uint64
	Completed []blockrange.Range
	// Next is the first block the job still has to cover.
	Next uint64
}

// Backfill collects all events in [from, to] chunk by chunk. An open-ended
// to is resolved to the current head first. When job is named and a
// Checkpointer is configured, progress is saved after every chunk and a
// later run with the same job resumes after the last completed chunk. A
// checkpoint already past a different, smaller end block is discarded and
// the range is synced from the start. Each chunk is attempted once, relying
// on the listener's own retries. On failure the report holds what completed
// before the error.
func (s *Service) Backfill(ctx context.Context, job string, from, to uint64, progress blockrange.ProgressFunc) (BackfillReport, error) {
	if to == blockrange.Latest {
		head, err := retry.Do(ctx, s.retry, func(ctx context.Context) (*types.Header, error) {
			return s.contract.Client().HeaderByNumber(ctx, nil)
		})
		if err != nil {
			return BackfillReport{}, s.fail(fmt.Errorf("resolve head: %w", err))
		}
		to = head.Number.Uint64()
	}

	track := job != "" && s.checkpoints != nil
	if track {
		cp, ok, err := s.checkpoints.GetCheckpoint(ctx, job)
		if err != nil {
			return BackfillReport{}, s.fail(err)
		}
		switch {
		case !ok || cp.Next <= from:
		case cp.To != to && cp.Next > to:
			s.log.Warn("checkpoint is past the requested end block, starting over",
				"job", job, "checkpoint_next", cp.Next, "checkpoint_to", cp.To, "to", to)
		default:
			if cp.To != to {
				s.log.Warn("checkpoint end block differs", "job", job, "checkpoint_to", cp.To, "to", to)
			}
			s.log.Info("resuming backfill", "job", job, "from", cp.Next, "to", to)
			from = cp.Next
		}
	}
	rep := BackfillReport{From: from, To: to, Next: from}
	if from > to {
		return rep, nil
	}

	var last blockrange.Range
	query := func(ctx context.Context, r blockrange.Range) ([]events.Event, error) {
		evs, err := s.listener.GetAllEvents(ctx, r.From, r.To)
		if err == nil {
			last = r
		}
		return evs, err
	}
	onChunk := func(done, total int) {
		s.obs.ChunkSynced()
		if track {
			if err := s.checkpoints.SaveCheckpoint(ctx, job, last.To+1, to); err != nil {
				s.log.Warn("checkpoint save failed", "job", job, "err", err)
			}
		}
		if progress != nil {
			progress(done, total)
		}
	}

	// GetAllEvents already retries each ledger call; a second retry layer
	// here would multiply attempts against the provider.
	chunkPolicy := retry.Policy{OnRetry: s.retry.OnRetry, Clock: s.retry.Clock}
	res := blockrange.Sync(ctx, query, blockrange.Config{
		From:      from,
		To:        to,
		ChunkSize: s.chunkSize,
		Retry:     &chunkPolicy,
	}, onChunk)
	rep.Events = res.Results
	rep.Completed = res.Completed
	if next, ok := res.Resume(); ok {
		rep.Next = next
	}
	if res.Err != nil {
		return rep, s.fail(res.Err)
	}
	return rep, nil
}
