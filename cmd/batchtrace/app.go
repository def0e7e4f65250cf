package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/devblac/batchtrace/internal/cache"
	"github.com/devblac/batchtrace/internal/config"
	"github.com/devblac/batchtrace/internal/dataaccess"
	"github.com/devblac/batchtrace/internal/events"
	"github.com/devblac/batchtrace/internal/ledger"
	"github.com/devblac/batchtrace/internal/logging"
	"github.com/devblac/batchtrace/internal/metrics"
	"github.com/devblac/batchtrace/internal/sink"
	"github.com/devblac/batchtrace/internal/storage"
)

// app is the wired object graph shared by the commands.
type app struct {
	cfg      *config.Config
	log      *slog.Logger
	rpc      *ledger.RPCClient
	client   ledger.Client
	store    *storage.Store
	service  *dataaccess.Service
	notifier *sink.Notifier
	metrics  *metrics.Metrics
}

// newApp loads the config, applies overrides and dials the ledger. A nil mtr
// leaves metrics off.
func newApp(ctx context.Context, mtr *metrics.Metrics, overrides ...func(*config.Config)) (*app, error) {
	log := logging.New()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	for _, o := range overrides {
		o(cfg)
	}

	a, err := ledger.LoadABI(cfg.Ledger.ABIPath)
	if err != nil {
		return nil, err
	}

	rpc, err := ledger.Dial(ctx, cfg.Ledger.RPCURL)
	if err != nil {
		return nil, err
	}
	client := ledger.RateLimited(rpc, cfg.Ledger.RateLimit.RPS, cfg.Ledger.RateLimit.Burst)

	store, err := storage.Open(cfg.Global.DBPath)
	if err != nil {
		rpc.Close()
		return nil, fmt.Errorf("open storage: %w", err)
	}

	policy := cfg.Retry.Policy()
	if mtr != nil {
		policy.OnRetry = mtr.OnRetry
	}

	contract := ledger.NewContract(client, cfg.Ledger.ContractAddress(), a)
	listener, err := events.NewListener(contract,
		events.WithLogger(log),
		events.WithRetry(policy),
		events.WithQueueSize(cfg.Events.QueueSize),
	)
	if err != nil {
		store.Close()
		rpc.Close()
		return nil, err
	}

	var cacheOpts []cache.Option
	if mtr != nil {
		cacheOpts = append(cacheOpts, cache.WithRecorder(mtr))
	}
	opts := []dataaccess.Option{
		dataaccess.WithLogger(log),
		dataaccess.WithRetry(policy),
		dataaccess.WithChunkSize(cfg.Sync.ChunkSize),
		dataaccess.WithHistory(events.NewHistory(cfg.Events.HistorySize)),
		dataaccess.WithCheckpoints(store),
	}
	if mtr != nil {
		opts = append(opts, dataaccess.WithObserver(mtr))
	}
	svc := dataaccess.New(contract, listener, dataaccess.NewRegistry(cfg.Cache, cacheOpts...), opts...)

	targets := make(map[string]sink.Target, len(cfg.Sinks))
	for _, s := range cfg.Sinks {
		sender, err := sink.New(s.Type, s.Endpoint(), s.Method, s.Template)
		if err == nil {
			var match sink.Filter
			match, err = sink.CompileFilter(s.Match)
			targets[s.ID] = sink.Target{Sender: sender, Match: match}
		}
		if err != nil {
			store.Close()
			rpc.Close()
			return nil, fmt.Errorf("sink %s: %w", s.ID, err)
		}
	}

	return &app{
		cfg:      cfg,
		log:      log,
		rpc:      rpc,
		client:   client,
		store:    store,
		service:  svc,
		notifier: sink.NewNotifier(targets, policy, log),
		metrics:  mtr,
	}, nil
}

func (a *app) Close() {
	_ = a.store.Close()
	a.rpc.Close()
}
