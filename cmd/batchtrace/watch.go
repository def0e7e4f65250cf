package main

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/devblac/batchtrace/internal/events"
	"github.com/devblac/batchtrace/internal/health"
	"github.com/devblac/batchtrace/internal/metrics"
)

var (
	flagHealth  string
	flagMetrics string
	flagQuiet   bool
)

func init() {
	watchCmd.Flags().StringVar(&flagHealth, "health", "", "Health check HTTP address (e.g., :8080)")
	watchCmd.Flags().StringVar(&flagMetrics, "metrics", "", "Metrics HTTP address (e.g., :9090)")
	watchCmd.Flags().BoolVar(&flagQuiet, "quiet", false, "Do not print events to stdout")
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow live contract events and keep caches fresh",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		var mtr *metrics.Metrics
		if flagMetrics != "" {
			mtr = metrics.Init()
		}
		a, err := newApp(ctx, mtr)
		if err != nil {
			return err
		}
		defer a.Close()
		log := a.log

		if flagHealth != "" {
			healthSrv := health.Serve(flagHealth, health.Checker{
				DBPing:     a.store.Ping,
				LedgerPing: health.LedgerPing(a.client),
				CacheStats: a.service.Caches().Stats,
			}, nil)
			log.Info("health check enabled", "addr", flagHealth)
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = health.Shutdown(shutdownCtx, healthSrv)
			}()
		}

		if flagMetrics != "" {
			mux := http.NewServeMux()
			mux.Handle("/metrics", metrics.Handler())
			srv := &http.Server{Addr: flagMetrics, Handler: mux, ReadHeaderTimeout: 3 * time.Second}
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Error("metrics server error", "error", err)
				}
			}()
			log.Info("metrics enabled", "addr", flagMetrics)
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = srv.Shutdown(shutdownCtx)
			}()
		}

		var (
			mu  sync.Mutex
			enc = json.NewEncoder(cmd.OutOrStdout())
		)
		if n := a.notifier.Len(); n > 0 {
			log.Info("sinks enabled", "count", n)
		}
		forward := func(ev events.Event) {
			if a.notifier.Len() > 0 {
				a.notifier.Notify(ctx, ev)
			}
			if flagQuiet {
				return
			}
			mu.Lock()
			defer mu.Unlock()
			_ = enc.Encode(eventRecord(ev))
		}

		stop, err := a.service.Watch(ctx, forward)
		if err != nil {
			return err
		}
		defer stop()

		<-ctx.Done()
		log.Info("shutting down", "events_seen", a.service.History().Len())
		return nil
	},
}
