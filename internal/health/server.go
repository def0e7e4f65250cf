package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/devblac/batchtrace/internal/cache"
)

type Checker struct {
	DBPing     func(ctx context.Context) error
	LedgerPing func(ctx context.Context) error
	// CacheStats is reported as-is and never fails the check.
	CacheStats func() map[string]cache.Stats
}

type report struct {
	Status string                 `json:"status"`
	DB     string                 `json:"db,omitempty"`
	Ledger string                 `json:"ledger,omitempty"`
	Caches map[string]cache.Stats `json:"caches,omitempty"`
}

// Handler returns the /healthz handler.
func Handler(checker Checker) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		rep := report{Status: "ok"}
		code := http.StatusOK

		if checker.DBPing != nil {
			if err := checker.DBPing(ctx); err != nil {
				rep.DB = "fail"
				code = http.StatusServiceUnavailable
			} else {
				rep.DB = "ok"
			}
		}
		if checker.LedgerPing != nil {
			if err := checker.LedgerPing(ctx); err != nil {
				rep.Ledger = "fail"
				code = http.StatusServiceUnavailable
			} else {
				rep.Ledger = "ok"
			}
		}
		if checker.CacheStats != nil {
			rep.Caches = checker.CacheStats()
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(rep)
	})
}

// Serve starts a minimal /healthz server, plus extra routes if given.
func Serve(addr string, checker Checker, extra map[string]http.Handler) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/healthz", Handler(checker))
	for path, h := range extra {
		mux.Handle(path, h)
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 3 * time.Second,
	}
	go func() { _ = srv.ListenAndServe() }()
	return srv
}

// Shutdown gracefully shuts down the health server.
func Shutdown(ctx context.Context, srv *http.Server) error {
	return srv.Shutdown(ctx)
}
