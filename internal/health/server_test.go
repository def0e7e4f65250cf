package health

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/core/types"

	"github.com/devblac/batchtrace/internal/cache"
	"github.com/devblac/batchtrace/internal/ledger/ledgertest"
)

func TestHealthEndpoint(t *testing.T) {
	fail := func(ctx context.Context) error { return context.DeadlineExceeded }
	ok := func(ctx context.Context) error { return nil }

	tests := []struct {
		name       string
		checker    Checker
		wantCode   int
		wantDB     string
		wantLedger string
	}{
		{
			name:       "all_ok",
			checker:    Checker{DBPing: ok, LedgerPing: ok},
			wantCode:   http.StatusOK,
			wantDB:     "ok",
			wantLedger: "ok",
		},
		{
			name:       "db_fail",
			checker:    Checker{DBPing: fail, LedgerPing: ok},
			wantCode:   http.StatusServiceUnavailable,
			wantDB:     "fail",
			wantLedger: "ok",
		},
		{
			name:       "ledger_fail",
			checker:    Checker{DBPing: ok, LedgerPing: fail},
			wantCode:   http.StatusServiceUnavailable,
			wantDB:     "ok",
			wantLedger: "fail",
		},
		{
			name:     "no_checkers",
			checker:  Checker{},
			wantCode: http.StatusOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "http://localhost/healthz", nil)
			w := httptest.NewRecorder()

			Handler(tt.checker).ServeHTTP(w, req)

			if w.Code != tt.wantCode {
				t.Errorf("status code = %d, want %d", w.Code, tt.wantCode)
			}

			var resp report
			if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
				t.Fatalf("decode response: %v", err)
			}
			if resp.Status != "ok" {
				t.Errorf("status = %q, want ok", resp.Status)
			}
			if resp.DB != tt.wantDB {
				t.Errorf("db = %q, want %q", resp.DB, tt.wantDB)
			}
			if resp.Ledger != tt.wantLedger {
				t.Errorf("ledger = %q, want %q", resp.Ledger, tt.wantLedger)
			}
		})
	}
}

func TestHealthReportsCacheStats(t *testing.T) {
	c := cache.New[int]("entity", cache.Policy{})
	c.Set("a", 1)
	c.Set("b", 2)
	checker := Checker{CacheStats: func() map[string]cache.Stats {
		return map[string]cache.Stats{c.Name(): c.Stats()}
	}}

	srv := Serve("127.0.0.1:0", checker, map[string]http.Handler{
		"/ping": http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) }),
	})
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = Shutdown(ctx, srv)
	}()

	w := httptest.NewRecorder()
	srv.Handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "http://localhost/healthz", nil))
	var resp report
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if got := resp.Caches["entity"]; got.Total != 2 || got.Live != 2 {
		t.Fatalf("unexpected cache stats %+v", got)
	}

	w = httptest.NewRecorder()
	srv.Handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "http://localhost/ping", nil))
	if w.Code != http.StatusNoContent {
		t.Fatalf("extra route not mounted, got %d", w.Code)
	}
}

func TestLedgerPing(t *testing.T) {
	fc := ledgertest.New()
	if err := LedgerPing(fc)(context.Background()); err != nil {
		t.Fatalf("ping: %v", err)
	}
	fc.HeaderFunc = func(context.Context, *big.Int) (*types.Header, error) {
		return nil, errors.New("connection refused")
	}
	if err := LedgerPing(fc)(context.Background()); err == nil {
		t.Fatalf("expected ping failure")
	}
}
