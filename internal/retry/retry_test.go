package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/devblac/batchtrace/internal/fault"
)

var (
	errNetwork  = errors.New("network error: connection reset")
	errTimeout  = errors.New("request timeout")
	errContract = errors.New("contract call reverted")
)

func testPolicy(delays *[]time.Duration) Policy {
	return Policy{
		MaxRetries: 3,
		BaseDelay:  time.Millisecond,
		OnRetry: func(attempt int, err *fault.Error, delay time.Duration) {
			*delays = append(*delays, delay)
		},
	}
}

func TestDo_SucceedsFirstAttempt(t *testing.T) {
	calls := 0
	got, err := Do(context.Background(), DefaultPolicy(), func(context.Context) (int, error) {
		calls++
		return 42, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 42 || calls != 1 {
		t.Fatalf("got %d after %d calls", got, calls)
	}
}

func TestDo_NetworkErrorExhaustsRetries(t *testing.T) {
	var delays []time.Duration
	calls := 0
	_, err := Do(context.Background(), testPolicy(&delays), func(context.Context) (int, error) {
		calls++
		return 0, errNetwork
	})

	if calls != 4 {
		t.Fatalf("expected maxRetries+1 = 4 calls, got %d", calls)
	}
	want := []time.Duration{time.Millisecond, 2 * time.Millisecond, 4 * time.Millisecond}
	if len(delays) != len(want) {
		t.Fatalf("delays %v, want %v", delays, want)
	}
	for i := range want {
		if delays[i] != want[i] {
			t.Fatalf("delay[%d] = %v, want %v", i, delays[i], want[i])
		}
	}

	var classified *fault.Error
	if !errors.As(err, &classified) || classified.Code != fault.Network {
		t.Fatalf("expected classified NETWORK error, got %v", err)
	}
	if !errors.Is(err, errNetwork) {
		t.Fatalf("last error should wrap the operation failure")
	}
}

func TestDo_ContractErrorFailsImmediately(t *testing.T) {
	var delays []time.Duration
	calls := 0
	start := time.Now()
	_, err := Do(context.Background(), testPolicy(&delays), func(context.Context) (string, error) {
		calls++
		return "", errContract
	})

	if calls != 1 {
		t.Fatalf("expected exactly one call, got %d", calls)
	}
	if len(delays) != 0 {
		t.Fatalf("no backoff expected, got %v", delays)
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Fatalf("unrecoverable error took %v", elapsed)
	}
	var classified *fault.Error
	if !errors.As(err, &classified) || classified.Code != fault.Contract {
		t.Fatalf("expected CONTRACT error, got %v", err)
	}
}

func TestDo_RecoversAfterTimeouts(t *testing.T) {
	var delays []time.Duration
	calls := 0
	got, err := Do(context.Background(), testPolicy(&delays), func(context.Context) (string, error) {
		calls++
		if calls <= 2 {
			return "", errTimeout
		}
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "ok" || calls != 3 || len(delays) != 2 {
		t.Fatalf("got %q calls=%d delays=%v", got, calls, delays)
	}
}

func TestDo_ZeroRetries(t *testing.T) {
	calls := 0
	err := DoVoid(context.Background(), Policy{MaxRetries: 0, BaseDelay: time.Millisecond}, func(context.Context) error {
		calls++
		return errNetwork
	})
	if err == nil || calls != 1 {
		t.Fatalf("expected one failing call, got calls=%d err=%v", calls, err)
	}
}

func TestDo_ContextCancelledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	p := Policy{
		MaxRetries: 5,
		BaseDelay:  time.Hour,
		OnRetry:    func(int, *fault.Error, time.Duration) { cancel() },
	}
	_, err := Do(ctx, p, func(context.Context) (int, error) {
		calls++
		return 0, errNetwork
	})
	if calls != 1 {
		t.Fatalf("expected no retry after cancellation, got %d calls", calls)
	}
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation error, got %v", err)
	}
}

func TestDo_AttemptTimeout(t *testing.T) {
	calls := 0
	p := Policy{MaxRetries: 1, BaseDelay: time.Millisecond, AttemptTimeout: 5 * time.Millisecond}
	_, err := Do(context.Background(), p, func(ctx context.Context) (int, error) {
		calls++
		<-ctx.Done()
		return 0, ctx.Err()
	})
	if calls != 2 {
		t.Fatalf("deadline errors are recoverable, expected 2 calls, got %d", calls)
	}
	var classified *fault.Error
	if !errors.As(err, &classified) || classified.Code != fault.Timeout {
		t.Fatalf("expected TIMEOUT error, got %v", err)
	}
}

func TestPolicyDelay(t *testing.T) {
	p := Policy{BaseDelay: 100 * time.Millisecond}
	for i, want := range []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 400 * time.Millisecond, 800 * time.Millisecond} {
		if got := p.Delay(i); got != want {
			t.Fatalf("Delay(%d) = %v, want %v", i, got, want)
		}
	}
	if (Policy{}).Delay(0) != DefaultBaseDelay {
		t.Fatalf("zero base delay should fall back to default")
	}
}
