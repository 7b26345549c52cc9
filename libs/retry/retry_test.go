package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

var errTransient = errors.New("transient")

func isTransient(err error) bool { return errors.Is(err, errTransient) }

func recordingPolicy(waits *[]time.Duration) Policy {
	p := Default()
	p.Sleep = func(_ context.Context, d time.Duration) error {
		*waits = append(*waits, d)
		return nil
	}
	return p
}

func TestDoRetriesTransientWithBackoff(t *testing.T) {
	var waits []time.Duration
	calls := 0
	v, err := Do(context.Background(), recordingPolicy(&waits), isTransient, func(context.Context) (int, error) {
		calls++
		if calls < 3 {
			return 0, errTransient
		}
		return 7, nil
	})
	if err != nil || v != 7 {
		t.Fatalf("expected 7, got %d (%v)", v, err)
	}
	if len(waits) != 2 || waits[0] != time.Second || waits[1] != 2*time.Second {
		t.Fatalf("unexpected waits %v", waits)
	}
}

func TestDoStopsAfterMaxAttempts(t *testing.T) {
	var waits []time.Duration
	calls := 0
	_, err := Do(context.Background(), recordingPolicy(&waits), isTransient, func(context.Context) (struct{}, error) {
		calls++
		return struct{}{}, errTransient
	})
	if !errors.Is(err, errTransient) {
		t.Fatalf("expected transient error, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls)
	}
	if len(waits) != 2 {
		t.Fatalf("expected 2 waits, got %d", len(waits))
	}
}

func TestDoDoesNotRetryTerminal(t *testing.T) {
	var waits []time.Duration
	terminal := errors.New("conflict")
	calls := 0
	_, err := Do(context.Background(), recordingPolicy(&waits), isTransient, func(context.Context) (int, error) {
		calls++
		return 0, terminal
	})
	if !errors.Is(err, terminal) || calls != 1 || len(waits) != 0 {
		t.Fatalf("expected single terminal attempt, got calls=%d waits=%v err=%v", calls, waits, err)
	}
}

func TestDoReportsCancellationWithLastError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	calls := 0
	_, err := Do(ctx, Default(), isTransient, func(context.Context) (int, error) {
		calls++
		return 0, errTransient
	})
	if calls != 1 {
		t.Fatalf("expected one attempt before cancellation, got %d", calls)
	}
	if !errors.Is(err, context.Canceled) || !errors.Is(err, errTransient) {
		t.Fatalf("expected cancellation wrapping the last error, got %v", err)
	}
}

func TestDoCancelledDuringWait(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p := Default()
	p.Sleep = func(ctx context.Context, _ time.Duration) error {
		cancel()
		return ctx.Err()
	}
	calls := 0
	_, err := Do(ctx, p, isTransient, func(context.Context) (int, error) {
		calls++
		return 0, errTransient
	})
	if calls != 1 {
		t.Fatalf("expected no attempt after cancellation, got %d", calls)
	}
	if !errors.Is(err, context.Canceled) || !errors.Is(err, errTransient) {
		t.Fatalf("expected cancellation wrapping the last error, got %v", err)
	}
}

func TestDoTerminalErrorIsNotWrapped(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	terminal := errors.New("conflict")
	_, err := Do(ctx, Default(), isTransient, func(context.Context) (int, error) {
		return 0, terminal
	})
	if err != terminal {
		t.Fatalf("expected terminal error unchanged, got %v", err)
	}
}

func TestDoUsesTimerWithoutSleepHook(t *testing.T) {
	p := Policy{Base: time.Millisecond, Factor: 2, MaxAttempts: 3}
	var delays []time.Duration
	var attempts []int
	p.OnRetry = func(attempt int, d time.Duration, err error) {
		attempts = append(attempts, attempt)
		delays = append(delays, d)
	}
	calls := 0
	v, err := Do(context.Background(), p, isTransient, func(context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", errTransient
		}
		return "ok", nil
	})
	if err != nil || v != "ok" {
		t.Fatalf("expected ok, got %q (%v)", v, err)
	}
	if len(delays) != 2 || delays[0] != time.Millisecond || delays[1] != 2*time.Millisecond {
		t.Fatalf("unexpected delays %v", delays)
	}
	if attempts[0] != 1 || attempts[1] != 2 {
		t.Fatalf("unexpected attempts %v", attempts)
	}
}

func TestDelayCapped(t *testing.T) {
	p := Policy{Base: time.Second, Factor: 2, MaxAttempts: 10, MaxDelay: 3 * time.Second}
	if d := p.Delay(5); d != 3*time.Second {
		t.Fatalf("expected cap 3s, got %s", d)
	}
	if d := p.Delay(2); d != 2*time.Second {
		t.Fatalf("expected 2s, got %s", d)
	}
}
