package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func counting(calls *atomic.Int32) func(context.Context) error {
	return func(context.Context) error {
		calls.Add(1)
		return nil
	}
}

func runFor(t *testing.T, s *Scheduler, d time.Duration) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	time.Sleep(d)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected nil error on cancel, got: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not return within 2s after cancel")
	}
}

func TestRun_ImmediateFirstRun(t *testing.T) {
	var calls atomic.Int32
	s := NewScheduler([]Task{{Name: "crawl", Interval: time.Hour, Run: counting(&calls)}}, discardLogger())

	runFor(t, s, 100*time.Millisecond)

	if got := calls.Load(); got != 1 {
		t.Errorf("calls = %d, want 1", got)
	}
}

func TestRun_TicksOnInterval(t *testing.T) {
	var calls atomic.Int32
	s := NewScheduler([]Task{{Name: "sync", Interval: 50 * time.Millisecond, Run: counting(&calls)}}, discardLogger())

	runFor(t, s, 300*time.Millisecond)

	if got := calls.Load(); got < 3 {
		t.Errorf("calls = %d, want >= 3", got)
	}
}

func TestRun_ErrorDoesNotStopOtherTasks(t *testing.T) {
	var failing, healthy atomic.Int32
	s := NewScheduler([]Task{
		{Name: "failing", Interval: 50 * time.Millisecond, Run: func(context.Context) error {
			failing.Add(1)
			return errors.New("portal down")
		}},
		{Name: "healthy", Interval: 50 * time.Millisecond, Run: counting(&healthy)},
	}, discardLogger())

	runFor(t, s, 200*time.Millisecond)

	if failing.Load() < 2 {
		t.Errorf("failing task calls = %d, want >= 2", failing.Load())
	}
	if healthy.Load() < 2 {
		t.Errorf("healthy task calls = %d, want >= 2", healthy.Load())
	}
}

func TestRun_PanicDoesNotStopScheduler(t *testing.T) {
	var panics, healthy atomic.Int32
	s := NewScheduler([]Task{
		{Name: "panicky", Interval: 50 * time.Millisecond, Run: func(context.Context) error {
			panics.Add(1)
			panic("nil map write")
		}},
		{Name: "healthy", Interval: 50 * time.Millisecond, Run: counting(&healthy)},
	}, discardLogger())

	runFor(t, s, 200*time.Millisecond)

	if panics.Load() < 2 {
		t.Errorf("panicking task calls = %d, want >= 2", panics.Load())
	}
	if healthy.Load() < 2 {
		t.Errorf("healthy task calls = %d, want >= 2", healthy.Load())
	}
}

func TestRun_OrderOfFirstCycle(t *testing.T) {
	var (
		mu    sync.Mutex
		order []string
	)
	record := func(name string) func(context.Context) error {
		return func(context.Context) error {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
			return nil
		}
	}
	s := NewScheduler([]Task{
		{Name: "recover", Interval: time.Hour, Run: record("recover")},
		{Name: "crawl", Interval: time.Hour, Run: record("crawl")},
		{Name: "sync", Interval: time.Hour, Run: record("sync")},
	}, discardLogger())

	runFor(t, s, 100*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	want := []string{"recover", "crawl", "sync"}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}

func TestRun_SkipsTickWhileRunning(t *testing.T) {
	var (
		calls   atomic.Int32
		running atomic.Int32
		overlap atomic.Bool
	)
	slow := func(ctx context.Context) error {
		calls.Add(1)
		if running.Add(1) > 1 {
			overlap.Store(true)
		}
		defer running.Add(-1)
		select {
		case <-time.After(150 * time.Millisecond):
		case <-ctx.Done():
		}
		return nil
	}
	s := NewScheduler([]Task{{Name: "slow", Interval: 20 * time.Millisecond, Run: slow}}, discardLogger())

	runFor(t, s, 400*time.Millisecond)

	if overlap.Load() {
		t.Error("task ran concurrently with itself")
	}
	if got := calls.Load(); got > 4 {
		t.Errorf("calls = %d, overlapping ticks should be skipped", got)
	}
}

func TestRun_RejectsNonPositiveInterval(t *testing.T) {
	s := NewScheduler([]Task{{Name: "bad", Run: func(context.Context) error { return nil }}}, discardLogger())
	if err := s.Run(context.Background()); err == nil {
		t.Fatal("expected error for zero interval")
	}
}
