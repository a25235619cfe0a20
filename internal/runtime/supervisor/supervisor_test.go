package supervisor

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestGoRecoversPanic(t *testing.T) {
	t.Parallel()
	s := New(context.Background())

	s.Go("boom", func(ctx context.Context) error {
		panic("kaput")
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = s.Stop(ctx)

	if err := s.Err(); err == nil {
		t.Fatal("expected panic to surface as supervisor error")
	}
}

func TestCancelOnError(t *testing.T) {
	t.Parallel()
	s := New(context.Background(), WithCancelOnError(true))

	s.Go("fail", func(ctx context.Context) error {
		return errors.New("nope")
	})

	select {
	case <-s.Context().Done():
	case <-time.After(2 * time.Second):
		t.Fatal("expected context cancel after error")
	}
}

func TestGoRestartRetriesUntilCancel(t *testing.T) {
	t.Parallel()
	s := New(context.Background())

	var runs atomic.Int64
	s.GoRestart("flaky", func(ctx context.Context) error {
		if runs.Add(1) >= 3 {
			return nil // clean exit stops the loop
		}
		return errors.New("transient")
	}, WithRestartBackoff(time.Millisecond, 2*time.Millisecond))

	// Let the restart loop do its work before shutting down.
	deadline := time.Now().Add(3 * time.Second)
	for runs.Load() < 3 {
		if time.Now().After(deadline) {
			t.Fatalf("expected at least 3 runs, got %d", runs.Load())
		}
		time.Sleep(time.Millisecond)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}
}

func TestCountersTrackActive(t *testing.T) {
	t.Parallel()
	s := New(context.Background())

	release := make(chan struct{})
	s.Go0("held", func(ctx context.Context) {
		<-release
	})

	deadline := time.Now().Add(time.Second)
	for s.Counters().Active != 1 {
		if time.Now().After(deadline) {
			t.Fatalf("active = %d, want 1", s.Counters().Active)
		}
		time.Sleep(time.Millisecond)
	}
	close(release)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if c := s.Counters(); c.Active != 0 || c.Started != 1 {
		t.Fatalf("counters = %+v", c)
	}
}
