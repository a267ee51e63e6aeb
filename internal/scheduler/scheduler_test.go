package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
)

type stubStore struct {
	released int
	calls    int
	err      error
}

func (s *stubStore) ReleaseExpiredQuarantines(ctx context.Context) (int, error) {
	s.calls++
	return s.released, s.err
}

func TestRunNow(t *testing.T) {
	store := &stubStore{released: 3}
	s := New(store, slog.New(slog.NewTextHandler(io.Discard, nil)))

	s.RunNow()

	if store.calls != 1 {
		t.Errorf("sweep calls = %d, want 1", store.calls)
	}
}

func TestRunNowSweepError(t *testing.T) {
	store := &stubStore{err: errors.New("db down")}
	s := New(store, slog.New(slog.NewTextHandler(io.Discard, nil)))

	// Must not panic; the error is logged and the scheduler stays alive.
	s.RunNow()

	if store.calls != 1 {
		t.Errorf("sweep calls = %d, want 1", store.calls)
	}
}

func TestStartInvalidSchedule(t *testing.T) {
	s := New(&stubStore{}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err := s.Start("not a cron expression"); err == nil {
		t.Error("expected error for invalid schedule")
	}
}

func TestStartAndStop(t *testing.T) {
	s := New(&stubStore{}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err := s.Start("@every 1h"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	<-s.Stop().Done()
}
