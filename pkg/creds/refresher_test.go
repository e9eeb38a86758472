package creds

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

type fakeSource struct {
	creds *Credentials
	err   error
	calls int
}

func (s *fakeSource) Fetch(ctx context.Context) (*Credentials, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.creds, nil
}

func TestRefreshReplacesSnapshot(t *testing.T) {
	store := NewStore(&Credentials{Secret: "old"})
	source := &fakeSource{creds: &Credentials{Secret: "new"}}

	r := NewRefresher(store, source, time.Hour)
	err := r.refresh(context.Background())
	if err != nil {
		t.Errorf("refresh should succeed got: %v", err)
	}

	if store.Current().Secret != "new" {
		t.Errorf("store should hold the rotated secret got: %s", store.Current().Secret)
	}
	if store.Epoch() != 2 {
		t.Errorf("epoch should advance to 2 got: %d", store.Epoch())
	}
}

func TestRefreshKeepsOldSnapshotOnFailure(t *testing.T) {
	store := NewStore(&Credentials{Secret: "old"})
	source := &fakeSource{err: fmt.Errorf("boom")}

	r := NewRefresher(store, source, time.Hour)

	// Long enough for at least one backoff retry (initial interval is
	// 500ms with jitter) before the context expires.
	ctx, cancel := context.WithTimeout(context.Background(), 1200*time.Millisecond)
	defer cancel()

	err := r.refresh(ctx)
	if err == nil {
		t.Error("refresh should fail when the source fails")
	}
	if store.Current().Secret != "old" || store.Epoch() != 1 {
		t.Errorf("a failed refresh must keep the previous snapshot, got secret %s epoch %d",
			store.Current().Secret, store.Epoch())
	}
	if source.calls < 2 {
		t.Errorf("retryable failures should be retried, got %d calls", source.calls)
	}
}

func TestRefreshPermissionDeniedIsFatal(t *testing.T) {
	store := NewStore(&Credentials{Secret: "old"})
	source := &fakeSource{err: fmt.Errorf("rejected: %w", ErrPermissionDenied)}

	r := NewRefresher(store, source, time.Hour)
	err := r.refresh(context.Background())

	if !errors.Is(err, ErrPermissionDenied) {
		t.Errorf("error should be permission denied got: %v", err)
	}
	if source.calls != 1 {
		t.Errorf("a fatal failure should not be retried, got %d calls", source.calls)
	}
}

func TestRefreshOnRotateHook(t *testing.T) {
	store := NewStore(&Credentials{Secret: "old"})
	source := &fakeSource{creds: &Credentials{Secret: "new"}}

	var rotated *Credentials
	r := NewRefresher(store, source, time.Hour)
	r.OnRotate = func(c *Credentials) { rotated = c }

	if err := r.refresh(context.Background()); err != nil {
		t.Errorf("refresh should succeed got: %v", err)
	}
	if rotated == nil || rotated.Secret != "new" {
		t.Error("OnRotate should run with the rotated snapshot")
	}
}

func TestRunKickTriggersRefresh(t *testing.T) {
	store := NewStore(&Credentials{Secret: "old"})
	source := &fakeSource{creds: &Credentials{Secret: "new"}}

	r := NewRefresher(store, source, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan int, 1)
	r.Run(ctx, done)
	r.Kick()

	deadline := time.After(2 * time.Second)
	for store.Epoch() == 1 {
		select {
		case <-deadline:
			t.Fatal("kick should trigger a rotation")
		case <-time.After(10 * time.Millisecond):
		}
	}

	if store.Current().Secret != "new" {
		t.Errorf("store should hold the rotated secret got: %s", store.Current().Secret)
	}
}

func TestRunFatalSignalsDone(t *testing.T) {
	store := NewStore(&Credentials{Secret: "old"})
	source := &fakeSource{err: fmt.Errorf("denied: %w", ErrPermissionDenied)}

	r := NewRefresher(store, source, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan int, 1)
	r.Run(ctx, done)
	r.Kick()

	select {
	case v := <-done:
		if v != 1 {
			t.Errorf("done should carry 1 got: %d", v)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("fatal rotation failure should signal done")
	}
}
