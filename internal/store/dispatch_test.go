package store

import (
	"context"
	"testing"
	"time"
)

func TestDispatchReturnsResult(t *testing.T) {
	d := newDispatcher(2)
	defer d.close()

	got, err := Dispatch(context.Background(), d, func() (int, error) {
		return 42, nil
	})
	if err != nil || got != 42 {
		t.Fatalf("Dispatch = %v, %v, want 42, nil", got, err)
	}
}

func TestDispatchCancellationDoesNotBlockCaller(t *testing.T) {
	d := newDispatcher(1)
	defer d.close()

	started := make(chan struct{})
	release := make(chan struct{})
	// occupy the single worker so the next job cannot start immediately.
	go Dispatch(context.Background(), d, func() (struct{}, error) {
		close(started)
		<-release
		return struct{}{}, nil
	})
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := Dispatch(ctx, d, func() (struct{}, error) { return struct{}{}, nil })
	if err != context.DeadlineExceeded {
		t.Fatalf("Dispatch = %v, want DeadlineExceeded", err)
	}
	close(release)
}

func TestDispatchRecoversPanic(t *testing.T) {
	d := newDispatcher(1)
	defer d.close()

	_, err := Dispatch(context.Background(), d, func() (struct{}, error) {
		panic("boom")
	})
	if err == nil {
		t.Fatal("expected an error from a panicking job")
	}
}
