package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestControl_WaitRunning(t *testing.T) {
	c := NewControl()
	if err := c.Wait(context.Background()); err != nil {
		t.Fatalf("Wait on running gate: %v", err)
	}
}

func TestControl_PauseBlocksUntilResume(t *testing.T) {
	c := NewControl()
	if !c.Pause() {
		t.Fatal("first Pause should change state")
	}
	if c.Pause() {
		t.Fatal("second Pause should be a no-op")
	}

	done := make(chan error, 1)
	go func() { done <- c.Wait(context.Background()) }()

	select {
	case err := <-done:
		t.Fatalf("Wait returned while paused: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	if !c.Resume() {
		t.Fatal("Resume should change state")
	}
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Wait after resume: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Wait did not return after Resume")
	}
}

func TestControl_CancelReleasesPausedWaiter(t *testing.T) {
	c := NewControl()
	c.Pause()

	done := make(chan error, 1)
	go func() { done <- c.Wait(context.Background()) }()

	c.Cancel()
	c.Cancel() // idempotent

	select {
	case err := <-done:
		if !errors.Is(err, ErrCancelled) {
			t.Fatalf("Wait error = %v, want ErrCancelled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Wait did not return after Cancel")
	}
	if !c.Cancelled() {
		t.Error("Cancelled should report true")
	}
}

func TestControl_ContextCancellation(t *testing.T) {
	c := NewControl()
	c.Pause()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := c.Wait(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("Wait error = %v, want context.Canceled", err)
	}
}
