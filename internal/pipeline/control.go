// Package pipeline holds the signals shared between the extraction worker and the control path.
package pipeline

import (
	"context"
	"errors"
	"sync"
)

// ErrCancelled is returned by Wait once cancellation has been requested.
var ErrCancelled = errors.New("extraction cancelled")

// Control is a pause gate plus a cancellation flag.
// The gate is open while running; the worker blocks on it once per sampled frame.
type Control struct {
	mu        sync.Mutex
	running   chan struct{} // closed while running
	paused    bool
	cancelled chan struct{}
	cancelOne sync.Once
}

// NewControl returns a control in the running state.
func NewControl() *Control {
	running := make(chan struct{})
	close(running)
	return &Control{
		running:   running,
		cancelled: make(chan struct{}),
	}
}

// Pause clears the gate. It reports whether the state changed.
func (c *Control) Pause() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.paused {
		return false
	}
	c.paused = true
	c.running = make(chan struct{})
	return true
}

// Resume sets the gate. It reports whether the state changed.
func (c *Control) Resume() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.paused {
		return false
	}
	c.paused = false
	close(c.running)
	return true
}

// Cancel raises the cancellation flag. Waiters blocked on a paused gate are released.
func (c *Control) Cancel() {
	c.cancelOne.Do(func() { close(c.cancelled) })
}

// Paused reports whether the gate is cleared.
func (c *Control) Paused() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.paused
}

// Cancelled reports whether cancellation has been requested.
func (c *Control) Cancelled() bool {
	select {
	case <-c.cancelled:
		return true
	default:
		return false
	}
}

// Done is closed once cancellation has been requested.
func (c *Control) Done() <-chan struct{} {
	return c.cancelled
}

// Wait blocks while the gate is cleared.
// Returns ErrCancelled once cancellation is requested, or ctx.Err() if ctx ends first.
func (c *Control) Wait(ctx context.Context) error {
	if c.Cancelled() {
		return ErrCancelled
	}
	c.mu.Lock()
	running := c.running
	c.mu.Unlock()

	select {
	case <-running:
		if c.Cancelled() {
			return ErrCancelled
		}
		return nil
	case <-c.cancelled:
		return ErrCancelled
	case <-ctx.Done():
		return ctx.Err()
	}
}
