// Package resource throttles what the pipeline asks of its collaborators:
// concurrent in-flight calls against the embedding and vector-search
// services, and IO throughput against the blob store.
package resource

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// Config holds resource limits.
type Config struct {
	// MaxConcurrentCalls is the maximum number of collaborator calls in
	// flight at once. If 0, defaults to 1.
	MaxConcurrentCalls int64

	// CallsPerSec limits the rate of collaborator calls.
	// If 0, unlimited.
	CallsPerSec float64

	// IOLimitBytesPerSec is the maximum blob store throughput.
	// If 0, unlimited.
	IOLimitBytesPerSec int64
}

// Controller gates collaborator calls and blob IO. A nil Controller applies
// no limits, so callers never need to branch.
type Controller struct {
	callSem     *semaphore.Weighted
	callLimiter *rate.Limiter
	ioLimiter   *rate.Limiter
	inFlight    atomic.Int64
}

// NewController creates a new resource controller.
func NewController(cfg Config) *Controller {
	if cfg.MaxConcurrentCalls <= 0 {
		cfg.MaxConcurrentCalls = 1
	}

	c := &Controller{
		callSem: semaphore.NewWeighted(cfg.MaxConcurrentCalls),
	}

	if cfg.CallsPerSec > 0 {
		c.callLimiter = rate.NewLimiter(rate.Limit(cfg.CallsPerSec), 1)
	}

	if cfg.IOLimitBytesPerSec > 0 {
		c.ioLimiter = rate.NewLimiter(rate.Limit(cfg.IOLimitBytesPerSec), int(cfg.IOLimitBytesPerSec))
	}

	return c
}

// AcquireCall reserves a collaborator call slot, blocking until one is free
// and the call rate allows it, or ctx ends.
func (c *Controller) AcquireCall(ctx context.Context) error {
	if c == nil {
		return nil
	}

	if err := c.callSem.Acquire(ctx, 1); err != nil {
		return err
	}

	if c.callLimiter != nil {
		if err := c.callLimiter.Wait(ctx); err != nil {
			c.callSem.Release(1)
			return err
		}
	}

	c.inFlight.Add(1)
	return nil
}

// TryAcquireCall reserves a call slot without blocking.
func (c *Controller) TryAcquireCall() bool {
	if c == nil {
		return true
	}

	if !c.callSem.TryAcquire(1) {
		return false
	}
	if c.callLimiter != nil && !c.callLimiter.Allow() {
		c.callSem.Release(1)
		return false
	}

	c.inFlight.Add(1)
	return true
}

// ReleaseCall releases a call slot.
func (c *Controller) ReleaseCall() {
	if c == nil {
		return
	}

	c.callSem.Release(1)
	c.inFlight.Add(-1)
}

// InFlight returns the number of collaborator calls currently in flight.
func (c *Controller) InFlight() int64 {
	if c == nil {
		return 0
	}
	return c.inFlight.Load()
}

// AcquireIO waits until the IO limit allows the specified number of bytes.
func (c *Controller) AcquireIO(ctx context.Context, bytes int) error {
	if c == nil || c.ioLimiter == nil {
		return nil
	}
	return c.ioLimiter.WaitN(ctx, bytes)
}
