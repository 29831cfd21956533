// Package concurrency runs groups of functions concurrently, sharing a limit
// carried by the context.
package concurrency

import (
	"context"
	"errors"
	"sync"
)

type limiterKey struct{}

type limiter struct {
	ch chan struct{}
}

func (l *limiter) acquire(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case l.ch <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *limiter) release() {
	<-l.ch
}

// WithConcurrencyLimit returns a new context with the given concurrency limit embedded.
// If the parent context already has a limit, this new limit overrides it.
func WithConcurrencyLimit(ctx context.Context, limit uint) context.Context {
	if limit == 0 {
		limit = 1
	}
	return context.WithValue(ctx, limiterKey{}, &limiter{ch: make(chan struct{}, limit)})
}

// ConcurrencyLimit returns the limit set by WithConcurrencyLimit, or 0 when unlimited.
func ConcurrencyLimit(ctx context.Context) uint {
	l, ok := ctx.Value(limiterKey{}).(*limiter)
	if !ok {
		return 0
	}
	return uint(cap(l.ch))
}

// ConcurrencyGroup runs functions as go routines respecting a context limit defined by
// WithConcurrencyLimit. The limit is shared by all ConcurrencyGroup using the same context: with
// a limit of 2 and 2 groups running 5 functions each, only 2 functions run at any time.
type ConcurrencyGroup struct {
	ctx    context.Context
	wg     sync.WaitGroup
	errs   []error
	errsMu sync.Mutex
}

func NewConcurrencyGroup(ctx context.Context) *ConcurrencyGroup {
	return &ConcurrencyGroup{
		ctx: ctx,
	}
}

// Run schedules fn to run as a go routine as soon as the context limit allows. If the context
// is done before a slot is available, fn is not called and its error is the context error.
func (c *ConcurrencyGroup) Run(fn func(ctx context.Context) error) {
	c.errsMu.Lock()
	i := len(c.errs)
	c.errs = append(c.errs, nil)
	c.errsMu.Unlock()

	setErr := func(err error) {
		c.errsMu.Lock()
		c.errs[i] = err
		c.errsMu.Unlock()
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		if l, ok := c.ctx.Value(limiterKey{}).(*limiter); ok {
			if err := l.acquire(c.ctx); err != nil {
				setErr(err)
				return
			}
			defer l.release()
		}
		setErr(fn(c.ctx))
	}()
}

// Wait waits for all scheduled functions to complete, and returns their errors, in the order
// they were scheduled.
func (c *ConcurrencyGroup) Wait() []error {
	c.wg.Wait()
	c.errsMu.Lock()
	defer c.errsMu.Unlock()
	errs := make([]error, len(c.errs))
	copy(errs, c.errs)
	return errs
}

// WaitErr is Wait, with all errors joined by errors.Join.
func (c *ConcurrencyGroup) WaitErr() error {
	return errors.Join(c.Wait()...)
}
