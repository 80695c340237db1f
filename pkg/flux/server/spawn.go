package server

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// WorkPool is the bounded background-task pool backing spawn(ctx, work_fn,
// done_fn): a small set of goroutines handlers can submit arbitrary work to
// without growing unboundedly, distinct from the per-connection goroutines
// the acceptor already runs.
type WorkPool struct {
	g *errgroup.Group
}

// NewWorkPool returns a WorkPool allowing at most limit concurrent tasks.
// A limit of 0 means unbounded, matching errgroup.Group's own default.
func NewWorkPool(limit int) *WorkPool {
	g := &errgroup.Group{}
	if limit > 0 {
		g.SetLimit(limit)
	}
	return &WorkPool{g: g}
}

// Future is the handle returned by Spawn; Wait blocks until work completes
// and returns its result and error.
type Future struct {
	result any
	err    error
	done   chan struct{}
}

func newFuture() *Future {
	return &Future{done: make(chan struct{})}
}

// Wait blocks until the task completes or ctx is done.
func (f *Future) Wait(ctx context.Context) (any, error) {
	select {
	case <-f.done:
		return f.result, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Spawn submits work to run on the pool. workFn is the user's background
// computation; its result and error are delivered through the returned
// Future rather than a completion callback, since Go's idiom for "resume
// on completion" is to hand back something the caller awaits.
func (p *WorkPool) Spawn(ctx context.Context, workFn func(context.Context) (any, error)) *Future {
	f := newFuture()
	p.g.Go(func() error {
		result, err := workFn(ctx)
		f.result = result
		f.err = err
		close(f.done)
		return err
	})
	return f
}

// Wait blocks until every task submitted to the pool has completed,
// returning the first error encountered (if any).
func (p *WorkPool) Wait() error {
	return p.g.Wait()
}
