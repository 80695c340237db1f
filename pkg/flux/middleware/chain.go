// Package middleware implements the per-route middleware chain runtime:
// an ordered sequence of middleware functions followed by a terminal
// handler, plus a per-request cursor that advances through them.
//
// Grounded on the Chain/MiddlewareInfo/MiddlewareHandler types surveyed
// across original_source/src/middleware.c and its header variants. The
// asynchronous suspend/resume case — a middleware that defers calling next
// until a background task completes — is expressed with a goroutine plus a
// completion channel rather than libuv's uv_work_t, since flux runs one
// goroutine per connection instead of a single loop thread.
package middleware

import (
	"context"
	"fmt"
)

// Func is one middleware's signature: it receives the request, response,
// and a next continuation to advance the chain.
type Func func(req, res interface{}, next func()) error

// Handler is the terminal handler's signature.
type Handler func(req, res interface{}) error

// Info is the ordered middleware list plus terminal handler recorded once
// per (method, path) at registration time.
type Info struct {
	Middleware []Func
	Terminal   Handler
}

// NewInfo builds an Info from a middleware slice and terminal handler.
func NewInfo(mw []Func, terminal Handler) *Info {
	return &Info{Middleware: mw, Terminal: terminal}
}

// Chain is the per-request progression cursor: an index into Info's
// middleware list plus the terminal handler. The dispatcher allocates one
// Chain per request and it is never shared across requests or connections.
type Chain struct {
	info    *Info
	cursor  int
	req     interface{}
	res     interface{}
	err     error
	invoked bool
}

// NewChain builds a Chain positioned at the first middleware.
func NewChain(info *Info, req, res interface{}) *Chain {
	return &Chain{info: info, req: req, res: res}
}

// Run starts the chain at middleware index 0, or calls Terminal directly if
// there is no middleware.
func (c *Chain) Run() error {
	return c.advance()
}

// advance invokes the middleware at c.cursor, or the terminal handler once
// the cursor has passed the end of the list.
func (c *Chain) advance() error {
	if c.cursor >= len(c.info.Middleware) {
		if c.info.Terminal == nil {
			return nil
		}
		return c.info.Terminal(c.req, c.res)
	}

	mw := c.info.Middleware[c.cursor]
	c.cursor++

	nextCalled := false
	next := func() {
		if nextCalled {
			// Calling next twice, or past the end, is a programming error —
			// surface as an error the dispatcher turns into a 500 and a
			// closed connection.
			c.err = fmt.Errorf("middleware: next called more than once")
			return
		}
		nextCalled = true
		c.err = c.advance()
	}

	if err := mw(c.req, c.res, next); err != nil {
		return err
	}
	if nextCalled {
		return c.err
	}
	// Middleware returned without calling next: either it replied
	// synchronously, or it has suspended for async completion (see
	// AsyncContext below). Either way the chain stops advancing here.
	return nil
}

// AsyncContext captures (req, res, next) for a middleware that suspends
// itself to run background work before resuming the chain. It is the Go
// analogue of the reference implementation's async_execution_context_t,
// which wrapped a uv_work_t; here the background work is an ordinary
// goroutine and resumption is a channel send consumed by the caller's
// event loop equivalent (the connection's serving goroutine).
type AsyncContext struct {
	chain  *Chain
	doneCh chan error
}

// Suspend returns an AsyncContext bound to this Chain's current position.
// Start the background task with Spawn and advance the chain with Await;
// the resumption itself always happens on the goroutine that calls Await
// and drains doneCh (normally the connection's serving loop), which
// preserves the "one request in flight per connection" ordering guarantee.
func (c *Chain) Suspend() *AsyncContext {
	return &AsyncContext{chain: c, doneCh: make(chan error, 1)}
}

// Spawn submits work to run on a background goroutine and passes ctx to
// it; work's result is handed to Await, which resumes the chain. The wait
// in Await is bounded by the ctx given to Await.
func (a *AsyncContext) Spawn(ctx context.Context, work func(context.Context) error) {
	go func() {
		err := work(ctx)
		a.doneCh <- err
	}()
}

// Await blocks until the background task completes (or ctx is done),
// then resumes the chain. It must be called from the connection's serving
// goroutine so the "only one request in flight per connection" invariant
// holds.
func (a *AsyncContext) Await(ctx context.Context) error {
	select {
	case err := <-a.doneCh:
		if err != nil {
			return err
		}
		return a.chain.advance()
	case <-ctx.Done():
		return ctx.Err()
	}
}
