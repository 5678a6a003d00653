// Package fakeconn provides an in-memory pool.Conn double, used by the
// pool package's tests. cmd/pgpool-bench does not use it; it always dials
// a real database through internal/pgxconn.
package fakeconn

import (
	"context"
	"net"
	"sync"
	"sync/atomic"

	"github.com/kevin07696/pgpool/internal/pool"
)

// Script lets a test script the behavior of the next Connect/Query call.
type Script struct {
	ConnectErr error
	QueryErr   error
	Result     *pool.Result
}

// Factory is a fakeconn.Factory that hands out Conns whose behavior is
// driven by a caller-supplied script function, so a test can flip
// behavior (e.g. "fail the third connect attempt") across the life of
// the pool under test.
type Factory struct {
	mu       sync.Mutex
	dialed   int64
	ScriptFn func(dialAttempt int) Script
}

// NewFactory returns a Factory whose Dial method satisfies pool.Factory.
func NewFactory(scriptFn func(dialAttempt int) Script) *Factory {
	return &Factory{ScriptFn: scriptFn}
}

// Dial satisfies pool.Factory.
func (f *Factory) Dial() pool.Conn {
	n := int(atomic.AddInt64(&f.dialed, 1))
	return &Conn{factory: f, dialAttempt: n}
}

// DialCount returns how many times Dial has been called.
func (f *Factory) DialCount() int {
	return int(atomic.LoadInt64(&f.dialed))
}

// Conn is an in-memory pool.Conn. Query always returns the script's
// result/error for the attempt that produced it; it never actually stores
// or returns real data, which is sufficient for exercising the pool's
// accounting and retry logic.
type Conn struct {
	factory     *Factory
	dialAttempt int

	mu        sync.Mutex
	connected bool
	closed    bool
	listener  func(error)
}

func (c *Conn) Connect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	script := c.factory.ScriptFn(c.dialAttempt)
	if script.ConnectErr != nil {
		return script.ConnectErr
	}
	c.mu.Lock()
	c.connected = true
	c.mu.Unlock()
	return nil
}

func (c *Conn) Query(ctx context.Context, text string, args []any) (*pool.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	script := c.factory.ScriptFn(c.dialAttempt)
	if script.QueryErr != nil {
		return nil, script.QueryErr
	}
	if script.Result != nil {
		return script.Result, nil
	}
	return &pool.Result{}, nil
}

func (c *Conn) Close(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.connected = false
	return nil
}

func (c *Conn) SetErrorListener(f func(error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listener = f
}

// Fail lets a test simulate an asynchronous driver error on an otherwise
// idle connection.
func (c *Conn) Fail(err error) {
	c.mu.Lock()
	listener := c.listener
	c.mu.Unlock()
	if listener != nil {
		listener(err)
	}
}

// RawConn always reports that no transport is exposed; fakeconn has no
// real socket to hand back.
func (c *Conn) RawConn() (net.Conn, bool) {
	return nil, false
}
