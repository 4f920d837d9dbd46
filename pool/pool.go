// Package pool bounds the number of simultaneously active connection
// handlers, lending one out per accepted socket or refusing the socket
// outright when the pool is already at capacity.
package pool

import (
	"context"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/polymedia/ember/conn"
	"github.com/polymedia/ember/emberlog"
	"github.com/polymedia/ember/http1"
)

// Options configures a Pool. Min/MaxConnections and CleanupInterval come
// straight from config.Config.
type Options struct {
	MinConnections  int
	MaxConnections  int
	CleanupInterval time.Duration

	NewConn func(onClose func(*conn.Conn)) *conn.Conn

	Logger *zap.Logger
}

// Pool is a bounded, reusable set of conn.Conn handlers. Acquire never
// blocks: when the pool is already at MaxConnections it returns
// (nil, false) so the caller can answer with a 503 instead of queueing.
type Pool struct {
	opts Options
	log  *zap.Logger
	sem  *semaphore.Weighted

	mu       sync.Mutex
	handlers []*entry
	chain    []http1.HeaderChecker

	stopCleanup chan struct{}
	cleanupDone chan struct{}
}

type entry struct {
	c          *conn.Conn
	idleSince  time.Time
	createdIdx int
}

// New constructs a Pool and eagerly creates MinConnections idle handlers.
func New(opts Options) *Pool {
	if opts.MaxConnections <= 0 {
		opts.MaxConnections = 1
	}
	p := &Pool{
		opts: opts,
		log:  emberlog.Or(opts.Logger),
		sem:  semaphore.NewWeighted(int64(opts.MaxConnections)),
	}
	for i := 0; i < opts.MinConnections; i++ {
		p.handlers = append(p.handlers, &entry{c: p.newHandler(), idleSince: time.Now()})
	}
	if opts.CleanupInterval > 0 {
		p.stopCleanup = make(chan struct{})
		p.cleanupDone = make(chan struct{})
		go p.cleanupLoop()
	}
	return p
}

func (p *Pool) newHandler() *conn.Conn {
	return p.opts.NewConn(p.Release)
}

// SetHeadersChecker installs the chain applied to every handler's next
// adopted connection, including ones not yet created.
func (p *Pool) SetHeadersChecker(chain []http1.HeaderChecker) {
	p.mu.Lock()
	p.chain = chain
	for _, e := range p.handlers {
		e.c.SetHeadersChecker(chain)
	}
	p.mu.Unlock()
}

// Acquire returns an idle handler bound for reuse, creating one if the
// pool has spare capacity, or (nil, false) if the pool is already at
// MaxConnections. The caller must either Adopt the handler or, if Adopt
// fails before the handler's own goroutine starts, call Release directly
// — otherwise the semaphore permit is never returned.
//
// Acquire itself never marks the returned handler busy; the handler only
// becomes busy once the caller's Adopt succeeds. This is safe only
// because a single accept-loop goroutine calls Acquire and Adopt back to
// back for a given handler (see listener.Listener.Serve) — Acquire's own
// idle scan above still relies on IsBusy, so a second concurrent caller
// racing the first's Acquire-then-Adopt window could observe the same
// handler as idle and double-acquire it.
func (p *Pool) Acquire() (*conn.Conn, bool) {
	if !p.sem.TryAcquire(1) {
		return nil, false
	}

	p.mu.Lock()
	for _, e := range p.handlers {
		if !e.c.IsBusy() {
			h := e.c
			p.mu.Unlock()
			return h, true
		}
	}
	h := p.newHandler()
	h.SetHeadersChecker(p.chain)
	p.handlers = append(p.handlers, &entry{c: h, idleSince: time.Now()})
	p.mu.Unlock()
	return h, true
}

// Release returns c's pool slot, making it acquirable again. It is wired
// as every handler's OnClose callback, firing once a connection reaches
// Closed, but it is also safe to call directly: the listener calls it
// when Adopt itself fails (bad socket, failed TLS handshake) before the
// handler's own goroutine — and therefore OnClose — ever runs, which
// would otherwise leak the semaphore permit Acquire took for it.
func (p *Pool) Release(c *conn.Conn) {
	p.mu.Lock()
	for _, e := range p.handlers {
		if e.c == c {
			e.idleSince = time.Now()
			break
		}
	}
	p.mu.Unlock()
	p.sem.Release(1)
}

func (p *Pool) cleanupLoop() {
	defer close(p.cleanupDone)
	ticker := time.NewTicker(p.opts.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			p.reapIdle()
		case <-p.stopCleanup:
			return
		}
	}
}

// reapIdle destroys idle handlers in excess of MinConnections that have
// been idle longer than CleanupInterval, matching the pool's "reap idle
// handlers above the floor" invariant.
func (p *Pool) reapIdle() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.handlers) <= p.opts.MinConnections {
		return
	}
	cutoff := time.Now().Add(-p.opts.CleanupInterval)
	removable := len(p.handlers) - p.opts.MinConnections
	var kept []*entry
	for _, e := range p.handlers {
		if removable > 0 && !e.c.IsBusy() && e.idleSince.Before(cutoff) {
			removable--
			continue
		}
		kept = append(kept, e)
	}
	p.handlers = kept
}

// Shutdown stops the cleanup sweep and asks every handler to close,
// waiting (bounded by ctx) for all of them to reach Closed. Per-handler
// errors are aggregated with multierr rather than short-circuiting.
func (p *Pool) Shutdown(ctx context.Context) error {
	if p.stopCleanup != nil {
		close(p.stopCleanup)
		<-p.cleanupDone
	}

	p.mu.Lock()
	handlers := make([]*conn.Conn, 0, len(p.handlers))
	for _, e := range p.handlers {
		handlers = append(handlers, e.c)
	}
	p.mu.Unlock()

	var (
		errMu sync.Mutex
		errs  error
	)
	g, _ := errgroup.WithContext(ctx)
	for _, h := range handlers {
		h := h
		g.Go(func() error {
			if !h.IsBusy() {
				return nil
			}
			h.Shutdown()
			select {
			case <-h.Done():
				return nil
			case <-ctx.Done():
				errMu.Lock()
				errs = multierr.Append(errs, ctx.Err())
				errMu.Unlock()
				return nil
			}
		})
	}

	_ = g.Wait()
	return errs
}

// Len reports the current number of handlers the pool has created
// (idle or busy), for diagnostics.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.handlers)
}
