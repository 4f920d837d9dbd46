// Package conn implements the per-connection HTTP/1.x state machine: one
// goroutine owns a socket for its entire lifetime, drives pipelined
// request/response cycles across it, and hands each parsed request to an
// asynchronous Handler whose completion (or the peer disconnecting)
// drives the state machine forward.
package conn

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/polymedia/ember/emberlog"
	"github.com/polymedia/ember/http1"
	"github.com/polymedia/ember/socket"
)

// State is the connection handler's current position in its lifecycle.
type State int32

const (
	Idle State = iota
	Reading
	AwaitingHandler
	Writing
	Draining
	Closed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Reading:
		return "reading"
	case AwaitingHandler:
		return "awaiting_handler"
	case Writing:
		return "writing"
	case Draining:
		return "draining"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

// Options configures a Conn. ReadTimeout and MaxRequestSize come straight
// from config.Config; TLSConfig is nil for plain TCP.
type Options struct {
	ReadTimeout    time.Duration
	MaxRequestSize int64
	TLSConfig      *tls.Config
	Handler        Handler
	Chain          []http1.HeaderChecker
	Logger         *zap.Logger

	// OnClose, if set, is invoked exactly once when the connection
	// reaches Closed, letting the pool reclaim its slot.
	OnClose func(*Conn)
}

type readResult struct {
	data []byte
	err  error
}

type task struct {
	fn     func() error
	result chan error
}

// Conn is a pooled, reusable connection handler. Adopt binds it to a
// freshly accepted net.Conn; once the resulting goroutine reaches Closed
// the Conn can be Adopted again for a new socket.
type Conn struct {
	id int64

	opts    Options
	handler Handler
	chain   []http1.HeaderChecker
	log     *zap.Logger

	sock   *socket.Socket
	parser *http1.Parser
	resp   *http1.ResponseWriter

	state atomic.Int32
	busy  atomic.Bool

	readCh    chan readResult
	taskCh    chan task
	closedCh  chan struct{}
	closeOnce sync.Once

	cancelMu sync.Mutex
	cancel   context.CancelFunc

	// requestID is monotonic for the handler's entire lifetime, not reset
	// per Adopt: doAwaitingHandler discards a Completion whose RequestID
	// doesn't match c.requestID, and a completion from a handler goroutine
	// cancelled by a prior adoption's Shutdown can still arrive after this
	// Conn has been recycled onto a new socket. Resetting to 0 on every
	// Adopt would let such a stale completion collide with the new
	// connection's first request and get mistaken for it.
	requestID int64
	pending   []byte

	completionCh chan Completion
	pendingComp  Completion

	doneCh chan struct{}
}

var connSeq atomic.Int64

// New constructs an idle Conn ready for Adopt. opts.Handler defaults to
// NotImplementedHandler when nil.
func New(opts Options) *Conn {
	h := opts.Handler
	if h == nil {
		h = NotImplementedHandler
	}
	return &Conn{
		id:           connSeq.Add(1),
		opts:         opts,
		handler:      h,
		chain:        opts.Chain,
		log:          emberlog.Or(opts.Logger),
		parser:       http1.NewParser(opts.MaxRequestSize, opts.Chain),
		resp:         http1.NewResponseWriter(nil, nil),
		readCh:       make(chan readResult, 1),
		taskCh:       make(chan task),
		completionCh: make(chan Completion, 1),
	}
}

// IsBusy reports whether the connection is currently bound to a socket.
func (c *Conn) IsBusy() bool { return c.busy.Load() }

// SetHeadersChecker installs the headers-checking chain applied to the
// next request this connection parses.
func (c *Conn) SetHeadersChecker(chain []http1.HeaderChecker) {
	c.chain = chain
	c.parser.SetChain(chain)
}

// ID returns the connection's identity, stable for its lifetime (reused
// across Adopt calls, matching the pool's "handler instances are reusable
// across many connections" invariant).
func (c *Conn) ID() int64 { return c.id }

// Adopt binds this Conn to netConn and runs its state machine to
// completion on a new goroutine, returning immediately. The Conn must not
// be busy.
func (c *Conn) Adopt(netConn net.Conn) error {
	sock, err := socket.Adopt(netConn, c.opts.TLSConfig)
	if err != nil {
		netConn.Close()
		return err
	}
	c.sock = sock
	c.busy.Store(true)
	c.state.Store(int32(Reading))
	c.pending = c.pending[:0]
	c.closedCh = make(chan struct{})
	c.closeOnce = sync.Once{}
	c.doneCh = make(chan struct{})
	c.parser.Reset()

	go c.readPump()
	go c.run()
	return nil
}

// Shutdown requests a graceful close: the in-flight handler (if any) is
// cancelled and the connection is drained and closed from its own
// goroutine. Safe to call from any goroutine, any number of times.
func (c *Conn) Shutdown() {
	c.cancelInFlight()
	c.closeOnce.Do(func() {
		if c.closedCh != nil {
			close(c.closedCh)
		}
	})
}

// Done returns a channel closed once the connection currently adopted
// reaches Closed, letting callers like pool.Shutdown wait for Shutdown to
// actually finish tearing the socket down rather than just signaling it.
// Returns nil if the connection has never been adopted.
func (c *Conn) Done() <-chan struct{} { return c.doneCh }

// RunOnSocketTask runs fn on this connection's own goroutine, blocking
// the caller until it returns. This is the only sanctioned way for
// handler code running on another goroutine to touch the response or
// socket, since both are otherwise exclusively owned by the connection's
// goroutine. A panic inside fn is recovered on the connection's goroutine
// and returned to the caller as an error.
func (c *Conn) RunOnSocketTask(fn func() error) error {
	wrapped := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("conn: socket task panicked: %v", r)
			}
		}()
		return fn()
	}
	t := task{fn: wrapped, result: make(chan error, 1)}
	select {
	case c.taskCh <- t:
	case <-c.closedCh:
		return ErrClosed
	}
	select {
	case err := <-t.result:
		return err
	case <-c.closedCh:
		return ErrClosed
	}
}

func (c *Conn) readPump() {
	buf := make([]byte, 8192)
	for {
		n, err := c.sock.Reader().Read(buf)
		var chunk []byte
		if n > 0 {
			chunk = make([]byte, n)
			copy(chunk, buf[:n])
		}
		select {
		case c.readCh <- readResult{data: chunk, err: err}:
		case <-c.closedCh:
			return
		}
		if err != nil {
			return
		}
	}
}

func (c *Conn) run() {
	for {
		switch State(c.state.Load()) {
		case Reading:
			c.doReading()
		case AwaitingHandler:
			c.doAwaitingHandler()
		case Writing:
			c.doWriting()
		case Draining:
			c.doDraining()
		case Closed:
			c.finish()
			return
		default:
			c.finish()
			return
		}
	}
}

func (c *Conn) setState(s State) { c.state.Store(int32(s)) }

func (c *Conn) doReading() {
	var timer *time.Timer
	armTimer := func() {
		if timer != nil {
			timer.Stop()
		}
		if c.opts.ReadTimeout > 0 {
			timer = time.NewTimer(c.opts.ReadTimeout)
		}
	}
	armTimer()
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		if len(c.pending) > 0 {
			consume := c.pending
			c.pending = nil
			c.parser.Feed(consume)
			switch c.parser.Status() {
			case http1.Complete:
				c.pending = c.parser.Leftover()
				c.onRequestComplete()
				return
			case http1.Abort:
				c.writeLiteral("HTTP/1.1 413 entity too large\r\nConnection: close\r\n\r\n413 Entity too large\r\n")
				return
			case http1.WrongHeaders:
				he := c.parser.HTTPError()
				c.writeLiteral("HTTP/1.1 " + strconv.Itoa(he.Code) + "\r\nConnection: close\r\n\r\n" + he.Text + "\r\n")
				return
			case http1.WaitBody:
				armTimer()
			}
			continue
		}

		var timerC <-chan time.Time
		if timer != nil {
			timerC = timer.C
		}
		select {
		case res := <-c.readCh:
			if res.err != nil {
				c.setState(Closed)
				return
			}
			c.pending = append(c.pending, res.data...)
			armTimer()
		case t := <-c.taskCh:
			t.result <- t.fn()
		case <-timerC:
			c.setState(Draining)
			return
		case <-c.closedCh:
			c.setState(Draining)
			return
		}
	}
}

// writeLiteral writes one of the canonical bit-exact error responses and
// moves the connection to Draining; the connection is never reused after
// one of these.
func (c *Conn) writeLiteral(raw string) {
	_, _ = c.sock.Write([]byte(raw))
	_ = c.sock.Flush()
	c.setState(Draining)
}

func (c *Conn) onRequestComplete() {
	c.requestID++
	reqID := c.requestID
	req := c.parser.Request()
	req.RemoteAddr = c.sock.RemoteAddr()

	keepAlive := req.KeepAliveRequested()
	c.resp.Reset(c.sock, req)
	if !keepAlive {
		c.resp.SetHeader("Connection", "close")
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.cancelMu.Lock()
	c.cancel = cancel
	c.cancelMu.Unlock()

	c.setState(AwaitingHandler)

	params := ServeParams{
		RequestID:       reqID,
		Request:         req,
		Response:        c.resp,
		Ctx:             ctx,
		InitialClose:    !keepAlive,
		RunOnSocketTask: c.RunOnSocketTask,
	}
	go func() {
		defer func() {
			if r := recover(); r != nil {
				c.log.Error("handler panicked", append(emberlog.RequestFields(c.id, reqID, req.RemoteAddr), zap.Any("panic", r))...)
				select {
				case c.completionCh <- Completion{RequestID: reqID, Close: true}:
				default:
				}
			}
		}()
		c.handler.Serve(params, c.completionCh)
	}()
}

func (c *Conn) doAwaitingHandler() {
	for {
		select {
		case comp := <-c.completionCh:
			if comp.RequestID != c.requestID {
				continue
			}
			c.finalizeCompletion(comp)
			return
		case res := <-c.readCh:
			if res.err != nil {
				c.cancelInFlight()
				c.setState(Closed)
				return
			}
			c.pending = append(c.pending, res.data...)
		case t := <-c.taskCh:
			t.result <- t.fn()
		case <-c.closedCh:
			c.cancelInFlight()
			c.setState(Draining)
			return
		}
	}
}

func (c *Conn) finalizeCompletion(comp Completion) {
	c.cancelMu.Lock()
	c.cancel = nil
	c.cancelMu.Unlock()
	if comp.Finalize != nil {
		comp.Finalize()
	}
	c.setState(Writing)
	c.pendingComp = comp
}

func (c *Conn) doWriting() {
	comp := c.pendingComp
	c.pendingComp = Completion{}

	if !c.resp.HasSentLastPart() {
		if err := c.resp.Write(nil, true); err != nil {
			c.setState(Closed)
			return
		}
	}

	keepAlive := !comp.Close
	if equalFoldHeader(c.resp.Header().Get("Connection"), "close") {
		keepAlive = false
	}
	if c.resp.Framing() != http1.ContentLength && c.resp.Framing() != http1.Chunked {
		keepAlive = false
	}

	if !keepAlive {
		c.setState(Draining)
		return
	}
	c.parser.Reset()
	c.setState(Reading)
}

func equalFoldHeader(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		ca, cb := a[i], b[i]
		if ca >= 'A' && ca <= 'Z' {
			ca += 32
		}
		if cb >= 'A' && cb <= 'Z' {
			cb += 32
		}
		if ca != cb {
			return false
		}
	}
	return true
}

func (c *Conn) doDraining() {
	_ = c.sock.ShutdownWrite()
	c.setState(Closed)
}

func (c *Conn) finish() {
	if c.sock != nil {
		_ = c.sock.Close()
	}
	c.closeOnce.Do(func() {
		if c.closedCh != nil {
			close(c.closedCh)
		}
	})
	c.busy.Store(false)
	if c.doneCh != nil {
		close(c.doneCh)
	}
	if c.opts.OnClose != nil {
		c.opts.OnClose(c)
	}
}

func (c *Conn) cancelInFlight() {
	c.cancelMu.Lock()
	cancel := c.cancel
	c.cancel = nil
	c.cancelMu.Unlock()
	if cancel != nil {
		cancel()
	}
}
